package auction

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	defaultMaxBidAttempts    = 3
	defaultRetryBackoff      = 20 * time.Millisecond
	defaultSideEffectTimeout = 10 * time.Second
)

type options struct {
	notifier          Notifier
	broadcaster       Broadcaster
	logger            *slog.Logger
	clock             func() time.Time
	maxBidAttempts    int
	retryBackoff      time.Duration
	sideEffectTimeout time.Duration
}

type Option func(*options)

func WithNotifier(n Notifier) Option {
	return func(o *options) {
		o.notifier = n
	}
}

func WithBroadcaster(b Broadcaster) Option {
	return func(o *options) {
		o.broadcaster = b
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithClock 替換取得目前時間的函數，主要用於測試
func WithClock(clock func() time.Time) Option {
	return func(o *options) {
		o.clock = clock
	}
}

// WithMaxBidAttempts 設定出價遇到交易衝突時的最大嘗試次數
func WithMaxBidAttempts(n int) Option {
	return func(o *options) {
		o.maxBidAttempts = n
	}
}

func WithRetryBackoff(d time.Duration) Option {
	return func(o *options) {
		o.retryBackoff = d
	}
}

func WithSideEffectTimeout(d time.Duration) Option {
	return func(o *options) {
		o.sideEffectTimeout = d
	}
}

// Service 實作拍賣的核心流程：出價、結算、付款以及評價
//
// 所有狀態變更都在 Ledger 的拍賣列鎖中完成；
// 廣播與通知在交易提交後以非同步的方式執行，失敗只會記錄日誌而不影響已提交的結果。
type Service struct {
	ledger            Ledger
	notifier          Notifier
	broadcaster       Broadcaster
	logger            *slog.Logger
	now               func() time.Time
	maxBidAttempts    int
	retryBackoff      time.Duration
	sideEffectTimeout time.Duration

	tasks sync.WaitGroup
}

func NewService(ledger Ledger, opts ...Option) (*Service, error) {
	const op = "NewService"

	if ledger == nil {
		return nil, fmt.Errorf("%s: ledger is required", op)
	}

	o := &options{
		notifier:          nopNotifier{},
		broadcaster:       nopBroadcaster{},
		logger:            slog.Default(),
		clock:             time.Now,
		maxBidAttempts:    defaultMaxBidAttempts,
		retryBackoff:      defaultRetryBackoff,
		sideEffectTimeout: defaultSideEffectTimeout,
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.maxBidAttempts < 1 {
		return nil, fmt.Errorf("%s: max bid attempts must be positive, got %d", op, o.maxBidAttempts)
	}

	return &Service{
		ledger:            ledger,
		notifier:          o.notifier,
		broadcaster:       o.broadcaster,
		logger:            o.logger.With(slog.String("caller", "auction.Service")),
		now:               func() time.Time { return o.clock().UTC() },
		maxBidAttempts:    o.maxBidAttempts,
		retryBackoff:      o.retryBackoff,
		sideEffectTimeout: o.sideEffectTimeout,
	}, nil
}

// Now 返回服務使用的目前時間(UTC)
func (s *Service) Now() time.Time {
	return s.now()
}

// Wait 等待所有已排程的廣播與通知執行完畢
func (s *Service) Wait() {
	s.tasks.Wait()
}

// dispatch 在背景執行一個提交後的副作用
// 副作用使用獨立的 context，不會因為請求結束而被取消
func (s *Service) dispatch(name string, fn func(ctx context.Context) error, attrs ...any) {
	s.tasks.Add(1)
	go func() {
		defer s.tasks.Done()
		logger := s.logger.With(attrs...).With(slog.String("task", name))
		defer func() {
			if r := recover(); r != nil {
				logger.Error("side effect panicked", slog.Any("panic", r))
			}
		}()

		ctx, cancel := context.WithTimeout(context.Background(), s.sideEffectTimeout)
		defer cancel()
		if err := fn(ctx); err != nil {
			logger.Error("side effect failed", slog.Any("error", err))
			return
		}
		logger.Debug("side effect done")
	}()
}

// withRetry 在遇到 ErrTxConflict 時重新執行 fn，超過次數後返回 ErrAuctionBusy
func (s *Service) withRetry(ctx context.Context, fn func() error) error {
	var err error
	for attempt := 1; attempt <= s.maxBidAttempts; attempt++ {
		err = fn()
		if !errors.Is(err, ErrTxConflict) {
			return err
		}
		s.logger.Debug("transaction conflict, retrying", slog.Int("attempt", attempt), slog.Any("error", err))
		if attempt == s.maxBidAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(s.retryBackoff * time.Duration(attempt)):
		}
	}
	return reject(ErrAuctionBusy, "auction is busy, please retry (%v)", err)
}

// auctionNotFound 將儲存層的 ErrRecordNotFound 轉換為 ErrAuctionNotFound
func auctionNotFound(err error, id uuid.UUID) error {
	if errors.Is(err, ErrRecordNotFound) {
		return reject(ErrAuctionNotFound, "auction %s not found", id)
	}
	return err
}
