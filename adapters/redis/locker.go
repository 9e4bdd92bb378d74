package redis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-redsync/redsync/v4"
	"github.com/go-redsync/redsync/v4/redis/goredis/v9"
	"github.com/redis/go-redis/v9"
)

type lockerOptions struct {
	logger        *slog.Logger
	prefix        string
	expiry        time.Duration
	renewInterval time.Duration
}

type LockerOption func(*lockerOptions)

// WithLockerLogger 設置日誌記錄器
func WithLockerLogger(logger *slog.Logger) LockerOption {
	return func(o *lockerOptions) {
		o.logger = logger
	}
}

// WithLockerPrefix 設置鎖的 key 前綴
func WithLockerPrefix(prefix string) LockerOption {
	return func(o *lockerOptions) {
		o.prefix = prefix
	}
}

// WithLockerExpiry 設置鎖過期時間
func WithLockerExpiry(d time.Duration) LockerOption {
	return func(o *lockerOptions) {
		o.expiry = d
	}
}

// WithLockerRenewInterval 設置自動續期間隔，預設為過期時間的 1/3
func WithLockerRenewInterval(d time.Duration) LockerOption {
	return func(o *lockerOptions) {
		o.renewInterval = d
	}
}

// Locker 以 redsync 提供跨程序的非阻塞互斥鎖
// 取得鎖之後會在背景自動續期，直到呼叫 unlock 為止
type Locker struct {
	rs      *redsync.Redsync
	logger  *slog.Logger
	options lockerOptions
}

func NewLocker(client redis.UniversalClient, opts ...LockerOption) (*Locker, error) {
	if client == nil {
		return nil, errors.New("redis client cannot be nil")
	}

	options := lockerOptions{
		logger: slog.Default(),
		expiry: 8 * time.Second,
	}
	for _, opt := range opts {
		opt(&options)
	}
	if options.renewInterval <= 0 {
		options.renewInterval = options.expiry / 3
	}

	return &Locker{
		rs:      redsync.New(goredis.NewPool(client)),
		logger:  options.logger.With(slog.String("caller", "Locker")),
		options: options,
	}, nil
}

// TryLock 嘗試取得 key 的鎖，不會等待
// 鎖被其他人持有時返回 acquired = false；只有與 redis 通訊失敗時才返回錯誤
func (l *Locker) TryLock(ctx context.Context, key string) (func(), bool, error) {
	mutex := l.rs.NewMutex(
		l.options.prefix+key,
		redsync.WithExpiry(l.options.expiry),
		redsync.WithTries(1),
	)

	if err := mutex.LockContext(ctx); err != nil {
		var commErr *redsync.RedisError
		if errors.As(err, &commErr) {
			return nil, false, fmt.Errorf("failed to acquire lock %s: %w", key, err)
		}
		return nil, false, nil
	}

	renewCtx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		l.renew(renewCtx, mutex)
	}()

	var once sync.Once
	unlock := func() {
		once.Do(func() {
			cancel()
			wg.Wait()
			if ok, err := mutex.Unlock(); err != nil || !ok {
				l.logger.Warn("failed to release lock", slog.String("key", key), slog.Any("error", err))
			}
		})
	}
	return unlock, true, nil
}

func (l *Locker) renew(ctx context.Context, mutex *redsync.Mutex) {
	ticker := time.NewTicker(l.options.renewInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			ok, err := mutex.ExtendContext(ctx)
			if err != nil || !ok {
				if ctx.Err() == nil {
					l.logger.Warn("failed to extend lock", slog.String("key", mutex.Name()), slog.Any("error", err))
				}
				return
			}
		}
	}
}
