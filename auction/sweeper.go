package auction

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"bidfinity/models"
)

const defaultSweepConcurrency = 4

type sweeperOptions struct {
	locker      Locker
	concurrency int
	logger      *slog.Logger
}

type SweeperOption func(*sweeperOptions)

// WithSweeperLocker 設定跨程序的互斥鎖，確保同一拍賣同時只有一個結算程序處理
func WithSweeperLocker(l Locker) SweeperOption {
	return func(o *sweeperOptions) {
		o.locker = l
	}
}

// WithSweeperConcurrency 設定同時結算的拍賣數量上限
func WithSweeperConcurrency(n int) SweeperOption {
	return func(o *sweeperOptions) {
		o.concurrency = n
	}
}

func WithSweeperLogger(logger *slog.Logger) SweeperOption {
	return func(o *sweeperOptions) {
		o.logger = logger
	}
}

// SweepReport 統計一次結算的結果
type SweepReport struct {
	Scanned int
	Sold    int
	Ended   int
	Skipped int
	Failed  int
}

// Sweeper 負責結算已經到期但仍為 active 的拍賣
//
// 每個拍賣獨立結算，一個拍賣失敗不影響其他拍賣；
// 重複執行是安全的，已經結算的拍賣會被略過且不會重複通知。
type Sweeper struct {
	service     *Service
	locker      Locker
	concurrency int
	logger      *slog.Logger
}

func NewSweeper(service *Service, opts ...SweeperOption) *Sweeper {
	o := &sweeperOptions{
		concurrency: defaultSweepConcurrency,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.concurrency < 1 {
		o.concurrency = 1
	}
	return &Sweeper{
		service:     service,
		locker:      o.locker,
		concurrency: o.concurrency,
		logger:      o.logger.With(slog.String("caller", "auction.Sweeper")),
	}
}

type sweepOutcome uint8

const (
	outcomeSkipped sweepOutcome = iota
	outcomeSold
	outcomeEnded
)

// Sweep 結算所有在目前時間已經到期的 active 拍賣
// 只有在無法列出到期拍賣時才會返回錯誤，個別拍賣的失敗記錄在 SweepReport.Failed
func (w *Sweeper) Sweep(ctx context.Context) (SweepReport, error) {
	const op = "Sweep"

	now := w.service.now()
	expired, err := w.service.ledger.ListActiveExpiredAuctions(ctx, now)
	if err != nil {
		return SweepReport{}, fmt.Errorf("%s: failed to list expired auctions: %w", op, err)
	}

	report := SweepReport{Scanned: len(expired)}
	var mu sync.Mutex

	var g errgroup.Group
	g.SetLimit(w.concurrency)
	for _, a := range expired {
		g.Go(func() error {
			outcome, err := w.sweepOne(ctx, a.ID, now)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				report.Failed++
				w.logger.Error("failed to settle auction", slog.String("auction", a.ID.String()), slog.Any("error", err))
				return nil
			}
			switch outcome {
			case outcomeSold:
				report.Sold++
			case outcomeEnded:
				report.Ended++
			default:
				report.Skipped++
			}
			return nil
		})
	}
	_ = g.Wait()

	if report.Scanned > 0 {
		w.logger.Info("sweep finished",
			slog.Int("scanned", report.Scanned),
			slog.Int("sold", report.Sold),
			slog.Int("ended", report.Ended),
			slog.Int("skipped", report.Skipped),
			slog.Int("failed", report.Failed),
		)
	}
	return report, nil
}

func sweepLockKey(id uuid.UUID) string {
	return "auction:" + id.String() + ":sweep"
}

func (w *Sweeper) sweepOne(ctx context.Context, id uuid.UUID, now time.Time) (sweepOutcome, error) {
	const op = "sweepOne"

	if w.locker != nil {
		unlock, acquired, err := w.locker.TryLock(ctx, sweepLockKey(id))
		if err != nil {
			return outcomeSkipped, fmt.Errorf("%s: failed to acquire sweep lock: %w", op, err)
		}
		if !acquired {
			w.logger.Debug("auction is being settled elsewhere", slog.String("auction", id.String()))
			return outcomeSkipped, nil
		}
		defer unlock()
	}

	outcome := outcomeSkipped
	var (
		settled models.Auction
		winner  *models.Bid
	)
	err := w.service.ledger.LockAuction(ctx, id, func(repo Repository, a *models.Auction) error {
		// 取得鎖之後重新確認，其他程序可能已經處理過
		if a.Status != models.AuctionStatusActive || !a.HasEnded(now) {
			return nil
		}

		bids, err := repo.ListBids(ctx, a.ID, BidsOldestFirst)
		if err != nil {
			return fmt.Errorf("%s: failed to list bids: %w", op, err)
		}
		settlement := Settle(bids)
		changed, err := Transition(a, settlement.Trigger)
		if err != nil {
			return fmt.Errorf("%s: failed to transition auction: %w", op, err)
		}
		if !changed {
			return nil
		}
		if settlement.Winner != nil {
			if err := repo.MarkWinningBid(ctx, a.ID, settlement.Winner.ID); err != nil {
				return fmt.Errorf("%s: failed to mark winning bid: %w", op, err)
			}
		}
		if err := repo.SaveAuction(ctx, a); err != nil {
			return fmt.Errorf("%s: failed to save auction: %w", op, err)
		}

		settled = *a
		winner = settlement.Winner
		if winner != nil {
			outcome = outcomeSold
		} else {
			outcome = outcomeEnded
		}
		return nil
	})
	if err != nil {
		return outcomeSkipped, err
	}

	w.notify(outcome, settled, winner)
	return outcome, nil
}

// notify 在交易提交後發送通知，每個通知獨立執行
func (w *Sweeper) notify(outcome sweepOutcome, a models.Auction, winner *models.Bid) {
	s := w.service
	attr := slog.String("auction", a.ID.String())
	switch outcome {
	case outcomeSold:
		bid := *winner
		bid.IsWinningBid = true
		s.dispatch("NotifyWinner", func(ctx context.Context) error {
			return s.notifier.NotifyWinner(ctx, a, bid)
		}, attr)
		s.dispatch("NotifySellerSold", func(ctx context.Context) error {
			return s.notifier.NotifySellerSold(ctx, a, bid)
		}, attr)
	case outcomeEnded:
		s.dispatch("NotifySellerNoBids", func(ctx context.Context) error {
			return s.notifier.NotifySellerNoBids(ctx, a)
		}, attr)
	}
}
