package auction

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/mock/gomock"

	"bidfinity/models"
)

func TestPlaceBid(t *testing.T) {
	defer goleak.VerifyNone(t)

	ctrl := gomock.NewController(t)
	broadcaster := NewMockBroadcaster(ctrl)
	ledger := newFakeLedger()
	clock := newTestClock()
	svc := newTestService(t, ledger, clock, WithBroadcaster(broadcaster))

	a := seedAuction(t, ledger, clock)
	bidder := uuid.New()

	var got BidUpdate
	broadcaster.EXPECT().
		PublishBidUpdate(gomock.Any(), a.ID, gomock.Any()).
		DoAndReturn(func(_ context.Context, _ uuid.UUID, update BidUpdate) error {
			got = update
			return nil
		}).
		Times(1)

	bid, err := svc.PlaceBid(context.Background(), a.ID, bidder, "11.00")
	require.NoError(t, err)
	svc.Wait()

	assert.Equal(t, a.ID, bid.AuctionID)
	assert.Equal(t, bidder, bid.BidderID)
	assert.Equal(t, "11.00", bid.BidAmount.StringFixed(2))
	assert.Equal(t, clock.Now(), bid.BidTime)
	assert.False(t, bid.IsWinningBid)

	stored := ledger.auction(t, a.ID)
	assert.Equal(t, "11.00", stored.CurrentPrice.StringFixed(2))

	assert.Equal(t, "11.00", got.BidAmount.StringFixed(2))
	assert.Equal(t, "11.00", got.CurrentPrice.StringFixed(2))
	assert.Equal(t, bidder, got.BidderID)
	assert.Equal(t, clock.Now(), got.BidTime)
}

func TestPlaceBidCheckOrder(t *testing.T) {
	clock := newTestClock()
	ledger := newFakeLedger()
	svc := newTestService(t, ledger, clock)

	closed := seedAuction(t, ledger, clock, func(a *models.Auction) {
		a.Status = models.AuctionStatusClosed
	})
	expired := seedAuction(t, ledger, clock, func(a *models.Auction) {
		a.EndTime = clock.Now()
	})
	open := seedAuction(t, ledger, clock)

	tests := []struct {
		name    string
		auction models.Auction
		bidder  uuid.UUID
		amount  string
		want    error
	}{
		{"拍賣已關閉優先於其他檢查", closed, closed.SellerID, "abc", ErrAuctionNotActive},
		{"到達結束時間視為未進行", expired, uuid.New(), "100", ErrAuctionNotActive},
		{"賣家出價優先於金額檢查", open, open.SellerID, "abc", ErrSelfBid},
		{"金額格式錯誤", open, uuid.New(), "abc", ErrInvalidAmount},
		{"金額不可為負", open, uuid.New(), "-1", ErrInvalidAmount},
		{"金額最多兩位小數", open, uuid.New(), "11.001", ErrInvalidAmount},
		{"低於最低出價", open, uuid.New(), "10.99", ErrBidTooLow},
		{"等於目前價格仍然過低", open, uuid.New(), "10.00", ErrBidTooLow},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.PlaceBid(context.Background(), tt.auction.ID, tt.bidder, tt.amount)
			assert.ErrorIs(t, err, tt.want)
		})
	}

	// 被拒絕的出價不會寫入任何紀錄
	bids, err := ledger.ListBids(context.Background(), open.ID, BidsOldestFirst)
	require.NoError(t, err)
	assert.Empty(t, bids)
	assert.Equal(t, "10.00", ledger.auction(t, open.ID).CurrentPrice.StringFixed(2))
}

func TestPlaceBidTooLowCarriesMinimum(t *testing.T) {
	clock := newTestClock()
	ledger := newFakeLedger()
	svc := newTestService(t, ledger, clock)
	a := seedAuction(t, ledger, clock, func(a *models.Auction) {
		a.CurrentPrice = dec("25.00")
		a.MinimumBidIncrement = dec("2.50")
	})

	_, err := svc.PlaceBid(context.Background(), a.ID, uuid.New(), "27")
	var rejection *Rejection
	require.True(t, errors.As(err, &rejection))
	assert.Equal(t, ReasonBidTooLow, rejection.Reason)
	assert.Equal(t, "27.50", rejection.Minimum.StringFixed(2))
	assert.Contains(t, err.Error(), "bid must be at least 27.50")

	_, err = svc.PlaceBid(context.Background(), a.ID, uuid.New(), "27.50")
	assert.NoError(t, err)
}

func TestPlaceBidAuctionNotFound(t *testing.T) {
	clock := newTestClock()
	svc := newTestService(t, newFakeLedger(), clock)

	_, err := svc.PlaceBid(context.Background(), uuid.New(), uuid.New(), "10")
	assert.ErrorIs(t, err, ErrAuctionNotFound)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestPlaceBidConcurrent(t *testing.T) {
	defer goleak.VerifyNone(t)

	clock := newTestClock()
	ledger := newFakeLedger()
	svc := newTestService(t, ledger, clock)
	a := seedAuction(t, ledger, clock)

	const bidders = 20
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		accepted int
		tooLow   int
	)
	for i := 0; i < bidders; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.PlaceBid(context.Background(), a.ID, uuid.New(), "11.00")
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				accepted++
			case errors.Is(err, ErrBidTooLow):
				tooLow++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()
	svc.Wait()

	assert.Equal(t, 1, accepted)
	assert.Equal(t, bidders-1, tooLow)

	bids, err := ledger.ListBids(context.Background(), a.ID, BidsOldestFirst)
	require.NoError(t, err)
	assert.Len(t, bids, 1)
	assert.Equal(t, "11.00", ledger.auction(t, a.ID).CurrentPrice.StringFixed(2))
}

func TestPlaceBidIncreasingSequence(t *testing.T) {
	clock := newTestClock()
	ledger := newFakeLedger()
	svc := newTestService(t, ledger, clock)
	a := seedAuction(t, ledger, clock)

	for _, amount := range []string{"11", "12.50", "20"} {
		clock.Advance(time.Second)
		_, err := svc.PlaceBid(context.Background(), a.ID, uuid.New(), amount)
		require.NoError(t, err)
	}

	bids, err := svc.ListBids(context.Background(), a.ID)
	require.NoError(t, err)
	require.Len(t, bids, 3)
	assert.Equal(t, "20.00", bids[0].BidAmount.StringFixed(2))
	assert.Equal(t, "11.00", bids[2].BidAmount.StringFixed(2))
	assert.Equal(t, "20.00", ledger.auction(t, a.ID).CurrentPrice.StringFixed(2))
}

func TestPlaceBidRetry(t *testing.T) {
	t.Run("衝突後重試成功", func(t *testing.T) {
		clock := newTestClock()
		ledger := newFakeLedger()
		svc := newTestService(t, ledger, clock, WithMaxBidAttempts(3))
		a := seedAuction(t, ledger, clock)
		ledger.conflicts = 2

		_, err := svc.PlaceBid(context.Background(), a.ID, uuid.New(), "11")
		require.NoError(t, err)
		assert.Equal(t, 3, ledger.lockCalls)
	})

	t.Run("超過次數返回忙碌", func(t *testing.T) {
		clock := newTestClock()
		ledger := newFakeLedger()
		svc := newTestService(t, ledger, clock, WithMaxBidAttempts(3))
		a := seedAuction(t, ledger, clock)
		ledger.conflicts = 3

		_, err := svc.PlaceBid(context.Background(), a.ID, uuid.New(), "11")
		assert.ErrorIs(t, err, ErrAuctionBusy)
		assert.ErrorIs(t, err, ErrStateConflict)
		assert.Equal(t, 3, ledger.lockCalls)
	})

	t.Run("context 取消時停止重試", func(t *testing.T) {
		clock := newTestClock()
		ledger := newFakeLedger()
		svc := newTestService(t, ledger, clock, WithMaxBidAttempts(5), WithRetryBackoff(time.Hour))
		a := seedAuction(t, ledger, clock)
		ledger.conflicts = 5

		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := svc.PlaceBid(ctx, a.ID, uuid.New(), "11")
		assert.ErrorIs(t, err, context.Canceled)
		assert.Equal(t, 1, ledger.lockCalls)
	})
}

func TestPlaceBidBroadcastFailure(t *testing.T) {
	ctrl := gomock.NewController(t)
	broadcaster := NewMockBroadcaster(ctrl)
	clock := newTestClock()
	ledger := newFakeLedger()
	svc := newTestService(t, ledger, clock, WithBroadcaster(broadcaster))
	a := seedAuction(t, ledger, clock)

	broadcaster.EXPECT().
		PublishBidUpdate(gomock.Any(), a.ID, gomock.Any()).
		Return(errors.New("stream unavailable")).
		Times(1)

	_, err := svc.PlaceBid(context.Background(), a.ID, uuid.New(), "11")
	require.NoError(t, err)
	svc.Wait()

	assert.Equal(t, "11.00", ledger.auction(t, a.ID).CurrentPrice.StringFixed(2))
}

func TestNewService(t *testing.T) {
	_, err := NewService(nil)
	assert.Error(t, err)

	_, err = NewService(newFakeLedger(), WithMaxBidAttempts(0))
	assert.Error(t, err)
}
