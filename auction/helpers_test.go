package auction

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"bidfinity/models"
)

// fakeLedger 是測試用的記憶體儲存層
// LockAuction 以每個拍賣一把互斥鎖模擬資料列鎖定，寫入直接生效不支援回滾
type fakeLedger struct {
	mu       sync.Mutex
	rowLocks map[uuid.UUID]*sync.Mutex
	auctions map[uuid.UUID]models.Auction
	bids     []models.Bid
	payments []models.Payment
	ratings  []models.Rating

	// conflicts 是 LockAuction 接下來要返回 ErrTxConflict 的次數
	conflicts int
	lockCalls int
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{
		rowLocks: make(map[uuid.UUID]*sync.Mutex),
		auctions: make(map[uuid.UUID]models.Auction),
	}
}

func (l *fakeLedger) LockAuction(ctx context.Context, id uuid.UUID, fn func(repo Repository, auction *models.Auction) error) error {
	l.mu.Lock()
	l.lockCalls++
	if l.conflicts > 0 {
		l.conflicts--
		l.mu.Unlock()
		return fmt.Errorf("lock auction: %w", ErrTxConflict)
	}
	row, ok := l.rowLocks[id]
	if !ok {
		row = &sync.Mutex{}
		l.rowLocks[id] = row
	}
	l.mu.Unlock()

	row.Lock()
	defer row.Unlock()

	a, err := l.GetAuction(ctx, id)
	if err != nil {
		return err
	}
	return fn(l, a)
}

func (l *fakeLedger) GetAuction(_ context.Context, id uuid.UUID) (*models.Auction, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	a, ok := l.auctions[id]
	if !ok {
		return nil, fmt.Errorf("get auction %s: %w", id, ErrRecordNotFound)
	}
	return &a, nil
}

func (l *fakeLedger) CreateAuction(_ context.Context, a *models.Auction) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	l.auctions[a.ID] = *a
	return nil
}

func (l *fakeLedger) SaveAuction(_ context.Context, a *models.Auction) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.auctions[a.ID] = *a
	return nil
}

func (l *fakeLedger) DeleteAuction(_ context.Context, id uuid.UUID) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.auctions, id)
	kept := l.bids[:0]
	for _, b := range l.bids {
		if b.AuctionID != id {
			kept = append(kept, b)
		}
	}
	l.bids = kept
	return nil
}

func (l *fakeLedger) CreateBid(_ context.Context, b *models.Bid) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if b.ID == uuid.Nil {
		b.ID = uuid.Must(uuid.NewV7())
	}
	l.bids = append(l.bids, *b)
	return nil
}

func (l *fakeLedger) ListBids(_ context.Context, auctionID uuid.UUID, order BidOrder) ([]models.Bid, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var bids []models.Bid
	for _, b := range l.bids {
		if b.AuctionID == auctionID {
			bids = append(bids, b)
		}
	}
	sort.SliceStable(bids, func(i, j int) bool {
		if order == BidsNewestFirst {
			return bids[i].BidTime.After(bids[j].BidTime)
		}
		return bids[i].BidTime.Before(bids[j].BidTime)
	})
	return bids, nil
}

func (l *fakeLedger) CountBids(ctx context.Context, auctionID uuid.UUID) (int64, error) {
	bids, err := l.ListBids(ctx, auctionID, BidsOldestFirst)
	return int64(len(bids)), err
}

func (l *fakeLedger) MarkWinningBid(_ context.Context, auctionID, bidID uuid.UUID) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i := range l.bids {
		if l.bids[i].AuctionID == auctionID {
			l.bids[i].IsWinningBid = l.bids[i].ID == bidID
		}
	}
	return nil
}

func (l *fakeLedger) GetPayment(_ context.Context, id uuid.UUID) (*models.Payment, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, p := range l.payments {
		if p.ID == id {
			return &p, nil
		}
	}
	return nil, fmt.Errorf("get payment %s: %w", id, ErrRecordNotFound)
}

func (l *fakeLedger) CreatePayment(_ context.Context, p *models.Payment) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	l.payments = append(l.payments, *p)
	return nil
}

func (l *fakeLedger) FindPayment(_ context.Context, auctionID, buyerID uuid.UUID, status models.PaymentStatus) (*models.Payment, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, p := range l.payments {
		if p.AuctionID == auctionID && p.BuyerID == buyerID && p.Status == status {
			return &p, nil
		}
	}
	return nil, nil
}

func (l *fakeLedger) CountPayments(_ context.Context, auctionID uuid.UUID, status models.PaymentStatus) (int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var n int64
	for _, p := range l.payments {
		if p.AuctionID == auctionID && p.Status == status {
			n++
		}
	}
	return n, nil
}

func (l *fakeLedger) CreateRating(_ context.Context, r *models.Rating) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, existing := range l.ratings {
		if sameRating(existing, r.RaterUserID, r.RatedUserID, r.AuctionID) {
			return fmt.Errorf("create rating: %w", ErrDuplicate)
		}
	}
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	l.ratings = append(l.ratings, *r)
	return nil
}

func (l *fakeLedger) FindRating(_ context.Context, raterID, ratedID uuid.UUID, auctionID *uuid.UUID) (*models.Rating, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, r := range l.ratings {
		if sameRating(r, raterID, ratedID, auctionID) {
			return &r, nil
		}
	}
	return nil, nil
}

func sameRating(r models.Rating, raterID, ratedID uuid.UUID, auctionID *uuid.UUID) bool {
	if r.RaterUserID != raterID || r.RatedUserID != ratedID {
		return false
	}
	if r.AuctionID == nil || auctionID == nil {
		return r.AuctionID == nil && auctionID == nil
	}
	return *r.AuctionID == *auctionID
}

func (l *fakeLedger) ListActiveExpiredAuctions(_ context.Context, now time.Time) ([]models.Auction, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var expired []models.Auction
	for _, a := range l.auctions {
		if a.Status == models.AuctionStatusActive && a.HasEnded(now) {
			expired = append(expired, a)
		}
	}
	return expired, nil
}

func (l *fakeLedger) auction(t *testing.T, id uuid.UUID) models.Auction {
	t.Helper()
	a, err := l.GetAuction(context.Background(), id)
	require.NoError(t, err)
	return *a
}

// testClock 是可以手動推進的時鐘
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestService(t *testing.T, ledger Ledger, clock *testClock, opts ...Option) *Service {
	t.Helper()
	opts = append([]Option{WithClock(clock.Now), WithRetryBackoff(time.Millisecond)}, opts...)
	svc, err := NewService(ledger, opts...)
	require.NoError(t, err)
	t.Cleanup(svc.Wait)
	return svc
}

// seedAuction 建立一個起標價 10.00、加價幅度 1.00、一小時後結束的 active 拍賣
func seedAuction(t *testing.T, l *fakeLedger, clock *testClock, mutate ...func(a *models.Auction)) models.Auction {
	t.Helper()
	now := clock.Now()
	a := models.Auction{
		ID:                  uuid.New(),
		SellerID:            uuid.New(),
		Title:               "Vintage camera",
		StartingPrice:       decimal.RequireFromString("10.00"),
		CurrentPrice:        decimal.RequireFromString("10.00"),
		MinimumBidIncrement: decimal.RequireFromString("1.00"),
		Condition:           models.ConditionGood,
		ShippingMethod:      models.ShippingPickup,
		StartTime:           now.Add(-time.Hour),
		EndTime:             now.Add(time.Hour),
		Status:              models.AuctionStatusActive,
	}
	for _, fn := range mutate {
		fn(&a)
	}
	require.NoError(t, l.CreateAuction(context.Background(), &a))
	return a
}

func seedBid(t *testing.T, l *fakeLedger, auctionID, bidderID uuid.UUID, amount string, at time.Time) models.Bid {
	t.Helper()
	b := models.Bid{
		AuctionID: auctionID,
		BidderID:  bidderID,
		BidAmount: decimal.RequireFromString(amount),
		BidTime:   at,
	}
	require.NoError(t, l.CreateBid(context.Background(), &b))
	return b
}

func validCard() CardDetails {
	return CardDetails{
		Holder: "Ada Lovelace",
		Number: "4242 4242 4242 4242",
		Expiry: "12/30",
		CVV:    "123",
	}
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}
