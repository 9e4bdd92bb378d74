package ledger

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"bidfinity/auction"
	"bidfinity/models"
)

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func setupTest(t *testing.T) *Store {
	t.Helper()
	db, err := OpenSQLite(":memory:")
	require.NoError(t, err)
	store, err := New(db, WithUserCacheSize(16))
	require.NoError(t, err)
	require.NoError(t, store.Migrate())
	t.Cleanup(func() {
		sqlDB, err := db.DB()
		if err == nil {
			sqlDB.Close()
		}
	})
	return store
}

func seedUser(t *testing.T, s *Store, name string) *models.User {
	t.Helper()
	user, err := s.EnsureUser(context.Background(), Identity{
		ID:       uuid.New(),
		Username: name,
		Email:    name + "@example.com",
		IsSeller: true,
	}, testNow)
	require.NoError(t, err)
	return user
}

func seedAuction(t *testing.T, s *Store, sellerID uuid.UUID, end time.Time) *models.Auction {
	t.Helper()
	a := &models.Auction{
		SellerID:            sellerID,
		Title:               "Film camera",
		Description:         "Works",
		StartingPrice:       decimal.RequireFromString("10"),
		CurrentPrice:        decimal.RequireFromString("10"),
		MinimumBidIncrement: decimal.RequireFromString("1"),
		Condition:           models.ConditionGood,
		ShippingMethod:      models.ShippingPickup,
		StartTime:           testNow.Add(-time.Hour),
		EndTime:             end,
		Status:              models.AuctionStatusActive,
	}
	require.NoError(t, s.CreateAuction(context.Background(), a))
	return a
}

func TestNew(t *testing.T) {
	_, err := New(nil)
	assert.Error(t, err)
}

func TestTranslate(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
	}{
		{"record not found", gorm.ErrRecordNotFound, auction.ErrRecordNotFound},
		{"duplicated key", gorm.ErrDuplicatedKey, auction.ErrDuplicate},
		{"serialization failure", &pgconn.PgError{Code: "40001"}, auction.ErrTxConflict},
		{"deadlock", &pgconn.PgError{Code: "40P01"}, auction.ErrTxConflict},
		{"lock timeout", fmt.Errorf("wrapped: %w", &pgconn.PgError{Code: "55P03"}), auction.ErrTxConflict},
		{"unique violation", &pgconn.PgError{Code: "23505"}, auction.ErrDuplicate},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, translate(tt.err), tt.want)
		})
	}

	assert.NoError(t, translate(nil))
	other := errors.New("boom")
	assert.Equal(t, other, translate(other))
}

func TestRepository(t *testing.T) {
	ctx := context.Background()
	s := setupTest(t)
	seller := seedUser(t, s, "seller")
	alice := seedUser(t, s, "alice")
	bob := seedUser(t, s, "bob")

	a := seedAuction(t, s, seller.ID, testNow.Add(time.Hour))

	t.Run("取得拍賣", func(t *testing.T) {
		got, err := s.GetAuction(ctx, a.ID)
		require.NoError(t, err)
		assert.Equal(t, models.AuctionStatusActive, got.Status)
		assert.True(t, got.CurrentPrice.Equal(decimal.RequireFromString("10")))
		assert.True(t, got.EndTime.Equal(a.EndTime))

		_, err = s.GetAuction(ctx, uuid.New())
		assert.ErrorIs(t, err, auction.ErrRecordNotFound)
	})

	first := models.Bid{AuctionID: a.ID, BidderID: alice.ID, BidAmount: decimal.RequireFromString("11"), BidTime: testNow}
	second := models.Bid{AuctionID: a.ID, BidderID: bob.ID, BidAmount: decimal.RequireFromString("12.5"), BidTime: testNow.Add(time.Second)}
	require.NoError(t, s.CreateBid(ctx, &first))
	require.NoError(t, s.CreateBid(ctx, &second))

	t.Run("出價排序", func(t *testing.T) {
		oldest, err := s.ListBids(ctx, a.ID, auction.BidsOldestFirst)
		require.NoError(t, err)
		require.Len(t, oldest, 2)
		assert.Equal(t, first.ID, oldest[0].ID)

		newest, err := s.ListBids(ctx, a.ID, auction.BidsNewestFirst)
		require.NoError(t, err)
		require.Len(t, newest, 2)
		assert.Equal(t, second.ID, newest[0].ID)
		assert.True(t, newest[0].BidAmount.Equal(decimal.RequireFromString("12.50")))

		count, err := s.CountBids(ctx, a.ID)
		require.NoError(t, err)
		assert.Equal(t, int64(2), count)
	})

	t.Run("標記得標出價", func(t *testing.T) {
		require.NoError(t, s.MarkWinningBid(ctx, a.ID, second.ID))
		bids, err := s.ListBids(ctx, a.ID, auction.BidsOldestFirst)
		require.NoError(t, err)
		assert.False(t, bids[0].IsWinningBid)
		assert.True(t, bids[1].IsWinningBid)
	})

	t.Run("付款查詢", func(t *testing.T) {
		p := &models.Payment{
			AuctionID:       a.ID,
			BuyerID:         bob.ID,
			SellerID:        seller.ID,
			Amount:          decimal.RequireFromString("12.5"),
			TransactionDate: testNow,
			Status:          models.PaymentCompleted,
		}
		require.NoError(t, s.CreatePayment(ctx, p))

		found, err := s.FindPayment(ctx, a.ID, bob.ID, models.PaymentCompleted)
		require.NoError(t, err)
		require.NotNil(t, found)
		assert.Equal(t, p.ID, found.ID)

		missing, err := s.FindPayment(ctx, a.ID, alice.ID, models.PaymentCompleted)
		require.NoError(t, err)
		assert.Nil(t, missing)

		completed, err := s.CountPayments(ctx, a.ID, models.PaymentCompleted)
		require.NoError(t, err)
		assert.EqualValues(t, 1, completed)
		refunded, err := s.CountPayments(ctx, a.ID, models.PaymentRefunded)
		require.NoError(t, err)
		assert.Zero(t, refunded)

		_, err = s.GetPayment(ctx, uuid.New())
		assert.ErrorIs(t, err, auction.ErrRecordNotFound)
	})

	t.Run("評價唯一性", func(t *testing.T) {
		auctionID := a.ID
		rating := &models.Rating{RatedUserID: seller.ID, RaterUserID: bob.ID, AuctionID: &auctionID, RatingScore: 5}
		require.NoError(t, s.CreateRating(ctx, rating))

		found, err := s.FindRating(ctx, bob.ID, seller.ID, &auctionID)
		require.NoError(t, err)
		require.NotNil(t, found)

		none, err := s.FindRating(ctx, alice.ID, seller.ID, &auctionID)
		require.NoError(t, err)
		assert.Nil(t, none)

		err = s.CreateRating(ctx, &models.Rating{RatedUserID: seller.ID, RaterUserID: bob.ID, AuctionID: &auctionID, RatingScore: 1})
		assert.ErrorIs(t, err, auction.ErrDuplicate)
	})

	t.Run("列出到期拍賣", func(t *testing.T) {
		expired := seedAuction(t, s, seller.ID, testNow.Add(-time.Minute))
		exact := seedAuction(t, s, seller.ID, testNow)
		cancelled := seedAuction(t, s, seller.ID, testNow.Add(-time.Minute))
		cancelled.Status = models.AuctionStatusCancelled
		require.NoError(t, s.SaveAuction(ctx, cancelled))

		got, err := s.ListActiveExpiredAuctions(ctx, testNow)
		require.NoError(t, err)
		ids := make([]uuid.UUID, 0, len(got))
		for _, x := range got {
			ids = append(ids, x.ID)
		}
		assert.ElementsMatch(t, []uuid.UUID{expired.ID, exact.ID}, ids)
	})

	t.Run("刪除拍賣連帶刪除出價", func(t *testing.T) {
		require.NoError(t, s.DeleteAuction(ctx, a.ID))
		bids, err := s.ListBids(ctx, a.ID, auction.BidsOldestFirst)
		require.NoError(t, err)
		assert.Empty(t, bids)

		assert.ErrorIs(t, s.DeleteAuction(ctx, a.ID), auction.ErrRecordNotFound)
	})
}

func TestLockAuction(t *testing.T) {
	ctx := context.Background()
	s := setupTest(t)
	seller := seedUser(t, s, "seller")
	a := seedAuction(t, s, seller.ID, testNow.Add(time.Hour))

	t.Run("交易提交", func(t *testing.T) {
		err := s.LockAuction(ctx, a.ID, func(repo auction.Repository, locked *models.Auction) error {
			locked.Title = "Renamed"
			return repo.SaveAuction(ctx, locked)
		})
		require.NoError(t, err)
		got, err := s.GetAuction(ctx, a.ID)
		require.NoError(t, err)
		assert.Equal(t, "Renamed", got.Title)
	})

	t.Run("錯誤時回滾", func(t *testing.T) {
		boom := errors.New("boom")
		err := s.LockAuction(ctx, a.ID, func(repo auction.Repository, locked *models.Auction) error {
			locked.Title = "Discarded"
			if err := repo.SaveAuction(ctx, locked); err != nil {
				return err
			}
			return boom
		})
		assert.ErrorIs(t, err, boom)
		got, err := s.GetAuction(ctx, a.ID)
		require.NoError(t, err)
		assert.Equal(t, "Renamed", got.Title)
	})

	t.Run("拍賣不存在", func(t *testing.T) {
		err := s.LockAuction(ctx, uuid.New(), func(auction.Repository, *models.Auction) error {
			t.Fatal("fn should not be called")
			return nil
		})
		assert.ErrorIs(t, err, auction.ErrRecordNotFound)
	})
}

func TestServiceOnStore(t *testing.T) {
	ctx := context.Background()
	s := setupTest(t)
	seller := seedUser(t, s, "seller")
	alice := seedUser(t, s, "alice")
	bob := seedUser(t, s, "bob")

	now := testNow
	svc, err := auction.NewService(s, auction.WithClock(func() time.Time { return now }))
	require.NoError(t, err)
	t.Cleanup(svc.Wait)

	a := seedAuction(t, s, seller.ID, testNow.Add(time.Hour))

	_, err = svc.PlaceBid(ctx, a.ID, alice.ID, "11")
	require.NoError(t, err)
	now = now.Add(time.Second)
	_, err = svc.PlaceBid(ctx, a.ID, bob.ID, "11.50")
	assert.ErrorIs(t, err, auction.ErrBidTooLow)
	_, err = svc.PlaceBid(ctx, a.ID, bob.ID, "12")
	require.NoError(t, err)

	now = testNow.Add(2 * time.Hour)
	report, err := auction.NewSweeper(svc).Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Sold)

	got, err := s.GetAuction(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, models.AuctionStatusSold, got.Status)
	assert.True(t, got.CurrentPrice.Equal(decimal.RequireFromString("12")))

	payment, err := svc.PayWonAuction(ctx, a.ID, bob.ID, auction.CardDetails{
		Holder: "Bob",
		Number: "4111111111111111",
		Expiry: "12/30",
		CVV:    "999",
	})
	require.NoError(t, err)

	_, err = svc.RateSeller(ctx, payment.ID, bob.ID, 5, "great")
	require.NoError(t, err)
	_, err = svc.RateSeller(ctx, payment.ID, bob.ID, 4, "again")
	assert.ErrorIs(t, err, auction.ErrAlreadyRated)

	detail, err := s.GetAuctionDetail(ctx, a.ID)
	require.NoError(t, err)
	require.Len(t, detail.Bids, 2)
	assert.Equal(t, bob.ID, detail.Bids[0].BidderID)
	assert.True(t, detail.Bids[0].IsWinningBid)
	require.NotNil(t, detail.Bids[0].Bidder)
	assert.Equal(t, "bob", detail.Bids[0].Bidder.Username)
	require.NotNil(t, detail.Seller)
	assert.Equal(t, "seller", detail.Seller.Username)
}

func TestConcurrentBidsOnStore(t *testing.T) {
	ctx := context.Background()
	s := setupTest(t)
	seller := seedUser(t, s, "seller")
	svc, err := auction.NewService(s, auction.WithClock(func() time.Time { return testNow }))
	require.NoError(t, err)
	t.Cleanup(svc.Wait)

	a := seedAuction(t, s, seller.ID, testNow.Add(time.Hour))

	const bidders = 12
	users := make([]*models.User, bidders)
	for i := range users {
		users[i] = seedUser(t, s, fmt.Sprintf("bidder-%d", i))
	}

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		accepted []decimal.Decimal
		tooLow   int
		failures []error
	)
	for i, user := range users {
		wg.Add(1)
		go func() {
			defer wg.Done()
			amount := decimal.NewFromInt(int64(100 + i))
			_, err := svc.PlaceBid(ctx, a.ID, user.ID, amount.StringFixed(2))

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				accepted = append(accepted, amount)
			case errors.Is(err, auction.ErrBidTooLow):
				tooLow++
			default:
				failures = append(failures, err)
			}
		}()
	}
	wg.Wait()

	require.Empty(t, failures)
	assert.Equal(t, bidders, len(accepted)+tooLow)

	// 每個被接受的出價都有寫入，目前價格等於最高的出價
	count, err := s.CountBids(ctx, a.ID)
	require.NoError(t, err)
	assert.EqualValues(t, len(accepted), count)

	got, err := s.GetAuction(ctx, a.ID)
	require.NoError(t, err)
	assert.True(t, got.CurrentPrice.Equal(decimal.NewFromInt(100+bidders-1)), got.CurrentPrice.String())

	bids, err := s.ListBids(ctx, a.ID, auction.BidsOldestFirst)
	require.NoError(t, err)
	amounts := make([]string, len(bids))
	for i, b := range bids {
		amounts[i] = b.BidAmount.StringFixed(2)
	}
	expected := make([]string, len(accepted))
	for i, d := range accepted {
		expected[i] = d.StringFixed(2)
	}
	assert.ElementsMatch(t, expected, amounts)
}
