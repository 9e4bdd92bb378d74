package auction

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"bidfinity/models"
)

// PlaceBid 對拍賣出價
//
// 出價檢查依序為：拍賣是否進行中、是否為賣家本人、金額格式、金額是否達到目前價格加上最低加價幅度。
// 檢查與寫入都在拍賣列鎖中完成，因此同一拍賣的出價會被序列化；
// 交易衝突時會重試，超過次數後返回 ErrAuctionBusy。
// 出價提交後才會非同步廣播給拍賣室。
func (s *Service) PlaceBid(ctx context.Context, auctionID, bidderID uuid.UUID, amount string) (*models.Bid, error) {
	const op = "PlaceBid"

	var (
		placed   models.Bid
		snapshot models.Auction
	)
	err := s.withRetry(ctx, func() error {
		return s.ledger.LockAuction(ctx, auctionID, func(repo Repository, a *models.Auction) error {
			now := s.now()
			value, err := checkBid(a, bidderID, amount, now)
			if err != nil {
				return err
			}

			bid := &models.Bid{
				AuctionID: a.ID,
				BidderID:  bidderID,
				BidAmount: value,
				BidTime:   now,
			}
			if err := repo.CreateBid(ctx, bid); err != nil {
				return fmt.Errorf("%s: failed to create bid: %w", op, err)
			}

			a.CurrentPrice = value
			if err := repo.SaveAuction(ctx, a); err != nil {
				return fmt.Errorf("%s: failed to update current price: %w", op, err)
			}

			placed = *bid
			snapshot = *a
			return nil
		})
	})
	if err != nil {
		return nil, auctionNotFound(err, auctionID)
	}

	s.logger.Info("bid placed",
		slog.String("auction", auctionID.String()),
		slog.String("bidder", bidderID.String()),
		slog.String("amount", placed.BidAmount.StringFixed(2)),
	)

	update := BidUpdate{
		BidAmount:    placed.BidAmount,
		BidderID:     placed.BidderID,
		BidTime:      placed.BidTime,
		CurrentPrice: snapshot.CurrentPrice,
	}
	s.dispatch("PublishBidUpdate", func(ctx context.Context) error {
		return s.broadcaster.PublishBidUpdate(ctx, auctionID, update)
	}, slog.String("auction", auctionID.String()))

	return &placed, nil
}

// checkBid 依序檢查出價是否可以被接受並返回解析後的金額
func checkBid(a *models.Auction, bidderID uuid.UUID, amount string, now time.Time) (decimal.Decimal, error) {
	if !a.IsOpen(now) {
		return decimal.Zero, reject(ErrAuctionNotActive, "auction is %s or has ended", a.Status)
	}
	if a.SellerID == bidderID {
		return decimal.Zero, reject(ErrSelfBid, "seller cannot bid on own auction")
	}
	value, err := ParseAmount(amount)
	if err != nil {
		return decimal.Zero, err
	}
	if minimum := a.MinimumNextBid(); value.LessThan(minimum) {
		return decimal.Zero, bidTooLow(minimum)
	}
	return value, nil
}

// ListBids 依出價時間由新到舊返回拍賣的出價紀錄
func (s *Service) ListBids(ctx context.Context, auctionID uuid.UUID) ([]models.Bid, error) {
	const op = "ListBids"

	if _, err := s.ledger.GetAuction(ctx, auctionID); err != nil {
		return nil, auctionNotFound(err, auctionID)
	}
	bids, err := s.ledger.ListBids(ctx, auctionID, BidsNewestFirst)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to list bids: %w", op, err)
	}
	return bids, nil
}
