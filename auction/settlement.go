package auction

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"bidfinity/models"
)

// ResolveWinner 從出價紀錄中找出得標的出價
// 金額最高者得標；金額相同時出價時間較早者得標，時間也相同時以 ID 較小者為準
func ResolveWinner(bids []models.Bid) (*models.Bid, bool) {
	if len(bids) == 0 {
		return nil, false
	}
	best := 0
	for i := 1; i < len(bids); i++ {
		if outbids(&bids[i], &bids[best]) {
			best = i
		}
	}
	winner := bids[best]
	return &winner, true
}

func outbids(a, b *models.Bid) bool {
	if c := a.BidAmount.Cmp(b.BidAmount); c != 0 {
		return c > 0
	}
	if !a.BidTime.Equal(b.BidTime) {
		return a.BidTime.Before(b.BidTime)
	}
	return bytes.Compare(a.ID[:], b.ID[:]) < 0
}

// Settlement 是到期拍賣的結算結果
type Settlement struct {
	Trigger Trigger
	// Winner 在沒有任何出價時為 nil
	Winner *models.Bid
}

// Settle 依照出價紀錄決定到期拍賣的結算結果
func Settle(bids []models.Bid) Settlement {
	winner, ok := ResolveWinner(bids)
	if !ok {
		return Settlement{Trigger: TriggerExpiredWithoutBids}
	}
	return Settlement{Trigger: TriggerExpiredWithBids, Winner: winner}
}

// PaymentPath 代表使用者取得付款資格的途徑
type PaymentPath uint8

const (
	PaymentPathBuyNow PaymentPath = iota + 1
	PaymentPathWon
)

func (p PaymentPath) String() string {
	switch p {
	case PaymentPathBuyNow:
		return "buy_now"
	case PaymentPathWon:
		return "won"
	default:
		return "unknown"
	}
}

// Eligibility 描述使用者對拍賣的付款資格
type Eligibility struct {
	Path   PaymentPath
	Amount decimal.Decimal
	// Winner 只在 PaymentPathWon 時設定
	Winner *models.Bid
}

// paymentEligibility 判斷使用者是否可以對拍賣付款
//
// 已經有 completed 付款時返回 ErrAlreadyPaid；
// 拍賣進行中且設有直購價時，賣家以外的使用者可以直購；
// 拍賣到期後只有得標者可以付款，被撤回、下架或已由他人付款的拍賣不能付款。
func paymentEligibility(ctx context.Context, repo Repository, a *models.Auction, userID uuid.UUID, now time.Time) (Eligibility, error) {
	const op = "paymentEligibility"

	paid, err := repo.FindPayment(ctx, a.ID, userID, models.PaymentCompleted)
	if err != nil {
		return Eligibility{}, fmt.Errorf("%s: failed to find payment: %w", op, err)
	}
	if paid != nil {
		return Eligibility{}, reject(ErrAlreadyPaid, "payment %s already completed", paid.ID)
	}

	if a.IsOpen(now) {
		if a.BuyNowPrice == nil {
			return Eligibility{}, reject(ErrNotPaymentEligible, "auction has no buy now price")
		}
		if a.SellerID == userID {
			return Eligibility{}, reject(ErrNotPaymentEligible, "seller cannot buy own auction")
		}
		return Eligibility{Path: PaymentPathBuyNow, Amount: *a.BuyNowPrice}, nil
	}

	if !a.HasEnded(now) {
		return Eligibility{}, reject(ErrNotPaymentEligible, "auction is %s", a.Status)
	}
	if a.Status != models.AuctionStatusActive && a.Status != models.AuctionStatusSold {
		return Eligibility{}, reject(ErrNotPaymentEligible, "auction is %s", a.Status)
	}
	// 已售出的拍賣只要有其他買家完成付款(例如直購)就不再開放得標者付款
	if a.Status == models.AuctionStatusSold {
		paidCount, err := repo.CountPayments(ctx, a.ID, models.PaymentCompleted)
		if err != nil {
			return Eligibility{}, fmt.Errorf("%s: failed to count payments: %w", op, err)
		}
		if paidCount > 0 {
			return Eligibility{}, reject(ErrNotPaymentEligible, "auction was already paid by another buyer")
		}
	}

	bids, err := repo.ListBids(ctx, a.ID, BidsOldestFirst)
	if err != nil {
		return Eligibility{}, fmt.Errorf("%s: failed to list bids: %w", op, err)
	}
	winner, ok := ResolveWinner(bids)
	if !ok || winner.BidderID != userID {
		return Eligibility{}, reject(ErrNotPaymentEligible, "user is not the winning bidder")
	}
	return Eligibility{Path: PaymentPathWon, Amount: winner.BidAmount, Winner: winner}, nil
}

// IsPaymentEligible 查詢使用者是否可以對拍賣付款
// 不具資格時返回的錯誤為 Rejection
func (s *Service) IsPaymentEligible(ctx context.Context, auctionID, userID uuid.UUID) (Eligibility, error) {
	a, err := s.ledger.GetAuction(ctx, auctionID)
	if err != nil {
		return Eligibility{}, auctionNotFound(err, auctionID)
	}
	return paymentEligibility(ctx, s.ledger, a, userID, s.now())
}

// ratingEligibility 判斷付款是否可以被評價
func ratingEligibility(ctx context.Context, repo Repository, p *models.Payment) error {
	const op = "ratingEligibility"

	if p.Status != models.PaymentCompleted {
		return reject(ErrNotRatingEligible, "payment is %s", p.Status)
	}
	auctionID := p.AuctionID
	rating, err := repo.FindRating(ctx, p.BuyerID, p.SellerID, &auctionID)
	if err != nil {
		return fmt.Errorf("%s: failed to find rating: %w", op, err)
	}
	if rating != nil {
		return reject(ErrAlreadyRated, "payment already rated")
	}
	return nil
}

// IsRatingEligible 在付款已完成且買家尚未評價該筆交易時返回 true
func (s *Service) IsRatingEligible(ctx context.Context, payment *models.Payment) (bool, error) {
	err := ratingEligibility(ctx, s.ledger, payment)
	if err == nil {
		return true, nil
	}
	var rejection *Rejection
	if errors.As(err, &rejection) {
		return false, nil
	}
	return false, err
}
