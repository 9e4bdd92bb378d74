package auction

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"bidfinity/models"
)

// RateSeller 讓買家對已完成付款的交易評價賣家
// 每個 (買家, 賣家, 拍賣) 只能評價一次
func (s *Service) RateSeller(ctx context.Context, paymentID, raterID uuid.UUID, score int, comment string) (*models.Rating, error) {
	const op = "RateSeller"

	if score < models.MinRatingScore || score > models.MaxRatingScore {
		return nil, reject(ErrInvalidRating, "rating score must be between %d and %d", models.MinRatingScore, models.MaxRatingScore)
	}

	p, err := s.ledger.GetPayment(ctx, paymentID)
	if err != nil {
		return nil, paymentNotFound(err, paymentID)
	}
	if p.BuyerID != raterID {
		return nil, reject(ErrNotOwner, "only the buyer can rate this transaction")
	}
	if err := ratingEligibility(ctx, s.ledger, p); err != nil {
		return nil, err
	}

	auctionID := p.AuctionID
	rating := &models.Rating{
		RatedUserID: p.SellerID,
		RaterUserID: raterID,
		AuctionID:   &auctionID,
		RatingScore: score,
		Comment:     strings.TrimSpace(comment),
	}
	if err := s.ledger.CreateRating(ctx, rating); err != nil {
		// 兩個請求同時通過檢查時由唯一索引擋下
		if errors.Is(err, ErrDuplicate) {
			return nil, reject(ErrAlreadyRated, "payment already rated")
		}
		return nil, fmt.Errorf("%s: failed to create rating: %w", op, err)
	}
	return rating, nil
}

func paymentNotFound(err error, id uuid.UUID) error {
	if errors.Is(err, ErrRecordNotFound) {
		return reject(ErrPaymentNotFound, "payment %s not found", id)
	}
	return err
}
