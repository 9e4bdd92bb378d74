package auction

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"bidfinity/models"
)

// BuyNow 以直購價購買進行中的拍賣
// 付款紀錄的建立與拍賣轉為 sold 在同一個交易中完成
func (s *Service) BuyNow(ctx context.Context, auctionID, buyerID uuid.UUID, card CardDetails) (*models.Payment, error) {
	return s.pay(ctx, "BuyNow", PaymentPathBuyNow, auctionID, buyerID, card)
}

// PayWonAuction 由得標者支付到期拍賣的得標金額
// 若拍賣尚未被結算程序處理，會在同一個交易中標記得標出價並轉為 sold
func (s *Service) PayWonAuction(ctx context.Context, auctionID, buyerID uuid.UUID, card CardDetails) (*models.Payment, error) {
	return s.pay(ctx, "PayWonAuction", PaymentPathWon, auctionID, buyerID, card)
}

func (s *Service) pay(ctx context.Context, op string, path PaymentPath, auctionID, buyerID uuid.UUID, card CardDetails) (*models.Payment, error) {
	if err := card.Validate(s.now()); err != nil {
		return nil, err
	}

	var payment models.Payment
	err := s.withRetry(ctx, func() error {
		return s.ledger.LockAuction(ctx, auctionID, func(repo Repository, a *models.Auction) error {
			now := s.now()
			eligibility, err := paymentEligibility(ctx, repo, a, buyerID, now)
			if err != nil {
				return err
			}
			if eligibility.Path != path {
				return reject(ErrNotPaymentEligible, "auction is payable by %s, not %s", eligibility.Path, path)
			}

			p := &models.Payment{
				AuctionID:       a.ID,
				BuyerID:         buyerID,
				SellerID:        a.SellerID,
				Amount:          eligibility.Amount,
				PaymentMethod:   card.Descriptor(),
				TransactionDate: now,
				Status:          models.PaymentCompleted,
			}
			if err := repo.CreatePayment(ctx, p); err != nil {
				return fmt.Errorf("%s: failed to create payment: %w", op, err)
			}

			trigger := TriggerBuyNowCompleted
			if path == PaymentPathWon {
				trigger = TriggerExpiredWithBids
			}
			changed, err := Transition(a, trigger)
			if err != nil {
				return fmt.Errorf("%s: failed to transition auction: %w", op, err)
			}
			if changed {
				if eligibility.Winner != nil {
					if err := repo.MarkWinningBid(ctx, a.ID, eligibility.Winner.ID); err != nil {
						return fmt.Errorf("%s: failed to mark winning bid: %w", op, err)
					}
				}
				if err := repo.SaveAuction(ctx, a); err != nil {
					return fmt.Errorf("%s: failed to save auction: %w", op, err)
				}
			}

			payment = *p
			return nil
		})
	})
	if err != nil {
		return nil, auctionNotFound(err, auctionID)
	}

	s.logger.Info("payment completed",
		slog.String("op", op),
		slog.String("auction", auctionID.String()),
		slog.String("buyer", buyerID.String()),
		slog.String("amount", payment.Amount.StringFixed(2)),
	)
	return &payment, nil
}

// GetPayment 返回付款紀錄
func (s *Service) GetPayment(ctx context.Context, id uuid.UUID) (*models.Payment, error) {
	p, err := s.ledger.GetPayment(ctx, id)
	if err != nil {
		return nil, paymentNotFound(err, id)
	}
	return p, nil
}
