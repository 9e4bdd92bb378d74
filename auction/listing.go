package auction

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"bidfinity/models"
)

const maxTitleLength = 200

// ListingInput 是建立或編輯拍賣時提交的內容
// 金額以字串表示，空字串代表未設定
type ListingInput struct {
	Title               string
	Description         string
	CategoryID          *uuid.UUID
	StartingPrice       string
	MinimumBidIncrement string
	BuyNowPrice         string
	Condition           models.Condition
	Location            string
	ShippingMethod      models.ShippingMethod
	ShippingCost        string
	// StartTime 為 nil 時以目前時間開始
	StartTime *time.Time
	EndTime   time.Time
}

// apply 驗證輸入並寫入拍賣；CurrentPrice 會被重設為起標價
func (in ListingInput) apply(a *models.Auction, now time.Time) error {
	title := strings.TrimSpace(in.Title)
	if title == "" {
		return reject(ErrInvalidListing, "title is required")
	}
	if utf8.RuneCountInString(title) > maxTitleLength {
		return reject(ErrInvalidListing, "title must be at most %d characters", maxTitleLength)
	}

	starting, err := parseListingAmount("starting price", in.StartingPrice)
	if err != nil {
		return err
	}

	increment := models.DefaultMinimumBidIncrement
	if in.MinimumBidIncrement != "" {
		if increment, err = parseListingAmount("minimum bid increment", in.MinimumBidIncrement); err != nil {
			return err
		}
	}

	var buyNow *decimal.Decimal
	if in.BuyNowPrice != "" {
		v, err := parseListingAmount("buy now price", in.BuyNowPrice)
		if err != nil {
			return err
		}
		if !v.GreaterThan(starting) {
			return reject(ErrInvalidListing, "buy now price must be greater than starting price")
		}
		buyNow = &v
	}

	condition := in.Condition
	if condition == "" {
		condition = models.ConditionGood
	}
	if !condition.Valid() {
		return reject(ErrInvalidListing, "unknown condition %q", condition)
	}

	shipping := in.ShippingMethod
	if shipping == "" {
		shipping = models.ShippingPickup
	}
	if !shipping.Valid() {
		return reject(ErrInvalidListing, "unknown shipping method %q", shipping)
	}
	var shippingCost *decimal.Decimal
	if in.ShippingCost != "" {
		v, err := decimal.NewFromString(in.ShippingCost)
		if err != nil || v.IsNegative() || !v.Equal(v.Round(2)) {
			return reject(ErrInvalidListing, "shipping cost must be a non-negative amount")
		}
		shippingCost = &v
	}

	start := now
	if in.StartTime != nil {
		start = in.StartTime.UTC()
	}
	end := in.EndTime.UTC()
	if !end.After(start) {
		return reject(ErrInvalidListing, "end time must be after start time")
	}
	if !end.After(now) {
		return reject(ErrInvalidListing, "end time must be in the future")
	}

	a.Title = title
	a.Description = strings.TrimSpace(in.Description)
	a.CategoryID = in.CategoryID
	a.StartingPrice = starting
	a.CurrentPrice = starting
	a.MinimumBidIncrement = increment
	a.BuyNowPrice = buyNow
	a.Condition = condition
	a.Location = strings.TrimSpace(in.Location)
	a.ShippingMethod = shipping
	a.ShippingCost = shippingCost
	a.StartTime = start
	a.EndTime = end
	return nil
}

func parseListingAmount(field, raw string) (decimal.Decimal, error) {
	v, err := ParseAmount(raw)
	if err != nil {
		return decimal.Zero, reject(ErrInvalidListing, "%s: %v", field, err)
	}
	return v, nil
}

// CreateListing 建立一個新的拍賣，拍賣建立後即為 active
func (s *Service) CreateListing(ctx context.Context, sellerID uuid.UUID, in ListingInput) (*models.Auction, error) {
	const op = "CreateListing"

	a := &models.Auction{
		SellerID: sellerID,
		Status:   models.AuctionStatusActive,
	}
	if err := in.apply(a, s.now()); err != nil {
		return nil, err
	}
	if err := s.ledger.CreateAuction(ctx, a); err != nil {
		return nil, fmt.Errorf("%s: failed to create auction: %w", op, err)
	}

	s.logger.Info("listing created", slog.String("auction", a.ID.String()), slog.String("seller", sellerID.String()))
	return a, nil
}

// GetAuction 返回拍賣
func (s *Service) GetAuction(ctx context.Context, id uuid.UUID) (*models.Auction, error) {
	a, err := s.ledger.GetAuction(ctx, id)
	if err != nil {
		return nil, auctionNotFound(err, id)
	}
	return a, nil
}

// EditListing 由賣家編輯尚未有人出價且仍在進行中的拍賣
func (s *Service) EditListing(ctx context.Context, auctionID, callerID uuid.UUID, in ListingInput) (*models.Auction, error) {
	const op = "EditListing"

	var edited models.Auction
	err := s.withRetry(ctx, func() error {
		return s.ledger.LockAuction(ctx, auctionID, func(repo Repository, a *models.Auction) error {
			now := s.now()
			if a.SellerID != callerID {
				return reject(ErrNotOwner, "only the seller can edit this auction")
			}
			if !a.IsOpen(now) {
				return reject(ErrAuctionNotActive, "auction is %s or has ended", a.Status)
			}
			count, err := repo.CountBids(ctx, a.ID)
			if err != nil {
				return fmt.Errorf("%s: failed to count bids: %w", op, err)
			}
			if count > 0 {
				return reject(ErrHasBids, "auction already has %d bids", count)
			}

			if in.StartTime == nil {
				start := a.StartTime
				in.StartTime = &start
			}
			if err := in.apply(a, now); err != nil {
				return err
			}
			if err := repo.SaveAuction(ctx, a); err != nil {
				return fmt.Errorf("%s: failed to save auction: %w", op, err)
			}
			edited = *a
			return nil
		})
	})
	if err != nil {
		return nil, auctionNotFound(err, auctionID)
	}
	return &edited, nil
}

// DeleteListing 刪除拍賣
// 一般情況下只有賣家可以刪除尚未有人出價的拍賣；force 供管理員略過這些限制
func (s *Service) DeleteListing(ctx context.Context, auctionID, callerID uuid.UUID, force bool) error {
	const op = "DeleteListing"

	err := s.withRetry(ctx, func() error {
		return s.ledger.LockAuction(ctx, auctionID, func(repo Repository, a *models.Auction) error {
			if !force {
				if a.SellerID != callerID {
					return reject(ErrNotOwner, "only the seller can delete this auction")
				}
				// 售出的拍賣帶有付款紀錄，刪除會連同付款一起刪除
				if a.Status == models.AuctionStatusSold {
					return reject(ErrAuctionNotActive, "sold auctions cannot be deleted")
				}
				count, err := repo.CountBids(ctx, a.ID)
				if err != nil {
					return fmt.Errorf("%s: failed to count bids: %w", op, err)
				}
				if count > 0 {
					return reject(ErrHasBids, "auction already has %d bids", count)
				}
			}
			if err := repo.DeleteAuction(ctx, a.ID); err != nil {
				return fmt.Errorf("%s: failed to delete auction: %w", op, err)
			}
			return nil
		})
	})
	if err != nil {
		return auctionNotFound(err, auctionID)
	}

	s.logger.Info("listing deleted", slog.String("auction", auctionID.String()), slog.Bool("force", force))
	return nil
}

// CancelListing 撤回進行中的拍賣，撤回後不會進行結算
func (s *Service) CancelListing(ctx context.Context, auctionID uuid.UUID) (*models.Auction, error) {
	return s.terminate(ctx, "CancelListing", auctionID, TriggerAdminCancel)
}

// CloseListing 因違規下架進行中的拍賣，下架後不會進行結算
func (s *Service) CloseListing(ctx context.Context, auctionID uuid.UUID) (*models.Auction, error) {
	return s.terminate(ctx, "CloseListing", auctionID, TriggerAdminClose)
}

func (s *Service) terminate(ctx context.Context, op string, auctionID uuid.UUID, trigger Trigger) (*models.Auction, error) {
	var result models.Auction
	err := s.withRetry(ctx, func() error {
		return s.ledger.LockAuction(ctx, auctionID, func(repo Repository, a *models.Auction) error {
			changed, err := Transition(a, trigger)
			if err != nil {
				return fmt.Errorf("%s: failed to transition auction: %w", op, err)
			}
			if !changed {
				return reject(ErrAuctionNotActive, "auction is already %s", a.Status)
			}
			if err := repo.SaveAuction(ctx, a); err != nil {
				return fmt.Errorf("%s: failed to save auction: %w", op, err)
			}
			result = *a
			return nil
		})
	})
	if err != nil {
		return nil, auctionNotFound(err, auctionID)
	}

	s.logger.Info("listing terminated", slog.String("auction", auctionID.String()), slog.String("trigger", trigger.String()))
	return &result, nil
}
