package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"bidfinity/auction"
	"bidfinity/models"
)

// repo 實作 auction.Repository，db 可以是連線池或是交易
type repo struct {
	db *gorm.DB
}

var (
	_ auction.Repository = repo{}
	_ auction.Ledger     = (*Store)(nil)
)

func (r repo) GetAuction(ctx context.Context, id uuid.UUID) (*models.Auction, error) {
	var a models.Auction
	if err := r.db.WithContext(ctx).Take(&a, "id = ?", id).Error; err != nil {
		return nil, translate(err)
	}
	return &a, nil
}

func (r repo) CreateAuction(ctx context.Context, a *models.Auction) error {
	return translate(r.db.WithContext(ctx).Omit(clause.Associations).Create(a).Error)
}

func (r repo) SaveAuction(ctx context.Context, a *models.Auction) error {
	return translate(r.db.WithContext(ctx).Omit(clause.Associations).Save(a).Error)
}

func (r repo) DeleteAuction(ctx context.Context, id uuid.UUID) error {
	result := r.db.WithContext(ctx).Delete(&models.Auction{}, "id = ?", id)
	if result.Error != nil {
		return translate(result.Error)
	}
	if result.RowsAffected == 0 {
		return translate(gorm.ErrRecordNotFound)
	}
	return nil
}

func (r repo) CreateBid(ctx context.Context, b *models.Bid) error {
	return translate(r.db.WithContext(ctx).Omit(clause.Associations).Create(b).Error)
}

func (r repo) ListBids(ctx context.Context, auctionID uuid.UUID, order auction.BidOrder) ([]models.Bid, error) {
	var bids []models.Bid
	result := r.db.WithContext(ctx).
		Where("auction_id = ?", auctionID).
		Order(clause.OrderBy{Columns: []clause.OrderByColumn{
			{Column: clause.Column{Name: "bid_time"}, Desc: order == auction.BidsNewestFirst},
			{Column: clause.Column{Name: "id"}, Desc: order == auction.BidsNewestFirst},
		}}).
		Find(&bids)
	if result.Error != nil {
		return nil, translate(result.Error)
	}
	return bids, nil
}

func (r repo) CountBids(ctx context.Context, auctionID uuid.UUID) (int64, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&models.Bid{}).Where("auction_id = ?", auctionID).Count(&count).Error; err != nil {
		return 0, translate(err)
	}
	return count, nil
}

func (r repo) MarkWinningBid(ctx context.Context, auctionID, bidID uuid.UUID) error {
	err := r.db.WithContext(ctx).
		Model(&models.Bid{}).
		Where("auction_id = ?", auctionID).
		Update("is_winning_bid", gorm.Expr("id = ?", bidID)).
		Error
	return translate(err)
}

func (r repo) GetPayment(ctx context.Context, id uuid.UUID) (*models.Payment, error) {
	var p models.Payment
	if err := r.db.WithContext(ctx).Take(&p, "id = ?", id).Error; err != nil {
		return nil, translate(err)
	}
	return &p, nil
}

func (r repo) CreatePayment(ctx context.Context, p *models.Payment) error {
	return translate(r.db.WithContext(ctx).Omit(clause.Associations).Create(p).Error)
}

func (r repo) FindPayment(ctx context.Context, auctionID, buyerID uuid.UUID, status models.PaymentStatus) (*models.Payment, error) {
	var payments []models.Payment
	result := r.db.WithContext(ctx).
		Where("auction_id = ? AND buyer_id = ? AND status = ?", auctionID, buyerID, status).
		Limit(1).
		Find(&payments)
	if result.Error != nil {
		return nil, translate(result.Error)
	}
	if len(payments) == 0 {
		return nil, nil
	}
	return &payments[0], nil
}

func (r repo) CountPayments(ctx context.Context, auctionID uuid.UUID, status models.PaymentStatus) (int64, error) {
	var count int64
	result := r.db.WithContext(ctx).
		Model(&models.Payment{}).
		Where("auction_id = ? AND status = ?", auctionID, status).
		Count(&count)
	if result.Error != nil {
		return 0, translate(result.Error)
	}
	return count, nil
}

func (r repo) CreateRating(ctx context.Context, rating *models.Rating) error {
	return translate(r.db.WithContext(ctx).Omit(clause.Associations).Create(rating).Error)
}

func (r repo) FindRating(ctx context.Context, raterID, ratedID uuid.UUID, auctionID *uuid.UUID) (*models.Rating, error) {
	query := r.db.WithContext(ctx).Where("rater_user_id = ? AND rated_user_id = ?", raterID, ratedID)
	if auctionID == nil {
		query = query.Where("auction_id IS NULL")
	} else {
		query = query.Where("auction_id = ?", *auctionID)
	}

	var ratings []models.Rating
	if err := query.Limit(1).Find(&ratings).Error; err != nil {
		return nil, translate(err)
	}
	if len(ratings) == 0 {
		return nil, nil
	}
	return &ratings[0], nil
}

func (r repo) ListActiveExpiredAuctions(ctx context.Context, now time.Time) ([]models.Auction, error) {
	var auctions []models.Auction
	result := r.db.WithContext(ctx).
		Where("status = ? AND end_time <= ?", models.AuctionStatusActive, now.UTC()).
		Order("end_time").
		Find(&auctions)
	if result.Error != nil {
		return nil, translate(result.Error)
	}
	return auctions, nil
}

// LockAuction 在交易中以 SELECT ... FOR UPDATE 鎖定拍賣列後執行 fn
func (s *Store) LockAuction(ctx context.Context, id uuid.UUID, fn func(repo auction.Repository, a *models.Auction) error) error {
	const op = "LockAuction"

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if tx.Dialector.Name() == "postgres" && s.lockTimeout > 0 {
			if err := tx.Exec(fmt.Sprintf("SET LOCAL lock_timeout = '%dms'", s.lockTimeout.Milliseconds())).Error; err != nil {
				return fmt.Errorf("%s: failed to set lock timeout: %w", op, err)
			}
		}

		var a models.Auction
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Take(&a, "id = ?", id).Error; err != nil {
			return fmt.Errorf("%s: failed to lock auction %s: %w", op, id, translate(err))
		}
		return fn(repo{db: tx}, &a)
	})
	return translate(err)
}

// AuctionFilter 是拍賣列表的查詢條件
type AuctionFilter struct {
	Status     *models.AuctionStatus
	CategoryID *uuid.UUID
	SellerID   *uuid.UUID
	// Query 以標題或描述做模糊搜尋
	Query  string
	Limit  int
	Offset int
}

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// ListAuctions 依條件列出拍賣，最新建立的排在前面
func (s *Store) ListAuctions(ctx context.Context, filter AuctionFilter) ([]models.Auction, int64, error) {
	query := s.db.WithContext(ctx).Model(&models.Auction{})
	if filter.Status != nil {
		query = query.Where("status = ?", *filter.Status)
	}
	if filter.CategoryID != nil {
		query = query.Where("category_id = ?", *filter.CategoryID)
	}
	if filter.SellerID != nil {
		query = query.Where("seller_id = ?", *filter.SellerID)
	}
	if filter.Query != "" {
		pattern := "%" + filter.Query + "%"
		query = query.Where("(LOWER(title) LIKE LOWER(?) OR LOWER(description) LIKE LOWER(?))", pattern, pattern)
	}
	query = query.Session(&gorm.Session{})

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, translate(err)
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = defaultPageSize
	}
	limit = min(limit, maxPageSize)

	var auctions []models.Auction
	result := query.
		Preload("Images", func(db *gorm.DB) *gorm.DB {
			return db.Order("is_primary DESC, uploaded_at")
		}).
		Order(clause.OrderBy{Columns: []clause.OrderByColumn{
			{Column: clause.Column{Name: "created_at"}, Desc: true},
			{Column: clause.Column{Name: "id"}, Desc: false},
		}}).
		Limit(limit).
		Offset(max(filter.Offset, 0)).
		Find(&auctions)
	if result.Error != nil {
		return nil, 0, translate(result.Error)
	}
	return auctions, total, nil
}

// GetAuctionDetail 返回拍賣以及賣家、分類、圖片和由新到舊的出價紀錄
func (s *Store) GetAuctionDetail(ctx context.Context, id uuid.UUID) (*models.Auction, error) {
	var a models.Auction
	result := s.db.WithContext(ctx).
		Preload("Seller").
		Preload("Category").
		Preload("Images", func(db *gorm.DB) *gorm.DB {
			return db.Order("is_primary DESC, uploaded_at")
		}).
		Preload("Bids", func(db *gorm.DB) *gorm.DB {
			return db.Order("bid_time DESC, id DESC")
		}).
		Preload("Bids.Bidder").
		Take(&a, "id = ?", id)
	if result.Error != nil {
		return nil, translate(result.Error)
	}
	return &a, nil
}
