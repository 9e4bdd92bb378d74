package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"bidfinity/models"
)

// ErrReportFinal 表示檢舉已經結案，不能再變更狀態
var ErrReportFinal = errors.New("report already closed")

// Identity 是從存取憑證中取得的使用者身分
type Identity struct {
	ID       uuid.UUID
	Username string
	Email    string
	IsSeller bool
	IsAdmin  bool
}

// EnsureUser 確保憑證對應的使用者存在，並同步角色與最後登入時間
// 已存在的使用者不會被改變啟用狀態
func (s *Store) EnsureUser(ctx context.Context, identity Identity, now time.Time) (*models.User, error) {
	const op = "EnsureUser"

	lastLogin := now.UTC()
	user := models.User{
		ID:        identity.ID,
		Username:  identity.Username,
		Email:     identity.Email,
		IsSeller:  identity.IsSeller,
		IsAdmin:   identity.IsAdmin,
		IsActive:  true,
		LastLogin: &lastLogin,
	}
	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns([]string{"email", "is_seller", "is_admin", "last_login"}),
		}).
		Create(&user).
		Error
	if err != nil {
		return nil, fmt.Errorf("%s: failed to upsert user: %w", op, translate(err))
	}

	stored, err := s.GetUser(ctx, identity.ID)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to reload user: %w", op, err)
	}
	s.usernames.Add(stored.ID, stored.Username)
	return stored, nil
}

func (s *Store) GetUser(ctx context.Context, id uuid.UUID) (*models.User, error) {
	var user models.User
	if err := s.db.WithContext(ctx).Take(&user, "id = ?", id).Error; err != nil {
		return nil, translate(err)
	}
	return &user, nil
}

// Username 返回使用者名稱，結果會被快取
func (s *Store) Username(ctx context.Context, id uuid.UUID) (string, error) {
	if name, ok := s.usernames.Get(id); ok {
		return name.(string), nil
	}

	var user models.User
	if err := s.db.WithContext(ctx).Select("id", "username").Take(&user, "id = ?", id).Error; err != nil {
		return "", translate(err)
	}
	s.usernames.Add(id, user.Username)
	return user.Username, nil
}

// SetUserActive 啟用或停權使用者
func (s *Store) SetUserActive(ctx context.Context, id uuid.UUID, active bool) (*models.User, error) {
	result := s.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", id).Update("is_active", active)
	if result.Error != nil {
		return nil, translate(result.Error)
	}
	if result.RowsAffected == 0 {
		return nil, translate(gorm.ErrRecordNotFound)
	}
	return s.GetUser(ctx, id)
}

func (s *Store) ListCategories(ctx context.Context) ([]models.Category, error) {
	var categories []models.Category
	if err := s.db.WithContext(ctx).Order("name").Find(&categories).Error; err != nil {
		return nil, translate(err)
	}
	return categories, nil
}

func (s *Store) CreateCategory(ctx context.Context, c *models.Category) error {
	return translate(s.db.WithContext(ctx).Create(c).Error)
}

// AddImage 新增拍賣圖片，拍賣的第一張圖片會被設為主要圖片
func (s *Store) AddImage(ctx context.Context, img *models.AuctionImage) error {
	return translate(s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&models.AuctionImage{}).Where("auction_id = ?", img.AuctionID).Count(&count).Error; err != nil {
			return err
		}
		img.IsPrimary = count == 0
		img.UploadedAt = img.UploadedAt.UTC()
		return tx.Create(img).Error
	}))
}

func (s *Store) GetImage(ctx context.Context, id uuid.UUID) (*models.AuctionImage, error) {
	var img models.AuctionImage
	if err := s.db.WithContext(ctx).Take(&img, "id = ?", id).Error; err != nil {
		return nil, translate(err)
	}
	return &img, nil
}

// DeleteImage 刪除圖片；刪除主要圖片時由最早上傳的圖片遞補
func (s *Store) DeleteImage(ctx context.Context, id uuid.UUID) error {
	return translate(s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var img models.AuctionImage
		if err := tx.Take(&img, "id = ?", id).Error; err != nil {
			return err
		}
		if err := tx.Delete(&img).Error; err != nil {
			return err
		}
		if !img.IsPrimary {
			return nil
		}

		var next []models.AuctionImage
		if err := tx.Where("auction_id = ?", img.AuctionID).Order("uploaded_at").Limit(1).Find(&next).Error; err != nil {
			return err
		}
		if len(next) == 0 {
			return nil
		}
		return tx.Model(&next[0]).Update("is_primary", true).Error
	}))
}

// AddToWatchlist 將拍賣加入使用者的關注清單，重複加入返回 auction.ErrDuplicate
func (s *Store) AddToWatchlist(ctx context.Context, userID, auctionID uuid.UUID, now time.Time) (*models.Watchlist, error) {
	if _, err := s.GetAuction(ctx, auctionID); err != nil {
		return nil, err
	}
	entry := models.Watchlist{
		UserID:    userID,
		AuctionID: auctionID,
		AddedAt:   now.UTC(),
	}
	if err := s.db.WithContext(ctx).Omit(clause.Associations).Create(&entry).Error; err != nil {
		return nil, translate(err)
	}
	return &entry, nil
}

func (s *Store) RemoveFromWatchlist(ctx context.Context, userID, auctionID uuid.UUID) error {
	result := s.db.WithContext(ctx).Where("user_id = ? AND auction_id = ?", userID, auctionID).Delete(&models.Watchlist{})
	if result.Error != nil {
		return translate(result.Error)
	}
	if result.RowsAffected == 0 {
		return translate(gorm.ErrRecordNotFound)
	}
	return nil
}

// ListWatchlist 依加入時間由新到舊列出使用者關注的拍賣
func (s *Store) ListWatchlist(ctx context.Context, userID uuid.UUID) ([]models.Watchlist, error) {
	var entries []models.Watchlist
	result := s.db.WithContext(ctx).
		Preload("Auction").
		Where("user_id = ?", userID).
		Order("added_at DESC").
		Find(&entries)
	if result.Error != nil {
		return nil, translate(result.Error)
	}
	return entries, nil
}

func (s *Store) CreateReport(ctx context.Context, r *models.Report) error {
	if _, err := s.GetAuction(ctx, r.AuctionID); err != nil {
		return err
	}
	return translate(s.db.WithContext(ctx).Omit(clause.Associations).Create(r).Error)
}

// ListReports 列出檢舉，status 為 nil 時列出全部
func (s *Store) ListReports(ctx context.Context, status *models.ReportStatus) ([]models.Report, error) {
	query := s.db.WithContext(ctx).Order("created_at DESC")
	if status != nil {
		query = query.Where("status = ?", *status)
	}
	var reports []models.Report
	if err := query.Find(&reports).Error; err != nil {
		return nil, translate(err)
	}
	return reports, nil
}

// ReviewReport 由管理員變更檢舉狀態並記錄審核者、時間與備註
// 已經結案(resolved、dismissed)的檢舉返回 ErrReportFinal
func (s *Store) ReviewReport(ctx context.Context, id, reviewerID uuid.UUID, status models.ReportStatus, notes string, now time.Time) (*models.Report, error) {
	var report models.Report
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Take(&report, "id = ?", id).Error; err != nil {
			return err
		}
		if report.Status.IsFinal() {
			return fmt.Errorf("%w: report is %s", ErrReportFinal, report.Status)
		}

		reviewedAt := now.UTC()
		report.Status = status
		report.ReviewedBy = &reviewerID
		report.ReviewedAt = &reviewedAt
		report.AdminNotes = notes
		return tx.Model(&report).Select("status", "reviewed_by", "reviewed_at", "admin_notes").Updates(&report).Error
	})
	if err != nil {
		return nil, translate(err)
	}
	return &report, nil
}
