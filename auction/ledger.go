package auction

import (
	"context"
	"time"

	"github.com/google/uuid"

	"bidfinity/models"
)

// BidOrder 決定 ListBids 的排序方式
type BidOrder uint8

const (
	// BidsOldestFirst 依出價時間由舊到新排序
	BidsOldestFirst BidOrder = iota
	// BidsNewestFirst 依出價時間由新到舊排序
	BidsNewestFirst
)

// Repository 定義了核心邏輯對儲存層的操作介面
//
// 找不到資料時 GetAuction、GetPayment 返回包裝 ErrRecordNotFound 的錯誤；
// FindPayment、FindRating 則返回 nil, nil。
// 違反唯一性限制時返回包裝 ErrDuplicate 的錯誤。
type Repository interface {
	GetAuction(ctx context.Context, id uuid.UUID) (*models.Auction, error)
	CreateAuction(ctx context.Context, auction *models.Auction) error
	SaveAuction(ctx context.Context, auction *models.Auction) error
	DeleteAuction(ctx context.Context, id uuid.UUID) error
	CreateBid(ctx context.Context, bid *models.Bid) error
	ListBids(ctx context.Context, auctionID uuid.UUID, order BidOrder) ([]models.Bid, error)
	CountBids(ctx context.Context, auctionID uuid.UUID) (int64, error)
	MarkWinningBid(ctx context.Context, auctionID, bidID uuid.UUID) error
	GetPayment(ctx context.Context, id uuid.UUID) (*models.Payment, error)
	CreatePayment(ctx context.Context, payment *models.Payment) error
	FindPayment(ctx context.Context, auctionID, buyerID uuid.UUID, status models.PaymentStatus) (*models.Payment, error)
	CountPayments(ctx context.Context, auctionID uuid.UUID, status models.PaymentStatus) (int64, error)
	CreateRating(ctx context.Context, rating *models.Rating) error
	FindRating(ctx context.Context, raterID, ratedID uuid.UUID, auctionID *uuid.UUID) (*models.Rating, error)
	ListActiveExpiredAuctions(ctx context.Context, now time.Time) ([]models.Auction, error)
}

// Ledger 是支援單一拍賣列鎖定的交易式儲存層
type Ledger interface {
	Repository
	// LockAuction 開啟一個交易並鎖定指定的拍賣列後執行 fn；
	// 傳給 fn 的 Repository 綁定在同一個交易上，fn 返回錯誤時交易會回滾。
	// 鎖競爭造成的失敗會返回包裝 ErrTxConflict 的錯誤。
	LockAuction(ctx context.Context, id uuid.UUID, fn func(repo Repository, auction *models.Auction) error) error
}
