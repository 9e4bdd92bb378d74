package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// PaymentStatus 代表付款紀錄的狀態
type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "pending"
	PaymentCompleted PaymentStatus = "completed"
	PaymentFailed    PaymentStatus = "failed"
	PaymentRefunded  PaymentStatus = "refunded"
	PaymentDisputed  PaymentStatus = "disputed"
)

func (s PaymentStatus) Valid() bool {
	switch s {
	case PaymentPending, PaymentCompleted, PaymentFailed, PaymentRefunded, PaymentDisputed:
		return true
	}
	return false
}

// Payment 代表買家對拍賣商品的付款紀錄
// 同一個 (拍賣, 買家) 最多只會有一筆 completed 的付款
type Payment struct {
	ID              uuid.UUID       `gorm:"type:uuid;primaryKey"`
	AuctionID       uuid.UUID       `gorm:"type:uuid;not null;index:idx_payment_auction_buyer;<-:create"`
	BuyerID         uuid.UUID       `gorm:"type:uuid;not null;index:idx_payment_auction_buyer;<-:create"`
	SellerID        uuid.UUID       `gorm:"type:uuid;not null;<-:create"`
	Amount          decimal.Decimal `gorm:"type:numeric(10,2);not null;<-:create"`
	PaymentMethod   string          `gorm:"type:varchar(50)"`
	TransactionDate time.Time       `gorm:"not null;<-:create"`
	Status          PaymentStatus   `gorm:"type:varchar(20);not null"`

	// 外鍵關聯
	Auction *Auction `gorm:"foreignKey:AuctionID;constraint:OnDelete:CASCADE"`
	Buyer   *User    `gorm:"foreignKey:BuyerID;constraint:OnDelete:CASCADE"`
	Seller  *User    `gorm:"foreignKey:SellerID;constraint:OnDelete:CASCADE"`
}

func (p *Payment) BeforeCreate(tx *gorm.DB) error {
	p.TransactionDate = p.TransactionDate.UTC()
	return assignID(&p.ID)
}
