package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Bid 代表拍賣商品的出價紀錄
// 出價建立後不可修改或撤回；IsWinningBid 只在結算時更新，得標者永遠以出價紀錄重新計算
type Bid struct {
	ID           uuid.UUID       `gorm:"type:uuid;primaryKey"`
	AuctionID    uuid.UUID       `gorm:"type:uuid;not null;index;<-:create"`
	BidderID     uuid.UUID       `gorm:"type:uuid;not null;index;<-:create"`
	BidAmount    decimal.Decimal `gorm:"type:numeric(10,2);not null;<-:create"`
	BidTime      time.Time       `gorm:"not null;<-:create"`
	IsWinningBid bool            `gorm:"not null;default:false"`

	// 外鍵關聯
	Bidder *User `gorm:"foreignKey:BidderID;constraint:OnDelete:CASCADE"`
}

func (b *Bid) BeforeCreate(tx *gorm.DB) error {
	b.BidTime = b.BidTime.UTC()
	return assignID(&b.ID)
}

func (b *Bid) AfterFind(tx *gorm.DB) error {
	b.BidTime = b.BidTime.UTC()
	return nil
}
