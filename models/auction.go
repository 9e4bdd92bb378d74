package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Condition 代表商品的新舊程度
type Condition string

const (
	ConditionNew     Condition = "new"
	ConditionLikeNew Condition = "like_new"
	ConditionGood    Condition = "good"
	ConditionFair    Condition = "fair"
	ConditionPoor    Condition = "poor"
)

func (c Condition) Valid() bool {
	switch c {
	case ConditionNew, ConditionLikeNew, ConditionGood, ConditionFair, ConditionPoor:
		return true
	}
	return false
}

// ShippingMethod 代表商品的交貨方式
type ShippingMethod string

const (
	ShippingPickup   ShippingMethod = "pickup"
	ShippingDelivery ShippingMethod = "shipping"
)

func (m ShippingMethod) Valid() bool {
	return m == ShippingPickup || m == ShippingDelivery
}

// Auction 代表拍賣系統中的商品
// 包含商品資訊、起標價、目前價格、最低加價幅度、直購價以及拍賣時間等資訊
type Auction struct {
	ID                  uuid.UUID        `gorm:"type:uuid;primaryKey"`
	SellerID            uuid.UUID        `gorm:"type:uuid;not null;index;<-:create"`
	CategoryID          *uuid.UUID       `gorm:"type:uuid;index"`
	Title               string           `gorm:"type:varchar(200);not null"`
	Description         string           `gorm:"type:text;not null"`
	StartingPrice       decimal.Decimal  `gorm:"type:numeric(10,2);not null"`
	CurrentPrice        decimal.Decimal  `gorm:"type:numeric(10,2);not null"`
	MinimumBidIncrement decimal.Decimal  `gorm:"type:numeric(10,2);not null"`
	BuyNowPrice         *decimal.Decimal `gorm:"type:numeric(10,2)"`
	Condition           Condition        `gorm:"type:varchar(20);not null"`
	Location            string           `gorm:"type:varchar(100)"`
	ShippingMethod      ShippingMethod   `gorm:"type:varchar(20);not null"`
	ShippingCost        *decimal.Decimal `gorm:"type:numeric(10,2)"`
	StartTime           time.Time        `gorm:"not null"`
	EndTime             time.Time        `gorm:"not null;index"`
	Status              AuctionStatus    `gorm:"type:varchar(20);not null;index"`
	CreatedAt           time.Time        `gorm:"<-:create"`
	UpdatedAt           time.Time

	// 外鍵關聯
	Seller   *User          `gorm:"foreignKey:SellerID;constraint:OnDelete:CASCADE"`
	Category *Category      `gorm:"foreignKey:CategoryID;constraint:OnDelete:SET NULL"`
	Bids     []Bid          `gorm:"constraint:OnDelete:CASCADE"`
	Images   []AuctionImage `gorm:"constraint:OnDelete:CASCADE"`
}

// DefaultMinimumBidIncrement 是未指定最低加價幅度時使用的預設值
var DefaultMinimumBidIncrement = decimal.RequireFromString("1.00")

func (a *Auction) BeforeCreate(tx *gorm.DB) error {
	return assignID(&a.ID)
}

// BeforeSave 在寫入儲存層前將時間統一轉換為 UTC
func (a *Auction) BeforeSave(tx *gorm.DB) error {
	a.StartTime = a.StartTime.UTC()
	a.EndTime = a.EndTime.UTC()
	return nil
}

// AfterFind 在讀出儲存層後將時間統一轉換為 UTC
func (a *Auction) AfterFind(tx *gorm.DB) error {
	a.StartTime = a.StartTime.UTC()
	a.EndTime = a.EndTime.UTC()
	return nil
}

// HasEnded 檢查拍賣的結束時間是否已經到達
func (a *Auction) HasEnded(now time.Time) bool {
	return !now.UTC().Before(a.EndTime)
}

// IsOpen 檢查拍賣是否仍在進行中(狀態為 active 且尚未到達結束時間)
func (a *Auction) IsOpen(now time.Time) bool {
	return a.Status == AuctionStatusActive && !a.HasEnded(now)
}

// MinimumNextBid 返回下一次出價的最低金額
func (a *Auction) MinimumNextBid() decimal.Decimal {
	return a.CurrentPrice.Add(a.MinimumBidIncrement)
}
