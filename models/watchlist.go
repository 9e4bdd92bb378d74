package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Watchlist 代表使用者關注的拍賣，(使用者, 拍賣) 不可重複
type Watchlist struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey"`
	UserID    uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_watchlist_user_auction;<-:create"`
	AuctionID uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_watchlist_user_auction;<-:create"`
	AddedAt   time.Time `gorm:"not null;<-:create"`

	User    *User    `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE"`
	Auction *Auction `gorm:"foreignKey:AuctionID;constraint:OnDelete:CASCADE"`
}

func (w *Watchlist) BeforeCreate(tx *gorm.DB) error {
	return assignID(&w.ID)
}
