package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// AuctionImage 代表拍賣商品的圖片
// 圖片本身存放在 S3，這裡只記錄公開的 URL
type AuctionImage struct {
	ID         uuid.UUID `gorm:"type:uuid;primaryKey"`
	AuctionID  uuid.UUID `gorm:"type:uuid;not null;index;<-:create"`
	Url        string    `gorm:"type:text;not null;<-:create"`
	IsPrimary  bool      `gorm:"not null;default:false"`
	UploadedAt time.Time `gorm:"not null;<-:create"`
}

func (i *AuctionImage) BeforeCreate(tx *gorm.DB) error {
	return assignID(&i.ID)
}
