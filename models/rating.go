package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	MinRatingScore = 1
	MaxRatingScore = 5
)

// Rating 代表買家對賣家的評價
// 同一個 (評價者, 被評價者, 拍賣) 只能有一筆評價；拍賣被刪除時保留評價並將 AuctionID 設為 NULL
type Rating struct {
	ID          uuid.UUID  `gorm:"type:uuid;primaryKey"`
	RatedUserID uuid.UUID  `gorm:"type:uuid;not null;uniqueIndex:idx_rating_rater_rated_auction;<-:create"`
	RaterUserID uuid.UUID  `gorm:"type:uuid;not null;uniqueIndex:idx_rating_rater_rated_auction;<-:create"`
	AuctionID   *uuid.UUID `gorm:"type:uuid;uniqueIndex:idx_rating_rater_rated_auction"`
	RatingScore int        `gorm:"not null;check:rating_score_range,rating_score >= 1 AND rating_score <= 5;<-:create"`
	Comment     string     `gorm:"type:text"`
	CreatedAt   time.Time  `gorm:"<-:create"`

	// 外鍵關聯
	RatedUser *User    `gorm:"foreignKey:RatedUserID;constraint:OnDelete:CASCADE"`
	RaterUser *User    `gorm:"foreignKey:RaterUserID;constraint:OnDelete:CASCADE"`
	Auction   *Auction `gorm:"foreignKey:AuctionID;constraint:OnDelete:SET NULL"`
}

func (r *Rating) BeforeCreate(tx *gorm.DB) error {
	return assignID(&r.ID)
}
