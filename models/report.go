package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ReportReason 代表檢舉的原因
type ReportReason string

const (
	ReasonFake          ReportReason = "fake"
	ReasonMisleading    ReportReason = "misleading"
	ReasonInappropriate ReportReason = "inappropriate"
	ReasonScam          ReportReason = "scam"
	ReasonOther         ReportReason = "other"
)

func (r ReportReason) Valid() bool {
	switch r {
	case ReasonFake, ReasonMisleading, ReasonInappropriate, ReasonScam, ReasonOther:
		return true
	}
	return false
}

// ReportStatus 代表檢舉的處理狀態
type ReportStatus string

const (
	ReportPending   ReportStatus = "pending"
	ReportReviewed  ReportStatus = "reviewed"
	ReportResolved  ReportStatus = "resolved"
	ReportDismissed ReportStatus = "dismissed"
)

func (s ReportStatus) Valid() bool {
	switch s {
	case ReportPending, ReportReviewed, ReportResolved, ReportDismissed:
		return true
	}
	return false
}

// IsFinal 檢查檢舉是否已經結案，結案後不能再變更狀態
func (s ReportStatus) IsFinal() bool {
	return s == ReportResolved || s == ReportDismissed
}

// Report 代表使用者對拍賣商品的檢舉
// ReviewedBy、ReviewedAt 和 AdminNotes 只有在管理員將狀態從 pending 轉移後才會設定
type Report struct {
	ID          uuid.UUID    `gorm:"type:uuid;primaryKey"`
	AuctionID   uuid.UUID    `gorm:"type:uuid;not null;index;<-:create"`
	ReporterID  uuid.UUID    `gorm:"type:uuid;not null;<-:create"`
	Reason      ReportReason `gorm:"type:varchar(20);not null;<-:create"`
	Description string       `gorm:"type:text;not null;<-:create"`
	Status      ReportStatus `gorm:"type:varchar(20);not null;index"`
	CreatedAt   time.Time    `gorm:"<-:create"`
	ReviewedBy  *uuid.UUID   `gorm:"type:uuid"`
	ReviewedAt  *time.Time
	AdminNotes  string       `gorm:"type:text"`

	Auction  *Auction `gorm:"foreignKey:AuctionID;constraint:OnDelete:CASCADE"`
	Reporter *User    `gorm:"foreignKey:ReporterID;constraint:OnDelete:CASCADE"`
	Reviewer *User    `gorm:"foreignKey:ReviewedBy;constraint:OnDelete:SET NULL"`
}

func (r *Report) BeforeCreate(tx *gorm.DB) error {
	return assignID(&r.ID)
}
