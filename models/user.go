package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// User 代表拍賣系統中的使用者
// 帳號的註冊與驗證由外部的憑證服務負責，這裡只保存拍賣相關的資訊
type User struct {
	ID        uuid.UUID  `gorm:"type:uuid;primaryKey"`
	Username  string     `gorm:"type:varchar(150);not null;unique"`
	Email     string     `gorm:"type:varchar(254);not null"`
	Phone     string     `gorm:"type:varchar(20)"`
	IsSeller  bool       `gorm:"not null;default:false"`
	IsAdmin   bool       `gorm:"not null;default:false"`
	IsActive  bool       `gorm:"not null;default:true"`
	CreatedAt time.Time  `gorm:"<-:create"`
	LastLogin *time.Time
}

func (u *User) BeforeCreate(tx *gorm.DB) error {
	return assignID(&u.ID)
}

// assignID 在 ID 尚未設定時產生 UUIDv7
func assignID(id *uuid.UUID) error {
	if *id != uuid.Nil {
		return nil
	}
	v7, err := uuid.NewV7()
	if err != nil {
		return err
	}
	*id = v7
	return nil
}
