package models

import (
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Category 代表拍賣商品的分類
type Category struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey"`
	Name        string    `gorm:"type:varchar(100);not null;unique"`
	Description string    `gorm:"type:text"`
}

func (c *Category) BeforeCreate(tx *gorm.DB) error {
	return assignID(&c.ID)
}
