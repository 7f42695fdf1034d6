package models

import (
	"time"
)

// FavoriteFolder 收藏夹
type FavoriteFolder struct {
	ID     uint   `gorm:"primaryKey" json:"id"`
	UserID uint   `gorm:"not null;index;uniqueIndex:idx_folder_user_name" json:"user_id"`
	User   User   `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;" json:"-"`
	Name   string `gorm:"size:50;not null;uniqueIndex:idx_folder_user_name" json:"name"`
	// No default tag: gorm would replace an explicit false with the default.
	IsPublic  bool      `gorm:"not null" json:"is_public"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
