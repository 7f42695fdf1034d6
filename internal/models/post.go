package models

import (
	"time"
)

// Post is the blog entry that comments, likes and favorites attach to.
// Its lifecycle belongs to the blog service; this module only moves the
// two denormalized counters.
type Post struct {
	ID            uint      `gorm:"primaryKey" json:"id"`
	UserID        uint      `gorm:"not null;index" json:"author_id"`
	User          User      `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;" json:"-"`
	Title         string    `gorm:"not null" json:"title"`
	Content       string    `gorm:"type:text" json:"-"`
	LikeCount     int       `gorm:"not null;default:0" json:"likes_count"`     // == 点赞行数
	FavoriteCount int       `gorm:"not null;default:0" json:"favorites_count"` // == 收藏过的不同用户数
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}
