package models

import (
	"time"
)

// Favorite 收藏模型 - 用户把文章放进某个收藏夹。
// 同一篇文章可以放进多个收藏夹，每次放置一行。
type Favorite struct {
	ID        uint           `gorm:"primaryKey" json:"id"`
	UserID    uint           `gorm:"not null;index:idx_favorite_user_post;uniqueIndex:idx_favorite_user_post_folder" json:"user_id"`
	PostID    uint           `gorm:"not null;index:idx_favorite_user_post;index;uniqueIndex:idx_favorite_user_post_folder" json:"post_id"`
	Post      Post           `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;" json:"-"`
	FolderID  uint           `gorm:"not null;index;uniqueIndex:idx_favorite_user_post_folder" json:"folder_id"`
	Folder    FavoriteFolder `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;" json:"-"`
	CreatedAt time.Time      `json:"created_at"`
}
