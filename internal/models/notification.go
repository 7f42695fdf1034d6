package models

import (
	"time"
)

type NotificationType string

const (
	NotificationTypeReplyComment   NotificationType = "comment_reply"      // 有人回复了你的评论
	NotificationTypeReplyUnderPost NotificationType = "comment_reply_blog" // 有人在你的文章下回复了评论
	NotificationTypeCommentPost    NotificationType = "blog_comment"       // 有人评论了你的文章
	NotificationTypePostLiked      NotificationType = "blog_liked"
	NotificationTypePostFavorited  NotificationType = "blog_favorited"
	NotificationTypeSystem         NotificationType = "system"
)

const (
	RelatedTypePost    = "blog"
	RelatedTypeComment = "comment"
)

type Notification struct {
	ID          uint             `gorm:"primaryKey" json:"id"`
	UserID      uint             `gorm:"not null;index;index:idx_notification_user_read" json:"-"` // Receiver
	User        User             `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;" json:"-"`
	ActorID     *uint            `gorm:"index" json:"actor_id"` // Sender
	Type        NotificationType `gorm:"type:varchar(30);not null;index" json:"type"`
	Title       string           `gorm:"size:200;not null" json:"title"`
	Content     string           `gorm:"size:1000;not null" json:"content"`
	RelatedType string           `gorm:"size:50" json:"related_type"`
	RelatedID   *uint            `json:"related_id"`
	RelatedURL  string           `gorm:"size:500" json:"related_url"`
	IsRead      bool             `gorm:"not null;default:false;index:idx_notification_user_read" json:"is_read"`
	CreatedAt   time.Time        `gorm:"index" json:"created_at"`
}
