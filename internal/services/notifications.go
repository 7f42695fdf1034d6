package services

import (
	"context"
	"fmt"
	"time"
	"v4corner/internal/apperr"
	"v4corner/internal/models"
	"v4corner/internal/utils"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

const (
	notificationTitleMax   = 200
	notificationContentMax = 1000
	unreadCountTTL         = 30 * time.Second
)

func unreadCacheKey(userID uint) string {
	return fmt.Sprintf("notify:unread:%d", userID)
}

// Notifier 根据评论、点赞、收藏事件生成通知。
// 所有写入都发生在调用方的事务里，事务提交后再调用 Delivered。
type Notifier struct {
	cache *utils.GlobalCache
}

func NewNotifier(cache *utils.GlobalCache) *Notifier {
	return &Notifier{cache: cache}
}

// CommentEvent describes a freshly inserted comment.
type CommentEvent struct {
	Post      models.Post
	Comment   models.Comment
	Commenter models.User
	// ParentAuthorID is set when the comment is a reply.
	ParentAuthorID *uint
}

// CommentCreated fans a new comment out to at most two recipients:
// the parent comment's author and the post's author, never the commenter,
// and never the same person twice.
func (n *Notifier) CommentCreated(tx *gorm.DB, ev CommentEvent) ([]models.Notification, error) {
	name := ev.Commenter.DisplayName()
	url := fmt.Sprintf("/blogs/%d?comment=%d", ev.Post.ID, ev.Comment.ID)
	body := utils.PlainText(ev.Comment.Content)

	var notes []models.Notification
	notified := map[uint]bool{ev.Commenter.ID: true}

	if ev.ParentAuthorID != nil && !notified[*ev.ParentAuthorID] {
		notified[*ev.ParentAuthorID] = true
		notes = append(notes, newNotification(*ev.ParentAuthorID, ev.Commenter.ID,
			models.NotificationTypeReplyComment,
			fmt.Sprintf("%s 回复了你的评论", name),
			body, models.RelatedTypeComment, ev.Comment.ID, url))
	}

	if !notified[ev.Post.UserID] {
		notified[ev.Post.UserID] = true
		typ := models.NotificationTypeCommentPost
		title := fmt.Sprintf("%s 评论了你的博客《%s》", name, ev.Post.Title)
		if ev.ParentAuthorID != nil {
			typ = models.NotificationTypeReplyUnderPost
			title = fmt.Sprintf("%s 回复了你博客下的评论", name)
		}
		notes = append(notes, newNotification(ev.Post.UserID, ev.Commenter.ID,
			typ, title, body, models.RelatedTypePost, ev.Post.ID, url))
	}

	return notes, n.write(tx, notes)
}

// PostLiked notifies the post author unless they liked their own post.
func (n *Notifier) PostLiked(tx *gorm.DB, post models.Post, liker models.User) ([]models.Notification, error) {
	if post.UserID == liker.ID {
		return nil, nil
	}
	name := liker.DisplayName()
	notes := []models.Notification{newNotification(post.UserID, liker.ID,
		models.NotificationTypePostLiked,
		fmt.Sprintf("%s 点赞了你的博客《%s》", name, post.Title),
		fmt.Sprintf("%s 觉得你的博客很棒", name),
		models.RelatedTypePost, post.ID, fmt.Sprintf("/blogs/%d", post.ID))}
	return notes, n.write(tx, notes)
}

// PostFavorited is only called for a user's first placement of the post.
func (n *Notifier) PostFavorited(tx *gorm.DB, post models.Post, favoriter models.User, folder models.FavoriteFolder) ([]models.Notification, error) {
	if post.UserID == favoriter.ID {
		return nil, nil
	}
	name := favoriter.DisplayName()
	notes := []models.Notification{newNotification(post.UserID, favoriter.ID,
		models.NotificationTypePostFavorited,
		fmt.Sprintf("%s 收藏了你的博客《%s》", name, post.Title),
		fmt.Sprintf("%s 收藏了你的博客到文件夹「%s」", name, folder.Name),
		models.RelatedTypePost, post.ID, fmt.Sprintf("/blogs/%d", post.ID))}
	return notes, n.write(tx, notes)
}

// Delivered runs after commit: drops cached unread counts and records metrics.
func (n *Notifier) Delivered(notes []models.Notification) {
	for _, note := range notes {
		n.cache.Delete(unreadCacheKey(note.UserID))
		notificationsTotal.WithLabelValues(string(note.Type)).Inc()
	}
}

func (n *Notifier) write(tx *gorm.DB, notes []models.Notification) error {
	if len(notes) == 0 {
		return nil
	}
	return tx.Create(&notes).Error
}

func newNotification(to, actor uint, typ models.NotificationType, title, content, relatedType string, relatedID uint, url string) models.Notification {
	actorID := actor
	rid := relatedID
	return models.Notification{
		UserID:      to,
		ActorID:     &actorID,
		Type:        typ,
		Title:       utils.Truncate(title, notificationTitleMax),
		Content:     utils.Truncate(content, notificationContentMax),
		RelatedType: relatedType,
		RelatedID:   &rid,
		RelatedURL:  url,
	}
}

// NotificationService 通知收件箱
type NotificationService struct {
	db    *gorm.DB
	cache *utils.GlobalCache
}

func NewNotificationService(conn *gorm.DB, cache *utils.GlobalCache) *NotificationService {
	return &NotificationService{db: conn, cache: cache}
}

type NotificationQuery struct {
	UnreadOnly bool
	Type       string
	Page       int
	Size       int
}

type NotificationPage struct {
	Total       int64                 `json:"total"`
	UnreadCount int64                 `json:"unread_count"`
	Page        int                   `json:"page"`
	Size        int                   `json:"size"`
	Items       []models.Notification `json:"items"`
}

func validNotificationType(t string) bool {
	switch models.NotificationType(t) {
	case models.NotificationTypeReplyComment, models.NotificationTypeReplyUnderPost,
		models.NotificationTypeCommentPost, models.NotificationTypePostLiked,
		models.NotificationTypePostFavorited, models.NotificationTypeSystem:
		return true
	}
	return false
}

func (s *NotificationService) List(ctx context.Context, userID uint, q NotificationQuery) (*NotificationPage, error) {
	if q.Type != "" && !validNotificationType(q.Type) {
		return nil, apperr.InvalidInput("未知的通知类型: %s", q.Type)
	}

	query := s.db.WithContext(ctx).Model(&models.Notification{}).Where("user_id = ?", userID)
	if q.UnreadOnly {
		query = query.Where("is_read = ?", false)
	}
	if q.Type != "" {
		query = query.Where("type = ?", q.Type)
	}
	query = query.Session(&gorm.Session{})

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, apperr.FromStore(err, "")
	}

	items := make([]models.Notification, 0, q.Size)
	if err := query.Order("created_at DESC, id DESC").
		Offset((q.Page - 1) * q.Size).Limit(q.Size).
		Find(&items).Error; err != nil {
		return nil, apperr.FromStore(err, "")
	}

	unread, err := s.UnreadCount(ctx, userID)
	if err != nil {
		return nil, err
	}

	return &NotificationPage{Total: total, UnreadCount: unread, Page: q.Page, Size: q.Size, Items: items}, nil
}

// UnreadCount 未读数，短暂缓存
func (s *NotificationService) UnreadCount(ctx context.Context, userID uint) (int64, error) {
	key := unreadCacheKey(userID)
	if n, ok := s.cache.GetInt64(key); ok {
		return n, nil
	}

	var count int64
	if err := s.db.WithContext(ctx).Model(&models.Notification{}).
		Where("user_id = ? AND is_read = ?", userID, false).
		Count(&count).Error; err != nil {
		return 0, apperr.FromStore(err, "")
	}
	s.cache.Set(key, count, unreadCountTTL)
	return count, nil
}

func (s *NotificationService) owned(ctx context.Context, userID, id uint) (*models.Notification, error) {
	var note models.Notification
	if err := s.db.WithContext(ctx).First(&note, id).Error; err != nil {
		return nil, apperr.FromStore(err, "通知不存在")
	}
	if note.UserID != userID {
		return nil, apperr.NotPermitted("无权操作此通知")
	}
	return &note, nil
}

func (s *NotificationService) MarkRead(ctx context.Context, userID, id uint) error {
	note, err := s.owned(ctx, userID, id)
	if err != nil {
		return err
	}
	if !note.IsRead {
		if err := s.db.WithContext(ctx).Model(note).Update("is_read", true).Error; err != nil {
			return apperr.FromStore(err, "")
		}
		s.cache.Delete(unreadCacheKey(userID))
	}
	return nil
}

func (s *NotificationService) MarkAllRead(ctx context.Context, userID uint) (int64, error) {
	res := s.db.WithContext(ctx).Model(&models.Notification{}).
		Where("user_id = ? AND is_read = ?", userID, false).
		Update("is_read", true)
	if res.Error != nil {
		return 0, apperr.FromStore(res.Error, "")
	}
	s.cache.Delete(unreadCacheKey(userID))
	return res.RowsAffected, nil
}

func (s *NotificationService) Delete(ctx context.Context, userID, id uint) error {
	note, err := s.owned(ctx, userID, id)
	if err != nil {
		return err
	}
	if err := s.db.WithContext(ctx).Delete(note).Error; err != nil {
		return apperr.FromStore(err, "")
	}
	s.cache.Delete(unreadCacheKey(userID))
	return nil
}

// DeleteMany 删除已读通知；all 为 true 时清空收件箱
func (s *NotificationService) DeleteMany(ctx context.Context, userID uint, all bool) (int64, error) {
	query := s.db.WithContext(ctx).Where("user_id = ?", userID)
	if !all {
		query = query.Where("is_read = ?", true)
	}
	res := query.Delete(&models.Notification{})
	if res.Error != nil {
		return 0, apperr.FromStore(res.Error, "")
	}
	s.cache.Delete(unreadCacheKey(userID))
	log.Debug().Uint("user_id", userID).Bool("all", all).Int64("deleted", res.RowsAffected).Msg("notifications deleted")
	return res.RowsAffected, nil
}
