package services

import (
	"context"
	"v4corner/internal/apperr"
	"v4corner/internal/models"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type LikeResult struct {
	Liked      bool `json:"liked"`
	LikesCount int  `json:"likes_count"`
}

type LikeStatus struct {
	IsLiked    bool `json:"is_liked"`
	LikesCount int  `json:"likes_count"`
}

// LikeService 点赞。like_count 始终等于点赞行数。
type LikeService struct {
	db       *gorm.DB
	notifier *Notifier
	recount  Recounter
}

// recount may be nil; when set, posts whose transaction failed inside the
// store are queued for a recount.
func NewLikeService(conn *gorm.DB, notifier *Notifier, recount Recounter) *LikeService {
	return &LikeService{db: conn, notifier: notifier, recount: recount}
}

func (s *LikeService) afterFailure(postID uint, err error) {
	if s.recount != nil && apperr.CodeOf(err) == apperr.CodeDatabase {
		s.recount.ScheduleReconcile(postID)
	}
}

// lockPost 锁住文章行，计数器的读改写在锁内完成
func lockPost(tx *gorm.DB, postID uint) (models.Post, error) {
	var post models.Post
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&post, postID).Error
	return post, apperr.FromStore(err, "博客不存在")
}

func readLikeCount(tx *gorm.DB, postID uint) (int, error) {
	var n int
	err := tx.Model(&models.Post{}).Select("like_count").Where("id = ?", postID).Scan(&n).Error
	return n, err
}

// Like 点赞，重复点赞返回 AlreadyExists
func (s *LikeService) Like(ctx context.Context, postID, userID uint) (res *LikeResult, err error) {
	defer func() { observeMutation("like", err) }()

	var notes []models.Notification
	res = &LikeResult{Liked: true}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		post, err := lockPost(tx, postID)
		if err != nil {
			return err
		}
		var liker models.User
		if err := tx.First(&liker, userID).Error; err != nil {
			return apperr.FromStore(err, "用户不存在")
		}

		var exists int64
		if err := tx.Model(&models.Like{}).Where("user_id = ? AND post_id = ?", userID, postID).Count(&exists).Error; err != nil {
			return apperr.FromStore(err, "")
		}
		if exists > 0 {
			return apperr.AlreadyExists("已经点赞过了")
		}

		if err := tx.Create(&models.Like{UserID: userID, PostID: postID}).Error; err != nil {
			return apperr.FromStore(err, "")
		}
		if err := tx.Model(&models.Post{}).Where("id = ?", postID).
			UpdateColumn("like_count", gorm.Expr("like_count + ?", 1)).Error; err != nil {
			return apperr.FromStore(err, "")
		}

		if notes, err = s.notifier.PostLiked(tx, post, liker); err != nil {
			return apperr.FromStore(err, "")
		}

		res.LikesCount, err = readLikeCount(tx, postID)
		return apperr.FromStore(err, "")
	})
	if err != nil {
		s.afterFailure(postID, err)
		return nil, err
	}
	s.notifier.Delivered(notes)
	log.Debug().Uint("post_id", postID).Uint("user_id", userID).Int("likes_count", res.LikesCount).Msg("post liked")
	return res, nil
}

// Unlike 取消点赞，从未点赞过返回 NotFound
func (s *LikeService) Unlike(ctx context.Context, postID, userID uint) (res *LikeResult, err error) {
	defer func() { observeMutation("unlike", err) }()

	res = &LikeResult{Liked: false}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := lockPost(tx, postID); err != nil {
			return err
		}

		del := tx.Where("user_id = ? AND post_id = ?", userID, postID).Delete(&models.Like{})
		if del.Error != nil {
			return apperr.FromStore(del.Error, "")
		}
		if del.RowsAffected == 0 {
			return apperr.NotFound("尚未点赞")
		}

		if err := tx.Model(&models.Post{}).Where("id = ?", postID).
			UpdateColumn("like_count", gorm.Expr("like_count - ?", del.RowsAffected)).Error; err != nil {
			return apperr.FromStore(err, "")
		}

		var err error
		res.LikesCount, err = readLikeCount(tx, postID)
		return apperr.FromStore(err, "")
	})
	if err != nil {
		s.afterFailure(postID, err)
		return nil, err
	}
	return res, nil
}

// Status 返回查看者是否已点赞；viewerID 为 0 表示匿名
func (s *LikeService) Status(ctx context.Context, postID, viewerID uint) (*LikeStatus, error) {
	var post models.Post
	if err := s.db.WithContext(ctx).Select("id", "like_count").First(&post, postID).Error; err != nil {
		return nil, apperr.FromStore(err, "博客不存在")
	}
	status := &LikeStatus{LikesCount: post.LikeCount}
	if viewerID != 0 {
		var n int64
		if err := s.db.WithContext(ctx).Model(&models.Like{}).
			Where("user_id = ? AND post_id = ?", viewerID, postID).Count(&n).Error; err != nil {
			return nil, apperr.FromStore(err, "")
		}
		status.IsLiked = n > 0
	}
	return status, nil
}
