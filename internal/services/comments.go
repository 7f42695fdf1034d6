package services

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode/utf8"
	"v4corner/internal/apperr"
	"v4corner/internal/config"
	"v4corner/internal/models"
	"v4corner/internal/ratelimit"
	"v4corner/internal/utils"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// CommentSort 评论排序方式
type CommentSort string

const (
	SortTimeAsc  CommentSort = "asc"
	SortTimeDesc CommentSort = "desc"
	SortHot      CommentSort = "hot"
)

// ParseCommentSort accepts asc, desc, hot and the long time-ascending /
// time-descending forms. Empty means asc.
func ParseCommentSort(s string) (CommentSort, error) {
	switch s {
	case "", "asc", "time-ascending":
		return SortTimeAsc, nil
	case "desc", "time-descending":
		return SortTimeDesc, nil
	case "hot":
		return SortHot, nil
	}
	return "", apperr.InvalidInput("无效的排序方式，可选值: asc, desc, hot")
}

// CommentView 返回给调用方的评论
type CommentView struct {
	ID          uint      `json:"id"`
	PostID      uint      `json:"blog_id"`
	Content     string    `json:"content"`
	ContentHTML string    `json:"content_html"`
	Author      UserBrief `json:"author"`
	// ParentID and ParentAuthor are nil for root comments and for replies
	// whose parent has been deleted.
	ParentID     *uint     `json:"parent_id"`
	ParentAuthor *string   `json:"parent_author"`
	RepliesCount int64     `json:"replies_count"`
	IsDeleted    bool      `json:"is_deleted"`
	IsAuthor     bool      `json:"is_author"`
	CanEdit      bool      `json:"can_edit"`
	CanDelete    bool      `json:"can_delete"`
	TimeDisplay  string    `json:"time_display"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

type CommentPage struct {
	Total int64         `json:"total"`
	Page  int           `json:"page"`
	Size  int           `json:"size"`
	Items []CommentView `json:"items"`
}

type CommentQuery struct {
	Sort CommentSort
	Page int
	Size int
}

// commentRow is one scanned row of the comment listing query.
type commentRow struct {
	ID              uint
	PostID          uint
	UserID          uint
	ParentID        *uint
	Content         string
	IsDeleted       bool
	CreatedAt       time.Time
	UpdatedAt       time.Time
	RepliesCount    int64
	AuthorUsername  string
	AuthorNickname  string
	AuthorAvatarURL string
	ParentDeleted   *bool
	ParentUsername  *string
	ParentNickname  *string
}

// CommentService 评论树：创建、编辑、级联软删除与列表
type CommentService struct {
	db       *gorm.DB
	gate     ratelimit.Gate
	notifier *Notifier
	cfg      config.CommentConfig
	now      func() time.Time
}

func NewCommentService(conn *gorm.DB, gate ratelimit.Gate, notifier *Notifier, cfg config.CommentConfig) *CommentService {
	return &CommentService{
		db:       conn,
		gate:     gate,
		notifier: notifier,
		cfg:      cfg,
		now:      time.Now,
	}
}

func (s *CommentService) validateContent(content string) (string, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return "", apperr.InvalidInput("评论内容不能为空")
	}
	if utf8.RuneCountInString(content) > s.cfg.MaxLength {
		return "", apperr.InvalidInput("评论内容不能超过%d个字符", s.cfg.MaxLength)
	}
	return content, nil
}

// Create 发表评论。检查顺序：内容、每日上限、频率限制，然后在事务内
// 校验父评论与层级、写入评论并生成通知。
func (s *CommentService) Create(ctx context.Context, postID, authorID uint, content string, parentID *uint) (view *CommentView, err error) {
	defer func() { observeMutation("comment_create", err) }()

	content, err = s.validateContent(content)
	if err != nil {
		return nil, err
	}
	if err = checkDailyCommentQuota(s.db.WithContext(ctx), authorID, s.cfg.DailyLimit, s.now()); err != nil {
		return nil, err
	}
	if err = s.gate.Allow(authorID); err != nil {
		return nil, err
	}

	var (
		post         models.Post
		comment      models.Comment
		author       models.User
		parentAuthor *models.User
		notes        []models.Notification
	)
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// 共享锁：与同一篇文章上的级联删除互斥
		if err := tx.Clauses(clause.Locking{Strength: "SHARE"}).First(&post, postID).Error; err != nil {
			return apperr.FromStore(err, "博客不存在")
		}
		if err := tx.First(&author, authorID).Error; err != nil {
			return apperr.FromStore(err, "用户不存在")
		}

		var parentAuthorID *uint
		if parentID != nil {
			var parent models.Comment
			if err := tx.Preload("User").First(&parent, *parentID).Error; err != nil {
				return apperr.FromStore(err, "父评论不存在")
			}
			if parent.PostID != postID || parent.IsDeleted {
				return apperr.NotFound("父评论不存在")
			}
			depth, err := s.depthOf(tx, parent)
			if err != nil {
				return apperr.FromStore(err, "")
			}
			if depth+1 > s.cfg.MaxDepth {
				return apperr.DepthExceeded(s.cfg.MaxDepth + 1)
			}
			parentAuthorID = &parent.UserID
			parentAuthor = &parent.User
		}

		comment = models.Comment{
			PostID:   postID,
			UserID:   authorID,
			ParentID: parentID,
			Content:  content,
		}
		if err := tx.Create(&comment).Error; err != nil {
			return apperr.FromStore(err, "")
		}

		var err error
		notes, err = s.notifier.CommentCreated(tx, CommentEvent{
			Post:           post,
			Comment:        comment,
			Commenter:      author,
			ParentAuthorID: parentAuthorID,
		})
		if err != nil {
			return apperr.FromStore(err, "")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.notifier.Delivered(notes)

	log.Info().Uint("comment_id", comment.ID).Uint("post_id", postID).Uint("user_id", authorID).
		Int("notifications", len(notes)).Msg("comment created")

	v := s.toView(commentRow{
		ID:              comment.ID,
		PostID:          comment.PostID,
		UserID:          comment.UserID,
		ParentID:        comment.ParentID,
		Content:         comment.Content,
		CreatedAt:       comment.CreatedAt,
		UpdatedAt:       comment.UpdatedAt,
		AuthorUsername:  author.Username,
		AuthorNickname:  author.Nickname,
		AuthorAvatarURL: author.AvatarURL,
	}, authorID, post.UserID)
	if parentAuthor != nil {
		name := parentAuthor.DisplayName()
		v.ParentAuthor = &name
	}
	return &v, nil
}

// depthOf walks parent pointers upward. The walk stops once it has gone
// past the configured maximum, so it never takes more than MaxDepth+1 hops.
func (s *CommentService) depthOf(tx *gorm.DB, c models.Comment) (int, error) {
	depth := 0
	next := c.ParentID
	for next != nil {
		depth++
		if depth > s.cfg.MaxDepth {
			break
		}
		var ancestor models.Comment
		err := tx.Select("id", "parent_id").First(&ancestor, *next).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			break
		}
		if err != nil {
			return 0, err
		}
		next = ancestor.ParentID
	}
	return depth, nil
}

// Edit 只有作者本人可以编辑未删除的评论
func (s *CommentService) Edit(ctx context.Context, commentID, editorID uint, content string) (view *CommentView, err error) {
	defer func() { observeMutation("comment_edit", err) }()

	content, err = s.validateContent(content)
	if err != nil {
		return nil, err
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var comment models.Comment
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&comment, commentID).Error; err != nil {
			return apperr.FromStore(err, "评论不存在")
		}
		if comment.IsDeleted {
			return apperr.NotFound("评论不存在")
		}
		if comment.UserID != editorID {
			return apperr.NotPermitted("只能编辑自己的评论")
		}
		if err := tx.Model(&comment).Update("content", content).Error; err != nil {
			return apperr.FromStore(err, "")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.Get(ctx, commentID, editorID)
}

// Delete 级联软删除，返回被标记删除的评论数。评论作者或博客作者可删除。
func (s *CommentService) Delete(ctx context.Context, commentID, requesterID uint) (deleted int, err error) {
	defer func() { observeMutation("comment_delete", err) }()

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var comment models.Comment
		if err := tx.First(&comment, commentID).Error; err != nil {
			return apperr.FromStore(err, "评论不存在")
		}

		// 排他锁：同一篇文章上的回复创建要么在此之前完成，要么等待并看到已删除的父评论
		var post models.Post
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&post, comment.PostID).Error; err != nil {
			return apperr.FromStore(err, "博客不存在")
		}
		if err := tx.First(&comment, commentID).Error; err != nil {
			return apperr.FromStore(err, "评论不存在")
		}
		if comment.IsDeleted {
			return apperr.NotFound("评论不存在")
		}
		if comment.UserID != requesterID && post.UserID != requesterID {
			return apperr.NotPermitted("无权删除此评论")
		}

		order, err := collectSubtree(tx, comment.ID)
		if err != nil {
			return apperr.FromStore(err, "")
		}
		for _, id := range order {
			res := tx.Model(&models.Comment{}).
				Where("id = ? AND is_deleted = ?", id, false).
				Update("is_deleted", true)
			if res.Error != nil {
				return apperr.FromStore(res.Error, "")
			}
			deleted += int(res.RowsAffected)
		}
		return nil
	})
	if err != nil {
		log.Warn().Err(err).Uint("comment_id", commentID).Msg("comment delete rolled back")
		return 0, err
	}

	cascadeSize.Observe(float64(deleted))
	log.Info().Uint("comment_id", commentID).Uint("user_id", requesterID).Int("deleted", deleted).Msg("comment deleted")
	return deleted, nil
}

// collectSubtree returns root and every live descendant, children before
// their parents. It walks an explicit stack in pre-order and reverses it.
func collectSubtree(tx *gorm.DB, root uint) ([]uint, error) {
	var preorder []uint
	seen := map[uint]bool{root: true}
	stack := []uint{root}

	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		preorder = append(preorder, id)

		var children []uint
		if err := tx.Model(&models.Comment{}).
			Where("parent_id = ? AND is_deleted = ?", id, false).
			Order("id").
			Pluck("id", &children).Error; err != nil {
			return nil, err
		}
		for _, child := range children {
			if !seen[child] {
				seen[child] = true
				stack = append(stack, child)
			}
		}
	}

	for i, j := 0, len(preorder)-1; i < j; i, j = i+1, j-1 {
		preorder[i], preorder[j] = preorder[j], preorder[i]
	}
	return preorder, nil
}

// Get 返回单条评论；已删除的评论内容替换为占位文字
func (s *CommentService) Get(ctx context.Context, commentID, viewerID uint) (*CommentView, error) {
	var rows []commentRow
	if err := s.listQuery(ctx).Where("c.id = ?", commentID).Limit(1).Scan(&rows).Error; err != nil {
		return nil, apperr.FromStore(err, "")
	}
	if len(rows) == 0 {
		return nil, apperr.NotFound("评论不存在")
	}

	var post models.Post
	if err := s.db.WithContext(ctx).Select("id", "user_id").First(&post, rows[0].PostID).Error; err != nil {
		return nil, apperr.FromStore(err, "博客不存在")
	}
	v := s.toView(rows[0], viewerID, post.UserID)
	return &v, nil
}

// List 列出文章下未删除的评论
func (s *CommentService) List(ctx context.Context, postID uint, q CommentQuery, viewerID uint) (*CommentPage, error) {
	var post models.Post
	if err := s.db.WithContext(ctx).Select("id", "user_id").First(&post, postID).Error; err != nil {
		return nil, apperr.FromStore(err, "博客不存在")
	}

	var total int64
	if err := s.db.WithContext(ctx).Model(&models.Comment{}).
		Where("post_id = ? AND is_deleted = ?", postID, false).
		Count(&total).Error; err != nil {
		return nil, apperr.FromStore(err, "")
	}

	query := s.listQuery(ctx).Where("c.post_id = ? AND c.is_deleted = ?", postID, false)
	switch q.Sort {
	case SortTimeDesc:
		query = query.Order("c.created_at DESC, c.id DESC")
	case SortHot:
		// 回复数实时统计，不读缓存
		query = query.Order("replies_count DESC, c.created_at DESC, c.id DESC")
	default:
		query = query.Order("c.created_at ASC, c.id ASC")
	}

	var rows []commentRow
	if err := query.Offset((q.Page - 1) * q.Size).Limit(q.Size).Scan(&rows).Error; err != nil {
		return nil, apperr.FromStore(err, "")
	}

	items := make([]CommentView, 0, len(rows))
	for _, row := range rows {
		items = append(items, s.toView(row, viewerID, post.UserID))
	}
	return &CommentPage{Total: total, Page: q.Page, Size: q.Size, Items: items}, nil
}

// listQuery joins each comment with its author, its live reply count and
// its parent's author.
func (s *CommentService) listQuery(ctx context.Context) *gorm.DB {
	conn := s.db.WithContext(ctx)
	replyCounts := conn.Model(&models.Comment{}).
		Select("parent_id, COUNT(*) AS cnt").
		Where("parent_id IS NOT NULL AND is_deleted = ?", false).
		Group("parent_id")

	return conn.Table("comments AS c").
		Select(`c.id, c.post_id, c.user_id, c.parent_id, c.content, c.is_deleted, c.created_at, c.updated_at,
			COALESCE(rc.cnt, 0) AS replies_count,
			u.username AS author_username, u.nickname AS author_nickname, u.avatar_url AS author_avatar_url,
			p.is_deleted AS parent_deleted, pu.username AS parent_username, pu.nickname AS parent_nickname`).
		Joins("JOIN users AS u ON u.id = c.user_id").
		Joins("LEFT JOIN (?) AS rc ON rc.parent_id = c.id", replyCounts).
		Joins("LEFT JOIN comments AS p ON p.id = c.parent_id").
		Joins("LEFT JOIN users AS pu ON pu.id = p.user_id")
}

func (s *CommentService) toView(row commentRow, viewerID, postAuthorID uint) CommentView {
	v := CommentView{
		ID:      row.ID,
		PostID:  row.PostID,
		Content: row.Content,
		Author: UserBrief{
			ID:        row.UserID,
			Username:  row.AuthorUsername,
			Nickname:  row.AuthorNickname,
			AvatarURL: row.AuthorAvatarURL,
		},
		RepliesCount: row.RepliesCount,
		IsDeleted:    row.IsDeleted,
		TimeDisplay:  utils.TimeAgo(row.CreatedAt, s.now()),
		CreatedAt:    row.CreatedAt,
		UpdatedAt:    row.UpdatedAt,
	}
	if row.IsDeleted {
		v.Content = models.DeletedCommentPlaceholder
	}
	v.ContentHTML = utils.RenderMarkdown(v.Content)

	// 父评论已删除时按顶级评论展示
	if row.ParentID != nil && row.ParentDeleted != nil && !*row.ParentDeleted {
		v.ParentID = row.ParentID
		name := ""
		if row.ParentNickname != nil && *row.ParentNickname != "" {
			name = *row.ParentNickname
		} else if row.ParentUsername != nil {
			name = *row.ParentUsername
		}
		v.ParentAuthor = &name
	}

	if viewerID != 0 {
		v.IsAuthor = viewerID == postAuthorID
		v.CanEdit = viewerID == row.UserID && !row.IsDeleted
		v.CanDelete = (viewerID == row.UserID || viewerID == postAuthorID) && !row.IsDeleted
	}
	return v
}
