package services

import (
	"context"
	"time"
	"v4corner/internal/apperr"
	"v4corner/internal/models"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

type FavoriteResult struct {
	Favorited      bool `json:"favorited"`
	FavoritesCount int  `json:"favorites_count"`
}

type FavoriteStatus struct {
	IsFavorited    bool        `json:"is_favorited"`
	Folders        []FolderRef `json:"folders"`
	FavoritesCount int         `json:"favorites_count"`
}

type FavoriteItem struct {
	Post        PostSummary `json:"blog"`
	Folders     []FolderRef `json:"folders"`
	FavoritedAt time.Time   `json:"favorited_at"`
	IsLiked     bool        `json:"is_liked"`
	IsFavorited bool        `json:"is_favorited"`
}

type FavoritePage struct {
	Total int64          `json:"total"`
	Page  int            `json:"page"`
	Size  int            `json:"size"`
	Items []FavoriteItem `json:"items"`
}

type FolderFavoritePage struct {
	Folder FolderView     `json:"folder"`
	Total  int64          `json:"total"`
	Page   int            `json:"page"`
	Size   int            `json:"size"`
	Items  []FavoriteItem `json:"items"`
}

// FavoriteService 收藏。favorite_count 统计的是收藏过该文章的不同用户数，
// 与收藏行数无关。
type FavoriteService struct {
	db       *gorm.DB
	notifier *Notifier
	recount  Recounter
}

// recount may be nil; when set, posts whose transaction failed inside the
// store are queued for a recount.
func NewFavoriteService(conn *gorm.DB, notifier *Notifier, recount Recounter) *FavoriteService {
	return &FavoriteService{db: conn, notifier: notifier, recount: recount}
}

func (s *FavoriteService) afterFailure(postID uint, err error) {
	if s.recount != nil && apperr.CodeOf(err) == apperr.CodeDatabase {
		s.recount.ScheduleReconcile(postID)
	}
}

// countPlacements 用户对某篇文章的收藏行数（跨所有收藏夹）
func countPlacements(tx *gorm.DB, userID, postID uint) (int64, error) {
	var n int64
	err := tx.Model(&models.Favorite{}).Where("user_id = ? AND post_id = ?", userID, postID).Count(&n).Error
	return n, err
}

func incrementFavoriteCount(tx *gorm.DB, postID uint) error {
	return tx.Model(&models.Post{}).Where("id = ?", postID).
		UpdateColumn("favorite_count", gorm.Expr("favorite_count + ?", 1)).Error
}

func decrementFavoriteCount(tx *gorm.DB, postID uint) error {
	return tx.Model(&models.Post{}).Where("id = ?", postID).
		UpdateColumn("favorite_count", gorm.Expr("favorite_count - ?", 1)).Error
}

func readFavoriteCount(tx *gorm.DB, postID uint) (int, error) {
	var n int
	err := tx.Model(&models.Post{}).Select("favorite_count").Where("id = ?", postID).Scan(&n).Error
	return n, err
}

// Favorite 把文章放进收藏夹。他人的收藏夹必须是公开的。
// 用户第一次收藏该文章时计数加一并通知作者。
func (s *FavoriteService) Favorite(ctx context.Context, postID, userID, folderID uint) (res *FavoriteResult, err error) {
	defer func() { observeMutation("favorite", err) }()

	var notes []models.Notification
	res = &FavoriteResult{Favorited: true}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// 文章行锁让"是否首次收藏"的判断与计数更新串行化
		post, err := lockPost(tx, postID)
		if err != nil {
			return err
		}

		var folder models.FavoriteFolder
		if err := tx.First(&folder, folderID).Error; err != nil {
			return apperr.FromStore(err, "收藏夹不存在")
		}
		if folder.UserID != userID && !folder.IsPublic {
			return apperr.NotPermitted("无权使用此收藏夹")
		}

		var user models.User
		if err := tx.First(&user, userID).Error; err != nil {
			return apperr.FromStore(err, "用户不存在")
		}

		var inFolder int64
		if err := tx.Model(&models.Favorite{}).
			Where("user_id = ? AND post_id = ? AND folder_id = ?", userID, postID, folderID).
			Count(&inFolder).Error; err != nil {
			return apperr.FromStore(err, "")
		}
		if inFolder > 0 {
			return apperr.AlreadyExists("已经收藏到该收藏夹")
		}

		prior, err := countPlacements(tx, userID, postID)
		if err != nil {
			return apperr.FromStore(err, "")
		}
		if err := tx.Create(&models.Favorite{UserID: userID, PostID: postID, FolderID: folderID}).Error; err != nil {
			return apperr.FromStore(err, "")
		}

		if prior == 0 {
			if err := incrementFavoriteCount(tx, postID); err != nil {
				return apperr.FromStore(err, "")
			}
			if notes, err = s.notifier.PostFavorited(tx, post, user, folder); err != nil {
				return apperr.FromStore(err, "")
			}
		}

		res.FavoritesCount, err = readFavoriteCount(tx, postID)
		return apperr.FromStore(err, "")
	})
	if err != nil {
		s.afterFailure(postID, err)
		return nil, err
	}
	s.notifier.Delivered(notes)
	log.Debug().Uint("post_id", postID).Uint("user_id", userID).Uint("folder_id", folderID).
		Int("favorites_count", res.FavoritesCount).Msg("post favorited")
	return res, nil
}

// Unfavorite 取消收藏。folderID 为 nil 时移除用户对该文章的全部收藏。
// 移除后不再有任何收藏行时计数减一。
func (s *FavoriteService) Unfavorite(ctx context.Context, postID, userID uint, folderID *uint) (res *FavoriteResult, err error) {
	defer func() { observeMutation("unfavorite", err) }()

	res = &FavoriteResult{}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := lockPost(tx, postID); err != nil {
			return err
		}

		query := tx.Where("user_id = ? AND post_id = ?", userID, postID)
		if folderID != nil {
			query = query.Where("folder_id = ?", *folderID)
		}
		del := query.Delete(&models.Favorite{})
		if del.Error != nil {
			return apperr.FromStore(del.Error, "")
		}
		if del.RowsAffected == 0 {
			return apperr.NotFound("尚未收藏")
		}

		remaining, err := countPlacements(tx, userID, postID)
		if err != nil {
			return apperr.FromStore(err, "")
		}
		if remaining == 0 {
			if err := decrementFavoriteCount(tx, postID); err != nil {
				return apperr.FromStore(err, "")
			}
		}
		res.Favorited = remaining > 0

		res.FavoritesCount, err = readFavoriteCount(tx, postID)
		return apperr.FromStore(err, "")
	})
	if err != nil {
		s.afterFailure(postID, err)
		return nil, err
	}
	return res, nil
}

// Status 查看者是否收藏、收藏在哪些收藏夹
func (s *FavoriteService) Status(ctx context.Context, postID, viewerID uint) (*FavoriteStatus, error) {
	var post models.Post
	if err := s.db.WithContext(ctx).Select("id", "favorite_count").First(&post, postID).Error; err != nil {
		return nil, apperr.FromStore(err, "博客不存在")
	}
	status := &FavoriteStatus{Folders: []FolderRef{}, FavoritesCount: post.FavoriteCount}
	if viewerID == 0 {
		return status, nil
	}

	byPost, err := s.foldersFor(ctx, viewerID, []uint{postID})
	if err != nil {
		return nil, err
	}
	if refs := byPost[postID]; len(refs) > 0 {
		status.IsFavorited = true
		status.Folders = refs
	}
	return status, nil
}

// foldersFor maps each post to the folders the user placed it in.
func (s *FavoriteService) foldersFor(ctx context.Context, userID uint, postIDs []uint) (map[uint][]FolderRef, error) {
	var rows []struct {
		PostID   uint
		FolderID uint
		Name     string
	}
	err := s.db.WithContext(ctx).Table("favorites AS fv").
		Select("fv.post_id, fv.folder_id, f.name").
		Joins("JOIN favorite_folders AS f ON f.id = fv.folder_id").
		Where("fv.user_id = ? AND fv.post_id IN ?", userID, postIDs).
		Order("fv.id").
		Scan(&rows).Error
	if err != nil {
		return nil, apperr.FromStore(err, "")
	}
	out := make(map[uint][]FolderRef, len(postIDs))
	for _, r := range rows {
		out[r.PostID] = append(out[r.PostID], FolderRef{ID: r.FolderID, Name: r.Name})
	}
	return out, nil
}

func (s *FavoriteService) likedSet(ctx context.Context, userID uint, postIDs []uint) (map[uint]bool, error) {
	var liked []uint
	if err := s.db.WithContext(ctx).Model(&models.Like{}).
		Where("user_id = ? AND post_id IN ?", userID, postIDs).
		Pluck("post_id", &liked).Error; err != nil {
		return nil, apperr.FromStore(err, "")
	}
	set := make(map[uint]bool, len(liked))
	for _, id := range liked {
		set[id] = true
	}
	return set, nil
}

func (s *FavoriteService) postsByID(ctx context.Context, postIDs []uint) (map[uint]models.Post, error) {
	var posts []models.Post
	if err := s.db.WithContext(ctx).Preload("User").Where("id IN ?", postIDs).Find(&posts).Error; err != nil {
		return nil, apperr.FromStore(err, "")
	}
	out := make(map[uint]models.Post, len(posts))
	for _, p := range posts {
		out[p.ID] = p
	}
	return out, nil
}

// ListFavorites 用户的全部收藏，按文章去重，最近收藏的在前
func (s *FavoriteService) ListFavorites(ctx context.Context, userID uint, page, size int) (*FavoritePage, error) {
	conn := s.db.WithContext(ctx)

	var total int64
	if err := conn.Model(&models.Favorite{}).Where("user_id = ?", userID).
		Distinct("post_id").Count(&total).Error; err != nil {
		return nil, apperr.FromStore(err, "")
	}

	// id 单调递增，MAX(id) 即最近一次收藏
	var postIDs []uint
	if err := conn.Model(&models.Favorite{}).
		Select("post_id").
		Where("user_id = ?", userID).
		Group("post_id").
		Order("MAX(id) DESC").
		Offset((page - 1) * size).Limit(size).
		Pluck("post_id", &postIDs).Error; err != nil {
		return nil, apperr.FromStore(err, "")
	}

	result := &FavoritePage{Total: total, Page: page, Size: size, Items: []FavoriteItem{}}
	if len(postIDs) == 0 {
		return result, nil
	}

	var placements []models.Favorite
	if err := conn.Preload("Folder").
		Where("user_id = ? AND post_id IN ?", userID, postIDs).
		Order("id").Find(&placements).Error; err != nil {
		return nil, apperr.FromStore(err, "")
	}
	posts, err := s.postsByID(ctx, postIDs)
	if err != nil {
		return nil, err
	}
	liked, err := s.likedSet(ctx, userID, postIDs)
	if err != nil {
		return nil, err
	}

	folders := map[uint][]FolderRef{}
	latest := map[uint]time.Time{}
	for _, f := range placements {
		folders[f.PostID] = append(folders[f.PostID], FolderRef{ID: f.FolderID, Name: f.Folder.Name})
		if f.CreatedAt.After(latest[f.PostID]) {
			latest[f.PostID] = f.CreatedAt
		}
	}

	for _, id := range postIDs {
		post, ok := posts[id]
		if !ok {
			continue
		}
		result.Items = append(result.Items, FavoriteItem{
			Post:        summaryOf(post),
			Folders:     folders[id],
			FavoritedAt: latest[id],
			IsLiked:     liked[id],
			IsFavorited: true,
		})
	}
	return result, nil
}

// ListFolderFavorites 查看收藏夹内容；非公开收藏夹只有所有者能看
func (s *FavoriteService) ListFolderFavorites(ctx context.Context, viewerID, folderID uint, page, size int) (*FolderFavoritePage, error) {
	conn := s.db.WithContext(ctx)

	var folder models.FavoriteFolder
	if err := conn.First(&folder, folderID).Error; err != nil {
		return nil, apperr.FromStore(err, "收藏夹不存在")
	}
	if folder.UserID != viewerID && !folder.IsPublic {
		return nil, apperr.NotPermitted("该收藏夹未公开")
	}

	var total int64
	if err := conn.Model(&models.Favorite{}).Where("folder_id = ?", folderID).Count(&total).Error; err != nil {
		return nil, apperr.FromStore(err, "")
	}

	var placements []models.Favorite
	if err := conn.Preload("Post.User").
		Where("folder_id = ?", folderID).
		Order("created_at DESC, id DESC").
		Offset((page - 1) * size).Limit(size).
		Find(&placements).Error; err != nil {
		return nil, apperr.FromStore(err, "")
	}

	result := &FolderFavoritePage{
		Folder: FolderView{
			ID:             folder.ID,
			Name:           folder.Name,
			IsPublic:       folder.IsPublic,
			FavoritesCount: total,
			CreatedAt:      folder.CreatedAt,
			UpdatedAt:      folder.UpdatedAt,
		},
		Total: total,
		Page:  page,
		Size:  size,
		Items: make([]FavoriteItem, 0, len(placements)),
	}
	if len(placements) == 0 {
		return result, nil
	}

	postIDs := make([]uint, 0, len(placements))
	for _, f := range placements {
		postIDs = append(postIDs, f.PostID)
	}
	var (
		liked     = map[uint]bool{}
		favorited = map[uint][]FolderRef{}
	)
	if viewerID != 0 {
		var err error
		if liked, err = s.likedSet(ctx, viewerID, postIDs); err != nil {
			return nil, err
		}
		if favorited, err = s.foldersFor(ctx, viewerID, postIDs); err != nil {
			return nil, err
		}
	}

	for _, f := range placements {
		result.Items = append(result.Items, FavoriteItem{
			Post:        summaryOf(f.Post),
			Folders:     []FolderRef{{ID: folder.ID, Name: folder.Name}},
			FavoritedAt: f.CreatedAt,
			IsLiked:     liked[f.PostID],
			IsFavorited: len(favorited[f.PostID]) > 0,
		})
	}
	return result, nil
}
