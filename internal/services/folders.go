package services

import (
	"context"
	"sort"
	"strings"
	"time"
	"unicode/utf8"
	"v4corner/internal/apperr"
	"v4corner/internal/models"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const folderNameMax = 50

type FolderView struct {
	ID             uint      `json:"id"`
	Name           string    `json:"name"`
	IsPublic       bool      `json:"is_public"`
	FavoritesCount int64     `json:"favorites_count"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// FolderService 收藏夹管理
type FolderService struct {
	db *gorm.DB
}

func NewFolderService(conn *gorm.DB) *FolderService {
	return &FolderService{db: conn}
}

func normalizeFolderName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", apperr.InvalidInput("收藏夹名称不能为空")
	}
	if utf8.RuneCountInString(name) > folderNameMax {
		return "", apperr.InvalidInput("收藏夹名称不能超过%d个字符", folderNameMax)
	}
	return name, nil
}

func nameTaken(tx *gorm.DB, ownerID uint, name string, except uint) (bool, error) {
	var n int64
	err := tx.Model(&models.FavoriteFolder{}).
		Where("user_id = ? AND name = ? AND id <> ?", ownerID, name, except).
		Count(&n).Error
	return n > 0, err
}

// Create 新建收藏夹，isPublic 为 nil 时默认公开
func (s *FolderService) Create(ctx context.Context, ownerID uint, name string, isPublic *bool) (view *FolderView, err error) {
	defer func() { observeMutation("folder_create", err) }()

	name, err = normalizeFolderName(name)
	if err != nil {
		return nil, err
	}
	folder := models.FavoriteFolder{UserID: ownerID, Name: name, IsPublic: true}
	if isPublic != nil {
		folder.IsPublic = *isPublic
	}

	conn := s.db.WithContext(ctx)
	taken, err := nameTaken(conn, ownerID, name, 0)
	if err != nil {
		return nil, apperr.FromStore(err, "")
	}
	if taken {
		return nil, apperr.AlreadyExists("收藏夹名称已存在")
	}
	// 并发创建同名收藏夹时由唯一索引兜底
	if err := conn.Create(&folder).Error; err != nil {
		return nil, apperr.FromStore(err, "")
	}
	return &FolderView{
		ID:        folder.ID,
		Name:      folder.Name,
		IsPublic:  folder.IsPublic,
		CreatedAt: folder.CreatedAt,
		UpdatedAt: folder.UpdatedAt,
	}, nil
}

// List 返回用户的全部收藏夹，新建的在前
func (s *FolderService) List(ctx context.Context, ownerID uint) ([]FolderView, error) {
	counts := s.db.Model(&models.Favorite{}).
		Select("folder_id, COUNT(*) AS cnt").
		Group("folder_id")

	views := make([]FolderView, 0)
	err := s.db.WithContext(ctx).Table("favorite_folders AS f").
		Select("f.id, f.name, f.is_public, f.created_at, f.updated_at, COALESCE(fc.cnt, 0) AS favorites_count").
		Joins("LEFT JOIN (?) AS fc ON fc.folder_id = f.id", counts).
		Where("f.user_id = ?", ownerID).
		Order("f.created_at DESC, f.id DESC").
		Scan(&views).Error
	if err != nil {
		return nil, apperr.FromStore(err, "")
	}
	return views, nil
}

func (s *FolderService) get(ctx context.Context, folderID uint) (*FolderView, error) {
	var folder models.FavoriteFolder
	if err := s.db.WithContext(ctx).First(&folder, folderID).Error; err != nil {
		return nil, apperr.FromStore(err, "收藏夹不存在")
	}
	var n int64
	if err := s.db.WithContext(ctx).Model(&models.Favorite{}).Where("folder_id = ?", folderID).Count(&n).Error; err != nil {
		return nil, apperr.FromStore(err, "")
	}
	return &FolderView{
		ID:             folder.ID,
		Name:           folder.Name,
		IsPublic:       folder.IsPublic,
		FavoritesCount: n,
		CreatedAt:      folder.CreatedAt,
		UpdatedAt:      folder.UpdatedAt,
	}, nil
}

// Update 修改名称或公开状态，nil 表示不修改
func (s *FolderService) Update(ctx context.Context, ownerID, folderID uint, name *string, isPublic *bool) (view *FolderView, err error) {
	defer func() { observeMutation("folder_update", err) }()

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var folder models.FavoriteFolder
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&folder, folderID).Error; err != nil {
			return apperr.FromStore(err, "收藏夹不存在")
		}
		if folder.UserID != ownerID {
			return apperr.NotPermitted("无权修改此收藏夹")
		}

		updates := map[string]interface{}{}
		if name != nil {
			n, err := normalizeFolderName(*name)
			if err != nil {
				return err
			}
			taken, err := nameTaken(tx, ownerID, n, folder.ID)
			if err != nil {
				return apperr.FromStore(err, "")
			}
			if taken {
				return apperr.AlreadyExists("收藏夹名称已存在")
			}
			updates["name"] = n
		}
		if isPublic != nil {
			updates["is_public"] = *isPublic
		}
		if len(updates) == 0 {
			return nil
		}
		return apperr.FromStore(tx.Model(&folder).Updates(updates).Error, "")
	})
	if err != nil {
		return nil, err
	}
	return s.get(ctx, folderID)
}

// Delete 删除收藏夹及其中的收藏。失去最后一次收藏的 (用户, 文章)
// 对应文章的 favorite_count 减一。
func (s *FolderService) Delete(ctx context.Context, ownerID, folderID uint) (err error) {
	defer func() { observeMutation("folder_delete", err) }()

	var decremented int
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// 锁住收藏夹行，并发的收藏插入（外键检查）会等待本事务结束
		var folder models.FavoriteFolder
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&folder, folderID).Error; err != nil {
			return apperr.FromStore(err, "收藏夹不存在")
		}
		if folder.UserID != ownerID {
			return apperr.NotPermitted("无权删除此收藏夹")
		}

		// 只删除读到的行；读之后出现的行留给下一轮处理
		for {
			n, err := s.removePlacements(tx, folderID)
			if err != nil {
				return err
			}
			if n < 0 {
				break
			}
			decremented += n
		}

		return apperr.FromStore(tx.Delete(&folder).Error, "")
	})
	if err != nil {
		return err
	}
	log.Info().Uint("folder_id", folderID).Uint("user_id", ownerID).Int("posts_uncounted", decremented).Msg("folder deleted")
	return nil
}

// removePlacements deletes the folder's current placements by id and
// decrements every post whose (user, post) pair lost its last placement.
// It returns -1 once the folder is empty.
func (s *FolderService) removePlacements(tx *gorm.DB, folderID uint) (int, error) {
	var placed []models.Favorite
	if err := tx.Select("id", "user_id", "post_id").
		Where("folder_id = ?", folderID).Order("id").
		Find(&placed).Error; err != nil {
		return 0, apperr.FromStore(err, "")
	}
	if len(placed) == 0 {
		return -1, nil
	}

	// 按 id 顺序加锁，避免与其他收藏操作死锁
	ids := make([]uint, 0, len(placed))
	postIDs := make([]uint, 0, len(placed))
	seen := map[uint]bool{}
	for _, f := range placed {
		ids = append(ids, f.ID)
		if !seen[f.PostID] {
			seen[f.PostID] = true
			postIDs = append(postIDs, f.PostID)
		}
	}
	sort.Slice(postIDs, func(i, j int) bool { return postIDs[i] < postIDs[j] })
	for _, id := range postIDs {
		if _, err := lockPost(tx, id); err != nil {
			return 0, err
		}
	}

	if err := tx.Where("id IN ?", ids).Delete(&models.Favorite{}).Error; err != nil {
		return 0, apperr.FromStore(err, "")
	}
	decremented := 0
	for _, f := range placed {
		remaining, err := countPlacements(tx, f.UserID, f.PostID)
		if err != nil {
			return 0, apperr.FromStore(err, "")
		}
		if remaining == 0 {
			if err := decrementFavoriteCount(tx, f.PostID); err != nil {
				return 0, apperr.FromStore(err, "")
			}
			decremented++
		}
	}
	return decremented, nil
}
