package services

import (
	"testing"
	"v4corner/internal/config"
	"v4corner/internal/models"
	"v4corner/internal/ratelimit"
	"v4corner/internal/testutil"
	"v4corner/internal/utils"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type allowAll struct{}

func (allowAll) Allow(uint) error { return nil }

type fixture struct {
	db         *gorm.DB
	cache      *utils.GlobalCache
	notifier   *Notifier
	comments   *CommentService
	likes      *LikeService
	favorites  *FavoriteService
	folders    *FolderService
	inbox      *NotificationService
	reconciler *Reconciler
}

func newFixture(t *testing.T) *fixture {
	return newFixtureWith(t, config.Default().Comment, allowAll{})
}

func newFixtureWith(t *testing.T, cfg config.CommentConfig, gate ratelimit.Gate) *fixture {
	t.Helper()
	conn := testutil.NewDB(t)
	cache := utils.NewCache(100)
	notifier := NewNotifier(cache)
	reconciler := NewReconciler(conn, 3)
	return &fixture{
		db:         conn,
		cache:      cache,
		notifier:   notifier,
		comments:   NewCommentService(conn, gate, notifier, cfg),
		likes:      NewLikeService(conn, notifier, reconciler),
		favorites:  NewFavoriteService(conn, notifier, reconciler),
		folders:    NewFolderService(conn),
		inbox:      NewNotificationService(conn, cache),
		reconciler: reconciler,
	}
}

func (f *fixture) notificationsFor(t *testing.T, userID uint) []models.Notification {
	t.Helper()
	var notes []models.Notification
	require.NoError(t, f.db.Where("user_id = ?", userID).Order("id").Find(&notes).Error)
	return notes
}

func (f *fixture) folder(t *testing.T, owner models.User, name string, public bool) uint {
	t.Helper()
	v, err := f.folders.Create(t.Context(), owner.ID, name, &public)
	require.NoError(t, err)
	return v.ID
}

func ptr[T any](v T) *T { return &v }
