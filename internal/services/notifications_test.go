package services

import (
	"testing"
	"v4corner/internal/apperr"
	"v4corner/internal/models"
	"v4corner/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedInbox(t *testing.T, f *fixture) (models.User, models.User) {
	t.Helper()
	ctx := t.Context()
	author := testutil.CreateUser(t, f.db, "author")
	fan := testutil.CreateUser(t, f.db, "fan")
	post := testutil.CreatePost(t, f.db, author)

	_, err := f.likes.Like(ctx, post.ID, fan.ID)
	require.NoError(t, err)
	_, err = f.comments.Create(ctx, post.ID, fan.ID, "nice post", nil)
	require.NoError(t, err)
	_, err = f.favorites.Favorite(ctx, post.ID, fan.ID, f.folder(t, fan, "best", true))
	require.NoError(t, err)
	return author, fan
}

func TestInboxListAndFilters(t *testing.T) {
	f := newFixture(t)
	ctx := t.Context()
	author, _ := seedInbox(t, f)

	page, err := f.inbox.List(ctx, author.ID, NotificationQuery{Page: 1, Size: 20})
	require.NoError(t, err)
	assert.Equal(t, int64(3), page.Total)
	assert.Equal(t, int64(3), page.UnreadCount)
	require.Len(t, page.Items, 3)
	assert.Equal(t, models.NotificationTypePostFavorited, page.Items[0].Type)

	page, err = f.inbox.List(ctx, author.ID, NotificationQuery{Type: "blog_liked", Page: 1, Size: 20})
	require.NoError(t, err)
	assert.Equal(t, int64(1), page.Total)

	_, err = f.inbox.List(ctx, author.ID, NotificationQuery{Type: "bogus", Page: 1, Size: 20})
	assert.ErrorIs(t, err, apperr.ErrInvalidInput)
}

func TestInboxReadAndDelete(t *testing.T) {
	f := newFixture(t)
	ctx := t.Context()
	author, fan := seedInbox(t, f)
	notes := f.notificationsFor(t, author.ID)
	require.Len(t, notes, 3)

	unread, err := f.inbox.UnreadCount(ctx, author.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(3), unread)

	err = f.inbox.MarkRead(ctx, fan.ID, notes[0].ID)
	assert.ErrorIs(t, err, apperr.ErrNotPermitted)
	err = f.inbox.MarkRead(ctx, author.ID, 9999)
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	require.NoError(t, f.inbox.MarkRead(ctx, author.ID, notes[0].ID))
	unread, err = f.inbox.UnreadCount(ctx, author.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), unread, "cache must be invalidated")

	page, err := f.inbox.List(ctx, author.ID, NotificationQuery{UnreadOnly: true, Page: 1, Size: 20})
	require.NoError(t, err)
	assert.Equal(t, int64(2), page.Total)

	// only read notifications are removed by default
	deleted, err := f.inbox.DeleteMany(ctx, author.ID, false)
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	marked, err := f.inbox.MarkAllRead(ctx, author.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), marked)
	unread, err = f.inbox.UnreadCount(ctx, author.ID)
	require.NoError(t, err)
	assert.Zero(t, unread)

	require.NoError(t, f.inbox.Delete(ctx, author.ID, notes[1].ID))
	err = f.inbox.Delete(ctx, author.ID, notes[1].ID)
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	deleted, err = f.inbox.DeleteMany(ctx, author.ID, true)
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)
}

func TestNewNotificationInvalidatesUnreadCache(t *testing.T) {
	f := newFixture(t)
	ctx := t.Context()
	author := testutil.CreateUser(t, f.db, "author")
	fan := testutil.CreateUser(t, f.db, "fan")
	post := testutil.CreatePost(t, f.db, author)

	n, err := f.inbox.UnreadCount(ctx, author.ID)
	require.NoError(t, err)
	assert.Zero(t, n)

	_, err = f.likes.Like(ctx, post.ID, fan.ID)
	require.NoError(t, err)

	n, err = f.inbox.UnreadCount(ctx, author.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestNotificationTextIsTruncated(t *testing.T) {
	long := make([]rune, 300)
	for i := range long {
		long[i] = 'x'
	}
	n := newNotification(1, 2, models.NotificationTypeSystem, string(long), string(long)+string(long)+string(long)+string(long), models.RelatedTypePost, 3, "/blogs/3")
	assert.Equal(t, notificationTitleMax, len([]rune(n.Title)))
	assert.Equal(t, notificationContentMax, len([]rune(n.Content)))
}
