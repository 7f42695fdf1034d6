package services

import (
	"errors"
	"testing"
	"time"
	"v4corner/internal/apperr"
	"v4corner/internal/config"
	"v4corner/internal/models"
	"v4corner/internal/ratelimit"
	"v4corner/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func TestParseCommentSort(t *testing.T) {
	for in, want := range map[string]CommentSort{
		"":                SortTimeAsc,
		"asc":             SortTimeAsc,
		"time-ascending":  SortTimeAsc,
		"desc":            SortTimeDesc,
		"time-descending": SortTimeDesc,
		"hot":             SortHot,
	} {
		got, err := ParseCommentSort(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := ParseCommentSort("random")
	assert.ErrorIs(t, err, apperr.ErrInvalidInput)
}

func TestCommentThreadNotifications(t *testing.T) {
	f := newFixture(t)
	ctx := t.Context()
	a := testutil.CreateUser(t, f.db, "a")
	b := testutil.CreateUser(t, f.db, "b")
	c := testutil.CreateUser(t, f.db, "c")
	d := testutil.CreateUser(t, f.db, "d")
	post := testutil.CreatePost(t, f.db, a)

	root, err := f.comments.Create(ctx, post.ID, b.ID, "first!", nil)
	require.NoError(t, err)
	assert.Zero(t, root.RepliesCount)
	assert.Nil(t, root.ParentID)

	notesA := f.notificationsFor(t, a.ID)
	require.Len(t, notesA, 1)
	assert.Equal(t, models.NotificationTypeCommentPost, notesA[0].Type)
	assert.Equal(t, b.ID, *notesA[0].ActorID)

	reply, err := f.comments.Create(ctx, post.ID, c.ID, "agreed", &root.ID)
	require.NoError(t, err)
	require.NotNil(t, reply.ParentAuthor)
	assert.Equal(t, b.DisplayName(), *reply.ParentAuthor)

	notesB := f.notificationsFor(t, b.ID)
	require.Len(t, notesB, 1)
	assert.Equal(t, models.NotificationTypeReplyComment, notesB[0].Type)
	assert.Equal(t, models.RelatedTypeComment, notesB[0].RelatedType)

	notesA = f.notificationsFor(t, a.ID)
	require.Len(t, notesA, 2)
	assert.Equal(t, models.NotificationTypeReplyUnderPost, notesA[1].Type)
	assert.Contains(t, notesA[1].RelatedURL, "comment=")

	_, err = f.comments.Create(ctx, post.ID, d.ID, "too deep", &reply.ID)
	assert.ErrorIs(t, err, apperr.ErrDepthExceeded)
	assert.Empty(t, f.notificationsFor(t, c.ID))

	var count int64
	f.db.Model(&models.Comment{}).Where("post_id = ?", post.ID).Count(&count)
	assert.Equal(t, int64(2), count)
}

func TestReplyToPostAuthorNotifiesOnce(t *testing.T) {
	f := newFixture(t)
	ctx := t.Context()
	a := testutil.CreateUser(t, f.db, "a")
	b := testutil.CreateUser(t, f.db, "b")
	post := testutil.CreatePost(t, f.db, a)

	own, err := f.comments.Create(ctx, post.ID, a.ID, "my own post", nil)
	require.NoError(t, err)
	assert.Empty(t, f.notificationsFor(t, a.ID))

	_, err = f.comments.Create(ctx, post.ID, b.ID, "reply", &own.ID)
	require.NoError(t, err)

	notes := f.notificationsFor(t, a.ID)
	require.Len(t, notes, 1)
	assert.Equal(t, models.NotificationTypeReplyComment, notes[0].Type)
}

func TestDeeperTreesWhenConfigured(t *testing.T) {
	cfg := config.Default().Comment
	cfg.MaxDepth = 2
	f := newFixtureWith(t, cfg, allowAll{})
	ctx := t.Context()
	a := testutil.CreateUser(t, f.db, "a")
	post := testutil.CreatePost(t, f.db, a)

	c0, err := f.comments.Create(ctx, post.ID, a.ID, "0", nil)
	require.NoError(t, err)
	c1, err := f.comments.Create(ctx, post.ID, a.ID, "1", &c0.ID)
	require.NoError(t, err)
	c2, err := f.comments.Create(ctx, post.ID, a.ID, "2", &c1.ID)
	require.NoError(t, err)

	_, err = f.comments.Create(ctx, post.ID, a.ID, "3", &c2.ID)
	assert.ErrorIs(t, err, apperr.ErrDepthExceeded)
}

func TestCreateRejectsBadParentAndInput(t *testing.T) {
	f := newFixture(t)
	ctx := t.Context()
	a := testutil.CreateUser(t, f.db, "a")
	post := testutil.CreatePost(t, f.db, a)
	other := testutil.CreatePost(t, f.db, a)

	foreign, err := f.comments.Create(ctx, other.ID, a.ID, "elsewhere", nil)
	require.NoError(t, err)
	_, err = f.comments.Create(ctx, post.ID, a.ID, "x", &foreign.ID)
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	_, err = f.comments.Create(ctx, post.ID, a.ID, "x", ptr(uint(9999)))
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	root, err := f.comments.Create(ctx, post.ID, a.ID, "root", nil)
	require.NoError(t, err)
	_, err = f.comments.Delete(ctx, root.ID, a.ID)
	require.NoError(t, err)
	_, err = f.comments.Create(ctx, post.ID, a.ID, "late reply", &root.ID)
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	_, err = f.comments.Create(ctx, 9999, a.ID, "no post", nil)
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	_, err = f.comments.Create(ctx, post.ID, a.ID, "   ", nil)
	assert.ErrorIs(t, err, apperr.ErrInvalidInput)

	long := make([]rune, 2001)
	for i := range long {
		long[i] = '字'
	}
	_, err = f.comments.Create(ctx, post.ID, a.ID, string(long), nil)
	assert.ErrorIs(t, err, apperr.ErrInvalidInput)
}

func TestCreateRateGate(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	gate, err := ratelimit.NewMemoryGate(2*time.Second, 10)
	require.NoError(t, err)
	gate.WithClock(func() time.Time { return now })

	f := newFixtureWith(t, config.Default().Comment, gate)
	ctx := t.Context()
	a := testutil.CreateUser(t, f.db, "a")
	post := testutil.CreatePost(t, f.db, a)

	_, err = f.comments.Create(ctx, post.ID, a.ID, "one", nil)
	require.NoError(t, err)

	now = now.Add(time.Second)
	_, err = f.comments.Create(ctx, post.ID, a.ID, "two", nil)
	assert.ErrorIs(t, err, apperr.ErrRateLimited)

	// the rejected attempt moved the clock
	now = now.Add(1500 * time.Millisecond)
	_, err = f.comments.Create(ctx, post.ID, a.ID, "three", nil)
	assert.ErrorIs(t, err, apperr.ErrRateLimited)

	now = now.Add(2 * time.Second)
	_, err = f.comments.Create(ctx, post.ID, a.ID, "four", nil)
	assert.NoError(t, err)
}

func TestCreateDailyQuota(t *testing.T) {
	cfg := config.Default().Comment
	cfg.DailyLimit = 2
	f := newFixtureWith(t, cfg, allowAll{})
	ctx := t.Context()
	a := testutil.CreateUser(t, f.db, "a")
	post := testutil.CreatePost(t, f.db, a)

	for i := 0; i < 2; i++ {
		_, err := f.comments.Create(ctx, post.ID, a.ID, "hi", nil)
		require.NoError(t, err)
	}
	_, err := f.comments.Create(ctx, post.ID, a.ID, "hi", nil)
	assert.ErrorIs(t, err, apperr.ErrQuotaExceeded)
}

func TestDeleteCascades(t *testing.T) {
	cfg := config.Default().Comment
	cfg.MaxDepth = 2
	f := newFixtureWith(t, cfg, allowAll{})
	ctx := t.Context()
	a := testutil.CreateUser(t, f.db, "a")
	b := testutil.CreateUser(t, f.db, "b")
	post := testutil.CreatePost(t, f.db, a)

	root, err := f.comments.Create(ctx, post.ID, b.ID, "root", nil)
	require.NoError(t, err)
	r1, err := f.comments.Create(ctx, post.ID, a.ID, "r1", &root.ID)
	require.NoError(t, err)
	_, err = f.comments.Create(ctx, post.ID, b.ID, "r1.1", &r1.ID)
	require.NoError(t, err)
	_, err = f.comments.Create(ctx, post.ID, a.ID, "r2", &root.ID)
	require.NoError(t, err)
	sibling, err := f.comments.Create(ctx, post.ID, a.ID, "sibling", nil)
	require.NoError(t, err)

	order, err := collectSubtree(f.db, root.ID)
	require.NoError(t, err)
	require.Len(t, order, 4)
	assert.Equal(t, root.ID, order[len(order)-1])
	pos := map[uint]int{}
	for i, id := range order {
		pos[id] = i
	}
	assert.Less(t, pos[r1.ID], pos[root.ID])

	n, err := f.comments.Delete(ctx, root.ID, b.ID)
	require.NoError(t, err)
	assert.Equal(t, 4, n)

	var live []models.Comment
	require.NoError(t, f.db.Where("post_id = ? AND is_deleted = ?", post.ID, false).Find(&live).Error)
	require.Len(t, live, 1)
	assert.Equal(t, sibling.ID, live[0].ID)

	_, err = f.comments.Delete(ctx, root.ID, b.ID)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestDeleteCascadeRollsBack(t *testing.T) {
	f := newFixture(t)
	ctx := t.Context()
	a := testutil.CreateUser(t, f.db, "a")
	b := testutil.CreateUser(t, f.db, "b")
	post := testutil.CreatePost(t, f.db, a)

	root, err := f.comments.Create(ctx, post.ID, b.ID, "root", nil)
	require.NoError(t, err)
	_, err = f.comments.Create(ctx, post.ID, a.ID, "r1", &root.ID)
	require.NoError(t, err)
	_, err = f.comments.Create(ctx, post.ID, a.ID, "r2", &root.ID)
	require.NoError(t, err)

	// 第二条评论的更新失败
	updates := 0
	require.NoError(t, f.db.Callback().Update().Before("gorm:update").Register("test:fail_second", func(db *gorm.DB) {
		if db.Statement.Schema == nil || db.Statement.Schema.Table != "comments" {
			return
		}
		updates++
		if updates == 2 {
			db.AddError(errors.New("boom"))
		}
	}))

	n, err := f.comments.Delete(ctx, root.ID, b.ID)
	require.Error(t, err)
	assert.ErrorIs(t, err, apperr.ErrDatabase)
	assert.Zero(t, n)
	assert.Equal(t, 2, updates)

	var deleted int64
	require.NoError(t, f.db.Model(&models.Comment{}).Where("post_id = ? AND is_deleted = ?", post.ID, true).Count(&deleted).Error)
	assert.Zero(t, deleted)
}

func TestDeletePermissions(t *testing.T) {
	f := newFixture(t)
	ctx := t.Context()
	a := testutil.CreateUser(t, f.db, "a")
	b := testutil.CreateUser(t, f.db, "b")
	c := testutil.CreateUser(t, f.db, "c")
	post := testutil.CreatePost(t, f.db, a)

	cm, err := f.comments.Create(ctx, post.ID, b.ID, "hello", nil)
	require.NoError(t, err)

	_, err = f.comments.Delete(ctx, cm.ID, c.ID)
	assert.ErrorIs(t, err, apperr.ErrNotPermitted)

	// post author may delete someone else's comment
	n, err := f.comments.Delete(ctx, cm.ID, a.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, err = f.comments.Delete(ctx, 12345, a.ID)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestEditComment(t *testing.T) {
	f := newFixture(t)
	ctx := t.Context()
	a := testutil.CreateUser(t, f.db, "a")
	b := testutil.CreateUser(t, f.db, "b")
	post := testutil.CreatePost(t, f.db, a)

	cm, err := f.comments.Create(ctx, post.ID, b.ID, "typo", nil)
	require.NoError(t, err)

	_, err = f.comments.Edit(ctx, cm.ID, a.ID, "hijack")
	assert.ErrorIs(t, err, apperr.ErrNotPermitted)

	edited, err := f.comments.Edit(ctx, cm.ID, b.ID, "  fixed  ")
	require.NoError(t, err)
	assert.Equal(t, "fixed", edited.Content)
	assert.True(t, edited.CanEdit)
	assert.False(t, edited.IsAuthor)

	// edits never notify
	assert.Len(t, f.notificationsFor(t, a.ID), 1)

	_, err = f.comments.Delete(ctx, cm.ID, b.ID)
	require.NoError(t, err)
	_, err = f.comments.Edit(ctx, cm.ID, b.ID, "again")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestGetDeletedShowsPlaceholder(t *testing.T) {
	f := newFixture(t)
	ctx := t.Context()
	a := testutil.CreateUser(t, f.db, "a")
	post := testutil.CreatePost(t, f.db, a)

	cm, err := f.comments.Create(ctx, post.ID, a.ID, "**secret**", nil)
	require.NoError(t, err)
	assert.Contains(t, cm.ContentHTML, "<strong>secret</strong>")

	_, err = f.comments.Delete(ctx, cm.ID, a.ID)
	require.NoError(t, err)

	got, err := f.comments.Get(ctx, cm.ID, a.ID)
	require.NoError(t, err)
	assert.True(t, got.IsDeleted)
	assert.Equal(t, models.DeletedCommentPlaceholder, got.Content)
	assert.NotContains(t, got.ContentHTML, "secret")
	assert.False(t, got.CanEdit)
	assert.False(t, got.CanDelete)
}

func TestListSortingAndFlags(t *testing.T) {
	f := newFixture(t)
	ctx := t.Context()
	a := testutil.CreateUser(t, f.db, "a")
	b := testutil.CreateUser(t, f.db, "b")
	post := testutil.CreatePost(t, f.db, a)

	first, err := f.comments.Create(ctx, post.ID, b.ID, "first", nil)
	require.NoError(t, err)
	second, err := f.comments.Create(ctx, post.ID, b.ID, "second", nil)
	require.NoError(t, err)
	_, err = f.comments.Create(ctx, post.ID, a.ID, "reply to first", &first.ID)
	require.NoError(t, err)
	dead, err := f.comments.Create(ctx, post.ID, a.ID, "deleted reply", &first.ID)
	require.NoError(t, err)
	_, err = f.comments.Delete(ctx, dead.ID, a.ID)
	require.NoError(t, err)

	page, err := f.comments.List(ctx, post.ID, CommentQuery{Sort: SortTimeAsc, Page: 1, Size: 20}, b.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(3), page.Total)
	require.Len(t, page.Items, 3)
	assert.Equal(t, first.ID, page.Items[0].ID)
	assert.Equal(t, int64(1), page.Items[0].RepliesCount)
	assert.True(t, page.Items[0].CanEdit)
	assert.False(t, page.Items[0].IsAuthor)
	assert.False(t, page.Items[2].CanEdit)
	assert.Equal(t, b.ID, page.Items[0].Author.ID)

	page, err = f.comments.List(ctx, post.ID, CommentQuery{Sort: SortTimeDesc, Page: 1, Size: 20}, 0)
	require.NoError(t, err)
	assert.Equal(t, first.ID, page.Items[2].ID)
	assert.False(t, page.Items[0].CanDelete)

	// second was created after first; hot puts first ahead because of its live reply
	page, err = f.comments.List(ctx, post.ID, CommentQuery{Sort: SortHot, Page: 1, Size: 20}, a.ID)
	require.NoError(t, err)
	assert.Equal(t, first.ID, page.Items[0].ID)
	assert.Equal(t, second.ID, page.Items[2].ID)
	assert.True(t, page.Items[0].IsAuthor)
	assert.True(t, page.Items[0].CanDelete)

	page, err = f.comments.List(ctx, post.ID, CommentQuery{Sort: SortTimeAsc, Page: 2, Size: 2}, 0)
	require.NoError(t, err)
	assert.Len(t, page.Items, 1)

	_, err = f.comments.List(ctx, 9999, CommentQuery{Sort: SortTimeAsc, Page: 1, Size: 20}, 0)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestReplyWithDeletedParentListsAsRoot(t *testing.T) {
	f := newFixture(t)
	ctx := t.Context()
	a := testutil.CreateUser(t, f.db, "a")
	post := testutil.CreatePost(t, f.db, a)

	root, err := f.comments.Create(ctx, post.ID, a.ID, "root", nil)
	require.NoError(t, err)
	reply, err := f.comments.Create(ctx, post.ID, a.ID, "reply", &root.ID)
	require.NoError(t, err)

	// data written before cascading delete existed
	require.NoError(t, f.db.Model(&models.Comment{}).Where("id = ?", root.ID).Update("is_deleted", true).Error)

	got, err := f.comments.Get(ctx, reply.ID, 0)
	require.NoError(t, err)
	assert.Nil(t, got.ParentID)
	assert.Nil(t, got.ParentAuthor)

	var stored models.Comment
	require.NoError(t, f.db.First(&stored, reply.ID).Error)
	require.NotNil(t, stored.ParentID)
	assert.Equal(t, root.ID, *stored.ParentID)
}
