package service

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mathewtroy/candle/docstore"
	"github.com/mathewtroy/candle/docstore/memory"
	"github.com/mathewtroy/candle/events"
	models "github.com/mathewtroy/candle/model"
)

func (e *testEnv) toggler() *LikeToggler {
	return NewLikeToggler(e.identities, e.posts, e.likes, e.events)
}

func likeCount(t *testing.T, env *testEnv, postID string) int64 {
	t.Helper()
	post, err := env.posts.GetByID(context.Background(), postID)
	require.NoError(t, err)
	return post.LikeCount
}

func TestToggle_LikeThenUnlike(t *testing.T) {
	env := newTestEnv(t)
	env.seedPost(t, "p1", "author", time.Now().UTC())
	env.seedIdentity(t, "viewer", "viewer", models.RoleUser)
	toggler := env.toggler()
	ctx := context.Background()

	res, err := toggler.Toggle(ctx, "p1", "viewer")
	require.NoError(t, err)
	assert.True(t, res.Liked)
	assert.Equal(t, int64(1), likeCount(t, env, "p1"))

	liked, err := env.likes.Exists(ctx, "p1", "viewer")
	require.NoError(t, err)
	assert.True(t, liked)

	res, err = toggler.Toggle(ctx, "p1", "viewer")
	require.NoError(t, err)
	assert.False(t, res.Liked)
	assert.Equal(t, int64(0), likeCount(t, env, "p1"))

	liked, err = env.likes.Exists(ctx, "p1", "viewer")
	require.NoError(t, err)
	assert.False(t, liked)

	assert.Equal(t, 2, env.events.published(events.PostLikeToggled))
}

func TestToggle_UnknownPost(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.toggler().Toggle(context.Background(), "missing", "viewer")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestToggle_RequiresIDs(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.toggler().Toggle(context.Background(), "p1", "")
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestToggle_UnknownViewer(t *testing.T) {
	env := newTestEnv(t)
	env.seedPost(t, "p1", "author", time.Now().UTC())

	_, err := env.toggler().Toggle(context.Background(), "p1", "ghost")
	assert.ErrorIs(t, err, ErrPermissionDenied)

	n, err := env.likes.Count(context.Background(), "p1")
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Equal(t, int64(0), likeCount(t, env, "p1"))
}

func TestToggle_ConcurrentViewers(t *testing.T) {
	env := newTestEnv(t)
	env.seedPost(t, "p1", "author", time.Now().UTC())
	for i := 0; i < 20; i++ {
		env.seedIdentity(t, fmt.Sprintf("viewer-%d", i), fmt.Sprintf("viewer%d", i), models.RoleUser)
	}
	toggler := env.toggler()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(viewer string) {
			defer wg.Done()
			_, err := toggler.Toggle(context.Background(), "p1", viewer)
			assert.NoError(t, err)
		}(fmt.Sprintf("viewer-%d", i))
	}
	wg.Wait()

	n, err := env.likes.Count(context.Background(), "p1")
	require.NoError(t, err)
	assert.Equal(t, int64(20), n)
	assert.Equal(t, int64(20), likeCount(t, env, "p1"))
}

func TestToggle_CounterFailureReportsDrift(t *testing.T) {
	env := newTestEnv(t)
	env.seedPost(t, "p1", "author", time.Now().UTC())
	env.seedIdentity(t, "viewer", "viewer", models.RoleUser)
	env.store.SetPolicy(func(op memory.Op, ref docstore.Ref) error {
		if op == memory.OpIncrement {
			return errBoom
		}
		return nil
	})
	ctx := context.Background()

	_, err := env.toggler().Toggle(ctx, "p1", "viewer")
	assert.ErrorIs(t, err, ErrStore)
	assert.Equal(t, 1, env.events.published(events.PostLikesDrifted))
	assert.Equal(t, int64(0), likeCount(t, env, "p1"))

	env.store.SetPolicy(nil)
	n, err := NewReconciler(env.posts, env.likes).RecountPost(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.Equal(t, int64(1), likeCount(t, env, "p1"))
}
