package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mathewtroy/candle/docstore"
	"github.com/mathewtroy/candle/docstore/memory"
	"github.com/mathewtroy/candle/events"
	models "github.com/mathewtroy/candle/model"
)

func (e *testEnv) propagator() *AvatarPropagator {
	return NewAvatarPropagator(e.identities, e.posts, e.provider, e.images, e.events)
}

func seedAuthorWithPosts(t *testing.T, env *testEnv) *models.Identity {
	t.Helper()
	account, err := env.provider.CreateAccount(context.Background(), "judy@example.com", "pw")
	require.NoError(t, err)

	ident := env.seedIdentity(t, account.ID, "judy", models.RoleUser)
	base := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	for i, id := range []string{"p1", "p2", "p3"} {
		env.seedPost(t, id, ident.ID, base.Add(time.Duration(i)*time.Minute))
	}
	env.seedPost(t, "other", "someone-else", base)
	return ident
}

func TestChangeAvatar_UpdatesEveryPost(t *testing.T) {
	env := newTestEnv(t)
	ident := seedAuthorWithPosts(t, env)
	ctx := context.Background()

	result, err := env.propagator().ChangeAvatar(ctx, ident.ID, pngImage(t, 800, 400))
	require.NoError(t, err)
	assert.Equal(t, 3, result.Updated)
	assert.Equal(t, 0, result.Skipped)
	assert.Equal(t, 0, result.Failed)
	require.NotEmpty(t, result.URL)

	stored, err := env.identities.GetByID(ctx, ident.ID)
	require.NoError(t, err)
	assert.Equal(t, result.URL, stored.AvatarURL)

	account, _ := env.provider.account(ident.ID)
	assert.Equal(t, result.URL, account.PhotoURL)

	for _, id := range []string{"p1", "p2", "p3"} {
		post, err := env.posts.GetByID(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, result.URL, post.AvatarURL)
	}
	other, err := env.posts.GetByID(ctx, "other")
	require.NoError(t, err)
	assert.Empty(t, other.AvatarURL)

	assert.Equal(t, 1, env.events.published(events.IdentityAvatarChanged))
}

func TestChangeAvatar_DeniedPostIsSkipped(t *testing.T) {
	env := newTestEnv(t)
	ident := seedAuthorWithPosts(t, env)
	env.store.SetPolicy(func(op memory.Op, ref docstore.Ref) error {
		if op == memory.OpUpdate && ref.Collection == "posts" && ref.ID == "p2" {
			return docstore.ErrPermissionDenied
		}
		return nil
	})

	result, err := env.propagator().ChangeAvatar(context.Background(), ident.ID, pngImage(t, 64, 64))
	require.NoError(t, err)
	assert.Equal(t, 2, result.Updated)
	assert.Equal(t, 1, result.Skipped)
	assert.Equal(t, 0, result.Failed)
}

func TestChangeAvatar_FailedPostDoesNotFailCall(t *testing.T) {
	env := newTestEnv(t)
	ident := seedAuthorWithPosts(t, env)
	env.store.SetPolicy(func(op memory.Op, ref docstore.Ref) error {
		if op == memory.OpUpdate && ref.Collection == "posts" && ref.ID == "p3" {
			return errBoom
		}
		return nil
	})

	result, err := env.propagator().ChangeAvatar(context.Background(), ident.ID, pngImage(t, 64, 64))
	require.NoError(t, err)
	assert.Equal(t, 2, result.Updated)
	assert.Equal(t, 0, result.Skipped)
	assert.Equal(t, 1, result.Failed)
}

func TestChangeAvatar_NoPosts(t *testing.T) {
	env := newTestEnv(t)
	account, err := env.provider.CreateAccount(context.Background(), "kim@example.com", "pw")
	require.NoError(t, err)
	env.seedIdentity(t, account.ID, "kim", models.RoleUser)

	result, err := env.propagator().ChangeAvatar(context.Background(), account.ID, pngImage(t, 64, 64))
	require.NoError(t, err)
	assert.Equal(t, AvatarResult{URL: result.URL}, *result)
}

func TestChangeAvatar_Errors(t *testing.T) {
	t.Run("unknown identity", func(t *testing.T) {
		env := newTestEnv(t)
		_, err := env.propagator().ChangeAvatar(context.Background(), "ghost", pngImage(t, 8, 8))
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("upload rejected", func(t *testing.T) {
		env := newTestEnv(t)
		ident := seedAuthorWithPosts(t, env)
		env.uploader.err = errBoom

		_, err := env.propagator().ChangeAvatar(context.Background(), ident.ID, pngImage(t, 8, 8))
		assert.ErrorIs(t, err, ErrUploadFailed)

		post, err := env.posts.GetByID(context.Background(), "p1")
		require.NoError(t, err)
		assert.Empty(t, post.AvatarURL)
	})

	t.Run("invalid image", func(t *testing.T) {
		env := newTestEnv(t)
		ident := seedAuthorWithPosts(t, env)
		_, err := env.propagator().ChangeAvatar(context.Background(), ident.ID, ImageFile{Name: "x.txt", ContentType: "text/plain", Data: []byte("x")})
		assert.ErrorIs(t, err, ErrInvalidImage)
	})
}
