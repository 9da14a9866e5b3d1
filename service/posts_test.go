package service

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mathewtroy/candle/docstore"
	"github.com/mathewtroy/candle/events"
	models "github.com/mathewtroy/candle/model"
)

func TestPostService_Create(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	ident := env.seedIdentity(t, "u1", "Vera", models.RoleUser)
	require.NoError(t, env.identities.Update(ctx, ident.ID, map[string]any{"avatarUrl": "https://img/v.jpg"}))

	post, err := env.postService().Create(ctx, &models.Session{UserID: "u1"}, "  hello world  ")
	require.NoError(t, err)
	assert.Equal(t, "hello world", post.Content)
	assert.Equal(t, "Vera", post.AuthorHandle)
	assert.Equal(t, "https://img/v.jpg", post.AvatarURL)
	assert.Zero(t, post.LikeCount)

	stored, err := env.posts.GetByID(ctx, post.ID)
	require.NoError(t, err)
	assert.Equal(t, post.AuthorID, stored.AuthorID)
	assert.Equal(t, 1, env.events.published(events.PostCreated))
}

func TestPostService_CreateValidation(t *testing.T) {
	env := newTestEnv(t)
	env.seedIdentity(t, "u1", "Vera", models.RoleUser)
	svc := env.postService()
	ctx := context.Background()

	_, err := svc.Create(ctx, &models.Session{UserID: "u1"}, "   ")
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = svc.Create(ctx, &models.Session{UserID: "u1"}, strings.Repeat("x", MaxPostLength+1))
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = svc.Create(ctx, nil, "hi")
	assert.ErrorIs(t, err, ErrPermissionDenied)

	_, err = svc.Create(ctx, &models.Session{UserID: "ghost"}, "hi")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestPostService_Delete(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.seedPost(t, "p1", "u1", time.Now().UTC())
	require.NoError(t, env.likes.Create(ctx, "p1", "u2"))
	svc := env.postService()

	err := svc.Delete(ctx, &models.Session{UserID: "u2"}, "p1")
	assert.ErrorIs(t, err, ErrPermissionDenied)

	require.NoError(t, svc.Delete(ctx, &models.Session{UserID: "u1"}, "p1"))

	_, err = env.posts.GetByID(ctx, "p1")
	assert.ErrorIs(t, err, docstore.ErrNotFound)
	n, err := env.likes.Count(ctx, "p1")
	require.NoError(t, err)
	assert.Zero(t, n)

	assert.ErrorIs(t, svc.Delete(ctx, &models.Session{UserID: "u1"}, "p1"), ErrNotFound)
}
