package repository

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mathewtroy/candle/docstore"
	"github.com/mathewtroy/candle/docstore/memory"
	models "github.com/mathewtroy/candle/model"
)

func TestIdentityRepository_SuggestByPrefix(t *testing.T) {
	store := memory.New()
	repo := NewIdentityRepository(store)
	ctx := context.Background()

	for i, handle := range []string{"Alice", "albert", "Bob", "Al"} {
		require.NoError(t, repo.Create(ctx, &models.Identity{
			ID:          string(rune('a' + i)),
			Handle:      handle,
			HandleLower: strings.ToLower(handle),
			Role:        models.RoleUser,
			CreatedAt:   time.Now().UTC(),
		}))
	}

	got, err := repo.SuggestByPrefix(ctx, "al", 5)
	require.NoError(t, err)

	var handles []string
	for _, identity := range got {
		handles = append(handles, identity.Handle)
	}
	assert.Equal(t, []string{"Al", "albert", "Alice"}, handles)
}

func TestIdentityRepository_ReservationsAreExclusive(t *testing.T) {
	repo := NewIdentityRepository(memory.New())
	ctx := context.Background()

	require.NoError(t, repo.ReserveHandle(ctx, "bob", "1"))
	assert.ErrorIs(t, repo.ReserveHandle(ctx, "bob", "2"), docstore.ErrAlreadyExists)

	require.NoError(t, repo.ReleaseHandle(ctx, "bob"))
	assert.NoError(t, repo.ReserveHandle(ctx, "bob", "2"))
}

func TestIdentityRepository_FindMissing(t *testing.T) {
	repo := NewIdentityRepository(memory.New())
	_, err := repo.FindByHandleLower(context.Background(), "ghost")
	assert.ErrorIs(t, err, docstore.ErrNotFound)
}

func TestPostRepository_ListByAuthorNewestFirst(t *testing.T) {
	repo := NewPostRepository(memory.New())
	ctx := context.Background()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, repo.Create(ctx, &models.Post{ID: "p1", AuthorID: "u1", CreatedAt: base}))
	require.NoError(t, repo.Create(ctx, &models.Post{ID: "p2", AuthorID: "u1", CreatedAt: base.Add(time.Minute)}))
	require.NoError(t, repo.Create(ctx, &models.Post{ID: "p3", AuthorID: "u2", CreatedAt: base.Add(time.Hour)}))

	posts, err := repo.ListByAuthor(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, posts, 2)
	assert.Equal(t, "p2", posts[0].ID)
	assert.Equal(t, "p1", posts[1].ID)
}

func TestLikeRepository_CreateDeleteCount(t *testing.T) {
	store := memory.New()
	likes := NewLikeRepository(store)
	ctx := context.Background()

	require.NoError(t, likes.Create(ctx, "p1", "u1"))
	require.NoError(t, likes.Create(ctx, "p1", "u2"))
	assert.ErrorIs(t, likes.Create(ctx, "p1", "u1"), docstore.ErrAlreadyExists)

	n, err := likes.Count(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	liked, err := likes.Exists(ctx, "p1", "u2")
	require.NoError(t, err)
	assert.True(t, liked)

	require.NoError(t, likes.Delete(ctx, "p1", "u2"))
	assert.ErrorIs(t, likes.Delete(ctx, "p1", "u2"), docstore.ErrNotFound)

	deleted, err := likes.DeleteAllForPost(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, 1, deleted)
}
