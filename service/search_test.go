package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	models "github.com/mathewtroy/candle/model"
)

func TestSearch_Suggest(t *testing.T) {
	env := newTestEnv(t)
	env.seedIdentity(t, "u1", "alice", models.RoleUser)
	env.seedIdentity(t, "u2", "albert", models.RoleUser)
	env.seedIdentity(t, "u3", "bob", models.RoleUser)
	search := env.search()
	ctx := context.Background()

	got, err := search.Suggest(ctx, "al", 0)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"alice", "albert"}, got)

	got, err = search.Suggest(ctx, "AL", 0)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"alice", "albert"}, got)

	got, err = search.Suggest(ctx, "al", 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"albert"}, got)

	got, err = search.Suggest(ctx, "  ", 0)
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.NotNil(t, got)
}

func TestSearch_SuggestDefaultLimit(t *testing.T) {
	env := newTestEnv(t)
	for i, h := range []string{"sam1", "sam2", "sam3", "sam4", "sam5", "sam6", "sam7"} {
		env.seedIdentity(t, string(rune('a'+i)), h, models.RoleUser)
	}

	got, err := env.search().Suggest(context.Background(), "sam", 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"sam1", "sam2", "sam3", "sam4", "sam5"}, got)
}

func TestSearch_SuggestKeepsDisplayCase(t *testing.T) {
	env := newTestEnv(t)
	env.seedIdentity(t, "u1", "MixedCase", models.RoleUser)

	got, err := env.search().Suggest(context.Background(), "mix", 5)
	require.NoError(t, err)
	assert.Equal(t, []string{"MixedCase"}, got)
}

func TestSearch_FindExact(t *testing.T) {
	env := newTestEnv(t)
	env.seedIdentity(t, "u1", "Alice", models.RoleUser)
	search := env.search()

	ident, err := search.FindExact(context.Background(), "ALICE")
	require.NoError(t, err)
	assert.Equal(t, "u1", ident.ID)

	_, err = search.FindExact(context.Background(), "alic")
	assert.ErrorIs(t, err, ErrNotFound)
}
