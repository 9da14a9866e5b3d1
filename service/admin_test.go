package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mathewtroy/candle/docstore"
	"github.com/mathewtroy/candle/events"
	models "github.com/mathewtroy/candle/model"
)

func (e *testEnv) moderator() *Moderator {
	return NewModerator(e.identities, e.posts, e.postService(), e.provider, e.events)
}

func TestSetRole_SelfModificationForbidden(t *testing.T) {
	env := newTestEnv(t)
	env.seedIdentity(t, "admin", "root", models.RoleAdmin)

	err := env.moderator().SetRole(context.Background(), "admin", models.RoleAdmin, "admin")
	assert.ErrorIs(t, err, ErrSelfModificationForbidden)
}

func TestSetRole(t *testing.T) {
	env := newTestEnv(t)
	env.seedIdentity(t, "admin", "root", models.RoleAdmin)
	env.seedIdentity(t, "u1", "rita", models.RoleUser)
	ctx := context.Background()

	require.NoError(t, env.moderator().SetRole(ctx, "u1", models.RoleAdmin, "admin"))

	ident, err := env.identities.GetByID(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, models.RoleAdmin, ident.Role)
	assert.Equal(t, 1, env.events.published(events.IdentityRoleChanged))
}

func TestSetRole_Errors(t *testing.T) {
	env := newTestEnv(t)
	env.seedIdentity(t, "admin", "root", models.RoleAdmin)
	env.seedIdentity(t, "u1", "rita", models.RoleUser)
	env.seedIdentity(t, "u2", "sven", models.RoleUser)
	mod := env.moderator()
	ctx := context.Background()

	assert.ErrorIs(t, mod.SetRole(ctx, "u2", models.RoleAdmin, "u1"), ErrPermissionDenied)
	assert.ErrorIs(t, mod.SetRole(ctx, "u2", models.RoleAdmin, "ghost"), ErrPermissionDenied)
	assert.ErrorIs(t, mod.SetRole(ctx, "u2", models.Role("owner"), "admin"), ErrInvalidInput)
	assert.ErrorIs(t, mod.SetRole(ctx, "ghost", models.RoleUser, "admin"), ErrNotFound)
}

func TestListIdentities(t *testing.T) {
	env := newTestEnv(t)
	env.seedIdentity(t, "admin", "root", models.RoleAdmin)
	env.seedIdentity(t, "u1", "rita", models.RoleUser)
	mod := env.moderator()

	list, err := mod.ListIdentities(context.Background(), "admin")
	require.NoError(t, err)
	assert.Len(t, list, 2)

	_, err = mod.ListIdentities(context.Background(), "u1")
	assert.ErrorIs(t, err, ErrPermissionDenied)
}

func TestDeleteIdentity_Cascades(t *testing.T) {
	env := newTestEnv(t)
	env.seedIdentity(t, "admin", "root", models.RoleAdmin)
	target := env.seedIdentity(t, "u1", "Tess", models.RoleUser)
	require.NoError(t, env.identities.ReserveEmail(context.Background(), "tess@example.com", "u1"))
	now := time.Now().UTC()
	env.seedPost(t, "p1", "u1", now)
	env.seedPost(t, "p2", "u1", now.Add(time.Second))
	env.seedPost(t, "keep", "admin", now)
	ctx := context.Background()
	require.NoError(t, env.likes.Create(ctx, "p1", "admin"))
	require.NoError(t, env.likes.Create(ctx, "keep", "u1"))

	result, err := env.moderator().DeleteIdentity(ctx, target.ID, "admin")
	require.NoError(t, err)
	assert.Equal(t, &DeleteResult{PostsDeleted: 2}, result)

	_, err = env.identities.GetByID(ctx, "u1")
	assert.ErrorIs(t, err, docstore.ErrNotFound)
	_, err = env.posts.GetByID(ctx, "p1")
	assert.ErrorIs(t, err, docstore.ErrNotFound)
	n, err := env.likes.Count(ctx, "p1")
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.NotContains(t, env.store.Collections(), "posts/p1/likes")
	assert.Contains(t, env.store.Collections(), "posts/keep/likes")

	_, err = env.posts.GetByID(ctx, "keep")
	assert.NoError(t, err)

	// the handle and email can be registered again
	assert.NoError(t, env.identities.ReserveHandle(ctx, "tess", "new"))
	assert.NoError(t, env.identities.ReserveEmail(ctx, "tess@example.com", "new"))
	assert.Equal(t, 1, env.events.published(events.IdentityDeleted))
}

func TestDeleteIdentity_Errors(t *testing.T) {
	env := newTestEnv(t)
	env.seedIdentity(t, "admin", "root", models.RoleAdmin)
	env.seedIdentity(t, "u1", "uma", models.RoleUser)
	mod := env.moderator()
	ctx := context.Background()

	_, err := mod.DeleteIdentity(ctx, "admin", "admin")
	assert.ErrorIs(t, err, ErrSelfModificationForbidden)

	_, err = mod.DeleteIdentity(ctx, "admin", "u1")
	assert.ErrorIs(t, err, ErrPermissionDenied)

	_, err = mod.DeleteIdentity(ctx, "ghost", "admin")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDeleteIdentity_EndsAccountAndSessions(t *testing.T) {
	env := newTestEnv(t)
	env.seedIdentity(t, "admin", "root", models.RoleAdmin)
	env.seedPost(t, "p1", "admin", time.Now().UTC())
	ctx := context.Background()

	in := RegisterInput{Handle: "Tess", Email: "tess@example.com", Password: "secret123"}
	ident, err := env.registrar().Register(ctx, in)
	require.NoError(t, err)

	sessions := NewSessions(env.provider, env.identities)
	sess, _, err := sessions.SignIn(ctx, "tess@example.com", "secret123")
	require.NoError(t, err)

	_, err = env.moderator().DeleteIdentity(ctx, ident.ID, "admin")
	require.NoError(t, err)

	_, ok := env.provider.account(ident.ID)
	assert.False(t, ok)
	_, err = sessions.Resolve(ctx, sess.Token)
	assert.ErrorIs(t, err, ErrPermissionDenied)

	// a token resolved before deletion can no longer like anything
	_, err = env.toggler().Toggle(ctx, "p1", ident.ID)
	assert.ErrorIs(t, err, ErrPermissionDenied)

	again, err := env.registrar().Register(ctx, in)
	require.NoError(t, err)
	assert.NotEqual(t, ident.ID, again.ID)
}
