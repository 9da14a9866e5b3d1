package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	models "github.com/mathewtroy/candle/model"
)

func TestSessions_SignInSyncsDisplayName(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	account, err := env.provider.CreateAccount(ctx, "wes@example.com", "pw")
	require.NoError(t, err)
	env.seedIdentity(t, account.ID, "Wes", models.RoleUser)

	sessions := NewSessions(env.provider, env.identities)
	sess, ident, err := sessions.SignIn(ctx, "wes@example.com", "pw")
	require.NoError(t, err)
	assert.Equal(t, "Wes", ident.Handle)
	assert.Equal(t, "Wes", sess.DisplayName)

	stored, _ := env.provider.account(account.ID)
	assert.Equal(t, "Wes", stored.DisplayName)

	resolved, err := sessions.Resolve(ctx, sess.Token)
	require.NoError(t, err)
	assert.Equal(t, account.ID, resolved.UserID)

	require.NoError(t, sessions.SignOut(ctx, sess.Token))
	_, err = sessions.Resolve(ctx, sess.Token)
	assert.ErrorIs(t, err, ErrPermissionDenied)
}

func TestSessions_SignInErrors(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	_, err := env.provider.CreateAccount(ctx, "xena@example.com", "pw")
	require.NoError(t, err)
	sessions := NewSessions(env.provider, env.identities)

	_, _, err = sessions.SignIn(ctx, "xena@example.com", "wrong")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, _, err = sessions.SignIn(ctx, "xena@example.com", "")
	assert.ErrorIs(t, err, ErrMissingPassword)

	// account without an identity record
	_, _, err = sessions.SignIn(ctx, "xena@example.com", "pw")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestReconciler_RecountAll(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.seedPost(t, "p1", "u1", time.Now().UTC())
	env.seedPost(t, "p2", "u1", time.Now().UTC())
	require.NoError(t, env.likes.Create(ctx, "p1", "a"))
	require.NoError(t, env.likes.Create(ctx, "p1", "b"))
	require.NoError(t, env.likes.Create(ctx, "p2", "a"))
	require.NoError(t, env.posts.IncrementLikes(ctx, "p2", 1))

	report, err := NewReconciler(env.posts, env.likes).RecountAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, &ReconcileReport{Checked: 2, Fixed: 1}, report)
	assert.Equal(t, int64(2), likeCount(t, env, "p1"))
	assert.Equal(t, int64(1), likeCount(t, env, "p2"))
}

func TestReconciler_RecountMissingPost(t *testing.T) {
	env := newTestEnv(t)
	_, err := NewReconciler(env.posts, env.likes).RecountPost(context.Background(), "ghost")
	assert.ErrorIs(t, err, ErrNotFound)
}
