package service

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mathewtroy/candle/docstore"
	"github.com/mathewtroy/candle/docstore/memory"
	"github.com/mathewtroy/candle/events"
	models "github.com/mathewtroy/candle/model"
)

func TestRegister_Success(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	ident, err := env.registrar().Register(ctx, RegisterInput{
		Handle:   "  Alice ",
		Email:    "alice@example.com",
		Password: "secret123",
	})
	require.NoError(t, err)

	assert.Equal(t, "Alice", ident.Handle)
	assert.Equal(t, "alice", ident.HandleLower)
	assert.Equal(t, models.RoleUser, ident.Role)
	assert.Empty(t, ident.AvatarURL)

	stored, err := env.identities.GetByID(ctx, ident.ID)
	require.NoError(t, err)
	assert.Equal(t, "alice", stored.HandleLower)

	account, ok := env.provider.account(ident.ID)
	require.True(t, ok)
	assert.Equal(t, "Alice", account.DisplayName)

	assert.ErrorIs(t, env.identities.ReserveHandle(ctx, "alice", "other"), docstore.ErrAlreadyExists)
	assert.Equal(t, 1, env.events.published(events.IdentityRegistered))
}

func TestRegister_HandleTakenIgnoringCase(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.registrar().Register(ctx, RegisterInput{Handle: "Bob", Email: "bob@example.com", Password: "pw"})
	require.NoError(t, err)

	_, err = env.registrar().Register(ctx, RegisterInput{Handle: "bob", Email: "other@example.com", Password: "pw"})
	assert.ErrorIs(t, err, ErrHandleTaken)
	assert.Equal(t, 1, env.provider.accountCount())
}

func TestRegister_EmailTaken(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.registrar().Register(ctx, RegisterInput{Handle: "Bob", Email: "bob@example.com", Password: "pw"})
	require.NoError(t, err)

	_, err = env.registrar().Register(ctx, RegisterInput{Handle: "Robert", Email: "bob@example.com", Password: "pw"})
	assert.ErrorIs(t, err, ErrEmailTaken)
}

func TestRegister_Validation(t *testing.T) {
	tests := []struct {
		name    string
		input   RegisterInput
		wantErr error
	}{
		{"empty handle", RegisterInput{Handle: "", Email: "a@b.co", Password: "pw"}, ErrInvalidInput},
		{"handle with space", RegisterInput{Handle: "bad handle", Email: "a@b.co", Password: "pw"}, ErrInvalidInput},
		{"handle too long", RegisterInput{Handle: strings.Repeat("a", 51), Email: "a@b.co", Password: "pw"}, ErrInvalidInput},
		{"bad email", RegisterInput{Handle: "carol", Email: "carol.example.com", Password: "pw"}, ErrInvalidInput},
		{"missing password", RegisterInput{Handle: "carol", Email: "carol@example.com"}, ErrMissingPassword},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			_, err := env.registrar().Register(context.Background(), tt.input)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.Equal(t, 0, env.provider.accountCount())
		})
	}
}

func TestRegister_SanitizesMarkup(t *testing.T) {
	env := newTestEnv(t)

	ident, err := env.registrar().Register(context.Background(), RegisterInput{
		Handle:   "<dave>",
		Email:    "dave@example.com",
		Password: "pw",
	})
	require.NoError(t, err)
	assert.Equal(t, "dave", ident.Handle)
}

func TestRegister_StoreFailureDeletesAccount(t *testing.T) {
	env := newTestEnv(t)
	env.store.SetPolicy(func(op memory.Op, ref docstore.Ref) error {
		if op == memory.OpCreate && ref.Collection == "users" {
			return errBoom
		}
		return nil
	})
	ctx := context.Background()

	_, err := env.registrar().Register(ctx, RegisterInput{Handle: "erin", Email: "erin@example.com", Password: "pw"})
	assert.ErrorIs(t, err, ErrRegistrationFailed)
	assert.Equal(t, 0, env.provider.accountCount())

	// reservations are released with the account
	env.store.SetPolicy(nil)
	assert.NoError(t, env.identities.ReserveHandle(ctx, "erin", "x"))
	assert.NoError(t, env.identities.ReserveEmail(ctx, "erin@example.com", "x"))
}

func TestRegister_ProfileFailureDeletesAccount(t *testing.T) {
	env := newTestEnv(t)
	env.provider.updateErr = errBoom

	_, err := env.registrar().Register(context.Background(), RegisterInput{Handle: "frank", Email: "frank@example.com", Password: "pw"})
	assert.ErrorIs(t, err, ErrRegistrationFailed)
	assert.Equal(t, 0, env.provider.accountCount())

	_, err = env.identities.FindByHandleLower(context.Background(), "frank")
	assert.ErrorIs(t, err, docstore.ErrNotFound)
}

func TestRegister_LosesReservationRace(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	// another registration holds the handle but has not written its identity yet
	require.NoError(t, env.identities.ReserveHandle(ctx, "grace", "uid-racer"))

	_, err := env.registrar().Register(ctx, RegisterInput{Handle: "Grace", Email: "grace@example.com", Password: "pw"})
	assert.ErrorIs(t, err, ErrHandleTaken)
	assert.Equal(t, 0, env.provider.accountCount())
}

func TestRegister_WithAvatar(t *testing.T) {
	env := newTestEnv(t)
	img := pngImage(t, 640, 480)

	ident, err := env.registrar().Register(context.Background(), RegisterInput{
		Handle:   "heidi",
		Email:    "heidi@example.com",
		Password: "pw",
		Avatar:   &img,
	})
	require.NoError(t, err)
	assert.Contains(t, ident.AvatarURL, "avatar.jpg")

	account, ok := env.provider.account(ident.ID)
	require.True(t, ok)
	assert.Equal(t, ident.AvatarURL, account.PhotoURL)
}

func TestRegister_AvatarErrors(t *testing.T) {
	t.Run("wrong type", func(t *testing.T) {
		env := newTestEnv(t)
		img := ImageFile{Name: "a.bmp", ContentType: "image/bmp", Data: []byte{1, 2, 3}}
		_, err := env.registrar().Register(context.Background(), RegisterInput{Handle: "ivan", Email: "ivan@example.com", Password: "pw", Avatar: &img})
		assert.ErrorIs(t, err, ErrInvalidImage)
		assert.Equal(t, 0, env.provider.accountCount())
	})

	t.Run("too large", func(t *testing.T) {
		env := newTestEnv(t)
		img := ImageFile{Name: "a.png", ContentType: "image/png", Data: make([]byte, 2*1024*1024+1)}
		_, err := env.registrar().Register(context.Background(), RegisterInput{Handle: "ivan", Email: "ivan@example.com", Password: "pw", Avatar: &img})
		assert.ErrorIs(t, err, ErrInvalidImage)
	})

	t.Run("undecodable", func(t *testing.T) {
		env := newTestEnv(t)
		img := ImageFile{Name: "a.png", ContentType: "image/png", Data: []byte("not an image")}
		_, err := env.registrar().Register(context.Background(), RegisterInput{Handle: "ivan", Email: "ivan@example.com", Password: "pw", Avatar: &img})
		assert.ErrorIs(t, err, ErrInvalidImage)
	})

	t.Run("upload rejected", func(t *testing.T) {
		env := newTestEnv(t)
		env.uploader.err = errBoom
		img := pngImage(t, 32, 32)
		_, err := env.registrar().Register(context.Background(), RegisterInput{Handle: "ivan", Email: "ivan@example.com", Password: "pw", Avatar: &img})
		assert.ErrorIs(t, err, ErrUploadFailed)
		assert.Equal(t, 0, env.provider.accountCount())
	})
}
