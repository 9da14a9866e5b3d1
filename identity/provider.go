// Package identity defines the identity provider the registrar and the
// session service authenticate against.
package identity

import (
	"context"
	"errors"
	"time"

	models "github.com/mathewtroy/candle/model"
)

var (
	ErrEmailExists        = errors.New("identity: email already registered")
	ErrInvalidCredentials = errors.New("identity: invalid credentials")
	ErrAccountNotFound    = errors.New("identity: account not found")
	ErrInvalidSession     = errors.New("identity: invalid session")
)

// Account is the provider side record of an identity. Its ID is the
// identity id used everywhere else.
type Account struct {
	ID           string    `db:"id"`
	Email        string    `db:"email"`
	PasswordHash string    `db:"password_hash"`
	DisplayName  string    `db:"display_name"`
	PhotoURL     string    `db:"photo_url"`
	CreatedAt    time.Time `db:"created_at"`
	UpdatedAt    time.Time `db:"updated_at"`
}

// ProfileUpdate changes the provider profile. Nil fields are left as is.
type ProfileUpdate struct {
	DisplayName *string
	PhotoURL    *string
}

type Provider interface {
	CreateAccount(ctx context.Context, email, password string) (*Account, error)
	UpdateProfile(ctx context.Context, accountID string, update ProfileUpdate) error
	DeleteAccount(ctx context.Context, accountID string) error
	SignIn(ctx context.Context, email, password string) (*models.Session, error)
	SignOut(ctx context.Context, token string) error
	// CurrentSession resolves a session token.
	CurrentSession(ctx context.Context, token string) (*models.Session, error)
}
