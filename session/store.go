package session

import (
	"context"
	"errors"

	models "github.com/mathewtroy/candle/model"
)

var ErrNotFound = errors.New("session: not found")

// Store keeps identity provider sessions. Entries expire at
// Session.ExpiresAt.
type Store interface {
	Create(ctx context.Context, s models.Session) error
	Get(ctx context.Context, sessionID string) (*models.Session, error)
	Delete(ctx context.Context, sessionID string) error
	// DeleteUser removes every session of a user.
	DeleteUser(ctx context.Context, userID string) error
}
