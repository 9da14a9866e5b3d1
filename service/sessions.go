package service

import (
	"context"
	"errors"
	"log"

	"github.com/mathewtroy/candle/docstore"
	"github.com/mathewtroy/candle/identity"
	models "github.com/mathewtroy/candle/model"
	"github.com/mathewtroy/candle/repository"
)

// Sessions signs identities in and out through the identity provider.
type Sessions struct {
	provider   identity.Provider
	identities repository.IdentityRepository
}

func NewSessions(provider identity.Provider, identities repository.IdentityRepository) *Sessions {
	return &Sessions{
		provider:   provider,
		identities: identities,
	}
}

// SignIn authenticates with email and password and returns the session
// and the signed-in identity. The provider display name is brought in
// line with the identity's handle.
func (s *Sessions) SignIn(ctx context.Context, email, password string) (*models.Session, *models.Identity, error) {
	email = Sanitize(email)
	if email == "" {
		return nil, nil, ErrInvalidInput
	}
	if password == "" {
		return nil, nil, ErrMissingPassword
	}

	sess, err := s.provider.SignIn(ctx, email, password)
	if errors.Is(err, identity.ErrInvalidCredentials) {
		return nil, nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, nil, storeErr("sign in", err)
	}

	ident, err := s.identities.GetByID(ctx, sess.UserID)
	if err != nil {
		if signOutErr := s.provider.SignOut(ctx, sess.Token); signOutErr != nil {
			log.Printf("Failed to drop session of %s: %v", sess.UserID, signOutErr)
		}
		if errors.Is(err, docstore.ErrNotFound) {
			return nil, nil, ErrNotFound
		}
		return nil, nil, storeErr("load identity", err)
	}

	if sess.DisplayName != ident.Handle {
		handle := ident.Handle
		if err := s.provider.UpdateProfile(ctx, sess.UserID, identity.ProfileUpdate{DisplayName: &handle}); err != nil {
			log.Printf("Failed to sync display name of %s: %v", sess.UserID, err)
		} else {
			sess.DisplayName = handle
		}
	}

	return sess, ident, nil
}

func (s *Sessions) SignOut(ctx context.Context, token string) error {
	if err := s.provider.SignOut(ctx, token); err != nil {
		if errors.Is(err, identity.ErrInvalidSession) {
			return ErrPermissionDenied
		}
		return storeErr("sign out", err)
	}
	return nil
}

// Resolve returns the session a bearer token belongs to.
func (s *Sessions) Resolve(ctx context.Context, token string) (*models.Session, error) {
	sess, err := s.provider.CurrentSession(ctx, token)
	if err != nil {
		if errors.Is(err, identity.ErrInvalidSession) {
			return nil, ErrPermissionDenied
		}
		return nil, storeErr("resolve session", err)
	}
	return sess, nil
}
