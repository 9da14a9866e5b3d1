// Package local is the built-in identity provider: password accounts in
// Postgres, sessions in Redis, bearer tokens signed as JWTs.
package local

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/mathewtroy/candle/identity"
	models "github.com/mathewtroy/candle/model"
	"github.com/mathewtroy/candle/pkg/jwt"
	"github.com/mathewtroy/candle/session"
)

type Provider struct {
	accounts AccountRepository
	sessions session.Store
	tokens   *jwt.Manager
	ttl      time.Duration
}

func NewProvider(accounts AccountRepository, sessions session.Store, tokens *jwt.Manager, ttl time.Duration) *Provider {
	return &Provider{
		accounts: accounts,
		sessions: sessions,
		tokens:   tokens,
		ttl:      ttl,
	}
}

var _ identity.Provider = (*Provider)(nil)

func (p *Provider) CreateAccount(ctx context.Context, email, password string) (*identity.Account, error) {
	if password == "" {
		return nil, errors.New("identity: password is required")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	now := time.Now().UTC()
	account := &identity.Account{
		ID:           uuid.New().String(),
		Email:        email,
		PasswordHash: string(hash),
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := p.accounts.Create(ctx, account); err != nil {
		return nil, err
	}
	return account, nil
}

func (p *Provider) UpdateProfile(ctx context.Context, accountID string, update identity.ProfileUpdate) error {
	return p.accounts.UpdateProfile(ctx, accountID, update)
}

func (p *Provider) DeleteAccount(ctx context.Context, accountID string) error {
	if err := p.accounts.Delete(ctx, accountID); err != nil {
		return err
	}
	if err := p.sessions.DeleteUser(ctx, accountID); err != nil {
		log.Printf("failed to drop sessions of deleted account %s: %v", accountID, err)
	}
	return nil
}

func (p *Provider) SignIn(ctx context.Context, email, password string) (*models.Session, error) {
	account, err := p.accounts.GetByEmail(ctx, email)
	if errors.Is(err, identity.ErrAccountNotFound) {
		return nil, identity.ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(account.PasswordHash), []byte(password)); err != nil {
		return nil, identity.ErrInvalidCredentials
	}

	s := models.Session{
		ID:          uuid.New().String(),
		UserID:      account.ID,
		Email:       account.Email,
		DisplayName: account.DisplayName,
		PhotoURL:    account.PhotoURL,
		ExpiresAt:   time.Now().Add(p.ttl).UTC(),
	}

	if err := p.sessions.Create(ctx, s); err != nil {
		return nil, fmt.Errorf("failed to store session: %w", err)
	}

	token, err := p.tokens.Generate(s.UserID, s.ID, s.ExpiresAt)
	if err != nil {
		_ = p.sessions.Delete(ctx, s.ID)
		return nil, err
	}
	s.Token = token

	return &s, nil
}

func (p *Provider) SignOut(ctx context.Context, token string) error {
	claims, err := p.tokens.Verify(token)
	if err != nil {
		return identity.ErrInvalidSession
	}
	return p.sessions.Delete(ctx, claims.ID)
}

func (p *Provider) CurrentSession(ctx context.Context, token string) (*models.Session, error) {
	claims, err := p.tokens.Verify(token)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", identity.ErrInvalidSession, err)
	}

	s, err := p.sessions.Get(ctx, claims.ID)
	if errors.Is(err, session.ErrNotFound) {
		return nil, identity.ErrInvalidSession
	}
	if err != nil {
		return nil, err
	}
	if s.UserID != claims.UserID {
		return nil, identity.ErrInvalidSession
	}

	s.Token = token
	return s, nil
}
