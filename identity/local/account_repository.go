package local

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/mathewtroy/candle/identity"
)

// unique_violation
const codeUniqueViolation = "23505"

type AccountRepository interface {
	Create(ctx context.Context, account *identity.Account) error
	GetByID(ctx context.Context, id string) (*identity.Account, error)
	GetByEmail(ctx context.Context, email string) (*identity.Account, error)
	UpdateProfile(ctx context.Context, id string, update identity.ProfileUpdate) error
	Delete(ctx context.Context, id string) error
}

type accountRepository struct {
	db *sqlx.DB
}

func NewAccountRepository(db *sqlx.DB) AccountRepository {
	return &accountRepository{db: db}
}

func (r *accountRepository) Create(ctx context.Context, account *identity.Account) error {
	query := `
		INSERT INTO auth_accounts (id, email, password_hash, display_name, photo_url, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err := r.db.ExecContext(ctx, query,
		account.ID, account.Email, account.PasswordHash, account.DisplayName,
		account.PhotoURL, account.CreatedAt, account.UpdatedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == codeUniqueViolation {
			return identity.ErrEmailExists
		}
		return fmt.Errorf("failed to create account: %w", err)
	}
	return nil
}

func (r *accountRepository) GetByID(ctx context.Context, id string) (*identity.Account, error) {
	var account identity.Account
	query := `
		SELECT id, email, password_hash, display_name, photo_url, created_at, updated_at
		FROM auth_accounts
		WHERE id = $1
	`

	err := r.db.GetContext(ctx, &account, query, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, identity.ErrAccountNotFound
		}
		return nil, fmt.Errorf("failed to get account: %w", err)
	}
	return &account, nil
}

func (r *accountRepository) GetByEmail(ctx context.Context, email string) (*identity.Account, error) {
	var account identity.Account
	query := `
		SELECT id, email, password_hash, display_name, photo_url, created_at, updated_at
		FROM auth_accounts
		WHERE LOWER(email) = LOWER($1)
	`

	err := r.db.GetContext(ctx, &account, query, email)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, identity.ErrAccountNotFound
		}
		return nil, fmt.Errorf("failed to get account: %w", err)
	}
	return &account, nil
}

func (r *accountRepository) UpdateProfile(ctx context.Context, id string, update identity.ProfileUpdate) error {
	query := `
		UPDATE auth_accounts
		SET display_name = COALESCE($1, display_name),
		    photo_url = COALESCE($2, photo_url),
		    updated_at = $3
		WHERE id = $4
	`

	result, err := r.db.ExecContext(ctx, query, update.DisplayName, update.PhotoURL, time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to update account profile: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return identity.ErrAccountNotFound
	}
	return nil
}

func (r *accountRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM auth_accounts WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete account: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return identity.ErrAccountNotFound
	}
	return nil
}
