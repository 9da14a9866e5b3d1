package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/mathewtroy/candle/docstore"
	models "github.com/mathewtroy/candle/model"
)

const (
	usersCollection   = "users"
	handlesCollection = "handles"
	emailsCollection  = "emails"
)

// prefixSentinel is a code point above every handle character; appending
// it to a prefix yields the inclusive upper bound of a prefix range.
const prefixSentinel = "\uf8ff"

type IdentityRepository interface {
	GetByID(ctx context.Context, id string) (*models.Identity, error)
	FindByHandleLower(ctx context.Context, handleLower string) (*models.Identity, error)
	FindByEmail(ctx context.Context, email string) (*models.Identity, error)
	// SuggestByPrefix returns identities whose handleLower starts with
	// prefix, ordered by handleLower.
	SuggestByPrefix(ctx context.Context, prefix string, limit int) ([]*models.Identity, error)
	List(ctx context.Context) ([]*models.Identity, error)
	Create(ctx context.Context, identity *models.Identity) error
	Update(ctx context.Context, id string, fields map[string]any) error
	Delete(ctx context.Context, id string) error

	ReserveHandle(ctx context.Context, handleLower, identityID string) error
	ReleaseHandle(ctx context.Context, handleLower string) error
	ReserveEmail(ctx context.Context, emailLower, identityID string) error
	ReleaseEmail(ctx context.Context, emailLower string) error
}

type identityRepository struct {
	store docstore.Store
}

func NewIdentityRepository(store docstore.Store) IdentityRepository {
	return &identityRepository{store: store}
}

func decodeIdentity(snap *docstore.Snapshot) (*models.Identity, error) {
	var identity models.Identity
	if err := snap.DataTo(&identity); err != nil {
		return nil, err
	}
	identity.ID = snap.Ref.ID
	return &identity, nil
}

func (r *identityRepository) GetByID(ctx context.Context, id string) (*models.Identity, error) {
	snap, err := r.store.Get(ctx, docstore.Doc(usersCollection, id))
	if err != nil {
		return nil, fmt.Errorf("failed to get identity %s: %w", id, err)
	}
	return decodeIdentity(snap)
}

func (r *identityRepository) findOne(ctx context.Context, field, value string) (*models.Identity, error) {
	docs, err := r.store.Query(ctx, docstore.Query{
		Collection: usersCollection,
		Where:      []docstore.Filter{{Field: field, Value: value}},
		Limit:      1,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to query identities by %s: %w", field, err)
	}
	if len(docs) == 0 {
		return nil, docstore.ErrNotFound
	}
	return decodeIdentity(docs[0])
}

func (r *identityRepository) FindByHandleLower(ctx context.Context, handleLower string) (*models.Identity, error) {
	return r.findOne(ctx, "handleLower", handleLower)
}

func (r *identityRepository) FindByEmail(ctx context.Context, email string) (*models.Identity, error) {
	return r.findOne(ctx, "email", email)
}

func (r *identityRepository) SuggestByPrefix(ctx context.Context, prefix string, limit int) ([]*models.Identity, error) {
	docs, err := r.store.Query(ctx, docstore.Query{
		Collection: usersCollection,
		OrderBy:    "handleLower",
		StartAt:    prefix,
		EndAt:      prefix + prefixSentinel,
		Limit:      limit,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to query handles by prefix: %w", err)
	}
	return decodeIdentities(docs)
}

func (r *identityRepository) List(ctx context.Context) ([]*models.Identity, error) {
	docs, err := r.store.Query(ctx, docstore.Query{
		Collection: usersCollection,
		OrderBy:    "createdAt",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list identities: %w", err)
	}
	return decodeIdentities(docs)
}

func decodeIdentities(docs []*docstore.Snapshot) ([]*models.Identity, error) {
	out := make([]*models.Identity, 0, len(docs))
	for _, doc := range docs {
		identity, err := decodeIdentity(doc)
		if err != nil {
			return nil, err
		}
		out = append(out, identity)
	}
	return out, nil
}

func (r *identityRepository) Create(ctx context.Context, identity *models.Identity) error {
	if err := r.store.Create(ctx, docstore.Doc(usersCollection, identity.ID), identity); err != nil {
		return fmt.Errorf("failed to create identity: %w", err)
	}
	return nil
}

func (r *identityRepository) Update(ctx context.Context, id string, fields map[string]any) error {
	if err := r.store.Update(ctx, docstore.Doc(usersCollection, id), fields); err != nil {
		return fmt.Errorf("failed to update identity %s: %w", id, err)
	}
	return nil
}

func (r *identityRepository) Delete(ctx context.Context, id string) error {
	if err := r.store.Delete(ctx, docstore.Doc(usersCollection, id)); err != nil {
		return fmt.Errorf("failed to delete identity %s: %w", id, err)
	}
	return nil
}

func (r *identityRepository) reserve(ctx context.Context, collection, key, identityID string) error {
	err := r.store.Create(ctx, docstore.Doc(collection, key), models.Reservation{
		IdentityID: identityID,
		CreatedAt:  time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("failed to reserve %s/%s: %w", collection, key, err)
	}
	return nil
}

func (r *identityRepository) release(ctx context.Context, collection, key string) error {
	if err := r.store.Delete(ctx, docstore.Doc(collection, key)); err != nil {
		return fmt.Errorf("failed to release %s/%s: %w", collection, key, err)
	}
	return nil
}

func (r *identityRepository) ReserveHandle(ctx context.Context, handleLower, identityID string) error {
	return r.reserve(ctx, handlesCollection, handleLower, identityID)
}

func (r *identityRepository) ReleaseHandle(ctx context.Context, handleLower string) error {
	return r.release(ctx, handlesCollection, handleLower)
}

func (r *identityRepository) ReserveEmail(ctx context.Context, emailLower, identityID string) error {
	return r.reserve(ctx, emailsCollection, emailLower, identityID)
}

func (r *identityRepository) ReleaseEmail(ctx context.Context, emailLower string) error {
	return r.release(ctx, emailsCollection, emailLower)
}
