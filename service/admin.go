package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/mathewtroy/candle/docstore"
	"github.com/mathewtroy/candle/events"
	"github.com/mathewtroy/candle/identity"
	models "github.com/mathewtroy/candle/model"
	"github.com/mathewtroy/candle/repository"
)

type DeleteResult struct {
	PostsDeleted int `json:"postsDeleted"`
	PostsFailed  int `json:"postsFailed"`
}

// Moderator implements the admin operations. Every operation requires the
// caller's identity to hold the admin role, and admins cannot change or
// delete their own identity.
type Moderator struct {
	identities repository.IdentityRepository
	posts      repository.PostRepository
	postSvc    *PostService
	provider   identity.Provider
	events     EventPublisher
}

func NewModerator(identities repository.IdentityRepository, posts repository.PostRepository, postSvc *PostService, provider identity.Provider, events EventPublisher) *Moderator {
	return &Moderator{
		identities: identities,
		posts:      posts,
		postSvc:    postSvc,
		provider:   provider,
		events:     events,
	}
}

// RequireAdmin returns ErrPermissionDenied unless callerID is an admin.
func (m *Moderator) RequireAdmin(ctx context.Context, callerID string) error {
	if callerID == "" {
		return ErrPermissionDenied
	}
	caller, err := m.identities.GetByID(ctx, callerID)
	if errors.Is(err, docstore.ErrNotFound) {
		return ErrPermissionDenied
	}
	if err != nil {
		return storeErr("load caller", err)
	}
	if !caller.IsAdmin() {
		return ErrPermissionDenied
	}
	return nil
}

func (m *Moderator) ListIdentities(ctx context.Context, callerID string) ([]*models.Identity, error) {
	if err := m.RequireAdmin(ctx, callerID); err != nil {
		return nil, err
	}
	list, err := m.identities.List(ctx)
	if err != nil {
		return nil, storeErr("list identities", err)
	}
	return list, nil
}

func (m *Moderator) SetRole(ctx context.Context, targetID string, role models.Role, callerID string) error {
	if targetID == callerID {
		return ErrSelfModificationForbidden
	}
	if !role.Valid() {
		return fmt.Errorf("%w: unknown role %q", ErrInvalidInput, role)
	}
	if err := m.RequireAdmin(ctx, callerID); err != nil {
		return err
	}

	err := m.identities.Update(ctx, targetID, map[string]any{"role": string(role)})
	if errors.Is(err, docstore.ErrNotFound) {
		return ErrNotFound
	}
	if err != nil {
		return storeErr("set role", err)
	}

	publish(m.events, events.IdentityRoleChanged, events.IdentityRoleChangedEvent{
		IdentityID: targetID,
		Role:       string(role),
		ChangedBy:  callerID,
		Timestamp:  time.Now().UTC(),
	})
	return nil
}

// DeleteIdentity removes an identity and its provider account, which ends
// its sessions and frees its handle and email, then deletes the posts it
// authored. Post deletion is best effort.
func (m *Moderator) DeleteIdentity(ctx context.Context, targetID, callerID string) (*DeleteResult, error) {
	if targetID == callerID {
		return nil, ErrSelfModificationForbidden
	}
	if err := m.RequireAdmin(ctx, callerID); err != nil {
		return nil, err
	}

	target, err := m.identities.GetByID(ctx, targetID)
	if errors.Is(err, docstore.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, storeErr("load identity", err)
	}

	if err := m.identities.Delete(ctx, targetID); err != nil {
		if errors.Is(err, docstore.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, storeErr("delete identity", err)
	}

	if err := m.identities.ReleaseHandle(ctx, target.HandleLower); err != nil && !errors.Is(err, docstore.ErrNotFound) {
		log.Printf("Failed to release handle %s: %v", target.HandleLower, err)
	}
	if err := m.identities.ReleaseEmail(ctx, strings.ToLower(target.Email)); err != nil && !errors.Is(err, docstore.ErrNotFound) {
		log.Printf("Failed to release email of %s: %v", targetID, err)
	}
	if err := m.provider.DeleteAccount(ctx, targetID); err != nil && !errors.Is(err, identity.ErrAccountNotFound) {
		log.Printf("Failed to delete account of %s: %v", targetID, err)
	}

	result := &DeleteResult{}
	posts, err := m.posts.ListByAuthor(ctx, targetID)
	if err != nil {
		log.Printf("Failed to list posts of deleted identity %s: %v", targetID, err)
	}
	for _, post := range posts {
		if err := m.postSvc.deleteWithLikes(ctx, post.ID); err != nil {
			log.Printf("Failed to delete post %s of %s: %v", post.ID, targetID, err)
			result.PostsFailed++
			continue
		}
		result.PostsDeleted++
	}

	publish(m.events, events.IdentityDeleted, events.IdentityDeletedEvent{
		IdentityID: targetID,
		DeletedBy:  callerID,
		Timestamp:  time.Now().UTC(),
	})

	return result, nil
}
