package service

import (
	"context"
	"errors"
	"time"

	"github.com/mathewtroy/candle/docstore"
	"github.com/mathewtroy/candle/events"
	"github.com/mathewtroy/candle/repository"
)

type ToggleResult struct {
	Liked bool `json:"liked"`
}

// LikeToggler flips a viewer's like on a post and keeps the post's
// likeCount in step with the like records.
type LikeToggler struct {
	identities repository.IdentityRepository
	posts      repository.PostRepository
	likes      repository.LikeRepository
	events     EventPublisher
}

func NewLikeToggler(identities repository.IdentityRepository, posts repository.PostRepository, likes repository.LikeRepository, events EventPublisher) *LikeToggler {
	return &LikeToggler{
		identities: identities,
		posts:      posts,
		likes:      likes,
		events:     events,
	}
}

// Toggle removes the viewer's like when present and adds it otherwise.
// The counter moves only when this call changed the like record.
func (t *LikeToggler) Toggle(ctx context.Context, postID, viewerID string) (*ToggleResult, error) {
	if postID == "" || viewerID == "" {
		return nil, ErrInvalidInput
	}

	if _, err := t.posts.GetByID(ctx, postID); err != nil {
		if errors.Is(err, docstore.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, storeErr("load post", err)
	}

	// a deleted identity may still hold a session
	if _, err := t.identities.GetByID(ctx, viewerID); err != nil {
		if errors.Is(err, docstore.ErrNotFound) {
			return nil, ErrPermissionDenied
		}
		return nil, storeErr("load viewer", err)
	}

	liked, err := t.likes.Exists(ctx, postID, viewerID)
	if err != nil {
		return nil, storeErr("read like", err)
	}

	if liked {
		return t.unlike(ctx, postID, viewerID)
	}
	return t.like(ctx, postID, viewerID)
}

func (t *LikeToggler) like(ctx context.Context, postID, viewerID string) (*ToggleResult, error) {
	err := t.likes.Create(ctx, postID, viewerID)
	if errors.Is(err, docstore.ErrAlreadyExists) {
		return &ToggleResult{Liked: true}, nil
	}
	if err != nil {
		return nil, storeErr("create like", err)
	}

	if err := t.posts.IncrementLikes(ctx, postID, 1); err != nil {
		t.drifted(postID, err)
		return nil, storeErr("increment like count", err)
	}

	t.toggled(postID, viewerID, true)
	return &ToggleResult{Liked: true}, nil
}

func (t *LikeToggler) unlike(ctx context.Context, postID, viewerID string) (*ToggleResult, error) {
	err := t.likes.Delete(ctx, postID, viewerID)
	if errors.Is(err, docstore.ErrNotFound) {
		return &ToggleResult{Liked: false}, nil
	}
	if err != nil {
		return nil, storeErr("delete like", err)
	}

	if err := t.posts.IncrementLikes(ctx, postID, -1); err != nil {
		t.drifted(postID, err)
		return nil, storeErr("decrement like count", err)
	}

	t.toggled(postID, viewerID, false)
	return &ToggleResult{Liked: false}, nil
}

func (t *LikeToggler) toggled(postID, viewerID string, liked bool) {
	publish(t.events, events.PostLikeToggled, events.PostLikeToggledEvent{
		PostID:    postID,
		UserID:    viewerID,
		Liked:     liked,
		Timestamp: time.Now().UTC(),
	})
}

func (t *LikeToggler) drifted(postID string, cause error) {
	publish(t.events, events.PostLikesDrifted, events.PostLikesDriftedEvent{
		PostID:    postID,
		Reason:    cause.Error(),
		Timestamp: time.Now().UTC(),
	})
}
