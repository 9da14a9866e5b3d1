package service

import (
	"context"
	"errors"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mathewtroy/candle/docstore"
	"github.com/mathewtroy/candle/events"
	"github.com/mathewtroy/candle/identity"
	"github.com/mathewtroy/candle/repository"
)

const fanOutConcurrency = 10

type AvatarResult struct {
	URL     string `json:"url"`
	Updated int    `json:"updated"`
	Skipped int    `json:"skipped"`
	Failed  int    `json:"failed"`
}

// AvatarPropagator changes an identity's avatar and copies the new URL
// onto every post the identity authored.
type AvatarPropagator struct {
	identities repository.IdentityRepository
	posts      repository.PostRepository
	provider   identity.Provider
	images     *ImagePipeline
	events     EventPublisher
}

func NewAvatarPropagator(identities repository.IdentityRepository, posts repository.PostRepository, provider identity.Provider, images *ImagePipeline, events EventPublisher) *AvatarPropagator {
	return &AvatarPropagator{
		identities: identities,
		posts:      posts,
		provider:   provider,
		images:     images,
		events:     events,
	}
}

func (a *AvatarPropagator) ChangeAvatar(ctx context.Context, identityID string, img ImageFile) (*AvatarResult, error) {
	if _, err := a.identities.GetByID(ctx, identityID); err != nil {
		if errors.Is(err, docstore.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, storeErr("load identity", err)
	}

	url, err := a.images.Process(ctx, img)
	if err != nil {
		return nil, err
	}

	if err := a.provider.UpdateProfile(ctx, identityID, identity.ProfileUpdate{PhotoURL: &url}); err != nil {
		return nil, storeErr("update provider profile", err)
	}
	if err := a.identities.Update(ctx, identityID, map[string]any{"avatarUrl": url}); err != nil {
		return nil, storeErr("update identity avatar", err)
	}

	result := &AvatarResult{URL: url}
	a.fanOut(ctx, identityID, result)

	publish(a.events, events.IdentityAvatarChanged, events.IdentityAvatarChangedEvent{
		IdentityID:   identityID,
		AvatarURL:    url,
		PostsUpdated: result.Updated,
		PostsSkipped: result.Skipped,
		PostsFailed:  result.Failed,
		Timestamp:    time.Now().UTC(),
	})

	return result, nil
}

// fanOut rewrites the avatar on the author's posts. Individual failures
// are counted, never returned.
func (a *AvatarPropagator) fanOut(ctx context.Context, identityID string, result *AvatarResult) {
	posts, err := a.posts.ListByAuthor(ctx, identityID)
	if err != nil {
		log.Printf("Failed to list posts of %s for avatar update: %v", identityID, err)
		return
	}

	var updated, skipped, failed atomic.Int64
	var wg sync.WaitGroup
	sem := make(chan struct{}, fanOutConcurrency)

	for _, post := range posts {
		wg.Add(1)
		go func(postID string) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			err := a.posts.SetAvatar(ctx, postID, result.URL)
			switch {
			case err == nil:
				updated.Add(1)
			case errors.Is(err, docstore.ErrPermissionDenied):
				skipped.Add(1)
			default:
				failed.Add(1)
				log.Printf("Failed to update avatar on post %s: %v", postID, err)
			}
		}(post.ID)
	}

	wg.Wait()

	result.Updated = int(updated.Load())
	result.Skipped = int(skipped.Load())
	result.Failed = int(failed.Load())
}
