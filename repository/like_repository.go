package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mathewtroy/candle/docstore"
	models "github.com/mathewtroy/candle/model"
)

const likesCollection = "likes"

// LikeRepository manages like records nested under their post at
// posts/{postId}/likes/{userId}.
type LikeRepository interface {
	Exists(ctx context.Context, postID, userID string) (bool, error)
	// Create fails with docstore.ErrAlreadyExists when the user already
	// likes the post.
	Create(ctx context.Context, postID, userID string) error
	// Delete fails with docstore.ErrNotFound when there is no like.
	Delete(ctx context.Context, postID, userID string) error
	Count(ctx context.Context, postID string) (int64, error)
	DeleteAllForPost(ctx context.Context, postID string) (int, error)
}

type likeRepository struct {
	store docstore.Store
}

func NewLikeRepository(store docstore.Store) LikeRepository {
	return &likeRepository{store: store}
}

func likeRef(postID, userID string) docstore.Ref {
	return docstore.Doc(postsCollection, postID, likesCollection, userID)
}

func likesOf(postID string) string {
	return docstore.Doc(postsCollection, postID).Sub(likesCollection)
}

func (r *likeRepository) Exists(ctx context.Context, postID, userID string) (bool, error) {
	_, err := r.store.Get(ctx, likeRef(postID, userID))
	if errors.Is(err, docstore.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check like status: %w", err)
	}
	return true, nil
}

func (r *likeRepository) Create(ctx context.Context, postID, userID string) error {
	err := r.store.Create(ctx, likeRef(postID, userID), models.Like{
		UserID:    userID,
		CreatedAt: time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("failed to create like: %w", err)
	}
	return nil
}

func (r *likeRepository) Delete(ctx context.Context, postID, userID string) error {
	if err := r.store.Delete(ctx, likeRef(postID, userID)); err != nil {
		return fmt.Errorf("failed to delete like: %w", err)
	}
	return nil
}

func (r *likeRepository) Count(ctx context.Context, postID string) (int64, error) {
	docs, err := r.store.Query(ctx, docstore.Query{Collection: likesOf(postID)})
	if err != nil {
		return 0, fmt.Errorf("failed to count likes of post %s: %w", postID, err)
	}
	return int64(len(docs)), nil
}

func (r *likeRepository) DeleteAllForPost(ctx context.Context, postID string) (int, error) {
	docs, err := r.store.Query(ctx, docstore.Query{Collection: likesOf(postID)})
	if err != nil {
		return 0, fmt.Errorf("failed to list likes of post %s: %w", postID, err)
	}

	deleted := 0
	for _, doc := range docs {
		err := r.store.Delete(ctx, doc.Ref)
		if err != nil && !errors.Is(err, docstore.ErrNotFound) {
			return deleted, fmt.Errorf("failed to delete like %s: %w", doc.Ref, err)
		}
		deleted++
	}
	return deleted, nil
}
