package repository

import (
	"context"
	"fmt"

	"github.com/mathewtroy/candle/docstore"
	models "github.com/mathewtroy/candle/model"
)

const postsCollection = "posts"

type PostRepository interface {
	GetByID(ctx context.Context, id string) (*models.Post, error)
	Create(ctx context.Context, post *models.Post) error
	Delete(ctx context.Context, id string) error
	ListByAuthor(ctx context.Context, authorID string) ([]*models.Post, error)
	// SubscribeByAuthor streams the author's posts newest first. next
	// receives either the full current list or a terminal error.
	SubscribeByAuthor(ctx context.Context, authorID string, next func([]*models.Post, error)) (docstore.Subscription, error)
	ListIDs(ctx context.Context) ([]string, error)
	SetAvatar(ctx context.Context, postID, avatarURL string) error
	IncrementLikes(ctx context.Context, postID string, delta int64) error
	SetLikeCount(ctx context.Context, postID string, count int64) error
}

type postRepository struct {
	store docstore.Store
}

func NewPostRepository(store docstore.Store) PostRepository {
	return &postRepository{store: store}
}

func decodePost(snap *docstore.Snapshot) (*models.Post, error) {
	var post models.Post
	if err := snap.DataTo(&post); err != nil {
		return nil, err
	}
	post.ID = snap.Ref.ID
	return &post, nil
}

func decodePosts(docs []*docstore.Snapshot) ([]*models.Post, error) {
	posts := make([]*models.Post, 0, len(docs))
	for _, doc := range docs {
		post, err := decodePost(doc)
		if err != nil {
			return nil, err
		}
		posts = append(posts, post)
	}
	return posts, nil
}

func authorQuery(authorID string) docstore.Query {
	return docstore.Query{
		Collection: postsCollection,
		Where:      []docstore.Filter{{Field: "authorId", Value: authorID}},
		OrderBy:    "createdAt",
		Desc:       true,
	}
}

func (r *postRepository) GetByID(ctx context.Context, id string) (*models.Post, error) {
	snap, err := r.store.Get(ctx, docstore.Doc(postsCollection, id))
	if err != nil {
		return nil, fmt.Errorf("failed to get post %s: %w", id, err)
	}
	return decodePost(snap)
}

func (r *postRepository) Create(ctx context.Context, post *models.Post) error {
	if err := r.store.Create(ctx, docstore.Doc(postsCollection, post.ID), post); err != nil {
		return fmt.Errorf("failed to create post: %w", err)
	}
	return nil
}

func (r *postRepository) Delete(ctx context.Context, id string) error {
	if err := r.store.Delete(ctx, docstore.Doc(postsCollection, id)); err != nil {
		return fmt.Errorf("failed to delete post %s: %w", id, err)
	}
	return nil
}

func (r *postRepository) ListByAuthor(ctx context.Context, authorID string) ([]*models.Post, error) {
	docs, err := r.store.Query(ctx, authorQuery(authorID))
	if err != nil {
		return nil, fmt.Errorf("failed to list posts of %s: %w", authorID, err)
	}
	return decodePosts(docs)
}

func (r *postRepository) SubscribeByAuthor(ctx context.Context, authorID string, next func([]*models.Post, error)) (docstore.Subscription, error) {
	sub, err := r.store.Subscribe(ctx, authorQuery(authorID), func(qs docstore.QuerySnapshot) {
		if qs.Err != nil {
			next(nil, qs.Err)
			return
		}
		posts, err := decodePosts(qs.Docs)
		next(posts, err)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe to posts of %s: %w", authorID, err)
	}
	return sub, nil
}

func (r *postRepository) ListIDs(ctx context.Context) ([]string, error) {
	docs, err := r.store.Query(ctx, docstore.Query{Collection: postsCollection})
	if err != nil {
		return nil, fmt.Errorf("failed to list posts: %w", err)
	}
	ids := make([]string, len(docs))
	for i, doc := range docs {
		ids[i] = doc.Ref.ID
	}
	return ids, nil
}

func (r *postRepository) SetAvatar(ctx context.Context, postID, avatarURL string) error {
	err := r.store.Update(ctx, docstore.Doc(postsCollection, postID), map[string]any{"avatarUrl": avatarURL})
	if err != nil {
		return fmt.Errorf("failed to update avatar of post %s: %w", postID, err)
	}
	return nil
}

func (r *postRepository) IncrementLikes(ctx context.Context, postID string, delta int64) error {
	if err := r.store.Increment(ctx, docstore.Doc(postsCollection, postID), "likeCount", delta); err != nil {
		return fmt.Errorf("failed to change like count of post %s: %w", postID, err)
	}
	return nil
}

func (r *postRepository) SetLikeCount(ctx context.Context, postID string, count int64) error {
	err := r.store.Update(ctx, docstore.Doc(postsCollection, postID), map[string]any{"likeCount": count})
	if err != nil {
		return fmt.Errorf("failed to set like count of post %s: %w", postID, err)
	}
	return nil
}
