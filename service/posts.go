package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/mathewtroy/candle/docstore"
	"github.com/mathewtroy/candle/events"
	models "github.com/mathewtroy/candle/model"
	"github.com/mathewtroy/candle/repository"
)

const MaxPostLength = 1000

type PostService struct {
	identities repository.IdentityRepository
	posts      repository.PostRepository
	likes      repository.LikeRepository
	events     EventPublisher
}

func NewPostService(identities repository.IdentityRepository, posts repository.PostRepository, likes repository.LikeRepository, events EventPublisher) *PostService {
	return &PostService{
		identities: identities,
		posts:      posts,
		likes:      likes,
		events:     events,
	}
}

// Create publishes a post for the signed-in author. The author's handle
// and avatar are copied onto the post.
func (s *PostService) Create(ctx context.Context, author *models.Session, content string) (*models.Post, error) {
	if author == nil {
		return nil, ErrPermissionDenied
	}
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, fmt.Errorf("%w: post content is required", ErrInvalidInput)
	}
	if utf8.RuneCountInString(content) > MaxPostLength {
		return nil, fmt.Errorf("%w: post must be at most %d characters", ErrInvalidInput, MaxPostLength)
	}

	ident, err := s.identities.GetByID(ctx, author.UserID)
	if errors.Is(err, docstore.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, storeErr("load author", err)
	}

	post := &models.Post{
		ID:           uuid.New().String(),
		AuthorID:     ident.ID,
		AuthorHandle: ident.Handle,
		Content:      content,
		AvatarURL:    ident.AvatarURL,
		LikeCount:    0,
		CreatedAt:    time.Now().UTC(),
	}
	if err := s.posts.Create(ctx, post); err != nil {
		return nil, storeErr("create post", err)
	}

	publish(s.events, events.PostCreated, events.PostCreatedEvent{
		PostID:    post.ID,
		AuthorID:  post.AuthorID,
		Content:   post.Content,
		CreatedAt: post.CreatedAt,
	})

	return post, nil
}

// Delete removes one of the author's own posts together with its likes.
func (s *PostService) Delete(ctx context.Context, author *models.Session, postID string) error {
	if author == nil {
		return ErrPermissionDenied
	}

	post, err := s.posts.GetByID(ctx, postID)
	if errors.Is(err, docstore.ErrNotFound) {
		return ErrNotFound
	}
	if err != nil {
		return storeErr("load post", err)
	}
	if post.AuthorID != author.UserID {
		return ErrPermissionDenied
	}

	if err := s.deleteWithLikes(ctx, postID); err != nil {
		return err
	}

	publish(s.events, events.PostDeleted, events.PostDeletedEvent{
		PostID:    postID,
		AuthorID:  post.AuthorID,
		Timestamp: time.Now().UTC(),
	})
	return nil
}

func (s *PostService) deleteWithLikes(ctx context.Context, postID string) error {
	if _, err := s.likes.DeleteAllForPost(ctx, postID); err != nil {
		return storeErr("delete likes", err)
	}
	if err := s.posts.Delete(ctx, postID); err != nil && !errors.Is(err, docstore.ErrNotFound) {
		return storeErr("delete post", err)
	}
	return nil
}
