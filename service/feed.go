package service

import (
	"context"
	"log"
	"sync"

	"golang.org/x/sync/errgroup"

	models "github.com/mathewtroy/candle/model"
	"github.com/mathewtroy/candle/repository"
)

const likeLookupConcurrency = 8

// FeedEvent is one emission of a live feed: either the author's full
// current post list, newest first, or a terminal error.
type FeedEvent struct {
	Posts []models.PostWithLikeStatus
	Err   error
}

// Feed is a live subscription to one author's posts. Events is closed
// after a terminal error or after Cancel.
type Feed struct {
	events chan FeedEvent
	cancel context.CancelFunc
	done   chan struct{}
}

func (f *Feed) Events() <-chan FeedEvent {
	return f.events
}

// Cancel stops the subscription and returns once no further events will
// be delivered and the store listener is released.
func (f *Feed) Cancel() {
	f.cancel()
	<-f.done
}

type FeedSubscriber struct {
	search *Search
	posts  repository.PostRepository
	likes  repository.LikeRepository
}

func NewFeedSubscriber(search *Search, posts repository.PostRepository, likes repository.LikeRepository) *FeedSubscriber {
	return &FeedSubscriber{
		search: search,
		posts:  posts,
		likes:  likes,
	}
}

// Subscribe streams the posts of the identity owning handle. viewer may be
// nil; when set every post carries whether the viewer likes it.
func (s *FeedSubscriber) Subscribe(ctx context.Context, handle string, viewer *models.Session) *Feed {
	ctx, cancel := context.WithCancel(ctx)
	f := &Feed{
		events: make(chan FeedEvent),
		cancel: cancel,
		done:   make(chan struct{}),
	}

	var viewerID string
	if viewer != nil {
		viewerID = viewer.UserID
	}

	go s.run(ctx, f, handle, viewerID)
	return f
}

func (s *FeedSubscriber) run(ctx context.Context, f *Feed, handle, viewerID string) {
	defer close(f.done)
	defer close(f.events)

	author, err := s.search.FindExact(ctx, handle)
	if err != nil {
		send(ctx, nil, f.events, FeedEvent{Err: err})
		return
	}

	terminal := make(chan struct{})
	var once sync.Once
	finish := func() { once.Do(func() { close(terminal) }) }

	sub, err := s.posts.SubscribeByAuthor(ctx, author.ID, func(posts []*models.Post, err error) {
		select {
		case <-terminal:
			return
		default:
		}

		if err != nil {
			send(ctx, terminal, f.events, FeedEvent{Err: storeErr("watch posts", err)})
			finish()
			return
		}

		hydrated := s.hydrate(ctx, posts, viewerID)
		if ctx.Err() != nil {
			return
		}
		send(ctx, terminal, f.events, FeedEvent{Posts: hydrated})
	})
	if err != nil {
		send(ctx, nil, f.events, FeedEvent{Err: storeErr("watch posts", err)})
		return
	}

	select {
	case <-ctx.Done():
	case <-terminal:
	}
	sub.Stop()
}

// hydrate marks the posts the viewer likes. The lookups are not atomic
// with the snapshot; a failed lookup leaves the post unliked.
func (s *FeedSubscriber) hydrate(ctx context.Context, posts []*models.Post, viewerID string) []models.PostWithLikeStatus {
	out := make([]models.PostWithLikeStatus, len(posts))
	for i, post := range posts {
		out[i].Post = *post
	}
	if viewerID == "" {
		return out
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(likeLookupConcurrency)
	for i := range out {
		g.Go(func() error {
			liked, err := s.likes.Exists(gctx, out[i].ID, viewerID)
			if err != nil {
				if gctx.Err() == nil {
					log.Printf("Failed to check like of post %s: %v", out[i].ID, err)
				}
				return nil
			}
			out[i].LikedByViewer = liked
			return nil
		})
	}
	_ = g.Wait()

	return out
}

func send(ctx context.Context, stop <-chan struct{}, ch chan<- FeedEvent, ev FeedEvent) bool {
	select {
	case ch <- ev:
		return true
	case <-ctx.Done():
		return false
	case <-stop:
		return false
	}
}
