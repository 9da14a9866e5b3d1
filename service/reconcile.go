package service

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/mathewtroy/candle/docstore"
	"github.com/mathewtroy/candle/repository"
)

type ReconcileReport struct {
	Checked int `json:"checked"`
	Fixed   int `json:"fixed"`
	Failed  int `json:"failed"`
}

// Reconciler recomputes likeCount from the like records.
type Reconciler struct {
	posts repository.PostRepository
	likes repository.LikeRepository
}

func NewReconciler(posts repository.PostRepository, likes repository.LikeRepository) *Reconciler {
	return &Reconciler{
		posts: posts,
		likes: likes,
	}
}

// RecountPost sets the post's likeCount to the number of like records and
// returns it.
func (r *Reconciler) RecountPost(ctx context.Context, postID string) (int64, error) {
	n, err := r.likes.Count(ctx, postID)
	if err != nil {
		return 0, storeErr("count likes", err)
	}
	if err := r.posts.SetLikeCount(ctx, postID, n); err != nil {
		if errors.Is(err, docstore.ErrNotFound) {
			return 0, ErrNotFound
		}
		return 0, storeErr("set like count", err)
	}
	return n, nil
}

// RecountAll checks every post and repairs the counters that drifted.
func (r *Reconciler) RecountAll(ctx context.Context) (*ReconcileReport, error) {
	ids, err := r.posts.ListIDs(ctx)
	if err != nil {
		return nil, storeErr("list posts", err)
	}

	report := &ReconcileReport{}
	for _, id := range ids {
		if ctx.Err() != nil {
			return report, ctx.Err()
		}
		report.Checked++

		fixed, err := r.reconcile(ctx, id)
		if err != nil {
			log.Printf("Failed to reconcile likes of post %s: %v", id, err)
			report.Failed++
			continue
		}
		if fixed {
			report.Fixed++
		}
	}
	return report, nil
}

func (r *Reconciler) reconcile(ctx context.Context, postID string) (bool, error) {
	post, err := r.posts.GetByID(ctx, postID)
	if err != nil {
		return false, err
	}
	n, err := r.likes.Count(ctx, postID)
	if err != nil {
		return false, err
	}
	if post.LikeCount == n {
		return false, nil
	}
	if err := r.posts.SetLikeCount(ctx, postID, n); err != nil {
		return false, err
	}
	return true, nil
}

// Run recounts every interval until ctx is done.
func (r *Reconciler) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			report, err := r.RecountAll(ctx)
			if err != nil {
				log.Printf("Like reconciliation failed: %v", err)
				continue
			}
			if report.Fixed > 0 || report.Failed > 0 {
				log.Printf("Like reconciliation: checked=%d fixed=%d failed=%d", report.Checked, report.Fixed, report.Failed)
			}
		}
	}
}
