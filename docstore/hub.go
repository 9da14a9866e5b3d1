package docstore

import (
	"context"
	"sync"
)

// Runner executes a query against a backend.
type Runner func(ctx context.Context, q Query) ([]*Snapshot, error)

// Hub fans change notifications out to live query subscriptions. Backends
// call Notify with the collection path that changed; every watcher of that
// collection re-runs its query and emits the full result set. Bursts of
// notifications collapse into a single re-query.
type Hub struct {
	mu       sync.Mutex
	watchers map[*watcher]struct{}
}

func NewHub() *Hub {
	return &Hub{watchers: make(map[*watcher]struct{})}
}

type watcher struct {
	collection string
	dirty      chan struct{}
	cancel     context.CancelFunc
	done       chan struct{}
}

// Stop cancels the watcher and waits for its goroutine to exit.
func (w *watcher) Stop() {
	w.cancel()
	<-w.done
}

// Watch starts a subscription. The first emission is the current result of
// the query; later emissions follow Notify calls for q.Collection. A failed
// query is delivered once as a terminal QuerySnapshot with Err set.
func (h *Hub) Watch(ctx context.Context, q Query, run Runner, next func(QuerySnapshot)) Subscription {
	ctx, cancel := context.WithCancel(ctx)
	w := &watcher{
		collection: q.Collection,
		dirty:      make(chan struct{}, 1),
		cancel:     cancel,
		done:       make(chan struct{}),
	}

	h.mu.Lock()
	h.watchers[w] = struct{}{}
	h.mu.Unlock()

	go func() {
		defer close(w.done)
		defer h.remove(w)

		for {
			docs, err := run(ctx, q)
			if ctx.Err() != nil {
				return
			}
			if err != nil {
				next(QuerySnapshot{Err: err})
				return
			}
			next(QuerySnapshot{Docs: docs})

			select {
			case <-ctx.Done():
				return
			case <-w.dirty:
			}
		}
	}()

	return w
}

// Notify marks every watcher of collection dirty.
func (h *Hub) Notify(collection string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for w := range h.watchers {
		if w.collection == collection {
			w.poke()
		}
	}
}

// NotifyAll marks every watcher dirty, e.g. after a lost change feed.
func (h *Hub) NotifyAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for w := range h.watchers {
		w.poke()
	}
}

// Len reports the number of active watchers.
func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.watchers)
}

// Close stops every watcher.
func (h *Hub) Close() {
	h.mu.Lock()
	ws := make([]*watcher, 0, len(h.watchers))
	for w := range h.watchers {
		ws = append(ws, w)
	}
	h.mu.Unlock()

	for _, w := range ws {
		w.Stop()
	}
}

func (h *Hub) remove(w *watcher) {
	h.mu.Lock()
	delete(h.watchers, w)
	h.mu.Unlock()
}

func (w *watcher) poke() {
	select {
	case w.dirty <- struct{}{}:
	default:
	}
}
