// Package docstore is a small document-store abstraction: collections of
// JSON documents addressed by path, equality/range queries, atomic
// counters, insert-if-absent writes and live query subscriptions.
//
// Backends live in subpackages (memory, postgres, mongo).
package docstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

var (
	ErrNotFound         = errors.New("docstore: document not found")
	ErrAlreadyExists    = errors.New("docstore: document already exists")
	ErrPermissionDenied = errors.New("docstore: permission denied")
)

// Ref addresses a single document. Collection may be a nested path such as
// "posts/{postId}/likes".
type Ref struct {
	Collection string
	ID         string
}

// Doc builds a Ref from a slash separated path with an even number of
// segments, e.g. Doc("posts", postID, "likes", userID).
func Doc(segments ...string) Ref {
	if len(segments) < 2 {
		return Ref{}
	}
	return Ref{
		Collection: strings.Join(segments[:len(segments)-1], "/"),
		ID:         segments[len(segments)-1],
	}
}

// Path returns the full document path.
func (r Ref) Path() string {
	return r.Collection + "/" + r.ID
}

func (r Ref) String() string {
	return r.Path()
}

// Validate checks that the ref points at a document, not a collection.
func (r Ref) Validate() error {
	if r.Collection == "" || r.ID == "" {
		return fmt.Errorf("docstore: invalid ref %q", r.Path())
	}
	if strings.Contains(r.ID, "/") {
		return fmt.Errorf("docstore: document id %q contains a slash", r.ID)
	}
	if strings.Count(r.Collection, "/")%2 != 0 {
		return fmt.Errorf("docstore: %q is not a collection path", r.Collection)
	}
	return nil
}

// Sub returns a subcollection path under this document.
func (r Ref) Sub(collection string) string {
	return r.Path() + "/" + collection
}

// ParsePath splits a full document path back into a Ref.
func ParsePath(path string) (Ref, error) {
	i := strings.LastIndex(path, "/")
	if i <= 0 || i == len(path)-1 {
		return Ref{}, fmt.Errorf("docstore: invalid document path %q", path)
	}
	ref := Ref{Collection: path[:i], ID: path[i+1:]}
	return ref, ref.Validate()
}

// Filter is an equality predicate on a top level field.
type Filter struct {
	Field string
	Value any
}

// Query selects documents from one collection. StartAt and EndAt bound the
// OrderBy field inclusively; a nil bound is open.
type Query struct {
	Collection string
	Where      []Filter
	OrderBy    string
	Desc       bool
	StartAt    any
	EndAt      any
	Limit      int
}

// Validate rejects queries the backends cannot answer.
func (q Query) Validate() error {
	if q.Collection == "" {
		return errors.New("docstore: query without collection")
	}
	if (q.StartAt != nil || q.EndAt != nil) && q.OrderBy == "" {
		return errors.New("docstore: range bounds require an order by field")
	}
	if q.Limit < 0 {
		return errors.New("docstore: negative limit")
	}
	return nil
}

// Snapshot is a document as read from the store.
type Snapshot struct {
	Ref  Ref
	Data map[string]any
}

// DataTo decodes the document into v.
func (s *Snapshot) DataTo(v any) error {
	raw, err := json.Marshal(s.Data)
	if err != nil {
		return fmt.Errorf("docstore: failed to encode %s: %w", s.Ref, err)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("docstore: failed to decode %s: %w", s.Ref, err)
	}
	return nil
}

// QuerySnapshot is one emission of a subscription: either the full current
// result set of the query, or a terminal error.
type QuerySnapshot struct {
	Docs []*Snapshot
	Err  error
}

// Subscription is a live query registration.
type Subscription interface {
	// Stop unregisters the listener. When Stop returns, next will not be
	// called again. Stop must not be called from inside next.
	Stop()
}

// Store is the document store used by every repository.
type Store interface {
	Get(ctx context.Context, ref Ref) (*Snapshot, error)
	Query(ctx context.Context, q Query) ([]*Snapshot, error)
	// Set creates or replaces the document.
	Set(ctx context.Context, ref Ref, data any) error
	// Create writes the document only if it does not exist yet and
	// returns ErrAlreadyExists otherwise.
	Create(ctx context.Context, ref Ref, data any) error
	// Update merges top level fields into an existing document.
	Update(ctx context.Context, ref Ref, fields map[string]any) error
	// Delete removes the document and returns ErrNotFound if nothing was
	// deleted.
	Delete(ctx context.Context, ref Ref) error
	// Increment atomically adds delta to a numeric field, flooring at zero.
	Increment(ctx context.Context, ref Ref, field string, delta int64) error
	Subscribe(ctx context.Context, q Query, next func(QuerySnapshot)) (Subscription, error)
	Close() error
}

// Normalize converts a document value into its stored map form.
func Normalize(data any) (map[string]any, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("docstore: failed to encode document: %w", err)
	}
	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("docstore: document must encode to an object: %w", err)
	}
	if out == nil {
		return nil, errors.New("docstore: document must not be null")
	}
	return out, nil
}

// NormalizeValue converts a scalar into the representation stored documents
// use, so filter values compare equal to stored fields.
func NormalizeValue(v any) (any, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("docstore: failed to encode value: %w", err)
	}
	var out any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("docstore: failed to decode value: %w", err)
	}
	return out, nil
}
