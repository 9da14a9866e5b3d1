// Package memory is an in-process docstore backend used by tests and local
// tooling.
package memory

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"sync"

	"github.com/mathewtroy/candle/docstore"
)

type Op string

const (
	OpGet       Op = "get"
	OpQuery     Op = "query"
	OpSet       Op = "set"
	OpCreate    Op = "create"
	OpUpdate    Op = "update"
	OpDelete    Op = "delete"
	OpIncrement Op = "increment"
	OpSubscribe Op = "subscribe"
)

// Policy decides whether an operation is allowed. Query and Subscribe
// operations receive a Ref with only the Collection set. A non-nil error is
// returned to the caller unchanged.
type Policy func(op Op, ref docstore.Ref) error

type Store struct {
	mu          sync.RWMutex
	collections map[string]map[string]map[string]any
	policy      Policy
	hub         *docstore.Hub
}

type Option func(*Store)

func WithPolicy(p Policy) Option {
	return func(s *Store) {
		s.policy = p
	}
}

func New(opts ...Option) *Store {
	s := &Store{
		collections: make(map[string]map[string]map[string]any),
		hub:         docstore.NewHub(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SetPolicy replaces the access policy.
func (s *Store) SetPolicy(p Policy) {
	s.mu.Lock()
	s.policy = p
	s.mu.Unlock()
}

// Watchers reports the number of live subscriptions.
func (s *Store) Watchers() int {
	return s.hub.Len()
}

func (s *Store) check(op Op, ref docstore.Ref) error {
	s.mu.RLock()
	p := s.policy
	s.mu.RUnlock()
	if p == nil {
		return nil
	}
	return p(op, ref)
}

func (s *Store) Get(ctx context.Context, ref docstore.Ref) (*docstore.Snapshot, error) {
	if err := ref.Validate(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := s.check(OpGet, ref); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	doc, ok := s.collections[ref.Collection][ref.ID]
	if !ok {
		return nil, docstore.ErrNotFound
	}
	return snapshot(ref, doc)
}

func (s *Store) Query(ctx context.Context, q docstore.Query) ([]*docstore.Snapshot, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := s.check(OpQuery, docstore.Ref{Collection: q.Collection}); err != nil {
		return nil, err
	}
	return s.run(q)
}

func (s *Store) run(q docstore.Query) ([]*docstore.Snapshot, error) {
	where := make([]docstore.Filter, len(q.Where))
	for i, f := range q.Where {
		v, err := docstore.NormalizeValue(f.Value)
		if err != nil {
			return nil, err
		}
		where[i] = docstore.Filter{Field: f.Field, Value: v}
	}
	start, err := normalizeBound(q.StartAt)
	if err != nil {
		return nil, err
	}
	end, err := normalizeBound(q.EndAt)
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	type entry struct {
		id  string
		doc map[string]any
	}
	var matched []entry

	for id, doc := range s.collections[q.Collection] {
		if !matches(doc, where) {
			continue
		}
		if q.OrderBy != "" {
			v, ok := doc[q.OrderBy]
			if !ok {
				continue
			}
			if start != nil && docstore.Compare(v, start) < 0 {
				continue
			}
			if end != nil && docstore.Compare(v, end) > 0 {
				continue
			}
		}
		matched = append(matched, entry{id: id, doc: doc})
	}

	sort.Slice(matched, func(i, j int) bool {
		if q.OrderBy != "" {
			c := docstore.Compare(matched[i].doc[q.OrderBy], matched[j].doc[q.OrderBy])
			if c != 0 {
				if q.Desc {
					return c > 0
				}
				return c < 0
			}
		}
		if q.Desc {
			return matched[i].id > matched[j].id
		}
		return matched[i].id < matched[j].id
	})

	if q.Limit > 0 && len(matched) > q.Limit {
		matched = matched[:q.Limit]
	}

	out := make([]*docstore.Snapshot, 0, len(matched))
	for _, e := range matched {
		snap, err := snapshot(docstore.Ref{Collection: q.Collection, ID: e.id}, e.doc)
		if err != nil {
			return nil, err
		}
		out = append(out, snap)
	}
	return out, nil
}

func (s *Store) Set(ctx context.Context, ref docstore.Ref, data any) error {
	return s.write(ctx, OpSet, ref, data)
}

func (s *Store) Create(ctx context.Context, ref docstore.Ref, data any) error {
	return s.write(ctx, OpCreate, ref, data)
}

func (s *Store) write(ctx context.Context, op Op, ref docstore.Ref, data any) error {
	if err := ref.Validate(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.check(op, ref); err != nil {
		return err
	}
	doc, err := docstore.Normalize(data)
	if err != nil {
		return err
	}

	s.mu.Lock()
	coll, ok := s.collections[ref.Collection]
	if !ok {
		coll = make(map[string]map[string]any)
		s.collections[ref.Collection] = coll
	}
	if _, exists := coll[ref.ID]; exists && op == OpCreate {
		s.mu.Unlock()
		return docstore.ErrAlreadyExists
	}
	coll[ref.ID] = doc
	s.mu.Unlock()

	s.hub.Notify(ref.Collection)
	return nil
}

func (s *Store) Update(ctx context.Context, ref docstore.Ref, fields map[string]any) error {
	if err := ref.Validate(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.check(OpUpdate, ref); err != nil {
		return err
	}
	patch, err := docstore.Normalize(fields)
	if err != nil {
		return err
	}

	s.mu.Lock()
	doc, ok := s.collections[ref.Collection][ref.ID]
	if !ok {
		s.mu.Unlock()
		return docstore.ErrNotFound
	}
	for k, v := range patch {
		doc[k] = v
	}
	s.mu.Unlock()

	s.hub.Notify(ref.Collection)
	return nil
}

func (s *Store) Delete(ctx context.Context, ref docstore.Ref) error {
	if err := ref.Validate(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.check(OpDelete, ref); err != nil {
		return err
	}

	s.mu.Lock()
	if _, ok := s.collections[ref.Collection][ref.ID]; !ok {
		s.mu.Unlock()
		return docstore.ErrNotFound
	}
	delete(s.collections[ref.Collection], ref.ID)
	s.mu.Unlock()

	s.hub.Notify(ref.Collection)
	return nil
}

func (s *Store) Increment(ctx context.Context, ref docstore.Ref, field string, delta int64) error {
	if err := ref.Validate(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.check(OpIncrement, ref); err != nil {
		return err
	}

	s.mu.Lock()
	doc, ok := s.collections[ref.Collection][ref.ID]
	if !ok {
		s.mu.Unlock()
		return docstore.ErrNotFound
	}
	var current float64
	switch v := doc[field].(type) {
	case nil:
	case float64:
		current = v
	default:
		s.mu.Unlock()
		return fmt.Errorf("docstore: field %q of %s is not numeric", field, ref)
	}
	doc[field] = max(current+float64(delta), 0)
	s.mu.Unlock()

	s.hub.Notify(ref.Collection)
	return nil
}

func (s *Store) Subscribe(ctx context.Context, q docstore.Query, next func(docstore.QuerySnapshot)) (docstore.Subscription, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}
	if err := s.check(OpSubscribe, docstore.Ref{Collection: q.Collection}); err != nil {
		return nil, err
	}
	run := func(ctx context.Context, q docstore.Query) ([]*docstore.Snapshot, error) {
		if err := s.check(OpQuery, docstore.Ref{Collection: q.Collection}); err != nil {
			return nil, err
		}
		return s.run(q)
	}
	return s.hub.Watch(ctx, q, run, next), nil
}

func (s *Store) Close() error {
	s.hub.Close()
	return nil
}

// Collections lists the collection paths that currently hold documents.
func (s *Store) Collections() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []string
	for name, docs := range s.collections {
		if len(docs) > 0 {
			out = append(out, name)
		}
	}
	slices.Sort(out)
	return out
}

func matches(doc map[string]any, where []docstore.Filter) bool {
	for _, f := range where {
		v, ok := doc[f.Field]
		if !ok || !docstore.Equal(v, f.Value) {
			return false
		}
	}
	return true
}

func normalizeBound(v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	return docstore.NormalizeValue(v)
}

func snapshot(ref docstore.Ref, doc map[string]any) (*docstore.Snapshot, error) {
	data, err := docstore.Normalize(doc)
	if err != nil {
		return nil, err
	}
	return &docstore.Snapshot{Ref: ref, Data: data}, nil
}
