// Package mongo maps document paths onto MongoDB collections. Top level
// documents live in the collection of the same name keyed by their id.
// Nested documents such as posts/{postId}/likes/{userId} live in the
// collection named by the last path segment ("likes"), keyed by their full
// path, with the parent document path stored in _parent.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/mathewtroy/candle/docstore"
)

const (
	fieldID     = "_id"
	fieldParent = "_parent"

	// Unauthorized
	codeUnauthorized = 13
)

// timeFields are stored as BSON dates so they sort chronologically. Every
// other string is stored as written.
var timeFields = map[string]bool{
	"createdAt": true,
	"updatedAt": true,
	"expiresAt": true,
}

type Store struct {
	db       *mongo.Database
	hub      *docstore.Hub
	watching bool
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	once     sync.Once
}

// New wraps db. When watch is set a change stream on the database feeds
// live query subscriptions; change streams need a replica set.
func New(db *mongo.Database, watch bool) *Store {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Store{
		db:       db,
		hub:      docstore.NewHub(),
		watching: watch,
		cancel:   cancel,
	}
	if watch {
		s.wg.Add(1)
		go s.watch(ctx)
	}
	return s
}

// Connect dials uri and verifies the connection.
func Connect(ctx context.Context, uri string) (*mongo.Client, error) {
	client, err := mongo.Connect(options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongo: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping mongo: %w", err)
	}
	return client, nil
}

type location struct {
	coll   string
	parent string
}

func locate(collection string) location {
	i := strings.LastIndex(collection, "/")
	if i < 0 {
		return location{coll: collection}
	}
	return location{coll: collection[i+1:], parent: collection[:i]}
}

func (l location) key(ref docstore.Ref) string {
	if l.parent == "" {
		return ref.ID
	}
	return ref.Path()
}

func (s *Store) Get(ctx context.Context, ref docstore.Ref) (*docstore.Snapshot, error) {
	if err := ref.Validate(); err != nil {
		return nil, err
	}
	loc := locate(ref.Collection)

	var doc bson.M
	err := s.db.Collection(loc.coll).FindOne(ctx, bson.M{fieldID: loc.key(ref)}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, docstore.ErrNotFound
	}
	if err != nil {
		return nil, mapError("get", ref.Path(), err)
	}
	return &docstore.Snapshot{Ref: ref, Data: fromBSON(doc)}, nil
}

func (s *Store) Query(ctx context.Context, q docstore.Query) ([]*docstore.Snapshot, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}
	loc := locate(q.Collection)

	filter, err := buildFilter(loc, q)
	if err != nil {
		return nil, err
	}

	dir := 1
	if q.Desc {
		dir = -1
	}
	opts := options.Find()
	if q.OrderBy != "" {
		opts.SetSort(bson.D{{Key: q.OrderBy, Value: dir}, {Key: fieldID, Value: dir}})
	} else {
		opts.SetSort(bson.D{{Key: fieldID, Value: 1}})
	}
	if q.Limit > 0 {
		opts.SetLimit(int64(q.Limit))
	}

	cursor, err := s.db.Collection(loc.coll).Find(ctx, filter, opts)
	if err != nil {
		return nil, mapError("query", q.Collection, err)
	}
	defer cursor.Close(ctx)

	var out []*docstore.Snapshot
	for cursor.Next(ctx) {
		var doc bson.M
		if err := cursor.Decode(&doc); err != nil {
			return nil, fmt.Errorf("failed to decode %s document: %w", q.Collection, err)
		}
		id, _ := doc[fieldID].(string)
		if loc.parent != "" {
			id = id[strings.LastIndex(id, "/")+1:]
		}
		out = append(out, &docstore.Snapshot{
			Ref:  docstore.Ref{Collection: q.Collection, ID: id},
			Data: fromBSON(doc),
		})
	}
	if err := cursor.Err(); err != nil {
		return nil, mapError("query", q.Collection, err)
	}
	return out, nil
}

func buildFilter(loc location, q docstore.Query) (bson.M, error) {
	filter := bson.M{}
	if loc.parent != "" {
		filter[fieldParent] = loc.parent
	}
	for _, f := range q.Where {
		v, err := docstore.NormalizeValue(f.Value)
		if err != nil {
			return nil, err
		}
		filter[f.Field] = toBSON(f.Field, v)
	}
	if q.OrderBy != "" {
		cond := bson.M{"$exists": true}
		if q.StartAt != nil {
			v, err := docstore.NormalizeValue(q.StartAt)
			if err != nil {
				return nil, err
			}
			cond["$gte"] = toBSON(q.OrderBy, v)
		}
		if q.EndAt != nil {
			v, err := docstore.NormalizeValue(q.EndAt)
			if err != nil {
				return nil, err
			}
			cond["$lte"] = toBSON(q.OrderBy, v)
		}
		filter[q.OrderBy] = cond
	}
	return filter, nil
}

func (s *Store) document(ref docstore.Ref, data any) (location, bson.M, error) {
	if err := ref.Validate(); err != nil {
		return location{}, nil, err
	}
	norm, err := docstore.Normalize(data)
	if err != nil {
		return location{}, nil, err
	}
	loc := locate(ref.Collection)
	doc := toBSON("", norm).(bson.M)
	doc[fieldID] = loc.key(ref)
	if loc.parent != "" {
		doc[fieldParent] = loc.parent
	}
	return loc, doc, nil
}

func (s *Store) Set(ctx context.Context, ref docstore.Ref, data any) error {
	loc, doc, err := s.document(ref, data)
	if err != nil {
		return err
	}
	_, err = s.db.Collection(loc.coll).ReplaceOne(ctx,
		bson.M{fieldID: doc[fieldID]}, doc,
		options.Replace().SetUpsert(true),
	)
	if err != nil {
		return mapError("set", ref.Path(), err)
	}
	return nil
}

func (s *Store) Create(ctx context.Context, ref docstore.Ref, data any) error {
	loc, doc, err := s.document(ref, data)
	if err != nil {
		return err
	}
	_, err = s.db.Collection(loc.coll).InsertOne(ctx, doc)
	if mongo.IsDuplicateKeyError(err) {
		return docstore.ErrAlreadyExists
	}
	if err != nil {
		return mapError("create", ref.Path(), err)
	}
	return nil
}

func (s *Store) Update(ctx context.Context, ref docstore.Ref, fields map[string]any) error {
	if err := ref.Validate(); err != nil {
		return err
	}
	norm, err := docstore.Normalize(fields)
	if err != nil {
		return err
	}
	loc := locate(ref.Collection)

	res, err := s.db.Collection(loc.coll).UpdateOne(ctx,
		bson.M{fieldID: loc.key(ref)},
		bson.M{"$set": toBSON("", norm)},
	)
	if err != nil {
		return mapError("update", ref.Path(), err)
	}
	if res.MatchedCount == 0 {
		return docstore.ErrNotFound
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, ref docstore.Ref) error {
	if err := ref.Validate(); err != nil {
		return err
	}
	loc := locate(ref.Collection)

	res, err := s.db.Collection(loc.coll).DeleteOne(ctx, bson.M{fieldID: loc.key(ref)})
	if err != nil {
		return mapError("delete", ref.Path(), err)
	}
	if res.DeletedCount == 0 {
		return docstore.ErrNotFound
	}
	return nil
}

func (s *Store) Increment(ctx context.Context, ref docstore.Ref, field string, delta int64) error {
	if err := ref.Validate(); err != nil {
		return err
	}
	loc := locate(ref.Collection)

	// floor at zero, which $inc cannot express
	current := bson.D{{Key: "$ifNull", Value: bson.A{"$" + field, 0}}}
	sum := bson.D{{Key: "$add", Value: bson.A{current, delta}}}
	floored := bson.D{{Key: "$max", Value: bson.A{0, sum}}}
	update := mongo.Pipeline{
		bson.D{{Key: "$set", Value: bson.D{{Key: field, Value: floored}}}},
	}

	res, err := s.db.Collection(loc.coll).UpdateOne(ctx, bson.M{fieldID: loc.key(ref)}, update)
	if err != nil {
		return mapError("increment", ref.Path(), err)
	}
	if res.MatchedCount == 0 {
		return docstore.ErrNotFound
	}
	return nil
}

func (s *Store) Subscribe(ctx context.Context, q docstore.Query, next func(docstore.QuerySnapshot)) (docstore.Subscription, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}
	if !s.watching {
		return nil, errors.New("docstore: mongo store opened without a change stream")
	}
	return s.hub.Watch(ctx, q, s.Query, next), nil
}

type changeEvent struct {
	NS struct {
		Coll string `bson:"coll"`
	} `bson:"ns"`
	DocumentKey struct {
		ID any `bson:"_id"`
	} `bson:"documentKey"`
}

// collection recovers the document path collection from a change event.
func (e changeEvent) collection() string {
	if id, ok := e.DocumentKey.ID.(string); ok {
		if i := strings.LastIndex(id, "/"); i > 0 {
			return id[:i]
		}
	}
	return e.NS.Coll
}

func (s *Store) watch(ctx context.Context) {
	defer s.wg.Done()

	for ctx.Err() == nil {
		stream, err := s.db.Watch(ctx, mongo.Pipeline{})
		if err != nil {
			log.Printf("docstore change stream failed to open: %v", err)
			if !sleep(ctx, 2*time.Second) {
				return
			}
			continue
		}

		// a fresh stream may have missed events
		s.hub.NotifyAll()

		for stream.Next(ctx) {
			var ev changeEvent
			if err := stream.Decode(&ev); err != nil {
				log.Printf("docstore change event decode failed: %v", err)
				continue
			}
			s.hub.Notify(ev.collection())
		}
		if err := stream.Err(); err != nil && ctx.Err() == nil {
			log.Printf("docstore change stream interrupted: %v", err)
		}
		_ = stream.Close(context.Background())
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// Close stops the change stream and subscriptions. The client is owned by
// the caller.
func (s *Store) Close() error {
	s.once.Do(func() {
		s.cancel()
		s.hub.Close()
		s.wg.Wait()
	})
	return nil
}

func mapError(op, target string, err error) error {
	var se mongo.ServerError
	if errors.As(err, &se) && se.HasErrorCode(codeUnauthorized) {
		return fmt.Errorf("%w: %s %s: %v", docstore.ErrPermissionDenied, op, target, err)
	}
	return fmt.Errorf("failed to %s %s: %w", op, target, err)
}

// toBSON converts a normalized value stored under field. Only strings under
// timeFields become BSON dates.
func toBSON(field string, v any) any {
	switch tv := v.(type) {
	case map[string]any:
		out := bson.M{}
		for k, val := range tv {
			out[k] = toBSON(k, val)
		}
		return out
	case []any:
		out := make(bson.A, len(tv))
		for i, val := range tv {
			out[i] = toBSON(field, val)
		}
		return out
	case string:
		if !timeFields[field] {
			return tv
		}
		if t, ok := timestamp(tv); ok {
			return t
		}
		return tv
	default:
		return tv
	}
}

func fromBSON(doc bson.M) map[string]any {
	out := make(map[string]any, len(doc))
	for k, v := range doc {
		if k == fieldID || k == fieldParent {
			continue
		}
		out[k] = fromValue(v)
	}
	return out
}

func fromValue(v any) any {
	switch tv := v.(type) {
	case bson.M:
		return fromBSON(tv)
	case bson.D:
		m := make(bson.M, len(tv))
		for _, e := range tv {
			m[e.Key] = e.Value
		}
		return fromBSON(m)
	case bson.A:
		out := make([]any, len(tv))
		for i, val := range tv {
			out[i] = fromValue(val)
		}
		return out
	case bson.DateTime:
		return tv.Time().UTC().Format(time.RFC3339Nano)
	case time.Time:
		return tv.UTC().Format(time.RFC3339Nano)
	case int32:
		return float64(tv)
	case int64:
		return float64(tv)
	default:
		return tv
	}
}

func timestamp(s string) (time.Time, bool) {
	if len(s) < len("2006-01-02T15:04:05Z") || s[4] != '-' || s[10] != 'T' {
		return time.Time{}, false
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}
