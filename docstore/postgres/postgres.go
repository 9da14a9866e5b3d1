// Package postgres stores documents as JSONB rows and turns LISTEN/NOTIFY
// into live query updates.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/mathewtroy/candle/docstore"
)

// insufficient_privilege, raised by GRANT checks and row level security.
const codeInsufficientPrivilege = "42501"

type Store struct {
	db       *sqlx.DB
	listener *pq.Listener
	channel  string
	hub      *docstore.Hub
	done     chan struct{}
	once     sync.Once
	wg       sync.WaitGroup
}

// New wraps db. When dsn is not empty a dedicated listener connection
// subscribes to channel so Subscribe receives change notifications.
func New(db *sqlx.DB, dsn, channel string) (*Store, error) {
	s := &Store{
		db:      db,
		channel: channel,
		hub:     docstore.NewHub(),
		done:    make(chan struct{}),
	}

	if dsn == "" {
		return s, nil
	}

	s.listener = pq.NewListener(dsn, 2*time.Second, time.Minute, func(ev pq.ListenerEventType, err error) {
		if err != nil {
			log.Printf("docstore listener event %d: %v", ev, err)
		}
	})
	if err := s.listener.Listen(channel); err != nil {
		s.listener.Close()
		return nil, fmt.Errorf("failed to listen on %s: %w", channel, err)
	}

	s.wg.Add(1)
	go s.listen()

	return s, nil
}

func (s *Store) listen() {
	defer s.wg.Done()
	ping := time.NewTicker(90 * time.Second)
	defer ping.Stop()

	for {
		select {
		case <-s.done:
			return
		case n, ok := <-s.listener.Notify:
			if !ok {
				return
			}
			// nil after a reconnect: notifications may have been lost
			if n == nil {
				s.hub.NotifyAll()
				continue
			}
			s.hub.Notify(n.Extra)
		case <-ping.C:
			if err := s.listener.Ping(); err != nil {
				log.Printf("docstore listener ping failed: %v", err)
			}
		}
	}
}

func (s *Store) Get(ctx context.Context, ref docstore.Ref) (*docstore.Snapshot, error) {
	if err := ref.Validate(); err != nil {
		return nil, err
	}

	var raw []byte
	err := s.db.GetContext(ctx, &raw,
		`SELECT data FROM documents WHERE collection = $1 AND id = $2`,
		ref.Collection, ref.ID,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, docstore.ErrNotFound
	}
	if err != nil {
		return nil, mapError("get", ref.Path(), err)
	}
	return decode(ref, raw)
}

type row struct {
	ID   string `db:"id"`
	Data []byte `db:"data"`
}

func (s *Store) Query(ctx context.Context, q docstore.Query) ([]*docstore.Snapshot, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}

	query, args, err := buildQuery(q)
	if err != nil {
		return nil, err
	}

	var rows []row
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, mapError("query", q.Collection, err)
	}

	out := make([]*docstore.Snapshot, 0, len(rows))
	for _, r := range rows {
		snap, err := decode(docstore.Ref{Collection: q.Collection, ID: r.ID}, r.Data)
		if err != nil {
			return nil, err
		}
		out = append(out, snap)
	}
	return out, nil
}

// buildQuery renders q as SQL. Equality filters use JSONB containment so
// the GIN index serves them; string ranges compare bytewise.
func buildQuery(q docstore.Query) (string, []any, error) {
	var (
		sb   strings.Builder
		args []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	sb.WriteString(`SELECT id, data FROM documents WHERE collection = `)
	sb.WriteString(arg(q.Collection))

	if len(q.Where) > 0 {
		match := make(map[string]any, len(q.Where))
		for _, f := range q.Where {
			match[f.Field] = f.Value
		}
		raw, err := json.Marshal(match)
		if err != nil {
			return "", nil, fmt.Errorf("docstore: failed to encode filter: %w", err)
		}
		sb.WriteString(` AND data @> ` + arg(string(raw)) + `::jsonb`)
	}

	if q.OrderBy != "" {
		field := arg(q.OrderBy)
		sb.WriteString(` AND data ? ` + field)

		for _, bound := range []struct {
			value any
			op    string
		}{{q.StartAt, ">="}, {q.EndAt, "<="}} {
			if bound.value == nil {
				continue
			}
			v, err := docstore.NormalizeValue(bound.value)
			if err != nil {
				return "", nil, err
			}
			switch bv := v.(type) {
			case float64:
				sb.WriteString(fmt.Sprintf(` AND (data->>%s)::numeric %s %s`, field, bound.op, arg(bv)))
			case string:
				sb.WriteString(fmt.Sprintf(` AND (data->>%s) COLLATE "C" %s %s`, field, bound.op, arg(bv)))
			default:
				return "", nil, fmt.Errorf("docstore: unsupported range bound %T", bound.value)
			}
		}

		dir := " ASC"
		if q.Desc {
			dir = " DESC"
		}
		sb.WriteString(` ORDER BY ` +
			`CASE WHEN jsonb_typeof(data->` + field + `) = 'number' THEN (data->>` + field + `)::numeric END` + dir + `, ` +
			`CASE WHEN data->>` + field + ` ~ '^\d{4}-\d{2}-\d{2}T' THEN (data->>` + field + `)::timestamptz END` + dir + `, ` +
			`(data->>` + field + `) COLLATE "C"` + dir + `, id` + dir)
	} else {
		sb.WriteString(` ORDER BY id`)
	}

	if q.Limit > 0 {
		sb.WriteString(` LIMIT ` + arg(q.Limit))
	}

	return sb.String(), args, nil
}

func (s *Store) Set(ctx context.Context, ref docstore.Ref, data any) error {
	raw, err := encode(ref, data)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO documents (collection, id, data)
		VALUES ($1, $2, $3::jsonb)
		ON CONFLICT (collection, id)
		DO UPDATE SET data = EXCLUDED.data, updated_at = NOW()`,
		ref.Collection, ref.ID, raw,
	)
	if err != nil {
		return mapError("set", ref.Path(), err)
	}
	return nil
}

func (s *Store) Create(ctx context.Context, ref docstore.Ref, data any) error {
	raw, err := encode(ref, data)
	if err != nil {
		return err
	}

	result, err := s.db.ExecContext(ctx, `
		INSERT INTO documents (collection, id, data)
		VALUES ($1, $2, $3::jsonb)
		ON CONFLICT (collection, id) DO NOTHING`,
		ref.Collection, ref.ID, raw,
	)
	if err != nil {
		return mapError("create", ref.Path(), err)
	}
	return expectRow(result, docstore.ErrAlreadyExists)
}

func (s *Store) Update(ctx context.Context, ref docstore.Ref, fields map[string]any) error {
	raw, err := encode(ref, fields)
	if err != nil {
		return err
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE documents SET data = data || $3::jsonb, updated_at = NOW()
		WHERE collection = $1 AND id = $2`,
		ref.Collection, ref.ID, raw,
	)
	if err != nil {
		return mapError("update", ref.Path(), err)
	}
	return expectRow(result, docstore.ErrNotFound)
}

func (s *Store) Delete(ctx context.Context, ref docstore.Ref) error {
	if err := ref.Validate(); err != nil {
		return err
	}

	result, err := s.db.ExecContext(ctx,
		`DELETE FROM documents WHERE collection = $1 AND id = $2`,
		ref.Collection, ref.ID,
	)
	if err != nil {
		return mapError("delete", ref.Path(), err)
	}
	return expectRow(result, docstore.ErrNotFound)
}

func (s *Store) Increment(ctx context.Context, ref docstore.Ref, field string, delta int64) error {
	if err := ref.Validate(); err != nil {
		return err
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE documents
		SET data = jsonb_set(
		        data,
		        ARRAY[$3::text],
		        to_jsonb(GREATEST(COALESCE((data->>$3::text)::bigint, 0) + $4, 0))
		    ),
		    updated_at = NOW()
		WHERE collection = $1 AND id = $2`,
		ref.Collection, ref.ID, field, delta,
	)
	if err != nil {
		return mapError("increment", ref.Path(), err)
	}
	return expectRow(result, docstore.ErrNotFound)
}

func (s *Store) Subscribe(ctx context.Context, q docstore.Query, next func(docstore.QuerySnapshot)) (docstore.Subscription, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}
	if s.listener == nil {
		return nil, errors.New("docstore: postgres store opened without a listener")
	}
	return s.hub.Watch(ctx, q, s.Query, next), nil
}

// Close stops subscriptions and the listener. The pooled connection is
// owned by the caller.
func (s *Store) Close() error {
	var err error
	s.once.Do(func() {
		close(s.done)
		s.hub.Close()
		if s.listener != nil {
			err = s.listener.Close()
		}
		s.wg.Wait()
	})
	return err
}

func encode(ref docstore.Ref, data any) (string, error) {
	if err := ref.Validate(); err != nil {
		return "", err
	}
	doc, err := docstore.Normalize(data)
	if err != nil {
		return "", err
	}
	raw, err := json.Marshal(doc)
	if err != nil {
		return "", fmt.Errorf("docstore: failed to encode %s: %w", ref, err)
	}
	return string(raw), nil
}

func decode(ref docstore.Ref, raw []byte) (*docstore.Snapshot, error) {
	var data map[string]any
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, fmt.Errorf("docstore: failed to decode %s: %w", ref, err)
	}
	return &docstore.Snapshot{Ref: ref, Data: data}, nil
}

func expectRow(result sql.Result, none error) error {
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n == 0 {
		return none
	}
	return nil
}

func mapError(op, target string, err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == codeInsufficientPrivilege {
		return fmt.Errorf("%w: %s %s: %v", docstore.ErrPermissionDenied, op, target, err)
	}
	return fmt.Errorf("failed to %s %s: %w", op, target, err)
}
