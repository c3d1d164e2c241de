package docstore

import (
	"context"
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

// ChangeChannel is the LISTEN/NOTIFY channel fed by the documents trigger.
const ChangeChannel = "document_changes"

// Schema creates the documents table and the change trigger. It is idempotent.
const Schema = `
CREATE TABLE IF NOT EXISTS documents (
	collection TEXT        NOT NULL,
	id         TEXT        NOT NULL,
	data       JSONB       NOT NULL DEFAULT '{}'::jsonb,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (collection, id)
);

CREATE INDEX IF NOT EXISTS documents_uid_idx ON documents (collection, (data->>'uid'));
CREATE INDEX IF NOT EXISTS documents_post_id_idx ON documents (collection, (data->>'postId'));

CREATE OR REPLACE FUNCTION notify_document_change() RETURNS trigger AS $$
BEGIN
	PERFORM pg_notify('document_changes', NEW.collection || '/' || NEW.id);
	RETURN NEW;
END;
$$ LANGUAGE plpgsql;

DROP TRIGGER IF EXISTS documents_notify ON documents;
CREATE TRIGGER documents_notify
	AFTER INSERT OR UPDATE ON documents
	FOR EACH ROW EXECUTE FUNCTION notify_document_change();
`

// Set deltas are evaluated server-side against the stored array, so concurrent
// writers compose instead of overwriting each other.
const (
	addMemberSQL = `
		UPDATE documents SET
			data = CASE
				WHEN COALESCE(data->($3::text), '[]'::jsonb) @> jsonb_build_array($4::jsonb) THEN data
				ELSE jsonb_set(data, ARRAY[$3::text], COALESCE(data->($3::text), '[]'::jsonb) || jsonb_build_array($4::jsonb), true)
			END,
			updated_at = now()
		WHERE collection = $1 AND id = $2
	`
	removeMemberSQL = `
		UPDATE documents SET
			data = jsonb_set(data, ARRAY[$3::text], COALESCE(
				(SELECT jsonb_agg(e) FROM jsonb_array_elements(COALESCE(data->($3::text), '[]'::jsonb)) AS e WHERE e <> $4::jsonb),
				'[]'::jsonb), true),
			updated_at = now()
		WHERE collection = $1 AND id = $2
	`
	setFieldSQL = `
		UPDATE documents SET
			data = jsonb_set(data, ARRAY[$3::text], $4::jsonb, true),
			updated_at = now()
		WHERE collection = $1 AND id = $2
	`
)

// PostgresStore implements Store on a single jsonb documents table.
type PostgresStore struct {
	db  *sqlx.DB
	dsn string

	mu       sync.Mutex
	listener *pq.Listener
	subs     map[string]map[int]ChangeFunc
	nextID   int
}

// NewPostgresStore wraps db. dsn is used to open the LISTEN connection for
// subscriptions; it may be empty if Subscribe is never called.
func NewPostgresStore(db *sqlx.DB, dsn string) *PostgresStore {
	return &PostgresStore{
		db:   db,
		dsn:  dsn,
		subs: make(map[string]map[int]ChangeFunc),
	}
}

// EnsureSchema applies Schema.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("ensure documents schema: %w", err)
	}
	return nil
}

type documentRow struct {
	ID   string `db:"id"`
	Data []byte `db:"data"`
}

func (r documentRow) toDocument() (Document, error) {
	data := make(map[string]any)
	if err := json.Unmarshal(r.Data, &data); err != nil {
		return Document{}, fmt.Errorf("decode document %s: %w", r.ID, err)
	}
	return Document{ID: r.ID, Data: data}, nil
}

func (s *PostgresStore) Get(ctx context.Context, collection, id string) (Document, error) {
	var rows []documentRow
	query := `SELECT id, data FROM documents WHERE collection = $1 AND id = $2`
	if err := s.db.SelectContext(ctx, &rows, query, collection, id); err != nil {
		return Document{}, classifyPostgresError(fmt.Sprintf("get %s/%s", collection, id), err)
	}
	if len(rows) == 0 {
		return Document{}, fmt.Errorf("%s/%s: %w", collection, id, ErrNotFound)
	}
	return rows[0].toDocument()
}

func (s *PostgresStore) Query(ctx context.Context, collection string, filter Filter, orderBy string, dir Direction) ([]Document, error) {
	if err := validateFilter(filter); err != nil {
		return nil, err
	}

	var b strings.Builder
	args := []any{collection, filter.Field}
	b.WriteString(`SELECT id, data FROM documents WHERE collection = $1 AND `)
	switch filter.Op {
	case OpEqual:
		b.WriteString(`data->>($2::text) = $3`)
		args = append(args, fmt.Sprint(filter.Value))
	case OpIn:
		b.WriteString(`data->>($2::text) = ANY($3)`)
		args = append(args, pq.Array(filter.Value.([]string)))
	}
	if orderBy != "" {
		args = append(args, orderBy)
		b.WriteString(` AND jsonb_exists(data, $4::text) ORDER BY data->>($4::text)`)
		if dir == Desc {
			b.WriteString(` DESC`)
		}
		b.WriteString(`, id ASC`)
	} else {
		b.WriteString(` ORDER BY id ASC`)
	}

	var rows []documentRow
	if err := s.db.SelectContext(ctx, &rows, b.String(), args...); err != nil {
		return nil, classifyPostgresError(fmt.Sprintf("query %s where %s %s", collection, filter.Field, filter.Op), err)
	}

	docs := make([]Document, 0, len(rows))
	for _, r := range rows {
		doc, err := r.toDocument()
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

// Mutate applies every op in one transaction.
func (s *PostgresStore) Mutate(ctx context.Context, collection, id string, ops ...Mutation) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return classifyPostgresError("begin transaction", err)
	}
	defer tx.Rollback()

	for _, op := range ops {
		var query string
		switch op.Kind {
		case OpAddMember:
			query = addMemberSQL
		case OpRemoveMember:
			query = removeMemberSQL
		case OpSetField:
			query = setFieldSQL
		default:
			return fmt.Errorf("%w: unknown mutation kind %d", ErrInvalidArgument, op.Kind)
		}

		value, err := json.Marshal(op.Value)
		if err != nil {
			return fmt.Errorf("%w: encode %s: %v", ErrInvalidArgument, op.Field, err)
		}

		result, err := tx.ExecContext(ctx, query, collection, id, op.Field, string(value))
		if err != nil {
			return classifyPostgresError(fmt.Sprintf("update %s/%s", collection, id), err)
		}
		rows, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to get rows affected: %w", err)
		}
		if rows == 0 {
			return fmt.Errorf("%s/%s: %w", collection, id, ErrNotFound)
		}
	}

	if err := tx.Commit(); err != nil {
		return classifyPostgresError("commit transaction", err)
	}
	return nil
}

func (s *PostgresStore) Create(ctx context.Context, collection string, data map[string]any) (string, error) {
	id := uuid.NewString()
	if err := s.Set(ctx, collection, id, data); err != nil {
		return "", err
	}
	return id, nil
}

func (s *PostgresStore) Set(ctx context.Context, collection, id string, data map[string]any) error {
	encoded, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("%w: encode document: %v", ErrInvalidArgument, err)
	}

	query := `
		INSERT INTO documents (collection, id, data)
		VALUES ($1, $2, $3::jsonb)
		ON CONFLICT (collection, id) DO UPDATE SET data = EXCLUDED.data, updated_at = now()
	`
	if _, err := s.db.ExecContext(ctx, query, collection, id, string(encoded)); err != nil {
		return classifyPostgresError(fmt.Sprintf("set %s/%s", collection, id), err)
	}
	return nil
}

// Subscribe registers onChange for one document. A shared LISTEN connection is opened
// on first use.
func (s *PostgresStore) Subscribe(ctx context.Context, collection, id string, onChange ChangeFunc) (func(), error) {
	if err := s.ensureListener(); err != nil {
		return nil, err
	}

	key := collection + "/" + id
	s.mu.Lock()
	s.nextID++
	subID := s.nextID
	if s.subs[key] == nil {
		s.subs[key] = make(map[int]ChangeFunc)
	}
	s.subs[key][subID] = onChange
	s.mu.Unlock()

	s.deliver(ctx, key, []ChangeFunc{onChange})

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.subs[key], subID)
			if len(s.subs[key]) == 0 {
				delete(s.subs, key)
			}
			s.mu.Unlock()
		})
	}, nil
}

// Close stops the LISTEN connection.
func (s *PostgresStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	err := s.listener.Close()
	s.listener = nil
	return err
}

func (s *PostgresStore) ensureListener() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return nil
	}
	if s.dsn == "" {
		return fmt.Errorf("%w: postgres subscriptions need a listener DSN", ErrInvalidArgument)
	}

	listener := pq.NewListener(s.dsn, time.Second, time.Minute, func(ev pq.ListenerEventType, err error) {
		if err != nil {
			log.Printf("[PostgresStore] Listener event=%d err=%v", ev, err)
		}
	})
	if err := listener.Listen(ChangeChannel); err != nil {
		listener.Close()
		return classifyPostgresError("listen "+ChangeChannel, err)
	}
	s.listener = listener

	go s.dispatch(listener)
	log.Printf("[PostgresStore] Listening on channel=%s", ChangeChannel)
	return nil
}

func (s *PostgresStore) dispatch(listener *pq.Listener) {
	for n := range listener.Notify {
		if n == nil {
			// Reconnected: notifications may have been missed, redeliver everything.
			s.mu.Lock()
			keys := make([]string, 0, len(s.subs))
			for key := range s.subs {
				keys = append(keys, key)
			}
			s.mu.Unlock()
			for _, key := range keys {
				s.deliver(context.Background(), key, s.callbacks(key))
			}
			continue
		}
		if fns := s.callbacks(n.Extra); len(fns) > 0 {
			s.deliver(context.Background(), n.Extra, fns)
		}
	}
}

func (s *PostgresStore) callbacks(key string) []ChangeFunc {
	s.mu.Lock()
	defer s.mu.Unlock()
	fns := make([]ChangeFunc, 0, len(s.subs[key]))
	for _, fn := range s.subs[key] {
		fns = append(fns, fn)
	}
	return fns
}

func (s *PostgresStore) deliver(ctx context.Context, key string, fns []ChangeFunc) {
	collection, id, ok := strings.Cut(key, "/")
	if !ok {
		return
	}
	doc, err := s.Get(ctx, collection, id)
	for _, fn := range fns {
		switch {
		case err == nil:
			d := Document{ID: doc.ID, Data: copyMap(doc.Data)}
			fn(&d)
		case errors.Is(err, ErrNotFound):
			fn(nil)
		default:
			log.Printf("[PostgresStore] Deliver %s FAILED: %v", key, err)
			return
		}
	}
}

func classifyPostgresError(op string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%s: %w", op, err)
	}
	var netErr net.Error
	if errors.Is(err, driver.ErrBadConn) || errors.As(err, &netErr) {
		return fmt.Errorf("%s: %w: %v", op, ErrUnavailable, err)
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code.Class() {
		case "08", "53", "57":
			return fmt.Errorf("%s: %w: %v", op, ErrUnavailable, err)
		case "22":
			return fmt.Errorf("%s: %w: %v", op, ErrInvalidArgument, err)
		}
	}
	return fmt.Errorf("%s: %w", op, err)
}
