package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Aegis-Wallet/aegis/pkg/contracts"
)

// dialect selects placeholder style. The SQL itself is shared: both
// SQLite and Postgres support ON CONFLICT upserts and RETURNING.
type dialect int

const (
	dialectSQLite dialect = iota
	dialectPostgres
)

// rebind rewrites ? placeholders to $1..$n for Postgres.
func (d dialect) rebind(query string) string {
	if d != dialectPostgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

const schema = `
CREATE TABLE IF NOT EXISTS wallet_sessions (
	id           TEXT PRIMARY KEY,
	host         TEXT NOT NULL,
	genesis_hash TEXT NOT NULL,
	genesis_id   TEXT NOT NULL,
	addresses    TEXT NOT NULL,
	created_at   TEXT NOT NULL,
	used_at      TEXT NOT NULL,
	UNIQUE (host, genesis_hash, genesis_id)
);
CREATE TABLE IF NOT EXISTS wallet_events (
	id         TEXT PRIMARY KEY,
	request_id TEXT NOT NULL UNIQUE,
	kind       TEXT NOT NULL,
	payload    TEXT NOT NULL,
	created_at TEXT NOT NULL
);`

// SQLStores implements SessionStore and EventQueue over a database/sql
// handle.
type SQLStores struct {
	db *sql.DB
	d  dialect
}

var (
	_ SessionStore = (*SQLStores)(nil)
	_ EventQueue   = (*SQLStores)(nil)
)

// NewSQLite builds the stores over a SQLite handle and applies the
// schema.
func NewSQLite(db *sql.DB) (*SQLStores, error) {
	return newSQLStores(db, dialectSQLite)
}

// NewPostgres builds the stores over a Postgres handle and applies
// the schema.
func NewPostgres(db *sql.DB) (*SQLStores, error) {
	return newSQLStores(db, dialectPostgres)
}

func newSQLStores(db *sql.DB, d dialect) (*SQLStores, error) {
	s := &SQLStores{db: db, d: d}
	if err := s.migrate(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *SQLStores) migrate() error {
	for _, stmt := range strings.Split(schema, ";") {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		if _, err := s.db.ExecContext(context.Background(), stmt); err != nil {
			return fmt.Errorf("apply wallet schema: %w", err)
		}
	}
	return nil
}

func encodeTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func decodeTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

// --- SessionStore ---

func (s *SQLStores) Upsert(ctx context.Context, sess *contracts.Session) (*contracts.Session, error) {
	id := sess.ID
	if id == "" {
		id = uuid.New().String()
	}
	addrJSON, err := json.Marshal(sess.AuthorizedAddresses)
	if err != nil {
		return nil, fmt.Errorf("encode session addresses: %w", err)
	}
	createdAt := sess.CreatedAt
	if createdAt.IsZero() {
		createdAt = sess.UsedAt
	}

	// On conflict the existing row keeps its id and created_at; only
	// the authorized set and the usage timestamp are replaced.
	query := s.d.rebind(`
		INSERT INTO wallet_sessions (id, host, genesis_hash, genesis_id, addresses, created_at, used_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (host, genesis_hash, genesis_id)
		DO UPDATE SET addresses = excluded.addresses, used_at = excluded.used_at
		RETURNING id, created_at`)

	var storedID, storedCreated string
	err = s.db.QueryRowContext(ctx, query,
		id, sess.Host, sess.Network.GenesisHash, sess.Network.GenesisID,
		string(addrJSON), encodeTime(createdAt), encodeTime(sess.UsedAt),
	).Scan(&storedID, &storedCreated)
	if err != nil {
		return nil, fmt.Errorf("upsert session for %s on %s: %w", sess.Host, sess.Network.Key(), err)
	}

	out := *sess
	out.ID = storedID
	out.CreatedAt = decodeTime(storedCreated)
	out.AuthorizedAddresses = append([]string(nil), sess.AuthorizedAddresses...)
	return &out, nil
}

const sessionColumns = `id, host, genesis_hash, genesis_id, addresses, created_at, used_at`

func scanSession(row interface{ Scan(...any) error }) (*contracts.Session, error) {
	var sess contracts.Session
	var addrJSON, createdAt, usedAt string
	err := row.Scan(&sess.ID, &sess.Host, &sess.Network.GenesisHash, &sess.Network.GenesisID,
		&addrJSON, &createdAt, &usedAt)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(addrJSON), &sess.AuthorizedAddresses); err != nil {
		return nil, fmt.Errorf("corrupt address list in session %s: %w", sess.ID, err)
	}
	sess.CreatedAt = decodeTime(createdAt)
	sess.UsedAt = decodeTime(usedAt)
	return &sess, nil
}

func (s *SQLStores) FindByHostAndNetwork(ctx context.Context, host string, network contracts.Network) (*contracts.Session, error) {
	query := s.d.rebind(`
		SELECT ` + sessionColumns + `
		FROM wallet_sessions
		WHERE host = ? AND genesis_hash = ? AND genesis_id = ?`)
	sess, err := scanSession(s.db.QueryRowContext(ctx, query, host, network.GenesisHash, network.GenesisID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find session for %s on %s: %w", host, network.Key(), err)
	}
	return sess, nil
}

func (s *SQLStores) FindAllByHost(ctx context.Context, host string) ([]*contracts.Session, error) {
	query := s.d.rebind(`
		SELECT ` + sessionColumns + `
		FROM wallet_sessions
		WHERE host = ?
		ORDER BY created_at ASC`)
	rows, err := s.db.QueryContext(ctx, query, host)
	if err != nil {
		return nil, fmt.Errorf("list sessions for %s: %w", host, err)
	}
	defer func() { _ = rows.Close() }()

	var sessions []*contracts.Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, sess)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return sessions, nil
}

func (s *SQLStores) RemoveByIDs(ctx context.Context, ids []string) ([]string, error) {
	removed := make([]string, 0, len(ids))
	query := s.d.rebind(`DELETE FROM wallet_sessions WHERE id = ? RETURNING id`)
	for _, id := range ids {
		var gone string
		err := s.db.QueryRowContext(ctx, query, id).Scan(&gone)
		if err == sql.ErrNoRows {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("remove session %s: %w", id, err)
		}
		removed = append(removed, gone)
	}
	return removed, nil
}

func (s *SQLStores) RemoveAll(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM wallet_sessions`); err != nil {
		return fmt.Errorf("remove all sessions: %w", err)
	}
	return nil
}

// --- EventQueue ---

func (s *SQLStores) Enqueue(ctx context.Context, ev *contracts.QueuedEvent) (bool, error) {
	payload, err := json.Marshal(ev.Payload)
	if err != nil {
		return false, fmt.Errorf("encode queued payload: %w", err)
	}

	// The UNIQUE(request_id) constraint is the idempotency guard: a
	// duplicate delivery of the same logical request writes nothing.
	query := s.d.rebind(`
		INSERT INTO wallet_events (id, request_id, kind, payload, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (request_id) DO NOTHING`)
	res, err := s.db.ExecContext(ctx, query,
		ev.ID, ev.Payload.ID, string(ev.Kind), string(payload), encodeTime(ev.CreatedAt))
	if err != nil {
		return false, fmt.Errorf("enqueue event %s: %w", ev.ID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("enqueue event %s: %w", ev.ID, err)
	}
	return n > 0, nil
}

func scanEvent(row interface{ Scan(...any) error }) (*contracts.QueuedEvent, error) {
	var ev contracts.QueuedEvent
	var kind, payload, createdAt string
	if err := row.Scan(&ev.ID, &kind, &payload, &createdAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(payload), &ev.Payload); err != nil {
		return nil, fmt.Errorf("corrupt payload in queued event %s: %w", ev.ID, err)
	}
	ev.Kind = contracts.Kind(kind)
	ev.CreatedAt = decodeTime(createdAt)
	return &ev, nil
}

func (s *SQLStores) GetByID(ctx context.Context, id string) (*contracts.QueuedEvent, error) {
	query := s.d.rebind(`
		SELECT id, kind, payload, created_at
		FROM wallet_events
		WHERE id = ?`)
	ev, err := scanEvent(s.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get queued event %s: %w", id, err)
	}
	return ev, nil
}

func (s *SQLStores) ListByKind(ctx context.Context, kind contracts.Kind) ([]*contracts.QueuedEvent, error) {
	query := s.d.rebind(`
		SELECT id, kind, payload, created_at
		FROM wallet_events
		WHERE kind = ?
		ORDER BY created_at ASC, id ASC`)
	rows, err := s.db.QueryContext(ctx, query, string(kind))
	if err != nil {
		return nil, fmt.Errorf("list queued events of kind %s: %w", kind, err)
	}
	defer func() { _ = rows.Close() }()

	var events []*contracts.QueuedEvent
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return events, nil
}

func (s *SQLStores) RemoveByID(ctx context.Context, id string) error {
	query := s.d.rebind(`DELETE FROM wallet_events WHERE id = ?`)
	if _, err := s.db.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("remove queued event %s: %w", id, err)
	}
	return nil
}
