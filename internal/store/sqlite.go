// Package store persists the status state, the contact log and this
// device's broadcast identity.
package store

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/chaz8081/sonar-client/internal/contact"
	"github.com/chaz8081/sonar-client/internal/status"

	_ "modernc.org/sqlite"
)

const (
	statusStateKey       = "status_state"
	broadcastIdentityKey = "broadcast_identity"
)

// SQLite is the on-disk store.
type SQLite struct {
	db *sql.DB
}

// Open opens (creating if needed) the database at path and ensures the
// schema exists.
func Open(path string) (*SQLite, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("store: create db directory: %w", err)
	}

	dsn := fmt.Sprintf("file:%s?_pragma=foreign_keys(ON)&_pragma=busy_timeout(5000)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("store: open sqlite: %w", err)
	}

	db.SetMaxOpenConns(1)
	db.SetConnMaxLifetime(0)
	db.SetConnMaxIdleTime(5 * time.Minute)

	s := &SQLite{db: db}
	if err := s.InitSchema(context.Background()); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close releases the database handle.
func (s *SQLite) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// InitSchema creates the tables if they do not exist.
func (s *SQLite) InitSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS app_state (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL,
			updated_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ', 'now'))
		);`,
		`CREATE TABLE IF NOT EXISTS contact_events (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			peer_id TEXT NOT NULL,
			identity TEXT NOT NULL DEFAULT '',
			recorded_at TEXT NOT NULL,
			rssi INTEGER NOT NULL
		);`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("store: init schema: %w", err)
		}
	}
	return s.addIdentityColumn(ctx)
}

// addIdentityColumn upgrades contact_events tables created before the
// identity column existed.
func (s *SQLite) addIdentityColumn(ctx context.Context) error {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM pragma_table_info('contact_events') WHERE name = 'identity';`).Scan(&n)
	if err != nil {
		return fmt.Errorf("store: inspect contact_events: %w", err)
	}
	if n > 0 {
		return nil
	}
	if _, err := s.db.ExecContext(ctx,
		`ALTER TABLE contact_events ADD COLUMN identity TEXT NOT NULL DEFAULT '';`); err != nil {
		return fmt.Errorf("store: add identity column: %w", err)
	}
	return nil
}

// StatusState returns the stored state, or nil if none has been written.
func (s *SQLite) StatusState() (status.State, error) {
	raw, ok, err := s.get(context.Background(), statusStateKey)
	if err != nil || !ok {
		return nil, err
	}
	st, err := status.Unmarshal([]byte(raw))
	if err != nil {
		return nil, fmt.Errorf("store: decode status state: %w", err)
	}
	return st, nil
}

// SetStatusState replaces the stored state.
func (s *SQLite) SetStatusState(st status.State) error {
	data, err := status.Marshal(st)
	if err != nil {
		return fmt.Errorf("store: encode status state: %w", err)
	}
	return s.put(context.Background(), statusStateKey, string(data))
}

// ContactEvents returns the stored contact log in insertion order.
func (s *SQLite) ContactEvents() ([]contact.Event, error) {
	rows, err := s.db.QueryContext(context.Background(),
		`SELECT peer_id, identity, recorded_at, rssi FROM contact_events ORDER BY seq;`)
	if err != nil {
		return nil, fmt.Errorf("store: query contact events: %w", err)
	}
	defer rows.Close()

	var events []contact.Event
	for rows.Next() {
		var (
			e  contact.Event
			ts string
		)
		if err := rows.Scan(&e.PeerID, &e.Identity, &ts, &e.RSSI); err != nil {
			return nil, fmt.Errorf("store: scan contact event: %w", err)
		}
		if e.Timestamp, err = time.Parse(time.RFC3339Nano, ts); err != nil {
			return nil, fmt.Errorf("store: parse contact event time %q: %w", ts, err)
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: iterate contact events: %w", err)
	}
	return events, nil
}

// SetContactEvents replaces the stored contact log with events.
func (s *SQLite) SetContactEvents(events []contact.Event) error {
	ctx := context.Background()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM contact_events;`); err != nil {
		return fmt.Errorf("store: clear contact events: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx, `INSERT INTO contact_events (peer_id, identity, recorded_at, rssi) VALUES (?, ?, ?, ?);`)
	if err != nil {
		return fmt.Errorf("store: prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, e := range events {
		if _, err := stmt.ExecContext(ctx, e.PeerID, e.Identity, e.Timestamp.UTC().Format(time.RFC3339Nano), e.RSSI); err != nil {
			return fmt.Errorf("store: insert contact event: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("store: commit contact events: %w", err)
	}
	return nil
}

// ResetContactEvents deletes the stored contact log.
func (s *SQLite) ResetContactEvents() error {
	if _, err := s.db.ExecContext(context.Background(), `DELETE FROM contact_events;`); err != nil {
		return fmt.Errorf("store: reset contact events: %w", err)
	}
	return nil
}

// Reset wipes the contact log and the status state. The broadcast
// identity is kept.
func (s *SQLite) Reset(ctx context.Context) error {
	stmts := []string{
		`DELETE FROM contact_events;`,
		`DELETE FROM app_state WHERE key = 'status_state';`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("store: reset: %w", err)
		}
	}
	return nil
}

// BroadcastIdentity returns this device's broadcast identity, generating
// and storing n random bytes the first time. A stored identity of a
// different length is replaced.
func (s *SQLite) BroadcastIdentity(n int) ([]byte, error) {
	ctx := context.Background()
	raw, ok, err := s.get(ctx, broadcastIdentityKey)
	if err != nil {
		return nil, err
	}
	if ok {
		id, err := hex.DecodeString(raw)
		if err == nil && len(id) == n {
			return id, nil
		}
	}

	id := make([]byte, n)
	if _, err := rand.Read(id); err != nil {
		return nil, fmt.Errorf("store: generate identity: %w", err)
	}
	if err := s.put(ctx, broadcastIdentityKey, hex.EncodeToString(id)); err != nil {
		return nil, err
	}
	return id, nil
}

func (s *SQLite) get(ctx context.Context, key string) (string, bool, error) {
	var raw string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM app_state WHERE key = ?;`, key).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("store: get %s: %w", key, err)
	}
	return raw, true, nil
}

func (s *SQLite) put(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO app_state (key, value, updated_at) VALUES (?, ?, strftime('%Y-%m-%dT%H:%M:%fZ', 'now'))
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at;`,
		key, value)
	if err != nil {
		return fmt.Errorf("store: put %s: %w", key, err)
	}
	return nil
}
