// Package store provides the local dataset store for goalritual.
//
// The store is the local-first half of the system: every named data set
// (goals, recurring tasks, life purpose, AI suggestion state, ...) lives in
// one row of an embedded SQLite database, keyed by a fixed dataset key.
//
// Architecture:
//   - Database file: <data dir>/goalritual.db
//   - WAL mode: readers never wait on the writer
//   - Schema: datasets(key, value, updated_at)
//   - Writes are serialized and each one is announced on an in-process bus
//
// Reads degrade gracefully: a missing or corrupt value yields the caller's
// fallback instead of an error, so one damaged dataset never prevents the
// rest from loading.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
)

// Store wraps the SQLite connection holding the local datasets.
type Store struct {
	conn *sql.DB
	path string
	bus  *Bus

	// writeMu keeps writes and their notifications in call order.
	writeMu sync.Mutex
	now     func() time.Time
}

// Open creates a new store at the specified path, creating the parent
// directory and the schema when needed.
//
// The caller MUST call Close() when done.
//
// Example:
//
//	s, err := store.Open(filepath.Join(dataDir, "goalritual.db"))
//	if err != nil {
//	    return err
//	}
//	defer s.Close()
func Open(path string) (*Store, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create store directory: %w", err)
	}

	// busy_timeout must hold on every pooled connection, so it goes in the DSN.
	conn, err := sql.Open("sqlite3", "file:"+path+"?_pragma=busy_timeout(5000)&_txlock=immediate")
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}

	if err := conn.Ping(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping store: %w", err)
	}

	conn.SetMaxOpenConns(4)
	conn.SetMaxIdleConns(2)
	conn.SetConnMaxLifetime(5 * time.Minute)

	s := &Store{
		conn: conn,
		path: path,
		bus:  NewBus(),
		now:  time.Now,
	}

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
	} {
		if _, err := s.conn.Exec(pragma); err != nil {
			_ = s.Close()
			return nil, fmt.Errorf("failed to apply %q: %w", pragma, err)
		}
	}

	if err := s.InitSchema(context.Background()); err != nil {
		_ = s.Close()
		return nil, err
	}

	return s, nil
}

// InitSchema creates the datasets table if it doesn't exist. Idempotent.
func (s *Store) InitSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS datasets (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);
	`
	if _, err := s.conn.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}
	return nil
}

// Close checkpoints the WAL and closes the connection.
func (s *Store) Close() error {
	if s.conn == nil {
		return nil
	}

	if _, err := s.conn.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to checkpoint WAL: %v\n", err)
	}

	if err := s.conn.Close(); err != nil {
		return fmt.Errorf("failed to close store: %w", err)
	}

	s.conn = nil
	return nil
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

// Subscribe returns a channel receiving every subsequent change.
func (s *Store) Subscribe() chan Change {
	return s.bus.Subscribe()
}

// Unsubscribe stops delivery to ch and closes it.
func (s *Store) Unsubscribe(ch chan Change) {
	s.bus.Unsubscribe(ch)
}

// Get returns the raw stored value for key and whether it exists.
func (s *Store) Get(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := s.conn.QueryRowContext(ctx, `SELECT value FROM datasets WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to read %s: %w", key, err)
	}
	return value, true, nil
}

// Set stores a raw value under key. Empty values remove the key instead; see
// IsEmptyFor.
func (s *Store) Set(ctx context.Context, key, value string, origin Origin) error {
	if IsEmptyFor(key, value) {
		return s.Remove(ctx, key, origin)
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	query := `
	INSERT INTO datasets (key, value, updated_at) VALUES (?, ?, ?)
	ON CONFLICT(key) DO UPDATE SET
		value = excluded.value,
		updated_at = excluded.updated_at
	`
	now := s.now()
	if _, err := s.conn.ExecContext(ctx, query, key, value, now.UTC().Format(time.RFC3339Nano)); err != nil {
		return fmt.Errorf("failed to write %s: %w", key, err)
	}

	s.bus.Publish(Change{Key: key, Origin: origin, At: now})
	return nil
}

// Remove deletes key. Removing an absent key is a no-op without notification.
func (s *Store) Remove(ctx context.Context, key string, origin Origin) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	res, err := s.conn.ExecContext(ctx, `DELETE FROM datasets WHERE key = ?`, key)
	if err != nil {
		return fmt.Errorf("failed to remove %s: %w", key, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil
	}

	s.bus.Publish(Change{Key: key, Removed: true, Origin: origin, At: s.now()})
	return nil
}

// Keys returns the keys currently present, sorted.
func (s *Store) Keys(ctx context.Context) ([]string, error) {
	rows, err := s.conn.QueryContext(ctx, `SELECT key FROM datasets ORDER BY key`)
	if err != nil {
		return nil, fmt.Errorf("failed to list keys: %w", err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, fmt.Errorf("failed to scan key: %w", err)
		}
		keys = append(keys, k)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating keys: %w", err)
	}
	return keys, nil
}

// Snapshot returns the stored text of every registered dataset that is
// present. Keys outside the dataset registry are not included.
func (s *Store) Snapshot(ctx context.Context) (Snapshot, error) {
	rows, err := s.conn.QueryContext(ctx, `SELECT key, value FROM datasets`)
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshot: %w", err)
	}
	defer rows.Close()

	snap := make(Snapshot)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, fmt.Errorf("failed to scan dataset: %w", err)
		}
		if _, ok := Lookup(k); ok {
			snap[k] = v
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating datasets: %w", err)
	}
	return snap, nil
}

// Replace overwrites every registered dataset with snap in one transaction.
// Datasets missing from snap (or empty in it) are removed.
func (s *Store) Replace(ctx context.Context, snap Snapshot, origin Origin) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	before := make(map[string]string)
	rows, err := tx.QueryContext(ctx, `SELECT key, value FROM datasets`)
	if err != nil {
		return fmt.Errorf("failed to read datasets: %w", err)
	}
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			rows.Close()
			return fmt.Errorf("failed to scan dataset: %w", err)
		}
		before[k] = v
	}
	rows.Close()

	now := s.now()
	stamp := now.UTC().Format(time.RFC3339Nano)
	var changes []Change

	for _, d := range Datasets {
		value, present := snap[d.Key]
		if present && d.IsEmpty(value) {
			present = false
		}
		old, existed := before[d.Key]

		switch {
		case present && (!existed || old != value):
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO datasets (key, value, updated_at) VALUES (?, ?, ?)
				ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
				d.Key, value, stamp); err != nil {
				return fmt.Errorf("failed to write %s: %w", d.Key, err)
			}
			changes = append(changes, Change{Key: d.Key, Origin: origin, At: now})
		case !present && existed:
			if _, err := tx.ExecContext(ctx, `DELETE FROM datasets WHERE key = ?`, d.Key); err != nil {
				return fmt.Errorf("failed to remove %s: %w", d.Key, err)
			}
			changes = append(changes, Change{Key: d.Key, Removed: true, Origin: origin, At: now})
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	for _, c := range changes {
		s.bus.Publish(c)
	}
	return nil
}

// Clear removes every registered dataset.
func (s *Store) Clear(ctx context.Context, origin Origin) error {
	return s.Replace(ctx, Snapshot{}, origin)
}

// IsEmptyValue reports whether a raw JSON value is an empty shell: blank,
// null, an empty array or an empty object.
func IsEmptyValue(value string) bool {
	switch strings.TrimSpace(value) {
	case "", "null", "[]", "{}":
		return true
	}
	return false
}
