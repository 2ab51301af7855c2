// Package remote provides the per-user snapshot table that the sync engine
// pushes to and pulls from.
//
// Every user owns exactly one row in user_data. The row carries one nullable
// text column per dataset plus an updated_at timestamp; a NULL column means
// the dataset was absent when the snapshot was pushed. Writes are upserts
// keyed by user_id, so the most recent full push wins.
//
// Three backends share that schema:
//   - sqlite: a plain SQLite file (ncruces/go-sqlite3), useful for a shared
//     folder or for tests
//   - libsql: a Turso / libSQL database (tursodatabase/go-libsql)
//   - postgres: a PostgreSQL database (jackc/pgx pool)
package remote

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/goalritual/goalritual/internal/store"
)

// ErrNotFound is returned by Fetch when the user has no snapshot row.
var ErrNotFound = errors.New("remote snapshot not found")

// TableName is the snapshot table shared by all backends.
const TableName = "user_data"

// Backend names accepted by Open.
const (
	BackendSQLite   = "sqlite"
	BackendLibSQL   = "libsql"
	BackendPostgres = "postgres"
)

// Record is one user's remote snapshot.
type Record struct {
	UserID string
	// Data holds the stored text of each present dataset, keyed by the
	// local dataset key.
	Data      store.Snapshot
	UpdatedAt time.Time
}

// Store is a remote snapshot table.
type Store interface {
	// EnsureTable creates the snapshot table if it doesn't exist.
	EnsureTable(ctx context.Context) error

	// Fetch returns the snapshot for userID, or ErrNotFound.
	Fetch(ctx context.Context, userID string) (*Record, error)

	// Upsert inserts or fully replaces the snapshot for rec.UserID.
	// Datasets absent from rec.Data are stored as NULL.
	Upsert(ctx context.Context, rec *Record) error

	// Close releases the underlying connection.
	Close() error
}

// Config selects and configures a backend.
type Config struct {
	// Backend is one of BackendSQLite, BackendLibSQL or BackendPostgres.
	Backend string
	// DSN is a file path (sqlite), a libsql:// or file: URL (libsql) or a
	// postgres connection string.
	DSN string
	// AuthToken is appended to libsql URLs when set.
	AuthToken string
}

// Open connects to the configured backend and ensures the snapshot table.
//
// Example:
//
//	rs, err := remote.Open(ctx, remote.Config{Backend: "sqlite", DSN: "/srv/goalritual/remote.db"})
//	if err != nil {
//	    return err
//	}
//	defer rs.Close()
func Open(ctx context.Context, cfg Config) (Store, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("remote dsn cannot be empty")
	}

	var (
		s   Store
		err error
	)
	switch strings.ToLower(cfg.Backend) {
	case BackendSQLite, "":
		s, err = OpenSQLite(cfg.DSN)
	case BackendLibSQL:
		s, err = OpenLibSQL(cfg.DSN, cfg.AuthToken)
	case BackendPostgres, "postgresql", "pg":
		s, err = OpenPostgres(ctx, cfg.DSN)
	default:
		return nil, fmt.Errorf("unknown remote backend %q", cfg.Backend)
	}
	if err != nil {
		return nil, err
	}

	if err := s.EnsureTable(ctx); err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("failed to ensure %s table: %w", TableName, err)
	}
	return s, nil
}

// columns returns the dataset columns in registry order.
func columns() []string {
	cols := make([]string, len(store.Datasets))
	for i, d := range store.Datasets {
		cols[i] = d.Column
	}
	return cols
}

// rowValues maps a snapshot onto column order. Absent datasets become nil.
func rowValues(data store.Snapshot) []any {
	vals := make([]any, len(store.Datasets))
	for i, d := range store.Datasets {
		if v, ok := data[d.Key]; ok && !d.IsEmpty(v) {
			vals[i] = v
		}
	}
	return vals
}

// snapshotFromRow converts scanned nullable columns back into a snapshot.
func snapshotFromRow(vals []*string) store.Snapshot {
	snap := make(store.Snapshot)
	for i, d := range store.Datasets {
		if vals[i] != nil && !d.IsEmpty(*vals[i]) {
			snap[d.Key] = *vals[i]
		}
	}
	return snap
}

// scanTargets returns pointers suitable for Scan into nullable columns.
func scanTargets(vals []*string) []any {
	out := make([]any, len(vals))
	for i := range vals {
		out[i] = &vals[i]
	}
	return out
}
