package remote

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
	_ "github.com/tursodatabase/go-libsql"
)

// SQLStore is a snapshot table behind database/sql. It serves both the
// SQLite and the libSQL backends, which share SQL dialect and placeholders.
type SQLStore struct {
	conn   *sql.DB
	driver string
}

// OpenSQLite opens (or creates) a SQLite snapshot database at path.
func OpenSQLite(path string) (*SQLStore, error) {
	path = strings.TrimPrefix(path, "file:")
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create remote directory: %w", err)
	}

	// Several processes may share the file; let writers wait for each other
	// on every pooled connection.
	conn, err := sql.Open("sqlite3", "file:"+path+"?_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite remote: %w", err)
	}
	if err := conn.Ping(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping sqlite remote: %w", err)
	}

	return NewSQLStore(conn, "sqlite3"), nil
}

// OpenLibSQL opens a libSQL database. dsn is a libsql://, https:// or file:
// URL; authToken, when set, is passed as the authToken query parameter.
func OpenLibSQL(dsn, authToken string) (*SQLStore, error) {
	if authToken != "" {
		u, err := url.Parse(dsn)
		if err != nil {
			return nil, fmt.Errorf("invalid libsql url: %w", err)
		}
		q := u.Query()
		q.Set("authToken", authToken)
		u.RawQuery = q.Encode()
		dsn = u.String()
	}

	conn, err := sql.Open("libsql", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open libsql remote: %w", err)
	}
	if err := conn.Ping(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping libsql remote: %w", err)
	}

	conn.SetMaxOpenConns(4)
	conn.SetConnMaxLifetime(5 * time.Minute)

	return NewSQLStore(conn, "libsql"), nil
}

// NewSQLStore wraps an already-open connection. driver is informational.
func NewSQLStore(conn *sql.DB, driver string) *SQLStore {
	return &SQLStore{conn: conn, driver: driver}
}

// EnsureTable creates the snapshot table if it doesn't exist.
func (s *SQLStore) EnsureTable(ctx context.Context) error {
	var b strings.Builder
	fmt.Fprintf(&b, "CREATE TABLE IF NOT EXISTS %s (\n\tuser_id TEXT PRIMARY KEY,\n", TableName)
	for _, col := range columns() {
		fmt.Fprintf(&b, "\t%s TEXT,\n", col)
	}
	b.WriteString("\tupdated_at TEXT NOT NULL\n)")

	if _, err := s.conn.ExecContext(ctx, b.String()); err != nil {
		return fmt.Errorf("failed to create %s: %w", TableName, err)
	}
	return nil
}

// Fetch returns the snapshot row for userID.
func (s *SQLStore) Fetch(ctx context.Context, userID string) (*Record, error) {
	cols := columns()
	query := fmt.Sprintf(`SELECT %s, updated_at FROM %s WHERE user_id = ?`,
		strings.Join(cols, ", "), TableName)

	vals := make([]sql.NullString, len(cols))
	targets := make([]any, 0, len(cols)+1)
	for i := range vals {
		targets = append(targets, &vals[i])
	}
	var updatedAt string
	targets = append(targets, &updatedAt)

	err := s.conn.QueryRowContext(ctx, query, userID).Scan(targets...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch snapshot for %s: %w", userID, err)
	}

	ptrs := make([]*string, len(vals))
	for i, v := range vals {
		if v.Valid {
			ptrs[i] = &vals[i].String
		}
	}

	rec := &Record{UserID: userID, Data: snapshotFromRow(ptrs)}
	if t, err := time.Parse(time.RFC3339Nano, updatedAt); err == nil {
		rec.UpdatedAt = t
	}
	return rec, nil
}

// Upsert writes the full snapshot row for rec.UserID.
func (s *SQLStore) Upsert(ctx context.Context, rec *Record) error {
	if rec == nil || rec.UserID == "" {
		return fmt.Errorf("snapshot user id cannot be empty")
	}

	cols := columns()
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(cols)+2), ", ")
	sets := make([]string, 0, len(cols)+1)
	for _, col := range cols {
		sets = append(sets, fmt.Sprintf("%s = excluded.%s", col, col))
	}
	sets = append(sets, "updated_at = excluded.updated_at")

	query := fmt.Sprintf(`INSERT INTO %s (user_id, %s, updated_at) VALUES (%s)
		ON CONFLICT(user_id) DO UPDATE SET %s`,
		TableName, strings.Join(cols, ", "), placeholders, strings.Join(sets, ", "))

	updatedAt := rec.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now()
	}

	args := make([]any, 0, len(cols)+2)
	args = append(args, rec.UserID)
	args = append(args, rowValues(rec.Data)...)
	args = append(args, updatedAt.UTC().Format(time.RFC3339Nano))

	if _, err := s.conn.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to upsert snapshot for %s: %w", rec.UserID, err)
	}
	return nil
}

// Close closes the connection.
func (s *SQLStore) Close() error {
	if s.conn == nil {
		return nil
	}
	if err := s.conn.Close(); err != nil {
		return fmt.Errorf("failed to close %s remote: %w", s.driver, err)
	}
	s.conn = nil
	return nil
}
