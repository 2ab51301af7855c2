package remote

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PgStore is a PostgreSQL-backed snapshot table.
type PgStore struct {
	pool *pgxpool.Pool
}

// NewPgStore creates a PgStore over an existing pool.
func NewPgStore(pool *pgxpool.Pool) *PgStore {
	return &PgStore{pool: pool}
}

// OpenPostgres connects a pool to dsn.
func OpenPostgres(ctx context.Context, dsn string) (*PgStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return NewPgStore(pool), nil
}

// EnsureTable creates the snapshot table if it doesn't exist.
func (s *PgStore) EnsureTable(ctx context.Context) error {
	var b strings.Builder
	fmt.Fprintf(&b, "CREATE TABLE IF NOT EXISTS %s (\n\tuser_id TEXT PRIMARY KEY,\n", TableName)
	for _, col := range columns() {
		fmt.Fprintf(&b, "\t%s TEXT,\n", col)
	}
	b.WriteString("\tupdated_at TIMESTAMPTZ NOT NULL DEFAULT now()\n)")

	_, err := s.pool.Exec(ctx, b.String())
	return err
}

// Fetch returns the snapshot row for userID.
func (s *PgStore) Fetch(ctx context.Context, userID string) (*Record, error) {
	cols := columns()
	query := fmt.Sprintf(`SELECT %s, updated_at FROM %s WHERE user_id = $1`,
		strings.Join(cols, ", "), TableName)

	vals := make([]*string, len(cols))
	var updatedAt time.Time
	targets := append(scanTargets(vals), &updatedAt)

	err := s.pool.QueryRow(ctx, query, userID).Scan(targets...)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("fetch snapshot %s: %w", userID, err)
	}

	return &Record{
		UserID:    userID,
		Data:      snapshotFromRow(vals),
		UpdatedAt: updatedAt,
	}, nil
}

// Upsert writes the full snapshot row for rec.UserID.
func (s *PgStore) Upsert(ctx context.Context, rec *Record) error {
	if rec == nil || rec.UserID == "" {
		return fmt.Errorf("snapshot user id cannot be empty")
	}

	cols := columns()
	placeholders := make([]string, 0, len(cols)+2)
	for i := 1; i <= len(cols)+2; i++ {
		placeholders = append(placeholders, fmt.Sprintf("$%d", i))
	}
	sets := make([]string, 0, len(cols)+1)
	for _, col := range cols {
		sets = append(sets, fmt.Sprintf("%s = EXCLUDED.%s", col, col))
	}
	sets = append(sets, "updated_at = EXCLUDED.updated_at")

	query := fmt.Sprintf(`
		INSERT INTO %s (user_id, %s, updated_at)
		VALUES (%s)
		ON CONFLICT (user_id) DO UPDATE SET %s`,
		TableName, strings.Join(cols, ", "), strings.Join(placeholders, ", "), strings.Join(sets, ", "))

	updatedAt := rec.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now()
	}

	args := make([]any, 0, len(cols)+2)
	args = append(args, rec.UserID)
	args = append(args, rowValues(rec.Data)...)
	args = append(args, updatedAt.Truncate(time.Microsecond))

	if _, err := s.pool.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("upsert snapshot %s: %w", rec.UserID, err)
	}
	return nil
}

// Close closes the pool.
func (s *PgStore) Close() error {
	s.pool.Close()
	return nil
}
