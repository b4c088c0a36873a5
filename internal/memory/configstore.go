package memory

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ConfigSnapshot is an immutable, content-addressed archive record, per
// spec.md's SystemConfigSnapshot data model entry.
type ConfigSnapshot struct {
	ID               int64
	Content          string
	ContentHash      string
	MemoryFragmentID *int64
	CreatedAt        time.Time
}

// ConfigSnapshotFilter narrows Query results; zero-value fields are ignored.
type ConfigSnapshotFilter struct {
	MemoryFragmentID *int64
	ContentHash      string
	CreatedAtFrom    time.Time
	CreatedAtTo      time.Time

	Limit  int
	Offset int
}

// ConfigSnapshotStore is the System-Config Snapshot Store contract from
// spec.md §4.4.
type ConfigSnapshotStore interface {
	Init(ctx context.Context) error
	Create(ctx context.Context, content string, memoryFragmentID *int64) (ConfigSnapshot, error)
	Query(ctx context.Context, filter ConfigSnapshotFilter) ([]ConfigSnapshot, error)
	Get(ctx context.Context, id int64) (ConfigSnapshot, error)
}

// PostgresConfigSnapshotStore is a pgx-backed ConfigSnapshotStore sharing the
// same pool as PostgresRelationalStore, grounded on the same pgChatStore
// schema-and-transaction idiom as relational.go.
type PostgresConfigSnapshotStore struct {
	pool       *pgxpool.Pool
	relational RelationalStore
}

func NewPostgresConfigSnapshotStore(pool *pgxpool.Pool, relational RelationalStore) *PostgresConfigSnapshotStore {
	return &PostgresConfigSnapshotStore{pool: pool, relational: relational}
}

func (s *PostgresConfigSnapshotStore) Init(ctx context.Context) error {
	if s.pool == nil {
		return errors.New("config snapshot store requires a pool")
	}
	_, err := s.pool.Exec(ctx, `
CREATE TABLE IF NOT EXISTS system_config_snapshots (
    id BIGSERIAL PRIMARY KEY,
    content TEXT NOT NULL,
    content_hash TEXT NOT NULL UNIQUE,
    memory_fragment_id BIGINT,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS system_config_snapshots_created_idx ON system_config_snapshots(created_at DESC);
CREATE INDEX IF NOT EXISTS system_config_snapshots_fragment_idx ON system_config_snapshots(memory_fragment_id);
`)
	return err
}

func hashContent(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}

// Create inserts a new snapshot. A pre-existing row with the same content
// hash fails with ErrAlreadyExists rather than overwriting — the archive is
// immutable and deduped by content, per spec.md §4.4.
func (s *PostgresConfigSnapshotStore) Create(ctx context.Context, content string, memoryFragmentID *int64) (ConfigSnapshot, error) {
	hash := hashContent(content)

	var existing int64
	err := s.pool.QueryRow(ctx, `SELECT id FROM system_config_snapshots WHERE content_hash = $1`, hash).Scan(&existing)
	if err == nil {
		return ConfigSnapshot{}, fmt.Errorf("%w: snapshot with hash %s", ErrAlreadyExists, hash)
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return ConfigSnapshot{}, fmt.Errorf("%w: check existing hash: %v", ErrStoreUnavailable, err)
	}

	resolvedID := memoryFragmentID
	if resolvedID == nil && s.relational != nil {
		maxID, err := s.relational.MaxFragmentID(ctx)
		if err != nil {
			return ConfigSnapshot{}, err
		}
		if maxID > 0 {
			resolvedID = &maxID
		}
	}

	var snap ConfigSnapshot
	row := s.pool.QueryRow(ctx, `
INSERT INTO system_config_snapshots (content, content_hash, memory_fragment_id, created_at)
VALUES ($1, $2, $3, NOW())
RETURNING id, content, content_hash, memory_fragment_id, created_at`,
		content, hash, resolvedID)
	if err := row.Scan(&snap.ID, &snap.Content, &snap.ContentHash, &snap.MemoryFragmentID, &snap.CreatedAt); err != nil {
		return ConfigSnapshot{}, fmt.Errorf("%w: insert snapshot: %v", ErrStoreUnavailable, err)
	}
	return snap, nil
}

const configSnapshotColumns = `id, content, content_hash, memory_fragment_id, created_at`

// Query returns snapshots newest-first, paginated, filtered by any
// combination of memory_fragment_id, content_hash, and created_at range.
func (s *PostgresConfigSnapshotStore) Query(ctx context.Context, filter ConfigSnapshotFilter) ([]ConfigSnapshot, error) {
	clauses := []string{"1=1"}
	args := []any{}
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if filter.MemoryFragmentID != nil {
		clauses = append(clauses, "memory_fragment_id = "+arg(*filter.MemoryFragmentID))
	}
	if filter.ContentHash != "" {
		clauses = append(clauses, "content_hash = "+arg(filter.ContentHash))
	}
	if !filter.CreatedAtFrom.IsZero() {
		clauses = append(clauses, "created_at >= "+arg(filter.CreatedAtFrom))
	}
	if !filter.CreatedAtTo.IsZero() {
		clauses = append(clauses, "created_at <= "+arg(filter.CreatedAtTo))
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	query := fmt.Sprintf(
		`SELECT %s FROM system_config_snapshots WHERE %s ORDER BY created_at DESC, id DESC LIMIT %s OFFSET %s`,
		configSnapshotColumns, joinClauses(clauses), arg(limit), arg(filter.Offset))

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: query snapshots: %v", ErrStoreUnavailable, err)
	}
	defer rows.Close()

	var out []ConfigSnapshot
	for rows.Next() {
		var snap ConfigSnapshot
		if err := rows.Scan(&snap.ID, &snap.Content, &snap.ContentHash, &snap.MemoryFragmentID, &snap.CreatedAt); err != nil {
			return nil, fmt.Errorf("%w: scan snapshot: %v", ErrStoreUnavailable, err)
		}
		out = append(out, snap)
	}
	return out, rows.Err()
}

func (s *PostgresConfigSnapshotStore) Get(ctx context.Context, id int64) (ConfigSnapshot, error) {
	var snap ConfigSnapshot
	row := s.pool.QueryRow(ctx, `SELECT `+configSnapshotColumns+` FROM system_config_snapshots WHERE id = $1`, id)
	if err := row.Scan(&snap.ID, &snap.Content, &snap.ContentHash, &snap.MemoryFragmentID, &snap.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ConfigSnapshot{}, fmt.Errorf("%w: snapshot %d", ErrNotFound, id)
		}
		return ConfigSnapshot{}, fmt.Errorf("%w: get snapshot: %v", ErrStoreUnavailable, err)
	}
	return snap, nil
}

func joinClauses(clauses []string) string {
	out := clauses[0]
	for _, c := range clauses[1:] {
		out += " AND " + c
	}
	return out
}
