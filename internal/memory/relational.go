package memory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ImitationGameLabs/ephemera-ai/internal/observability"
)

// RelationalStore is the Relational Store Adapter contract: CRUD over memory
// fragments with autoincrement ids assigned inside a single batch transaction.
type RelationalStore interface {
	Init(ctx context.Context) error
	BatchInsert(ctx context.Context, fragments []MemoryFragment) ([]int64, error)
	FetchMany(ctx context.Context, ids []int64) ([]MemoryFragment, error)
	FetchOne(ctx context.Context, id int64) (MemoryFragment, error)
	BatchDelete(ctx context.Context, ids []int64) (int, error)
	MaxFragmentID(ctx context.Context) (int64, error)
}

// PostgresRelationalStore is a pgx-backed RelationalStore, grounded on the
// teacher's pgChatStore: inline schema creation, explicit transactions, and
// JSON-encoded columns for nested structures.
type PostgresRelationalStore struct {
	pool *pgxpool.Pool
}

// NewPostgresRelationalStore wraps an already-opened pgxpool.Pool.
func NewPostgresRelationalStore(pool *pgxpool.Pool) *PostgresRelationalStore {
	return &PostgresRelationalStore{pool: pool}
}

func (s *PostgresRelationalStore) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

func (s *PostgresRelationalStore) Init(ctx context.Context) error {
	if s.pool == nil {
		return errors.New("relational store requires a pool")
	}
	_, err := s.pool.Exec(ctx, `
CREATE TABLE IF NOT EXISTS memory_fragments (
    id BIGSERIAL PRIMARY KEY,
    content TEXT NOT NULL,
    created_at TIMESTAMPTZ NOT NULL,
    updated_at TIMESTAMPTZ NOT NULL,
    source_channel TEXT NOT NULL,
    source_identifier TEXT NOT NULL,
    source_metadata JSONB NOT NULL DEFAULT '{}',
    importance SMALLINT NOT NULL,
    confidence SMALLINT NOT NULL,
    tags JSONB NOT NULL DEFAULT '[]',
    notes TEXT NOT NULL DEFAULT '',
    associations JSONB NOT NULL DEFAULT '[]'
);

CREATE INDEX IF NOT EXISTS memory_fragments_created_idx ON memory_fragments(created_at);
CREATE INDEX IF NOT EXISTS memory_fragments_importance_idx ON memory_fragments(importance);
CREATE INDEX IF NOT EXISTS memory_fragments_source_idx ON memory_fragments(source_channel, source_identifier);
`)
	return err
}

// BatchInsert persists fragments inside a single transaction, assigning ids in
// input order and returning them in that same order. On any error the
// transaction is rolled back and nothing is visible — callers higher up
// (HybridManager) treat this as "nothing committed", never a partial batch.
func (s *PostgresRelationalStore) BatchInsert(ctx context.Context, fragments []MemoryFragment) ([]int64, error) {
	if len(fragments) == 0 {
		return nil, nil
	}
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, fmt.Errorf("%w: begin tx: %v", ErrStoreUnavailable, err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	ids := make([]int64, 0, len(fragments))
	for _, f := range fragments {
		metaJSON, err := json.Marshal(f.Objective.Source.Metadata)
		if err != nil {
			return nil, fmt.Errorf("%w: marshal source metadata: %v", ErrValidation, err)
		}
		tagsJSON, err := json.Marshal(f.Subjective.Tags)
		if err != nil {
			return nil, fmt.Errorf("%w: marshal tags: %v", ErrValidation, err)
		}
		assocJSON, err := json.Marshal(f.Associations)
		if err != nil {
			return nil, fmt.Errorf("%w: marshal associations: %v", ErrValidation, err)
		}

		var id int64
		row := tx.QueryRow(ctx, `
INSERT INTO memory_fragments
    (content, created_at, updated_at, source_channel, source_identifier, source_metadata, importance, confidence, tags, notes, associations)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
RETURNING id`,
			f.Content, f.Objective.CreatedAt, f.Objective.UpdatedAt,
			string(f.Objective.Source.Channel), f.Objective.Source.Identifier, metaJSON,
			f.Subjective.Importance, f.Subjective.Confidence, tagsJSON, f.Subjective.Notes, assocJSON)
		if err := row.Scan(&id); err != nil {
			return nil, fmt.Errorf("%w: insert fragment: %v", ErrStoreUnavailable, err)
		}
		ids = append(ids, id)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("%w: commit: %v", ErrStoreUnavailable, err)
	}
	return ids, nil
}

func (s *PostgresRelationalStore) scanFragment(row pgx.Row) (MemoryFragment, error) {
	var f MemoryFragment
	var channel, identifier string
	var metaJSON, tagsJSON, assocJSON []byte
	if err := row.Scan(&f.ID, &f.Content, &f.Objective.CreatedAt, &f.Objective.UpdatedAt,
		&channel, &identifier, &metaJSON, &f.Subjective.Importance, &f.Subjective.Confidence,
		&tagsJSON, &f.Subjective.Notes, &assocJSON); err != nil {
		return MemoryFragment{}, err
	}
	f.Objective.Source.Channel = Channel(channel)
	f.Objective.Source.Identifier = identifier
	if len(metaJSON) > 0 {
		_ = json.Unmarshal(metaJSON, &f.Objective.Source.Metadata)
	}
	if len(tagsJSON) > 0 {
		_ = json.Unmarshal(tagsJSON, &f.Subjective.Tags)
	}
	if len(assocJSON) > 0 {
		_ = json.Unmarshal(assocJSON, &f.Associations)
	}
	return f, nil
}

const fragmentColumns = `id, content, created_at, updated_at, source_channel, source_identifier, source_metadata, importance, confidence, tags, notes, associations`

// FetchMany reads fragments for the given ids; missing ids are omitted from
// the result (not an error) and order is not guaranteed, per spec.
func (s *PostgresRelationalStore) FetchMany(ctx context.Context, ids []int64) ([]MemoryFragment, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := s.pool.Query(ctx, `SELECT `+fragmentColumns+` FROM memory_fragments WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, fmt.Errorf("%w: fetch many: %v", ErrStoreUnavailable, err)
	}
	defer rows.Close()

	var out []MemoryFragment
	for rows.Next() {
		f, err := s.scanFragment(rows)
		if err != nil {
			return nil, fmt.Errorf("%w: scan: %v", ErrStoreUnavailable, err)
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

func (s *PostgresRelationalStore) FetchOne(ctx context.Context, id int64) (MemoryFragment, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+fragmentColumns+` FROM memory_fragments WHERE id = $1`, id)
	f, err := s.scanFragment(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return MemoryFragment{}, fmt.Errorf("%w: fragment %d", ErrNotFound, id)
		}
		return MemoryFragment{}, fmt.Errorf("%w: fetch one: %v", ErrStoreUnavailable, err)
	}
	return f, nil
}

// BatchDelete removes the given ids (used both for user-initiated deletes and
// for the hybrid manager's best-effort rollback after a failed append).
func (s *PostgresRelationalStore) BatchDelete(ctx context.Context, ids []int64) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	cmd, err := s.pool.Exec(ctx, `DELETE FROM memory_fragments WHERE id = ANY($1)`, ids)
	if err != nil {
		return 0, fmt.Errorf("%w: batch delete: %v", ErrStoreUnavailable, err)
	}
	return int(cmd.RowsAffected()), nil
}

func (s *PostgresRelationalStore) MaxFragmentID(ctx context.Context) (int64, error) {
	row := s.pool.QueryRow(ctx, `SELECT COALESCE(MAX(id), 0) FROM memory_fragments`)
	var max int64
	if err := row.Scan(&max); err != nil {
		return 0, fmt.Errorf("%w: max fragment id: %v", ErrStoreUnavailable, err)
	}
	return max, nil
}

// OpenPool creates a Postgres connection pool using the standard defaults,
// mirroring the teacher's databases.OpenPool helper.
func OpenPool(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, errors.New("relational store DSN is required")
	}
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse relational DSN: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("open relational pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping relational pool: %w", err)
	}
	observability.LoggerWithTrace(ctx).Info().Str("component", "relational_store").Msg("pool_opened")
	return pool, nil
}
