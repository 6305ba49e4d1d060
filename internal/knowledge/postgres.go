package knowledge

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	pgvector "github.com/pgvector/pgvector-go"

	"github.com/prompt-general/answerhub/internal/config"
	"github.com/prompt-general/answerhub/pkg/models"
)

// Store is the PostgreSQL-backed knowledge base. Entry text is the source
// of truth; the pgvector embedding column is a derived index maintained by
// the embedding pipeline. Embedding writes are row-scoped and atomic:
// embedding and embedded_at change in a single UPDATE.
type Store struct {
	db      *sqlx.DB
	timeout time.Duration
}

const schemaTemplate = `
CREATE EXTENSION IF NOT EXISTS vector;

CREATE TABLE IF NOT EXISTS kb_entries (
    id          TEXT PRIMARY KEY,
    collection  TEXT NOT NULL DEFAULT 'default',
    question    TEXT NOT NULL,
    answer      TEXT NOT NULL,
    embedding   vector(%d),
    embedded_at TIMESTAMPTZ,
    created_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
    updated_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS kb_entries_collection_idx ON kb_entries (collection);
`

// Open connects to PostgreSQL and verifies the connection
func Open(cfg config.DatabaseConfig) (*Store, error) {
	db, err := sqlx.Open("postgres", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)

	ctx, cancel := context.WithTimeout(context.Background(), cfg.QueryTimeout)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Store{db: db, timeout: cfg.QueryTimeout}, nil
}

// EnsureSchema creates the pgvector extension and tables if missing.
// dimension must match the active embedding provider's output dimension.
func (s *Store) EnsureSchema(ctx context.Context, dimension int) error {
	ctx, cancel := s.opContext(ctx)
	defer cancel()

	if _, err := s.db.ExecContext(ctx, fmt.Sprintf(schemaTemplate, dimension)); err != nil {
		return &StoreError{Op: "ensure schema", Err: err}
	}
	return nil
}

// CreateEntry inserts a new knowledge entry. The embedding stays null until
// the maintenance pipeline computes it.
func (s *Store) CreateEntry(ctx context.Context, entry *models.Entry) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.Collection == "" {
		entry.Collection = models.DefaultCollection
	}

	ctx, cancel := s.opContext(ctx)
	defer cancel()

	row := s.db.QueryRowxContext(ctx, `
		INSERT INTO kb_entries (id, collection, question, answer)
		VALUES ($1, $2, $3, $4)
		RETURNING created_at, updated_at`,
		entry.ID, entry.Collection, entry.Question, entry.Answer)
	if err := row.Scan(&entry.CreatedAt, &entry.UpdatedAt); err != nil {
		return &StoreError{Op: "create entry", Err: err}
	}
	return nil
}

// GetEntry fetches a single entry by ID
func (s *Store) GetEntry(ctx context.Context, id string) (*models.Entry, error) {
	ctx, cancel := s.opContext(ctx)
	defer cancel()

	var entry models.Entry
	err := s.db.GetContext(ctx, &entry, `
		SELECT id, collection, question, answer,
		       embedding IS NOT NULL AS embedded,
		       embedded_at, created_at, updated_at
		FROM kb_entries
		WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrEntryNotFound
	}
	if err != nil {
		return nil, &StoreError{Op: "get entry", Err: err}
	}
	return &entry, nil
}

// ListEntries returns entries matching the filter, newest first
func (s *Store) ListEntries(ctx context.Context, filter models.EntryFilter) ([]models.Entry, error) {
	ctx, cancel := s.opContext(ctx)
	defer cancel()

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}

	query := `
		SELECT id, collection, question, answer,
		       embedding IS NOT NULL AS embedded,
		       embedded_at, created_at, updated_at
		FROM kb_entries`
	args := []interface{}{}
	if filter.Collection != "" {
		query += ` WHERE collection = $1 ORDER BY created_at DESC, id LIMIT $2 OFFSET $3`
		args = append(args, filter.Collection, limit, filter.Offset)
	} else {
		query += ` ORDER BY created_at DESC, id LIMIT $1 OFFSET $2`
		args = append(args, limit, filter.Offset)
	}

	entries := []models.Entry{}
	if err := s.db.SelectContext(ctx, &entries, query, args...); err != nil {
		return nil, &StoreError{Op: "list entries", Err: err}
	}
	return entries, nil
}

// ListStaleEntries returns entries in the collection whose embedding is
// missing or older than the last text update, in stable ID order so
// maintenance runs process entries deterministically.
func (s *Store) ListStaleEntries(ctx context.Context, collection string) ([]models.Entry, error) {
	ctx, cancel := s.opContext(ctx)
	defer cancel()

	entries := []models.Entry{}
	err := s.db.SelectContext(ctx, &entries, `
		SELECT id, collection, question, answer,
		       embedding IS NOT NULL AS embedded,
		       embedded_at, created_at, updated_at
		FROM kb_entries
		WHERE collection = $1
		  AND (embedding IS NULL OR embedded_at < updated_at)
		ORDER BY id`, collection)
	if err != nil {
		return nil, &StoreError{Op: "list stale entries", Err: err}
	}
	return entries, nil
}

// UpdateEmbedding writes an entry's embedding and freshness marker in one
// atomic statement.
func (s *Store) UpdateEmbedding(ctx context.Context, id string, vector []float32) error {
	ctx, cancel := s.opContext(ctx)
	defer cancel()

	res, err := s.db.ExecContext(ctx, `
		UPDATE kb_entries
		SET embedding = $1, embedded_at = now()
		WHERE id = $2`,
		pgvector.NewVector(vector), id)
	if err != nil {
		return &StoreError{Op: "update embedding", Err: err}
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return &StoreError{Op: "update embedding", Err: err}
	}
	if affected == 0 {
		return ErrEntryNotFound
	}
	return nil
}

type candidateRow struct {
	models.Entry
	Distance float64 `db:"distance"`
}

// NearestByVector returns up to k embedded entries nearest to vector under
// cosine distance, ordered by distance then ID. The secondary ID ordering
// makes equal-distance results deterministic.
func (s *Store) NearestByVector(ctx context.Context, collection string, vector []float32, k int) ([]models.Candidate, error) {
	ctx, cancel := s.opContext(ctx)
	defer cancel()

	rows := []candidateRow{}
	err := s.db.SelectContext(ctx, &rows, `
		SELECT id, collection, question, answer,
		       embedding IS NOT NULL AS embedded,
		       embedded_at, created_at, updated_at,
		       embedding <=> $1 AS distance
		FROM kb_entries
		WHERE collection = $2
		  AND embedding IS NOT NULL
		ORDER BY embedding <=> $1, id
		LIMIT $3`,
		pgvector.NewVector(vector), collection, k)
	if err != nil {
		return nil, &StoreError{Op: "nearest by vector", Err: err}
	}

	candidates := make([]models.Candidate, len(rows))
	for i, row := range rows {
		candidates[i] = models.Candidate{Entry: row.Entry, Distance: row.Distance}
	}
	return candidates, nil
}

// CollectionStats reports embedding coverage across the knowledge base
func (s *Store) CollectionStats(ctx context.Context) (*models.CollectionStats, error) {
	ctx, cancel := s.opContext(ctx)
	defer cancel()

	stats := &models.CollectionStats{}
	err := s.db.QueryRowxContext(ctx, `
		SELECT count(*), count(embedding)
		FROM kb_entries`).Scan(&stats.TotalEntries, &stats.EmbeddedEntries)
	if err != nil {
		return nil, &StoreError{Op: "collection stats", Err: err}
	}

	if err := s.db.SelectContext(ctx, &stats.Collections, `
		SELECT DISTINCT collection FROM kb_entries ORDER BY collection`); err != nil {
		return nil, &StoreError{Op: "collection stats", Err: err}
	}
	return stats, nil
}

// Ping verifies database connectivity
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close releases the connection pool
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) opContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, s.timeout)
}
