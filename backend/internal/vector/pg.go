package vector

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
	pgxvec "github.com/pgvector/pgvector-go/pgx"
	"go.uber.org/zap"

	"reqgraph/backend/pkg/logger"
)

// PgIndex is an Index backed by PostgreSQL with the pgvector extension.
type PgIndex struct {
	pool   *pgxpool.Pool
	table  string
	dim    int
	logger *zap.Logger
}

// DefaultTable holds passages unless another table is configured.
const DefaultTable = "passages"

// ConnectPg opens a pool on databaseURL, registers the vector types on each
// connection and creates the passage table when missing.
func ConnectPg(ctx context.Context, databaseURL string, dim int) (*PgIndex, error) {
	if dim <= 0 {
		return nil, fmt.Errorf("embedding dimension must be positive, got %d", dim)
	}
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database url: %w", err)
	}
	cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return pgxvec.RegisterTypes(ctx, conn)
	}

	// The extension must exist before AfterConnect can register its types.
	boot, err := pgx.Connect(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	_, err = boot.Exec(ctx, "CREATE EXTENSION IF NOT EXISTS vector")
	boot.Close(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to enable pgvector: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create pool: %w", err)
	}
	idx := &PgIndex{pool: pool, table: DefaultTable, dim: dim, logger: logger.Get()}
	if err := idx.ensureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	idx.logger.Info("Connected to pgvector index", zap.String("table", idx.table), zap.Int("dim", dim))
	return idx, nil
}

func (p *PgIndex) ensureSchema(ctx context.Context) error {
	stmt := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		id text PRIMARY KEY,
		source text NOT NULL,
		body text NOT NULL,
		embedding vector(%d) NOT NULL
	)`, pgx.Identifier{p.table}.Sanitize(), p.dim)
	if _, err := p.pool.Exec(ctx, stmt); err != nil {
		return fmt.Errorf("failed to create passage table: %w", err)
	}
	return nil
}

// Upsert implements Index. All entries are written in one transaction.
func (p *PgIndex) Upsert(ctx context.Context, entries []Entry) error {
	if len(entries) == 0 {
		return nil
	}
	for _, e := range entries {
		if len(e.Vector) != p.dim {
			return fmt.Errorf("passage %s: embedding has %d dimensions, index expects %d", e.Passage.ID, len(e.Vector), p.dim)
		}
	}

	stmt := fmt.Sprintf(`INSERT INTO %s (id, source, body, embedding) VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET source = EXCLUDED.source, body = EXCLUDED.body, embedding = EXCLUDED.embedding`,
		pgx.Identifier{p.table}.Sanitize())

	return pgx.BeginFunc(ctx, p.pool, func(tx pgx.Tx) error {
		batch := &pgx.Batch{}
		for _, e := range entries {
			batch.Queue(stmt, e.Passage.ID, e.Passage.Source, e.Passage.Text, pgvector.NewVector(e.Vector))
		}
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("failed to upsert passages: %w", err)
		}
		return nil
	})
}

// Search implements Index using cosine distance.
func (p *PgIndex) Search(ctx context.Context, query []float32, k int) ([]Hit, error) {
	if k <= 0 || len(query) == 0 {
		return nil, nil
	}
	stmt := fmt.Sprintf(`SELECT id, source, body, 1 - (embedding <=> $1) AS score
		FROM %s ORDER BY embedding <=> $1, id LIMIT $2`, pgx.Identifier{p.table}.Sanitize())

	rows, err := p.pool.Query(ctx, stmt, pgvector.NewVector(query), k)
	if err != nil {
		return nil, fmt.Errorf("failed to search passages: %w", err)
	}
	hits, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Hit, error) {
		var h Hit
		err := row.Scan(&h.Passage.ID, &h.Passage.Source, &h.Passage.Text, &h.Score)
		return h, err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read search results: %w", err)
	}
	return hits, nil
}

// Count implements Index.
func (p *PgIndex) Count(ctx context.Context) (int, error) {
	var n int
	err := p.pool.QueryRow(ctx, fmt.Sprintf("SELECT count(*) FROM %s", pgx.Identifier{p.table}.Sanitize())).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count passages: %w", err)
	}
	return n, nil
}

// Close implements Index.
func (p *PgIndex) Close() {
	p.pool.Close()
}
