package database

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// DB wraps the database connection pool
type DB struct {
	Pool *pgxpool.Pool
}

// Connect opens a PostgreSQL connection pool and verifies it
func Connect(ctx context.Context, databaseURL string) (*DB, error) {
	config, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database URL: %w", err)
	}

	// Pool sizing: the server runs report jobs concurrently with API reads
	config.MaxConns = 25
	config.MinConns = 5

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &DB{Pool: pool}, nil
}

// Close closes the database connection pool
func (db *DB) Close() {
	db.Pool.Close()
}

// EnsureVectorExtension ensures the pgvector extension is installed
func (db *DB) EnsureVectorExtension(ctx context.Context) error {
	_, err := db.Pool.Exec(ctx, "CREATE EXTENSION IF NOT EXISTS vector")
	return err
}

// CreateArchiveTable creates a chunk table for the findings archive if it
// doesn't exist. Table names are caller-controlled, so they must already be
// validated before reaching this point.
func (db *DB) CreateArchiveTable(ctx context.Context, tableName string, dimension int) error {
	query := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			content TEXT NOT NULL,
			metadata JSONB,
			embedding vector(%d),
			created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
		)
	`, tableName, dimension)

	_, err := db.Pool.Exec(ctx, query)
	if err != nil {
		return fmt.Errorf("failed to create table %s: %w", tableName, err)
	}

	// HNSW supports up to 2000 dimensions. Above that we skip the index
	// and rely on exact search.
	if dimension <= 2000 {
		indexQuery := fmt.Sprintf(`
			CREATE INDEX IF NOT EXISTS %s_embedding_idx
			ON %s USING hnsw (embedding vector_cosine_ops)
		`, tableName, tableName)

		_, err = db.Pool.Exec(ctx, indexQuery)
		if err != nil {
			return fmt.Errorf("failed to create index on %s: %w", tableName, err)
		}
	}

	return nil
}
