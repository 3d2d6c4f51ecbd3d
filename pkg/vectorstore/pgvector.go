package vectorstore

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
)

// Chunk is one embedded piece of a report run: a findings excerpt or a
// slice of the final document, tagged with topic and section metadata.
type Chunk struct {
	ID        string                 `json:"id"`
	Content   string                 `json:"content"`
	Metadata  map[string]interface{} `json:"metadata"`
	Embedding []float32              `json:"embedding,omitempty"`
}

// ChunkStore persists and searches archive chunks in a pgvector table.
type ChunkStore struct {
	pool      *pgxpool.Pool
	tableName string
}

// isValidTableName validates that a table name contains only safe characters
// to prevent SQL injection attacks
func isValidTableName(name string) bool {
	// Table names must start with a letter or underscore and be between
	// 1-63 chars (PostgreSQL limit)
	matched, _ := regexp.MatchString(`^[a-z_][a-zA-Z0-9_]{0,62}$`, name)
	return matched
}

// NewChunkStore creates a store over the named archive table.
func NewChunkStore(pool *pgxpool.Pool, tableName string) (*ChunkStore, error) {
	if !isValidTableName(tableName) {
		return nil, fmt.Errorf("invalid table name: must contain only alphanumeric characters and underscores, start with a letter or underscore, and be 1-63 characters long")
	}
	return &ChunkStore{
		pool:      pool,
		tableName: tableName,
	}, nil
}

// AddChunks inserts chunks with their embeddings in one batch.
func (cs *ChunkStore) AddChunks(ctx context.Context, chunks []Chunk) error {
	query := fmt.Sprintf(`
		INSERT INTO %s (content, metadata, embedding)
		VALUES ($1, $2, $3)
	`, pgx.Identifier{cs.tableName}.Sanitize())

	batch := &pgx.Batch{}
	for _, chunk := range chunks {
		metadataJSON, err := json.Marshal(chunk.Metadata)
		if err != nil {
			return fmt.Errorf("failed to marshal metadata: %w", err)
		}

		embedding := pgvector.NewVector(chunk.Embedding)
		batch.Queue(query, chunk.Content, metadataJSON, embedding)
	}

	br := cs.pool.SendBatch(ctx, batch)
	defer br.Close()

	for range chunks {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("failed to insert chunk: %w", err)
		}
	}

	return nil
}

// SearchResult pairs a chunk with its cosine similarity score.
type SearchResult struct {
	Chunk Chunk
	Score float64
}

// SimilaritySearch returns the topK chunks nearest to the query embedding,
// optionally restricted to one report topic.
func (cs *ChunkStore) SimilaritySearch(ctx context.Context, queryEmbedding []float32, topK int, topicFilter string) ([]SearchResult, error) {
	var query string
	var args []interface{}

	embedding := pgvector.NewVector(queryEmbedding)

	if topicFilter != "" {
		query = fmt.Sprintf(`
			SELECT id, content, metadata, 1 - (embedding <=> $1) as similarity
			FROM %s
			WHERE metadata->>'topic' = $2
			ORDER BY embedding <=> $1
			LIMIT $3
		`, pgx.Identifier{cs.tableName}.Sanitize())
		args = []interface{}{embedding, topicFilter, topK}
	} else {
		query = fmt.Sprintf(`
			SELECT id, content, metadata, 1 - (embedding <=> $1) as similarity
			FROM %s
			ORDER BY embedding <=> $1
			LIMIT $2
		`, pgx.Identifier{cs.tableName}.Sanitize())
		args = []interface{}{embedding, topK}
	}

	rows, err := cs.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to execute similarity search: %w", err)
	}
	defer rows.Close()

	var results []SearchResult
	for rows.Next() {
		var chunk Chunk
		var metadataJSON []byte
		var similarity float64

		if err := rows.Scan(&chunk.ID, &chunk.Content, &metadataJSON, &similarity); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}

		if err := json.Unmarshal(metadataJSON, &chunk.Metadata); err != nil {
			return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
		}

		results = append(results, SearchResult{
			Chunk: chunk,
			Score: similarity,
		})
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return results, nil
}

// GetByTopic retrieves every chunk archived for one report topic.
func (cs *ChunkStore) GetByTopic(ctx context.Context, topic string) ([]Chunk, error) {
	query := fmt.Sprintf(`
		SELECT id, content, metadata
		FROM %s
		WHERE metadata->>'topic' = $1
	`, pgx.Identifier{cs.tableName}.Sanitize())

	rows, err := cs.pool.Query(ctx, query, topic)
	if err != nil {
		return nil, fmt.Errorf("failed to execute query: %w", err)
	}
	defer rows.Close()

	return scanChunks(rows)
}

// GetByMetadata retrieves chunks matching a JSON filter. The filter map
// supports the logical operators $and, $or and $not; plain keys match by
// JSONB containment.
func (cs *ChunkStore) GetByMetadata(ctx context.Context, filter map[string]interface{}) ([]Chunk, error) {
	var args []interface{}
	whereClause, err := cs.buildMetadataQuery(filter, &args)
	if err != nil {
		return nil, fmt.Errorf("failed to build metadata query: %w", err)
	}

	query := fmt.Sprintf(`
		SELECT id, content, metadata
		FROM %s
		WHERE %s
	`, pgx.Identifier{cs.tableName}.Sanitize(), whereClause)

	rows, err := cs.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to execute query: %w", err)
	}
	defer rows.Close()

	return scanChunks(rows)
}

func scanChunks(rows pgx.Rows) ([]Chunk, error) {
	var chunks []Chunk
	for rows.Next() {
		var chunk Chunk
		var metadataJSON []byte

		if err := rows.Scan(&chunk.ID, &chunk.Content, &metadataJSON); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}

		if err := json.Unmarshal(metadataJSON, &chunk.Metadata); err != nil {
			return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
		}

		chunks = append(chunks, chunk)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return chunks, nil
}

// buildMetadataQuery recursively builds a SQL WHERE clause for the filter
func (cs *ChunkStore) buildMetadataQuery(filter map[string]interface{}, args *[]interface{}) (string, error) {
	if len(filter) == 0 {
		return "TRUE", nil
	}

	var conditions []string

	for key, value := range filter {
		switch key {
		case "$and", "$or":
			list, ok := value.([]interface{})
			if !ok {
				return "", fmt.Errorf("value for %s must be a list of conditions", key)
			}
			var subConditions []string
			for _, item := range list {
				subMap, ok := item.(map[string]interface{})
				if !ok {
					return "", fmt.Errorf("item in %s list must be a JSON object", key)
				}
				subQuery, err := cs.buildMetadataQuery(subMap, args)
				if err != nil {
					return "", err
				}
				subConditions = append(subConditions, "("+subQuery+")")
			}

			if len(subConditions) == 0 {
				continue
			}

			op := " AND "
			if key == "$or" {
				op = " OR "
			}
			conditions = append(conditions, "("+strings.Join(subConditions, op)+")")

		case "$not":
			subMap, ok := value.(map[string]interface{})
			if !ok {
				return "", fmt.Errorf("value for $not must be a JSON object")
			}
			subQuery, err := cs.buildMetadataQuery(subMap, args)
			if err != nil {
				return "", err
			}
			conditions = append(conditions, "NOT ("+subQuery+")")

		default:
			// Simple equality via containment: metadata @> '{"key": value}'
			pair := map[string]interface{}{key: value}
			jsonBytes, err := json.Marshal(pair)
			if err != nil {
				return "", fmt.Errorf("failed to marshal metadata pair: %w", err)
			}
			*args = append(*args, jsonBytes)
			conditions = append(conditions, fmt.Sprintf("metadata @> $%d", len(*args)))
		}
	}

	if len(conditions) == 0 {
		return "TRUE", nil
	}

	return strings.Join(conditions, " AND "), nil
}
