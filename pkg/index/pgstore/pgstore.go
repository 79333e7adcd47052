// Package pgstore is a pgvector-backed alternative to the hosted search
// index, for deployments that keep chunks in Postgres.
package pgstore

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/spindexlabs/spindex/internal/models"
)

type StoreConfig struct {
	ConnString  string
	TableName   string
	VectorDim   int
	BatchSize   int
	SearchLimit int
}

type Store struct {
	config StoreConfig
	pool   *pgxpool.Pool
}

func NewWithConfig(ctx context.Context, config StoreConfig) (*Store, error) {
	if config.TableName == "" {
		config.TableName = "chunks"
	}
	if config.VectorDim == 0 {
		config.VectorDim = 1536 // Default for OpenAI embeddings
	}
	if config.BatchSize == 0 {
		config.BatchSize = 100
	}
	if config.SearchLimit == 0 {
		config.SearchLimit = 5
	}

	pool, err := pgxpool.New(ctx, config.ConnString)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	s := &Store{
		config: config,
		pool:   pool,
	}

	if err := s.initialize(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return s, nil
}

func (s *Store) initialize(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "CREATE EXTENSION IF NOT EXISTS vector")
	if err != nil {
		return fmt.Errorf("failed to create vector extension: %w", err)
	}

	createTable := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id TEXT PRIMARY KEY,
			file_id TEXT NOT NULL,
			chunk_index INTEGER NOT NULL,
			content TEXT,
			embedding vector(%d),
			source TEXT,
			name TEXT,
			security_group TEXT,
			created_by TEXT,
			created_datetime TEXT,
			last_modified_datetime TEXT
		)`, s.config.TableName, s.config.VectorDim)

	_, err = s.pool.Exec(ctx, createTable)
	if err != nil {
		return fmt.Errorf("failed to create table: %w", err)
	}

	createIndex := fmt.Sprintf(`
		CREATE INDEX IF NOT EXISTS %s_embedding_idx
		ON %s
		USING ivfflat (embedding vector_cosine_ops)
		WITH (lists = 100)`,
		s.config.TableName, s.config.TableName)

	_, err = s.pool.Exec(ctx, createIndex)
	if err != nil {
		return fmt.Errorf("failed to create index: %w", err)
	}

	return nil
}

// Upload upserts chunk documents. Vectors arrive precomputed; re-running
// the pipeline overwrites each chunk in place by id.
func (s *Store) Upload(ctx context.Context, docs []models.ChunkDocument) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	stmt := fmt.Sprintf(`
		INSERT INTO %s (id, file_id, chunk_index, content, embedding, source, name,
			security_group, created_by, created_datetime, last_modified_datetime)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (id) DO UPDATE SET
			content = EXCLUDED.content,
			embedding = EXCLUDED.embedding,
			source = EXCLUDED.source,
			name = EXCLUDED.name,
			security_group = EXCLUDED.security_group,
			last_modified_datetime = EXCLUDED.last_modified_datetime`,
		s.config.TableName)

	for _, doc := range docs {
		_, err := tx.Exec(ctx, stmt,
			doc.ID,
			doc.FileID,
			doc.ChunkIndex,
			doc.Content,
			pgvector.NewVector(doc.ContentVector),
			doc.Source,
			doc.Name,
			doc.SecurityGroup,
			doc.CreatedBy,
			doc.CreatedAt,
			doc.LastModified,
		)
		if err != nil {
			return fmt.Errorf("failed to insert chunk %s: %w", doc.ID, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// Search returns the chunks nearest the query embedding, trimmed to one
// access label when securityGroup is set. The text query only serves the
// hosted backend; ranking here is purely vector distance.
func (s *Store) Search(ctx context.Context, query string, embedding []float32, securityGroup string, limit int) ([]models.ChunkDocument, error) {
	if limit <= 0 {
		limit = s.config.SearchLimit
	}

	sql := fmt.Sprintf(`
		SELECT id, file_id, chunk_index, content, source, name,
			security_group, created_by, created_datetime, last_modified_datetime
		FROM %s`, s.config.TableName)

	args := []any{pgvector.NewVector(embedding)}
	if securityGroup != "" {
		sql += " WHERE security_group = $2"
		args = append(args, securityGroup)
	}
	sql += fmt.Sprintf(" ORDER BY embedding <=> $1 LIMIT %d", limit)

	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query chunks: %w", err)
	}
	defer rows.Close()

	var docs []models.ChunkDocument
	for rows.Next() {
		var doc models.ChunkDocument
		err := rows.Scan(
			&doc.ID,
			&doc.FileID,
			&doc.ChunkIndex,
			&doc.Content,
			&doc.Source,
			&doc.Name,
			&doc.SecurityGroup,
			&doc.CreatedBy,
			&doc.CreatedAt,
			&doc.LastModified,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		docs = append(docs, doc)
	}

	return docs, rows.Err()
}

func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}
