// Package vectorindex persists and queries chunk embeddings in Postgres
// with the pgvector extension. Every record carries the owning user id;
// queries are always scoped to one user.
package vectorindex

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgvector "github.com/pgvector/pgvector-go"

	"github.com/linkmind/linkmind/pkg/models"
)

// ChunkIndex defines the vector store operations the RAG pipeline needs.
type ChunkIndex interface {
	EnsureReady(ctx context.Context) error
	Upsert(ctx context.Context, userID, contentID string, chunks []models.EmbeddedChunk) error
	Query(ctx context.Context, userID string, vec []float32, topK int) ([]models.SearchHit, error)
	Delete(ctx context.Context, contentID string) error
}

// Index is a pgvector-backed ChunkIndex.
type Index struct {
	pool *pgxpool.Pool
}

// New creates an Index connected to the given database URL.
func New(ctx context.Context, url string) (*Index, error) {
	cfg, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, err
	}
	p, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return &Index{pool: p}, nil
}

// NewWithPool wraps an existing pool, shared with other stores in the
// same database.
func NewWithPool(pool *pgxpool.Pool) *Index {
	return &Index{pool: pool}
}

func (i *Index) Close() { i.pool.Close() }

// RecordID builds the deterministic per-chunk record id. Re-indexing a
// document overwrites records with the same chunk index.
func RecordID(contentID string, chunkIndex int) string {
	return fmt.Sprintf("%s-chunk-%d", contentID, chunkIndex)
}

// EnsureReady creates the extension, table, and indexes if missing. It is
// idempotent and safe to call at every startup.
func (i *Index) EnsureReady(ctx context.Context) error {
	q := `
CREATE EXTENSION IF NOT EXISTS vector;

CREATE TABLE IF NOT EXISTS rag_chunks (
  id          TEXT PRIMARY KEY,
  user_id     TEXT NOT NULL,
  content_id  TEXT NOT NULL,
  chunk_index INT NOT NULL,
  text        TEXT NOT NULL,
  embedding   vector(%d) NOT NULL,
  created_at  TIMESTAMP WITH TIME ZONE DEFAULT now()
);

CREATE INDEX IF NOT EXISTS rag_chunks_user_idx
  ON rag_chunks (user_id);

CREATE INDEX IF NOT EXISTS rag_chunks_content_idx
  ON rag_chunks (content_id);

CREATE INDEX IF NOT EXISTS rag_chunks_embedding_idx
  ON rag_chunks USING ivfflat (embedding vector_cosine_ops) WITH (lists = 100);
`
	_, err := i.pool.Exec(ctx, fmt.Sprintf(q, models.EmbedDim))
	return err
}

// Upsert writes one record per chunk under the deterministic id scheme.
func (i *Index) Upsert(ctx context.Context, userID, contentID string, chunks []models.EmbeddedChunk) error {
	const q = `
		INSERT INTO rag_chunks (id, user_id, content_id, chunk_index, text, embedding)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET
			user_id     = EXCLUDED.user_id,
			text        = EXCLUDED.text,
			embedding   = EXCLUDED.embedding;`

	batch := &pgx.Batch{}
	for idx, ch := range chunks {
		batch.Queue(q, RecordID(contentID, idx), userID, contentID, idx, ch.Text, pgvector.NewVector(ch.Embedding))
	}
	br := i.pool.SendBatch(ctx, batch)
	defer br.Close()
	for range chunks {
		if _, err := br.Exec(); err != nil {
			return err
		}
	}
	return nil
}

// Query returns up to topK hits for the user, ordered by descending
// cosine similarity. Records of other users are never visible.
func (i *Index) Query(ctx context.Context, userID string, vec []float32, topK int) ([]models.SearchHit, error) {
	const q = `
		SELECT id, content_id, text, chunk_index,
		       LEAST(GREATEST(1.0 - (embedding <=> $1), 0), 1) AS score
		FROM rag_chunks
		WHERE user_id = $2
		ORDER BY embedding <=> $1
		LIMIT $3;`

	rows, err := i.pool.Query(ctx, q, pgvector.NewVector(vec), userID, topK)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var hits []models.SearchHit
	for rows.Next() {
		var h models.SearchHit
		if err := rows.Scan(&h.RecordID, &h.ContentID, &h.Text, &h.ChunkIndex, &h.Score); err != nil {
			return nil, err
		}
		hits = append(hits, h)
	}
	return hits, rows.Err()
}

// Delete removes every record of the content id. Deleting a content id
// with no records is a no-op.
func (i *Index) Delete(ctx context.Context, contentID string) error {
	_, err := i.pool.Exec(ctx, `DELETE FROM rag_chunks WHERE content_id = $1`, contentID)
	return err
}

// Ping checks the database connectivity.
func (i *Index) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	return i.pool.Ping(ctx)
}
