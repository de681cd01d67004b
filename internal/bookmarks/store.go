// Package bookmarks persists bookmark records. It is the collaborator on
// the other side of the ingest saga: the API creates a record, asks the
// RAG service to index it, and deletes the record again when indexing
// fails.
package bookmarks

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/linkmind/linkmind/pkg/models"
)

// ErrNotFound is returned when a bookmark does not exist or belongs to a
// different user.
var ErrNotFound = errors.New("bookmark not found")

// BookmarkStore defines the record operations the API needs.
type BookmarkStore interface {
	Migrate(ctx context.Context) error
	Create(ctx context.Context, b models.Bookmark) error
	List(ctx context.Context, userID string) ([]models.Bookmark, error)
	Find(ctx context.Context, userID, id string) (models.Bookmark, error)
	Delete(ctx context.Context, userID, id string) error
}

// Store is a Postgres-backed BookmarkStore.
type Store struct {
	pool *pgxpool.Pool
}

// New creates a Store on an existing pool. The pool is shared with the
// vector index; both live in the same database.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Migrate creates the bookmarks table if missing.
func (s *Store) Migrate(ctx context.Context) error {
	const q = `
CREATE TABLE IF NOT EXISTS bookmarks (
  id         TEXT PRIMARY KEY,
  user_id    TEXT NOT NULL,
  title      TEXT NOT NULL,
  link       TEXT NOT NULL,
  tags       TEXT[] NOT NULL DEFAULT '{}',
  body       TEXT NOT NULL DEFAULT '',
  created_at TIMESTAMP WITH TIME ZONE DEFAULT now()
);

CREATE INDEX IF NOT EXISTS bookmarks_user_idx ON bookmarks (user_id);
`
	_, err := s.pool.Exec(ctx, q)
	return err
}

func (s *Store) Create(ctx context.Context, b models.Bookmark) error {
	const q = `
		INSERT INTO bookmarks (id, user_id, title, link, tags, body)
		VALUES ($1, $2, $3, $4, $5, $6);`
	_, err := s.pool.Exec(ctx, q, b.ID, b.UserID, b.Title, b.Link, b.Tags, b.Text)
	return err
}

func (s *Store) List(ctx context.Context, userID string) ([]models.Bookmark, error) {
	const q = `
		SELECT id, user_id, title, link, tags, body, created_at
		FROM bookmarks
		WHERE user_id = $1
		ORDER BY created_at DESC;`
	rows, err := s.pool.Query(ctx, q, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Bookmark
	for rows.Next() {
		var b models.Bookmark
		if err := rows.Scan(&b.ID, &b.UserID, &b.Title, &b.Link, &b.Tags, &b.Text, &b.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func (s *Store) Find(ctx context.Context, userID, id string) (models.Bookmark, error) {
	const q = `
		SELECT id, user_id, title, link, tags, body, created_at
		FROM bookmarks
		WHERE user_id = $1 AND id = $2;`
	var b models.Bookmark
	err := s.pool.QueryRow(ctx, q, userID, id).
		Scan(&b.ID, &b.UserID, &b.Title, &b.Link, &b.Tags, &b.Text, &b.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Bookmark{}, ErrNotFound
		}
		return models.Bookmark{}, err
	}
	return b, nil
}

func (s *Store) Delete(ctx context.Context, userID, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM bookmarks WHERE user_id = $1 AND id = $2`, userID, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
