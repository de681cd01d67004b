package models

import "time"

// EmbedDim is the embedding dimensionality used everywhere in the system.
// All vectors in the index were produced with this output size; mixing
// dimensions would make cosine similarity meaningless.
const EmbedDim = 384

// Bookmark is a saved link owned by a user. The RAG pipeline only reads
// it at ingestion time; CRUD lives in the bookmarks store.
type Bookmark struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Title     string    `json:"title"`
	Link      string    `json:"link"`
	Tags      []string  `json:"tags,omitempty"`
	Text      string    `json:"text,omitempty"` // optional fallback body
	CreatedAt time.Time `json:"created_at"`
}

// EmbeddedChunk pairs a chunk of text with its embedding, ready to be
// written to the vector index.
type EmbeddedChunk struct {
	Text      string
	Embedding []float32
}

// SearchHit is one similarity-search result. Score is a similarity in
// [0,1]; higher is more relevant.
type SearchHit struct {
	RecordID   string  `json:"record_id"`
	ContentID  string  `json:"content_id"`
	Text       string  `json:"text"`
	ChunkIndex int     `json:"chunk_index"`
	Score      float64 `json:"score"`
}

// Source is one cited source in a chat answer.
type Source struct {
	ContentID string  `json:"content_id"`
	Text      string  `json:"text"`
	Score     float64 `json:"score"`
}

// ChatAnswer is the response of the read path. Not persisted.
type ChatAnswer struct {
	Answer  string   `json:"answer"`
	Sources []Source `json:"sources"`
	Title   string   `json:"title"`
}
