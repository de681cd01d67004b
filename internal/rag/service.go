// Package rag composes fetching, chunking, embedding, and retrieval into
// the ingest (write) and answer (read) paths.
package rag

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/rs/zerolog/log"

	"github.com/linkmind/linkmind/internal/ai"
	"github.com/linkmind/linkmind/internal/chunker"
	"github.com/linkmind/linkmind/internal/vectorindex"
	"github.com/linkmind/linkmind/pkg/models"
)

const (
	// MaxQuestionLength bounds accepted questions.
	MaxQuestionLength = 2000

	retrieveTopK   = 10
	oversampleTopK = 20
	diversityFloor = 5
	maxSources     = 5

	// minBodyLength is the threshold below which fetched content is
	// considered useless and the fallback text is used instead.
	minBodyLength = 50

	noContentAnswer = "I couldn't find anything relevant in your saved bookmarks to answer that. Try saving a few links on the topic first."
)

// ContentFetcher is the slice of the fetcher the orchestrator consumes.
type ContentFetcher interface {
	Fetch(ctx context.Context, rawURL, userID string) (string, error)
}

// Service is the retrieval orchestrator.
type Service struct {
	client ai.Client
	index  vectorindex.ChunkIndex
	fetch  ContentFetcher
}

// NewService wires the orchestrator. All dependencies are constructed by
// the caller and injected, so tests can substitute any of them.
func NewService(client ai.Client, index vectorindex.ChunkIndex, fetch ContentFetcher) *Service {
	return &Service{
		client: client,
		index:  index,
		fetch:  fetch,
	}
}

// Index runs the write path: fetch, assemble, chunk, embed, upsert. Any
// stage failure is an IndexingError; the caller treats bookmark creation
// plus indexing as one logical transaction and compensates on failure.
func (s *Service) Index(ctx context.Context, userID, contentID, title, link, fallbackText string) error {
	body, err := s.fetch.Fetch(ctx, link, userID)
	if err != nil {
		// Blocked URL or quota violation. Never downgraded to empty
		// content; ingestion aborts.
		return &IndexingError{ContentID: contentID, Err: err}
	}
	if len(strings.TrimSpace(body)) < minBodyLength {
		body = fallbackText
	}

	text := assemble(title, link, body)
	chunks := chunker.Split(text, chunker.DefaultSoftCap)
	if len(chunks) == 0 {
		return &IndexingError{ContentID: contentID, Err: errors.New("nothing to index")}
	}

	vecs, err := ai.EmbedBatch(ctx, s.client, chunks)
	if err != nil {
		return &IndexingError{ContentID: contentID, Err: err}
	}
	if len(vecs) != len(chunks) {
		return &IndexingError{ContentID: contentID, Err: fmt.Errorf("embedding count %d != chunk count %d", len(vecs), len(chunks))}
	}

	embedded := make([]models.EmbeddedChunk, len(chunks))
	for i := range chunks {
		embedded[i] = models.EmbeddedChunk{Text: chunks[i], Embedding: vecs[i]}
	}
	if err := s.index.Upsert(ctx, userID, contentID, embedded); err != nil {
		return &IndexingError{ContentID: contentID, Err: err}
	}

	log.Info().Str("content_id", contentID).Str("user_id", userID).Int("chunks", len(chunks)).Msg("indexed content")
	return nil
}

// Unindex removes every vector record of the content id.
func (s *Service) Unindex(ctx context.Context, contentID string) error {
	if err := s.index.Delete(ctx, contentID); err != nil {
		return &ExternalServiceError{Service: "vector store", Err: err}
	}
	return nil
}

// Answer runs the read path: embed the question, retrieve with a
// diversity guarantee, dedupe by source, generate. Any stage failure is a
// PipelineError; no partial answer is ever returned.
func (s *Service) Answer(ctx context.Context, userID, question string) (models.ChatAnswer, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return models.ChatAnswer{}, &PipelineError{Stage: "validate", Err: errors.New("empty question")}
	}
	if len(question) > MaxQuestionLength {
		return models.ChatAnswer{}, &PipelineError{Stage: "validate", Err: fmt.Errorf("question exceeds %d characters", MaxQuestionLength)}
	}

	qvec, err := s.client.EmbedQuery(ctx, question)
	if err != nil {
		return models.ChatAnswer{}, &PipelineError{Stage: "embed", Err: err}
	}

	hits, err := s.index.Query(ctx, userID, qvec, retrieveTopK)
	if err != nil {
		return models.ChatAnswer{}, &PipelineError{Stage: "query", Err: err}
	}

	// Oversample when the first batch is not diverse enough. The larger
	// batch replaces the first entirely; the two are never merged.
	if distinctSources(hits) < diversityFloor {
		wider, err := s.index.Query(ctx, userID, qvec, oversampleTopK)
		if err != nil {
			return models.ChatAnswer{}, &PipelineError{Stage: "query", Err: err}
		}
		hits = wider
	}

	if len(hits) == 0 {
		title := s.titleOrFallback(ctx, question)
		return models.ChatAnswer{Answer: noContentAnswer, Sources: []models.Source{}, Title: title}, nil
	}

	sources := dedupeBySource(hits)

	items := make([]ai.ContextItem, len(sources))
	for i, src := range sources {
		items[i] = ai.ContextItem{Text: src.Text, Score: src.Score}
	}
	answer, err := s.client.GenerateAnswer(ctx, question, items)
	if err != nil {
		return models.ChatAnswer{}, &PipelineError{Stage: "generate", Err: err}
	}

	title := s.titleOrFallback(ctx, question)
	return models.ChatAnswer{Answer: answer, Sources: sources, Title: title}, nil
}

// titleOrFallback never fails the request: a generation error degrades to
// a truncated prefix of the question.
func (s *Service) titleOrFallback(ctx context.Context, question string) string {
	title, err := s.client.GenerateTitle(ctx, question)
	if err == nil && strings.TrimSpace(title) != "" {
		return strings.TrimSpace(title)
	}
	if err != nil {
		log.Warn().Err(err).Msg("title generation failed, using question prefix")
	}
	if len(question) > 60 {
		cut := 60
		for cut > 0 && !utf8.RuneStart(question[cut]) {
			cut--
		}
		return question[:cut]
	}
	return question
}

// assemble builds the rich text representation that gets chunked. The
// title and link always participate so even a bare bookmark is findable.
func assemble(title, link, body string) string {
	body = strings.TrimSpace(body)
	if len(body) >= minBodyLength {
		return title + "\n" + link + "\n\n" + body
	}
	return title + "\n" + link
}

func distinctSources(hits []models.SearchHit) int {
	seen := make(map[string]struct{}, len(hits))
	for _, h := range hits {
		seen[h.ContentID] = struct{}{}
	}
	return len(seen)
}

// dedupeBySource walks hits in descending-score order and keeps the first
// hit per distinct content id, up to maxSources. There is no re-ranking
// within a source.
func dedupeBySource(hits []models.SearchHit) []models.Source {
	sorted := make([]models.SearchHit, len(hits))
	copy(sorted, hits)
	sort.SliceStable(sorted, func(a, b int) bool { return sorted[a].Score > sorted[b].Score })

	seen := make(map[string]struct{}, maxSources)
	sources := make([]models.Source, 0, maxSources)
	for _, h := range sorted {
		if _, ok := seen[h.ContentID]; ok {
			continue
		}
		seen[h.ContentID] = struct{}{}
		sources = append(sources, models.Source{ContentID: h.ContentID, Text: h.Text, Score: h.Score})
		if len(sources) == maxSources {
			break
		}
	}
	return sources
}
