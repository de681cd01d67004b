package ai

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"math"
	"strings"

	"github.com/linkmind/linkmind/pkg/models"
)

// ContextItem is one retrieved passage handed to the answer prompt.
type ContextItem struct {
	Text  string
	Score float64
}

// Client provides embedding and text-generation capabilities. Embed is
// for documents being indexed; EmbedQuery is for search questions, so
// backends with asymmetric embedding models can use the matching task
// type on each side.
type Client interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
	GenerateAnswer(ctx context.Context, question string, items []ContextItem) (string, error)
	GenerateTitle(ctx context.Context, question string) (string, error)
	Dim() int
}

// Provider is enumeration of supported AI providers
type Provider string

const (
	ProviderOpenAI Provider = "openai"
	ProviderGemini Provider = "gemini"
	ProviderStub   Provider = "stub"
)

// ClientConfig holds configuration for AI clients
type ClientConfig struct {
	APIKey      string
	EmbedModel  string
	AnswerModel string
	ProjectID   string
	Location    string
	Provider    Provider
}

// EmbeddingError reports an embedding backend failure or a batch count
// mismatch. Both are fatal to the calling pipeline stage.
type EmbeddingError struct {
	Err error
}

func (e *EmbeddingError) Error() string { return "embedding: " + e.Err.Error() }
func (e *EmbeddingError) Unwrap() error { return e.Err }

// NewClient creates a new AI client based on configuration. The returned
// client is constructed once and injected into dependents; there is no
// lazily-initialized global handle.
func NewClient(ctx context.Context, config *ClientConfig) (Client, error) {
	if config == nil {
		return nil, errors.New("client config is required")
	}

	switch config.Provider {
	case ProviderOpenAI:
		return NewOpenAIClient(config), nil
	case ProviderGemini:
		return NewGeminiClient(ctx, config)
	case ProviderStub:
		return NewStubClient(), nil
	default:
		return nil, errors.New("unsupported provider: " + string(config.Provider))
	}
}

// answerPrompt builds the fixed answer template. Each context item is
// enumerated by position so the model can refer to sources.
func answerPrompt(question string, items []ContextItem) string {
	var b strings.Builder
	b.WriteString("Answer the question using only the context below.\n")
	b.WriteString("If the context is insufficient, say so explicitly.\n")
	b.WriteString("If you draw on multiple sources, acknowledge that.\n")
	b.WriteString("Answer in 3-5 sentences.\n\nContext:\n")
	for i, it := range items {
		fmt.Fprintf(&b, "[%d] (relevance %.2f) %s\n", i+1, it.Score, it.Text)
	}
	b.WriteString("\nQuestion: " + question + "\nAnswer:")
	return b.String()
}

func titlePrompt(question string) string {
	return "Write a short title (at most 6 words, no quotes) for a conversation that starts with this question:\n" + question
}

// StubClient is a deterministic implementation of the Client interface
// for tests and local development.
type StubClient struct{}

// NewStubClient creates a new StubClient
func NewStubClient() *StubClient {
	return &StubClient{}
}

// Embed returns a unit-length pseudo-embedding derived from the text, so
// identical texts map to identical vectors.
func (s *StubClient) Embed(ctx context.Context, text string) ([]float32, error) {
	h := fnv.New64a()
	_, _ = h.Write([]byte(text))
	seed := h.Sum64()

	v := make([]float32, models.EmbedDim)
	var norm float64
	for i := range v {
		seed = seed*6364136223846793005 + 1442695040888963407
		f := float64(int64(seed>>11))/float64(1<<52) - 1
		v[i] = float32(f)
		norm += f * f
	}
	norm = math.Sqrt(norm)
	if norm == 0 {
		norm = 1
	}
	for i := range v {
		v[i] = float32(float64(v[i]) / norm)
	}
	return v, nil
}

// EmbedQuery is identical to Embed; the stub embedding is symmetric.
func (s *StubClient) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	return s.Embed(ctx, text)
}

func (s *StubClient) GenerateAnswer(ctx context.Context, question string, items []ContextItem) (string, error) {
	if len(items) == 0 {
		return "The provided context does not contain enough information to answer that.", nil
	}
	first := items[0].Text
	if len(first) > 120 {
		first = first[:120]
	}
	return "Based on your saved content: " + first, nil
}

func (s *StubClient) GenerateTitle(ctx context.Context, question string) (string, error) {
	words := strings.Fields(question)
	if len(words) > 6 {
		words = words[:6]
	}
	return strings.Join(words, " "), nil
}

// Dim returns the embedding dimension
func (s *StubClient) Dim() int {
	return models.EmbedDim
}
