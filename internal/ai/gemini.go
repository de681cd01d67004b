package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/linkmind/linkmind/pkg/models"
	"google.golang.org/genai"
)

type GeminiClient struct {
	config *ClientConfig
	client *genai.Client
}

// NewGeminiClient creates a new client for the Google Gemini API.
func NewGeminiClient(ctx context.Context, config *ClientConfig) (*GeminiClient, error) {
	if config == nil {
		return nil, errors.New("config cannot be nil")
	}

	if config.EmbedModel == "" {
		config.EmbedModel = "text-embedding-005"
	}
	if config.AnswerModel == "" {
		config.AnswerModel = "gemini-2.0-flash"
	}
	if config.Location == "" && strings.TrimSpace(config.APIKey) == "" {
		config.Location = "us-central1"
	}

	cc := genai.ClientConfig{
		Backend: genai.BackendVertexAI,
	}
	if strings.TrimSpace(config.APIKey) != "" {
		cc.APIKey = config.APIKey
	}
	if strings.TrimSpace(config.ProjectID) != "" {
		cc.Project = config.ProjectID
	}
	if strings.TrimSpace(config.Location) != "" {
		cc.Location = config.Location
	}

	client, err := genai.NewClient(ctx, &cc)
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	return &GeminiClient{
		config: config,
		client: client,
	}, nil
}

// Embed returns a 384-dimensional document embedding for the text.
func (c *GeminiClient) Embed(ctx context.Context, text string) ([]float32, error) {
	return c.embed(ctx, text, "RETRIEVAL_DOCUMENT")
}

// EmbedQuery embeds a search question. Gemini's embedding models are
// asymmetric; queries need the query task type to land near the
// documents they should retrieve.
func (c *GeminiClient) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	return c.embed(ctx, text, "RETRIEVAL_QUERY")
}

func (c *GeminiClient) embed(ctx context.Context, text, taskType string) ([]float32, error) {
	dim := int32(models.EmbedDim)
	cfg := genai.EmbedContentConfig{
		TaskType:             taskType,
		OutputDimensionality: &dim,
	}

	res, err := c.client.Models.EmbedContent(ctx, c.config.EmbedModel, genai.Text(text), &cfg)
	if err != nil {
		return nil, &EmbeddingError{Err: err}
	}
	if res == nil || len(res.Embeddings) == 0 {
		return nil, &EmbeddingError{Err: errors.New("no embedding returned")}
	}
	return res.Embeddings[0].Values, nil
}

// GenerateAnswer produces a free-form answer grounded in the given context.
func (c *GeminiClient) GenerateAnswer(ctx context.Context, question string, items []ContextItem) (string, error) {
	temp := float32(0.7)
	cfg := genai.GenerateContentConfig{
		Temperature:     &temp,
		MaxOutputTokens: 512,
	}
	return c.generate(ctx, answerPrompt(question, items), &cfg)
}

// GenerateTitle produces a short conversation title. Low temperature keeps
// titles stable across retries.
func (c *GeminiClient) GenerateTitle(ctx context.Context, question string) (string, error) {
	temp := float32(0.2)
	cfg := genai.GenerateContentConfig{
		Temperature:     &temp,
		MaxOutputTokens: 32,
	}
	s, err := c.generate(ctx, titlePrompt(question), &cfg)
	if err != nil {
		return "", err
	}
	return strings.Trim(s, `"`), nil
}

func (c *GeminiClient) generate(ctx context.Context, prompt string, cfg *genai.GenerateContentConfig) (string, error) {
	resp, err := c.client.Models.GenerateContent(ctx, c.config.AnswerModel, genai.Text(prompt), cfg)
	if err != nil {
		return "", fmt.Errorf("generation failed (is the backend reachable and the key valid?): %w", err)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		return "", errors.New("no candidates returned")
	}
	return strings.TrimSpace(resp.Candidates[0].Content.Parts[0].Text), nil
}

func (c *GeminiClient) Dim() int {
	return models.EmbedDim
}
