package gemini

import (
	"context"
	"fmt"

	"github.com/google/generative-ai-go/genai"

	"ragchat/internal/domain"
	geminiclient "ragchat/internal/gemini"
)

// Config configures the Gemini embedder.
type Config struct {
	APIKeyEnv string
	Model     string
}

// Client embeds text with a Gemini embedding model.
type Client struct {
	client *genai.Client
	model  *genai.EmbeddingModel
}

// NewClient creates a new Gemini embeddings client.
func NewClient(ctx context.Context, cfg Config) (*Client, error) {
	if cfg.Model == "" {
		cfg.Model = "text-embedding-004"
	}
	client, err := geminiclient.NewClient(ctx, cfg.APIKeyEnv)
	if err != nil {
		return nil, err
	}
	em := client.EmbeddingModel(cfg.Model)
	em.TaskType = genai.TaskTypeRetrievalDocument
	return &Client{client: client, model: em}, nil
}

// Name returns the identifier of this embedder implementation.
func (c *Client) Name() string { return "gemini" }

// Embed returns one vector per input text.
func (c *Client) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	batch := c.model.NewBatch()
	for _, t := range texts {
		batch.AddContent(genai.Text(t))
	}
	resp, err := c.model.BatchEmbedContents(ctx, batch)
	if err != nil {
		return nil, geminiclient.WrapError("gemini embed", err)
	}
	return vectors(resp, len(texts))
}

// vectors checks that resp holds one non-empty embedding per input.
func vectors(resp *genai.BatchEmbedContentsResponse, n int) ([][]float32, error) {
	if resp == nil || len(resp.Embeddings) != n {
		got := 0
		if resp != nil {
			got = len(resp.Embeddings)
		}
		return nil, fmt.Errorf("gemini embed: got %d embeddings for %d inputs: %w", got, n, domain.ErrEmptyResult)
	}
	out := make([][]float32, n)
	for i, e := range resp.Embeddings {
		if e == nil || len(e.Values) == 0 {
			return nil, fmt.Errorf("gemini embed: empty vector for input %d: %w", i, domain.ErrEmptyResult)
		}
		out[i] = e.Values
	}
	return out, nil
}

// Close releases the underlying client connection.
func (c *Client) Close() error { return c.client.Close() }
