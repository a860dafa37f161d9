package bedrock

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"

	"ragchat/internal/awsclient"
	"ragchat/internal/domain"
)

// InvokeModelAPI is the subset of the Bedrock Runtime client used here.
type InvokeModelAPI interface {
	InvokeModel(ctx context.Context, params *bedrockruntime.InvokeModelInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.InvokeModelOutput, error)
}

// Config configures the Bedrock Cohere embedder.
type Config struct {
	ModelID   string
	InputType string
}

// Client embeds text with a Cohere embedding model hosted on Bedrock.
type Client struct {
	api       InvokeModelAPI
	modelID   string
	inputType string
}

// NewClient creates a new embeddings client.
func NewClient(api InvokeModelAPI, cfg Config) *Client {
	if cfg.ModelID == "" {
		cfg.ModelID = "cohere.embed-multilingual-v3"
	}
	if cfg.InputType == "" {
		cfg.InputType = "search_document"
	}
	return &Client{api: api, modelID: cfg.ModelID, inputType: cfg.InputType}
}

// NewFromConfig creates a client backed by a Bedrock Runtime SDK client.
func NewFromConfig(awsCfg aws.Config, cfg Config) *Client {
	return NewClient(bedrockruntime.NewFromConfig(awsCfg), cfg)
}

// Name returns the identifier of this embedder implementation.
func (c *Client) Name() string { return "bedrock" }

type embedRequest struct {
	Texts     []string `json:"texts"`
	InputType string   `json:"input_type"`
}

type embedResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
}

// Embed returns one vector per input text.
func (c *Client) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	body, err := json.Marshal(embedRequest{Texts: texts, InputType: c.inputType})
	if err != nil {
		return nil, err
	}
	out, err := c.api.InvokeModel(ctx, &bedrockruntime.InvokeModelInput{
		ModelId:     aws.String(c.modelID),
		Body:        body,
		Accept:      aws.String("application/json"),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return nil, awsclient.Wrap("bedrock embed", err)
	}
	var resp embedResponse
	if err := json.Unmarshal(out.Body, &resp); err != nil {
		return nil, fmt.Errorf("bedrock embed: decode response: %w: %w", domain.ErrEmptyResult, err)
	}
	if len(resp.Embeddings) != len(texts) {
		return nil, fmt.Errorf("bedrock embed: got %d embeddings for %d inputs: %w", len(resp.Embeddings), len(texts), domain.ErrEmptyResult)
	}
	return resp.Embeddings, nil
}
