package openai

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/sashabaranov/go-openai"

	"ragchat/internal/domain"
	"ragchat/internal/generator"
	openaiclient "ragchat/internal/openai"
)

type Config struct {
	BaseURL   string
	APIKeyEnv string
	Model     string
	Timeout   time.Duration
	Params    generator.Params
}

// Generator answers with an OpenAI-compatible chat completion API.
// The API has no top-k sampling, so Params.TopK is ignored.
type Generator struct {
	client *openai.Client
	model  string
	params generator.Params
}

func NewGenerator(cfg Config) (*Generator, error) {
	if cfg.Model == "" {
		cfg.Model = openai.GPT4oMini
	}
	client, err := openaiclient.NewClient(cfg.APIKeyEnv, cfg.BaseURL, cfg.Timeout)
	if err != nil {
		return nil, err
	}
	return &Generator{
		client: client,
		model:  cfg.Model,
		params: cfg.Params.WithDefaults(),
	}, nil
}

func (g *Generator) Name() string { return "openai" }

func (g *Generator) Generate(ctx context.Context, prompt string) (string, error) {
	req := openai.ChatCompletionRequest{
		Model: g.model,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleUser,
				Content: prompt,
			},
		},
		MaxTokens:   g.params.MaxTokens,
		Temperature: temperature(g.params.Temperature),
		TopP:        float32(g.params.TopP),
	}

	rsp, err := g.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", openaiclient.WrapError("openai generate", err)
	}

	if len(rsp.Choices) == 0 || len(rsp.Choices[0].Message.Content) == 0 {
		return "", fmt.Errorf("openai generate: no response content: %w", domain.ErrEmptyResult)
	}

	return rsp.Choices[0].Message.Content, nil
}

// temperature maps t to the request field. A zero value would be dropped by
// omitempty and replaced by the API default of 1, so it is sent as the
// smallest positive float instead.
func temperature(t float64) float32 {
	if t == 0 {
		return math.SmallestNonzeroFloat32
	}
	return float32(t)
}
