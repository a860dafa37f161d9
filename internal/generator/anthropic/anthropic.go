package anthropic

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	anthropic "github.com/anthropics/anthropic-sdk-go"
	anthropicopt "github.com/anthropics/anthropic-sdk-go/option"

	"ragchat/internal/domain"
	"ragchat/internal/generator"
)

// Config configures the Anthropic Messages API generator.
type Config struct {
	BaseURL   string
	APIKeyEnv string
	Model     string
	Params    generator.Params
}

type Generator struct {
	client *anthropic.Client
	model  string
	params generator.Params
}

func NewGenerator(cfg Config) (*Generator, error) {
	key := os.Getenv(cfg.APIKeyEnv)
	if key == "" {
		return nil, fmt.Errorf("missing API key in env %s: %w", cfg.APIKeyEnv, domain.ErrInvalidConfig)
	}
	if cfg.Model == "" {
		cfg.Model = "claude-3-5-sonnet-latest"
	}
	opts := []anthropicopt.RequestOption{
		anthropicopt.WithAPIKey(key),
		anthropicopt.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, anthropicopt.WithBaseURL(cfg.BaseURL))
	}
	client := anthropic.NewClient(opts...)
	return &Generator{client: &client, model: cfg.Model, params: cfg.Params.WithDefaults()}, nil
}

func (g *Generator) Name() string { return "anthropic" }

func (g *Generator) Generate(ctx context.Context, prompt string) (string, error) {
	req := anthropic.MessageNewParams{
		Model:     anthropic.Model(g.model),
		MaxTokens: int64(g.params.MaxTokens),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
		Temperature: anthropic.Float(g.params.Temperature),
		TopP:        anthropic.Float(g.params.TopP),
		TopK:        anthropic.Int(int64(g.params.TopK)),
	}

	rsp, err := g.client.Messages.New(ctx, req)
	if err != nil {
		return "", wrapError(err)
	}

	var b strings.Builder
	for _, content := range rsp.Content {
		if text, ok := content.AsAny().(anthropic.TextBlock); ok {
			b.WriteString(text.Text)
			break
		}
	}
	if b.Len() == 0 {
		return "", fmt.Errorf("anthropic generate: no text content: %w", domain.ErrEmptyResult)
	}
	return b.String(), nil
}

func wrapError(err error) error {
	var apiErr *anthropic.Error
	kind := error(nil)
	if errors.As(err, &apiErr) {
		kind = domain.KindForStatus(apiErr.StatusCode)
	}
	if kind == nil && errors.Is(err, context.DeadlineExceeded) {
		kind = domain.ErrUnavailable
	}
	if kind != nil {
		return fmt.Errorf("anthropic generate: %w: %w", kind, err)
	}
	return fmt.Errorf("anthropic generate: %w", err)
}
