package gemini

import (
	"context"
	"fmt"

	"github.com/google/generative-ai-go/genai"

	"ragchat/internal/domain"
	geminiclient "ragchat/internal/gemini"
	"ragchat/internal/generator"
)

type Config struct {
	APIKeyEnv string
	Model     string
	Params    generator.Params
}

// Generator answers with a Gemini generative model.
type Generator struct {
	client *genai.Client
	model  *genai.GenerativeModel
}

func NewGenerator(ctx context.Context, cfg Config) (*Generator, error) {
	if cfg.Model == "" {
		cfg.Model = "gemini-1.5-flash"
	}
	client, err := geminiclient.NewClient(ctx, cfg.APIKeyEnv)
	if err != nil {
		return nil, err
	}
	model := client.GenerativeModel(cfg.Model)
	configure(model, cfg.Params.WithDefaults())
	return &Generator{client: client, model: model}, nil
}

func configure(model *genai.GenerativeModel, p generator.Params) {
	model.SetTemperature(float32(p.Temperature))
	model.SetMaxOutputTokens(int32(p.MaxTokens))
	model.SetTopP(float32(p.TopP))
	model.SetTopK(int32(p.TopK))
}

func (g *Generator) Name() string { return "gemini" }

func (g *Generator) Generate(ctx context.Context, prompt string) (string, error) {
	resp, err := g.model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return "", geminiclient.WrapError("gemini generate", err)
	}
	text, ok := firstText(resp)
	if !ok {
		return "", fmt.Errorf("gemini generate: no text content: %w", domain.ErrEmptyResult)
	}
	return text, nil
}

func (g *Generator) Close() error { return g.client.Close() }

func firstText(resp *genai.GenerateContentResponse) (string, bool) {
	if resp == nil {
		return "", false
	}
	for _, cand := range resp.Candidates {
		if cand == nil || cand.Content == nil {
			continue
		}
		for _, part := range cand.Content.Parts {
			if text, ok := part.(genai.Text); ok && len(text) > 0 {
				return string(text), true
			}
		}
	}
	return "", false
}
