package bedrock

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"

	"ragchat/internal/awsclient"
	"ragchat/internal/domain"
	"ragchat/internal/generator"
)

// InvokeModelAPI is the subset of the Bedrock Runtime client used here.
type InvokeModelAPI interface {
	InvokeModel(ctx context.Context, params *bedrockruntime.InvokeModelInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.InvokeModelOutput, error)
}

// Config configures the Bedrock Anthropic generator.
type Config struct {
	ModelID          string
	AnthropicVersion string
	Params           generator.Params
}

// Client generates answers with an Anthropic model hosted on Bedrock.
type Client struct {
	api     InvokeModelAPI
	modelID string
	version string
	params  generator.Params
}

func NewClient(api InvokeModelAPI, cfg Config) *Client {
	if cfg.ModelID == "" {
		cfg.ModelID = "anthropic.claude-3-sonnet-20240229-v1:0"
	}
	if cfg.AnthropicVersion == "" {
		cfg.AnthropicVersion = "bedrock-2023-05-31"
	}
	return &Client{api: api, modelID: cfg.ModelID, version: cfg.AnthropicVersion, params: cfg.Params.WithDefaults()}
}

func NewFromConfig(awsCfg aws.Config, cfg Config) *Client {
	return NewClient(bedrockruntime.NewFromConfig(awsCfg), cfg)
}

func (c *Client) Name() string { return "bedrock" }

type message struct {
	Role    string         `json:"role"`
	Content []contentBlock `json:"content"`
}

type contentBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type messagesRequest struct {
	AnthropicVersion string    `json:"anthropic_version"`
	MaxTokens        int       `json:"max_tokens"`
	Messages         []message `json:"messages"`
	Temperature      float64   `json:"temperature"`
	TopP             float64   `json:"top_p"`
	TopK             int       `json:"top_k"`
}

type messagesResponse struct {
	Content []contentBlock `json:"content"`
}

// Generate sends prompt as a single user message and returns the first text block.
func (c *Client) Generate(ctx context.Context, prompt string) (string, error) {
	body, err := json.Marshal(messagesRequest{
		AnthropicVersion: c.version,
		MaxTokens:        c.params.MaxTokens,
		Messages: []message{{
			Role:    domain.RoleUser,
			Content: []contentBlock{{Type: "text", Text: prompt}},
		}},
		Temperature: c.params.Temperature,
		TopP:        c.params.TopP,
		TopK:        c.params.TopK,
	})
	if err != nil {
		return "", err
	}
	out, err := c.api.InvokeModel(ctx, &bedrockruntime.InvokeModelInput{
		ModelId:     aws.String(c.modelID),
		Body:        body,
		Accept:      aws.String("application/json"),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return "", awsclient.Wrap("bedrock generate", err)
	}
	var resp messagesResponse
	if err := json.Unmarshal(out.Body, &resp); err != nil {
		return "", fmt.Errorf("bedrock generate: decode response: %w: %w", domain.ErrEmptyResult, err)
	}
	for _, block := range resp.Content {
		if block.Type == "text" {
			return block.Text, nil
		}
	}
	return "", fmt.Errorf("bedrock generate: no text content: %w", domain.ErrEmptyResult)
}
