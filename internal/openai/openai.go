// Package openai holds the client setup and error classification shared by the
// OpenAI embedder and generator.
package openai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"ragchat/internal/domain"
)

// NewClient creates an OpenAI-compatible client using the key stored in
// apiKeyEnv. An empty baseURL keeps the library default and a zero timeout
// keeps the default HTTP client.
func NewClient(apiKeyEnv, baseURL string, timeout time.Duration) (*openai.Client, error) {
	key := os.Getenv(apiKeyEnv)
	if key == "" {
		return nil, fmt.Errorf("missing API key in env %s: %w", apiKeyEnv, domain.ErrInvalidConfig)
	}
	cfg := openai.DefaultConfig(key)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	if timeout > 0 {
		cfg.HTTPClient = &http.Client{Timeout: timeout}
	}
	return openai.NewClientWithConfig(cfg), nil
}

// Kind classifies an OpenAI client error. Returns nil when no kind applies.
func Kind(err error) error {
	status := 0
	var apiErr *openai.APIError
	var reqErr *openai.RequestError
	switch {
	case errors.As(err, &apiErr):
		status = apiErr.HTTPStatusCode
	case errors.As(err, &reqErr):
		status = reqErr.HTTPStatusCode
	}
	if kind := domain.KindForStatus(status); kind != nil {
		return kind
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return domain.ErrUnavailable
	}
	return nil
}

// WrapError annotates err with op and its failure kind.
func WrapError(op string, err error) error {
	if kind := Kind(err); kind != nil {
		return fmt.Errorf("%s: %w: %w", op, kind, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}
