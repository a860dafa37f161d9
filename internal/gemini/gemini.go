// Package gemini holds the client setup and error classification shared by the
// Gemini embedder and generator.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/google/generative-ai-go/genai"
	"github.com/googleapis/gax-go/v2/apierror"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"ragchat/internal/domain"
)

// NewClient creates a Gemini API client using the key stored in apiKeyEnv.
func NewClient(ctx context.Context, apiKeyEnv string) (*genai.Client, error) {
	key := os.Getenv(apiKeyEnv)
	if key == "" {
		return nil, fmt.Errorf("missing API key in env %s: %w", apiKeyEnv, domain.ErrInvalidConfig)
	}
	client, err := genai.NewClient(ctx, option.WithAPIKey(key))
	if err != nil {
		return nil, fmt.Errorf("gemini client: %w: %w", domain.ErrInvalidConfig, err)
	}
	return client, nil
}

var codeKinds = map[codes.Code]error{
	codes.Unauthenticated:    domain.ErrUnauthorized,
	codes.PermissionDenied:   domain.ErrUnauthorized,
	codes.ResourceExhausted:  domain.ErrUnavailable,
	codes.Unavailable:        domain.ErrUnavailable,
	codes.DeadlineExceeded:   domain.ErrUnavailable,
	codes.Internal:           domain.ErrUnavailable,
	codes.NotFound:           domain.ErrInvalidConfig,
	codes.InvalidArgument:    domain.ErrInvalidConfig,
	codes.FailedPrecondition: domain.ErrInvalidConfig,
}

// Kind classifies a Gemini API error. Returns nil when no kind applies.
func Kind(err error) error {
	var apiErr *apierror.APIError
	if errors.As(err, &apiErr) {
		if kind := domain.KindForStatus(apiErr.HTTPCode()); kind != nil {
			return kind
		}
		if st := apiErr.GRPCStatus(); st != nil {
			return codeKinds[st.Code()]
		}
	}
	if st, ok := status.FromError(err); ok {
		return codeKinds[st.Code()]
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
