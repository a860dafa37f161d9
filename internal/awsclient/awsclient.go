// Package awsclient loads shared AWS SDK configuration and classifies AWS
// service errors into the domain failure kinds.
package awsclient

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/smithy-go"

	"ragchat/internal/domain"
)

// LoadConfig resolves credentials and region through the default provider chain.
// Profile may be empty.
func LoadConfig(ctx context.Context, region, profile string) (aws.Config, error) {
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(region),
		// Failures surface to the caller untouched.
		awsconfig.WithRetryMaxAttempts(1),
	}
	if profile != "" {
		opts = append(opts, awsconfig.WithSharedConfigProfile(profile))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return aws.Config{}, fmt.Errorf("load aws config: %w: %w", domain.ErrInvalidConfig, err)
	}
	return cfg, nil
}

// WithRegion returns a copy of cfg targeting region, or cfg itself when region is empty.
func WithRegion(cfg aws.Config, region string) aws.Config {
	if region == "" {
		return cfg
	}
	out := cfg.Copy()
	out.Region = region
	return out
}

var codeKinds = map[string]error{
	"AccessDeniedException":       domain.ErrUnauthorized,
	"UnrecognizedClientException": domain.ErrUnauthorized,
	"ExpiredTokenException":       domain.ErrUnauthorized,
	"InvalidSignatureException":   domain.ErrUnauthorized,
	"ThrottlingException":         domain.ErrUnavailable,
	"ServiceUnavailableException": domain.ErrUnavailable,
	"ModelTimeoutException":       domain.ErrUnavailable,
	"ModelNotReadyException":      domain.ErrUnavailable,
	"InternalServerException":     domain.ErrUnavailable,
	"ValidationException":         domain.ErrInvalidConfig,
	"ResourceNotFoundException":   domain.ErrInvalidConfig,
}

// Kind classifies an AWS SDK error. Returns nil when no kind applies.
func Kind(err error) error {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		if kind, ok := codeKinds[apiErr.ErrorCode()]; ok {
			return kind
		}
	}
	var respErr *awshttp.ResponseError
	if errors.As(err, &respErr) {
		if kind := domain.KindForStatus(respErr.HTTPStatusCode()); kind != nil {
			return kind
		}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return domain.ErrUnavailable
	}
	return nil
}

// Wrap annotates err with op and its failure kind while keeping the SDK error reachable.
func Wrap(op string, err error) error {
	if kind := Kind(err); kind != nil {
		return fmt.Errorf("%s: %w: %w", op, kind, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}
