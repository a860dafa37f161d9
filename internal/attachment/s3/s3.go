// Package s3 mints time-limited download links for image attachments stored
// in S3.
package s3

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"ragchat/internal/domain"
)

// DefaultExpiry is how long a signed link stays valid.
const DefaultExpiry = 24 * time.Hour

// Presigner signs GET requests locally; no call reaches S3.
type Presigner struct {
	client *s3.PresignClient
}

func NewPresigner(awsCfg aws.Config) *Presigner {
	return &Presigner{client: s3.NewPresignClient(s3.NewFromConfig(awsCfg))}
}

func (p *Presigner) Name() string { return "s3" }

// Presign returns a signed GET URL for bucket/key valid for expiry.
// A zero expiry selects DefaultExpiry.
func (p *Presigner) Presign(ctx context.Context, bucket, key string, expiry time.Duration) (string, error) {
	if bucket == "" || key == "" {
		return "", fmt.Errorf("s3 presign: bucket and key are required: %w", domain.ErrEmptyResult)
	}
	if expiry <= 0 {
		expiry = DefaultExpiry
	}
	req, err := p.client.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(expiry))
	if err != nil {
		return "", fmt.Errorf("s3 presign: %w: %w", domain.ErrInvalidConfig, err)
	}
	return req.URL, nil
}
