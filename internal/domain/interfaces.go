package domain

import (
	"context"
	"time"
)

// ContentTypeImage tags indexed elements that were extracted from images.
const ContentTypeImage = "image"

// Message roles in a conversation.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// SearchHit is a single record returned by the vector index.
// Bucket and Key are only populated for image-typed elements.
type SearchHit struct {
	Text        string
	ContentType string
	Bucket      string
	Key         string
	Score       float64
}

// IsImage reports whether the hit references an image object.
func (h SearchHit) IsImage() bool { return h.ContentType == ContentTypeImage }

// Attachment is the object storage location of an image surfaced with an answer.
type Attachment struct {
	Bucket string `json:"bucket"`
	Key    string `json:"key"`
}

// Answer is the outcome of one pass through the query pipeline.
type Answer struct {
	Text       string
	Attachment *Attachment
	ImageURL   string
	Hits       []SearchHit
	Prompt     string
}

// Message is one entry in a conversation log.
type Message struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	ImageURL  string    `json:"image_url,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Embedder converts text into vectors using an external embedding model.
// One vector is returned per input, in input order.
type Embedder interface {
	Name() string
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// VectorIndex runs k-nearest-neighbor queries against an external index.
type VectorIndex interface {
	Name() string
	Search(ctx context.Context, vector []float32, k int) ([]SearchHit, error)
}

// Generator produces an answer for a single-turn prompt.
type Generator interface {
	Name() string
	Generate(ctx context.Context, prompt string) (string, error)
}

// Presigner mints time-limited retrieval links for stored objects.
type Presigner interface {
	Name() string
	Presign(ctx context.Context, bucket, key string, expiry time.Duration) (string, error)
}
