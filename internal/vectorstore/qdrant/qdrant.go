package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"ragchat/internal/domain"
	"ragchat/internal/vectorstore"
)

// Storage is a minimal REST client to a Qdrant collection.
// The collection is expected to exist with payloads matching Fields.
type Storage struct {
	url        string
	apiKey     string
	collection string
	vectorName string
	fields     vectorstore.Fields
	client     *http.Client
}

type Config struct {
	URL        string
	APIKey     string
	Collection string
	// VectorName selects a named vector; empty uses the default vector.
	VectorName string
	Fields     vectorstore.Fields
	Timeout    time.Duration
}

func NewStorage(cfg Config) *Storage {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	return &Storage{
		url:        cfg.URL,
		apiKey:     cfg.APIKey,
		collection: cfg.Collection,
		vectorName: cfg.VectorName,
		fields:     cfg.Fields.WithDefaults(),
		client:     &http.Client{Timeout: timeout},
	}
}

func (s *Storage) Name() string { return "qdrant" }

func (s *Storage) Search(ctx context.Context, vector []float32, k int) ([]domain.SearchHit, error) {
	req := map[string]any{
		"limit":        k,
		"with_payload": s.fields.SourceFields(),
	}
	if s.vectorName != "" {
		req["vector"] = map[string]any{"name": s.vectorName, "vector": vector}
	} else {
		req["vector"] = vector
	}
	var resp struct {
		Result []struct {
			Score   float64        `json:"score"`
			Payload map[string]any `json:"payload"`
		} `json:"result"`
	}
	if err := s.postJSON(ctx, fmt.Sprintf("%s/collections/%s/points/search", s.url, s.collection), req, &resp); err != nil {
		return nil, err
	}
	hits := make([]domain.SearchHit, 0, len(resp.Result))
	for _, r := range resp.Result {
		hits = append(hits, vectorstore.HitFromPayload(r.Payload, s.fields, r.Score))
	}
	return hits, nil
}

func (s *Storage) postJSON(ctx context.Context, url string, body any, out any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("qdrant search: %w: %w", domain.ErrInvalidConfig, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if s.apiKey != "" {
		req.Header.Set("api-key", s.apiKey)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("qdrant search: %w: %w", domain.ErrUnavailable, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		statusErr := fmt.Errorf("qdrant POST %s failed: %s", url, resp.Status)
		if kind := domain.KindForStatus(resp.StatusCode); kind != nil {
			return fmt.Errorf("qdrant search: %w: %w", kind, statusErr)
		}
		return statusErr
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("qdrant search: %w: %w", domain.ErrEmptyResult, err)
		}
	}
	return nil
}

