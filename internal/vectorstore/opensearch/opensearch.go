package opensearch

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/opensearch-project/opensearch-go/v4"
	"github.com/opensearch-project/opensearch-go/v4/opensearchapi"
	"github.com/opensearch-project/opensearch-go/v4/signer"
	requestsigner "github.com/opensearch-project/opensearch-go/v4/signer/awsv2"

	"ragchat/internal/domain"
	"ragchat/internal/vectorstore"
)

// Config contains connection details for an OpenSearch k-NN index.
type Config struct {
	Endpoint string
	Index    string
	Service  string // "aoss" for serverless collections, "es" for managed domains
	Fields   vectorstore.Fields
	Timeout  time.Duration
}

// Storage queries an OpenSearch k-NN index.
type Storage struct {
	client *opensearchapi.Client
	index  string
	fields vectorstore.Fields
}

// NewSignedStorage creates a Storage that signs every request with SigV4
// using the credentials resolved into awsCfg.
func NewSignedStorage(awsCfg aws.Config, cfg Config) (*Storage, error) {
	if cfg.Service == "" {
		cfg.Service = "aoss"
	}
	sg, err := requestsigner.NewSignerWithService(awsCfg, cfg.Service)
	if err != nil {
		return nil, fmt.Errorf("opensearch signer: %w: %w", domain.ErrInvalidConfig, err)
	}
	return newStorage(cfg, sg)
}

// NewStorage creates a Storage that sends unsigned requests.
func NewStorage(cfg Config) (*Storage, error) {
	return newStorage(cfg, nil)
}

func newStorage(cfg Config, sg signer.Signer) (*Storage, error) {
	if cfg.Endpoint == "" || cfg.Index == "" {
		return nil, fmt.Errorf("opensearch endpoint and index are required: %w", domain.ErrInvalidConfig)
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	osCfg := opensearch.Config{
		Addresses:    []string{normalizeEndpoint(cfg.Endpoint)},
		Transport:    &http.Transport{ResponseHeaderTimeout: timeout, MaxIdleConnsPerHost: 20},
		DisableRetry: true,
	}
	if sg != nil {
		osCfg.Signer = sg
	}
	client, err := opensearchapi.NewClient(opensearchapi.Config{Client: osCfg})
	if err != nil {
		return nil, fmt.Errorf("opensearch client: %w: %w", domain.ErrInvalidConfig, err)
	}
	return &Storage{client: client, index: cfg.Index, fields: cfg.Fields.WithDefaults()}, nil
}

// Name returns the identifier of this vector index implementation.
func (s *Storage) Name() string { return "opensearch" }

// Search runs a k-NN query and returns hits in relevance order.
func (s *Storage) Search(ctx context.Context, vector []float32, k int) ([]domain.SearchHit, error) {
	body, err := json.Marshal(knnQuery(s.fields.Embedding, vector, k))
	if err != nil {
		return nil, err
	}
	resp, err := s.client.Search(ctx, &opensearchapi.SearchReq{
		Indices: []string{s.index},
		Body:    bytes.NewReader(body),
	})
	if err != nil {
		return nil, wrapError(resp, err)
	}
	hits := make([]domain.SearchHit, 0, len(resp.Hits.Hits))
	for _, h := range resp.Hits.Hits {
		var source map[string]any
		if len(h.Source) > 0 {
			if err := json.Unmarshal(h.Source, &source); err != nil {
				return nil, fmt.Errorf("opensearch search: decode hit %s: %w: %w", h.ID, domain.ErrEmptyResult, err)
			}
		}
		hits = append(hits, vectorstore.HitFromPayload(source, s.fields, float64(h.Score)))
	}
	return hits, nil
}

func knnQuery(field string, vector []float32, k int) map[string]any {
	return map[string]any{
		"size": k,
		"query": map[string]any{
			"knn": map[string]any{
				field: map[string]any{
					"vector": vector,
					"k":      k,
				},
			},
		},
	}
}

func wrapError(resp *opensearchapi.SearchResp, err error) error {
	status := 0
	if resp != nil {
		if r := resp.Inspect().Response; r != nil {
			status = r.StatusCode
		}
	}
	if status == 0 {
		var se *opensearch.StructError
		var ste *opensearch.StringError
		switch {
		case errors.As(err, &se):
			status = se.Status
		case errors.As(err, &ste):
			status = ste.Status
		}
	}
	kind := domain.KindForStatus(status)
	if kind == nil && errors.Is(err, context.DeadlineExceeded) {
		kind = domain.ErrUnavailable
	}
	if kind != nil {
		return fmt.Errorf("opensearch search: %w: %w", kind, err)
	}
	return fmt.Errorf("opensearch search: %w", err)
}

func normalizeEndpoint(endpoint string) string {
	if strings.HasPrefix(endpoint, "http://") || strings.HasPrefix(endpoint, "https://") {
		return endpoint
	}
	return "https://" + endpoint + ":443"
}
