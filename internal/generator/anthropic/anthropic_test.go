package anthropic

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"ragchat/internal/domain"
	"ragchat/internal/generator"
)

func newTestGenerator(t *testing.T, handler http.HandlerFunc) *Generator {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	t.Setenv("RAGCHAT_TEST_ANTHROPIC_KEY", "sk-test")
	g, err := NewGenerator(Config{
		BaseURL:   server.URL + "/",
		APIKeyEnv: "RAGCHAT_TEST_ANTHROPIC_KEY",
		Model:     "claude-3-5-sonnet-latest",
		Params:    generator.DefaultParams,
	})
	if err != nil {
		t.Fatalf("NewGenerator: %v", err)
	}
	return g
}

func TestGenerate_SendsFixedParams(t *testing.T) {
	var sent map[string]any
	g := newTestGenerator(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/messages" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.Header.Get("X-Api-Key") != "sk-test" {
			t.Errorf("api key header missing")
		}
		_ = json.NewDecoder(r.Body).Decode(&sent)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"msg_1","type":"message","role":"assistant","model":"claude-3-5-sonnet-latest",
			"content":[{"type":"text","text":"Paris."}],"stop_reason":"end_turn","usage":{"input_tokens":10,"output_tokens":2}}`))
	})

	got, err := g.Generate(context.Background(), "the prompt")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if got != "Paris." {
		t.Errorf("unexpected answer %q", got)
	}
	if sent["max_tokens"] != float64(4096) || sent["temperature"] != float64(0) || sent["top_p"] != float64(1) || sent["top_k"] != float64(250) {
		t.Errorf("unexpected params %v", sent)
	}
	msgs, _ := sent["messages"].([]any)
	if len(msgs) != 1 {
		t.Fatalf("expected one message, got %v", sent["messages"])
	}
}

func TestGenerate_Unauthorized(t *testing.T) {
	g := newTestGenerator(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"type":"error","error":{"type":"authentication_error","message":"invalid x-api-key"}}`))
	})

	_, err := g.Generate(context.Background(), "p")
	if !errors.Is(err, domain.ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
}

func TestGenerate_OverloadedIsNotRetried(t *testing.T) {
	calls := 0
	g := newTestGenerator(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(529)
		_, _ = w.Write([]byte(`{"type":"error","error":{"type":"overloaded_error","message":"Overloaded"}}`))
	})

	_, err := g.Generate(context.Background(), "p")
	if !errors.Is(err, domain.ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
	if calls != 1 {
		t.Errorf("expected exactly one request, got %d", calls)
	}
}

func TestGenerate_NoText(t *testing.T) {
	g := newTestGenerator(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"msg_1","type":"message","role":"assistant","content":[],"stop_reason":"end_turn"}`))
	})

	_, err := g.Generate(context.Background(), "p")
	if !errors.Is(err, domain.ErrEmptyResult) {
		t.Fatalf("expected ErrEmptyResult, got %v", err)
	}
}

func TestNewGenerator_MissingKey(t *testing.T) {
	_, err := NewGenerator(Config{APIKeyEnv: "RAGCHAT_TEST_UNSET_KEY"})
	if !errors.Is(err, domain.ErrInvalidConfig) {
		t.Fatalf("expected ErrInvalidConfig, got %v", err)
	}
}
