package openai

import (
	"context"
	"encoding/json"
	"errors"
	"math"
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
	t.Setenv("RAGCHAT_TEST_OPENAI_KEY", "sk-test")
	g, err := NewGenerator(Config{
		BaseURL:   server.URL + "/v1",
		APIKeyEnv: "RAGCHAT_TEST_OPENAI_KEY",
		Model:     "gpt-4o-mini",
		Params:    generator.Params{MaxTokens: 4096, Temperature: 0, TopP: 1, TopK: 250},
	})
	if err != nil {
		t.Fatalf("NewGenerator: %v", err)
	}
	return g
}

func TestGenerate(t *testing.T) {
	var sent map[string]any
	g := newTestGenerator(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		_ = json.NewDecoder(r.Body).Decode(&sent)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"c1","object":"chat.completion","choices":[{"index":0,"message":{"role":"assistant","content":"Paris."},"finish_reason":"stop"}]}`))
	})

	got, err := g.Generate(context.Background(), "prompt")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if got != "Paris." {
		t.Errorf("unexpected answer %q", got)
	}
	if sent["max_tokens"] != float64(4096) || sent["top_p"] != float64(1) {
		t.Errorf("unexpected params %v", sent)
	}
	temp, ok := sent["temperature"].(float64)
	if !ok {
		t.Fatalf("temperature not sent: %v", sent)
	}
	if temp <= 0 || temp > 1e-30 {
		t.Errorf("expected near-zero temperature, got %v", temp)
	}
	msgs := sent["messages"].([]any)
	if len(msgs) != 1 || msgs[0].(map[string]any)["content"] != "prompt" {
		t.Errorf("unexpected messages %v", msgs)
	}
}

func TestTemperature(t *testing.T) {
	if got := temperature(0); got != math.SmallestNonzeroFloat32 {
		t.Errorf("temperature(0) = %v", got)
	}
	if got := temperature(0.7); got != float32(0.7) {
		t.Errorf("temperature(0.7) = %v", got)
	}
}

func TestGenerate_EmptyChoices(t *testing.T) {
	g := newTestGenerator(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"c1","object":"chat.completion","choices":[]}`))
	})

	_, err := g.Generate(context.Background(), "prompt")
	if !errors.Is(err, domain.ErrEmptyResult) {
		t.Fatalf("expected ErrEmptyResult, got %v", err)
	}
}

func TestGenerate_ServerError(t *testing.T) {
	g := newTestGenerator(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":{"message":"boom","type":"server_error"}}`))
	})

	_, err := g.Generate(context.Background(), "prompt")
	if !errors.Is(err, domain.ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
}
