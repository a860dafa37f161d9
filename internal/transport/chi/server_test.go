package chi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"ragchat/internal/conversation"
	"ragchat/internal/domain"
	"ragchat/internal/service"
	"ragchat/internal/vectorstore/qdrant"
)

type stubAnswerer struct {
	answer  domain.Answer
	err     error
	block   chan struct{}
	started chan struct{}
}

func (s *stubAnswerer) Answer(ctx context.Context, _ string) (domain.Answer, error) {
	if s.started != nil {
		s.started <- struct{}{}
	}
	if s.block != nil {
		select {
		case <-s.block:
		case <-ctx.Done():
			return domain.Answer{}, ctx.Err()
		}
	}
	return s.answer, s.err
}

func newTestServer(t *testing.T, a conversation.Answerer, turnTimeout time.Duration) *httptest.Server {
	t.Helper()
	srv := NewServer(conversation.NewRegistry(a), turnTimeout, zap.NewNop())
	ts := httptest.NewServer(srv.Routes())
	t.Cleanup(ts.Close)
	return ts
}

func createSession(t *testing.T, ts *httptest.Server) string {
	t.Helper()
	resp, err := http.Post(ts.URL+"/v1/sessions", "application/json", http.NoBody)
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create session: got %d", resp.StatusCode)
	}
	var body sessionResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.ID == "" {
		t.Fatal("empty session id")
	}
	return body.ID
}

func postMessage(t *testing.T, ts *httptest.Server, id, content string) *http.Response {
	t.Helper()
	payload, _ := json.Marshal(postMessageRequest{Content: content})
	resp, err := http.Post(fmt.Sprintf("%s/v1/sessions/%s/messages", ts.URL, id), "application/json", bytes.NewReader(payload))
	if err != nil {
		t.Fatalf("post message: %v", err)
	}
	return resp
}

func decodeError(t *testing.T, resp *http.Response) ErrorResponse {
	t.Helper()
	defer resp.Body.Close()
	var e ErrorResponse
	if err := json.NewDecoder(resp.Body).Decode(&e); err != nil {
		t.Fatalf("decode error response: %v", err)
	}
	return e
}

func TestPostMessage_Answer(t *testing.T) {
	a := &stubAnswerer{answer: domain.Answer{
		Text:       "Sales grew 10%.",
		ImageURL:   "https://b1.example/q3.png?sig=1",
		Attachment: &domain.Attachment{Bucket: "b1", Key: "q3.png"},
		Hits: []domain.SearchHit{
			{Text: "Sales grew 10%.", ContentType: "text", Score: 0.9},
			{Text: "Chart", ContentType: "image", Bucket: "b1", Key: "q3.png", Score: 0.8},
		},
	}}
	ts := newTestServer(t, a, 0)
	id := createSession(t, ts)

	resp := postMessage(t, ts, id, "How did sales change?")
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("got %d", resp.StatusCode)
	}
	var body answerResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Answer != "Sales grew 10%." || body.ImageURL != "https://b1.example/q3.png?sig=1" {
		t.Errorf("unexpected body %+v", body)
	}
	if body.Attachment == nil || body.Attachment.Key != "q3.png" {
		t.Errorf("unexpected attachment %+v", body.Attachment)
	}
	if len(body.Sources) != 2 || body.Sources[1].ContentType != "image" {
		t.Errorf("unexpected sources %+v", body.Sources)
	}

	msgsResp, err := http.Get(fmt.Sprintf("%s/v1/sessions/%s/messages", ts.URL, id))
	if err != nil {
		t.Fatalf("list messages: %v", err)
	}
	defer msgsResp.Body.Close()
	var msgs messageListResponse
	if err := json.NewDecoder(msgsResp.Body).Decode(&msgs); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(msgs.Items) != 2 || msgs.Items[0].Role != domain.RoleUser || msgs.Items[1].ImageURL == "" {
		t.Errorf("unexpected log %+v", msgs.Items)
	}
}

func TestPostMessage_ErrorMapping(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   string
		stage  string
	}{
		{"unauthorized", &service.StageError{Stage: service.StageEmbed, Provider: "bedrock", Err: domain.ErrUnauthorized}, http.StatusUnauthorized, CodeUnauthorized, service.StageEmbed},
		{"unavailable", &service.StageError{Stage: service.StageSearch, Provider: "opensearch", Err: domain.ErrUnavailable}, http.StatusServiceUnavailable, CodeUnavailable, service.StageSearch},
		{"empty result", &service.StageError{Stage: service.StageGenerate, Provider: "bedrock", Err: domain.ErrEmptyResult}, http.StatusBadGateway, CodeEmptyResult, service.StageGenerate},
		{"invalid config", &service.StageError{Stage: service.StageSearch, Provider: "opensearch", Err: domain.ErrInvalidConfig}, http.StatusInternalServerError, CodeInternal, service.StageSearch},
		{"unknown", errors.New("boom"), http.StatusInternalServerError, CodeInternal, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := newTestServer(t, &stubAnswerer{err: tt.err}, 0)
			id := createSession(t, ts)

			resp := postMessage(t, ts, id, "q")
			if resp.StatusCode != tt.status {
				t.Errorf("got %d, want %d", resp.StatusCode, tt.status)
			}
			e := decodeError(t, resp)
			if e.Code != tt.code || e.Stage != tt.stage {
				t.Errorf("unexpected error body %+v", e)
			}
			if strings.Contains(e.Message, "boom") {
				t.Error("internal error details must not leak")
			}
		})
	}
}

func TestPostMessage_EmptyQuery(t *testing.T) {
	ts := newTestServer(t, &stubAnswerer{}, 0)
	id := createSession(t, ts)

	resp := postMessage(t, ts, id, "   ")
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("got %d", resp.StatusCode)
	}
	if e := decodeError(t, resp); e.Code != CodeEmptyQuery {
		t.Errorf("unexpected code %q", e.Code)
	}
}

func TestPostMessage_InvalidBody(t *testing.T) {
	ts := newTestServer(t, &stubAnswerer{}, 0)
	id := createSession(t, ts)

	resp, err := http.Post(fmt.Sprintf("%s/v1/sessions/%s/messages", ts.URL, id), "application/json", strings.NewReader("{"))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("got %d", resp.StatusCode)
	}
	if e := decodeError(t, resp); e.Code != CodeBadRequest {
		t.Errorf("unexpected code %q", e.Code)
	}
}

func TestPostMessage_UnknownSession(t *testing.T) {
	ts := newTestServer(t, &stubAnswerer{}, 0)

	resp := postMessage(t, ts, "does-not-exist", "q")
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("got %d", resp.StatusCode)
	}
	if e := decodeError(t, resp); e.Code != CodeNotFound {
		t.Errorf("unexpected code %q", e.Code)
	}
}

func TestPostMessage_TurnInProgress(t *testing.T) {
	a := &stubAnswerer{answer: domain.Answer{Text: "ok"}, block: make(chan struct{}), started: make(chan struct{}, 1)}
	ts := newTestServer(t, a, 0)
	id := createSession(t, ts)

	first := make(chan int, 1)
	go func() {
		resp := postMessage(t, ts, id, "first")
		resp.Body.Close()
		first <- resp.StatusCode
	}()
	<-a.started

	resp := postMessage(t, ts, id, "second")
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("got %d, want 409", resp.StatusCode)
	}
	if e := decodeError(t, resp); e.Code != CodeTurnInProgress {
		t.Errorf("unexpected code %q", e.Code)
	}

	close(a.block)
	if code := <-first; code != http.StatusOK {
		t.Errorf("first turn: got %d", code)
	}
}

func TestPostMessage_TurnTimeout(t *testing.T) {
	a := &stubAnswerer{block: make(chan struct{})}
	ts := newTestServer(t, a, 20*time.Millisecond)
	id := createSession(t, ts)

	resp := postMessage(t, ts, id, "q")
	if resp.StatusCode != http.StatusGatewayTimeout {
		t.Errorf("got %d, want 504", resp.StatusCode)
	}
	resp.Body.Close()
}

type vecEmbedder struct{}

func (vecEmbedder) Name() string { return "fake" }

func (vecEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range out {
		out[i] = []float32{0.1, 0.2}
	}
	return out, nil
}

type echoGenerator struct{}

func (echoGenerator) Name() string { return "fake" }

func (echoGenerator) Generate(context.Context, string) (string, error) { return "ok", nil }

func TestPostMessage_TurnTimeoutFromProvider(t *testing.T) {
	release := make(chan struct{})
	stalled := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	t.Cleanup(stalled.Close)
	t.Cleanup(func() { close(release) })

	index := qdrant.NewStorage(qdrant.Config{URL: stalled.URL, Collection: "docs", Timeout: 5 * time.Second})
	svc := service.NewRAGService(vecEmbedder{}, index, echoGenerator{}, nil, service.Options{Logger: zap.NewNop()})
	ts := newTestServer(t, svc, 50*time.Millisecond)
	id := createSession(t, ts)

	resp := postMessage(t, ts, id, "q")
	if resp.StatusCode != http.StatusGatewayTimeout {
		t.Fatalf("got %d, want 504", resp.StatusCode)
	}
	e := decodeError(t, resp)
	if e.Code != CodeTimeout || e.Stage != service.StageSearch {
		t.Errorf("unexpected error body %+v", e)
	}
}

func TestSessions_ListAndDelete(t *testing.T) {
	ts := newTestServer(t, &stubAnswerer{}, 0)
	a := createSession(t, ts)
	createSession(t, ts)

	resp, err := http.Get(ts.URL + "/v1/sessions")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	var list sessionListResponse
	_ = json.NewDecoder(resp.Body).Decode(&list)
	resp.Body.Close()
	if len(list.Items) != 2 {
		t.Fatalf("expected 2 sessions, got %d", len(list.Items))
	}

	req, _ := http.NewRequest(http.MethodDelete, ts.URL+"/v1/sessions/"+a, http.NoBody)
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Errorf("delete: got %d", resp.StatusCode)
	}

	resp, err = http.Get(fmt.Sprintf("%s/v1/sessions/%s/messages", ts.URL, a))
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("deleted session: got %d", resp.StatusCode)
	}
}

func TestHealthAndMetrics(t *testing.T) {
	ts := newTestServer(t, &stubAnswerer{}, 0)

	for _, path := range []string{"/healthz", "/metrics"} {
		resp, err := http.Get(ts.URL + path)
		if err != nil {
			t.Fatalf("%s: %v", path, err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Errorf("%s: got %d", path, resp.StatusCode)
		}
	}
}

func TestRecoverer_ReturnsJSON(t *testing.T) {
	h := jsonRecoverer(zap.NewNop())(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", http.NoBody))

	if rr.Code != http.StatusInternalServerError {
		t.Errorf("got %d", rr.Code)
	}
	var e ErrorResponse
	if err := json.NewDecoder(rr.Body).Decode(&e); err != nil || e.Code != CodeInternal {
		t.Errorf("unexpected body %q", rr.Body.String())
	}
}
