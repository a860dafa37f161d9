package conversation

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"ragchat/internal/domain"
)

type fakeAnswerer struct {
	mu      sync.Mutex
	answer  domain.Answer
	err     error
	calls   []string
	block   chan struct{}
	started chan struct{}
}

func (f *fakeAnswerer) Answer(_ context.Context, q string) (domain.Answer, error) {
	f.mu.Lock()
	f.calls = append(f.calls, q)
	f.mu.Unlock()
	if f.started != nil {
		f.started <- struct{}{}
	}
	if f.block != nil {
		<-f.block
	}
	return f.answer, f.err
}

func fixedClock() func() time.Time {
	t := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	return func() time.Time { return t }
}

func TestAsk_AppendsUserAndAssistant(t *testing.T) {
	a := &fakeAnswerer{answer: domain.Answer{Text: "Paris.", ImageURL: "https://img"}}
	s := newSession("s1", a, fixedClock())

	ans, err := s.Ask(context.Background(), "Capital of France?")
	if err != nil {
		t.Fatalf("Ask: %v", err)
	}
	if ans.Text != "Paris." {
		t.Errorf("unexpected answer %q", ans.Text)
	}
	msgs := s.Messages()
	if len(msgs) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(msgs))
	}
	if msgs[0].Role != domain.RoleUser || msgs[0].Content != "Capital of France?" {
		t.Errorf("unexpected user message %+v", msgs[0])
	}
	if msgs[1].Role != domain.RoleAssistant || msgs[1].Content != "Paris." || msgs[1].ImageURL != "https://img" {
		t.Errorf("unexpected assistant message %+v", msgs[1])
	}
}

func TestAsk_FailureKeepsHistory(t *testing.T) {
	a := &fakeAnswerer{answer: domain.Answer{Text: "first answer"}}
	s := NewSession("s1", a)

	if _, err := s.Ask(context.Background(), "first"); err != nil {
		t.Fatalf("Ask: %v", err)
	}
	a.err = domain.ErrUnauthorized
	if _, err := s.Ask(context.Background(), "second"); !errors.Is(err, domain.ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}

	msgs := s.Messages()
	if len(msgs) != 3 {
		t.Fatalf("expected 3 messages, got %d: %+v", len(msgs), msgs)
	}
	if msgs[0].Content != "first" || msgs[1].Content != "first answer" {
		t.Error("earlier history must stay intact")
	}
	if msgs[2].Role != domain.RoleUser || msgs[2].Content != "second" {
		t.Errorf("failed turn should leave only its user message, got %+v", msgs[2])
	}

	a.err = nil
	a.answer = domain.Answer{Text: "third answer"}
	if _, err := s.Ask(context.Background(), "third"); err != nil {
		t.Fatalf("session should accept further turns: %v", err)
	}
	if len(s.Messages()) != 5 {
		t.Errorf("expected 5 messages, got %d", len(s.Messages()))
	}
}

func TestAsk_RejectsBlankInput(t *testing.T) {
	a := &fakeAnswerer{}
	s := NewSession("s1", a)
	for _, q := range []string{"", "  ", "\t\n"} {
		if _, err := s.Ask(context.Background(), q); !errors.Is(err, domain.ErrEmptyQuery) {
			t.Errorf("Ask(%q): expected ErrEmptyQuery, got %v", q, err)
		}
	}
	if len(s.Messages()) != 0 || len(a.calls) != 0 {
		t.Error("blank input must not be appended or answered")
	}
}

func TestTryAsk_OneTurnAtATime(t *testing.T) {
	a := &fakeAnswerer{
		answer:  domain.Answer{Text: "ok"},
		block:   make(chan struct{}),
		started: make(chan struct{}, 1),
	}
	s := NewSession("s1", a)

	done := make(chan error, 1)
	go func() {
		_, err := s.TryAsk(context.Background(), "first")
		done <- err
	}()
	<-a.started

	if _, err := s.TryAsk(context.Background(), "second"); !errors.Is(err, ErrTurnInProgress) {
		t.Errorf("expected ErrTurnInProgress, got %v", err)
	}
	if got := s.Messages(); len(got) != 1 || got[0].Content != "first" {
		t.Errorf("log should be readable mid-turn, got %+v", got)
	}

	close(a.block)
	if err := <-done; err != nil {
		t.Fatalf("first turn: %v", err)
	}
	if _, err := s.TryAsk(context.Background(), "third"); err != nil {
		t.Errorf("session should accept a turn once idle, got %v", err)
	}
	if len(a.calls) != 2 || a.calls[1] != "third" {
		t.Errorf("rejected turn must not reach the pipeline, calls=%v", a.calls)
	}
}

func TestAsk_WaitHonoursContext(t *testing.T) {
	a := &fakeAnswerer{block: make(chan struct{}), started: make(chan struct{}, 1)}
	s := NewSession("s1", a)
	go func() { _, _ = s.Ask(context.Background(), "first") }()
	<-a.started

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if _, err := s.Ask(ctx, "second"); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected deadline exceeded, got %v", err)
	}
	close(a.block)
}
