// Package conversation keeps per-session message logs and serializes turns
// through the answer pipeline.
package conversation

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"ragchat/internal/domain"
)

// ErrTurnInProgress is returned by TryAsk while another turn is processing.
var ErrTurnInProgress = errors.New("a turn is already in progress")

// Answerer runs one question through the answer pipeline.
type Answerer interface {
	Answer(ctx context.Context, question string) (domain.Answer, error)
}

// Session is one conversation. Its log is append-only and stays readable
// while a turn is processing.
type Session struct {
	ID        string
	CreatedAt time.Time

	answerer Answerer
	now      func() time.Time

	turn chan struct{}

	mu       sync.RWMutex
	messages []domain.Message
}

func NewSession(id string, answerer Answerer) *Session {
	return newSession(id, answerer, time.Now)
}

func newSession(id string, answerer Answerer, now func() time.Time) *Session {
	return &Session{
		ID:        id,
		CreatedAt: now(),
		answerer:  answerer,
		now:       now,
		turn:      make(chan struct{}, 1),
	}
}

// Ask waits for any running turn to finish, then runs text as a new turn.
func (s *Session) Ask(ctx context.Context, text string) (domain.Answer, error) {
	if strings.TrimSpace(text) == "" {
		return domain.Answer{}, domain.ErrEmptyQuery
	}
	select {
	case s.turn <- struct{}{}:
	case <-ctx.Done():
		return domain.Answer{}, ctx.Err()
	}
	defer func() { <-s.turn }()
	return s.run(ctx, text)
}

// TryAsk runs text as a new turn, failing with ErrTurnInProgress when the
// session is already processing one.
func (s *Session) TryAsk(ctx context.Context, text string) (domain.Answer, error) {
	if strings.TrimSpace(text) == "" {
		return domain.Answer{}, domain.ErrEmptyQuery
	}
	select {
	case s.turn <- struct{}{}:
	default:
		return domain.Answer{}, ErrTurnInProgress
	}
	defer func() { <-s.turn }()
	return s.run(ctx, text)
}

func (s *Session) run(ctx context.Context, text string) (domain.Answer, error) {
	s.append(domain.Message{Role: domain.RoleUser, Content: text, CreatedAt: s.now()})

	answer, err := s.answerer.Answer(ctx, text)
	if err != nil {
		return domain.Answer{}, err
	}
	s.append(domain.Message{
		Role:      domain.RoleAssistant,
		Content:   answer.Text,
		ImageURL:  answer.ImageURL,
		CreatedAt: s.now(),
	})
	return answer, nil
}

func (s *Session) append(m domain.Message) {
	s.mu.Lock()
	s.messages = append(s.messages, m)
	s.mu.Unlock()
}

// Messages returns a copy of the log in insertion order.
func (s *Session) Messages() []domain.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Message, len(s.messages))
	copy(out, s.messages)
	return out
}
