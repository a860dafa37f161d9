package chi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"ragchat/internal/conversation"
	"ragchat/internal/domain"
	"ragchat/internal/logger"
	"ragchat/internal/metrics"
	"ragchat/internal/service"
)

// Error codes returned in ErrorResponse.Code.
const (
	CodeBadRequest     = "bad_request"
	CodeEmptyQuery     = "empty_query"
	CodeNotFound       = "session_not_found"
	CodeTurnInProgress = "turn_in_progress"
	CodeUnauthorized   = "upstream_unauthorized"
	CodeUnavailable    = "upstream_unavailable"
	CodeEmptyResult    = "upstream_empty_result"
	CodeTimeout        = "turn_timeout"
	CodeInternal       = "internal_error"
)

// errorHandler tries to handle a domain error. Returns true if handled.
type errorHandler func(w http.ResponseWriter, err error) bool

// Server exposes conversation sessions over HTTP.
type Server struct {
	sessions      *conversation.Registry
	turnTimeout   time.Duration
	logger        *zap.Logger
	errorHandlers []errorHandler
}

// NewServer creates an HTTP API server. A zero turnTimeout leaves turns
// bounded only by the request context.
func NewServer(sessions *conversation.Registry, turnTimeout time.Duration, logger *zap.Logger) *Server {
	s := &Server{sessions: sessions, turnTimeout: turnTimeout, logger: logger}
	s.errorHandlers = []errorHandler{
		sentinelHandler(domain.ErrEmptyQuery, http.StatusBadRequest, CodeEmptyQuery),
		sentinelHandler(conversation.ErrSessionNotFound, http.StatusNotFound, CodeNotFound),
		sentinelHandler(conversation.ErrTurnInProgress, http.StatusConflict, CodeTurnInProgress),
		// Providers classify deadlines as unavailable, so the timeout must match first.
		sentinelHandler(context.DeadlineExceeded, http.StatusGatewayTimeout, CodeTimeout),
		sentinelHandler(domain.ErrUnauthorized, http.StatusUnauthorized, CodeUnauthorized),
		sentinelHandler(domain.ErrUnavailable, http.StatusServiceUnavailable, CodeUnavailable),
		sentinelHandler(domain.ErrEmptyResult, http.StatusBadGateway, CodeEmptyResult),
	}
	return s
}

// Routes builds the router with the standard middleware chain.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(jsonRecoverer(s.logger))
	r.Use(chiMiddleware.RequestID)
	r.Use(wideEventMiddleware(s.logger))
	r.Use(metrics.Middleware())

	r.Get("/healthz", s.Health)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/v1/sessions", func(r chi.Router) {
		r.Post("/", s.CreateSession)
		r.Get("/", s.ListSessions)
		r.Route("/{id}", func(r chi.Router) {
			r.Delete("/", s.DeleteSession)
			r.Get("/messages", s.ListMessages)
			r.Post("/messages", s.PostMessage)
		})
	})
	return r
}

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Stage   string `json:"stage,omitempty"`
}

type sessionResponse struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
}

type sessionListResponse struct {
	Items []sessionResponse `json:"items"`
}

type messageListResponse struct {
	Items []domain.Message `json:"items"`
}

type postMessageRequest struct {
	Content string `json:"content"`
}

type sourceResponse struct {
	Text        string  `json:"text"`
	ContentType string  `json:"content_type"`
	Score       float64 `json:"score"`
}

type answerResponse struct {
	Answer     string             `json:"answer"`
	ImageURL   string             `json:"image_url,omitempty"`
	Attachment *domain.Attachment `json:"attachment,omitempty"`
	Sources    []sourceResponse   `json:"sources"`
}

// Health handles GET /healthz.
func (s *Server) Health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// CreateSession handles POST /v1/sessions.
func (s *Server) CreateSession(w http.ResponseWriter, r *http.Request) {
	sess := s.sessions.Create()
	logger.FromContext(r.Context()).Info("session created", zap.String("session_id", sess.ID))
	writeJSON(w, http.StatusCreated, sessionResponse{ID: sess.ID, CreatedAt: sess.CreatedAt})
}

// ListSessions handles GET /v1/sessions.
func (s *Server) ListSessions(w http.ResponseWriter, _ *http.Request) {
	sessions := s.sessions.List()
	items := make([]sessionResponse, len(sessions))
	for i, sess := range sessions {
		items[i] = sessionResponse{ID: sess.ID, CreatedAt: sess.CreatedAt}
	}
	writeJSON(w, http.StatusOK, sessionListResponse{Items: items})
}

// DeleteSession handles DELETE /v1/sessions/{id}.
func (s *Server) DeleteSession(w http.ResponseWriter, r *http.Request) {
	if err := s.sessions.Delete(chi.URLParam(r, "id")); err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListMessages handles GET /v1/sessions/{id}/messages.
func (s *Server) ListMessages(w http.ResponseWriter, r *http.Request) {
	sess, err := s.sessions.Get(chi.URLParam(r, "id"))
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, messageListResponse{Items: sess.Messages()})
}

// PostMessage handles POST /v1/sessions/{id}/messages.
func (s *Server) PostMessage(w http.ResponseWriter, r *http.Request) {
	sess, err := s.sessions.Get(chi.URLParam(r, "id"))
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}

	var req postMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, CodeBadRequest, "Invalid request body: "+err.Error())
		return
	}

	ctx := r.Context()
	if s.turnTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.turnTimeout)
		defer cancel()
	}

	answer, err := sess.TryAsk(ctx, req.Content)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) && !errors.Is(err, context.DeadlineExceeded) {
			err = fmt.Errorf("%w: %w", context.DeadlineExceeded, err)
		}
		recordTurn(err)
		s.handleDomainError(w, r, err)
		return
	}
	metrics.TurnsTotal.WithLabelValues("answered").Inc()

	sources := make([]sourceResponse, len(answer.Hits))
	for i, h := range answer.Hits {
		sources[i] = sourceResponse{Text: h.Text, ContentType: h.ContentType, Score: h.Score}
	}
	writeJSON(w, http.StatusOK, answerResponse{
		Answer:     answer.Text,
		ImageURL:   answer.ImageURL,
		Attachment: answer.Attachment,
		Sources:    sources,
	})
}

func recordTurn(err error) {
	if errors.Is(err, domain.ErrEmptyQuery) || errors.Is(err, conversation.ErrTurnInProgress) {
		metrics.TurnsTotal.WithLabelValues("rejected").Inc()
		return
	}
	metrics.TurnsTotal.WithLabelValues("failed").Inc()
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, ErrorResponse{Code: code, Message: message})
}

// sentinelHandler returns an errorHandler that matches a single sentinel error.
// The failed pipeline stage, if any, is reported alongside the sentinel message.
func sentinelHandler(sentinel error, status int, code string) errorHandler {
	return func(w http.ResponseWriter, err error) bool {
		if !errors.Is(err, sentinel) {
			return false
		}
		resp := ErrorResponse{Code: code, Message: sentinel.Error()}
		var se *service.StageError
		if errors.As(err, &se) {
			resp.Stage = se.Stage
		}
		writeJSON(w, status, resp)
		return true
	}
}

func (s *Server) handleDomainError(w http.ResponseWriter, r *http.Request, err error) {
	log := logger.FromContext(r.Context())
	for _, h := range s.errorHandlers {
		if h(w, err) {
			log.Warn("request failed", zap.Error(err))
			return
		}
	}
	log.Error("internal error", zap.Error(err))
	resp := ErrorResponse{Code: CodeInternal, Message: "internal error"}
	var se *service.StageError
	if errors.As(err, &se) {
		resp.Stage = se.Stage
	}
	writeJSON(w, http.StatusInternalServerError, resp)
}
