package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"ragchat/internal/domain"
	"ragchat/internal/logger"
	"ragchat/internal/metrics"
	"ragchat/internal/prompt"
)

// TopK is the number of passages retrieved per question.
const TopK = 2

// Pipeline stages, also used as metric labels.
const (
	StageEmbed    = "embed"
	StageSearch   = "search"
	StageGenerate = "generate"
	StageAttach   = "attach"
)

// StageError reports which pipeline stage failed. The provider error,
// including its failure kind, is reachable through Unwrap.
type StageError struct {
	Stage    string
	Provider string
	Err      error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s stage (%s): %v", e.Stage, e.Provider, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// Options tune a RAGService. Zero values select defaults.
type Options struct {
	Template *prompt.Template
	// Expiry bounds the lifetime of attachment links.
	Expiry time.Duration
	Logger *zap.Logger
}

// RAGService answers questions from passages held in an external vector index.
type RAGService struct {
	embedder  domain.Embedder
	index     domain.VectorIndex
	generator domain.Generator
	presigner domain.Presigner // nil disables attachment links
	template  *prompt.Template
	expiry    time.Duration
	log       *zap.Logger
}

func NewRAGService(embedder domain.Embedder, index domain.VectorIndex, generator domain.Generator, presigner domain.Presigner, opts Options) *RAGService {
	s := &RAGService{
		embedder:  embedder,
		index:     index,
		generator: generator,
		presigner: presigner,
		template:  opts.Template,
		expiry:    opts.Expiry,
		log:       opts.Logger,
	}
	if s.template == nil {
		s.template = prompt.Default()
	}
	if s.expiry <= 0 {
		s.expiry = 24 * time.Hour
	}
	return s
}

// Answer runs one question through embed, search, prompt, generate and
// attachment resolution, strictly in that order.
func (s *RAGService) Answer(ctx context.Context, question string) (domain.Answer, error) {
	if strings.TrimSpace(question) == "" {
		return domain.Answer{}, domain.ErrEmptyQuery
	}
	log := s.logger(ctx)

	var vectors [][]float32
	err := s.stage(ctx, StageEmbed, s.embedder.Name(), func(ctx context.Context) error {
		var err error
		vectors, err = s.embedder.Embed(ctx, []string{question})
		if err == nil && len(vectors) == 0 {
			err = fmt.Errorf("no embedding returned: %w", domain.ErrEmptyResult)
		}
		return err
	})
	if err != nil {
		return domain.Answer{}, err
	}

	var hits []domain.SearchHit
	err = s.stage(ctx, StageSearch, s.index.Name(), func(ctx context.Context) error {
		var err error
		hits, err = s.index.Search(ctx, vectors[0], TopK)
		return err
	})
	if err != nil {
		return domain.Answer{}, err
	}
	if len(hits) > TopK {
		hits = hits[:TopK]
	}
	metrics.SearchHits.Observe(float64(len(hits)))

	contexts := make([]string, 0, len(hits))
	var attachment *domain.Attachment
	for _, h := range hits {
		contexts = append(contexts, h.Text)
		if attachment == nil && h.IsImage() {
			attachment = &domain.Attachment{Bucket: h.Bucket, Key: h.Key}
		}
	}
	rendered := s.template.Render(question, contexts)

	var text string
	err = s.stage(ctx, StageGenerate, s.generator.Name(), func(ctx context.Context) error {
		var err error
		text, err = s.generator.Generate(ctx, rendered)
		return err
	})
	if err != nil {
		return domain.Answer{}, err
	}

	answer := domain.Answer{Text: text, Attachment: attachment, Hits: hits, Prompt: rendered}
	if attachment != nil && s.presigner != nil {
		err = s.stage(ctx, StageAttach, s.presigner.Name(), func(ctx context.Context) error {
			var err error
			answer.ImageURL, err = s.presigner.Presign(ctx, attachment.Bucket, attachment.Key, s.expiry)
			return err
		})
		if err != nil {
			return domain.Answer{}, err
		}
	}

	log.Debug("answered",
		zap.Int("hits", len(hits)),
		zap.Bool("attachment", attachment != nil),
		zap.Int("answer_len", len(text)),
	)
	return answer, nil
}

func (s *RAGService) stage(ctx context.Context, stage, provider string, fn func(context.Context) error) error {
	start := time.Now()
	err := fn(ctx)
	elapsed := time.Since(start)
	metrics.StageDuration.WithLabelValues(stage, provider).Observe(elapsed.Seconds())

	log := s.logger(ctx).With(zap.String("stage", stage), zap.String("provider", provider))
	if err != nil {
		metrics.StageErrorsTotal.WithLabelValues(stage, provider, domain.KindLabel(err)).Inc()
		log.Warn("stage failed", zap.Duration("elapsed", elapsed), zap.Error(err))
		return &StageError{Stage: stage, Provider: provider, Err: err}
	}
	log.Debug("stage done", zap.Duration("elapsed", elapsed))
	return nil
}

func (s *RAGService) logger(ctx context.Context) *zap.Logger {
	if s.log != nil {
		return s.log
	}
	return logger.FromContext(ctx)
}
