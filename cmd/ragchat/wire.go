package main

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"go.uber.org/zap"

	s3attach "ragchat/internal/attachment/s3"
	"ragchat/internal/awsclient"
	"ragchat/internal/config"
	"ragchat/internal/domain"
	bedrockemb "ragchat/internal/embedding/bedrock"
	geminiemb "ragchat/internal/embedding/gemini"
	openaiemb "ragchat/internal/embedding/openai"
	"ragchat/internal/generator"
	anthropicgen "ragchat/internal/generator/anthropic"
	bedrockgen "ragchat/internal/generator/bedrock"
	geminigen "ragchat/internal/generator/gemini"
	openaigen "ragchat/internal/generator/openai"
	"ragchat/internal/prompt"
	"ragchat/internal/service"
	"ragchat/internal/vectorstore"
	"ragchat/internal/vectorstore/opensearch"
	"ragchat/internal/vectorstore/pgvector"
	"ragchat/internal/vectorstore/qdrant"
)

// app holds the assembled pipeline and the resources it owns.
type app struct {
	Service *service.RAGService
	closers []func() error
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		_ = a.closers[i]()
	}
}

// build assembles the pipeline from cfg. AWS configuration is only loaded
// when a selected component needs it.
func build(ctx context.Context, cfg *config.AppConfig, logger *zap.Logger) (*app, error) {
	if err := cfg.CheckDeployment(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	a := &app{}

	var (
		awsCfg    aws.Config
		awsLoaded bool
	)
	loadAWS := func() (aws.Config, error) {
		if awsLoaded {
			return awsCfg, nil
		}
		c, err := awsclient.LoadConfig(ctx, cfg.AWS.Region, cfg.AWS.Profile)
		if err != nil {
			return aws.Config{}, err
		}
		awsCfg, awsLoaded = c, true
		return awsCfg, nil
	}

	emb, err := buildEmbedder(ctx, cfg, a, loadAWS)
	if err != nil {
		return nil, err
	}
	idx, err := buildIndex(ctx, cfg, a, loadAWS)
	if err != nil {
		a.Close()
		return nil, err
	}
	gen, err := buildGenerator(ctx, cfg, a, loadAWS)
	if err != nil {
		a.Close()
		return nil, err
	}

	var presigner domain.Presigner
	switch cfg.Attachment.Type {
	case "s3":
		c, err := loadAWS()
		if err != nil {
			a.Close()
			return nil, err
		}
		presigner = s3attach.NewPresigner(awsclient.WithRegion(c, cfg.Attachment.Region))
	case "none":
	default:
		a.Close()
		return nil, fmt.Errorf("unknown attachment resolver: %s", cfg.Attachment.Type)
	}

	tmpl, err := prompt.New(cfg.Prompt.Language)
	if err != nil {
		a.Close()
		return nil, err
	}

	a.Service = service.NewRAGService(emb, idx, gen, presigner, service.Options{
		Template: tmpl,
		Expiry:   time.Duration(cfg.Attachment.ExpirySecs) * time.Second,
		Logger:   logger,
	})
	return a, nil
}

func buildEmbedder(ctx context.Context, cfg *config.AppConfig, a *app, loadAWS func() (aws.Config, error)) (domain.Embedder, error) {
	switch cfg.Embedder.Type {
	case "bedrock":
		c, err := loadAWS()
		if err != nil {
			return nil, err
		}
		b := cfg.Embedder.Bedrock
		return bedrockemb.NewFromConfig(awsclient.WithRegion(c, b.Region), bedrockemb.Config{
			ModelID:   b.ModelID,
			InputType: b.InputType,
		}), nil
	case "openai":
		o := cfg.Embedder.OpenAI
		client, err := openaiemb.NewClient(openaiemb.Config{
			BaseURL:   o.BaseURL,
			APIKeyEnv: o.APIKeyEnv,
			Model:     o.Model,
			Timeout:   time.Duration(o.TimeoutSecs) * time.Second,
		})
		if err != nil {
			return nil, fmt.Errorf("openai embedder init failed: %w", err)
		}
		return client, nil
	case "gemini":
		client, err := geminiemb.NewClient(ctx, geminiemb.Config{
			APIKeyEnv: cfg.Embedder.Gemini.APIKeyEnv,
			Model:     cfg.Embedder.Gemini.Model,
		})
		if err != nil {
			return nil, fmt.Errorf("gemini embedder init failed: %w", err)
		}
		a.closers = append(a.closers, client.Close)
		return client, nil
	}
	return nil, fmt.Errorf("unknown embedder: %s", cfg.Embedder.Type)
}

func buildIndex(ctx context.Context, cfg *config.AppConfig, a *app, loadAWS func() (aws.Config, error)) (domain.VectorIndex, error) {
	vs := cfg.VectorStore
	fields := vectorstore.Fields{
		Embedding:   vs.Fields.Embedding,
		Text:        vs.Fields.Text,
		ContentType: vs.Fields.ContentType,
		Bucket:      vs.Fields.Bucket,
		Key:         vs.Fields.Key,
	}
	switch vs.Type {
	case "opensearch":
		o := vs.OpenSearch
		oscfg := opensearch.Config{
			Endpoint: o.Endpoint,
			Index:    o.Index,
			Service:  o.Service,
			Fields:   fields,
			Timeout:  time.Duration(o.TimeoutSecs) * time.Second,
		}
		if o.Unsigned {
			return opensearch.NewStorage(oscfg)
		}
		c, err := loadAWS()
		if err != nil {
			return nil, err
		}
		return opensearch.NewSignedStorage(awsclient.WithRegion(c, o.Region), oscfg)
	case "qdrant":
		q := vs.Qdrant
		return qdrant.NewStorage(qdrant.Config{
			URL:        q.URL,
			APIKey:     q.APIKey,
			Collection: q.Collection,
			VectorName: q.VectorName,
			Fields:     fields,
			Timeout:    time.Duration(q.TimeoutSecs) * time.Second,
		}), nil
	case "pgvector":
		st, err := pgvector.Open(ctx, pgvector.Config{
			DSN:    vs.Postgres.DSN,
			Table:  vs.Postgres.Table,
			Fields: fields,
		})
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, st.Close)
		return st, nil
	}
	return nil, fmt.Errorf("unknown vector store: %s", vs.Type)
}

func buildGenerator(ctx context.Context, cfg *config.AppConfig, a *app, loadAWS func() (aws.Config, error)) (domain.Generator, error) {
	gc := cfg.Generator
	params := generator.Params{
		MaxTokens:   gc.Params.MaxTokens,
		Temperature: gc.Params.Temperature,
		TopP:        gc.Params.TopP,
		TopK:        gc.Params.TopK,
	}
	switch gc.Type {
	case "bedrock":
		c, err := loadAWS()
		if err != nil {
			return nil, err
		}
		return bedrockgen.NewFromConfig(awsclient.WithRegion(c, gc.Bedrock.Region), bedrockgen.Config{
			ModelID:          gc.Bedrock.ModelID,
			AnthropicVersion: gc.Bedrock.AnthropicVersion,
			Params:           params,
		}), nil
	case "anthropic":
		g, err := anthropicgen.NewGenerator(anthropicgen.Config{
			BaseURL:   gc.Anthropic.BaseURL,
			APIKeyEnv: gc.Anthropic.APIKeyEnv,
			Model:     gc.Anthropic.Model,
			Params:    params,
		})
		if err != nil {
			return nil, fmt.Errorf("anthropic generator init failed: %w", err)
		}
		return g, nil
	case "openai":
		o := gc.OpenAI
		g, err := openaigen.NewGenerator(openaigen.Config{
			BaseURL:   o.BaseURL,
			APIKeyEnv: o.APIKeyEnv,
			Model:     o.Model,
			Timeout:   time.Duration(o.TimeoutSecs) * time.Second,
			Params:    params,
		})
		if err != nil {
			return nil, fmt.Errorf("openai generator init failed: %w", err)
		}
		return g, nil
	case "gemini":
		g, err := geminigen.NewGenerator(ctx, geminigen.Config{
			APIKeyEnv: gc.Gemini.APIKeyEnv,
			Model:     gc.Gemini.Model,
			Params:    params,
		})
		if err != nil {
			return nil, fmt.Errorf("gemini generator init failed: %w", err)
		}
		a.closers = append(a.closers, g.Close)
		return g, nil
	}
	return nil, fmt.Errorf("unknown generator: %s", gc.Type)
}
