package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"ragchat/internal/config"
	"ragchat/internal/conversation"
	logpkg "ragchat/internal/logger"
	"ragchat/internal/metrics"
	chiTransport "ragchat/internal/transport/chi"
	"ragchat/internal/tui"
)

// Globals are flags shared by every subcommand.
type Globals struct {
	Config   string `help:"Path to YAML config file (optional; uses ./config.yaml or ~/.config/ragchat/config.yaml if not provided)" type:"path"`
	Env      string `help:"Logger environment: prod, local or dev (overrides logging.env)"`
	LogLevel string `help:"Log level override: debug, info, warn or error"`
}

type cli struct {
	Globals

	Chat  chatCmd  `cmd:"" default:"1" help:"Interactive chat in the terminal."`
	Serve serveCmd `cmd:"" help:"Serve chat sessions over HTTP."`
	Ask   askCmd   `cmd:"" help:"Answer a single question and exit."`
}

func main() {
	_ = godotenv.Load()

	var c cli
	kctx := kong.Parse(&c,
		kong.Name("ragchat"),
		kong.Description("Chat with documents indexed in a vector store."),
		kong.UsageOnError(),
	)
	kctx.FatalIfErrorf(kctx.Run(&c.Globals))
}

func (g *Globals) loadConfig() (*config.AppConfig, error) {
	var (
		cfg *config.AppConfig
		err error
	)
	if g.Config == "" {
		cfg, _, err = config.LoadDefault()
	} else {
		cfg, err = config.Load(g.Config)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if g.Env != "" {
		cfg.Logging.Env = g.Env
	}
	if g.LogLevel != "" {
		cfg.Logging.Level = g.LogLevel
	}
	return cfg, nil
}

type chatCmd struct{}

func (cmd *chatCmd) Run(g *Globals) error {
	cfg, err := g.loadConfig()
	if err != nil {
		return err
	}
	// The terminal UI owns stdout, so logs go to a file.
	logger, err := logpkg.NewLogger(cfg.Logging.Env, cfg.Logging.Level, cfg.Logging.File)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx := logpkg.ContextWithLogger(context.Background(), logger)
	app, err := build(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer app.Close()

	session := conversation.NewSession("terminal", app.Service)
	m := tui.New(session, time.Duration(cfg.Server.TurnTimeoutSec)*time.Second)
	_, err = tea.NewProgram(m, tea.WithAltScreen()).Run()
	return err
}

type askCmd struct {
	Question []string `arg:"" help:"Question to answer."`
}

func (cmd *askCmd) Run(g *Globals) error {
	cfg, err := g.loadConfig()
	if err != nil {
		return err
	}
	logger, err := logpkg.NewLogger(cfg.Logging.Env, cfg.Logging.Level, "stderr")
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx := logpkg.ContextWithLogger(context.Background(), logger)
	if cfg.Server.TurnTimeoutSec > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(cfg.Server.TurnTimeoutSec)*time.Second)
		defer cancel()
	}
	app, err := build(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer app.Close()

	answer, err := app.Service.Answer(ctx, strings.Join(cmd.Question, " "))
	if err != nil {
		return err
	}
	fmt.Println(answer.Text)
	if answer.ImageURL != "" {
		fmt.Println()
		fmt.Println("Image:", answer.ImageURL)
	}
	return nil
}

type serveCmd struct {
	Addr string `help:"Listen address (overrides server.addr)"`
}

func (cmd *serveCmd) Run(g *Globals) error {
	cfg, err := g.loadConfig()
	if err != nil {
		return err
	}
	if cmd.Addr != "" {
		cfg.Server.Addr = cmd.Addr
	}
	logger, err := logpkg.NewLogger(cfg.Logging.Env, cfg.Logging.Level)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting ragchat API server",
		zap.String("addr", cfg.Server.Addr),
		zap.String("embedder", cfg.Embedder.Type),
		zap.String("vector_store", cfg.VectorStore.Type),
		zap.String("generator", cfg.Generator.Type),
	)

	metrics.RegisterPipelineMetrics()
	metrics.RegisterHTTPMetrics()

	ctx := logpkg.ContextWithLogger(context.Background(), logger)
	// Requests carry their own logger, so the service is built without one.
	app, err := build(ctx, cfg, nil)
	if err != nil {
		return err
	}
	defer app.Close()

	server := chiTransport.NewServer(
		conversation.NewRegistry(app.Service),
		time.Duration(cfg.Server.TurnTimeoutSec)*time.Second,
		logger,
	)
	srv := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      server.Routes(),
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeoutSec) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeoutSec) * time.Second,
	}

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("Starting HTTP server", zap.String("addr", cfg.Server.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	select {
	case err := <-serveErr:
		return fmt.Errorf("http server: %w", err)
	case <-quit:
		logger.Info("Received shutdown signal")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.Server.ShutdownSec)*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Error during shutdown", zap.Error(err))
	}

	logger.Info("Server stopped gracefully")
	return nil
}
