// Package main implements the Asclepia API server: document upload,
// preview, update, delete, and retrieval-grounded question answering.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/AsclepiaAI/asclepia-mvp/engine/chunker"
	"github.com/AsclepiaAI/asclepia-mvp/engine/embed"
	"github.com/AsclepiaAI/asclepia-mvp/engine/ingest"
	"github.com/AsclepiaAI/asclepia-mvp/engine/rag"
	"github.com/AsclepiaAI/asclepia-mvp/engine/semantic"
	"github.com/AsclepiaAI/asclepia-mvp/engine/tokens"
	"github.com/AsclepiaAI/asclepia-mvp/pkg/metrics"
	"github.com/AsclepiaAI/asclepia-mvp/pkg/mid"
	"github.com/AsclepiaAI/asclepia-mvp/pkg/ollama"
	"github.com/AsclepiaAI/asclepia-mvp/pkg/openai"
	"github.com/nats-io/nats.go"
)

// Config holds all environment-based configuration.
type Config struct {
	Port           string
	Backend        string // "openai" or "ollama"
	OpenAIKey      string
	OpenAIURL      string
	OllamaURL      string
	EmbedModel     string
	ChatModel      string
	EmbedDimension int
	QdrantURL      string
	Collection     string
	NATSURL        string
	CORSOrigin     string
	MaxUploadBytes int64
}

func loadConfig() Config {
	return Config{
		Port:           envOr("PORT", "8080"),
		Backend:        envOr("LLM_BACKEND", "openai"),
		OpenAIKey:      envOr("OPENAI_API_KEY", ""),
		OpenAIURL:      envOr("OPENAI_BASE_URL", ""),
		OllamaURL:      envOr("OLLAMA_URL", "http://localhost:11434"),
		EmbedModel:     envOr("EMBED_MODEL", ""),
		ChatModel:      envOr("CHAT_MODEL", ""),
		EmbedDimension: envIntOr("EMBED_DIMENSION", 1536),
		QdrantURL:      envOr("QDRANT_URL", "localhost:6334"),
		Collection:     envOr("QDRANT_COLLECTION", "asclepia"),
		NATSURL:        envOr("NATS_URL", ""),
		CORSOrigin:     envOr("CORS_ORIGIN", "*"),
		MaxUploadBytes: int64(envIntOr("MAX_UPLOAD_MB", 32)) << 20,
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envIntOr(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	cfg := loadConfig()

	if err := run(cfg, logger); err != nil {
		logger.Error("server exited with error", "err", err)
		os.Exit(1)
	}
}

// backend is the shared shape of pkg/openai and pkg/ollama clients.
type backend interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Chat(ctx context.Context, system, user string, maxTokens int, temperature float32) (string, error)
	Healthy(ctx context.Context) error
}

func newBackend(cfg Config) (backend, error) {
	switch cfg.Backend {
	case "openai":
		opts := openai.DefaultOptions()
		opts.APIKey = cfg.OpenAIKey
		if cfg.OpenAIURL != "" {
			opts.BaseURL = cfg.OpenAIURL
		}
		if cfg.EmbedModel != "" {
			opts.EmbedModel = cfg.EmbedModel
		}
		if cfg.ChatModel != "" {
			opts.ChatModel = cfg.ChatModel
		}
		return openai.New(opts), nil
	case "ollama":
		return ollama.New(cfg.OllamaURL, cfg.EmbedModel, cfg.ChatModel, 60*time.Second), nil
	default:
		return nil, fmt.Errorf("unknown LLM_BACKEND %q", cfg.Backend)
	}
}

// llmProber adapts a backend's Healthy to the rag.HealthProber shape.
type llmProber struct{ b backend }

func (p llmProber) Health(ctx context.Context) error { return p.b.Healthy(ctx) }

func run(cfg Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	be, err := newBackend(cfg)
	if err != nil {
		return err
	}

	vectorStore, err := semantic.New(cfg.QdrantURL, cfg.Collection)
	if err != nil {
		return fmt.Errorf("qdrant connect: %w", err)
	}
	defer vectorStore.Close()

	embedOpts := embed.DefaultOptions()
	embedOpts.Dimension = cfg.EmbedDimension
	embedder := embed.New(be, tokens.Default(), embedOpts, logger)

	if err := vectorStore.EnsureCollection(ctx, embedder.Dimension()); err != nil {
		return fmt.Errorf("ensure collection: %w", err)
	}

	chk := chunker.New(chunker.Options{})
	ingestSvc := ingest.New(chk, embedder, vectorStore, logger)
	ragSvc := rag.New(embedder, be, vectorStore, vectorStore, llmProber{be}, rag.DefaultOptions(), logger)

	if cfg.NATSURL != "" {
		nc, err := nats.Connect(cfg.NATSURL, nats.Name("asclepia-api"))
		if err != nil {
			return fmt.Errorf("nats connect: %w", err)
		}
		defer nc.Close()
		sub, err := ingestSvc.StartConsumer(nc, logger)
		if err != nil {
			return fmt.Errorf("nats subscribe: %w", err)
		}
		defer sub.Unsubscribe()
		logger.Info("ingest consumer started", "subject", ingest.IngestSubject)
	}

	reg := metrics.New()
	api := newAPI(ingestSvc, ragSvc, chk, reg, logger, cfg.MaxUploadBytes)

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/files", api.handleUpload)
	mux.HandleFunc("POST /api/files/preview", api.handlePreview)
	mux.HandleFunc("PUT /api/files/{id}", api.handleUpdate)
	mux.HandleFunc("DELETE /api/files/{id}", api.handleDelete)
	mux.HandleFunc("POST /api/query", api.handleQuery)
	mux.HandleFunc("GET /api/health", api.handleHealth)
	mux.Handle("GET /metrics", reg.Handler())

	handler := mid.Chain(mux,
		mid.Recover(logger),
		mid.Logger(logger),
		mid.CORS(cfg.CORSOrigin),
	)

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      handler,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("api server starting", "port", cfg.Port, "backend", cfg.Backend)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return err
		}
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	}

	shutCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutCtx)
}
