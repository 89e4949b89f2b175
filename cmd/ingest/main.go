// Command ingest loads documents into the vector store from the
// command line. Files are ingested directly, or published as jobs to
// NATS for the API server's consumer when -nats is set.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"time"

	"github.com/AsclepiaAI/asclepia-mvp/engine/chunker"
	"github.com/AsclepiaAI/asclepia-mvp/engine/domain"
	"github.com/AsclepiaAI/asclepia-mvp/engine/embed"
	"github.com/AsclepiaAI/asclepia-mvp/engine/ingest"
	"github.com/AsclepiaAI/asclepia-mvp/engine/semantic"
	"github.com/AsclepiaAI/asclepia-mvp/engine/tokens"
	"github.com/AsclepiaAI/asclepia-mvp/pkg/natsutil"
	"github.com/AsclepiaAI/asclepia-mvp/pkg/ollama"
	"github.com/AsclepiaAI/asclepia-mvp/pkg/openai"
	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
)

func main() {
	var (
		backendName = flag.String("backend", "openai", "embedding backend: openai or ollama")
		openaiKey   = flag.String("openai-key", os.Getenv("OPENAI_API_KEY"), "OpenAI API key")
		ollamaURL   = flag.String("ollama", "http://localhost:11434", "Ollama base URL")
		embedModel  = flag.String("embed-model", "", "embedding model override")
		dims        = flag.Int("dims", 1536, "embedding vector size")
		qdrantAddr  = flag.String("qdrant", "localhost:6334", "Qdrant gRPC address")
		collection  = flag.String("collection", "asclepia", "Qdrant collection name")
		natsURL     = flag.String("nats", "", "publish jobs to NATS instead of ingesting directly")
		preview     = flag.Bool("preview", false, "preview CSV files without ingesting")
		fileID      = flag.String("file-id", "", "update this file ID instead of creating a new one")
	)
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	if flag.NArg() == 0 {
		fmt.Fprintln(os.Stderr, "usage: ingest [flags] file.pdf [file.csv ...]")
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	chk := chunker.New(chunker.Options{})

	if *preview {
		if err := runPreview(chk, flag.Args()); err != nil {
			logger.Error("preview failed", "error", err)
			os.Exit(1)
		}
		return
	}

	if *natsURL != "" {
		if err := publishJobs(ctx, *natsURL, flag.Args(), logger); err != nil {
			logger.Error("publish failed", "error", err)
			os.Exit(1)
		}
		return
	}

	var be embed.Backend
	switch *backendName {
	case "openai":
		opts := openai.DefaultOptions()
		opts.APIKey = *openaiKey
		if *embedModel != "" {
			opts.EmbedModel = *embedModel
		}
		be = openai.New(opts)
	case "ollama":
		be = ollama.New(*ollamaURL, *embedModel, "", 60*time.Second)
	default:
		logger.Error("unknown backend", "backend", *backendName)
		os.Exit(2)
	}

	vs, err := semantic.New(*qdrantAddr, *collection)
	if err != nil {
		logger.Error("qdrant connect failed", "error", err)
		os.Exit(1)
	}
	defer vs.Close()

	embedOpts := embed.DefaultOptions()
	embedOpts.Dimension = *dims
	embedder := embed.New(be, tokens.Default(), embedOpts, logger)

	if err := vs.EnsureCollection(ctx, embedder.Dimension()); err != nil {
		logger.Error("ensure collection failed", "error", err)
		os.Exit(1)
	}

	svc := ingest.New(chk, embedder, vs, logger)

	failed := 0
	for _, path := range flag.Args() {
		doc, data, err := loadFile(path, *fileID)
		if err != nil {
			logger.Error("load failed", "path", path, "error", err)
			failed++
			continue
		}

		var res *domain.IngestResult
		if *fileID != "" {
			res, err = svc.Update(ctx, doc, data)
		} else {
			res, err = svc.Ingest(ctx, doc, data)
		}
		if err != nil && res == nil {
			logger.Error("ingest failed", "path", path, "error", err)
			failed++
			continue
		}
		if err != nil {
			logger.Warn("ingest partial", "path", path, "error", err)
		}
		fmt.Printf("%s: file_id=%s stored=%d/%d skipped=%d\n",
			filepath.Base(path), res.FileID, res.Stored, res.Attempted, len(res.Skipped))
	}
	if failed > 0 {
		os.Exit(1)
	}
}

func loadFile(path, fileID string) (domain.Document, []byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return domain.Document{}, nil, err
	}

	var media domain.MediaType
	switch strings.ToLower(filepath.Ext(path)) {
	case ".pdf":
		media = domain.MediaPDF
	case ".csv":
		media = domain.MediaCSV
	default:
		return domain.Document{}, nil, fmt.Errorf("%s: %w", path, domain.ErrUnsupportedFormat)
	}

	if fileID == "" {
		fileID = uuid.NewString()
	}
	return domain.Document{
		FileID:   fileID,
		Filename: filepath.Base(path),
		Media:    media,
		ByteLen:  len(data),
	}, data, nil
}

func runPreview(chk *chunker.Chunker, paths []string) error {
	for _, path := range paths {
		if strings.ToLower(filepath.Ext(path)) != ".csv" {
			fmt.Printf("%s: preview supports CSV only, skipping\n", filepath.Base(path))
			continue
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		p, err := chk.PreviewCSV(data)
		if err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		fmt.Printf("%s: rows=%d columns=%d medical=%v (%s, confidence %.2f)\n",
			filepath.Base(path), p.Rows, len(p.Columns), p.Detection.IsMedical,
			p.Detection.ContentType, p.Detection.Confidence)
		fmt.Printf("  estimated chunks: %d (~%.0fs)\n", p.EstimatedChunks, p.EstimatedSeconds)
		if p.Warning != "" {
			fmt.Printf("  warning: %s\n", p.Warning)
		}
	}
	return nil
}

func publishJobs(ctx context.Context, natsURL string, paths []string, logger *slog.Logger) error {
	nc, err := nats.Connect(natsURL, nats.Name("asclepia-ingest-cli"))
	if err != nil {
		return fmt.Errorf("nats connect: %w", err)
	}
	defer nc.Close()

	for _, path := range paths {
		doc, data, err := loadFile(path, "")
		if err != nil {
			return err
		}
		job := ingest.Job{
			FileID:    doc.FileID,
			Filename:  doc.Filename,
			MediaType: doc.Media,
			Data:      data,
		}
		if err := natsutil.Publish(ctx, nc, ingest.IngestSubject, job); err != nil {
			return fmt.Errorf("publish %s: %w", path, err)
		}
		logger.Info("job published", "file_id", doc.FileID, "filename", doc.Filename)
		fmt.Printf("%s: queued as file_id=%s\n", filepath.Base(path), doc.FileID)
	}
	return nc.Flush()
}
