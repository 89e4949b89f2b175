// Package rag orchestrates retrieve-then-generate question answering.
// It embeds a user question, searches the vector store for relevant
// chunks, builds a grounded prompt, and calls the language model for
// the final answer. When retrieval yields no context the model is not
// called at all.
package rag

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/AsclepiaAI/asclepia-mvp/engine/domain"
	"github.com/AsclepiaAI/asclepia-mvp/engine/semantic"
	"github.com/AsclepiaAI/asclepia-mvp/pkg/resilience"
)

// Embedder turns query text into a vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// ChatModel generates an answer from a system prompt and user message.
type ChatModel interface {
	Chat(ctx context.Context, system, user string, maxTokens int, temperature float32) (string, error)
}

// SemanticSearcher abstracts vector search.
type SemanticSearcher interface {
	Search(ctx context.Context, embedding []float32, topK int) ([]semantic.SearchResult, error)
}

// HealthProber reports component liveness.
type HealthProber interface {
	Health(ctx context.Context) error
}

// Options configures the pipeline behaviour.
type Options struct {
	TopK          int
	MaxTopK       int
	Temperature   float32
	MaxTokens     int
	SearchTimeout time.Duration
	ChatTimeout   time.Duration
}

// DefaultOptions returns the standard retrieval settings.
func DefaultOptions() Options {
	return Options{
		TopK:          5,
		MaxTopK:       20,
		Temperature:   0.1,
		MaxTokens:     1000,
		SearchTimeout: 5 * time.Second,
		ChatTimeout:   60 * time.Second,
	}
}

const systemPrompt = `You are a medical information assistant. Answer the question using ONLY the provided context from uploaded medical documents.

Rules:
- Base your answer strictly on the context below. Do not use outside knowledge.
- If the context does not contain the answer, say the documents do not contain enough information.
- Cite the source chunks you used by their identifiers in square brackets.
- You provide information, not medical advice. Recommend consulting a healthcare professional for decisions about care.`

// NoContextAnswer is returned when retrieval finds nothing relevant.
const NoContextAnswer = "The uploaded documents do not contain enough information to answer this question."

// Service is the retrieve-then-generate orchestrator.
type Service struct {
	embedder Embedder
	chat     ChatModel
	search   SemanticSearcher
	vectorDB HealthProber
	llm      HealthProber
	breaker  *resilience.Breaker
	opts     Options
	logger   *slog.Logger
}

// New creates a Service. The health probers may be nil when the
// corresponding backend does not expose a probe.
func New(embedder Embedder, chat ChatModel, search SemanticSearcher, vectorDB, llm HealthProber, opts Options, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.TopK <= 0 {
		opts.TopK = DefaultOptions().TopK
	}
	if opts.MaxTopK <= 0 {
		opts.MaxTopK = DefaultOptions().MaxTopK
	}
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = DefaultOptions().MaxTokens
	}
	if opts.SearchTimeout <= 0 {
		opts.SearchTimeout = DefaultOptions().SearchTimeout
	}
	if opts.ChatTimeout <= 0 {
		opts.ChatTimeout = DefaultOptions().ChatTimeout
	}
	return &Service{
		embedder: embedder,
		chat:     chat,
		search:   search,
		vectorDB: vectorDB,
		llm:      llm,
		breaker:  resilience.NewBreaker(resilience.BreakerOpts{}),
		opts:     opts,
		logger:   logger,
	}
}

// Answer is the structured response from the pipeline.
type Answer struct {
	Text         string   `json:"text"`
	Sources      []Source `json:"sources"`
	ContextCount int      `json:"context_count"`
	Grounded     bool     `json:"grounded"`
	ElapsedMS    int64    `json:"elapsed_ms"`
}

// Source is a retrieved chunk backing the answer.
type Source struct {
	ChunkID string  `json:"chunk_id"`
	FileID  string  `json:"file_id"`
	Score   float32 `json:"score"`
	Excerpt string  `json:"excerpt"`
}

// Retrieve embeds the query and returns the TopK most similar chunks,
// ordered by descending score with chunk ID as tiebreak.
func (s *Service) Retrieve(ctx context.Context, query string, topK int) ([]semantic.SearchResult, error) {
	if err := domain.ValidateQuery(query); err != nil {
		return nil, err
	}
	if topK <= 0 {
		topK = s.opts.TopK
	}
	if topK > s.opts.MaxTopK {
		topK = s.opts.MaxTopK
	}

	embedding, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("rag: embed query: %w", err)
	}

	searchCtx, cancel := context.WithTimeout(ctx, s.opts.SearchTimeout)
	defer cancel()

	results, err := s.search.Search(searchCtx, embedding, topK)
	if err != nil {
		return nil, fmt.Errorf("rag: search: %w", err)
	}

	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].ChunkID < results[j].ChunkID
	})
	return results, nil
}

// Query runs the full pipeline for a user question.
func (s *Service) Query(ctx context.Context, question string, topK int) (*Answer, error) {
	start := time.Now()

	results, err := s.Retrieve(ctx, question, topK)
	if err != nil {
		return nil, err
	}
	s.logger.Info("rag retrieve done", "results", len(results), "query_len", len(question))

	if len(results) == 0 {
		return &Answer{
			Text:         NoContextAnswer,
			Sources:      []Source{},
			ContextCount: 0,
			Grounded:     false,
			ElapsedMS:    time.Since(start).Milliseconds(),
		}, nil
	}

	user := buildPrompt(question, results)

	chatCtx, cancel := context.WithTimeout(ctx, s.opts.ChatTimeout)
	defer cancel()

	var text string
	err = s.breaker.Call(chatCtx, func(ctx context.Context) error {
		var chatErr error
		text, chatErr = s.chat.Chat(ctx, systemPrompt, user, s.opts.MaxTokens, s.opts.Temperature)
		return chatErr
	})
	if err != nil {
		return nil, &domain.GenerationError{Query: question, Wrapped: err}
	}

	sources := make([]Source, len(results))
	for i, r := range results {
		sources[i] = Source{
			ChunkID: r.ChunkID,
			FileID:  r.FileID,
			Score:   r.Score,
			Excerpt: excerpt(r.Content, 200),
		}
	}

	return &Answer{
		Text:         text,
		Sources:      sources,
		ContextCount: len(results),
		Grounded:     true,
		ElapsedMS:    time.Since(start).Milliseconds(),
	}, nil
}

// buildPrompt assembles the grounded user message: numbered context
// blocks followed by the question.
func buildPrompt(question string, results []semantic.SearchResult) string {
	var b strings.Builder
	b.WriteString("Context from uploaded documents:\n\n")
	for i, r := range results {
		fmt.Fprintf(&b, "[%s] (relevance: %.3f)\n%s\n", r.ChunkID, r.Score, r.Content)
		if i < len(results)-1 {
			b.WriteString("\n---\n\n")
		}
	}
	fmt.Fprintf(&b, "\nQuestion: %s", question)
	return b.String()
}

func excerpt(s string, max int) string {
	if len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && s[cut]&0xC0 == 0x80 {
		cut--
	}
	return s[:cut] + "..."
}
