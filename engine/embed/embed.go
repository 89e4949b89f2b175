// Package embed wraps an embeddings backend with token-limit protection
// and bounded retries. It is shared by the ingestion write path and the
// retrieval read path.
package embed

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/AsclepiaAI/asclepia-mvp/engine/tokens"
	"github.com/AsclepiaAI/asclepia-mvp/pkg/fn"
)

// Backend is the remote embeddings API. Satisfied by pkg/openai and
// pkg/ollama clients.
type Backend interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// temporary is implemented by backend errors that are worth retrying.
type temporary interface {
	Temporary() bool
}

// Options configures the client.
type Options struct {
	// Dimension is the backend model's vector size; constant for the
	// lifetime of the store.
	Dimension int
	// Timeout bounds each remote call.
	Timeout time.Duration
	// Retry controls backoff for transient failures.
	Retry fn.RetryOpts
}

// DefaultOptions matches the default embedding model (1536 dims).
func DefaultOptions() Options {
	return Options{
		Dimension: 1536,
		Timeout:   30 * time.Second,
		Retry: fn.RetryOpts{
			MaxAttempts: 3,
			InitialWait: 500 * time.Millisecond,
			MaxWait:     5 * time.Second,
			Jitter:      true,
		},
	}
}

// Client applies the token guard to every text before it reaches the
// backend, even when callers already bounded their input. Transient
// backend errors are retried with backoff; permanent ones are not.
type Client struct {
	backend Backend
	guard   tokens.Guard
	opts    Options
	logger  *slog.Logger
}

// New creates a Client.
func New(backend Backend, guard tokens.Guard, opts Options, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Retry.MaxAttempts <= 0 {
		opts.Retry = DefaultOptions().Retry
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultOptions().Timeout
	}
	return &Client{backend: backend, guard: guard, opts: opts, logger: logger}
}

// Dimension returns the configured vector size.
func (c *Client) Dimension() int { return c.opts.Dimension }

// Guard exposes the client's token guard.
func (c *Client) Guard() tokens.Guard { return c.guard }

// Guarded bounds text to the token ceiling and reports whether it was cut.
func (c *Client) Guarded(text string) (string, bool) {
	bounded := c.guard.Bound(text)
	return bounded, tokens.Truncated(bounded) && !tokens.Truncated(text)
}

// Embed converts one text into a vector. The text is bounded first.
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	bounded := c.guard.Bound(text)
	if tokens.Truncated(bounded) && !tokens.Truncated(text) {
		c.logger.Warn("embed: text truncated to token ceiling",
			"original_chars", len(text), "max_tokens", c.guard.MaxTokens())
	}

	result := fn.RetryIf(ctx, c.opts.Retry, retryable, func(ctx context.Context) fn.Result[[]float32] {
		callCtx, cancel := context.WithTimeout(ctx, c.opts.Timeout)
		defer cancel()
		return fn.FromPair(c.backend.Embed(callCtx, bounded))
	})

	vec, err := result.Unwrap()
	if err != nil {
		return nil, fmt.Errorf("embed: %w", err)
	}
	if c.opts.Dimension > 0 && len(vec) != c.opts.Dimension {
		return nil, fmt.Errorf("embed: backend returned %d dims, want %d", len(vec), c.opts.Dimension)
	}
	return vec, nil
}

// EmbedBatch converts texts into vectors, order preserved one-to-one.
// The whole batch fails together; per-unit skip handling belongs to the
// caller, which knows chunk identities.
func (c *Client) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	bounded := make([]string, len(texts))
	for i, t := range texts {
		bounded[i] = c.guard.Bound(t)
	}

	callCtx, cancel := context.WithTimeout(ctx, c.opts.Timeout)
	defer cancel()
	vecs, err := c.backend.EmbedBatch(callCtx, bounded)
	if err != nil {
		return nil, fmt.Errorf("embed batch: %w", err)
	}
	if len(vecs) != len(texts) {
		return nil, fmt.Errorf("embed batch: got %d vectors for %d texts", len(vecs), len(texts))
	}
	return vecs, nil
}

// retryable classifies backend errors: timeouts and Temporary() errors
// are worth another attempt, validation and token-limit rejections are not.
func retryable(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var tmp temporary
	if errors.As(err, &tmp) {
		return tmp.Temporary()
	}
	// Unknown network-ish errors default to retry.
	return !errors.Is(err, context.Canceled)
}
