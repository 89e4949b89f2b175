package rag

import (
	"context"
	"time"

	"github.com/AsclepiaAI/asclepia-mvp/pkg/fn"
)

// HealthStatus reports per-component and overall liveness. A fresh
// value is built on every call; nothing is cached between probes.
type HealthStatus struct {
	VectorStore   bool   `json:"vector_store"`
	LanguageModel bool   `json:"language_model"`
	Overall       bool   `json:"overall"`
	Message       string `json:"message,omitempty"`
}

// Health probes the vector store and the language model concurrently.
// A nil prober counts as healthy.
func (s *Service) Health(ctx context.Context) HealthStatus {
	probeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	probe := func(p HealthProber) func() error {
		return func() error {
			if p == nil {
				return nil
			}
			return p.Health(probeCtx)
		}
	}

	errs := fn.FanOut(probe(s.vectorDB), probe(s.llm))

	st := HealthStatus{
		VectorStore:   errs[0] == nil,
		LanguageModel: errs[1] == nil,
	}
	st.Overall = st.VectorStore && st.LanguageModel

	switch {
	case !st.VectorStore && !st.LanguageModel:
		st.Message = "vector store and language model unreachable"
	case !st.VectorStore:
		st.Message = "vector store unreachable"
	case !st.LanguageModel:
		st.Message = "language model unreachable"
	}
	return st
}
