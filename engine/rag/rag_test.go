package rag

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/AsclepiaAI/asclepia-mvp/engine/domain"
	"github.com/AsclepiaAI/asclepia-mvp/engine/semantic"
)

type fakeEmbedder struct {
	vec []float32
	err error
}

func (f *fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return f.vec, f.err
}

type fakeChat struct {
	reply string
	err   error
	calls int
	last  struct {
		system, user string
		maxTokens    int
		temperature  float32
	}
}

func (f *fakeChat) Chat(ctx context.Context, system, user string, maxTokens int, temperature float32) (string, error) {
	f.calls++
	f.last.system, f.last.user = system, user
	f.last.maxTokens, f.last.temperature = maxTokens, temperature
	return f.reply, f.err
}

type fakeSearcher struct {
	results  []semantic.SearchResult
	err      error
	lastTopK int
}

func (f *fakeSearcher) Search(ctx context.Context, embedding []float32, topK int) ([]semantic.SearchResult, error) {
	f.lastTopK = topK
	return f.results, f.err
}

type fakeProber struct{ err error }

func (f *fakeProber) Health(ctx context.Context) error { return f.err }

func newTestService(emb *fakeEmbedder, chat *fakeChat, search *fakeSearcher, vdb, llm HealthProber) *Service {
	return New(emb, chat, search, vdb, llm, DefaultOptions(), nil)
}

func hits(scores ...float32) []semantic.SearchResult {
	out := make([]semantic.SearchResult, len(scores))
	for i, s := range scores {
		out[i] = semantic.SearchResult{
			ChunkID: string(rune('a' + i)),
			FileID:  "f1",
			Score:   s,
			Content: "chunk content",
		}
	}
	return out
}

func TestRetrieveOrdersByScore(t *testing.T) {
	search := &fakeSearcher{results: []semantic.SearchResult{
		{ChunkID: "low", Score: 0.2},
		{ChunkID: "high", Score: 0.9},
		{ChunkID: "mid", Score: 0.5},
	}}
	s := newTestService(&fakeEmbedder{vec: []float32{1}}, &fakeChat{}, search, nil, nil)

	results, err := s.Retrieve(context.Background(), "what is the diagnosis", 0)
	if err != nil {
		t.Fatal(err)
	}
	got := []string{results[0].ChunkID, results[1].ChunkID, results[2].ChunkID}
	want := []string{"high", "mid", "low"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("order %v, want %v", got, want)
		}
	}
}

func TestRetrieveTiebreakByChunkID(t *testing.T) {
	search := &fakeSearcher{results: []semantic.SearchResult{
		{ChunkID: "b", Score: 0.5},
		{ChunkID: "a", Score: 0.5},
	}}
	s := newTestService(&fakeEmbedder{vec: []float32{1}}, &fakeChat{}, search, nil, nil)

	results, err := s.Retrieve(context.Background(), "what is the diagnosis", 0)
	if err != nil {
		t.Fatal(err)
	}
	if results[0].ChunkID != "a" || results[1].ChunkID != "b" {
		t.Fatalf("tiebreak order wrong: %s, %s", results[0].ChunkID, results[1].ChunkID)
	}
}

func TestRetrieveClampsTopK(t *testing.T) {
	search := &fakeSearcher{}
	s := newTestService(&fakeEmbedder{vec: []float32{1}}, &fakeChat{}, search, nil, nil)

	if _, err := s.Retrieve(context.Background(), "valid question", 0); err != nil {
		t.Fatal(err)
	}
	if search.lastTopK != 5 {
		t.Fatalf("default topK = %d, want 5", search.lastTopK)
	}

	if _, err := s.Retrieve(context.Background(), "valid question", 999); err != nil {
		t.Fatal(err)
	}
	if search.lastTopK != 20 {
		t.Fatalf("clamped topK = %d, want 20", search.lastTopK)
	}
}

func TestRetrieveRejectsInvalidQuery(t *testing.T) {
	s := newTestService(&fakeEmbedder{vec: []float32{1}}, &fakeChat{}, &fakeSearcher{}, nil, nil)

	_, err := s.Retrieve(context.Background(), "  ", 0)
	var ve *domain.ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("got %v, want ValidationError", err)
	}
}

func TestQueryZeroContextSkipsModel(t *testing.T) {
	chat := &fakeChat{reply: "should not be used"}
	s := newTestService(&fakeEmbedder{vec: []float32{1}}, chat, &fakeSearcher{}, nil, nil)

	a, err := s.Query(context.Background(), "what is the diagnosis", 0)
	if err != nil {
		t.Fatal(err)
	}
	if chat.calls != 0 {
		t.Fatal("language model called despite empty retrieval")
	}
	if a.Grounded {
		t.Fatal("zero-context answer marked grounded")
	}
	if a.Text != NoContextAnswer {
		t.Fatalf("text = %q", a.Text)
	}
	if len(a.Sources) != 0 {
		t.Fatalf("sources = %v, want empty", a.Sources)
	}
	if a.ContextCount != 0 {
		t.Fatalf("context count = %d, want 0", a.ContextCount)
	}
}

func TestQueryGroundedAnswer(t *testing.T) {
	chat := &fakeChat{reply: "The diagnosis is hypertension [a]."}
	search := &fakeSearcher{results: hits(0.9, 0.7)}
	s := newTestService(&fakeEmbedder{vec: []float32{1}}, chat, search, nil, nil)

	a, err := s.Query(context.Background(), "what is the diagnosis", 0)
	if err != nil {
		t.Fatal(err)
	}
	if !a.Grounded {
		t.Fatal("expected grounded answer")
	}
	if a.Text != chat.reply {
		t.Fatalf("text = %q", a.Text)
	}
	if len(a.Sources) != 2 {
		t.Fatalf("got %d sources, want 2", len(a.Sources))
	}
	if a.ContextCount != 2 {
		t.Fatalf("context count = %d, want 2", a.ContextCount)
	}
	if a.Sources[0].Score < a.Sources[1].Score {
		t.Fatal("sources not ordered by score")
	}

	if chat.last.maxTokens != 1000 {
		t.Fatalf("maxTokens = %d, want 1000", chat.last.maxTokens)
	}
	if chat.last.temperature != 0.1 {
		t.Fatalf("temperature = %v, want 0.1", chat.last.temperature)
	}
	if !strings.Contains(chat.last.user, "chunk content") {
		t.Fatal("retrieved context missing from prompt")
	}
	if !strings.Contains(chat.last.user, "what is the diagnosis") {
		t.Fatal("question missing from prompt")
	}
}

func TestQueryGenerationFailure(t *testing.T) {
	chat := &fakeChat{err: errors.New("model overloaded")}
	search := &fakeSearcher{results: hits(0.9)}
	s := newTestService(&fakeEmbedder{vec: []float32{1}}, chat, search, nil, nil)

	_, err := s.Query(context.Background(), "what is the diagnosis", 0)
	var ge *domain.GenerationError
	if !errors.As(err, &ge) {
		t.Fatalf("got %v, want GenerationError", err)
	}
	if ge.Query != "what is the diagnosis" {
		t.Fatalf("query not preserved: %q", ge.Query)
	}
	if !errors.Is(err, domain.ErrGenerationFailure) {
		t.Fatal("GenerationError should unwrap to ErrGenerationFailure")
	}
}

func TestQueryEmbedFailure(t *testing.T) {
	s := newTestService(&fakeEmbedder{err: errors.New("backend down")}, &fakeChat{}, &fakeSearcher{}, nil, nil)

	_, err := s.Query(context.Background(), "what is the diagnosis", 0)
	if err == nil {
		t.Fatal("expected error")
	}
}

func TestHealthMatrix(t *testing.T) {
	cases := []struct {
		name    string
		vdbErr  error
		llmErr  error
		overall bool
	}{
		{"all healthy", nil, nil, true},
		{"vector store down", errors.New("down"), nil, false},
		{"language model down", nil, errors.New("down"), false},
		{"both down", errors.New("down"), errors.New("down"), false},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			s := newTestService(&fakeEmbedder{vec: []float32{1}}, &fakeChat{}, &fakeSearcher{},
				&fakeProber{err: c.vdbErr}, &fakeProber{err: c.llmErr})

			st := s.Health(context.Background())
			if st.Overall != c.overall {
				t.Fatalf("overall = %v, want %v", st.Overall, c.overall)
			}
			if st.VectorStore != (c.vdbErr == nil) {
				t.Fatalf("vector store = %v", st.VectorStore)
			}
			if st.LanguageModel != (c.llmErr == nil) {
				t.Fatalf("language model = %v", st.LanguageModel)
			}
			if !st.Overall && st.Message == "" {
				t.Fatal("unhealthy status missing message")
			}
		})
	}
}

func TestHealthFreshPerCall(t *testing.T) {
	vdb := &fakeProber{err: errors.New("down")}
	s := newTestService(&fakeEmbedder{vec: []float32{1}}, &fakeChat{}, &fakeSearcher{}, vdb, &fakeProber{})

	if st := s.Health(context.Background()); st.Overall {
		t.Fatal("expected unhealthy")
	}

	vdb.err = nil
	if st := s.Health(context.Background()); !st.Overall {
		t.Fatal("recovery not reflected; status must be rebuilt per call")
	}
}

func TestHealthNilProbersHealthy(t *testing.T) {
	s := newTestService(&fakeEmbedder{vec: []float32{1}}, &fakeChat{}, &fakeSearcher{}, nil, nil)
	if st := s.Health(context.Background()); !st.Overall {
		t.Fatal("nil probers should count as healthy")
	}
}

func TestExcerpt(t *testing.T) {
	if got := excerpt("short", 200); got != "short" {
		t.Fatalf("got %q", got)
	}
	long := strings.Repeat("x", 300)
	got := excerpt(long, 200)
	if len(got) != 203 || !strings.HasSuffix(got, "...") {
		t.Fatalf("excerpt length %d", len(got))
	}
}
