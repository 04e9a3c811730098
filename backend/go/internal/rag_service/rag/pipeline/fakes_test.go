package pipeline

import (
	"DocRAG/backend/go/internal/llm"
	"DocRAG/backend/go/internal/rag_service/rag/schema"
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"math"
	"strings"
	"sync"
)

const testDim = 32

// wordEmbedder hashes words into a fixed number of buckets, so texts sharing words score higher.
type wordEmbedder struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (e *wordEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	e.mu.Lock()
	e.calls++
	e.mu.Unlock()
	if e.err != nil {
		return nil, e.err
	}
	if strings.TrimSpace(text) == "" {
		return nil, errors.New("empty text")
	}
	v := make([]float32, testDim)
	for _, w := range strings.Fields(strings.ToLower(text)) {
		h := fnv.New32a()
		_, _ = h.Write([]byte(strings.Trim(w, ".,!?")))
		v[h.Sum32()%testDim]++
	}
	var norm float64
	for _, x := range v {
		norm += float64(x) * float64(x)
	}
	norm = math.Sqrt(norm)
	for i := range v {
		v[i] = float32(float64(v[i]) / norm)
	}
	return v, nil
}

func (e *wordEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v, err := e.Embed(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

type fakeLoader struct {
	pages []schema.Page
	err   error
}

func (l *fakeLoader) Load(context.Context, []byte) ([]schema.Page, error) {
	return l.pages, l.err
}

// staticStore answers every query with the same hits.
type staticStore struct {
	hits      []schema.ScoredChunk
	err       error
	insertErr error
	lastK     int
	lastSrc   string
}

func (s *staticStore) Insert(_ context.Context, _ string, records []schema.Record) (int, error) {
	if s.insertErr != nil {
		return 0, s.insertErr
	}
	return len(records), nil
}

func (s *staticStore) Query(_ context.Context, _ []float32, sourceFilter string, k int) ([]schema.ScoredChunk, error) {
	s.lastK, s.lastSrc = k, sourceFilter
	return s.hits, s.err
}

type fakeArchiver struct {
	mu      sync.Mutex
	sources []string
	err     error
}

func (a *fakeArchiver) Archive(_ context.Context, sourceID string, _ []byte) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.sources = append(a.sources, sourceID)
	return a.err
}

type fakeLLM struct {
	mu     sync.Mutex
	reply  string
	tokens []string
	err    error
	calls  int
	last   llm.Request
}

func (f *fakeLLM) Generate(_ context.Context, req llm.Request) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.last = req
	if f.err != nil {
		return "", f.err
	}
	return f.reply, nil
}

func (f *fakeLLM) GenerateStream(ctx context.Context, req llm.Request, onToken llm.TokenHandler) (string, error) {
	text, err := f.Generate(ctx, req)
	if err != nil {
		return "", err
	}
	for _, tok := range f.tokens {
		if err := onToken(tok); err != nil {
			return "", err
		}
	}
	return text, nil
}

// sentence returns a 149-character sentence with no inner sentence boundary.
func sentence(i int) string {
	s := fmt.Sprintf("Sentence %02d explains how retrieval works", i)
	for len(s) < 148 {
		s += " more"
	}
	s = s[:148]
	if strings.HasSuffix(s, " ") {
		s = s[:147] + "x"
	}
	return s + "."
}

func prose(n int) string {
	parts := make([]string, n)
	for i := range parts {
		parts[i] = sentence(i)
	}
	return strings.Join(parts, " ")
}

var pdfBytes = []byte("%PDF-1.4\n%\xe2\xe3\xcf\xd3\n1 0 obj\n<<>>\nendobj\n")
