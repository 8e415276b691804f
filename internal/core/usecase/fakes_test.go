package usecase

import (
	"context"
	"fmt"
	"io"
	"iter"
	"slices"
	"strings"
	"sync"

	"github.com/kirillkom/nhs-clinical-assistant/internal/core/domain"
)

type embedderFake struct {
	mu         sync.Mutex
	queryCalls int
	docCalls   int
	lastQuery  string
	docChunks  [][]string
	err        error
}

func (f *embedderFake) EmbedQuery(_ context.Context, text string) ([]float32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queryCalls++
	f.lastQuery = text
	if f.err != nil {
		return nil, f.err
	}
	return []float32{0.1, 0.2, 0.3}, nil
}

func (f *embedderFake) EmbedDocument(_ context.Context, chunks []string) ([][]float32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.docCalls++
	f.docChunks = append(f.docChunks, slices.Clone(chunks))
	if f.err != nil {
		return nil, f.err
	}
	out := make([][]float32, len(chunks))
	for i := range chunks {
		out[i] = []float32{float32(i + 1)}
	}
	return out, nil
}

type indexFake struct {
	mu        sync.Mutex
	calls     int
	lastTopK  int
	matches   []domain.Match
	err       error
	upserts   [][]domain.IndexRecord
	upsertErr error
}

func (f *indexFake) Query(_ context.Context, _ []float32, topK int) ([]domain.Match, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.lastTopK = topK
	if f.err != nil {
		return nil, f.err
	}
	return slices.Clone(f.matches), nil
}

func (f *indexFake) Upsert(_ context.Context, records []domain.IndexRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.upsertErr != nil {
		return f.upsertErr
	}
	f.upserts = append(f.upserts, slices.Clone(records))
	return nil
}

type generatorFake struct {
	mu          sync.Mutex
	calls       int
	streamCalls int
	fragments   []string
	err         error
	// streamErr is yielded after the fragments.
	streamErr error
	lastReq   domain.GenerationRequest
	readyErr  error
}

func (f *generatorFake) Ready() error {
	return f.readyErr
}

func (f *generatorFake) Generate(_ context.Context, req domain.GenerationRequest) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.lastReq = req
	if f.err != nil {
		return "", f.err
	}
	return strings.Join(f.fragments, ""), nil
}

func (f *generatorFake) Stream(_ context.Context, req domain.GenerationRequest) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		f.mu.Lock()
		f.streamCalls++
		f.lastReq = req
		fragments := slices.Clone(f.fragments)
		startErr, endErr := f.err, f.streamErr
		f.mu.Unlock()

		if startErr != nil {
			yield("", startErr)
			return
		}
		for _, fragment := range fragments {
			if !yield(fragment, nil) {
				return
			}
		}
		if endErr != nil {
			yield("", endErr)
		}
	}
}

func (f *generatorFake) totalCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls + f.streamCalls
}

type catalogFake struct {
	models []string
}

func (c catalogFake) Models() []string     { return c.models }
func (c catalogFake) DefaultModel() string { return c.models[0] }
func (c catalogFake) ResolveModel(id string) (string, error) {
	if id == "" {
		return c.models[0], nil
	}
	if !slices.Contains(c.models, id) {
		return "", domain.NewError(domain.ErrConfiguration, "resolve model", fmt.Sprintf("unsupported model %q", id))
	}
	return id, nil
}

type storageFake struct {
	mu    sync.Mutex
	files map[string][]byte
}

func newStorageFake() *storageFake {
	return &storageFake{files: map[string][]byte{}}
}

func (s *storageFake) Save(_ context.Context, key string, data io.Reader) error {
	body, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.files[key] = body
	return nil
}

func (s *storageFake) Open(_ context.Context, key string) (io.ReadCloser, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	body, ok := s.files[key]
	if !ok {
		return nil, domain.NewError(domain.ErrNotFound, "open", key)
	}
	return io.NopCloser(strings.NewReader(string(body))), nil
}

type splitterFake struct{}

func (splitterFake) Split(text string) []string {
	var out []string
	for _, part := range strings.Split(text, "\n\n") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func testMatches() []domain.Match {
	return []domain.Match{
		{ID: "adhd-adults__Overview__Part_1", Text: "ADHD overview text", Score: 0.91, Title: "ADHD in adults", URL: "https://www.nhs.uk/conditions/adhd-adults/"},
		{ID: "adhd-adults__Symptoms__Part_1", Text: "ADHD symptoms text", Score: 0.88, Title: "ADHD in adults", URL: "https://www.nhs.uk/conditions/adhd-adults/"},
		{ID: "insomnia__Overview__Part_1", Text: "Insomnia text", Score: 0.72, Title: "Insomnia", URL: "https://www.nhs.uk/conditions/insomnia/"},
	}
}
