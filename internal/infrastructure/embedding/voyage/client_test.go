package voyage

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/kirillkom/nhs-clinical-assistant/internal/core/domain"
)

func TestEmbedQuerySendsContextualizedRequest(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/contextualizedembeddings" {
			http.NotFound(w, r)
			return
		}
		if got := r.Header.Get("Authorization"); got != "Bearer vk" {
			t.Errorf("unexpected auth header %q", got)
		}
		var req embedRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if req.InputType != "query" || req.Model != "voyage-context-3" || req.OutputDimension != 2048 {
			t.Errorf("unexpected request %+v", req)
		}
		if len(req.Inputs) != 1 || len(req.Inputs[0]) != 1 || req.Inputs[0][0] != "adhd symptoms" {
			t.Errorf("unexpected inputs %v", req.Inputs)
		}
		_, _ = w.Write([]byte(`{"data":[{"index":0,"data":[{"index":0,"embedding":[0.1,0.2]}]}]}`))
	}))
	defer server.Close()

	embedder := New(Config{APIKey: "vk", BaseURL: server.URL, OutputDimension: 2048}, nil)
	vector, err := embedder.EmbedQuery(context.Background(), "adhd symptoms")
	if err != nil {
		t.Fatalf("EmbedQuery() error = %v", err)
	}
	if len(vector) != 2 || vector[1] != 0.2 {
		t.Fatalf("unexpected vector %v", vector)
	}
}

func TestEmbedDocumentKeepsChunkOrder(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req embedRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		if req.InputType != "document" || len(req.Inputs[0]) != 2 {
			t.Errorf("unexpected request %+v", req)
		}
		_, _ = w.Write([]byte(`{"data":[{"index":0,"data":[{"index":1,"embedding":[2]},{"index":0,"embedding":[1]}]}]}`))
	}))
	defer server.Close()

	embedder := New(Config{APIKey: "vk", BaseURL: server.URL}, nil)
	vectors, err := embedder.EmbedDocument(context.Background(), []string{"a", "b"})
	if err != nil {
		t.Fatalf("EmbedDocument() error = %v", err)
	}
	if vectors[0][0] != 1 || vectors[1][0] != 2 {
		t.Fatalf("expected vectors ordered by index, got %v", vectors)
	}
}

func TestEmbedWithoutKeyMakesNoRequest(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
	}))
	defer server.Close()

	_, err := New(Config{BaseURL: server.URL}, nil).EmbedQuery(context.Background(), "q")
	if !domain.IsKind(err, domain.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
	if atomic.LoadInt32(&calls) != 0 {
		t.Fatalf("expected no request without a key")
	}
}

func TestEmbedStatusErrors(t *testing.T) {
	cases := []struct {
		status int
		kind   error
	}{
		{status: http.StatusUnauthorized, kind: domain.ErrConfiguration},
		{status: http.StatusBadRequest, kind: domain.ErrRetrieval},
		{status: http.StatusServiceUnavailable, kind: domain.ErrTemporary},
	}
	for _, tc := range cases {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "nope", tc.status)
		}))
		_, err := New(Config{APIKey: "vk", BaseURL: server.URL}, nil).EmbedQuery(context.Background(), "q")
		server.Close()
		if !domain.IsKind(err, tc.kind) {
			t.Fatalf("status %d: expected %v, got %v", tc.status, tc.kind, err)
		}
	}
}
