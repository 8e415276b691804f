package pinecone

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/kirillkom/nhs-clinical-assistant/internal/core/domain"
)

func TestQueryResolvesHostOnceAndMapsMetadata(t *testing.T) {
	var describeCalls int32
	data := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/query" {
			http.NotFound(w, r)
			return
		}
		if r.Header.Get("Api-Key") != "pk" || r.Header.Get("X-Pinecone-API-Version") == "" {
			t.Errorf("missing pinecone headers")
		}
		var req queryRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		if req.TopK != 5 || req.Namespace != "nhs_guidelines_voyage_3_large" || !req.IncludeMetadata {
			t.Errorf("unexpected query %+v", req)
		}
		_, _ = w.Write([]byte(`{"matches":[{"id":"adhd-adults__Overview__Part_1","score":0.91,"metadata":{
			"original_id":"adhd-adults__Overview","url":"https://www.nhs.uk/conditions/adhd-adults/",
			"document":"ADHD text","source":"NHS","title":"ADHD in adults"}}]}`))
	}))
	defer data.Close()

	control := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet || r.URL.Path != "/indexes/nhs-conditions" {
			http.NotFound(w, r)
			return
		}
		atomic.AddInt32(&describeCalls, 1)
		_ = json.NewEncoder(w).Encode(map[string]any{"host": data.URL, "status": map[string]any{"ready": true}})
	}))
	defer control.Close()

	client := New(Config{
		APIKey:     "pk",
		ControlURL: control.URL,
		IndexName:  "nhs-conditions",
		Namespace:  "nhs_guidelines_voyage_3_large",
	}, nil)

	for i := 0; i < 2; i++ {
		matches, err := client.Query(context.Background(), []float32{0.1}, 5)
		if err != nil {
			t.Fatalf("Query() error = %v", err)
		}
		want := domain.Match{
			ID:        "adhd-adults__Overview__Part_1",
			Score:     0.91,
			Text:      "ADHD text",
			Title:     "ADHD in adults",
			URL:       "https://www.nhs.uk/conditions/adhd-adults/",
			SectionID: "adhd-adults__Overview",
			Origin:    "NHS",
		}
		if len(matches) != 1 || matches[0] != want {
			t.Fatalf("unexpected matches %+v", matches)
		}
	}
	if got := atomic.LoadInt32(&describeCalls); got != 1 {
		t.Fatalf("expected one describe call, got %d", got)
	}
}

func TestUpsertWritesIndexerMetadata(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/vectors/upsert" {
			http.NotFound(w, r)
			return
		}
		var body struct {
			Namespace string   `json:"namespace"`
			Vectors   []vector `json:"vectors"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body.Namespace != "ns" || len(body.Vectors) != 1 {
			t.Errorf("unexpected upsert %+v", body)
		}
		meta := body.Vectors[0].Metadata
		if meta["original_id"] != "sec" || meta["document"] != "chunk" || meta["source"] != "NHS" {
			t.Errorf("unexpected metadata %v", meta)
		}
		_, _ = w.Write([]byte(`{"upsertedCount":1}`))
	}))
	defer server.Close()

	client := New(Config{APIKey: "pk", IndexHost: server.URL, Namespace: "ns"}, nil)
	err := client.Upsert(context.Background(), []domain.IndexRecord{{
		ID: "sec__Part_1", Vector: []float32{1}, Text: "chunk", SectionID: "sec", Origin: "NHS",
	}})
	if err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}
}

func TestQueryWithoutKeyIsConfigurationError(t *testing.T) {
	client := New(Config{IndexHost: "https://unused.invalid", Namespace: "ns"}, nil)
	if _, err := client.Query(context.Background(), []float32{1}, 5); !domain.IsKind(err, domain.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}

func TestQueryFailureIsRetrievalError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad vector", http.StatusBadRequest)
	}))
	defer server.Close()

	client := New(Config{APIKey: "pk", IndexHost: server.URL, Namespace: "ns"}, nil)
	_, err := client.Query(context.Background(), []float32{1}, 5)
	if domain.KindOf(err) != domain.KindRetrieval {
		t.Fatalf("expected retrieval error, got %v", err)
	}
}
