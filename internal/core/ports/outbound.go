package ports

import (
	"context"
	"io"
	"iter"

	"github.com/kirillkom/nhs-clinical-assistant/internal/core/domain"
)

// Embedder builds vectors for the query and for corpus chunks.
type Embedder interface {
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
	// EmbedDocument embeds the chunks of one document together so each
	// vector carries document-level context.
	EmbedDocument(ctx context.Context, chunks []string) ([][]float32, error)
}

// VectorIndex searches one fixed namespace of the hosted index.
type VectorIndex interface {
	Query(ctx context.Context, vector []float32, topK int) ([]domain.Match, error)
	Upsert(ctx context.Context, records []domain.IndexRecord) error
}

// Generator produces answers from chat messages.
type Generator interface {
	// Ready fails when no request could succeed, e.g. a missing credential.
	// It makes no network call.
	Ready() error
	Generate(ctx context.Context, req domain.GenerationRequest) (string, error)
	// Stream is lazy: nothing is sent until the sequence is ranged over.
	// Breaking out of the loop releases the underlying connection.
	Stream(ctx context.Context, req domain.GenerationRequest) iter.Seq2[string, error]
}

// Chunker splits text into semantically usable chunks.
type Chunker interface {
	Split(text string) []string
}

// ObjectStorage reads the corpus and stores indexer manifests.
type ObjectStorage interface {
	Save(ctx context.Context, key string, data io.Reader) error
	Open(ctx context.Context, key string) (io.ReadCloser, error)
}

// TranscriptSink receives finished exchanges.
type TranscriptSink interface {
	Record(ctx context.Context, entry domain.TranscriptEntry) error
}

// TranscriptStore persists and reads chat session history.
type TranscriptStore interface {
	TranscriptSink
	ListBySession(ctx context.Context, sessionID string, limit int) ([]domain.TranscriptEntry, error)
	DeleteSession(ctx context.Context, sessionID string) error
}

// TranscriptQueue carries finished exchanges from the api to the worker.
type TranscriptQueue interface {
	TranscriptSink
	SubscribeTranscripts(ctx context.Context, handler func(context.Context, domain.TranscriptEntry) error) error
}
