package ports

import (
	"context"

	"github.com/kirillkom/nhs-clinical-assistant/internal/core/domain"
)

// AnswerService is the inbound contract for cited question answering.
type AnswerService interface {
	Answer(ctx context.Context, req domain.AnswerRequest) (*domain.Answer, error)
	Stream(ctx context.Context, req domain.AnswerRequest) (*domain.AnswerStream, error)
}

// ModelCatalog exposes the generation models a caller may choose from.
type ModelCatalog interface {
	Models() []string
	DefaultModel() string
	// ResolveModel maps an empty id to the default and rejects ids outside
	// the catalog with a configuration error.
	ResolveModel(id string) (string, error)
}

// CorpusIndexer is the inbound contract for loading the corpus into the vector index.
type CorpusIndexer interface {
	IndexCorpus(ctx context.Context, corpusKey string) (*domain.IndexReport, error)
}

// TranscriptReader is the inbound read model for chat session history.
type TranscriptReader interface {
	ListBySession(ctx context.Context, sessionID string, limit int) ([]domain.TranscriptEntry, error)
	DeleteSession(ctx context.Context, sessionID string) error
}
