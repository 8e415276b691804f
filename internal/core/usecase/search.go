package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/kirillkom/nhs-clinical-assistant/internal/core/domain"
	"github.com/kirillkom/nhs-clinical-assistant/internal/core/ports"
)

// SearchService embeds a query and returns the best matching chunks of the
// configured namespace, best first.
type SearchService struct {
	embedder ports.Embedder
	index    ports.VectorIndex
	limits   domain.RetrievalLimits
	logger   *slog.Logger
}

func NewSearchService(
	embedder ports.Embedder,
	index ports.VectorIndex,
	limits domain.RetrievalLimits,
	logger *slog.Logger,
) *SearchService {
	if limits.DefaultResultCount <= 0 {
		limits.DefaultResultCount = 5
	}
	if limits.MaxResultCount < limits.DefaultResultCount {
		limits.MaxResultCount = limits.DefaultResultCount
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &SearchService{
		embedder: embedder,
		index:    index,
		limits:   limits,
		logger:   logger,
	}
}

// ResolveLimit maps 0 to the default result count and rejects negative or
// oversized counts.
func (s *SearchService) ResolveLimit(limit int) (int, error) {
	switch {
	case limit == 0:
		return s.limits.DefaultResultCount, nil
	case limit < 0:
		return 0, domain.NewError(domain.ErrValidation, "search", fmt.Sprintf("result count must be positive, got %d", limit))
	case limit > s.limits.MaxResultCount:
		return 0, domain.NewError(domain.ErrValidation, "search", fmt.Sprintf("result count %d exceeds maximum %d", limit, s.limits.MaxResultCount))
	default:
		return limit, nil
	}
}

func (s *SearchService) Search(ctx context.Context, query string, limit int) ([]domain.Match, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, domain.NewError(domain.ErrValidation, "search", "query must not be empty")
	}
	limit, err := s.ResolveLimit(limit)
	if err != nil {
		return nil, err
	}

	ctx, span := tracer.Start(ctx, "rag.search", trace.WithAttributes(attribute.Int("rag.result_count", limit)))
	defer span.End()

	vector, err := s.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, failSpan(span, wrapStage(domain.ErrRetrieval, "embed query", err))
	}
	if len(vector) == 0 {
		return nil, failSpan(span, domain.WrapError(domain.ErrRetrieval, "embed query", errors.New("empty query embedding")))
	}

	matches, err := s.index.Query(ctx, vector, limit)
	if err != nil {
		return nil, failSpan(span, wrapStage(domain.ErrRetrieval, "query vector index", err))
	}

	if !isDescending(matches) {
		s.logger.Warn("search_results_unsorted", "matches", len(matches))
		matches = slices.Clone(matches)
		slices.SortStableFunc(matches, func(a, b domain.Match) int {
			switch {
			case a.Score > b.Score:
				return -1
			case a.Score < b.Score:
				return 1
			default:
				return 0
			}
		})
	}

	matches = s.applyFloor(matches)
	if len(matches) > limit {
		matches = matches[:limit]
	}
	span.SetAttributes(attribute.Int("rag.matches", len(matches)))
	return matches, nil
}

func (s *SearchService) applyFloor(matches []domain.Match) []domain.Match {
	if s.limits.ScoreFloor <= 0 {
		return matches
	}
	out := make([]domain.Match, 0, len(matches))
	for _, m := range matches {
		if m.Score >= s.limits.ScoreFloor {
			out = append(out, m)
		}
	}
	if dropped := len(matches) - len(out); dropped > 0 {
		s.logger.Debug("search_below_floor_dropped", "dropped", dropped, "floor", s.limits.ScoreFloor)
	}
	return out
}

func isDescending(matches []domain.Match) bool {
	for i := 1; i < len(matches); i++ {
		if matches[i].Score > matches[i-1].Score {
			return false
		}
	}
	return true
}
