package usecase

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/kirillkom/nhs-clinical-assistant/internal/core/domain"
	"github.com/kirillkom/nhs-clinical-assistant/internal/core/ports"
)

type AnswerSettings struct {
	Temperature float64
	Limits      domain.RetrievalLimits
	Prompt      domain.PromptSettings
	Messages    domain.UserMessages
}

// AnswerUseCase runs one query through search, context assembly and
// generation. It holds no per-query state and is safe for concurrent use.
type AnswerUseCase struct {
	search    *SearchService
	generator ports.Generator
	catalog   ports.ModelCatalog
	settings  AnswerSettings
	logger    *slog.Logger
}

func NewAnswerUseCase(
	search *SearchService,
	generator ports.Generator,
	catalog ports.ModelCatalog,
	settings AnswerSettings,
	logger *slog.Logger,
) *AnswerUseCase {
	if logger == nil {
		logger = slog.Default()
	}
	return &AnswerUseCase{
		search:    search,
		generator: generator,
		catalog:   catalog,
		settings:  settings,
		logger:    logger,
	}
}

type preparedAnswer struct {
	query     string
	model     string
	messages  []domain.ChatMessage
	sources   []domain.Source
	noContext bool
}

func (uc *AnswerUseCase) Answer(ctx context.Context, req domain.AnswerRequest) (*domain.Answer, error) {
	start := time.Now()
	ctx, span := tracer.Start(ctx, "rag.answer", trace.WithAttributes(attribute.String("rag.mode", "blocking")))
	defer span.End()

	prepared, err := uc.prepare(ctx, req)
	if err != nil {
		return uc.failed(span, "blocking", prepared.model, err, start)
	}

	text, err := uc.generate(ctx, prepared)
	if err != nil {
		return uc.failed(span, "blocking", prepared.model, err, start)
	}

	uc.logCompleted("blocking", prepared, start)
	return &domain.Answer{
		Text:      text,
		Sources:   prepared.sources,
		Model:     prepared.model,
		State:     domain.StateDone,
		NoContext: prepared.noContext,
	}, nil
}

// Stream prepares the answer and returns it with sources resolved. Generation
// starts when the caller ranges over the stream's fragments.
func (uc *AnswerUseCase) Stream(ctx context.Context, req domain.AnswerRequest) (*domain.AnswerStream, error) {
	start := time.Now()
	ctx, span := tracer.Start(ctx, "rag.answer", trace.WithAttributes(attribute.String("rag.mode", "stream")))

	prepared, err := uc.prepare(ctx, req)
	if err != nil {
		_, err = uc.failed(span, "stream", prepared.model, err, start)
		span.End()
		return nil, err
	}

	return domain.NewAnswerStream(
		prepared.model,
		prepared.sources,
		prepared.noContext,
		uc.fragments(ctx, span, prepared, start),
		uc.settings.Messages,
	), nil
}

func (uc *AnswerUseCase) prepare(ctx context.Context, req domain.AnswerRequest) (preparedAnswer, error) {
	var prepared preparedAnswer

	prepared.query = strings.TrimSpace(req.Query)
	if prepared.query == "" {
		return prepared, domain.NewError(domain.ErrValidation, "answer", "query must not be empty")
	}
	limit, err := uc.search.ResolveLimit(req.ResultCount)
	if err != nil {
		return prepared, err
	}
	model, err := uc.catalog.ResolveModel(req.Model)
	if err != nil {
		return prepared, err
	}
	prepared.model = model
	if err := uc.generator.Ready(); err != nil {
		return prepared, err
	}

	matches, err := uc.search.Search(ctx, prepared.query, limit)
	if err != nil {
		return prepared, err
	}

	assembled := AssembleContext(matches, uc.settings.Limits.MaxContextChars, uc.settings.Prompt.NotFoundMessage)
	prepared.messages = buildMessages(uc.settings.Prompt, assembled, prepared.query)
	prepared.sources = SourcesFromReferences(assembled.References)
	prepared.noContext = assembled.Empty
	return prepared, nil
}

func (uc *AnswerUseCase) generate(ctx context.Context, prepared preparedAnswer) (string, error) {
	ctx, span := tracer.Start(ctx, "rag.generate", trace.WithAttributes(attribute.String("rag.model", prepared.model)))
	defer span.End()

	text, err := uc.generator.Generate(ctx, uc.generationRequest(prepared))
	if err != nil {
		return "", failSpan(span, wrapStage(domain.ErrGeneration, "generate answer", err))
	}
	if isBlank(text) {
		return "", failSpan(span, domain.NewError(domain.ErrGeneration, "generate answer", "empty response from model"))
	}
	return text, nil
}

// fragments ends answerSpan once the stream reaches a final state.
func (uc *AnswerUseCase) fragments(ctx context.Context, answerSpan trace.Span, prepared preparedAnswer, start time.Time) func(yield func(string, error) bool) {
	return func(yield func(string, error) bool) {
		defer answerSpan.End()
		genCtx, span := tracer.Start(ctx, "rag.generate", trace.WithAttributes(
			attribute.String("rag.model", prepared.model),
			attribute.String("rag.mode", "stream"),
		))
		defer span.End()

		produced, substantive := 0, false
		for fragment, err := range uc.generator.Stream(genCtx, uc.generationRequest(prepared)) {
			if err != nil {
				err = failSpan(span, wrapStage(domain.ErrGeneration, "stream answer", err))
				failSpan(answerSpan, err)
				uc.logFailed("stream", prepared.model, err, start)
				yield("", err)
				return
			}
			if fragment == "" {
				continue
			}
			produced++
			substantive = substantive || !isBlank(fragment)
			if !yield(fragment, nil) {
				uc.logger.Info("rag_answer_canceled", "model", prepared.model, "fragments", produced)
				return
			}
		}
		if !substantive {
			err := failSpan(span, domain.NewError(domain.ErrGeneration, "stream answer", "empty response from model"))
			failSpan(answerSpan, err)
			uc.logFailed("stream", prepared.model, err, start)
			yield("", err)
			return
		}
		uc.logCompleted("stream", prepared, start)
	}
}

func isBlank(text string) bool {
	return strings.TrimSpace(text) == ""
}

func (uc *AnswerUseCase) generationRequest(prepared preparedAnswer) domain.GenerationRequest {
	return domain.GenerationRequest{
		Model:       prepared.model,
		Messages:    prepared.messages,
		Temperature: uc.settings.Temperature,
	}
}

func (uc *AnswerUseCase) failed(span trace.Span, mode, model string, err error, start time.Time) (*domain.Answer, error) {
	failSpan(span, err)
	uc.logFailed(mode, model, err, start)

	state := domain.StateFailed
	if errors.Is(err, context.Canceled) {
		state = domain.StateCanceled
	}
	return &domain.Answer{
		Sources: []domain.Source{},
		Model:   model,
		State:   state,
		Failure: domain.FailureFrom(err, uc.settings.Messages),
	}, err
}

func (uc *AnswerUseCase) logCompleted(mode string, prepared preparedAnswer, start time.Time) {
	uc.logger.Info("rag_answer_completed",
		"mode", mode,
		"model", prepared.model,
		"sources", len(prepared.sources),
		"no_context", prepared.noContext,
		"duration_ms", time.Since(start).Milliseconds(),
	)
}

func (uc *AnswerUseCase) logFailed(mode, model string, err error, start time.Time) {
	level := slog.LevelError
	if domain.IsKind(err, domain.ErrValidation) {
		level = slog.LevelInfo
	}
	uc.logger.Log(context.Background(), level, "rag_answer_failed",
		"mode", mode,
		"model", model,
		"kind", string(domain.KindOf(err)),
		"error", err,
		"duration_ms", time.Since(start).Milliseconds(),
	)
}
