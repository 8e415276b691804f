package usecase

import (
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/kirillkom/nhs-clinical-assistant/internal/core/domain"
)

var tracer = otel.Tracer("github.com/kirillkom/nhs-clinical-assistant/rag")

// failSpan records err on span and returns it unchanged.
func failSpan(span trace.Span, err error) error {
	if err == nil {
		return nil
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, string(domain.KindOf(err)))
	return err
}

// wrapStage tags err with kind unless an inner layer already tagged it with a
// pipeline kind, in which case only the operation is prefixed.
func wrapStage(kind error, operation string, err error) error {
	if err == nil {
		return nil
	}
	if domain.HasPipelineKind(err) {
		return fmt.Errorf("%s: %w", operation, err)
	}
	return domain.WrapError(kind, operation, err)
}
