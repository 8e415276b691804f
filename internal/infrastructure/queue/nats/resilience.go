package nats

import (
	"context"
	"errors"

	"github.com/nats-io/nats.go"

	"github.com/kirillkom/nhs-clinical-assistant/internal/core/domain"
	"github.com/kirillkom/nhs-clinical-assistant/internal/infrastructure/resilience"
)

// Connection-level failures: the broker may accept the same transcript later.
var transientPublishErrors = []error{
	nats.ErrNoServers,
	nats.ErrTimeout,
	nats.ErrConnectionClosed,
	nats.ErrConnectionReconnecting,
	nats.ErrDisconnected,
}

// The broker is healthy but refuses this transcript.
var rejectedTranscriptErrors = []error{
	nats.ErrMaxPayload,
	nats.ErrBadSubject,
}

func matchesAny(err error, targets []error) bool {
	for _, target := range targets {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

func classifyPublishError(err error) resilience.ErrorClassification {
	switch {
	case err == nil:
		return resilience.ErrorClassification{}
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return resilience.ErrorClassification{}
	case matchesAny(err, rejectedTranscriptErrors):
		return resilience.ErrorClassification{}
	case resilience.IsCircuitOpen(err), matchesAny(err, transientPublishErrors):
		return resilience.ErrorClassification{Retryable: true, RecordFailure: true}
	default:
		return resilience.ErrorClassification{RecordFailure: true}
	}
}

// publishError tags a failed transcript publish so callers can tell an
// unreachable broker from a transcript the broker will never accept.
func publishError(err error) error {
	switch {
	case err == nil:
		return nil
	case domain.HasPipelineKind(err), domain.IsKind(err, domain.ErrTemporary):
		return err
	case matchesAny(err, rejectedTranscriptErrors):
		return domain.WrapError(domain.ErrValidation, "publish transcript", err)
	case classifyPublishError(err).Retryable:
		return domain.WrapError(domain.ErrTemporary, "publish transcript", err)
	default:
		return err
	}
}
