package domain

import (
	"errors"
	"fmt"
)

var (
	ErrValidation    = errors.New("validation error")
	ErrRetrieval     = errors.New("retrieval error")
	ErrGeneration    = errors.New("generation error")
	ErrConfiguration = errors.New("configuration error")

	ErrTemporary    = errors.New("temporary failure")
	ErrUnauthorized = errors.New("unauthorized")
	ErrNotFound     = errors.New("not found")
)

// ErrorKind is the tag carried by a failed answer.
type ErrorKind string

const (
	KindNone          ErrorKind = ""
	KindValidation    ErrorKind = "ValidationError"
	KindRetrieval     ErrorKind = "RetrievalError"
	KindGeneration    ErrorKind = "GenerationError"
	KindConfiguration ErrorKind = "ConfigurationError"
)

// WrapError preserves typed semantic errors with operation context.
func WrapError(kind error, operation string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", operation, kind, err)
}

// NewError builds a typed error without an underlying cause.
func NewError(kind error, operation, message string) error {
	return fmt.Errorf("%s: %w: %s", operation, kind, message)
}

func IsKind(err error, kind error) bool {
	return errors.Is(err, kind)
}

// KindOf resolves the most specific pipeline kind of err. Validation and
// configuration win over retrieval/generation so that a missing credential
// surfacing through a provider call keeps its configuration tag.
func KindOf(err error) ErrorKind {
	switch {
	case err == nil:
		return KindNone
	case errors.Is(err, ErrValidation):
		return KindValidation
	case errors.Is(err, ErrConfiguration):
		return KindConfiguration
	case errors.Is(err, ErrRetrieval):
		return KindRetrieval
	case errors.Is(err, ErrGeneration):
		return KindGeneration
	default:
		return KindNone
	}
}

// HasPipelineKind reports whether err already carries one of the four pipeline kinds.
func HasPipelineKind(err error) bool {
	return KindOf(err) != KindNone
}

// Failure is the caller-facing tagged failure of one answer.
type Failure struct {
	Kind    ErrorKind `json:"kind"`
	Message string    `json:"message"`
	Detail  string    `json:"-"`
}

// UserMessages holds the non-technical text shown for each failure kind.
type UserMessages struct {
	NotFound      string `yaml:"not_found"`
	Validation    string `yaml:"validation"`
	Retrieval     string `yaml:"retrieval"`
	Generation    string `yaml:"generation"`
	Configuration string `yaml:"configuration"`
}

func (m UserMessages) For(kind ErrorKind) string {
	switch kind {
	case KindValidation:
		return m.Validation
	case KindRetrieval:
		return m.Retrieval
	case KindGeneration:
		return m.Generation
	case KindConfiguration:
		return m.Configuration
	default:
		return m.Generation
	}
}

// FailureFrom converts err into a tagged failure. Errors without a pipeline
// kind are reported as generation failures; the orchestrator wraps every
// error it returns, so this only matters for adapters.
func FailureFrom(err error, messages UserMessages) *Failure {
	if err == nil {
		return nil
	}
	kind := KindOf(err)
	if kind == KindNone {
		kind = KindGeneration
	}
	msg := messages.For(kind)
	if msg == "" {
		msg = err.Error()
	}
	return &Failure{
		Kind:    kind,
		Message: msg,
		Detail:  err.Error(),
	}
}
