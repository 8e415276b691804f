package domain

import (
	"iter"
	"sync"
	"sync/atomic"
)

// AnswerState is the lifecycle position of one query.
type AnswerState string

const (
	StateIdle       AnswerState = "idle"
	StateSearching  AnswerState = "searching"
	StateGenerating AnswerState = "generating"
	StateDone       AnswerState = "done"
	StateFailed     AnswerState = "failed"
	// StateCanceled is reached when the caller stops consuming a stream.
	StateCanceled AnswerState = "canceled"
)

type AnswerRequest struct {
	Query       string `json:"query"`
	Model       string `json:"model"`
	ResultCount int    `json:"result_count"`
}

type Answer struct {
	Text      string      `json:"answer"`
	Sources   []Source    `json:"sources"`
	Model     string      `json:"model"`
	State     AnswerState `json:"state"`
	NoContext bool        `json:"no_context"`
	Failure   *Failure    `json:"error,omitempty"`
}

const (
	RoleSystem    = "system"
	RoleAssistant = "assistant"
	RoleUser      = "user"
)

type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type GenerationRequest struct {
	Model       string
	Messages    []ChatMessage
	Temperature float64
}

// AnswerStream is a live answer. Sources are known before the first fragment.
// Fragments may be ranged over once; the stream belongs to a single consumer.
type AnswerStream struct {
	Model     string
	Sources   []Source
	NoContext bool

	fragments iter.Seq2[string, error]
	messages  UserMessages
	consumed  atomic.Bool

	mu      sync.Mutex
	state   AnswerState
	failure *Failure
}

func NewAnswerStream(model string, sources []Source, noContext bool, fragments iter.Seq2[string, error], messages UserMessages) *AnswerStream {
	if sources == nil {
		sources = []Source{}
	}
	return &AnswerStream{
		Model:     model,
		Sources:   sources,
		NoContext: noContext,
		fragments: fragments,
		messages:  messages,
		state:     StateGenerating,
	}
}

// Fragments yields answer text in order. A failure is yielded once as a
// terminal ("", err) pair; normal completion simply ends the sequence.
func (s *AnswerStream) Fragments() iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		if !s.consumed.CompareAndSwap(false, true) {
			yield("", NewError(ErrValidation, "stream answer", "answer stream already consumed"))
			return
		}
		for fragment, err := range s.fragments {
			if err != nil {
				s.finish(StateFailed, FailureFrom(err, s.messages))
				yield("", err)
				return
			}
			if !yield(fragment, nil) {
				s.finish(StateCanceled, nil)
				return
			}
		}
		s.finish(StateDone, nil)
	}
}

func (s *AnswerStream) State() AnswerState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *AnswerStream) Failure() *Failure {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.failure
}

func (s *AnswerStream) finish(state AnswerState, failure *Failure) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = state
	s.failure = failure
}
