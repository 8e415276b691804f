package openaicompat

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"iter"
	"strings"

	"github.com/kirillkom/nhs-clinical-assistant/internal/core/domain"
)

const doneSentinel = "[DONE]"

type streamChunk struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
		FinishReason *string `json:"finish_reason"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// readEvents yields content deltas from a server-sent events body. The stream
// is complete after a [DONE] event or a chunk carrying a finish reason; EOF
// before either is an incomplete stream.
func readEvents(body io.Reader) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		reader := bufio.NewReader(body)
		finished := false
		produced := 0

		for {
			line, err := reader.ReadString('\n')
			if line = strings.TrimSpace(line); line != "" {
				data, ok := strings.CutPrefix(line, "data:")
				if ok {
					data = strings.TrimSpace(data)
					if data == doneSentinel {
						finished = true
						break
					}
					fragment, done, parseErr := parseChunk(data)
					if parseErr != nil {
						yield("", parseErr)
						return
					}
					if fragment != "" {
						if !isBlank(fragment) {
							produced++
						}
						if !yield(fragment, nil) {
							return
						}
					}
					if done {
						finished = true
					}
				}
			}
			if err != nil {
				if errors.Is(err, io.EOF) {
					break
				}
				yield("", fmt.Errorf("read stream: %w", err))
				return
			}
		}

		switch {
		case !finished:
			yield("", domain.NewError(domain.ErrGeneration, "stream completion", "stream ended before completion"))
		case produced == 0:
			yield("", domain.NewError(domain.ErrGeneration, "stream completion", "empty response from model"))
		}
	}
}

func parseChunk(data string) (string, bool, error) {
	var chunk streamChunk
	if err := json.Unmarshal([]byte(data), &chunk); err != nil {
		return "", false, domain.WrapError(domain.ErrGeneration, "decode stream chunk", err)
	}
	if chunk.Error != nil {
		return "", false, domain.NewError(domain.ErrGeneration, "stream completion", chunk.Error.Message)
	}

	var (
		b    strings.Builder
		done bool
	)
	for _, choice := range chunk.Choices {
		b.WriteString(choice.Delta.Content)
		if choice.FinishReason != nil && *choice.FinishReason != "" {
			done = true
		}
	}
	return b.String(), done, nil
}

// isBlank treats whitespace-only output as no output in both modes.
func isBlank(text string) bool {
	return strings.TrimSpace(text) == ""
}
