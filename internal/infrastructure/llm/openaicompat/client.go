package openaicompat

import (
	"context"
	"fmt"
	"iter"
	"net/http"
	"strings"
	"time"

	"github.com/kirillkom/nhs-clinical-assistant/internal/core/domain"
	"github.com/kirillkom/nhs-clinical-assistant/internal/infrastructure/httpapi"
	"github.com/kirillkom/nhs-clinical-assistant/internal/infrastructure/resilience"
)

type Config struct {
	APIKey  string
	BaseURL string
	Timeout time.Duration
}

// Generator talks to an OpenAI-compatible chat completions endpoint, such as
// the Gemini one.
type Generator struct {
	apiKey string
	client *httpapi.Client
}

func New(cfg Config, executor *resilience.Executor) *Generator {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://generativelanguage.googleapis.com/v1beta/openai"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 120 * time.Second
	}
	auth := ""
	if strings.TrimSpace(cfg.APIKey) != "" {
		auth = "Bearer " + cfg.APIKey
	}
	return &Generator{
		apiKey: cfg.APIKey,
		client: httpapi.New("generation", cfg.BaseURL, cfg.Timeout,
			httpapi.WithHeader("Authorization", auth),
			httpapi.WithExecutor(executor),
		),
	}
}

type chatRequest struct {
	Model       string               `json:"model"`
	Messages    []domain.ChatMessage `json:"messages"`
	Temperature float64              `json:"temperature"`
	Stream      bool                 `json:"stream"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
}

func (g *Generator) Generate(ctx context.Context, req domain.GenerationRequest) (string, error) {
	if err := g.check(req, "chat completion"); err != nil {
		return "", err
	}

	var resp chatResponse
	err := g.client.PostJSON(ctx, "/chat/completions", chatRequest{
		Model:       req.Model,
		Messages:    req.Messages,
		Temperature: req.Temperature,
	}, &resp, "chat completion")
	if err != nil {
		return "", wrapError("chat completion", err)
	}
	if len(resp.Choices) == 0 {
		return "", domain.NewError(domain.ErrGeneration, "chat completion", "response has no choices")
	}
	text := resp.Choices[0].Message.Content
	if isBlank(text) {
		return "", domain.NewError(domain.ErrGeneration, "chat completion",
			fmt.Sprintf("empty response (finish_reason=%q)", resp.Choices[0].FinishReason))
	}
	return text, nil
}

// Stream requests a streamed completion when the sequence is first ranged
// over. Breaking out of the loop closes the response body.
func (g *Generator) Stream(ctx context.Context, req domain.GenerationRequest) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		if err := g.check(req, "stream completion"); err != nil {
			yield("", err)
			return
		}

		resp, err := g.client.Open(ctx, http.MethodPost, "/chat/completions", chatRequest{
			Model:       req.Model,
			Messages:    req.Messages,
			Temperature: req.Temperature,
			Stream:      true,
		}, "stream completion")
		if err != nil {
			yield("", wrapError("stream completion", err))
			return
		}
		defer resp.Body.Close()

		for fragment, err := range readEvents(resp.Body) {
			if err != nil {
				if ctx.Err() != nil {
					err = fmt.Errorf("%w: %w", ctx.Err(), err)
				}
				yield("", wrapError("stream completion", err))
				return
			}
			if !yield(fragment, nil) {
				return
			}
		}
	}
}

// Ready reports whether completions can be requested at all.
func (g *Generator) Ready() error {
	if strings.TrimSpace(g.apiKey) == "" {
		return domain.NewError(domain.ErrConfiguration, "generation", "GEMINI_API_KEY is not set")
	}
	return nil
}

func (g *Generator) check(req domain.GenerationRequest, operation string) error {
	if err := g.Ready(); err != nil {
		return err
	}
	if strings.TrimSpace(req.Model) == "" {
		return domain.NewError(domain.ErrConfiguration, operation, "model is not set")
	}
	if len(req.Messages) == 0 {
		return domain.NewError(domain.ErrValidation, operation, "no messages to send")
	}
	return nil
}

func wrapError(operation string, err error) error {
	if domain.HasPipelineKind(err) {
		return err
	}
	if kind := httpapi.StatusKind(err); kind != nil {
		return domain.WrapError(kind, operation, err)
	}
	return domain.WrapError(domain.ErrGeneration, operation, err)
}
