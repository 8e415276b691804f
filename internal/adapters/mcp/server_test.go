package mcpadapter

import (
	"context"
	"errors"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kirillkom/nhs-clinical-assistant/internal/config"
	"github.com/kirillkom/nhs-clinical-assistant/internal/core/domain"
)

type mockAnswerService struct {
	answer *domain.Answer
	err    error
	last   domain.AnswerRequest
}

func (m *mockAnswerService) Answer(_ context.Context, req domain.AnswerRequest) (*domain.Answer, error) {
	m.last = req
	if m.err != nil {
		return &domain.Answer{
			Sources: []domain.Source{},
			State:   domain.StateFailed,
			Failure: domain.FailureFrom(m.err, domain.UserMessages{Retrieval: "NHS content is unavailable."}),
		}, m.err
	}
	return m.answer, nil
}

func (m *mockAnswerService) Stream(context.Context, domain.AnswerRequest) (*domain.AnswerStream, error) {
	return nil, errors.New("not used")
}

func testCatalog() config.ModelCatalog {
	return config.Config{
		Models:  []string{"gemini-2.5-flash", "gemini-2.5-pro"},
		ModelID: "gemini-2.5-flash",
	}.Catalog()
}

func callRequest(args map[string]any) mcp.CallToolRequest {
	var req mcp.CallToolRequest
	req.Params.Name = ToolName
	req.Params.Arguments = args
	return req
}

func resultText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	require.NotNil(t, result)
	require.NotEmpty(t, result.Content)
	text, ok := result.Content[0].(mcp.TextContent)
	require.True(t, ok, "expected text content, got %T", result.Content[0])
	return text.Text
}

func TestNewServer_RequiresServices(t *testing.T) {
	_, err := NewServer(nil, testCatalog(), domain.UserMessages{}, "test")
	assert.Error(t, err)

	_, err = NewServer(&mockAnswerService{}, nil, domain.UserMessages{}, "test")
	assert.Error(t, err)
}

func TestServer_handleAsk(t *testing.T) {
	ctx := context.Background()

	t.Run("returns answer with sources", func(t *testing.T) {
		answers := &mockAnswerService{answer: &domain.Answer{
			Text: "Symptoms include inattentiveness [1].",
			Sources: []domain.Source{{
				Title: "ADHD in adults - Symptoms",
				URL:   "https://www.nhs.uk/conditions/adhd-adults/symptoms/",
			}},
			Model: "gemini-2.5-pro",
			State: domain.StateDone,
		}}
		server, err := NewServer(answers, testCatalog(), domain.UserMessages{}, "test")
		require.NoError(t, err)

		result, err := server.handleAsk(ctx, callRequest(map[string]any{
			"query":        "ADHD symptoms in adults",
			"model":        "gemini-2.5-pro",
			"result_count": 3,
		}))

		require.NoError(t, err)
		assert.False(t, result.IsError)
		text := resultText(t, result)
		assert.Contains(t, text, "Symptoms include inattentiveness [1].")
		assert.Contains(t, text, "1. ADHD in adults - Symptoms - https://www.nhs.uk/conditions/adhd-adults/symptoms/")
		assert.Equal(t, "gemini-2.5-pro", answers.last.Model)
		assert.Equal(t, 3, answers.last.ResultCount)
	})

	t.Run("no context adds notice", func(t *testing.T) {
		answers := &mockAnswerService{answer: &domain.Answer{
			Text:      "I could not find this on the NHS website.",
			Sources:   []domain.Source{},
			State:     domain.StateDone,
			NoContext: true,
		}}
		server, err := NewServer(answers, testCatalog(), domain.UserMessages{NotFound: "No relevant NHS information was found."}, "test")
		require.NoError(t, err)

		result, err := server.handleAsk(ctx, callRequest(map[string]any{"query": "quantum flu"}))

		require.NoError(t, err)
		text := resultText(t, result)
		assert.Contains(t, text, "No relevant NHS information was found.")
		assert.NotContains(t, text, "Sources:")
	})

	t.Run("missing query is a validation tool error", func(t *testing.T) {
		answers := &mockAnswerService{}
		server, err := NewServer(answers, testCatalog(), domain.UserMessages{}, "test")
		require.NoError(t, err)

		result, err := server.handleAsk(ctx, callRequest(map[string]any{}))

		require.NoError(t, err)
		assert.True(t, result.IsError)
		assert.Contains(t, resultText(t, result), "ValidationError")
		assert.Empty(t, answers.last.Query)
	})

	t.Run("pipeline failure carries kind", func(t *testing.T) {
		answers := &mockAnswerService{err: domain.WrapError(domain.ErrRetrieval, "query vector index", errors.New("503"))}
		server, err := NewServer(answers, testCatalog(), domain.UserMessages{}, "test")
		require.NoError(t, err)

		result, err := server.handleAsk(ctx, callRequest(map[string]any{"query": "asthma"}))

		require.NoError(t, err)
		assert.True(t, result.IsError)
		assert.Equal(t, "RetrievalError: NHS content is unavailable.", resultText(t, result))
	})
}
