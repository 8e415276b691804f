package mcpadapter

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/kirillkom/nhs-clinical-assistant/internal/core/domain"
	"github.com/kirillkom/nhs-clinical-assistant/internal/core/ports"
)

const (
	serverName = "nhs-clinical-assistant"
	ToolName   = "ask_nhs_health_question"
)

// Server exposes the answer service as a single MCP tool.
type Server struct {
	answers  ports.AnswerService
	catalog  ports.ModelCatalog
	messages domain.UserMessages
	mcp      *server.MCPServer
}

func NewServer(answers ports.AnswerService, catalog ports.ModelCatalog, messages domain.UserMessages, version string) (*Server, error) {
	if answers == nil {
		return nil, errors.New("mcp: answer service is required")
	}
	if catalog == nil {
		return nil, errors.New("mcp: model catalog is required")
	}

	s := &Server{
		answers:  answers,
		catalog:  catalog,
		messages: messages,
		mcp:      server.NewMCPServer(serverName, version, server.WithToolCapabilities(false)),
	}
	s.mcp.AddTool(s.askTool(), s.handleAsk)
	return s, nil
}

// Run serves the tool over newline-delimited JSON-RPC until ctx is done or
// in is closed.
func (s *Server) Run(ctx context.Context, in io.Reader, out io.Writer) error {
	return server.NewStdioServer(s.mcp).Listen(ctx, in, out)
}

func (s *Server) askTool() mcp.Tool {
	return mcp.NewTool(ToolName,
		mcp.WithDescription("Answer a health question using only NHS website content. "+
			"Returns the answer with numbered citations and the NHS pages it was based on. "+
			"This is general information, not a diagnosis."),
		mcp.WithString("query",
			mcp.Required(),
			mcp.Description("The health question in plain language"),
		),
		mcp.WithString("model",
			mcp.Description("Generation model, one of: "+strings.Join(s.catalog.Models(), ", ")),
			mcp.Enum(s.catalog.Models()...),
		),
		mcp.WithNumber("result_count",
			mcp.Description("How many NHS passages to retrieve (0 uses the default)"),
		),
	)
}

func (s *Server) handleAsk(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := req.RequireString("query")
	if err != nil {
		failure := domain.FailureFrom(domain.WrapError(domain.ErrValidation, ToolName, err), s.messages)
		return mcp.NewToolResultError(formatFailure(failure)), nil
	}

	answer, err := s.answers.Answer(ctx, domain.AnswerRequest{
		Query:       query,
		Model:       req.GetString("model", ""),
		ResultCount: req.GetInt("result_count", 0),
	})
	if err != nil {
		failure := domain.FailureFrom(err, s.messages)
		if answer != nil && answer.Failure != nil {
			failure = answer.Failure
		}
		return mcp.NewToolResultError(formatFailure(failure)), nil
	}

	return mcp.NewToolResultText(formatAnswer(answer, s.messages)), nil
}

func formatAnswer(answer *domain.Answer, messages domain.UserMessages) string {
	var b strings.Builder
	b.WriteString(strings.TrimSpace(answer.Text))

	if len(answer.Sources) == 0 {
		if answer.NoContext && messages.NotFound != "" {
			b.WriteString("\n\n")
			b.WriteString(messages.NotFound)
		}
		return b.String()
	}

	b.WriteString("\n\nSources:\n")
	for i, src := range answer.Sources {
		fmt.Fprintf(&b, "%d. %s - %s\n", i+1, src.Title, src.URL)
	}
	return strings.TrimRight(b.String(), "\n")
}

func formatFailure(failure *domain.Failure) string {
	if failure == nil {
		return string(domain.KindGeneration)
	}
	return fmt.Sprintf("%s: %s", failure.Kind, failure.Message)
}
