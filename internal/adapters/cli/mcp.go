package cli

import (
	"github.com/spf13/cobra"

	mcpadapter "github.com/kirillkom/nhs-clinical-assistant/internal/adapters/mcp"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve the NHS question tool over MCP stdio",
	Long: `Starts a Model Context Protocol server on stdin/stdout exposing the
ask_nhs_health_question tool to MCP-compatible assistants.

Example client configuration:
  {
    "mcpServers": {
      "nhsrag": {
        "command": "/path/to/nhsrag",
        "args": ["mcp"]
      }
    }
  }`,
	Args: cobra.NoArgs,
	RunE: runMCP,
}

func init() {
	rootCmd.AddCommand(mcpCmd)
}

func runMCP(cmd *cobra.Command, _ []string) error {
	server, err := mcpadapter.NewServer(answerService, modelCatalog, userMessages, version)
	if err != nil {
		return err
	}
	return server.Run(cmd.Context(), cmd.InOrStdin(), cmd.OutOrStdout())
}
