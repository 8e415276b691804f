package cli

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/kirillkom/nhs-clinical-assistant/internal/core/domain"
	"github.com/kirillkom/nhs-clinical-assistant/internal/core/ports"
)

// Services are the core services the commands drive.
type Services struct {
	Answers  ports.AnswerService
	Catalog  ports.ModelCatalog
	Indexer  ports.CorpusIndexer
	Messages domain.UserMessages
	Version  string
}

var (
	answerService ports.AnswerService
	modelCatalog  ports.ModelCatalog
	corpusIndexer ports.CorpusIndexer
	userMessages  domain.UserMessages
	version       = "dev"
)

var rootCmd = &cobra.Command{
	Use:   "nhsrag",
	Short: "Ask health questions answered from NHS content",
	Long: `nhsrag answers health questions using only content from the NHS website.
Every answer cites the NHS pages it was built from. It gives general
information and is not a substitute for professional medical advice.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// SetServices installs the services used by every command.
func SetServices(s Services) {
	answerService = s.Answers
	modelCatalog = s.Catalog
	corpusIndexer = s.Indexer
	userMessages = s.Messages
	if s.Version != "" {
		version = s.Version
	}
}

func Execute(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}
