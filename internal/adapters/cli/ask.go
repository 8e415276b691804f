package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/kirillkom/nhs-clinical-assistant/internal/core/domain"
)

var (
	askModel       string
	askResultCount int
	askNoStream    bool
	askJSON        bool
)

var (
	headingColor = color.New(color.FgCyan, color.Bold)
	noticeColor  = color.New(color.FgYellow)
	linkColor    = color.New(color.FgBlue)
)

var askCmd = &cobra.Command{
	Use:   "ask [query]",
	Short: "Ask a health question",
	Long: `Searches NHS content for passages relevant to the question and answers
strictly from them. The answer is streamed as it is generated, followed by
the list of NHS pages it cites.`,
	Args: cobra.ExactArgs(1),
	RunE: runAsk,
}

func init() {
	askCmd.Flags().StringVarP(&askModel, "model", "m", "", "generation model (default: catalog default)")
	askCmd.Flags().IntVarP(&askResultCount, "result-count", "n", 0, "number of NHS passages to retrieve (0 = default)")
	askCmd.Flags().BoolVar(&askNoStream, "no-stream", false, "wait for the complete answer instead of streaming")
	askCmd.Flags().BoolVar(&askJSON, "json", false, "output the answer as JSON")
	rootCmd.AddCommand(askCmd)
}

func runAsk(cmd *cobra.Command, args []string) error {
	if answerService == nil {
		return errors.New("answer service not configured")
	}

	req := domain.AnswerRequest{
		Query:       args[0],
		Model:       askModel,
		ResultCount: askResultCount,
	}
	if askJSON || askNoStream {
		return runAskBlocking(cmd, req)
	}
	return runAskStream(cmd, req)
}

func runAskBlocking(cmd *cobra.Command, req domain.AnswerRequest) error {
	answer, err := answerService.Answer(cmd.Context(), req)
	if askJSON && answer != nil {
		data, jsonErr := json.MarshalIndent(answer, "", "  ")
		if jsonErr != nil {
			return fmt.Errorf("failed to marshal answer: %w", jsonErr)
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(data))
	}
	if err != nil {
		return answerError(answer, err)
	}
	if askJSON {
		return nil
	}

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, strings.TrimSpace(answer.Text))
	printSources(out, answer.Sources, answer.NoContext)
	return nil
}

func runAskStream(cmd *cobra.Command, req domain.AnswerRequest) error {
	stream, err := answerService.Stream(cmd.Context(), req)
	if err != nil {
		return answerError(nil, err)
	}

	out := cmd.OutOrStdout()
	for fragment, err := range stream.Fragments() {
		if err != nil {
			fmt.Fprintln(out)
			return answerError(&domain.Answer{Failure: stream.Failure()}, err)
		}
		fmt.Fprint(out, fragment)
	}
	fmt.Fprintln(out)

	printSources(out, stream.Sources, stream.NoContext)
	return nil
}

func printSources(out io.Writer, sources []domain.Source, noContext bool) {
	if len(sources) == 0 {
		if noContext {
			notice := userMessages.NotFound
			if notice == "" {
				notice = "No relevant NHS information was found for this question."
			}
			fmt.Fprintln(out)
			noticeColor.Fprintln(out, notice)
		}
		return
	}

	fmt.Fprintln(out)
	headingColor.Fprintln(out, "Sources:")
	for i, src := range sources {
		fmt.Fprintf(out, "  [%d] %s — ", i+1, src.Title)
		linkColor.Fprintln(out, src.URL)
	}
}

// answerError turns a failed answer into the error reported by the command.
// The user-facing message wins over the technical detail.
func answerError(answer *domain.Answer, err error) error {
	failure := domain.FailureFrom(err, userMessages)
	if answer != nil && answer.Failure != nil {
		failure = answer.Failure
	}
	return fmt.Errorf("%s: %s", failure.Kind, failure.Message)
}
