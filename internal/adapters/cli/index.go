package cli

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

var indexJSON bool

var indexCmd = &cobra.Command{
	Use:   "index [corpus.jsonl]",
	Short: "Load an NHS corpus file into the vector index",
	Long: `Reads a JSONL corpus with one NHS page section per line
({"id","title","url","text"}), splits and embeds each section and upserts
the chunks into the configured vector index namespace.`,
	Args: cobra.ExactArgs(1),
	RunE: runIndex,
}

func init() {
	indexCmd.Flags().BoolVar(&indexJSON, "json", false, "output the index report as JSON")
	rootCmd.AddCommand(indexCmd)
}

func runIndex(cmd *cobra.Command, args []string) error {
	if corpusIndexer == nil {
		return errors.New("corpus indexer not configured")
	}

	report, err := corpusIndexer.IndexCorpus(cmd.Context(), args[0])
	if err != nil {
		return fmt.Errorf("index failed: %w", err)
	}

	if indexJSON {
		data, err := json.MarshalIndent(report, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal report: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(data))
		return nil
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Indexed %d sections as %d chunks into namespace %q", report.Sections, report.Chunks, report.Namespace)
	if report.Skipped > 0 {
		fmt.Fprintf(out, " (%d skipped)", report.Skipped)
	}
	fmt.Fprintln(out)
	return nil
}
