package cli

import (
	"errors"
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var modelsCmd = &cobra.Command{
	Use:   "models",
	Short: "List the available generation models",
	Args:  cobra.NoArgs,
	RunE:  runModels,
}

func init() {
	rootCmd.AddCommand(modelsCmd)
}

func runModels(cmd *cobra.Command, _ []string) error {
	if modelCatalog == nil {
		return errors.New("model catalog not configured")
	}

	out := cmd.OutOrStdout()
	defaultModel := modelCatalog.DefaultModel()
	for _, id := range modelCatalog.Models() {
		if id == defaultModel {
			fmt.Fprintf(out, "%s %s\n", id, color.GreenString("(default)"))
			continue
		}
		fmt.Fprintln(out, id)
	}
	return nil
}
