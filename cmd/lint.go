package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var lintCmd = &cobra.Command{
	Use:     "lint",
	Aliases: []string{"check"},
	Short:   "Check templates and drafts for errors",
	Long: `Parse every template and draft under the configured scan paths and
report diagnostics with their positions. Exits non-zero if any errors are
found.`,
	RunE: runLint,
}

func init() {
	rootCmd.AddCommand(lintCmd)
}

func runLint(cmd *cobra.Command, args []string) error {
	p, err := loadPipeline(cmd.Context())
	if err != nil {
		return err
	}

	diagnostics := p.collector.TemplateErrors()

	// Drafts that parse but carry incomplete metadata are worth flagging
	// too, just not fatally.
	for _, info := range p.drafts.All() {
		for _, problem := range info.Validate() {
			fmt.Fprintf(cmd.OutOrStdout(), "warning: draft %s: %v\n", info.Name, problem)
		}
	}

	if len(diagnostics) == 0 {
		fmt.Fprintf(cmd.OutOrStdout(), "ok: %d templates, %d drafts\n",
			p.registry.Count(), p.drafts.Count())
		return nil
	}

	for _, te := range diagnostics {
		fmt.Fprintln(cmd.OutOrStdout(), te.Error())
	}
	return fmt.Errorf("%d problem(s) found", len(diagnostics))
}
