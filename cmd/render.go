package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/osierhq/osier/internal/render"
)

var renderCmd = &cobra.Command{
	Use:     "render <template>",
	Aliases: []string{"r"},
	Short:   "Render a template to stdout",
	Long: `Render a single template and print the result. With --draft, the
template is rendered against that draft's front-matter and body.`,
	Args: cobra.ExactArgs(1),
	RunE: runRender,
}

func init() {
	renderCmd.Flags().StringP("draft", "d", "", "render against this draft's variables")
	renderCmd.Flags().StringP("output", "o", "", "write output to file instead of stdout")
	rootCmd.AddCommand(renderCmd)
}

func runRender(cmd *cobra.Command, args []string) error {
	p, err := loadPipeline(cmd.Context())
	if err != nil {
		return err
	}

	name := args[0]
	info, ok := p.registry.Get(name)
	if !ok {
		if errs := p.collector.ErrorsForTemplate(name); len(errs) > 0 {
			return &errs[0]
		}
		return fmt.Errorf("template %q not found", name)
	}

	vars := map[string]any{}
	if draftName, _ := cmd.Flags().GetString("draft"); draftName != "" {
		d, ok := p.drafts.Get(draftName)
		if !ok {
			return fmt.Errorf("draft %q not found", draftName)
		}
		vars = d.Context()
	}

	engine := render.NewEngine(render.EngineConfig{
		Loader:            p.registry.Loader(),
		Strict:            p.cfg.Render.Strict,
		DisableAutoescape: !p.cfg.Render.Autoescape,
		MaxIncludeDepth:   p.cfg.Render.MaxIncludeDepth,
	})

	out, err := engine.Render(info.Template, vars)
	if err != nil {
		return err
	}

	if path, _ := cmd.Flags().GetString("output"); path != "" {
		return os.WriteFile(path, []byte(out), 0o644)
	}
	fmt.Fprint(cmd.OutOrStdout(), out)
	return nil
}
