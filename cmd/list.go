package cmd

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var listCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"l"},
	Short:   "List discovered templates and drafts",
	RunE:    runList,
}

func init() {
	listCmd.Flags().Bool("drafts", false, "list drafts instead of templates")
	listCmd.Flags().Bool("json", false, "output as JSON")
	rootCmd.AddCommand(listCmd)
}

func runList(cmd *cobra.Command, args []string) error {
	p, err := loadPipeline(cmd.Context())
	if err != nil {
		return err
	}

	asJSON, _ := cmd.Flags().GetBool("json")
	showDrafts, _ := cmd.Flags().GetBool("drafts")

	if showDrafts {
		infos := p.drafts.All()
		if asJSON {
			type entry struct {
				Name       string   `json:"name"`
				Title      string   `json:"title"`
				Date       string   `json:"date"`
				Categories []string `json:"categories,omitempty"`
				Slug       string   `json:"slug"`
			}
			entries := make([]entry, 0, len(infos))
			for _, info := range infos {
				entries = append(entries, entry{
					Name:       info.Name,
					Title:      info.Meta.Title,
					Date:       info.Meta.Date.Format("2006-01-02"),
					Categories: info.Meta.Categories,
					Slug:       info.Slug(),
				})
			}
			return json.NewEncoder(cmd.OutOrStdout()).Encode(entries)
		}
		for _, info := range infos {
			line := fmt.Sprintf("%s\t%s\t%s", info.Name, info.Meta.Title, info.Meta.Date.Format("2006-01-02"))
			if len(info.Meta.Categories) > 0 {
				line += "\t[" + strings.Join(info.Meta.Categories, ", ") + "]"
			}
			fmt.Fprintln(cmd.OutOrStdout(), line)
		}
		return nil
	}

	if asJSON {
		type entry struct {
			Name     string `json:"name"`
			FilePath string `json:"file_path"`
			Hash     string `json:"hash"`
		}
		infos := p.registry.All()
		entries := make([]entry, 0, len(infos))
		for _, info := range infos {
			entries = append(entries, entry{Name: info.Name, FilePath: info.FilePath, Hash: info.Hash})
		}
		return json.NewEncoder(cmd.OutOrStdout()).Encode(entries)
	}

	for _, info := range p.registry.All() {
		fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", info.Name, info.FilePath)
	}
	return nil
}
