package commands

import (
	"fmt"
	"strings"

	"statharvest/internal/harvest"
	"statharvest/lib/util/serviceutil"

	"github.com/dustin/go-humanize"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

var metadataCmd = &cobra.Command{
	Use:   "metadata <path>",
	Short: "Show the variables of a table and the query that would be sent for it.",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		output, _ := cmd.Flags().GetString("output")
		if output == "" {
			output = env.cfg.MetadataOutputPath
		}

		client := mustClient()
		meta, err := client.FetchMetadata(cmd.Context(), harvest.ParsePath(args[0]))
		if err != nil {
			serviceutil.Fatal("failed to fetch metadata", err)
		}

		policy := env.cfg.Policy()
		query := harvest.BuildQuery(meta, policy)
		selected := map[string]int{}
		for _, selection := range query.Selections {
			selected[selection.Code] = len(selection.Values)
		}

		fmt.Printf("%s: %s\n", meta.TableID, meta.Title)
		if meta.UpdatedAt != nil {
			fmt.Printf("updated %s\n", humanize.Time(*meta.UpdatedAt))
		}

		t := newTable()
		t.AppendHeader(table.Row{"Code", "Text", "Values", "Selected", "Sample"})
		for _, variable := range meta.Variables {
			ids := variable.ValueIDs()
			sample := ids[:min(len(ids), 3)]
			t.AppendRow(table.Row{
				variable.Code,
				variable.Text,
				len(ids),
				selected[variable.Code],
				strings.Join(sample, ", "),
			})
		}
		t.Render()

		if output != "" {
			err = harvest.WriteMetadataFile(output, meta)
			if err != nil {
				serviceutil.Fatal("failed to write metadata", err)
			}
			fmt.Printf("wrote metadata to %s\n", output)
		}
	},
}

func init() {
	metadataCmd.Flags().StringP("output", "o", "", "Write the metadata JSON to this file.")
	rootCmd.AddCommand(metadataCmd)
}
