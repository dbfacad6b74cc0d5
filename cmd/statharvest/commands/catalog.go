package commands

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"statharvest/internal/harvest"
	"statharvest/lib/util/serviceutil"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

var catalogCmd = &cobra.Command{
	Use:   "catalog",
	Short: "Walk the hierarchy below the root and list every node.",
	Run: func(cmd *cobra.Command, args []string) {
		output, _ := cmd.Flags().GetString("output")
		maxDepth, _ := cmd.Flags().GetInt("max-depth")
		if !cmd.Flags().Changed("max-depth") {
			maxDepth = env.cfg.MaxDepth
		}

		walker := harvest.NewWalker(mustClient(), env.tel, maxDepth)

		var nodes []harvest.CatalogNode
		var failed int
		for node, err := range walker.Walk(cmd.Context(), env.cfg.RootPath()) {
			if err != nil {
				failed++
				slog.Warn("failed to list node", "path", node.Path.String(), "err", err)
				if cmd.Context().Err() != nil {
					break
				}
				continue
			}
			nodes = append(nodes, node)
		}

		if output != "" {
			f, err := os.Create(output)
			if err != nil {
				serviceutil.Fatal("failed to create catalog file", err)
			}
			defer f.Close()
			err = harvest.WriteCatalog(f, nodes)
			if err != nil {
				serviceutil.Fatal("failed to write catalog", err)
			}
			fmt.Printf("wrote %d nodes to %s\n", len(nodes), output)
		} else {
			t := newTable()
			t.AppendHeader(table.Row{"Path", "Text", "Type", "Table"})
			for _, node := range nodes {
				indent := strings.Repeat("  ", max(node.Depth-1, 0))
				leaf := ""
				if node.Leaf {
					leaf = "*"
				}
				t.AppendRow(table.Row{indent + node.ID, node.Text, node.Type, leaf})
			}
			t.AppendFooter(table.Row{"", "", "", len(nodes)})
			t.Render()
		}

		if failed > 0 {
			slog.Warn("some nodes could not be listed", "count", failed)
		}
	},
}

func init() {
	catalogCmd.Flags().StringP("output", "o", "", "Write the catalog tree to this file instead of stdout.")
	catalogCmd.Flags().Int("max-depth", harvest.DefaultMaxDepth, "Stop expanding below this depth.")
	rootCmd.AddCommand(catalogCmd)
}
