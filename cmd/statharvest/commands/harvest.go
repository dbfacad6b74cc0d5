package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"statharvest/internal/docstore"
	"statharvest/internal/harvest"
	configlibsql "statharvest/lib/configutil/libsql"

	"github.com/dustin/go-humanize"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

const runsCollection = "runs"

var errNothingHarvested = errors.New("no table was harvested")

type runSummary struct {
	Group       string          `json:"group"`
	GroupPath   string          `json:"group_path"`
	StartedAt   time.Time       `json:"started_at"`
	FinishedAt  time.Time       `json:"finished_at"`
	ReportPath  string          `json:"report_path"`
	ReportBytes int64           `json:"report_bytes"`
	Tables      []tableSummary  `json:"tables"`
	Failures    []failedSummary `json:"failures"`
}

type tableSummary struct {
	TableID string `json:"table_id"`
	Title   string `json:"title"`
	Path    string `json:"path"`
	Rows    int    `json:"rows"`
	Retries int    `json:"retries"`
}

type failedSummary struct {
	TableID string `json:"table_id"`
	Path    string `json:"path"`
	Stage   string `json:"stage"`
	Error   string `json:"error"`
}

func summarize(run harvest.Run, reportPath string, reportBytes int64, finishedAt time.Time) runSummary {
	summary := runSummary{
		Group:       run.Group,
		GroupPath:   run.GroupPath.String(),
		StartedAt:   run.StartedAt,
		FinishedAt:  finishedAt,
		ReportPath:  reportPath,
		ReportBytes: reportBytes,
		Tables:      []tableSummary{},
		Failures:    []failedSummary{},
	}
	for _, result := range run.Results {
		summary.Tables = append(summary.Tables, tableSummary{
			TableID: result.TableID,
			Title:   result.Metadata.Title,
			Path:    result.Path.String(),
			Rows:    len(result.Rows),
			Retries: result.Retries,
		})
	}
	for _, failure := range run.Failures {
		summary.Failures = append(summary.Failures, failedSummary{
			TableID: failure.TableID,
			Path:    failure.Path.String(),
			Stage:   failure.Stage,
			Error:   failure.Err.Error(),
		})
	}
	return summary
}

func recordRun(ctx context.Context, cfg configlibsql.Struct, summary runSummary) error {
	store, err := docstore.Open(ctx, cfg, env.tel, env.clock)
	if err != nil {
		return fmt.Errorf("open document store: %w", err)
	}
	defer store.Close()

	id, err := store.Insert(ctx, runsCollection, summary)
	if err != nil {
		return fmt.Errorf("record run: %w", err)
	}
	fmt.Printf("recorded run as %s\n", id)
	return nil
}

// metadataPath returns where the metadata of a table goes when a run
// harvested more than one table: the table id is added before the extension.
func metadataPath(base string, tableId string, multiple bool) string {
	if !multiple {
		return base
	}
	ext := filepath.Ext(base)
	return fmt.Sprintf("%s_%s%s", strings.TrimSuffix(base, ext), tableId, ext)
}

var harvestCmd = &cobra.Command{
	Use:   "harvest",
	Short: "Harvest every table of a table group into a single report.",
	RunE: func(cmd *cobra.Command, args []string) error {
		flags := cmd.Flags()
		cfg := env.cfg
		if flags.Changed("table") {
			cfg.TableId, _ = flags.GetString("table")
		}
		if flags.Changed("tables") {
			cfg.Tables, _ = flags.GetStringSlice("tables")
		}
		if flags.Changed("output") {
			cfg.OutputPath, _ = flags.GetString("output")
		}
		if flags.Changed("metadata-output") {
			cfg.MetadataOutputPath, _ = flags.GetString("metadata-output")
		}
		if flags.Changed("cap") {
			cfg.ValueCap, _ = flags.GetInt("cap")
		}
		record, _ := flags.GetBool("record")
		if cfg.TableId == "" {
			return fmt.Errorf("a table group is required, use --table or table_id")
		}

		client, err := newClient()
		if err != nil {
			return err
		}
		harvester := harvest.NewHarvester(client, env.tel, env.clock, cfg.HarvesterOptions())
		run, err := harvester.Run(cmd.Context(), harvest.Plan{
			Root:   cfg.RootPath(),
			Group:  cfg.TableId,
			Tables: cfg.Tables,
		})
		if err != nil {
			return fmt.Errorf("harvest: %w", err)
		}

		written, err := harvest.WriteReportFile(cfg.OutputPath, harvest.ReportHeader{
			Group:       run.Group,
			GeneratedAt: env.clock.Now(),
		}, run.Results)
		if err != nil {
			return fmt.Errorf("write report: %w", err)
		}

		if cfg.MetadataOutputPath != "" {
			for _, result := range run.Results {
				path := metadataPath(cfg.MetadataOutputPath, result.TableID, len(run.Results) > 1)
				err = harvest.WriteMetadataFile(path, result.Metadata)
				if err != nil {
					slog.Error("failed to write metadata", "table", result.TableID, "err", err)
				}
			}
		}

		t := newTable()
		t.AppendHeader(table.Row{"Table", "Title", "Columns", "Rows", "Retries"})
		var rows int
		for _, result := range run.Results {
			rows += len(result.Rows)
			t.AppendRow(table.Row{
				result.TableID,
				result.Metadata.Title,
				len(result.Columns),
				humanize.Comma(int64(len(result.Rows))),
				result.Retries,
			})
		}
		t.AppendFooter(table.Row{len(run.Results), "", "", humanize.Comma(int64(rows)), ""})
		t.Render()
		fmt.Printf("wrote %s to %s\n", humanize.Bytes(uint64(written)), cfg.OutputPath)

		if len(run.Failures) > 0 {
			failures := newTable()
			failures.AppendHeader(table.Row{"Table", "Stage", "Error"})
			for _, failure := range run.Failures {
				failures.AppendRow(table.Row{failure.TableID, failure.Stage, failure.Err.Error()})
			}
			failures.Render()
		}

		if record {
			err = recordRun(cmd.Context(), cfg.Store, summarize(run, cfg.OutputPath, written, env.clock.Now()))
			if err != nil {
				return err
			}
		}

		if len(run.Results) == 0 {
			return errNothingHarvested
		}
		return nil
	},
}

func init() {
	flags := harvestCmd.Flags()
	flags.String("table", "", "Table group to harvest, searched two levels below the root.")
	flags.StringSlice("tables", nil, "Only harvest these tables of the group.")
	flags.StringP("output", "o", "", "Report file.")
	flags.String("metadata-output", "", "Also write the metadata JSON of every harvested table.")
	flags.Int("cap", 0, "Most values selected for a variable, 0 selects every value.")
	flags.Bool("record", false, "Record a summary of the run in the document store.")
	rootCmd.AddCommand(harvestCmd)
}
