package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"statharvest/internal/components/chrono"
	"statharvest/internal/components/telemetry"
	"statharvest/internal/config"
	"statharvest/internal/harvest"
	"statharvest/lib/restyutil"
	"statharvest/lib/util/serviceutil"

	"github.com/spf13/cobra"
)

// environment is what every command shares once the root command has read
// the configuration.
type environment struct {
	cfg   config.Config
	tel   telemetry.API
	clock chrono.API
	otel  telemetry.Telemetry
}

var env environment

var (
	configPath   string
	verbose      bool
	baseUrlFlag  string
	rootFlag     string
	delayFlag    float64
	dumpHttpFlag string
)

var rootCmd = &cobra.Command{
	Use:   "statharvest",
	Short: "statharvest walks the Statistics Sweden table hierarchy and harvests table data.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		telemetry.InitSlog(verbose)

		cfg, applied, err := config.Load(configPath)
		if err != nil {
			return fmt.Errorf("read config: %w", err)
		}
		for _, file := range applied {
			slog.Debug("applied config file", "path", file)
		}

		flags := cmd.Flags()
		if flags.Changed("base-url") {
			cfg.BaseUrl = baseUrlFlag
		}
		if flags.Changed("root") {
			cfg.Root = rootFlag
		}
		if flags.Changed("delay") {
			cfg.RequestDelaySeconds = delayFlag
		}
		err = cfg.Validate()
		if err != nil {
			return err
		}

		otel, err := telemetry.Setup(cmd.Context(), "statharvest", cfg.Telemetry)
		if err != nil {
			return fmt.Errorf("setup telemetry: %w", err)
		}

		env = environment{
			cfg:   cfg,
			tel:   telemetry.SlogAPI{},
			clock: chrono.NewStandardImpl(cfg.Location()),
			otel:  otel,
		}
		return nil
	},
	SilenceUsage: true,
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&configPath, "config", config.DefaultFile, "Configuration file, a .local variant next to it overrides it.")
	flags.BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging.")
	flags.StringVar(&baseUrlFlag, "base-url", "", "Base url of the statistics API.")
	flags.StringVar(&rootFlag, "root", "", "Hierarchy node to start from, segments separated by '/'.")
	flags.Float64Var(&delayFlag, "delay", 0, "Minimum seconds between two requests.")
	flags.StringVar(&dumpHttpFlag, "dump-http", "", "Write every HTTP exchange to this directory.")
}

func newClient() (*harvest.Client, error) {
	opts := env.cfg.ClientOptions()
	if dumpHttpFlag != "" {
		output, err := restyutil.NewFilesystemOutput(dumpHttpFlag)
		if err != nil {
			return nil, fmt.Errorf("prepare http dump directory: %w", err)
		}
		opts.Exchanges = output
	}
	return harvest.NewClient(opts, env.tel, env.clock), nil
}

// mustClient is newClient for commands that exit on the first failure.
func mustClient() *harvest.Client {
	client, err := newClient()
	if err != nil {
		serviceutil.Fatal("failed to create client", err)
	}
	return client
}

// ExecuteContext runs the command line, telemetry is flushed before exiting
// whether or not the command failed.
func ExecuteContext(ctx context.Context) {
	err := rootCmd.ExecuteContext(ctx)

	flushErr := env.otel.Shutdown(context.Background())
	if flushErr != nil {
		slog.Warn("failed to flush telemetry", "err", flushErr)
	}

	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
