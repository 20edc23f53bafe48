// Command campaignctl runs the campaign coordinators in-process against the
// configured stores, without Temporal. Results are printed as JSON.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Kocoro-lab/brandcast/go/orchestrator/internal/app"
	"github.com/Kocoro-lab/brandcast/go/orchestrator/internal/config"
	"github.com/Kocoro-lab/brandcast/go/orchestrator/internal/db"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

type rootOptions struct {
	configPath string
	sqlitePath string
	verbose    bool
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:   "campaignctl",
		Short: "Run brand campaign analysis, calendars and publishing from the shell",
		Long: `campaignctl drives the campaign coordinators directly.

It loads the same campaign.yaml as the orchestrator (CONFIG_PATH or --config),
builds the stack in-process and prints results as JSON. Use it to ingest
scraped posts, run an analysis or calendar for one brand, or publish a single
calendar day to Telegram.`,
		SilenceUsage: true,
	}
	cmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "Config file path (YAML)")
	cmd.PersistentFlags().StringVar(&opts.sqlitePath, "sqlite", "", "Use a SQLite campaign store at this path")
	cmd.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "Log to stderr at debug level")

	cmd.AddCommand(
		newAnalyzeCmd(opts),
		newCalendarCmd(opts),
		newIngestCmd(opts),
		newPublishCmd(opts),
		newStatsCmd(opts),
		newForgetCmd(opts),
	)
	return cmd
}

// load builds the campaign stack for one command. The API server is never
// started by the CLI, so its auth settings are not required.
func (o *rootOptions) load(ctx context.Context) (*app.App, error) {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return nil, err
	}
	if o.sqlitePath != "" {
		cfg.Database.Driver = db.DriverSQLite
		cfg.Database.Path = o.sqlitePath
	}
	cfg.Service.EnableAPI = false
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger, err := o.logger()
	if err != nil {
		return nil, err
	}
	return app.New(ctx, cfg, logger)
}

func (o *rootOptions) logger() (*zap.Logger, error) {
	if o.verbose {
		return zap.NewDevelopment()
	}
	zc := zap.NewProductionConfig()
	zc.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	return zc.Build()
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
