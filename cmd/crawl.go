package cmd

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/JakeFAU/wikigraph/internal/config"
	"github.com/JakeFAU/wikigraph/internal/fetcher"
	"github.com/JakeFAU/wikigraph/internal/logging"
	"github.com/JakeFAU/wikigraph/internal/partition"
	"github.com/JakeFAU/wikigraph/internal/scheduler"
	"github.com/JakeFAU/wikigraph/internal/store"
	"github.com/JakeFAU/wikigraph/internal/telemetry"
	"github.com/JakeFAU/wikigraph/internal/titles"
)

// newCrawlCmd creates the 'crawl' subcommand: one campaign member crawling
// its deterministic share of the title universe into a private shard store.
func newCrawlCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "crawl",
		Short: "Crawls this machine's partition of the article universe",
		Long: `Populates the shard store with the titles this machine owns (on first run),
then repeatedly fetches unprocessed articles and records their outgoing
links. The store is resumable: restarting continues where the last run
stopped.`,
		RunE: runCrawl,
	}

	flags := cmd.Flags()
	flags.Int("machine-id", 0, "id of this machine (0-indexed)")
	flags.Int("total-machines", 1, "total number of machines in the campaign")
	flags.String("db-path", "", "shard store file (default wiki_graph_machine_<id>.db)")
	flags.Int("batch-size", 100, "articles per batch")
	flags.Float64("delay", 1.0, "seconds between page fetches")
	_ = cmd.MarkFlagRequired("machine-id")
	_ = cmd.MarkFlagRequired("total-machines")

	_ = viper.BindPFlag("crawler.machine_id", flags.Lookup("machine-id"))
	_ = viper.BindPFlag("crawler.total_machines", flags.Lookup("total-machines"))
	_ = viper.BindPFlag("store.path", flags.Lookup("db-path"))
	_ = viper.BindPFlag("crawler.batch_size", flags.Lookup("batch-size"))
	_ = viper.BindPFlag("crawler.delay_seconds", flags.Lookup("delay"))

	return cmd
}

func runCrawl(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(viper.GetViper())
	if err != nil {
		return err
	}
	logger, err := logging.New(cfg.Logging)
	if err != nil {
		return err
	}
	defer func() {
		_ = logger.Sync()
	}()

	if err := cfg.ValidateCrawl(); err != nil {
		logger.Error("invalid crawl configuration", zap.Error(err))
		return err
	}

	ctx := cmd.Context()
	st, err := store.Open(ctx, cfg.StorePath(), store.Options{})
	if err != nil {
		logger.Error("failed to open shard store", zap.Error(err))
		return err
	}
	defer func() {
		if cerr := st.Close(); cerr != nil {
			logger.Warn("failed to close shard store", zap.Error(cerr))
		}
	}()

	if cfg.Telemetry.Enabled {
		srv := telemetry.NewServer(cfg.Telemetry.Listen, st.Stats, logger)
		srv.Start()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if serr := srv.Shutdown(shutdownCtx); serr != nil {
				logger.Warn("status server shutdown failed", zap.Error(serr))
			}
		}()
	}

	client := fetcher.New(fetcher.Config{
		BaseURL:   cfg.API.BaseURL,
		UserAgent: cfg.Crawler.UserAgent,
		Timeout:   cfg.FetchTimeout(),
	}, logger)
	source := titles.NewDumpSource(cfg.Source.DumpURL, logger)

	sched := scheduler.New(st, client, source, partition.New(), scheduler.Config{
		MachineID:     cfg.Crawler.MachineID,
		TotalMachines: cfg.Crawler.TotalMachines,
		BatchSize:     cfg.Crawler.BatchSize,
		Delay:         cfg.Delay(),
	}, logger)

	if err := sched.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("crawl failed", zap.Error(err))
		return fmt.Errorf("run crawl: %w", err)
	}
	return nil
}
