// Package cmd defines and implements the CLI commands for the wikigraph
// executable.
package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/JakeFAU/wikigraph/internal/config"
)

var cfgFile string

// newRootCmd creates and configures the root command.
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "wikigraph",
		Short: "Builds a wiki inter-article link graph across sharded crawl machines.",
		Long: `wikigraph crawls an encyclopedic corpus and records which articles link to
which. The work is partitioned deterministically across independent machines,
each machine keeps its own resumable shard store, and the finished shards are
reconciled offline into one consolidated graph store.`,
		SilenceUsage: true,
	}

	cobra.OnInitialize(initConfig)

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./wikigraph.yaml)")

	cmd.AddCommand(newCrawlCmd(), newMergeCmd(), newStatsCmd())
	return cmd
}

// initConfig installs defaults, env binding, and the optional config file on
// the global viper instance.
func initConfig() {
	config.SetDefaults(viper.GetViper())

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
		if err := viper.ReadInConfig(); err != nil {
			fmt.Fprintf(os.Stderr, "read config file: %v\n", err)
		}
		return
	}
	viper.SetConfigName("wikigraph")
	viper.AddConfigPath(".")
	// A config file is optional; flags and env cover everything.
	_ = viper.ReadInConfig()
}

// Execute is the main entry point. SIGINT/SIGTERM cancel the command context
// so an in-flight crawl stops at the next transaction boundary.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}
