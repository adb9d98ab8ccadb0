package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/JakeFAU/wikigraph/internal/config"
	"github.com/JakeFAU/wikigraph/internal/logging"
	"github.com/JakeFAU/wikigraph/internal/store"
)

// newStatsCmd creates the 'stats' subcommand: a read-only progress snapshot
// of one store file, safe to run against a live shard from another terminal.
func newStatsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Prints progress counters for a store file",
		RunE:  runStats,
	}

	cmd.Flags().String("db-path", "", "store file to inspect")
	_ = cmd.MarkFlagRequired("db-path")
	_ = viper.BindPFlag("stats.db_path", cmd.Flags().Lookup("db-path"))

	return cmd
}

func runStats(cmd *cobra.Command, _ []string) error {
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

	ctx := cmd.Context()
	path := viper.GetString("stats.db_path")
	s, err := store.Open(ctx, path, store.Options{ReadOnly: true})
	if err != nil {
		logger.Error("failed to open store", zap.String("path", path), zap.Error(err))
		return err
	}
	defer func() {
		if cerr := s.Close(); cerr != nil {
			logger.Warn("failed to close store", zap.Error(cerr))
		}
	}()

	st, err := s.Stats(ctx)
	if err != nil {
		return fmt.Errorf("read stats: %w", err)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(st)
}
