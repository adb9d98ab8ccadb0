package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/JakeFAU/wikigraph/internal/config"
	"github.com/JakeFAU/wikigraph/internal/logging"
	"github.com/JakeFAU/wikigraph/internal/merge"
	"github.com/JakeFAU/wikigraph/internal/store"
)

// newMergeCmd creates the 'merge' subcommand: reconcile finished shard stores
// into one consolidated store. Run it only after every crawl process has
// stopped.
func newMergeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "merge DB [DB...]",
		Short: "Merges shard stores into one consolidated graph store",
		Long: `Unions the articles and links of each input shard store into the output
store. Articles are matched by title, the processed flag is OR-merged, and
duplicate links are ignored, so re-running a merge is harmless. Missing or
unreadable inputs are skipped with a logged error.`,
		Args: cobra.MinimumNArgs(1),
		RunE: runMerge,
	}

	cmd.Flags().StringP("output", "o", "wiki_graph_merged.db", "output store file")
	_ = viper.BindPFlag("merge.output", cmd.Flags().Lookup("output"))

	return cmd
}

func runMerge(cmd *cobra.Command, args []string) error {
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
	outputPath := viper.GetString("merge.output")
	out, err := store.Open(ctx, outputPath, store.Options{})
	if err != nil {
		logger.Error("failed to open output store", zap.Error(err))
		return err
	}
	defer func() {
		if cerr := out.Close(); cerr != nil {
			logger.Warn("failed to close output store", zap.Error(cerr))
		}
	}()

	report := merge.New(logger).Merge(ctx, out, args)
	if report.MergedOK == 0 {
		return fmt.Errorf("no input store could be merged (%d failed)", report.Failed)
	}
	return nil
}
