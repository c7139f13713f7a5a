package cmd

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newCrawlCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "crawl",
		Short: "Fetches every id missing from the store",
		Long: `Loads the persisted ids, reads the remote max id and fetches every id in
between that is not yet stored, newest first. Interrupting the run flushes
the open batches; the next run picks up the remaining gaps.`,
		Args: cobra.NoArgs,
		RunE: runCrawlCommand,
	}
}

func runCrawlCommand(cmd *cobra.Command, _ []string) error {
	rt, err := resolveRuntime(cmd.Context())
	if err != nil {
		return err
	}

	res, err := rt.app.Crawl(cmd.Context())
	rt.logger.Info("crawl finished",
		zap.Stringer("run_id", res.RunID),
		zap.Int64("max_id", res.MaxID),
		zap.Int64("already_present", res.AlreadyPresent),
		zap.Int64("persisted", res.Stats.Persisted),
		zap.Int64("tombstones", res.Stats.Tombstones),
		zap.Int64("dropped", res.Stats.Dropped),
		zap.Int64("failed_batches", res.Stats.FailedBatches),
		zap.String("backup", res.BackupURI),
	)
	return err
}
