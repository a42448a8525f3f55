package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/tess-exoclass/internal/pipeline"
	"github.com/sells-group/tess-exoclass/internal/store"
)

var (
	rankWorkers  int
	rankWorkerID int
	rankNoStore  bool
	rankRun      string
)

var rankCmd = &cobra.Command{
	Use:   "rank",
	Short: "Rank a run's TCEs and write the tier files",
	Long: "Loads the run tables, gates and ranks the TCEs, classifies this worker's shard into tiers " +
		"and writes the tier files and a summary. Runs are recorded in the run store unless --no-store is set.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if rankRun != "" {
			cfg.Run.Name = rankRun
		}
		if err := cfg.Validate("rank"); err != nil {
			return err
		}
		if rankWorkers < 1 || rankWorkerID < 0 || rankWorkerID >= rankWorkers {
			return eris.Errorf("rank: --worker-id must be in [0, %d)", rankWorkers)
		}

		var st store.Store
		if !rankNoStore {
			s, err := initStore(ctx)
			if err != nil {
				return err
			}
			defer s.Close() //nolint:errcheck
			st = s
		}

		res, err := pipeline.NewRunner(cfg, st).Run(ctx, rankWorkerID, rankWorkers)
		if err != nil {
			return err
		}

		d := res.Diagnostics
		fmt.Fprintf(os.Stdout, "ranked %d of %d TCEs: tier1=%d tier2=%d tier3=%d\n",
			d.Ranked, d.Loaded, d.Tier1, d.Tier2, d.Tier3)
		if res.RunID != "" {
			fmt.Fprintf(os.Stdout, "run id: %s\n", res.RunID)
		}
		for _, p := range res.Outputs {
			fmt.Fprintln(os.Stdout, p)
		}
		return nil
	},
}

func init() {
	rankCmd.Flags().IntVar(&rankWorkers, "workers", 1, "number of workers sharing the ranking")
	rankCmd.Flags().IntVar(&rankWorkerID, "worker-id", 0, "this worker's shard, 0-based")
	rankCmd.Flags().BoolVar(&rankNoStore, "no-store", false, "do not record the run in the run store")
	rankCmd.Flags().StringVar(&rankRun, "run", "", "run name (default from config)")
	rootCmd.AddCommand(rankCmd)
}
