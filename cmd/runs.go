package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/tess-exoclass/internal/model"
	"github.com/sells-group/tess-exoclass/internal/store"
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Inspect ranking run history",
	Long:  "Commands for listing, viewing and summarizing recorded ranking runs.",
}

// -- runs list --

var runsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List ranking runs",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		status, _ := cmd.Flags().GetString("status")
		name, _ := cmd.Flags().GetString("name")
		limit, _ := cmd.Flags().GetInt("limit")

		runs, err := st.ListRuns(ctx, store.RunFilter{
			Status: model.RunStatus(status),
			Name:   name,
			Limit:  limit,
		})
		if err != nil {
			return eris.Wrap(err, "runs list")
		}

		if len(runs) == 0 {
			fmt.Fprintln(os.Stderr, "No runs found.")
			return nil
		}

		formatRunsList(os.Stdout, runs)
		return nil
	},
}

// -- runs show --

var runsShowCmd = &cobra.Command{
	Use:   "show <run-id>",
	Short: "Show full details of a run",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		run, err := st.GetRun(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "runs show")
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(run)
	},
}

// -- runs stats --

var runsStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show aggregate run statistics",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		name, _ := cmd.Flags().GetString("name")
		limit, _ := cmd.Flags().GetInt("limit")
		runs, err := st.ListRuns(ctx, store.RunFilter{Name: name, Limit: limit})
		if err != nil {
			return eris.Wrap(err, "runs stats")
		}

		formatRunStats(os.Stdout, computeRunStats(runs))
		return nil
	},
}

func init() {
	runsListCmd.Flags().String("status", "", "filter by run status (loading, ranking, complete, failed, ...)")
	runsListCmd.Flags().String("name", "", "filter by run name")
	runsListCmd.Flags().Int("limit", 50, "max number of runs to display")

	runsCmd.AddCommand(runsListCmd)
	runsStatsCmd.Flags().String("name", "", "restrict to one run name")
	runsStatsCmd.Flags().Int("limit", 1000, "number of most recent runs to include")

	runsCmd.AddCommand(runsShowCmd)
	runsCmd.AddCommand(runsStatsCmd)
	rootCmd.AddCommand(runsCmd)
}

// formatRunsList writes a tabular list of runs to w.
func formatRunsList(out io.Writer, runs []model.Run) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tNAME\tSHARD\tSTATUS\tRANKED\tT1/T2/T3\tCREATED\tDURATION")
	for _, r := range runs {
		shard := "-"
		if r.Workers > 1 {
			shard = fmt.Sprintf("%d/%d", r.WorkerID, r.Workers)
		}
		ranked, tiers := "-", "-"
		if r.Result != nil {
			ranked = fmt.Sprint(r.Result.Ranked)
			tiers = fmt.Sprintf("%d/%d/%d", r.Result.Tier1, r.Result.Tier2, r.Result.Tier3)
		}
		dur := r.UpdatedAt.Sub(r.CreatedAt).Round(1e9)
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			truncateID(r.ID), r.Name, shard, r.Status, ranked, tiers,
			r.CreatedAt.Format("2006-01-02 15:04"), dur)
	}
	_ = w.Flush()
}

// truncateID shortens a UUID to its first 8 characters.
func truncateID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// runStats holds aggregate statistics computed from a set of runs.
type runStats struct {
	Total      int
	Complete   int
	Failed     int
	Active     int
	FailRate   float64
	AvgDurSecs float64
	Ranked     int
	Tier1      int
	Tier2      int
	Tier3      int
}

// computeRunStats aggregates a list of runs. Tier totals count completed
// runs only.
func computeRunStats(runs []model.Run) runStats {
	s := runStats{Total: len(runs)}

	var totalDur float64
	for _, r := range runs {
		switch r.Status {
		case model.RunStatusComplete:
			s.Complete++
			totalDur += r.UpdatedAt.Sub(r.CreatedAt).Seconds()
			if r.Result != nil {
				s.Ranked += r.Result.Ranked
				s.Tier1 += r.Result.Tier1
				s.Tier2 += r.Result.Tier2
				s.Tier3 += r.Result.Tier3
			}
		case model.RunStatusFailed:
			s.Failed++
		default:
			s.Active++
		}
	}

	if finished := s.Complete + s.Failed; finished > 0 {
		s.FailRate = float64(s.Failed) / float64(finished)
	}
	if s.Complete > 0 {
		s.AvgDurSecs = totalDur / float64(s.Complete)
	}
	return s
}

// formatRunStats writes run statistics to w.
func formatRunStats(out io.Writer, s runStats) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(w, "Total runs:\t%d\n", s.Total)
	_, _ = fmt.Fprintf(w, "Complete:\t%d\n", s.Complete)
	_, _ = fmt.Fprintf(w, "Failed:\t%d (%.1f%%)\n", s.Failed, 100*s.FailRate)
	_, _ = fmt.Fprintf(w, "In progress:\t%d\n", s.Active)
	_, _ = fmt.Fprintf(w, "Avg duration:\t%.1fs\n", s.AvgDurSecs)
	_, _ = fmt.Fprintf(w, "Ranked TCEs:\t%d\n", s.Ranked)
	_, _ = fmt.Fprintf(w, "Tier 1/2/3:\t%d/%d/%d\n", s.Tier1, s.Tier2, s.Tier3)
	_ = w.Flush()
}
