package main

import (
	"fmt"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/tess-exoclass/internal/report"
)

var exportOut string

var exportCmd = &cobra.Command{
	Use:   "export <run-id>",
	Short: "Export a recorded run's tier rows to a workbook",
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
			return eris.Wrap(err, "export")
		}
		rows, err := st.ListTierRows(ctx, run.ID, 0)
		if err != nil {
			return eris.Wrap(err, "export")
		}

		out := exportOut
		if out == "" {
			out = run.Name + "_" + truncateID(run.ID) + "_tiers.xlsx"
		}
		if err := report.WriteWorkbook(out, rows); err != nil {
			return err
		}

		zap.L().Info("export complete",
			zap.String("run_id", run.ID),
			zap.Int("rows", len(rows)),
			zap.String("path", out),
		)
		fmt.Fprintln(os.Stdout, out)
		return nil
	},
}

func init() {
	exportCmd.Flags().StringVarP(&exportOut, "out", "o", "", "workbook path (default <run>_<id>_tiers.xlsx)")
	rootCmd.AddCommand(exportCmd)
}
