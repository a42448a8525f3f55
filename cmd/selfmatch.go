package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/sells-group/tess-exoclass/internal/pipeline"
)

var selfMatchRun string

var selfMatchCmd = &cobra.Command{
	Use:   "selfmatch",
	Short: "Federate a run's TCEs against TCEs on nearby targets",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if selfMatchRun != "" {
			cfg.Run.Name = selfMatchRun
		}
		if err := cfg.Validate("federate"); err != nil {
			return err
		}
		res, err := pipeline.NewFederator(cfg).SelfMatch(ctx)
		if err != nil {
			return err
		}
		printFederate(os.Stdout, res)
		return nil
	},
}

func init() {
	selfMatchCmd.Flags().StringVar(&selfMatchRun, "run", "", "run name (default from config)")
	rootCmd.AddCommand(selfMatchCmd)
}
