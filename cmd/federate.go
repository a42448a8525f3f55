package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/tess-exoclass/internal/federation"
	"github.com/sells-group/tess-exoclass/internal/pipeline"
	"github.com/sells-group/tess-exoclass/internal/resilience"
	"github.com/sells-group/tess-exoclass/internal/sky"
	"github.com/sells-group/tess-exoclass/internal/spatial"
	"github.com/sells-group/tess-exoclass/pkg/exoarchive"
	"github.com/sells-group/tess-exoclass/pkg/mast"
)

var federateRun string

var federateCmd = &cobra.Command{
	Use:   "federate",
	Short: "Match catalogs against a run's TCEs",
	Long:  "Builds the TOI, known-planet and spatial federation tables the rank command reads.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := rootCmd.PersistentPreRunE(cmd, args); err != nil {
			return err
		}
		if federateRun != "" {
			cfg.Run.Name = federateRun
		}
		return cfg.Validate("federate")
	},
}

// -- federate toi --

var federateTOICmd = &cobra.Command{
	Use:   "toi <toi.csv>",
	Short: "Federate an ExoFOP TOI list",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		f, err := os.Open(args[0])
		if err != nil {
			return eris.Wrapf(err, "federate toi: open %s", args[0])
		}
		defer f.Close() //nolint:errcheck

		entries, err := federation.LoadTOIs(ctx, f, filepath.Base(args[0]), cfg.Federation.EpochOffset)
		if err != nil {
			return err
		}
		nb, err := newNeighbours(ctx)
		if err != nil {
			return err
		}
		res, err := pipeline.NewFederator(cfg).TOI(ctx, entries, nb)
		if err != nil {
			return err
		}
		printFederate(os.Stdout, res)
		return nil
	},
}

// -- federate known --

var federateKnownCmd = &cobra.Command{
	Use:   "known",
	Short: "Federate transiting planets from the NASA Exoplanet Archive",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		planets, err := newArchive().Planets(ctx, cfg.Archive.TransitingFilter)
		if err != nil {
			return err
		}
		entries := exoarchive.Entries(planets, cfg.Federation.EpochOffset)

		nb, err := newNeighbours(ctx)
		if err != nil {
			return err
		}
		res, err := pipeline.NewFederator(cfg).Known(ctx, entries, nb)
		if err != nil {
			return err
		}
		printFederate(os.Stdout, res)
		return nil
	},
}

// -- federate spatial --

var federateSpatialCmd = &cobra.Command{
	Use:   "spatial",
	Short: "Match non-transiting planets by position and period",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		archive := newArchive()
		planets, err := archive.Planets(ctx, cfg.Archive.NonTransitingFilter)
		if err != nil {
			return err
		}
		entries, unresolved := spatial.ResolvePeriods(ctx, exoarchive.Entries(planets, cfg.Federation.EpochOffset), archive)
		if len(unresolved) > 0 {
			zap.L().Warn("federate spatial: planets without a period", zap.Int("count", len(unresolved)))
		}

		nb, err := newNeighbours(ctx)
		if err != nil {
			return err
		}
		res, err := pipeline.NewFederator(cfg).Spatial(ctx, entries, unresolved, nb)
		if err != nil {
			return err
		}
		printFederate(os.Stdout, res)
		return nil
	},
}

func init() {
	federateCmd.PersistentFlags().StringVar(&federateRun, "run", "", "run name (default from config)")

	federateCmd.AddCommand(federateTOICmd)
	federateCmd.AddCommand(federateKnownCmd)
	federateCmd.AddCommand(federateSpatialCmd)
	rootCmd.AddCommand(federateCmd)
}

// newNeighbours picks the cone search backend named by
// federation.cone_source.
func newNeighbours(ctx context.Context) (federation.Neighbours, error) {
	switch cfg.Federation.ConeSource {
	case "none":
		return federation.SameTarget{}, nil
	case "table":
		f, err := os.Open(cfg.Federation.PositionTable)
		if err != nil {
			return nil, eris.Wrapf(err, "federate: open position table %s", cfg.Federation.PositionTable)
		}
		defer f.Close() //nolint:errcheck
		pos, err := sky.LoadPositions(ctx, f, filepath.Base(cfg.Federation.PositionTable))
		if err != nil {
			return nil, err
		}
		return federation.Table{Index: sky.NewIndex(pos)}, nil
	case "mast":
		m := cfg.MAST
		client := mast.NewClient(
			mast.WithBaseURL(m.BaseURL),
			mast.WithHTTPClient(&http.Client{Timeout: time.Duration(m.TimeoutSecs) * time.Second}),
			mast.WithRateLimit(m.RateLimit),
			mast.WithPoll(resilience.PollFromSeconds("mast", m.PollIntervalSecs, m.HeartbeatSecs, m.PollDeadlineSecs)),
			mast.WithRetry(resilience.ForService(m.MaxAttempts, "mast", "query")),
			mast.WithMaxTmag(m.MaxTmag),
		)
		return federation.MAST{Client: client}, nil
	default:
		return nil, eris.Errorf("federate: unknown cone source %q", cfg.Federation.ConeSource)
	}
}

func newArchive() exoarchive.Client {
	a := cfg.Archive
	return exoarchive.NewClient(
		exoarchive.WithBaseURL(a.BaseURL),
		exoarchive.WithHTTPClient(&http.Client{Timeout: time.Duration(a.TimeoutSecs) * time.Second}),
		exoarchive.WithRateLimit(a.RateLimit),
		exoarchive.WithRetry(resilience.ForService(a.MaxAttempts, "exoarchive", "tap")),
	)
}

func printFederate(w io.Writer, res *pipeline.FederateResult) {
	s := res.Stats
	fmt.Fprintf(w, "entries=%d matched=%d federated=%d no_candidates=%d no_ephemeris=%d failed=%d written=%d\n",
		s.Entries, s.Matched, s.Federated, s.NoCandidates, s.NoEphemeris, s.Failed, res.Written)
	for _, p := range res.Outputs {
		fmt.Fprintln(w, p)
	}
}
