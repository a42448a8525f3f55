// Package report writes the flat result tables, the run workbook and the
// run summary.
package report

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"

	"github.com/sells-group/tess-exoclass/internal/model"
	"github.com/sells-group/tess-exoclass/internal/tier"
)

// Row is one ranked and classified candidate.
type Row struct {
	Key       model.Key
	Rank      int // position in the global ranking
	Score     float64
	MatchFlag int
	Result    tier.Result
}

// TierRow converts r to its persisted form.
func (r Row) TierRow(runID string) model.TierRow {
	return model.TierRow{
		RunID:      runID,
		TIC:        r.Key.TIC,
		PlanetNum:  r.Key.PlanetNum,
		Rank:       r.Rank,
		Score:      r.Score,
		MatchFlag:  r.MatchFlag,
		Tier:       r.Result.Tier,
		FlagBits:   r.Result.Flags.Bits(),
		Causes:     r.Result.Flags.String(),
		Annotation: r.Result.Annotation(),
	}
}

// ShardSuffix is appended to the output names of a sharded run so shards
// never overwrite each other. Unsharded runs get no suffix.
func ShardSuffix(workerID, workers int) string {
	if workers > 1 {
		return fmt.Sprintf("_w%dof%d", workerID, workers)
	}
	return ""
}

// TierFileName names the output file of one tier.
func TierFileName(prefix, run string, tierNum, workerID, workers int) string {
	return fmt.Sprintf("%s_Tier%d_%s%s.txt", prefix, tierNum, run, ShardSuffix(workerID, workers))
}

// FormatTierLine renders r the way its tier file stores it.
func FormatTierLine(r Row) string {
	base := fmt.Sprintf("%016d %d %f %d", r.Key.TIC, r.Key.PlanetNum, r.Score, r.MatchFlag)
	switch r.Result.Tier {
	case 1:
		return base
	case 2:
		return fmt.Sprintf("%s %s %s", base, r.Result.Flags.Bits(), r.Result.Flags.String())
	default:
		return fmt.Sprintf("%s %t %t", base, r.Result.HasSecondary, r.Result.SweetFailed)
	}
}

// WriteTiers writes the three tier files into dir, rows in the order given,
// and returns their paths. All three files are created even when empty.
func WriteTiers(dir, prefix, run string, workerID, workers int, rows []Row) ([]string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, eris.Wrapf(err, "report: create %s", dir)
	}

	paths := make([]string, 3)
	writers := make([]*bufio.Writer, 3)
	files := make([]*os.File, 3)
	for i := range 3 {
		paths[i] = filepath.Join(dir, TierFileName(prefix, run, i+1, workerID, workers))
		f, err := os.Create(paths[i])
		if err != nil {
			closeAll(files)
			return nil, eris.Wrapf(err, "report: create %s", paths[i])
		}
		files[i] = f
		writers[i] = bufio.NewWriter(f)
	}

	for _, r := range rows {
		t := r.Result.Tier
		if t < 1 || t > 3 {
			closeAll(files)
			return nil, eris.Errorf("report: %s has invalid tier %d", r.Key, t)
		}
		if _, err := io.WriteString(writers[t-1], FormatTierLine(r)+"\n"); err != nil {
			closeAll(files)
			return nil, eris.Wrapf(err, "report: write %s", paths[t-1])
		}
	}

	for i := range 3 {
		if err := writers[i].Flush(); err != nil {
			closeAll(files)
			return nil, eris.Wrapf(err, "report: flush %s", paths[i])
		}
		if err := files[i].Close(); err != nil {
			return nil, eris.Wrapf(err, "report: close %s", paths[i])
		}
		files[i] = nil
	}
	return paths, nil
}

func closeAll(files []*os.File) {
	for _, f := range files {
		if f != nil {
			f.Close() //nolint:errcheck
		}
	}
}
