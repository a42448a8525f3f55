package report

import (
	"bufio"
	"fmt"
	"io"

	"github.com/rotisserie/eris"

	"github.com/sells-group/tess-exoclass/internal/model"
	"github.com/sells-group/tess-exoclass/internal/vetting"
)

// WriteFederation writes federation rows under two "#" header lines naming
// the catalog and the candidate source. Rows without a matched TCE are
// left out.
func WriteFederation(w io.Writer, catalog, source string, rows []model.FederationResult) (int, error) {
	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, "# Match %s\n# To %s\n", catalog, source)

	n := 0
	for _, r := range rows {
		if r.Match.IsZero() {
			continue
		}
		label := r.Label
		if label == "" {
			label = "-"
		}
		fmt.Fprintf(bw, "%12d %8.2f %-2s %12d %2d %2d %6.3f %2d %10.5f %2d\n",
			r.CatalogTIC, r.CatalogID, label, r.Match.TIC, r.Match.PlanetNum,
			int(r.Quality), r.Statistic, boolInt(r.RatioFlag), r.PeriodRatio, boolInt(r.Federated))
		n++
	}
	if err := bw.Flush(); err != nil {
		return 0, eris.Wrap(err, "report: write federation table")
	}
	return n, nil
}

// WriteSelfMatch writes TCE-against-TCE rows in the layout LoadSelfMatch
// reads.
func WriteSelfMatch(w io.Writer, source string, rows []vetting.SelfMatch) error {
	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, "# Self match %s\n", source)
	for _, r := range rows {
		fmt.Fprintf(bw, "%12d %2d %12d %2d %2d %6.3f %2d %10.5f %2d %8.3f %3d\n",
			r.Key.TIC, r.Key.PlanetNum, r.Other.TIC, r.Other.PlanetNum,
			int(r.Quality), r.Statistic, boolInt(r.RatioFlag), r.PeriodRatio,
			boolInt(r.Federated), r.Separation, r.NFederated)
	}
	if err := bw.Flush(); err != nil {
		return eris.Wrap(err, "report: write self-match table")
	}
	return nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
