// Package sky answers cone searches over a table of target positions.
package sky

import (
	"context"
	"io"
	"math"
	"sort"
	"strconv"

	"github.com/rotisserie/eris"
	"github.com/soniakeys/meeus/v3/angle"
	"github.com/soniakeys/unit"
	"github.com/twpayne/go-geom"
	"go.uber.org/zap"

	"github.com/sells-group/tess-exoclass/internal/fetcher"
)

// Position is a catalog target on the sky.
type Position struct {
	ID  uint64
	RA  unit.Angle
	Dec unit.Angle
}

// Match is a position found by a cone search.
type Match struct {
	Position
	Separation unit.Angle
}

// Separation returns the great-circle distance between two positions.
func Separation(ra1, dec1, ra2, dec2 unit.Angle) unit.Angle {
	return angle.Sep(ra1, dec1, ra2, dec2)
}

// Index buckets positions into one-degree declination bands.
type Index struct {
	pos    []Position
	pts    []*geom.Point
	bands  map[int][]int
	byID   map[uint64]int
	bounds *geom.Bounds
}

// NewIndex builds an index. When an ID repeats, the first position wins for
// ByID lookups; cone searches still see every row.
func NewIndex(pos []Position) *Index {
	ix := &Index{
		pos:    pos,
		pts:    make([]*geom.Point, len(pos)),
		bands:  make(map[int][]int),
		byID:   make(map[uint64]int, len(pos)),
		bounds: geom.NewBounds(geom.XY),
	}
	for i, p := range pos {
		ra, dec := normRA(p.RA.Deg()), p.Dec.Deg()
		pt := geom.NewPointFlat(geom.XY, []float64{ra, dec})
		ix.pts[i] = pt
		ix.bounds.Extend(pt)
		b := band(dec)
		ix.bands[b] = append(ix.bands[b], i)
		if _, ok := ix.byID[p.ID]; !ok {
			ix.byID[p.ID] = i
		}
	}
	return ix
}

// Len returns the number of indexed positions.
func (ix *Index) Len() int { return len(ix.pos) }

// ByID returns the position recorded for id.
func (ix *Index) ByID(id uint64) (Position, bool) {
	i, ok := ix.byID[id]
	if !ok {
		return Position{}, false
	}
	return ix.pos[i], true
}

// Cone returns every position within radius of (ra, dec), nearest first.
func (ix *Index) Cone(ra, dec, radius unit.Angle) []Match {
	out, _ := ix.cone(ra, dec, radius)
	return out
}

// coneStats counts the positions a search looked at and how many of them
// the bounding boxes turned away before the exact separation test.
type coneStats struct {
	scanned  int
	rejected int
}

func (ix *Index) cone(ra, dec, radius unit.Angle) ([]Match, coneStats) {
	var st coneStats
	r := radius.Deg()
	if r < 0 || math.IsNaN(r) {
		return nil, st
	}
	boxes := searchBoxes(normRA(ra.Deg()), dec.Deg(), r)
	if !overlapsAny(boxes, ix.bounds) {
		return nil, st
	}

	var out []Match
	for b := band(dec.Deg() - r); b <= band(dec.Deg()+r); b++ {
		for _, i := range ix.bands[b] {
			st.scanned++
			if !inAny(boxes, ix.pts[i].Coords()) {
				st.rejected++
				continue
			}
			p := ix.pos[i]
			sep := Separation(ra, dec, p.RA, p.Dec)
			if sep.Deg() <= r {
				out = append(out, Match{Position: p, Separation: sep})
			}
		}
	}
	sort.SliceStable(out, func(a, b int) bool {
		if out[a].Separation != out[b].Separation {
			return out[a].Separation < out[b].Separation
		}
		return out[a].ID < out[b].ID
	})
	return out, st
}

// searchBoxes covers the cone with one or two RA/Dec rectangles, splitting
// at RA 0/360. Near the poles the whole RA range is searched.
func searchBoxes(ra, dec, r float64) []*geom.Bounds {
	lo, hi := dec-r, dec+r
	cosd := math.Cos(math.Min(90, math.Max(math.Abs(lo), math.Abs(hi))) * math.Pi / 180)
	if hi >= 90 || lo <= -90 || cosd < 1e-9 || r/cosd >= 180 {
		return []*geom.Bounds{geom.NewBounds(geom.XY).Set(0, lo, 360, hi)}
	}
	hw := r / cosd
	out := []*geom.Bounds{geom.NewBounds(geom.XY).Set(math.Max(ra-hw, 0), lo, math.Min(ra+hw, 360), hi)}
	if ra-hw < 0 {
		out = append(out, geom.NewBounds(geom.XY).Set(ra-hw+360, lo, 360, hi))
	}
	if ra+hw > 360 {
		out = append(out, geom.NewBounds(geom.XY).Set(0, lo, ra+hw-360, hi))
	}
	return out
}

// overlapsAny reports whether any search box touches the extent of the
// index. An empty index overlaps nothing.
func overlapsAny(boxes []*geom.Bounds, extent *geom.Bounds) bool {
	if extent.IsEmpty() {
		return false
	}
	for _, b := range boxes {
		if b.Overlaps(geom.XY, extent) {
			return true
		}
	}
	return false
}

func inAny(boxes []*geom.Bounds, c geom.Coord) bool {
	for _, b := range boxes {
		if b.OverlapsPoint(geom.XY, c) {
			return true
		}
	}
	return false
}

func band(dec float64) int { return int(math.Floor(dec)) }

func normRA(deg float64) float64 {
	deg = math.Mod(deg, 360)
	if deg < 0 {
		deg += 360
	}
	return deg
}

// LoadPositions reads a CSV with a header naming ID, ra and dec columns
// (degrees, case-insensitive). Rows with unparsable coordinates are skipped.
func LoadPositions(ctx context.Context, r io.Reader, name string) ([]Position, error) {
	var (
		out     []Position
		skipped int
	)
	err := fetcher.ReadCSV(ctx, r, fetcher.CSVOptions{
		Name:     name,
		Comment:  '#',
		Required: []string{"id", "ra", "dec"},
	}, func(h fetcher.CSVHeader, row fetcher.TableRow) error {
		p, ok := parsePosition(row.Fields, h)
		if !ok {
			skipped++
			return nil
		}
		out = append(out, p)
		return nil
	})
	if err != nil {
		return nil, eris.Wrap(err, "sky: load positions")
	}
	if skipped > 0 {
		zap.L().Warn("sky: skipped unusable positions", zap.String("file", name), zap.Int("count", skipped))
	}
	zap.L().Info("sky: loaded positions", zap.String("file", name), zap.Int("count", len(out)))
	return out, nil
}

func parsePosition(row []string, h fetcher.CSVHeader) (Position, bool) {
	get := func(k string) string {
		i, _ := h.Index(k)
		if i >= len(row) {
			return ""
		}
		return row[i]
	}
	id, err := strconv.ParseUint(get("id"), 10, 64)
	if err != nil {
		return Position{}, false
	}
	ra, err1 := strconv.ParseFloat(get("ra"), 64)
	dec, err2 := strconv.ParseFloat(get("dec"), 64)
	if err1 != nil || err2 != nil || math.IsNaN(ra) || math.IsNaN(dec) || math.Abs(dec) > 90 {
		return Position{}, false
	}
	return Position{ID: id, RA: unit.AngleFromDeg(ra), Dec: unit.AngleFromDeg(dec)}, true
}
