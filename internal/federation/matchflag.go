package federation

import "github.com/sells-group/tess-exoclass/internal/model"

// Catalog-match flag values printed in the tier files.
const (
	FlagNone          = 0
	FlagTOI           = 1  // federated with a TOI
	FlagTOIUnfed      = -1 // matched a TOI row without federating
	FlagKnown         = 2  // matched a known planet
	FlagTOINeighbour  = 3  // another TCE on the target matched a TOI
	FlagKnownOnTarget = 4  // a known planet matched another TCE on the target
)

// Matches indexes TOI and known-planet federation rows by the matched TCE.
type Matches struct {
	toi      map[model.Key]bool // key -> any row federated
	toiTIC   map[uint64]bool
	known    map[model.Key]bool
	knownTIC map[uint64]bool
}

// NewMatches indexes federation rows. Rows without a matched TCE are
// ignored.
func NewMatches(toi, known []model.FederationResult) *Matches {
	m := &Matches{
		toi:      make(map[model.Key]bool),
		toiTIC:   make(map[uint64]bool),
		known:    make(map[model.Key]bool),
		knownTIC: make(map[uint64]bool),
	}
	for _, r := range toi {
		if r.Match.IsZero() {
			continue
		}
		m.toi[r.Match] = m.toi[r.Match] || r.Federated
		m.toiTIC[r.Match.TIC] = true
	}
	for _, r := range known {
		if r.Match.IsZero() {
			continue
		}
		m.known[r.Match] = true
		m.knownTIC[r.Match.TIC] = true
	}
	return m
}

// Flag returns the catalog-match flag for k. Known-planet matches take
// precedence over TOI matches.
func (m *Matches) Flag(k model.Key) int {
	switch {
	case m.known[k]:
		return FlagKnown
	case m.knownTIC[k.TIC]:
		return FlagKnownOnTarget
	}
	fed, ok := m.toi[k]
	switch {
	case ok && fed:
		return FlagTOI
	case ok:
		return FlagTOIUnfed
	case m.toiTIC[k.TIC]:
		return FlagTOINeighbour
	default:
		return FlagNone
	}
}
