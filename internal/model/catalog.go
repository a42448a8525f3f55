package model

// CatalogEntry is an external known-planet or candidate record used as the
// reference side of a federation. TIC is zero for entries that only carry a
// sky position. Epoch and Duration are NaN for non-transiting planets. Name
// is the catalog's own spelling; Label is what the output tables print.
type CatalogEntry struct {
	TIC      uint64  `json:"tic"`
	ID       float64 `json:"id"`
	Label    string  `json:"label"`
	Name     string  `json:"name,omitempty"`
	Period   float64 `json:"period"`
	Epoch    float64 `json:"epoch"`
	Duration float64 `json:"duration"`
	RA       float64 `json:"ra"`
	Dec      float64 `json:"dec"`
}

// HasEphemeris reports whether the entry can be matched in the time domain.
func (e CatalogEntry) HasEphemeris() bool {
	return isFinite(e.Period) && e.Period > 0 && isFinite(e.Epoch)
}

// MatchQuality grades a federation result.
type MatchQuality int

const (
	MatchUnavailable MatchQuality = -1 // no candidates to compare against
	MatchNone        MatchQuality = 0
	MatchExact       MatchQuality = 1
	MatchDirect      MatchQuality = 2
	MatchAliased     MatchQuality = 3
	MatchApproximate MatchQuality = 4
)

// String returns a short label for logs.
func (q MatchQuality) String() string {
	switch q {
	case MatchUnavailable:
		return "unavailable"
	case MatchNone:
		return "none"
	case MatchExact:
		return "exact"
	case MatchDirect:
		return "direct"
	case MatchAliased:
		return "aliased"
	case MatchApproximate:
		return "approximate"
	default:
		return "unknown"
	}
}

// FederationResult is one row of a federation table: a catalog entry and the
// candidate that best matched it.
type FederationResult struct {
	CatalogTIC  uint64       `json:"catalog_tic"`
	CatalogID   float64      `json:"catalog_id"`
	Label       string       `json:"label"`
	Match       Key          `json:"match"`
	Quality     MatchQuality `json:"quality"`
	Statistic   float64      `json:"statistic"`
	RatioFlag   bool         `json:"ratio_flag"`
	PeriodRatio float64      `json:"period_ratio"`
	Federated   bool         `json:"federated"`
}

// NoMatch returns the sentinel row for a catalog entry that matched nothing.
func NoMatch(e CatalogEntry) FederationResult {
	return FederationResult{
		CatalogTIC:  e.TIC,
		CatalogID:   e.ID,
		Label:       e.Label,
		Quality:     MatchUnavailable,
		Statistic:   -1,
		PeriodRatio: -1,
	}
}
