// Package exoarchive queries the NASA Exoplanet Archive TAP service for
// known planets.
package exoarchive

import (
	"bytes"
	"context"
	"encoding/csv"
	"io"
	"math"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/jszwec/csvutil"
	"github.com/rotisserie/eris"
	"golang.org/x/text/unicode/norm"
	"golang.org/x/time/rate"

	"github.com/sells-group/tess-exoclass/internal/model"
	"github.com/sells-group/tess-exoclass/internal/resilience"
)

// DefaultBaseURL is the synchronous TAP endpoint.
const DefaultBaseURL = "https://exoplanetarchive.ipac.caltech.edu/TAP/sync"

const planetColumns = "pl_name,pl_orbper,pl_tranmid,pl_trandur,ra,dec"

// Planet is one row of the planetary systems table. Missing values are nil.
type Planet struct {
	Name     string   `csv:"pl_name"`
	Period   *float64 `csv:"pl_orbper"`
	TranMid  *float64 `csv:"pl_tranmid"`
	Duration *float64 `csv:"pl_trandur"`
	RA       *float64 `csv:"ra"`
	Dec      *float64 `csv:"dec"`
}

type periodRow struct {
	Name   string   `csv:"pl_name"`
	Period *float64 `csv:"pl_orbper"`
}

// Client reads planet tables.
type Client interface {
	// Planets returns the planets matching an ADQL where clause.
	Planets(ctx context.Context, where string) ([]Planet, error)
	// ResolvePeriod returns the first finite period recorded for a planet
	// across all parameter sets.
	ResolvePeriod(ctx context.Context, name string) (float64, error)
}

// Option configures the client.
type Option func(*client)

// WithBaseURL overrides the TAP endpoint.
func WithBaseURL(u string) Option {
	return func(c *client) { c.baseURL = u }
}

// WithHTTPClient sets the HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *client) { c.httpClient = hc }
}

// WithRateLimit sets the request rate in requests per second.
func WithRateLimit(rps float64) Option {
	return func(c *client) { c.limiter = rate.NewLimiter(rate.Limit(rps), max(1, int(rps))) }
}

// WithRetry sets the retry policy.
func WithRetry(cfg resilience.RetryConfig) Option {
	return func(c *client) { c.retry = cfg }
}

type client struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
	retry      resilience.RetryConfig
}

// NewClient creates an archive client.
func NewClient(opts ...Option) Client {
	c := &client{
		baseURL:    DefaultBaseURL,
		httpClient: &http.Client{Timeout: 60 * time.Second},
		limiter:    rate.NewLimiter(2, 2),
		retry:      resilience.ForService(3, "exoarchive", "tap"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *client) Planets(ctx context.Context, where string) ([]Planet, error) {
	q := "select " + planetColumns + " from ps"
	if strings.TrimSpace(where) != "" {
		q += " where " + where
	}
	body, err := c.tap(ctx, q)
	if err != nil {
		return nil, err
	}
	var out []Planet
	if err := decode(body, &out); err != nil {
		return nil, eris.Wrap(err, "exoarchive: decode planets")
	}
	return out, nil
}

func (c *client) ResolvePeriod(ctx context.Context, name string) (float64, error) {
	q := "select pl_name,pl_orbper from ps where pl_name = '" + strings.ReplaceAll(name, "'", "''") + "'"
	body, err := c.tap(ctx, q)
	if err != nil {
		return math.NaN(), err
	}
	var rows []periodRow
	if err := decode(body, &rows); err != nil {
		return math.NaN(), eris.Wrap(err, "exoarchive: decode periods")
	}
	for _, r := range rows {
		if r.Period != nil && !math.IsNaN(*r.Period) && !math.IsInf(*r.Period, 0) && *r.Period > 0 {
			return *r.Period, nil
		}
	}
	return math.NaN(), eris.Wrapf(model.ErrNoValidData, "exoarchive: no finite period for %q in %d rows", name, len(rows))
}

// tap runs a synchronous CSV query.
func (c *client) tap(ctx context.Context, query string) ([]byte, error) {
	params := url.Values{"query": {query}, "format": {"csv"}}
	reqURL := c.baseURL + "?" + params.Encode()

	body, err := resilience.DoVal(ctx, c.retry, func(ctx context.Context) ([]byte, error) {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, eris.Wrap(err, "exoarchive: rate limit")
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
		if err != nil {
			return nil, eris.Wrap(err, "exoarchive: build request")
		}
		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, eris.Wrap(err, "exoarchive: request")
		}
		defer resp.Body.Close() //nolint:errcheck

		raw, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, eris.Wrap(err, "exoarchive: read body")
		}
		if resp.StatusCode != http.StatusOK {
			return nil, resilience.HTTPStatusError("exoarchive", resp.StatusCode, string(raw))
		}
		return raw, nil
	})
	if err != nil {
		return nil, eris.Wrapf(model.ErrUpstreamQuery, "exoarchive: %v", err)
	}
	return body, nil
}

func decode[T any](body []byte, out *[]T) error {
	if len(bytes.TrimSpace(body)) == 0 {
		return nil
	}
	dec, err := csvutil.NewDecoder(csv.NewReader(bytes.NewReader(body)))
	if err != nil {
		return eris.Wrap(err, "read header")
	}
	for {
		var v T
		if err := dec.Decode(&v); err == io.EOF {
			return nil
		} else if err != nil {
			return eris.Wrap(err, "decode row")
		}
		*out = append(*out, v)
	}
}

// NormalizeName folds compatibility characters and drops whitespace so a
// planet name fits one output column.
func NormalizeName(name string) string {
	return strings.Join(strings.Fields(norm.NFKC.String(name)), "")
}

// Entries converts planets to catalog entries. Entries are numbered by row
// and carry no TIC; epochs are shifted by epochOffset (BJD to BTJD).
func Entries(planets []Planet, epochOffset float64) []model.CatalogEntry {
	out := make([]model.CatalogEntry, len(planets))
	for i, p := range planets {
		out[i] = model.CatalogEntry{
			ID:       float64(i),
			Label:    NormalizeName(p.Name),
			Name:     p.Name,
			Period:   value(p.Period),
			Epoch:    value(p.TranMid) - epochOffset,
			Duration: value(p.Duration),
			RA:       value(p.RA),
			Dec:      value(p.Dec),
		}
	}
	return out
}

func value(p *float64) float64 {
	if p == nil {
		return math.NaN()
	}
	return *p
}
