// Package mast queries the MAST TIC catalog for target positions and cone
// searches.
package mast

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/rotisserie/eris"
	"github.com/soniakeys/unit"
	"golang.org/x/time/rate"

	"github.com/sells-group/tess-exoclass/internal/model"
	"github.com/sells-group/tess-exoclass/internal/resilience"
)

// DefaultBaseURL is the MAST invoke endpoint.
const DefaultBaseURL = "https://mast.stsci.edu/api/v0/invoke"

const (
	serviceTIC      = "Mast.Catalogs.Filtered.Tic"
	servicePosition = "Mast.Catalogs.Filtered.Tic.Position"

	statusExecuting = "EXECUTING"
	statusError     = "ERROR"
)

// Client looks up TIC targets.
type Client interface {
	// Position returns the sky position of a TIC target. found is false when
	// the catalog has no such target.
	Position(ctx context.Context, tic uint64) (ra, dec float64, found bool, err error)

	// Cone returns the TIC ids within radius of (ra, dec) in degrees.
	Cone(ctx context.Context, ra, dec float64, radius unit.Angle) ([]uint64, error)
}

// Option configures the client.
type Option func(*client)

// WithBaseURL overrides the invoke endpoint.
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

// WithPoll sets how EXECUTING jobs are polled.
func WithPoll(cfg resilience.PollConfig) Option {
	return func(c *client) { c.poll = cfg }
}

// WithRetry sets the retry policy for transport failures.
func WithRetry(cfg resilience.RetryConfig) Option {
	return func(c *client) { c.retry = cfg }
}

// WithMaxTmag sets the faint limit of cone searches.
func WithMaxTmag(tmag float64) Option {
	return func(c *client) { c.maxTmag = tmag }
}

type client struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
	poll       resilience.PollConfig
	retry      resilience.RetryConfig
	maxTmag    float64
}

// NewClient creates a MAST client.
func NewClient(opts ...Option) Client {
	c := &client{
		baseURL:    DefaultBaseURL,
		httpClient: &http.Client{Timeout: 60 * time.Second},
		limiter:    rate.NewLimiter(2, 2),
		poll:       resilience.PollFromSeconds("mast", 5, 30, 1800),
		retry:      resilience.ForService(3, "mast", "invoke"),
		maxTmag:    20,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type filter struct {
	ParamName string `json:"paramName"`
	Values    []any  `json:"values"`
}

type span struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

type request struct {
	Service           string         `json:"service"`
	Params            map[string]any `json:"params"`
	Format            string         `json:"format"`
	RemoveNullColumns bool           `json:"removenullcolumns"`
}

type response struct {
	Status string   `json:"status"`
	Msg    string   `json:"msg"`
	Data   []ticRow `json:"data"`
}

type ticRow struct {
	ID  ticID   `json:"ID"`
	RA  float64 `json:"ra"`
	Dec float64 `json:"dec"`
}

// ticID accepts the id as either a JSON string or number.
type ticID uint64

func (t *ticID) UnmarshalJSON(b []byte) error {
	s := string(bytes.Trim(b, `"`))
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return eris.Wrapf(err, "mast: parse TIC id %s", b)
	}
	*t = ticID(v)
	return nil
}

func (c *client) Position(ctx context.Context, tic uint64) (float64, float64, bool, error) {
	resp, err := c.query(ctx, request{
		Service: serviceTIC,
		Params: map[string]any{
			"columns": "ID,ra,dec",
			"filters": []filter{{ParamName: "ID", Values: []any{strconv.FormatUint(tic, 10)}}},
		},
		Format:            "json",
		RemoveNullColumns: true,
	})
	if err != nil {
		return 0, 0, false, eris.Wrapf(err, "mast: position of TIC %d", tic)
	}
	if len(resp.Data) == 0 {
		return 0, 0, false, nil
	}
	return resp.Data[0].RA, resp.Data[0].Dec, true, nil
}

func (c *client) Cone(ctx context.Context, ra, dec float64, radius unit.Angle) ([]uint64, error) {
	resp, err := c.query(ctx, request{
		Service: servicePosition,
		Params: map[string]any{
			"columns": "c.*",
			"filters": []filter{{ParamName: "Tmag", Values: []any{span{Min: 0, Max: c.maxTmag}}}},
			"ra":      strconv.FormatFloat(ra, 'f', 5, 64),
			"dec":     strconv.FormatFloat(dec, 'f', 5, 64),
			"radius":  strconv.FormatFloat(radius.Deg(), 'f', 7, 64),
		},
		Format: "json",
	})
	if err != nil {
		return nil, eris.Wrapf(err, "mast: cone at %.5f %.5f", ra, dec)
	}
	ids := make([]uint64, len(resp.Data))
	for i, r := range resp.Data {
		ids[i] = uint64(r.ID)
	}
	return ids, nil
}

// query invokes a service and polls until the job leaves EXECUTING. A job
// that never finishes or reports ERROR is an upstream failure.
func (c *client) query(ctx context.Context, req request) (*response, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, eris.Wrap(err, "mast: encode request")
	}
	form := "request=" + url.QueryEscape(string(body))

	poll := c.poll
	poll.Name = req.Service
	resp, err := resilience.Poll(ctx, poll, func(ctx context.Context) (*response, bool, error) {
		r, err := resilience.DoVal(ctx, c.retry, func(ctx context.Context) (*response, error) {
			return c.invoke(ctx, form)
		})
		if err != nil {
			return nil, false, err
		}
		return r, r.Status != statusExecuting, nil
	})
	if err != nil {
		return nil, eris.Wrapf(model.ErrUpstreamQuery, "mast: %s: %v", req.Service, err)
	}
	if resp.Status == statusError {
		return nil, eris.Wrapf(model.ErrUpstreamQuery, "mast: %s: %s", req.Service, resp.Msg)
	}
	return resp, nil
}

func (c *client) invoke(ctx context.Context, form string) (*response, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "mast: rate limit")
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, bytes.NewBufferString(form))
	if err != nil {
		return nil, eris.Wrap(err, "mast: build request")
	}
	httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	httpReq.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, eris.Wrap(err, "mast: request")
	}
	defer resp.Body.Close() //nolint:errcheck

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "mast: read body")
	}
	if resp.StatusCode != http.StatusOK {
		return nil, resilience.HTTPStatusError("mast", resp.StatusCode, string(raw))
	}

	var out response
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, eris.Wrap(err, "mast: parse response")
	}
	return &out, nil
}
