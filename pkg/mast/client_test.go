package mast

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/soniakeys/unit"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/sells-group/tess-exoclass/internal/model"
	"github.com/sells-group/tess-exoclass/internal/resilience"
)

func newTestClient(url string, opts ...Option) Client {
	base := []Option{
		WithBaseURL(url),
		WithPoll(resilience.PollConfig{Interval: time.Millisecond, Deadline: 200 * time.Millisecond}),
		WithRetry(resilience.RetryConfig{MaxAttempts: 2, InitialBackoff: time.Millisecond}),
		func(c *client) { c.limiter = rate.NewLimiter(rate.Inf, 1) },
	}
	return NewClient(append(base, opts...)...)
}

// decodeRequest extracts the JSON request from the form body.
func decodeRequest(t *testing.T, r *http.Request) map[string]any {
	t.Helper()
	require.NoError(t, r.ParseForm())
	var req map[string]any
	require.NoError(t, json.Unmarshal([]byte(r.PostForm.Get("request")), &req))
	return req
}

func TestPosition(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		req := decodeRequest(t, r)
		assert.Equal(t, serviceTIC, req["service"])
		_, _ = io.WriteString(w, `{"status":"COMPLETE","data":[{"ID":"261136679","ra":84.29,"dec":-80.47}]}`)
	}))
	defer srv.Close()

	ra, dec, found, err := newTestClient(srv.URL).Position(context.Background(), 261136679)
	require.NoError(t, err)
	assert.True(t, found)
	assert.InDelta(t, 84.29, ra, 1e-9)
	assert.InDelta(t, -80.47, dec, 1e-9)
}

func TestPosition_NotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, `{"status":"COMPLETE","data":[]}`)
	}))
	defer srv.Close()

	_, _, found, err := newTestClient(srv.URL).Position(context.Background(), 1)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestCone_PollsWhileExecuting(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		req := decodeRequest(t, r)
		params := req["params"].(map[string]any)
		assert.Equal(t, servicePosition, req["service"])
		assert.Equal(t, "0.0500000", params["radius"])
		if calls.Add(1) < 3 {
			_, _ = io.WriteString(w, `{"status":"EXECUTING","data":[]}`)
			return
		}
		_, _ = io.WriteString(w, `{"status":"COMPLETE","data":[{"ID":10,"ra":1,"dec":2},{"ID":"11","ra":1,"dec":2}]}`)
	}))
	defer srv.Close()

	ids, err := newTestClient(srv.URL).Cone(context.Background(), 1, 2, unit.AngleFromSec(180))
	require.NoError(t, err)
	assert.Equal(t, []uint64{10, 11}, ids)
	assert.Equal(t, int32(3), calls.Load())
}

func TestCone_NeverFinishes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, `{"status":"EXECUTING"}`)
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL).Cone(context.Background(), 1, 2, unit.AngleFromSec(30))
	require.Error(t, err)
	assert.ErrorIs(t, err, model.ErrUpstreamQuery)
}

func TestQuery_Failures(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
	}{
		{"error status", http.StatusOK, `{"status":"ERROR","msg":"bad filter"}`},
		{"garbage", http.StatusOK, `not json`},
		{"server error", http.StatusBadGateway, `oops`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = io.WriteString(w, tt.body)
			}))
			defer srv.Close()

			_, err := newTestClient(srv.URL).Cone(context.Background(), 1, 2, unit.AngleFromSec(30))
			require.Error(t, err)
			assert.ErrorIs(t, err, model.ErrUpstreamQuery)
		})
	}
}

func TestQuery_RetriesTransient(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = io.WriteString(w, `{"status":"COMPLETE","data":[{"ID":"5","ra":0,"dec":0}]}`)
	}))
	defer srv.Close()

	ids, err := newTestClient(srv.URL).Cone(context.Background(), 0, 0, unit.AngleFromSec(30))
	require.NoError(t, err)
	assert.Equal(t, []uint64{5}, ids)
	assert.Equal(t, int32(2), calls.Load())
}
