package exoarchive

import (
	"context"
	"io"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/tess-exoclass/internal/model"
	"github.com/sells-group/tess-exoclass/internal/resilience"
)

func newTestClient(url string) Client {
	return NewClient(
		WithBaseURL(url),
		WithRateLimit(1000),
		WithRetry(resilience.RetryConfig{MaxAttempts: 2, InitialBackoff: time.Millisecond}),
	)
}

func TestPlanets(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, "csv", q.Get("format"))
		assert.Equal(t, "select "+planetColumns+" from ps where tran_flag = 1", q.Get("query"))
		_, _ = io.WriteString(w, "pl_name,pl_orbper,pl_tranmid,pl_trandur,ra,dec\n"+
			"HD 209458 b,3.52474859,2452826.628521,3.0,330.79,18.88\n"+
			"Kepler-9 c,,,,285.57,38.4\n")
	}))
	defer srv.Close()

	got, err := newTestClient(srv.URL).Planets(context.Background(), "tran_flag = 1")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "HD 209458 b", got[0].Name)
	require.NotNil(t, got[0].Period)
	assert.InDelta(t, 3.52474859, *got[0].Period, 1e-12)
	assert.Nil(t, got[1].Period)

	entries := Entries(got, 2457000)
	assert.Equal(t, "HD209458b", entries[0].Label)
	assert.Equal(t, "HD 209458 b", entries[0].Name)
	assert.InDelta(t, 2452826.628521-2457000, entries[0].Epoch, 1e-9)
	assert.Equal(t, 1.0, entries[1].ID)
	assert.True(t, math.IsNaN(entries[1].Period))
	assert.False(t, entries[1].HasEphemeris())
}

func TestResolvePeriod(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query().Get("query")
		switch {
		case strings.Contains(q, "'HD 1 b'"):
			_, _ = io.WriteString(w, "pl_name,pl_orbper\nHD 1 b,\nHD 1 b,12.5\nHD 1 b,12.6\n")
		default:
			_, _ = io.WriteString(w, "pl_name,pl_orbper\nHD 2 b,\n")
		}
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	p, err := c.ResolvePeriod(context.Background(), "HD 1 b")
	require.NoError(t, err)
	assert.Equal(t, 12.5, p)

	_, err = c.ResolvePeriod(context.Background(), "HD 2 b")
	assert.ErrorIs(t, err, model.ErrNoValidData)
}

func TestTAP_Failure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL).Planets(context.Background(), "")
	assert.ErrorIs(t, err, model.ErrUpstreamQuery)
}

func TestNormalizeName(t *testing.T) {
	assert.Equal(t, "HD209458b", NormalizeName(" HD 209458 b "))
	assert.Equal(t, "Kepler-9c", NormalizeName("Kepler-9\u3000c"))
	assert.Equal(t, "WASP-12b", NormalizeName("ＷＡＳＰ-12 b"))
}
