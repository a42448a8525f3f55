package resilience

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastRetry(attempts int) RetryConfig {
	return RetryConfig{MaxAttempts: attempts, InitialBackoff: time.Millisecond, MaxBackoff: 5 * time.Millisecond}
}

func TestDo(t *testing.T) {
	tests := []struct {
		name      string
		failures  int
		transient bool
		attempts  int
		wantCalls int
		wantErr   bool
	}{
		{"first try", 0, true, 3, 1, false},
		{"recovers", 2, true, 3, 3, false},
		{"exhausted", 5, true, 3, 3, true},
		{"permanent", 5, false, 3, 1, true},
		{"single attempt", 5, true, 1, 1, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calls := 0
			err := Do(context.Background(), fastRetry(tt.attempts), func(context.Context) error {
				calls++
				if calls <= tt.failures {
					if tt.transient {
						return NewTransientError(errors.New("busy"), http.StatusServiceUnavailable)
					}
					return errors.New("bad request")
				}
				return nil
			})
			assert.Equal(t, tt.wantCalls, calls)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestDoVal_RetriesAndLogs(t *testing.T) {
	cfg := fastRetry(3)
	var retried []int
	cfg.OnRetry = func(attempt int, _ error) { retried = append(retried, attempt) }

	calls := 0
	got, err := DoVal(context.Background(), cfg, func(context.Context) (string, error) {
		calls++
		if calls == 1 {
			return "", NewTransientError(errors.New("timeout"), 0)
		}
		return "ok", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", got)
	assert.Equal(t, []int{1}, retried)
}

func TestDoVal_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	calls := 0
	_, err := DoVal(ctx, fastRetry(5), func(context.Context) (int, error) {
		calls++
		return 0, NewTransientError(errors.New("busy"), 503)
	})
	assert.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestForService(t *testing.T) {
	cfg := ForService(7, "mast", "invoke")
	assert.Equal(t, 7, cfg.MaxAttempts)
	assert.NotNil(t, cfg.OnRetry)
	assert.Equal(t, 3, ForService(0, "mast", "invoke").MaxAttempts)
}

func TestIsTransient(t *testing.T) {
	assert.False(t, IsTransient(nil))
	assert.True(t, IsTransient(NewTransientError(errors.New("x"), 429)))
	assert.True(t, IsTransient(errors.New("read tcp: connection reset by peer")))
	assert.False(t, IsTransient(errors.New("bad request")))
}

func TestHTTPStatusError(t *testing.T) {
	err := HTTPStatusError("mast", 503, "down")
	assert.True(t, IsTransient(err))
	assert.Contains(t, err.Error(), "unexpected status 503")

	err = HTTPStatusError("mast", 400, "bad")
	assert.False(t, IsTransient(err))
}

func TestPoll(t *testing.T) {
	calls := 0
	got, err := Poll(context.Background(), PollConfig{Name: "job", Interval: time.Millisecond, Heartbeat: time.Millisecond},
		func(context.Context) (string, bool, error) {
			calls++
			return "done", calls == 3, nil
		})
	require.NoError(t, err)
	assert.Equal(t, "done", got)
	assert.Equal(t, 3, calls)
}

func TestPoll_Deadline(t *testing.T) {
	_, err := Poll(context.Background(), PollConfig{Name: "job", Interval: 5 * time.Millisecond, Deadline: 20 * time.Millisecond},
		func(context.Context) (int, bool, error) { return 0, false, nil })
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrPollDeadline)
}

func TestPoll_CheckError(t *testing.T) {
	boom := errors.New("boom")
	_, err := Poll(context.Background(), PollConfig{Interval: time.Millisecond},
		func(context.Context) (int, bool, error) { return 0, false, boom })
	assert.ErrorIs(t, err, boom)
}

func TestPoll_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	_, err := Poll(ctx, PollConfig{Interval: time.Millisecond}, func(context.Context) (int, bool, error) {
		calls++
		if calls == 2 {
			cancel()
		}
		return 0, false, nil
	})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestPollFromSeconds(t *testing.T) {
	cfg := PollFromSeconds("mast", 5, 30, 0)
	assert.Equal(t, 5*time.Second, cfg.Interval)
	assert.Equal(t, 30*time.Second, cfg.Heartbeat)
	assert.Zero(t, cfg.Deadline)
}
