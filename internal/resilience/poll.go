package resilience

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// ErrPollDeadline is returned when a polled job is still running at the
// deadline.
var ErrPollDeadline = eris.New("poll deadline exceeded")

// PollConfig controls Poll.
type PollConfig struct {
	// Name labels heartbeat log lines.
	Name string

	// Interval is the wait between two checks. Default for MAST jobs: 5s.
	Interval time.Duration

	// Heartbeat is the minimum gap between progress logs; 0 disables them.
	Heartbeat time.Duration

	// Deadline bounds the total wait; 0 polls until ctx ends.
	Deadline time.Duration
}

// PollFromSeconds builds a PollConfig from whole-second settings.
func PollFromSeconds(name string, interval, heartbeat, deadline int) PollConfig {
	return PollConfig{
		Name:      name,
		Interval:  time.Duration(interval) * time.Second,
		Heartbeat: time.Duration(heartbeat) * time.Second,
		Deadline:  time.Duration(deadline) * time.Second,
	}
}

// Poll calls check until it reports done or fails, sleeping Interval between
// calls. The first check runs immediately.
func Poll[T any](ctx context.Context, cfg PollConfig, check func(ctx context.Context) (T, bool, error)) (T, error) {
	var zero T
	if cfg.Interval <= 0 {
		cfg.Interval = time.Second
	}
	start := time.Now()
	lastBeat := start

	for polls := 1; ; polls++ {
		val, done, err := check(ctx)
		if err != nil {
			return zero, err
		}
		if done {
			return val, nil
		}

		now := time.Now()
		if cfg.Deadline > 0 && now.Sub(start)+cfg.Interval > cfg.Deadline {
			return zero, eris.Wrapf(ErrPollDeadline, "resilience: %s after %d polls", cfg.Name, polls)
		}
		if cfg.Heartbeat > 0 && now.Sub(lastBeat) >= cfg.Heartbeat {
			lastBeat = now
			zap.L().Info("resilience: still waiting",
				zap.String("job", cfg.Name),
				zap.Duration("elapsed", now.Sub(start)),
				zap.Int("polls", polls),
			)
		}
		if !sleep(ctx, cfg.Interval) {
			return zero, eris.Wrapf(ctx.Err(), "resilience: %s cancelled", cfg.Name)
		}
	}
}
