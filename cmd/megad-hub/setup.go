package main

import (
	"context"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/thatsimonsguy/megad-hub/internal/controller"
)

// backoff bounds the delay between setup attempts of one controller.
type backoff struct {
	Initial time.Duration
	Max     time.Duration
}

var setupBackoff = backoff{Initial: 30 * time.Second, Max: 10 * time.Minute}

func (b backoff) next(d time.Duration) time.Duration {
	if d == 0 {
		return b.Initial
	}
	d *= 2
	if d > b.Max {
		return b.Max
	}
	return d
}

// setupController calls start until it succeeds or ctx is done, then hands
// the coordinator to ready. The notifier hears about the first failure and
// about a late success only.
func setupController(
	ctx context.Context,
	id string,
	b backoff,
	notifier controller.Notifier,
	start func(context.Context) (*controller.Coordinator, error),
	ready func(*controller.Coordinator),
) {
	var delay time.Duration
	for attempt := 1; ; attempt++ {
		c, err := start(ctx)
		if err == nil {
			if attempt > 1 && notifier != nil {
				_ = notifier.Send("Controller ready", id+" set up after "+strconv.Itoa(attempt)+" attempts")
			}
			ready(c)
			return
		}
		if ctx.Err() != nil {
			return
		}

		delay = b.next(delay)
		log.Error().Err(err).Str("controller", id).Int("attempt", attempt).Dur("retry_in", delay).Msg("Controller setup failed")
		if attempt == 1 && notifier != nil {
			_ = notifier.Send("Controller setup failed", id+": "+err.Error())
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}
	}
}
