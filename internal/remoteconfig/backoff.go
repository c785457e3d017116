package remoteconfig

import (
	"math/rand"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// BackoffSchedule computes the startup fixed-window delays, the post-window
// exponential-with-jitter delays, and per-replica cooldowns described in
// spec §4.3. The post-window and cooldown shapes both delegate to
// backoff.ExponentialBackOff; the startup staircase is a small fixed table
// the library has no equivalent for.
type BackoffSchedule struct {
	// StartupWindow bounds how long the fixed staircase applies before the
	// schedule switches to exponential-with-jitter.
	StartupWindow time.Duration

	// Min and Max bound the post-window exponential-with-jitter delay and
	// the replica cooldown delay.
	Min time.Duration
	Max time.Duration

	// Rand supplies jitter; injected rather than read from a process
	// global so tests are deterministic (spec §9).
	Rand *rand.Rand
}

// NewBackoffSchedule returns the spec's default schedule: a 30s startup
// window, 30s minimum and 10m maximum post-window delay.
func NewBackoffSchedule() *BackoffSchedule {
	return &BackoffSchedule{
		StartupWindow: 30 * time.Second,
		Min:           30 * time.Second,
		Max:           10 * time.Minute,
		Rand:          rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// startupStaircase is the fixed delay table used while elapsed startup time
// remains within StartupWindow: short delays at first, backing off toward
// the window boundary.
var startupStaircase = []time.Duration{
	1 * time.Second,
	2 * time.Second,
	5 * time.Second,
	10 * time.Second,
	15 * time.Second,
}

// Next returns the delay before the next startup attempt given elapsed time
// since the first attempt and the zero-based attempt index. When elapsed
// has left the startup window, it falls back to the post-window exponential
// schedule keyed on attempt.
func (b *BackoffSchedule) Next(elapsed time.Duration, attempt int) time.Duration {
	if elapsed < b.StartupWindow && attempt < len(startupStaircase) {
		return startupStaircase[attempt]
	}
	return b.postWindow(attempt)
}

// postWindow implements delay(attempt) = clamp(min*2^(attempt-1), min, max)
// with uniform jitter in [0.8, 1.0]. The doubling itself is driven by
// backoff.ExponentialBackOff.NextBackOff: RandomizationFactor is zeroed so
// NextBackOff's own jitter is disabled in favor of the explicit [0.8, 1.0]
// jitter below, which the library has no equivalent for.
func (b *BackoffSchedule) postWindow(attempt int) time.Duration {
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = b.Min
	eb.MaxInterval = b.Max
	eb.Multiplier = 2.0
	eb.RandomizationFactor = 0
	eb.MaxElapsedTime = 0 // never stop producing delays
	eb.Reset()

	calls := attempt
	if calls < 1 {
		calls = 1
	}

	var delay time.Duration
	for i := 0; i < calls; i++ {
		delay = eb.NextBackOff()
	}
	if delay > b.Max {
		delay = b.Max
	}

	return b.jitter(delay)
}

// ReplicaCooldown computes the backoff duration applied to a replica after
// consecutiveFailures, using the same exponential-with-jitter shape as the
// post-window schedule.
func (b *BackoffSchedule) ReplicaCooldown(consecutiveFailures int) time.Duration {
	if consecutiveFailures <= 0 {
		return 0
	}
	return b.postWindow(consecutiveFailures)
}

// jitter multiplies d by a uniform factor in [0.8, 1.0].
func (b *BackoffSchedule) jitter(d time.Duration) time.Duration {
	r := b.Rand
	if r == nil {
		r = rand.New(rand.NewSource(1))
	}
	factor := 0.8 + 0.2*r.Float64()
	return time.Duration(float64(d) * factor)
}
