package transport

import (
	"math"
	"math/rand/v2"
	"time"
)

// Backoff spaces out dial attempts. The wait before retry n is
// Initial*Multiplier^(n-1), capped at Ceiling, then spread by +/- Jitter.
type Backoff struct {
	Initial    time.Duration
	Ceiling    time.Duration
	Multiplier float64
	Jitter     float64
}

// DefaultBackoff is used when the config leaves the backoff fields unset.
func DefaultBackoff() Backoff {
	return Backoff{
		Initial:    250 * time.Millisecond,
		Ceiling:    5 * time.Second,
		Multiplier: 2,
		Jitter:     0.2,
	}
}

func (b Backoff) normalized() Backoff {
	if b.Initial <= 0 {
		b.Initial = 100 * time.Millisecond
	}
	if b.Ceiling < b.Initial {
		b.Ceiling = max(b.Initial, 5*time.Second)
	}
	if b.Multiplier <= 1 {
		b.Multiplier = 2
	}
	b.Jitter = min(max(b.Jitter, 0), 1)
	return b
}

// Next returns the wait after the given failed attempt, counted from 1.
func (b Backoff) Next(attempt int) time.Duration {
	b = b.normalized()
	exp := float64(max(attempt, 1) - 1)
	wait := float64(b.Initial) * math.Pow(b.Multiplier, exp)
	if math.IsInf(wait, 0) || wait > float64(b.Ceiling) {
		wait = float64(b.Ceiling)
	}
	if b.Jitter > 0 {
		wait += wait * b.Jitter * (2*rand.Float64() - 1)
	}
	return time.Duration(wait)
}
