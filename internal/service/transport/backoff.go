package transport

import (
	"math/rand/v2"
	"time"
)

// Backoff produces reconnect delays: exponential from Base, capped at Max,
// with up to Jitter (a fraction) shaved off each delay. The sequence never
// decreases, so jitter only spreads clients out while they are still ramping
// up towards Max.
type Backoff struct {
	Base   time.Duration
	Max    time.Duration
	Jitter float64
	Rand   func() float64

	attempt int
	last    time.Duration
}

// Next returns the delay before the next reconnect attempt.
func (b *Backoff) Next() time.Duration {
	d := b.Max
	if b.attempt < 32 {
		if exp := b.Base << b.attempt; exp > 0 && exp < b.Max {
			d = exp
		}
	}

	if b.Jitter > 0 {
		random := b.Rand
		if random == nil {
			random = rand.Float64
		}
		d -= time.Duration(b.Jitter * random() * float64(d))
	}

	if d < b.last {
		d = b.last
	}
	if d > b.Max {
		d = b.Max
	}

	b.last = d
	b.attempt++
	return d
}

// Reset starts the sequence over after a successful connection.
func (b *Backoff) Reset() {
	b.attempt = 0
	b.last = 0
}
