package transport

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBackoff_ExponentialAndCapped(t *testing.T) {
	b := &Backoff{Base: 5 * time.Second, Max: 60 * time.Second}

	want := []time.Duration{5, 10, 20, 40, 60, 60, 60}
	for i, w := range want {
		assert.Equal(t, w*time.Second, b.Next(), "attempt %d", i)
	}
}

func TestBackoff_JitterNeverDecreases(t *testing.T) {
	values := []float64{0.0, 0.99, 0.1, 0.9, 0.5, 0.0, 0.99, 0.3, 0.7, 0.99}
	i := 0
	b := &Backoff{
		Base:   5 * time.Second,
		Max:    60 * time.Second,
		Jitter: 0.5,
		Rand: func() float64 {
			v := values[i%len(values)]
			i++
			return v
		},
	}

	var prev time.Duration
	for n := 0; n < 40; n++ {
		d := b.Next()
		assert.GreaterOrEqual(t, d, prev, "attempt %d", n)
		assert.LessOrEqual(t, d, 60*time.Second, "attempt %d", n)
		prev = d
	}
}

func TestBackoff_Reset(t *testing.T) {
	b := &Backoff{Base: time.Second, Max: 8 * time.Second}
	b.Next()
	b.Next()
	b.Next()

	b.Reset()
	assert.Equal(t, time.Second, b.Next())
}

func TestBackoff_HugeAttemptDoesNotOverflow(t *testing.T) {
	b := &Backoff{Base: time.Second, Max: time.Minute}
	for range 200 {
		d := b.Next()
		assert.Greater(t, d, time.Duration(0))
		assert.LessOrEqual(t, d, time.Minute)
	}
}
