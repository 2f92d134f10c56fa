package apiclient

import (
	"math"
	"time"
)

// Backoff computes exponential retry delays: Base * 2^attempt, where the
// first retry is attempt 1. Max caps the delay when positive.
type Backoff struct {
	Base time.Duration
	Max  time.Duration
}

func (b Backoff) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := float64(b.Base) * math.Pow(2, float64(attempt))
	delay := time.Duration(math.MaxInt64)
	if d < float64(math.MaxInt64) {
		delay = time.Duration(d)
	}
	if b.Max > 0 && delay > b.Max {
		delay = b.Max
	}
	return delay
}
