package queue

import (
	"time"

	"github.com/sethvargo/go-retry"
)

const maxBackoff = 10 * time.Minute

// Policy decides how many times a job may run and how long to wait between runs.
type Policy struct {
	MaxAttempts int
	newBackoff  func() retry.Backoff
}

// ExponentialPolicy doubles the delay after every failed attempt, starting at base.
func ExponentialPolicy(maxAttempts int, base time.Duration) Policy {
	if base <= 0 {
		base = time.Second
	}
	return Policy{
		MaxAttempts: normalizeAttempts(maxAttempts),
		newBackoff: func() retry.Backoff {
			return retry.NewExponential(base)
		},
	}
}

// ConstantPolicy waits the same delay between attempts.
func ConstantPolicy(maxAttempts int, delay time.Duration) Policy {
	if delay <= 0 {
		delay = time.Second
	}
	return Policy{
		MaxAttempts: normalizeAttempts(maxAttempts),
		newBackoff: func() retry.Backoff {
			return retry.NewConstant(delay)
		},
	}
}

// NextDelay returns the wait before the attempt following attempt (1-based).
// The boolean is false once attempt has used up the budget.
func (p Policy) NextDelay(attempt int) (time.Duration, bool) {
	if attempt < 1 || attempt >= p.MaxAttempts || p.newBackoff == nil {
		return 0, false
	}
	b := retry.WithCappedDuration(maxBackoff, retry.WithMaxRetries(uint64(p.MaxAttempts-1), p.newBackoff()))
	var delay time.Duration
	for i := 0; i < attempt; i++ {
		next, stop := b.Next()
		if stop {
			return 0, false
		}
		delay = next
	}
	return delay, true
}

func normalizeAttempts(n int) int {
	if n < 1 {
		return 1
	}
	return n
}
