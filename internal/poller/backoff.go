package poller

import "time"

const (
	MaxAttempts          = 120
	MaxConsecutiveErrors = 3
	ErrorRetryDelay      = 5 * time.Second
)

// Backoff is a linear delay capped at Cap.
type Backoff struct {
	Base time.Duration
	Step time.Duration
	Cap  time.Duration
}

var (
	PendingBackoff    = Backoff{Base: 1000 * time.Millisecond, Step: 500 * time.Millisecond, Cap: 5000 * time.Millisecond}
	ProcessingBackoff = Backoff{Base: 500 * time.Millisecond, Step: 250 * time.Millisecond, Cap: 3000 * time.Millisecond}
)

func (b Backoff) Delay(attempts int) time.Duration {
	if attempts < 0 {
		attempts = 0
	}
	d := b.Base + time.Duration(attempts)*b.Step
	if b.Cap > 0 && d > b.Cap {
		return b.Cap
	}
	return d
}
