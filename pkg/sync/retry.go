package sync

import "time"

// Policy controls how failed sync attempts are retried.
type Policy struct {
	// MaxRetries is the number of retries after the initial attempt.
	MaxRetries int
	// BaseDelay is the delay before the first retry. Each further retry
	// doubles it.
	BaseDelay time.Duration
	// MaxDelay caps the exponential backoff.
	MaxDelay time.Duration
}

func DefaultPolicy() Policy {
	return Policy{
		MaxRetries: 3,
		BaseDelay:  time.Second,
		MaxDelay:   10 * time.Second,
	}
}

// Delay returns the backoff before the retry following the given
// zero-based failed attempt.
func (p Policy) Delay(attempt int) time.Duration {
	delay := p.BaseDelay << attempt
	if delay <= 0 || delay > p.MaxDelay {
		return p.MaxDelay
	}
	return delay
}
