package outbox

import "time"

// RetryPolicy bounds how often and how late a queued message is retried
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
}

// DefaultRetryPolicy allows three attempts with a one second linear step
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 3, BaseDelay: time.Second}
}

// Delay returns the wait before the next attempt after attempts failures
func (p RetryPolicy) Delay(attempts int) time.Duration {
	if attempts < 1 {
		return 0
	}
	return time.Duration(attempts) * p.BaseDelay
}

// Exhausted reports whether no attempt is left after attempts failures
func (p RetryPolicy) Exhausted(attempts int) bool {
	return attempts >= p.MaxAttempts
}
