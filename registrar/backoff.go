package registrar

import "time"

// Backoff computes the delay before a retry attempt. Delays double each
// attempt: Initial, 2*Initial, 4*Initial, ... Stateless and safe for
// concurrent use.
type Backoff struct {
	Initial time.Duration
}

// Delay returns the wait before retry attempt n (1-indexed: attempt 1 is the
// first retry after the initial failure).
func (b Backoff) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	return b.Initial << (attempt - 1)
}
