package transport

import "time"

const (
	// baseReconnectDelay is the delay before the first reconnection attempt.
	baseReconnectDelay = 1 * time.Second

	// maxReconnectDelay caps the exponential backoff growth.
	maxReconnectDelay = 10 * time.Second
)

// ReconnectDelay returns the backoff delay for the given attempt number.
// Attempt 0 is the first retry after a drop. The delay doubles with each
// attempt and is capped at maxReconnectDelay: 1s, 2s, 4s, 8s, 10s, 10s, ...
func ReconnectDelay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	// Shifting past 63 bits would overflow; the cap is reached long before.
	if attempt > 32 {
		return maxReconnectDelay
	}
	delay := baseReconnectDelay << uint(attempt)
	if delay > maxReconnectDelay || delay <= 0 {
		return maxReconnectDelay
	}
	return delay
}
