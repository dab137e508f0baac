package session

import "time"

// maxBackoff caps the reconnect delay.
const maxBackoff = 30 * time.Second

// Backoff returns the reconnect delay for a 1-based attempt number: capped
// exponential, 2s, 4s, 8s, 16s, then 30s for every later attempt.
func Backoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	if attempt > 5 {
		attempt = 5
	}
	delay := time.Duration(1<<uint(attempt)) * time.Second
	if delay > maxBackoff {
		delay = maxBackoff
	}
	return delay
}
