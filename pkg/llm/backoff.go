package llm

import (
	"math/rand"
	"time"
)

const maxBackoff = 30 * time.Second

// CalculateBackoff returns the delay before retry number attempt, doubling
// the base each time with +/-25% jitter and a hard cap.
func CalculateBackoff(base time.Duration, attempt int) time.Duration {
	if base <= 0 {
		base = 500 * time.Millisecond
	}
	if attempt < 1 {
		attempt = 1
	}

	backoff := base
	for i := 1; i < attempt; i++ {
		backoff *= 2
		if backoff >= maxBackoff {
			backoff = maxBackoff
			break
		}
	}

	// Jitter keeps simultaneous retries from stampeding.
	jitter := time.Duration(rand.Int63n(int64(backoff)/2+1)) - backoff/4
	backoff += jitter

	if backoff > maxBackoff {
		backoff = maxBackoff
	}
	if backoff < 0 {
		backoff = 0
	}
	return backoff
}
