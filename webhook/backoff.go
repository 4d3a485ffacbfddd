package webhook

import "time"

/* Fixed backoff schedule, indexed by how many attempts have already failed.
 * Deliberately not exponential: the delays are short because the sandbox
 * favors fast feedback over politeness to receivers. Anything past the
 * table is capped at one minute.
 */
var backoffTable = []time.Duration{
	1: 1 * time.Second,
	2: 5 * time.Second,
	3: 15 * time.Second,
}

const backoffCap = 60 * time.Second

// Backoff returns the delay before the next attempt for the given retry count
func Backoff(retryCount int) time.Duration {
	if retryCount >= 1 && retryCount < len(backoffTable) {
		return backoffTable[retryCount]
	}
	return backoffCap
}
