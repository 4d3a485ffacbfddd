package webhook

import "time"

// NowFunc supplies the current time; swapped out in tests for determinism
type NowFunc func() time.Time

// DefaultNow is the production clock. Stored times are always UTC
func DefaultNow() time.Time {
	return time.Now().UTC()
}
