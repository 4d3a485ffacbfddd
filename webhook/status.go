package webhook

import "fmt"

/* Status represents the current state of a webhook event delivery
 * Lifecycle: Pending -> Delivering -> Delivered/Failed, with Pending
 * re-entered between retry attempts and Canceled reachable only from Pending
 */
type Status int

const (
	Pending Status = iota + 1
	Delivering
	Delivered
	Failed
	Canceled
)

// String returns the string representation of the status
func (s Status) String() string {
	switch s {
	case Pending:
		return "pending"
	case Delivering:
		return "delivering"
	case Delivered:
		return "delivered"
	case Failed:
		return "failed"
	case Canceled:
		return "canceled"
	default:
		return "unknown"
	}
}

// NewStatus creates a Status from a string
func NewStatus(str string) Status {
	switch str {
	case "pending":
		return Pending
	case "delivering":
		return Delivering
	case "delivered":
		return Delivered
	case "failed":
		return Failed
	case "canceled":
		return Canceled
	default:
		return Pending
	}
}

// Validate checks if the status is valid
func (s Status) Validate() error {
	if s < Pending || s > Canceled {
		return fmt.Errorf("invalid status: %d", s)
	}
	return nil
}

/* IsFinal returns true if the status is a terminal state
 * Terminal states are sticky: once reached the event never changes again
 */
func (s Status) IsFinal() bool {
	return s == Delivered || s == Failed || s == Canceled
}

// Statuses lists every valid status, in lifecycle order
func Statuses() []Status {
	return []Status{Pending, Delivering, Delivered, Failed, Canceled}
}
