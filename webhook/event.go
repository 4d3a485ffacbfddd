package webhook

import (
	"time"

	"github.com/google/uuid"
)

// DefaultMaxRetries matches the retry budget events are created with unless configured otherwise.
const DefaultMaxRetries = 3

/* Event represents one delivery obligation: a specific payload owed to a
 * specific endpoint, with its own retry state
 * Uses value semantics; state changes go through the transition methods
 * below, which return updated copies instead of mutating in place
 */
type Event struct {
	ID           string
	EndpointID   string
	EventType    string
	Payload      []byte
	Status       Status
	RetryCount   int
	MaxRetries   int
	LastAttempt  time.Time
	NextRetryAt  time.Time
	ResponseCode int
	ResponseBody string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// NewEvent creates a pending event eligible for immediate delivery
func NewEvent(endpointID, eventType string, payload []byte, maxRetries int, now time.Time) Event {
	if maxRetries <= 0 {
		maxRetries = DefaultMaxRetries
	}
	return Event{
		ID:          uuid.New().String(),
		EndpointID:  endpointID,
		EventType:   eventType,
		Payload:     payload,
		Status:      Pending,
		RetryCount:  0,
		MaxRetries:  maxRetries,
		NextRetryAt: now,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

/* Claimed transitions Pending -> Delivering and stamps the attempt time
 * before any network call happens, so a crash mid-call is observable as
 * "attempted, result unknown" rather than silently lost
 */
func (e Event) Claimed(now time.Time) Event {
	e.Status = Delivering
	e.LastAttempt = now
	e.NextRetryAt = time.Time{}
	e.UpdatedAt = now
	return e
}

// DeliveredAt finalizes a successful attempt
func (e Event) DeliveredAt(code int, body string, now time.Time) Event {
	e.Status = Delivered
	e.ResponseCode = code
	e.ResponseBody = body
	e.NextRetryAt = time.Time{}
	e.UpdatedAt = now
	return e
}

/* FailedAttempt records an unsuccessful attempt: non-2xx response, network
 * error, and timeout are all classified identically. The retry budget
 * decides between re-arming (Pending + backoff) and giving up (Failed)
 */
func (e Event) FailedAttempt(code int, body string, now time.Time) Event {
	e.RetryCount++
	e.ResponseCode = code
	e.ResponseBody = body
	e.UpdatedAt = now
	if e.RetryCount >= e.MaxRetries {
		e.Status = Failed
		e.NextRetryAt = time.Time{}
		return e
	}
	e.Status = Pending
	e.NextRetryAt = now.Add(Backoff(e.RetryCount))
	return e
}

// Requeued resets a failed event for manual retry
func (e Event) Requeued(now time.Time) Event {
	e.Status = Pending
	e.RetryCount = 0
	e.NextRetryAt = now
	e.UpdatedAt = now
	return e
}

// CanceledAt marks a pending event as canceled
func (e Event) CanceledAt(now time.Time) Event {
	e.Status = Canceled
	e.NextRetryAt = time.Time{}
	e.UpdatedAt = now
	return e
}
