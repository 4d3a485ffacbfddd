package webhook

import (
	"context"
	"time"
)

/* Small, focused interfaces following "The Go Way"
 * Interfaces abstract behavior, not things
 * Written for users of the API, not just for testing
 */

// EndpointReader provides read operations for registered endpoints
type EndpointReader interface {
	GetEndpoint(ctx context.Context, id string) (Endpoint, error)
	ListEndpoints(ctx context.Context) ([]Endpoint, error)
	/* ListEnabledEndpoints must reflect registry state at call time.
	 * The publisher reads it on every fan-out; a disabled endpoint has to
	 * stop receiving new events promptly, so no caching here
	 */
	ListEnabledEndpoints(ctx context.Context) ([]Endpoint, error)
}

// EndpointWriter provides write operations for registered endpoints
type EndpointWriter interface {
	// CreateEndpoint returns ErrDuplicateEndpoint if the URL is already registered
	CreateEndpoint(ctx context.Context, e Endpoint) error
	// UpdateEndpoint returns ErrNotFound, or ErrDuplicateEndpoint on a URL collision
	UpdateEndpoint(ctx context.Context, e Endpoint) error
	DeleteEndpoint(ctx context.Context, id string) error
}

// EventReader provides read operations for delivery events
type EventReader interface {
	GetEvent(ctx context.Context, id string) (Event, error)
	ListEventsByEndpoint(ctx context.Context, endpointID string, limit int) ([]Event, error)
	ListEventsByStatus(ctx context.Context, status Status, limit int) ([]Event, error)
	// ListRecentEvents returns the most recently created events, any status
	ListRecentEvents(ctx context.Context, limit int) ([]Event, error)
	CountEventsByStatus(ctx context.Context) (map[Status]int64, error)
}

// EventWriter provides write operations for delivery events
type EventWriter interface {
	CreateEvent(ctx context.Context, ev Event) error

	/* ClaimEvent atomically transitions Pending -> Delivering and stamps the
	 * attempt time. It is the per-event mutual exclusion point: exactly one
	 * caller wins; everyone else gets ErrNotClaimable. Only the claimer may
	 * call CompleteAttempt for this event
	 */
	ClaimEvent(ctx context.Context, id string, now time.Time) (Event, error)

	/* CompleteAttempt persists the outcome of a claimed attempt. The write is
	 * conditional on the stored status still being Delivering; if an operator
	 * canceled in the meantime the result is discarded with ErrNotClaimable,
	 * keeping terminal states sticky
	 */
	CompleteAttempt(ctx context.Context, ev Event) error

	// RequeueEvent resets Failed -> Pending for manual retry; ErrInvalidState otherwise
	RequeueEvent(ctx context.Context, id string, now time.Time) (Event, error)

	// CancelEvent transitions Pending -> Canceled; ErrInvalidState otherwise
	CancelEvent(ctx context.Context, id string, now time.Time) (Event, error)

	// DueEventIDs returns ids of Pending events whose retry time has arrived
	DueEventIDs(ctx context.Context, now time.Time, limit int) ([]string, error)

	// DeleteEventsBefore purges events created before the cutoff, any status
	DeleteEventsBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

/* Interface composition - combining small interfaces into larger ones
 * This is preferred over large monolithic interfaces
 */
type EndpointRepository interface {
	EndpointReader
	EndpointWriter
}

type EventRepository interface {
	EventReader
	EventWriter
}

// Repository is the full storage contract a backend must implement
type Repository interface {
	EndpointRepository
	EventRepository
	Close(ctx context.Context) error
}
