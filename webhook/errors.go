package webhook

import "errors"

/* Caller-facing sentinel errors
 * Handlers map these to HTTP status codes; everything else is a 500
 */
var (
	// ErrNotFound indicates the endpoint or event does not exist
	ErrNotFound = errors.New("not found")

	// ErrDuplicateEndpoint indicates another endpoint is already registered with the same URL
	ErrDuplicateEndpoint = errors.New("endpoint URL already registered")

	// ErrInvalidURL indicates the endpoint URL is not an absolute http/https URL
	ErrInvalidURL = errors.New("invalid endpoint URL")

	// ErrInvalidState indicates an operator action that is illegal for the event's current status
	ErrInvalidState = errors.New("invalid event state for operation")

	// ErrInvalidEventType indicates the published event type is not hierarchical [a-zA-Z0-9_.]
	ErrInvalidEventType = errors.New("invalid event type")

	/* ErrNotClaimable indicates an attempt could not take ownership of an event:
	 * it is mid-attempt elsewhere or already terminal. Never surfaced to callers;
	 * the deliverer treats it as "nothing to do"
	 */
	ErrNotClaimable = errors.New("event not claimable")
)
