package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/marcelsud/webhook-engine/webhook"
)

/* In-memory implementation of webhook.Repository
 * Backs unit tests and the "memory" store backend for local development.
 * A single mutex covers both tables; the claim transition therefore gets
 * the same atomicity the Redis and Postgres backends provide with scripts
 * and conditional updates
 */
type Store struct {
	mu        sync.Mutex
	endpoints map[string]webhook.Endpoint
	events    map[string]webhook.Event
}

// NewStore creates an empty in-memory store
func NewStore() *Store {
	return &Store{
		endpoints: make(map[string]webhook.Endpoint),
		events:    make(map[string]webhook.Event),
	}
}

// CreateEndpoint stores a new endpoint, enforcing URL uniqueness
func (s *Store) CreateEndpoint(ctx context.Context, e webhook.Endpoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.endpoints {
		if existing.URL == e.URL {
			return webhook.ErrDuplicateEndpoint
		}
	}
	s.endpoints[e.ID] = e
	return nil
}

// UpdateEndpoint replaces an endpoint, enforcing URL uniqueness against others
func (s *Store) UpdateEndpoint(ctx context.Context, e webhook.Endpoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.endpoints[e.ID]; !ok {
		return webhook.ErrNotFound
	}
	for id, existing := range s.endpoints {
		if id != e.ID && existing.URL == e.URL {
			return webhook.ErrDuplicateEndpoint
		}
	}
	s.endpoints[e.ID] = e
	return nil
}

// GetEndpoint fetches an endpoint by id
func (s *Store) GetEndpoint(ctx context.Context, id string) (webhook.Endpoint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.endpoints[id]
	if !ok {
		return webhook.Endpoint{}, webhook.ErrNotFound
	}
	return e, nil
}

// DeleteEndpoint removes an endpoint; its events stay behind for audit
func (s *Store) DeleteEndpoint(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.endpoints[id]; !ok {
		return webhook.ErrNotFound
	}
	delete(s.endpoints, id)
	return nil
}

// ListEndpoints returns every endpoint, oldest first
func (s *Store) ListEndpoints(ctx context.Context) ([]webhook.Endpoint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]webhook.Endpoint, 0, len(s.endpoints))
	for _, e := range s.endpoints {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// ListEnabledEndpoints returns the enabled subset, freshly read
func (s *Store) ListEnabledEndpoints(ctx context.Context) ([]webhook.Endpoint, error) {
	all, err := s.ListEndpoints(ctx)
	if err != nil {
		return nil, err
	}
	out := all[:0:0]
	for _, e := range all {
		if e.Enabled {
			out = append(out, e)
		}
	}
	return out, nil
}

// CreateEvent stores a new delivery event
func (s *Store) CreateEvent(ctx context.Context, ev webhook.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.events[ev.ID] = ev
	return nil
}

// GetEvent fetches an event by id
func (s *Store) GetEvent(ctx context.Context, id string) (webhook.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ev, ok := s.events[id]
	if !ok {
		return webhook.Event{}, webhook.ErrNotFound
	}
	return ev, nil
}

// ClaimEvent atomically transitions Pending -> Delivering
func (s *Store) ClaimEvent(ctx context.Context, id string, now time.Time) (webhook.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ev, ok := s.events[id]
	if !ok {
		return webhook.Event{}, webhook.ErrNotFound
	}
	if ev.Status != webhook.Pending {
		return webhook.Event{}, webhook.ErrNotClaimable
	}
	ev = ev.Claimed(now)
	s.events[id] = ev
	return ev, nil
}

// CompleteAttempt persists an outcome, only while the event is still claimed
func (s *Store) CompleteAttempt(ctx context.Context, ev webhook.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.events[ev.ID]
	if !ok {
		return webhook.ErrNotFound
	}
	if stored.Status != webhook.Delivering {
		return webhook.ErrNotClaimable
	}
	s.events[ev.ID] = ev
	return nil
}

// RequeueEvent resets Failed -> Pending for manual retry
func (s *Store) RequeueEvent(ctx context.Context, id string, now time.Time) (webhook.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ev, ok := s.events[id]
	if !ok {
		return webhook.Event{}, webhook.ErrNotFound
	}
	if ev.Status != webhook.Failed {
		return webhook.Event{}, webhook.ErrInvalidState
	}
	ev = ev.Requeued(now)
	s.events[id] = ev
	return ev, nil
}

// CancelEvent transitions Pending -> Canceled
func (s *Store) CancelEvent(ctx context.Context, id string, now time.Time) (webhook.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ev, ok := s.events[id]
	if !ok {
		return webhook.Event{}, webhook.ErrNotFound
	}
	if ev.Status != webhook.Pending {
		return webhook.Event{}, webhook.ErrInvalidState
	}
	ev = ev.CanceledAt(now)
	s.events[id] = ev
	return ev, nil
}

// ListEventsByEndpoint returns an endpoint's events, newest first
func (s *Store) ListEventsByEndpoint(ctx context.Context, endpointID string, limit int) ([]webhook.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []webhook.Event
	for _, ev := range s.events {
		if ev.EndpointID == endpointID {
			out = append(out, ev)
		}
	}
	return newestFirst(out, limit), nil
}

// ListEventsByStatus returns events in the given status, newest first
func (s *Store) ListEventsByStatus(ctx context.Context, status webhook.Status, limit int) ([]webhook.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []webhook.Event
	for _, ev := range s.events {
		if ev.Status == status {
			out = append(out, ev)
		}
	}
	return newestFirst(out, limit), nil
}

// ListRecentEvents returns the most recently created events, any status
func (s *Store) ListRecentEvents(ctx context.Context, limit int) ([]webhook.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]webhook.Event, 0, len(s.events))
	for _, ev := range s.events {
		out = append(out, ev)
	}
	return newestFirst(out, limit), nil
}

// CountEventsByStatus returns event totals per status
func (s *Store) CountEventsByStatus(ctx context.Context) (map[webhook.Status]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	counts := make(map[webhook.Status]int64)
	for _, ev := range s.events {
		counts[ev.Status]++
	}
	return counts, nil
}

// DueEventIDs returns Pending events whose retry time has arrived
func (s *Store) DueEventIDs(ctx context.Context, now time.Time, limit int) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var due []webhook.Event
	for _, ev := range s.events {
		if ev.Status == webhook.Pending && !ev.NextRetryAt.After(now) {
			due = append(due, ev)
		}
	}
	sort.Slice(due, func(i, j int) bool { return due[i].NextRetryAt.Before(due[j].NextRetryAt) })

	ids := make([]string, 0, len(due))
	for _, ev := range due {
		if limit > 0 && len(ids) >= limit {
			break
		}
		ids = append(ids, ev.ID)
	}
	return ids, nil
}

// DeleteEventsBefore purges events created before the cutoff, any status
func (s *Store) DeleteEventsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var deleted int64
	for id, ev := range s.events {
		if ev.CreatedAt.Before(cutoff) {
			delete(s.events, id)
			deleted++
		}
	}
	return deleted, nil
}

// Close is a no-op for the in-memory store
func (s *Store) Close(ctx context.Context) error {
	return nil
}

func newestFirst(events []webhook.Event, limit int) []webhook.Event {
	sort.Slice(events, func(i, j int) bool { return events[i].CreatedAt.After(events[j].CreatedAt) })
	if limit > 0 && len(events) > limit {
		events = events[:limit]
	}
	return events
}
