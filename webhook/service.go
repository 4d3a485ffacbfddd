package webhook

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
)

/* Service is the operator-facing surface over delivery events
 * Uses pointer semantics as it's an API, not data
 */

// UseCase defines the operator operations for delivery events
type UseCase interface {
	Get(ctx context.Context, id string) (Event, error)
	ListByEndpoint(ctx context.Context, endpointID string, limit int) ([]Event, error)
	ListByStatus(ctx context.Context, status Status, limit int) ([]Event, error)
	ListRecent(ctx context.Context, limit int) ([]Event, error)
	Retry(ctx context.Context, id string) (Event, error)
	Cancel(ctx context.Context, id string) (Event, error)
	Stats(ctx context.Context) (Statistics, error)
}

type Service struct {
	events    EventRepository
	endpoints EndpointReader
	nowFn     NowFunc
	logger    zerolog.Logger
}

// NewService creates a new events service with dependency injection
func NewService(events EventRepository, endpoints EndpointReader, logger zerolog.Logger) *Service {
	return &Service{
		events:    events,
		endpoints: endpoints,
		nowFn:     DefaultNow,
		logger:    logger.With().Str("component", "events_service").Logger(),
	}
}

// Get fetches one delivery event
func (s *Service) Get(ctx context.Context, id string) (Event, error) {
	ev, err := s.events.GetEvent(ctx, id)
	if err != nil {
		return Event{}, fmt.Errorf("getting event: %w", err)
	}
	return ev, nil
}

// ListByEndpoint returns the most recent events owed to one endpoint
func (s *Service) ListByEndpoint(ctx context.Context, endpointID string, limit int) ([]Event, error) {
	if _, err := s.endpoints.GetEndpoint(ctx, endpointID); err != nil {
		return nil, fmt.Errorf("getting endpoint: %w", err)
	}
	events, err := s.events.ListEventsByEndpoint(ctx, endpointID, limit)
	if err != nil {
		return nil, fmt.Errorf("listing events by endpoint: %w", err)
	}
	return events, nil
}

// ListByStatus returns the most recent events in the given status
func (s *Service) ListByStatus(ctx context.Context, status Status, limit int) ([]Event, error) {
	if err := status.Validate(); err != nil {
		return nil, fmt.Errorf("validating status: %w", err)
	}
	events, err := s.events.ListEventsByStatus(ctx, status, limit)
	if err != nil {
		return nil, fmt.Errorf("listing events by status: %w", err)
	}
	return events, nil
}

// ListRecent returns the most recently created events regardless of status
func (s *Service) ListRecent(ctx context.Context, limit int) ([]Event, error) {
	events, err := s.events.ListRecentEvents(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("listing recent events: %w", err)
	}
	return events, nil
}

/* Retry resets a permanently failed event for another full round of
 * attempts: retry count back to zero, eligible immediately. Only valid on
 * Failed events; anything else is ErrInvalidState
 */
func (s *Service) Retry(ctx context.Context, id string) (Event, error) {
	ev, err := s.events.RequeueEvent(ctx, id, s.nowFn())
	if err != nil {
		return Event{}, fmt.Errorf("requeueing event: %w", err)
	}
	s.logger.Info().Str("event_id", id).Msg("failed event requeued by operator")
	return ev, nil
}

/* Cancel withdraws a pending event. An attempt already in flight is not
 * interrupted; its result is discarded when it tries to complete
 */
func (s *Service) Cancel(ctx context.Context, id string) (Event, error) {
	ev, err := s.events.CancelEvent(ctx, id, s.nowFn())
	if err != nil {
		return Event{}, fmt.Errorf("canceling event: %w", err)
	}
	s.logger.Info().Str("event_id", id).Msg("event canceled by operator")
	return ev, nil
}

// Stats aggregates delivery counts across endpoints and statuses
func (s *Service) Stats(ctx context.Context) (Statistics, error) {
	counts, err := s.events.CountEventsByStatus(ctx)
	if err != nil {
		return Statistics{}, fmt.Errorf("counting events: %w", err)
	}

	endpoints, err := s.endpoints.ListEndpoints(ctx)
	if err != nil {
		return Statistics{}, fmt.Errorf("listing endpoints: %w", err)
	}

	stats := Statistics{
		TotalEndpoints: int64(len(endpoints)),
		StatusCounts:   counts,
	}
	for _, e := range endpoints {
		if e.Enabled {
			stats.EnabledEndpoints++
		}
	}
	for _, n := range counts {
		stats.TotalEvents += n
	}
	if stats.TotalEvents > 0 {
		stats.SuccessRate = float64(counts[Delivered]) / float64(stats.TotalEvents)
	}

	return stats, nil
}
