package webhook

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/marcelsud/webhook-engine/webhook/payload"
)

/* Publisher fans an internal event out to every enabled endpoint
 * Publish returns once fan-out has been dispatched; delivery happens on the
 * dispatcher's worker pool, never on the caller's goroutine
 */
type Publisher struct {
	endpoints  EndpointReader
	events     EventWriter
	dispatcher *Dispatcher
	maxRetries int
	nowFn      NowFunc
	logger     zerolog.Logger
}

// NewPublisher creates a publisher with dependency injection
func NewPublisher(endpoints EndpointReader, events EventWriter, dispatcher *Dispatcher, maxRetries int, logger zerolog.Logger) *Publisher {
	if maxRetries <= 0 {
		maxRetries = DefaultMaxRetries
	}
	return &Publisher{
		endpoints:  endpoints,
		events:     events,
		dispatcher: dispatcher,
		maxRetries: maxRetries,
		nowFn:      DefaultNow,
		logger:     logger.With().Str("component", "publisher").Logger(),
	}
}

/* Publish creates one Pending event per enabled endpoint and hands each to
 * the worker pool. A store failure for one endpoint is logged and skipped;
 * it never prevents fan-out to the rest
 */
func (p *Publisher) Publish(ctx context.Context, eventType string, data []byte) error {
	if err := payload.ValidateEventType(eventType); err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidEventType, err)
	}

	// Fresh read every time: a disabled endpoint must stop receiving promptly
	endpoints, err := p.endpoints.ListEnabledEndpoints(ctx)
	if err != nil {
		return fmt.Errorf("listing enabled endpoints: %w", err)
	}

	for _, endpoint := range endpoints {
		ev := NewEvent(endpoint.ID, eventType, data, p.maxRetries, p.nowFn())
		if err := p.events.CreateEvent(ctx, ev); err != nil {
			p.logger.Error().Err(err).
				Str("event_type", eventType).
				Str("endpoint_id", endpoint.ID).
				Msg("fan-out skipped endpoint, store write failed")
			continue
		}
		p.dispatcher.Submit(ev.ID)
	}

	p.logger.Info().Str("event_type", eventType).Int("endpoints", len(endpoints)).Msg("event published")
	return nil
}
