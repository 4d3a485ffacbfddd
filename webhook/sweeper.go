package webhook

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

const (
	DefaultRetrySweepInterval     = 30 * time.Second
	DefaultRetentionSweepInterval = 24 * time.Hour
	DefaultRetentionWindow        = 30 * 24 * time.Hour

	// retrySweepBatch bounds how many due events one sweep pass picks up
	retrySweepBatch = 100
)

/* RetrySweeper periodically re-dispatches events whose retry time arrived
 * Only Pending events are eligible; an event mid-attempt is Delivering and
 * therefore invisible to the sweep, so a sweep can never double-fire an
 * attempt the publisher already dispatched
 */
type RetrySweeper struct {
	events     EventWriter
	dispatcher *Dispatcher
	interval   time.Duration
	nowFn      NowFunc
	logger     zerolog.Logger
}

// NewRetrySweeper creates a retry sweeper; interval <= 0 uses the default
func NewRetrySweeper(events EventWriter, dispatcher *Dispatcher, interval time.Duration, logger zerolog.Logger) *RetrySweeper {
	if interval <= 0 {
		interval = DefaultRetrySweepInterval
	}
	return &RetrySweeper{
		events:     events,
		dispatcher: dispatcher,
		interval:   interval,
		nowFn:      DefaultNow,
		logger:     logger.With().Str("component", "retry_sweeper").Logger(),
	}
}

// Run blocks, sweeping on a fixed period until ctx is canceled
func (s *RetrySweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info().Msg("retry sweeper stopped")
			return
		case <-ticker.C:
			s.Sweep(ctx)
		}
	}
}

// Sweep runs one pass; errors for one event never abort the rest
func (s *RetrySweeper) Sweep(ctx context.Context) {
	ids, err := s.events.DueEventIDs(ctx, s.nowFn(), retrySweepBatch)
	if err != nil {
		s.logger.Error().Err(err).Msg("querying due events")
		return
	}
	if len(ids) == 0 {
		return
	}

	s.logger.Info().Int("count", len(ids)).Msg("re-dispatching due events")
	for _, id := range ids {
		s.dispatcher.Submit(id)
	}
}

// RetentionSweeper periodically purges events older than the retention window, any status
type RetentionSweeper struct {
	events   EventWriter
	window   time.Duration
	interval time.Duration
	nowFn    NowFunc
	logger   zerolog.Logger
}

// NewRetentionSweeper creates a retention sweeper; zero values use the defaults
func NewRetentionSweeper(events EventWriter, window, interval time.Duration, logger zerolog.Logger) *RetentionSweeper {
	if window <= 0 {
		window = DefaultRetentionWindow
	}
	if interval <= 0 {
		interval = DefaultRetentionSweepInterval
	}
	return &RetentionSweeper{
		events:   events,
		window:   window,
		interval: interval,
		nowFn:    DefaultNow,
		logger:   logger.With().Str("component", "retention_sweeper").Logger(),
	}
}

// Run blocks, purging on a fixed period until ctx is canceled
func (s *RetentionSweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info().Msg("retention sweeper stopped")
			return
		case <-ticker.C:
			s.Sweep(ctx)
		}
	}
}

// Sweep deletes expired events; best effort, partial completion retries next run
func (s *RetentionSweeper) Sweep(ctx context.Context) {
	cutoff := s.nowFn().Add(-s.window)
	deleted, err := s.events.DeleteEventsBefore(ctx, cutoff)
	if err != nil {
		s.logger.Error().Err(err).Msg("purging expired events")
		return
	}
	if deleted > 0 {
		s.logger.Info().Int64("deleted", deleted).Time("cutoff", cutoff).Msg("expired events purged")
	}
}
