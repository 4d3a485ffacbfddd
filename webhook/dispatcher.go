package webhook

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Attempter executes a single delivery attempt for an event
type Attempter interface {
	Attempt(ctx context.Context, eventID string) error
}

/* Dispatcher is a bounded worker pool for delivery attempts
 * The publisher and the retry sweep both submit event ids here; a fixed
 * number of workers drains the queue so a burst of events or a slow
 * receiver cannot spawn unbounded goroutines
 */
type Dispatcher struct {
	attempter Attempter
	queue     chan string
	workers   int
	logger    zerolog.Logger

	startOnce sync.Once
	stopOnce  sync.Once
	wg        sync.WaitGroup

	// mu guards closed so a late Submit cannot race the queue close
	mu     sync.Mutex
	closed bool
}

// NewDispatcher creates a dispatcher with the given pool size and queue capacity
func NewDispatcher(attempter Attempter, workers, queueSize int, logger zerolog.Logger) *Dispatcher {
	if workers < 1 {
		workers = 1
	}
	if queueSize < 1 {
		queueSize = workers
	}
	return &Dispatcher{
		attempter: attempter,
		queue:     make(chan string, queueSize),
		workers:   workers,
		logger:    logger.With().Str("component", "dispatcher").Logger(),
	}
}

/* Start launches the worker goroutines.
 * Workers deliberately outlive the caller's cancellation: an attempt that is
 * mid-flight when shutdown begins must still be able to persist its outcome,
 * otherwise the event is stranded in Delivering where the retry sweep cannot
 * see it. Shutdown ends the workers by closing the queue
 */
func (d *Dispatcher) Start(ctx context.Context) {
	d.startOnce.Do(func() {
		workerCtx := context.WithoutCancel(ctx)
		for i := 0; i < d.workers; i++ {
			d.wg.Add(1)
			go d.work(workerCtx)
		}
	})
}

/* Submit enqueues an event id without blocking the caller.
 * A full or already-closed queue drops the submission: the event stays
 * Pending with its retry time in storage, so the next sweep picks it up again
 */
func (d *Dispatcher) Submit(eventID string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		d.logger.Warn().Str("event_id", eventID).Msg("dispatcher stopped, deferring to sweep")
		return false
	}
	select {
	case d.queue <- eventID:
		return true
	default:
		d.logger.Warn().Str("event_id", eventID).Msg("dispatch queue full, deferring to sweep")
		return false
	}
}

/* Shutdown stops accepting work and waits for in-flight attempts to drain,
 * up to the context deadline
 */
func (d *Dispatcher) Shutdown(ctx context.Context) error {
	d.stopOnce.Do(func() {
		d.mu.Lock()
		d.closed = true
		close(d.queue)
		d.mu.Unlock()
	})

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (d *Dispatcher) work(ctx context.Context) {
	defer d.wg.Done()
	for eventID := range d.queue {
		start := time.Now()
		if err := d.attempter.Attempt(ctx, eventID); err != nil {
			d.logger.Error().Err(err).Str("event_id", eventID).Msg("attempt failed")
			continue
		}
		d.logger.Debug().Str("event_id", eventID).Dur("took", time.Since(start)).Msg("attempt finished")
	}
}
