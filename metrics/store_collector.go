package metrics

import (
	"context"
	"fmt"
	"time"

	"github.com/marcelsud/webhook-engine/webhook"
)

// backlogScanLimit bounds the due-backlog probe so a huge backlog
// does not turn every scrape into a full scan.
const backlogScanLimit = 10_000

// StoreCollector collects metrics straight from the webhook store,
// so every scrape reflects the persisted state.
type StoreCollector struct {
	repo  webhook.Repository
	nowFn webhook.NowFunc
}

// NewStoreCollector creates a collector backed by the given store.
func NewStoreCollector(repo webhook.Repository) *StoreCollector {
	return &StoreCollector{repo: repo, nowFn: webhook.DefaultNow}
}

// Collect gathers all metrics in a single pass.
func (c *StoreCollector) Collect(ctx context.Context) (Metrics, error) {
	statusCounts, err := c.GetStatusCounts(ctx)
	if err != nil {
		return Metrics{}, fmt.Errorf("getting status counts: %w", err)
	}

	endpoints, err := c.GetEndpointCounts(ctx)
	if err != nil {
		return Metrics{}, fmt.Errorf("getting endpoint counts: %w", err)
	}

	backlog, err := c.GetDueBacklog(ctx)
	if err != nil {
		return Metrics{}, fmt.Errorf("getting due backlog: %w", err)
	}

	return Metrics{
		StatusCounts: statusCounts,
		Endpoints:    endpoints,
		DueBacklog:   backlog,
		Timestamp:    c.nowFn(),
	}, nil
}

// GetStatusCounts returns event totals keyed by status name, with
// zero entries for statuses that have no events.
func (c *StoreCollector) GetStatusCounts(ctx context.Context) (map[string]int64, error) {
	counts, err := c.repo.CountEventsByStatus(ctx)
	if err != nil {
		return nil, fmt.Errorf("counting events by status: %w", err)
	}

	named := make(map[string]int64, len(webhook.Statuses()))
	for _, status := range webhook.Statuses() {
		named[status.String()] = counts[status]
	}
	return named, nil
}

// GetEndpointCounts returns registered and enabled endpoint totals.
func (c *StoreCollector) GetEndpointCounts(ctx context.Context) (EndpointMetrics, error) {
	endpoints, err := c.repo.ListEndpoints(ctx)
	if err != nil {
		return EndpointMetrics{}, fmt.Errorf("listing endpoints: %w", err)
	}

	em := EndpointMetrics{Total: int64(len(endpoints))}
	for _, e := range endpoints {
		if e.Enabled {
			em.Enabled++
		}
	}
	return em, nil
}

// GetDueBacklog returns the number of pending events already due.
func (c *StoreCollector) GetDueBacklog(ctx context.Context) (int64, error) {
	ids, err := c.repo.DueEventIDs(ctx, c.nowFn(), backlogScanLimit)
	if err != nil {
		return 0, fmt.Errorf("listing due events: %w", err)
	}
	return int64(len(ids)), nil
}

// WithNow overrides the collector's clock. Useful in tests.
func (c *StoreCollector) WithNow(nowFn func() time.Time) *StoreCollector {
	c.nowFn = nowFn
	return c
}
