package metrics

import (
	"context"
	"time"
)

// Metrics represents the current state of the delivery engine.
type Metrics struct {
	// StatusCounts maps status name to count of events in that status
	StatusCounts map[string]int64 `json:"status_counts"`

	// Endpoints holds registered and enabled endpoint totals
	Endpoints EndpointMetrics `json:"endpoints"`

	// DueBacklog is the number of pending events whose retry time has arrived
	DueBacklog int64 `json:"due_backlog"`

	// Timestamp when metrics were collected
	Timestamp time.Time `json:"timestamp"`
}

// EndpointMetrics holds endpoint registry totals.
type EndpointMetrics struct {
	Total   int64 `json:"total"`
	Enabled int64 `json:"enabled"`
}

// Collector defines the interface for collecting metrics from the engine.
type Collector interface {
	// Collect gathers current metrics from the system
	Collect(ctx context.Context) (Metrics, error)

	// GetStatusCounts returns the count of events by status
	GetStatusCounts(ctx context.Context) (map[string]int64, error)

	// GetEndpointCounts returns registered and enabled endpoint totals
	GetEndpointCounts(ctx context.Context) (EndpointMetrics, error)

	// GetDueBacklog returns the number of events overdue for delivery
	GetDueBacklog(ctx context.Context) (int64, error)
}
