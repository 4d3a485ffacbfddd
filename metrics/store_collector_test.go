package metrics_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marcelsud/webhook-engine/metrics"
	"github.com/marcelsud/webhook-engine/webhook"
	"github.com/marcelsud/webhook-engine/webhook/memory"
)

func TestStoreCollector_Collect(t *testing.T) {
	ctx := context.Background()
	now := time.Now().UTC()
	store := memory.NewStore()

	require.NoError(t, store.CreateEndpoint(ctx, webhook.Endpoint{
		ID: "ep-1", URL: "https://a.example.com/hooks", Enabled: true,
		CreatedAt: now, UpdatedAt: now,
	}))
	require.NoError(t, store.CreateEndpoint(ctx, webhook.Endpoint{
		ID: "ep-2", URL: "https://b.example.com/hooks", Enabled: false,
		CreatedAt: now, UpdatedAt: now,
	}))

	due := webhook.NewEvent("ep-1", "charge.succeeded", []byte(`{}`), 3, now.Add(-time.Minute))
	require.NoError(t, store.CreateEvent(ctx, due))
	notDue := webhook.NewEvent("ep-1", "charge.succeeded", []byte(`{}`), 3, now.Add(time.Hour))
	require.NoError(t, store.CreateEvent(ctx, notDue))

	delivered := webhook.NewEvent("ep-1", "charge.succeeded", []byte(`{}`), 3, now)
	require.NoError(t, store.CreateEvent(ctx, delivered))
	claimed, err := store.ClaimEvent(ctx, delivered.ID, now)
	require.NoError(t, err)
	require.NoError(t, store.CompleteAttempt(ctx, claimed.DeliveredAt(200, "ok", now)))

	collector := metrics.NewStoreCollector(store)
	m, err := collector.Collect(ctx)
	require.NoError(t, err)

	assert.Equal(t, int64(2), m.StatusCounts["pending"])
	assert.Equal(t, int64(1), m.StatusCounts["delivered"])
	assert.Equal(t, int64(0), m.StatusCounts["failed"], "zero entries are present")
	assert.Equal(t, int64(2), m.Endpoints.Total)
	assert.Equal(t, int64(1), m.Endpoints.Enabled)
	assert.Equal(t, int64(1), m.DueBacklog, "only the overdue pending event counts")
	assert.False(t, m.Timestamp.IsZero())
}
