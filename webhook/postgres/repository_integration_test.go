//go:build integration

package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marcelsud/webhook-engine/webhook"
)

func TestPostgresRepository_Endpoints(t *testing.T) {
	ctx := context.Background()
	pg, cleanup := SetupPostgresContainer(t, ctx)
	defer cleanup()
	repo := CreateTestRepository(t, ctx, pg.ConnStr)
	defer repo.Close(ctx)

	now := time.Now().UTC().Truncate(time.Microsecond)
	endpoint := webhook.Endpoint{
		ID:          "ep-1",
		URL:         "https://example.com/hooks",
		Secret:      "whsec_c2VjcmV0",
		Enabled:     true,
		Description: "billing",
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	t.Run("create and get", func(t *testing.T) {
		require.NoError(t, repo.CreateEndpoint(ctx, endpoint))

		got, err := repo.GetEndpoint(ctx, "ep-1")
		require.NoError(t, err)
		assert.Equal(t, endpoint.URL, got.URL)
		assert.True(t, got.Enabled)
	})

	t.Run("unique URL enforced by the database", func(t *testing.T) {
		dup := endpoint
		dup.ID = "ep-2"
		err := repo.CreateEndpoint(ctx, dup)
		assert.ErrorIs(t, err, webhook.ErrDuplicateEndpoint)
	})

	t.Run("update", func(t *testing.T) {
		modified := endpoint
		modified.Enabled = false
		modified.Description = "paused"
		require.NoError(t, repo.UpdateEndpoint(ctx, modified))

		got, err := repo.GetEndpoint(ctx, "ep-1")
		require.NoError(t, err)
		assert.False(t, got.Enabled)
		assert.Equal(t, "paused", got.Description)
	})

	t.Run("update missing endpoint", func(t *testing.T) {
		missing := endpoint
		missing.ID = "nope"
		missing.URL = "https://other.example.com/hooks"
		err := repo.UpdateEndpoint(ctx, missing)
		assert.ErrorIs(t, err, webhook.ErrNotFound)
	})

	t.Run("enabled listing", func(t *testing.T) {
		enabled, err := repo.ListEnabledEndpoints(ctx)
		require.NoError(t, err)
		assert.Empty(t, enabled, "ep-1 was paused above")
	})

	t.Run("delete", func(t *testing.T) {
		require.NoError(t, repo.DeleteEndpoint(ctx, "ep-1"))
		_, err := repo.GetEndpoint(ctx, "ep-1")
		assert.ErrorIs(t, err, webhook.ErrNotFound)

		assert.ErrorIs(t, repo.DeleteEndpoint(ctx, "ep-1"), webhook.ErrNotFound)
	})
}

func TestPostgresRepository_EventLifecycle(t *testing.T) {
	ctx := context.Background()
	pg, cleanup := SetupPostgresContainer(t, ctx)
	defer cleanup()
	repo := CreateTestRepository(t, ctx, pg.ConnStr)
	defer repo.Close(ctx)

	now := time.Now().UTC().Truncate(time.Microsecond)

	t.Run("claim wins once", func(t *testing.T) {
		ev := webhook.NewEvent("ep-1", "charge.succeeded", []byte(`{"amount":100}`), 3, now)
		require.NoError(t, repo.CreateEvent(ctx, ev))

		claimed, err := repo.ClaimEvent(ctx, ev.ID, now)
		require.NoError(t, err)
		assert.Equal(t, webhook.Delivering, claimed.Status)
		assert.False(t, claimed.LastAttempt.IsZero())
		assert.True(t, claimed.NextRetryAt.IsZero())

		_, err = repo.ClaimEvent(ctx, ev.ID, now)
		assert.ErrorIs(t, err, webhook.ErrNotClaimable)

		_, err = repo.ClaimEvent(ctx, "missing", now)
		assert.ErrorIs(t, err, webhook.ErrNotFound)
	})

	t.Run("complete requires delivering", func(t *testing.T) {
		ev := webhook.NewEvent("ep-1", "charge.succeeded", []byte(`{}`), 3, now)
		require.NoError(t, repo.CreateEvent(ctx, ev))

		err := repo.CompleteAttempt(ctx, ev.DeliveredAt(200, "ok", now))
		assert.ErrorIs(t, err, webhook.ErrNotClaimable)

		claimed, err := repo.ClaimEvent(ctx, ev.ID, now)
		require.NoError(t, err)
		require.NoError(t, repo.CompleteAttempt(ctx, claimed.DeliveredAt(200, "ok", now)))

		got, err := repo.GetEvent(ctx, ev.ID)
		require.NoError(t, err)
		assert.Equal(t, webhook.Delivered, got.Status)
		assert.Equal(t, 200, got.ResponseCode)
	})

	t.Run("retry cycle through failed", func(t *testing.T) {
		ev := webhook.NewEvent("ep-1", "charge.succeeded", []byte(`{}`), 1, now)
		require.NoError(t, repo.CreateEvent(ctx, ev))

		claimed, err := repo.ClaimEvent(ctx, ev.ID, now)
		require.NoError(t, err)
		require.NoError(t, repo.CompleteAttempt(ctx, claimed.FailedAttempt(500, "boom", now)))

		got, err := repo.GetEvent(ctx, ev.ID)
		require.NoError(t, err)
		assert.Equal(t, webhook.Failed, got.Status)

		requeued, err := repo.RequeueEvent(ctx, ev.ID, now)
		require.NoError(t, err)
		assert.Equal(t, webhook.Pending, requeued.Status)
		assert.Equal(t, 0, requeued.RetryCount)

		_, err = repo.RequeueEvent(ctx, ev.ID, now)
		assert.ErrorIs(t, err, webhook.ErrInvalidState)
	})

	t.Run("cancel only from pending", func(t *testing.T) {
		ev := webhook.NewEvent("ep-1", "charge.succeeded", []byte(`{}`), 3, now)
		require.NoError(t, repo.CreateEvent(ctx, ev))

		canceled, err := repo.CancelEvent(ctx, ev.ID, now)
		require.NoError(t, err)
		assert.Equal(t, webhook.Canceled, canceled.Status)

		_, err = repo.CancelEvent(ctx, ev.ID, now)
		assert.ErrorIs(t, err, webhook.ErrInvalidState)
	})
}

func TestPostgresRepository_QueriesAndRetention(t *testing.T) {
	ctx := context.Background()
	pg, cleanup := SetupPostgresContainer(t, ctx)
	defer cleanup()
	repo := CreateTestRepository(t, ctx, pg.ConnStr)
	defer repo.Close(ctx)

	now := time.Now().UTC().Truncate(time.Microsecond)

	oldest := webhook.NewEvent("ep-1", "charge.succeeded", []byte(`{}`), 3, now.Add(-2*time.Hour))
	older := webhook.NewEvent("ep-1", "charge.succeeded", []byte(`{}`), 3, now.Add(-time.Hour))
	future := webhook.NewEvent("ep-2", "charge.succeeded", []byte(`{}`), 3, now.Add(time.Hour))
	expired := webhook.NewEvent("ep-2", "charge.succeeded", []byte(`{}`), 3, now.Add(-31*24*time.Hour))
	for _, ev := range []webhook.Event{oldest, older, future, expired} {
		require.NoError(t, repo.CreateEvent(ctx, ev))
	}

	t.Run("due events oldest first with limit", func(t *testing.T) {
		ids, err := repo.DueEventIDs(ctx, now, 10)
		require.NoError(t, err)
		assert.Equal(t, []string{expired.ID, oldest.ID, older.ID}, ids)

		ids, err = repo.DueEventIDs(ctx, now, 1)
		require.NoError(t, err)
		assert.Equal(t, []string{expired.ID}, ids)
	})

	t.Run("list by endpoint newest first", func(t *testing.T) {
		events, err := repo.ListEventsByEndpoint(ctx, "ep-1", 10)
		require.NoError(t, err)
		require.Len(t, events, 2)
		assert.Equal(t, older.ID, events[0].ID)
		assert.Equal(t, oldest.ID, events[1].ID)
	})

	t.Run("recent listing newest first", func(t *testing.T) {
		events, err := repo.ListRecentEvents(ctx, 3)
		require.NoError(t, err)
		require.Len(t, events, 3)
		assert.Equal(t, future.ID, events[0].ID)
		assert.Equal(t, older.ID, events[1].ID)
		assert.Equal(t, oldest.ID, events[2].ID)
	})

	t.Run("count by status", func(t *testing.T) {
		counts, err := repo.CountEventsByStatus(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(4), counts[webhook.Pending])
	})

	t.Run("retention purge", func(t *testing.T) {
		deleted, err := repo.DeleteEventsBefore(ctx, now.Add(-30*24*time.Hour))
		require.NoError(t, err)
		assert.Equal(t, int64(1), deleted)

		_, err = repo.GetEvent(ctx, expired.ID)
		assert.ErrorIs(t, err, webhook.ErrNotFound)
		_, err = repo.GetEvent(ctx, oldest.ID)
		assert.NoError(t, err)
	})
}
