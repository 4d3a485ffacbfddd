package memory_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marcelsud/webhook-engine/webhook"
	"github.com/marcelsud/webhook-engine/webhook/memory"
)

func seed(t *testing.T, store *memory.Store, nextRetryAt time.Time) webhook.Event {
	t.Helper()
	ev := webhook.NewEvent("ep-1", "charge.succeeded", []byte(`{}`), 3, nextRetryAt)
	require.NoError(t, store.CreateEvent(context.Background(), ev))
	return ev
}

func TestStore_ClaimEvent(t *testing.T) {
	ctx := context.Background()
	now := time.Now().UTC()

	t.Run("success", func(t *testing.T) {
		store := memory.NewStore()
		ev := seed(t, store, now)

		claimed, err := store.ClaimEvent(ctx, ev.ID, now)
		require.NoError(t, err)
		assert.Equal(t, webhook.Delivering, claimed.Status)
		assert.Equal(t, now, claimed.LastAttempt)
	})

	t.Run("second claim loses", func(t *testing.T) {
		store := memory.NewStore()
		ev := seed(t, store, now)

		_, err := store.ClaimEvent(ctx, ev.ID, now)
		require.NoError(t, err)

		_, err = store.ClaimEvent(ctx, ev.ID, now)
		assert.ErrorIs(t, err, webhook.ErrNotClaimable)
	})

	t.Run("missing event", func(t *testing.T) {
		store := memory.NewStore()
		_, err := store.ClaimEvent(ctx, "nope", now)
		assert.ErrorIs(t, err, webhook.ErrNotFound)
	})
}

func TestStore_CompleteAttempt(t *testing.T) {
	ctx := context.Background()
	now := time.Now().UTC()

	t.Run("only completes while delivering", func(t *testing.T) {
		store := memory.NewStore()
		ev := seed(t, store, now)

		// Not claimed yet: completion has no claim to finish
		err := store.CompleteAttempt(ctx, ev.DeliveredAt(200, "ok", now))
		assert.ErrorIs(t, err, webhook.ErrNotClaimable)

		claimed, err := store.ClaimEvent(ctx, ev.ID, now)
		require.NoError(t, err)
		require.NoError(t, store.CompleteAttempt(ctx, claimed.DeliveredAt(200, "ok", now)))

		got, err := store.GetEvent(ctx, ev.ID)
		require.NoError(t, err)
		assert.Equal(t, webhook.Delivered, got.Status)

		// Terminal states are sticky
		err = store.CompleteAttempt(ctx, claimed.FailedAttempt(500, "late result", now))
		assert.ErrorIs(t, err, webhook.ErrNotClaimable)
	})
}

func TestStore_CancelEvent(t *testing.T) {
	ctx := context.Background()
	now := time.Now().UTC()

	t.Run("stamps the caller's clock", func(t *testing.T) {
		store := memory.NewStore()
		ev := seed(t, store, now)

		at := now.Add(-10 * time.Minute)
		canceled, err := store.CancelEvent(ctx, ev.ID, at)
		require.NoError(t, err)
		assert.Equal(t, webhook.Canceled, canceled.Status)
		assert.Equal(t, at, canceled.UpdatedAt)
	})

	t.Run("only valid on pending", func(t *testing.T) {
		store := memory.NewStore()
		ev := seed(t, store, now)

		_, err := store.ClaimEvent(ctx, ev.ID, now)
		require.NoError(t, err)

		_, err = store.CancelEvent(ctx, ev.ID, now)
		assert.ErrorIs(t, err, webhook.ErrInvalidState)
	})
}

func TestStore_ListRecentEvents(t *testing.T) {
	ctx := context.Background()
	now := time.Now().UTC()
	store := memory.NewStore()

	seed(t, store, now.Add(-2*time.Hour))
	middle := seed(t, store, now.Add(-time.Hour))
	newest := seed(t, store, now)

	events, err := store.ListRecentEvents(ctx, 2)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, newest.ID, events[0].ID)
	assert.Equal(t, middle.ID, events[1].ID)
}

func TestStore_DueEventIDs(t *testing.T) {
	ctx := context.Background()
	now := time.Now().UTC()
	store := memory.NewStore()

	oldest := seed(t, store, now.Add(-2*time.Hour))
	older := seed(t, store, now.Add(-time.Hour))
	seed(t, store, now.Add(time.Hour))

	t.Run("oldest due first", func(t *testing.T) {
		ids, err := store.DueEventIDs(ctx, now, 10)
		require.NoError(t, err)
		assert.Equal(t, []string{oldest.ID, older.ID}, ids)
	})

	t.Run("limit respected", func(t *testing.T) {
		ids, err := store.DueEventIDs(ctx, now, 1)
		require.NoError(t, err)
		assert.Equal(t, []string{oldest.ID}, ids)
	})
}

func TestStore_CountEventsByStatus(t *testing.T) {
	ctx := context.Background()
	now := time.Now().UTC()
	store := memory.NewStore()

	seed(t, store, now)
	ev := seed(t, store, now)
	claimed, err := store.ClaimEvent(ctx, ev.ID, now)
	require.NoError(t, err)
	require.NoError(t, store.CompleteAttempt(ctx, claimed.DeliveredAt(200, "", now)))

	counts, err := store.CountEventsByStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), counts[webhook.Pending])
	assert.Equal(t, int64(1), counts[webhook.Delivered])
}

func TestStore_DeleteEventsBefore(t *testing.T) {
	ctx := context.Background()
	now := time.Now().UTC()
	store := memory.NewStore()

	old := seed(t, store, now.Add(-48*time.Hour))
	recent := seed(t, store, now)

	deleted, err := store.DeleteEventsBefore(ctx, now.Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	_, err = store.GetEvent(ctx, old.ID)
	assert.ErrorIs(t, err, webhook.ErrNotFound)
	_, err = store.GetEvent(ctx, recent.ID)
	assert.NoError(t, err)
}
