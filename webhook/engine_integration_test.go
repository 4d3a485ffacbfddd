//go:build integration

package webhook_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	testcontainersredis "github.com/testcontainers/testcontainers-go/modules/redis"

	"github.com/marcelsud/webhook-engine/webhook"
	wbredis "github.com/marcelsud/webhook-engine/webhook/redis"
	"github.com/marcelsud/webhook-engine/webhook/signature"
)

func setupRedisRepo(t *testing.T, ctx context.Context) (*wbredis.Repository, func()) {
	t.Helper()

	redisContainer, err := testcontainersredis.Run(ctx, "redis:7-alpine")
	require.NoError(t, err)

	addr, err := redisContainer.ConnectionString(ctx)
	require.NoError(t, err)
	if len(addr) > 8 && addr[:8] == "redis://" {
		addr = addr[8:]
	}

	repo, err := wbredis.NewRepository(addr, "", 0)
	require.NoError(t, err)

	cleanup := func() {
		repo.Close(ctx)
		_ = redisContainer.Terminate(ctx)
	}
	return repo, cleanup
}

// receiver is a scriptable subscriber endpoint
type receiver struct {
	mu       sync.Mutex
	fails    int // how many requests to reject before accepting
	requests []*http.Request
	bodies   [][]byte
	srv      *httptest.Server
}

func newReceiver(fails int) *receiver {
	rc := &receiver{fails: fails}
	rc.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)

		rc.mu.Lock()
		rc.requests = append(rc.requests, r)
		rc.bodies = append(rc.bodies, body)
		reject := rc.fails > 0
		if reject {
			rc.fails--
		}
		rc.mu.Unlock()

		if reject {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	return rc
}

func (rc *receiver) hits() int {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	return len(rc.requests)
}

func waitUntil(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(50 * time.Millisecond)
	}
	require.FailNow(t, "condition not met before timeout")
}

func TestEngine_EndToEnd(t *testing.T) {
	ctx := context.Background()

	t.Run("publish, deliver and verify signature", func(t *testing.T) {
		repo, cleanup := setupRedisRepo(t, ctx)
		defer cleanup()

		secret, err := signature.GenerateSecret(32)
		require.NoError(t, err)

		rc := newReceiver(0)
		defer rc.srv.Close()

		logger := zerolog.Nop()
		registry := webhook.NewRegistry(repo, logger)
		endpoint, err := registry.Register(ctx, rc.srv.URL, secret.String(), true, "")
		require.NoError(t, err)

		sender := webhook.NewHTTPSender(5*time.Second, 0)
		deliverer := webhook.NewDeliverer(repo, repo, sender, 0, logger)
		dispatcher := webhook.NewDispatcher(deliverer, 2, 16, logger)
		dispatcher.Start(ctx)
		defer dispatcher.Shutdown(ctx)

		publisher := webhook.NewPublisher(repo, repo, dispatcher, 3, logger)
		require.NoError(t, publisher.Publish(ctx, "charge.succeeded", []byte(`{"amount":100}`)))

		waitUntil(t, 5*time.Second, func() bool { return rc.hits() == 1 })

		events, err := repo.ListEventsByEndpoint(ctx, endpoint.ID, 10)
		require.NoError(t, err)
		require.Len(t, events, 1)
		assert.Equal(t, webhook.Delivered, events[0].Status)
		assert.Equal(t, http.StatusOK, events[0].ResponseCode)

		// The receiver can verify the signature over the exact bytes it got
		rc.mu.Lock()
		req, body := rc.requests[0], rc.bodies[0]
		rc.mu.Unlock()

		msgID := req.Header.Get(signature.HeaderID)
		assert.Equal(t, events[0].ID, msgID)

		ts, err := strconv.ParseInt(req.Header.Get(signature.HeaderTimestamp), 10, 64)
		require.NoError(t, err)
		sig, err := signature.ParseSignature(req.Header.Get(signature.HeaderSignature))
		require.NoError(t, err)

		ok, err := signature.Verify(secret, msgID, time.Unix(ts, 0), body, sig)
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("failing receiver recovers through the retry sweep", func(t *testing.T) {
		repo, cleanup := setupRedisRepo(t, ctx)
		defer cleanup()

		rc := newReceiver(1)
		defer rc.srv.Close()

		logger := zerolog.Nop()
		registry := webhook.NewRegistry(repo, logger)
		endpoint, err := registry.Register(ctx, rc.srv.URL, "", true, "")
		require.NoError(t, err)

		sender := webhook.NewHTTPSender(5*time.Second, 0)
		deliverer := webhook.NewDeliverer(repo, repo, sender, 0, logger)
		dispatcher := webhook.NewDispatcher(deliverer, 2, 16, logger)
		dispatcher.Start(ctx)
		defer dispatcher.Shutdown(ctx)

		publisher := webhook.NewPublisher(repo, repo, dispatcher, 3, logger)
		require.NoError(t, publisher.Publish(ctx, "charge.succeeded", []byte(`{"amount":100}`)))

		// First attempt fails; the event re-arms with a 1s backoff
		waitUntil(t, 5*time.Second, func() bool { return rc.hits() == 1 })

		sweeper := webhook.NewRetrySweeper(repo, dispatcher, time.Minute, logger)
		waitUntil(t, 10*time.Second, func() bool {
			sweeper.Sweep(ctx)
			events, err := repo.ListEventsByEndpoint(ctx, endpoint.ID, 10)
			require.NoError(t, err)
			return len(events) == 1 && events[0].Status == webhook.Delivered
		})

		assert.GreaterOrEqual(t, rc.hits(), 2)
	})
}
