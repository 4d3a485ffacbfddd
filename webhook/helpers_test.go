package webhook_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/marcelsud/webhook-engine/webhook"
	"github.com/marcelsud/webhook-engine/webhook/memory"
)

// noopAttempter absorbs dispatched ids without delivering anything
type noopAttempter struct{}

func (noopAttempter) Attempt(ctx context.Context, eventID string) error { return nil }

// recordingAttempter collects every id the dispatcher hands to it
type recordingAttempter struct {
	mu  sync.Mutex
	ids []string
	did chan string
}

func newRecordingAttempter() *recordingAttempter {
	return &recordingAttempter{did: make(chan string, 64)}
}

func (a *recordingAttempter) Attempt(ctx context.Context, eventID string) error {
	a.mu.Lock()
	a.ids = append(a.ids, eventID)
	a.mu.Unlock()
	a.did <- eventID
	return nil
}

func (a *recordingAttempter) waitFor(t *testing.T, n int) []string {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for i := 0; i < n; i++ {
		select {
		case <-a.did:
		case <-deadline:
			t.Fatalf("timed out waiting for %d attempts", n)
		}
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.ids...)
}

/* fakeSender scripts receiver behavior per call and records what was sent.
 * If err is set the call fails as a network error would
 */
type fakeSender struct {
	mu       sync.Mutex
	code     int
	body     []byte
	err      error
	requests []webhook.Request
}

func (s *fakeSender) Send(ctx context.Context, req webhook.Request) (webhook.Response, error) {
	s.mu.Lock()
	s.requests = append(s.requests, req)
	s.mu.Unlock()
	if s.err != nil {
		return webhook.Response{}, s.err
	}
	return webhook.Response{StatusCode: s.code, Body: s.body}, nil
}

func (s *fakeSender) sent() []webhook.Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]webhook.Request(nil), s.requests...)
}

// seedEndpoint registers an endpoint straight into the store
func seedEndpoint(t *testing.T, store *memory.Store, url, secret string, enabled bool) webhook.Endpoint {
	t.Helper()
	now := time.Now().UTC()
	endpoint := webhook.Endpoint{
		ID:        "ep-" + url,
		URL:       url,
		Secret:    secret,
		Enabled:   enabled,
		CreatedAt: now,
		UpdatedAt: now,
	}
	require.NoError(t, store.CreateEndpoint(context.Background(), endpoint))
	return endpoint
}

// seedEvent stores a fresh pending event owed to the endpoint
func seedEvent(t *testing.T, store *memory.Store, endpointID string, maxRetries int, now time.Time) webhook.Event {
	t.Helper()
	ev := webhook.NewEvent(endpointID, "charge.succeeded", []byte(`{"amount":100}`), maxRetries, now)
	require.NoError(t, store.CreateEvent(context.Background(), ev))
	return ev
}
