package webhook

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/marcelsud/webhook-engine/webhook/payload"
	"github.com/marcelsud/webhook-engine/webhook/signature"
)

// DefaultResponseBodyLimit bounds how much of a receiver's response body is stored for diagnostics.
const DefaultResponseBodyLimit = 4096

// DefaultDeliveryTimeout bounds a single outbound POST, connect and read included.
const DefaultDeliveryTimeout = 10 * time.Second

// Request is one outbound delivery call
type Request struct {
	URL     string
	Body    []byte
	Headers map[string]string
}

// Response is what came back from the receiver
type Response struct {
	StatusCode int
	Body       []byte
}

// Sender performs the outbound HTTP call; abstracted so tests can fake receivers
type Sender interface {
	Send(ctx context.Context, req Request) (Response, error)
}

// HTTPSender delivers over net/http with a bounded timeout
type HTTPSender struct {
	client *http.Client
	limit  int64
}

// NewHTTPSender creates a sender whose calls never outlive the timeout
func NewHTTPSender(timeout time.Duration, bodyLimit int) *HTTPSender {
	if timeout <= 0 {
		timeout = DefaultDeliveryTimeout
	}
	if bodyLimit <= 0 {
		bodyLimit = DefaultResponseBodyLimit
	}
	return &HTTPSender{
		client: &http.Client{Timeout: timeout},
		limit:  int64(bodyLimit),
	}
}

// Send POSTs the payload and reads a bounded slice of the response body
func (s *HTTPSender) Send(ctx context.Context, req Request) (Response, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, req.URL, bytes.NewReader(req.Body))
	if err != nil {
		return Response{}, fmt.Errorf("building request: %w", err)
	}
	for k, v := range req.Headers {
		httpReq.Header.Set(k, v)
	}

	resp, err := s.client.Do(httpReq)
	if err != nil {
		return Response{}, fmt.Errorf("posting webhook: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, s.limit))
	if err != nil {
		// The status line arrived; a broken body read is still a classifiable response
		body = nil
	}

	return Response{StatusCode: resp.StatusCode, Body: body}, nil
}

/* Deliverer executes single delivery attempts
 * One attempt: claim the event, build the signed payload, POST it,
 * classify the outcome, persist the resulting state transition
 */
type Deliverer struct {
	events    EventRepository
	endpoints EndpointReader
	sender    Sender
	bodyLimit int
	nowFn     NowFunc
	logger    zerolog.Logger
}

// NewDeliverer creates a delivery worker with dependency injection
func NewDeliverer(events EventRepository, endpoints EndpointReader, sender Sender, bodyLimit int, logger zerolog.Logger) *Deliverer {
	if bodyLimit <= 0 {
		bodyLimit = DefaultResponseBodyLimit
	}
	return &Deliverer{
		events:    events,
		endpoints: endpoints,
		sender:    sender,
		bodyLimit: bodyLimit,
		nowFn:     DefaultNow,
		logger:    logger.With().Str("component", "deliverer").Logger(),
	}
}

/* Attempt runs one delivery attempt for the event.
 * Safe to invoke redundantly: the claim decides ownership, so an attempt
 * dispatched right after publish and one fired by the sweep for the same
 * event can never both execute
 */
func (d *Deliverer) Attempt(ctx context.Context, eventID string) error {
	ev, err := d.events.ClaimEvent(ctx, eventID, d.nowFn())
	if err != nil {
		if errors.Is(err, ErrNotClaimable) || errors.Is(err, ErrNotFound) {
			// Mid-attempt elsewhere, terminal, or purged. Nothing to do
			return nil
		}
		return fmt.Errorf("claiming event: %w", err)
	}

	endpoint, err := d.endpoints.GetEndpoint(ctx, ev.EndpointID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			/* Endpoint deleted while the event was in flight. The event can
			 * never deliver, so finalize it instead of burning retries
			 */
			return d.complete(ctx, ev.CanceledAt(d.nowFn()))
		}
		// Store hiccup after the attempt started: accounted as a delivery failure
		return d.complete(ctx, ev.FailedAttempt(0, fmt.Sprintf("endpoint lookup: %v", err), d.nowFn()))
	}

	req, err := d.buildRequest(ev, endpoint)
	if err != nil {
		return d.complete(ctx, ev.FailedAttempt(0, fmt.Sprintf("building payload: %v", err), d.nowFn()))
	}

	resp, err := d.sender.Send(ctx, req)
	now := d.nowFn()
	if err != nil {
		// Network error and timeout classify the same as a non-2xx response
		d.logger.Warn().Str("event_id", ev.ID).Str("url", endpoint.URL).Err(err).Msg("delivery failed")
		return d.complete(ctx, ev.FailedAttempt(0, truncate(err.Error(), d.bodyLimit), now))
	}

	body := truncate(string(resp.Body), d.bodyLimit)
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		d.logger.Info().Str("event_id", ev.ID).Str("url", endpoint.URL).Int("code", resp.StatusCode).Msg("delivered")
		return d.complete(ctx, ev.DeliveredAt(resp.StatusCode, body, now))
	}

	d.logger.Warn().Str("event_id", ev.ID).Str("url", endpoint.URL).Int("code", resp.StatusCode).Msg("receiver rejected delivery")
	return d.complete(ctx, ev.FailedAttempt(resp.StatusCode, body, now))
}

func (d *Deliverer) buildRequest(ev Event, endpoint Endpoint) (Request, error) {
	created := d.nowFn()
	msg, err := payload.New(ev.ID, ev.EventType, ev.Payload, created)
	if err != nil {
		return Request{}, err
	}

	body, err := msg.Bytes()
	if err != nil {
		return Request{}, err
	}

	headers := map[string]string{
		"Content-Type":            "application/json",
		signature.HeaderID:        ev.ID,
		signature.HeaderTimestamp: strconv.FormatInt(created.Unix(), 10),
	}

	// No secret configured means no signature header is sent
	if endpoint.Secret != "" {
		secret, err := signature.SecretFromString(endpoint.Secret)
		if err != nil {
			return Request{}, fmt.Errorf("parsing endpoint secret: %w", err)
		}
		sig, err := signature.Sign(secret, ev.ID, created, body)
		if err != nil {
			return Request{}, fmt.Errorf("signing payload: %w", err)
		}
		headers[signature.HeaderSignature] = sig.String()
	}

	return Request{URL: endpoint.URL, Body: body, Headers: headers}, nil
}

func (d *Deliverer) complete(ctx context.Context, ev Event) error {
	err := d.events.CompleteAttempt(ctx, ev)
	if errors.Is(err, ErrNotClaimable) {
		/* The event left Delivering underneath us, which only an operator
		 * cancel can cause. Terminal states are sticky; drop the result
		 */
		d.logger.Info().Str("event_id", ev.ID).Msg("attempt result discarded, event no longer in flight")
		return nil
	}
	if err != nil {
		return fmt.Errorf("completing attempt: %w", err)
	}
	return nil
}

func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	return s[:limit]
}
