package redis

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/marcelsud/webhook-engine/webhook"
)

/* Redis implementation of webhook.Repository
 * Hashes hold endpoint and event state; sorted sets index events by
 * next-retry time (for the retry sweep) and by creation time (for the
 * retention sweep); per-status sets back listings and counters.
 * State transitions that need atomicity run as Lua scripts so the claim
 * guarantee holds across concurrent workers and processes
 */

const (
	endpointPrefix    = "endpoint"        // endpoint:{id} hash
	endpointSetKey    = "endpoints"       // set of endpoint ids
	endpointURLsKey   = "endpoint_urls"   // hash url -> id, enforces URL uniqueness
	eventPrefix       = "event"           // event:{id} hash
	pendingZSetKey    = "events:pending"  // zset id -> next_retry_at (ms)
	createdZSetKey    = "events:created"  // zset id -> created_at (ms)
	byEndpointPrefix  = "events:endpoint" // events:endpoint:{id} zset id -> created_at (ms)
	statusSetPrefix   = "events:status"   // events:status:{status} set of event ids
)

type Repository struct {
	client *redis.Client
}

// NewRepository creates a new Redis repository
func NewRepository(addr, password string, db int) (*Repository, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connecting to Redis: %w", err)
	}

	return &Repository{
		client: client,
	}, nil
}

// CreateEndpoint stores a new endpoint, enforcing URL uniqueness
func (r *Repository) CreateEndpoint(ctx context.Context, e webhook.Endpoint) error {
	ok, err := r.client.HSetNX(ctx, endpointURLsKey, e.URL, e.ID).Result()
	if err != nil {
		return fmt.Errorf("reserving endpoint URL: %w", err)
	}
	if !ok {
		return webhook.ErrDuplicateEndpoint
	}

	if err := r.writeEndpoint(ctx, e); err != nil {
		// Roll the reservation back so the URL is not stuck
		r.client.HDel(ctx, endpointURLsKey, e.URL)
		return err
	}

	if err := r.client.SAdd(ctx, endpointSetKey, e.ID).Err(); err != nil {
		return fmt.Errorf("indexing endpoint: %w", err)
	}
	return nil
}

// UpdateEndpoint replaces an endpoint, re-reserving the URL when it changed
func (r *Repository) UpdateEndpoint(ctx context.Context, e webhook.Endpoint) error {
	current, err := r.GetEndpoint(ctx, e.ID)
	if err != nil {
		return err
	}

	if current.URL != e.URL {
		ok, err := r.client.HSetNX(ctx, endpointURLsKey, e.URL, e.ID).Result()
		if err != nil {
			return fmt.Errorf("reserving endpoint URL: %w", err)
		}
		if !ok {
			return webhook.ErrDuplicateEndpoint
		}
		r.client.HDel(ctx, endpointURLsKey, current.URL)
	}

	return r.writeEndpoint(ctx, e)
}

// GetEndpoint fetches an endpoint by id
func (r *Repository) GetEndpoint(ctx context.Context, id string) (webhook.Endpoint, error) {
	data, err := r.client.HGetAll(ctx, endpointKey(id)).Result()
	if err != nil {
		return webhook.Endpoint{}, fmt.Errorf("getting endpoint: %w", err)
	}
	if len(data) == 0 {
		return webhook.Endpoint{}, webhook.ErrNotFound
	}
	return endpointFromHash(data), nil
}

// DeleteEndpoint removes an endpoint; its events stay behind for audit
func (r *Repository) DeleteEndpoint(ctx context.Context, id string) error {
	e, err := r.GetEndpoint(ctx, id)
	if err != nil {
		return err
	}

	pipe := r.client.TxPipeline()
	pipe.Del(ctx, endpointKey(id))
	pipe.SRem(ctx, endpointSetKey, id)
	pipe.HDel(ctx, endpointURLsKey, e.URL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("deleting endpoint: %w", err)
	}
	return nil
}

// ListEndpoints returns every endpoint, oldest first
func (r *Repository) ListEndpoints(ctx context.Context) ([]webhook.Endpoint, error) {
	ids, err := r.client.SMembers(ctx, endpointSetKey).Result()
	if err != nil {
		return nil, fmt.Errorf("listing endpoint ids: %w", err)
	}

	endpoints := make([]webhook.Endpoint, 0, len(ids))
	for _, id := range ids {
		e, err := r.GetEndpoint(ctx, id)
		if err == webhook.ErrNotFound {
			continue
		}
		if err != nil {
			return nil, err
		}
		endpoints = append(endpoints, e)
	}

	sort.Slice(endpoints, func(i, j int) bool { return endpoints[i].CreatedAt.Before(endpoints[j].CreatedAt) })
	return endpoints, nil
}

// ListEnabledEndpoints returns the enabled subset, freshly read
func (r *Repository) ListEnabledEndpoints(ctx context.Context) ([]webhook.Endpoint, error) {
	all, err := r.ListEndpoints(ctx)
	if err != nil {
		return nil, err
	}
	enabled := make([]webhook.Endpoint, 0, len(all))
	for _, e := range all {
		if e.Enabled {
			enabled = append(enabled, e)
		}
	}
	return enabled, nil
}

// CreateEvent stores a new delivery event and indexes it for the sweeps
func (r *Repository) CreateEvent(ctx context.Context, ev webhook.Event) error {
	pipe := r.client.TxPipeline()
	pipe.HSet(ctx, eventKey(ev.ID), eventToHash(ev))
	pipe.ZAdd(ctx, createdZSetKey, redis.Z{Score: float64(ev.CreatedAt.UnixMilli()), Member: ev.ID})
	pipe.ZAdd(ctx, byEndpointKey(ev.EndpointID), redis.Z{Score: float64(ev.CreatedAt.UnixMilli()), Member: ev.ID})
	pipe.SAdd(ctx, statusSetKey(ev.Status), ev.ID)
	if ev.Status == webhook.Pending {
		pipe.ZAdd(ctx, pendingZSetKey, redis.Z{Score: float64(ev.NextRetryAt.UnixMilli()), Member: ev.ID})
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("storing event: %w", err)
	}
	return nil
}

// GetEvent fetches an event by id
func (r *Repository) GetEvent(ctx context.Context, id string) (webhook.Event, error) {
	data, err := r.client.HGetAll(ctx, eventKey(id)).Result()
	if err != nil {
		return webhook.Event{}, fmt.Errorf("getting event: %w", err)
	}
	if len(data) == 0 {
		return webhook.Event{}, webhook.ErrNotFound
	}
	return eventFromHash(data), nil
}

// ClaimEvent atomically transitions Pending -> Delivering via a Lua script
func (r *Repository) ClaimEvent(ctx context.Context, id string, now time.Time) (webhook.Event, error) {
	res, err := claimScript.Run(ctx, r.client,
		[]string{eventKey(id), pendingZSetKey, statusSetKey(webhook.Pending), statusSetKey(webhook.Delivering)},
		id, now.UnixMilli(),
	).Int64()
	if err != nil {
		return webhook.Event{}, fmt.Errorf("claiming event: %w", err)
	}

	switch res {
	case claimMissing:
		return webhook.Event{}, webhook.ErrNotFound
	case claimLost:
		return webhook.Event{}, webhook.ErrNotClaimable
	}

	return r.GetEvent(ctx, id)
}

// CompleteAttempt persists an outcome, only while the stored status is still Delivering
func (r *Repository) CompleteAttempt(ctx context.Context, ev webhook.Event) error {
	res, err := completeScript.Run(ctx, r.client,
		[]string{eventKey(ev.ID), pendingZSetKey, statusSetKey(webhook.Delivering), statusSetKey(ev.Status)},
		ev.ID,
		ev.Status.String(),
		ev.RetryCount,
		unixMilliOrZero(ev.NextRetryAt),
		ev.ResponseCode,
		ev.ResponseBody,
		ev.UpdatedAt.UnixMilli(),
	).Int64()
	if err != nil {
		return fmt.Errorf("completing attempt: %w", err)
	}

	switch res {
	case claimMissing:
		return webhook.ErrNotFound
	case claimLost:
		return webhook.ErrNotClaimable
	}
	return nil
}

// RequeueEvent resets Failed -> Pending for manual retry
func (r *Repository) RequeueEvent(ctx context.Context, id string, now time.Time) (webhook.Event, error) {
	res, err := requeueScript.Run(ctx, r.client,
		[]string{eventKey(id), pendingZSetKey, statusSetKey(webhook.Failed), statusSetKey(webhook.Pending)},
		id, now.UnixMilli(),
	).Int64()
	if err != nil {
		return webhook.Event{}, fmt.Errorf("requeueing event: %w", err)
	}

	switch res {
	case claimMissing:
		return webhook.Event{}, webhook.ErrNotFound
	case claimLost:
		return webhook.Event{}, webhook.ErrInvalidState
	}

	return r.GetEvent(ctx, id)
}

// CancelEvent transitions Pending -> Canceled
func (r *Repository) CancelEvent(ctx context.Context, id string, now time.Time) (webhook.Event, error) {
	res, err := cancelScript.Run(ctx, r.client,
		[]string{eventKey(id), pendingZSetKey, statusSetKey(webhook.Pending), statusSetKey(webhook.Canceled)},
		id, now.UnixMilli(),
	).Int64()
	if err != nil {
		return webhook.Event{}, fmt.Errorf("canceling event: %w", err)
	}

	switch res {
	case claimMissing:
		return webhook.Event{}, webhook.ErrNotFound
	case claimLost:
		return webhook.Event{}, webhook.ErrInvalidState
	}

	return r.GetEvent(ctx, id)
}

// ListEventsByEndpoint returns an endpoint's events, newest first
func (r *Repository) ListEventsByEndpoint(ctx context.Context, endpointID string, limit int) ([]webhook.Event, error) {
	if limit <= 0 {
		limit = 100
	}
	ids, err := r.client.ZRevRange(ctx, byEndpointKey(endpointID), 0, int64(limit-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("listing events by endpoint: %w", err)
	}
	return r.getEvents(ctx, ids)
}

// ListEventsByStatus returns events in the given status, newest first
func (r *Repository) ListEventsByStatus(ctx context.Context, status webhook.Status, limit int) ([]webhook.Event, error) {
	ids, err := r.client.SMembers(ctx, statusSetKey(status)).Result()
	if err != nil {
		return nil, fmt.Errorf("listing events by status: %w", err)
	}

	events, err := r.getEvents(ctx, ids)
	if err != nil {
		return nil, err
	}

	sort.Slice(events, func(i, j int) bool { return events[i].CreatedAt.After(events[j].CreatedAt) })
	if limit > 0 && len(events) > limit {
		events = events[:limit]
	}
	return events, nil
}

// ListRecentEvents returns the most recently created events, any status.
// The creation-time zset gives the newest-first order directly
func (r *Repository) ListRecentEvents(ctx context.Context, limit int) ([]webhook.Event, error) {
	if limit <= 0 {
		limit = 100
	}
	ids, err := r.client.ZRevRange(ctx, createdZSetKey, 0, int64(limit-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("listing recent events: %w", err)
	}
	return r.getEvents(ctx, ids)
}

// CountEventsByStatus returns event totals per status
func (r *Repository) CountEventsByStatus(ctx context.Context) (map[webhook.Status]int64, error) {
	counts := make(map[webhook.Status]int64, len(webhook.Statuses()))
	for _, status := range webhook.Statuses() {
		n, err := r.client.SCard(ctx, statusSetKey(status)).Result()
		if err != nil {
			return nil, fmt.Errorf("counting %s events: %w", status, err)
		}
		if n > 0 {
			counts[status] = n
		}
	}
	return counts, nil
}

// DueEventIDs returns Pending events whose retry time has arrived, oldest due first
func (r *Repository) DueEventIDs(ctx context.Context, now time.Time, limit int) ([]string, error) {
	ids, err := r.client.ZRangeByScore(ctx, pendingZSetKey, &redis.ZRangeBy{
		Min:   "-inf",
		Max:   strconv.FormatInt(now.UnixMilli(), 10),
		Count: int64(limit),
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("querying due events: %w", err)
	}
	return ids, nil
}

// DeleteEventsBefore purges events created before the cutoff, any status
func (r *Repository) DeleteEventsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	max := strconv.FormatInt(cutoff.UnixMilli()-1, 10)
	ids, err := r.client.ZRangeByScore(ctx, createdZSetKey, &redis.ZRangeBy{Min: "-inf", Max: max}).Result()
	if err != nil {
		return 0, fmt.Errorf("querying expired events: %w", err)
	}

	var deleted int64
	for _, id := range ids {
		endpointID, err := r.client.HGet(ctx, eventKey(id), "endpoint_id").Result()
		if err != nil && err != redis.Nil {
			return deleted, fmt.Errorf("reading expired event: %w", err)
		}

		pipe := r.client.TxPipeline()
		pipe.Del(ctx, eventKey(id))
		pipe.ZRem(ctx, createdZSetKey, id)
		pipe.ZRem(ctx, pendingZSetKey, id)
		if endpointID != "" {
			pipe.ZRem(ctx, byEndpointKey(endpointID), id)
		}
		for _, status := range webhook.Statuses() {
			pipe.SRem(ctx, statusSetKey(status), id)
		}
		if _, err := pipe.Exec(ctx); err != nil {
			// Best effort: whatever is left gets caught by the next run
			return deleted, fmt.Errorf("purging event %s: %w", id, err)
		}
		deleted++
	}
	return deleted, nil
}

// Close closes the Redis connection
func (r *Repository) Close(ctx context.Context) error {
	return r.client.Close()
}

// GetClient returns the underlying Redis client for advanced operations
func (r *Repository) GetClient() *redis.Client {
	return r.client
}

func (r *Repository) writeEndpoint(ctx context.Context, e webhook.Endpoint) error {
	err := r.client.HSet(ctx, endpointKey(e.ID), map[string]interface{}{
		"id":          e.ID,
		"url":         e.URL,
		"secret":      e.Secret,
		"enabled":     strconv.FormatBool(e.Enabled),
		"description": e.Description,
		"created_at":  e.CreatedAt.UnixMilli(),
		"updated_at":  e.UpdatedAt.UnixMilli(),
	}).Err()
	if err != nil {
		return fmt.Errorf("storing endpoint: %w", err)
	}
	return nil
}

func (r *Repository) getEvents(ctx context.Context, ids []string) ([]webhook.Event, error) {
	events := make([]webhook.Event, 0, len(ids))
	for _, id := range ids {
		ev, err := r.GetEvent(ctx, id)
		if err == webhook.ErrNotFound {
			// Purged between index read and hash read
			continue
		}
		if err != nil {
			return nil, err
		}
		events = append(events, ev)
	}
	return events, nil
}

// Helper functions

func endpointKey(id string) string {
	return fmt.Sprintf("%s:%s", endpointPrefix, id)
}

func eventKey(id string) string {
	return fmt.Sprintf("%s:%s", eventPrefix, id)
}

func byEndpointKey(endpointID string) string {
	return fmt.Sprintf("%s:%s", byEndpointPrefix, endpointID)
}

func statusSetKey(status webhook.Status) string {
	return fmt.Sprintf("%s:%s", statusSetPrefix, status)
}

func eventToHash(ev webhook.Event) map[string]interface{} {
	return map[string]interface{}{
		"id":            ev.ID,
		"endpoint_id":   ev.EndpointID,
		"event_type":    ev.EventType,
		"payload":       ev.Payload,
		"status":        ev.Status.String(),
		"retry_count":   ev.RetryCount,
		"max_retries":   ev.MaxRetries,
		"last_attempt":  unixMilliOrZero(ev.LastAttempt),
		"next_retry_at": unixMilliOrZero(ev.NextRetryAt),
		"response_code": ev.ResponseCode,
		"response_body": ev.ResponseBody,
		"created_at":    ev.CreatedAt.UnixMilli(),
		"updated_at":    ev.UpdatedAt.UnixMilli(),
	}
}

func eventFromHash(data map[string]string) webhook.Event {
	return webhook.Event{
		ID:           data["id"],
		EndpointID:   data["endpoint_id"],
		EventType:    data["event_type"],
		Payload:      []byte(data["payload"]),
		Status:       webhook.NewStatus(data["status"]),
		RetryCount:   int(parseInt64(data["retry_count"])),
		MaxRetries:   int(parseInt64(data["max_retries"])),
		LastAttempt:  timeFromMilli(parseInt64(data["last_attempt"])),
		NextRetryAt:  timeFromMilli(parseInt64(data["next_retry_at"])),
		ResponseCode: int(parseInt64(data["response_code"])),
		ResponseBody: data["response_body"],
		CreatedAt:    timeFromMilli(parseInt64(data["created_at"])),
		UpdatedAt:    timeFromMilli(parseInt64(data["updated_at"])),
	}
}

func endpointFromHash(data map[string]string) webhook.Endpoint {
	enabled, _ := strconv.ParseBool(data["enabled"])
	return webhook.Endpoint{
		ID:          data["id"],
		URL:         data["url"],
		Secret:      data["secret"],
		Enabled:     enabled,
		Description: data["description"],
		CreatedAt:   timeFromMilli(parseInt64(data["created_at"])),
		UpdatedAt:   timeFromMilli(parseInt64(data["updated_at"])),
	}
}

func parseInt64(s string) int64 {
	n, _ := strconv.ParseInt(s, 10, 64)
	return n
}

func timeFromMilli(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}

func unixMilliOrZero(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}
