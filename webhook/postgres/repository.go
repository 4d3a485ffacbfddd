package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/marcelsud/webhook-engine/webhook"
)

/* PostgreSQL implementation of webhook.Repository
 * The claim guarantee rides on conditional UPDATEs: a transition only
 * applies when the row is still in the status it is leaving, so concurrent
 * workers and operator actions can never clobber each other
 */

const uniqueViolation = "23505"

type Repository struct {
	DB *sql.DB
}

// NewRepository creates a PostgreSQL repository with the default pool (25, 5, 5 min)
func NewRepository(connectionString string) (*Repository, error) {
	return NewRepositoryWithPoolConfig(connectionString, 25, 5, 5)
}

// NewRepositoryWithPoolConfig creates a PostgreSQL repository with a custom connection pool
func NewRepositoryWithPoolConfig(connectionString string, maxOpenConns, maxIdleConns, maxLifeMinutes int) (*Repository, error) {
	db, err := sql.Open("postgres", connectionString)
	if err != nil {
		return nil, fmt.Errorf("opening postgres connection: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("pinging postgres: %w", err)
	}

	if maxOpenConns > 0 {
		db.SetMaxOpenConns(maxOpenConns)
	}
	if maxIdleConns > 0 {
		db.SetMaxIdleConns(maxIdleConns)
	}
	if maxLifeMinutes > 0 {
		db.SetConnMaxLifetime(time.Duration(maxLifeMinutes) * time.Minute)
	}

	return &Repository{DB: db}, nil
}

// CreateEndpoint inserts a new endpoint; the URL unique index enforces no duplicates
func (r *Repository) CreateEndpoint(ctx context.Context, e webhook.Endpoint) error {
	query := `
		INSERT INTO webhook_endpoints (id, url, secret, enabled, description, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err := r.DB.ExecContext(ctx, query, e.ID, e.URL, e.Secret, e.Enabled, e.Description, e.CreatedAt, e.UpdatedAt)
	if isUniqueViolation(err) {
		return webhook.ErrDuplicateEndpoint
	}
	if err != nil {
		return fmt.Errorf("inserting endpoint: %w", err)
	}
	return nil
}

// UpdateEndpoint replaces an endpoint's mutable attributes
func (r *Repository) UpdateEndpoint(ctx context.Context, e webhook.Endpoint) error {
	query := `
		UPDATE webhook_endpoints
		SET url = $1, secret = $2, enabled = $3, description = $4, updated_at = $5
		WHERE id = $6
	`

	result, err := r.DB.ExecContext(ctx, query, e.URL, e.Secret, e.Enabled, e.Description, e.UpdatedAt, e.ID)
	if isUniqueViolation(err) {
		return webhook.ErrDuplicateEndpoint
	}
	if err != nil {
		return fmt.Errorf("updating endpoint: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("getting rows affected: %w", err)
	}
	if rows == 0 {
		return webhook.ErrNotFound
	}
	return nil
}

// GetEndpoint fetches an endpoint by id
func (r *Repository) GetEndpoint(ctx context.Context, id string) (webhook.Endpoint, error) {
	query := `
		SELECT id, url, secret, enabled, description, created_at, updated_at
		FROM webhook_endpoints WHERE id = $1
	`

	var e webhook.Endpoint
	err := r.DB.QueryRowContext(ctx, query, id).Scan(
		&e.ID, &e.URL, &e.Secret, &e.Enabled, &e.Description, &e.CreatedAt, &e.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return webhook.Endpoint{}, webhook.ErrNotFound
	}
	if err != nil {
		return webhook.Endpoint{}, fmt.Errorf("selecting endpoint: %w", err)
	}
	return e, nil
}

// DeleteEndpoint removes an endpoint; its events stay behind for audit
func (r *Repository) DeleteEndpoint(ctx context.Context, id string) error {
	result, err := r.DB.ExecContext(ctx, "DELETE FROM webhook_endpoints WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("deleting endpoint: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("getting rows affected: %w", err)
	}
	if rows == 0 {
		return webhook.ErrNotFound
	}
	return nil
}

// ListEndpoints returns every endpoint, oldest first
func (r *Repository) ListEndpoints(ctx context.Context) ([]webhook.Endpoint, error) {
	return r.listEndpoints(ctx, `
		SELECT id, url, secret, enabled, description, created_at, updated_at
		FROM webhook_endpoints ORDER BY created_at
	`)
}

// ListEnabledEndpoints returns the enabled subset, freshly read
func (r *Repository) ListEnabledEndpoints(ctx context.Context) ([]webhook.Endpoint, error) {
	return r.listEndpoints(ctx, `
		SELECT id, url, secret, enabled, description, created_at, updated_at
		FROM webhook_endpoints WHERE enabled ORDER BY created_at
	`)
}

func (r *Repository) listEndpoints(ctx context.Context, query string) ([]webhook.Endpoint, error) {
	rows, err := r.DB.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("selecting endpoints: %w", err)
	}
	defer rows.Close()

	var endpoints []webhook.Endpoint
	for rows.Next() {
		var e webhook.Endpoint
		if err := rows.Scan(&e.ID, &e.URL, &e.Secret, &e.Enabled, &e.Description, &e.CreatedAt, &e.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scanning endpoint: %w", err)
		}
		endpoints = append(endpoints, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating endpoints: %w", err)
	}
	return endpoints, nil
}

// CreateEvent inserts a new delivery event
func (r *Repository) CreateEvent(ctx context.Context, ev webhook.Event) error {
	query := `
		INSERT INTO webhook_events
			(id, endpoint_id, event_type, payload, status, retry_count, max_retries,
			 last_attempt, next_retry_at, response_code, response_body, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`

	_, err := r.DB.ExecContext(ctx, query,
		ev.ID, ev.EndpointID, ev.EventType, ev.Payload, ev.Status.String(),
		ev.RetryCount, ev.MaxRetries,
		nullTime(ev.LastAttempt), nullTime(ev.NextRetryAt),
		nullInt(ev.ResponseCode), ev.ResponseBody, ev.CreatedAt, ev.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("inserting event: %w", err)
	}
	return nil
}

// GetEvent fetches an event by id
func (r *Repository) GetEvent(ctx context.Context, id string) (webhook.Event, error) {
	query := selectEvent + " WHERE id = $1"

	ev, err := scanEvent(r.DB.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return webhook.Event{}, webhook.ErrNotFound
	}
	if err != nil {
		return webhook.Event{}, fmt.Errorf("selecting event: %w", err)
	}
	return ev, nil
}

// ClaimEvent atomically transitions Pending -> Delivering
func (r *Repository) ClaimEvent(ctx context.Context, id string, now time.Time) (webhook.Event, error) {
	query := `
		UPDATE webhook_events
		SET status = 'delivering', last_attempt = $2, next_retry_at = NULL, updated_at = $2
		WHERE id = $1 AND status = 'pending'
	`

	result, err := r.DB.ExecContext(ctx, query, id, now)
	if err != nil {
		return webhook.Event{}, fmt.Errorf("claiming event: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return webhook.Event{}, fmt.Errorf("getting rows affected: %w", err)
	}
	if rows == 0 {
		if _, err := r.GetEvent(ctx, id); err != nil {
			return webhook.Event{}, err
		}
		return webhook.Event{}, webhook.ErrNotClaimable
	}

	return r.GetEvent(ctx, id)
}

// CompleteAttempt persists an outcome, only while the stored status is still Delivering
func (r *Repository) CompleteAttempt(ctx context.Context, ev webhook.Event) error {
	query := `
		UPDATE webhook_events
		SET status = $2, retry_count = $3, next_retry_at = $4,
		    response_code = $5, response_body = $6, updated_at = $7
		WHERE id = $1 AND status = 'delivering'
	`

	result, err := r.DB.ExecContext(ctx, query,
		ev.ID, ev.Status.String(), ev.RetryCount, nullTime(ev.NextRetryAt),
		nullInt(ev.ResponseCode), ev.ResponseBody, ev.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("completing attempt: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("getting rows affected: %w", err)
	}
	if rows == 0 {
		if _, err := r.GetEvent(ctx, ev.ID); err != nil {
			return err
		}
		return webhook.ErrNotClaimable
	}
	return nil
}

// RequeueEvent resets Failed -> Pending for manual retry
func (r *Repository) RequeueEvent(ctx context.Context, id string, now time.Time) (webhook.Event, error) {
	query := `
		UPDATE webhook_events
		SET status = 'pending', retry_count = 0, next_retry_at = $2, updated_at = $2
		WHERE id = $1 AND status = 'failed'
	`

	if err := r.conditionalTransition(ctx, query, id, now); err != nil {
		return webhook.Event{}, err
	}
	return r.GetEvent(ctx, id)
}

// CancelEvent transitions Pending -> Canceled
func (r *Repository) CancelEvent(ctx context.Context, id string, now time.Time) (webhook.Event, error) {
	query := `
		UPDATE webhook_events
		SET status = 'canceled', next_retry_at = NULL, updated_at = $2
		WHERE id = $1 AND status = 'pending'
	`

	if err := r.conditionalTransition(ctx, query, id, now); err != nil {
		return webhook.Event{}, err
	}
	return r.GetEvent(ctx, id)
}

func (r *Repository) conditionalTransition(ctx context.Context, query, id string, now time.Time) error {
	result, err := r.DB.ExecContext(ctx, query, id, now)
	if err != nil {
		return fmt.Errorf("transitioning event: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("getting rows affected: %w", err)
	}
	if rows == 0 {
		if _, err := r.GetEvent(ctx, id); err != nil {
			return err
		}
		return webhook.ErrInvalidState
	}
	return nil
}

// ListEventsByEndpoint returns an endpoint's events, newest first
func (r *Repository) ListEventsByEndpoint(ctx context.Context, endpointID string, limit int) ([]webhook.Event, error) {
	if limit <= 0 {
		limit = 100
	}
	query := selectEvent + " WHERE endpoint_id = $1 ORDER BY created_at DESC LIMIT $2"
	return r.listEvents(ctx, query, endpointID, limit)
}

// ListEventsByStatus returns events in the given status, newest first
func (r *Repository) ListEventsByStatus(ctx context.Context, status webhook.Status, limit int) ([]webhook.Event, error) {
	if limit <= 0 {
		limit = 100
	}
	query := selectEvent + " WHERE status = $1 ORDER BY created_at DESC LIMIT $2"
	return r.listEvents(ctx, query, status.String(), limit)
}

// ListRecentEvents returns the most recently created events, any status
func (r *Repository) ListRecentEvents(ctx context.Context, limit int) ([]webhook.Event, error) {
	if limit <= 0 {
		limit = 100
	}
	query := selectEvent + " ORDER BY created_at DESC LIMIT $1"
	return r.listEvents(ctx, query, limit)
}

// CountEventsByStatus returns event totals per status
func (r *Repository) CountEventsByStatus(ctx context.Context) (map[webhook.Status]int64, error) {
	rows, err := r.DB.QueryContext(ctx, "SELECT status, COUNT(*) FROM webhook_events GROUP BY status")
	if err != nil {
		return nil, fmt.Errorf("counting events: %w", err)
	}
	defer rows.Close()

	counts := make(map[webhook.Status]int64)
	for rows.Next() {
		var status string
		var n int64
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("scanning count: %w", err)
		}
		counts[webhook.NewStatus(status)] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating counts: %w", err)
	}
	return counts, nil
}

// DueEventIDs returns Pending events whose retry time has arrived, oldest due first
func (r *Repository) DueEventIDs(ctx context.Context, now time.Time, limit int) ([]string, error) {
	query := `
		SELECT id FROM webhook_events
		WHERE status = 'pending' AND next_retry_at <= $1
		ORDER BY next_retry_at
		LIMIT $2
	`

	rows, err := r.DB.QueryContext(ctx, query, now, limit)
	if err != nil {
		return nil, fmt.Errorf("querying due events: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scanning event id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating due events: %w", err)
	}
	return ids, nil
}

// DeleteEventsBefore purges events created before the cutoff, any status
func (r *Repository) DeleteEventsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := r.DB.ExecContext(ctx, "DELETE FROM webhook_events WHERE created_at < $1", cutoff)
	if err != nil {
		return 0, fmt.Errorf("purging events: %w", err)
	}

	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("getting rows affected: %w", err)
	}
	return deleted, nil
}

// Close closes the database connection
func (r *Repository) Close(ctx context.Context) error {
	if r.DB != nil {
		return r.DB.Close()
	}
	return nil
}

// CreateTables creates the schema (useful for tests and first boot)
func (r *Repository) CreateTables(ctx context.Context) error {
	schema := `
		CREATE TABLE IF NOT EXISTS webhook_endpoints (
			id TEXT PRIMARY KEY,
			url TEXT NOT NULL UNIQUE,
			secret TEXT NOT NULL DEFAULT '',
			enabled BOOLEAN NOT NULL DEFAULT TRUE,
			description TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL
		);

		CREATE TABLE IF NOT EXISTS webhook_events (
			id TEXT PRIMARY KEY,
			endpoint_id TEXT NOT NULL,
			event_type TEXT NOT NULL,
			payload BYTEA NOT NULL,
			status TEXT NOT NULL,
			retry_count INT NOT NULL DEFAULT 0,
			max_retries INT NOT NULL DEFAULT 3,
			last_attempt TIMESTAMPTZ,
			next_retry_at TIMESTAMPTZ,
			response_code INT,
			response_body TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL
		);

		CREATE INDEX IF NOT EXISTS webhook_events_due_idx
			ON webhook_events (status, next_retry_at);
		CREATE INDEX IF NOT EXISTS webhook_events_endpoint_idx
			ON webhook_events (endpoint_id, created_at DESC);
	`

	if _, err := r.DB.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("creating tables: %w", err)
	}
	return nil
}

const selectEvent = `
	SELECT id, endpoint_id, event_type, payload, status, retry_count, max_retries,
	       last_attempt, next_retry_at, response_code, response_body, created_at, updated_at
	FROM webhook_events
`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEvent(row rowScanner) (webhook.Event, error) {
	var ev webhook.Event
	var status string
	var lastAttempt, nextRetryAt sql.NullTime
	var responseCode sql.NullInt64

	err := row.Scan(
		&ev.ID, &ev.EndpointID, &ev.EventType, &ev.Payload, &status,
		&ev.RetryCount, &ev.MaxRetries,
		&lastAttempt, &nextRetryAt, &responseCode, &ev.ResponseBody,
		&ev.CreatedAt, &ev.UpdatedAt,
	)
	if err != nil {
		return webhook.Event{}, err
	}

	ev.Status = webhook.NewStatus(status)
	if lastAttempt.Valid {
		ev.LastAttempt = lastAttempt.Time
	}
	if nextRetryAt.Valid {
		ev.NextRetryAt = nextRetryAt.Time
	}
	if responseCode.Valid {
		ev.ResponseCode = int(responseCode.Int64)
	}
	return ev, nil
}

func (r *Repository) listEvents(ctx context.Context, query string, args ...any) ([]webhook.Event, error) {
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("selecting events: %w", err)
	}
	defer rows.Close()

	var events []webhook.Event
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning event: %w", err)
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating events: %w", err)
	}
	return events, nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}

func nullTime(t time.Time) sql.NullTime {
	if t.IsZero() {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t, Valid: true}
}

func nullInt(n int) sql.NullInt64 {
	if n == 0 {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(n), Valid: true}
}
