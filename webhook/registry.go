package webhook

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

/* Registry is the business logic layer for endpoint bookkeeping
 * Uses pointer semantics as it's an API, not data
 */

// RegistryUseCase defines the endpoint management operations
type RegistryUseCase interface {
	Register(ctx context.Context, url, secret string, enabled bool, description string) (Endpoint, error)
	Update(ctx context.Context, id, url, secret string, enabled bool, description string) (Endpoint, error)
	SetEnabled(ctx context.Context, id string, enabled bool) (Endpoint, error)
	Delete(ctx context.Context, id string) error
	Get(ctx context.Context, id string) (Endpoint, error)
	List(ctx context.Context) ([]Endpoint, error)
	ListEnabled(ctx context.Context) ([]Endpoint, error)
}

type Registry struct {
	repo   EndpointRepository
	nowFn  NowFunc
	logger zerolog.Logger
}

// NewRegistry creates a new endpoint registry with dependency injection
func NewRegistry(repo EndpointRepository, logger zerolog.Logger) *Registry {
	return &Registry{
		repo:   repo,
		nowFn:  DefaultNow,
		logger: logger.With().Str("component", "registry").Logger(),
	}
}

// Register adds a new delivery target
func (r *Registry) Register(ctx context.Context, url, secret string, enabled bool, description string) (Endpoint, error) {
	if err := ValidateURL(url); err != nil {
		return Endpoint{}, err
	}

	now := r.nowFn()
	endpoint := Endpoint{
		ID:          uuid.New().String(),
		URL:         url,
		Secret:      secret,
		Enabled:     enabled,
		Description: description,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := r.repo.CreateEndpoint(ctx, endpoint); err != nil {
		return Endpoint{}, fmt.Errorf("creating endpoint: %w", err)
	}

	r.logger.Info().Str("endpoint_id", endpoint.ID).Str("url", url).Msg("endpoint registered")
	return endpoint, nil
}

// Update replaces the mutable attributes of an existing endpoint
func (r *Registry) Update(ctx context.Context, id, url, secret string, enabled bool, description string) (Endpoint, error) {
	if err := ValidateURL(url); err != nil {
		return Endpoint{}, err
	}

	endpoint, err := r.repo.GetEndpoint(ctx, id)
	if err != nil {
		return Endpoint{}, fmt.Errorf("getting endpoint: %w", err)
	}

	endpoint.URL = url
	endpoint.Secret = secret
	endpoint.Enabled = enabled
	endpoint.Description = description
	endpoint.UpdatedAt = r.nowFn()

	if err := r.repo.UpdateEndpoint(ctx, endpoint); err != nil {
		return Endpoint{}, fmt.Errorf("updating endpoint: %w", err)
	}

	return endpoint, nil
}

// SetEnabled toggles whether the endpoint receives new fan-out
func (r *Registry) SetEnabled(ctx context.Context, id string, enabled bool) (Endpoint, error) {
	endpoint, err := r.repo.GetEndpoint(ctx, id)
	if err != nil {
		return Endpoint{}, fmt.Errorf("getting endpoint: %w", err)
	}

	endpoint.Enabled = enabled
	endpoint.UpdatedAt = r.nowFn()

	if err := r.repo.UpdateEndpoint(ctx, endpoint); err != nil {
		return Endpoint{}, fmt.Errorf("updating endpoint: %w", err)
	}

	r.logger.Info().Str("endpoint_id", id).Bool("enabled", enabled).Msg("endpoint toggled")
	return endpoint, nil
}

/* Delete removes the endpoint, which stops future fan-out to it.
 * Existing delivery events for the endpoint are retained for audit;
 * the retention sweep ages them out with everything else
 */
func (r *Registry) Delete(ctx context.Context, id string) error {
	if err := r.repo.DeleteEndpoint(ctx, id); err != nil {
		return fmt.Errorf("deleting endpoint: %w", err)
	}
	r.logger.Info().Str("endpoint_id", id).Msg("endpoint deleted")
	return nil
}

// Get fetches one endpoint
func (r *Registry) Get(ctx context.Context, id string) (Endpoint, error) {
	endpoint, err := r.repo.GetEndpoint(ctx, id)
	if err != nil {
		return Endpoint{}, fmt.Errorf("getting endpoint: %w", err)
	}
	return endpoint, nil
}

// List returns every registered endpoint
func (r *Registry) List(ctx context.Context) ([]Endpoint, error) {
	endpoints, err := r.repo.ListEndpoints(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing endpoints: %w", err)
	}
	return endpoints, nil
}

// ListEnabled returns the endpoints currently receiving fan-out.
// Always a fresh read, never cached
func (r *Registry) ListEnabled(ctx context.Context) ([]Endpoint, error) {
	endpoints, err := r.repo.ListEnabledEndpoints(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing enabled endpoints: %w", err)
	}
	return endpoints, nil
}
