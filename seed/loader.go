package seed

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"github.com/marcelsud/webhook-engine/webhook"
)

/* seed bootstraps the endpoint registry from an endpoints.yaml file,
 * so a fresh environment comes up with its delivery targets in place
 */

// Config represents the structure of endpoints.yaml
type Config struct {
	Endpoints []EndpointConfig `yaml:"endpoints"`
}

// EndpointConfig represents a single endpoint in the YAML file
type EndpointConfig struct {
	URL         string `yaml:"url"`
	Secret      string `yaml:"secret"`
	Enabled     *bool  `yaml:"enabled"` // Optional: default true
	Description string `yaml:"description"`
}

// Loader registers seeded endpoints through the registry
type Loader struct {
	registry webhook.RegistryUseCase
	logger   zerolog.Logger
}

// NewLoader creates a new seed loader
func NewLoader(registry webhook.RegistryUseCase, logger zerolog.Logger) *Loader {
	return &Loader{
		registry: registry,
		logger:   logger.With().Str("component", "seed").Logger(),
	}
}

/* Load reads the YAML file and registers every endpoint in it.
 * A URL that is already registered is skipped, so the loader is
 * safe to run on every boot
 */
func (l *Loader) Load(ctx context.Context, filePath string) error {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return fmt.Errorf("reading seed file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return fmt.Errorf("parsing seed YAML: %w", err)
	}

	for _, ec := range config.Endpoints {
		enabled := true
		if ec.Enabled != nil {
			enabled = *ec.Enabled
		}

		endpoint, err := l.registry.Register(ctx, ec.URL, ec.Secret, enabled, ec.Description)
		if errors.Is(err, webhook.ErrDuplicateEndpoint) {
			l.logger.Debug().Str("url", ec.URL).Msg("endpoint already registered, skipping")
			continue
		}
		if err != nil {
			return fmt.Errorf("seeding endpoint %q: %w", ec.URL, err)
		}

		l.logger.Info().Str("endpoint_id", endpoint.ID).Str("url", ec.URL).Msg("endpoint seeded")
	}

	return nil
}
