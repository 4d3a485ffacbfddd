package seed_test

import (
	"context"
	"os"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marcelsud/webhook-engine/seed"
	"github.com/marcelsud/webhook-engine/webhook"
	"github.com/marcelsud/webhook-engine/webhook/memory"
)

func writeSeedFile(t *testing.T, content string) string {
	t.Helper()
	tmpFile, err := os.CreateTemp(t.TempDir(), "endpoints-*.yaml")
	require.NoError(t, err)
	_, err = tmpFile.WriteString(content)
	require.NoError(t, err)
	require.NoError(t, tmpFile.Close())
	return tmpFile.Name()
}

func TestLoader_Load(t *testing.T) {
	ctx := context.Background()

	t.Run("success - valid endpoints file", func(t *testing.T) {
		path := writeSeedFile(t, `
endpoints:
  - url: "https://billing.example.com/hooks"
    secret: "whsec_dGVzdC1zZWNyZXQtd2l0aC1lbm91Z2gtYnl0ZXM="
    description: "billing receiver"
  - url: "https://audit.example.com/hooks"
    enabled: false
`)

		store := memory.NewStore()
		registry := webhook.NewRegistry(store, zerolog.Nop())
		loader := seed.NewLoader(registry, zerolog.Nop())

		require.NoError(t, loader.Load(ctx, path))

		all, err := registry.List(ctx)
		require.NoError(t, err)
		require.Len(t, all, 2)

		byURL := map[string]webhook.Endpoint{}
		for _, e := range all {
			byURL[e.URL] = e
		}
		assert.True(t, byURL["https://billing.example.com/hooks"].Enabled, "enabled defaults to true")
		assert.Equal(t, "billing receiver", byURL["https://billing.example.com/hooks"].Description)
		assert.False(t, byURL["https://audit.example.com/hooks"].Enabled)
	})

	t.Run("already registered endpoints are skipped", func(t *testing.T) {
		path := writeSeedFile(t, `
endpoints:
  - url: "https://billing.example.com/hooks"
`)

		store := memory.NewStore()
		registry := webhook.NewRegistry(store, zerolog.Nop())
		loader := seed.NewLoader(registry, zerolog.Nop())

		require.NoError(t, loader.Load(ctx, path))
		require.NoError(t, loader.Load(ctx, path), "safe to run on every boot")

		all, err := registry.List(ctx)
		require.NoError(t, err)
		assert.Len(t, all, 1)
	})

	t.Run("invalid URL aborts the load", func(t *testing.T) {
		path := writeSeedFile(t, `
endpoints:
  - url: "not-a-url"
`)

		registry := webhook.NewRegistry(memory.NewStore(), zerolog.Nop())
		loader := seed.NewLoader(registry, zerolog.Nop())

		err := loader.Load(ctx, path)
		assert.ErrorIs(t, err, webhook.ErrInvalidURL)
	})

	t.Run("missing file", func(t *testing.T) {
		registry := webhook.NewRegistry(memory.NewStore(), zerolog.Nop())
		loader := seed.NewLoader(registry, zerolog.Nop())

		err := loader.Load(ctx, "does-not-exist.yaml")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "reading seed file")
	})

	t.Run("malformed YAML", func(t *testing.T) {
		path := writeSeedFile(t, "endpoints: [broken")

		registry := webhook.NewRegistry(memory.NewStore(), zerolog.Nop())
		loader := seed.NewLoader(registry, zerolog.Nop())

		err := loader.Load(ctx, path)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "parsing seed YAML")
	})
}
