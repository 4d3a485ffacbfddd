package chi

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httplog"

	"github.com/marcelsud/webhook-engine/webhook"
)

// Publisher is the slice of the publisher the HTTP layer needs
type Publisher interface {
	Publish(ctx context.Context, eventType string, data []byte) error
}

// Handlers sets up the operator API routes
func Handlers(ctx context.Context, registry webhook.RegistryUseCase, events webhook.UseCase, publisher Publisher, metricsHandler http.Handler) *chi.Mux {
	logger := httplog.NewLogger("webhook-engine", httplog.Options{
		JSON: true,
	})

	r := chi.NewRouter()
	r.Use(httplog.RequestLogger(logger))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"healthy"}`))
	})

	if metricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", metricsHandler)
	}

	r.Route("/v1", func(r chi.Router) {
		// Endpoint registry
		r.Method(http.MethodPost, "/endpoints", postEndpoint(registry))
		r.Method(http.MethodGet, "/endpoints", getEndpoints(registry))
		r.Method(http.MethodGet, "/endpoints/{id}", getEndpoint(registry))
		r.Method(http.MethodPut, "/endpoints/{id}", putEndpoint(registry))
		r.Method(http.MethodDelete, "/endpoints/{id}", deleteEndpoint(registry))
		r.Method(http.MethodPost, "/endpoints/{id}/enable", setEndpointEnabled(registry, true))
		r.Method(http.MethodPost, "/endpoints/{id}/disable", setEndpointEnabled(registry, false))
		r.Method(http.MethodGet, "/endpoints/{id}/events", getEndpointEvents(events))

		// Event publication and delivery bookkeeping
		r.Method(http.MethodPost, "/events", postEvent(publisher))
		r.Method(http.MethodGet, "/events", getEvents(events))
		r.Method(http.MethodGet, "/events/{id}", getEvent(events))
		r.Method(http.MethodPost, "/events/{id}/retry", retryEvent(events))
		r.Method(http.MethodPost, "/events/{id}/cancel", cancelEvent(events))

		r.Method(http.MethodGet, "/stats", getStats(events))
	})

	return r
}
