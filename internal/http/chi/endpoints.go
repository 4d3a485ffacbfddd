package chi

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/marcelsud/webhook-engine/webhook"
)

/*
* Representa o endpoint na camada web, por isso ele tem as tags json
 */
type endpointRequest struct {
	URL         string `json:"url"`
	Secret      string `json:"secret"`
	Enabled     *bool  `json:"enabled"`
	Description string `json:"description"`
}

/*
* Representa o endpoint na camada web
 */
type endpointResponse struct {
	ID          string    `json:"id"`
	URL         string    `json:"url"`
	Secret      string    `json:"secret,omitempty"`
	Enabled     bool      `json:"enabled"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func toEndpointResponse(e webhook.Endpoint) endpointResponse {
	return endpointResponse{
		ID:          e.ID,
		URL:         e.URL,
		Secret:      e.Secret,
		Enabled:     e.Enabled,
		Description: e.Description,
		CreatedAt:   e.CreatedAt,
		UpdatedAt:   e.UpdatedAt,
	}
}

// statusFor maps domain sentinel errors to HTTP status codes
func statusFor(err error) int {
	switch {
	case errors.Is(err, webhook.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, webhook.ErrDuplicateEndpoint):
		return http.StatusConflict
	case errors.Is(err, webhook.ErrInvalidState):
		return http.StatusConflict
	case errors.Is(err, webhook.ErrInvalidURL):
		return http.StatusBadRequest
	case errors.Is(err, webhook.ErrInvalidEventType):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func postEndpoint(registry webhook.RegistryUseCase) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var er endpointRequest
		if err := json.NewDecoder(r.Body).Decode(&er); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		enabled := true
		if er.Enabled != nil {
			enabled = *er.Enabled
		}
		endpoint, err := registry.Register(r.Context(), er.URL, er.Secret, enabled, er.Description)
		if err != nil {
			http.Error(w, err.Error(), statusFor(err))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		if err := json.NewEncoder(w).Encode(toEndpointResponse(endpoint)); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
	})
}

func getEndpoints(registry webhook.RegistryUseCase) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		all, err := registry.List(r.Context())
		if err != nil {
			http.Error(w, err.Error(), statusFor(err))
			return
		}
		result := make([]endpointResponse, 0, len(all))
		for _, e := range all {
			result = append(result, toEndpointResponse(e))
		}
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(result); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
	})
}

func getEndpoint(registry webhook.RegistryUseCase) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		endpoint, err := registry.Get(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			http.Error(w, err.Error(), statusFor(err))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(toEndpointResponse(endpoint)); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
	})
}

func putEndpoint(registry webhook.RegistryUseCase) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var er endpointRequest
		if err := json.NewDecoder(r.Body).Decode(&er); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		enabled := true
		if er.Enabled != nil {
			enabled = *er.Enabled
		}
		endpoint, err := registry.Update(r.Context(), chi.URLParam(r, "id"), er.URL, er.Secret, enabled, er.Description)
		if err != nil {
			http.Error(w, err.Error(), statusFor(err))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(toEndpointResponse(endpoint)); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
	})
}

func deleteEndpoint(registry webhook.RegistryUseCase) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := registry.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
			http.Error(w, err.Error(), statusFor(err))
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})
}

func setEndpointEnabled(registry webhook.RegistryUseCase, enabled bool) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		endpoint, err := registry.SetEnabled(r.Context(), chi.URLParam(r, "id"), enabled)
		if err != nil {
			http.Error(w, err.Error(), statusFor(err))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(toEndpointResponse(endpoint)); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
	})
}
