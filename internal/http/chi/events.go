package chi

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/marcelsud/webhook-engine/webhook"
)

const defaultListLimit = 100

// publishRequest represents an event handed to the fan-out publisher
type publishRequest struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

/*
* Representa o evento de entrega na camada web
 */
type eventResponse struct {
	ID           string     `json:"id"`
	EndpointID   string     `json:"endpoint_id"`
	EventType    string     `json:"event_type"`
	Status       string     `json:"status"`
	RetryCount   int        `json:"retry_count"`
	MaxRetries   int        `json:"max_retries"`
	LastAttempt  *time.Time `json:"last_attempt,omitempty"`
	NextRetryAt  *time.Time `json:"next_retry_at,omitempty"`
	ResponseCode int        `json:"response_code,omitempty"`
	ResponseBody string     `json:"response_body,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

type statsResponse struct {
	TotalEndpoints   int64            `json:"total_endpoints"`
	EnabledEndpoints int64            `json:"enabled_endpoints"`
	TotalEvents      int64            `json:"total_events"`
	StatusCounts     map[string]int64 `json:"status_counts"`
	SuccessRate      float64          `json:"success_rate"`
}

func toEventResponse(ev webhook.Event) eventResponse {
	resp := eventResponse{
		ID:           ev.ID,
		EndpointID:   ev.EndpointID,
		EventType:    ev.EventType,
		Status:       ev.Status.String(),
		RetryCount:   ev.RetryCount,
		MaxRetries:   ev.MaxRetries,
		ResponseCode: ev.ResponseCode,
		ResponseBody: ev.ResponseBody,
		CreatedAt:    ev.CreatedAt,
		UpdatedAt:    ev.UpdatedAt,
	}
	if !ev.LastAttempt.IsZero() {
		t := ev.LastAttempt
		resp.LastAttempt = &t
	}
	if !ev.NextRetryAt.IsZero() {
		t := ev.NextRetryAt
		resp.NextRetryAt = &t
	}
	return resp
}

func listLimit(r *http.Request) int {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return defaultListLimit
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit <= 0 {
		return defaultListLimit
	}
	return limit
}

// postEvent handles POST /v1/events and triggers fan-out
func postEvent(publisher Publisher) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var pr publishRequest
		if err := json.NewDecoder(r.Body).Decode(&pr); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if err := publisher.Publish(r.Context(), pr.Type, pr.Data); err != nil {
			http.Error(w, err.Error(), statusFor(err))
			return
		}
		// Delivery is asynchronous; fan-out acceptance is all we can promise here
		w.WriteHeader(http.StatusAccepted)
	})
}

// getEvents lists events, newest first. A status filter is optional;
// without one the most recently created events are returned, any status
func getEvents(events webhook.UseCase) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var all []webhook.Event
		var err error

		rawStatus := r.URL.Query().Get("status")
		if rawStatus == "" {
			all, err = events.ListRecent(r.Context(), listLimit(r))
		} else {
			status := webhook.NewStatus(rawStatus)
			if status.String() != rawStatus {
				http.Error(w, "unknown status: "+rawStatus, http.StatusBadRequest)
				return
			}
			all, err = events.ListByStatus(r.Context(), status, listLimit(r))
		}
		if err != nil {
			http.Error(w, err.Error(), statusFor(err))
			return
		}
		result := make([]eventResponse, 0, len(all))
		for _, ev := range all {
			result = append(result, toEventResponse(ev))
		}
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(result); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
	})
}

func getEndpointEvents(events webhook.UseCase) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		all, err := events.ListByEndpoint(r.Context(), chi.URLParam(r, "id"), listLimit(r))
		if err != nil {
			http.Error(w, err.Error(), statusFor(err))
			return
		}
		result := make([]eventResponse, 0, len(all))
		for _, ev := range all {
			result = append(result, toEventResponse(ev))
		}
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(result); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
	})
}

func getEvent(events webhook.UseCase) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ev, err := events.Get(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			http.Error(w, err.Error(), statusFor(err))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(toEventResponse(ev)); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
	})
}

func retryEvent(events webhook.UseCase) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ev, err := events.Retry(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			http.Error(w, err.Error(), statusFor(err))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(toEventResponse(ev)); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
	})
}

func cancelEvent(events webhook.UseCase) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ev, err := events.Cancel(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			http.Error(w, err.Error(), statusFor(err))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(toEventResponse(ev)); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
	})
}

func getStats(events webhook.UseCase) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		stats, err := events.Stats(r.Context())
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		resp := statsResponse{
			TotalEndpoints:   stats.TotalEndpoints,
			EnabledEndpoints: stats.EnabledEndpoints,
			TotalEvents:      stats.TotalEvents,
			StatusCounts:     make(map[string]int64, len(stats.StatusCounts)),
			SuccessRate:      stats.SuccessRate,
		}
		for status, n := range stats.StatusCounts {
			resp.StatusCounts[status.String()] = n
		}
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(resp); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
	})
}
