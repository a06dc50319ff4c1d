package chi

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/marcelsud/webhook-dispatcher/delivery"
	"github.com/marcelsud/webhook-dispatcher/engine"
	"github.com/marcelsud/webhook-dispatcher/payload"
)

/* HTTP layer DTOs for the ingest API
 * Separate from domain entities to avoid leaking internal structure
 */

type eventRequest struct {
	EventType  string        `json:"event_type"`
	OccurredAt *time.Time    `json:"occurred_at,omitempty"`
	Data       payload.Value `json:"data"`
}

func (er eventRequest) toEvent() delivery.Event {
	e := delivery.Event{Type: er.EventType, Data: er.Data}
	if er.OccurredAt != nil {
		e.OccurredAt = *er.OccurredAt
	}
	return e
}

type deliveryIDsResponse struct {
	DeliveryIDs []string `json:"delivery_ids"`
}

// postEvent handles POST /v1/events, with ?async=true the event goes through the intake channel
func postEvent(service engine.UseCase) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var er eventRequest
		if err := json.NewDecoder(r.Body).Decode(&er); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		if r.URL.Query().Get("async") == "true" {
			if err := service.PublishAsync(r.Context(), er.toEvent()); err != nil {
				writeError(w, err)
				return
			}
			w.WriteHeader(http.StatusAccepted)
			return
		}

		ids, err := service.Publish(r.Context(), er.toEvent())
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusAccepted, deliveryIDsResponse{DeliveryIDs: ids})
	})
}
