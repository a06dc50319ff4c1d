package chi

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/marcelsud/webhook-dispatcher/delivery"
	"github.com/marcelsud/webhook-dispatcher/deliverylog"
	"github.com/marcelsud/webhook-dispatcher/engine"
)

type logRecordResponse struct {
	WebhookID       string            `json:"webhook_id"`
	ChainID         string            `json:"chain_id"`
	AttemptNumber   int               `json:"attempt_number"`
	EventType       string            `json:"event_type"`
	Status          string            `json:"status"`
	RequestMethod   string            `json:"request_method,omitempty"`
	RequestURL      string            `json:"request_url,omitempty"`
	RequestHeaders  map[string]string `json:"request_headers,omitempty"`
	RequestBody     string            `json:"request_body,omitempty"`
	ResponseCode    int               `json:"response_code,omitempty"`
	ResponseHeaders map[string]string `json:"response_headers,omitempty"`
	ResponseBody    string            `json:"response_body,omitempty"`
	ResponseTimeMs  int64             `json:"response_time_ms"`
	Error           string            `json:"error,omitempty"`
	CreatedAt       time.Time         `json:"created_at"`
	UpdatedAt       time.Time         `json:"updated_at"`
}

type pageResponse struct {
	Records []logRecordResponse `json:"records"`
	Total   int64               `json:"total"`
	Limit   int                 `json:"limit"`
	Offset  int                 `json:"offset"`
}

type statsResponse struct {
	Total             int64   `json:"total"`
	Delivered         int64   `json:"delivered"`
	Failed            int64   `json:"failed"`
	Pending           int64   `json:"pending"`
	AvgResponseTimeMs float64 `json:"avg_response_time_ms"`
}

type attemptResponse struct {
	ID              string          `json:"id"`
	WebhookID       string          `json:"webhook_id"`
	EventType       string          `json:"event_type"`
	Payload         json.RawMessage `json:"payload"`
	AttemptNumber   int             `json:"attempt_number"`
	Status          string          `json:"status"`
	ScheduledAt     time.Time       `json:"scheduled_at"`
	ResponseCode    int             `json:"response_code,omitempty"`
	ResponseExcerpt string          `json:"response_excerpt,omitempty"`
	ResponseTimeMs  int64           `json:"response_time_ms"`
	Error           string          `json:"error,omitempty"`
	RetryOf         string          `json:"retry_of,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

type retryResponse struct {
	DeliveryID string `json:"delivery_id"`
}

func newLogRecordResponse(rec deliverylog.Record) logRecordResponse {
	return logRecordResponse{
		WebhookID:       rec.WebhookID,
		ChainID:         rec.ChainID,
		AttemptNumber:   rec.AttemptNumber,
		EventType:       rec.EventType,
		Status:          rec.Status.String(),
		RequestMethod:   rec.RequestMethod,
		RequestURL:      rec.RequestURL,
		RequestHeaders:  rec.RequestHeaders,
		RequestBody:     string(rec.RequestBody),
		ResponseCode:    rec.ResponseCode,
		ResponseHeaders: rec.ResponseHeaders,
		ResponseBody:    rec.ResponseBody,
		ResponseTimeMs:  rec.ResponseTimeMs,
		Error:           rec.Error,
		CreatedAt:       rec.CreatedAt,
		UpdatedAt:       rec.UpdatedAt,
	}
}

func newAttemptResponse(a delivery.Attempt) attemptResponse {
	body := json.RawMessage(a.Payload)
	if !json.Valid(body) {
		body = nil
	}
	return attemptResponse{
		ID:              a.ID,
		WebhookID:       a.WebhookID,
		EventType:       a.EventType,
		Payload:         body,
		AttemptNumber:   a.AttemptNumber,
		Status:          a.Status.String(),
		ScheduledAt:     a.ScheduledAt,
		ResponseCode:    a.ResponseCode,
		ResponseExcerpt: a.ResponseExcerpt,
		ResponseTimeMs:  a.ResponseTimeMs,
		Error:           a.Error,
		RetryOf:         a.RetryOf,
		CreatedAt:       a.CreatedAt,
		UpdatedAt:       a.UpdatedAt,
	}
}

// getDeliveries handles GET /v1/deliveries
func getDeliveries(service engine.UseCase) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f, err := parseFilter(r)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		page, err := service.Deliveries(r.Context(), f)
		if err != nil {
			writeError(w, err)
			return
		}

		result := pageResponse{
			Records: make([]logRecordResponse, 0, len(page.Records)),
			Total:   page.Total,
			Limit:   page.Limit,
			Offset:  page.Offset,
		}
		for _, rec := range page.Records {
			result.Records = append(result.Records, newLogRecordResponse(rec))
		}
		writeJSON(w, http.StatusOK, result)
	})
}

// getDeliveryStats handles GET /v1/deliveries/stats
func getDeliveryStats(service engine.UseCase) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f, err := parseFilter(r)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		stats, err := service.Stats(r.Context(), f)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, statsResponse{
			Total:             stats.Total,
			Delivered:         stats.Delivered,
			Failed:            stats.Failed,
			Pending:           stats.Pending,
			AvgResponseTimeMs: stats.AvgResponseTimeMs,
		})
	})
}

// getDelivery handles GET /v1/deliveries/{id}
func getDelivery(service engine.UseCase) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		a, err := service.Delivery(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, newAttemptResponse(a))
	})
}

// postRetry handles POST /v1/deliveries/{id}/retry
func postRetry(service engine.UseCase) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, err := service.Retry(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusAccepted, retryResponse{DeliveryID: id})
	})
}
