package chi

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/marcelsud/webhook-dispatcher/engine"
	"github.com/marcelsud/webhook-dispatcher/subscription"
)

// subscriptionResponse never carries the secret or custom header values
type subscriptionResponse struct {
	ID                   string          `json:"id"`
	Name                 string          `json:"name"`
	URL                  string          `json:"url"`
	Events               []string        `json:"events"`
	Status               string          `json:"status"`
	Method               string          `json:"method"`
	Format               string          `json:"format"`
	TimeoutSeconds       int             `json:"timeout_seconds"`
	RetryCount           int             `json:"retry_count"`
	RetryDelaySeconds    int             `json:"retry_delay_seconds"`
	VerifyTLS            bool            `json:"verify_tls"`
	CustomHeaders        []string        `json:"custom_headers,omitempty"`
	Window               *windowResponse `json:"active_window,omitempty"`
	BatchSize            int             `json:"batch_size"`
	BatchIntervalSeconds int             `json:"batch_interval_seconds"`
	Stats                statsCounters   `json:"stats"`
}

type windowResponse struct {
	Days     []string `json:"days"`
	Start    string   `json:"start"`
	End      string   `json:"end"`
	TimeZone string   `json:"timezone,omitempty"`
}

type statsCounters struct {
	SuccessCount        int64      `json:"success_count"`
	FailureCount        int64      `json:"failure_count"`
	ConsecutiveFailures int64      `json:"consecutive_failures"`
	LastTriggeredAt     *time.Time `json:"last_triggered_at,omitempty"`
	LastResponseCode    int        `json:"last_response_code,omitempty"`
}

type testSendResponse struct {
	Outcome           string            `json:"outcome"`
	StatusCode        int               `json:"status_code,omitempty"`
	Headers           map[string]string `json:"headers,omitempty"`
	Body              string            `json:"body,omitempty"`
	ResponseTimeMs    int64             `json:"response_time_ms"`
	RetryAfterSeconds float64           `json:"retry_after_seconds,omitempty"`
	Error             string            `json:"error,omitempty"`
}

func newSubscriptionResponse(sub subscription.Subscription) subscriptionResponse {
	resp := subscriptionResponse{
		ID:                   sub.ID,
		Name:                 sub.Name,
		URL:                  sub.URL,
		Events:               sub.Events,
		Status:               sub.Status.String(),
		Method:               string(sub.Method),
		Format:               sub.Format.String(),
		TimeoutSeconds:       sub.TimeoutSeconds,
		RetryCount:           sub.RetryCount,
		RetryDelaySeconds:    sub.RetryDelaySeconds,
		VerifyTLS:            sub.VerifyTLS,
		BatchSize:            sub.BatchSize,
		BatchIntervalSeconds: sub.BatchIntervalSeconds,
		Stats: statsCounters{
			SuccessCount:        sub.Stats.SuccessCount,
			FailureCount:        sub.Stats.FailureCount,
			ConsecutiveFailures: sub.Stats.ConsecutiveFailures,
			LastResponseCode:    sub.Stats.LastResponseCode,
		},
	}
	if !sub.Stats.LastTriggeredAt.IsZero() {
		at := sub.Stats.LastTriggeredAt
		resp.Stats.LastTriggeredAt = &at
	}
	for _, h := range sub.CustomHeaders {
		resp.CustomHeaders = append(resp.CustomHeaders, h.Name)
	}
	if sub.Window != nil {
		wr := &windowResponse{Start: sub.Window.Start, End: sub.Window.End, TimeZone: sub.Window.TimeZone}
		for _, d := range sub.Window.Days {
			wr.Days = append(wr.Days, d.String())
		}
		resp.Window = wr
	}
	return resp
}

// getSubscriptions handles GET /v1/subscriptions
func getSubscriptions(service engine.UseCase) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		subs, err := service.Subscriptions(r.Context())
		if err != nil {
			writeError(w, err)
			return
		}

		result := make([]subscriptionResponse, 0, len(subs))
		for _, sub := range subs {
			result = append(result, newSubscriptionResponse(sub))
		}
		writeJSON(w, http.StatusOK, result)
	})
}

// postTestSend handles POST /v1/subscriptions/{id}/test
func postTestSend(service engine.UseCase) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var er eventRequest
		if err := json.NewDecoder(r.Body).Decode(&er); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		resp, err := service.TestSend(r.Context(), chi.URLParam(r, "id"), er.toEvent())
		if err != nil {
			writeError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, testSendResponse{
			Outcome:           resp.Outcome.String(),
			StatusCode:        resp.StatusCode,
			Headers:           resp.Header,
			Body:              resp.Body,
			ResponseTimeMs:    resp.ResponseTimeMs(),
			RetryAfterSeconds: resp.RetryAfter.Seconds(),
			Error:             resp.Err,
		})
	})
}
