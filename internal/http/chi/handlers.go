package chi

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/marcelsud/webhook-dispatcher/delivery"
	"github.com/marcelsud/webhook-dispatcher/deliverylog"
	"github.com/marcelsud/webhook-dispatcher/engine"
	"github.com/marcelsud/webhook-dispatcher/subscription"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

// writeError maps engine sentinels to status codes
func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, delivery.ErrNotFound), errors.Is(err, subscription.ErrNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, delivery.ErrInvalidEvent):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, engine.ErrNotRetryable):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, engine.ErrIntakeFull):
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
	default:
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

// parseFilter reads the delivery log filter from the query string
func parseFilter(r *http.Request) (deliverylog.Filter, error) {
	q := r.URL.Query()
	f := deliverylog.Filter{
		WebhookID: q.Get("webhook_id"),
		ChainID:   q.Get("chain_id"),
		EventType: q.Get("event_type"),
	}

	if s := q.Get("status"); s != "" {
		f.Status = delivery.NewStatus(s)
		if f.Status == 0 {
			return f, fmt.Errorf("invalid status: %s", s)
		}
	}

	var err error
	if f.From, err = parseTime(q.Get("from")); err != nil {
		return f, fmt.Errorf("invalid from: %w", err)
	}
	if f.To, err = parseTime(q.Get("to")); err != nil {
		return f, fmt.Errorf("invalid to: %w", err)
	}
	if f.Limit, err = parseInt(q.Get("limit")); err != nil {
		return f, fmt.Errorf("invalid limit: %w", err)
	}
	if f.Offset, err = parseInt(q.Get("offset")); err != nil {
		return f, fmt.Errorf("invalid offset: %w", err)
	}
	return f, nil
}

func parseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339, s)
}

func parseInt(s string) (int, error) {
	if s == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, err
	}
	if n < 0 {
		return 0, fmt.Errorf("must not be negative")
	}
	return n, nil
}
