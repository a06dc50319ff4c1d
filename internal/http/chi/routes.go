package chi

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httplog"
	"github.com/marcelsud/webhook-dispatcher/engine"
)

// Handlers sets up the ingest and admin API, metricsHandler is mounted on /metrics when not nil
func Handlers(ctx context.Context, service engine.UseCase, metricsHandler http.Handler) *chi.Mux {
	logger := httplog.NewLogger("webhook-dispatcher", httplog.Options{
		JSON: true,
	})

	r := chi.NewRouter()
	r.Use(httplog.RequestLogger(logger))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"healthy"}`))
	})
	if metricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", metricsHandler)
	}

	r.Route("/v1", func(r chi.Router) {
		r.Method(http.MethodPost, "/events", postEvent(service))

		r.Method(http.MethodGet, "/deliveries", getDeliveries(service))
		r.Method(http.MethodGet, "/deliveries/stats", getDeliveryStats(service))
		r.Method(http.MethodGet, "/deliveries/{id}", getDelivery(service))
		r.Method(http.MethodPost, "/deliveries/{id}/retry", postRetry(service))

		r.Method(http.MethodGet, "/subscriptions", getSubscriptions(service))
		r.Method(http.MethodPost, "/subscriptions/{id}/test", postTestSend(service))
	})

	return r
}
