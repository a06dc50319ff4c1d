package metrics

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/marcelsud/webhook-dispatcher/delivery"
	"github.com/marcelsud/webhook-dispatcher/worker"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

const meterName = "webhook-dispatcher"

// PoolSource exposes local worker pool counters
type PoolSource interface {
	Stats() worker.PoolStats
}

// PoolStatsFunc adapts a function to PoolSource
type PoolStatsFunc func() worker.PoolStats

func (f PoolStatsFunc) Stats() worker.PoolStats {
	return f()
}

/* OTelExporter publishes engine metrics through OpenTelemetry
 * Gauges are pulled from the Collector on scrape, attempt counters and the
 * latency histogram are pushed by the worker through ObserveAttempt
 */
type OTelExporter struct {
	meterProvider *sdkmetric.MeterProvider
	collector     Collector
	pool          PoolSource

	meter              metric.Meter
	queueLengthGauge   metric.Int64ObservableGauge
	statusCountGauge   metric.Int64ObservableGauge
	throughputGauge    metric.Int64ObservableGauge
	activeWorkersGauge metric.Int64ObservableGauge
	poolGauge          metric.Int64ObservableGauge
	attempts           metric.Int64Counter
	latency            metric.Float64Histogram
}

// NewOTelExporter creates an exporter in Prometheus format and installs it as the global meter provider
func NewOTelExporter(collector Collector, pool PoolSource) (*OTelExporter, error) {
	exporter, err := prometheus.New()
	if err != nil {
		return nil, fmt.Errorf("creating prometheus exporter: %w", err)
	}

	oe, err := newOTelExporter(collector, pool, exporter)
	if err != nil {
		return nil, err
	}
	otel.SetMeterProvider(oe.meterProvider)

	return oe, nil
}

func newOTelExporter(collector Collector, pool PoolSource, reader sdkmetric.Reader) (*OTelExporter, error) {
	meterProvider := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(reader),
	)

	oe := &OTelExporter{
		meterProvider: meterProvider,
		collector:     collector,
		pool:          pool,
		meter: meterProvider.Meter(
			meterName,
			metric.WithInstrumentationVersion("1.0.0"),
		),
	}

	if err := oe.registerInstruments(); err != nil {
		return nil, fmt.Errorf("registering instruments: %w", err)
	}

	return oe, nil
}

func (oe *OTelExporter) registerInstruments() error {
	var err error

	oe.queueLengthGauge, err = oe.meter.Int64ObservableGauge(
		"webhook.queue.length",
		metric.WithDescription("Number of pending delivery attempts"),
		metric.WithUnit("{attempts}"),
		metric.WithInt64Callback(oe.observeQueueLength),
	)
	if err != nil {
		return fmt.Errorf("creating queue length gauge: %w", err)
	}

	oe.statusCountGauge, err = oe.meter.Int64ObservableGauge(
		"webhook.status.count",
		metric.WithDescription("Number of delivery chains by status"),
		metric.WithUnit("{attempts}"),
		metric.WithInt64Callback(oe.observeStatusCounts),
	)
	if err != nil {
		return fmt.Errorf("creating status count gauge: %w", err)
	}

	oe.throughputGauge, err = oe.meter.Int64ObservableGauge(
		"webhook.throughput",
		metric.WithDescription("Number of deliveries over a trailing window"),
		metric.WithUnit("{attempts}"),
		metric.WithInt64Callback(oe.observeThroughput),
	)
	if err != nil {
		return fmt.Errorf("creating throughput gauge: %w", err)
	}

	oe.activeWorkersGauge, err = oe.meter.Int64ObservableGauge(
		"webhook.workers.active",
		metric.WithDescription("Number of worker pools with a live heartbeat"),
		metric.WithUnit("{workers}"),
		metric.WithInt64Callback(oe.observeActiveWorkers),
	)
	if err != nil {
		return fmt.Errorf("creating active workers gauge: %w", err)
	}

	if oe.pool != nil {
		oe.poolGauge, err = oe.meter.Int64ObservableGauge(
			"webhook.pool.tasks",
			metric.WithDescription("Local worker pool tasks by state"),
			metric.WithUnit("{tasks}"),
			metric.WithInt64Callback(oe.observePool),
		)
		if err != nil {
			return fmt.Errorf("creating pool gauge: %w", err)
		}
	}

	oe.attempts, err = oe.meter.Int64Counter(
		"webhook.delivery.attempts",
		metric.WithDescription("Finished delivery attempts by outcome"),
		metric.WithUnit("{attempts}"),
	)
	if err != nil {
		return fmt.Errorf("creating attempts counter: %w", err)
	}

	oe.latency, err = oe.meter.Float64Histogram(
		"webhook.delivery.duration",
		metric.WithDescription("Subscriber response time"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return fmt.Errorf("creating latency histogram: %w", err)
	}

	return nil
}

func (oe *OTelExporter) observeQueueLength(ctx context.Context, observer metric.Int64Observer) error {
	length, err := oe.collector.GetQueueLength(ctx)
	if err != nil {
		return err
	}
	observer.Observe(length)
	return nil
}

func (oe *OTelExporter) observeStatusCounts(ctx context.Context, observer metric.Int64Observer) error {
	statusCounts, err := oe.collector.GetStatusCounts(ctx)
	if err != nil {
		return err
	}

	for status, count := range statusCounts {
		observer.Observe(count, metric.WithAttributes(
			attribute.String("delivery.status", status),
		))
	}
	return nil
}

func (oe *OTelExporter) observeThroughput(ctx context.Context, observer metric.Int64Observer) error {
	throughput, err := oe.collector.GetThroughput(ctx)
	if err != nil {
		return err
	}

	observer.Observe(throughput.LastMinute, metric.WithAttributes(
		attribute.String("time.window", "1m"),
	))
	observer.Observe(throughput.LastFiveMinutes, metric.WithAttributes(
		attribute.String("time.window", "5m"),
	))
	observer.Observe(throughput.LastFifteenMinutes, metric.WithAttributes(
		attribute.String("time.window", "15m"),
	))
	return nil
}

func (oe *OTelExporter) observeActiveWorkers(ctx context.Context, observer metric.Int64Observer) error {
	workers, err := oe.collector.GetActiveWorkers(ctx)
	if err != nil {
		return err
	}
	observer.Observe(int64(len(workers)))
	return nil
}

func (oe *OTelExporter) observePool(_ context.Context, observer metric.Int64Observer) error {
	stats := oe.pool.Stats()
	observer.Observe(stats.InFlight, metric.WithAttributes(attribute.String("task.state", "in_flight")))
	observer.Observe(int64(stats.Waiting), metric.WithAttributes(attribute.String("task.state", "waiting")))
	observer.Observe(int64(stats.Completed), metric.WithAttributes(attribute.String("task.state", "completed")))
	observer.Observe(int64(stats.Failed), metric.WithAttributes(attribute.String("task.state", "failed")))
	return nil
}

// ObserveAttempt records one finished attempt, satisfying worker.Observer
func (oe *OTelExporter) ObserveAttempt(ctx context.Context, webhookID string, outcome delivery.Outcome, status delivery.Status, duration time.Duration) {
	attrs := metric.WithAttributes(
		attribute.String("webhook.id", webhookID),
		attribute.String("delivery.outcome", outcome.String()),
		attribute.String("delivery.status", status.String()),
	)
	oe.attempts.Add(ctx, 1, attrs)
	oe.latency.Record(ctx, float64(duration)/float64(time.Millisecond), attrs)
}

// ServeHTTP returns the Prometheus scrape handler
func (oe *OTelExporter) ServeHTTP() http.Handler {
	return promhttp.Handler()
}

// Shutdown gracefully shuts down the meter provider
func (oe *OTelExporter) Shutdown(ctx context.Context) error {
	if oe.meterProvider != nil {
		return oe.meterProvider.Shutdown(ctx)
	}
	return nil
}
