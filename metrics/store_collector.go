package metrics

import (
	"context"
	"fmt"
	"time"

	"github.com/marcelsud/webhook-dispatcher/delivery"
	"github.com/marcelsud/webhook-dispatcher/delivery/redis"
	"github.com/marcelsud/webhook-dispatcher/deliverylog"
	"github.com/marcelsud/webhook-dispatcher/internal/clock"
)

// StatsReader is the slice of the delivery log the collector needs
type StatsReader interface {
	Stats(ctx context.Context, f deliverylog.Filter) (deliverylog.Stats, error)
}

// WorkerLister lists live worker heartbeats, satisfied by the redis queue
type WorkerLister interface {
	GetActiveWorkers(ctx context.Context) ([]redis.WorkerHeartbeat, error)
}

// StoreCollector implements Collector on top of the queue and log stores
type StoreCollector struct {
	queue   delivery.Reader
	logs    StatsReader
	workers WorkerLister
	clock   clock.Clock
}

/* NewStoreCollector creates a collector
 * workers may be nil when no heartbeat store is configured (memory queue)
 */
func NewStoreCollector(queue delivery.Reader, logs StatsReader, workers WorkerLister, c clock.Clock) *StoreCollector {
	if c == nil {
		c = clock.New()
	}
	return &StoreCollector{
		queue:   queue,
		logs:    logs,
		workers: workers,
		clock:   c,
	}
}

func (c *StoreCollector) Collect(ctx context.Context) (Metrics, error) {
	statusCounts, err := c.GetStatusCounts(ctx)
	if err != nil {
		return Metrics{}, fmt.Errorf("getting status counts: %w", err)
	}

	throughput, err := c.GetThroughput(ctx)
	if err != nil {
		return Metrics{}, fmt.Errorf("getting throughput: %w", err)
	}

	workers, err := c.GetActiveWorkers(ctx)
	if err != nil {
		return Metrics{}, fmt.Errorf("getting active workers: %w", err)
	}

	return Metrics{
		QueueLength:  statusCounts[delivery.Pending.String()],
		StatusCounts: statusCounts,
		Throughput:   throughput,
		Workers:      workers,
		Timestamp:    c.clock.Now(),
	}, nil
}

func (c *StoreCollector) GetQueueLength(ctx context.Context) (int64, error) {
	counts, err := c.queue.CountByStatus(ctx)
	if err != nil {
		return 0, fmt.Errorf("counting deliveries: %w", err)
	}
	return counts[delivery.Pending], nil
}

// GetStatusCounts returns queue counts for every chain status, zero-filled
func (c *StoreCollector) GetStatusCounts(ctx context.Context) (map[string]int64, error) {
	counts, err := c.queue.CountByStatus(ctx)
	if err != nil {
		return nil, fmt.Errorf("counting deliveries: %w", err)
	}

	statusCounts := map[string]int64{
		delivery.Pending.String():    0,
		delivery.Processing.String(): 0,
		delivery.Delivered.String():  0,
		delivery.Abandoned.String():  0,
	}
	for status, n := range counts {
		statusCounts[status.String()] += n
	}
	return statusCounts, nil
}

// GetThroughput counts delivered log records created within each window
func (c *StoreCollector) GetThroughput(ctx context.Context) (ThroughputMetrics, error) {
	now := c.clock.Now()

	var tp ThroughputMetrics
	windows := []struct {
		span time.Duration
		dst  *int64
	}{
		{time.Minute, &tp.LastMinute},
		{5 * time.Minute, &tp.LastFiveMinutes},
		{15 * time.Minute, &tp.LastFifteenMinutes},
	}

	for _, w := range windows {
		stats, err := c.logs.Stats(ctx, deliverylog.Filter{From: now.Add(-w.span)})
		if err != nil {
			return ThroughputMetrics{}, fmt.Errorf("getting log stats for %s: %w", w.span, err)
		}
		*w.dst = stats.Delivered
	}

	return tp, nil
}

func (c *StoreCollector) GetActiveWorkers(ctx context.Context) ([]WorkerInfo, error) {
	if c.workers == nil {
		return []WorkerInfo{}, nil
	}

	heartbeats, err := c.workers.GetActiveWorkers(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing worker heartbeats: %w", err)
	}

	workers := make([]WorkerInfo, 0, len(heartbeats))
	for _, hb := range heartbeats {
		workers = append(workers, WorkerInfo{
			WorkerID:      hb.WorkerID,
			Status:        hb.Status,
			InFlight:      hb.InFlight,
			Queued:        hb.Queued,
			LastHeartbeat: hb.LastHeartbeat,
		})
	}
	return workers, nil
}
