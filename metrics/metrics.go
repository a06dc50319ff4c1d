package metrics

import (
	"context"
	"time"
)

// Metrics is a point-in-time snapshot of the delivery engine
type Metrics struct {
	// QueueLength is the number of pending attempts in the retry queue
	QueueLength int64 `json:"queue_length"`

	// StatusCounts maps status name to the number of attempts in the queue
	StatusCounts map[string]int64 `json:"status_counts"`

	Throughput ThroughputMetrics `json:"throughput"`

	// Workers lists the pools that reported a heartbeat recently
	Workers []WorkerInfo `json:"workers"`

	Timestamp time.Time `json:"timestamp"`
}

// ThroughputMetrics counts delivered attempts over trailing windows
type ThroughputMetrics struct {
	LastMinute         int64 `json:"last_minute"`
	LastFiveMinutes    int64 `json:"last_five_minutes"`
	LastFifteenMinutes int64 `json:"last_fifteen_minutes"`
}

// WorkerInfo describes one worker pool instance
type WorkerInfo struct {
	WorkerID      string    `json:"worker_id"`
	Status        string    `json:"status"`
	InFlight      int64     `json:"in_flight"`
	Queued        uint64    `json:"queued"`
	LastHeartbeat time.Time `json:"last_heartbeat"`
}

// Collector gathers metrics from the queue, the delivery log and the worker heartbeats
type Collector interface {
	Collect(ctx context.Context) (Metrics, error)
	GetQueueLength(ctx context.Context) (int64, error)
	GetStatusCounts(ctx context.Context) (map[string]int64, error)
	GetThroughput(ctx context.Context) (ThroughputMetrics, error)
	GetActiveWorkers(ctx context.Context) ([]WorkerInfo, error)
}
