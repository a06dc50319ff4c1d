package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const heartbeatTTL = 60 * time.Second

// WorkerHeartbeat represents the heartbeat data for a worker pool instance
type WorkerHeartbeat struct {
	WorkerID      string    `json:"worker_id"`
	Status        string    `json:"status"` // "idle", "processing"
	InFlight      int64     `json:"in_flight"`
	Queued        uint64    `json:"queued"`
	LastHeartbeat time.Time `json:"last_heartbeat"`
}

/* SetWorkerHeartbeat stores or updates a worker's heartbeat
 * The key expires after 60 seconds, a pool that stops reporting is considered gone
 */
func (r *Repository) SetWorkerHeartbeat(ctx context.Context, hb WorkerHeartbeat) error {
	key := fmt.Sprintf("worker:heartbeat:%s", hb.WorkerID)
	if hb.LastHeartbeat.IsZero() {
		hb.LastHeartbeat = time.Now()
	}

	data, err := json.Marshal(hb)
	if err != nil {
		return fmt.Errorf("marshaling heartbeat: %w", err)
	}

	if err := r.client.Set(ctx, key, data, heartbeatTTL).Err(); err != nil {
		return fmt.Errorf("setting heartbeat: %w", err)
	}

	return nil
}

// GetActiveWorkers retrieves every worker that reported within the TTL
func (r *Repository) GetActiveWorkers(ctx context.Context) ([]WorkerHeartbeat, error) {
	var workers []WorkerHeartbeat

	var cursor uint64
	for {
		keys, nextCursor, err := r.client.Scan(ctx, cursor, "worker:heartbeat:*", 100).Result()
		if err != nil {
			return nil, fmt.Errorf("scanning worker keys: %w", err)
		}

		for _, key := range keys {
			data, err := r.client.Get(ctx, key).Result()
			if err == redis.Nil {
				// Key expired between scan and get
				continue
			}
			if err != nil {
				return nil, fmt.Errorf("getting worker heartbeat: %w", err)
			}

			var heartbeat WorkerHeartbeat
			if err := json.Unmarshal([]byte(data), &heartbeat); err != nil {
				continue
			}

			workers = append(workers, heartbeat)
		}

		cursor = nextCursor
		if cursor == 0 {
			break
		}
	}

	return workers, nil
}
