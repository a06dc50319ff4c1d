package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/marcelsud/webhook-dispatcher/delivery"
	"github.com/redis/go-redis/v9"
)

/* Redis implementation of delivery.Repository
 * Uses Redis Hashes for attempt rows and Sorted Sets as indexes:
 * pending scored by scheduled_at, processing scored by claimed_at
 * State transitions run as Lua scripts so each one is a single atomic CAS
 */

/* Every key carries the {deliveries} hash tag so each script only touches
 * keys in one Cluster slot
 */
const (
	hashPrefix    = "{deliveries}:delivery"   // Hash naming: {deliveries}:delivery:{id}
	pendingKey    = "{deliveries}:pending"    // ZSET id -> scheduled_at (unix ms)
	processingKey = "{deliveries}:processing" // ZSET id -> claimed_at (unix ms)
	countsKey     = "{deliveries}:counts"     // HASH terminal status -> count
)

// claimScript returns 1 on success, 0 when not claimable, -1 when missing
var claimScript = redis.NewScript(`
local status = redis.call('HGET', KEYS[1], 'status')
if not status then return -1 end
if status ~= 'pending' then return 0 end
local scheduled = tonumber(redis.call('HGET', KEYS[1], 'scheduled_at'))
if scheduled > tonumber(ARGV[2]) then return 0 end
redis.call('HSET', KEYS[1], 'status', 'processing', 'claimed_at', ARGV[2], 'updated_at', ARGV[2])
redis.call('ZREM', KEYS[2], ARGV[1])
redis.call('ZADD', KEYS[3], ARGV[2], ARGV[1])
return 1
`)

// resolveScript returns 1 on success, 0 when not processing, -1 when missing, -2 when the attempt number regresses
var resolveScript = redis.NewScript(`
local status = redis.call('HGET', KEYS[1], 'status')
if not status then return -1 end
if status ~= 'processing' then return 0 end
if tonumber(ARGV[3]) < tonumber(redis.call('HGET', KEYS[1], 'attempt_number')) then return -2 end
redis.call('HSET', KEYS[1],
	'status', ARGV[2], 'attempt_number', ARGV[3], 'scheduled_at', ARGV[4],
	'response_code', ARGV[5], 'response_excerpt', ARGV[6], 'response_time_ms', ARGV[7],
	'error', ARGV[8], 'updated_at', ARGV[9], 'claimed_at', 0)
redis.call('ZREM', KEYS[3], ARGV[1])
if ARGV[2] == 'pending' then
	redis.call('ZADD', KEYS[2], ARGV[4], ARGV[1])
else
	redis.call('HINCRBY', KEYS[4], ARGV[2], 1)
end
return 1
`)

/* resetScript returns one stale processing id to pending as its next attempt
 * Returns 1 when moved, 0 when the id was resolved or claimed again since the scan
 */
var resetScript = redis.NewScript(`
local status = redis.call('HGET', KEYS[1], 'status')
local claimed = tonumber(redis.call('HGET', KEYS[1], 'claimed_at') or '0')
if status ~= 'processing' then
	redis.call('ZREM', KEYS[2], ARGV[1])
	return 0
end
if claimed >= tonumber(ARGV[2]) then return 0 end
redis.call('HINCRBY', KEYS[1], 'attempt_number', 1)
redis.call('HSET', KEYS[1], 'status', 'pending', 'scheduled_at', ARGV[3], 'claimed_at', 0, 'updated_at', ARGV[3], 'error', ARGV[4])
redis.call('ZREM', KEYS[2], ARGV[1])
redis.call('ZADD', KEYS[3], ARGV[3], ARGV[1])
return 1
`)

type Repository struct {
	client *redis.Client
}

// NewRepository creates a new Redis repository
func NewRepository(addr, password string, db int) (*Repository, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connecting to Redis: %w", err)
	}

	return &Repository{
		client: client,
	}, nil
}

// Create stores a new pending attempt and indexes it
func (r *Repository) Create(ctx context.Context, a delivery.Attempt) error {
	hashKey := attemptKey(a.ID)

	created, err := r.client.HSetNX(ctx, hashKey, "id", a.ID).Result()
	if err != nil {
		return fmt.Errorf("storing delivery: %w", err)
	}
	if !created {
		return fmt.Errorf("creating %s: %w", a.ID, delivery.ErrAlreadyExists)
	}

	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, hashKey, map[string]interface{}{
			"webhook_id":       a.WebhookID,
			"event_type":       a.EventType,
			"payload":          a.Payload,
			"attempt_number":   a.AttemptNumber,
			"status":           a.Status.String(),
			"scheduled_at":     toMillis(a.ScheduledAt),
			"claimed_at":       toMillis(a.ClaimedAt),
			"response_code":    a.ResponseCode,
			"response_excerpt": a.ResponseExcerpt,
			"response_time_ms": a.ResponseTimeMs,
			"error":            a.Error,
			"retry_of":         a.RetryOf,
			"created_at":       toMillis(a.CreatedAt),
			"updated_at":       toMillis(a.UpdatedAt),
		})
		if a.Status == delivery.Pending {
			pipe.ZAdd(ctx, pendingKey, redis.Z{Score: float64(toMillis(a.ScheduledAt)), Member: a.ID})
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("storing delivery metadata: %w", err)
	}

	return nil
}

// Get retrieves an attempt by ID
func (r *Repository) Get(ctx context.Context, id string) (delivery.Attempt, error) {
	data, err := r.client.HGetAll(ctx, attemptKey(id)).Result()
	if err != nil {
		return delivery.Attempt{}, fmt.Errorf("getting delivery: %w", err)
	}
	if len(data) == 0 {
		return delivery.Attempt{}, delivery.ErrNotFound
	}
	return fromHash(data), nil
}

// Due lists pending attempts whose scheduled_at has passed
func (r *Repository) Due(ctx context.Context, now time.Time, limit int) ([]delivery.Attempt, error) {
	ids, err := r.client.ZRangeByScore(ctx, pendingKey, &redis.ZRangeBy{
		Min:   "-inf",
		Max:   strconv.FormatInt(toMillis(now), 10),
		Count: int64(limit),
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("listing due deliveries: %w", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	cmds := make([]*redis.MapStringStringCmd, len(ids))
	_, err = r.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for i, id := range ids {
			cmds[i] = pipe.HGetAll(ctx, attemptKey(id))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("loading due deliveries: %w", err)
	}

	attempts := make([]delivery.Attempt, 0, len(ids))
	for _, cmd := range cmds {
		data := cmd.Val()
		if len(data) == 0 {
			continue
		}
		attempts = append(attempts, fromHash(data))
	}
	return attempts, nil
}

// CountByStatus reads index sizes and terminal counters
func (r *Repository) CountByStatus(ctx context.Context) (map[delivery.Status]int64, error) {
	pipe := r.client.Pipeline()
	pendingCmd := pipe.ZCard(ctx, pendingKey)
	processingCmd := pipe.ZCard(ctx, processingKey)
	countsCmd := pipe.HGetAll(ctx, countsKey)

	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("counting deliveries: %w", err)
	}

	counts := map[delivery.Status]int64{
		delivery.Pending:    pendingCmd.Val(),
		delivery.Processing: processingCmd.Val(),
	}
	for status, n := range countsCmd.Val() {
		counts[delivery.NewStatus(status)] = parseInt64(n)
	}
	return counts, nil
}

// Claim atomically moves a due pending attempt to processing
func (r *Repository) Claim(ctx context.Context, id string, now time.Time) (delivery.Attempt, error) {
	res, err := claimScript.Run(ctx, r.client,
		[]string{attemptKey(id), pendingKey, processingKey},
		id, toMillis(now),
	).Int()
	if err != nil {
		return delivery.Attempt{}, fmt.Errorf("claiming delivery: %w", err)
	}

	switch res {
	case -1:
		return delivery.Attempt{}, delivery.ErrNotFound
	case 0:
		return delivery.Attempt{}, delivery.ErrNotClaimable
	}

	return r.Get(ctx, id)
}

// Resolve stores the outcome of a processing attempt
func (r *Repository) Resolve(ctx context.Context, a delivery.Attempt) error {
	if !delivery.CanResolveTo(a.Status) {
		return fmt.Errorf("resolving to %s: %w", a.Status, delivery.ErrInvalidTransition)
	}

	res, err := resolveScript.Run(ctx, r.client,
		[]string{attemptKey(a.ID), pendingKey, processingKey, countsKey},
		a.ID, a.Status.String(), a.AttemptNumber, toMillis(a.ScheduledAt),
		a.ResponseCode, a.ResponseExcerpt, a.ResponseTimeMs, a.Error, toMillis(a.UpdatedAt),
	).Int()
	if err != nil {
		return fmt.Errorf("resolving delivery: %w", err)
	}

	switch res {
	case -1:
		return delivery.ErrNotFound
	case 0:
		return fmt.Errorf("resolving non-processing delivery: %w", delivery.ErrInvalidTransition)
	case -2:
		return fmt.Errorf("attempt number went backwards: %w", delivery.ErrInvalidTransition)
	}
	return nil
}

// ResetStale returns crashed processing attempts to pending
// ResetStale scans the processing index and resets each stale id on its own
func (r *Repository) ResetStale(ctx context.Context, claimedBefore time.Time, now time.Time) (int, error) {
	cutoff := toMillis(claimedBefore)
	ids, err := r.client.ZRangeByScore(ctx, processingKey, &redis.ZRangeBy{
		Min: "-inf",
		Max: "(" + strconv.FormatInt(cutoff, 10),
	}).Result()
	if err != nil {
		return 0, fmt.Errorf("listing stale deliveries: %w", err)
	}

	moved := 0
	for _, id := range ids {
		n, err := resetScript.Run(ctx, r.client,
			[]string{attemptKey(id), processingKey, pendingKey},
			id, cutoff, toMillis(now), delivery.ReasonWorkerLost,
		).Int()
		if err != nil {
			return moved, fmt.Errorf("resetting stale delivery %s: %w", id, err)
		}
		moved += n
	}
	return moved, nil
}

// Close closes the Redis connection
func (r *Repository) Close(ctx context.Context) error {
	return r.client.Close()
}

// Helper functions

func attemptKey(id string) string {
	return fmt.Sprintf("%s:%s", hashPrefix, id)
}

func fromHash(data map[string]string) delivery.Attempt {
	return delivery.Attempt{
		ID:              data["id"],
		WebhookID:       data["webhook_id"],
		EventType:       data["event_type"],
		Payload:         []byte(data["payload"]),
		AttemptNumber:   int(parseInt64(data["attempt_number"])),
		Status:          delivery.NewStatus(data["status"]),
		ScheduledAt:     fromMillis(parseInt64(data["scheduled_at"])),
		ClaimedAt:       fromMillis(parseInt64(data["claimed_at"])),
		ResponseCode:    int(parseInt64(data["response_code"])),
		ResponseExcerpt: data["response_excerpt"],
		ResponseTimeMs:  parseInt64(data["response_time_ms"]),
		Error:           data["error"],
		RetryOf:         data["retry_of"],
		CreatedAt:       fromMillis(parseInt64(data["created_at"])),
		UpdatedAt:       fromMillis(parseInt64(data["updated_at"])),
	}
}

func toMillis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}

func parseInt64(s string) int64 {
	n, _ := strconv.ParseInt(s, 10, 64)
	return n
}
