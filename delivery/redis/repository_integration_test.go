//go:build integration

package redis_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/marcelsud/webhook-dispatcher/delivery"
	"github.com/marcelsud/webhook-dispatcher/delivery/redis"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var now = time.Now().UTC().Truncate(time.Millisecond)

func pending(id string, scheduled time.Time) delivery.Attempt {
	return delivery.Attempt{
		ID:            id,
		WebhookID:     "crm",
		EventType:     "booking.created",
		Payload:       []byte(`{"event_type":"booking.created","data":{"id":7}}`),
		AttemptNumber: 1,
		Status:        delivery.Pending,
		ScheduledAt:   scheduled,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

func TestRepository_Integration(t *testing.T) {
	ctx := context.Background()
	redisContainer, cleanup := SetupRedisContainer(t, ctx)
	defer cleanup()

	repo := CreateTestRepository(t, redisContainer.Addr)
	defer repo.Close(ctx)

	t.Run("store and retrieve attempt", func(t *testing.T) {
		a := pending("store-1", now)
		require.NoError(t, repo.Create(ctx, a))

		got, err := repo.Get(ctx, a.ID)
		require.NoError(t, err)
		assert.Equal(t, a.WebhookID, got.WebhookID)
		assert.Equal(t, string(a.Payload), string(got.Payload))
		assert.Equal(t, delivery.Pending, got.Status)
		assert.True(t, a.ScheduledAt.Equal(got.ScheduledAt))

		assert.Error(t, repo.Create(ctx, a), "duplicate ids are rejected")
	})

	t.Run("missing attempt", func(t *testing.T) {
		_, err := repo.Get(ctx, "missing")
		assert.ErrorIs(t, err, delivery.ErrNotFound)
		_, err = repo.Claim(ctx, "missing", now)
		assert.ErrorIs(t, err, delivery.ErrNotFound)
	})

	t.Run("claim is a compare-and-swap", func(t *testing.T) {
		require.NoError(t, repo.Create(ctx, pending("cas-1", now)))

		var wins int32
		var wg sync.WaitGroup
		for i := 0; i < 10; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if _, err := repo.Claim(ctx, "cas-1", now); err == nil {
					atomic.AddInt32(&wins, 1)
				}
			}()
		}
		wg.Wait()
		assert.Equal(t, int32(1), wins)
	})

	t.Run("not yet due is not claimable", func(t *testing.T) {
		require.NoError(t, repo.Create(ctx, pending("future-1", now.Add(time.Hour))))
		_, err := repo.Claim(ctx, "future-1", now)
		assert.ErrorIs(t, err, delivery.ErrNotClaimable)

		due, err := repo.Due(ctx, now, 100)
		require.NoError(t, err)
		for _, a := range due {
			assert.NotEqual(t, "future-1", a.ID)
		}
	})

	t.Run("resolve retry then deliver", func(t *testing.T) {
		require.NoError(t, repo.Create(ctx, pending("chain-1", now)))
		claimed, err := repo.Claim(ctx, "chain-1", now)
		require.NoError(t, err)

		claimed.Status = delivery.Pending
		claimed.AttemptNumber = 2
		claimed.ScheduledAt = now.Add(time.Second)
		claimed.ResponseCode = 503
		claimed.UpdatedAt = now
		require.NoError(t, repo.Resolve(ctx, claimed))

		again, err := repo.Claim(ctx, "chain-1", now.Add(time.Second))
		require.NoError(t, err)
		assert.Equal(t, 2, again.AttemptNumber)

		again.Status = delivery.Delivered
		again.ResponseCode = 200
		require.NoError(t, repo.Resolve(ctx, again))

		again.Status = delivery.Abandoned
		assert.ErrorIs(t, repo.Resolve(ctx, again), delivery.ErrInvalidTransition)

		counts, err := repo.CountByStatus(ctx)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, counts[delivery.Delivered], int64(1))
	})

	t.Run("stale processing rows return to pending", func(t *testing.T) {
		require.NoError(t, repo.Create(ctx, pending("stale-1", now)))
		_, err := repo.Claim(ctx, "stale-1", now)
		require.NoError(t, err)

		later := now.Add(10 * time.Minute)
		n, err := repo.ResetStale(ctx, later.Add(-time.Minute), later)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, n, 1)

		got, err := repo.Get(ctx, "stale-1")
		require.NoError(t, err)
		assert.Equal(t, delivery.Pending, got.Status)
		assert.Equal(t, 2, got.AttemptNumber)
		assert.Equal(t, delivery.ReasonWorkerLost, got.Error)

		n, err = repo.ResetStale(ctx, later.Add(-time.Minute), later)
		require.NoError(t, err)
		assert.Zero(t, n, "a reset row is not reset twice")
	})

	t.Run("a claim newer than the cutoff is kept", func(t *testing.T) {
		require.NoError(t, repo.Create(ctx, pending("stale-2", now)))
		later := now.Add(10 * time.Minute)
		_, err := repo.Claim(ctx, "stale-2", later)
		require.NoError(t, err)

		_, err = repo.ResetStale(ctx, later.Add(-time.Minute), later)
		require.NoError(t, err)

		got, err := repo.Get(ctx, "stale-2")
		require.NoError(t, err)
		assert.Equal(t, delivery.Processing, got.Status)
		assert.Equal(t, 1, got.AttemptNumber)
	})
}

func TestHeartbeat_Integration(t *testing.T) {
	ctx := context.Background()
	redisContainer, cleanup := SetupRedisContainer(t, ctx)
	defer cleanup()

	repo := CreateTestRepository(t, redisContainer.Addr)
	defer repo.Close(ctx)

	require.NoError(t, repo.SetWorkerHeartbeat(ctx, redis.WorkerHeartbeat{WorkerID: "w1", Status: "idle"}))
	require.NoError(t, repo.SetWorkerHeartbeat(ctx, redis.WorkerHeartbeat{WorkerID: "w2", Status: "processing", InFlight: 3}))

	workers, err := repo.GetActiveWorkers(ctx)
	require.NoError(t, err)
	assert.Len(t, workers, 2)
}
