package memory_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/marcelsud/webhook-dispatcher/delivery"
	"github.com/marcelsud/webhook-dispatcher/delivery/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

func pending(id string, scheduled time.Time) delivery.Attempt {
	return delivery.Attempt{
		ID:            id,
		WebhookID:     "crm",
		EventType:     "booking.created",
		Payload:       []byte(`{"event_type":"booking.created"}`),
		AttemptNumber: 1,
		Status:        delivery.Pending,
		ScheduledAt:   scheduled,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

func TestRepository_Claim(t *testing.T) {
	ctx := context.Background()

	t.Run("success - pending and due", func(t *testing.T) {
		repo := memory.NewRepository()
		require.NoError(t, repo.Create(ctx, pending("a", now)))

		claimed, err := repo.Claim(ctx, "a", now)
		require.NoError(t, err)
		assert.Equal(t, delivery.Processing, claimed.Status)
		assert.Equal(t, now, claimed.ClaimedAt)
	})

	t.Run("error - not yet due", func(t *testing.T) {
		repo := memory.NewRepository()
		require.NoError(t, repo.Create(ctx, pending("a", now.Add(time.Minute))))

		_, err := repo.Claim(ctx, "a", now)
		assert.ErrorIs(t, err, delivery.ErrNotClaimable)
	})

	t.Run("error - unknown id", func(t *testing.T) {
		_, err := memory.NewRepository().Claim(ctx, "missing", now)
		assert.ErrorIs(t, err, delivery.ErrNotFound)
	})

	t.Run("only one concurrent claimer wins", func(t *testing.T) {
		repo := memory.NewRepository()
		require.NoError(t, repo.Create(ctx, pending("a", now)))

		var wins int32
		var wg sync.WaitGroup
		for i := 0; i < 20; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if _, err := repo.Claim(ctx, "a", now); err == nil {
					atomic.AddInt32(&wins, 1)
				}
			}()
		}
		wg.Wait()
		assert.Equal(t, int32(1), wins)
	})
}

func TestRepository_Resolve(t *testing.T) {
	ctx := context.Background()

	t.Run("success - retry re-enters pending", func(t *testing.T) {
		repo := memory.NewRepository()
		require.NoError(t, repo.Create(ctx, pending("a", now)))
		claimed, err := repo.Claim(ctx, "a", now)
		require.NoError(t, err)

		claimed.Status = delivery.Pending
		claimed.AttemptNumber = 2
		claimed.ScheduledAt = now.Add(time.Minute)
		claimed.ResponseCode = 503
		require.NoError(t, repo.Resolve(ctx, claimed))

		got, err := repo.Get(ctx, "a")
		require.NoError(t, err)
		assert.Equal(t, delivery.Pending, got.Status)
		assert.Equal(t, 2, got.AttemptNumber)
		assert.True(t, got.ClaimedAt.IsZero())

		due, err := repo.Due(ctx, now, 10)
		require.NoError(t, err)
		assert.Empty(t, due)
		due, err = repo.Due(ctx, now.Add(time.Minute), 10)
		require.NoError(t, err)
		assert.Len(t, due, 1)
	})

	t.Run("error - terminal rows are immutable", func(t *testing.T) {
		repo := memory.NewRepository()
		require.NoError(t, repo.Create(ctx, pending("a", now)))
		claimed, err := repo.Claim(ctx, "a", now)
		require.NoError(t, err)
		claimed.Status = delivery.Delivered
		require.NoError(t, repo.Resolve(ctx, claimed))

		claimed.Status = delivery.Abandoned
		assert.ErrorIs(t, repo.Resolve(ctx, claimed), delivery.ErrInvalidTransition)
	})

	t.Run("error - cannot resolve to processing", func(t *testing.T) {
		repo := memory.NewRepository()
		a := pending("a", now)
		a.Status = delivery.Processing
		assert.ErrorIs(t, repo.Resolve(ctx, a), delivery.ErrInvalidTransition)
	})
}

func TestRepository_ResetStale(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewRepository()
	require.NoError(t, repo.Create(ctx, pending("old", now)))
	require.NoError(t, repo.Create(ctx, pending("fresh", now)))

	_, err := repo.Claim(ctx, "old", now)
	require.NoError(t, err)
	_, err = repo.Claim(ctx, "fresh", now.Add(5*time.Minute))
	require.NoError(t, err)

	later := now.Add(6 * time.Minute)
	n, err := repo.ResetStale(ctx, later.Add(-2*time.Minute), later)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	old, err := repo.Get(ctx, "old")
	require.NoError(t, err)
	assert.Equal(t, delivery.Pending, old.Status)
	assert.Equal(t, 2, old.AttemptNumber, "the lost attempt counts as failed")
	assert.Equal(t, delivery.ReasonWorkerLost, old.Error)
	assert.Equal(t, later, old.ScheduledAt)

	fresh, err := repo.Get(ctx, "fresh")
	require.NoError(t, err)
	assert.Equal(t, delivery.Processing, fresh.Status)

	counts, err := repo.CountByStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), counts[delivery.Pending])
	assert.Equal(t, int64(1), counts[delivery.Processing])
}

func TestRepository_Due_Order(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewRepository()
	require.NoError(t, repo.Create(ctx, pending("b", now.Add(-time.Minute))))
	require.NoError(t, repo.Create(ctx, pending("a", now.Add(-2*time.Minute))))
	require.NoError(t, repo.Create(ctx, pending("c", now.Add(-3*time.Minute))))

	due, err := repo.Due(ctx, now, 2)
	require.NoError(t, err)
	require.Len(t, due, 2)
	assert.Equal(t, "c", due[0].ID)
	assert.Equal(t, "a", due[1].ID)
}
