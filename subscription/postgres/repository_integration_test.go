//go:build integration

package postgres

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/marcelsud/webhook-dispatcher/payload"
	"github.com/marcelsud/webhook-dispatcher/subscription"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRepository_Integration(t *testing.T) {
	ctx := context.Background()
	repo, cleanup := SetupPostgresContainer(t, ctx)
	defer cleanup()

	sub := subscription.Subscription{
		ID:            "wh-orders",
		Name:          "Orders",
		URL:           "https://example.com/hook",
		Secret:        "s3cret",
		Events:        []string{"order.*"},
		Status:        subscription.Active,
		Method:        subscription.MethodPost,
		Format:        payload.JSON,
		RetryCount:    3,
		VerifyTLS:     true,
		CustomHeaders: []subscription.Header{{Name: "X-Team", Value: "core"}},
		Window: &subscription.ActiveWindow{
			Days:  []time.Weekday{time.Monday, time.Tuesday},
			Start: "22:00",
			End:   "06:00",
		},
	}

	t.Run("save and read back", func(t *testing.T) {
		require.NoError(t, repo.Save(ctx, sub))

		got, err := repo.Get(ctx, sub.ID)
		require.NoError(t, err)
		assert.Equal(t, sub.Events, got.Events)
		assert.Equal(t, sub.CustomHeaders, got.CustomHeaders)
		require.NotNil(t, got.Window)
		assert.Equal(t, *sub.Window, *got.Window)
	})

	t.Run("wildcard lookup only returns active subscriptions", func(t *testing.T) {
		paused := sub
		paused.ID = "wh-paused"
		paused.Status = subscription.Paused
		require.NoError(t, repo.Save(ctx, paused))

		other := sub
		other.ID = "wh-users"
		other.Events = []string{"user.created"}
		require.NoError(t, repo.Save(ctx, other))

		subs, err := repo.FindActiveByEvent(ctx, "order.created", time.Now())
		require.NoError(t, err)
		require.Len(t, subs, 1)
		assert.Equal(t, "wh-orders", subs[0].ID)
	})

	t.Run("concurrent outcomes are all counted", func(t *testing.T) {
		var wg sync.WaitGroup
		for i := 0; i < 20; i++ {
			wg.Add(1)
			go func(delivered bool) {
				defer wg.Done()
				_, err := repo.RecordOutcome(ctx, sub.ID, subscription.Outcome{Delivered: delivered, ResponseCode: 200, At: time.Now()})
				assert.NoError(t, err)
			}(i%2 == 0)
		}
		wg.Wait()

		got, err := repo.Get(ctx, sub.ID)
		require.NoError(t, err)
		assert.Equal(t, int64(10), got.Stats.SuccessCount)
		assert.Equal(t, int64(10), got.Stats.FailureCount)
	})

	t.Run("save keeps counters", func(t *testing.T) {
		renamed := sub
		renamed.Name = "Orders v2"
		require.NoError(t, repo.Save(ctx, renamed))

		got, err := repo.Get(ctx, sub.ID)
		require.NoError(t, err)
		assert.Equal(t, "Orders v2", got.Name)
		assert.Equal(t, int64(10), got.Stats.SuccessCount)
	})

	t.Run("delete", func(t *testing.T) {
		require.NoError(t, repo.Delete(ctx, "wh-users"))
		assert.ErrorIs(t, repo.Delete(ctx, "wh-users"), subscription.ErrNotFound)
	})
}
