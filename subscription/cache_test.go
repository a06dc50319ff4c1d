package subscription_test

import (
	"context"
	"testing"
	"time"

	"github.com/marcelsud/webhook-dispatcher/subscription"
	"github.com/marcelsud/webhook-dispatcher/subscription/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCache(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewRepository()
	require.NoError(t, repo.Save(ctx, validSubscription()))

	cache := subscription.NewCache(repo, 16, time.Minute)

	subs, err := cache.FindActiveByEvent(ctx, "booking.created", time.Now())
	require.NoError(t, err)
	require.Len(t, subs, 1)

	require.NoError(t, repo.SetStatus(ctx, "crm", subscription.Paused))

	t.Run("serves cached entries within ttl", func(t *testing.T) {
		subs, err := cache.FindActiveByEvent(ctx, "booking.created", time.Now())
		require.NoError(t, err)
		assert.Len(t, subs, 1)
	})

	t.Run("expired entries reload from the store", func(t *testing.T) {
		short := subscription.NewCache(repo, 16, 20*time.Millisecond)
		_, err := short.Get(ctx, "crm")
		require.NoError(t, err)
		require.NoError(t, repo.SetStatus(ctx, "crm", subscription.Active))

		assert.Eventually(t, func() bool {
			sub, err := short.Get(ctx, "crm")
			return err == nil && sub.Status == subscription.Active
		}, time.Second, 10*time.Millisecond)
	})

	t.Run("not found is not cached", func(t *testing.T) {
		_, err := cache.Get(ctx, "missing")
		assert.ErrorIs(t, err, subscription.ErrNotFound)
	})
}
