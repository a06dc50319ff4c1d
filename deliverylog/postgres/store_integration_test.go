//go:build integration

package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/marcelsud/webhook-dispatcher/delivery"
	"github.com/marcelsud/webhook-dispatcher/deliverylog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore_Integration(t *testing.T) {
	ctx := context.Background()
	store, cleanup := SetupPostgresContainer(t, ctx)
	defer cleanup()

	base := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

	t.Run("upsert keeps one row per attempt", func(t *testing.T) {
		pending := deliverylog.Record{
			WebhookID: "wh", ChainID: "c1", AttemptNumber: 1,
			EventType: "order.created", Status: delivery.Pending,
			RequestBody: []byte(`{"a":1}`), CreatedAt: base, UpdatedAt: base,
		}
		require.NoError(t, store.Record(ctx, pending))

		final := pending
		final.Status = delivery.Delivered
		final.ResponseCode = 200
		final.ResponseTimeMs = 80
		final.ResponseHeaders = map[string]string{"Server": "test"}
		final.CreatedAt = base.Add(time.Hour)
		final.UpdatedAt = base.Add(time.Minute)
		require.NoError(t, store.Record(ctx, final))

		page, err := store.Query(ctx, deliverylog.Filter{ChainID: "c1"})
		require.NoError(t, err)
		require.Equal(t, int64(1), page.Total)

		got := page.Records[0]
		assert.Equal(t, delivery.Delivered, got.Status)
		assert.Equal(t, "test", got.ResponseHeaders["Server"])
		assert.Equal(t, []byte(`{"a":1}`), got.RequestBody)
		assert.True(t, base.Equal(got.CreatedAt), "created_at is not overwritten")
	})

	t.Run("stats and purge", func(t *testing.T) {
		old := base.Add(-90 * 24 * time.Hour)
		for _, r := range []deliverylog.Record{
			{WebhookID: "wh-p", ChainID: "p1", AttemptNumber: 1, EventType: "x.y", Status: delivery.Abandoned, ResponseTimeMs: 50, CreatedAt: old},
			{WebhookID: "wh-p", ChainID: "p2", AttemptNumber: 1, EventType: "x.y", Status: delivery.Pending, CreatedAt: old},
			{WebhookID: "wh-p", ChainID: "p3", AttemptNumber: 1, EventType: "x.y", Status: delivery.Delivered, ResponseTimeMs: 150, CreatedAt: base},
		} {
			r.UpdatedAt = r.CreatedAt
			require.NoError(t, store.Record(ctx, r))
		}

		stats, err := store.Stats(ctx, deliverylog.Filter{WebhookID: "wh-p"})
		require.NoError(t, err)
		assert.Equal(t, int64(3), stats.Total)
		assert.Equal(t, int64(1), stats.Delivered)
		assert.Equal(t, int64(1), stats.Failed)
		assert.Equal(t, int64(1), stats.Pending)
		assert.InDelta(t, 100.0, stats.AvgResponseTimeMs, 0.001)

		purged, err := store.Purge(ctx, base.Add(-30*24*time.Hour))
		require.NoError(t, err)
		assert.Equal(t, int64(1), purged)

		page, err := store.Query(ctx, deliverylog.Filter{WebhookID: "wh-p"})
		require.NoError(t, err)
		assert.Equal(t, int64(2), page.Total)
	})
}
