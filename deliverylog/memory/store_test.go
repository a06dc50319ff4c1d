package memory_test

import (
	"context"
	"testing"
	"time"

	"github.com/marcelsud/webhook-dispatcher/delivery"
	"github.com/marcelsud/webhook-dispatcher/deliverylog"
	"github.com/marcelsud/webhook-dispatcher/deliverylog/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var base = time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

func record(webhook, chain string, attempt int, status delivery.Status, created time.Time) deliverylog.Record {
	return deliverylog.Record{
		WebhookID:     webhook,
		ChainID:       chain,
		AttemptNumber: attempt,
		EventType:     "order.created",
		Status:        status,
		CreatedAt:     created,
		UpdatedAt:     created,
	}
}

func TestStore_RecordIsIdempotentPerAttempt(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()

	require.NoError(t, store.Record(ctx, record("wh", "c1", 1, delivery.Pending, base)))

	final := record("wh", "c1", 1, delivery.Delivered, base.Add(time.Minute))
	final.ResponseCode = 200
	final.ResponseTimeMs = 42
	require.NoError(t, store.Record(ctx, final))

	page, err := store.Query(ctx, deliverylog.Filter{})
	require.NoError(t, err)
	require.Len(t, page.Records, 1)
	assert.Equal(t, int64(1), page.Total)

	got := page.Records[0]
	assert.Equal(t, delivery.Delivered, got.Status)
	assert.Equal(t, 200, got.ResponseCode)
	assert.Equal(t, base, got.CreatedAt, "created_at survives the upsert")
}

func TestStore_RecordRejectsIncompleteKey(t *testing.T) {
	store := memory.NewStore()
	err := store.Record(context.Background(), record("wh", "", 1, delivery.Pending, base))
	assert.Error(t, err)
}

func TestStore_QueryOrdersNewestFirstAndPages(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()

	for i := 0; i < 5; i++ {
		chain := string(rune('a' + i))
		require.NoError(t, store.Record(ctx, record("wh", chain, 1, delivery.Delivered, base.Add(time.Duration(i)*time.Minute))))
	}

	page, err := store.Query(ctx, deliverylog.Filter{Limit: 2, Offset: 1})
	require.NoError(t, err)
	assert.Equal(t, int64(5), page.Total)
	require.Len(t, page.Records, 2)
	assert.Equal(t, "d", page.Records[0].ChainID)
	assert.Equal(t, "c", page.Records[1].ChainID)

	beyond, err := store.Query(ctx, deliverylog.Filter{Offset: 10})
	require.NoError(t, err)
	assert.Empty(t, beyond.Records)
	assert.Equal(t, int64(5), beyond.Total)
}

func TestStore_QueryFilters(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()

	require.NoError(t, store.Record(ctx, record("wh-1", "c1", 1, delivery.Failed, base)))
	require.NoError(t, store.Record(ctx, record("wh-1", "c1", 2, delivery.Delivered, base.Add(time.Minute))))
	require.NoError(t, store.Record(ctx, record("wh-2", "c2", 1, delivery.Delivered, base)))

	page, err := store.Query(ctx, deliverylog.Filter{WebhookID: "wh-1"})
	require.NoError(t, err)
	assert.Equal(t, int64(2), page.Total)

	page, err = store.Query(ctx, deliverylog.Filter{Status: delivery.Delivered})
	require.NoError(t, err)
	assert.Equal(t, int64(2), page.Total)

	page, err = store.Query(ctx, deliverylog.Filter{From: base.Add(30 * time.Second)})
	require.NoError(t, err)
	require.Equal(t, int64(1), page.Total)
	assert.Equal(t, 2, page.Records[0].AttemptNumber)
}

func TestStore_Stats(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()

	delivered := record("wh", "c1", 1, delivery.Delivered, base)
	delivered.ResponseTimeMs = 100
	failed := record("wh", "c2", 1, delivery.Failed, base)
	failed.ResponseTimeMs = 300
	abandoned := record("wh", "c2", 2, delivery.Abandoned, base)
	abandoned.ResponseTimeMs = 200

	for _, r := range []deliverylog.Record{
		delivered, failed, abandoned,
		record("wh", "c3", 1, delivery.Pending, base),
		record("wh", "c4", 1, delivery.Processing, base),
	} {
		require.NoError(t, store.Record(ctx, r))
	}

	stats, err := store.Stats(ctx, deliverylog.Filter{})
	require.NoError(t, err)
	assert.Equal(t, int64(5), stats.Total)
	assert.Equal(t, int64(1), stats.Delivered)
	assert.Equal(t, int64(2), stats.Failed)
	assert.Equal(t, int64(2), stats.Pending)
	assert.InDelta(t, 200.0, stats.AvgResponseTimeMs, 0.001)

	empty, err := store.Stats(ctx, deliverylog.Filter{WebhookID: "nobody"})
	require.NoError(t, err)
	assert.Equal(t, deliverylog.Stats{}, empty)
}

func TestStore_PurgeKeepsLiveRecords(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	old := base.Add(-60 * 24 * time.Hour)

	require.NoError(t, store.Record(ctx, record("wh", "old-done", 1, delivery.Delivered, old)))
	require.NoError(t, store.Record(ctx, record("wh", "old-abandoned", 1, delivery.Abandoned, old)))
	require.NoError(t, store.Record(ctx, record("wh", "old-pending", 1, delivery.Pending, old)))
	require.NoError(t, store.Record(ctx, record("wh", "old-processing", 1, delivery.Processing, old)))
	require.NoError(t, store.Record(ctx, record("wh", "recent", 1, delivery.Delivered, base)))

	purged, err := store.Purge(ctx, base.Add(-30*24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(2), purged)

	page, err := store.Query(ctx, deliverylog.Filter{})
	require.NoError(t, err)
	var chains []string
	for _, r := range page.Records {
		chains = append(chains, r.ChainID)
	}
	assert.ElementsMatch(t, []string{"old-pending", "old-processing", "recent"}, chains)
}
