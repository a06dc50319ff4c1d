//go:build !integration

package postgres

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/marcelsud/webhook-dispatcher/delivery"
	"github.com/marcelsud/webhook-dispatcher/deliverylog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	return &Store{DB: db}, mock
}

func TestStore_Record_Unit(t *testing.T) {
	store, mock := newMockStore(t)
	at := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectExec(regexp.QuoteMeta(`ON CONFLICT (webhook_id, chain_id, attempt_number) DO UPDATE SET`)).
		WithArgs(
			"wh", "c1", 2, "order.created", "failed",
			"POST", "https://example.com/hook", `{"Content-Type":"application/json"}`, `{"a":1}`, 503,
			"{}", "unavailable", int64(12), "HTTP 503", at, at,
		).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := store.Record(context.Background(), deliverylog.Record{
		WebhookID:      "wh",
		ChainID:        "c1",
		AttemptNumber:  2,
		EventType:      "order.created",
		Status:         delivery.Failed,
		RequestMethod:  "POST",
		RequestURL:     "https://example.com/hook",
		RequestHeaders: map[string]string{"Content-Type": "application/json"},
		RequestBody:    []byte(`{"a":1}`),
		ResponseCode:   503,
		ResponseBody:   "unavailable",
		ResponseTimeMs: 12,
		Error:          "HTTP 503",
		CreatedAt:      at,
		UpdatedAt:      at,
	})

	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_Record_DropsBytesTextColumnsReject(t *testing.T) {
	store, mock := newMockStore(t)
	at := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO delivery_logs`)).
		WithArgs(
			"wh", "c1", 1, "order.created", "failed",
			"POST", "https://example.com/hook", "{}", "", 500,
			`{"X-Trace":"ab"}`, "broken", int64(0), "HTTP 500", at, at,
		).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := store.Record(context.Background(), deliverylog.Record{
		WebhookID:       "wh",
		ChainID:         "c1",
		AttemptNumber:   1,
		EventType:       "order.created",
		Status:          delivery.Failed,
		RequestMethod:   "POST",
		RequestURL:      "https://example.com/hook",
		ResponseCode:    500,
		ResponseHeaders: map[string]string{"X-Trace": "a\x00b"},
		ResponseBody:    "bro\xc3\x00ken",
		Error:           "HTTP 500",
		CreatedAt:       at,
		UpdatedAt:       at,
	})

	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_Record_InvalidSkipsDatabase(t *testing.T) {
	store, mock := newMockStore(t)

	err := store.Record(context.Background(), deliverylog.Record{WebhookID: "wh"})

	require.Error(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_Query_Unit(t *testing.T) {
	store, mock := newMockStore(t)
	at := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT COUNT(*) FROM delivery_logs WHERE webhook_id = $1 AND status = $2`)).
		WithArgs("wh", "delivered").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(7))

	rows := sqlmock.NewRows([]string{
		"webhook_id", "chain_id", "attempt_number", "event_type", "status",
		"request_method", "request_url", "request_headers", "request_body", "response_code",
		"response_headers", "response_body", "response_time_ms", "error", "created_at", "updated_at",
	}).AddRow(
		"wh", "c1", 1, "order.created", "delivered",
		"POST", "https://example.com/hook", []byte(`{"X-Signature":"sha256=ab"}`), `{"a":1}`, 200,
		[]byte(`{}`), "ok", int64(30), "", at, at,
	)
	mock.ExpectQuery(regexp.QuoteMeta(`LIMIT $3 OFFSET $4`)).
		WithArgs("wh", "delivered", 5, 5).
		WillReturnRows(rows)

	page, err := store.Query(context.Background(), deliverylog.Filter{
		WebhookID: "wh",
		Status:    delivery.Delivered,
		Limit:     5,
		Offset:    5,
	})

	require.NoError(t, err)
	assert.Equal(t, int64(7), page.Total)
	require.Len(t, page.Records, 1)
	assert.Equal(t, delivery.Delivered, page.Records[0].Status)
	assert.Equal(t, "sha256=ab", page.Records[0].RequestHeaders["X-Signature"])
	assert.Equal(t, []byte(`{"a":1}`), page.Records[0].RequestBody)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_Stats_Unit(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery(regexp.QuoteMeta(`FROM delivery_logs WHERE event_type = $1`)).
		WithArgs("order.created").
		WillReturnRows(sqlmock.NewRows([]string{"total", "delivered", "failed", "pending", "avg"}).
			AddRow(10, 6, 3, 1, 120.5))

	stats, err := store.Stats(context.Background(), deliverylog.Filter{EventType: "order.created"})

	require.NoError(t, err)
	assert.Equal(t, deliverylog.Stats{Total: 10, Delivered: 6, Failed: 3, Pending: 1, AvgResponseTimeMs: 120.5}, stats)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_Purge_Unit(t *testing.T) {
	store, mock := newMockStore(t)
	cutoff := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM delivery_logs WHERE created_at < $1 AND status NOT IN ('pending', 'processing')`)).
		WithArgs(cutoff).
		WillReturnResult(sqlmock.NewResult(0, 4))

	purged, err := store.Purge(context.Background(), cutoff)

	require.NoError(t, err)
	assert.Equal(t, int64(4), purged)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestWhereClause(t *testing.T) {
	from := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	where, args := whereClause(deliverylog.Filter{})
	assert.Empty(t, where)
	assert.Empty(t, args)

	where, args = whereClause(deliverylog.Filter{ChainID: "c1", EventType: "a.b", From: from})
	assert.Equal(t, " WHERE chain_id = $1 AND event_type = $2 AND created_at >= $3", where)
	assert.Equal(t, []any{"c1", "a.b", from}, args)
}
