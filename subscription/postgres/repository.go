package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
	"github.com/marcelsud/webhook-dispatcher/internal/postgres"
	"github.com/marcelsud/webhook-dispatcher/payload"
	"github.com/marcelsud/webhook-dispatcher/subscription"
)

/* PostgreSQL implementation of subscription.Repository
 * Events are a text[] so lookups use the array overlap operator,
 * counters are updated with a single UPDATE ... RETURNING
 */

const Schema = `
CREATE TABLE IF NOT EXISTS subscriptions (
	id                     TEXT PRIMARY KEY,
	name                   TEXT NOT NULL DEFAULT '',
	url                    TEXT NOT NULL,
	secret                 TEXT NOT NULL,
	events                 TEXT[] NOT NULL DEFAULT '{}',
	status                 TEXT NOT NULL,
	http_method            TEXT NOT NULL,
	payload_format         TEXT NOT NULL,
	timeout_seconds        INTEGER NOT NULL DEFAULT 0,
	retry_count            INTEGER NOT NULL DEFAULT 3,
	retry_delay_seconds    INTEGER NOT NULL DEFAULT 0,
	verify_tls             BOOLEAN NOT NULL DEFAULT TRUE,
	custom_headers         JSONB NOT NULL DEFAULT '[]',
	active_window          JSONB,
	batch_size             INTEGER NOT NULL DEFAULT 0,
	batch_interval_seconds INTEGER NOT NULL DEFAULT 0,
	success_count          BIGINT NOT NULL DEFAULT 0,
	failure_count          BIGINT NOT NULL DEFAULT 0,
	consecutive_failures   BIGINT NOT NULL DEFAULT 0,
	last_triggered_at      TIMESTAMPTZ,
	last_response_code     INTEGER NOT NULL DEFAULT 0,
	created_at             TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at             TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS subscriptions_events_idx ON subscriptions USING GIN (events);
`

const selectColumns = `id, name, url, secret, events, status, http_method, payload_format,
	timeout_seconds, retry_count, retry_delay_seconds, verify_tls, custom_headers, active_window,
	batch_size, batch_interval_seconds, success_count, failure_count, consecutive_failures,
	last_triggered_at, last_response_code, created_at, updated_at`

type Repository struct {
	DB *sql.DB
}

// NewRepository wraps an open database
func NewRepository(db *sql.DB) *Repository {
	return &Repository{DB: db}
}

// Migrate creates the subscriptions table when missing
func (r *Repository) Migrate(ctx context.Context) error {
	if _, err := r.DB.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("migrating subscriptions: %w", err)
	}
	return nil
}

func (r *Repository) FindActiveByEvent(ctx context.Context, eventType string, _ time.Time) ([]subscription.Subscription, error) {
	query := `SELECT ` + selectColumns + ` FROM subscriptions
		WHERE status = 'active' AND events && $1::text[]
		ORDER BY id`

	rows, err := r.DB.QueryContext(ctx, query, pq.Array(payload.EventFilters(eventType)))
	if err != nil {
		return nil, fmt.Errorf("selecting subscriptions by event: %w", err)
	}
	defer rows.Close()

	return scanAll(rows)
}

func (r *Repository) Get(ctx context.Context, id string) (subscription.Subscription, error) {
	query := `SELECT ` + selectColumns + ` FROM subscriptions WHERE id = $1`

	sub, err := scan(r.DB.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return subscription.Subscription{}, subscription.ErrNotFound
	}
	if err != nil {
		return subscription.Subscription{}, fmt.Errorf("selecting subscription: %w", err)
	}
	return sub, nil
}

func (r *Repository) List(ctx context.Context) ([]subscription.Subscription, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+selectColumns+` FROM subscriptions ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("selecting subscriptions: %w", err)
	}
	defer rows.Close()

	return scanAll(rows)
}

// Save upserts the configuration columns, counters are left untouched
func (r *Repository) Save(ctx context.Context, sub subscription.Subscription) error {
	if err := sub.Validate(); err != nil {
		return fmt.Errorf("validating subscription: %w", err)
	}

	headers, err := json.Marshal(toHeaderRows(sub.CustomHeaders))
	if err != nil {
		return fmt.Errorf("marshaling custom headers: %w", err)
	}

	var window []byte
	if sub.Window != nil {
		window, err = json.Marshal(toWindowRow(*sub.Window))
		if err != nil {
			return fmt.Errorf("marshaling active window: %w", err)
		}
	}

	query := `
		INSERT INTO subscriptions (id, name, url, secret, events, status, http_method, payload_format,
			timeout_seconds, retry_count, retry_delay_seconds, verify_tls, custom_headers, active_window,
			batch_size, batch_interval_seconds)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name, url = EXCLUDED.url, secret = EXCLUDED.secret, events = EXCLUDED.events,
			status = EXCLUDED.status, http_method = EXCLUDED.http_method, payload_format = EXCLUDED.payload_format,
			timeout_seconds = EXCLUDED.timeout_seconds, retry_count = EXCLUDED.retry_count,
			retry_delay_seconds = EXCLUDED.retry_delay_seconds, verify_tls = EXCLUDED.verify_tls,
			custom_headers = EXCLUDED.custom_headers, active_window = EXCLUDED.active_window,
			batch_size = EXCLUDED.batch_size, batch_interval_seconds = EXCLUDED.batch_interval_seconds,
			updated_at = now()
	`

	_, err = r.DB.ExecContext(ctx, query,
		sub.ID, sub.Name, sub.URL, sub.Secret, pq.Array(sub.Events), sub.Status.String(),
		string(sub.Method), sub.Format.String(), sub.TimeoutSeconds, sub.RetryCount,
		sub.RetryDelaySeconds, sub.VerifyTLS, string(headers), nullJSON(window),
		sub.BatchSize, sub.BatchIntervalSeconds,
	)
	if err != nil {
		return fmt.Errorf("saving subscription: %w", err)
	}
	return nil
}

func (r *Repository) Delete(ctx context.Context, id string) error {
	result, err := r.DB.ExecContext(ctx, `DELETE FROM subscriptions WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("deleting subscription: %w", err)
	}
	return requireRow(result)
}

func (r *Repository) SetStatus(ctx context.Context, id string, status subscription.Status) error {
	if err := status.Validate(); err != nil {
		return fmt.Errorf("validating status: %w", err)
	}

	result, err := r.DB.ExecContext(ctx,
		`UPDATE subscriptions SET status = $1, updated_at = now() WHERE id = $2`,
		status.String(), id)
	if err != nil {
		return fmt.Errorf("updating subscription status: %w", err)
	}
	return requireRow(result)
}

// RecordOutcome increments counters atomically in the database
func (r *Repository) RecordOutcome(ctx context.Context, id string, outcome subscription.Outcome) (subscription.Stats, error) {
	success, failure := 0, 1
	if outcome.Delivered {
		success, failure = 1, 0
	}

	query := `
		UPDATE subscriptions SET
			success_count = success_count + $1,
			failure_count = failure_count + $2,
			consecutive_failures = CASE WHEN $1 = 1 THEN 0 ELSE consecutive_failures + 1 END,
			last_triggered_at = $3,
			last_response_code = $4
		WHERE id = $5
		RETURNING success_count, failure_count, consecutive_failures, last_triggered_at, last_response_code
	`

	var (
		stats         subscription.Stats
		lastTriggered sql.NullTime
	)
	err := r.DB.QueryRowContext(ctx, query, success, failure, outcome.At, outcome.ResponseCode, id).Scan(
		&stats.SuccessCount, &stats.FailureCount, &stats.ConsecutiveFailures, &lastTriggered, &stats.LastResponseCode,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return subscription.Stats{}, subscription.ErrNotFound
	}
	if err != nil {
		return subscription.Stats{}, fmt.Errorf("recording outcome: %w", err)
	}
	stats.LastTriggeredAt = lastTriggered.Time
	return stats, nil
}

func (r *Repository) Close(_ context.Context) error {
	return r.DB.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scan(row rowScanner) (subscription.Subscription, error) {
	var (
		sub                    subscription.Subscription
		events                 pq.StringArray
		status, method, format string
		headers, window        []byte
		lastTriggered          sql.NullTime
	)

	err := row.Scan(
		&sub.ID, &sub.Name, &sub.URL, &sub.Secret, &events, &status, &method, &format,
		&sub.TimeoutSeconds, &sub.RetryCount, &sub.RetryDelaySeconds, &sub.VerifyTLS, &headers, &window,
		&sub.BatchSize, &sub.BatchIntervalSeconds, &sub.Stats.SuccessCount, &sub.Stats.FailureCount,
		&sub.Stats.ConsecutiveFailures, &lastTriggered, &sub.Stats.LastResponseCode, &sub.CreatedAt, &sub.UpdatedAt,
	)
	if err != nil {
		return subscription.Subscription{}, err
	}

	sub.Events = []string(events)
	sub.Status = subscription.NewStatus(status)
	sub.Method = subscription.NewMethod(method)
	sub.Format = payload.NewFormat(format)
	sub.Stats.LastTriggeredAt = lastTriggered.Time

	var headerRows []headerRow
	if len(headers) > 0 {
		if err := json.Unmarshal(headers, &headerRows); err != nil {
			return subscription.Subscription{}, fmt.Errorf("unmarshaling custom headers: %w", err)
		}
	}
	sub.CustomHeaders = fromHeaderRows(headerRows)

	if len(window) > 0 {
		var w windowRow
		if err := json.Unmarshal(window, &w); err != nil {
			return subscription.Subscription{}, fmt.Errorf("unmarshaling active window: %w", err)
		}
		aw := w.toWindow()
		sub.Window = &aw
	}

	return sub, nil
}

func scanAll(rows *sql.Rows) ([]subscription.Subscription, error) {
	var subs []subscription.Subscription
	for rows.Next() {
		sub, err := scan(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning subscription: %w", err)
		}
		subs = append(subs, sub)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating subscriptions: %w", err)
	}
	return subs, nil
}

func requireRow(result sql.Result) error {
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("getting affected rows: %w", err)
	}
	if n == 0 {
		return subscription.ErrNotFound
	}
	return nil
}

// nullJSON passes JSON as text, lib/pq would send []byte as bytea
func nullJSON(b []byte) any {
	if b == nil {
		return nil
	}
	return string(b)
}

type headerRow struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

func toHeaderRows(headers []subscription.Header) []headerRow {
	rows := make([]headerRow, 0, len(headers))
	for _, h := range headers {
		rows = append(rows, headerRow{Name: h.Name, Value: h.Value})
	}
	return rows
}

func fromHeaderRows(rows []headerRow) []subscription.Header {
	headers := make([]subscription.Header, 0, len(rows))
	for _, h := range rows {
		headers = append(headers, subscription.Header{Name: h.Name, Value: h.Value})
	}
	return headers
}

type windowRow struct {
	Days     []int  `json:"days"`
	Start    string `json:"start"`
	End      string `json:"end"`
	TimeZone string `json:"timezone,omitempty"`
}

func toWindowRow(w subscription.ActiveWindow) windowRow {
	days := make([]int, 0, len(w.Days))
	for _, d := range w.Days {
		days = append(days, int(d))
	}
	return windowRow{Days: days, Start: w.Start, End: w.End, TimeZone: w.TimeZone}
}

func (w windowRow) toWindow() subscription.ActiveWindow {
	days := make([]time.Weekday, 0, len(w.Days))
	for _, d := range w.Days {
		days = append(days, time.Weekday(d))
	}
	return subscription.ActiveWindow{Days: days, Start: w.Start, End: w.End, TimeZone: w.TimeZone}
}

// Open connects with the default pool settings
func Open(ctx context.Context, connectionString string) (*Repository, error) {
	db, err := postgres.Open(ctx, connectionString, postgres.DefaultPool)
	if err != nil {
		return nil, err
	}
	return NewRepository(db), nil
}
