package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/marcelsud/webhook-dispatcher/delivery"
	"github.com/marcelsud/webhook-dispatcher/deliverylog"
)

/* PostgreSQL implementation of deliverylog.Store
 * The primary key is the attempt identity, so Record is a single
 * INSERT ... ON CONFLICT that never touches created_at
 */

const Schema = `
CREATE TABLE IF NOT EXISTS delivery_logs (
	webhook_id       TEXT NOT NULL,
	chain_id         TEXT NOT NULL,
	attempt_number   INTEGER NOT NULL,
	event_type       TEXT NOT NULL,
	status           TEXT NOT NULL,
	request_method   TEXT NOT NULL DEFAULT '',
	request_url      TEXT NOT NULL DEFAULT '',
	request_headers  JSONB NOT NULL DEFAULT '{}',
	request_body     TEXT NOT NULL DEFAULT '',
	response_code    INTEGER NOT NULL DEFAULT 0,
	response_headers JSONB NOT NULL DEFAULT '{}',
	response_body    TEXT NOT NULL DEFAULT '',
	response_time_ms BIGINT NOT NULL DEFAULT 0,
	error            TEXT NOT NULL DEFAULT '',
	created_at       TIMESTAMPTZ NOT NULL,
	updated_at       TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (webhook_id, chain_id, attempt_number)
);
CREATE INDEX IF NOT EXISTS delivery_logs_created_at_idx ON delivery_logs (created_at);
CREATE INDEX IF NOT EXISTS delivery_logs_status_idx ON delivery_logs (status);
CREATE INDEX IF NOT EXISTS delivery_logs_event_type_idx ON delivery_logs (event_type);
`

const selectColumns = `webhook_id, chain_id, attempt_number, event_type, status,
	request_method, request_url, request_headers, request_body, response_code,
	response_headers, response_body, response_time_ms, error, created_at, updated_at`

type Store struct {
	DB *sql.DB
}

// NewStore wraps an open database
func NewStore(db *sql.DB) *Store {
	return &Store{DB: db}
}

// Migrate creates the delivery_logs table when missing
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.DB.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("migrating delivery logs: %w", err)
	}
	return nil
}

func (s *Store) Record(ctx context.Context, r deliverylog.Record) error {
	if err := r.Validate(); err != nil {
		return fmt.Errorf("validating record: %w", err)
	}

	requestHeaders, err := headersJSON(r.RequestHeaders)
	if err != nil {
		return fmt.Errorf("marshaling request headers: %w", err)
	}
	responseHeaders, err := headersJSON(r.ResponseHeaders)
	if err != nil {
		return fmt.Errorf("marshaling response headers: %w", err)
	}

	now := time.Now().UTC()
	created := r.CreatedAt
	if created.IsZero() {
		created = now
	}
	updated := r.UpdatedAt
	if updated.IsZero() {
		updated = now
	}

	query := `
		INSERT INTO delivery_logs (webhook_id, chain_id, attempt_number, event_type, status,
			request_method, request_url, request_headers, request_body, response_code,
			response_headers, response_body, response_time_ms, error, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		ON CONFLICT (webhook_id, chain_id, attempt_number) DO UPDATE SET
			event_type = EXCLUDED.event_type, status = EXCLUDED.status,
			request_method = EXCLUDED.request_method, request_url = EXCLUDED.request_url,
			request_headers = EXCLUDED.request_headers, request_body = EXCLUDED.request_body,
			response_code = EXCLUDED.response_code, response_headers = EXCLUDED.response_headers,
			response_body = EXCLUDED.response_body, response_time_ms = EXCLUDED.response_time_ms,
			error = EXCLUDED.error, updated_at = EXCLUDED.updated_at
	`

	_, err = s.DB.ExecContext(ctx, query,
		r.WebhookID, r.ChainID, r.AttemptNumber, r.EventType, r.Status.String(),
		r.RequestMethod, deliverylog.Text(r.RequestURL), requestHeaders, deliverylog.Text(string(r.RequestBody)), r.ResponseCode,
		responseHeaders, deliverylog.Text(r.ResponseBody), r.ResponseTimeMs, deliverylog.Text(r.Error), created, updated,
	)
	if err != nil {
		return fmt.Errorf("upserting delivery log: %w", err)
	}
	return nil
}

func (s *Store) Query(ctx context.Context, f deliverylog.Filter) (deliverylog.Page, error) {
	f = f.Normalize()
	where, args := whereClause(f)

	page := deliverylog.Page{Limit: f.Limit, Offset: f.Offset}

	if err := s.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM delivery_logs`+where, args...).Scan(&page.Total); err != nil {
		return deliverylog.Page{}, fmt.Errorf("counting delivery logs: %w", err)
	}

	query := fmt.Sprintf(`SELECT %s FROM delivery_logs%s
		ORDER BY created_at DESC, webhook_id DESC, chain_id DESC, attempt_number DESC
		LIMIT $%d OFFSET $%d`, selectColumns, where, len(args)+1, len(args)+2)

	rows, err := s.DB.QueryContext(ctx, query, append(args, f.Limit, f.Offset)...)
	if err != nil {
		return deliverylog.Page{}, fmt.Errorf("selecting delivery logs: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		r, err := scan(rows)
		if err != nil {
			return deliverylog.Page{}, err
		}
		page.Records = append(page.Records, r)
	}
	if err := rows.Err(); err != nil {
		return deliverylog.Page{}, fmt.Errorf("iterating delivery logs: %w", err)
	}

	return page, nil
}

func (s *Store) Stats(ctx context.Context, f deliverylog.Filter) (deliverylog.Stats, error) {
	where, args := whereClause(f)

	query := `SELECT
			COUNT(*),
			COUNT(*) FILTER (WHERE status = 'delivered'),
			COUNT(*) FILTER (WHERE status IN ('failed', 'abandoned')),
			COUNT(*) FILTER (WHERE status IN ('pending', 'processing')),
			COALESCE(AVG(response_time_ms) FILTER (WHERE status NOT IN ('pending', 'processing')), 0)
		FROM delivery_logs` + where

	var stats deliverylog.Stats
	err := s.DB.QueryRowContext(ctx, query, args...).Scan(
		&stats.Total, &stats.Delivered, &stats.Failed, &stats.Pending, &stats.AvgResponseTimeMs,
	)
	if err != nil {
		return deliverylog.Stats{}, fmt.Errorf("aggregating delivery logs: %w", err)
	}
	return stats, nil
}

func (s *Store) Purge(ctx context.Context, olderThan time.Time) (int64, error) {
	result, err := s.DB.ExecContext(ctx,
		`DELETE FROM delivery_logs WHERE created_at < $1 AND status NOT IN ('pending', 'processing')`,
		olderThan,
	)
	if err != nil {
		return 0, fmt.Errorf("purging delivery logs: %w", err)
	}
	return result.RowsAffected()
}

func (s *Store) Close(_ context.Context) error {
	return s.DB.Close()
}

func whereClause(f deliverylog.Filter) (string, []any) {
	var (
		conds []string
		args  []any
	)
	add := func(cond string, arg any) {
		args = append(args, arg)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}

	if f.WebhookID != "" {
		add("webhook_id = $%d", f.WebhookID)
	}
	if f.ChainID != "" {
		add("chain_id = $%d", f.ChainID)
	}
	if f.EventType != "" {
		add("event_type = $%d", f.EventType)
	}
	if f.Status != 0 {
		add("status = $%d", f.Status.String())
	}
	if !f.From.IsZero() {
		add("created_at >= $%d", f.From)
	}
	if !f.To.IsZero() {
		add("created_at < $%d", f.To)
	}

	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

type scanner interface {
	Scan(dest ...any) error
}

func scan(row scanner) (deliverylog.Record, error) {
	var (
		r               deliverylog.Record
		status          string
		requestHeaders  []byte
		requestBody     string
		responseHeaders []byte
	)

	err := row.Scan(
		&r.WebhookID, &r.ChainID, &r.AttemptNumber, &r.EventType, &status,
		&r.RequestMethod, &r.RequestURL, &requestHeaders, &requestBody, &r.ResponseCode,
		&responseHeaders, &r.ResponseBody, &r.ResponseTimeMs, &r.Error, &r.CreatedAt, &r.UpdatedAt,
	)
	if err != nil {
		return deliverylog.Record{}, fmt.Errorf("scanning delivery log: %w", err)
	}

	r.Status = delivery.NewStatus(status)
	r.RequestBody = []byte(requestBody)
	if err := json.Unmarshal(requestHeaders, &r.RequestHeaders); err != nil {
		return deliverylog.Record{}, fmt.Errorf("decoding request headers: %w", err)
	}
	if err := json.Unmarshal(responseHeaders, &r.ResponseHeaders); err != nil {
		return deliverylog.Record{}, fmt.Errorf("decoding response headers: %w", err)
	}
	return r, nil
}

// headersJSON is passed as text, lib/pq would send []byte as bytea
func headersJSON(h map[string]string) (string, error) {
	if h == nil {
		return "{}", nil
	}
	clean := make(map[string]string, len(h))
	for name, value := range h {
		clean[deliverylog.Text(name)] = deliverylog.Text(value)
	}
	data, err := json.Marshal(clean)
	if err != nil {
		return "", err
	}
	return string(data), nil
}
