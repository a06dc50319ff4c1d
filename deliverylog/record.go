package deliverylog

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/marcelsud/webhook-dispatcher/delivery"
)

/* Record is the audit entry of one attempt
 * Keyed by (WebhookID, ChainID, AttemptNumber); writing the same key again
 * updates the row in place, so the pending entry written at enqueue time
 * becomes the final entry once the attempt completes
 */
type Record struct {
	WebhookID       string
	ChainID         string
	AttemptNumber   int
	EventType       string
	Status          delivery.Status
	RequestMethod   string
	RequestURL      string
	RequestHeaders  map[string]string
	RequestBody     []byte
	ResponseCode    int
	ResponseHeaders map[string]string
	ResponseBody    string // truncated by the sender
	ResponseTimeMs  int64
	Error           string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Text drops invalid UTF-8 sequences and NUL bytes, text columns reject both
func Text(s string) string {
	return strings.ReplaceAll(strings.ToValidUTF8(s, ""), "\x00", "")
}

// Key identifies the row for idempotent upserts
func (r Record) Key() string {
	return fmt.Sprintf("%s:%s:%d", r.WebhookID, r.ChainID, r.AttemptNumber)
}

// Validate checks the key fields and status
func (r Record) Validate() error {
	if r.WebhookID == "" || r.ChainID == "" || r.AttemptNumber < 1 {
		return fmt.Errorf("record key is incomplete: %s", r.Key())
	}
	return r.Status.Validate()
}

// Live reports whether retention must keep the row
func (r Record) Live() bool {
	return r.Status == delivery.Pending || r.Status == delivery.Processing
}

const (
	DefaultLimit = 50
	MaxLimit     = 500
)

// Filter narrows Query and Stats, zero values mean "any"
type Filter struct {
	WebhookID string
	ChainID   string
	EventType string
	Status    delivery.Status
	From      time.Time
	To        time.Time
	Limit     int
	Offset    int
}

// Normalize applies paging defaults and bounds
func (f Filter) Normalize() Filter {
	if f.Limit <= 0 {
		f.Limit = DefaultLimit
	}
	if f.Limit > MaxLimit {
		f.Limit = MaxLimit
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	return f
}

// Matches applies the filter to one record
func (f Filter) Matches(r Record) bool {
	if f.WebhookID != "" && r.WebhookID != f.WebhookID {
		return false
	}
	if f.ChainID != "" && r.ChainID != f.ChainID {
		return false
	}
	if f.EventType != "" && r.EventType != f.EventType {
		return false
	}
	if f.Status != 0 && r.Status != f.Status {
		return false
	}
	if !f.From.IsZero() && r.CreatedAt.Before(f.From) {
		return false
	}
	if !f.To.IsZero() && !r.CreatedAt.Before(f.To) {
		return false
	}
	return true
}

// Page is one page of query results, newest first
type Page struct {
	Records []Record
	Total   int64
	Limit   int
	Offset  int
}

/* Stats aggregates records matching a filter
 * Failed counts failed and abandoned attempts, Pending counts pending and processing
 */
type Stats struct {
	Total             int64
	Delivered         int64
	Failed            int64
	Pending           int64
	AvgResponseTimeMs float64
}

// Store is the durable attempt history, separate from the live retry queue
type Store interface {
	Record(ctx context.Context, r Record) error
	Query(ctx context.Context, f Filter) (Page, error)
	Stats(ctx context.Context, f Filter) (Stats, error)
	// Purge deletes finished records created before olderThan, never live ones
	Purge(ctx context.Context, olderThan time.Time) (int64, error)
	Close(ctx context.Context) error
}
