package subscription

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/marcelsud/webhook-dispatcher/payload"
)

// MaxTimeoutSeconds bounds TimeoutSeconds, a claim must end before the sweeper treats it as stale
const MaxTimeoutSeconds = 60

/* Subscription is a configured endpoint interested in a set of event types
 * Uses value semantics as it represents data, not behavior
 */
type Subscription struct {
	ID                   string
	Name                 string
	URL                  string
	Secret               string
	Events               []string
	Status               Status
	Method               Method
	Format               payload.Format
	TimeoutSeconds       int
	RetryCount           int
	RetryDelaySeconds    int
	VerifyTLS            bool
	CustomHeaders        []Header
	Window               *ActiveWindow
	BatchSize            int
	BatchIntervalSeconds int
	Stats                Stats
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

// Header is one custom request header, kept in configured order
type Header struct {
	Name  string
	Value string
}

// Stats are the rolling delivery counters, mutated only after an attempt completes
type Stats struct {
	SuccessCount        int64
	FailureCount        int64
	ConsecutiveFailures int64
	LastTriggeredAt     time.Time
	LastResponseCode    int
}

// Validate rejects configuration errors before a subscription is stored
func (s Subscription) Validate() error {
	if s.ID == "" {
		return fmt.Errorf("id cannot be empty")
	}
	if err := validateURL(s.URL); err != nil {
		return fmt.Errorf("invalid url for subscription %s: %w", s.ID, err)
	}
	if s.Secret == "" {
		return fmt.Errorf("secret cannot be empty for subscription %s", s.ID)
	}
	if err := s.Status.Validate(); err != nil {
		return fmt.Errorf("invalid status for subscription %s: %w", s.ID, err)
	}
	if s.Status == Active && len(s.Events) == 0 {
		return fmt.Errorf("active subscription %s must listen to at least one event", s.ID)
	}
	for _, e := range s.Events {
		if err := payload.ValidateEventFilter(e); err != nil {
			return fmt.Errorf("invalid event '%s' for subscription %s: %w", e, s.ID, err)
		}
	}
	if err := s.Method.Validate(); err != nil {
		return fmt.Errorf("invalid method for subscription %s: %w", s.ID, err)
	}
	if err := s.Format.Validate(); err != nil {
		return fmt.Errorf("invalid format for subscription %s: %w", s.ID, err)
	}
	if s.TimeoutSeconds < 0 || s.TimeoutSeconds > MaxTimeoutSeconds {
		return fmt.Errorf("timeout_seconds must be between 0 and %d for subscription %s", MaxTimeoutSeconds, s.ID)
	}
	if s.RetryCount < 0 {
		return fmt.Errorf("retry_count cannot be negative for subscription %s", s.ID)
	}
	if s.RetryDelaySeconds < 0 {
		return fmt.Errorf("retry_delay_seconds cannot be negative for subscription %s", s.ID)
	}
	if s.BatchSize < 0 || s.BatchIntervalSeconds < 0 {
		return fmt.Errorf("batch settings cannot be negative for subscription %s", s.ID)
	}
	if s.BatchSize > 1 && s.BatchIntervalSeconds == 0 {
		return fmt.Errorf("batch_interval_seconds is required when batch_size > 1 for subscription %s", s.ID)
	}
	for _, h := range s.CustomHeaders {
		if h.Name == "" || strings.ContainsAny(h.Name, " :\t\r\n") {
			return fmt.Errorf("invalid custom header name %q for subscription %s", h.Name, s.ID)
		}
	}
	if s.Window != nil {
		if err := s.Window.Validate(); err != nil {
			return fmt.Errorf("invalid active window for subscription %s: %w", s.ID, err)
		}
	}
	return nil
}

func validateURL(raw string) error {
	if raw == "" {
		return fmt.Errorf("url cannot be empty")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "https" && u.Scheme != "http" {
		return fmt.Errorf("scheme must be http or https, got %q", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("host cannot be empty")
	}
	return nil
}

// Listens reports whether the subscription's events match eventType
func (s Subscription) Listens(eventType string) bool {
	return payload.MatchesEventType(eventType, s.Events)
}

// Timeout returns the per-attempt timeout, falling back to def
func (s Subscription) Timeout(def time.Duration) time.Duration {
	if s.TimeoutSeconds > 0 {
		return time.Duration(s.TimeoutSeconds) * time.Second
	}
	return def
}

// RetryDelay returns the backoff base, falling back to def
func (s Subscription) RetryDelay(def time.Duration) time.Duration {
	if s.RetryDelaySeconds > 0 {
		return time.Duration(s.RetryDelaySeconds) * time.Second
	}
	return def
}

// Batched reports whether events are accumulated before delivery
func (s Subscription) Batched() bool {
	return s.BatchSize > 1
}

// BatchInterval is the longest a partial batch waits before flushing
func (s Subscription) BatchInterval() time.Duration {
	return time.Duration(s.BatchIntervalSeconds) * time.Second
}

// ScheduleAt returns t, or the next window opening when t is outside the active window
func (s Subscription) ScheduleAt(t time.Time) time.Time {
	if s.Window == nil {
		return t
	}
	return s.Window.Next(t)
}

// Redacted returns a copy safe to expose on admin endpoints and logs
func (s Subscription) Redacted() Subscription {
	if s.Secret != "" {
		s.Secret = "********"
	}
	return s
}
