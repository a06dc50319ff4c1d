package payload

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

// BatchEventType is the event_type of an envelope carrying several events
const BatchEventType = "batch"

// eventTypePattern validates event types: hierarchical, full-stop delimited, [a-zA-Z0-9_.]
var eventTypePattern = regexp.MustCompile(`^[a-zA-Z0-9_]+(\.[a-zA-Z0-9_]+)*$`)

/* Envelope builds the canonical payload sent to subscribers
 * {event_type, occurred_at, data, timestamp}, in that order
 */
func Envelope(eventType string, occurredAt time.Time, data Value, ts time.Time) Value {
	return Map(
		F("event_type", String(eventType)),
		F("occurred_at", String(occurredAt.UTC().Format(time.RFC3339Nano))),
		F("data", data),
		F("timestamp", Int(ts.Unix())),
	)
}

// Batch wraps several envelopes, preserving the order they were accumulated in
func Batch(ts time.Time, envelopes []Value) Value {
	return Map(
		F("event_type", String(BatchEventType)),
		F("timestamp", Int(ts.Unix())),
		F("events", List(envelopes...)),
	)
}

// ValidateEventType validates an event type as published by a producer
func ValidateEventType(eventType string) error {
	if eventType == "" {
		return fmt.Errorf("event type cannot be empty")
	}

	if !eventTypePattern.MatchString(eventType) {
		return fmt.Errorf("event type must be hierarchical and contain only [a-zA-Z0-9_.]: %s", eventType)
	}

	return nil
}

// ValidateEventFilter validates a subscription filter, which may end in ".*"
func ValidateEventFilter(filter string) error {
	if filter == "" {
		return fmt.Errorf("event filter cannot be empty")
	}

	if strings.HasSuffix(filter, ".*") && len(filter) > 2 {
		filter = strings.TrimSuffix(filter, ".*")
	}

	if !eventTypePattern.MatchString(filter) {
		return fmt.Errorf("event filter must be hierarchical and contain only [a-zA-Z0-9_.]: %s", filter)
	}

	return nil
}

/* MatchesEventType checks if eventType matches any of the filters
 * Supports exact matching and prefix matching ("user.*" matches "user.created")
 * An empty filter list matches nothing
 */
func MatchesEventType(eventType string, filters []string) bool {
	for _, filter := range filters {
		if eventType == filter {
			return true
		}

		if len(filter) > 2 && strings.HasSuffix(filter, ".*") {
			prefix := strings.TrimSuffix(filter, ".*")
			if strings.HasPrefix(eventType, prefix+".") && len(eventType) > len(prefix)+1 {
				return true
			}
		}
	}

	return false
}

// EventFilters lists every filter that matches eventType: itself plus each wildcard prefix
// "a.b.c" yields ["a.b.c", "a.b.*", "a.*"]
func EventFilters(eventType string) []string {
	filters := []string{eventType}
	parts := strings.Split(eventType, ".")
	for i := len(parts) - 1; i > 0; i-- {
		filters = append(filters, strings.Join(parts[:i], ".")+".*")
	}
	return filters
}
