package subscription

import (
	"fmt"
	"net/http"
	"strings"
)

/* Status represents whether a subscription receives new deliveries
 * Paused subscriptions keep their queued attempts but those are abandoned at send time
 */
type Status int

const (
	Active Status = iota + 1
	Paused
)

// String returns the string representation of the status
func (s Status) String() string {
	switch s {
	case Active:
		return "active"
	case Paused:
		return "paused"
	default:
		return "unknown"
	}
}

// NewStatus creates a Status from a string
func NewStatus(str string) Status {
	switch str {
	case "paused":
		return Paused
	default:
		return Active
	}
}

// Validate checks if the status is valid
func (s Status) Validate() error {
	if s != Active && s != Paused {
		return fmt.Errorf("invalid status: %d", s)
	}
	return nil
}

// Method is the HTTP verb used for deliveries
type Method string

const (
	MethodPost  Method = http.MethodPost
	MethodPut   Method = http.MethodPut
	MethodPatch Method = http.MethodPatch
)

// NewMethod normalizes a method name, empty means POST
func NewMethod(s string) Method {
	if s == "" {
		return MethodPost
	}
	return Method(strings.ToUpper(s))
}

// Validate checks that the method is one of POST, PUT or PATCH
func (m Method) Validate() error {
	switch m {
	case MethodPost, MethodPut, MethodPatch:
		return nil
	default:
		return fmt.Errorf("invalid http method: %q", string(m))
	}
}
