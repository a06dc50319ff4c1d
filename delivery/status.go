package delivery

import "fmt"

/* Status represents the state of a delivery chain or of a logged attempt
 * Chain lifecycle: Pending -> Processing -> Delivered | Pending (retry) | Abandoned
 * Failed only appears on log records of attempts that will be retried
 */
type Status int

const (
	Pending Status = iota + 1
	Processing
	Delivered
	Failed
	Abandoned
)

// String returns the string representation of the status
func (s Status) String() string {
	switch s {
	case Pending:
		return "pending"
	case Processing:
		return "processing"
	case Delivered:
		return "delivered"
	case Failed:
		return "failed"
	case Abandoned:
		return "abandoned"
	default:
		return "unknown"
	}
}

// NewStatus creates a Status from a string, zero for unknown input
func NewStatus(str string) Status {
	switch str {
	case "pending":
		return Pending
	case "processing":
		return Processing
	case "delivered":
		return Delivered
	case "failed":
		return Failed
	case "abandoned":
		return Abandoned
	default:
		return 0
	}
}

// Validate checks if the status is valid
func (s Status) Validate() error {
	if s < Pending || s > Abandoned {
		return fmt.Errorf("invalid status: %d", s)
	}
	return nil
}

// IsFinal returns true if the status is a terminal state
func (s Status) IsFinal() bool {
	return s == Delivered || s == Abandoned
}

// Outcome is the immediate classification of one send
type Outcome int

const (
	OutcomeDelivered Outcome = iota + 1
	OutcomeRetryable
	OutcomePermanent
)

// String returns the string representation of the outcome
func (o Outcome) String() string {
	switch o {
	case OutcomeDelivered:
		return "delivered"
	case OutcomeRetryable:
		return "retryable_failure"
	case OutcomePermanent:
		return "permanent_failure"
	default:
		return "unknown"
	}
}
