package clock

import (
	"sync"
	"time"
)

// Clock abstracts time so schedulers and workers can be driven by tests
type Clock interface {
	Now() time.Time
}

// Real implements Clock using the standard time package
type Real struct{}

// New returns the wall clock
func New() Clock {
	return Real{}
}

func (Real) Now() time.Time {
	return time.Now()
}

/* Manual is a Clock that only moves when told to
 * Safe for concurrent use by workers under test
 */
type Manual struct {
	mu  sync.Mutex
	now time.Time
}

// NewManual creates a manual clock starting at t
func NewManual(t time.Time) *Manual {
	return &Manual{now: t}
}

func (m *Manual) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

// Set moves the clock to t
func (m *Manual) Set(t time.Time) {
	m.mu.Lock()
	m.now = t
	m.mu.Unlock()
}

// Advance moves the clock forward by d
func (m *Manual) Advance(d time.Duration) {
	m.mu.Lock()
	m.now = m.now.Add(d)
	m.mu.Unlock()
}
