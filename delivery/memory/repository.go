package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/marcelsud/webhook-dispatcher/delivery"
)

/* In-memory implementation of delivery.Repository
 * A single mutex makes Claim and Resolve atomic compare-and-swaps
 */
type Repository struct {
	mu       sync.Mutex
	attempts map[string]delivery.Attempt
}

// NewRepository creates an empty in-memory queue
func NewRepository() *Repository {
	return &Repository{
		attempts: make(map[string]delivery.Attempt),
	}
}

func (r *Repository) Create(_ context.Context, a delivery.Attempt) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.attempts[a.ID]; exists {
		return fmt.Errorf("creating %s: %w", a.ID, delivery.ErrAlreadyExists)
	}
	a.Payload = append([]byte(nil), a.Payload...)
	r.attempts[a.ID] = a
	return nil
}

func (r *Repository) Get(_ context.Context, id string) (delivery.Attempt, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.attempts[id]
	if !ok {
		return delivery.Attempt{}, delivery.ErrNotFound
	}
	return a, nil
}

func (r *Repository) Due(_ context.Context, now time.Time, limit int) ([]delivery.Attempt, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var due []delivery.Attempt
	for _, a := range r.attempts {
		if a.Due(now) {
			due = append(due, a)
		}
	}
	sort.Slice(due, func(i, j int) bool {
		if due[i].ScheduledAt.Equal(due[j].ScheduledAt) {
			return due[i].ID < due[j].ID
		}
		return due[i].ScheduledAt.Before(due[j].ScheduledAt)
	})
	if limit > 0 && len(due) > limit {
		due = due[:limit]
	}
	return due, nil
}

func (r *Repository) CountByStatus(_ context.Context) (map[delivery.Status]int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	counts := make(map[delivery.Status]int64)
	for _, a := range r.attempts {
		counts[a.Status]++
	}
	return counts, nil
}

func (r *Repository) Claim(_ context.Context, id string, now time.Time) (delivery.Attempt, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.attempts[id]
	if !ok {
		return delivery.Attempt{}, delivery.ErrNotFound
	}
	if !a.Due(now) {
		return delivery.Attempt{}, delivery.ErrNotClaimable
	}

	a.Status = delivery.Processing
	a.ClaimedAt = now
	a.UpdatedAt = now
	r.attempts[id] = a
	return a, nil
}

func (r *Repository) Resolve(_ context.Context, a delivery.Attempt) error {
	if !delivery.CanResolveTo(a.Status) {
		return fmt.Errorf("resolving to %s: %w", a.Status, delivery.ErrInvalidTransition)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.attempts[a.ID]
	if !ok {
		return delivery.ErrNotFound
	}
	if current.Status != delivery.Processing {
		return fmt.Errorf("resolving %s attempt: %w", current.Status, delivery.ErrInvalidTransition)
	}
	if a.AttemptNumber < current.AttemptNumber {
		return fmt.Errorf("attempt number went backwards: %w", delivery.ErrInvalidTransition)
	}

	current.Status = a.Status
	current.AttemptNumber = a.AttemptNumber
	current.ScheduledAt = a.ScheduledAt
	current.ClaimedAt = time.Time{}
	current.ResponseCode = a.ResponseCode
	current.ResponseExcerpt = a.ResponseExcerpt
	current.ResponseTimeMs = a.ResponseTimeMs
	current.Error = a.Error
	current.UpdatedAt = a.UpdatedAt
	r.attempts[a.ID] = current
	return nil
}

func (r *Repository) ResetStale(_ context.Context, claimedBefore time.Time, now time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	reset := 0
	for id, a := range r.attempts {
		if a.Status != delivery.Processing || !a.ClaimedAt.Before(claimedBefore) {
			continue
		}
		a.Status = delivery.Pending
		a.AttemptNumber++
		a.Error = delivery.ReasonWorkerLost
		a.ScheduledAt = now
		a.ClaimedAt = time.Time{}
		a.UpdatedAt = now
		r.attempts[id] = a
		reset++
	}
	return reset, nil
}

func (r *Repository) Close(_ context.Context) error {
	return nil
}
