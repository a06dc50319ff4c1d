package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/marcelsud/webhook-dispatcher/subscription"
)

/* In-memory implementation of subscription.Repository
 * Used by single-node deployments seeded from subscriptions.yaml and by tests
 */
type Repository struct {
	mu   sync.RWMutex
	subs map[string]subscription.Subscription
}

// NewRepository creates an empty in-memory repository
func NewRepository() *Repository {
	return &Repository{
		subs: make(map[string]subscription.Subscription),
	}
}

func (r *Repository) FindActiveByEvent(_ context.Context, eventType string, _ time.Time) ([]subscription.Subscription, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []subscription.Subscription
	for _, sub := range r.subs {
		if sub.Status == subscription.Active && sub.Listens(eventType) {
			out = append(out, clone(sub))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *Repository) Get(_ context.Context, id string) (subscription.Subscription, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sub, ok := r.subs[id]
	if !ok {
		return subscription.Subscription{}, subscription.ErrNotFound
	}
	return clone(sub), nil
}

func (r *Repository) List(_ context.Context) ([]subscription.Subscription, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]subscription.Subscription, 0, len(r.subs))
	for _, sub := range r.subs {
		out = append(out, clone(sub))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Save inserts or replaces a subscription, keeping existing counters
func (r *Repository) Save(_ context.Context, sub subscription.Subscription) error {
	if err := sub.Validate(); err != nil {
		return fmt.Errorf("validating subscription: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	if existing, ok := r.subs[sub.ID]; ok {
		sub.Stats = existing.Stats
		sub.CreatedAt = existing.CreatedAt
	}
	if sub.CreatedAt.IsZero() {
		sub.CreatedAt = now
	}
	sub.UpdatedAt = now
	r.subs[sub.ID] = clone(sub)
	return nil
}

func (r *Repository) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.subs[id]; !ok {
		return subscription.ErrNotFound
	}
	delete(r.subs, id)
	return nil
}

func (r *Repository) SetStatus(_ context.Context, id string, status subscription.Status) error {
	if err := status.Validate(); err != nil {
		return fmt.Errorf("validating status: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	sub, ok := r.subs[id]
	if !ok {
		return subscription.ErrNotFound
	}
	sub.Status = status
	sub.UpdatedAt = time.Now()
	r.subs[id] = sub
	return nil
}

func (r *Repository) RecordOutcome(_ context.Context, id string, outcome subscription.Outcome) (subscription.Stats, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	sub, ok := r.subs[id]
	if !ok {
		return subscription.Stats{}, subscription.ErrNotFound
	}
	sub.Stats = sub.Stats.Apply(outcome)
	r.subs[id] = sub
	return sub.Stats, nil
}

func (r *Repository) Close(_ context.Context) error {
	return nil
}

// clone copies the slices so callers cannot alias stored state
func clone(sub subscription.Subscription) subscription.Subscription {
	sub.Events = append([]string(nil), sub.Events...)
	sub.CustomHeaders = append([]subscription.Header(nil), sub.CustomHeaders...)
	if sub.Window != nil {
		w := *sub.Window
		w.Days = append([]time.Weekday(nil), w.Days...)
		sub.Window = &w
	}
	return sub
}
