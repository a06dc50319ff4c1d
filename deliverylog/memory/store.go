package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/marcelsud/webhook-dispatcher/delivery"
	"github.com/marcelsud/webhook-dispatcher/deliverylog"
)

// Store keeps delivery logs in memory, used in single-node mode and tests
type Store struct {
	mu      sync.RWMutex
	records map[string]deliverylog.Record
}

func NewStore() *Store {
	return &Store{
		records: make(map[string]deliverylog.Record),
	}
}

func (s *Store) Record(_ context.Context, r deliverylog.Record) error {
	if err := r.Validate(); err != nil {
		return fmt.Errorf("validating record: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.records[r.Key()]; ok {
		r.CreatedAt = existing.CreatedAt
	}
	s.records[r.Key()] = r
	return nil
}

func (s *Store) Query(_ context.Context, f deliverylog.Filter) (deliverylog.Page, error) {
	f = f.Normalize()
	matched := s.matching(f)

	sort.Slice(matched, func(i, j int) bool {
		if matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].Key() > matched[j].Key()
		}
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	page := deliverylog.Page{Total: int64(len(matched)), Limit: f.Limit, Offset: f.Offset}
	if f.Offset < len(matched) {
		end := f.Offset + f.Limit
		if end > len(matched) {
			end = len(matched)
		}
		page.Records = matched[f.Offset:end]
	}
	return page, nil
}

func (s *Store) Stats(_ context.Context, f deliverylog.Filter) (deliverylog.Stats, error) {
	var (
		stats    deliverylog.Stats
		sum      int64
		finished int64
	)

	for _, r := range s.matching(f) {
		stats.Total++
		switch r.Status {
		case delivery.Delivered:
			stats.Delivered++
		case delivery.Failed, delivery.Abandoned:
			stats.Failed++
		case delivery.Pending, delivery.Processing:
			stats.Pending++
		}
		if !r.Live() {
			sum += r.ResponseTimeMs
			finished++
		}
	}

	if finished > 0 {
		stats.AvgResponseTimeMs = float64(sum) / float64(finished)
	}
	return stats, nil
}

func (s *Store) Purge(_ context.Context, olderThan time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var purged int64
	for key, r := range s.records {
		if r.Live() || !r.CreatedAt.Before(olderThan) {
			continue
		}
		delete(s.records, key)
		purged++
	}
	return purged, nil
}

func (s *Store) Close(_ context.Context) error {
	return nil
}

func (s *Store) matching(f deliverylog.Filter) []deliverylog.Record {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []deliverylog.Record
	for _, r := range s.records {
		if f.Matches(r) {
			out = append(out, r)
		}
	}
	return out
}
