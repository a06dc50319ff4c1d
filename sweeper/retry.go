package sweeper

import (
	"context"
	"fmt"
	"time"

	"github.com/marcelsud/webhook-dispatcher/delivery"
	"github.com/marcelsud/webhook-dispatcher/internal/clock"
	"go.uber.org/zap"
)

const (
	DefaultInterval   = 5 * time.Second
	DefaultStaleAfter = 2 * time.Minute
	DefaultBatch      = 100
)

// Submitter hands due deliveries to the worker pool without blocking
type Submitter interface {
	TrySubmit(id string) bool
}

type RetryConfig struct {
	Interval time.Duration
	// StaleAfter is how long a claim may last before the attempt is considered orphaned
	StaleAfter time.Duration
	Batch      int
}

/* RetrySweeper is the pull side of the retry queue
 * Each cycle returns orphaned processing attempts to pending, keeping their
 * attempt number, then submits pending attempts that are due
 */
type RetrySweeper struct {
	*loop
	cfg       RetryConfig
	queue     delivery.Repository
	submitter Submitter
	clock     clock.Clock
	logger    *zap.Logger
}

func NewRetrySweeper(cfg RetryConfig, queue delivery.Repository, submitter Submitter, c clock.Clock, logger *zap.Logger) *RetrySweeper {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.StaleAfter <= 0 {
		cfg.StaleAfter = DefaultStaleAfter
	}
	if cfg.Batch <= 0 {
		cfg.Batch = DefaultBatch
	}
	if c == nil {
		c = clock.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &RetrySweeper{
		cfg:       cfg,
		queue:     queue,
		submitter: submitter,
		clock:     c,
		logger:    logger,
	}
	s.loop = newLoop("retry-sweeper", cfg.Interval, func(ctx context.Context) error {
		_, _, err := s.RunOnce(ctx)
		return err
	}, logger)
	return s
}

// RunOnce performs a single sweep and reports how many attempts were reset and submitted
func (s *RetrySweeper) RunOnce(ctx context.Context) (reset int, submitted int, err error) {
	now := s.clock.Now()

	reset, err = s.queue.ResetStale(ctx, now.Add(-s.cfg.StaleAfter), now)
	if err != nil {
		return 0, 0, fmt.Errorf("resetting stale deliveries: %w", err)
	}
	if reset > 0 {
		s.logger.Warn("reset stale deliveries", zap.Int("count", reset))
	}

	due, err := s.queue.Due(ctx, now, s.cfg.Batch)
	if err != nil {
		return reset, 0, fmt.Errorf("listing due deliveries: %w", err)
	}

	for _, a := range due {
		if s.submitter.TrySubmit(a.ID) {
			submitted++
		}
	}

	if submitted > 0 {
		s.logger.Debug("submitted due deliveries", zap.Int("due", len(due)), zap.Int("submitted", submitted))
	}
	return reset, submitted, nil
}
