package sweeper

import (
	"context"
	"fmt"
	"time"

	"github.com/marcelsud/webhook-dispatcher/internal/clock"
	"go.uber.org/zap"
)

const (
	DefaultRetentionDays   = 30
	DefaultCleanupInterval = time.Hour
)

// Purger deletes finished delivery logs older than a cutoff
type Purger interface {
	Purge(ctx context.Context, olderThan time.Time) (int64, error)
}

type RetentionConfig struct {
	RetentionDays int
	Interval      time.Duration
}

// RetentionSweeper periodically purges old delivery logs, pending and processing rows are kept
type RetentionSweeper struct {
	*loop
	cfg    RetentionConfig
	logs   Purger
	clock  clock.Clock
	logger *zap.Logger
}

func NewRetentionSweeper(cfg RetentionConfig, logs Purger, c clock.Clock, logger *zap.Logger) *RetentionSweeper {
	if cfg.RetentionDays <= 0 {
		cfg.RetentionDays = DefaultRetentionDays
	}
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultCleanupInterval
	}
	if c == nil {
		c = clock.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &RetentionSweeper{cfg: cfg, logs: logs, clock: c, logger: logger}
	s.loop = newLoop("retention-sweeper", cfg.Interval, func(ctx context.Context) error {
		_, err := s.RunOnce(ctx)
		return err
	}, logger)
	return s
}

// RunOnce purges logs older than the retention period
func (s *RetentionSweeper) RunOnce(ctx context.Context) (int64, error) {
	cutoff := s.clock.Now().AddDate(0, 0, -s.cfg.RetentionDays)

	purged, err := s.logs.Purge(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("purging delivery logs: %w", err)
	}
	if purged > 0 {
		s.logger.Info("purged delivery logs", zap.Int64("count", purged), zap.Time("older_than", cutoff))
	}
	return purged, nil
}
