package sweeper

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

/* Sweeper is a long-running periodic maintenance task
 * Start blocks until ctx is canceled or Stop is called
 */
type Sweeper interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	Name() string
}

// loop runs cycle every interval, shared by the sweepers in this package
type loop struct {
	name      string
	interval  time.Duration
	cycle     func(ctx context.Context) error
	logger    *zap.Logger
	running   atomic.Bool
	stopChan  chan struct{}
	stoppedCh chan struct{}
}

func newLoop(name string, interval time.Duration, cycle func(ctx context.Context) error, logger *zap.Logger) *loop {
	return &loop{
		name:      name,
		interval:  interval,
		cycle:     cycle,
		logger:    logger,
		stopChan:  make(chan struct{}),
		stoppedCh: make(chan struct{}),
	}
}

func (l *loop) Name() string {
	return l.name
}

func (l *loop) Start(ctx context.Context) error {
	if !l.running.CompareAndSwap(false, true) {
		return fmt.Errorf("%s already running", l.name)
	}
	defer close(l.stoppedCh)

	l.logger.Info("starting sweeper", zap.String("sweeper", l.name), zap.Duration("interval", l.interval))

	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()

	for {
		if err := l.cycle(ctx); err != nil && ctx.Err() == nil {
			l.logger.Error("sweep cycle failed", zap.String("sweeper", l.name), zap.Error(err))
		}

		select {
		case <-ctx.Done():
			l.logger.Info("sweeper stopping due to context cancellation", zap.String("sweeper", l.name))
			return nil
		case <-l.stopChan:
			l.logger.Info("sweeper stop requested", zap.String("sweeper", l.name))
			return nil
		case <-ticker.C:
		}
	}
}

func (l *loop) Stop(ctx context.Context) error {
	if !l.running.CompareAndSwap(true, false) {
		return nil
	}
	close(l.stopChan)

	select {
	case <-l.stoppedCh:
		return nil
	case <-ctx.Done():
		l.logger.Warn("sweeper stop interrupted by context timeout", zap.String("sweeper", l.name))
		return ctx.Err()
	}
}
