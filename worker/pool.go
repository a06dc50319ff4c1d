package worker

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alitto/pond/v2"
	"github.com/marcelsud/webhook-dispatcher/delivery/redis"
	"go.uber.org/zap"
)

const (
	DefaultPoolSize  = 16
	DefaultQueueSize = 1024
)

// Executor runs one delivery attempt
type Executor interface {
	Execute(ctx context.Context, id string) (Result, error)
}

// PoolConfig sizes the worker pool
type PoolConfig struct {
	ID        string // reported in heartbeats
	Size      int
	QueueSize int
}

// PoolStats is a snapshot of pool activity
type PoolStats struct {
	Running   int64
	InFlight  int64
	Waiting   uint64
	Submitted uint64
	Completed uint64
	Failed    uint64
}

/* Pool runs deliveries on a bounded pond worker pool
 * A delivery id already queued or running is not submitted twice,
 * the claim CAS still guards against other pools
 */
type Pool struct {
	cfg      PoolConfig
	pool     pond.Pool
	executor Executor
	ctx      context.Context
	logger   *zap.Logger
	inflight sync.Map
	count    atomic.Int64
	stopped  atomic.Bool
}

func NewPool(ctx context.Context, executor Executor, cfg PoolConfig, logger *zap.Logger) *Pool {
	if cfg.Size <= 0 {
		cfg.Size = DefaultPoolSize
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultQueueSize
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	logger.Info("worker pool created",
		zap.String("pool_id", cfg.ID),
		zap.Int("workers", cfg.Size),
		zap.Int("queue_size", cfg.QueueSize),
	)

	return &Pool{
		cfg:      cfg,
		pool:     pond.NewPool(cfg.Size, pond.WithQueueSize(cfg.QueueSize), pond.WithContext(ctx)),
		executor: executor,
		ctx:      ctx,
		logger:   logger,
	}
}

// Submit queues a delivery, blocking while the queue is full
func (p *Pool) Submit(id string) bool {
	if !p.reserve(id) {
		return false
	}
	p.pool.SubmitErr(p.task(id))
	return true
}

// TrySubmit queues a delivery unless the queue is full
func (p *Pool) TrySubmit(id string) bool {
	if !p.reserve(id) {
		return false
	}
	if _, ok := p.pool.TrySubmitErr(p.task(id)); !ok {
		p.inflight.Delete(id)
		p.count.Add(-1)
		return false
	}
	return true
}

func (p *Pool) reserve(id string) bool {
	if p.stopped.Load() {
		return false
	}
	if _, loaded := p.inflight.LoadOrStore(id, struct{}{}); loaded {
		return false
	}
	p.count.Add(1)
	return true
}

func (p *Pool) task(id string) func() error {
	return func() error {
		defer func() {
			p.inflight.Delete(id)
			p.count.Add(-1)
		}()

		if _, err := p.executor.Execute(p.ctx, id); err != nil {
			p.logger.Error("delivery execution failed", zap.String("delivery_id", id), zap.Error(err))
			return err
		}
		return nil
	}
}

// Stats returns the current pool counters
func (p *Pool) Stats() PoolStats {
	return PoolStats{
		Running:   p.pool.RunningWorkers(),
		InFlight:  p.count.Load(),
		Waiting:   p.pool.WaitingTasks(),
		Submitted: p.pool.SubmittedTasks(),
		Completed: p.pool.CompletedTasks(),
		Failed:    p.pool.FailedTasks(),
	}
}

// Stop waits for queued and running deliveries to finish
func (p *Pool) Stop() {
	if p.stopped.Swap(true) {
		return
	}

	stats := p.Stats()
	p.logger.Info("shutting down worker pool",
		zap.Uint64("submitted", stats.Submitted),
		zap.Uint64("waiting", stats.Waiting),
		zap.Uint64("failed", stats.Failed),
	)

	p.pool.StopAndWait()

	p.logger.Info("worker pool shutdown complete",
		zap.Uint64("total_completed", p.pool.CompletedTasks()),
		zap.Uint64("total_failed", p.pool.FailedTasks()),
	)
}

// HeartbeatStore persists pool liveness for the metrics collector
type HeartbeatStore interface {
	SetWorkerHeartbeat(ctx context.Context, hb redis.WorkerHeartbeat) error
}

// Heartbeat reports pool activity on every tick until ctx is done
func (p *Pool) Heartbeat(ctx context.Context, store HeartbeatStore, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := store.SetWorkerHeartbeat(ctx, p.heartbeat()); err != nil {
				p.logger.Warn("failed to write worker heartbeat", zap.Error(err))
			}
		}
	}
}

func (p *Pool) heartbeat() redis.WorkerHeartbeat {
	stats := p.Stats()
	status := "idle"
	if stats.InFlight > 0 {
		status = "processing"
	}
	return redis.WorkerHeartbeat{
		WorkerID:      p.cfg.ID,
		Status:        status,
		InFlight:      stats.InFlight,
		Queued:        stats.Waiting,
		LastHeartbeat: time.Now(),
	}
}
