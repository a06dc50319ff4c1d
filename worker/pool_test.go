package worker_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/marcelsud/webhook-dispatcher/delivery/redis"
	"github.com/marcelsud/webhook-dispatcher/worker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type blockingExecutor struct {
	mu      sync.Mutex
	calls   map[string]int
	release chan struct{}
	fail    bool
}

func newBlockingExecutor() *blockingExecutor {
	return &blockingExecutor{calls: map[string]int{}, release: make(chan struct{})}
}

func (e *blockingExecutor) Execute(_ context.Context, id string) (worker.Result, error) {
	<-e.release
	e.mu.Lock()
	e.calls[id]++
	e.mu.Unlock()
	if e.fail {
		return worker.Result{}, errors.New("store down")
	}
	return worker.Result{DeliveryID: id}, nil
}

func (e *blockingExecutor) count(id string) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls[id]
}

func TestPool_DeduplicatesInFlightDeliveries(t *testing.T) {
	exec := newBlockingExecutor()
	pool := worker.NewPool(context.Background(), exec, worker.PoolConfig{ID: "p1", Size: 2, QueueSize: 10}, nil)

	assert.True(t, pool.Submit("d1"))
	assert.False(t, pool.Submit("d1"), "already in flight")
	assert.False(t, pool.TrySubmit("d1"), "already in flight")
	assert.True(t, pool.TrySubmit("d2"))
	assert.Equal(t, int64(2), pool.Stats().InFlight)

	close(exec.release)
	pool.Stop()

	assert.Equal(t, 1, exec.count("d1"))
	assert.Equal(t, 1, exec.count("d2"))
	assert.Equal(t, int64(0), pool.Stats().InFlight)
	assert.Equal(t, uint64(2), pool.Stats().Completed)

	assert.False(t, pool.Submit("d3"), "stopped pool rejects work")
}

func TestPool_ResubmitAfterCompletion(t *testing.T) {
	exec := newBlockingExecutor()
	close(exec.release)
	pool := worker.NewPool(context.Background(), exec, worker.PoolConfig{Size: 1, QueueSize: 1}, nil)

	require.True(t, pool.Submit("d1"))
	require.Eventually(t, func() bool { return pool.Stats().InFlight == 0 }, time.Second, 5*time.Millisecond)
	require.True(t, pool.Submit("d1"))

	pool.Stop()
	assert.Equal(t, 2, exec.count("d1"))
}

func TestPool_CountsFailedExecutions(t *testing.T) {
	exec := newBlockingExecutor()
	exec.fail = true
	close(exec.release)
	pool := worker.NewPool(context.Background(), exec, worker.PoolConfig{Size: 1, QueueSize: 4}, nil)

	require.True(t, pool.Submit("d1"))
	pool.Stop()

	assert.Equal(t, uint64(1), pool.Stats().Failed)
}

type heartbeatRecorder struct {
	mu    sync.Mutex
	beats []redis.WorkerHeartbeat
}

func (r *heartbeatRecorder) SetWorkerHeartbeat(_ context.Context, hb redis.WorkerHeartbeat) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.beats = append(r.beats, hb)
	return nil
}

func (r *heartbeatRecorder) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.beats)
}

func TestPool_Heartbeat(t *testing.T) {
	exec := newBlockingExecutor()
	close(exec.release)
	pool := worker.NewPool(context.Background(), exec, worker.PoolConfig{ID: "pool-a", Size: 1}, nil)
	defer pool.Stop()

	store := &heartbeatRecorder{}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		pool.Heartbeat(ctx, store, 10*time.Millisecond)
		close(done)
	}()

	require.Eventually(t, func() bool { return store.len() >= 2 }, time.Second, 5*time.Millisecond)
	cancel()
	<-done

	store.mu.Lock()
	defer store.mu.Unlock()
	assert.Equal(t, "pool-a", store.beats[0].WorkerID)
	assert.Equal(t, "idle", store.beats[0].Status)
}
