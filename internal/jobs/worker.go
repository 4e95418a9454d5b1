package jobs

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cloo-solutions/medicalchat/internal/domain"
	"github.com/cloo-solutions/medicalchat/internal/logger"
	"golang.org/x/sync/errgroup"
)

// Task is one unit of background work
type Task func(ctx context.Context) error

type job struct {
	name string
	run  Task
}

// ErrStopped is returned by Enqueue once the dispatcher has been stopped
var ErrStopped = domain.NewDomainError(domain.ErrCodeUnavailable, "background workers are shutting down")

// Dispatcher runs tasks on a fixed pool of workers fed by a bounded queue.
// Enqueue never blocks: a full queue is reported to the caller.
type Dispatcher struct {
	queue   chan job
	workers int
	log     *logger.Logger

	mu      sync.RWMutex
	stopped bool
	group   *errgroup.Group
	cancel  context.CancelFunc
}

// NewDispatcher creates a Dispatcher with the given worker count and queue capacity
func NewDispatcher(workers, queueSize int, log *logger.Logger) *Dispatcher {
	if workers < 1 {
		workers = 1
	}
	if queueSize < 0 {
		queueSize = 0
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Dispatcher{
		queue:   make(chan job, queueSize),
		workers: workers,
		log:     log,
	}
}

// Start launches the workers. Tasks receive a context carrying the values of
// ctx but not its cancellation: only Stop cancels them, once its deadline
// passes, so a shutdown signal drains the queue instead of aborting it.
func (d *Dispatcher) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	g, gctx := errgroup.WithContext(ctx)

	d.mu.Lock()
	d.group = g
	d.cancel = cancel
	d.mu.Unlock()

	d.log.Info("dispatcher started", "workers", d.workers, "queue_size", cap(d.queue))

	for i := 0; i < d.workers; i++ {
		workerID := i + 1
		g.Go(func() error {
			d.runLoop(gctx, workerID)
			return nil
		})
	}
}

func (d *Dispatcher) runLoop(ctx context.Context, workerID int) {
	for {
		select {
		case <-ctx.Done():
			d.log.Info("worker stopped: context cancelled", "worker_id", workerID)
			return
		case j, ok := <-d.queue:
			if !ok {
				return
			}
			d.run(ctx, workerID, j)
		}
	}
}

func (d *Dispatcher) run(ctx context.Context, workerID int, j job) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			d.log.Error("task panic", "worker_id", workerID, "task", j.name, "panic", r)
		}
	}()

	if err := j.run(ctx); err != nil {
		d.log.Warn("task failed", "worker_id", workerID, "task", j.name, "error", err, "duration_ms", time.Since(start).Milliseconds())
		return
	}
	d.log.Debug("task finished", "worker_id", workerID, "task", j.name, "duration_ms", time.Since(start).Milliseconds())
}

// Enqueue schedules a task. It returns domain.ErrQueueFull when every slot is
// taken and ErrStopped after Stop.
func (d *Dispatcher) Enqueue(name string, task func(ctx context.Context) error) error {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.stopped {
		return ErrStopped
	}

	select {
	case d.queue <- job{name: name, run: task}:
		return nil
	default:
		return domain.ErrQueueFull.Wrap(fmt.Errorf("%d tasks pending", len(d.queue)))
	}
}

// Pending returns the number of queued tasks not yet picked up
func (d *Dispatcher) Pending() int {
	return len(d.queue)
}

// Stop refuses new tasks, lets the workers drain the queue and waits for
// them, or abandons the remaining tasks when ctx expires.
func (d *Dispatcher) Stop(ctx context.Context) error {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return nil
	}
	d.stopped = true
	close(d.queue)
	g, cancel := d.group, d.cancel
	d.mu.Unlock()

	if g == nil {
		return nil
	}

	done := make(chan error, 1)
	go func() { done <- g.Wait() }()

	select {
	case err := <-done:
		cancel()
		d.log.Info("dispatcher shutdown complete")
		return err
	case <-ctx.Done():
		cancel()
		<-done
		return fmt.Errorf("dispatcher shutdown: %w", ctx.Err())
	}
}
