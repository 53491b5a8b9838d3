package background

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// Task is a unit of fire-and-forget work. Its context carries the per-task
// timeout and is detached from the request that submitted it.
type Task func(ctx context.Context) error

type namedTask struct {
	name string
	fn   Task
}

// DispatcherConfig sizes the worker pool
type DispatcherConfig struct {
	Workers     int
	QueueSize   int
	TaskTimeout time.Duration
	// OnDrop is called with the task name whenever the queue is full
	OnDrop func(name string)
}

// Dispatcher runs tasks on a fixed pool of workers fed by a bounded queue.
// Submit never blocks: when the queue is full the task is dropped.
type Dispatcher struct {
	cfg       DispatcherConfig
	logger    *slog.Logger
	queue     chan namedTask
	wg        sync.WaitGroup
	mu        sync.RWMutex
	closed    bool
	closeOnce sync.Once
	dropped   atomic.Uint64
}

func NewDispatcher(cfg DispatcherConfig, logger *slog.Logger) *Dispatcher {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 1
	}
	if cfg.TaskTimeout <= 0 {
		cfg.TaskTimeout = 10 * time.Second
	}

	d := &Dispatcher{
		cfg:    cfg,
		logger: logger,
		queue:  make(chan namedTask, cfg.QueueSize),
	}

	d.wg.Add(cfg.Workers)
	for i := 0; i < cfg.Workers; i++ {
		go d.work()
	}
	return d
}

// Submit enqueues fn and reports whether it was accepted
func (d *Dispatcher) Submit(name string, fn Task) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		d.drop(name, "dispatcher closed")
		return false
	}

	select {
	case d.queue <- namedTask{name: name, fn: fn}:
		return true
	default:
		d.drop(name, "queue full")
		return false
	}
}

func (d *Dispatcher) drop(name, reason string) {
	d.dropped.Add(1)
	d.logger.Warn("background task dropped",
		slog.String("task", name),
		slog.String("reason", reason),
	)
	if d.cfg.OnDrop != nil {
		d.cfg.OnDrop(name)
	}
}

func (d *Dispatcher) work() {
	defer d.wg.Done()
	for task := range d.queue {
		d.run(task)
	}
}

func (d *Dispatcher) run(task namedTask) {
	ctx, cancel := context.WithTimeout(context.Background(), d.cfg.TaskTimeout)
	defer cancel()

	defer func() {
		if p := recover(); p != nil {
			d.logger.Error("background task panicked",
				slog.String("task", task.name),
				slog.String("panic", fmt.Sprint(p)),
			)
		}
	}()

	if err := task.fn(ctx); err != nil {
		d.logger.Error("background task failed",
			slog.String("task", task.name),
			slog.Any("error", err),
		)
	}
}

// Dropped returns the number of tasks rejected so far
func (d *Dispatcher) Dropped() uint64 {
	return d.dropped.Load()
}

// Close stops accepting tasks and waits for queued ones to finish, or for
// ctx to end
func (d *Dispatcher) Close(ctx context.Context) error {
	d.closeOnce.Do(func() {
		d.mu.Lock()
		d.closed = true
		close(d.queue)
		d.mu.Unlock()
	})

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("dispatcher drain interrupted: %w", ctx.Err())
	}
}
