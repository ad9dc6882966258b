package jobs

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

var (
	// ErrQueueFull is returned when the buffer cannot take another job.
	ErrQueueFull = errors.New("queue full")
	// ErrQueueStopped is returned when enqueueing outside the running state.
	ErrQueueStopped = errors.New("queue not running")
)

// Job represents a queued background task.
type Job struct {
	ID       string
	Type     string
	Payload  interface{}
	Attempt  int
	Enqueued time.Time
}

// Handler processes a job.
type Handler func(context.Context, Job) error

// QueueConfig configures worker pool behaviour.
type QueueConfig struct {
	Workers    int
	BufferSize int
	MaxRetries int
	RetryDelay time.Duration
	Logger     *zap.Logger
}

// Stats is a snapshot of queue counters.
type Stats struct {
	Pending   int
	Processed int64
	Failed    int64
	Dropped   int64
}

type queueState int

const (
	stateIdle queueState = iota
	stateRunning
	stateStopped
)

// Queue is an in-memory job dispatcher backed by goroutines.
// Enqueue never blocks and Stop drains buffered jobs before returning.
type Queue struct {
	name    string
	handler Handler

	workers    int
	maxRetries int
	retryDelay time.Duration
	logger     *zap.Logger

	jobs   chan Job
	quit   chan struct{}
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	mu     sync.RWMutex
	state  queueState

	processed atomic.Int64
	failed    atomic.Int64
	dropped   atomic.Int64
}

// NewQueue builds a new queue with the provided handler.
func NewQueue(name string, handler Handler, cfg QueueConfig) *Queue {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = cfg.Workers * 64
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	return &Queue{
		name:       name,
		handler:    handler,
		workers:    cfg.Workers,
		maxRetries: cfg.MaxRetries,
		retryDelay: cfg.RetryDelay,
		logger:     cfg.Logger,
		jobs:       make(chan Job, cfg.BufferSize),
		quit:       make(chan struct{}),
	}
}

// Start begins worker consumption. Only the first call has an effect.
func (q *Queue) Start(ctx context.Context) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.state != stateIdle {
		return
	}
	q.ctx, q.cancel = context.WithCancel(context.WithoutCancel(ctx))
	for i := 0; i < q.workers; i++ {
		q.wg.Add(1)
		go q.worker()
	}
	q.state = stateRunning
	q.logger.Sugar().Infow("queue started", "queue", q.name, "workers", q.workers)
}

// Stop rejects new jobs and waits for buffered ones to finish.
// When ctx expires first the handler context is cancelled and ctx.Err() is returned.
func (q *Queue) Stop(ctx context.Context) error {
	q.mu.Lock()
	if q.state != stateRunning {
		q.mu.Unlock()
		return nil
	}
	q.state = stateStopped
	close(q.quit)
	q.mu.Unlock()

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		q.cancel()
		q.logger.Sugar().Infow("queue stopped", "queue", q.name, "processed", q.processed.Load())
		return nil
	case <-ctx.Done():
		q.cancel()
		<-done
		q.logger.Sugar().Warnw("queue stop deadline exceeded", "queue", q.name, "dropped", q.dropped.Load())
		return ctx.Err()
	}
}

// Enqueue pushes a job onto the queue without blocking.
func (q *Queue) Enqueue(job Job) error {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.state != stateRunning {
		return fmt.Errorf("%s: %w", q.name, ErrQueueStopped)
	}
	if job.Enqueued.IsZero() {
		job.Enqueued = time.Now().UTC()
	}

	select {
	case q.jobs <- job:
		return nil
	default:
		return fmt.Errorf("%s: %w", q.name, ErrQueueFull)
	}
}

// Stats returns the current counters.
func (q *Queue) Stats() Stats {
	return Stats{
		Pending:   len(q.jobs),
		Processed: q.processed.Load(),
		Failed:    q.failed.Load(),
		Dropped:   q.dropped.Load(),
	}
}

func (q *Queue) worker() {
	defer q.wg.Done()
	for {
		select {
		case <-q.quit:
			q.drain()
			return
		case job := <-q.jobs:
			q.run(job)
		}
	}
}

func (q *Queue) drain() {
	for {
		select {
		case job := <-q.jobs:
			q.run(job)
		default:
			return
		}
	}
}

func (q *Queue) run(job Job) {
	if q.ctx.Err() != nil {
		q.dropped.Add(1)
		return
	}
	if err := q.handler(q.ctx, job); err != nil {
		q.handleFailure(job, err)
		return
	}
	q.processed.Add(1)
}

func (q *Queue) handleFailure(job Job, err error) {
	job.Attempt++
	if job.Attempt > q.maxRetries {
		q.failed.Add(1)
		q.logger.Sugar().Errorw("job exceeded retries", "queue", q.name, "job_id", job.ID, "type", job.Type, "error", err)
		return
	}
	q.logger.Sugar().Warnw("job failed, retrying", "queue", q.name, "job_id", job.ID, "type", job.Type, "attempt", job.Attempt, "error", err)

	q.wg.Add(1)
	go func(j Job) {
		defer q.wg.Done()
		timer := time.NewTimer(q.retryDelay)
		defer timer.Stop()
		select {
		case <-q.quit:
			q.run(j)
		case <-timer.C:
			if err := q.Enqueue(j); err != nil {
				q.run(j)
			}
		}
	}(job)
}
