package taskqueue

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Handler executes one task's payload and returns its result, or an error
// if the task failed.
type Handler func(ctx context.Context, task *Task) (map[string]any, error)

// WorkerConfig tunes the worker pool.
type WorkerConfig struct {
	Concurrency  int
	PollInterval time.Duration // how often an idle worker re-polls Dequeue
	RecoverEvery time.Duration // how often to sweep ExpiredInFlight
}

func (c WorkerConfig) normalized() WorkerConfig {
	if c.Concurrency <= 0 {
		c.Concurrency = 4
	}
	if c.PollInterval <= 0 {
		c.PollInterval = 100 * time.Millisecond
	}
	if c.RecoverEvery <= 0 {
		c.RecoverEvery = 5 * time.Second
	}
	return c
}

// Pool runs a bounded-concurrency set of workers draining a Queue, plus a
// background sweep that recovers tasks abandoned past their visibility
// timeout. Grounded on the teacher's internal/jobs worker loop shape
// (ticker-driven poll, context-cancellable shutdown) generalized from a
// single FIFO queue to the priority/dependency Queue above.
type Pool struct {
	queue   *Queue
	handler Handler
	cfg     WorkerConfig
	log     *slog.Logger

	wg sync.WaitGroup
}

// NewPool builds a worker pool over queue. log may be nil, in which case
// slog.Default() is used.
func NewPool(queue *Queue, handler Handler, cfg WorkerConfig, log *slog.Logger) *Pool {
	if log == nil {
		log = slog.Default()
	}
	return &Pool{queue: queue, handler: handler, cfg: cfg.normalized(), log: log}
}

// Run starts the worker goroutines and the recovery sweep, blocking until
// ctx is cancelled. On cancellation it waits for in-flight handler calls to
// return before returning itself (graceful drain).
func (p *Pool) Run(ctx context.Context) {
	p.wg.Add(p.cfg.Concurrency)
	for i := 0; i < p.cfg.Concurrency; i++ {
		go p.workerLoop(ctx, i)
	}

	p.wg.Add(1)
	go p.recoverLoop(ctx)

	p.wg.Wait()
}

func (p *Pool) workerLoop(ctx context.Context, id int) {
	defer p.wg.Done()
	ticker := time.NewTicker(p.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.drainOnce(ctx, id)
		}
	}
}

// drainOnce dequeues and processes exactly one task, if any is eligible.
func (p *Pool) drainOnce(ctx context.Context, workerID int) {
	task, ok, err := p.queue.Dequeue(ctx)
	if err != nil {
		p.log.Error("dequeue failed", "worker", workerID, "error", err)
		return
	}
	if !ok {
		return
	}

	result, herr := p.handler(ctx, task)
	if herr != nil {
		p.log.Warn("task failed", "task_id", task.ID, "attempt", task.Attempts+1, "error", herr)
		if err := p.queue.Fail(ctx, task.ID, herr.Error()); err != nil {
			p.log.Error("failed to record task failure", "task_id", task.ID, "error", err)
		}
		return
	}
	if err := p.queue.Complete(ctx, task.ID, result); err != nil {
		p.log.Error("failed to record task completion", "task_id", task.ID, "error", err)
	}
}

func (p *Pool) recoverLoop(ctx context.Context) {
	defer p.wg.Done()
	ticker := time.NewTicker(p.cfg.RecoverEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := p.queue.RecoverExpired(ctx)
			if err != nil {
				p.log.Error("recovery sweep failed", "error", err)
				continue
			}
			if n > 0 {
				p.log.Info("recovered expired in-flight tasks", "count", n)
			}
		}
	}
}
