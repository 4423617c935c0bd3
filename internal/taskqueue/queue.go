package taskqueue

import (
	"context"
	"fmt"
	"time"

	"github.com/corebridge/platform-core/internal/apperr"
)

// Config tunes the scheduling algorithm. VisibilityTimeout bounds how long a
// dequeued task may stay in flight before RecoverExpired re-enqueues it;
// RetryBase is the base delay for the exponential backoff applied between
// retry attempts.
type Config struct {
	VisibilityTimeout time.Duration
	RetryBase         time.Duration
	MaxScanPerPop     int // how many ineligible heads to skip before giving up on a Dequeue call
}

func (c Config) normalized() Config {
	if c.VisibilityTimeout <= 0 {
		c.VisibilityTimeout = 30 * time.Second
	}
	if c.RetryBase <= 0 {
		c.RetryBase = time.Second
	}
	if c.MaxScanPerPop <= 0 {
		c.MaxScanPerPop = 64
	}
	return c
}

// Queue implements the priority/dependency scheduling algorithm over a
// Backend. The same algorithm runs unchanged whether Backend is an
// in-memory store or a Redis-backed one, since it only calls the narrow
// Backend primitives.
type Queue struct {
	backend Backend
	cfg     Config
}

// New builds a Queue over backend.
func New(backend Backend, cfg Config) *Queue {
	return &Queue{backend: backend, cfg: cfg.normalized()}
}

// Enqueue admits task into the queue at StatusQueued. Dependencies are not
// validated for existence here — a dependency that never completes simply
// leaves the task ineligible forever, which Stats surfaces as a growing
// queue depth rather than a silent hang.
func (q *Queue) Enqueue(ctx context.Context, task *Task) error {
	if task.ID == "" {
		return apperr.Misconfigured("task ID must not be empty")
	}
	task.Status = StatusQueued
	if task.QueuedAt.IsZero() {
		task.QueuedAt = time.Now()
	}
	return q.backend.PushBack(ctx, task)
}

// depStatus resolves a dependency task ID to its current Status via the
// backend, used by Task.eligible.
func (q *Queue) depStatus(ctx context.Context) func(id string) (Status, bool) {
	return func(id string) (Status, bool) {
		t, ok, err := q.backend.Get(ctx, id)
		if err != nil || !ok {
			return "", false
		}
		return t.Status, true
	}
}

// Dequeue scans priorities from Urgent to Low and returns the first
// eligible task found, marking it StatusInFlight with a fresh visibility
// deadline. Ineligible heads (blocked on a dependency, or still serving a
// retry delay) are re-enqueued at the tail of their own priority rather
// than dropped, up to MaxScanPerPop attempts per priority — this bounds
// the work done by a single Dequeue call when many tasks are blocked.
func (q *Queue) Dequeue(ctx context.Context) (*Task, bool, error) {
	now := time.Now()
	depStatus := q.depStatus(ctx)

	for _, p := range priorityOrder {
		for attempt := 0; attempt < q.cfg.MaxScanPerPop; attempt++ {
			t, ok, err := q.backend.PopFront(ctx, p)
			if err != nil {
				return nil, false, fmt.Errorf("dequeue %s: %w", p, err)
			}
			if !ok {
				break // this priority is empty, move to the next
			}
			if !t.eligible(now, depStatus) {
				if err := q.backend.PushBack(ctx, t); err != nil {
					return nil, false, fmt.Errorf("re-enqueue ineligible task: %w", err)
				}
				continue
			}
			t.Status = StatusInFlight
			t.VisibleAt = now.Add(q.cfg.VisibilityTimeout)
			if err := q.backend.SaveInFlight(ctx, t); err != nil {
				return nil, false, fmt.Errorf("mark in-flight: %w", err)
			}
			return t, true, nil
		}
	}
	return nil, false, nil
}

// Complete marks a dequeued task done with result.
func (q *Queue) Complete(ctx context.Context, id string, result map[string]any) error {
	t, ok, err := q.backend.RemoveInFlight(ctx, id)
	if err != nil {
		return fmt.Errorf("remove in-flight: %w", err)
	}
	if !ok {
		return apperr.TaskNotFound(id)
	}
	t.Status = StatusCompleted
	t.Result = result
	return q.backend.SaveTerminal(ctx, t)
}

// Fail records a handler failure for a dequeued task. If Attempts is still
// within MaxRetries the task is re-enqueued at its original priority with
// RetryAfter set by exponential backoff (RetryBase * 2^(Attempts-1));
// otherwise it is marked StatusFailed terminal. MaxRetries == 0 means the
// first failure is terminal — N is the number of additional attempts
// after the first, not the total attempt count.
func (q *Queue) Fail(ctx context.Context, id string, cause string) error {
	t, ok, err := q.backend.RemoveInFlight(ctx, id)
	if err != nil {
		return fmt.Errorf("remove in-flight: %w", err)
	}
	if !ok {
		return apperr.TaskNotFound(id)
	}
	t.Attempts++
	t.Error = cause

	if t.Attempts <= t.MaxRetries {
		delay := q.cfg.RetryBase << (t.Attempts - 1)
		t.RetryAfter = time.Now().Add(delay)
		t.Status = StatusQueued
		return q.backend.PushBack(ctx, t)
	}

	t.Status = StatusFailed
	return q.backend.SaveTerminal(ctx, t)
}

// RecoverExpired sweeps tasks whose visibility timeout has elapsed without
// a Complete or Fail call (a worker crashed, or never called back) and
// re-enqueues them at their original priority with Attempts unchanged —
// a crash is not itself a retry attempt.
func (q *Queue) RecoverExpired(ctx context.Context) (int, error) {
	now := time.Now()
	expired, err := q.backend.ExpiredInFlight(ctx, now)
	if err != nil {
		return 0, fmt.Errorf("scan expired in-flight: %w", err)
	}
	recovered := 0
	for _, t := range expired {
		if _, ok, err := q.backend.RemoveInFlight(ctx, t.ID); err != nil {
			return recovered, fmt.Errorf("remove expired in-flight %s: %w", t.ID, err)
		} else if !ok {
			continue // already completed/failed concurrently
		}
		t.Status = StatusQueued
		if err := q.backend.PushBack(ctx, t); err != nil {
			return recovered, fmt.Errorf("re-enqueue expired task %s: %w", t.ID, err)
		}
		recovered++
	}
	return recovered, nil
}

// Get looks up a task's current record.
func (q *Queue) Get(ctx context.Context, id string) (*Task, bool, error) {
	return q.backend.Get(ctx, id)
}

// Stats reports current queue depth and terminal counters.
func (q *Queue) Stats(ctx context.Context) (Stats, error) {
	return q.backend.Stats(ctx)
}
