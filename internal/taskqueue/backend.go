package taskqueue

import (
	"context"
	"time"
)

// Stats is a point-in-time summary of queue depth per priority plus the
// terminal-state counters, used for the Prometheus gauges Metrics registers.
type Stats struct {
	Queued    map[Priority]int
	InFlight  int
	Completed int
	Failed    int
}

// Backend is the storage primitive the Queue's scheduling algorithm is
// built on. Two implementations are provided: memoryBackend (four FIFO
// lists per process) and redisBackend (sorted sets + hashes, for a
// multi-process deployment). Grounded on the teacher's internal/jobs.Store
// interface, split here into narrower primitives because the priority/
// dependency/visibility-timeout logic in Queue needs to run identically
// over either storage.
type Backend interface {
	// PushBack appends task to the tail of its priority's list. Used both
	// for first enqueue and for re-enqueueing (dependency not yet
	// satisfied, or recovered after a visibility timeout) — in both cases
	// at the tail, never with a priority penalty.
	PushBack(ctx context.Context, task *Task) error

	// PopFront removes and returns the head of priority's list, if any.
	PopFront(ctx context.Context, priority Priority) (*Task, bool, error)

	// SaveInFlight records task (already marked StatusInFlight with
	// VisibleAt set) in the in-flight store.
	SaveInFlight(ctx context.Context, task *Task) error

	// RemoveInFlight deletes and returns the in-flight record for id.
	RemoveInFlight(ctx context.Context, id string) (*Task, bool, error)

	// ExpiredInFlight returns every in-flight task whose VisibleAt has
	// passed now, for the recovery sweep.
	ExpiredInFlight(ctx context.Context, now time.Time) ([]*Task, error)

	// SaveTerminal records task in the completed or failed store per its
	// Status.
	SaveTerminal(ctx context.Context, task *Task) error

	// Get looks up a task by id across every store (queued, in-flight,
	// completed, failed) — used for dependency-status checks and direct
	// lookups.
	Get(ctx context.Context, id string) (*Task, bool, error)

	// Stats reports current queue depth and terminal counters.
	Stats(ctx context.Context) (Stats, error)
}
