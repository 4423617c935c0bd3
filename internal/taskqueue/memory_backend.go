package taskqueue

import (
	"context"
	"sync"
	"time"
)

// memoryBackend is the in-process Backend: one FIFO slice per priority plus
// maps for in-flight/completed/failed tasks, grounded on the teacher's
// jobs.MemoryStore (map + insertion-order slice, RWMutex, clone-on-access).
type memoryBackend struct {
	mu sync.Mutex

	queues    map[Priority][]*Task
	inFlight  map[string]*Task
	completed map[string]*Task
	failed    map[string]*Task
	byID      map[string]*Task // secondary index for Get() across every store
}

// NewMemoryBackend builds an in-memory Backend.
func NewMemoryBackend() Backend {
	b := &memoryBackend{
		queues:    make(map[Priority][]*Task),
		inFlight:  make(map[string]*Task),
		completed: make(map[string]*Task),
		failed:    make(map[string]*Task),
		byID:      make(map[string]*Task),
	}
	for _, p := range priorityOrder {
		b.queues[p] = nil
	}
	return b
}

func (b *memoryBackend) PushBack(ctx context.Context, task *Task) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	c := task.clone()
	b.queues[c.Priority] = append(b.queues[c.Priority], c)
	b.byID[c.ID] = c
	return nil
}

func (b *memoryBackend) PopFront(ctx context.Context, priority Priority) (*Task, bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	q := b.queues[priority]
	if len(q) == 0 {
		return nil, false, nil
	}
	head := q[0]
	b.queues[priority] = q[1:]
	return head.clone(), true, nil
}

func (b *memoryBackend) SaveInFlight(ctx context.Context, task *Task) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	c := task.clone()
	b.inFlight[c.ID] = c
	b.byID[c.ID] = c
	return nil
}

func (b *memoryBackend) RemoveInFlight(ctx context.Context, id string) (*Task, bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	t, ok := b.inFlight[id]
	if !ok {
		return nil, false, nil
	}
	delete(b.inFlight, id)
	return t.clone(), true, nil
}

func (b *memoryBackend) ExpiredInFlight(ctx context.Context, now time.Time) ([]*Task, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []*Task
	for _, t := range b.inFlight {
		if !t.VisibleAt.IsZero() && now.After(t.VisibleAt) {
			out = append(out, t.clone())
		}
	}
	return out, nil
}

func (b *memoryBackend) SaveTerminal(ctx context.Context, task *Task) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	c := task.clone()
	b.byID[c.ID] = c
	if c.Status == StatusCompleted {
		b.completed[c.ID] = c
		return nil
	}
	b.failed[c.ID] = c
	return nil
}

func (b *memoryBackend) Get(ctx context.Context, id string) (*Task, bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	t, ok := b.byID[id]
	if !ok {
		return nil, false, nil
	}
	return t.clone(), true, nil
}

func (b *memoryBackend) Stats(ctx context.Context) (Stats, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	s := Stats{Queued: make(map[Priority]int, len(priorityOrder))}
	for _, p := range priorityOrder {
		s.Queued[p] = len(b.queues[p])
	}
	s.InFlight = len(b.inFlight)
	s.Completed = len(b.completed)
	s.Failed = len(b.failed)
	return s, nil
}
