package taskqueue

import (
	"context"
	"testing"
	"time"
)

func newTestQueue() *Queue {
	return New(NewMemoryBackend(), Config{
		VisibilityTimeout: 50 * time.Millisecond,
		RetryBase:         10 * time.Millisecond,
		MaxScanPerPop:     8,
	})
}

func mustEnqueue(t *testing.T, q *Queue, task *Task) {
	t.Helper()
	if err := q.Enqueue(context.Background(), task); err != nil {
		t.Fatalf("enqueue %s: %v", task.ID, err)
	}
}

func TestDequeue_PriorityOrder(t *testing.T) {
	q := newTestQueue()
	ctx := context.Background()
	mustEnqueue(t, q, &Task{ID: "low", Priority: PriorityLow})
	mustEnqueue(t, q, &Task{ID: "urgent", Priority: PriorityUrgent})
	mustEnqueue(t, q, &Task{ID: "medium", Priority: PriorityMedium})

	got, ok, err := q.Dequeue(ctx)
	if err != nil || !ok {
		t.Fatalf("dequeue: %v %v", ok, err)
	}
	if got.ID != "urgent" {
		t.Fatalf("got %s, want urgent first", got.ID)
	}
}

func TestDequeue_FIFOWithinPriority(t *testing.T) {
	q := newTestQueue()
	ctx := context.Background()
	mustEnqueue(t, q, &Task{ID: "first", Priority: PriorityHigh})
	mustEnqueue(t, q, &Task{ID: "second", Priority: PriorityHigh})

	got, _, _ := q.Dequeue(ctx)
	if got.ID != "first" {
		t.Fatalf("got %s, want first", got.ID)
	}
}

func TestDequeue_EmptyQueue(t *testing.T) {
	q := newTestQueue()
	_, ok, err := q.Dequeue(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Fatal("expected no task on an empty queue")
	}
}

func TestDequeue_DependencyGating(t *testing.T) {
	q := newTestQueue()
	ctx := context.Background()
	mustEnqueue(t, q, &Task{ID: "base", Priority: PriorityLow})
	mustEnqueue(t, q, &Task{ID: "dependent", Priority: PriorityUrgent, Dependencies: []string{"base"}})

	// dependent outranks base by priority but its dependency is unmet and
	// still sitting in the queue (not completed), so base must come first.
	got, ok, err := q.Dequeue(ctx)
	if err != nil || !ok {
		t.Fatalf("dequeue: %v %v", ok, err)
	}
	if got.ID != "base" {
		t.Fatalf("got %s, want base (dependent should be re-enqueued, not admitted)", got.ID)
	}

	if err := q.Complete(ctx, "base", nil); err != nil {
		t.Fatalf("complete base: %v", err)
	}

	got2, ok, err := q.Dequeue(ctx)
	if err != nil || !ok {
		t.Fatalf("dequeue after dependency satisfied: %v %v", ok, err)
	}
	if got2.ID != "dependent" {
		t.Fatalf("got %s, want dependent now that base completed", got2.ID)
	}
}

func TestComplete_RemovesFromInFlightAndRecordsResult(t *testing.T) {
	q := newTestQueue()
	ctx := context.Background()
	mustEnqueue(t, q, &Task{ID: "t1", Priority: PriorityMedium})
	q.Dequeue(ctx)

	if err := q.Complete(ctx, "t1", map[string]any{"ok": true}); err != nil {
		t.Fatalf("complete: %v", err)
	}

	got, ok, err := q.Get(ctx, "t1")
	if err != nil || !ok {
		t.Fatalf("get: %v %v", ok, err)
	}
	if got.Status != StatusCompleted {
		t.Fatalf("got status %s, want completed", got.Status)
	}
	if got.Result["ok"] != true {
		t.Fatalf("result not recorded: %+v", got.Result)
	}
}

func TestFail_RetriesUntilMaxRetriesThenTerminal(t *testing.T) {
	q := newTestQueue()
	ctx := context.Background()
	mustEnqueue(t, q, &Task{ID: "flaky", Priority: PriorityMedium, MaxRetries: 1})

	q.Dequeue(ctx)
	if err := q.Fail(ctx, "flaky", "boom"); err != nil {
		t.Fatalf("fail: %v", err)
	}

	got, _, _ := q.Get(ctx, "flaky")
	if got.Status != StatusQueued {
		t.Fatalf("got status %s, want re-queued after first failure (MaxRetries=1)", got.Status)
	}
	if got.Attempts != 1 {
		t.Fatalf("got attempts %d, want 1", got.Attempts)
	}

	// RetryAfter hasn't elapsed yet, so it should be ineligible immediately.
	_, ok, _ := q.Dequeue(ctx)
	if ok {
		t.Fatal("expected the retry delay to make the task ineligible immediately")
	}

	time.Sleep(20 * time.Millisecond)
	t2, ok, err := q.Dequeue(ctx)
	if err != nil || !ok {
		t.Fatalf("dequeue after retry delay: %v %v", ok, err)
	}
	if err := q.Fail(ctx, t2.ID, "boom again"); err != nil {
		t.Fatalf("fail again: %v", err)
	}

	final, _, _ := q.Get(ctx, "flaky")
	if final.Status != StatusFailed {
		t.Fatalf("got status %s, want failed (attempts=2 > MaxRetries=1)", final.Status)
	}
}

func TestFail_MaxRetriesZero_IsTerminalOnFirstFailure(t *testing.T) {
	q := newTestQueue()
	ctx := context.Background()
	mustEnqueue(t, q, &Task{ID: "onceonly", Priority: PriorityMedium, MaxRetries: 0})
	q.Dequeue(ctx)

	if err := q.Fail(ctx, "onceonly", "nope"); err != nil {
		t.Fatalf("fail: %v", err)
	}

	got, _, _ := q.Get(ctx, "onceonly")
	if got.Status != StatusFailed {
		t.Fatalf("got status %s, want failed immediately when MaxRetries=0", got.Status)
	}
}

func TestRecoverExpired_ReEnqueuesAbandonedTask(t *testing.T) {
	q := newTestQueue()
	ctx := context.Background()
	mustEnqueue(t, q, &Task{ID: "abandoned", Priority: PriorityMedium})
	q.Dequeue(ctx) // now in-flight, visibility timeout 50ms

	time.Sleep(70 * time.Millisecond)
	n, err := q.RecoverExpired(ctx)
	if err != nil {
		t.Fatalf("recover: %v", err)
	}
	if n != 1 {
		t.Fatalf("got %d recovered, want 1", n)
	}

	got, _, _ := q.Get(ctx, "abandoned")
	if got.Status != StatusQueued {
		t.Fatalf("got status %s, want re-queued", got.Status)
	}
	if got.Attempts != 0 {
		t.Fatalf("got attempts %d, want unchanged at 0 (a timeout is not a retry attempt)", got.Attempts)
	}
}

func TestStats_ReflectsQueueDepthAndTerminalCounts(t *testing.T) {
	q := newTestQueue()
	ctx := context.Background()
	mustEnqueue(t, q, &Task{ID: "a", Priority: PriorityLow})
	mustEnqueue(t, q, &Task{ID: "b", Priority: PriorityUrgent})

	stats, err := q.Stats(ctx)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.Queued[PriorityLow] != 1 || stats.Queued[PriorityUrgent] != 1 {
		t.Fatalf("unexpected queue depths: %+v", stats.Queued)
	}

	q.Dequeue(ctx)
	q.Complete(ctx, "b", nil)

	stats, _ = q.Stats(ctx)
	if stats.Completed != 1 {
		t.Fatalf("got completed %d, want 1", stats.Completed)
	}
}
