package cache

import (
	"testing"
	"time"
)

func TestSetGet_RoundTrips(t *testing.T) {
	m := New(map[Category]CategoryConfig{
		CategoryUserInfo: {MaxEntries: 10, MaxBytes: 1 << 20},
	})

	m.Set(CategoryUserInfo, "user:1", "alice", 5, -1)

	v, ok := m.Get(CategoryUserInfo, "user:1")
	if !ok || v != "alice" {
		t.Fatalf("got (%v, %v), want (alice, true)", v, ok)
	}
}

func TestGet_Miss(t *testing.T) {
	m := New(nil)
	if _, ok := m.Get(CategoryGeneral, "missing"); ok {
		t.Fatal("expected a miss for an absent key")
	}
}

func TestCategories_AreIndependent(t *testing.T) {
	m := New(map[Category]CategoryConfig{
		CategoryUserInfo: {MaxEntries: 1, MaxBytes: 1 << 20},
		CategoryChatInfo: {MaxEntries: 1, MaxBytes: 1 << 20},
	})

	m.Set(CategoryUserInfo, "k", "user-value", 1, -1)
	m.Set(CategoryChatInfo, "k", "chat-value", 1, -1)

	uv, _ := m.Get(CategoryUserInfo, "k")
	cv, _ := m.Get(CategoryChatInfo, "k")
	if uv != "user-value" || cv != "chat-value" {
		t.Fatalf("categories leaked into each other: user=%v chat=%v", uv, cv)
	}
}

func TestTTL_Expiry(t *testing.T) {
	m := New(map[Category]CategoryConfig{
		CategoryGeneral: {MaxEntries: 10, MaxBytes: 1 << 20},
	})
	m.Set(CategoryGeneral, "k", "v", 1, 10*time.Millisecond)

	if _, ok := m.Get(CategoryGeneral, "k"); !ok {
		t.Fatal("expected a hit before TTL elapses")
	}

	time.Sleep(25 * time.Millisecond)
	if _, ok := m.Get(CategoryGeneral, "k"); ok {
		t.Fatal("expected a miss after TTL elapses")
	}
}

func TestTTL_Zero_IsNeverHit(t *testing.T) {
	m := New(map[Category]CategoryConfig{
		CategoryGeneral: {MaxEntries: 10, MaxBytes: 1 << 20},
	})
	m.Set(CategoryGeneral, "k", "v", 1, 0)

	if _, ok := m.Get(CategoryGeneral, "k"); ok {
		t.Fatal("a TTL of exactly 0 must mean the entry is never hit (spec.md §8)")
	}
}

func TestEviction_MaxEntries_LRU(t *testing.T) {
	m := New(map[Category]CategoryConfig{
		CategoryGeneral: {MaxEntries: 2, MaxBytes: 1 << 20},
	})

	m.Set(CategoryGeneral, "a", 1, 1, -1)
	m.Set(CategoryGeneral, "b", 2, 1, -1)
	m.Get(CategoryGeneral, "a") // touch a so b is the LRU victim
	m.Set(CategoryGeneral, "c", 3, 1, -1)

	if _, ok := m.Get(CategoryGeneral, "b"); ok {
		t.Fatal("expected b to be evicted as the least-recently-used entry")
	}
	if _, ok := m.Get(CategoryGeneral, "a"); !ok {
		t.Fatal("a was touched most recently and should survive eviction")
	}
	if _, ok := m.Get(CategoryGeneral, "c"); !ok {
		t.Fatal("c was just inserted and should be present")
	}
}

func TestEviction_MaxBytes(t *testing.T) {
	m := New(map[Category]CategoryConfig{
		CategoryGeneral: {MaxEntries: 100, MaxBytes: 10},
	})

	m.Set(CategoryGeneral, "a", "a-value", 6, -1)
	m.Set(CategoryGeneral, "b", "b-value", 6, -1)

	metrics := m.Metrics(CategoryGeneral)
	if metrics.Bytes > 10 {
		t.Fatalf("byte budget exceeded: %d > 10", metrics.Bytes)
	}
	if _, ok := m.Get(CategoryGeneral, "a"); ok {
		t.Fatal("a should have been evicted to make room for b under the byte budget")
	}
}

func TestSet_OversizedValue_IsNoop(t *testing.T) {
	m := New(map[Category]CategoryConfig{
		CategoryGeneral: {MaxEntries: 100, MaxBytes: 10},
	})

	m.Set(CategoryGeneral, "huge", "value", 100, -1)

	if _, ok := m.Get(CategoryGeneral, "huge"); ok {
		t.Fatal("a value larger than the partition's entire byte budget must never be stored")
	}
	if m.Metrics(CategoryGeneral).Entries != 0 {
		t.Fatal("rejecting an oversized set must not leave a dangling entry")
	}
}

func TestDelete(t *testing.T) {
	m := New(nil)
	m.Set(CategoryGeneral, "k", "v", 1, -1)
	m.Delete(CategoryGeneral, "k")
	if _, ok := m.Get(CategoryGeneral, "k"); ok {
		t.Fatal("expected key to be gone after Delete")
	}
}

func TestClearCategory_OnlyAffectsThatCategory(t *testing.T) {
	m := New(nil)
	m.Set(CategoryUserInfo, "k", "v", 1, -1)
	m.Set(CategoryChatInfo, "k", "v", 1, -1)

	m.ClearCategory(CategoryUserInfo)

	if _, ok := m.Get(CategoryUserInfo, "k"); ok {
		t.Fatal("expected userInfo to be cleared")
	}
	if _, ok := m.Get(CategoryChatInfo, "k"); !ok {
		t.Fatal("chatInfo should be untouched by clearing userInfo")
	}
}

func TestUnknownCategory_FallsBackToGeneral(t *testing.T) {
	m := New(nil)
	m.Set(Category("not-a-real-category"), "k", "v", 1, -1)

	if _, ok := m.Get(CategoryGeneral, "k"); !ok {
		t.Fatal("an unrecognized category should be routed to general")
	}
}

func TestMetrics_HitRate(t *testing.T) {
	m := New(nil)
	m.Set(CategoryGeneral, "k", "v", 1, -1)
	m.Get(CategoryGeneral, "k")
	m.Get(CategoryGeneral, "k")
	m.Get(CategoryGeneral, "missing")

	metrics := m.Metrics(CategoryGeneral)
	if metrics.Hits != 2 || metrics.Misses != 1 {
		t.Fatalf("got hits=%d misses=%d, want 2/1", metrics.Hits, metrics.Misses)
	}
	if rate := metrics.HitRate(); rate < 0.66 || rate > 0.67 {
		t.Fatalf("got hit rate %f, want ~0.667", rate)
	}
}

func TestUpdateCategoryConfig_ShrinkEvictsImmediately(t *testing.T) {
	m := New(map[Category]CategoryConfig{
		CategoryGeneral: {MaxEntries: 10, MaxBytes: 1 << 20},
	})
	m.Set(CategoryGeneral, "a", "v", 1, -1)
	m.Set(CategoryGeneral, "b", "v", 1, -1)
	m.Set(CategoryGeneral, "c", "v", 1, -1)

	m.UpdateCategoryConfig(CategoryGeneral, CategoryConfig{MaxEntries: 1, MaxBytes: 1 << 20})

	if m.Metrics(CategoryGeneral).Entries != 1 {
		t.Fatalf("expected immediate eviction down to the new MaxEntries, got %d", m.Metrics(CategoryGeneral).Entries)
	}
}
