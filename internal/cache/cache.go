// Package cache implements the category-partitioned cache manager of
// spec.md §4.3: independent LRU partitions with per-category byte/entry
// budgets and TTLs, generalized from the teacher's single-purpose
// deduplication cache (github.com/haasonsaas/nexus/internal/cache/dedupe.go)
// into a general key/value store with hit-rate metrics.
package cache

import (
	"hash/fnv"
	"sync"
	"sync/atomic"
	"time"
)

// Category is a closed enum of the partitions a deployment may configure
// independently. An unrecognized category always falls back to General.
type Category string

const (
	CategoryUserInfo        Category = "userInfo"
	CategoryChatInfo        Category = "chatInfo"
	CategoryDepartmentInfo  Category = "departmentInfo"
	CategoryAppInfo         Category = "appInfo"
	CategoryAppTokens       Category = "appTokens"
	CategoryTableSchema     Category = "tableSchema"
	CategoryUserPermissions Category = "userPermissions"
	CategoryGeneral         Category = "general"
)

var allCategories = []Category{
	CategoryUserInfo, CategoryChatInfo, CategoryDepartmentInfo, CategoryAppInfo,
	CategoryAppTokens, CategoryTableSchema, CategoryUserPermissions, CategoryGeneral,
}

// CategoryConfig is one partition's budget.
type CategoryConfig struct {
	MaxEntries int
	MaxBytes   int64
	DefaultTTL time.Duration
}

func (c CategoryConfig) normalized() CategoryConfig {
	if c.MaxEntries <= 0 {
		c.MaxEntries = 1000
	}
	if c.MaxBytes <= 0 {
		c.MaxBytes = 8 << 20 // 8 MiB
	}
	return c
}

// Metrics is a partition's point-in-time counters. Hit/miss counts are
// sampled via atomics rather than taken under the partition's mutex on every
// operation, matching spec.md §4.3's "metrics must not add entry-path
// contention" requirement.
type Metrics struct {
	Entries int
	Bytes   int64
	Hits    int64
	Misses  int64
}

func (m Metrics) HitRate() float64 {
	total := m.Hits + m.Misses
	if total == 0 {
		return 0
	}
	return float64(m.Hits) / float64(total)
}

// entry is one cached value. The original key is retained alongside its
// hash so that a hash collision never conflates two distinct keys — see
// partition.bucketFor.
type entry struct {
	key          string
	value        any
	bytes        int64
	expiresAt    time.Time // zero means no expiry
	lastAccessed time.Time
	hitCount     int64
}

func (e *entry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && !now.Before(e.expiresAt)
}

// partition is one category's independent store. Entries are kept in
// hash buckets (not a plain map[string]*entry) so key hashing can be swapped
// for a non-cryptographic scheme without losing the ability to disambiguate
// colliding hashes by comparing the retained original key.
type partition struct {
	mu      sync.Mutex
	cfg     CategoryConfig
	buckets map[uint64][]*entry
	count   int
	bytes   int64

	hits   atomic.Int64
	misses atomic.Int64
}

func newPartition(cfg CategoryConfig) *partition {
	return &partition{cfg: cfg.normalized(), buckets: make(map[uint64][]*entry)}
}

func hashKey(key string) uint64 {
	h := fnv.New64a()
	h.Write([]byte(key))
	return h.Sum64()
}

// find locates an entry by original key within its hash bucket. It must be
// called with mu held.
func (p *partition) find(key string) (*entry, uint64) {
	h := hashKey(key)
	for _, e := range p.buckets[h] {
		if e.key == key {
			return e, h
		}
	}
	return nil, h
}

func (p *partition) get(key string, now time.Time) (any, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	e, _ := p.find(key)
	if e == nil || e.expired(now) {
		p.misses.Add(1)
		return nil, false
	}
	e.lastAccessed = now
	e.hitCount++
	p.hits.Add(1)
	return e.value, true
}

func (p *partition) has(key string, now time.Time) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	e, _ := p.find(key)
	return e != nil && !e.expired(now)
}

// set stores value under key with the given approximate size in bytes and a
// TTL: a negative value uses the partition's DefaultTTL (itself zero means
// never expires); a TTL of exactly zero is the spec.md §8 boundary case and
// makes the entry expire immediately, so it is never hit; a positive value
// is used as given. It evicts expired entries first, then the
// least-recently-used entries, until the new value fits; if it still does
// not fit (e.g. a single value larger than MaxBytes) the set is a no-op.
func (p *partition) set(key string, value any, size int64, ttl time.Duration, now time.Time) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if size > p.cfg.MaxBytes {
		return
	}

	if existing, h := p.find(key); existing != nil {
		p.bytes -= existing.bytes
		p.removeLocked(existing, h)
	}

	p.evictExpiredLocked(now)
	for p.count >= p.cfg.MaxEntries || p.bytes+size > p.cfg.MaxBytes {
		if !p.evictOneLRULocked() {
			return
		}
	}

	expiresAt := time.Time{}
	switch {
	case ttl > 0:
		expiresAt = now.Add(ttl)
	case ttl == 0:
		expiresAt = now
	case p.cfg.DefaultTTL > 0:
		expiresAt = now.Add(p.cfg.DefaultTTL)
	}

	e := &entry{key: key, value: value, bytes: size, expiresAt: expiresAt, lastAccessed: now}
	h := hashKey(key)
	p.buckets[h] = append(p.buckets[h], e)
	p.count++
	p.bytes += size
}

func (p *partition) removeLocked(e *entry, h uint64) {
	bucket := p.buckets[h]
	for i, cand := range bucket {
		if cand == e {
			p.buckets[h] = append(bucket[:i], bucket[i+1:]...)
			if len(p.buckets[h]) == 0 {
				delete(p.buckets, h)
			}
			p.count--
			return
		}
	}
}

func (p *partition) evictExpiredLocked(now time.Time) {
	for h, bucket := range p.buckets {
		kept := bucket[:0]
		for _, e := range bucket {
			if e.expired(now) {
				p.bytes -= e.bytes
				p.count--
				continue
			}
			kept = append(kept, e)
		}
		if len(kept) == 0 {
			delete(p.buckets, h)
		} else {
			p.buckets[h] = kept
		}
	}
}

// evictOneLRULocked removes the single least-recently-accessed entry. It
// reports false if the partition is already empty.
func (p *partition) evictOneLRULocked() bool {
	var oldest *entry
	var oldestHash uint64
	for h, bucket := range p.buckets {
		for _, e := range bucket {
			if oldest == nil || e.lastAccessed.Before(oldest.lastAccessed) {
				oldest, oldestHash = e, h
			}
		}
	}
	if oldest == nil {
		return false
	}
	p.bytes -= oldest.bytes
	p.removeLocked(oldest, oldestHash)
	return true
}

func (p *partition) delete(key string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if e, h := p.find(key); e != nil {
		p.bytes -= e.bytes
		p.removeLocked(e, h)
	}
}

func (p *partition) clear() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.buckets = make(map[uint64][]*entry)
	p.count = 0
	p.bytes = 0
}

func (p *partition) metrics() Metrics {
	p.mu.Lock()
	entries, bytes := p.count, p.bytes
	p.mu.Unlock()
	return Metrics{
		Entries: entries,
		Bytes:   bytes,
		Hits:    p.hits.Load(),
		Misses:  p.misses.Load(),
	}
}

func (p *partition) updateConfig(cfg CategoryConfig) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cfg = cfg.normalized()
	now := time.Now()
	p.evictExpiredLocked(now)
	for p.count > p.cfg.MaxEntries || p.bytes > p.cfg.MaxBytes {
		if !p.evictOneLRULocked() {
			break
		}
	}
}

// Manager owns one partition per Category.
type Manager struct {
	mu         sync.RWMutex
	partitions map[Category]*partition
}

// New builds a Manager. Categories absent from cfg get normalized defaults
// so every closed-enum category is always usable.
func New(cfg map[Category]CategoryConfig) *Manager {
	m := &Manager{partitions: make(map[Category]*partition, len(allCategories))}
	for _, c := range allCategories {
		pc, ok := cfg[c]
		if !ok {
			pc = CategoryConfig{}
		}
		m.partitions[c] = newPartition(pc)
	}
	return m
}

func (m *Manager) partitionFor(category Category) *partition {
	m.mu.RLock()
	p, ok := m.partitions[category]
	m.mu.RUnlock()
	if ok {
		return p
	}
	return m.partitionFor(CategoryGeneral)
}

func (m *Manager) Get(category Category, key string) (any, bool) {
	return m.partitionFor(category).get(key, time.Now())
}

func (m *Manager) Has(category Category, key string) bool {
	return m.partitionFor(category).has(key, time.Now())
}

// Set stores value under key in category. size is the caller's estimate of
// the value's footprint in bytes, used for the partition's MaxBytes budget.
// A negative ttl uses the category's DefaultTTL (itself zero meaning never
// expires); a ttl of exactly 0 means the entry is never hit (spec.md §8); a
// positive ttl is used as given.
func (m *Manager) Set(category Category, key string, value any, size int64, ttl time.Duration) {
	m.partitionFor(category).set(key, value, size, ttl, time.Now())
}

func (m *Manager) Delete(category Category, key string) {
	m.partitionFor(category).delete(key)
}

func (m *Manager) ClearCategory(category Category) {
	m.partitionFor(category).clear()
}

func (m *Manager) Clear() {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, p := range m.partitions {
		p.clear()
	}
}

func (m *Manager) Metrics(category Category) Metrics {
	return m.partitionFor(category).metrics()
}

func (m *Manager) AllMetrics() map[Category]Metrics {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[Category]Metrics, len(m.partitions))
	for c, p := range m.partitions {
		out[c] = p.metrics()
	}
	return out
}

// UpdateCategoryConfig applies a live reconfiguration to one category, as
// driven by internal/config's hot-reload watcher. Shrinking a budget evicts
// immediately rather than waiting for the next Set.
func (m *Manager) UpdateCategoryConfig(category Category, cfg CategoryConfig) {
	m.partitionFor(category).updateConfig(cfg)
}
