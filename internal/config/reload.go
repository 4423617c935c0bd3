package config

import (
	"context"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/corebridge/platform-core/internal/cache"
	"github.com/corebridge/platform-core/internal/ratelimit"
)

func dirOf(path string) string {
	return filepath.Dir(path)
}

func matchesTarget(eventName, path string) bool {
	absEvent, err := filepath.Abs(eventName)
	if err != nil {
		return false
	}
	absTarget, err := filepath.Abs(path)
	if err != nil {
		return false
	}
	return absEvent == absTarget
}

// Reloader watches a config file and, on change, re-reads it and pushes the
// rate-limit and cache sections into the already-running Limiter/Manager
// via their UpdateConfig/UpdateCategoryConfig methods. It never swaps the
// Limiter or Manager themselves — those are constructed once at startup and
// live for the process — it only updates the per-tier/per-category budgets
// inside them, each swap happening under that component's own lock so a
// reload never observes a torn configuration. Grounded on the teacher's
// internal/skills.Manager.StartWatching debounce-then-refresh idiom.
type Reloader struct {
	path    string
	limiter *ratelimit.Limiter
	cache   *cache.Manager
	log     *slog.Logger

	debounce time.Duration

	mu      sync.Mutex
	watcher *fsnotify.Watcher
}

// NewReloader builds a Reloader for path. limiter and cache may be nil if a
// deployment only wants one of the two reloaded.
func NewReloader(path string, limiter *ratelimit.Limiter, cacheMgr *cache.Manager, log *slog.Logger) *Reloader {
	if log == nil {
		log = slog.Default()
	}
	return &Reloader{path: path, limiter: limiter, cache: cacheMgr, log: log, debounce: 250 * time.Millisecond}
}

// Watch starts watching the config file's directory (fsnotify does not
// reliably follow rename-over-replace on a single file path across every
// platform, so the directory is watched instead) until ctx is cancelled.
func (r *Reloader) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := watcher.Add(dirOf(r.path)); err != nil {
		watcher.Close()
		return err
	}

	r.mu.Lock()
	r.watcher = watcher
	r.mu.Unlock()

	go r.loop(ctx, watcher)
	return nil
}

// Close stops watching.
func (r *Reloader) Close() error {
	r.mu.Lock()
	w := r.watcher
	r.watcher = nil
	r.mu.Unlock()
	if w == nil {
		return nil
	}
	return w.Close()
}

func (r *Reloader) loop(ctx context.Context, watcher *fsnotify.Watcher) {
	var debounceMu sync.Mutex
	var timer *time.Timer

	schedule := func() {
		debounceMu.Lock()
		defer debounceMu.Unlock()
		if timer != nil {
			timer.Stop()
		}
		timer = time.AfterFunc(r.debounce, r.reload)
	}

	for {
		select {
		case <-ctx.Done():
			watcher.Close()
			return
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if matchesTarget(event.Name, r.path) && event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0 {
				schedule()
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			r.log.Warn("config watch error", "error", err)
		}
	}
}

func (r *Reloader) reload() {
	cfg, err := Load(r.path)
	if err != nil {
		r.log.Warn("config reload failed, keeping previous configuration", "error", err)
		return
	}

	if r.limiter != nil {
		for tier, tierCfg := range cfg.RateLimit {
			r.limiter.UpdateConfig(tier, ratelimit.Config{
				Capacity:       tierCfg.Capacity,
				RefillTokens:   tierCfg.RefillTokens,
				RefillInterval: tierCfg.RefillInterval,
				MaxWait:        tierCfg.MaxWait,
			})
		}
	}

	if r.cache != nil {
		for category, catCfg := range cfg.Cache {
			r.cache.UpdateCategoryConfig(cache.Category(category), cache.CategoryConfig{
				MaxEntries: catCfg.MaxEntries,
				MaxBytes:   catCfg.MaxBytes,
				DefaultTTL: catCfg.DefaultTTL,
			})
		}
	}

	r.log.Info("config reloaded", "path", r.path)
}
