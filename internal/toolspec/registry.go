package toolspec

import (
	"sort"
	"strings"
	"sync"

	"github.com/corebridge/platform-core/internal/apperr"
)

// Registry holds every known Descriptor and Preset. It is the source of
// truth internal/dispatcher resolves policy against; it does not itself
// know about allow/deny rules or token-kind gating (spec.md §4.1) — that is
// the dispatcher's concern, layered on top.
type Registry struct {
	mu        sync.RWMutex
	tools     map[string]Descriptor
	presets   map[string]Preset
	providers map[string][]string // provider -> tool names, for ByProvider lookups
}

// NewRegistry builds an empty Registry seeded with the default presets.
func NewRegistry() *Registry {
	r := &Registry{
		tools:     make(map[string]Descriptor),
		presets:   make(map[string]Preset),
		providers: make(map[string][]string),
	}
	for name, p := range DefaultPresets() {
		r.presets[name] = p
	}
	return r
}

// Register adds a Descriptor. Re-registering an existing name replaces it,
// matching the teacher's hot-reloadable tool registration path.
func (r *Registry) Register(d Descriptor) error {
	if err := d.validate(); err != nil {
		return err
	}
	if d.Provider == "" {
		if idx := strings.Index(d.Name, "."); idx > 0 {
			d.Provider = d.Name[:idx]
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[d.Name] = d
	if !containsStr(r.providers[d.Provider], d.Name) {
		r.providers[d.Provider] = append(r.providers[d.Provider], d.Name)
	}
	return nil
}

func containsStr(haystack []string, needle string) bool {
	for _, s := range haystack {
		if s == needle {
			return true
		}
	}
	return false
}

// RegisterPreset adds or replaces a named preset.
func (r *Registry) RegisterPreset(p Preset) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.presets[p.Name] = p
}

// Get returns the descriptor for a canonical name.
func (r *Registry) Get(name string) (Descriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.tools[name]
	return d, ok
}

// MustGet returns the descriptor for name or a typed ToolNotFound error.
func (r *Registry) MustGet(name string) (Descriptor, error) {
	d, ok := r.Get(name)
	if !ok {
		return Descriptor{}, apperr.ToolNotFound(name)
	}
	return d, nil
}

// Preset returns a registered preset by name.
func (r *Registry) Preset(name string) (Preset, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.presets[name]
	return p, ok
}

// Names returns every registered canonical tool name, sorted for
// deterministic listTools output.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.tools))
	for name := range r.tools {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// ByProvider returns every tool name registered under a given provider.
func (r *Registry) ByProvider(provider string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, len(r.providers[provider]))
	copy(out, r.providers[provider])
	sort.Strings(out)
	return out
}

// CasingTable builds a Table over every currently-registered tool name for
// the given casing. Rebuild after registering new tools.
func (r *Registry) CasingTable(casing Casing) (*Table, error) {
	return NewTable(casing, r.Names())
}
