package breaker

import (
	"sort"
	"sync"
	"time"
)

// Registry hands out one breaker per dependency class. It is injected into
// the executor rather than reached through package state, so tests and
// side-by-side coordinators keep isolated breaker histories.
type Registry struct {
	threshold int
	cooldown  time.Duration
	opts      []Option

	mu       sync.RWMutex
	breakers map[string]*Breaker
}

// NewRegistry constructs a registry whose breakers share the given threshold
// and cooldown. Options are applied to every breaker the registry creates.
func NewRegistry(threshold int, cooldown time.Duration, opts ...Option) *Registry {
	return &Registry{
		threshold: threshold,
		cooldown:  cooldown,
		opts:      opts,
		breakers:  make(map[string]*Breaker),
	}
}

// Get returns the breaker for the named dependency class, creating it on
// first use. Callers for the same name always observe the same instance.
func (r *Registry) Get(name string) *Breaker {
	r.mu.RLock()
	b, ok := r.breakers[name]
	r.mu.RUnlock()
	if ok {
		return b
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if b, ok := r.breakers[name]; ok {
		return b
	}
	b = New(name, r.threshold, r.cooldown, r.opts...)
	r.breakers[name] = b
	return b
}

// Snapshots returns a point-in-time view of every breaker, sorted by name.
func (r *Registry) Snapshots() []Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	snaps := make([]Snapshot, 0, len(r.breakers))
	for _, b := range r.breakers {
		snaps = append(snaps, b.Snapshot())
	}
	sort.Slice(snaps, func(i, j int) bool { return snaps[i].Name < snaps[j].Name })
	return snaps
}
