package regconst

import (
	"fmt"
	"sort"
	"sync"
)

// Registry tracks known constants versions and which one is active.
// Engines hold their Set by explicit reference: swapping the active version
// never changes an in-flight computation, and historical versions remain
// addressable for re-deriving old results.
type Registry struct {
	mu     sync.RWMutex
	sets   map[string]*Set
	active string
}

// NewRegistry returns a registry seeded with the built-in KSERC set as the
// active version.
func NewRegistry() *Registry {
	r := &Registry{sets: make(map[string]*Set)}
	r.sets[KSERCVersion] = KSERC()
	r.active = KSERCVersion
	return r
}

// Register adds a constants version. Versions are write-once: registering
// the same version twice is an error even if the parameters match.
func (r *Registry) Register(s *Set) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.sets[s.Version()]; exists {
		return fmt.Errorf("constants version %s already registered", s.Version())
	}
	r.sets[s.Version()] = s
	return nil
}

func (r *Registry) Get(version string) (*Set, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sets[version]
	return s, ok
}

// SetActive switches which version new computations default to.
func (r *Registry) SetActive(version string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sets[version]; !ok {
		return fmt.Errorf("unknown constants version %s", version)
	}
	r.active = version
	return nil
}

// Active returns the currently active constants set.
func (r *Registry) Active() *Set {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sets[r.active]
}

// Versions lists registered versions in sorted order.
func (r *Registry) Versions() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.sets))
	for v := range r.sets {
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}
