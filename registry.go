package mapping

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	log "github.com/couchbase/clog"
	"github.com/davecgh/go-spew/spew"
	metrics "github.com/rcrowley/go-metrics"
)

// LogKey enables the per-commit log lines of coordinators, via
// clog.EnableKey(LogKey).
const LogKey = "mapping"

// Coordinator owns the authoritative mapping of one name. Any number of
// goroutines may Read it without blocking, while ApplyUpdate serializes
// the read-latest, merge, swap sequence so that every commit merges against
// the mapping the previous commit published.
type Coordinator struct {
	name    string
	cfg     Config
	current atomic.Pointer[Mapping]
	mu      sync.Mutex

	commits    metrics.Counter
	noops      metrics.Counter
	conflicts  metrics.Counter
	mergeTimer metrics.Timer
}

// NewCoordinator builds the initial mapping onto the empty one and
// publishes it. A nil initial mapping starts empty.
func NewCoordinator(name string, initial *Mapping, cfg Config) (*Coordinator, error) {
	m, err := Merge(Empty(), initial, InitialBuild)
	if err != nil {
		return nil, fmt.Errorf("initial mapping [%s]: %w", name, err)
	}
	return newCoordinator(name, m, cfg), nil
}

func newCoordinator(name string, m *Mapping, cfg Config) *Coordinator {
	cfg = cfg.withDefaults()
	r := metrics.NewPrefixedChildRegistry(cfg.Metrics, "mapping."+name+".")
	c := &Coordinator{
		name:       name,
		cfg:        cfg,
		commits:    metrics.GetOrRegisterCounter("commits", r),
		noops:      metrics.GetOrRegisterCounter("noops", r),
		conflicts:  metrics.GetOrRegisterCounter("conflicts", r),
		mergeTimer: metrics.GetOrRegisterTimer("merge", r),
	}
	c.current.Store(m)
	return c
}

// LoadCoordinator starts a coordinator from a saved snapshot.
func LoadCoordinator(ctx context.Context, name string, ref SnapshotRef, cfg Config) (*Coordinator, error) {
	m, err := Load(ctx, ref, cfg)
	if err != nil {
		return nil, fmt.Errorf("load [%s]: %w", name, err)
	}
	log.Printf("mapping: %s: loaded generation %d from %s", name, ref.Generation, ref.Link)
	return newCoordinator(name, m, cfg), nil
}

// Name returns the name the coordinator was created with.
func (c *Coordinator) Name() string { return c.name }

// Read returns the current mapping. It never blocks; the mapping returned
// is immutable, but a later Read may return a newer one.
func (c *Coordinator) Read() *Mapping { return c.current.Load() }

// Lookup resolves a path against the current mapping.
func (c *Coordinator) Lookup(path string) (Node, bool) {
	return c.Read().Lookup(path)
}

// ApplyUpdate merges delta into the latest mapping and publishes the
// result. On a conflict nothing is published and the error is returned;
// the delta is not retried. A delta that changes nothing, such as one
// already applied by a racing writer, publishes nothing and returns the
// current mapping.
func (c *Coordinator) ApplyUpdate(delta *Mapping, reason MergeReason) (*Mapping, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	base := c.current.Load()
	start := time.Now()
	merged, err := Merge(base, delta, reason)
	c.mergeTimer.UpdateSince(start)
	if err != nil {
		c.conflicts.Inc(1)
		log.Warnf("mapping: %s: %s rejected at generation %d: %v", c.name, reason, base.generation, err)
		return nil, err
	}
	if merged == base {
		c.noops.Inc(1)
		return base, nil
	}
	c.current.Store(merged)
	c.commits.Inc(1)
	added, removed, changed, err := merged.Diff(base)
	if err == nil {
		log.To(LogKey, "mapping: %s: %s committed generation %d, added: %v, removed: %v, changed: %v",
			c.name, reason, merged.generation, added, removed, changed)
	}
	if c.cfg.Debug {
		log.Printf("mapping: %s: generation %d: %s", c.name, merged.generation, spew.Sdump(merged.ToTree()))
	}
	return merged, nil
}

// Save stores the current mapping through Config.StoreSnapshotsWith.
func (c *Coordinator) Save(ctx context.Context) (SnapshotRef, error) {
	m := c.Read()
	ref, err := Save(ctx, m, c.cfg)
	if err != nil {
		return SnapshotRef{}, fmt.Errorf("save [%s]: %w", c.name, err)
	}
	return ref, nil
}

// Registry holds the coordinators of any number of named mappings. A name
// is either absent or active with a current mapping.
type Registry struct {
	cfg          Config
	mu           sync.RWMutex
	coordinators map[string]*Coordinator
}

// NewRegistry returns an empty registry whose coordinators share cfg.
func NewRegistry(cfg Config) *Registry {
	return &Registry{
		cfg:          cfg.withDefaults(),
		coordinators: map[string]*Coordinator{},
	}
}

// Get returns the coordinator of an active name.
func (r *Registry) Get(name string) (*Coordinator, error) {
	r.mu.RLock()
	c, ok := r.coordinators[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: [%s]", ErrAbsent, name)
	}
	return c, nil
}

// Create activates an absent name with the given initial mapping.
func (r *Registry) Create(name string, initial *Mapping) (*Coordinator, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.coordinators[name]; ok {
		return nil, fmt.Errorf("%w: [%s]", ErrExists, name)
	}
	c, err := NewCoordinator(name, initial, r.cfg)
	if err != nil {
		return nil, err
	}
	r.coordinators[name] = c
	return c, nil
}

// Add activates an absent name with an existing coordinator, such as one
// returned by LoadCoordinator.
func (r *Registry) Add(c *Coordinator) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.coordinators[c.name]; ok {
		return fmt.Errorf("%w: [%s]", ErrExists, c.name)
	}
	r.coordinators[c.name] = c
	return nil
}

// ApplyUpdate applies delta to the named mapping, activating the name with
// delta as its first mapping when it is absent.
func (r *Registry) ApplyUpdate(name string, delta *Mapping, reason MergeReason) (*Mapping, error) {
	r.mu.RLock()
	c, ok := r.coordinators[name]
	r.mu.RUnlock()
	if !ok {
		r.mu.Lock()
		c, ok = r.coordinators[name]
		if !ok {
			m, err := Merge(Empty(), delta, reason)
			if err != nil {
				r.mu.Unlock()
				return nil, err
			}
			c = newCoordinator(name, m, r.cfg)
			r.coordinators[name] = c
			r.mu.Unlock()
			log.Printf("mapping: %s: created by %s", name, reason)
			return m, nil
		}
		r.mu.Unlock()
	}
	return c.ApplyUpdate(delta, reason)
}

// Remove makes an active name absent. Holders of its coordinator may keep
// using it, but the registry forgets it.
func (r *Registry) Remove(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.coordinators[name]; !ok {
		return fmt.Errorf("%w: [%s]", ErrAbsent, name)
	}
	delete(r.coordinators, name)
	return nil
}

// Names lists the active names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	names := make([]string, 0, len(r.coordinators))
	for name := range r.coordinators {
		names = append(names, name)
	}
	r.mu.RUnlock()
	sort.Strings(names)
	return names
}
