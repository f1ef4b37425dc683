package mapping

import (
	"context"

	metrics "github.com/rcrowley/go-metrics"
)

// Persist is the interface for loading and storing serialized mapping
// snapshots. The given string identity corresponds to the content, which is
// immutable (never modified).
type Persist interface {
	// Store makes the given bytes accessible by the given name.
	Store(context.Context, string, []byte) error
	// Load retrieves the previously-stored bytes by the given name.
	Load(context.Context, string) ([]byte, error)
}

// Config controls how coordinators report on themselves and how snapshots
// are persisted and loaded. The zero Config is usable for coordinators
// that are never saved.
type Config struct {
	// StoreSnapshotsWith is used to store and load serialized snapshots.
	StoreSnapshotsWith Persist

	// Marshal function, defaults to EncodeJSON.
	Marshal func(*Mapping) ([]byte, error)

	// Unmarshal function, defaults to ParseJSON.
	Unmarshal func([]byte) (*Mapping, error)

	// SnapshotCache caches decoded snapshots and may be shared across
	// coordinators using the same Persist.
	SnapshotCache SnapshotCache

	// Metrics receives the commit, no-op and conflict counters and the
	// merge timer of each coordinator, under "mapping.<name>.". Defaults to
	// a registry private to the coordinator.
	Metrics metrics.Registry

	// Debug logs a dump of every committed mapping.
	Debug bool
}

func (c Config) withDefaults() Config {
	if c.Marshal == nil {
		c.Marshal = EncodeJSON
	}
	if c.Unmarshal == nil {
		c.Unmarshal = ParseJSON
	}
	if c.Metrics == nil {
		c.Metrics = metrics.NewRegistry()
	}
	return c
}

// SnapshotRef identifies a version of a mapping whose snapshot is accessible
// in the persistent store.
type SnapshotRef struct {
	Link       string
	Generation uint64
}

// Save stores the mapping as a content-addressed snapshot and returns a
// reference to it. Saving a mapping whose content was already saved stores
// nothing.
func Save(ctx context.Context, m *Mapping, cfg Config) (SnapshotRef, error) {
	cfg = cfg.withDefaults()
	link, err := m.store(ctx, cfg.StoreSnapshotsWith, cfg.SnapshotCache, cfg.Marshal)
	if err != nil {
		return SnapshotRef{}, err
	}
	return SnapshotRef{Link: link, Generation: m.generation}, nil
}

// Load retrieves the snapshot the reference names.
func Load(ctx context.Context, ref SnapshotRef, cfg Config) (*Mapping, error) {
	cfg = cfg.withDefaults()
	m, err := loadSnapshot(ctx, cfg.StoreSnapshotsWith, cfg.SnapshotCache, cfg.Unmarshal, ref.Link)
	if err != nil {
		return nil, err
	}
	return m.withGeneration(ref.Generation), nil
}
