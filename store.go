package mapping

import (
	"context"
	"fmt"
)

func (m *Mapping) store(
	ctx context.Context,
	persist Persist,
	cache SnapshotCache,
	marshal func(*Mapping) ([]byte, error),
) (string, error) {
	if persist == nil {
		return "", fmt.Errorf("no persistence mechanism set; set Config.StoreSnapshotsWith")
	}
	encoded, err := marshal(m)
	if err != nil {
		return "", fmt.Errorf("marshal: %w", err)
	}
	link := contentName(encoded)
	if cache != nil && cache.Contains(link) {
		return link, nil
	}
	err = persist.Store(ctx, link, encoded)
	if err != nil {
		return "", fmt.Errorf("persist store: %w", err)
	}
	if cache != nil {
		cache.Add(link, m)
	}
	return link, nil
}

func loadSnapshot(
	ctx context.Context,
	persist Persist,
	cache SnapshotCache,
	unmarshal func([]byte) (*Mapping, error),
	link string,
) (*Mapping, error) {
	if cache != nil {
		if m, ok := cache.Get(link); ok {
			return m.(*Mapping), nil
		}
	}
	if persist == nil {
		return nil, fmt.Errorf("no persistence mechanism set; set Config.StoreSnapshotsWith")
	}
	encoded, err := persist.Load(ctx, link)
	if err != nil {
		return nil, fmt.Errorf("persist load %s: %w", link, err)
	}
	if got := contentName(encoded); got != link {
		return nil, fmt.Errorf("snapshot %s has content named %s", link, got)
	}
	m, err := unmarshal(encoded)
	if err != nil {
		return nil, fmt.Errorf("unmarshaling %s: %w", link, err)
	}
	if cache != nil {
		cache.Add(link, m)
	}
	return m, nil
}

// withGeneration returns the mapping, or a copy sharing all its nodes, with
// the given generation.
func (m *Mapping) withGeneration(generation uint64) *Mapping {
	if m.generation == generation {
		return m
	}
	return &Mapping{
		root:             m.root,
		metadata:         m.metadata,
		meta:             m.meta,
		dateDetection:    m.dateDetection,
		numericDetection: m.numericDetection,
		generation:       generation,
	}
}
