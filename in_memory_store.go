package mapping

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// InMemoryStore is a Persist that keeps snapshots in a map, usually for
// testing.
type InMemoryStore struct {
	entries map[string][]byte
	l       sync.Mutex
}

// NewInMemoryStore provides a Persist that stores serialized snapshots in a map.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{}
}

func (ims *InMemoryStore) Store(ctx context.Context, key string, value []byte) error {
	ims.l.Lock()
	if ims.entries == nil {
		ims.entries = map[string][]byte{}
	}
	ims.entries[key] = append([]byte(nil), value...)
	ims.l.Unlock()
	return nil
}

func (ims *InMemoryStore) Load(ctx context.Context, key string) ([]byte, error) {
	ims.l.Lock()
	value, ok := ims.entries[key]
	ims.l.Unlock()
	if !ok {
		return nil, fmt.Errorf("in-memory snapshot not found for %s", key)
	}
	return append([]byte(nil), value...), nil
}

// Names lists the stored snapshot names, sorted.
func (ims *InMemoryStore) Names() []string {
	ims.l.Lock()
	names := make([]string, 0, len(ims.entries))
	for k := range ims.entries {
		names = append(names, k)
	}
	ims.l.Unlock()
	sort.Strings(names)
	return names
}
