package bulk

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/jrhy/mapping"
	"github.com/jrhy/mapping/docparse"
	"github.com/stretchr/testify/require"
)

var ctx = context.Background()

func mustParse(t *testing.T, s string) *mapping.Mapping {
	t.Helper()
	m, err := mapping.ParseJSON([]byte(s))
	require.NoError(t, err)
	return m
}

func newCoordinator(t *testing.T, def string) *mapping.Coordinator {
	t.Helper()
	var initial *mapping.Mapping
	if def != "" {
		initial = mustParse(t, def)
	}
	c, err := mapping.NewCoordinator("bulk", initial, mapping.Config{})
	require.NoError(t, err)
	return c
}

type collectingSink struct {
	mu   sync.Mutex
	docs map[string]*mapping.ParsedDocument
}

func (s *collectingSink) Index(_ context.Context, d *mapping.ParsedDocument) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.docs == nil {
		s.docs = map[string]*mapping.ParsedDocument{}
	}
	s.docs[d.ID] = d
	return nil
}

func TestIndexAllGrowsMapping(t *testing.T) {
	t.Parallel()
	const n = 50
	c := newCoordinator(t, "")
	sink := &collectingSink{}
	ix := New(c, sink, Options{Workers: 8})
	var docs []Doc
	for i := 0; i < n; i++ {
		docs = append(docs, Doc{
			ID:     fmt.Sprintf("d%d", i),
			Source: []byte(fmt.Sprintf(`{"title":"doc %d","f%d":%d,"nested":{"g%d":true}}`, i, i, i, i%5)),
		})
	}
	results, err := ix.IndexAll(ctx, docs)
	require.NoError(t, err)
	require.Len(t, results, n)
	for i, r := range results {
		require.Equal(t, docs[i].ID, r.ID)
		require.NoError(t, r.Err)
		require.NotNil(t, r.Parsed)
		require.Equal(t, []interface{}{int64(i)}, r.Parsed.Values(fmt.Sprintf("f%d", i)))
	}
	require.Len(t, sink.docs, n)

	m := c.Read()
	for i := 0; i < n; i++ {
		n, ok := m.Lookup(fmt.Sprintf("f%d", i))
		require.True(t, ok)
		require.Equal(t, "long", n.TypeName())
	}
	for i := 0; i < 5; i++ {
		_, ok := m.Lookup(fmt.Sprintf("nested.g%d", i))
		require.True(t, ok)
	}
	title, ok := m.Lookup("title.keyword")
	require.True(t, ok)
	require.Equal(t, "keyword", title.TypeName())
}

// conflictOnce commits a conflicting definition of field before the first
// commit of the indexer.
func conflictOnce(t *testing.T, c *mapping.Coordinator, def string) func(string) {
	var once sync.Once
	return func(string) {
		once.Do(func() {
			_, err := c.ApplyUpdate(mustParse(t, def), mapping.RuntimeUpdate)
			require.NoError(t, err)
		})
	}
}

func TestRejectOnConflict(t *testing.T) {
	t.Parallel()
	c := newCoordinator(t, "")
	ix := New(c, nil, Options{Conflicts: RejectOnConflict})
	ix.beforeApply = conflictOnce(t, c, `{"properties":{"x":{"type":"text"}}}`)
	r := ix.Index(ctx, Doc{ID: "1", Source: []byte(`{"x":5}`)})
	require.ErrorIs(t, r.Err, mapping.ErrMergeConflict)
	var terr *mapping.TypeConflictError
	require.ErrorAs(t, r.Err, &terr)
	require.Equal(t, "x", terr.Path)
	require.Equal(t, 0, r.Reparses)
	require.Nil(t, r.Parsed)
}

func TestReparseOnConflict(t *testing.T) {
	t.Parallel()
	c := newCoordinator(t, "")
	sink := &collectingSink{}
	ix := New(c, sink, Options{Conflicts: ReparseOnConflict})
	ix.beforeApply = conflictOnce(t, c, `{"properties":{"x":{"type":"text"}}}`)
	r := ix.Index(ctx, Doc{ID: "1", Source: []byte(`{"x":5,"y":"z"}`)})
	require.NoError(t, r.Err)
	require.Equal(t, 1, r.Reparses)
	require.Equal(t, []interface{}{"5"}, r.Parsed.Values("x"))
	require.Equal(t, uint64(1), r.Generation)
	require.Same(t, r.Parsed, sink.docs["1"])
	n, ok := c.Lookup("y")
	require.True(t, ok)
	require.Equal(t, "text", n.TypeName())
}

func TestReparseGivesUp(t *testing.T) {
	t.Parallel()
	c := newCoordinator(t, "")
	ix := New(c, nil, Options{Conflicts: ReparseOnConflict, MaxReparses: 2})
	next := 0
	names := []string{"a", "b", "c", "d", "e"}
	ix.beforeApply = func(string) {
		def := fmt.Sprintf(`{"properties":{"%s":{"type":"keyword"}}}`, names[next])
		next++
		_, err := c.ApplyUpdate(mustParse(t, def), mapping.RuntimeUpdate)
		require.NoError(t, err)
	}
	r := ix.Index(ctx, Doc{ID: "1", Source: []byte(`{"a":1,"b":2,"c":3,"d":4,"e":5}`)})
	require.ErrorIs(t, r.Err, mapping.ErrMergeConflict)
	require.Equal(t, 2, r.Reparses)
	require.Equal(t, 3, next)
}

func TestFailurePolicies(t *testing.T) {
	t.Parallel()
	docs := []Doc{
		{ID: "ok1", Source: []byte(`{"known":"a"}`)},
		{ID: "bad", Source: []byte(`{"unknown":1}`)},
		{ID: "ok2", Source: []byte(`{"known":"b"}`)},
	}
	const def = `{"dynamic":"strict","properties":{"known":{"type":"keyword"}}}`

	results, err := New(newCoordinator(t, def), nil, Options{Workers: 1}).IndexAll(ctx, docs)
	require.NoError(t, err)
	require.NoError(t, results[0].Err)
	var serr *docparse.StrictDynamicError
	require.ErrorAs(t, results[1].Err, &serr)
	require.Equal(t, "unknown", serr.Path)
	require.NoError(t, results[2].Err)

	_, err = New(newCoordinator(t, def), nil, Options{Workers: 1, FailurePolicy: FailurePolicyFailFast}).IndexAll(ctx, docs)
	require.ErrorAs(t, err, &serr)
	require.Contains(t, err.Error(), "document [bad]")
}

func TestSinkError(t *testing.T) {
	t.Parallel()
	boom := errors.New("boom")
	sink := SinkFunc(func(context.Context, *mapping.ParsedDocument) error { return boom })
	r := New(newCoordinator(t, ""), sink, Options{}).Index(ctx, Doc{ID: "1", Source: []byte(`{"a":1}`)})
	require.ErrorIs(t, r.Err, boom)
}

func TestRateLimit(t *testing.T) {
	t.Parallel()
	ix := New(newCoordinator(t, ""), nil, Options{Workers: 4, RateLimitRPS: 50})
	docs := make([]Doc, 6)
	for i := range docs {
		docs[i] = Doc{ID: fmt.Sprint(i), Source: []byte(`{"a":1}`)}
	}
	start := time.Now()
	results, err := ix.IndexAll(ctx, docs)
	require.NoError(t, err)
	for _, r := range results {
		require.NoError(t, r.Err)
	}
	require.GreaterOrEqual(t, time.Since(start), 80*time.Millisecond)
}

func TestCanceled(t *testing.T) {
	t.Parallel()
	cctx, cancel := context.WithCancel(ctx)
	cancel()
	docs := []Doc{{ID: "1", Source: []byte(`{}`)}, {ID: "2", Source: []byte(`{"a":1}`)}}
	results, err := New(newCoordinator(t, ""), nil, Options{}).IndexAll(cctx, docs)
	require.ErrorIs(t, err, context.Canceled)
	require.Len(t, results, len(docs))
	for i, r := range results {
		require.Equal(t, docs[i].ID, r.ID)
		require.ErrorIs(t, r.Err, context.Canceled)
		require.Nil(t, r.Parsed)
	}
}
