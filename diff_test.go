package mapping

import (
	"errors"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/require"
)

func TestDiffTrivial(t *testing.T) {
	t.Parallel()
	m := mustParse(t, testDefinition)
	added, removed, changed, err := m.Diff(m)
	require.NoError(t, err)
	require.Empty(t, added)
	require.Empty(t, removed)
	require.Empty(t, changed)

	added, removed, changed, err = m.Diff(mustParse(t, testDefinition))
	require.NoError(t, err)
	require.Empty(t, added)
	require.Empty(t, removed)
	require.Empty(t, changed)
}

func TestDiff(t *testing.T) {
	t.Parallel()
	old := mustParse(t, `{"properties":{
	  "a":{"type":"keyword"},
	  "gone":{"properties":{"k":{"type":"long"}}},
	  "o":{"properties":{"x":{"type":"keyword"}}},
	  "user":{"properties":{"id":{"type":"long"}}},
	  "z":{"type":"date"}}}`)
	new := mustParse(t, `{"_source":{"enabled":false},"properties":{
	  "a":{"type":"keyword","store":true},
	  "b":{"type":"long"},
	  "o":{"properties":{"x":{"type":"keyword"},"y":{"type":"ip"}}},
	  "user":{"type":"nested","properties":{"id":{"type":"long"}}}}}`)
	added, removed, changed, err := new.Diff(old)
	require.NoError(t, err)
	require.Equal(t, []string{"b", "o.y"}, added)
	require.Equal(t, []string{"gone", "gone.k", "z"}, removed)
	require.Equal(t, []string{"a", "user", "_source"}, changed)

	added, removed, changed, err = old.Diff(new)
	require.NoError(t, err)
	require.Equal(t, []string{"gone", "gone.k", "z"}, added)
	require.Equal(t, []string{"b", "o.y"}, removed)
	require.Equal(t, []string{"a", "user", "_source"}, changed)
}

func TestDiffFromEmpty(t *testing.T) {
	t.Parallel()
	m := mustParse(t, `{"properties":{"o":{"properties":{"p":{"properties":{"q":{"type":"long"}}}}},"t":{"type":"text"}}}`)
	added, removed, changed, err := m.Diff(nil)
	require.NoError(t, err)
	require.Equal(t, []string{"o", "o.p", "o.p.q", "t"}, added)
	require.Empty(t, removed)
	require.Empty(t, changed)
}

func TestDiffSkipsSharedSubtrees(t *testing.T) {
	t.Parallel()
	base := mustParse(t, testDefinition)
	merged := mustMerge(t, base, mustParse(t, `{"properties":{"new":{"type":"keyword"}}}`), RuntimeUpdate)
	var visited []string
	err := merged.DiffIter(base, func(added, removed bool, path string, addedNode, removedNode Node) (bool, error) {
		visited = append(visited, path)
		require.True(t, added)
		require.False(t, removed)
		require.Nil(t, removedNode)
		require.Equal(t, "keyword", addedNode.TypeName())
		return true, nil
	})
	require.NoError(t, err)
	require.Equal(t, []string{"new"}, visited)
}

func TestDiffIterStops(t *testing.T) {
	t.Parallel()
	m := mustParse(t, `{"properties":{"a":{"type":"keyword"},"b":{"type":"keyword"},"c":{"type":"keyword"}}}`)
	calls := 0
	err := m.DiffIter(Empty(), func(bool, bool, string, Node, Node) (bool, error) {
		calls++
		return false, nil
	})
	require.NoError(t, err)
	require.Equal(t, 1, calls)

	boom := errors.New("boom")
	err = m.DiffIter(Empty(), func(bool, bool, string, Node, Node) (bool, error) {
		return true, boom
	})
	require.ErrorIs(t, err, boom)
}

func TestDiffMatchesMerge(t *testing.T) {
	t.Parallel()
	properties := gopter.NewProperties(defaultGopterParameters)
	properties.Property("a merge of new fields diffs as exactly those fields",
		prop.ForAll(
			func(before, after []uint) bool {
				base := mustMerge(t, Empty(), fieldsDelta(t, "f", before), RuntimeUpdate)
				merged := mustMerge(t, base, fieldsDelta(t, "f", after), RuntimeUpdate)
				added, removed, changed, err := merged.Diff(base)
				require.NoError(t, err)
				var addedLeaves []string
				for _, p := range added {
					if n, _ := merged.Lookup(p); n.Kind() == KindField {
						addedLeaves = append(addedLeaves, p)
						if _, existed := base.Lookup(p); existed {
							return false
						}
					}
				}
				want := len(merged.FieldPaths()) - len(base.FieldPaths())
				return len(addedLeaves) == want && len(removed) == 0 && len(changed) == 0
			},
			gen.SliceOf(gen.UIntRange(0, 60)),
			gen.SliceOf(gen.UIntRange(0, 60)),
		))
	properties.TestingRun(t)
}
