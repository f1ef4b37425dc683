package mapping

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Mapping is an immutable schema: the root object, the metadata fields,
// the _meta block and the root detection settings. Merges build new
// Mappings that share every unchanged subtree with their inputs, so any
// number of goroutines may read a Mapping while others merge from it.
type Mapping struct {
	root             *ObjectNode
	metadata         []*MetadataField // one per metadataDefs entry, same order
	meta             map[string]interface{}
	dateDetection    flag
	numericDetection flag
	generation       uint64

	flatOnce sync.Once
	flat     map[string]Node
	paths    []string

	digestOnce sync.Once
	digest     string
	digestErr  error
}

var emptyRoot = &ObjectNode{}

// Empty returns a mapping without fields, carrying only the metadata fields
// with their defaults.
func Empty() *Mapping {
	return &Mapping{root: emptyRoot, metadata: defaultMetadataFields}
}

// New builds a mapping from a root object (as built by NewObject with an
// empty path), metadata fields to override, and a _meta block.
func New(root *ObjectNode, metadata []*MetadataField, meta map[string]interface{}) (*Mapping, error) {
	if root == nil {
		root = emptyRoot
	}
	if root.path != "" {
		return nil, definitionErrorf(root.path, "root object must have an empty path")
	}
	m := &Mapping{root: root, metadata: defaultMetadataFields}
	if len(metadata) > 0 {
		m.metadata = append([]*MetadataField(nil), defaultMetadataFields...)
		for _, f := range metadata {
			if f == nil {
				return nil, definitionErrorf("", "nil metadata field")
			}
			m.metadata[metadataIndex(f.name)] = f
		}
	}
	if meta != nil {
		n, err := normalizeMeta("_meta", meta)
		if err != nil {
			return nil, err
		}
		m.meta = n.(map[string]interface{})
	}
	return m, nil
}

// NewMetadataField builds one of the fixed metadata fields with the given
// parameters, e.g. NewMetadataField("_source", map[string]interface{}{"enabled": false}).
func NewMetadataField(name string, params map[string]interface{}) (*MetadataField, error) {
	return newMetadataField(name, params)
}

// Root returns the root object.
func (m *Mapping) Root() *ObjectNode { return m.root }

// Generation counts the merges that led to this mapping. It is only for
// observability.
func (m *Mapping) Generation() uint64 { return m.generation }

// Meta returns a copy of the _meta block.
func (m *Mapping) Meta() map[string]interface{} { return copyMeta(m.meta) }

// MetadataField returns the named metadata field.
func (m *Mapping) MetadataField(name string) (*MetadataField, bool) {
	i := metadataIndex(name)
	if i < 0 {
		return nil, false
	}
	return m.metadata[i], true
}

// MetadataFields returns every metadata field, ordered by name.
func (m *Mapping) MetadataFields() []*MetadataField {
	return append([]*MetadataField(nil), m.metadata...)
}

// SourceEnabled reports whether documents' source is stored.
func (m *Mapping) SourceEnabled() bool {
	f, _ := m.MetadataField(FieldSource)
	return f.Enabled()
}

// DateDetection reports whether new string fields that look like dates are
// mapped as dates.
func (m *Mapping) DateDetection() bool { return m.dateDetection.or(true) }

// NumericDetection reports whether new string fields that look like
// numbers are mapped as numbers.
func (m *Mapping) NumericDetection() bool { return m.numericDetection.or(false) }

// IsEmpty reports whether the mapping has no fields and nothing specified.
func (m *Mapping) IsEmpty() bool {
	return Equal(m, Empty())
}

// Lookup finds the node at a dotted path: objects, fields, multi-fields
// (e.g. "title.keyword") and metadata fields. The first lookup on a Mapping
// builds its path index; concurrent first callers wait for that build.
func (m *Mapping) Lookup(path string) (Node, bool) {
	if f, ok := m.MetadataField(path); ok {
		return f, true
	}
	n, ok := m.flatten()[path]
	return n, ok
}

// FieldPaths returns the paths of every leaf, multi-field and metadata
// field, sorted.
func (m *Mapping) FieldPaths() []string {
	m.flatten()
	return append([]string(nil), m.paths...)
}

// FieldTypes maps every path FieldPaths returns to its type name.
func (m *Mapping) FieldTypes() map[string]string {
	flat := m.flatten()
	out := make(map[string]string, len(m.paths))
	for _, p := range m.paths {
		if f, ok := m.MetadataField(p); ok {
			out[p] = f.TypeName()
			continue
		}
		out[p] = flat[p].TypeName()
	}
	return out
}

// flatten indexes every node by path. It runs once per Mapping; the
// mapping never changes afterwards.
func (m *Mapping) flatten() map[string]Node {
	m.flatOnce.Do(func() {
		flat := map[string]Node{}
		var paths []string
		var walk func(o *ObjectNode)
		walk = func(o *ObjectNode) {
			for _, child := range o.children {
				flat[child.Path()] = child
				switch c := child.(type) {
				case *ObjectNode:
					walk(c)
				case *FieldNode:
					paths = append(paths, c.path)
					for _, sub := range c.fields {
						flat[sub.path] = sub
						paths = append(paths, sub.path)
					}
				}
			}
		}
		walk(m.root)
		for _, f := range m.metadata {
			paths = append(paths, f.name)
		}
		sort.Strings(paths)
		m.flat = flat
		m.paths = paths
	})
	return m.flat
}

// ancestors returns the objects on the way to path, root first, stopping at
// the first missing one.
func (m *Mapping) ancestors(path string) []*ObjectNode {
	out := []*ObjectNode{m.root}
	if path == "" {
		return out
	}
	o := m.root
	names := strings.Split(path, ".")
	for _, name := range names[:len(names)-1] {
		child, ok := o.Child(name)
		if !ok {
			return out
		}
		co, ok := child.(*ObjectNode)
		if !ok {
			return out
		}
		out = append(out, co)
		o = co
	}
	return out
}

// EffectiveDynamic returns the dynamic policy that applies to new fields
// under the object at path (the root for ""), inherited from the nearest
// ancestor that states one. The root defaults to DynamicTrue.
func (m *Mapping) EffectiveDynamic(objectPath string) Dynamic {
	chain := m.ancestors(joinPath(objectPath, "_"))
	for i := len(chain) - 1; i >= 0; i-- {
		if d := chain[i].dynamic; d != DynamicUnset {
			return d
		}
	}
	return DynamicTrue
}

// Containment returns the containment mode of the object at path.
func (m *Mapping) Containment(objectPath string) (ContainmentMode, error) {
	if objectPath == "" {
		return ContainmentObject, nil
	}
	n, ok := m.Lookup(objectPath)
	if !ok {
		return ContainmentUndetermined, fmt.Errorf("%w [%s]", ErrUnknownField, objectPath)
	}
	o, ok := n.(*ObjectNode)
	if !ok {
		return ContainmentUndetermined, fmt.Errorf("[%s] is a field of type [%s], not an object", objectPath, n.TypeName())
	}
	return o.mode, nil
}

// NestedScope returns the path of the nearest nested object containing
// path, or "" when it is not inside a nested object.
func (m *Mapping) NestedScope(path string) string {
	chain := m.ancestors(path)
	for i := len(chain) - 1; i > 0; i-- {
		if chain[i].mode == ContainmentNested {
			return chain[i].path
		}
	}
	return ""
}

func (m *Mapping) analyzedField(path string) (*FieldNode, error) {
	n, ok := m.Lookup(path)
	if !ok {
		return nil, fmt.Errorf("%w [%s]", ErrUnknownField, path)
	}
	f, ok := n.(*FieldNode)
	if !ok || f.typ != TypeText {
		return nil, fmt.Errorf("%w [%s] of type [%s]", ErrNotAnalyzed, path, n.TypeName())
	}
	return f, nil
}

// IndexAnalyzer resolves the analyzer the text field at path is indexed
// with.
func (m *Mapping) IndexAnalyzer(path string) (string, error) {
	f, err := m.analyzedField(path)
	if err != nil {
		return "", err
	}
	return f.IndexAnalyzer(), nil
}

// SearchAnalyzer resolves the analyzer queries on the text field at path
// are analyzed with.
func (m *Mapping) SearchAnalyzer(path string) (string, error) {
	f, err := m.analyzedField(path)
	if err != nil {
		return "", err
	}
	return f.SearchAnalyzer(), nil
}

// Equal reports whether two mappings describe the same schema. Generations
// are not compared.
func Equal(a, b *Mapping) bool {
	if a == b {
		return true
	}
	if a == nil || b == nil {
		return false
	}
	if a.dateDetection != b.dateDetection || a.numericDetection != b.numericDetection {
		return false
	}
	if !equalNodes(a.root, b.root) || !equalMeta(a.meta, b.meta) {
		return false
	}
	for i := range a.metadata {
		if !equalNodes(a.metadata[i], b.metadata[i]) {
			return false
		}
	}
	return true
}

func (m *Mapping) String() string {
	b, err := EncodeJSON(m)
	if err != nil {
		return fmt.Sprintf("mapping: %v", err)
	}
	return string(b)
}
