package mapping

import (
	"fmt"
	"sort"
)

// NodeKind tags the variants of Node.
type NodeKind uint8

const (
	KindObject NodeKind = iota + 1
	KindField
	KindMetadata
)

func (k NodeKind) String() string {
	switch k {
	case KindObject:
		return "object"
	case KindField:
		return "field"
	case KindMetadata:
		return "metadata"
	}
	return fmt.Sprintf("NodeKind(%d)", uint8(k))
}

// Node is a schema node: *ObjectNode, *FieldNode or *MetadataField. Nodes are
// immutable once built, so a node can be shared by any number of mappings.
type Node interface {
	// Name is the last element of the node's path.
	Name() string
	// Path is the full dotted path from the root.
	Path() string
	Kind() NodeKind
	// TypeName is the declared type, "object" or "nested" for objects.
	TypeName() string
	node()
}

// flag is a boolean that remembers whether it was ever specified.
type flag uint8

const (
	flagUnset flag = iota
	flagTrue
	flagFalse
)

func flagOf(b bool) flag {
	if b {
		return flagTrue
	}
	return flagFalse
}

func (f flag) isSet() bool { return f != flagUnset }

func (f flag) or(def bool) bool {
	if f == flagUnset {
		return def
	}
	return f == flagTrue
}

// override returns incoming when it was specified, else f.
func (f flag) override(incoming flag) flag {
	if incoming.isSet() {
		return incoming
	}
	return f
}

// ObjectNode is an object in the schema tree, holding named children.
type ObjectNode struct {
	name     string
	path     string
	mode     ContainmentMode
	dynamic  Dynamic
	enabled  flag
	children []Node // ordered by name
}

// FieldNode is a leaf field with a declared type and settings. Key
// presence in the settings means the value was explicitly specified.
type FieldNode struct {
	name     string
	path     string
	typ      FieldType
	settings map[string]interface{}
	fields   []*FieldNode // multi-fields, ordered by name
}

func (*ObjectNode) node() {}
func (*FieldNode) node()  {}

func (o *ObjectNode) Name() string   { return o.name }
func (o *ObjectNode) Path() string   { return o.path }
func (o *ObjectNode) Kind() NodeKind { return KindObject }

func (o *ObjectNode) TypeName() string {
	if o.mode == ContainmentNested {
		return typeNested
	}
	return typeObject
}

// Containment returns the mode as declared, possibly undetermined.
func (o *ObjectNode) Containment() ContainmentMode { return o.mode }

// IsNested reports whether the object's values are indexed as separate
// nested documents.
func (o *ObjectNode) IsNested() bool { return o.mode == ContainmentNested }

// Dynamic returns the object's own policy, DynamicUnset if it inherits.
func (o *ObjectNode) Dynamic() Dynamic { return o.dynamic }

// Enabled reports whether the object's contents are parsed at all.
func (o *ObjectNode) Enabled() bool { return o.enabled.or(true) }

// Len returns the number of children.
func (o *ObjectNode) Len() int { return len(o.children) }

// Children returns the children ordered by name.
func (o *ObjectNode) Children() []Node {
	return append([]Node(nil), o.children...)
}

// Child returns the child with the given name.
func (o *ObjectNode) Child(name string) (Node, bool) {
	i, ok := o.search(name)
	if !ok {
		return nil, false
	}
	return o.children[i], true
}

func (o *ObjectNode) search(name string) (int, bool) {
	return searchNames(len(o.children), func(i int) string { return o.children[i].Name() }, name)
}

func (f *FieldNode) Name() string { return f.name }
func (f *FieldNode) Path() string { return f.path }
func (f *FieldNode) Kind() NodeKind { return KindField }
func (f *FieldNode) TypeName() string { return string(f.typ) }
func (f *FieldNode) Type() FieldType { return f.typ }

// Setting returns an explicitly specified setting.
func (f *FieldNode) Setting(name string) (interface{}, bool) {
	v, ok := f.settings[name]
	return v, ok
}

// Settings returns a copy of the explicitly specified settings.
func (f *FieldNode) Settings() map[string]interface{} {
	out := make(map[string]interface{}, len(f.settings))
	for k, v := range f.settings {
		out[k] = v
	}
	return out
}

// Bool returns a boolean setting, or def when it was not specified.
func (f *FieldNode) Bool(name string, def bool) bool {
	if b, ok := f.settings[name].(bool); ok {
		return b
	}
	return def
}

// IndexAnalyzer returns the analyzer text is indexed with.
func (f *FieldNode) IndexAnalyzer() string {
	if a, ok := f.settings[SettingAnalyzer].(string); ok {
		return a
	}
	return DefaultAnalyzer
}

// SearchAnalyzer returns the analyzer queries are analyzed with, which
// tracks the index analyzer unless specified.
func (f *FieldNode) SearchAnalyzer() string {
	if a, ok := f.settings[SettingSearchAnalyzer].(string); ok {
		return a
	}
	return f.IndexAnalyzer()
}

// Fields returns the multi-fields ordered by name.
func (f *FieldNode) Fields() []*FieldNode {
	return append([]*FieldNode(nil), f.fields...)
}

// Field returns the multi-field with the given name.
func (f *FieldNode) Field(name string) (*FieldNode, bool) {
	i, ok := f.search(name)
	if !ok {
		return nil, false
	}
	return f.fields[i], true
}

func (f *FieldNode) search(name string) (int, bool) {
	return searchNames(len(f.fields), func(i int) string { return f.fields[i].name }, name)
}

// NewField builds a leaf at the given dotted path. Multi-fields must sit
// directly under path.
func NewField(path string, typ FieldType, settings map[string]interface{}, fields ...*FieldNode) (*FieldNode, error) {
	_, name := parentPath(path)
	if !validName(name) {
		return nil, definitionErrorf(path, "invalid field name [%s]", name)
	}
	info, ok := fieldTypes[typ]
	if !ok {
		return nil, definitionErrorf(path, "no handler for type [%s] declared on field [%s]", typ, name)
	}
	normalized := make(map[string]interface{}, len(settings))
	for k, v := range settings {
		if !info.settings[k] {
			return nil, definitionErrorf(path, "unknown parameter [%s] on mapper [%s] of type [%s]", k, name, typ)
		}
		nv, err := normalizeSetting(path, k, v)
		if err != nil {
			return nil, err
		}
		normalized[k] = nv
	}
	if len(fields) > 0 && !info.multiFields {
		return nil, definitionErrorf(path, "type [%s] does not support multi-fields", typ)
	}
	for _, sub := range fields {
		if sub == nil {
			return nil, definitionErrorf(path, "nil multi-field")
		}
	}
	sorted := append([]*FieldNode(nil), fields...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].name < sorted[j].name })
	for i, sub := range sorted {
		if sub.path != joinPath(path, sub.name) {
			return nil, definitionErrorf(sub.path, "multi-field is not under [%s]", path)
		}
		if len(sub.fields) > 0 {
			return nil, definitionErrorf(sub.path, "multi-fields cannot have multi-fields")
		}
		if i > 0 && sorted[i-1].name == sub.name {
			return nil, definitionErrorf(sub.path, "duplicate multi-field [%s]", sub.name)
		}
	}
	return &FieldNode{name: name, path: path, typ: typ, settings: normalized, fields: sorted}, nil
}

func normalizeSetting(path, name string, v interface{}) (interface{}, error) {
	switch settingKinds[name] {
	case settingBool:
		if b, ok := v.(bool); ok {
			return b, nil
		}
	case settingString:
		if s, ok := v.(string); ok && s != "" {
			return s, nil
		}
	case settingNonNegativeInt:
		if n, ok := toInt64(v); ok && n >= 0 {
			return n, nil
		}
	case settingNumber:
		if f, ok := toFloat64(v); ok {
			return f, nil
		}
	case settingScalar:
		switch x := v.(type) {
		case string, bool:
			return x, nil
		}
		if f, ok := toFloat64(v); ok {
			return f, nil
		}
	}
	return nil, definitionErrorf(path, "invalid value [%v] for parameter [%s]", v, name)
}

func toInt64(v interface{}) (int64, bool) {
	switch x := v.(type) {
	case int:
		return int64(x), true
	case int32:
		return int64(x), true
	case int64:
		return x, true
	case uint64:
		return int64(x), true
	case float64:
		if x == float64(int64(x)) {
			return int64(x), true
		}
	}
	return 0, false
}

func toFloat64(v interface{}) (float64, bool) {
	switch x := v.(type) {
	case int:
		return float64(x), true
	case int32:
		return float64(x), true
	case int64:
		return float64(x), true
	case uint64:
		return float64(x), true
	case float32:
		return float64(x), true
	case float64:
		return x, true
	}
	return 0, false
}

// NewObject builds an object at the given dotted path. Children must sit
// directly under path and have distinct names.
func NewObject(path string, mode ContainmentMode, dynamic Dynamic, children ...Node) (*ObjectNode, error) {
	_, name := parentPath(path)
	if path != "" && !validName(name) {
		return nil, definitionErrorf(path, "invalid object name [%s]", name)
	}
	return newObject(name, path, mode, dynamic, flagUnset, children)
}

func newObject(name, path string, mode ContainmentMode, dynamic Dynamic, enabled flag, children []Node) (*ObjectNode, error) {
	for _, child := range children {
		if child == nil {
			return nil, definitionErrorf(path, "nil child")
		}
	}
	sorted := append([]Node(nil), children...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Name() < sorted[j].Name() })
	for i, child := range sorted {
		if child.Kind() == KindMetadata {
			return nil, definitionErrorf(child.Path(), "metadata field [%s] cannot be a child", child.Name())
		}
		if child.Path() != joinPath(path, child.Name()) {
			return nil, definitionErrorf(child.Path(), "child is not under [%s]", path)
		}
		if i > 0 && sorted[i-1].Name() == child.Name() {
			return nil, definitionErrorf(child.Path(), "duplicate field [%s]", child.Name())
		}
	}
	return &ObjectNode{
		name:     name,
		path:     path,
		mode:     mode,
		dynamic:  dynamic,
		enabled:  enabled,
		children: sorted,
	}, nil
}

// WithEnabled returns a copy of the object with the enabled flag set.
func (o *ObjectNode) WithEnabled(enabled bool) *ObjectNode {
	c := *o
	c.enabled = flagOf(enabled)
	return &c
}

func equalNodes(a, b Node) bool {
	if a == b {
		return true
	}
	switch x := a.(type) {
	case *ObjectNode:
		y, ok := b.(*ObjectNode)
		if !ok || x.name != y.name || x.path != y.path || x.mode != y.mode ||
			x.dynamic != y.dynamic || x.enabled != y.enabled || len(x.children) != len(y.children) {
			return false
		}
		for i := range x.children {
			if !equalNodes(x.children[i], y.children[i]) {
				return false
			}
		}
		return true
	case *FieldNode:
		y, ok := b.(*FieldNode)
		return ok && equalFields(x, y)
	case *MetadataField:
		y, ok := b.(*MetadataField)
		return ok && x.name == y.name && equalSettings(x.settings, y.settings)
	}
	return false
}

func equalFields(x, y *FieldNode) bool {
	if x == y {
		return true
	}
	if x.name != y.name || x.path != y.path || x.typ != y.typ ||
		!equalSettings(x.settings, y.settings) || len(x.fields) != len(y.fields) {
		return false
	}
	for i := range x.fields {
		if !equalFields(x.fields[i], y.fields[i]) {
			return false
		}
	}
	return true
}
