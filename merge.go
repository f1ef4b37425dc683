package mapping

import (
	"reflect"
)

// Merge combines incoming into base and returns the result. Base is never
// modified: the result shares every subtree the merge did not change, and
// when nothing changes at all base itself is returned.
//
// Objects present on both sides must agree on containment unless one side
// left it undetermined; leaves must agree on type. Either disagreement
// aborts the whole merge with a *ContainmentConflictError or
// *TypeConflictError. Explicit incoming settings win over base settings,
// and settings incoming leaves unspecified keep their base value, except
// search_analyzer, which a RuntimeUpdate that omits it resets to track the
// index analyzer. Under TemplateCompose a leaf whose type differs is
// replaced by the incoming leaf instead of failing.
func Merge(base, incoming *Mapping, reason MergeReason) (*Mapping, error) {
	if base == nil {
		base = Empty()
	}
	if incoming == nil || incoming == base {
		return base, nil
	}
	mg := merger{reason: reason}
	root, err := mg.objects(base.root, incoming.root)
	if err != nil {
		return nil, err
	}
	metadata := base.metadata
	for i, f := range base.metadata {
		merged := mergeMetadataField(f, incoming.metadata[i])
		if merged == f {
			continue
		}
		if sameSlice(metadata, base.metadata) {
			metadata = append([]*MetadataField(nil), base.metadata...)
		}
		metadata[i] = merged
	}
	meta := base.meta
	if len(incoming.meta) > 0 {
		merged := MergeMeta(base.meta, incoming.meta)
		if !equalMeta(merged, base.meta) {
			meta = merged
		}
	}
	dateDetection := base.dateDetection.override(incoming.dateDetection)
	numericDetection := base.numericDetection.override(incoming.numericDetection)
	if root == base.root &&
		sameSlice(metadata, base.metadata) &&
		sameMap(meta, base.meta) &&
		dateDetection == base.dateDetection &&
		numericDetection == base.numericDetection {
		return base, nil
	}
	return &Mapping{
		root:             root,
		metadata:         metadata,
		meta:             meta,
		dateDetection:    dateDetection,
		numericDetection: numericDetection,
		generation:       base.generation + 1,
	}, nil
}

type merger struct {
	reason MergeReason
}

func (mg merger) nodes(base, incoming Node) (Node, error) {
	switch b := base.(type) {
	case *ObjectNode:
		if in, ok := incoming.(*ObjectNode); ok {
			return mg.objects(b, in)
		}
	case *FieldNode:
		if in, ok := incoming.(*FieldNode); ok {
			return mg.fields(b, in)
		}
	}
	return nil, &TypeConflictError{Path: base.Path(), BaseType: base.TypeName(), IncomingType: incoming.TypeName()}
}

func (mg merger) objects(base, incoming *ObjectNode) (*ObjectNode, error) {
	if base == incoming {
		return base, nil
	}
	mode := base.mode
	switch {
	case incoming.mode == ContainmentUndetermined || incoming.mode == base.mode:
	case base.mode == ContainmentUndetermined:
		mode = incoming.mode
	default:
		return nil, &ContainmentConflictError{Path: base.path, Base: base.mode, Incoming: incoming.mode}
	}
	dynamic := base.dynamic
	if incoming.dynamic != DynamicUnset {
		dynamic = incoming.dynamic
	}
	enabled := base.enabled.override(incoming.enabled)

	var children []Node
	changed := false
	bi, ii := 0, 0
	for bi < len(base.children) || ii < len(incoming.children) {
		var next Node
		switch {
		case ii == len(incoming.children):
			next = base.children[bi]
			bi++
		case bi == len(base.children):
			next = incoming.children[ii]
			ii++
			changed = true
		default:
			b, in := base.children[bi], incoming.children[ii]
			switch {
			case b.Name() < in.Name():
				next = b
				bi++
			case b.Name() > in.Name():
				next = in
				ii++
				changed = true
			default:
				merged, err := mg.nodes(b, in)
				if err != nil {
					return nil, err
				}
				if merged != b {
					changed = true
				}
				next = merged
				bi++
				ii++
			}
		}
		children = append(children, next)
	}
	if !changed && mode == base.mode && dynamic == base.dynamic && enabled == base.enabled {
		return base, nil
	}
	if !changed {
		children = base.children
	}
	return &ObjectNode{
		name:     base.name,
		path:     base.path,
		mode:     mode,
		dynamic:  dynamic,
		enabled:  enabled,
		children: children,
	}, nil
}

func (mg merger) fields(base, incoming *FieldNode) (*FieldNode, error) {
	if base == incoming {
		return base, nil
	}
	if base.typ != incoming.typ {
		if mg.reason == TemplateCompose {
			return incoming, nil
		}
		return nil, &TypeConflictError{Path: base.path, BaseType: string(base.typ), IncomingType: string(incoming.typ)}
	}
	settings := make(map[string]interface{}, len(base.settings)+len(incoming.settings))
	for k, v := range base.settings {
		settings[k] = v
	}
	for k, v := range incoming.settings {
		settings[k] = v
	}
	if _, ok := incoming.settings[SettingSearchAnalyzer]; !ok && mg.reason == RuntimeUpdate {
		delete(settings, SettingSearchAnalyzer)
	}

	var subs []*FieldNode
	subsChanged := false
	bi, ii := 0, 0
	for bi < len(base.fields) || ii < len(incoming.fields) {
		var next *FieldNode
		switch {
		case ii == len(incoming.fields):
			next = base.fields[bi]
			bi++
		case bi == len(base.fields):
			next = incoming.fields[ii]
			ii++
			subsChanged = true
		default:
			b, in := base.fields[bi], incoming.fields[ii]
			switch {
			case b.name < in.name:
				next = b
				bi++
			case b.name > in.name:
				next = in
				ii++
				subsChanged = true
			default:
				merged, err := mg.fields(b, in)
				if err != nil {
					return nil, err
				}
				if merged != b {
					subsChanged = true
				}
				next = merged
				bi++
				ii++
			}
		}
		subs = append(subs, next)
	}
	if !subsChanged {
		subs = base.fields
		if equalSettings(settings, base.settings) {
			return base, nil
		}
	}
	return &FieldNode{
		name:     base.name,
		path:     base.path,
		typ:      base.typ,
		settings: settings,
		fields:   subs,
	}, nil
}

func equalSettings(a, b map[string]interface{}) bool {
	return len(a) == len(b) && (len(a) == 0 || reflect.DeepEqual(a, b))
}

func sameSlice(a, b []*MetadataField) bool {
	return len(a) == len(b) && (len(a) == 0 || &a[0] == &b[0])
}

func sameMap(a, b map[string]interface{}) bool {
	return reflect.ValueOf(a).Pointer() == reflect.ValueOf(b).Pointer()
}
