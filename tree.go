package mapping

// Keys of the canonical tree.
const (
	treeDocType          = "_doc"
	treeType             = "type"
	treeProperties       = "properties"
	treeDynamic          = "dynamic"
	treeEnabled          = "enabled"
	treeMeta             = "_meta"
	treeDateDetection    = "date_detection"
	treeNumericDetection = "numeric_detection"
)

// FromTree builds a mapping from its canonical tree, as decoded from JSON
// or YAML. Both {"_doc": {...}} and the bare {...} body are accepted:
//
//	{"_doc": {
//	  "dynamic": "strict",
//	  "_source": {"enabled": false},
//	  "properties": {
//	    "title": {"type": "text", "analyzer": "english",
//	              "fields": {"raw": {"type": "keyword"}}},
//	    "user": {"type": "nested", "properties": {"id": {"type": "long"}}}
//	  }
//	}}
//
// An object that states no type is undetermined and adopts the containment
// of whatever it is merged with.
func FromTree(tree map[string]interface{}) (*Mapping, error) {
	if len(tree) == 1 {
		if doc, ok := tree[treeDocType]; ok {
			body, ok := asTree(doc)
			if !ok {
				return nil, definitionErrorf("", "[%s] must be an object", treeDocType)
			}
			tree = body
		}
	}
	m := &Mapping{metadata: defaultMetadataFields}
	var children map[string]interface{}
	var metadata []*MetadataField
	for k, v := range tree {
		switch k {
		case treeProperties:
			props, ok := asTree(v)
			if !ok {
				return nil, definitionErrorf("", "[%s] must be an object", treeProperties)
			}
			children = props
		case treeDynamic:
			if _, ok := parseDynamic(v); !ok {
				return nil, definitionErrorf("", "invalid dynamic value [%v]", v)
			}
		case treeMeta:
			if v == nil {
				continue
			}
			n, err := normalizeMeta(treeMeta, v)
			if err != nil {
				return nil, err
			}
			meta, ok := n.(map[string]interface{})
			if !ok {
				return nil, definitionErrorf("", "[%s] must be an object", treeMeta)
			}
			m.meta = meta
		case treeDateDetection, treeNumericDetection:
			b, ok := v.(bool)
			if !ok {
				return nil, definitionErrorf("", "[%s] must be a boolean", k)
			}
			if k == treeDateDetection {
				m.dateDetection = flagOf(b)
			} else {
				m.numericDetection = flagOf(b)
			}
		default:
			if !IsMetadataField(k) {
				return nil, definitionErrorf("", "unknown root parameter [%s]", k)
			}
			params, ok := asTree(v)
			if !ok {
				return nil, definitionErrorf(k, "metadata field parameters must be an object")
			}
			f, err := newMetadataField(k, params)
			if err != nil {
				return nil, err
			}
			metadata = append(metadata, f)
		}
	}
	dynamic := DynamicUnset
	if v, ok := tree[treeDynamic]; ok {
		dynamic, _ = parseDynamic(v)
	}
	nodes, err := childrenFromTree("", children)
	if err != nil {
		return nil, err
	}
	root, err := newObject("", "", ContainmentUndetermined, dynamic, flagUnset, nodes)
	if err != nil {
		return nil, err
	}
	m.root = root
	if len(metadata) > 0 {
		m.metadata = append([]*MetadataField(nil), defaultMetadataFields...)
		for _, f := range metadata {
			m.metadata[metadataIndex(f.name)] = f
		}
	}
	return m, nil
}

func asTree(v interface{}) (map[string]interface{}, bool) {
	switch x := v.(type) {
	case map[string]interface{}:
		return x, true
	case map[interface{}]interface{}:
		out := make(map[string]interface{}, len(x))
		for k, e := range x {
			ks, ok := k.(string)
			if !ok {
				return nil, false
			}
			out[ks] = e
		}
		return out, true
	}
	return nil, false
}

func childrenFromTree(parent string, props map[string]interface{}) ([]Node, error) {
	nodes := make([]Node, 0, len(props))
	for name, v := range props {
		path := joinPath(parent, name)
		if !validName(name) {
			return nil, definitionErrorf(path, "invalid field name [%s]", name)
		}
		if IsMetadataField(name) && parent == "" {
			return nil, definitionErrorf(path, "field [%s] is a metadata field and cannot be added inside a document", name)
		}
		body, ok := asTree(v)
		if !ok {
			return nil, definitionErrorf(path, "expected map for property [%s]", name)
		}
		n, err := nodeFromTree(path, body)
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, n)
	}
	return nodes, nil
}

func nodeFromTree(path string, body map[string]interface{}) (Node, error) {
	typeName := typeObject
	mode := ContainmentUndetermined
	if v, ok := body[treeType]; ok {
		s, ok := v.(string)
		if !ok {
			return nil, definitionErrorf(path, "[type] must be a string")
		}
		typeName = s
		switch s {
		case typeObject:
			mode = ContainmentObject
		case typeNested:
			mode = ContainmentNested
		}
	}
	if typeName != typeObject && typeName != typeNested {
		return fieldFromTree(path, typeName, body, true)
	}
	_, name := parentPath(path)
	dynamic := DynamicUnset
	enabled := flagUnset
	var children []Node
	for k, v := range body {
		switch k {
		case treeType:
		case treeProperties:
			props, ok := asTree(v)
			if !ok {
				return nil, definitionErrorf(path, "[%s] must be an object", treeProperties)
			}
			var err error
			children, err = childrenFromTree(path, props)
			if err != nil {
				return nil, err
			}
		case treeDynamic:
			d, ok := parseDynamic(v)
			if !ok {
				return nil, definitionErrorf(path, "invalid dynamic value [%v]", v)
			}
			dynamic = d
		case treeEnabled:
			b, ok := v.(bool)
			if !ok {
				return nil, definitionErrorf(path, "[enabled] must be a boolean")
			}
			enabled = flagOf(b)
		default:
			return nil, definitionErrorf(path, "unknown parameter [%s] on object [%s]", k, name)
		}
	}
	return newObject(name, path, mode, dynamic, enabled, children)
}

func fieldFromTree(path, typeName string, body map[string]interface{}, allowFields bool) (*FieldNode, error) {
	typ, ok := ParseFieldType(typeName)
	if !ok {
		return nil, definitionErrorf(path, "no handler for type [%s] declared on field [%s]", typeName, path)
	}
	settings := make(map[string]interface{}, len(body))
	var subs []*FieldNode
	for k, v := range body {
		switch k {
		case treeType:
		case treeProperties:
			return nil, definitionErrorf(path, "field of type [%s] cannot have properties", typ)
		case keyFields:
			if !allowFields {
				return nil, definitionErrorf(path, "multi-fields cannot have multi-fields")
			}
			fields, ok := asTree(v)
			if !ok {
				return nil, definitionErrorf(path, "[fields] must be an object")
			}
			for name, fv := range fields {
				subPath := joinPath(path, name)
				if !validName(name) {
					return nil, definitionErrorf(subPath, "invalid field name [%s]", name)
				}
				fbody, ok := asTree(fv)
				if !ok {
					return nil, definitionErrorf(subPath, "expected map for multi-field [%s]", name)
				}
				ft, _ := fbody[treeType].(string)
				if ft == "" {
					return nil, definitionErrorf(subPath, "multi-field [%s] must declare a type", name)
				}
				sub, err := fieldFromTree(subPath, ft, fbody, false)
				if err != nil {
					return nil, err
				}
				subs = append(subs, sub)
			}
		default:
			settings[k] = v
		}
	}
	return NewField(path, typ, settings, subs...)
}

// ToTree renders the mapping as its canonical tree, wrapped in "_doc".
// Only explicitly specified values appear; the empty mapping renders as
// {"_doc": {}}.
func (m *Mapping) ToTree() map[string]interface{} {
	body := map[string]interface{}{}
	if v := m.root.dynamic.treeValue(); v != nil {
		body[treeDynamic] = v
	}
	if m.dateDetection.isSet() {
		body[treeDateDetection] = m.dateDetection.or(true)
	}
	if m.numericDetection.isSet() {
		body[treeNumericDetection] = m.numericDetection.or(false)
	}
	if len(m.meta) > 0 {
		body[treeMeta] = copyMeta(m.meta)
	}
	for _, f := range m.metadata {
		if len(f.settings) == 0 {
			continue
		}
		params := make(map[string]interface{}, len(f.settings))
		for k, v := range f.settings {
			if l, ok := v.([]string); ok {
				params[k] = stringsToTree(l)
				continue
			}
			params[k] = v
		}
		body[f.name] = params
	}
	if len(m.root.children) > 0 {
		body[treeProperties] = childrenToTree(m.root.children)
	}
	return map[string]interface{}{treeDocType: body}
}

func stringsToTree(l []string) []interface{} {
	out := make([]interface{}, len(l))
	for i, s := range l {
		out[i] = s
	}
	return out
}

func childrenToTree(children []Node) map[string]interface{} {
	out := make(map[string]interface{}, len(children))
	for _, c := range children {
		switch n := c.(type) {
		case *ObjectNode:
			out[n.name] = objectToTree(n)
		case *FieldNode:
			out[n.name] = fieldToTree(n)
		}
	}
	return out
}

func objectToTree(o *ObjectNode) map[string]interface{} {
	body := map[string]interface{}{}
	if o.mode != ContainmentUndetermined {
		body[treeType] = o.TypeName()
	}
	if v := o.dynamic.treeValue(); v != nil {
		body[treeDynamic] = v
	}
	if o.enabled.isSet() {
		body[treeEnabled] = o.Enabled()
	}
	if len(o.children) > 0 {
		body[treeProperties] = childrenToTree(o.children)
	}
	return body
}

func fieldToTree(f *FieldNode) map[string]interface{} {
	body := make(map[string]interface{}, len(f.settings)+2)
	body[treeType] = string(f.typ)
	for k, v := range f.settings {
		body[k] = v
	}
	if len(f.fields) > 0 {
		subs := make(map[string]interface{}, len(f.fields))
		for _, sub := range f.fields {
			subs[sub.name] = fieldToTree(sub)
		}
		body[keyFields] = subs
	}
	return body
}
