package mapping

import "reflect"

// Names of the metadata fields every mapping carries.
const (
	FieldDocCount   = "_doc_count"
	FieldFieldNames = "_field_names"
	FieldID         = "_id"
	FieldIgnored    = "_ignored"
	FieldIndex      = "_index"
	FieldNestedPath = "_nested_path"
	FieldRouting    = "_routing"
	FieldSeqNo      = "_seq_no"
	FieldSource     = "_source"
	FieldVersion    = "_version"
)

type metadataParam int

const (
	paramBool metadataParam = iota
	paramStringList
)

// metadataDefs lists the metadata fields ordered by name, with the
// parameters each accepts.
var metadataDefs = []struct {
	name   string
	params map[string]metadataParam
}{
	{FieldDocCount, nil},
	{FieldFieldNames, map[string]metadataParam{"enabled": paramBool}},
	{FieldID, nil},
	{FieldIgnored, nil},
	{FieldIndex, nil},
	{FieldNestedPath, nil},
	{FieldRouting, map[string]metadataParam{"required": paramBool}},
	{FieldSeqNo, nil},
	{FieldSource, map[string]metadataParam{"enabled": paramBool, "includes": paramStringList, "excludes": paramStringList}},
	{FieldVersion, nil},
}

// MetadataField is one of the fixed fields describing a document rather
// than its contents. Its type is its name.
type MetadataField struct {
	name     string
	settings map[string]interface{}
}

func (*MetadataField) node() {}

func (f *MetadataField) Name() string     { return f.name }
func (f *MetadataField) Path() string     { return f.name }
func (f *MetadataField) Kind() NodeKind   { return KindMetadata }
func (f *MetadataField) TypeName() string { return f.name }

// Setting returns an explicitly specified parameter.
func (f *MetadataField) Setting(name string) (interface{}, bool) {
	v, ok := f.settings[name]
	return v, ok
}

// Enabled reports the "enabled" parameter, true unless disabled.
func (f *MetadataField) Enabled() bool {
	if b, ok := f.settings["enabled"].(bool); ok {
		return b
	}
	return true
}

// Required reports the "required" parameter, false unless specified.
func (f *MetadataField) Required() bool {
	b, _ := f.settings["required"].(bool)
	return b
}

// StringList returns a list parameter such as _source includes.
func (f *MetadataField) StringList(name string) []string {
	l, _ := f.settings[name].([]string)
	return append([]string(nil), l...)
}

func metadataIndex(name string) int {
	i, ok := searchNames(len(metadataDefs), func(i int) string { return metadataDefs[i].name }, name)
	if !ok {
		return -1
	}
	return i
}

// IsMetadataField reports whether name is one of the fixed metadata fields.
func IsMetadataField(name string) bool { return metadataIndex(name) >= 0 }

var defaultMetadataFields = func() []*MetadataField {
	out := make([]*MetadataField, len(metadataDefs))
	for i, def := range metadataDefs {
		out[i] = &MetadataField{name: def.name, settings: map[string]interface{}{}}
	}
	return out
}()

func newMetadataField(name string, params map[string]interface{}) (*MetadataField, error) {
	i := metadataIndex(name)
	if i < 0 {
		return nil, definitionErrorf(name, "unknown metadata field")
	}
	def := metadataDefs[i]
	settings := make(map[string]interface{}, len(params))
	for k, v := range params {
		kind, ok := def.params[k]
		if !ok {
			return nil, definitionErrorf(name, "unknown parameter [%s] on metadata field [%s]", k, name)
		}
		switch kind {
		case paramBool:
			b, ok := v.(bool)
			if !ok {
				return nil, definitionErrorf(name, "invalid value [%v] for parameter [%s]", v, k)
			}
			settings[k] = b
		case paramStringList:
			l, ok := toStringList(v)
			if !ok {
				return nil, definitionErrorf(name, "invalid value [%v] for parameter [%s]", v, k)
			}
			settings[k] = l
		}
	}
	return &MetadataField{name: name, settings: settings}, nil
}

func toStringList(v interface{}) ([]string, bool) {
	switch l := v.(type) {
	case []string:
		return append([]string{}, l...), true
	case string:
		return []string{l}, true
	case []interface{}:
		out := make([]string, 0, len(l))
		for _, e := range l {
			s, ok := e.(string)
			if !ok {
				return nil, false
			}
			out = append(out, s)
		}
		return out, true
	}
	return nil, false
}

// mergeMetadataField lets explicit incoming parameters win under every
// reason; unspecified parameters keep the base value.
func mergeMetadataField(base, incoming *MetadataField) *MetadataField {
	if base == incoming || len(incoming.settings) == 0 {
		return base
	}
	changed := false
	for k, v := range incoming.settings {
		if old, ok := base.settings[k]; !ok || !reflect.DeepEqual(old, v) {
			changed = true
			break
		}
	}
	if !changed {
		return base
	}
	settings := make(map[string]interface{}, len(base.settings)+len(incoming.settings))
	for k, v := range base.settings {
		settings[k] = v
	}
	for k, v := range incoming.settings {
		settings[k] = v
	}
	return &MetadataField{name: base.name, settings: settings}
}
