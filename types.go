package mapping

import "fmt"

// FieldType is the declared type of a leaf field. It is fixed when the field
// is created; a merge that disagrees on it is a conflict.
type FieldType string

const (
	TypeText     FieldType = "text"
	TypeKeyword  FieldType = "keyword"
	TypeLong     FieldType = "long"
	TypeInteger  FieldType = "integer"
	TypeShort    FieldType = "short"
	TypeByte     FieldType = "byte"
	TypeDouble   FieldType = "double"
	TypeFloat    FieldType = "float"
	TypeBoolean  FieldType = "boolean"
	TypeDate     FieldType = "date"
	TypeBinary   FieldType = "binary"
	TypeIP       FieldType = "ip"
	TypeGeoPoint FieldType = "geo_point"
)

// Type names of object nodes. They never appear as a FieldType.
const (
	typeObject = "object"
	typeNested = "nested"
)

// IsNumeric reports whether values of the type are numbers.
func (t FieldType) IsNumeric() bool {
	switch t {
	case TypeLong, TypeInteger, TypeShort, TypeByte, TypeDouble, TypeFloat:
		return true
	}
	return false
}

// Setting names understood on leaf fields.
const (
	SettingAnalyzer        = "analyzer"
	SettingSearchAnalyzer  = "search_analyzer"
	SettingStore           = "store"
	SettingIndex           = "index"
	SettingDocValues       = "doc_values"
	SettingNorms           = "norms"
	SettingBoost           = "boost"
	SettingIgnoreAbove     = "ignore_above"
	SettingNullValue       = "null_value"
	SettingCoerce          = "coerce"
	SettingFormat          = "format"
	SettingIgnoreMalformed = "ignore_malformed"

	// keyFields holds multi-fields; it is not a setting.
	keyFields = "fields"
)

// DefaultAnalyzer is what a text field is analyzed with when it names no
// analyzer of its own.
const DefaultAnalyzer = "default"

type settingKind int

const (
	settingBool settingKind = iota
	settingString
	settingNonNegativeInt
	settingNumber
	settingScalar
)

var settingKinds = map[string]settingKind{
	SettingAnalyzer:        settingString,
	SettingSearchAnalyzer:  settingString,
	SettingStore:           settingBool,
	SettingIndex:           settingBool,
	SettingDocValues:       settingBool,
	SettingNorms:           settingBool,
	SettingBoost:           settingNumber,
	SettingIgnoreAbove:     settingNonNegativeInt,
	SettingNullValue:       settingScalar,
	SettingCoerce:          settingBool,
	SettingFormat:          settingString,
	SettingIgnoreMalformed: settingBool,
}

type typeInfo struct {
	settings    map[string]bool
	multiFields bool
}

func allow(names ...string) map[string]bool {
	m := make(map[string]bool, len(names))
	for _, n := range names {
		m[n] = true
	}
	return m
}

var numericInfo = typeInfo{
	settings: allow(SettingStore, SettingIndex, SettingDocValues, SettingNullValue, SettingCoerce, SettingBoost),
}

var fieldTypes = map[FieldType]typeInfo{
	TypeText: {
		settings:    allow(SettingAnalyzer, SettingSearchAnalyzer, SettingStore, SettingIndex, SettingNorms, SettingBoost),
		multiFields: true,
	},
	TypeKeyword: {
		settings:    allow(SettingStore, SettingIndex, SettingDocValues, SettingIgnoreAbove, SettingNullValue, SettingBoost),
		multiFields: true,
	},
	TypeLong:     numericInfo,
	TypeInteger:  numericInfo,
	TypeShort:    numericInfo,
	TypeByte:     numericInfo,
	TypeDouble:   numericInfo,
	TypeFloat:    numericInfo,
	TypeBoolean:  {settings: allow(SettingStore, SettingIndex, SettingDocValues, SettingNullValue)},
	TypeDate:     {settings: allow(SettingStore, SettingIndex, SettingDocValues, SettingFormat, SettingNullValue)},
	TypeBinary:   {settings: allow(SettingStore, SettingDocValues)},
	TypeIP:       {settings: allow(SettingStore, SettingIndex, SettingDocValues, SettingNullValue)},
	TypeGeoPoint: {settings: allow(SettingStore, SettingIndex, SettingDocValues, SettingIgnoreMalformed)},
}

// ParseFieldType returns the leaf type with the given name.
func ParseFieldType(name string) (FieldType, bool) {
	t := FieldType(name)
	_, ok := fieldTypes[t]
	return t, ok
}

// ContainmentMode says whether an object's fields are flattened into the
// parent document or indexed as independent nested documents.
type ContainmentMode uint8

const (
	// ContainmentUndetermined is the mode of an object that never stated
	// one, such as the ancestors carried by a dynamic delta. It adopts the
	// mode of whatever it is merged with.
	ContainmentUndetermined ContainmentMode = iota
	ContainmentObject
	ContainmentNested
)

func (c ContainmentMode) String() string {
	switch c {
	case ContainmentUndetermined:
		return "undetermined"
	case ContainmentObject:
		return "non-nested"
	case ContainmentNested:
		return "nested"
	}
	return fmt.Sprintf("ContainmentMode(%d)", uint8(c))
}

// Dynamic is the policy for fields that a document introduces under an
// object but that the mapping does not know yet.
type Dynamic uint8

const (
	// DynamicUnset inherits the policy of the nearest ancestor.
	DynamicUnset Dynamic = iota
	DynamicTrue
	DynamicFalse
	DynamicStrict
)

func (d Dynamic) String() string {
	switch d {
	case DynamicUnset:
		return "unset"
	case DynamicTrue:
		return "true"
	case DynamicFalse:
		return "false"
	case DynamicStrict:
		return "strict"
	}
	return fmt.Sprintf("Dynamic(%d)", uint8(d))
}

func parseDynamic(v interface{}) (Dynamic, bool) {
	switch x := v.(type) {
	case bool:
		if x {
			return DynamicTrue, true
		}
		return DynamicFalse, true
	case string:
		switch x {
		case "true":
			return DynamicTrue, true
		case "false":
			return DynamicFalse, true
		case "strict":
			return DynamicStrict, true
		}
	}
	return DynamicUnset, false
}

func (d Dynamic) treeValue() interface{} {
	switch d {
	case DynamicTrue:
		return true
	case DynamicFalse:
		return false
	case DynamicStrict:
		return "strict"
	}
	return nil
}

// MergeReason selects the conflict policy of a merge.
type MergeReason uint8

const (
	// InitialBuild merges a declared mapping onto an empty one.
	InitialBuild MergeReason = iota
	// RuntimeUpdate merges mapping updates, including dynamic deltas found
	// while parsing documents.
	RuntimeUpdate
	// TemplateCompose layers templates; explicit values of later layers
	// overwrite earlier ones.
	TemplateCompose
)

func (r MergeReason) String() string {
	switch r {
	case InitialBuild:
		return "initial-build"
	case RuntimeUpdate:
		return "runtime-update"
	case TemplateCompose:
		return "template-compose"
	}
	return fmt.Sprintf("MergeReason(%d)", uint8(r))
}
