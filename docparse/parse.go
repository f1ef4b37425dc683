// Package docparse parses JSON documents against a mapping, extracting the
// values of known fields and inferring a dynamic update for new ones.
package docparse

import (
	"encoding/base64"
	"errors"
	"fmt"
	"math"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/buger/jsonparser"
	"github.com/jrhy/mapping"
)

// DefaultKeywordIgnoreAbove is the ignore_above of the keyword multi-field
// added to inferred text fields.
const DefaultKeywordIgnoreAbove = 256

// dateLayouts are the formats date detection recognizes.
var dateLayouts = []string{time.RFC3339Nano, "2006-01-02T15:04:05", "2006-01-02", "2006/01/02"}

// Parser parses documents. The zero Parser is ready to use.
type Parser struct {
	// KeywordIgnoreAbove overrides DefaultKeywordIgnoreAbove when positive.
	KeywordIgnoreAbove int
}

// Parse parses a document with the zero Parser.
func Parse(m *mapping.Mapping, id string, source []byte) (*mapping.ParsedDocument, error) {
	return Parser{}.Parse(m, id, source)
}

// Parse extracts the values of source against the mapping m. Fields m does
// not know are added to the document's update according to the dynamic
// policy of the object they appear in: mapped with an inferred type when
// true, skipped when false, and rejected with a *StrictDynamicError when
// strict. The same document parsed against the same mapping always infers
// the same update.
func (p Parser) Parse(m *mapping.Mapping, id string, source []byte) (*mapping.ParsedDocument, error) {
	st := &state{
		parser:     p,
		mapping:    m,
		delta:      map[string]interface{}{},
		newLeaves:  map[string][]leaf{},
		newObjects: map[string]bool{},
	}
	if err := st.object("", source); err != nil {
		return nil, err
	}
	doc := &mapping.ParsedDocument{ID: id, Source: source, Fields: st.fields}
	if len(st.delta) > 0 {
		update, err := mapping.FromTree(map[string]interface{}{"properties": st.delta})
		if err != nil {
			return nil, fmt.Errorf("dynamic update: %w", err)
		}
		doc.Update = update
	}
	return doc, nil
}

// leaf is a field values are extracted for.
type leaf struct {
	path            string
	typ             mapping.FieldType
	ignoreAbove     int64
	ignoreMalformed bool
	// noCoerce rejects strings for numbers and fractions for integers.
	noCoerce bool
}

func leavesOf(f *mapping.FieldNode) []leaf {
	out := []leaf{leafOf(f)}
	for _, sub := range f.Fields() {
		out = append(out, leafOf(sub))
	}
	return out
}

func leafOf(f *mapping.FieldNode) leaf {
	l := leaf{path: f.Path(), typ: f.Type(), ignoreAbove: -1}
	if v, ok := f.Setting(mapping.SettingIgnoreAbove); ok {
		l.ignoreAbove = v.(int64)
	}
	l.ignoreMalformed = f.Bool(mapping.SettingIgnoreMalformed, false)
	l.noCoerce = !f.Bool(mapping.SettingCoerce, true)
	return l
}

type state struct {
	parser  Parser
	mapping *mapping.Mapping
	fields  []mapping.FieldValue

	// delta holds the root properties of the update tree.
	delta      map[string]interface{}
	newLeaves  map[string][]leaf
	newObjects map[string]bool
}

func (st *state) object(parent string, data []byte) error {
	err := jsonparser.ObjectEach(data, func(key, value []byte, dt jsonparser.ValueType, _ int) error {
		name := string(key)
		if name == "" {
			return parsingErrorf("field name cannot be an empty string")
		}
		if parent == "" && mapping.IsMetadataField(name) {
			return parsingErrorf("field [%s] is a metadata field and cannot be added inside a document", name)
		}
		names := strings.Split(name, ".")
		objPath := parent
		for _, n := range names[:len(names)-1] {
			if n == "" {
				return parsingErrorf("field name [%s] cannot contain an empty path element", name)
			}
			next, ok, err := st.enterObject(objPath, n)
			if err != nil || !ok {
				return err
			}
			objPath = next
		}
		last := names[len(names)-1]
		if last == "" {
			return parsingErrorf("field name [%s] cannot end with a dot", name)
		}
		return st.value(objPath, last, value, dt)
	})
	if err != nil && !isKnown(err) {
		return parsingErrorf("malformed object at [%s]: %v", parent, err)
	}
	return err
}

func isKnown(err error) bool {
	var strict *StrictDynamicError
	return errors.Is(err, ErrMapperParsing) || errors.As(err, &strict)
}

// enterObject resolves the object a document value nests under, adding it
// to the update when it is new. ok is false when its contents are to be
// skipped.
func (st *state) enterObject(parent, name string) (path string, ok bool, err error) {
	path = join(parent, name)
	if n, found := st.mapping.Lookup(path); found {
		o, isObject := n.(*mapping.ObjectNode)
		if !isObject {
			return "", false, parsingErrorf("could not dynamically add mapping for field [%s]: existing mapping for [%s] must be of type object but found [%s]",
				path, path, n.TypeName())
		}
		return path, o.Enabled(), nil
	}
	if st.newObjects[path] {
		return path, true, nil
	}
	if _, isLeaf := st.newLeaves[path]; isLeaf {
		return "", false, parsingErrorf("could not dynamically add mapping for field [%s]: it was already added as a field", path)
	}
	switch st.mapping.EffectiveDynamic(parent) {
	case mapping.DynamicStrict:
		return "", false, &StrictDynamicError{Path: path, Parent: parent}
	case mapping.DynamicFalse:
		return "", false, nil
	}
	body := st.entry(parent, name)
	body["type"] = "object"
	st.newObjects[path] = true
	return path, true, nil
}

func (st *state) value(parent, name string, value []byte, dt jsonparser.ValueType) error {
	path := join(parent, name)
	switch dt {
	case jsonparser.Null:
		return nil
	case jsonparser.Array:
		var firstErr error
		_, err := jsonparser.ArrayEach(value, func(elem []byte, edt jsonparser.ValueType, _ int, err error) {
			if firstErr != nil {
				return
			}
			if err != nil {
				firstErr = err
				return
			}
			firstErr = st.value(parent, name, elem, edt)
		})
		if firstErr != nil {
			return firstErr
		}
		if err != nil {
			return parsingErrorf("malformed array at [%s]: %v", path, err)
		}
		return nil
	case jsonparser.Object:
		if n, ok := st.mapping.Lookup(path); ok {
			if f, isField := n.(*mapping.FieldNode); isField && f.Type() == mapping.TypeGeoPoint {
				return st.extract(leavesOf(f), value, dt)
			}
		}
		objPath, ok, err := st.enterObject(parent, name)
		if err != nil || !ok {
			return err
		}
		return st.object(objPath, value)
	}

	if n, ok := st.mapping.Lookup(path); ok {
		f, isField := n.(*mapping.FieldNode)
		if !isField {
			return parsingErrorf("object mapping for [%s] tried to parse field [%s] as object, but found a concrete value", path, name)
		}
		return st.extract(leavesOf(f), value, dt)
	}
	if leaves, ok := st.newLeaves[path]; ok {
		return st.extract(leaves, value, dt)
	}
	if st.newObjects[path] {
		return parsingErrorf("object mapping for [%s] tried to parse field [%s] as object, but found a concrete value", path, name)
	}
	switch st.mapping.EffectiveDynamic(parent) {
	case mapping.DynamicStrict:
		return &StrictDynamicError{Path: path, Parent: parent}
	case mapping.DynamicFalse:
		return nil
	}
	leaves, err := st.infer(parent, name, value, dt)
	if err != nil {
		return err
	}
	return st.extract(leaves, value, dt)
}

// infer adds a new field for a concrete value to the update.
func (st *state) infer(parent, name string, value []byte, dt jsonparser.ValueType) ([]leaf, error) {
	path := join(parent, name)
	typ := mapping.TypeText
	switch dt {
	case jsonparser.Boolean:
		typ = mapping.TypeBoolean
	case jsonparser.Number:
		typ = mapping.TypeFloat
		if _, err := jsonparser.ParseInt(value); err == nil {
			typ = mapping.TypeLong
		}
	case jsonparser.String:
		s, err := jsonparser.ParseString(value)
		if err != nil {
			return nil, parsingErrorf("malformed string at [%s]: %v", path, err)
		}
		switch {
		case st.mapping.DateDetection() && isDate(s):
			typ = mapping.TypeDate
		case st.mapping.NumericDetection() && isInteger(s):
			typ = mapping.TypeLong
		case st.mapping.NumericDetection() && isFloat(s):
			typ = mapping.TypeFloat
		}
	default:
		return nil, parsingErrorf("cannot infer a type for [%s]", path)
	}
	body := st.entry(parent, name)
	body["type"] = string(typ)
	leaves := []leaf{{path: path, typ: typ, ignoreAbove: -1}}
	if typ == mapping.TypeText {
		ignoreAbove := st.parser.KeywordIgnoreAbove
		if ignoreAbove <= 0 {
			ignoreAbove = DefaultKeywordIgnoreAbove
		}
		body["fields"] = map[string]interface{}{
			"keyword": map[string]interface{}{
				"type":         string(mapping.TypeKeyword),
				"ignore_above": ignoreAbove,
			},
		}
		leaves = append(leaves, leaf{path: path + ".keyword", typ: mapping.TypeKeyword, ignoreAbove: int64(ignoreAbove)})
	}
	st.newLeaves[path] = leaves
	return leaves, nil
}

// entry returns the update tree body for parent.name, creating it and the
// bodies of its ancestors. Ancestors state no type, so they take the
// containment of the mapping the update is merged into.
func (st *state) entry(parent, name string) map[string]interface{} {
	props := st.delta
	if parent != "" {
		grand, pname := split(parent)
		pbody := st.entry(grand, pname)
		p, ok := pbody["properties"].(map[string]interface{})
		if !ok {
			p = map[string]interface{}{}
			pbody["properties"] = p
		}
		props = p
	}
	body, ok := props[name].(map[string]interface{})
	if !ok {
		body = map[string]interface{}{}
		props[name] = body
	}
	return body
}

func (st *state) extract(leaves []leaf, value []byte, dt jsonparser.ValueType) error {
	for _, l := range leaves {
		v, err := convert(l, value, dt)
		if err != nil {
			if l.ignoreMalformed {
				continue
			}
			return err
		}
		if s, ok := v.(string); ok && l.ignoreAbove >= 0 && int64(len(s)) > l.ignoreAbove {
			continue
		}
		st.fields = append(st.fields, mapping.FieldValue{Path: l.path, Type: l.typ, Value: v})
	}
	return nil
}

func convert(l leaf, value []byte, dt jsonparser.ValueType) (interface{}, error) {
	failed := func() error {
		return parsingErrorf("failed to parse field [%s] of type [%s]", l.path, l.typ)
	}
	var s string
	if dt == jsonparser.String {
		var err error
		s, err = jsonparser.ParseString(value)
		if err != nil {
			return nil, failed()
		}
	}
	switch l.typ {
	case mapping.TypeText, mapping.TypeKeyword:
		switch dt {
		case jsonparser.String:
			return s, nil
		case jsonparser.Number, jsonparser.Boolean:
			return string(value), nil
		}
	case mapping.TypeLong, mapping.TypeInteger, mapping.TypeShort, mapping.TypeByte:
		if dt == jsonparser.Number {
			s = string(value)
		} else if dt != jsonparser.String || l.noCoerce {
			break
		}
		n, err := strconv.ParseInt(s, 10, 64)
		if errors.Is(err, strconv.ErrRange) {
			return nil, parsingErrorf("value [%s] is out of range for field [%s] of type [%s]", s, l.path, l.typ)
		}
		if err != nil {
			// int64 covers [-2^63, 2^63); 2^63 itself has no int64.
			f, ferr := strconv.ParseFloat(s, 64)
			if ferr != nil || math.IsNaN(f) || f >= 0x1p63 || f < -0x1p63 {
				return nil, failed()
			}
			if l.noCoerce && f != math.Trunc(f) {
				return nil, failed()
			}
			n = int64(f)
		}
		if lo, hi := integerRange(l.typ); n < lo || n > hi {
			return nil, parsingErrorf("value [%d] is out of range for field [%s] of type [%s]", n, l.path, l.typ)
		}
		return n, nil
	case mapping.TypeDouble, mapping.TypeFloat:
		if dt == jsonparser.Number {
			s = string(value)
		} else if dt != jsonparser.String || l.noCoerce {
			break
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil, failed()
		}
		return f, nil
	case mapping.TypeBoolean:
		switch dt {
		case jsonparser.Boolean:
			b, err := jsonparser.ParseBoolean(value)
			if err != nil {
				return nil, failed()
			}
			return b, nil
		case jsonparser.String:
			switch s {
			case "true":
				return true, nil
			case "false", "":
				return false, nil
			}
		}
	case mapping.TypeDate:
		switch dt {
		case jsonparser.String:
			if t, ok := parseDate(s); ok {
				return t, nil
			}
		case jsonparser.Number:
			ms, err := jsonparser.ParseInt(value)
			if err != nil {
				return nil, failed()
			}
			return time.UnixMilli(ms).UTC(), nil
		}
	case mapping.TypeIP:
		if dt == jsonparser.String && net.ParseIP(s) != nil {
			return s, nil
		}
	case mapping.TypeBinary:
		if dt == jsonparser.String {
			b, err := base64.StdEncoding.DecodeString(s)
			if err != nil {
				return nil, failed()
			}
			return b, nil
		}
	case mapping.TypeGeoPoint:
		switch dt {
		case jsonparser.Object:
			lat, err1 := jsonparser.GetFloat(value, "lat")
			lon, err2 := jsonparser.GetFloat(value, "lon")
			if err1 == nil && err2 == nil {
				return [2]float64{lat, lon}, nil
			}
		case jsonparser.String:
			parts := strings.Split(s, ",")
			if len(parts) == 2 {
				lat, err1 := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
				lon, err2 := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
				if err1 == nil && err2 == nil {
					return [2]float64{lat, lon}, nil
				}
			}
		}
	}
	return nil, failed()
}

func integerRange(t mapping.FieldType) (int64, int64) {
	switch t {
	case mapping.TypeInteger:
		return math.MinInt32, math.MaxInt32
	case mapping.TypeShort:
		return math.MinInt16, math.MaxInt16
	case mapping.TypeByte:
		return math.MinInt8, math.MaxInt8
	}
	return math.MinInt64, math.MaxInt64
}

func parseDate(s string) (time.Time, bool) {
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func isDate(s string) bool {
	_, ok := parseDate(s)
	return ok
}

func isInteger(s string) bool {
	_, err := strconv.ParseInt(s, 10, 64)
	return err == nil
}

func isFloat(s string) bool {
	f, err := strconv.ParseFloat(s, 64)
	return err == nil && !math.IsInf(f, 0) && !math.IsNaN(f)
}

func join(parent, name string) string {
	if parent == "" {
		return name
	}
	return parent + "." + name
}

func split(path string) (string, string) {
	i := strings.LastIndexByte(path, '.')
	if i < 0 {
		return "", path
	}
	return path[:i], path[i+1:]
}
