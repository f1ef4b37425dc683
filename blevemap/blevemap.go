// Package blevemap exports mappings as bleve index mappings, so that the
// fields a mapping has accumulated can be indexed and searched with bleve.
package blevemap

import (
	"fmt"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/keyword"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/standard"
	blevemapping "github.com/blevesearch/bleve/v2/mapping"
	"github.com/jrhy/mapping"
)

// Options controls the export.
type Options struct {
	// Analyzers translates analyzer names of the mapping into names
	// registered with bleve. Names it lacks are used as they are, except
	// mapping.DefaultAnalyzer, which becomes bleve's standard analyzer.
	Analyzers map[string]string
	// DateTimeParser names the bleve date parser of date fields. Empty
	// keeps bleve's default.
	DateTimeParser string
}

func (o Options) analyzer(name string) string {
	if a, ok := o.Analyzers[name]; ok {
		return a
	}
	if name == mapping.DefaultAnalyzer {
		return standard.Name
	}
	return name
}

// IndexMapping builds the bleve index mapping of m and validates it. Objects
// become sub-document mappings, nested ones included, since bleve indexes
// them in the parent document. Multi-fields become extra field mappings of
// their leaf, named by their full path. Binary fields are not indexed.
func IndexMapping(m *mapping.Mapping, opts Options) (*blevemapping.IndexMappingImpl, error) {
	im := bleve.NewIndexMapping()
	im.DefaultAnalyzer = opts.analyzer(mapping.DefaultAnalyzer)
	if opts.DateTimeParser != "" {
		im.DefaultDateTimeParser = opts.DateTimeParser
	}
	im.StoreDynamic = m.SourceEnabled()
	im.IndexDynamic = m.EffectiveDynamic("") == mapping.DynamicTrue
	dm, err := documentMapping(m, m.Root(), opts)
	if err != nil {
		return nil, err
	}
	im.DefaultMapping = dm
	if err := im.Validate(); err != nil {
		return nil, fmt.Errorf("validate: %w", err)
	}
	return im, nil
}

func documentMapping(m *mapping.Mapping, o *mapping.ObjectNode, opts Options) (*blevemapping.DocumentMapping, error) {
	dm := &blevemapping.DocumentMapping{
		Enabled:    o.Enabled(),
		Dynamic:    m.EffectiveDynamic(o.Path()) == mapping.DynamicTrue,
		Properties: map[string]*blevemapping.DocumentMapping{},
	}
	for _, child := range o.Children() {
		switch c := child.(type) {
		case *mapping.ObjectNode:
			sub, err := documentMapping(m, c, opts)
			if err != nil {
				return nil, err
			}
			dm.Properties[c.Name()] = sub
		case *mapping.FieldNode:
			var fields []*blevemapping.FieldMapping
			if fm := fieldMapping(c, c.Name(), opts); fm != nil {
				fields = append(fields, fm)
			}
			for _, sub := range c.Fields() {
				if fm := fieldMapping(sub, c.Name()+"."+sub.Name(), opts); fm != nil {
					fields = append(fields, fm)
				}
			}
			if len(fields) == 0 {
				continue
			}
			dm.Properties[c.Name()] = &blevemapping.DocumentMapping{
				Enabled:    true,
				Properties: map[string]*blevemapping.DocumentMapping{},
				Fields:     fields,
			}
		}
	}
	return dm, nil
}

func fieldMapping(f *mapping.FieldNode, name string, opts Options) *blevemapping.FieldMapping {
	fm := &blevemapping.FieldMapping{
		Name:      name,
		Store:     f.Bool(mapping.SettingStore, false),
		Index:     f.Bool(mapping.SettingIndex, true),
		DocValues: f.Bool(mapping.SettingDocValues, true),
	}
	switch t := f.Type(); {
	case t == mapping.TypeText:
		fm.Type = "text"
		fm.Analyzer = opts.analyzer(f.IndexAnalyzer())
		fm.IncludeTermVectors = true
		fm.DocValues = false
	case t == mapping.TypeKeyword:
		fm.Type = "text"
		fm.Analyzer = keyword.Name
	case t.IsNumeric():
		fm.Type = "number"
	case t == mapping.TypeBoolean:
		fm.Type = "boolean"
	case t == mapping.TypeDate:
		fm.Type = "datetime"
	case t == mapping.TypeIP:
		fm.Type = "IP"
	case t == mapping.TypeGeoPoint:
		fm.Type = "geopoint"
	default:
		return nil
	}
	return fm
}
