package mapping

// FieldValue is one value a parser extracted from a document, resolved
// against a field of the mapping or of the document's dynamic update.
type FieldValue struct {
	Path  string
	Type  FieldType
	Value interface{}
}

// ParsedDocument is what a parser produces for one document: the values it
// extracted, and the fields it found that the mapping it parsed against
// did not know.
type ParsedDocument struct {
	ID     string
	Source []byte
	Fields []FieldValue
	// Update holds only the newly discovered fields, with their ancestor
	// objects left undetermined, or nil when nothing new was found.
	Update *Mapping
}

// Values returns the values extracted for a path, in document order.
func (d *ParsedDocument) Values(path string) []interface{} {
	var out []interface{}
	for _, f := range d.Fields {
		if f.Path == path {
			out = append(out, f.Value)
		}
	}
	return out
}
