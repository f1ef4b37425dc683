package mapping

import (
	"errors"
	"fmt"
)

var (
	// ErrMergeConflict is wrapped by every error that aborts a structural merge.
	ErrMergeConflict = errors.New("mapping merge conflict")
	// ErrSchemaDefinition is wrapped by every SchemaDefinitionError.
	ErrSchemaDefinition = errors.New("invalid mapping definition")
	// ErrUnknownField is returned for lookups of paths the mapping lacks.
	ErrUnknownField = errors.New("unknown field")
	// ErrNotAnalyzed is returned when asking for the analyzer of a field
	// that is not analyzed text.
	ErrNotAnalyzed = errors.New("field is not analyzed")
	// ErrAbsent is returned for operations on names the registry lacks.
	ErrAbsent = errors.New("mapping absent")
	// ErrExists is returned when creating a mapping under a name already in use.
	ErrExists = errors.New("mapping exists")
)

// SchemaDefinitionError reports malformed input to a mapping constructor.
type SchemaDefinitionError struct {
	Path   string
	Reason string
}

func (e *SchemaDefinitionError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("invalid mapping: %s", e.Reason)
	}
	return fmt.Sprintf("invalid mapping at [%s]: %s", e.Path, e.Reason)
}

func (e *SchemaDefinitionError) Unwrap() error { return ErrSchemaDefinition }

func definitionErrorf(path, format string, args ...interface{}) error {
	return &SchemaDefinitionError{Path: path, Reason: fmt.Sprintf(format, args...)}
}

// ContainmentConflictError reports an object that one side of a merge
// declares nested and the other plain.
type ContainmentConflictError struct {
	Path     string
	Base     ContainmentMode
	Incoming ContainmentMode
}

func (e *ContainmentConflictError) Error() string {
	return fmt.Sprintf("object mapping [%s] can't be changed: cannot change object mapping from %s to %s",
		e.Path, e.Base, e.Incoming)
}

func (e *ContainmentConflictError) Unwrap() error { return ErrMergeConflict }

// TypeConflictError reports a path whose declared types differ across a
// merge. Objects report "object" or "nested" as their type.
type TypeConflictError struct {
	Path         string
	BaseType     string
	IncomingType string
}

func (e *TypeConflictError) Error() string {
	return fmt.Sprintf("mapper [%s] cannot be changed from type [%s] to [%s]",
		e.Path, e.BaseType, e.IncomingType)
}

func (e *TypeConflictError) Unwrap() error { return ErrMergeConflict }
