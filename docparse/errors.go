package docparse

import (
	"errors"
	"fmt"
)

// ErrMapperParsing is wrapped by errors about documents whose values do not
// fit the mapping.
var ErrMapperParsing = errors.New("failed to parse document")

// StrictDynamicError reports a field a document introduced under an object
// whose dynamic policy is strict.
type StrictDynamicError struct {
	Path   string
	Parent string
}

func (e *StrictDynamicError) Error() string {
	parent := e.Parent
	if parent == "" {
		parent = "_doc"
	}
	return fmt.Sprintf("mapping set to strict, dynamic introduction of [%s] within [%s] is not allowed", e.Path, parent)
}

func parsingErrorf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrMapperParsing, fmt.Sprintf(format, args...))
}
