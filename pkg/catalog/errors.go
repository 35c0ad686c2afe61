package catalog

import (
	"errors"
	"fmt"
)

var (
	ErrNodeNotFound        = errors.New("node type not found")
	ErrTemplateNotFound    = errors.New("template not found")
	ErrDuplicateNodeType   = errors.New("duplicate node type")
	ErrDuplicateTemplateID = errors.New("duplicate template id")
	ErrInvalidDefinition   = errors.New("invalid catalog definition")
	ErrInvalidSearchMode   = errors.New("invalid search mode")
	ErrInvalidTemplateMode = errors.New("invalid template mode")
	ErrUnsupportedFormat   = errors.New("unsupported catalog file format")
)

// LoadError reports a catalog file that could not be read or decoded.
type LoadError struct {
	Path string
	Err  error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("catalog %s: %v", e.Path, e.Err)
}

func (e *LoadError) Unwrap() error {
	return e.Err
}

// IsNotFound reports whether err is a missing node type or template.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNodeNotFound) || errors.Is(err, ErrTemplateNotFound)
}

// IsInvalidQuery reports whether err was caused by caller-supplied search options.
func IsInvalidQuery(err error) bool {
	return errors.Is(err, ErrInvalidSearchMode) || errors.Is(err, ErrInvalidTemplateMode)
}
