// Package parse contains pure functions for parsing deployment artifacts.
// Each parser turns raw file content into a normalized DeploymentArtifact;
// no parser performs I/O.
package parse

import (
	"errors"
	"fmt"

	"github.com/artpar/shipmap/internal/core/domain"
)

// =============================================================================
// Error Types
// =============================================================================

var (
	// ErrEmptyInput is returned for empty or whitespace-only files.
	ErrEmptyInput = errors.New("artifact is empty")

	// ErrInvalidYAML is returned when content is not valid YAML at all.
	ErrInvalidYAML = errors.New("invalid YAML syntax")

	// ErrNotAManifest is returned when a document lacks the structure of
	// the declared format entirely.
	ErrNotAManifest = errors.New("content does not match declared format")

	// ErrNoServices is returned when nothing service-like could be
	// extracted from the artifact.
	ErrNoServices = errors.New("no service declarations found")

	// ErrUnknownFormat is returned for formats with no registered parser.
	ErrUnknownFormat = errors.New("no parser registered for format")
)

// ParseError wraps a parse failure with the format and path where it
// occurred. Parse errors are recoverable: the artifact is excluded from the
// map and the failure surfaces as a warning in the report.
type ParseError struct {
	Format domain.Format
	Path   string
	Detail string
	Err    error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("%s (%s): %s", e.Path, e.Format, e.Detail)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// NewParseError creates a new ParseError.
func NewParseError(format domain.Format, path, detail string, err error) *ParseError {
	return &ParseError{Format: format, Path: path, Detail: detail, Err: err}
}
