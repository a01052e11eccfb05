// Package scanner walks a repository tree and classifies candidate
// deployment artifacts by format signature.
package scanner

import (
	"errors"
	"fmt"
)

// =============================================================================
// Error Types
// =============================================================================

var (
	// ErrRootNotDir is returned when the scan root is not a directory.
	ErrRootNotDir = errors.New("scan root is not a directory")

	// ErrCyclicSymlink is returned when a symbolic link resolves back into
	// an already-visited ancestor directory.
	ErrCyclicSymlink = errors.New("cyclic symlink detected")
)

// ScanError wraps filesystem errors with the path where scanning failed.
// Scan errors are fatal: they abort the run.
type ScanError struct {
	Path    string
	Message string
	Err     error
}

func (e *ScanError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("%s: %s", e.Path, e.Message)
	}
	return e.Message
}

func (e *ScanError) Unwrap() error {
	return e.Err
}

// NewScanError creates a new ScanError.
func NewScanError(path, message string, err error) *ScanError {
	return &ScanError{Path: path, Message: message, Err: err}
}
