package pkg

import (
	"errors"
	"fmt"
)

// ErrPackageNotFound is the terminal error: the package name cannot be
// resolved upstream, so no report can be produced.
var ErrPackageNotFound = errors.New("package not found")

// ErrAnalyzerUnavailable marks a recoverable per-analyzer failure. The
// orchestrator absorbs it and degrades that analyzer's contribution to
// "unknown" rather than aborting the whole call.
var ErrAnalyzerUnavailable = errors.New("analyzer unavailable")

// ErrConflictCheckUnavailable is the conflict analyzer's specialization of
// ErrAnalyzerUnavailable, raised when the resolution simulator cannot run.
var ErrConflictCheckUnavailable = fmt.Errorf("conflict check unavailable: %w", ErrAnalyzerUnavailable)

// NotFoundError wraps ErrPackageNotFound with the offending name.
type NotFoundError struct {
	Name string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("package %q not found in registry", e.Name)
}

func (e *NotFoundError) Unwrap() error { return ErrPackageNotFound }

// UnavailableError wraps ErrAnalyzerUnavailable with the analyzer name and
// the underlying cause. Timeouts are reported through the same type.
type UnavailableError struct {
	Analyzer string
	Err      error
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("%s analyzer unavailable: %v", e.Analyzer, e.Err)
}

func (e *UnavailableError) Unwrap() error { return ErrAnalyzerUnavailable }
