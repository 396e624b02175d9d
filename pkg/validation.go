package pkg

import (
	"fmt"
	"regexp"
	"strings"
)

const (
	maxNameLength       = 214
	maxConstraintLength = 128
)

var (
	// Plain package names after normalization: lowercase letters, digits,
	// and separators.
	packageNameRegex = regexp.MustCompile(`^[a-z0-9][a-z0-9._-]*$`)
	// group:artifact coordinates. Repository paths are case-sensitive, so
	// uppercase survives here.
	coordinateRegex = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]*:[A-Za-z0-9][A-Za-z0-9._-]*$`)
	// Constraints follow pip-style specifier lists (">=1.2,<2.0", "==1.2.3").
	constraintRegex = regexp.MustCompile(`^[a-zA-Z0-9.*+!=<>~,\s-]+$`)
)

// NormalizeName canonicalizes a plain package name: lowercase with
// underscores folded to hyphens, so case and underscore variants of one name
// always collapse to a single lookup key. group:artifact coordinates are
// only trimmed: Maven repository paths are case-sensitive, and folding their
// case would turn mixed-case artifacts into spurious not-found errors. The
// transform is idempotent either way.
func NormalizeName(name string) string {
	name = strings.TrimSpace(name)
	if strings.Contains(name, ":") {
		return name
	}
	name = strings.ToLower(name)
	return strings.ReplaceAll(name, "_", "-")
}

// ValidateCandidate ensures the candidate contains safe and valid values
// before any of it reaches a registry URL or a subprocess argument.
func ValidateCandidate(candidate PackageCandidate) error {
	name := NormalizeName(candidate.Name)
	if name == "" {
		return fmt.Errorf("package name cannot be empty")
	}
	if len(name) > maxNameLength {
		return fmt.Errorf("package name too long: %d characters (max: %d)", len(name), maxNameLength)
	}
	nameRegex := packageNameRegex
	if strings.Contains(name, ":") {
		nameRegex = coordinateRegex
	}
	if !nameRegex.MatchString(name) {
		return fmt.Errorf("package name contains invalid characters: %s", candidate.Name)
	}

	if candidate.Constraint == "" {
		return nil
	}
	if len(candidate.Constraint) > maxConstraintLength {
		return fmt.Errorf("version constraint too long: %d characters (max: %d)", len(candidate.Constraint), maxConstraintLength)
	}
	if !constraintRegex.MatchString(candidate.Constraint) {
		return fmt.Errorf("version constraint contains invalid characters: %s", candidate.Constraint)
	}
	return nil
}
