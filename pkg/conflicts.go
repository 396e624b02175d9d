package pkg

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/chainguard-dev/clog"
)

// conflictMarkers are the resolver diagnostics that indicate a version
// conflict rather than an operational failure.
var conflictMarkers = []string{
	"no version satisfies",
	"resolutionimpossible",
	"conflicting dependencies",
	"cannot install",
	"incompatible with",
}

var circularPattern = regexp.MustCompile(`(?i)circular dependenc(?:y|ies)[^:]*:?\s*(.+)`)

// ConflictAnalyzer wraps the resolution simulator and interprets its
// diagnostics as structured conflict information.
type ConflictAnalyzer struct {
	Simulator Simulator
}

// Check runs a non-committing add of the candidate and classifies the
// resolver's diagnostics. It fails with ErrConflictCheckUnavailable when the
// simulator itself cannot run; the orchestrator turns that into "unknown".
func (a *ConflictAnalyzer) Check(ctx context.Context, candidate PackageCandidate) (ConflictInfo, error) {
	log := clog.FromContext(ctx)

	if a.Simulator == nil {
		return ConflictInfo{}, fmt.Errorf("%w: no simulator configured", ErrConflictCheckUnavailable)
	}
	result, err := a.Simulator.DryRunAdd(ctx, candidate.Name, candidate.Constraint)
	if err != nil {
		return ConflictInfo{}, fmt.Errorf("dry-run add of %s failed: %w", candidate.Name, err)
	}

	info := ConflictInfo{}
	for _, diag := range result.Diagnostics {
		if cycle := parseCycle(diag); len(cycle) > 0 {
			info.CircularDependencies = append(info.CircularDependencies, cycle)
			continue
		}
		if isConflictDiagnostic(diag) {
			info.Conflicts = append(info.Conflicts, diag)
		}
	}
	if !result.Success && len(info.Conflicts) == 0 && len(info.CircularDependencies) == 0 {
		// Resolver refused without a recognizable message; keep the raw
		// diagnostics so the report stays auditable.
		info.Conflicts = append(info.Conflicts, result.Diagnostics...)
	}
	info.HasConflicts = len(info.Conflicts) > 0 || len(info.CircularDependencies) > 0

	candidateName := NormalizeName(candidate.Name)
	for _, node := range result.ResolvedTree {
		if node.Name == candidateName {
			continue
		}
		info.TotalSubDependencies++
		if node.Depth > info.TreeDepth {
			info.TreeDepth = node.Depth
		}
	}

	log.Debugf("conflict check for %s: conflicts=%d cycles=%d subdeps=%d",
		candidate.Name, len(info.Conflicts), len(info.CircularDependencies), info.TotalSubDependencies)
	return info, nil
}

func isConflictDiagnostic(diag string) bool {
	lower := strings.ToLower(diag)
	for _, marker := range conflictMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}

// parseCycle extracts a package cycle from diagnostics like
// "circular dependency detected: alpha -> beta -> alpha".
func parseCycle(diag string) []string {
	m := circularPattern.FindStringSubmatch(diag)
	if m == nil {
		return nil
	}
	var cycle []string
	for _, part := range strings.Split(m[1], "->") {
		if name := NormalizeName(part); name != "" {
			cycle = append(cycle, name)
		}
	}
	if len(cycle) < 2 {
		return nil
	}
	return cycle
}
