package pkg

import (
	"context"
	"fmt"
	"strings"

	"github.com/Masterminds/semver/v3"
	"github.com/chainguard-dev/clog"
)

// deprecationClassifiers are the metadata classifiers that explicitly mark a
// package as no longer maintained.
var deprecationClassifiers = []string{
	"Development Status :: 7 - Inactive",
}

// VersionAnalyzer wraps the registry client and reports staleness,
// deprecation, and a suggested version constraint.
type VersionAnalyzer struct {
	Registry Registry
}

// Analyze implements the version analysis contract. Staleness alone never
// sets the deprecation flag; only explicit markers do.
func (a *VersionAnalyzer) Analyze(ctx context.Context, candidate PackageCandidate) (VersionInfo, error) {
	log := clog.FromContext(ctx)

	meta, err := a.Registry.FetchMetadata(ctx, candidate.Name)
	if err != nil {
		return VersionInfo{}, fmt.Errorf("failed to fetch metadata for %s: %w", candidate.Name, err)
	}

	latest, latestRelease := latestStableRelease(meta.Releases)
	info := VersionInfo{
		RequestedVersion: pinnedVersion(candidate.Constraint),
		LatestStable:     latest,
		IsDeprecated:     isDeprecated(meta),
	}
	if latestRelease != nil {
		info.ReleaseDate = latestRelease.ReleaseDate
	}
	info.IsLatest = info.RequestedVersion == "" || info.RequestedVersion == latest

	if latest != "" {
		info.SuggestedConstraint = suggestedConstraint(latest)
		if info.RequestedVersion != "" {
			info.BreakingChanges = breakingChanges(info.RequestedVersion, latest)
		}
	}

	log.Debugf("version analysis for %s: latest=%s deprecated=%t", candidate.Name, latest, info.IsDeprecated)
	return info, nil
}

// latestStableRelease returns the highest version lacking a pre-release or
// yanked marker, along with its release record.
func latestStableRelease(releases []Release) (string, *Release) {
	var best *semver.Version
	var bestRelease *Release
	for i := range releases {
		rel := &releases[i]
		if rel.Yanked {
			continue
		}
		v, err := semver.NewVersion(rel.Version)
		if err != nil || v.Prerelease() != "" {
			continue
		}
		if best == nil || v.GreaterThan(best) {
			best = v
			bestRelease = rel
		}
	}
	if best == nil {
		return "", nil
	}
	return bestRelease.Version, bestRelease
}

// pinnedVersion extracts an exact version from a constraint, or "" when the
// constraint is absent or a range.
func pinnedVersion(constraint string) string {
	constraint = strings.TrimSpace(constraint)
	if constraint == "" || strings.ContainsAny(constraint, ",") {
		return ""
	}
	if v, ok := strings.CutPrefix(constraint, "=="); ok {
		return strings.TrimSpace(v)
	}
	if _, err := semver.NewVersion(constraint); err == nil {
		return constraint
	}
	return ""
}

// resolveVersion picks the version the resolver would install: the highest
// stable release satisfying the constraint, or the latest stable when no
// constraint is given.
func resolveVersion(meta *PackageMetadata, constraint string) string {
	latest, _ := latestStableRelease(meta.Releases)
	if strings.TrimSpace(constraint) == "" {
		return latest
	}
	c, err := semver.NewConstraint(strings.ReplaceAll(constraint, "==", "="))
	if err != nil {
		return latest
	}
	var best *semver.Version
	var bestVersion string
	for _, rel := range meta.Releases {
		if rel.Yanked {
			continue
		}
		v, err := semver.NewVersion(rel.Version)
		if err != nil || !c.Check(v) {
			continue
		}
		if best == nil || v.GreaterThan(best) {
			best = v
			bestVersion = rel.Version
		}
	}
	if bestVersion == "" {
		return latest
	}
	return bestVersion
}

// suggestedConstraint builds a caret-style range anchored at the latest
// stable major.minor. Pre-1.0 versions get the narrower minor-bumping range.
func suggestedConstraint(latest string) string {
	v, err := semver.NewVersion(latest)
	if err != nil {
		return fmt.Sprintf("==%s", latest)
	}
	if v.Major() == 0 {
		return fmt.Sprintf(">=0.%d,<0.%d", v.Minor(), v.Minor()+1)
	}
	return fmt.Sprintf(">=%d.%d,<%d.0", v.Major(), v.Minor(), v.Major()+1)
}

func breakingChanges(requested, latest string) []string {
	reqV, err1 := semver.NewVersion(requested)
	latestV, err2 := semver.NewVersion(latest)
	if err1 != nil || err2 != nil {
		return nil
	}
	if latestV.Major() > reqV.Major() {
		return []string{fmt.Sprintf(
			"major version %d is available; upgrading from %s may require code changes",
			latestV.Major(), requested)}
	}
	return nil
}

// isDeprecated checks the explicit deprecation signals: description markers,
// a deprecation classifier, or a registry where every recent release has
// been yanked.
func isDeprecated(meta *PackageMetadata) bool {
	desc := strings.ToUpper(meta.Description)
	if strings.HasPrefix(desc, "DEPRECATED") || strings.Contains(desc, "THIS PACKAGE IS DEPRECATED") {
		return true
	}
	for _, classifier := range meta.Classifiers {
		for _, marker := range deprecationClassifiers {
			if classifier == marker {
				return true
			}
		}
	}
	if len(meta.Releases) > 0 {
		allYanked := true
		for _, rel := range meta.Releases {
			if !rel.Yanked {
				allYanked = false
				break
			}
		}
		if allYanked {
			return true
		}
	}
	return false
}
