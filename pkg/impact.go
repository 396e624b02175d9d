package pkg

import (
	"context"
	"fmt"
	"strings"

	"github.com/chainguard-dev/clog"
	"github.com/samber/lo"
)

const (
	// installOverheadSeconds is the fixed per-package network/setup cost.
	// It keeps the estimate non-zero even for empty packages.
	installOverheadSeconds = 2.0
	// installSecondsPerMB approximates download plus unpack time.
	installSecondsPerMB = 1.5

	bytesPerMB = 1024 * 1024
)

// defaultPlatforms is the fixed platform set every assessment reports on.
var defaultPlatforms = []string{"linux", "macos", "windows"}

// platformClassifierPrefixes maps platform names to the classifier prefixes
// that declare support for them.
var platformClassifierPrefixes = map[string][]string{
	"linux":   {"Operating System :: POSIX", "Operating System :: Unix"},
	"macos":   {"Operating System :: MacOS"},
	"windows": {"Operating System :: Microsoft :: Windows"},
}

const osIndependentClassifier = "Operating System :: OS Independent"

// ImpactAssessor wraps the registry client and resolution simulator to
// estimate the cost of adopting a candidate.
type ImpactAssessor struct {
	Registry  Registry
	Simulator Simulator
}

// Assess implements the impact assessment contract.
func (a *ImpactAssessor) Assess(ctx context.Context, candidate PackageCandidate) (ImpactAssessment, error) {
	log := clog.FromContext(ctx)

	meta, err := a.Registry.FetchMetadata(ctx, candidate.Name)
	if err != nil {
		return ImpactAssessment{}, fmt.Errorf("failed to fetch metadata for %s: %w", candidate.Name, err)
	}

	assessment := ImpactAssessment{
		PlatformCompatibility: platformCompatibility(meta.Classifiers),
	}

	resolved := resolveVersion(meta, candidate.Constraint)
	for _, rel := range meta.Releases {
		if rel.Version != resolved {
			continue
		}
		var totalBytes int64
		for _, artifact := range rel.Artifacts {
			totalBytes += artifact.SizeBytes
		}
		assessment.BundleSizeMB = float64(totalBytes) / bytesPerMB
		break
	}
	assessment.EstimatedInstallSeconds = installOverheadSeconds + assessment.BundleSizeMB*installSecondsPerMB

	if a.Simulator != nil {
		if result, err := a.Simulator.DryRunAdd(ctx, candidate.Name, candidate.Constraint); err != nil {
			log.Debugf("impact dry run for %s unavailable: %v", candidate.Name, err)
		} else {
			candidateName := NormalizeName(candidate.Name)
			subs := lo.FilterMap(result.ResolvedTree, func(node ResolvedNode, _ int) (string, bool) {
				return node.Name, node.Name != candidateName
			})
			assessment.SubDependenciesAdded = lo.Uniq(subs)
		}
	}

	log.Debugf("impact for %s: %.2f MB, %d sub-dependencies",
		candidate.Name, assessment.BundleSizeMB, len(assessment.SubDependenciesAdded))
	return assessment, nil
}

// platformCompatibility derives the platform map from classifier tags. A
// package declaring no platform tags at all is assumed pure and portable.
func platformCompatibility(classifiers []string) map[string]bool {
	compat := make(map[string]bool, len(defaultPlatforms))

	var declaresAny bool
	for _, classifier := range classifiers {
		if strings.HasPrefix(classifier, "Operating System ::") {
			declaresAny = true
			break
		}
	}
	if !declaresAny {
		for _, platform := range defaultPlatforms {
			compat[platform] = true
		}
		return compat
	}

	independent := lo.Contains(classifiers, osIndependentClassifier)
	for _, platform := range defaultPlatforms {
		if independent {
			compat[platform] = true
			continue
		}
		compat[platform] = false
		for _, prefix := range platformClassifierPrefixes[platform] {
			for _, classifier := range classifiers {
				if strings.HasPrefix(classifier, prefix) {
					compat[platform] = true
				}
			}
		}
	}
	return compat
}
