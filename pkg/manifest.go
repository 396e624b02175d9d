package pkg

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/chainguard-dev/clog"
	"github.com/chainguard-dev/gopom"
)

var (
	// requirementPattern matches pip-style lines: name, optional extras,
	// optional version specifier, optional environment marker.
	requirementPattern = regexp.MustCompile(`^([\w.-]+)(?:\[[\w\s,.-]*\])?\s*((?:[><=~!]=?\s*[\w.*+-]+\s*,?\s*)*)(?:;.*)?$`)
)

// ParseManifest reads a project manifest and returns the declared
// dependencies as candidates. The format is picked from the filename:
// requirements-style text files and Maven pom.xml files are supported.
func ParseManifest(ctx context.Context, path string) ([]PackageCandidate, error) {
	switch {
	case strings.HasSuffix(path, ".xml"):
		return parsePomManifest(ctx, path)
	default:
		return parseRequirementsManifest(ctx, path)
	}
}

func parseRequirementsManifest(ctx context.Context, path string) ([]PackageCandidate, error) {
	log := clog.FromContext(ctx)

	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open manifest %s: %w", path, err)
	}
	defer file.Close()

	var candidates []PackageCandidate
	scanner := bufio.NewScanner(file)
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())
		if i := strings.Index(line, "#"); i >= 0 {
			line = strings.TrimSpace(line[:i])
		}
		if line == "" || strings.HasPrefix(line, "-") {
			// Option lines (-r, -e, --index-url) are pip's business.
			continue
		}

		m := requirementPattern.FindStringSubmatch(line)
		if m == nil {
			log.Warnf("skipping unparseable requirement on line %d: %s", lineNum, line)
			continue
		}
		candidates = append(candidates, PackageCandidate{
			Name:       NormalizeName(m[1]),
			Constraint: strings.ReplaceAll(strings.TrimSpace(m[2]), " ", ""),
		})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read manifest %s: %w", path, err)
	}
	return candidates, nil
}

// parsePomManifest extracts dependencies from a Maven POM as
// "group:artifact" candidates, resolving ${property} versions where the
// property is defined in the same file.
func parsePomManifest(ctx context.Context, path string) ([]PackageCandidate, error) {
	log := clog.FromContext(ctx)

	project, err := gopom.Parse(path)
	if err != nil {
		return nil, fmt.Errorf("failed to parse POM file %s: %w", path, err)
	}
	if project.Dependencies == nil {
		return nil, nil
	}

	properties := map[string]string{}
	if project.Properties != nil {
		for k, v := range project.Properties.Entries {
			properties[k] = v
		}
	}

	var candidates []PackageCandidate
	for _, dep := range *project.Dependencies {
		if dep.Scope == "test" || dep.Optional == "true" {
			continue
		}
		version := dep.Version
		if prop, ok := strings.CutPrefix(version, "${"); ok {
			prop = strings.TrimSuffix(prop, "}")
			if value, exists := properties[prop]; exists {
				version = value
			} else {
				log.Debugf("property %s for %s:%s not defined in %s", prop, dep.GroupID, dep.ArtifactID, path)
				version = ""
			}
		}
		constraint := ""
		if version != "" {
			constraint = "==" + version
		}
		candidates = append(candidates, PackageCandidate{
			Name:       NormalizeName(fmt.Sprintf("%s:%s", dep.GroupID, dep.ArtifactID)),
			Constraint: constraint,
		})
	}
	return candidates, nil
}

// FlagManifest analyzes every candidate and returns the reports whose
// verdict is not APPROVE, in manifest order. The progress callback, when
// non-nil, is invoked once per analyzed candidate.
func FlagManifest(ctx context.Context, engine *Engine, candidates []PackageCandidate, progress func()) ([]*DependencyReport, error) {
	log := clog.FromContext(ctx)

	var flagged []*DependencyReport
	for _, candidate := range candidates {
		report, err := engine.Analyze(ctx, candidate)
		if err != nil {
			return nil, fmt.Errorf("failed to analyze %s: %w", candidate.Name, err)
		}
		if report.Recommendation != RecommendationApprove {
			flagged = append(flagged, report)
		}
		if progress != nil {
			progress()
		}
	}

	log.Infof("manifest check: %d of %d dependencies flagged", len(flagged), len(candidates))
	return flagged, nil
}

// DefaultManifestName guesses the manifest filename for a project directory.
func DefaultManifestName(dir string) (string, error) {
	for _, name := range []string{"requirements.txt", "pom.xml"} {
		path := filepath.Join(dir, name)
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}
	return "", fmt.Errorf("no supported manifest found in %s", dir)
}
