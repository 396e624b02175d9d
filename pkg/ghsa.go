package pkg

import (
	"context"
	"fmt"
	"strings"

	"github.com/Masterminds/semver/v3"
	githubql "github.com/shurcooL/githubv4"
	"github.com/shurcooL/graphql"
)

const ghsaPageSize = 100

// GithubClient is the subset of the GitHub GraphQL client the advisory
// source needs; tests substitute a fake.
type GithubClient interface {
	Query(ctx context.Context, q interface{}, variables map[string]interface{}) error
}

// GHSASource queries the GitHub Security Advisory database as a second,
// independent advisory source alongside OSV.
type GHSASource struct {
	Client    GithubClient
	Ecosystem string
}

// NewGHSASource creates a GHSA advisory source for the given GitHub
// ecosystem name (for example "PIP" or "MAVEN").
func NewGHSASource(client GithubClient, ecosystem string) *GHSASource {
	return &GHSASource{Client: client, Ecosystem: strings.ToUpper(ecosystem)}
}

func (s *GHSASource) Name() string { return "github-advisories" }

type ghsaIdentifier struct {
	Type  string
	Value string
}

type ghsaVulnerability struct {
	Severity               string
	VulnerableVersionRange string
	FirstPatchedVersion    struct {
		Identifier string
	}
	Advisory struct {
		GhsaID      string `graphql:"ghsaId"`
		Summary     string
		Identifiers []ghsaIdentifier
	}
}

type ghsaQuery struct {
	SecurityVulnerabilities struct {
		Nodes    []ghsaVulnerability
		PageInfo struct {
			EndCursor   githubql.String
			HasNextPage bool
		}
	} `graphql:"securityVulnerabilities(ecosystem: $ecosystem, package: $package, first: $first, after: $cursor)"`
}

// Query implements AdvisorySource over the GitHub GraphQL API, paging
// through all advisories for the package and keeping those whose vulnerable
// range covers the resolved version.
func (s *GHSASource) Query(ctx context.Context, pkg, version string) ([]VulnerabilityRecord, error) {
	variables := map[string]interface{}{
		"ecosystem": githubql.SecurityAdvisoryEcosystem(s.Ecosystem),
		"package":   githubql.String(pkg),
		"first":     graphql.Int(ghsaPageSize),
		"cursor":    (*githubql.String)(nil),
	}

	var records []VulnerabilityRecord
	for {
		var q ghsaQuery
		if err := s.Client.Query(ctx, &q, variables); err != nil {
			return nil, fmt.Errorf("github advisory query failed: %w", err)
		}

		for _, node := range q.SecurityVulnerabilities.Nodes {
			if !versionInRange(version, node.VulnerableVersionRange) {
				continue
			}
			record := VulnerabilityRecord{
				ID:       node.Advisory.GhsaID,
				Summary:  node.Advisory.Summary,
				Severity: severityFromLabel(node.Severity),
				FixedIn:  node.FirstPatchedVersion.Identifier,
			}
			for _, identifier := range node.Advisory.Identifiers {
				if identifier.Type == "CVE" {
					record.CVEs = append(record.CVEs, identifier.Value)
				}
			}
			records = append(records, record)
		}

		if !q.SecurityVulnerabilities.PageInfo.HasNextPage {
			break
		}
		variables["cursor"] = githubql.NewString(q.SecurityVulnerabilities.PageInfo.EndCursor)
	}
	return records, nil
}

// versionInRange checks a GHSA vulnerable range like ">= 2.0, < 2.0.8"
// against the resolved version. Unparseable ranges are treated as matching:
// missing a real finding is worse than reviewing a spurious one.
func versionInRange(version, vulnerableRange string) bool {
	v, err := semver.NewVersion(version)
	if err != nil {
		return true
	}
	constraint, err := semver.NewConstraint(strings.ReplaceAll(vulnerableRange, "= ", "="))
	if err != nil {
		return true
	}
	return constraint.Check(v)
}
