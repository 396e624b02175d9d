package pkg

import (
	"time"
)

// Severity is the ordinal severity scale used to combine advisory findings.
type Severity string

const (
	SeverityNone     Severity = "NONE"
	SeverityLow      Severity = "LOW"
	SeverityMedium   Severity = "MEDIUM"
	SeverityHigh     Severity = "HIGH"
	SeverityCritical Severity = "CRITICAL"
)

var severityOrdinals = map[Severity]int{
	SeverityNone:     0,
	SeverityLow:      1,
	SeverityMedium:   2,
	SeverityHigh:     3,
	SeverityCritical: 4,
}

// Ordinal returns the position of s in the severity total order.
// Unknown values rank below NONE so they can never win an aggregation.
func (s Severity) Ordinal() int {
	if ord, ok := severityOrdinals[s]; ok {
		return ord
	}
	return -1
}

// MaxSeverity returns the higher of the two severities.
func MaxSeverity(a, b Severity) Severity {
	if b.Ordinal() > a.Ordinal() {
		return b
	}
	return a
}

// Recommendation is the three-way verdict of the approval pipeline.
type Recommendation string

const (
	RecommendationApprove Recommendation = "APPROVE"
	RecommendationReview  Recommendation = "REVIEW"
	RecommendationReject  Recommendation = "REJECT"
)

// LicenseType classifies a declared license into a compatibility family.
type LicenseType string

const (
	LicensePermissive  LicenseType = "permissive"
	LicenseCopyleft    LicenseType = "copyleft"
	LicenseProprietary LicenseType = "proprietary"
	LicenseUnknown     LicenseType = "unknown"
)

// PackageCandidate identifies a package (and optional version constraint)
// proposed for addition to a project.
type PackageCandidate struct {
	Name       string `json:"name" yaml:"name"`
	Constraint string `json:"constraint,omitempty" yaml:"constraint,omitempty"`
}

// ConflictInfo reports the outcome of a dry-run resolution for a candidate.
type ConflictInfo struct {
	HasConflicts         bool       `json:"has_conflicts" yaml:"has_conflicts"`
	Conflicts            []string   `json:"conflicts,omitempty" yaml:"conflicts,omitempty"`
	CircularDependencies [][]string `json:"circular_dependencies,omitempty" yaml:"circular_dependencies,omitempty"`
	TreeDepth            int        `json:"tree_depth" yaml:"tree_depth"`
	TotalSubDependencies int        `json:"total_sub_dependencies" yaml:"total_sub_dependencies"`
}

// VulnerabilityRecord is a single advisory finding for a package version.
type VulnerabilityRecord struct {
	ID       string   `json:"id" yaml:"id"`
	CVEs     []string `json:"cves,omitempty" yaml:"cves,omitempty"`
	Severity Severity `json:"severity" yaml:"severity"`
	Summary  string   `json:"summary,omitempty" yaml:"summary,omitempty"`
	FixedIn  string   `json:"fixed_in,omitempty" yaml:"fixed_in,omitempty"`
	Source   string   `json:"source,omitempty" yaml:"source,omitempty"`
}

// SecurityReport is the merged view across all advisory sources consulted.
// Severity is always the maximum ordinal severity across Vulnerabilities, and
// CVEIDs is the deduplicated union of CVE identifiers across sources.
type SecurityReport struct {
	Severity         Severity              `json:"severity" yaml:"severity"`
	CVEIDs           []string              `json:"cve_ids,omitempty" yaml:"cve_ids,omitempty"`
	Vulnerabilities  []VulnerabilityRecord `json:"vulnerabilities,omitempty" yaml:"vulnerabilities,omitempty"`
	MitigationNotes  string                `json:"mitigation_notes,omitempty" yaml:"mitigation_notes,omitempty"`
	SourcesConsulted int                   `json:"sources_consulted" yaml:"sources_consulted"`
	ScanTimestamp    time.Time             `json:"scan_timestamp" yaml:"scan_timestamp"`
}

// LicenseInfo classifies the candidate's declared license.
type LicenseInfo struct {
	LicenseName       string      `json:"license_name" yaml:"license_name"`
	LicenseType       LicenseType `json:"license_type" yaml:"license_type"`
	Apache2Compatible bool        `json:"apache2_compatible" yaml:"apache2_compatible"`
	Issues            []string    `json:"issues,omitempty" yaml:"issues,omitempty"`
	Alternatives      []string    `json:"alternatives,omitempty" yaml:"alternatives,omitempty"`
}

// VersionInfo reports staleness, deprecation, and a suggested constraint.
type VersionInfo struct {
	RequestedVersion    string    `json:"requested_version,omitempty" yaml:"requested_version,omitempty"`
	LatestStable        string    `json:"latest_stable" yaml:"latest_stable"`
	IsLatest            bool      `json:"is_latest" yaml:"is_latest"`
	IsDeprecated        bool      `json:"is_deprecated" yaml:"is_deprecated"`
	BreakingChanges     []string  `json:"breaking_changes,omitempty" yaml:"breaking_changes,omitempty"`
	SuggestedConstraint string    `json:"suggested_constraint" yaml:"suggested_constraint"`
	ReleaseDate         time.Time `json:"release_date" yaml:"release_date"`
}

// ImpactAssessment estimates the cost of adopting the candidate.
type ImpactAssessment struct {
	EstimatedInstallSeconds float64         `json:"estimated_install_seconds" yaml:"estimated_install_seconds"`
	BundleSizeMB            float64         `json:"bundle_size_mb" yaml:"bundle_size_mb"`
	SubDependenciesAdded    []string        `json:"sub_dependencies_added,omitempty" yaml:"sub_dependencies_added,omitempty"`
	PlatformCompatibility   map[string]bool `json:"platform_compatibility" yaml:"platform_compatibility"`
}

// DependencyReport is the complete, immutable outcome of one Analyze call.
type DependencyReport struct {
	PackageName    string         `json:"package_name" yaml:"package_name"`
	Recommendation Recommendation `json:"recommendation" yaml:"recommendation"`
	Reason         string         `json:"reason,omitempty" yaml:"reason,omitempty"`

	Conflicts ConflictInfo     `json:"conflicts" yaml:"conflicts"`
	Security  SecurityReport   `json:"security" yaml:"security"`
	License   LicenseInfo      `json:"license" yaml:"license"`
	Version   VersionInfo      `json:"version" yaml:"version"`
	Impact    ImpactAssessment `json:"impact" yaml:"impact"`

	// Unavailable lists analyzers whose result had to be replaced with a
	// conservative default. A non-empty list blocks APPROVE.
	Unavailable []string `json:"unavailable,omitempty" yaml:"unavailable,omitempty"`

	Alternatives   []string  `json:"alternatives,omitempty" yaml:"alternatives,omitempty"`
	InstallCommand string    `json:"install_command,omitempty" yaml:"install_command,omitempty"`
	GeneratedAt    time.Time `json:"generated_at" yaml:"generated_at"`
}

// PreApprovalStatus is the fast-path verdict from the static approval table.
type PreApprovalStatus string

const (
	StatusPreApproved PreApprovalStatus = "PRE_APPROVED"
	StatusBanned      PreApprovalStatus = "BANNED"
	StatusNeedsReview PreApprovalStatus = "NEEDS_REVIEW"
)

// PreApprovalEntry is one row of the static pre-approval/ban table.
type PreApprovalEntry struct {
	NormalizedName    string            `json:"name" yaml:"name"`
	Status            PreApprovalStatus `json:"status" yaml:"status"`
	VersionConstraint string            `json:"version_constraint,omitempty" yaml:"version_constraint,omitempty"`
	BanReason         string            `json:"ban_reason,omitempty" yaml:"ban_reason,omitempty"`
	Alternatives      []string          `json:"alternatives,omitempty" yaml:"alternatives,omitempty"`
}

// ReleaseArtifact is a single distributable file within a release.
type ReleaseArtifact struct {
	Filename  string `json:"filename" yaml:"filename"`
	Kind      string `json:"kind,omitempty" yaml:"kind,omitempty"`
	SizeBytes int64  `json:"size_bytes" yaml:"size_bytes"`
}

// Release is one published version of a package.
type Release struct {
	Version      string            `json:"version" yaml:"version"`
	ReleaseDate  time.Time         `json:"release_date" yaml:"release_date"`
	Yanked       bool              `json:"yanked,omitempty" yaml:"yanked,omitempty"`
	YankedReason string            `json:"yanked_reason,omitempty" yaml:"yanked_reason,omitempty"`
	Artifacts    []ReleaseArtifact `json:"artifacts,omitempty" yaml:"artifacts,omitempty"`
}

// PackageMetadata is the registry's view of a package.
type PackageMetadata struct {
	Name        string    `json:"name" yaml:"name"`
	License     string    `json:"license,omitempty" yaml:"license,omitempty"`
	Description string    `json:"description,omitempty" yaml:"description,omitempty"`
	Classifiers []string  `json:"classifiers,omitempty" yaml:"classifiers,omitempty"`
	Requires    []string  `json:"requires,omitempty" yaml:"requires,omitempty"`
	Releases    []Release `json:"releases" yaml:"releases"`
}

// ResolvedNode is one entry of a simulated resolution tree.
type ResolvedNode struct {
	Name    string `json:"name" yaml:"name"`
	Version string `json:"version" yaml:"version"`
	Depth   int    `json:"depth" yaml:"depth"`
}

// DryRunResult is the outcome of a non-committing resolver invocation.
type DryRunResult struct {
	Success      bool           `json:"success" yaml:"success"`
	Diagnostics  []string       `json:"diagnostics,omitempty" yaml:"diagnostics,omitempty"`
	ResolvedTree []ResolvedNode `json:"resolved_tree,omitempty" yaml:"resolved_tree,omitempty"`
}
