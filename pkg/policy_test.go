package pkg

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// cleanInput is a baseline that matches no rule: permissive license, no
// findings, no conflicts, nothing degraded.
func cleanInput() PolicyInput {
	return PolicyInput{
		License:  LicenseInfo{LicenseName: "MIT", LicenseType: LicensePermissive, Apache2Compatible: true},
		Security: SecurityReport{Severity: SeverityNone, SourcesConsulted: 1},
	}
}

func TestEvaluate(t *testing.T) {
	tests := []struct {
		name            string
		mutate          func(in *PolicyInput)
		expectedVerdict Recommendation
		expectedReason  string
	}{
		{
			name:            "all checks passed",
			mutate:          func(in *PolicyInput) {},
			expectedVerdict: RecommendationApprove,
			expectedReason:  "all-checks-passed",
		},
		{
			name: "incompatible license rejects",
			mutate: func(in *PolicyInput) {
				in.License = LicenseInfo{LicenseName: "GPL-3.0", LicenseType: LicenseCopyleft}
			},
			expectedVerdict: RecommendationReject,
			expectedReason:  "license-incompatible",
		},
		{
			name: "unknown license rejects",
			mutate: func(in *PolicyInput) {
				in.License = LicenseInfo{LicenseType: LicenseUnknown}
			},
			expectedVerdict: RecommendationReject,
			expectedReason:  "license-incompatible",
		},
		{
			name: "unmitigated critical vulnerability rejects",
			mutate: func(in *PolicyInput) {
				in.Security.Severity = SeverityCritical
			},
			expectedVerdict: RecommendationReject,
			expectedReason:  "critical-vulnerability-unmitigated",
		},
		{
			name: "mitigated critical vulnerability still needs review",
			mutate: func(in *PolicyInput) {
				in.Security.Severity = SeverityCritical
				in.Security.MitigationNotes = "GHSA-xxxx fixed in 2.0.1"
			},
			expectedVerdict: RecommendationReview,
			expectedReason:  "vulnerability-needs-review",
		},
		{
			name: "circular dependency rejects",
			mutate: func(in *PolicyInput) {
				in.Conflicts.HasConflicts = true
				in.Conflicts.CircularDependencies = [][]string{{"alpha", "beta", "alpha"}}
			},
			expectedVerdict: RecommendationReject,
			expectedReason:  "circular-dependency",
		},
		{
			name: "high severity needs review",
			mutate: func(in *PolicyInput) {
				in.Security.Severity = SeverityHigh
			},
			expectedVerdict: RecommendationReview,
			expectedReason:  "vulnerability-needs-review",
		},
		{
			name: "medium severity needs review",
			mutate: func(in *PolicyInput) {
				in.Security.Severity = SeverityMedium
			},
			expectedVerdict: RecommendationReview,
			expectedReason:  "vulnerability-needs-review",
		},
		{
			name: "low severity passes",
			mutate: func(in *PolicyInput) {
				in.Security.Severity = SeverityLow
			},
			expectedVerdict: RecommendationApprove,
			expectedReason:  "all-checks-passed",
		},
		{
			name: "resolvable conflicts need review",
			mutate: func(in *PolicyInput) {
				in.Conflicts.HasConflicts = true
				in.Conflicts.Conflicts = []string{"requests 2.0 is incompatible with urllib3 1.0"}
			},
			expectedVerdict: RecommendationReview,
			expectedReason:  "resolvable-conflicts",
		},
		{
			name: "deprecated package needs review",
			mutate: func(in *PolicyInput) {
				in.Version.IsDeprecated = true
			},
			expectedVerdict: RecommendationReview,
			expectedReason:  "deprecated-version",
		},
		{
			name: "degraded analyzer caps verdict at review",
			mutate: func(in *PolicyInput) {
				in.Unavailable = []string{analyzerConflicts}
			},
			expectedVerdict: RecommendationReview,
			expectedReason:  "incomplete-analysis",
		},
		{
			name: "degraded license analyzer never rejects on zero values",
			mutate: func(in *PolicyInput) {
				in.License = LicenseInfo{}
				in.Unavailable = []string{analyzerLicense}
			},
			expectedVerdict: RecommendationReview,
			expectedReason:  "incomplete-analysis",
		},
		{
			name: "degraded security analyzer blocks approval",
			mutate: func(in *PolicyInput) {
				in.Security = SecurityReport{}
				in.Unavailable = []string{analyzerSecurity}
			},
			expectedVerdict: RecommendationReview,
			expectedReason:  "incomplete-analysis",
		},
		{
			name: "license outranks critical vulnerability",
			mutate: func(in *PolicyInput) {
				in.License = LicenseInfo{LicenseName: "GPL-3.0", LicenseType: LicenseCopyleft}
				in.Security.Severity = SeverityCritical
			},
			expectedVerdict: RecommendationReject,
			expectedReason:  "license-incompatible",
		},
		{
			name: "reject outranks review when both match",
			mutate: func(in *PolicyInput) {
				in.Security.Severity = SeverityHigh
				in.Conflicts.HasConflicts = true
				in.Conflicts.CircularDependencies = [][]string{{"a", "b", "a"}}
			},
			expectedVerdict: RecommendationReject,
			expectedReason:  "circular-dependency",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := cleanInput()
			tt.mutate(&in)

			verdict, reason := Evaluate(DefaultPolicy, in)
			assert.Equal(t, tt.expectedVerdict, verdict)
			assert.Equal(t, tt.expectedReason, reason)
		})
	}
}

func TestEvaluateCustomPolicy(t *testing.T) {
	rejectAll := []PolicyRule{
		{
			Name:    "deny-everything",
			Verdict: RecommendationReject,
			Matches: func(in PolicyInput) bool { return true },
		},
	}
	verdict, reason := Evaluate(rejectAll, cleanInput())
	assert.Equal(t, RecommendationReject, verdict)
	assert.Equal(t, "deny-everything", reason)

	verdict, reason = Evaluate(nil, cleanInput())
	assert.Equal(t, RecommendationApprove, verdict)
	assert.Equal(t, "all-checks-passed", reason)
}
