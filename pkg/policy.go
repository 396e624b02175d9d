package pkg

// PolicyInput is everything the decision policy reads. Analyzer outputs are
// passed by value: the policy never mutates or re-queries anything.
type PolicyInput struct {
	Conflicts ConflictInfo
	Security  SecurityReport
	License   LicenseInfo
	Version   VersionInfo
	// Unavailable holds the names of analyzers whose results were replaced
	// by conservative defaults (failure or timeout).
	Unavailable []string
}

func (in PolicyInput) unavailable(analyzer string) bool {
	for _, name := range in.Unavailable {
		if name == analyzer {
			return true
		}
	}
	return false
}

// PolicyRule is one predicate→verdict pair. Rules are evaluated top to
// bottom; the first match wins.
type PolicyRule struct {
	Name    string
	Verdict Recommendation
	Matches func(in PolicyInput) bool
}

// DefaultPolicy is the ordered decision policy. Keeping it as data makes the
// order auditable and lets tests exercise each rule in isolation.
//
// Rules that read an analyzer's output only fire when that analyzer actually
// produced a result; degraded analyzers are handled by the unavailability
// rule, which caps the verdict at REVIEW.
var DefaultPolicy = []PolicyRule{
	{
		Name:    "license-incompatible",
		Verdict: RecommendationReject,
		Matches: func(in PolicyInput) bool {
			return !in.unavailable(analyzerLicense) && !in.License.Apache2Compatible
		},
	},
	{
		Name:    "critical-vulnerability-unmitigated",
		Verdict: RecommendationReject,
		Matches: func(in PolicyInput) bool {
			return !in.unavailable(analyzerSecurity) &&
				in.Security.Severity == SeverityCritical &&
				in.Security.MitigationNotes == ""
		},
	},
	{
		Name:    "circular-dependency",
		Verdict: RecommendationReject,
		Matches: func(in PolicyInput) bool {
			return !in.unavailable(analyzerConflicts) && len(in.Conflicts.CircularDependencies) > 0
		},
	},
	{
		Name:    "vulnerability-needs-review",
		Verdict: RecommendationReview,
		Matches: func(in PolicyInput) bool {
			return !in.unavailable(analyzerSecurity) &&
				in.Security.Severity.Ordinal() >= SeverityMedium.Ordinal()
		},
	},
	{
		Name:    "resolvable-conflicts",
		Verdict: RecommendationReview,
		Matches: func(in PolicyInput) bool {
			return !in.unavailable(analyzerConflicts) && in.Conflicts.HasConflicts
		},
	},
	{
		Name:    "deprecated-version",
		Verdict: RecommendationReview,
		Matches: func(in PolicyInput) bool {
			return !in.unavailable(analyzerVersion) && in.Version.IsDeprecated
		},
	},
	{
		Name:    "incomplete-analysis",
		Verdict: RecommendationReview,
		Matches: func(in PolicyInput) bool {
			return len(in.Unavailable) > 0
		},
	},
}

// Evaluate walks the rule list in order and returns the first matching
// verdict with the name of the rule that fired. When nothing matches the
// candidate is approved.
func Evaluate(rules []PolicyRule, in PolicyInput) (Recommendation, string) {
	for _, rule := range rules {
		if rule.Matches(in) {
			return rule.Verdict, rule.Name
		}
	}
	return RecommendationApprove, "all-checks-passed"
}
