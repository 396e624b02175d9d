package pkg

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/chainguard-dev/clog"
)

const (
	analyzerConflicts = "conflicts"
	analyzerSecurity  = "security"
	analyzerLicense   = "license"
	analyzerVersion   = "version"
	analyzerImpact    = "impact"

	defaultAnalyzerTimeout = 30 * time.Second
)

// InstallCommandFunc synthesizes the install command shown in a report.
type InstallCommandFunc func(name, constraint string) string

func pipInstallCommand(name, constraint string) string {
	if constraint == "" {
		return fmt.Sprintf("pip install %s", name)
	}
	return fmt.Sprintf("pip install %q", name+constraint)
}

// Engine is the approval orchestrator. It holds no state between calls;
// Analyze is safe to run concurrently for different candidates.
type Engine struct {
	registry Registry
	policy   []PolicyRule
	table    PreApprovalTable
	timeout  time.Duration
	install  InstallCommandFunc

	conflicts *ConflictAnalyzer
	security  *SecurityScanner
	license   *LicenseChecker
	version   *VersionAnalyzer
	impact    *ImpactAssessor

	now func() time.Time
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithRegistry sets the registry client shared by the analyzers.
func WithRegistry(registry Registry) EngineOption {
	return func(e *Engine) { e.registry = registry }
}

// WithSimulator sets the resolution simulator used by the conflict analyzer
// and impact assessor.
func WithSimulator(sim Simulator) EngineOption {
	return func(e *Engine) {
		e.conflicts.Simulator = sim
		e.impact.Simulator = sim
	}
}

// WithAdvisorySources sets the vulnerability advisory sources.
func WithAdvisorySources(sources ...AdvisorySource) EngineOption {
	return func(e *Engine) { e.security.Sources = sources }
}

// WithPreApprovalTable sets the fast-path allow/ban table.
func WithPreApprovalTable(table PreApprovalTable) EngineOption {
	return func(e *Engine) { e.table = table }
}

// WithPolicyData installs the static policy tables (pre-approval, license
// exemptions, substitution alternatives).
func WithPolicyData(policy *PolicyData) EngineOption {
	return func(e *Engine) {
		e.table = policy.Table()
		e.license.Exemptions = policy.NormalizedExemptions()
		e.license.Substitutions = policy.NormalizedSubstitutes()
	}
}

// WithAnalyzerTimeout bounds each analyzer call.
func WithAnalyzerTimeout(timeout time.Duration) EngineOption {
	return func(e *Engine) { e.timeout = timeout }
}

// WithDecisionPolicy replaces the ordered decision rule list.
func WithDecisionPolicy(rules []PolicyRule) EngineOption {
	return func(e *Engine) { e.policy = rules }
}

// WithInstallCommand replaces the install command synthesizer.
func WithInstallCommand(fn InstallCommandFunc) EngineOption {
	return func(e *Engine) { e.install = fn }
}

// NewEngine assembles the orchestrator and its five analyzers.
func NewEngine(opts ...EngineOption) *Engine {
	e := &Engine{
		policy:    DefaultPolicy,
		timeout:   defaultAnalyzerTimeout,
		install:   pipInstallCommand,
		conflicts: &ConflictAnalyzer{},
		security:  &SecurityScanner{now: time.Now},
		license:   &LicenseChecker{},
		version:   &VersionAnalyzer{},
		impact:    &ImpactAssessor{},
		now:       time.Now,
	}

	defaults := DefaultPolicyData()
	e.license.Exemptions = defaults.NormalizedExemptions()
	e.license.Substitutions = defaults.NormalizedSubstitutes()
	e.table = defaults.Table()

	for _, opt := range opts {
		opt(e)
	}

	e.security.Registry = e.registry
	e.license.Registry = e.registry
	e.version.Registry = e.registry
	e.impact.Registry = e.registry
	return e
}

// analyzerResult carries one analyzer's value or error back to the join.
type analyzerResult[T any] struct {
	value T
	err   error
}

// runAnalyzer starts one analyzer task bounded by the per-analyzer timeout.
// The returned channel always yields exactly one result: if the analyzer
// overruns its deadline the result is the deadline error, so a stuck network
// call can never serialize the join.
func runAnalyzer[T any](ctx context.Context, timeout time.Duration, fn func(context.Context) (T, error)) <-chan analyzerResult[T] {
	out := make(chan analyzerResult[T], 1)
	go func() {
		ctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		inner := make(chan analyzerResult[T], 1)
		go func() {
			value, err := fn(ctx)
			inner <- analyzerResult[T]{value: value, err: err}
		}()

		select {
		case result := <-inner:
			out <- result
		case <-ctx.Done():
			var zero T
			out <- analyzerResult[T]{value: zero, err: ctx.Err()}
		}
	}()
	return out
}

// Analyze runs the full approval pipeline for one candidate and always
// commits to a verdict: analyzer failures degrade to REVIEW, and only an
// unresolvable package name is surfaced as an error.
func (e *Engine) Analyze(ctx context.Context, candidate PackageCandidate) (*DependencyReport, error) {
	log := clog.FromContext(ctx)

	if err := ValidateCandidate(candidate); err != nil {
		return nil, fmt.Errorf("invalid candidate: %w", err)
	}
	name := NormalizeName(candidate.Name)
	candidate.Name = name

	// Fast path: the static table can settle the verdict without running
	// any analyzer.
	if entry, ok := e.table.Lookup(name); ok {
		switch entry.Status {
		case StatusPreApproved:
			log.Infof("%s is pre-approved, skipping deep analysis", name)
			return e.shortCircuit(name, entry, RecommendationApprove, "pre-approved"), nil
		case StatusBanned:
			log.Infof("%s is banned: %s", name, entry.BanReason)
			return e.shortCircuit(name, entry, RecommendationReject, "banned"), nil
		}
		// NEEDS_REVIEW falls through to the full pipeline.
	}

	// Resolve the name once up front so a missing package is a hard error
	// before any fan-out starts. This also warms the metadata cache.
	if _, err := e.registry.FetchMetadata(ctx, name); err != nil {
		return nil, fmt.Errorf("cannot analyze %s: %w", name, err)
	}

	log.Debugf("fanning out analyzers for %s", name)
	conflictsCh := runAnalyzer(ctx, e.timeout, func(ctx context.Context) (ConflictInfo, error) {
		return e.conflicts.Check(ctx, candidate)
	})
	securityCh := runAnalyzer(ctx, e.timeout, func(ctx context.Context) (SecurityReport, error) {
		return e.security.Scan(ctx, candidate)
	})
	licenseCh := runAnalyzer(ctx, e.timeout, func(ctx context.Context) (LicenseInfo, error) {
		return e.license.Check(ctx, candidate)
	})
	versionCh := runAnalyzer(ctx, e.timeout, func(ctx context.Context) (VersionInfo, error) {
		return e.version.Analyze(ctx, candidate)
	})
	impactCh := runAnalyzer(ctx, e.timeout, func(ctx context.Context) (ImpactAssessment, error) {
		return e.impact.Assess(ctx, candidate)
	})

	report := &DependencyReport{
		PackageName: name,
		GeneratedAt: e.now(),
	}

	record := func(analyzer string, err error) {
		if err == nil {
			return
		}
		log.Warnf("%s analyzer degraded for %s: %v", analyzer, name, err)
		report.Unavailable = append(report.Unavailable, analyzer)
	}

	conflictsRes := <-conflictsCh
	report.Conflicts = conflictsRes.value
	record(analyzerConflicts, conflictsRes.err)

	securityRes := <-securityCh
	report.Security = securityRes.value
	if securityRes.err == nil && securityRes.value.SourcesConsulted == 0 {
		// The scan completed but reached nothing; treat it like a degraded
		// analyzer so an incomplete scan can never underwrite an APPROVE.
		securityRes.err = &UnavailableError{Analyzer: analyzerSecurity, Err: fmt.Errorf("no advisory source reachable")}
	}
	record(analyzerSecurity, securityRes.err)

	licenseRes := <-licenseCh
	report.License = licenseRes.value
	record(analyzerLicense, licenseRes.err)

	versionRes := <-versionCh
	report.Version = versionRes.value
	record(analyzerVersion, versionRes.err)

	impactRes := <-impactCh
	report.Impact = impactRes.value
	record(analyzerImpact, impactRes.err)

	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	sort.Strings(report.Unavailable)

	verdict, reason := Evaluate(e.policy, PolicyInput{
		Conflicts:   report.Conflicts,
		Security:    report.Security,
		License:     report.License,
		Version:     report.Version,
		Unavailable: report.Unavailable,
	})
	report.Recommendation = verdict
	report.Reason = reason

	if verdict == RecommendationReject && reason == "license-incompatible" {
		report.Alternatives = report.License.Alternatives
	}
	report.InstallCommand = e.install(name, installConstraint(candidate, report.Version))

	log.Infof("verdict for %s: %s (%s)", name, verdict, reason)
	return report, nil
}

// shortCircuit builds the minimal report for fast-path verdicts.
func (e *Engine) shortCircuit(name string, entry PreApprovalEntry, verdict Recommendation, reason string) *DependencyReport {
	report := &DependencyReport{
		PackageName:    name,
		Recommendation: verdict,
		Reason:         reason,
		GeneratedAt:    e.now(),
	}
	if verdict == RecommendationApprove {
		report.InstallCommand = e.install(name, entry.VersionConstraint)
	}
	if verdict == RecommendationReject {
		report.Alternatives = entry.Alternatives
	}
	return report
}

// installConstraint prefers the caller's explicit constraint and falls back
// to the analyzer's suggestion.
func installConstraint(candidate PackageCandidate, version VersionInfo) string {
	if candidate.Constraint != "" {
		return candidate.Constraint
	}
	return version.SuggestedConstraint
}
