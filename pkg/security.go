package pkg

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/chainguard-dev/clog"
	"github.com/samber/lo"
)

// AdvisorySource queries one vulnerability database for findings affecting a
// specific package version.
type AdvisorySource interface {
	Name() string
	Query(ctx context.Context, pkg, version string) ([]VulnerabilityRecord, error)
}

// SecurityScanner queries every configured advisory source and merges their
// findings into one report.
type SecurityScanner struct {
	Registry Registry
	Sources  []AdvisorySource
	// now is swappable for tests.
	now func() time.Time
}

// NewSecurityScanner creates a scanner over the given advisory sources.
func NewSecurityScanner(registry Registry, sources ...AdvisorySource) *SecurityScanner {
	return &SecurityScanner{Registry: registry, Sources: sources, now: time.Now}
}

// Scan implements the security scanning contract. Findings are merged as a
// union over CVE identifier with the maximum severity reported by any source
// winning per advisory; severities are never downgraded. Unreachable sources
// do not abort the scan, but a scan that reached no source at all is flagged
// as incomplete so the orchestrator can refuse to APPROVE on top of it.
func (s *SecurityScanner) Scan(ctx context.Context, candidate PackageCandidate) (SecurityReport, error) {
	log := clog.FromContext(ctx)

	meta, err := s.Registry.FetchMetadata(ctx, candidate.Name)
	if err != nil {
		return SecurityReport{}, fmt.Errorf("failed to resolve version for %s: %w", candidate.Name, err)
	}
	version := resolveVersion(meta, candidate.Constraint)

	report := SecurityReport{
		Severity:      SeverityNone,
		ScanTimestamp: s.now(),
	}

	merged := newMergedFindings()
	for _, source := range s.Sources {
		records, err := source.Query(ctx, NormalizeName(candidate.Name), version)
		if err != nil {
			log.Warnf("advisory source %s unreachable for %s: %v", source.Name(), candidate.Name, err)
			continue
		}
		report.SourcesConsulted++
		for _, record := range records {
			record.Source = source.Name()
			merged.add(record)
		}
	}

	if report.SourcesConsulted == 0 {
		report.MitigationNotes = "scan incomplete: no advisory source was reachable"
		return report, nil
	}

	ids := lo.Keys(merged.records)
	sort.Strings(ids)
	var cves []string
	var fixes []string
	for _, id := range ids {
		record := merged.records[id]
		report.Vulnerabilities = append(report.Vulnerabilities, record)
		report.Severity = MaxSeverity(report.Severity, record.Severity)
		cves = append(cves, record.CVEs...)
		if record.FixedIn != "" {
			fixes = append(fixes, fmt.Sprintf("%s fixed in %s", id, record.FixedIn))
		}
	}
	report.CVEIDs = lo.Uniq(cves)
	sort.Strings(report.CVEIDs)
	if len(fixes) > 0 {
		report.MitigationNotes = strings.Join(fixes, "; ")
	}

	log.Debugf("security scan for %s@%s: %d findings, severity %s (%d sources)",
		candidate.Name, version, len(report.Vulnerabilities), report.Severity, report.SourcesConsulted)
	return report, nil
}

// mergedFindings unions advisory records across sources. Records are stored
// under one canonical key, and every CVE a record carries is indexed to that
// key, so a later source reporting any alias of a multi-CVE advisory folds
// into the same record instead of minting a duplicate.
type mergedFindings struct {
	records map[string]VulnerabilityRecord
	byCVE   map[string]string
}

func newMergedFindings() *mergedFindings {
	return &mergedFindings{
		records: map[string]VulnerabilityRecord{},
		byCVE:   map[string]string{},
	}
}

// add folds a finding into the set. Two sources reporting the same CVE
// collapse into one record with the conservative (maximum) severity. A
// record bridging two previously separate entries coalesces them.
func (m *mergedFindings) add(record VulnerabilityRecord) {
	key := record.ID
	if len(record.CVEs) > 0 {
		key = record.CVEs[0]
	}

	priors := lo.Uniq(lo.FilterMap(record.CVEs, func(cve string, _ int) (string, bool) {
		k, ok := m.byCVE[cve]
		return k, ok
	}))
	if len(priors) > 0 {
		key = priors[0]
	}
	for _, prior := range priors {
		if existing, ok := m.records[prior]; ok {
			record = combineRecords(existing, record)
			delete(m.records, prior)
		}
	}
	if existing, ok := m.records[key]; ok {
		record = combineRecords(existing, record)
	}

	m.records[key] = record
	for _, cve := range record.CVEs {
		m.byCVE[cve] = key
	}
}

func combineRecords(a, b VulnerabilityRecord) VulnerabilityRecord {
	out := a
	out.Severity = MaxSeverity(a.Severity, b.Severity)
	out.CVEs = lo.Uniq(append(a.CVEs, b.CVEs...))
	if out.Summary == "" {
		out.Summary = b.Summary
	}
	if out.FixedIn == "" {
		out.FixedIn = b.FixedIn
	}
	if a.Source != b.Source && b.Source != "" {
		out.Source = a.Source + "," + b.Source
	}
	return out
}

const defaultOSVURL = "https://api.osv.dev/v1/query"

// OSVSource queries the OSV.dev API for a package version.
type OSVSource struct {
	URL       string
	Ecosystem string
	Client    *http.Client
}

// NewOSVSource creates an OSV advisory source for the given ecosystem
// (for example "PyPI" or "Maven").
func NewOSVSource(ecosystem string) *OSVSource {
	return &OSVSource{
		URL:       defaultOSVURL,
		Ecosystem: ecosystem,
		Client:    &http.Client{Timeout: 15 * time.Second},
	}
}

func (s *OSVSource) Name() string { return "osv.dev" }

type osvQuery struct {
	Version string `json:"version,omitempty"`
	Package struct {
		Name      string `json:"name"`
		Ecosystem string `json:"ecosystem"`
	} `json:"package"`
}

type osvResponse struct {
	Vulns []struct {
		ID       string   `json:"id"`
		Summary  string   `json:"summary"`
		Aliases  []string `json:"aliases"`
		Severity []struct {
			Type  string `json:"type"`
			Score string `json:"score"`
		} `json:"severity"`
		DatabaseSpecific struct {
			Severity string `json:"severity"`
		} `json:"database_specific"`
		Affected []struct {
			Ranges []struct {
				Events []struct {
					Fixed string `json:"fixed"`
				} `json:"events"`
			} `json:"ranges"`
		} `json:"affected"`
	} `json:"vulns"`
}

// Query implements AdvisorySource against the OSV query endpoint.
func (s *OSVSource) Query(ctx context.Context, pkg, version string) ([]VulnerabilityRecord, error) {
	var q osvQuery
	q.Version = version
	q.Package.Name = pkg
	q.Package.Ecosystem = s.Ecosystem

	payload, err := json.Marshal(q)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.URL, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.Client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("osv query returned status %d", resp.StatusCode)
	}

	var doc osvResponse
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		return nil, fmt.Errorf("failed to decode osv response: %w", err)
	}

	var records []VulnerabilityRecord
	for _, vuln := range doc.Vulns {
		record := VulnerabilityRecord{
			ID:      vuln.ID,
			Summary: vuln.Summary,
			CVEs:    cveIdentifiers(vuln.ID, vuln.Aliases),
		}
		record.Severity = severityFromLabel(vuln.DatabaseSpecific.Severity)
		if record.Severity == SeverityNone {
			for _, sev := range vuln.Severity {
				record.Severity = MaxSeverity(record.Severity, severityFromCVSS(sev.Score))
			}
		}
		for _, affected := range vuln.Affected {
			for _, r := range affected.Ranges {
				for _, event := range r.Events {
					if event.Fixed != "" && record.FixedIn == "" {
						record.FixedIn = event.Fixed
					}
				}
			}
		}
		records = append(records, record)
	}
	return records, nil
}

// cveIdentifiers collects CVE identifiers from an advisory ID and its
// aliases.
func cveIdentifiers(id string, aliases []string) []string {
	var cves []string
	for _, candidate := range append([]string{id}, aliases...) {
		if strings.HasPrefix(candidate, "CVE-") {
			cves = append(cves, candidate)
		}
	}
	return lo.Uniq(cves)
}

// severityFromLabel maps advisory severity labels onto the ordinal scale.
// GHSA uses MODERATE where this engine says MEDIUM.
func severityFromLabel(label string) Severity {
	switch strings.ToUpper(strings.TrimSpace(label)) {
	case "CRITICAL":
		return SeverityCritical
	case "HIGH":
		return SeverityHigh
	case "MODERATE", "MEDIUM":
		return SeverityMedium
	case "LOW":
		return SeverityLow
	default:
		return SeverityNone
	}
}

// severityFromCVSS buckets a numeric CVSS score onto the ordinal scale.
// Vector-only entries cannot be scored here and fall back to NONE; the
// advisory label, when present, takes precedence anyway.
func severityFromCVSS(score string) Severity {
	value, err := strconv.ParseFloat(strings.TrimSpace(score), 64)
	if err != nil {
		return SeverityNone
	}
	switch {
	case value >= 9.0:
		return SeverityCritical
	case value >= 7.0:
		return SeverityHigh
	case value >= 4.0:
		return SeverityMedium
	case value > 0:
		return SeverityLow
	default:
		return SeverityNone
	}
}
