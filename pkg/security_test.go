package pkg

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSecurityScannerMergesSources(t *testing.T) {
	registry := &fakeRegistry{packages: map[string]*PackageMetadata{
		"requests": metadataFixture("requests", "Apache-2.0"),
	}}

	tests := []struct {
		name             string
		sources          []AdvisorySource
		expectedSeverity Severity
		expectedCVEs     []string
		expectedSources  int
		expectedFindings int
	}{
		{
			name: "no findings",
			sources: []AdvisorySource{
				&fakeSource{name: "osv.dev"},
			},
			expectedSeverity: SeverityNone,
			expectedSources:  1,
		},
		{
			name: "single source single finding",
			sources: []AdvisorySource{
				&fakeSource{name: "osv.dev", records: []VulnerabilityRecord{
					{ID: "GHSA-j8r2-6x86-q33q", CVEs: []string{"CVE-2023-32681"}, Severity: SeverityMedium},
				}},
			},
			expectedSeverity: SeverityMedium,
			expectedCVEs:     []string{"CVE-2023-32681"},
			expectedSources:  1,
			expectedFindings: 1,
		},
		{
			name: "same CVE from two sources collapses with max severity",
			sources: []AdvisorySource{
				&fakeSource{name: "osv.dev", records: []VulnerabilityRecord{
					{ID: "GHSA-j8r2-6x86-q33q", CVEs: []string{"CVE-2023-32681"}, Severity: SeverityMedium},
				}},
				&fakeSource{name: "github-advisories", records: []VulnerabilityRecord{
					{ID: "GHSA-j8r2-6x86-q33q", CVEs: []string{"CVE-2023-32681"}, Severity: SeverityHigh},
				}},
			},
			expectedSeverity: SeverityHigh,
			expectedCVEs:     []string{"CVE-2023-32681"},
			expectedSources:  2,
			expectedFindings: 1,
		},
		{
			name: "distinct findings union",
			sources: []AdvisorySource{
				&fakeSource{name: "osv.dev", records: []VulnerabilityRecord{
					{ID: "GHSA-aaaa", CVEs: []string{"CVE-2024-0001"}, Severity: SeverityLow},
				}},
				&fakeSource{name: "github-advisories", records: []VulnerabilityRecord{
					{ID: "GHSA-bbbb", CVEs: []string{"CVE-2024-0002"}, Severity: SeverityCritical},
				}},
			},
			expectedSeverity: SeverityCritical,
			expectedCVEs:     []string{"CVE-2024-0001", "CVE-2024-0002"},
			expectedSources:  2,
			expectedFindings: 2,
		},
		{
			name: "alias of a multi-CVE advisory folds into the same record",
			sources: []AdvisorySource{
				&fakeSource{name: "osv.dev", records: []VulnerabilityRecord{
					{ID: "GHSA-eeee", CVEs: []string{"CVE-2024-0005", "CVE-2024-0006"}, Severity: SeverityMedium},
				}},
				&fakeSource{name: "github-advisories", records: []VulnerabilityRecord{
					{ID: "GHSA-ffff", CVEs: []string{"CVE-2024-0006"}, Severity: SeverityHigh},
				}},
			},
			expectedSeverity: SeverityHigh,
			expectedCVEs:     []string{"CVE-2024-0005", "CVE-2024-0006"},
			expectedSources:  2,
			expectedFindings: 1,
		},
		{
			name: "one unreachable source does not abort the scan",
			sources: []AdvisorySource{
				&fakeSource{name: "osv.dev", err: errors.New("connection refused")},
				&fakeSource{name: "github-advisories", records: []VulnerabilityRecord{
					{ID: "GHSA-cccc", CVEs: []string{"CVE-2024-0003"}, Severity: SeverityHigh},
				}},
			},
			expectedSeverity: SeverityHigh,
			expectedCVEs:     []string{"CVE-2024-0003"},
			expectedSources:  1,
			expectedFindings: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			scanner := NewSecurityScanner(registry, tt.sources...)
			report, err := scanner.Scan(context.Background(), PackageCandidate{Name: "requests"})
			require.NoError(t, err)

			assert.Equal(t, tt.expectedSeverity, report.Severity)
			assert.Equal(t, tt.expectedSources, report.SourcesConsulted)
			assert.Len(t, report.Vulnerabilities, tt.expectedFindings)
			if tt.expectedCVEs != nil {
				assert.Equal(t, tt.expectedCVEs, report.CVEIDs)
			}
			assert.False(t, report.ScanTimestamp.IsZero())
		})
	}
}

func TestSecurityScannerIncompleteScan(t *testing.T) {
	registry := &fakeRegistry{packages: map[string]*PackageMetadata{
		"requests": metadataFixture("requests", "Apache-2.0"),
	}}
	scanner := NewSecurityScanner(registry,
		&fakeSource{name: "osv.dev", err: errors.New("timeout")},
		&fakeSource{name: "github-advisories", err: errors.New("rate limited")},
	)

	report, err := scanner.Scan(context.Background(), PackageCandidate{Name: "requests"})
	require.NoError(t, err)
	assert.Equal(t, 0, report.SourcesConsulted)
	assert.Contains(t, report.MitigationNotes, "scan incomplete")
}

func TestSecurityScannerMitigationNotes(t *testing.T) {
	registry := &fakeRegistry{packages: map[string]*PackageMetadata{
		"requests": metadataFixture("requests", "Apache-2.0"),
	}}
	scanner := NewSecurityScanner(registry,
		&fakeSource{name: "osv.dev", records: []VulnerabilityRecord{
			{ID: "GHSA-dddd", CVEs: []string{"CVE-2024-0004"}, Severity: SeverityCritical, FixedIn: "2.32.0"},
		}},
	)

	report, err := scanner.Scan(context.Background(), PackageCandidate{Name: "requests"})
	require.NoError(t, err)
	assert.Equal(t, SeverityCritical, report.Severity)
	assert.Contains(t, report.MitigationNotes, "fixed in 2.32.0")
}

func TestMergedFindingsAliasUnion(t *testing.T) {
	m := newMergedFindings()
	m.add(VulnerabilityRecord{ID: "GHSA-a", CVEs: []string{"CVE-1"}, Severity: SeverityLow, Source: "osv.dev"})
	m.add(VulnerabilityRecord{ID: "GHSA-b", CVEs: []string{"CVE-2"}, Severity: SeverityMedium, Source: "osv.dev"})
	// One advisory carrying both CVEs coalesces the two entries.
	m.add(VulnerabilityRecord{ID: "GHSA-c", CVEs: []string{"CVE-1", "CVE-2"}, Severity: SeverityHigh, Source: "github-advisories"})

	require.Len(t, m.records, 1)
	for _, record := range m.records {
		assert.Equal(t, SeverityHigh, record.Severity)
		assert.ElementsMatch(t, []string{"CVE-1", "CVE-2"}, record.CVEs)
	}
}

func TestCombineRecordsSeverityMonotonic(t *testing.T) {
	a := VulnerabilityRecord{ID: "GHSA-x", CVEs: []string{"CVE-1"}, Severity: SeverityHigh, Source: "osv.dev"}
	b := VulnerabilityRecord{ID: "GHSA-x", CVEs: []string{"CVE-1", "CVE-2"}, Severity: SeverityLow, Source: "github-advisories"}

	combined := combineRecords(a, b)
	assert.Equal(t, SeverityHigh, combined.Severity)
	assert.ElementsMatch(t, []string{"CVE-1", "CVE-2"}, combined.CVEs)
	assert.Equal(t, "osv.dev,github-advisories", combined.Source)

	// Merging in the other order must not downgrade either.
	combined = combineRecords(b, a)
	assert.Equal(t, SeverityHigh, combined.Severity)
}

func TestMaxSeverity(t *testing.T) {
	assert.Equal(t, SeverityCritical, MaxSeverity(SeverityHigh, SeverityCritical))
	assert.Equal(t, SeverityCritical, MaxSeverity(SeverityCritical, SeverityHigh))
	assert.Equal(t, SeverityNone, MaxSeverity(SeverityNone, SeverityNone))
	assert.Equal(t, SeverityLow, MaxSeverity(SeverityLow, Severity("BOGUS")))
}

func TestSeverityFromLabel(t *testing.T) {
	tests := []struct {
		label    string
		expected Severity
	}{
		{"CRITICAL", SeverityCritical},
		{"critical", SeverityCritical},
		{"HIGH", SeverityHigh},
		{"MODERATE", SeverityMedium},
		{"MEDIUM", SeverityMedium},
		{"LOW", SeverityLow},
		{"", SeverityNone},
		{"UNKNOWN", SeverityNone},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.expected, severityFromLabel(tt.label), "label %q", tt.label)
	}
}

func TestSeverityFromCVSS(t *testing.T) {
	tests := []struct {
		score    string
		expected Severity
	}{
		{"9.8", SeverityCritical},
		{"9.0", SeverityCritical},
		{"7.5", SeverityHigh},
		{"5.3", SeverityMedium},
		{"2.1", SeverityLow},
		{"0", SeverityNone},
		{"CVSS:3.1/AV:N/AC:L", SeverityNone},
		{"", SeverityNone},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.expected, severityFromCVSS(tt.score), "score %q", tt.score)
	}
}

func TestCVEIdentifiers(t *testing.T) {
	assert.Equal(t, []string{"CVE-2023-32681"}, cveIdentifiers("GHSA-j8r2-6x86-q33q", []string{"CVE-2023-32681"}))
	assert.Equal(t, []string{"CVE-2024-1"}, cveIdentifiers("CVE-2024-1", []string{"GHSA-zzzz", "CVE-2024-1"}))
	assert.Empty(t, cveIdentifiers("GHSA-only", nil))
}

func TestSecurityScannerTimestampInjectable(t *testing.T) {
	fixed := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	registry := &fakeRegistry{packages: map[string]*PackageMetadata{
		"requests": metadataFixture("requests", "Apache-2.0"),
	}}
	scanner := NewSecurityScanner(registry, &fakeSource{name: "osv.dev"})
	scanner.now = func() time.Time { return fixed }

	report, err := scanner.Scan(context.Background(), PackageCandidate{Name: "requests"})
	require.NoError(t, err)
	assert.Equal(t, fixed, report.ScanTimestamp)
}
