package pkg

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/ghodss/yaml"
	"golang.org/x/term"
)

// OutputFormat represents the output format type.
type OutputFormat string

const (
	FormatHuman OutputFormat = "human"
	FormatJSON  OutputFormat = "json"
	FormatYAML  OutputFormat = "yaml"
)

// Write renders the report in the given format. An empty format means human
// text on a terminal and JSON everywhere else.
func (r *DependencyReport) Write(format string, w io.Writer) error {
	if format == "" {
		if f, ok := w.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
			return r.WriteText(w)
		}
		format = string(FormatJSON)
	}

	switch OutputFormat(strings.ToLower(format)) {
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(r)
	case FormatYAML, "yml":
		data, err := yaml.Marshal(r)
		if err != nil {
			return fmt.Errorf("failed to marshal to YAML: %w", err)
		}
		_, err = w.Write(data)
		return err
	case FormatHuman:
		return r.WriteText(w)
	default:
		return fmt.Errorf("unsupported output format: %s", format)
	}
}

// WriteText renders the human-readable report. The Recommendation and CVEs
// lines are stable, machine-parseable anchors: downstream tooling greps them.
func (r *DependencyReport) WriteText(w io.Writer) error {
	var b strings.Builder

	b.WriteString(fmt.Sprintf("Dependency Report: %s\n", r.PackageName))
	b.WriteString(fmt.Sprintf("Generated: %s\n", r.GeneratedAt.Format("2006-01-02 15:04:05")))
	b.WriteString(strings.Repeat("=", 60) + "\n\n")

	b.WriteString(fmt.Sprintf("Recommendation: %s\n", r.Recommendation))
	if r.Reason != "" {
		b.WriteString(fmt.Sprintf("Reason: %s\n", r.Reason))
	}
	b.WriteString("\n")

	compatible := "incompatible"
	if r.License.Apache2Compatible {
		compatible = "compatible"
	}
	if r.License.LicenseName != "" || r.License.LicenseType != "" {
		b.WriteString(fmt.Sprintf("License: %s (%s) [%s]\n", r.License.LicenseName, r.License.LicenseType, compatible))
		for _, issue := range r.License.Issues {
			b.WriteString(fmt.Sprintf("  - %s\n", issue))
		}
	}

	b.WriteString(fmt.Sprintf("Security: severity=%s, sources=%d\n", r.Security.Severity, r.Security.SourcesConsulted))
	b.WriteString(fmt.Sprintf("CVEs: %s\n", strings.Join(r.Security.CVEIDs, ", ")))
	for _, vuln := range r.Security.Vulnerabilities {
		b.WriteString(fmt.Sprintf("  - %s (%s): %s\n", vuln.ID, vuln.Severity, vuln.Summary))
	}
	if r.Security.MitigationNotes != "" {
		b.WriteString(fmt.Sprintf("  mitigation: %s\n", r.Security.MitigationNotes))
	}

	if r.Conflicts.HasConflicts {
		b.WriteString(fmt.Sprintf("Conflicts: %d (cycles: %d)\n", len(r.Conflicts.Conflicts), len(r.Conflicts.CircularDependencies)))
		for _, conflict := range r.Conflicts.Conflicts {
			b.WriteString(fmt.Sprintf("  - %s\n", conflict))
		}
		for _, cycle := range r.Conflicts.CircularDependencies {
			b.WriteString(fmt.Sprintf("  - cycle: %s\n", strings.Join(cycle, " -> ")))
		}
	} else {
		b.WriteString("Conflicts: none\n")
	}

	if r.Version.LatestStable != "" {
		b.WriteString(fmt.Sprintf("Version: latest stable %s", r.Version.LatestStable))
		if r.Version.IsDeprecated {
			b.WriteString(" (DEPRECATED)")
		}
		b.WriteString("\n")
		for _, change := range r.Version.BreakingChanges {
			b.WriteString(fmt.Sprintf("  - %s\n", change))
		}
	}

	if r.Impact.PlatformCompatibility != nil {
		b.WriteString(fmt.Sprintf("Impact: %.2f MB, ~%.0fs install, %d new sub-dependencies\n",
			r.Impact.BundleSizeMB, r.Impact.EstimatedInstallSeconds, len(r.Impact.SubDependenciesAdded)))
	}

	if len(r.Unavailable) > 0 {
		b.WriteString(fmt.Sprintf("Incomplete: %s unavailable\n", strings.Join(r.Unavailable, ", ")))
	}
	if len(r.Alternatives) > 0 {
		b.WriteString(fmt.Sprintf("Alternatives: %s\n", strings.Join(r.Alternatives, ", ")))
	}
	if r.InstallCommand != "" {
		b.WriteString(fmt.Sprintf("\nInstall: %s\n", r.InstallCommand))
	}

	_, err := io.WriteString(w, b.String())
	return err
}
