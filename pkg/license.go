package pkg

import (
	"context"
	"fmt"
	"strings"

	"github.com/chainguard-dev/clog"
)

// licenseKeywords maps keywords found in license fields and classifiers to a
// license family. Order matters: copyleft markers are checked before
// permissive ones so "GPL with MIT-licensed examples" stays copyleft.
var licenseKeywords = []struct {
	keyword string
	family  LicenseType
}{
	{"AGPL", LicenseCopyleft},
	{"LGPL", LicenseCopyleft},
	{"GPL", LicenseCopyleft},
	{"PROPRIETARY", LicenseProprietary},
	{"COMMERCIAL", LicenseProprietary},
	{"MIT", LicensePermissive},
	{"BSD", LicensePermissive},
	{"APACHE", LicensePermissive},
	{"ISC", LicensePermissive},
}

// LicenseChecker wraps the registry client and classifies the candidate's
// declared license against the Apache-2.0 compatibility policy.
type LicenseChecker struct {
	Registry Registry
	// Exemptions maps normalized package names to the reason they are
	// allowed regardless of detected license type (dev-only tooling that is
	// never redistributed).
	Exemptions map[string]string
	// Substitutions maps normalized package names to permissive
	// replacements suggested when the license is incompatible.
	Substitutions map[string][]string
}

// Check implements the license analysis contract. Unknown licenses are not
// compatible: the policy fails closed.
func (c *LicenseChecker) Check(ctx context.Context, candidate PackageCandidate) (LicenseInfo, error) {
	log := clog.FromContext(ctx)

	meta, err := c.Registry.FetchMetadata(ctx, candidate.Name)
	if err != nil {
		return LicenseInfo{}, fmt.Errorf("failed to fetch metadata for %s: %w", candidate.Name, err)
	}

	name := NormalizeName(candidate.Name)
	licenseName := licenseNameFrom(meta)
	licenseType := classifyLicense(licenseName, meta.Classifiers)

	info := LicenseInfo{
		LicenseName:       licenseName,
		LicenseType:       licenseType,
		Apache2Compatible: licenseType == LicensePermissive,
	}

	switch licenseType {
	case LicenseUnknown:
		info.Issues = append(info.Issues, "license could not be classified; treating as incompatible")
	case LicenseCopyleft:
		info.Issues = append(info.Issues, fmt.Sprintf("copyleft license %q requires derivative works to adopt the same terms", licenseName))
	case LicenseProprietary:
		info.Issues = append(info.Issues, fmt.Sprintf("proprietary license %q is not redistributable", licenseName))
	}

	if reason, ok := c.Exemptions[name]; ok && !info.Apache2Compatible {
		info.Apache2Compatible = true
		info.Issues = append(info.Issues, fmt.Sprintf("exempted: %s", reason))
		log.Infof("license exemption applied for %s: %s", name, reason)
	}

	if !info.Apache2Compatible {
		info.Alternatives = c.Substitutions[name]
	}

	log.Debugf("license check for %s: %s (%s), compatible=%t", name, licenseName, licenseType, info.Apache2Compatible)
	return info, nil
}

// licenseNameFrom prefers the declared license field and falls back to the
// most specific license classifier.
func licenseNameFrom(meta *PackageMetadata) string {
	if l := strings.TrimSpace(meta.License); l != "" {
		return l
	}
	for _, classifier := range meta.Classifiers {
		if rest, ok := strings.CutPrefix(classifier, "License :: "); ok {
			parts := strings.Split(rest, " :: ")
			return strings.TrimSpace(parts[len(parts)-1])
		}
	}
	return ""
}

func classifyLicense(licenseName string, classifiers []string) LicenseType {
	haystack := strings.ToUpper(licenseName)
	for _, classifier := range classifiers {
		if strings.HasPrefix(classifier, "License ::") {
			haystack += " " + strings.ToUpper(classifier)
		}
	}
	if strings.TrimSpace(haystack) == "" {
		return LicenseUnknown
	}
	for _, entry := range licenseKeywords {
		if strings.Contains(haystack, entry.keyword) {
			return entry.family
		}
	}
	return LicenseUnknown
}
