package pkg

import (
	"fmt"

	"github.com/ghodss/yaml"
	"github.com/spf13/afero"
)

// PreApprovalTable is the fast-path lookup consulted before the deep
// pipeline runs. Implementations must be safe for concurrent readers.
type PreApprovalTable interface {
	Lookup(normalizedName string) (PreApprovalEntry, bool)
}

// StaticTable is an in-memory PreApprovalTable keyed by normalized name.
type StaticTable map[string]PreApprovalEntry

// Lookup implements PreApprovalTable.
func (t StaticTable) Lookup(normalizedName string) (PreApprovalEntry, bool) {
	entry, ok := t[normalizedName]
	return entry, ok
}

// PolicyData is the on-disk shape of the engine's static configuration:
// the pre-approval/ban table, the license exemption list, and the
// substitution-alternatives table.
type PolicyData struct {
	PreApproved []PreApprovalEntry  `json:"pre_approved,omitempty" yaml:"pre_approved,omitempty"`
	Banned      []PreApprovalEntry  `json:"banned,omitempty" yaml:"banned,omitempty"`
	Exemptions  map[string]string   `json:"exemptions,omitempty" yaml:"exemptions,omitempty"`
	Substitutes map[string][]string `json:"substitutes,omitempty" yaml:"substitutes,omitempty"`
}

// Table folds the pre-approved and banned lists into a lookup table.
func (p *PolicyData) Table() StaticTable {
	table := StaticTable{}
	for _, entry := range p.PreApproved {
		entry.NormalizedName = NormalizeName(entry.NormalizedName)
		entry.Status = StatusPreApproved
		table[entry.NormalizedName] = entry
	}
	for _, entry := range p.Banned {
		entry.NormalizedName = NormalizeName(entry.NormalizedName)
		entry.Status = StatusBanned
		table[entry.NormalizedName] = entry
	}
	return table
}

// NormalizedExemptions returns the exemption list keyed by normalized name.
func (p *PolicyData) NormalizedExemptions() map[string]string {
	out := make(map[string]string, len(p.Exemptions))
	for name, reason := range p.Exemptions {
		out[NormalizeName(name)] = reason
	}
	return out
}

// NormalizedSubstitutes returns the substitution table keyed by normalized
// name.
func (p *PolicyData) NormalizedSubstitutes() map[string][]string {
	out := make(map[string][]string, len(p.Substitutes))
	for name, alternatives := range p.Substitutes {
		out[NormalizeName(name)] = alternatives
	}
	return out
}

// LoadPolicyData reads a YAML policy file.
func LoadPolicyData(fs afero.Fs, path string) (*PolicyData, error) {
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return nil, fmt.Errorf("failed to read policy file %s: %w", path, err)
	}
	var policy PolicyData
	if err := yaml.Unmarshal(data, &policy); err != nil {
		return nil, fmt.Errorf("failed to parse policy file %s: %w", path, err)
	}
	return &policy, nil
}

// DefaultPolicyData is the built-in table used when no policy file is given.
// It stays deliberately small: real deployments ship their own file.
func DefaultPolicyData() *PolicyData {
	return &PolicyData{
		Exemptions: map[string]string{
			// Dev-only tooling, never redistributed with the product.
			"pytest": "test-only dependency, not redistributed",
			"black":  "formatter used in development only",
		},
		Substitutes: map[string][]string{
			"mysql-connector-python": {"pymysql", "aiomysql"},
			"mysqlclient":            {"pymysql"},
		},
	}
}
