package pkg

import (
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const policyFixture = `
pre_approved:
  - name: Requests
    version_constraint: ">=2.31.0"
  - name: typing_extensions
banned:
  - name: leftpad
    ban_reason: unmaintained, trivially replaced
    alternatives:
      - textwrap
exemptions:
  PyTest: test-only dependency, not redistributed
substitutes:
  MySQLclient:
    - pymysql
`

func TestLoadPolicyData(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "policy.yaml", []byte(policyFixture), 0o644))

	policy, err := LoadPolicyData(fs, "policy.yaml")
	require.NoError(t, err)

	table := policy.Table()

	entry, ok := table.Lookup("requests")
	require.True(t, ok)
	assert.Equal(t, StatusPreApproved, entry.Status)
	assert.Equal(t, ">=2.31.0", entry.VersionConstraint)

	// Table keys are normalized, so underscore variants resolve.
	entry, ok = table.Lookup("typing-extensions")
	require.True(t, ok)
	assert.Equal(t, StatusPreApproved, entry.Status)

	entry, ok = table.Lookup("leftpad")
	require.True(t, ok)
	assert.Equal(t, StatusBanned, entry.Status)
	assert.Equal(t, "unmaintained, trivially replaced", entry.BanReason)
	assert.Equal(t, []string{"textwrap"}, entry.Alternatives)

	_, ok = table.Lookup("unlisted")
	assert.False(t, ok)

	exemptions := policy.NormalizedExemptions()
	assert.Equal(t, "test-only dependency, not redistributed", exemptions["pytest"])

	substitutes := policy.NormalizedSubstitutes()
	assert.Equal(t, []string{"pymysql"}, substitutes["mysqlclient"])
}

func TestLoadPolicyDataErrors(t *testing.T) {
	fs := afero.NewMemMapFs()

	_, err := LoadPolicyData(fs, "missing.yaml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read policy file")

	require.NoError(t, afero.WriteFile(fs, "broken.yaml", []byte("pre_approved: {not: [valid"), 0o644))
	_, err = LoadPolicyData(fs, "broken.yaml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse policy file")
}

func TestDefaultPolicyData(t *testing.T) {
	policy := DefaultPolicyData()

	exemptions := policy.NormalizedExemptions()
	assert.NotEmpty(t, exemptions["pytest"])

	substitutes := policy.NormalizedSubstitutes()
	assert.Contains(t, substitutes["mysqlclient"], "pymysql")

	// The default ships no pre-approvals: deployments opt in explicitly.
	assert.Empty(t, policy.Table())
}
