package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/Harshitk-cp/atomspace/internal/domain"
	"github.com/Harshitk-cp/atomspace/internal/service"
	"github.com/Harshitk-cp/atomspace/internal/truth"
	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnvDefaults(t *testing.T) {
	for _, k := range []string{
		"SERVER_PORT", "SNAPSHOT_BACKEND", "SNAPSHOT_PATH", "PROVENANCE_POLICY",
		"ATTENTION_DECAY_MODE", "CHAIN_MAX_PASSES", "CHAIN_TIMEOUT",
	} {
		t.Setenv(k, "")
	}

	assert.Equal(t, ":8080", ServerAddr())
	assert.Equal(t, BackendFile, SnapshotBackend())
	assert.Equal(t, "atomspace.json", SnapshotPath())
	assert.Equal(t, domain.ProvenanceReject, ProvenancePolicy())
	assert.Equal(t, DecayPerPass, AttentionDecayMode())
	assert.Equal(t, service.DefaultMaxPasses, ChainMaxPasses())
	assert.Equal(t, service.DefaultChainTimeout, ChainTimeout())
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("SERVER_PORT", "9090")
	t.Setenv("SNAPSHOT_BACKEND", "sqlite")
	t.Setenv("SNAPSHOT_PATH", "")
	t.Setenv("PROVENANCE_POLICY", "cascade")
	t.Setenv("ATTENTION_DECAY_MODE", "timer")
	t.Setenv("CHAIN_MAX_STEPS", "25")
	t.Setenv("CHAIN_TIMEOUT", "2s")
	t.Setenv("CHAIN_WORKERS", "3")

	assert.Equal(t, ":9090", ServerAddr())
	assert.Equal(t, "atomspace.db", SnapshotPath())
	assert.Equal(t, domain.ProvenanceCascade, ProvenancePolicy())

	cfg := Engine(nil)
	assert.Equal(t, 25, cfg.Budget.MaxSteps)
	assert.Equal(t, 2*time.Second, cfg.Budget.Timeout)
	assert.Equal(t, 3, cfg.Workers)
	assert.False(t, cfg.DecayPerPass)
}

func TestEnvRejectsGarbage(t *testing.T) {
	t.Setenv("SNAPSHOT_BACKEND", "mongodb")
	t.Setenv("PROVENANCE_POLICY", "shrug")
	t.Setenv("CHAIN_MAX_DEPTH", "-4")

	assert.Equal(t, BackendFile, SnapshotBackend())
	assert.Equal(t, domain.ProvenanceReject, ProvenancePolicy())
	assert.Equal(t, service.DefaultMaxDepth, ChainMaxDepth())
}

func TestLoad_ReadsEnvFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.env")
	require.NoError(t, os.WriteFile(path, []byte("CHAIN_MAX_PASSES=7\n"), 0o600))
	require.NoError(t, os.WriteFile(path+".secret", []byte("DATABASE_URL=postgres://x\n"), 0o600))

	t.Setenv("ATOMSPACE_ENV", path)
	t.Setenv("CHAIN_MAX_PASSES", "")
	os.Unsetenv("CHAIN_MAX_PASSES")
	t.Setenv("DATABASE_URL", "")
	os.Unsetenv("DATABASE_URL")

	require.NoError(t, Load())
	assert.Equal(t, 7, ChainMaxPasses())
	assert.Equal(t, "postgres://x", DatabaseURL())
}

func TestLoadRules_MissingFileGivesDefaults(t *testing.T) {
	r, err := LoadRules(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultRules(), r)

	r, err = LoadRules("")
	require.NoError(t, err)
	assert.Equal(t, truth.DefaultParams(), r.Params)
}

const rulesYAML = `
params:
  abduction_penalty: 0.25
confidence_threshold: 0.3
enabled: [modus-ponens, member-to-inheritance]
rules:
  - name: member-to-inheritance
    formula: deduction
    premises:
      - subtype: MemberLink
        outgoing: [{var: X}, {var: S}]
      - subtype: InheritanceLink
        outgoing: [{var: S}, {var: T}]
    conclusion:
      subtype: MemberLink
      outgoing: [{var: X}, {var: T}]
    distinct: [[S, T]]
`

func TestLoadRules_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.yaml")
	require.NoError(t, os.WriteFile(path, []byte(rulesYAML), 0o600))

	r, err := LoadRules(path)
	require.NoError(t, err)
	assert.Equal(t, 0.25, r.Params.AbductionPenalty)
	assert.Equal(t, truth.DefaultInductionCap, r.Params.InductionCap, "unset params keep defaults")
	assert.Equal(t, 0.3, r.ConfidenceThreshold)
	require.Len(t, r.Custom, 1)
	assert.Equal(t, [][2]string{{"S", "T"}}, r.Custom[0].Distinct)

	rs, err := r.RuleSet(domain.DefaultTypeRegistry())
	require.NoError(t, err)
	assert.Equal(t, []string{service.RuleModusPonens, "member-to-inheritance"}, rs.Names())

	assert.Equal(t, 0.3, Engine(r).ConfidenceThreshold)
	assert.Equal(t, 0.25, r.Algebra().Params().AbductionPenalty)
}

func TestLoadRules_Invalid(t *testing.T) {
	dir := t.TempDir()

	bad := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("params: [nope"), 0o600))
	_, err := LoadRules(bad)
	require.Error(t, err)

	threshold := filepath.Join(dir, "threshold.yaml")
	require.NoError(t, os.WriteFile(threshold, []byte("confidence_threshold: 1.5\n"), 0o600))
	_, err = LoadRules(threshold)
	require.Error(t, err)

	r := DefaultRules()
	r.Enabled = []string{"telepathy"}
	_, err = r.RuleSet(domain.DefaultTypeRegistry())
	assert.True(t, errors.Is(err, domain.ErrQuery))
}
