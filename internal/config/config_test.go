package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "QMSv5_01", cfg.Candidates.SlotOne)
	assert.Equal(t, "ALL", cfg.Blinding.NodeScopes["StageIIIA"])
	assert.Equal(t, "TAMPER", cfg.Classifier.Rules[0].Kind)
}

func TestLoadOverlaysDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hvaudit.toml")
	content := `
[candidates]
pass_token = "OK"

[expect]
rows = 12
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "OK", cfg.Candidates.PassToken)
	assert.Equal(t, 12, cfg.Expect.Rows)
	// untouched sections keep their defaults
	assert.Equal(t, "QMSv5_02", cfg.Candidates.SlotTwo)
	assert.Equal(t, "SentinelQMSv5_BlindingMap@1.0", cfg.Schemas.BlindingMap)
	assert.NotEmpty(t, cfg.Classifier.Rules)
}

func TestLoadEmptyPathReturnsDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadRejectsEqualCandidates(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.toml")
	content := `
[candidates]
slot_one = "X"
slot_two = "X"
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	_, err := Load(path)
	assert.ErrorContains(t, err, "candidate ids must differ")
}

func TestLoadRejectsUnknownRuleKind(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.toml")
	content := `
[[classifier.rules]]
name = "odd"
kind = "BASELINE"
any_of = [["X"]]
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	_, err := Load(path)
	assert.ErrorContains(t, err, "unknown kind")
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
	assert.ErrorContains(t, err, "failed to read config file")
}

func TestApplyEnvOverrides(t *testing.T) {
	t.Setenv("HVAUDIT_MEMGRAPH_URI", "bolt://graph:7687")
	t.Setenv("HVAUDIT_SERVER_ADDR", "")
	t.Setenv("PORT", "9090")

	cfg := Default()
	cfg.ApplyEnv(filepath.Join(t.TempDir(), "missing.env"))

	assert.Equal(t, "bolt://graph:7687", cfg.Memgraph.URI)
	assert.Equal(t, ":9090", cfg.Server.Addr)
}
