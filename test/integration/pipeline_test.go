//go:build integration

package integration

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/joho/godotenv"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agenthands/hvaudit/internal/config"
	"github.com/agenthands/hvaudit/internal/core"
	"github.com/agenthands/hvaudit/internal/core/audit"
	"github.com/agenthands/hvaudit/internal/core/model"
	"github.com/agenthands/hvaudit/internal/core/provenance"
	"github.com/agenthands/hvaudit/internal/digest"
	"github.com/agenthands/hvaudit/internal/driver"
)

const node = "Node02_HVT_A_COMPLETED"

const stageIV = "## Stage IV blinding map\n```json\n" + `{
  "schema": "SentinelQMSv5_BlindingMap@1.0",
  "jobs": [
    {"job_id": "StageIV_Node02", "arms": [
      {"group": "IIIA_Baseline", "arm": "ARM_01", "A_src": "BASELINE_A_SRC",
       "QMSv5_01_src": "CAND_WORKING_TAMPER", "QMSv5_02_src": "CAND_NORMAL"}
    ]}
  ]
}` + "\n```\n"

func writeJSON(t *testing.T, p string, v any) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
	data, err := json.Marshal(v)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(p, data, 0o644))
}

// evidence lays out one baseline arm: QMSv5_02 passes hash parity and
// QMSv5_01 fails it, each validated by two operators.
func evidence(t *testing.T, root string) {
	t.Helper()
	armDir := filepath.Join(root, node, "IIIA_Baseline", "ARM_01")
	for _, candidate := range []string{"QMSv5_01", "QMSv5_02"} {
		folder := "COMPARE_A_vs_" + candidate
		compareDir := filepath.Join(armDir, folder)
		winDir := `C:\HVT\IIIA_Baseline\ARM_01\` + folder
		pass := candidate == "QMSv5_02"

		result, esfResult, esfDir, missing, sidecar := "HASH PARITY FAIL", "ESF SET NOT EQUIVALENT", armDir, 2, "9c56cc51"
		if pass {
			result, esfResult, esfDir, missing, sidecar = "HASH PARITY PASS", "ESF SET EQUIVALENT", filepath.Join(armDir, "match"), 0, digest.EmptySHA256
		}

		for i, operator := range []string{"Jane Roe", "DRTELLES-ARCHITECT"} {
			writeJSON(t, filepath.Join(compareDir, "HV_METADATA_QMSv5___"+folder+"_op"+string(rune('1'+i))+".json"), map[string]any{
				"schema":              "SentinelQMSv5_HV_Metadata@1.0",
				"ts_generated_utc":    "2025-03-01T10:00:0" + string(rune('0'+i)) + "Z",
				"compare_dir":         winDir,
				"hv_validator_name":   operator,
				"hv_start_utc":        "2025-03-01T09:00:00Z",
				"hv_end_utc":          "2025-03-01T09:00:30Z",
				"hv_duration_seconds": 30,
				"hv_final_sha256":     "final-" + candidate,
				"compare_artifacts": map[string]any{
					"required": []map[string]any{
						{"path": winDir + `\COMPARE_SUMMARY.json`, "sha256": "aa", "ripemd160": "bb"},
						{"path": winDir + `\MISSING_GLOBAL.ndjson`, "sha256": sidecar, "ripemd160": "cc"},
						{"path": winDir + `\EXTRAS_GLOBAL.ndjson`, "sha256": digest.EmptySHA256, "ripemd160": "dd"},
					},
				},
			})
		}
		writeJSON(t, filepath.Join(compareDir, "COMPARE_SUMMARY.json"), map[string]any{
			"result": result,
			"counts": map[string]any{"missing_count": missing, "extras_count": 0},
			"fingerprints": map[string]any{
				"match":   pass,
				"source":  map[string]any{"sha256_fingerprint": "src"},
				"windows": map[string]any{"sha256_fingerprint": "win"},
			},
		})
		writeJSON(t, filepath.Join(esfDir, "ESF_SET_EQUIVALENCE_QMS.json"), map[string]any{
			"result":         esfResult,
			"audit_esf_rows": 4,
			"policy":         map[string]any{"qms_safe": true},
		})
	}
}

func studyConfig() *config.Config {
	cfg := config.Default()
	cfg.Expect = config.ExpectConfig{
		Rows:                4,
		RowsPerNode:         4,
		Nodes:               []string{node},
		OperatorsPerCompare: 2,
		CompareFolders:      []string{"COMPARE_A_vs_QMSv5_01", "COMPARE_A_vs_QMSv5_02"},
	}
	return cfg
}

type pipeline struct {
	auditor *core.Auditor
	root    string
	work    string
	mapPath string
}

func newPipeline(t *testing.T, d driver.GraphDriver) *pipeline {
	t.Helper()
	a, err := core.NewAuditor(studyConfig(), d, nil)
	require.NoError(t, err)
	p := &pipeline{auditor: a, root: t.TempDir(), work: t.TempDir()}
	evidence(t, p.root)
	p.mapPath = filepath.Join(p.work, "stageIV.md")
	require.NoError(t, os.WriteFile(p.mapPath, []byte(stageIV), 0o644))
	return p
}

// run drives extract, verify-ready and blind, and returns the blind report.
func (p *pipeline) run(t *testing.T, ctx context.Context) *core.BlindReport {
	t.Helper()
	extractOut := filepath.Join(p.work, "extract")
	res, _, err := p.auditor.Extract(ctx, p.root, extractOut, audit.StopAtFirst)
	require.NoError(t, err)
	require.NoError(t, res.Err())
	require.Len(t, res.Comparisons.Rows, 4)

	ready, _, err := p.auditor.VerifyReady(p.root, extractOut, filepath.Join(p.work, "verify"), audit.CollectAll)
	require.NoError(t, err)
	require.True(t, ready.Passed(), "%v", ready.Issues)

	report, err := p.auditor.Blind(ctx, core.BlindInput{
		PrimaryMap:  p.mapPath,
		Comparisons: filepath.Join(extractOut, "hvtA_comparisons.csv"),
		OutDir:      filepath.Join(p.work, "blind"),
	}, audit.StopAtFirst)
	require.NoError(t, err)
	return report
}

func TestPipeline(t *testing.T) {
	p := newPipeline(t, nil)
	report := p.run(t, context.Background())

	assert.Equal(t, 1, report.Mappings)
	assert.Equal(t, 4, report.Records)
	assert.Zero(t, report.Wildcard)
	for _, r := range report.Enriched.Rows {
		assert.Equal(t, "QMSv5_02", r["expected_match_candidate"])
		assert.Equal(t, "1", r["classification_correct"], "hv_record_id=%s", r["hv_record_id"])
	}

	verified, paths, err := p.auditor.VerifyBlinding(report.Outputs[1], filepath.Join(p.work, "extract", "hvtA_comparisons.csv"), filepath.Join(p.work, "verify"), audit.CollectAll)
	require.NoError(t, err)
	assert.True(t, verified.Passed(), "%v", verified.Issues)
	assert.Len(t, paths, 2)
}

func TestPipelineRejectsTamperedSummary(t *testing.T) {
	p := newPipeline(t, nil)
	ctx := context.Background()
	extractOut := filepath.Join(p.work, "extract")
	_, _, err := p.auditor.Extract(ctx, p.root, extractOut, audit.StopAtFirst)
	require.NoError(t, err)

	// A later rerun flips one verdict after extraction.
	writeJSON(t, filepath.Join(p.root, node, "IIIA_Baseline", "ARM_01", "COMPARE_A_vs_QMSv5_01", "COMPARE_SUMMARY.json"), map[string]any{
		"result":       "HASH PARITY PASS",
		"counts":       map[string]any{"missing_count": 0, "extras_count": 0},
		"fingerprints": map[string]any{"match": true},
	})

	ready, _, err := p.auditor.VerifyReady(p.root, extractOut, filepath.Join(p.work, "verify"), audit.CollectAll)
	require.NoError(t, err)
	assert.False(t, ready.Passed())
	assert.ErrorIs(t, ready.Err(), audit.ErrInconsistentEvidence)
}

func TestPipelineProvenanceGraph(t *testing.T) {
	_ = godotenv.Load("../../.env")
	uri := os.Getenv("MEMGRAPH_URI")
	if uri == "" {
		t.Skip("Skipping integration test: MEMGRAPH_URI not set")
	}
	ctx := context.Background()

	d, err := driver.NewMemgraphDriver(ctx, uri, os.Getenv("MEMGRAPH_USER"), os.Getenv("MEMGRAPH_PASSWORD"), nil)
	require.NoError(t, err)
	defer d.Close(ctx)

	p := newPipeline(t, d)
	report := p.run(t, ctx)
	require.NoError(t, p.auditor.ExportGraph(ctx, report))
	assert.Equal(t, 1, report.Graph.Documents)
	assert.Equal(t, 4, report.Graph.Comparisons)

	got, err := provenance.NewExporter(d, p.auditor.Reconciler, nil).Lookup(ctx, model.Key{NodeScope: node, Group: "Baseline", Arm: "ARM_01"})
	require.NoError(t, err)
	require.NotEmpty(t, got)
	assert.Equal(t, digest.SHA256Bytes([]byte(stageIV)), got[0].SHA256)
	assert.GreaterOrEqual(t, got[0].Comparisons, int64(4))
}
