package reconcile

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agenthands/hvaudit/internal/config"
	"github.com/agenthands/hvaudit/internal/core/audit"
	"github.com/agenthands/hvaudit/internal/core/merge"
	"github.com/agenthands/hvaudit/internal/core/model"
)

const (
	node02 = "Node02_HVT_A_COMPLETED"
	node03 = "Node03_HVT_A_COMPLETED"
)

func newReconciler() *Reconciler {
	return NewReconciler(config.Default(), nil)
}

func mapping(t *testing.T, rows ...model.MappingRow) *merge.Mapping {
	t.Helper()
	b := merge.NewBuilder()
	require.NoError(t, b.Add(rows...))
	return b.Build()
}

func row(scope, group, arm, match, mismatch string) model.MappingRow {
	return model.MappingRow{
		NodeScope:        scope,
		Group:            group,
		Arm:              arm,
		Status:           model.StatusActive,
		ExpectedMatch:    match,
		ExpectedMismatch: mismatch,
		Rule:             "A=BASELINE -> match=non-tamper",
		JobID:            "StageIIIA",
		SourceFile:       "/maps/stage_iiia.md",
		SourceSHA256:     "abc123",
	}
}

func comparisons(recs ...model.Record) *model.Table {
	return &model.Table{
		Source:  "hvtA_comparisons.csv",
		Columns: []string{"node_id", "group", "arm", "compare_folder", "pass_fail"},
		Rows:    recs,
	}
}

func rec(node, group, arm, folder, verdict string) model.Record {
	return model.Record{"node_id": node, "group": group, "arm": arm, "compare_folder": folder, "pass_fail": verdict}
}

func TestCandidateFromFolder(t *testing.T) {
	r := newReconciler()
	assert.Equal(t, "QMSv5_01", r.CandidateFromFolder("COMPARE_A_vs_QMSv5_01"))
	assert.Equal(t, "QMSv5_02", r.CandidateFromFolder("COMPARE_A_vs_QMSv5_02"))
	assert.Equal(t, "", r.CandidateFromFolder("COMPARE_A_vs_QMSv5_03"))
	assert.Equal(t, "", r.CandidateFromFolder(""))
}

func TestReconcileEnriches(t *testing.T) {
	m := mapping(t, row("ALL", "Baseline", "ARM_01", "QMSv5_02", "QMSv5_01"))
	in := comparisons(
		rec(node02, "IIIA_Baseline", "ARM_01", "COMPARE_A_vs_QMSv5_01", "FAIL"),
		rec(node02, "Baseline", "ARM_01", "COMPARE_A_vs_QMSv5_02", "PASS"),
		rec(node03, "Baseline", "ARM_01", "COMPARE_A_vs_QMSv5_02", "FAIL"),
	)

	res, err := newReconciler().Reconcile(in, m)
	require.NoError(t, err)
	require.Len(t, res.Table.Rows, 3)
	assert.Equal(t, 3, res.Wildcard)
	assert.Equal(t, append(append([]string{}, in.Columns...), Columns...), res.Table.Columns)

	first := res.Table.Rows[0]
	assert.Equal(t, "IIIA_Baseline", first["group"], "original fields are preserved verbatim")
	assert.Equal(t, "active", first["blinding_map_status"])
	assert.Equal(t, "0", first["is_expected_match_candidate"])
	assert.Equal(t, "1", first["is_expected_mismatch_candidate"])
	assert.Equal(t, "0", first["observed_match_via_pass"])
	assert.Equal(t, "1", first["classification_correct"])
	assert.Equal(t, "StageIIIA", first["blinding_map_job_id"])
	assert.Equal(t, "abc123", first["blinding_map_source_sha256"])
	assert.Equal(t, "0", first["blinding_map_manual_override_flag"])
	assert.Equal(t, "hvaudit-blind", first["blinding_parser_script"])
	assert.Equal(t, "5.1.0", first["blinding_parser_version"])

	second := res.Table.Rows[1]
	assert.Equal(t, "1", second["is_expected_match_candidate"])
	assert.Equal(t, "1", second["observed_match_via_pass"])
	assert.Equal(t, "1", second["classification_correct"])

	// Expected match reported FAIL: the study misclassified it.
	third := res.Table.Rows[2]
	assert.Equal(t, "1", third["is_expected_match_candidate"])
	assert.Equal(t, "0", third["classification_correct"])

	_, touched := in.Rows[0]["blinding_map_status"]
	assert.False(t, touched, "input records are never mutated")
}

func TestNodeSpecificRowBeatsWildcard(t *testing.T) {
	node := row(node03, "Positive_Controls", "PC_01", "QMSv5_01", "QMSv5_02")
	node.ManualOverride = true
	m := mapping(t,
		row("ALL", "Positive_Controls", "PC_01", "QMSv5_02", "QMSv5_01"),
		node,
	)

	res, err := newReconciler().Reconcile(comparisons(
		rec(node03, "Positive_Controls", "PC_01", "COMPARE_A_vs_QMSv5_01", "PASS"),
	), m)
	require.NoError(t, err)
	assert.Equal(t, 0, res.Wildcard)
	assert.Equal(t, "QMSv5_01", res.Table.Rows[0]["expected_match_candidate"])
	assert.Equal(t, "1", res.Table.Rows[0]["blinding_map_manual_override_flag"])
}

func TestExplicitCandidateLabelWins(t *testing.T) {
	m := mapping(t, row("ALL", "Baseline", "ARM_01", "QMSv5_02", "QMSv5_01"))
	in := comparisons(model.Record{
		"node_id": node02, "group": "Baseline", "arm": "ARM_01",
		"compare_folder": "COMPARE_A_vs_QMSv5_01", "candidate_label": "QMSv5_02", "pass_fail": "PASS",
	})
	in.Columns = append(in.Columns, "candidate_label")

	res, err := newReconciler().Reconcile(in, m)
	require.NoError(t, err)
	assert.Equal(t, "1", res.Table.Rows[0]["is_expected_match_candidate"])
}

func TestUnknownFolderSuffixIsNeitherCandidate(t *testing.T) {
	m := mapping(t, row("ALL", "Baseline", "ARM_01", "QMSv5_02", "QMSv5_01"))

	res, err := newReconciler().Reconcile(comparisons(
		rec(node02, "Baseline", "ARM_01", "COMPARE_A_vs_QMSv5_09", "FAIL"),
	), m)
	require.NoError(t, err)
	out := res.Table.Rows[0]
	assert.Equal(t, "0", out["is_expected_match_candidate"])
	assert.Equal(t, "0", out["is_expected_mismatch_candidate"])
}

func TestReconcileFailsClosed(t *testing.T) {
	pendingRow := model.MappingRow{NodeScope: node03, Group: "Positive_Controls", Arm: "PC_02", Status: model.StatusPending}
	m := mapping(t,
		row("ALL", "Baseline", "ARM_01", "QMSv5_02", "QMSv5_01"),
		pendingRow,
		row("ALL", "Positive_Controls", "PC_02", "QMSv5_01", "QMSv5_02"),
	)
	in := comparisons(
		rec(node02, "Baseline", "ARM_01", "COMPARE_A_vs_QMSv5_01", "FAIL"),
		rec(node03, "Positive_Controls", "PC_02", "COMPARE_A_vs_QMSv5_01", "PASS"),
		rec(node03, "Positive_Controls", "PC_02", "COMPARE_A_vs_QMSv5_02", "FAIL"),
		rec(node02, "Baseline", "ARM_99", "COMPARE_A_vs_QMSv5_01", "FAIL"),
	)

	res, err := newReconciler().Reconcile(in, m)
	assert.Nil(t, res)
	require.ErrorIs(t, err, audit.ErrUnmappedComparisonKey)

	var unmapped *UnmappedError
	require.True(t, errors.As(err, &unmapped))
	assert.Equal(t, []model.Key{
		{NodeScope: node02, Group: "Baseline", Arm: "ARM_99"},
		{NodeScope: node03, Group: "Positive_Controls", Arm: "PC_02"},
	}, unmapped.Keys)
	assert.Contains(t, err.Error(), "2 keys")
}

func TestReconcileRejectsBadInput(t *testing.T) {
	m := mapping(t, row("ALL", "Baseline", "ARM_01", "QMSv5_02", "QMSv5_01"))

	_, err := newReconciler().Reconcile(comparisons(), m)
	assert.ErrorIs(t, err, audit.ErrMalformedDocument)

	in := comparisons(rec(node02, "Baseline", "ARM_01", "COMPARE_A_vs_QMSv5_01", "FAIL"))
	in.Columns = append(in.Columns, "classification_correct")
	_, err = newReconciler().Reconcile(in, m)
	assert.ErrorIs(t, err, audit.ErrMalformedDocument)
	assert.Contains(t, err.Error(), "classification_correct")
}
