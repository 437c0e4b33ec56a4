package verify

import (
	"os"

	"github.com/agenthands/hvaudit/internal/core/audit"
	"github.com/agenthands/hvaudit/internal/core/model"
	"github.com/agenthands/hvaudit/internal/core/reconcile"
	"github.com/agenthands/hvaudit/internal/dataset"
)

// baseColumns are the comparison columns the blinding checks read.
var baseColumns = []string{"hv_record_id", "node_id", "group", "arm", "compare_folder", "candidate_label", "pass_fail"}

// WithBlinding checks an enriched comparisons dataset. When sourcePath is
// set, every column of the source dataset must come through byte-identical.
func (v *Verifier) WithBlinding(csvPath, sourcePath string, policy audit.Policy) *Report {
	r := newReport(v.Config.Extraction.Prefix+"_with_blinding_verify", BlindingEvent, policy)

	csvPath = slash(csvPath)
	where := map[string]any{"csv": csvPath}
	if sourcePath != "" {
		sourcePath = slash(sourcePath)
		where["source_csv"] = sourcePath
	}

	run := &blindingRun{}
	v.checkBlinding(r, csvPath, sourcePath, run)

	summary := map[string]any{
		"rows":  len(run.rows),
		"notes": "fail-closed verification of the merged WITH_BLINDING dataset",
	}
	if s := run.shape; s != nil {
		summary["unique_hv_record_id"] = len(s.ids)
		summary["nodes"] = s.nodes
	}
	v.finish(r, csvPath, "WITH_BLINDING analysis readiness verification passed", where, summary)
	return r
}

type blindingRun struct {
	rows  []model.Record
	shape *shape
}

func (v *Verifier) checkBlinding(r *Report, csvPath, sourcePath string, run *blindingRun) {
	cfg := v.Config
	if _, err := os.Stat(csvPath); err != nil {
		r.fail("MISSING_INPUT", csvPath, "CSV not found")
		return
	}
	tbl, err := dataset.ReadCSV(csvPath)
	if err != nil {
		r.fail("CSV_PARSE_FAIL", csvPath, "Failed reading CSV: %v", err)
		return
	}
	run.rows = tbl.Rows

	for _, c := range append(append([]string(nil), baseColumns...), reconcile.Columns...) {
		if !tbl.HasColumn(c) {
			if r.fail("MISSING_COLUMN", csvPath, "Missing required column: %s", c) {
				return
			}
		}
	}

	slots := []string{cfg.Candidates.SlotOne, cfg.Candidates.SlotTwo}
	s, stop := checkShape(r, tbl.Rows, csvPath, cfg.Expect, "candidate_label", slots)
	run.shape = s
	if stop {
		return
	}

	isSlot := func(x string) bool { return x == slots[0] || x == slots[1] }
	for _, rec := range tbl.Rows {
		id := rec["hv_record_id"]
		checks := []struct {
			bad    bool
			code   string
			format string
			arg    string
		}{
			{!isSlot(field(rec, "candidate_label")), "BAD_CANDIDATE_LABEL", "Unexpected candidate_label=%s", rec["candidate_label"]},
			{field(rec, "pass_fail") != cfg.Candidates.PassToken && field(rec, "pass_fail") != cfg.Candidates.FailToken,
				"BAD_PASSFAIL", "Unexpected pass_fail=%s", rec["pass_fail"]},
			{!isSlot(field(rec, "expected_match_candidate")), "BAD_EXPECTED_MATCH", "Bad expected_match_candidate=%s", rec["expected_match_candidate"]},
			{!isSlot(field(rec, "expected_mismatch_candidate")), "BAD_EXPECTED_MISMATCH", "Bad expected_mismatch_candidate=%s", rec["expected_mismatch_candidate"]},
			{field(rec, "expected_match_candidate") == field(rec, "expected_mismatch_candidate"),
				"EXPECTED_MATCH_EQUALS_MISMATCH", "expected_match_candidate == expected_mismatch_candidate for hv_record_id=%s", id},
			{field(rec, "blinding_map_source_sha256") == "", "MISSING_MAP_SHA", "blinding_map_source_sha256 empty for hv_record_id=%s", id},
			{!binary(field(rec, "classification_correct")), "BAD_CLASSIFICATION_CORRECT", "classification_correct must be 0/1, got %s", rec["classification_correct"]},
		}
		for _, c := range checks {
			if c.bad && r.fail(c.code, csvPath, c.format, c.arg) {
				return
			}
		}
	}

	for _, g := range cfg.Expect.OverrideGroups {
		for _, rec := range tbl.Rows {
			if field(rec, "node_id") != g.Node || field(rec, "group") != g.Group {
				continue
			}
			if field(rec, "blinding_map_manual_override_flag") != "1" {
				if r.fail("OVERRIDE_FLAG_MISSING", csvPath, "%s must have manual override flag = 1 (hv_record_id=%s)", tuple(g.Node, g.Group), rec["hv_record_id"]) {
					return
				}
			}
		}
	}

	if sourcePath != "" {
		checkProvenance(r, tbl, sourcePath)
	}
}

// checkProvenance requires the enriched table to carry the source table's
// columns first, in order, with every value unchanged.
func checkProvenance(r *Report, enriched *model.Table, sourcePath string) {
	src, err := dataset.ReadCSV(sourcePath)
	if err != nil {
		r.fail("SOURCE_PARSE_FAIL", sourcePath, "Failed reading source CSV: %v", err)
		return
	}
	if len(src.Columns) > len(enriched.Columns) {
		r.fail("SOURCE_COLUMNS_CHANGED", enriched.Source, "enriched dataset has %d columns, source has %d", len(enriched.Columns), len(src.Columns))
		return
	}
	for i, c := range src.Columns {
		if enriched.Columns[i] != c {
			if r.fail("SOURCE_COLUMNS_CHANGED", enriched.Source, "column %d is %s, source has %s", i, enriched.Columns[i], c) {
				return
			}
		}
	}
	if len(src.Rows) != len(enriched.Rows) {
		r.fail("SOURCE_ROWCOUNT_MISMATCH", enriched.Source, "enriched dataset has %d rows, source has %d", len(enriched.Rows), len(src.Rows))
		return
	}
	for i, row := range src.Rows {
		for _, c := range src.Columns {
			if got := enriched.Rows[i][c]; got != row[c] {
				if r.fail("PROVENANCE_VALUE_CHANGED", enriched.Source, "row %d column %s: source=%q enriched=%q", i+1, c, row[c], got) {
					return
				}
			}
		}
	}
}

func binary(s string) bool { return s == "0" || s == "1" }
