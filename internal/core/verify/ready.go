package verify

import (
	"os"
	"path/filepath"
	"strconv"

	"github.com/agenthands/hvaudit/internal/core/audit"
	"github.com/agenthands/hvaudit/internal/core/consistency"
	"github.com/agenthands/hvaudit/internal/core/model"
	"github.com/agenthands/hvaudit/internal/dataset"
)

// AnalysisReady checks that an extraction output is complete, parseable and
// still agrees with the COMPARE_SUMMARY.json files on disk. It does not check
// digest parity: shared compare artifacts may have been rewritten by a later
// operator run.
func (v *Verifier) AnalysisReady(root, extractOut string, policy audit.Policy) *Report {
	cfg := v.Config
	prefix := cfg.Extraction.Prefix
	r := newReport(prefix+"_analysis_ready", ReadyEvent, policy)

	root = slash(root)
	extractOut = slash(extractOut)
	run := &readyRun{}
	v.checkReady(r, extractOut, run)

	summary := map[string]any{
		"comparisons_rows": len(run.comps),
		"artifacts_rows":   len(run.arts),
		"notes":            "completeness, parseability and summary consistency; tolerates overwritten shared compare artifacts",
	}
	if s := run.shape; s != nil {
		summary["unique_hv_record_id"] = len(s.ids)
		summary["nodes"] = s.nodes
		summary["node_counts"] = s.perNode
	}
	v.finish(r, root, "Analysis readiness verification passed",
		map[string]any{"root": root, "extract_out": extractOut}, summary)
	return r
}

// readyRun is what a readiness scan got to read before it finished or stopped.
type readyRun struct {
	comps []model.Record
	arts  []model.Record
	shape *shape
}

func (v *Verifier) checkReady(r *Report, dir string, run *readyRun) {
	cfg := v.Config
	prefix := cfg.Extraction.Prefix
	compPath := filepath.ToSlash(filepath.Join(dir, prefix+"_comparisons.csv"))
	artPath := filepath.ToSlash(filepath.Join(dir, prefix+"_artifacts.csv"))
	logPath := filepath.ToSlash(filepath.Join(dir, prefix+"_extract_log.ndjson"))

	for _, p := range []string{compPath, artPath, logPath} {
		if _, err := os.Stat(p); err != nil {
			if r.fail("MISSING_INPUT", p, "Missing required file: %s", filepath.Base(p)) {
				return
			}
		}
	}

	header, err := dataset.ReadNDJSONHeader(logPath)
	switch {
	case err != nil:
		if r.fail("EXTRACT_LOG_PARSE_FAIL", logPath, "Failed to parse extractor log header: %v", err) {
			return
		}
	default:
		if n := header.Get("errors").Int(); n != 0 {
			if r.fail("EXTRACTOR_ERRORS", logPath, "Extractor errors != 0 (%d)", n) {
				return
			}
		}
		if n := header.Get("warnings").Int(); n != 0 {
			if r.fail("EXTRACTOR_WARNINGS", logPath, "Extractor warnings != 0 (%d)", n) {
				return
			}
		}
	}

	compTable, err := dataset.ReadCSV(compPath)
	if err != nil {
		if r.fail("CSV_PARSE_FAIL", compPath, "Failed reading CSV: %v", err) {
			return
		}
	} else {
		run.comps = compTable.Rows
	}
	artTable, err := dataset.ReadCSV(artPath)
	if err != nil {
		if r.fail("CSV_PARSE_FAIL", artPath, "Failed reading CSV: %v", err) {
			return
		}
	} else {
		run.arts = artTable.Rows
	}

	if len(run.comps) == 0 {
		if r.fail("NO_COMPARISONS", compPath, "%s has zero rows", filepath.Base(compPath)) {
			return
		}
	}

	s, stop := checkShape(r, run.comps, compPath, cfg.Expect, "compare_folder", cfg.Expect.CompareFolders)
	run.shape = s
	if stop {
		return
	}

	for _, rec := range run.comps {
		if v.checkRecord(r, rec, compPath) {
			return
		}
	}

	if len(run.arts) == 0 {
		if r.fail("NO_ARTIFACT_ROWS", artPath, "%s has zero rows", filepath.Base(artPath)) {
			return
		}
	}
	for _, a := range run.arts {
		id := field(a, "hv_record_id")
		if id == "" {
			if r.fail("ART_ROW_MISSING_HV_ID", artPath, "Artifact row missing hv_record_id") {
				return
			}
			continue
		}
		if !s.ids[id] {
			if r.fail("ART_ROW_UNKNOWN_HV_ID", artPath, "Artifact hv_record_id not found in comparisons: %s", id) {
				return
			}
		}
	}
}

// checkRecord re-derives one comparison row's facts from disk.
func (v *Verifier) checkRecord(r *Report, rec model.Record, compPath string) bool {
	cfg := v.Config
	hvPath := field(rec, "hv_metadata_path")
	if hvPath == "" {
		return r.fail("MISSING_HV_METADATA_PATH", compPath, "Missing hv_metadata_path for hv_record_id=%s", rec["hv_record_id"])
	}
	if _, err := os.Stat(hvPath); err != nil {
		if r.fail("HV_METADATA_MISSING_ON_DISK", hvPath, "hv_metadata_path does not exist on disk") {
			return true
		}
	}

	raw := field(rec, "hv_duration_seconds")
	declared, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		if r.fail("DURATION_NOT_NUMERIC", hvPath, "hv_duration_seconds not numeric: '%s'", raw) {
			return true
		}
	} else {
		_, ps := consistency.Duration(field(rec, "hv_start_utc"), field(rec, "hv_end_utc"), declared, cfg.Extraction.DurationTolerance)
		if consistency.Report(r.collector, hvPath, ps) != nil {
			return true
		}
	}

	pf := field(rec, "pass_fail")
	if pf != cfg.Candidates.PassToken && pf != cfg.Candidates.FailToken {
		if r.fail("PASSFAIL_BAD", hvPath, "pass_fail must be %s/%s, got '%s'", cfg.Candidates.PassToken, cfg.Candidates.FailToken, pf) {
			return true
		}
	}

	summaryPath := filepath.ToSlash(filepath.Join(filepath.Dir(hvPath), cfg.Extraction.SummaryFile))
	data, err := os.ReadFile(summaryPath)
	if err != nil {
		return r.fail("SUMMARY_MISSING_ON_DISK", summaryPath, "%s missing adjacent to HV_METADATA", cfg.Extraction.SummaryFile)
	}
	summary, err := consistency.ParseSummary(data, consistency.Tokens{Pass: cfg.Extraction.SummaryPass, Fail: cfg.Extraction.SummaryFail})
	if err != nil {
		return r.fail("SUMMARY_PARSE_FAIL", summaryPath, "Failed to parse %s: %v", cfg.Extraction.SummaryFile, err)
	}

	onDisk := string(consistency.Unknown)
	switch summary.Verdict {
	case consistency.Pass:
		onDisk = cfg.Candidates.PassToken
	case consistency.Fail:
		onDisk = cfg.Candidates.FailToken
	}
	if onDisk != pf {
		if r.fail("PASSFAIL_DISAGREE_WITH_SUMMARY", summaryPath, "CSV pass_fail=%s but summary=%s", pf, onDisk) {
			return true
		}
	}
	return consistency.Report(r.collector, summaryPath, summary.Problems()) != nil
}

func slash(p string) string {
	if abs, err := filepath.Abs(p); err == nil {
		p = abs
	}
	return filepath.ToSlash(p)
}
