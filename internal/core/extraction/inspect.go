package extraction

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/agenthands/hvaudit/internal/core/audit"
	"github.com/agenthands/hvaudit/internal/core/consistency"
	"github.com/agenthands/hvaudit/internal/core/model"
	"github.com/agenthands/hvaudit/internal/digest"
)

// inspection is the outcome for one metadata file. It is owned by a single
// goroutine until Extract merges it.
type inspection struct {
	path       string
	c          *audit.Collector
	comparison model.Record
	artifacts  []model.Record
}

// fail records an ERROR and reports whether inspection of this file must stop.
func (in *inspection) fail(code, format string, args ...any) bool {
	return in.c.Error(code, in.path, format, args...) != nil
}

func (in *inspection) report(ps []consistency.Problem) bool {
	return consistency.Report(in.c, in.path, ps) != nil
}

// cell renders a JSON value the way the datasets carry it: null and missing
// are empty, booleans are True/False, numbers keep their source text.
func cell(v gjson.Result) string {
	switch v.Type {
	case gjson.Null:
		return ""
	case gjson.True:
		return "True"
	case gjson.False:
		return "False"
	case gjson.String:
		return v.Str
	}
	return v.Raw
}

func flag(b bool) string {
	if b {
		return "1"
	}
	return "0"
}

func (e *Extractor) inspect(root, rel string, policy audit.Policy) *inspection {
	hvPath := filepath.Join(root, filepath.FromSlash(rel))
	in := &inspection{path: filepath.ToSlash(hvPath), c: audit.NewCollector(policy)}
	cfg := e.Config

	data, err := os.ReadFile(hvPath)
	if err != nil || !gjson.ValidBytes(data) {
		in.fail("JSON_PARSE_FAIL", "Failed to parse HV metadata JSON: %s", parseReason(err))
		return in
	}
	doc := gjson.ParseBytes(data)

	schema := doc.Get("schema").String()
	if schema != e.Schema {
		if in.fail("SCHEMA_UNEXPECTED", "Unexpected schema '%s'", schema) {
			return in
		}
	}

	tsGenerated := doc.Get("ts_generated_utc").String()
	compareDir := doc.Get("compare_dir").String()

	nodeID := deriveNodeID(rel, cfg.NodeIDs)
	if nodeID == "" {
		if in.fail("NODE_ID_UNRESOLVED", "Could not derive node_id from path. Expected one of %v in path.", cfg.NodeIDs) {
			return in
		}
	}

	pf := derivePathFields(rel, cfg.ComparePrefix)
	winGroup, winArm, winFolder := parseWindowsCompareDir(compareDir)
	if differs(pf.Group, winGroup) || differs(pf.Arm, winArm) || differs(pf.CompareFolder, winFolder) {
		if in.fail("PATH_MISMATCH", "fs=(%s,%s,%s) vs win=(%s,%s,%s)",
			pf.Group, pf.Arm, pf.CompareFolder, winGroup, winArm, winFolder) {
			return in
		}
	}

	start := doc.Get("hv_start_utc").String()
	end := doc.Get("hv_end_utc").String()
	duration := doc.Get("hv_duration_seconds")
	_, okS := consistency.ParseUTC(start)
	_, okE := consistency.ParseUTC(end)
	if okS && okE && duration.Type == gjson.Number {
		if _, ps := consistency.Duration(start, end, duration.Float(), cfg.DurationTolerance); in.report(ps) {
			return in
		}
	}

	hvFinalSHA := doc.Get("hv_final_sha256").String()
	nameRaw := doc.Get("hv_validator_name").String()
	nameNorm := normalizeName(nameRaw)
	architect := false
	for _, n := range cfg.ArchitectNames {
		if nameNorm == n {
			architect = true
		}
	}

	base := model.Record{
		"hv_metadata_relpath": pf.RelPath,
		"hv_metadata_path":    in.path,
		"node_id":             nodeID,
		"group":               pf.Group,
		"arm":                 pf.Arm,
		"compare_folder":      pf.CompareFolder,
		"candidate_label":     pf.Candidate,
		"compare_dir":         compareDir,
	}
	artifact := func(role, p, sha, r160, reqopt string) model.Record {
		a := base.Clone()
		a["artifact_role"] = role
		a["artifact_path"] = p
		a["artifact_sha256"] = sha
		a["artifact_ripemd160"] = r160
		a["required_optional"] = reqopt
		return a
	}

	roleSHA := map[string]string{}
	roleR160 := map[string]string{}
	for _, list := range []struct{ key, label string }{{"required", "required"}, {"optional", "optional"}} {
		for _, it := range doc.Get("compare_artifacts." + list.key).Array() {
			p := it.Get("path").String()
			sha := it.Get("sha256").String()
			r160 := it.Get("ripemd160").String()
			role := artifactRole(p, cfg.SummaryFile, cfg.ESFFile, cfg.SwapFile)
			in.artifacts = append(in.artifacts, artifact(role, p, sha, r160, list.label))
			for _, r := range requiredRoles {
				if role == r {
					roleSHA[role], roleR160[role] = sha, r160
				}
			}
		}
	}
	for _, r := range requiredRoles {
		if roleSHA[r] == "" {
			if in.fail("MISSING_REQUIRED_ARTIFACT", "Missing required artifact role in HV metadata: %s", r) {
				return in
			}
		}
	}
	missingEmpty := strings.ToLower(roleSHA[RoleMissingGlobal]) == digest.EmptySHA256
	extrasEmpty := strings.ToLower(roleSHA[RoleExtrasGlobal]) == digest.EmptySHA256

	// Adjacent COMPARE_SUMMARY.json is the authoritative verdict.
	hvDir := filepath.Dir(hvPath)
	summaryPath := filepath.Join(hvDir, cfg.SummaryFile)
	if !fileExists(summaryPath) {
		in.fail("SUMMARY_MISSING_ON_DISK", "Missing on-disk %s adjacent to HV_METADATA", cfg.SummaryFile)
		return in
	}
	summaryData, err := os.ReadFile(summaryPath)
	if err != nil {
		in.fail("SUMMARY_PARSE_FAIL", "Failed to parse %s: %v", cfg.SummaryFile, err)
		return in
	}
	summary, err := consistency.ParseSummary(summaryData, e.tokens())
	if err != nil {
		in.fail("SUMMARY_PARSE_FAIL", "Failed to parse %s: %v", cfg.SummaryFile, err)
		return in
	}
	if in.report(summary.Problems()) {
		return in
	}
	verdict := summary.Verdict
	passFail := e.FailToken
	if verdict == consistency.Pass {
		passFail = e.PassToken
	}
	if in.report(consistency.EmptyHash(verdict, missingEmpty, extrasEmpty)) {
		return in
	}

	deletion := summary.MissingCount > 0
	addition := summary.ExtrasCount > 0

	// ESF equivalence lives in the arm folder, one level above the compare folder.
	armDir := filepath.Dir(hvDir)
	esfPath, esfRule := e.findESF(armDir, verdict)
	if esfPath == "" {
		in.fail("ESF_NOT_FOUND", "ESF not found with rule '%s' under arm_dir=%s", esfRule, filepath.ToSlash(armDir))
		return in
	}
	esfData, err := os.ReadFile(esfPath)
	if err != nil || !gjson.ValidBytes(esfData) {
		in.fail("ESF_PARSE_FAIL", "Failed to parse ESF equivalence JSON: %s", parseReason(err))
		return in
	}
	esf := gjson.ParseBytes(esfData)
	esfResult := esf.Get("result").String()
	esfMatch, ps := consistency.ESF(verdict, esfResult, cfg.ESFEquivalent, cfg.ESFNotEquivalent)
	if in.report(ps) {
		return in
	}

	esfSHA := digest.SHA256Bytes(esfData)
	esfR160, err := digest.RIPEMD160OfSHA256(esfSHA)
	if err != nil {
		in.fail("RIPEMD160_UNAVAILABLE", "cannot compute ESF r160: %v", err)
		return in
	}

	hvRecordID := digest.SHA256Bytes([]byte(compareDir + "|" + tsGenerated + "|" + hvFinalSHA))
	for _, a := range in.artifacts {
		a["hv_record_id"] = hvRecordID
	}
	base["hv_record_id"] = hvRecordID
	in.artifacts = append(in.artifacts, artifact(RoleESF, filepath.ToSlash(esfPath), esfSHA, esfR160, "derived"))

	swapPresent := false
	swapPath := filepath.Join(hvDir, cfg.SwapFile)
	if fileExists(swapPath) {
		swapPresent = true
		swapSHA, err := digest.SHA256File(swapPath)
		if err != nil {
			in.fail("SWAP_CANDIDATES_UNREADABLE", "%v", err)
			return in
		}
		swapR160, err := digest.RIPEMD160OfSHA256(swapSHA)
		if err != nil {
			in.fail("RIPEMD160_UNAVAILABLE", "cannot compute SWAP_CANDIDATES r160: %v", err)
			return in
		}
		in.artifacts = append(in.artifacts, artifact(RoleSwapCandidates, filepath.ToSlash(swapPath), swapSHA, swapR160, "optional_detected"))
	}

	esfMatchCell := ""
	if esfMatch >= 0 {
		esfMatchCell = strconv.Itoa(esfMatch)
	}

	rec := base.Clone()
	rec["schema"] = schema
	rec["ts_generated_utc"] = tsGenerated
	rec["win_group"] = winGroup
	rec["win_arm"] = winArm
	rec["win_compare_folder"] = winFolder
	rec["path_mismatch_flag"] = "0"
	rec["hv_validator_name_raw"] = nameRaw
	rec["hv_validator_name_norm"] = nameNorm
	rec["is_architect_operator"] = flag(architect)
	rec["is_blinded_primary_operator"] = flag(!architect)
	rec["hv_start_utc"] = start
	rec["hv_end_utc"] = end
	rec["hv_duration_seconds"] = cell(duration)
	rec["hv_start_source"] = doc.Get("hv_start_source").String()
	rec["hv_start_artifact"] = doc.Get("hv_start_artifact").String()
	rec["hv_start_artifact_mtime_utc"] = doc.Get("hv_start_artifact_mtime_utc").String()
	rec["hv_final_artifact"] = doc.Get("hv_final_artifact").String()
	rec["hv_final_type"] = doc.Get("hv_final_type").String()
	rec["hv_final_sha256"] = hvFinalSHA
	rec["hv_final_ripemd160"] = doc.Get("hv_final_ripemd160").String()
	rec["derived_pdf"] = cell(doc.Get("derived_pdf"))
	rec["derived_pdf_sha256"] = cell(doc.Get("derived_pdf_sha256"))
	rec["derived_pdf_ripemd160"] = cell(doc.Get("derived_pdf_ripemd160"))
	rec["compare_summary_sha256"] = roleSHA[RoleCompareSummary]
	rec["compare_summary_ripemd160"] = roleR160[RoleCompareSummary]
	rec["missing_global_sha256"] = roleSHA[RoleMissingGlobal]
	rec["missing_global_ripemd160"] = roleR160[RoleMissingGlobal]
	rec["extras_global_sha256"] = roleSHA[RoleExtrasGlobal]
	rec["extras_global_ripemd160"] = roleR160[RoleExtrasGlobal]
	rec["pass_fail"] = passFail
	rec["summary_found"] = "1"
	rec["summary_path"] = filepath.ToSlash(summaryPath)
	rec["summary_ts_utc"] = summary.Root.Get("ts_utc").String()
	rec["summary_result"] = summary.Result
	rec["source_total_rows_read"] = cell(summary.Root.Get("counts.source_total_rows_read"))
	rec["windows_total_rows_read"] = cell(summary.Root.Get("counts.windows_total_rows_read"))
	rec["source_valid_rows"] = cell(summary.Root.Get("counts.source_valid_rows"))
	rec["windows_valid_rows"] = cell(summary.Root.Get("counts.windows_valid_rows"))
	rec["missing_count_summary"] = strconv.FormatInt(summary.MissingCount, 10)
	rec["extras_count_summary"] = strconv.FormatInt(summary.ExtrasCount, 10)
	rec["distinct_pairs_union"] = cell(summary.Root.Get("counts.distinct_pairs_union"))
	rec["fingerprint_match"] = cell(summary.Root.Get("fingerprints.match"))
	rec["source_sha256_fingerprint"] = summary.Root.Get("fingerprints.source.sha256_fingerprint").String()
	rec["source_ripemd160_fingerprint"] = summary.Root.Get("fingerprints.source.ripemd160_fingerprint").String()
	rec["windows_sha256_fingerprint"] = summary.Root.Get("fingerprints.windows.sha256_fingerprint").String()
	rec["windows_ripemd160_fingerprint"] = summary.Root.Get("fingerprints.windows.ripemd160_fingerprint").String()
	rec["missing_empty"] = flag(missingEmpty)
	rec["extras_empty"] = flag(extrasEmpty)
	rec["tamper_deletion_detected"] = flag(deletion)
	rec["tamper_addition_detected"] = flag(addition)
	rec["tamper_substitution_possible"] = flag(deletion && addition)
	rec["tamper_k"] = strconv.FormatInt(summary.MissingCount+summary.ExtrasCount, 10)
	rec["esf_equiv_found"] = "1"
	rec["esf_equiv_path"] = filepath.ToSlash(esfPath)
	rec["esf_equiv_result"] = esfResult
	rec["esf_match"] = esfMatchCell
	rec["baseline_esf_rows"] = cell(esf.Get("baseline_esf_rows"))
	rec["audit_esf_rows"] = cell(esf.Get("audit_esf_rows"))
	rec["baseline_distinct_esf"] = cell(esf.Get("baseline_distinct_esf"))
	rec["audit_distinct_esf"] = cell(esf.Get("audit_distinct_esf"))
	rec["baseline_only_count"] = cell(esf.Get("baseline_only_count"))
	rec["audit_only_count"] = cell(esf.Get("audit_only_count"))
	rec["baseline_esf_packet"] = esf.Get("baseline_esf_packet").String()
	rec["audit_esf_packet"] = esf.Get("audit_esf_packet").String()
	rec["out_diff_ndjson"] = esf.Get("out_diff_ndjson").String()
	rec["esf_policy_qms_safe"] = cell(esf.Get("policy.qms_safe"))
	rec["esf_policy_container_identity"] = esf.Get("policy.container_identity").String()
	rec["esf_mapping_rule"] = esfRule
	rec["swap_candidates_present"] = flag(swapPresent)
	rec["script_name"] = doc.Get("script_name").String()
	rec["script_version"] = doc.Get("script_version").String()
	rec["notes"] = doc.Get("notes").String()
	rec["extractor_script"] = cfg.ExtractorName
	rec["extractor_version"] = cfg.ExtractorVersion
	in.comparison = rec
	return in
}

// findESF applies the placement rule: a PASS keeps its ESF file in the arm's
// match folder, a FAIL at the arm root.
func (e *Extractor) findESF(armDir string, v consistency.Verdict) (string, string) {
	switch v {
	case consistency.Pass:
		for _, sub := range []string{"match", "Match", "MATCH"} {
			p := filepath.Join(armDir, sub, e.Config.ESFFile)
			if fileExists(p) {
				return p, "PASS->arm/match"
			}
		}
		return "", "PASS->arm/match"
	case consistency.Fail:
		p := filepath.Join(armDir, e.Config.ESFFile)
		if fileExists(p) {
			return p, "FAIL->arm/root"
		}
		return "", "FAIL->arm/root"
	}
	return "", "NA"
}

func differs(fs, win string) bool {
	return fs != "" && win != "" && fs != win
}

func parseReason(err error) string {
	if err != nil {
		return err.Error()
	}
	return "invalid JSON"
}
