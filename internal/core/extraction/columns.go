package extraction

// ComparisonColumns is the column order of <prefix>_comparisons.csv. New
// columns are appended, never inserted.
var ComparisonColumns = []string{
	"hv_record_id", "schema", "ts_generated_utc", "node_id", "group", "arm", "compare_folder", "candidate_label", "compare_dir",
	"win_group", "win_arm", "win_compare_folder", "path_mismatch_flag",
	"hv_validator_name_raw", "hv_validator_name_norm", "is_architect_operator", "is_blinded_primary_operator",
	"hv_start_utc", "hv_end_utc", "hv_duration_seconds", "hv_start_source", "hv_start_artifact", "hv_start_artifact_mtime_utc",
	"hv_final_artifact", "hv_final_type", "hv_final_sha256", "hv_final_ripemd160", "derived_pdf", "derived_pdf_sha256", "derived_pdf_ripemd160",
	"compare_summary_sha256", "compare_summary_ripemd160", "missing_global_sha256", "missing_global_ripemd160", "extras_global_sha256", "extras_global_ripemd160",
	"pass_fail", "summary_found", "summary_path", "summary_ts_utc", "summary_result",
	"source_total_rows_read", "windows_total_rows_read", "source_valid_rows", "windows_valid_rows",
	"missing_count_summary", "extras_count_summary", "distinct_pairs_union", "fingerprint_match",
	"source_sha256_fingerprint", "source_ripemd160_fingerprint", "windows_sha256_fingerprint", "windows_ripemd160_fingerprint",
	"missing_empty", "extras_empty",
	"tamper_deletion_detected", "tamper_addition_detected", "tamper_substitution_possible", "tamper_k",
	"esf_equiv_found", "esf_equiv_path", "esf_equiv_result", "esf_match",
	"baseline_esf_rows", "audit_esf_rows", "baseline_distinct_esf", "audit_distinct_esf",
	"baseline_only_count", "audit_only_count", "baseline_esf_packet", "audit_esf_packet", "out_diff_ndjson",
	"esf_policy_qms_safe", "esf_policy_container_identity", "esf_mapping_rule",
	"swap_candidates_present",
	"script_name", "script_version", "notes", "hv_metadata_relpath", "hv_metadata_path", "extractor_script", "extractor_version",
}

// ArtifactColumns is the column order of <prefix>_artifacts.csv.
var ArtifactColumns = []string{
	"hv_record_id", "hv_metadata_relpath", "hv_metadata_path", "node_id", "group", "arm", "compare_folder", "candidate_label", "compare_dir",
	"artifact_role", "artifact_path", "artifact_sha256", "artifact_ripemd160", "required_optional",
}

var (
	comparisonSortKeys = []string{"node_id", "group", "arm", "compare_folder", "ts_generated_utc", "hv_validator_name_norm", "hv_metadata_relpath"}
	artifactSortKeys   = []string{"node_id", "group", "arm", "compare_folder", "hv_record_id", "artifact_role", "artifact_path"}
)

// Artifact roles.
const (
	RoleCompareSummary = "COMPARE_SUMMARY"
	RoleMissingGlobal  = "MISSING_GLOBAL"
	RoleExtrasGlobal   = "EXTRAS_GLOBAL"
	RoleESF            = "ESF_SET_EQUIVALENCE"
	RoleSwapCandidates = "SWAP_CANDIDATES"
)

var requiredRoles = []string{RoleCompareSummary, RoleMissingGlobal, RoleExtrasGlobal}
