package verify

import (
	"fmt"
	"sort"
	"strings"

	"github.com/agenthands/hvaudit/internal/config"
	"github.com/agenthands/hvaudit/internal/core/model"
)

// shape is what the readiness invariants learned about a comparisons table.
type shape struct {
	ids     map[string]bool
	nodes   []string
	perNode map[string]int
}

func field(rec model.Record, name string) string {
	return strings.TrimSpace(rec[name])
}

// checkShape enforces the study design on a comparisons table: unique record
// ids, the expected row and node counts, and complete operator and candidate
// coverage. pairField names the column that must carry every value of pair
// within each (node, group, arm).
func checkShape(r *Report, rows []model.Record, path string, exp config.ExpectConfig, pairField string, pair []string) (*shape, bool) {
	s := &shape{ids: map[string]bool{}, perNode: map[string]int{}}

	missingID, duplicate := false, false
	for _, rec := range rows {
		id := field(rec, "hv_record_id")
		if id == "" {
			missingID = true
			continue
		}
		if s.ids[id] {
			duplicate = true
		}
		s.ids[id] = true
	}
	if missingID && r.fail("MISSING_HV_RECORD_ID", path, "At least one comparisons row missing hv_record_id") {
		return s, true
	}
	if duplicate && r.fail("DUPLICATE_HV_RECORD_ID", path, "Duplicate hv_record_id detected in comparisons") {
		return s, true
	}

	if exp.Rows > 0 && len(rows) != exp.Rows {
		if r.fail("ROWCOUNT_UNEXPECTED", path, "Expected %d comparisons rows, got %d", exp.Rows, len(rows)) {
			return s, true
		}
	}

	for _, rec := range rows {
		s.perNode[field(rec, "node_id")]++
	}
	for n := range s.perNode {
		s.nodes = append(s.nodes, n)
	}
	sort.Strings(s.nodes)
	want := append([]string(nil), exp.Nodes...)
	sort.Strings(want)
	if len(want) > 0 && strings.Join(want, "\x00") != strings.Join(s.nodes, "\x00") {
		if r.fail("NODES_UNEXPECTED", path, "Expected nodes %v, got %v", want, s.nodes) {
			return s, true
		}
	}
	if exp.RowsPerNode > 0 {
		for _, n := range want {
			if s.perNode[n] != exp.RowsPerNode {
				if r.fail("NODE_ROWCOUNT_UNEXPECTED", path, "Expected %d rows for %s, got %d", exp.RowsPerNode, n, s.perNode[n]) {
					return s, true
				}
			}
		}
	}

	operators := map[string]int{}
	pairs := map[string]map[string]bool{}
	for _, rec := range rows {
		node, group, arm, folder := field(rec, "node_id"), field(rec, "group"), field(rec, "arm"), field(rec, "compare_folder")
		if group == "" || arm == "" || folder == "" {
			if r.fail("MISSING_PATH_FIELDS", path, "Missing group/arm/compare_folder for hv_record_id=%s", rec["hv_record_id"]) {
				return s, true
			}
		}
		operators[tuple(node, group, arm, folder)]++
		armKey := tuple(node, group, arm)
		if pairs[armKey] == nil {
			pairs[armKey] = map[string]bool{}
		}
		pairs[armKey][field(rec, pairField)] = true
	}

	if exp.OperatorsPerCompare > 0 {
		for _, k := range sortedKeys(operators) {
			if operators[k] != exp.OperatorsPerCompare {
				if r.fail("OPERATOR_COUNT_BAD", path, "Expected %d operator rows for %s, got %d", exp.OperatorsPerCompare, k, operators[k]) {
					return s, true
				}
			}
		}
	}
	if len(pair) > 0 {
		for _, k := range sortedKeys(pairs) {
			got := pairs[k]
			complete := len(got) == len(pair)
			for _, p := range pair {
				complete = complete && got[p]
			}
			if !complete {
				if r.fail("CANDIDATES_MISSING", path, "Expected both candidates for %s, got %v", k, sortedKeys(got)) {
					return s, true
				}
			}
		}
	}
	return s, false
}

func tuple(parts ...string) string {
	return fmt.Sprintf("(%s)", strings.Join(parts, ", "))
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
