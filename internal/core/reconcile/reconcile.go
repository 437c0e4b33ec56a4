// Package reconcile joins a merged blinding mapping against the comparison
// dataset.
package reconcile

import (
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/agenthands/hvaudit/internal/config"
	"github.com/agenthands/hvaudit/internal/core/audit"
	"github.com/agenthands/hvaudit/internal/core/blinding"
	"github.com/agenthands/hvaudit/internal/core/merge"
	"github.com/agenthands/hvaudit/internal/core/model"
)

// Columns appended to every comparison record, in output order.
var Columns = []string{
	"blinding_map_status",
	"expected_match_candidate",
	"expected_mismatch_candidate",
	"is_expected_match_candidate",
	"is_expected_mismatch_candidate",
	"observed_match_via_pass",
	"classification_correct",
	"blinding_map_rule",
	"blinding_map_source_file",
	"blinding_map_source_sha256",
	"blinding_map_job_id",
	"blinding_map_manual_override_flag",
	"blinding_parser_script",
	"blinding_parser_version",
}

// UnmappedError lists every comparison key with no active mapping, sorted and
// without duplicates.
type UnmappedError struct {
	Keys []model.Key
}

func (e *UnmappedError) Error() string {
	parts := make([]string, len(e.Keys))
	for i, k := range e.Keys {
		parts[i] = k.String()
	}
	return fmt.Sprintf("missing active blinding mappings for %d keys: %s", len(e.Keys), strings.Join(parts, ", "))
}

func (e *UnmappedError) Unwrap() error { return audit.ErrUnmappedComparisonKey }

type Result struct {
	Table *model.Table
	// Wildcard counts records resolved through the wildcard scope.
	Wildcard int
}

type Reconciler struct {
	SlotOne       string
	SlotTwo       string
	PassToken     string
	WildcardScope string
	GroupPrefix   string
	ParserName    string
	ParserVersion string
	Logger        *zap.Logger
}

func NewReconciler(cfg *config.Config, logger *zap.Logger) *Reconciler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reconciler{
		SlotOne:       cfg.Candidates.SlotOne,
		SlotTwo:       cfg.Candidates.SlotTwo,
		PassToken:     cfg.Candidates.PassToken,
		WildcardScope: cfg.Blinding.WildcardScope,
		GroupPrefix:   cfg.Blinding.GroupPrefix,
		ParserName:    cfg.Blinding.ParserName,
		ParserVersion: cfg.Blinding.ParserVersion,
		Logger:        logger,
	}
}

// CandidateFromFolder maps a compare folder onto a slot id by the slot's
// trailing "_NN" token. Any other folder yields "".
func (r *Reconciler) CandidateFromFolder(folder string) string {
	for _, slot := range []string{r.SlotOne, r.SlotTwo} {
		if strings.HasSuffix(folder, slotSuffix(slot)) {
			return slot
		}
	}
	return ""
}

func slotSuffix(slot string) string {
	if i := strings.LastIndex(slot, "_"); i >= 0 {
		return slot[i:]
	}
	return slot
}

// Key builds the lookup key of a comparison record.
func (r *Reconciler) Key(rec model.Record) model.Key {
	return model.Key{
		NodeScope: strings.TrimSpace(rec["node_id"]),
		Group:     blinding.NormalizeGroup(rec["group"], r.GroupPrefix),
		Arm:       strings.TrimSpace(rec["arm"]),
	}
}

// Lookup finds the mapping for key, falling back to the wildcard scope.
func (r *Reconciler) Lookup(m *merge.Mapping, key model.Key) (model.MappingRow, bool, bool) {
	if row, ok := m.Lookup(key); ok {
		return row, true, false
	}
	key.NodeScope = r.WildcardScope
	row, ok := m.Lookup(key)
	return row, ok, ok
}

// Reconcile enriches every record of table. Original fields are copied
// verbatim; if any record has no active mapping the whole run fails with an
// *UnmappedError.
func (r *Reconciler) Reconcile(table *model.Table, m *merge.Mapping) (*Result, error) {
	if len(table.Rows) == 0 {
		return nil, audit.Malformed(table.Source, "comparison dataset has no rows")
	}
	for _, c := range Columns {
		if table.HasColumn(c) {
			return nil, audit.Malformed(table.Source, fmt.Sprintf("comparison dataset already has column %q", c))
		}
	}

	out := &model.Table{
		Source:  table.Source,
		Columns: append(append([]string(nil), table.Columns...), Columns...),
		Rows:    make([]model.Record, 0, len(table.Rows)),
	}
	res := &Result{Table: out}
	missing := make(map[model.Key]struct{})

	for _, rec := range table.Rows {
		key := r.Key(rec)
		row, ok, wildcard := r.Lookup(m, key)
		if !ok || !row.Active() {
			missing[key] = struct{}{}
			continue
		}
		if wildcard {
			res.Wildcard++
		}
		out.Rows = append(out.Rows, r.enrich(rec, row))
	}

	if len(missing) > 0 {
		keys := make([]model.Key, 0, len(missing))
		for k := range missing {
			keys = append(keys, k)
		}
		sort.Slice(keys, func(i, j int) bool { return keys[i].Less(keys[j]) })
		return nil, &UnmappedError{Keys: keys}
	}

	r.Logger.Info("reconciled comparisons",
		zap.Int("records", len(out.Rows)),
		zap.Int("wildcard", res.Wildcard),
		zap.Int("mappings", m.Len()),
	)
	return res, nil
}

func (r *Reconciler) enrich(rec model.Record, row model.MappingRow) model.Record {
	candidate := strings.TrimSpace(rec["candidate_label"])
	if candidate == "" {
		candidate = r.CandidateFromFolder(strings.TrimSpace(rec["compare_folder"]))
	}

	isMatch := candidate == row.ExpectedMatch
	isMismatch := candidate == row.ExpectedMismatch
	observed := rec["pass_fail"] == r.PassToken

	out := rec.Clone()
	out["blinding_map_status"] = string(row.Status)
	out["expected_match_candidate"] = row.ExpectedMatch
	out["expected_mismatch_candidate"] = row.ExpectedMismatch
	out["is_expected_match_candidate"] = flag(isMatch)
	out["is_expected_mismatch_candidate"] = flag(isMismatch)
	out["observed_match_via_pass"] = flag(observed)
	out["classification_correct"] = flag(observed == isMatch)
	out["blinding_map_rule"] = row.Rule
	out["blinding_map_source_file"] = row.SourceFile
	out["blinding_map_source_sha256"] = row.SourceSHA256
	out["blinding_map_job_id"] = row.JobID
	out["blinding_map_manual_override_flag"] = flag(row.ManualOverride)
	out["blinding_parser_script"] = r.ParserName
	out["blinding_parser_version"] = r.ParserVersion
	return out
}

func flag(b bool) string {
	if b {
		return "1"
	}
	return "0"
}
