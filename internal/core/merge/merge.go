// Package merge combines mapping rows from several authority sources into one
// immutable mapping.
package merge

import (
	"errors"
	"fmt"
	"sort"

	"github.com/agenthands/hvaudit/internal/core/audit"
	"github.com/agenthands/hvaudit/internal/core/model"
)

// ErrSealed is returned when rows are added after Build.
var ErrSealed = errors.New("merge builder already built")

// ConflictError reports two active rows that disagree for one key.
type ConflictError struct {
	Key      model.Key
	Existing model.MappingRow
	Incoming model.MappingRow
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("Conflicting active mappings for %s: %s says %s (%s), %s says %s (%s)",
		e.Key,
		e.Existing.SourceFile, e.Existing.ExpectedMatch, e.Existing.JobID,
		e.Incoming.SourceFile, e.Incoming.ExpectedMatch, e.Incoming.JobID)
}

func (e *ConflictError) Unwrap() error { return audit.ErrConflictingAuthority }

// Builder accumulates rows in the order sources are fed to it. Earlier sources
// never see later ones.
type Builder struct {
	rows   map[model.Key]model.MappingRow
	order  []model.Key
	sealed bool
}

func NewBuilder() *Builder {
	return &Builder{rows: make(map[model.Key]model.MappingRow)}
}

// Add inserts one source's rows:
//
//	new key                      insert
//	pending over pending         keep existing
//	active over pending          replace
//	active over active, agree    keep existing
//	active over active, differ   *ConflictError
//	pending over active          keep existing
func (b *Builder) Add(rows ...model.MappingRow) error {
	if b.sealed {
		return ErrSealed
	}
	for _, row := range rows {
		key := row.Key()
		cur, ok := b.rows[key]
		if !ok {
			b.put(key, row)
			continue
		}
		if !row.Active() {
			continue
		}
		if !cur.Active() {
			b.rows[key] = row
			continue
		}
		if cur.ExpectedMatch != row.ExpectedMatch {
			return &ConflictError{Key: key, Existing: cur, Incoming: row}
		}
	}
	return nil
}

// Override force-replaces whatever is stored under each row's key and marks the
// row as a manual override.
func (b *Builder) Override(rows ...model.MappingRow) error {
	if b.sealed {
		return ErrSealed
	}
	for _, row := range rows {
		row.ManualOverride = true
		key := row.Key()
		if _, ok := b.rows[key]; ok {
			b.rows[key] = row
			continue
		}
		b.put(key, row)
	}
	return nil
}

func (b *Builder) put(key model.Key, row model.MappingRow) {
	b.rows[key] = row
	b.order = append(b.order, key)
}

// Build seals the builder and returns the finished mapping.
func (b *Builder) Build() *Mapping {
	b.sealed = true
	keys := append([]model.Key(nil), b.order...)
	sort.Slice(keys, func(i, j int) bool { return keys[i].Less(keys[j]) })

	m := &Mapping{rows: make(map[model.Key]model.MappingRow, len(b.rows)), keys: keys}
	for k, v := range b.rows {
		m.rows[k] = v
	}
	return m
}

// Mapping is the merged, read-only result. Every accessor returns copies.
type Mapping struct {
	rows map[model.Key]model.MappingRow
	keys []model.Key
}

func (m *Mapping) Len() int { return len(m.keys) }

func (m *Mapping) Lookup(key model.Key) (model.MappingRow, bool) {
	row, ok := m.rows[key]
	return row, ok
}

// Rows returns every row sorted by key.
func (m *Mapping) Rows() []model.MappingRow {
	out := make([]model.MappingRow, 0, len(m.keys))
	for _, k := range m.keys {
		out = append(out, m.rows[k])
	}
	return out
}

// Active returns the active rows sorted by key.
func (m *Mapping) Active() []model.MappingRow {
	var out []model.MappingRow
	for _, k := range m.keys {
		if r := m.rows[k]; r.Active() {
			out = append(out, r)
		}
	}
	return out
}

// Source is one batch of rows with its precedence.
type Source struct {
	Name     string
	Rows     []model.MappingRow
	Override bool
}

// Merge feeds sources to a fresh builder in order and builds the mapping.
func Merge(sources ...Source) (*Mapping, error) {
	b := NewBuilder()
	for _, s := range sources {
		var err error
		if s.Override {
			err = b.Override(s.Rows...)
		} else {
			err = b.Add(s.Rows...)
		}
		if err != nil {
			return nil, fmt.Errorf("failed to merge %s: %w", s.Name, err)
		}
	}
	return b.Build(), nil
}

// Table renders the active rows as the parsed-mapping dataset. The raw label
// columns are named after the candidate slots.
func (m *Mapping) Table(slotOne, slotTwo string) *model.Table {
	t := &model.Table{Columns: []string{
		"node_scope", "group", "arm", "status",
		"expected_match_candidate", "expected_mismatch_candidate", "rule",
		"A_src", slotOne + "_src", slotTwo + "_src",
		"map_job_id", "map_source_file", "map_source_sha256", "map_manual_override_flag",
	}}
	for _, r := range m.Active() {
		// empty, not "0": the enriched dataset is where the flag is binary
		override := ""
		if r.ManualOverride {
			override = "1"
		}
		t.Rows = append(t.Rows, model.Record{
			"node_scope":                  r.NodeScope,
			"group":                       r.Group,
			"arm":                         r.Arm,
			"status":                      string(r.Status),
			"expected_match_candidate":    r.ExpectedMatch,
			"expected_mismatch_candidate": r.ExpectedMismatch,
			"rule":                        r.Rule,
			"A_src":                       r.ReferenceSource,
			slotOne + "_src":              r.CandidateOneSource,
			slotTwo + "_src":              r.CandidateTwoSource,
			"map_job_id":                  r.JobID,
			"map_source_file":             r.SourceFile,
			"map_source_sha256":           r.SourceSHA256,
			"map_manual_override_flag":    override,
		})
	}
	return t
}
