// Package provenance records which authority document asserted each blinding
// decision, and which comparison records it resolved, in a property graph.
package provenance

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/agenthands/hvaudit/internal/core/merge"
	"github.com/agenthands/hvaudit/internal/core/model"
	"github.com/agenthands/hvaudit/internal/core/reconcile"
	"github.com/agenthands/hvaudit/internal/driver"
)

type Exporter struct {
	Driver     driver.GraphDriver
	Reconciler *reconcile.Reconciler
	Logger     *zap.Logger
	Now        func() time.Time
}

func NewExporter(d driver.GraphDriver, r *reconcile.Reconciler, logger *zap.Logger) *Exporter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Exporter{Driver: d, Reconciler: r, Logger: logger, Now: time.Now}
}

// Stats counts what one export wrote.
type Stats struct {
	Documents   int `json:"documents"`
	Mappings    int `json:"mappings"`
	Comparisons int `json:"comparisons"`
}

// Export writes the run, its source documents, the active mappings and the
// enriched records. Every node and edge is merged, so re-running an export
// is idempotent apart from the run stamp.
func (e *Exporter) Export(ctx context.Context, runID string, m *merge.Mapping, records []model.Record) (*Stats, error) {
	active := m.Active()

	comparisons := make([]map[string]any, 0, len(records))
	for _, rec := range records {
		key := e.Reconciler.Key(rec)
		row, ok, _ := e.Reconciler.Lookup(m, key)
		if !ok || !row.Active() {
			return nil, fmt.Errorf("record %s has no active mapping for %s", rec["hv_record_id"], key)
		}
		comparisons = append(comparisons, map[string]any{
			"hv_record_id":           rec["hv_record_id"],
			"mapping_key":            row.Key().String(),
			"node_id":                rec["node_id"],
			"group":                  rec["group"],
			"arm":                    rec["arm"],
			"candidate_label":        rec["candidate_label"],
			"pass_fail":              rec["pass_fail"],
			"classification_correct": rec["classification_correct"],
		})
	}

	if err := e.Driver.BuildIndices(ctx); err != nil {
		return nil, fmt.Errorf("failed to build indices: %w", err)
	}

	_, err := e.Driver.ExecuteQuery(ctx, driver.SaveAuditRunQuery, map[string]interface{}{
		"run_id":         runID,
		"created_at":     e.Now().UTC().Format(time.RFC3339),
		"parser":         e.Reconciler.ParserName,
		"parser_version": e.Reconciler.ParserVersion,
		"mappings":       len(active),
		"comparisons":    len(comparisons),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to save audit run: %w", err)
	}

	docs := map[string]string{}
	mappings := make([]map[string]any, 0, len(active))
	for _, row := range active {
		docs[row.SourceSHA256] = row.SourceFile
		mappings = append(mappings, map[string]any{
			"key":               row.Key().String(),
			"source_sha256":     row.SourceSHA256,
			"node_scope":        row.NodeScope,
			"group":             row.Group,
			"arm":               row.Arm,
			"status":            string(row.Status),
			"expected_match":    row.ExpectedMatch,
			"expected_mismatch": row.ExpectedMismatch,
			"rule":              row.Rule,
			"job_id":            row.JobID,
			"manual_override":   row.ManualOverride,
		})
	}

	shas := make([]string, 0, len(docs))
	for sha := range docs {
		shas = append(shas, sha)
	}
	sort.Strings(shas)
	for _, sha := range shas {
		params := map[string]interface{}{"sha256": sha, "path": docs[sha], "run_id": runID}
		if _, err := e.Driver.ExecuteQuery(ctx, driver.SaveSourceDocumentQuery, params); err != nil {
			return nil, fmt.Errorf("failed to save source document %s: %w", docs[sha], err)
		}
	}

	if _, err := e.Driver.ExecuteQuery(ctx, driver.SaveMappingsQuery, map[string]interface{}{"run_id": runID, "mappings": mappings}); err != nil {
		return nil, fmt.Errorf("failed to save mappings: %w", err)
	}
	if _, err := e.Driver.ExecuteQuery(ctx, driver.SaveComparisonsQuery, map[string]interface{}{"run_id": runID, "comparisons": comparisons}); err != nil {
		return nil, fmt.Errorf("failed to save comparisons: %w", err)
	}

	stats := &Stats{Documents: len(shas), Mappings: len(mappings), Comparisons: len(comparisons)}
	e.Logger.Info("exported provenance graph",
		zap.String("run_id", runID),
		zap.Int("documents", stats.Documents),
		zap.Int("mappings", stats.Mappings),
		zap.Int("comparisons", stats.Comparisons),
	)
	return stats, nil
}

// MappingProvenance is the graph's answer to "who asserted this key".
type MappingProvenance struct {
	Path        string
	SHA256      string
	Rule        string
	Comparisons int64
}

// Lookup reads back the provenance of one mapping key.
func (e *Exporter) Lookup(ctx context.Context, key model.Key) ([]MappingProvenance, error) {
	res, err := e.Driver.ExecuteQuery(ctx, driver.GetMappingProvenanceQuery, map[string]interface{}{"key": key.String()})
	if err != nil {
		return nil, fmt.Errorf("failed to look up %s: %w", key, err)
	}
	out := make([]MappingProvenance, 0, len(res.Records))
	for _, rec := range res.Records {
		p := MappingProvenance{}
		if v, ok := rec.Get("path"); ok {
			p.Path, _ = v.(string)
		}
		if v, ok := rec.Get("sha256"); ok {
			p.SHA256, _ = v.(string)
		}
		if v, ok := rec.Get("rule"); ok {
			p.Rule, _ = v.(string)
		}
		if v, ok := rec.Get("comparisons"); ok {
			p.Comparisons, _ = v.(int64)
		}
		out = append(out, p)
	}
	return out, nil
}
