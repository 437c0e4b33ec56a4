// Package core wires the blinding pipeline: authority documents are loaded and
// flattened, merged into one mapping, and joined against the comparison
// dataset. It also fronts the extraction, verification and provenance stages.
package core

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/agenthands/hvaudit/internal/config"
	"github.com/agenthands/hvaudit/internal/core/audit"
	"github.com/agenthands/hvaudit/internal/core/blinding"
	"github.com/agenthands/hvaudit/internal/core/classify"
	"github.com/agenthands/hvaudit/internal/core/extraction"
	"github.com/agenthands/hvaudit/internal/core/merge"
	"github.com/agenthands/hvaudit/internal/core/model"
	"github.com/agenthands/hvaudit/internal/core/provenance"
	"github.com/agenthands/hvaudit/internal/core/reconcile"
	"github.com/agenthands/hvaudit/internal/core/resolve"
	"github.com/agenthands/hvaudit/internal/core/verify"
	"github.com/agenthands/hvaudit/internal/dataset"
	"github.com/agenthands/hvaudit/internal/driver"
)

type Auditor struct {
	Config     *config.Config
	Classifier *classify.Classifier
	Resolver   *resolve.Resolver
	Flattener  *blinding.Flattener
	Reconciler *reconcile.Reconciler
	Extractor  *extraction.Extractor
	Verifier   *verify.Verifier
	// Driver is optional; without one ExportGraph fails.
	Driver driver.GraphDriver
	Logger *zap.Logger
}

func NewAuditor(cfg *config.Config, d driver.GraphDriver, logger *zap.Logger) (*Auditor, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	c, err := classify.NewClassifier(cfg.Classifier.Rules)
	if err != nil {
		return nil, fmt.Errorf("failed to build classifier: %w", err)
	}
	r := resolve.NewResolver(c, cfg.Candidates.SlotOne, cfg.Candidates.SlotTwo)
	return &Auditor{
		Config:     cfg,
		Classifier: c,
		Resolver:   r,
		Flattener:  blinding.NewFlattener(r, cfg.Blinding, logger),
		Reconciler: reconcile.NewReconciler(cfg, logger),
		Extractor:  extraction.NewExtractor(cfg, logger),
		Verifier:   verify.NewVerifier(cfg, logger),
		Driver:     d,
		Logger:     logger,
	}, nil
}

// BlindInput names the stage inputs. The secondary map and the override file
// are optional.
type BlindInput struct {
	PrimaryMap   string `json:"primary_map"`
	SecondaryMap string `json:"secondary_map"`
	Overrides    string `json:"overrides"`
	Comparisons  string `json:"comparisons"`
	OutDir       string `json:"out_dir"`
}

// BlindReport describes a committed blind stage.
type BlindReport struct {
	RunID    string            `json:"run_id"`
	Mappings int               `json:"mappings"`
	Records  int               `json:"records"`
	Wildcard int               `json:"wildcard_resolutions"`
	Outputs  []string          `json:"outputs"`
	Graph    *provenance.Stats `json:"graph,omitempty"`

	Mapping  *merge.Mapping `json:"-"`
	Enriched *model.Table   `json:"-"`
}

// Blind runs the full blinding stage and commits both output datasets. Any
// error leaves the output directory without either dataset.
func (a *Auditor) Blind(ctx context.Context, in BlindInput, policy audit.Policy) (*BlindReport, error) {
	cfg := a.Config
	// Outputs of an earlier run must not sit next to a run that fails.
	if err := dataset.Clear(in.OutDir, cfg.Blinding.ParsedFile, cfg.Blinding.EnrichedFile); err != nil {
		return nil, err
	}

	sources := []merge.Source{}

	primary, err := a.loadMap("primary", in.PrimaryMap, policy)
	if err != nil {
		return nil, err
	}
	sources = append(sources, primary)

	if in.SecondaryMap != "" {
		secondary, err := a.loadMap("secondary", in.SecondaryMap, policy)
		if err != nil {
			return nil, err
		}
		sources = append(sources, secondary)
	}

	if in.Overrides != "" {
		set, err := blinding.LoadOverrides(in.Overrides)
		if err != nil {
			return nil, fmt.Errorf("failed to load overrides: %w", err)
		}
		rows, err := a.Flattener.Overrides(set, policy)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve overrides %s: %w", set.Path, err)
		}
		sources = append(sources, merge.Source{Name: "overrides", Rows: rows, Override: true})
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	mapping, err := merge.Merge(sources...)
	if err != nil {
		return nil, err
	}

	comparisons, err := dataset.ReadCSV(in.Comparisons)
	if err != nil {
		return nil, fmt.Errorf("failed to load comparisons: %w", err)
	}
	res, err := a.Reconciler.Reconcile(comparisons, mapping)
	if err != nil {
		return nil, err
	}

	stage, err := dataset.NewStage(in.OutDir)
	if err != nil {
		return nil, err
	}
	defer stage.Discard()

	if err := stage.WriteCSV(cfg.Blinding.ParsedFile, mapping.Table(cfg.Candidates.SlotOne, cfg.Candidates.SlotTwo)); err != nil {
		return nil, err
	}
	if err := stage.WriteCSV(cfg.Blinding.EnrichedFile, res.Table); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	outputs, err := stage.Commit()
	if err != nil {
		return nil, err
	}

	report := &BlindReport{
		RunID:    uuid.NewString(),
		Mappings: len(mapping.Active()),
		Records:  len(res.Table.Rows),
		Wildcard: res.Wildcard,
		Outputs:  outputs,
		Mapping:  mapping,
		Enriched: res.Table,
	}
	a.Logger.Info("blind stage committed",
		zap.String("run_id", report.RunID),
		zap.Int("mappings", report.Mappings),
		zap.Int("records", report.Records),
		zap.Int("wildcard", report.Wildcard),
	)
	return report, nil
}

func (a *Auditor) loadMap(name, path string, policy audit.Policy) (merge.Source, error) {
	doc, err := blinding.LoadMap(path, a.Config.Schemas.BlindingMap)
	if err != nil {
		return merge.Source{}, fmt.Errorf("failed to load %s map: %w", name, err)
	}
	rows, err := a.Flattener.Flatten(doc, policy)
	if err != nil {
		return merge.Source{}, fmt.Errorf("failed to flatten %s map %s: %w", name, doc.Path, err)
	}
	return merge.Source{Name: name, Rows: rows}, nil
}

// ExportGraph writes the provenance of a committed blind stage.
func (a *Auditor) ExportGraph(ctx context.Context, report *BlindReport) error {
	if a.Driver == nil {
		return fmt.Errorf("no graph driver configured")
	}
	stats, err := provenance.NewExporter(a.Driver, a.Reconciler, a.Logger).Export(ctx, report.RunID, report.Mapping, report.Enriched.Rows)
	if err != nil {
		return fmt.Errorf("failed to export provenance: %w", err)
	}
	report.Graph = stats
	return nil
}

// Extract runs the extractor over root and writes its outputs to outDir. The
// returned result carries the run's issues; a written log does not mean the
// run passed.
func (a *Auditor) Extract(ctx context.Context, root, outDir string, policy audit.Policy) (*extraction.Result, []string, error) {
	res, err := a.Extractor.Extract(ctx, root, policy)
	if err != nil {
		return nil, nil, err
	}
	paths, err := a.Extractor.Write(res, outDir)
	if err != nil {
		return res, nil, err
	}
	return res, paths, nil
}

func (a *Auditor) VerifyReady(root, extractOut, outDir string, policy audit.Policy) (*verify.Report, []string, error) {
	r := a.Verifier.AnalysisReady(root, extractOut, policy)
	paths, err := a.Verifier.Write(r, outDir)
	return r, paths, err
}

func (a *Auditor) VerifyBlinding(csvPath, sourcePath, outDir string, policy audit.Policy) (*verify.Report, []string, error) {
	r := a.Verifier.WithBlinding(csvPath, sourcePath, policy)
	paths, err := a.Verifier.Write(r, outDir)
	return r, paths, err
}

// Classify reports the kind of label and the rule that decided it.
func (a *Auditor) Classify(label string) (classify.Kind, string) {
	return a.Classifier.Explain(label)
}

func (a *Auditor) Resolve(reference, candidateOne, candidateTwo string) (resolve.Resolution, error) {
	return a.Resolver.Resolve(reference, candidateOne, candidateTwo)
}
