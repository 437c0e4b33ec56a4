// Package extraction turns HV metadata files and their adjacent evidence into
// the comparisons and artifacts datasets.
package extraction

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/agenthands/hvaudit/internal/config"
	"github.com/agenthands/hvaudit/internal/core/audit"
	"github.com/agenthands/hvaudit/internal/core/consistency"
	"github.com/agenthands/hvaudit/internal/core/model"
	"github.com/agenthands/hvaudit/internal/dataset"
)

const LogEvent = "HVT_A_METADATA_EXTRACT_RUN"

type Extractor struct {
	Config      config.ExtractionConfig
	Schema      string
	PassToken   string
	FailToken   string
	Concurrency int
	Logger      *zap.Logger
	Now         func() time.Time
}

func NewExtractor(cfg *config.Config, logger *zap.Logger) *Extractor {
	if logger == nil {
		logger = zap.NewNop()
	}
	n := cfg.Concurrency.Extract
	if n <= 0 {
		n = 1
	}
	return &Extractor{
		Config:      cfg.Extraction,
		Schema:      cfg.Schemas.HVMetadata,
		PassToken:   cfg.Candidates.PassToken,
		FailToken:   cfg.Candidates.FailToken,
		Concurrency: n,
		Logger:      logger,
		Now:         time.Now,
	}
}

// Result is one extraction run. Issues holds every diagnostic in discovery
// order; the tables are only meaningful when Err is nil.
type Result struct {
	RunID       string
	Root        string
	Policy      audit.Policy
	Files       []string
	Comparisons *model.Table
	Artifacts   *model.Table
	Issues      []audit.Issue
	collector   *audit.Collector
}

func (r *Result) Errors() int   { return r.collector.Errors() }
func (r *Result) Warnings() int { return r.collector.Warnings() }

// Err is nil when the run produced no ERROR issue.
func (r *Result) Err() error { return r.collector.Err() }

func (e *Extractor) tokens() consistency.Tokens {
	return consistency.Tokens{Pass: e.Config.SummaryPass, Fail: e.Config.SummaryFail}
}

// Discover lists metadata files under root in lexicographic path order.
func (e *Extractor) Discover(root string) ([]string, error) {
	matches, err := doublestar.Glob(os.DirFS(root), e.Config.MetadataGlob, doublestar.WithFilesOnly())
	if err != nil {
		return nil, fmt.Errorf("failed to glob %s: %w", e.Config.MetadataGlob, err)
	}
	sort.Strings(matches)
	return matches, nil
}

// Extract inspects every metadata file under root. Files are inspected in
// parallel and their results merged in discovery order, so the outcome does
// not depend on scheduling. Under StopAtFirst the merge stops at the first
// file with an ERROR.
func (e *Extractor) Extract(ctx context.Context, root string, policy audit.Policy) (*Result, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve root %s: %w", root, err)
	}
	if st, err := os.Stat(abs); err != nil || !st.IsDir() {
		return nil, fmt.Errorf("root is not a directory: %s", abs)
	}

	res := &Result{
		RunID:       uuid.NewString(),
		Root:        filepath.ToSlash(abs),
		Policy:      policy,
		Comparisons: &model.Table{Columns: ComparisonColumns},
		Artifacts:   &model.Table{Columns: ArtifactColumns},
		collector:   audit.NewCollector(policy),
	}

	files, err := e.Discover(abs)
	if err != nil {
		return nil, err
	}
	res.Files = files
	if len(files) == 0 {
		res.collector.Error("NO_FILES", res.Root, "No %s found under root: %s", e.Config.MetadataGlob, res.Root)
		res.Issues = res.collector.Issues()
		return res, nil
	}

	inspections := make([]*inspection, len(files))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.Concurrency)
	for i, rel := range files {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			inspections[i] = e.inspect(abs, rel, policy)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("extraction interrupted: %w", err)
	}

	for _, in := range inspections {
		stopped := false
		for _, issue := range in.c.Issues() {
			if err := res.collector.Add(issue); err != nil {
				stopped = true
				break
			}
		}
		if stopped {
			break
		}
		if in.c.Errors() == 0 && in.comparison != nil {
			res.Comparisons.Rows = append(res.Comparisons.Rows, in.comparison)
			res.Artifacts.Rows = append(res.Artifacts.Rows, in.artifacts...)
		}
	}

	sortRecords(res.Comparisons.Rows, comparisonSortKeys)
	sortRecords(res.Artifacts.Rows, artifactSortKeys)
	res.Issues = res.collector.Issues()

	e.Logger.Info("extracted hv metadata",
		zap.String("root", res.Root),
		zap.Int("files", len(files)),
		zap.Int("comparisons", len(res.Comparisons.Rows)),
		zap.Int("artifacts", len(res.Artifacts.Rows)),
		zap.Int("errors", res.Errors()),
		zap.Int("warnings", res.Warnings()),
	)
	return res, nil
}

func sortRecords(rows []model.Record, keys []string) {
	sort.SliceStable(rows, func(i, j int) bool {
		for _, k := range keys {
			if rows[i][k] != rows[j][k] {
				return rows[i][k] < rows[j][k]
			}
		}
		return false
	})
}

// Write stages the run's outputs in dir. A run with errors writes only the
// log; otherwise both CSVs and the log are committed together.
func (e *Extractor) Write(res *Result, dir string) ([]string, error) {
	stage, err := dataset.NewStage(dir)
	if err != nil {
		return nil, err
	}
	defer stage.Discard()

	prefix := e.Config.Prefix
	if res.Errors() == 0 {
		if err := stage.WriteCSV(prefix+"_comparisons.csv", res.Comparisons); err != nil {
			return nil, err
		}
		if err := stage.WriteCSV(prefix+"_artifacts.csv", res.Artifacts); err != nil {
			return nil, err
		}
	}
	if err := stage.WriteNDJSON(prefix+"_extract_log.ndjson", e.logLines(res)); err != nil {
		return nil, err
	}
	return stage.Commit()
}

func (e *Extractor) logLines(res *Result) []map[string]any {
	ts := e.Now().UTC().Format(time.RFC3339Nano)
	lines := []map[string]any{{
		"ts":                      ts,
		"event":                   LogEvent,
		"run_id":                  res.RunID,
		"extractor":               e.Config.ExtractorName,
		"extractor_version":       e.Config.ExtractorVersion,
		"root":                    res.Root,
		"policy":                  res.Policy.String(),
		"hv_metadata_files_found": len(res.Files),
		"comparisons_rows":        len(res.Comparisons.Rows),
		"artifacts_rows":          len(res.Artifacts.Rows),
		"warnings":                res.Warnings(),
		"errors":                  res.Errors(),
	}}
	for _, i := range res.Issues {
		lines = append(lines, map[string]any{
			"ts":               ts,
			"level":            i.Level,
			"code":             i.Code,
			"message":          i.Message,
			"hv_metadata_path": i.Path,
		})
	}
	return lines
}

// fileExists reports whether p is a regular file.
func fileExists(p string) bool {
	st, err := os.Stat(p)
	return err == nil && st.Mode().IsRegular()
}
