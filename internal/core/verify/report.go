// Package verify re-checks the extracted and the enriched datasets before
// they are released for analysis. Verifiers never modify their inputs.
package verify

import (
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/agenthands/hvaudit/internal/config"
	"github.com/agenthands/hvaudit/internal/core/audit"
	"github.com/agenthands/hvaudit/internal/dataset"
)

const (
	Name    = "hvaudit-verify"
	Version = "5.0.0"

	ReadyEvent    = "HVT_A_ANALYSIS_READY_VERIFY_RUN"
	BlindingEvent = "HVT_A_WITH_BLINDING_VERIFY_RUN"
)

type Verifier struct {
	Config *config.Config
	Logger *zap.Logger
	Now    func() time.Time
}

func NewVerifier(cfg *config.Config, logger *zap.Logger) *Verifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Verifier{Config: cfg, Logger: logger, Now: time.Now}
}

// Report is the outcome of one verification run.
type Report struct {
	// Name is the stem of the log and summary files.
	Name    string
	Event   string
	RunID   string
	Policy  audit.Policy
	Issues  []audit.Issue
	Summary map[string]any

	header    map[string]any
	collector *audit.Collector
}

func newReport(name, event string, policy audit.Policy) *Report {
	return &Report{
		Name:      name,
		Event:     event,
		RunID:     uuid.NewString(),
		Policy:    policy,
		collector: audit.NewCollector(policy),
	}
}

// fail records an ERROR and reports whether the run must stop.
func (r *Report) fail(code, path, format string, args ...any) bool {
	return r.collector.Error(code, path, format, args...) != nil
}

func (r *Report) Errors() int { return r.collector.Errors() }

// Err is nil when the run recorded no ERROR.
func (r *Report) Err() error { return r.collector.Err() }

func (r *Report) Passed() bool { return r.Errors() == 0 }

// finish stamps the summary and the log header once the checks are done. The
// inputs named in where are recorded in both.
func (v *Verifier) finish(r *Report, okPath, okMessage string, where, summary map[string]any) {
	if r.Passed() {
		r.collector.Info("OK", okPath, "%s", okMessage)
	}
	r.Issues = r.collector.Issues()

	ts := v.Now().UTC().Format(time.RFC3339Nano)
	r.header = map[string]any{
		"ts":               ts,
		"event":            r.Event,
		"run_id":           r.RunID,
		"verifier":         Name,
		"verifier_version": Version,
		"policy":           r.Policy.String(),
		"errors":           r.Errors(),
	}
	for k, val := range where {
		r.header[k] = val
		summary[k] = val
	}
	summary["ts"] = ts
	summary["run_id"] = r.RunID
	summary["verifier"] = Name
	summary["verifier_version"] = Version
	summary["policy"] = r.Policy.String()
	summary["errors"] = r.Errors()
	r.Summary = summary

	v.Logger.Info("verification finished",
		zap.String("event", r.Event),
		zap.String("run_id", r.RunID),
		zap.Int("errors", r.Errors()),
	)
}

// Write commits <name>_log.ndjson and <name>_summary.json to dir.
func (v *Verifier) Write(r *Report, dir string) ([]string, error) {
	stage, err := dataset.NewStage(dir)
	if err != nil {
		return nil, err
	}
	defer stage.Discard()

	lines := []map[string]any{r.header}
	ts := v.Now().UTC().Format(time.RFC3339Nano)
	for _, i := range r.Issues {
		lines = append(lines, map[string]any{
			"ts":      ts,
			"level":   i.Level,
			"code":    i.Code,
			"message": i.Message,
			"path":    i.Path,
		})
	}
	if err := stage.WriteNDJSON(r.Name+"_log.ndjson", lines); err != nil {
		return nil, err
	}
	if err := stage.WriteJSON(r.Name+"_summary.json", r.Summary); err != nil {
		return nil, err
	}
	return stage.Commit()
}
