package blinding

import (
	"errors"
	"strings"

	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"github.com/agenthands/hvaudit/internal/config"
	"github.com/agenthands/hvaudit/internal/core/audit"
	"github.com/agenthands/hvaudit/internal/core/model"
	"github.com/agenthands/hvaudit/internal/core/resolve"
)

// Flattener turns job/arm trees into mapping rows.
type Flattener struct {
	Resolver      *resolve.Resolver
	GroupPrefix   string
	WildcardScope string
	NodeScopes    map[string]string
	OverrideScope string
	OverrideJobID string
	Logger        *zap.Logger
}

func NewFlattener(r *resolve.Resolver, cfg config.BlindingConfig, logger *zap.Logger) *Flattener {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Flattener{
		Resolver:      r,
		GroupPrefix:   cfg.GroupPrefix,
		WildcardScope: cfg.WildcardScope,
		NodeScopes:    cfg.NodeScopes,
		OverrideScope: cfg.OverrideScope,
		OverrideJobID: cfg.OverrideJobID,
		Logger:        logger,
	}
}

// NormalizeGroup trims the group name and strips the legacy prefix.
func NormalizeGroup(group, prefix string) string {
	g := strings.TrimSpace(group)
	if prefix != "" {
		g = strings.TrimPrefix(g, prefix)
	}
	return g
}

// NodeScope maps a job id onto its node scope. Unknown jobs apply to every node.
func (f *Flattener) NodeScope(jobID string) string {
	if scope, ok := f.NodeScopes[jobID]; ok {
		return scope
	}
	return f.WildcardScope
}

// Flatten emits one row per arm of doc. Pending arms become placeholders; every
// other arm is resolved. Any resolver failure fails the whole document: under
// StopAtFirst the first one is returned, under CollectAll all of them are.
func (f *Flattener) Flatten(doc *Document, policy audit.Policy) ([]model.MappingRow, error) {
	var (
		rows []model.MappingRow
		errs []error
	)

	for _, job := range doc.Root.Get("jobs").Array() {
		if !job.IsObject() {
			continue
		}
		jobID := job.Get("job_id").String()
		jobStatus := statusOf(job.Get("status"), model.StatusActive)
		scope := f.NodeScope(jobID)

		arms := job.Get("arms")
		if !arms.IsArray() {
			continue
		}
		for _, arm := range arms.Array() {
			if !arm.IsObject() {
				continue
			}
			row, err := f.row(arm, scope, jobID, statusOf(arm.Get("status"), jobStatus))
			if err != nil {
				if policy == audit.StopAtFirst {
					return nil, err
				}
				errs = append(errs, err)
				continue
			}
			row.SourceFile, row.SourceSHA256 = doc.Path, doc.SHA256
			rows = append(rows, row)
		}
	}
	if len(errs) > 0 {
		return nil, audit.Join(errs)
	}

	f.Logger.Debug("flattened authority document",
		zap.String("path", doc.Path),
		zap.Int("rows", len(rows)),
	)
	return rows, nil
}

// Overrides resolves every fragment of set into an active, manually overridden
// row anchored to the override scope.
func (f *Flattener) Overrides(set *FragmentSet, policy audit.Policy) ([]model.MappingRow, error) {
	var (
		rows []model.MappingRow
		errs []error
	)
	for _, frag := range set.Fragments {
		row, err := f.row(frag, f.OverrideScope, f.OverrideJobID, model.StatusActive)
		if err != nil {
			if policy == audit.StopAtFirst {
				return nil, err
			}
			errs = append(errs, err)
			continue
		}
		row.SourceFile, row.SourceSHA256 = set.Path, set.SHA256
		row.ManualOverride = true
		rows = append(rows, row)
	}
	if len(errs) > 0 {
		return nil, audit.Join(errs)
	}

	f.Logger.Debug("parsed override fragments",
		zap.String("path", set.Path),
		zap.Int("rows", len(rows)),
	)
	return rows, nil
}

func (f *Flattener) row(arm gjson.Result, scope, jobID string, status model.Status) (model.MappingRow, error) {
	row := model.MappingRow{
		NodeScope:          scope,
		Group:              NormalizeGroup(arm.Get("group").String(), f.GroupPrefix),
		Arm:                strings.TrimSpace(arm.Get("arm").String()),
		Status:             status,
		ReferenceSource:    arm.Get("A_src").String(),
		CandidateOneSource: arm.Get(f.Resolver.SlotOne + "_src").String(),
		CandidateTwoSource: arm.Get(f.Resolver.SlotTwo + "_src").String(),
		JobID:              jobID,
	}
	if status == model.StatusPending {
		return row, nil
	}

	res, err := f.Resolver.Resolve(row.ReferenceSource, row.CandidateOneSource, row.CandidateTwoSource)
	if err != nil {
		var amb *resolve.AmbiguityError
		if errors.As(err, &amb) {
			amb.Within(jobID, scope, row.Group, row.Arm)
		}
		return model.MappingRow{}, err
	}
	row.ExpectedMatch = res.ExpectedMatch
	row.ExpectedMismatch = res.ExpectedMismatch
	row.Rule = res.Rule
	return row, nil
}

// statusOf reads a lifecycle status. Missing or empty values inherit fallback;
// anything other than "pending" is active.
func statusOf(v gjson.Result, fallback model.Status) model.Status {
	s := strings.ToLower(strings.TrimSpace(v.String()))
	if s == "" {
		return fallback
	}
	if s == string(model.StatusPending) {
		return model.StatusPending
	}
	return model.StatusActive
}
