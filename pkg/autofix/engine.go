package autofix

import (
	"context"
	"log/slog"
	"slices"

	"github.com/dukex/flowguard/pkg/log"
	"github.com/dukex/flowguard/pkg/models"
	"github.com/dukex/flowguard/pkg/patch"
	"github.com/dukex/flowguard/pkg/validation"
)

// Options controls an autofix run. Profile and ConfidenceThreshold have no defaults.
type Options struct {
	Profile             validation.Profile `json:"profile"`
	FixTypes            []FixType          `json:"fix_types,omitempty"` // Empty means every fix type
	ConfidenceThreshold Confidence         `json:"confidence_threshold"`
	MaxFixes            int                `json:"max_fixes,omitempty"` // Caps applied operations; zero or negative means no cap
	DryRun              bool               `json:"dry_run"`
}

// Result is the outcome of an autofix run.
type Result struct {
	Workflow *models.Workflow         `json:"workflow"`
	Applied  []Fix                    `json:"applied"`
	Proposed []Fix                    `json:"proposed"` // Below the threshold, filtered out or over the cap
	Failed   []Fix                    `json:"failed"`
	DryRun   bool                     `json:"dry_run"`
	Report   *models.ValidationReport `json:"report"`
}

// Committable reports whether the caller should persist Workflow.
func (r *Result) Committable() bool {
	return !r.DryRun && len(r.Applied) > 0
}

// Engine proposes and applies fixes.
type Engine struct {
	catalog   validation.Catalog
	validator *validation.WorkflowValidator
	patcher   *patch.Engine
	logger    *slog.Logger
}

// NewEngine creates an autofix engine backed by the catalog.
func NewEngine(catalog validation.Catalog, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = log.WithModule("autofix")
	}

	return &Engine{
		catalog:   catalog,
		validator: validation.NewWorkflowValidator(catalog),
		patcher:   patch.NewEngine(catalog),
		logger:    logger,
	}
}

// Propose validates workflow with every phase under the profile and returns the fixes for its
// findings, highest confidence first.
func (e *Engine) Propose(ctx context.Context, workflow *models.Workflow, profile validation.Profile) ([]Fix, error) {
	if workflow == nil {
		return nil, ErrNilWorkflow
	}

	report, err := e.validator.ValidateWorkflow(ctx, workflow, validation.AllPhases(profile))
	if err != nil {
		return nil, err
	}

	p := &proposer{catalog: e.catalog, workflow: workflow}

	fixes := []Fix{}
	seen := make(map[string]bool)

	for _, finding := range report.Findings {
		if finding.FixRef == "" {
			continue
		}

		fix, ok := p.propose(finding)
		if !ok {
			continue
		}

		// One fix per target and type; a connection can carry a branch and a stale finding at once.
		key := string(fix.Type) + "|" + targetKey(finding)
		if seen[key] {
			continue
		}

		seen[key] = true
		fixes = append(fixes, fix)
	}

	slices.SortStableFunc(fixes, func(a, b Fix) int {
		return b.Confidence.Rank() - a.Confidence.Rank()
	})

	return fixes, nil
}

// Fix proposes fixes and applies the selected ones in descending confidence through the patch engine.
// Each fix is applied as its own atomic batch, so a failing fix never leaves half of its operations
// behind; later fixes still run. The caller's workflow is never mutated.
func (e *Engine) Fix(ctx context.Context, workflow *models.Workflow, opts Options) (*Result, error) {
	if workflow == nil {
		return nil, ErrNilWorkflow
	}

	if _, err := validation.ParseProfile(string(opts.Profile)); err != nil {
		return nil, err
	}

	if _, err := ParseConfidence(string(opts.ConfidenceThreshold)); err != nil {
		return nil, err
	}

	for _, t := range opts.FixTypes {
		if _, err := ParseFixType(string(t)); err != nil {
			return nil, err
		}
	}

	fixes, err := e.Propose(ctx, workflow, opts.Profile)
	if err != nil {
		return nil, err
	}

	result := &Result{
		Applied:  []Fix{},
		Proposed: []Fix{},
		Failed:   []Fix{},
		DryRun:   opts.DryRun,
	}

	working := workflow.Clone()
	patchOpts := patch.Options{ValidateOnly: opts.DryRun}
	appliedOps := 0

	for _, fix := range fixes {
		if !e.selected(fix, opts, appliedOps) {
			result.Proposed = append(result.Proposed, fix)

			continue
		}

		applied, err := e.patcher.Apply(ctx, working, fix.Operations, patchOpts)
		if err != nil {
			return nil, err
		}

		if applied.RolledBack() {
			fix.Error = applied.Rejected.Error
			result.Failed = append(result.Failed, fix)

			e.logger.DebugContext(ctx, "fix failed", "type", fix.Type, "error", fix.Error)

			continue
		}

		working = applied.Workflow
		appliedOps += len(fix.Operations)
		result.Applied = append(result.Applied, fix)
	}

	result.Workflow = working

	report, err := e.validator.ValidateWorkflow(ctx, working, validation.AllPhases(opts.Profile))
	if err != nil {
		return nil, err
	}

	result.Report = report

	e.logger.InfoContext(ctx, "autofix finished",
		"workflow_id", workflow.ID,
		"applied", len(result.Applied),
		"proposed", len(result.Proposed),
		"failed", len(result.Failed),
		"dry_run", opts.DryRun,
	)

	return result, nil
}

// selected reports whether fix passes the type filter and the threshold, and fits in the operation
// budget left after appliedOps.
func (e *Engine) selected(fix Fix, opts Options, appliedOps int) bool {
	if len(opts.FixTypes) > 0 && !slices.Contains(opts.FixTypes, fix.Type) {
		return false
	}

	if !fix.Confidence.AtLeast(opts.ConfidenceThreshold) {
		return false
	}

	return opts.MaxFixes <= 0 || appliedOps+len(fix.Operations) <= opts.MaxFixes
}

func targetKey(f models.Finding) string {
	if f.Target.Connection != nil {
		return f.Target.Connection.Key()
	}

	if len(f.Path) > 0 {
		return f.Target.NodeID + "/" + f.Field
	}

	return f.Target.NodeID
}
