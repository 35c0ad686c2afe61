package patch

import (
	"context"
	"errors"
	"fmt"

	"github.com/dukex/flowguard/pkg/models"
	"github.com/dukex/flowguard/pkg/validation"
	"github.com/go-playground/validator/v10"
)

// StaleSweep decides where cleanStaleConnections runs inside a batch.
type StaleSweep string

const (
	// SweepLast defers every cleanStaleConnections to the end of the batch, in their relative order.
	SweepLast StaleSweep = "last"
	// SweepInOrder runs cleanStaleConnections at its position in the batch.
	SweepInOrder StaleSweep = "in_order"
)

var ErrInvalidStaleSweep = errors.New("invalid stale sweep mode")

// ParseStaleSweep validates a sweep mode. Empty means SweepLast.
func ParseStaleSweep(s string) (StaleSweep, error) {
	switch StaleSweep(s) {
	case "", SweepLast:
		return SweepLast, nil
	case SweepInOrder:
		return SweepInOrder, nil
	default:
		return "", fmt.Errorf("%w: %q (allowed: last, in_order)", ErrInvalidStaleSweep, s)
	}
}

// Options controls a batch application.
type Options struct {
	ContinueOnError bool               `json:"continue_on_error"` // Skip failing operations instead of rolling back
	ValidateOnly    bool               `json:"validate_only"`     // Dry run: the result must not be committed
	Validation      validation.Options `json:"validation"`        // Phases of the final report; zero runs connections and expressions
	StaleSweep      StaleSweep         `json:"stale_sweep,omitempty"`
}

// OpResult is the outcome of one operation.
type OpResult struct {
	Index     int       `json:"index"`
	Type      OpType    `json:"type"`
	Operation Operation `json:"operation"`
	Error     string    `json:"error,omitempty"`

	err error
}

// Err returns the failure of the operation, or nil when it was applied.
func (r OpResult) Err() error {
	return r.err
}

// Result is the outcome of a batch.
type Result struct {
	Workflow *models.Workflow         `json:"workflow"`
	Applied  []OpResult               `json:"applied"`
	Skipped  []OpResult               `json:"skipped"`
	Rejected *OpResult                `json:"rejected,omitempty"` // Set when an atomic batch was rolled back
	DryRun   bool                     `json:"dry_run"`
	Report   *models.ValidationReport `json:"report"`
}

// RolledBack reports whether an atomic batch failed and nothing was applied.
func (r *Result) RolledBack() bool {
	return r.Rejected != nil
}

// Committable reports whether the caller should persist Workflow.
func (r *Result) Committable() bool {
	return !r.DryRun && r.Rejected == nil && len(r.Applied) > 0
}

// Engine applies operation batches. It is a pure in-memory transform: the caller's workflow is never
// mutated and the result carries a new copy.
type Engine struct {
	catalog   validation.Catalog
	validator *validation.WorkflowValidator
	validate  *validator.Validate
}

// NewEngine creates a patch engine backed by the catalog.
func NewEngine(catalog validation.Catalog) *Engine {
	return &Engine{
		catalog:   catalog,
		validator: validation.NewWorkflowValidator(catalog),
		validate:  validator.New(validator.WithRequiredStructEnabled()),
	}
}

// Apply runs ops against a copy of workflow. Each operation is applied to a scratch copy and committed
// only when it succeeds and passes the structural check. In atomic mode the first failure rolls the whole
// batch back; with ContinueOnError the failing operation is skipped. The error is reserved for invalid
// options and context cancellation: operation failures are reported in the result.
func (e *Engine) Apply(ctx context.Context, workflow *models.Workflow, ops []Operation, opts Options) (*Result, error) {
	if workflow == nil {
		return nil, ErrNilWorkflow
	}

	sweep, err := ParseStaleSweep(string(opts.StaleSweep))
	if err != nil {
		return nil, err
	}

	if opts.Validation.ValidateNodes {
		if _, err := validation.ParseProfile(string(opts.Validation.Profile)); err != nil {
			return nil, err
		}
	}

	result := &Result{
		Applied: []OpResult{},
		Skipped: []OpResult{},
		DryRun:  opts.ValidateOnly,
	}

	working := workflow.Clone()

	for _, idx := range schedule(ops, sweep) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		op := ops[idx]
		res := OpResult{Index: idx, Operation: op}

		var next *models.Workflow

		if op == nil {
			err = fmt.Errorf("%w: nil operation", ErrInvalidOperation)
		} else {
			res.Type = op.Type()
			next, err = e.step(working, op)
		}

		if err != nil {
			res.err = &OperationError{Index: idx, Type: res.Type, Err: err}
			res.Error = err.Error()

			if !opts.ContinueOnError {
				result.Applied = []OpResult{}
				result.Skipped = []OpResult{}
				result.Rejected = &res
				working = workflow.Clone()

				break
			}

			result.Skipped = append(result.Skipped, res)

			continue
		}

		working = next
		result.Applied = append(result.Applied, res)
	}

	result.Workflow = working

	report, err := e.validator.ValidateWorkflow(ctx, working, reportOptions(opts.Validation))
	if err != nil {
		return nil, err
	}

	addBatchFindings(report, result)
	report.Sort()
	result.Report = report

	return result, nil
}

// step applies op to a scratch copy of working and returns the copy when the op and the check succeed.
func (e *Engine) step(working *models.Workflow, op Operation) (*models.Workflow, error) {
	if err := e.validate.Struct(op); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidOperation, err)
	}

	before := takeCheckpoint(working)
	scratch := working.Clone()

	if err := op.apply(&state{workflow: scratch, catalog: e.catalog}); err != nil {
		return nil, err
	}

	if err := before.verify(scratch); err != nil {
		return nil, err
	}

	return scratch, nil
}

// schedule returns the order in which ops run.
func schedule(ops []Operation, sweep StaleSweep) []int {
	order := make([]int, 0, len(ops))

	var sweeps []int

	for i, op := range ops {
		if _, ok := op.(CleanStaleConnections); ok && sweep == SweepLast {
			sweeps = append(sweeps, i)

			continue
		}

		order = append(order, i)
	}

	return append(order, sweeps...)
}

func reportOptions(opts validation.Options) validation.Options {
	if !opts.ValidateNodes && !opts.ValidateConnections && !opts.ValidateExpressions {
		opts.ValidateConnections = true
		opts.ValidateExpressions = true
	}

	return opts
}

func addBatchFindings(report *models.ValidationReport, result *Result) {
	target := models.FindingTarget{Kind: models.TargetWorkflow}

	if result.Rejected != nil {
		report.Add(models.Finding{
			Severity: models.SeverityError,
			Code:     models.CodePatchRejected,
			Target:   target,
			Message:  result.Rejected.err.Error() + "; no operation was applied",
		})
	}

	for _, skipped := range result.Skipped {
		report.Add(models.Finding{
			Severity: models.SeverityWarning,
			Code:     models.CodePatchSkipped,
			Target:   target,
			Message:  skipped.err.Error() + "; skipped",
		})
	}
}
