// Package web provides HTTP request and response types for the workflow API.
package web

import (
	"encoding/json"

	"github.com/dukex/flowguard/pkg/autofix"
	"github.com/dukex/flowguard/pkg/models"
	"github.com/dukex/flowguard/pkg/patch"
	"github.com/dukex/flowguard/pkg/validation"
)

// WorkflowRequest is the body of workflow create and update calls.
type WorkflowRequest struct {
	ID            string                 `json:"id,omitempty"`
	Name          string                 `json:"name"                     validate:"required,min=1"`
	Nodes         []*models.WorkflowNode `json:"nodes"                    validate:"dive"`
	Connections   models.ConnectionMap   `json:"connections"`
	Settings      map[string]any         `json:"settings,omitempty"`
	Tags          []string               `json:"tags,omitempty"`
	ManualTrigger bool                   `json:"manual_trigger,omitempty"`
}

// Workflow converts the request into a workflow document.
func (r WorkflowRequest) Workflow() *models.Workflow {
	nodes := r.Nodes
	if nodes == nil {
		nodes = []*models.WorkflowNode{}
	}

	connections := r.Connections
	if connections == nil {
		connections = models.ConnectionMap{}
	}

	return &models.Workflow{
		ID:            r.ID,
		Name:          r.Name,
		Nodes:         nodes,
		Connections:   connections,
		Settings:      r.Settings,
		Tags:          r.Tags,
		ManualTrigger: r.ManualTrigger,
	}
}

// ValidationRequest selects validation phases. Profile has no default. Unset phases default to true.
type ValidationRequest struct {
	Profile             string `json:"profile"                        validate:"required,oneof=minimal runtime ai-friendly strict"`
	ValidateNodes       *bool  `json:"validate_nodes,omitempty"`
	ValidateConnections *bool  `json:"validate_connections,omitempty"`
	ValidateExpressions *bool  `json:"validate_expressions,omitempty"`
}

// Options converts the request into validator options.
func (r ValidationRequest) Options() validation.Options {
	return validation.Options{
		Profile:             validation.Profile(r.Profile),
		ValidateNodes:       boolOr(r.ValidateNodes, true),
		ValidateConnections: boolOr(r.ValidateConnections, true),
		ValidateExpressions: boolOr(r.ValidateExpressions, true),
	}
}

// ValidateDocumentRequest validates a workflow that is not stored.
type ValidateDocumentRequest struct {
	ValidationRequest

	Workflow *models.Workflow `json:"workflow" validate:"required"`
}

// ValidateNodeRequest validates one node configuration.
type ValidateNodeRequest struct {
	TypeID  string         `json:"type_id" validate:"required"`
	Config  map[string]any `json:"config"`
	Profile string         `json:"profile" validate:"required,oneof=minimal runtime ai-friendly strict"`
}

// PatchRequest applies a batch of operations.
type PatchRequest struct {
	Operations      json.RawMessage    `json:"operations"                 validate:"required"`
	ContinueOnError bool               `json:"continue_on_error"`
	ValidateOnly    bool               `json:"validate_only"`
	StaleSweep      string             `json:"stale_sweep,omitempty"      validate:"omitempty,oneof=last in_order"`
	Validation      *ValidationRequest `json:"validation,omitempty"`
}

// Decode returns the decoded operations and engine options.
func (r PatchRequest) Decode() ([]patch.Operation, patch.Options, error) {
	ops, err := patch.DecodeOperations(r.Operations)
	if err != nil {
		return nil, patch.Options{}, err
	}

	opts := patch.Options{
		ContinueOnError: r.ContinueOnError,
		ValidateOnly:    r.ValidateOnly,
		StaleSweep:      patch.StaleSweep(r.StaleSweep),
	}

	if r.Validation != nil {
		opts.Validation = r.Validation.Options()
	}

	return ops, opts, nil
}

// PatchDocumentRequest patches a workflow that is not stored.
type PatchDocumentRequest struct {
	PatchRequest

	Workflow *models.Workflow `json:"workflow" validate:"required"`
}

// AutofixRequest runs the autofix engine. Profile and threshold have no defaults.
type AutofixRequest struct {
	Profile             string   `json:"profile"              validate:"required,oneof=minimal runtime ai-friendly strict"`
	ConfidenceThreshold string   `json:"confidence_threshold" validate:"required,oneof=high medium low"`
	FixTypes            []string `json:"fix_types,omitempty"`
	MaxFixes            int      `json:"max_fixes,omitempty"  validate:"min=0"`
	DryRun              bool     `json:"dry_run"`
}

// Options converts the request into autofix options.
func (r AutofixRequest) Options() autofix.Options {
	fixTypes := make([]autofix.FixType, len(r.FixTypes))
	for i, t := range r.FixTypes {
		fixTypes[i] = autofix.FixType(t)
	}

	return autofix.Options{
		Profile:             validation.Profile(r.Profile),
		FixTypes:            fixTypes,
		ConfidenceThreshold: autofix.Confidence(r.ConfidenceThreshold),
		MaxFixes:            r.MaxFixes,
		DryRun:              r.DryRun,
	}
}

// AutofixDocumentRequest corrects a workflow that is not stored.
type AutofixDocumentRequest struct {
	AutofixRequest

	Workflow *models.Workflow `json:"workflow" validate:"required"`
}

// ValidationResponse wraps a report with its summary.
type ValidationResponse struct {
	Summary models.ReportSummary     `json:"summary"`
	Report  *models.ValidationReport `json:"report"`
}

func newValidationResponse(report *models.ValidationReport) ValidationResponse {
	return ValidationResponse{Summary: report.Summary(), Report: report}
}

func boolOr(v *bool, fallback bool) bool {
	if v == nil {
		return fallback
	}

	return *v
}
