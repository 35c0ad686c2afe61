package models

import "sort"

// Severity ranks a validation finding.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
	SeverityInfo    Severity = "info"
)

// Rank orders severities: error < warning < info.
func (s Severity) Rank() int {
	switch s {
	case SeverityError:
		return 0
	case SeverityWarning:
		return 1
	default:
		return 2
	}
}

// TargetKind identifies what a finding is about.
type TargetKind string

const (
	TargetWorkflow   TargetKind = "workflow"
	TargetNode       TargetKind = "node"
	TargetConnection TargetKind = "connection"
)

// FindingTarget points a finding at the workflow, a node or a connection.
type FindingTarget struct {
	Kind       TargetKind  `json:"kind"`
	NodeID     string      `json:"node_id,omitempty"`
	Connection *Connection `json:"connection,omitempty"`
}

// Finding codes shared by the validators and the autofix engine.
const (
	CodeUnknownNodeType      = "unknown_node_type"
	CodeMissingTrigger       = "missing_trigger"
	CodeDanglingConnection   = "dangling_connection"
	CodeCycle                = "cycle"
	CodeMissingBranch        = "missing_branch"
	CodeInvalidBranch        = "invalid_branch"
	CodeUnexpectedBranch     = "unexpected_branch"
	CodeInvalidInputPort     = "invalid_input_port"
	CodeInvalidOutputPort    = "invalid_output_port"
	CodeMissingLanguageModel = "missing_language_model"
	CodeUnreachableNode      = "unreachable_node"
	CodeDuplicateNodeID      = "duplicate_node_id"
	CodeDuplicateNodeName    = "duplicate_node_name"
	CodeMissingRequired      = "missing_required"
	CodeMissingOptional      = "missing_optional"
	CodeInvalidType          = "invalid_type"
	CodeInvalidValue         = "invalid_value"
	CodeUnknownProperty      = "unknown_property"
	CodeOutdatedTypeVersion  = "outdated_type_version"
	CodeUnsupportedVersion   = "unsupported_type_version"
	CodeExpressionSyntax     = "expression_syntax"
	CodeExpressionUnbalanced = "expression_unbalanced"
	CodeExpressionReference  = "expression_unresolved_reference"
	CodeExpressionNoPrefix   = "expression_missing_prefix"
	CodePatchRejected        = "patch_rejected"
	CodePatchSkipped         = "patch_skipped"
)

// Autofix types referenced by Finding.FixRef.
const (
	FixTypeVersionUpgrade = "typeversion-upgrade"
	FixBranchInference    = "branch-inference"
	FixExpressionFormat   = "expression-format"
	FixStaleConnection    = "stale-connection"
	FixNodeTypeCorrection = "node-type-correction"
)

// Finding is one validation result.
type Finding struct {
	Severity Severity      `json:"severity"`
	Code     string        `json:"code"`
	Target   FindingTarget `json:"target"`
	Message  string        `json:"message"`
	Path     []string      `json:"path,omitempty"`    // Cycle path or parameter path
	Field    string        `json:"field,omitempty"`   // Parameter name for configuration findings
	FixRef   string        `json:"fix_ref,omitempty"` // Autofix type able to correct the finding
}

// ValidationReport is the ordered result of a validation call.
type ValidationReport struct {
	Findings []Finding `json:"findings"`
}

// NewValidationReport returns an empty report.
func NewValidationReport() *ValidationReport {
	return &ValidationReport{Findings: []Finding{}}
}

// Add appends a finding.
func (r *ValidationReport) Add(f Finding) {
	r.Findings = append(r.Findings, f)
}

// Merge appends every finding of other.
func (r *ValidationReport) Merge(other *ValidationReport) {
	if other == nil {
		return
	}

	r.Findings = append(r.Findings, other.Findings...)
}

// Sort orders findings error > warning > info, keeping insertion order within a severity.
func (r *ValidationReport) Sort() {
	sort.SliceStable(r.Findings, func(i, j int) bool {
		return r.Findings[i].Severity.Rank() < r.Findings[j].Severity.Rank()
	})
}

// Valid reports whether the report has no errors.
func (r *ValidationReport) Valid() bool {
	return r.Count(SeverityError) == 0
}

// Count returns the number of findings with the given severity.
func (r *ValidationReport) Count(severity Severity) int {
	count := 0

	for _, f := range r.Findings {
		if f.Severity == severity {
			count++
		}
	}

	return count
}

// Errors returns the error findings.
func (r *ValidationReport) Errors() []Finding {
	return r.filter(SeverityError)
}

// Warnings returns the warning findings.
func (r *ValidationReport) Warnings() []Finding {
	return r.filter(SeverityWarning)
}

// ByCode returns the findings with the given code.
func (r *ValidationReport) ByCode(code string) []Finding {
	var out []Finding

	for _, f := range r.Findings {
		if f.Code == code {
			out = append(out, f)
		}
	}

	return out
}

func (r *ValidationReport) filter(severity Severity) []Finding {
	var out []Finding

	for _, f := range r.Findings {
		if f.Severity == severity {
			out = append(out, f)
		}
	}

	return out
}

// ReportSummary is a compact count of a report's findings.
type ReportSummary struct {
	Valid    bool `json:"valid"`
	Errors   int  `json:"errors"`
	Warnings int  `json:"warnings"`
	Infos    int  `json:"infos"`
}

// Summary counts the report's findings.
func (r *ValidationReport) Summary() ReportSummary {
	return ReportSummary{
		Valid:    r.Valid(),
		Errors:   r.Count(SeverityError),
		Warnings: r.Count(SeverityWarning),
		Infos:    r.Count(SeverityInfo),
	}
}
