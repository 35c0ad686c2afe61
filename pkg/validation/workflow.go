package validation

import (
	"context"
	"fmt"
	"strings"

	"github.com/dukex/flowguard/pkg/models"
)

// Options selects the validation phases and the node profile.
type Options struct {
	Profile             Profile `json:"profile"`
	ValidateNodes       bool    `json:"validate_nodes"`
	ValidateConnections bool    `json:"validate_connections"`
	ValidateExpressions bool    `json:"validate_expressions"`
}

// AllPhases returns options running every phase under the profile.
func AllPhases(profile Profile) Options {
	return Options{
		Profile:             profile,
		ValidateNodes:       true,
		ValidateConnections: true,
		ValidateExpressions: true,
	}
}

// WorkflowValidator composes structural, per-node and expression checks over a workflow.
// It never mutates the workflow.
type WorkflowValidator struct {
	catalog Catalog
	nodes   *NodeValidator
}

// NewWorkflowValidator creates a workflow validator backed by the catalog.
func NewWorkflowValidator(catalog Catalog) *WorkflowValidator {
	return &WorkflowValidator{
		catalog: catalog,
		nodes:   NewNodeValidator(catalog),
	}
}

// Nodes returns the node validator sharing this validator's catalog.
func (v *WorkflowValidator) Nodes() *NodeValidator {
	return v.nodes
}

// ValidateWorkflow runs the selected phases and returns the merged report sorted by severity.
// The error is reserved for invalid options and context cancellation.
func (v *WorkflowValidator) ValidateWorkflow(ctx context.Context, workflow *models.Workflow, opts Options) (*models.ValidationReport, error) {
	if workflow == nil {
		return nil, ErrNilWorkflow
	}

	if opts.ValidateNodes {
		if _, err := ParseProfile(string(opts.Profile)); err != nil {
			return nil, err
		}
	}

	report := models.NewValidationReport()
	byID := indexNodes(workflow)

	if opts.ValidateConnections || opts.ValidateNodes {
		v.checkTypes(report, workflow)
	}

	if opts.ValidateConnections {
		if err := v.checkStructure(ctx, report, workflow, byID); err != nil {
			return nil, err
		}
	}

	if opts.ValidateNodes {
		for _, node := range workflow.Nodes {
			if err := ctx.Err(); err != nil {
				return nil, err
			}

			if !node.IsEnabled() {
				continue
			}

			if def, ok := v.catalog.Lookup(node.TypeID); ok {
				checkNode(report, def, node, opts.Profile)
			}
		}
	}

	if opts.ValidateExpressions {
		checkExpressions(report, workflow)
	}

	report.Sort()

	return report, nil
}

func indexNodes(workflow *models.Workflow) map[string]*models.WorkflowNode {
	byID := make(map[string]*models.WorkflowNode, len(workflow.Nodes))

	for _, node := range workflow.Nodes {
		if _, dup := byID[node.ID]; !dup {
			byID[node.ID] = node
		}
	}

	return byID
}

// checkTypes reports unresolved node types: errors for enabled nodes, warnings for disabled ones.
func (v *WorkflowValidator) checkTypes(report *models.ValidationReport, workflow *models.Workflow) {
	for _, node := range workflow.Nodes {
		if _, ok := v.catalog.Lookup(node.TypeID); ok {
			continue
		}

		severity := models.SeverityError
		if !node.IsEnabled() {
			severity = models.SeverityWarning
		}

		finding := v.nodes.unknownType(node.TypeID, models.FindingTarget{Kind: models.TargetNode, NodeID: node.ID}, severity)
		finding.Message = fmt.Sprintf("node %q: %s", node.Name, finding.Message)
		report.Add(finding)
	}
}

func (v *WorkflowValidator) checkStructure(
	ctx context.Context,
	report *models.ValidationReport,
	workflow *models.Workflow,
	byID map[string]*models.WorkflowNode,
) error {
	checkDuplicates(report, workflow)

	triggers := v.triggerNodes(workflow)
	if len(triggers) == 0 && !workflow.ManualTrigger {
		report.Add(models.Finding{
			Severity: models.SeverityError,
			Code:     models.CodeMissingTrigger,
			Target:   models.FindingTarget{Kind: models.TargetWorkflow},
			Message:  "workflow has no enabled trigger node and is not marked as manually triggered",
		})
	}

	v.checkConnections(report, workflow, byID)
	v.checkLanguageModels(report, workflow)

	g := buildGraph(workflow, byID)
	roots := rootNodes(g, triggers)

	cycles, err := g.cycles(ctx, roots)
	if err != nil {
		return err
	}

	for _, path := range cycles {
		names := make([]string, len(path))
		for i, id := range path {
			names[i] = byID[id].Name
		}

		report.Add(models.Finding{
			Severity: models.SeverityError,
			Code:     models.CodeCycle,
			Target:   models.FindingTarget{Kind: models.TargetNode, NodeID: path[0]},
			Path:     path,
			Message:  "connection cycle: " + strings.Join(names, " -> "),
		})
	}

	reached, err := g.reachable(ctx, roots)
	if err != nil {
		return err
	}

	for _, id := range g.order {
		node := byID[id]
		if reached[id] || !node.IsEnabled() {
			continue
		}

		report.Add(models.Finding{
			Severity: models.SeverityWarning,
			Code:     models.CodeUnreachableNode,
			Target:   models.FindingTarget{Kind: models.TargetNode, NodeID: id},
			Message:  fmt.Sprintf("node %q is not reachable from any trigger", node.Name),
		})
	}

	return nil
}

func checkDuplicates(report *models.ValidationReport, workflow *models.Workflow) {
	ids := make(map[string]int)
	names := make(map[string]int)

	for _, node := range workflow.Nodes {
		ids[node.ID]++
		names[node.Name]++

		if ids[node.ID] == 2 {
			report.Add(models.Finding{
				Severity: models.SeverityError,
				Code:     models.CodeDuplicateNodeID,
				Target:   models.FindingTarget{Kind: models.TargetNode, NodeID: node.ID},
				Message:  fmt.Sprintf("node id %q is used more than once", node.ID),
			})
		}

		if names[node.Name] == 2 {
			report.Add(models.Finding{
				Severity: models.SeverityError,
				Code:     models.CodeDuplicateNodeName,
				Target:   models.FindingTarget{Kind: models.TargetNode, NodeID: node.ID},
				Message:  fmt.Sprintf("node name %q is used more than once", node.Name),
			})
		}
	}
}

// triggerNodes returns the enabled nodes whose type is a trigger, in workflow order.
func (v *WorkflowValidator) triggerNodes(workflow *models.Workflow) []string {
	var triggers []string

	for _, node := range workflow.Nodes {
		if !node.IsEnabled() {
			continue
		}

		if def, ok := v.catalog.Lookup(node.TypeID); ok && def.IsTrigger() {
			triggers = append(triggers, node.ID)
		}
	}

	return triggers
}

// rootNodes returns the DFS roots: trigger nodes, or for workflows without triggers the nodes with
// no inbound connection, or every node when all of them sit on cycles.
func rootNodes(g *graph, triggers []string) []string {
	if len(triggers) > 0 {
		return triggers
	}

	var roots []string

	for _, id := range g.order {
		if g.in[id] == 0 {
			roots = append(roots, id)
		}
	}

	if len(roots) == 0 {
		return g.order
	}

	return roots
}

func (v *WorkflowValidator) checkConnections(
	report *models.ValidationReport,
	workflow *models.Workflow,
	byID map[string]*models.WorkflowNode,
) {
	for _, c := range workflow.Connections.All() {
		target := models.FindingTarget{Kind: models.TargetConnection, Connection: &c}

		source, sink := byID[c.SourceNodeID], byID[c.TargetNodeID]
		if source == nil || sink == nil {
			missing := c.SourceNodeID
			if source != nil {
				missing = c.TargetNodeID
			}

			report.Add(models.Finding{
				Severity: models.SeverityError,
				Code:     models.CodeDanglingConnection,
				Target:   target,
				FixRef:   models.FixStaleConnection,
				Message:  fmt.Sprintf("connection %s references missing node %q", c.Key(), missing),
			})

			continue
		}

		if def, ok := v.catalog.Lookup(source.TypeID); ok {
			if finding, bad := checkBranch(def, source, c, target); bad {
				report.Add(finding)
			}

			if !def.HasOutput(c.SourcePort) {
				report.Add(models.Finding{
					Severity: models.SeverityError,
					Code:     models.CodeInvalidOutputPort,
					Target:   target,
					Message:  fmt.Sprintf("node %q has no output port %q (connection %s)", source.Name, c.SourcePort, c.Key()),
				})
			}
		}

		if def, ok := v.catalog.Lookup(sink.TypeID); ok && !def.HasInput(c.TargetPort) {
			report.Add(models.Finding{
				Severity: models.SeverityError,
				Code:     models.CodeInvalidInputPort,
				Target:   target,
				Message:  fmt.Sprintf("node %q has no input port %q (connection %s)", sink.Name, c.TargetPort, c.Key()),
			})
		}
	}
}

func checkBranch(def *models.NodeDefinition, source *models.WorkflowNode, c models.Connection, target models.FindingTarget) (models.Finding, bool) {
	finding := models.Finding{
		Severity: models.SeverityError,
		Target:   target,
		FixRef:   models.FixBranchInference,
	}

	carriesItems := !models.IsSubNodePort(c.SourcePort)

	switch {
	case def.IsBranching() && carriesItems && c.Branch == "":
		finding.Code = models.CodeMissingBranch
		finding.Message = fmt.Sprintf("connection %s from branching node %q has no branch (expected one of %s)",
			c.Key(), source.Name, strings.Join(def.Branches, ", "))
	case def.IsBranching() && carriesItems && !def.HasBranch(c.Branch):
		finding.Code = models.CodeInvalidBranch
		finding.Message = fmt.Sprintf("connection %s uses branch %q, node %q declares %s",
			c.Key(), c.Branch, source.Name, strings.Join(def.Branches, ", "))
	case !def.IsBranching() && c.Branch != "":
		finding.Code = models.CodeUnexpectedBranch
		finding.Message = fmt.Sprintf("connection %s has branch %q but node %q is not a branching node",
			c.Key(), c.Branch, source.Name)
	default:
		return finding, false
	}

	return finding, true
}

// checkLanguageModels requires a connected language model for every enabled node accepting one.
func (v *WorkflowValidator) checkLanguageModels(report *models.ValidationReport, workflow *models.Workflow) {
	for _, node := range workflow.Nodes {
		if !node.IsEnabled() {
			continue
		}

		def, ok := v.catalog.Lookup(node.TypeID)
		if !ok || len(def.Inputs) == 0 || !def.HasInput(models.PortAILanguageModel) {
			continue
		}

		connected := false

		for _, c := range workflow.Connections.To(node.ID) {
			if c.TargetPort == models.PortAILanguageModel && workflow.HasNode(c.SourceNodeID) {
				connected = true

				break
			}
		}

		if !connected {
			report.Add(models.Finding{
				Severity: models.SeverityError,
				Code:     models.CodeMissingLanguageModel,
				Target:   models.FindingTarget{Kind: models.TargetNode, NodeID: node.ID},
				Message:  fmt.Sprintf("AI node %q needs a language model connected to its %s input", node.Name, models.PortAILanguageModel),
			})
		}
	}
}
