package autofix

import (
	"fmt"
	"slices"
	"strings"

	"github.com/dukex/flowguard/pkg/models"
	"github.com/dukex/flowguard/pkg/patch"
	"github.com/dukex/flowguard/pkg/validation"
)

const maxTypeSuggestions = 3

// proposer maps findings to fixes for one workflow.
type proposer struct {
	catalog  validation.Catalog
	workflow *models.Workflow
}

func (p *proposer) propose(f models.Finding) (Fix, bool) {
	fix := Fix{Type: FixType(f.FixRef), Finding: f}

	var ok bool

	switch fix.Type {
	case FixTypeVersionUpgrade:
		ok = p.versionUpgrade(&fix)
	case FixBranchInference:
		ok = p.branchInference(&fix)
	case FixExpressionFormat:
		ok = p.expressionFormat(&fix)
	case FixStaleConnection:
		ok = p.staleConnection(&fix)
	case FixNodeTypeCorrection:
		ok = p.nodeTypeCorrection(&fix)
	}

	return fix, ok
}

func (p *proposer) versionUpgrade(fix *Fix) bool {
	node := p.workflow.NodeByID(fix.Finding.Target.NodeID)
	if node == nil {
		return false
	}

	def, ok := p.catalog.Lookup(node.TypeID)
	if !ok || node.TypeVersion >= def.Version {
		return false
	}

	fix.Confidence = ConfidenceHigh
	if node.TypeVersion < def.MinVersion {
		fix.Confidence = ConfidenceMedium
	}

	fix.Description = fmt.Sprintf("upgrade %q from typeVersion %v to %v", node.Name, node.TypeVersion, def.Version)
	fix.Operations = []patch.Operation{
		patch.UpdateNode{Node: node.ID, Updates: map[string]any{"type_version": def.Version}},
	}

	return true
}

func (p *proposer) branchInference(fix *Fix) bool {
	c := fix.Finding.Target.Connection
	if c == nil {
		return false
	}

	source := p.workflow.NodeByID(c.SourceNodeID)
	if source == nil {
		return false
	}

	def, ok := p.catalog.Lookup(source.TypeID)
	if !ok || !def.HasOutput(c.SourcePort) {
		return false
	}

	var (
		branch     string
		confidence Confidence
	)

	switch {
	case !def.IsBranching():
		branch, confidence = "", ConfidenceHigh
	case caseInsensitiveBranch(def, c.Branch) != "":
		branch, confidence = caseInsensitiveBranch(def, c.Branch), ConfidenceHigh
	default:
		branch, confidence, ok = p.inferBranch(def, *c)
		if !ok {
			return false
		}
	}

	replacement := *c
	replacement.Branch = branch

	fix.Confidence = confidence
	fix.Description = fmt.Sprintf("retag connection %s as %s", c.Key(), replacement.Key())
	fix.Operations = []patch.Operation{removeConnection(*c)}

	if !p.workflow.Connections.Has(replacement) {
		fix.Operations = append(fix.Operations, patch.AddConnection{
			Source:     replacement.SourceNodeID,
			SourcePort: replacement.SourcePort,
			Target:     replacement.TargetNodeID,
			TargetPort: replacement.TargetPort,
			Branch:     replacement.Branch,
		})
	}

	return true
}

// caseInsensitiveBranch returns the declared branch equal to branch ignoring case, when branch differs only in case.
func caseInsensitiveBranch(def *models.NodeDefinition, branch string) string {
	if branch == "" {
		return ""
	}

	for _, declared := range def.Branches {
		if declared != branch && strings.EqualFold(declared, branch) {
			return declared
		}
	}

	return ""
}

// inferBranch scores every untagged connection leaving the same output of the source together: the
// i-th of them gets the i-th declared branch the workflow does not use yet, whatever other fixes are
// applied. Only a single untagged connection facing a single free branch is medium confidence.
func (p *proposer) inferBranch(def *models.NodeDefinition, c models.Connection) (string, Confidence, bool) {
	used := make(map[string]bool)

	var untagged []models.Connection

	for _, other := range p.workflow.Connections.From(c.SourceNodeID) {
		if other.SourcePort != c.SourcePort {
			continue
		}

		switch {
		case def.HasBranch(other.Branch):
			used[other.Branch] = true
		case caseInsensitiveBranch(def, other.Branch) != "":
			used[caseInsensitiveBranch(def, other.Branch)] = true
		default:
			untagged = append(untagged, other)
		}
	}

	var free []string

	for _, branch := range def.Branches {
		if !used[branch] {
			free = append(free, branch)
		}
	}

	pos := slices.Index(untagged, c)
	if pos < 0 || pos >= len(free) {
		return "", "", false
	}

	if len(untagged) == 1 && len(free) == 1 {
		return free[pos], ConfidenceMedium, true
	}

	return free[pos], ConfidenceLow, true
}

func (p *proposer) expressionFormat(fix *Fix) bool {
	node := p.workflow.NodeByID(fix.Finding.Target.NodeID)
	if node == nil || len(fix.Finding.Path) == 0 {
		return false
	}

	value, ok := lookupPath(node.Parameters, fix.Finding.Path).(string)
	if !ok || strings.HasPrefix(value, "=") {
		return false
	}

	path := "parameters." + strings.Join(fix.Finding.Path, ".")

	fix.Confidence = ConfidenceHigh
	fix.Description = fmt.Sprintf("mark %s of %q as an expression", strings.Join(fix.Finding.Path, "."), node.Name)
	fix.Operations = []patch.Operation{
		patch.UpdateNode{Node: node.ID, Updates: map[string]any{path: "=" + value}},
	}

	return true
}

func (p *proposer) staleConnection(fix *Fix) bool {
	c := fix.Finding.Target.Connection
	if c == nil {
		return false
	}

	fix.Confidence = ConfidenceHigh
	fix.Description = "remove connection " + c.Key()
	fix.Operations = []patch.Operation{removeConnection(*c)}

	return true
}

func (p *proposer) nodeTypeCorrection(fix *Fix) bool {
	node := p.workflow.NodeByID(fix.Finding.Target.NodeID)
	if node == nil {
		return false
	}

	suggestions := p.catalog.SuggestTypes(node.TypeID, maxTypeSuggestions)
	if len(suggestions) == 0 {
		return false
	}

	def, ok := p.catalog.Lookup(suggestions[0])
	if !ok {
		return false
	}

	fix.Confidence = ConfidenceMedium
	if len(suggestions) > 1 {
		fix.Confidence = ConfidenceLow
	}

	fix.Description = fmt.Sprintf("change type of %q from %s to %s", node.Name, node.TypeID, def.TypeID)
	fix.Operations = []patch.Operation{
		patch.UpdateNode{Node: node.ID, Updates: map[string]any{"type_id": def.TypeID, "type_version": def.Version}},
	}

	return true
}

func removeConnection(c models.Connection) patch.Operation {
	return patch.RemoveConnection{
		Source:     c.SourceNodeID,
		SourcePort: c.SourcePort,
		Target:     c.TargetNodeID,
		TargetPort: c.TargetPort,
		Branch:     c.Branch,
	}
}

// lookupPath follows a parameter path through objects and lists.
func lookupPath(value any, path []string) any {
	for _, key := range path {
		switch v := value.(type) {
		case map[string]any:
			value = v[key]
		case []any:
			var idx int
			if _, err := fmt.Sscanf(key, "%d", &idx); err != nil || idx < 0 || idx >= len(v) {
				return nil
			}

			value = v[idx]
		default:
			return nil
		}
	}

	return value
}
