package catalog

import (
	"fmt"
	"slices"
	"strings"

	"github.com/dukex/flowguard/pkg/models"
)

// Template fields usable in TemplateSearchOptions.Fields.
const (
	FieldName        = "name"
	FieldDescription = "description"
	FieldNodes       = "nodes"
	FieldServices    = "services"
)

// TemplateSearchOptions configures SearchTemplates.
type TemplateSearchOptions struct {
	Fields []string // Fields to match against; empty means name and description
	Mode   SearchMode
	Limit  int
	Offset int
}

// SearchTemplates ranks templates against the query. An empty query returns the most viewed templates.
func (idx *Index) SearchTemplates(query string, opts TemplateSearchOptions) ([]*models.TemplateMetadata, error) {
	mode, err := ParseSearchMode(string(opts.Mode))
	if err != nil {
		return nil, err
	}

	fields := opts.Fields
	if len(fields) == 0 {
		fields = []string{FieldName, FieldDescription}
	}

	q := normalize(query)

	scored := make([]scoredHit[*models.TemplateMetadata], 0)

	for _, tpl := range idx.templates {
		rank := rankLoose

		if q != "" {
			var ok bool

			rank, ok = templateDocument(tpl, fields).rank(q, mode)
			if !ok {
				continue
			}
		}

		scored = append(scored, scoredHit[*models.TemplateMetadata]{
			item: tpl, rank: rank, popularity: tpl.Views, id: tpl.ID,
		})
	}

	return page(sortHits(scored), opts.Offset, opts.Limit), nil
}

func templateDocument(tpl *models.TemplateMetadata, fields []string) document {
	var (
		names []string
		text  []string
	)

	if slices.Contains(fields, FieldName) {
		names = append(names, strings.ToLower(tpl.Name), strings.ToLower(tpl.ID))
	}

	if slices.Contains(fields, FieldDescription) {
		text = append(text, tpl.Description)
	}

	if slices.Contains(fields, FieldNodes) {
		for _, typeID := range tpl.NodeTypesUsed {
			text = append(text, typeID, shortName(typeID))
		}
	}

	if slices.Contains(fields, FieldServices) {
		text = append(text, tpl.RequiredServices...)
	}

	return newDocument(names, strings.ToLower(strings.Join(text, " ")))
}

// TemplateFilter restricts SearchTemplatesByMetadata. Zero values are ignored.
type TemplateFilter struct {
	Category        string
	Complexity      models.Complexity
	MinSetupMinutes int
	MaxSetupMinutes int
	RequiredService string
	TargetAudience  string
	Limit           int
	Offset          int
}

// SearchTemplatesByMetadata returns templates matching every set filter, most viewed first.
func (idx *Index) SearchTemplatesByMetadata(filter TemplateFilter) []*models.TemplateMetadata {
	scored := make([]scoredHit[*models.TemplateMetadata], 0)

	for _, tpl := range idx.templates {
		if !filter.matches(tpl) {
			continue
		}

		scored = append(scored, scoredHit[*models.TemplateMetadata]{item: tpl, popularity: tpl.Views, id: tpl.ID})
	}

	return page(sortHits(scored), filter.Offset, filter.Limit)
}

func (f TemplateFilter) matches(tpl *models.TemplateMetadata) bool {
	if f.Category != "" && !containsFold(tpl.Categories, f.Category) {
		return false
	}

	if f.Complexity != "" && tpl.Complexity != f.Complexity {
		return false
	}

	if f.MinSetupMinutes > 0 && tpl.EstimatedSetupMinutes < f.MinSetupMinutes {
		return false
	}

	if f.MaxSetupMinutes > 0 && tpl.EstimatedSetupMinutes > f.MaxSetupMinutes {
		return false
	}

	if f.RequiredService != "" && !containsFold(tpl.RequiredServices, f.RequiredService) {
		return false
	}

	if f.TargetAudience != "" && !strings.Contains(strings.ToLower(tpl.TargetAudience), strings.ToLower(f.TargetAudience)) {
		return false
	}

	return true
}

// TemplatesForTask returns the curated templates tagged with the task key, most viewed first.
func (idx *Index) TemplatesForTask(task string, limit int) []*models.TemplateMetadata {
	scored := make([]scoredHit[*models.TemplateMetadata], 0)

	for _, tpl := range idx.templates {
		if containsFold(tpl.Tasks, task) {
			scored = append(scored, scoredHit[*models.TemplateMetadata]{item: tpl, popularity: tpl.Views, id: tpl.ID})
		}
	}

	return page(sortHits(scored), 0, limit)
}

// ListNodeTemplates returns templates using any of the given node types, most viewed first.
func (idx *Index) ListNodeTemplates(nodeTypes []string, limit int) []*models.TemplateMetadata {
	scored := make([]scoredHit[*models.TemplateMetadata], 0)

	for _, tpl := range idx.templates {
		for _, typeID := range nodeTypes {
			if slices.Contains(tpl.NodeTypesUsed, typeID) {
				scored = append(scored, scoredHit[*models.TemplateMetadata]{item: tpl, popularity: tpl.Views, id: tpl.ID})

				break
			}
		}
	}

	return page(sortHits(scored), 0, limit)
}

// TemplateMode selects how much of a template Template returns.
type TemplateMode string

const (
	TemplateModeNodesOnly TemplateMode = "nodes_only" // Node list without parameters or connections
	TemplateModeStructure TemplateMode = "structure"  // Nodes with positions and connections, no parameters
	TemplateModeFull      TemplateMode = "full"       // Complete workflow body
)

// ParseTemplateMode parses a mode name. Empty means full.
func ParseTemplateMode(s string) (TemplateMode, error) {
	switch TemplateMode(s) {
	case "":
		return TemplateModeFull, nil
	case TemplateModeNodesOnly, TemplateModeStructure, TemplateModeFull:
		return TemplateMode(s), nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidTemplateMode, s)
	}
}

// Template returns a copy of the template trimmed to the requested mode.
func (idx *Index) Template(id string, mode TemplateMode) (*models.TemplateMetadata, error) {
	mode, err := ParseTemplateMode(string(mode))
	if err != nil {
		return nil, err
	}

	tpl, ok := idx.templatesByID[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrTemplateNotFound, id)
	}

	out := *tpl
	out.Workflow = tpl.Workflow.Clone()

	if out.Workflow == nil {
		return &out, nil
	}

	switch mode {
	case TemplateModeNodesOnly:
		out.Workflow.Connections = nil
		out.Workflow.Settings = nil

		for _, node := range out.Workflow.Nodes {
			node.Parameters = nil
			node.Position = models.Position{}
		}
	case TemplateModeStructure:
		for _, node := range out.Workflow.Nodes {
			node.Parameters = nil
		}
	case TemplateModeFull:
	}

	return &out, nil
}

func page[T any](items []T, offset, limit int) []T {
	limit = clampLimit(limit)

	if offset < 0 {
		offset = 0
	}

	if offset >= len(items) {
		return []T{}
	}

	end := min(offset+limit, len(items))

	return items[offset:end]
}

func containsFold(values []string, want string) bool {
	for _, v := range values {
		if strings.EqualFold(v, want) {
			return true
		}
	}

	return false
}
