// Package catalog provides the immutable node-definition and template index used for lookups and search.
package catalog

import (
	"fmt"
	"sort"
	"strings"

	"github.com/dukex/flowguard/pkg/models"
)

const (
	DefaultLimit = 20
	MaxLimit     = 100
	MaxExamples  = 2
)

// Index is the in-memory catalog. It is built once and never mutated afterwards, so every method is
// safe for concurrent use without locking. Returned definitions are shared and must be treated as
// read-only.
type Index struct {
	nodes       []*models.NodeDefinition
	nodesByType map[string]*models.NodeDefinition

	templates     []*models.TemplateMetadata
	templatesByID map[string]*models.TemplateMetadata
	tasks         []string
}

// New builds an index from node definitions and templates.
func New(nodes []models.NodeDefinition, templates []models.TemplateMetadata) (*Index, error) {
	idx := &Index{
		nodes:         make([]*models.NodeDefinition, 0, len(nodes)),
		nodesByType:   make(map[string]*models.NodeDefinition, len(nodes)),
		templates:     make([]*models.TemplateMetadata, 0, len(templates)),
		templatesByID: make(map[string]*models.TemplateMetadata, len(templates)),
	}

	for i := range nodes {
		def := nodes[i]

		if err := checkDefinition(&def); err != nil {
			return nil, err
		}

		if _, exists := idx.nodesByType[def.TypeID]; exists {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateNodeType, def.TypeID)
		}

		idx.nodes = append(idx.nodes, &def)
		idx.nodesByType[def.TypeID] = &def
	}

	taskSet := make(map[string]struct{})

	for i := range templates {
		tpl := templates[i]

		if tpl.ID == "" {
			return nil, fmt.Errorf("%w: template without id", ErrInvalidDefinition)
		}

		if _, exists := idx.templatesByID[tpl.ID]; exists {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateTemplateID, tpl.ID)
		}

		if tpl.Complexity == "" {
			tpl.Complexity = models.ComplexitySimple
		}

		if len(tpl.NodeTypesUsed) == 0 && tpl.Workflow != nil {
			tpl.NodeTypesUsed = nodeTypesOf(tpl.Workflow)
		}

		for _, task := range tpl.Tasks {
			taskSet[task] = struct{}{}
		}

		idx.templates = append(idx.templates, &tpl)
		idx.templatesByID[tpl.ID] = &tpl
	}

	sort.Slice(idx.nodes, func(i, j int) bool { return idx.nodes[i].TypeID < idx.nodes[j].TypeID })
	sort.Slice(idx.templates, func(i, j int) bool { return idx.templates[i].ID < idx.templates[j].ID })

	for task := range taskSet {
		idx.tasks = append(idx.tasks, task)
	}

	sort.Strings(idx.tasks)

	return idx, nil
}

func checkDefinition(def *models.NodeDefinition) error {
	if def.TypeID == "" {
		return fmt.Errorf("%w: node definition without type_id", ErrInvalidDefinition)
	}

	if def.Category == "" {
		return fmt.Errorf("%w: %s has no category", ErrInvalidDefinition, def.TypeID)
	}

	known := false

	for _, category := range models.Categories {
		if def.Category == category {
			known = true

			break
		}
	}

	if !known {
		return fmt.Errorf("%w: %s has unknown category %q", ErrInvalidDefinition, def.TypeID, def.Category)
	}

	if def.Version == 0 {
		def.Version = 1
	}

	if def.MinVersion == 0 || def.MinVersion > def.Version {
		def.MinVersion = 1
	}

	if def.DisplayName == "" {
		def.DisplayName = shortName(def.TypeID)
	}

	if def.Package == "" {
		def.Package = packageName(def.TypeID)
	}

	seen := make(map[string]struct{}, len(def.Properties))
	for _, p := range def.Properties {
		if p.Name == "" {
			return fmt.Errorf("%w: %s has a property without name", ErrInvalidDefinition, def.TypeID)
		}

		if _, dup := seen[p.Name]; dup {
			return fmt.Errorf("%w: %s declares property %q twice", ErrInvalidDefinition, def.TypeID, p.Name)
		}

		seen[p.Name] = struct{}{}
	}

	return nil
}

// Node returns the definition for a type id.
func (idx *Index) Node(typeID string) (*models.NodeDefinition, error) {
	def, ok := idx.nodesByType[typeID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNodeNotFound, typeID)
	}

	return def, nil
}

// Lookup returns the definition for a type id and whether it exists.
func (idx *Index) Lookup(typeID string) (*models.NodeDefinition, bool) {
	def, ok := idx.nodesByType[typeID]

	return def, ok
}

// NodeCount returns the number of node definitions.
func (idx *Index) NodeCount() int {
	return len(idx.nodes)
}

// TemplateCount returns the number of templates.
func (idx *Index) TemplateCount() int {
	return len(idx.templates)
}

// Tasks returns the task keys used by templates, sorted.
func (idx *Index) Tasks() []string {
	out := make([]string, len(idx.tasks))
	copy(out, idx.tasks)

	return out
}

// NodeFilter restricts ListNodes.
type NodeFilter struct {
	Category models.CategoryType
	Package  string
	IsAITool *bool
	Limit    int
}

// ListNodes returns definitions matching every set filter, ordered by popularity then type id.
func (idx *Index) ListNodes(filter NodeFilter) []*models.NodeDefinition {
	limit := clampLimit(filter.Limit)
	out := make([]*models.NodeDefinition, 0, limit)

	for _, def := range idx.byPopularity() {
		if filter.Category != "" && def.Category != filter.Category {
			continue
		}

		if filter.Package != "" && !strings.EqualFold(def.Package, filter.Package) {
			continue
		}

		if filter.IsAITool != nil && def.IsAITool != *filter.IsAITool {
			continue
		}

		out = append(out, def)

		if len(out) == limit {
			break
		}
	}

	return out
}

func (idx *Index) byPopularity() []*models.NodeDefinition {
	sorted := make([]*models.NodeDefinition, len(idx.nodes))
	copy(sorted, idx.nodes)

	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Popularity > sorted[j].Popularity
	})

	return sorted
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return DefaultLimit
	}

	if limit > MaxLimit {
		return MaxLimit
	}

	return limit
}

// shortName returns the part of a type id after the last dot.
func shortName(typeID string) string {
	if i := strings.LastIndex(typeID, "."); i >= 0 {
		return typeID[i+1:]
	}

	return typeID
}

// packageName returns the part of a type id before the last dot.
func packageName(typeID string) string {
	if i := strings.LastIndex(typeID, "."); i >= 0 {
		return typeID[:i]
	}

	return ""
}

func nodeTypesOf(workflow *models.Workflow) []string {
	seen := make(map[string]struct{})

	var out []string

	for _, node := range workflow.Nodes {
		if _, ok := seen[node.TypeID]; ok {
			continue
		}

		seen[node.TypeID] = struct{}{}
		out = append(out, node.TypeID)
	}

	sort.Strings(out)

	return out
}
