package models

// Complexity is the rough effort class of a workflow template.
type Complexity string

const (
	ComplexitySimple  Complexity = "simple"
	ComplexityMedium  Complexity = "medium"
	ComplexityComplex Complexity = "complex"
)

// TemplateMetadata is a catalog entry describing a reusable workflow.
type TemplateMetadata struct {
	ID                    string     `json:"id"`
	Name                  string     `json:"name"`
	Description           string     `json:"description"`
	NodeTypesUsed         []string   `json:"node_types_used"`
	Complexity            Complexity `json:"complexity"`
	RequiredServices      []string   `json:"required_services"`
	EstimatedSetupMinutes int        `json:"estimated_setup_minutes"`
	Views                 int        `json:"views"`
	Categories            []string   `json:"categories,omitempty"`
	Tasks                 []string   `json:"tasks,omitempty"`
	TargetAudience        string     `json:"target_audience,omitempty"`
	Workflow              *Workflow  `json:"workflow,omitempty"`
}
