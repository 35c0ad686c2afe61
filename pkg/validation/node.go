package validation

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/dukex/flowguard/pkg/models"
	"github.com/robfig/cron/v3"
	"github.com/xeipuuv/gojsonschema"
)

const maxTypeSuggestions = 3

// Catalog is the lookup surface the validators need from the catalog index.
type Catalog interface {
	Lookup(typeID string) (*models.NodeDefinition, bool)
	SuggestTypes(typeID string, n int) []string
}

// NodeValidator checks one node configuration against its catalog definition.
// It holds no state besides the catalog, so identical inputs always produce identical reports.
type NodeValidator struct {
	catalog Catalog
}

// NewNodeValidator creates a node validator backed by the catalog.
func NewNodeValidator(catalog Catalog) *NodeValidator {
	return &NodeValidator{catalog: catalog}
}

// ValidateNode validates a parameter set for a node type under the profile.
// An unknown type is an error finding under every profile.
func (v *NodeValidator) ValidateNode(typeID string, config map[string]any, profile Profile) (*models.ValidationReport, error) {
	if _, err := ParseProfile(string(profile)); err != nil {
		return nil, err
	}

	report := models.NewValidationReport()
	target := models.FindingTarget{Kind: models.TargetNode}

	def, ok := v.catalog.Lookup(typeID)
	if !ok {
		report.Add(v.unknownType(typeID, target, models.SeverityError))

		return report, nil
	}

	checkConfig(report, def, config, profile, target)
	report.Sort()

	return report, nil
}

// ValidateWorkflowNode validates a workflow node, including its typeVersion against the catalog.
func (v *NodeValidator) ValidateWorkflowNode(node *models.WorkflowNode, profile Profile) (*models.ValidationReport, error) {
	if _, err := ParseProfile(string(profile)); err != nil {
		return nil, err
	}

	report := models.NewValidationReport()
	target := models.FindingTarget{Kind: models.TargetNode, NodeID: node.ID}

	def, ok := v.catalog.Lookup(node.TypeID)
	if !ok {
		report.Add(v.unknownType(node.TypeID, target, models.SeverityError))

		return report, nil
	}

	checkNode(report, def, node, profile)
	report.Sort()

	return report, nil
}

func (v *NodeValidator) unknownType(typeID string, target models.FindingTarget, severity models.Severity) models.Finding {
	finding := models.Finding{
		Severity: severity,
		Code:     models.CodeUnknownNodeType,
		Target:   target,
		Field:    "type_id",
		Message:  fmt.Sprintf("unknown node type %q", typeID),
	}

	if suggestions := v.catalog.SuggestTypes(typeID, maxTypeSuggestions); len(suggestions) > 0 {
		finding.Message += "; did you mean " + quoteAll(suggestions)
		finding.FixRef = models.FixNodeTypeCorrection
	}

	return finding
}

func checkNode(report *models.ValidationReport, def *models.NodeDefinition, node *models.WorkflowNode, profile Profile) {
	target := models.FindingTarget{Kind: models.TargetNode, NodeID: node.ID}

	checkVersion(report, def, node, target)
	checkConfig(report, def, node.Parameters, profile, target)
}

func checkVersion(report *models.ValidationReport, def *models.NodeDefinition, node *models.WorkflowNode, target models.FindingTarget) {
	switch {
	case node.TypeVersion > def.Version:
		report.Add(models.Finding{
			Severity: models.SeverityError,
			Code:     models.CodeUnsupportedVersion,
			Target:   target,
			Field:    "type_version",
			Message: fmt.Sprintf("node %q uses typeVersion %s of %s, newer than the latest known %s",
				node.Name, formatVersion(node.TypeVersion), def.TypeID, formatVersion(def.Version)),
		})
	case node.TypeVersion < def.Version:
		report.Add(models.Finding{
			Severity: models.SeverityWarning,
			Code:     models.CodeOutdatedTypeVersion,
			Target:   target,
			Field:    "type_version",
			FixRef:   models.FixTypeVersionUpgrade,
			Message: fmt.Sprintf("node %q uses typeVersion %s of %s, latest is %s",
				node.Name, formatVersion(node.TypeVersion), def.TypeID, formatVersion(def.Version)),
		})
	}
}

func checkConfig(
	report *models.ValidationReport,
	def *models.NodeDefinition,
	config map[string]any,
	profile Profile,
	target models.FindingTarget,
) {
	checked := make([]models.PropertyDefinition, 0, len(def.Properties))
	values := make(map[string]any)

	for _, prop := range def.Properties {
		value, present := config[prop.Name]

		if isMissing(value, present) {
			if finding, ok := missingFinding(prop, profile, target); ok {
				report.Add(finding)
			}

			continue
		}

		if !profile.checksProperty(prop) || IsExpression(value) {
			continue
		}

		checked = append(checked, prop)
		values[prop.Name] = value
	}

	checkValues(report, checked, values, profile, target)

	if profile == ProfileStrict {
		for _, key := range sortedKeys(config) {
			if _, declared := def.Property(key); declared {
				continue
			}

			report.Add(models.Finding{
				Severity: models.SeverityWarning,
				Code:     models.CodeUnknownProperty,
				Target:   target,
				Field:    key,
				Message:  fmt.Sprintf("parameter %q is not declared by %s", key, def.TypeID),
			})
		}
	}
}

func missingFinding(prop models.PropertyDefinition, profile Profile, target models.FindingTarget) (models.Finding, bool) {
	finding := models.Finding{Target: target, Field: prop.Name}

	switch {
	case prop.HasDefault():
		return finding, false
	case prop.Required:
		finding.Severity = models.SeverityError
		finding.Code = models.CodeMissingRequired
		finding.Message = fmt.Sprintf("required parameter %q is missing", prop.Name)
	case prop.ExecutionRead && profile.requiresExecutionReads():
		finding.Severity = models.SeverityError
		finding.Code = models.CodeMissingRequired
		finding.Message = fmt.Sprintf("parameter %q is read at execution and has no value", prop.Name)
	case profile == ProfileStrict:
		finding.Severity = models.SeverityInfo
		finding.Code = models.CodeMissingOptional
		finding.Message = fmt.Sprintf("optional parameter %q is not set", prop.Name)
	default:
		return finding, false
	}

	return finding, true
}

// checkValues type-checks present values with a JSON schema generated from the property definitions.
func checkValues(
	report *models.ValidationReport,
	props []models.PropertyDefinition,
	values map[string]any,
	profile Profile,
	target models.FindingTarget,
) {
	severity := profile.typeMismatchSeverity()
	if severity == "" || len(props) == 0 {
		return
	}

	problems := make(map[string][]models.Finding)

	result, err := gojsonschema.Validate(
		gojsonschema.NewGoLoader(models.JSONSchema(props)),
		gojsonschema.NewGoLoader(values),
	)
	if err != nil {
		report.Add(models.Finding{
			Severity: severity,
			Code:     models.CodeInvalidValue,
			Target:   target,
			Message:  "parameters could not be checked: " + err.Error(),
		})

		return
	}

	if !result.Valid() {
		for _, e := range result.Errors() {
			field := strings.SplitN(e.Field(), ".", 2)[0]

			code := models.CodeInvalidType
			if e.Type() == "enum" {
				code = models.CodeInvalidValue
			}

			problems[field] = append(problems[field], models.Finding{
				Severity: severity,
				Code:     code,
				Target:   target,
				Field:    field,
				Message:  fmt.Sprintf("parameter %q: %s", field, e.Description()),
			})
		}
	}

	for _, prop := range props {
		if prop.Kind != models.PropertyKindCron || len(problems[prop.Name]) > 0 {
			continue
		}

		spec, ok := values[prop.Name].(string)
		if !ok {
			continue
		}

		if _, err := cron.ParseStandard(spec); err != nil {
			problems[prop.Name] = append(problems[prop.Name], models.Finding{
				Severity: severity,
				Code:     models.CodeInvalidValue,
				Target:   target,
				Field:    prop.Name,
				Message:  fmt.Sprintf("parameter %q is not a valid cron expression: %v", prop.Name, err),
			})
		}
	}

	// Emit in declaration order so reports are deterministic.
	for _, prop := range props {
		findings := problems[prop.Name]
		sort.SliceStable(findings, func(i, j int) bool { return findings[i].Message < findings[j].Message })

		for _, f := range findings {
			report.Add(f)
		}
	}
}

// IsExpression reports whether a parameter value is an n8n expression ("=" prefixed string).
func IsExpression(value any) bool {
	s, ok := value.(string)

	return ok && strings.HasPrefix(s, "=")
}

func isMissing(value any, present bool) bool {
	if !present || value == nil {
		return true
	}

	s, ok := value.(string)

	return ok && strings.TrimSpace(s) == ""
}

func formatVersion(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func quoteAll(values []string) string {
	quoted := make([]string, len(values))
	for i, v := range values {
		quoted[i] = strconv.Quote(v)
	}

	return strings.Join(quoted, ", ")
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}

	sort.Strings(keys)

	return keys
}
