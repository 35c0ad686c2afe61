package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dukex/flowguard/pkg/autofix"
	"github.com/dukex/flowguard/pkg/catalog"
	"github.com/dukex/flowguard/pkg/execution"
	"github.com/dukex/flowguard/pkg/models"
	"github.com/dukex/flowguard/pkg/patch"
	"github.com/dukex/flowguard/pkg/persistence"
	"github.com/dukex/flowguard/pkg/validation"
	"github.com/mark3labs/mcp-go/mcp"
)

var profileEnum = mcp.Enum("minimal", "runtime", "ai-friendly", "strict")

func (s *Server) registerCatalogTools() {
	s.mcpServer.AddTool(
		mcp.NewTool("search_nodes",
			mcp.WithDescription("Search node types by keyword. Matches type ids, display names, aliases and descriptions. "+
				"FUZZY mode tolerates one typo per token of four or more characters."),
			mcp.WithString("query", mcp.Required(), mcp.Description("Search keywords, e.g. 'send slack message'")),
			mcp.WithString("mode", mcp.Enum("OR", "AND", "FUZZY"), mcp.Description("How tokens combine. Default: OR")),
			mcp.WithNumber("limit", mcp.Description("Maximum results (1-100). Default: 20")),
			mcp.WithBoolean("include_examples", mcp.Description("Include example configurations taken from templates")),
			mcp.WithReadOnlyHintAnnotation(true),
		),
		s.handleSearchNodes,
	)

	s.mcpServer.AddTool(
		mcp.NewTool("list_nodes",
			mcp.WithDescription("List node types by category, package or AI-tool capability, most popular first."),
			mcp.WithString("category", mcp.Enum("trigger", "transform", "input", "output", "ai-tool")),
			mcp.WithString("package", mcp.Description("Package prefix, e.g. 'n8n-nodes-base'")),
			mcp.WithBoolean("is_ai_tool", mcp.Description("Only nodes usable as AI agent tools")),
			mcp.WithNumber("limit", mcp.Description("Maximum results (1-100). Default: 20")),
			mcp.WithReadOnlyHintAnnotation(true),
		),
		s.handleListNodes,
	)

	s.mcpServer.AddTool(
		mcp.NewTool("get_node",
			mcp.WithDescription("Return the full definition of a node type: versions, properties, branches and input ports. "+
				"Unknown types return close suggestions."),
			mcp.WithString("type_id", mcp.Required(), mcp.Description("Node type id, e.g. 'n8n-nodes-base.httpRequest'")),
			mcp.WithReadOnlyHintAnnotation(true),
		),
		s.handleGetNode,
	)

	s.mcpServer.AddTool(
		mcp.NewTool("search_templates",
			mcp.WithDescription("Search workflow templates by keyword."),
			mcp.WithString("query", mcp.Description("Search keywords. Empty returns the most viewed templates")),
			mcp.WithArray("fields", mcp.Items(map[string]any{"type": "string"}),
				mcp.Description("Fields to match: name, description, nodes, services. Default: name and description")),
			mcp.WithString("mode", mcp.Enum("OR", "AND", "FUZZY")),
			mcp.WithNumber("limit"),
			mcp.WithNumber("offset"),
			mcp.WithReadOnlyHintAnnotation(true),
		),
		s.handleSearchTemplates,
	)

	s.mcpServer.AddTool(
		mcp.NewTool("search_templates_by_metadata",
			mcp.WithDescription("Filter templates by category, complexity, setup time, required service or audience."),
			mcp.WithString("category"),
			mcp.WithString("complexity", mcp.Enum("simple", "medium", "complex")),
			mcp.WithNumber("min_setup_minutes"),
			mcp.WithNumber("max_setup_minutes"),
			mcp.WithString("required_service"),
			mcp.WithString("target_audience"),
			mcp.WithNumber("limit"),
			mcp.WithNumber("offset"),
			mcp.WithReadOnlyHintAnnotation(true),
		),
		s.handleSearchTemplatesByMetadata,
	)

	s.mcpServer.AddTool(
		mcp.NewTool("get_template",
			mcp.WithDescription("Return a template. nodes_only omits parameters and connections, structure omits parameters."),
			mcp.WithString("template_id", mcp.Required()),
			mcp.WithString("mode", mcp.Enum("nodes_only", "structure", "full"), mcp.Description("Default: full")),
			mcp.WithReadOnlyHintAnnotation(true),
		),
		s.handleGetTemplate,
	)
}

func (s *Server) registerWorkflowTools() {
	s.mcpServer.AddTool(
		mcp.NewTool("validate_node",
			mcp.WithDescription("Validate one node configuration against its type definition under a profile."),
			mcp.WithString("type_id", mcp.Required()),
			mcp.WithObject("config", mcp.Description("Node parameters")),
			mcp.WithString("profile", mcp.Required(), profileEnum),
			mcp.WithReadOnlyHintAnnotation(true),
		),
		s.handleValidateNode,
	)

	s.mcpServer.AddTool(
		mcp.NewTool("validate_workflow",
			mcp.WithDescription("Validate a stored workflow (workflow_id) or an inline workflow document (workflow). "+
				"Every phase runs unless disabled."),
			mcp.WithString("workflow_id"),
			mcp.WithObject("workflow"),
			mcp.WithString("profile", mcp.Required(), profileEnum),
			mcp.WithBoolean("validate_nodes"),
			mcp.WithBoolean("validate_connections"),
			mcp.WithBoolean("validate_expressions"),
			mcp.WithReadOnlyHintAnnotation(true),
		),
		s.handleValidateWorkflow,
	)

	s.mcpServer.AddTool(
		mcp.NewTool("patch_workflow",
			mcp.WithDescription("Apply a batch of diff operations (addNode, removeNode, updateNode, moveNode, enableNode, "+
				"disableNode, addConnection, removeConnection, cleanStaleConnections, updateSettings, "+
				"updateName, addTag, removeTag). Atomic unless continue_on_error is set. A stored workflow is saved "+
				"only when the batch commits."),
			mcp.WithString("workflow_id"),
			mcp.WithObject("workflow"),
			mcp.WithArray("operations", mcp.Required(), mcp.Items(map[string]any{"type": "object"})),
			mcp.WithBoolean("continue_on_error"),
			mcp.WithBoolean("validate_only", mcp.Description("Dry run: report the result without saving")),
			mcp.WithString("stale_sweep", mcp.Enum("last", "in_order")),
			mcp.WithString("profile", profileEnum, mcp.Description("Also validate node configurations in the report")),
			mcp.WithDestructiveHintAnnotation(false),
		),
		s.handlePatchWorkflow,
	)

	s.mcpServer.AddTool(
		mcp.NewTool("autofix_workflow",
			mcp.WithDescription("Propose fixes for a workflow's findings and apply those at or above the confidence threshold. "+
				"Fixes are previewed unless apply is true."),
			mcp.WithString("workflow_id"),
			mcp.WithObject("workflow"),
			mcp.WithString("profile", mcp.Required(), profileEnum),
			mcp.WithString("confidence_threshold", mcp.Required(), mcp.Enum("high", "medium", "low")),
			mcp.WithArray("fix_types", mcp.Items(map[string]any{"type": "string"})),
			mcp.WithNumber("max_fixes", mcp.Description("Maximum patch operations applied; 0 means no cap")),
			mcp.WithBoolean("apply"),
			mcp.WithDestructiveHintAnnotation(false),
		),
		s.handleAutofixWorkflow,
	)
}

func (s *Server) registerExecutionTools() {
	s.mcpServer.AddTool(
		mcp.NewTool("get_execution",
			mcp.WithDescription("Return an execution. preview shows counts only, summary adds two sample items per node, "+
				"filtered restricts to the named nodes, full returns every item."),
			mcp.WithString("execution_id", mcp.Required()),
			mcp.WithString("mode", mcp.Enum("preview", "summary", "filtered", "full"), mcp.Description("Default: summary")),
			mcp.WithArray("node_names", mcp.Items(map[string]any{"type": "string"})),
			mcp.WithNumber("items_limit", mcp.Description("Items per node. Negative returns all")),
			mcp.WithReadOnlyHintAnnotation(true),
		),
		s.handleGetExecution,
	)

	s.mcpServer.AddTool(
		mcp.NewTool("list_executions",
			mcp.WithDescription("List execution previews, newest first."),
			mcp.WithString("workflow_id"),
			mcp.WithString("status"),
			mcp.WithNumber("limit"),
			mcp.WithReadOnlyHintAnnotation(true),
		),
		s.handleListExecutions,
	)
}

func (s *Server) handleSearchNodes(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query := mcp.ParseString(req, "query", "")
	if query == "" {
		return mcp.NewToolResultError("query is required"), nil
	}

	matches, err := s.catalog.SearchNodes(query, catalog.NodeSearchOptions{
		Limit:           mcp.ParseInt(req, "limit", 0),
		Mode:            catalog.SearchMode(mcp.ParseString(req, "mode", "")),
		IncludeExamples: mcp.ParseBoolean(req, "include_examples", false),
	})
	if err != nil {
		return s.errorResult("search_nodes", err), nil
	}

	return marshalToolResult(map[string]any{
		"query": query,
		"nodes": matches,
		"count": len(matches),
	})
}

func (s *Server) handleListNodes(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	filter := catalog.NodeFilter{
		Category: models.CategoryType(mcp.ParseString(req, "category", "")),
		Package:  mcp.ParseString(req, "package", ""),
		Limit:    mcp.ParseInt(req, "limit", 0),
	}

	if _, ok := req.GetArguments()["is_ai_tool"]; ok {
		isAITool := mcp.ParseBoolean(req, "is_ai_tool", false)
		filter.IsAITool = &isAITool
	}

	nodes := s.catalog.ListNodes(filter)

	return marshalToolResult(map[string]any{
		"nodes": nodes,
		"count": len(nodes),
	})
}

func (s *Server) handleGetNode(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	typeID := mcp.ParseString(req, "type_id", "")
	if typeID == "" {
		return mcp.NewToolResultError("type_id is required"), nil
	}

	def, err := s.catalog.Node(typeID)
	if err != nil {
		if suggestions := s.catalog.SuggestTypes(typeID, 5); len(suggestions) > 0 {
			return mcp.NewToolResultError(fmt.Sprintf("%v; did you mean one of %v?", err, suggestions)), nil
		}

		return s.errorResult("get_node", err), nil
	}

	return marshalToolResult(def)
}

func (s *Server) handleSearchTemplates(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	templates, err := s.catalog.SearchTemplates(mcp.ParseString(req, "query", ""), catalog.TemplateSearchOptions{
		Fields: stringSlice(req, "fields"),
		Mode:   catalog.SearchMode(mcp.ParseString(req, "mode", "")),
		Limit:  mcp.ParseInt(req, "limit", 0),
		Offset: mcp.ParseInt(req, "offset", 0),
	})
	if err != nil {
		return s.errorResult("search_templates", err), nil
	}

	return marshalToolResult(map[string]any{
		"templates": templates,
		"count":     len(templates),
	})
}

func (s *Server) handleSearchTemplatesByMetadata(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	templates := s.catalog.SearchTemplatesByMetadata(catalog.TemplateFilter{
		Category:        mcp.ParseString(req, "category", ""),
		Complexity:      models.Complexity(mcp.ParseString(req, "complexity", "")),
		MinSetupMinutes: mcp.ParseInt(req, "min_setup_minutes", 0),
		MaxSetupMinutes: mcp.ParseInt(req, "max_setup_minutes", 0),
		RequiredService: mcp.ParseString(req, "required_service", ""),
		TargetAudience:  mcp.ParseString(req, "target_audience", ""),
		Limit:           mcp.ParseInt(req, "limit", 0),
		Offset:          mcp.ParseInt(req, "offset", 0),
	})

	return marshalToolResult(map[string]any{
		"templates": templates,
		"count":     len(templates),
	})
}

func (s *Server) handleGetTemplate(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id := mcp.ParseString(req, "template_id", "")
	if id == "" {
		return mcp.NewToolResultError("template_id is required"), nil
	}

	template, err := s.catalog.Template(id, catalog.TemplateMode(mcp.ParseString(req, "mode", "")))
	if err != nil {
		return s.errorResult("get_template", err), nil
	}

	return marshalToolResult(template)
}

func (s *Server) handleValidateNode(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	typeID := mcp.ParseString(req, "type_id", "")
	if typeID == "" {
		return mcp.NewToolResultError("type_id is required"), nil
	}

	var config map[string]any
	if _, err := decodeArgument(req, "config", &config); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	report, err := s.workflows.ValidateNode(ctx, typeID, config, validation.Profile(mcp.ParseString(req, "profile", "")))
	if err != nil {
		return s.errorResult("validate_node", err), nil
	}

	return marshalToolResult(reportResult(report))
}

func (s *Server) handleValidateWorkflow(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	opts := validation.Options{
		Profile:             validation.Profile(mcp.ParseString(req, "profile", "")),
		ValidateNodes:       mcp.ParseBoolean(req, "validate_nodes", true),
		ValidateConnections: mcp.ParseBoolean(req, "validate_connections", true),
		ValidateExpressions: mcp.ParseBoolean(req, "validate_expressions", true),
	}

	id, document, err := workflowArgument(req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	var report *models.ValidationReport
	if document != nil {
		report, err = s.workflows.ValidateDocument(ctx, document, opts)
	} else {
		report, err = s.workflows.Validate(ctx, id, opts)
	}

	if err != nil {
		return s.errorResult("validate_workflow", err), nil
	}

	return marshalToolResult(reportResult(report))
}

func (s *Server) handlePatchWorkflow(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var raw []map[string]any
	if ok, err := decodeArgument(req, "operations", &raw); err != nil || !ok {
		return mcp.NewToolResultError("operations must be a non-empty array of operation objects"), nil
	}

	ops, err := decodeOperations(raw)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	opts := patch.Options{
		ContinueOnError: mcp.ParseBoolean(req, "continue_on_error", false),
		ValidateOnly:    mcp.ParseBoolean(req, "validate_only", false),
		StaleSweep:      patch.StaleSweep(mcp.ParseString(req, "stale_sweep", "")),
	}

	if profile := mcp.ParseString(req, "profile", ""); profile != "" {
		opts.Validation = validation.AllPhases(validation.Profile(profile))
	}

	id, document, err := workflowArgument(req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	var result *patch.Result
	if document != nil {
		result, err = s.workflows.PatchDocument(ctx, document, ops, opts)
	} else {
		result, err = s.workflows.Patch(ctx, id, ops, opts)
	}

	if err != nil {
		return s.errorResult("patch_workflow", err), nil
	}

	return marshalToolResult(result)
}

func (s *Server) handleAutofixWorkflow(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	fixTypes := stringSlice(req, "fix_types")

	opts := autofix.Options{
		Profile:             validation.Profile(mcp.ParseString(req, "profile", "")),
		ConfidenceThreshold: autofix.Confidence(mcp.ParseString(req, "confidence_threshold", "")),
		FixTypes:            make([]autofix.FixType, len(fixTypes)),
		MaxFixes:            mcp.ParseInt(req, "max_fixes", 0),
		DryRun:              !mcp.ParseBoolean(req, "apply", false),
	}

	for i, t := range fixTypes {
		opts.FixTypes[i] = autofix.FixType(t)
	}

	id, document, err := workflowArgument(req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	var result *autofix.Result
	if document != nil {
		result, err = s.workflows.AutofixDocument(ctx, document, opts)
	} else {
		result, err = s.workflows.Autofix(ctx, id, opts)
	}

	if err != nil {
		return s.errorResult("autofix_workflow", err), nil
	}

	return marshalToolResult(result)
}

func (s *Server) handleGetExecution(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id := mcp.ParseString(req, "execution_id", "")
	if id == "" {
		return mcp.NewToolResultError("execution_id is required"), nil
	}

	view, err := s.executions.GetExecution(ctx, id, execution.Mode(mcp.ParseString(req, "mode", "")), execution.ViewOptions{
		NodeNames:  stringSlice(req, "node_names"),
		ItemsLimit: mcp.ParseInt(req, "items_limit", 0),
	})
	if err != nil {
		return s.errorResult("get_execution", err), nil
	}

	return marshalToolResult(view)
}

func (s *Server) handleListExecutions(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	views, err := s.executions.ListExecutions(ctx, persistence.ExecutionFilter{
		WorkflowID: mcp.ParseString(req, "workflow_id", ""),
		Status:     models.ExecutionStatus(mcp.ParseString(req, "status", "")),
		Limit:      mcp.ParseInt(req, "limit", 0),
	})
	if err != nil {
		return s.errorResult("list_executions", err), nil
	}

	return marshalToolResult(map[string]any{
		"executions": views,
		"count":      len(views),
	})
}

// workflowArgument returns either the stored workflow id or the inline document.
func workflowArgument(req mcp.CallToolRequest) (string, *models.Workflow, error) {
	var document models.Workflow

	ok, err := decodeArgument(req, "workflow", &document)
	if err != nil {
		return "", nil, err
	}

	if ok {
		return "", &document, nil
	}

	id := mcp.ParseString(req, "workflow_id", "")
	if id == "" {
		return "", nil, errMissingWorkflow
	}

	return id, nil, nil
}

func decodeOperations(raw []map[string]any) ([]patch.Operation, error) {
	if len(raw) == 0 {
		return nil, errors.New("operations must not be empty")
	}

	data, err := json.Marshal(raw)
	if err != nil {
		return nil, err
	}

	return patch.DecodeOperations(data)
}

func reportResult(report *models.ValidationReport) map[string]any {
	return map[string]any{
		"summary": report.Summary(),
		"report":  report,
	}
}
