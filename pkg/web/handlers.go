// Package web provides the HTTP API over the catalog, the workflow service and execution views.
package web

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/dukex/flowguard/pkg/catalog"
	"github.com/dukex/flowguard/pkg/execution"
	"github.com/dukex/flowguard/pkg/models"
	"github.com/dukex/flowguard/pkg/persistence"
	"github.com/dukex/flowguard/pkg/services"
	"github.com/dukex/flowguard/pkg/validation"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
)

var errInvalidJSON = errors.New("Invalid JSON format")

type APIHandlers struct {
	workflowService *services.Workflow
	catalog         *catalog.Index
	executions      *execution.Reader
	validator       *validator.Validate
}

func NewAPIHandlers(
	workflowService *services.Workflow,
	catalog *catalog.Index,
	executions *execution.Reader,
	validator *validator.Validate,
) *APIHandlers {
	return &APIHandlers{
		workflowService: workflowService,
		catalog:         catalog,
		executions:      executions,
		validator:       validator,
	}
}

func (h *APIHandlers) HealthCheck(c fiber.Ctx) error {
	repositoryCheck, repOk := h.workflowService.HealthCheck(c.Context())

	status := "unhealthy"
	message := "flowguard API is unhealthy"
	httpStatus := http.StatusInternalServerError

	if repOk {
		status = "healthy"
		message = "flowguard API is healthy"
		httpStatus = http.StatusOK
	}

	return c.Status(httpStatus).JSON(fiber.Map{
		"status":  status,
		"message": message,
		"checkers": fiber.Map{
			"catalog":    strconv.Itoa(h.catalog.NodeCount()) + " node types, " + strconv.Itoa(h.catalog.TemplateCount()) + " templates",
			"repository": repositoryCheck,
		},
		"timestamp": time.Now().UTC(),
	})
}

func (h *APIHandlers) GetWorkflows(c fiber.Ctx) error {
	req, err := parseListWorkflowsRequest(c)
	if err != nil {
		return badRequest(c, "Invalid query parameters: "+err.Error())
	}

	result, err := h.workflowService.ListWorkflows(c.Context(), *req)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(fiber.Map{
		"workflows":     result.Workflows,
		"total_count":   result.TotalCount,
		"has_next_page": result.HasNextPage,
		"pagination": fiber.Map{
			"limit":  req.Limit,
			"offset": req.Offset,
		},
	})
}

func parseListWorkflowsRequest(c fiber.Ctx) (*services.ListWorkflowsRequest, error) {
	req := &services.ListWorkflowsRequest{
		Tag:       c.Query("tag"),
		SortBy:    c.Query("sort_by"),
		SortOrder: c.Query("sort_order"),
	}

	var err error

	if req.Limit, err = queryInt(c, "limit"); err != nil {
		return nil, err
	}

	if req.Offset, err = queryInt(c, "offset"); err != nil {
		return nil, err
	}

	return req, nil
}

func (h *APIHandlers) GetWorkflow(c fiber.Ctx) error {
	workflow, err := h.workflowService.FetchByID(c.Context(), c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(workflow)
}

func (h *APIHandlers) CreateWorkflow(c fiber.Ctx) error {
	var req WorkflowRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	created, err := h.workflowService.Create(c.Context(), req.Workflow())
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(created)
}

func (h *APIHandlers) UpdateWorkflow(c fiber.Ctx) error {
	var req WorkflowRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	updated, err := h.workflowService.Update(c.Context(), c.Params("id"), req.Workflow())
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(updated)
}

func (h *APIHandlers) DeleteWorkflow(c fiber.Ctx) error {
	if err := h.workflowService.Delete(c.Context(), c.Params("id")); err != nil {
		return handleServiceError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

func (h *APIHandlers) ValidateWorkflow(c fiber.Ctx) error {
	var req ValidationRequest
	if err := h.bind(c, &req); err != nil {
		return badRequest(c, err.Error())
	}

	report, err := h.workflowService.Validate(c.Context(), c.Params("id"), req.Options())
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(newValidationResponse(report))
}

func (h *APIHandlers) ValidateDocument(c fiber.Ctx) error {
	var req ValidateDocumentRequest
	if err := h.bind(c, &req); err != nil {
		return badRequest(c, err.Error())
	}

	report, err := h.workflowService.ValidateDocument(c.Context(), req.Workflow, req.Options())
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(newValidationResponse(report))
}

func (h *APIHandlers) PatchWorkflow(c fiber.Ctx) error {
	var req PatchRequest
	if err := h.bind(c, &req); err != nil {
		return badRequest(c, err.Error())
	}

	ops, opts, err := req.Decode()
	if err != nil {
		return handleServiceError(c, err)
	}

	result, err := h.workflowService.Patch(c.Context(), c.Params("id"), ops, opts)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(result)
}

func (h *APIHandlers) PatchDocument(c fiber.Ctx) error {
	var req PatchDocumentRequest
	if err := h.bind(c, &req); err != nil {
		return badRequest(c, err.Error())
	}

	ops, opts, err := req.Decode()
	if err != nil {
		return handleServiceError(c, err)
	}

	result, err := h.workflowService.PatchDocument(c.Context(), req.Workflow, ops, opts)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(result)
}

func (h *APIHandlers) AutofixWorkflow(c fiber.Ctx) error {
	var req AutofixRequest
	if err := h.bind(c, &req); err != nil {
		return badRequest(c, err.Error())
	}

	result, err := h.workflowService.Autofix(c.Context(), c.Params("id"), req.Options())
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(result)
}

func (h *APIHandlers) AutofixDocument(c fiber.Ctx) error {
	var req AutofixDocumentRequest
	if err := h.bind(c, &req); err != nil {
		return badRequest(c, err.Error())
	}

	result, err := h.workflowService.AutofixDocument(c.Context(), req.Workflow, req.Options())
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(result)
}

// SearchNodes searches node types when query is set and lists them by filter otherwise.
func (h *APIHandlers) SearchNodes(c fiber.Ctx) error {
	limit, err := queryInt(c, "limit")
	if err != nil {
		return badRequest(c, "Invalid query parameters: "+err.Error())
	}

	if query := c.Query("query"); query != "" {
		matches, err := h.catalog.SearchNodes(query, catalog.NodeSearchOptions{
			Limit:           limit,
			Mode:            catalog.SearchMode(c.Query("mode")),
			IncludeExamples: c.Query("include_examples") == "true",
		})
		if err != nil {
			return handleServiceError(c, err)
		}

		return c.JSON(fiber.Map{"nodes": matches, "count": len(matches)})
	}

	filter := catalog.NodeFilter{
		Category: models.CategoryType(c.Query("category")),
		Package:  c.Query("package"),
		Limit:    limit,
	}

	if raw := c.Query("is_ai_tool"); raw != "" {
		isAITool, err := strconv.ParseBool(raw)
		if err != nil {
			return badRequest(c, "Invalid query parameters: "+err.Error())
		}

		filter.IsAITool = &isAITool
	}

	nodes := h.catalog.ListNodes(filter)

	return c.JSON(fiber.Map{"nodes": nodes, "count": len(nodes)})
}

// GetNode returns a node definition. Type ids contain slashes, so the id is the route wildcard.
func (h *APIHandlers) GetNode(c fiber.Ctx) error {
	typeID := strings.TrimPrefix(c.Params("*"), "/")
	if typeID == "" {
		return badRequest(c, "Node type is required")
	}

	def, err := h.catalog.Node(typeID)
	if err != nil {
		if catalog.IsNotFound(err) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"type":        "node_type_not_found",
				"status":      fiber.StatusNotFound,
				"detail":      err.Error(),
				"suggestions": h.catalog.SuggestTypes(typeID, 5),
			})
		}

		return handleServiceError(c, err)
	}

	return c.JSON(def)
}

func (h *APIHandlers) ValidateNode(c fiber.Ctx) error {
	var req ValidateNodeRequest
	if err := h.bind(c, &req); err != nil {
		return badRequest(c, err.Error())
	}

	report, err := h.workflowService.ValidateNode(c.Context(), req.TypeID, req.Config, validation.Profile(req.Profile))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(newValidationResponse(report))
}

func (h *APIHandlers) SearchTemplates(c fiber.Ctx) error {
	limit, err := queryInt(c, "limit")
	if err != nil {
		return badRequest(c, "Invalid query parameters: "+err.Error())
	}

	offset, err := queryInt(c, "offset")
	if err != nil {
		return badRequest(c, "Invalid query parameters: "+err.Error())
	}

	var fields []string
	if raw := c.Query("fields"); raw != "" {
		fields = strings.Split(raw, ",")
	}

	templates, err := h.catalog.SearchTemplates(c.Query("query"), catalog.TemplateSearchOptions{
		Fields: fields,
		Mode:   catalog.SearchMode(c.Query("mode")),
		Limit:  limit,
		Offset: offset,
	})
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(fiber.Map{"templates": templates, "count": len(templates)})
}

func (h *APIHandlers) SearchTemplatesByMetadata(c fiber.Ctx) error {
	filter := catalog.TemplateFilter{
		Category:        c.Query("category"),
		Complexity:      models.Complexity(c.Query("complexity")),
		RequiredService: c.Query("required_service"),
		TargetAudience:  c.Query("target_audience"),
	}

	ints := []struct {
		name string
		dst  *int
	}{
		{"min_setup_minutes", &filter.MinSetupMinutes},
		{"max_setup_minutes", &filter.MaxSetupMinutes},
		{"limit", &filter.Limit},
		{"offset", &filter.Offset},
	}

	for _, q := range ints {
		v, err := queryInt(c, q.name)
		if err != nil {
			return badRequest(c, "Invalid query parameters: "+err.Error())
		}

		*q.dst = v
	}

	templates := h.catalog.SearchTemplatesByMetadata(filter)

	return c.JSON(fiber.Map{"templates": templates, "count": len(templates)})
}

func (h *APIHandlers) GetTemplate(c fiber.Ctx) error {
	template, err := h.catalog.Template(c.Params("id"), catalog.TemplateMode(c.Query("mode")))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(template)
}

func (h *APIHandlers) GetExecutions(c fiber.Ctx) error {
	limit, err := queryInt(c, "limit")
	if err != nil {
		return badRequest(c, "Invalid query parameters: "+err.Error())
	}

	views, err := h.executions.ListExecutions(c.Context(), persistence.ExecutionFilter{
		WorkflowID: c.Query("workflow_id"),
		Status:     models.ExecutionStatus(c.Query("status")),
		Limit:      limit,
	})
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(fiber.Map{"executions": views, "count": len(views)})
}

func (h *APIHandlers) GetExecution(c fiber.Ctx) error {
	opts := execution.ViewOptions{}

	if raw := c.Query("nodes"); raw != "" {
		opts.NodeNames = strings.Split(raw, ",")
	}

	limit, err := queryInt(c, "items_limit")
	if err != nil {
		return badRequest(c, "Invalid query parameters: "+err.Error())
	}

	opts.ItemsLimit = limit

	view, err := h.executions.GetExecution(c.Context(), c.Params("id"), execution.Mode(c.Query("mode")), opts)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(view)
}

// bind decodes and validates a JSON body.
func (h *APIHandlers) bind(c fiber.Ctx, req any) error {
	if err := c.Bind().JSON(req); err != nil {
		return errInvalidJSON
	}

	return h.validator.Struct(req)
}

func queryInt(c fiber.Ctx, name string) (int, error) {
	raw := c.Query(name)
	if raw == "" {
		return 0, nil
	}

	return strconv.Atoi(raw)
}
