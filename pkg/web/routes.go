package web

import "github.com/gofiber/fiber/v3"

// Register mounts every API route on router. Execution routes are mounted only with an execution reader.
func (h *APIHandlers) Register(router fiber.Router) {
	router.Get("/health", h.HealthCheck)

	router.Post("/validate", h.ValidateDocument)
	router.Post("/patch", h.PatchDocument)
	router.Post("/autofix", h.AutofixDocument)

	w := router.Group("/workflows")
	w.Get("/", h.GetWorkflows)
	w.Post("/", h.CreateWorkflow)
	w.Get("/:id", h.GetWorkflow)
	w.Put("/:id", h.UpdateWorkflow)
	w.Delete("/:id", h.DeleteWorkflow)
	w.Post("/:id/validate", h.ValidateWorkflow)
	w.Post("/:id/patch", h.PatchWorkflow)
	w.Post("/:id/autofix", h.AutofixWorkflow)

	n := router.Group("/nodes")
	n.Get("/", h.SearchNodes)
	n.Post("/validate", h.ValidateNode)
	n.Get("/*", h.GetNode)

	t := router.Group("/templates")
	t.Get("/", h.SearchTemplates)
	t.Get("/by-metadata", h.SearchTemplatesByMetadata)
	t.Get("/:id", h.GetTemplate)

	if h.executions == nil {
		return
	}

	e := router.Group("/executions")
	e.Get("/", h.GetExecutions)
	e.Get("/:id", h.GetExecution)
}
