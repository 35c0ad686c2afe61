// Package main provides the flowguard API server implementation.
package main

import (
	"log/slog"
	"strconv"

	"github.com/dukex/flowguard/pkg/catalog"
	"github.com/dukex/flowguard/pkg/eventbus"
	"github.com/dukex/flowguard/pkg/execution"
	"github.com/dukex/flowguard/pkg/persistence"
	"github.com/dukex/flowguard/pkg/services"
	"github.com/dukex/flowguard/pkg/web"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/gofiber/fiber/v3/middleware/healthcheck"
	"github.com/gofiber/fiber/v3/middleware/logger"
	"go.opentelemetry.io/otel/trace"
)

type API struct {
	logger     *slog.Logger
	workflows  persistence.WorkflowStore
	executions persistence.ExecutionStore
	catalog    *catalog.Index
	eventBus   eventbus.EventBus // nil when events are disabled
	tracer     trace.Tracer
	validate   *validator.Validate
}

func NewAPI(
	logger *slog.Logger,
	workflows persistence.WorkflowStore,
	executions persistence.ExecutionStore,
	catalog *catalog.Index,
	eventBus eventbus.EventBus,
	tracer trace.Tracer,
) *API {
	return &API{
		logger:     logger,
		workflows:  workflows,
		executions: executions,
		catalog:    catalog,
		eventBus:   eventBus,
		tracer:     tracer,
		validate:   validator.New(validator.WithRequiredStructEnabled()),
	}
}

// WorkflowService builds the workflow service shared by the HTTP handlers and the event log.
func (a *API) WorkflowService() *services.Workflow {
	opts := []services.WorkflowOption{services.WithLogger(a.logger)}

	if a.tracer != nil {
		opts = append(opts, services.WithTracer(a.tracer))
	}

	if a.eventBus != nil {
		opts = append(opts, services.WithPublisher(a.eventBus))
	}

	return services.NewWorkflow(a.workflows, a.catalog, opts...)
}

func (a *API) App() *fiber.App {
	var reader *execution.Reader
	if a.executions != nil {
		reader = execution.NewReader(a.executions, a.logger, execution.WithTracer(a.tracer))
	}

	handlers := web.NewAPIHandlers(a.WorkflowService(), a.catalog, reader, a.validate)

	app := fiber.New()
	app.Use(cors.New())
	app.Use(logger.New(logger.Config{
		DisableColors: true,
	}))

	app.Get(healthcheck.DefaultLivenessEndpoint, healthcheck.NewHealthChecker())
	app.Get(healthcheck.DefaultReadinessEndpoint, healthcheck.NewHealthChecker())

	app.Get("/", func(c fiber.Ctx) error {
		return c.SendString("flowguard API")
	})

	handlers.Register(app)

	return app
}

func (a *API) Start(port int) error {
	app := a.App()

	return app.Listen(":" + strconv.Itoa(port))
}
