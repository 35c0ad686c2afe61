package main

import (
	"context"
	"os"

	"github.com/dukex/flowguard/pkg/cmd"
	"github.com/dukex/flowguard/pkg/eventbus"
	"github.com/dukex/flowguard/pkg/events"
	"github.com/dukex/flowguard/pkg/log"
	"github.com/dukex/flowguard/pkg/persistence"
	cli "github.com/urfave/cli/v3"
)

const defaultPort = 9091

func main() {
	logger := log.WithModule("api")

	command := &cli.Command{
		Name:                  "flowguard-api",
		Usage:                 "Validate, patch and autofix workflows over HTTP",
		EnableShellCompletion: true,
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "port",
				Aliases: []string{"p"},
				Usage:   "Port to run the API server on",
				Value:   defaultPort,
				Sources: cli.EnvVars("PORT"),
			},
			&cli.StringFlag{
				Name:     "database-url",
				Usage:    "Workflow store URL (file://dir or postgres://...)",
				Required: true,
				Sources:  cli.EnvVars("DATABASE_URL"),
			},
			&cli.StringFlag{
				Name:    "executions-url",
				Usage:   "Execution store URL (file://dir, postgres://... or redis://...). Empty disables execution routes",
				Sources: cli.EnvVars("EXECUTIONS_URL"),
			},
			&cli.StringSliceFlag{
				Name:    "catalog",
				Usage:   "Catalog files (YAML or JSON). Empty uses the embedded catalog",
				Sources: cli.EnvVars("CATALOG_PATHS"),
			},
			&cli.StringFlag{
				Name:    "event-bus",
				Usage:   "Event bus type (none, gochannel, kafka)",
				Value:   "none",
				Sources: cli.EnvVars("EVENT_BUS_TYPE"),
			},
			&cli.StringFlag{
				Name:    "kafka-brokers",
				Usage:   "Comma separated Kafka brokers",
				Sources: cli.EnvVars("KAFKA_BROKERS"),
			},
			&cli.BoolFlag{
				Name:    "otel-enabled",
				Usage:   "Export traces over OTLP/HTTP",
				Sources: cli.EnvVars("OTEL_ENABLED"),
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level (debug, info, warn, error)",
				Value:   "info",
				Sources: cli.EnvVars("LOG_LEVEL"),
			},
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			log.Setup(command.String("log-level"))

			logger.InfoContext(ctx, "Initializing flowguard API")

			idx, err := cmd.NewCatalog(ctx, logger, command.StringSlice("catalog"))
			if err != nil {
				return err
			}

			tracer, err := cmd.NewTracer(ctx, command.Bool("otel-enabled"), "flowguard-api")
			if err != nil {
				return err
			}

			workflows, err := cmd.NewWorkflowStore(ctx, logger, command.String("database-url"))
			if err != nil {
				return err
			}

			defer func() {
				if err := workflows.Close(ctx); err != nil {
					logger.ErrorContext(ctx, "Failed to close workflow store", "error", err)
				}
			}()

			var executions persistence.ExecutionStore

			if url := command.String("executions-url"); url != "" {
				executions, err = cmd.NewExecutionStore(ctx, logger, url)
				if err != nil {
					return err
				}

				defer func() {
					if err := executions.Close(ctx); err != nil {
						logger.ErrorContext(ctx, "Failed to close execution store", "error", err)
					}
				}()
			}

			eventBus, err := cmd.NewEventBus(command.String("event-bus"), command.String("kafka-brokers"), logger)
			if err != nil {
				return err
			}

			if eventBus != nil {
				defer func() {
					if err := eventBus.Close(); err != nil {
						logger.ErrorContext(ctx, "Failed to close event bus", "error", err)
					}
				}()

				if err := subscribeEventLog(ctx, eventBus); err != nil {
					return err
				}
			}

			api := NewAPI(logger, workflows, executions, idx, eventBus, tracer)

			if err := api.Start(int(command.Int("port"))); err != nil {
				logger.ErrorContext(ctx, "Failed to start API server", "error", err)

				return err
			}

			return nil
		},
	}

	if err := command.Run(context.Background(), os.Args); err != nil {
		logger.Error("flowguard-api failed", "error", err)
		os.Exit(1)
	}
}

// subscribeEventLog logs every workflow event published on the bus.
func subscribeEventLog(ctx context.Context, bus eventbus.EventBus) error {
	eventLogger := log.WithModule("events")

	for _, eventType := range []events.EventType{
		events.WorkflowCreatedEvent,
		events.WorkflowUpdatedEvent,
		events.WorkflowDeletedEvent,
		events.WorkflowPatchedEvent,
		events.WorkflowAutofixedEvent,
	} {
		err := bus.Handle(eventType, func(ctx context.Context, event any) error {
			eventLogger.InfoContext(ctx, "workflow event", "type", eventType, "event", event)

			return nil
		})
		if err != nil {
			return err
		}
	}

	return bus.Subscribe(ctx)
}
