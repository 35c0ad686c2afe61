package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"runtime"

	"github.com/dukex/flowguard/pkg/autofix"
	"github.com/dukex/flowguard/pkg/catalog"
	"github.com/dukex/flowguard/pkg/cmd"
	"github.com/dukex/flowguard/pkg/execution"
	"github.com/dukex/flowguard/pkg/log"
	"github.com/dukex/flowguard/pkg/mcp"
	"github.com/dukex/flowguard/pkg/models"
	"github.com/dukex/flowguard/pkg/patch"
	"github.com/dukex/flowguard/pkg/persistence"
	"github.com/dukex/flowguard/pkg/services"
	"github.com/dukex/flowguard/pkg/validation"
	cli "github.com/urfave/cli/v3"
	"golang.org/x/sync/errgroup"
)

var (
	errInvalidWorkflows = errors.New("one or more workflows failed validation")
	errPatchRejected    = errors.New("patch batch was rolled back")
	errMissingArgument  = errors.New("missing argument")
)

var profileFlag = &cli.StringFlag{
	Name:     "profile",
	Usage:    "Validation profile (minimal, runtime, ai-friendly, strict)",
	Required: true,
}

func loadCatalog(ctx context.Context, command *cli.Command) (*catalog.Index, error) {
	return cmd.NewCatalog(ctx, log.WithModule("catalog"), command.StringSlice("catalog"))
}

func requireArgs(command *cli.Command, names ...string) error {
	if command.Args().Len() < len(names) {
		return fmt.Errorf("%w: usage: %s %s", errMissingArgument, command.Name, command.ArgsUsage)
	}

	return nil
}

// fileReport is the validation outcome of one workflow file.
type fileReport struct {
	Path    string                   `json:"path"`
	Summary models.ReportSummary     `json:"summary"`
	Report  *models.ValidationReport `json:"report,omitempty"`
	Error   string                   `json:"error,omitempty"`
}

func validateCommand() *cli.Command {
	return &cli.Command{
		Name:      "validate",
		Aliases:   []string{"v"},
		Usage:     "Validate workflow files",
		ArgsUsage: "<workflow.json|yaml>...",
		Flags: []cli.Flag{
			profileFlag,
			&cli.BoolFlag{Name: "skip-nodes", Usage: "Skip node configuration checks"},
			&cli.BoolFlag{Name: "skip-connections", Usage: "Skip structural checks"},
			&cli.BoolFlag{Name: "skip-expressions", Usage: "Skip expression checks"},
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			if err := requireArgs(command, "workflow"); err != nil {
				return err
			}

			profile, err := validation.ParseProfile(command.String("profile"))
			if err != nil {
				return err
			}

			idx, err := loadCatalog(ctx, command)
			if err != nil {
				return err
			}

			opts := validation.Options{
				Profile:             profile,
				ValidateNodes:       !command.Bool("skip-nodes"),
				ValidateConnections: !command.Bool("skip-connections"),
				ValidateExpressions: !command.Bool("skip-expressions"),
			}

			reports, err := validateFiles(ctx, validation.NewWorkflowValidator(idx), command.Args().Slice(), opts)
			if err != nil {
				return err
			}

			if err := printJSON(command.Root().Writer, reports); err != nil {
				return err
			}

			for _, r := range reports {
				if r.Error != "" || !r.Summary.Valid {
					return errInvalidWorkflows
				}
			}

			return nil
		},
	}
}

// validateFiles validates every file concurrently. Unreadable files are reported, not returned.
func validateFiles(ctx context.Context, validator *validation.WorkflowValidator, paths []string, opts validation.Options) ([]fileReport, error) {
	reports := make([]fileReport, len(paths))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))

	for i, path := range paths {
		g.Go(func() error {
			reports[i].Path = path

			workflow, err := readWorkflow(path)
			if err != nil {
				reports[i].Error = err.Error()

				return nil
			}

			report, err := validator.ValidateWorkflow(gctx, workflow, opts)
			if err != nil {
				return fmt.Errorf("%s: %w", path, err)
			}

			reports[i].Report = report
			reports[i].Summary = report.Summary()

			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	return reports, nil
}

func validateNodeCommand() *cli.Command {
	return &cli.Command{
		Name:      "validate-node",
		Usage:     "Validate one node configuration",
		ArgsUsage: "<type-id>",
		Flags: []cli.Flag{
			profileFlag,
			&cli.StringFlag{Name: "config", Usage: "Node parameters as a JSON object", Value: "{}"},
			&cli.StringFlag{Name: "config-file", Usage: "Node parameters file (JSON or YAML)"},
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			if err := requireArgs(command, "type-id"); err != nil {
				return err
			}

			var config map[string]any

			if path := command.String("config-file"); path != "" {
				if err := readDocument(path, &config); err != nil {
					return err
				}
			} else if err := json.Unmarshal([]byte(command.String("config")), &config); err != nil {
				return fmt.Errorf("--config: %w", err)
			}

			idx, err := loadCatalog(ctx, command)
			if err != nil {
				return err
			}

			report, err := validation.NewNodeValidator(idx).ValidateNode(command.Args().First(), config, validation.Profile(command.String("profile")))
			if err != nil {
				return err
			}

			if err := printJSON(command.Root().Writer, map[string]any{"summary": report.Summary(), "report": report}); err != nil {
				return err
			}

			if !report.Valid() {
				return errInvalidWorkflows
			}

			return nil
		},
	}
}

func patchCommand() *cli.Command {
	return &cli.Command{
		Name:      "patch",
		Usage:     "Apply a batch of diff operations to a workflow file",
		ArgsUsage: "<workflow> <operations.json>",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "continue-on-error", Usage: "Skip failing operations instead of rolling back"},
			&cli.BoolFlag{Name: "dry-run", Usage: "Report the result without writing"},
			&cli.StringFlag{Name: "profile", Usage: "Also validate node configurations under this profile"},
			&cli.StringFlag{Name: "stale-sweep", Usage: "When cleanStaleConnections runs (last, in_order)", Value: string(patch.SweepLast)},
			&cli.StringFlag{Name: "output", Aliases: []string{"o"}, Usage: "Write the patched workflow here instead of over the input"},
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			if err := requireArgs(command, "workflow", "operations"); err != nil {
				return err
			}

			path := command.Args().Get(0)

			workflow, err := readWorkflow(path)
			if err != nil {
				return err
			}

			var raw []json.RawMessage
			if err := readDocument(command.Args().Get(1), &raw); err != nil {
				return err
			}

			data, err := json.Marshal(raw)
			if err != nil {
				return err
			}

			ops, err := patch.DecodeOperations(data)
			if err != nil {
				return err
			}

			idx, err := loadCatalog(ctx, command)
			if err != nil {
				return err
			}

			opts := patch.Options{
				ContinueOnError: command.Bool("continue-on-error"),
				ValidateOnly:    command.Bool("dry-run"),
				StaleSweep:      patch.StaleSweep(command.String("stale-sweep")),
			}

			if profile := command.String("profile"); profile != "" {
				opts.Validation = validation.AllPhases(validation.Profile(profile))
			}

			result, err := patch.NewEngine(idx).Apply(ctx, workflow, ops, opts)
			if err != nil {
				return err
			}

			if result.Committable() {
				if err := writeWorkflow(outputPath(command, path), result.Workflow); err != nil {
					return err
				}
			}

			if err := printJSON(command.Root().Writer, result); err != nil {
				return err
			}

			if result.RolledBack() {
				return errPatchRejected
			}

			return nil
		},
	}
}

func autofixCommand() *cli.Command {
	return &cli.Command{
		Name:      "autofix",
		Usage:     "Propose and apply fixes to a workflow file",
		ArgsUsage: "<workflow>",
		Flags: []cli.Flag{
			profileFlag,
			&cli.StringFlag{Name: "threshold", Usage: "Minimum confidence applied (high, medium, low)", Required: true},
			&cli.StringSliceFlag{Name: "fix-type", Usage: "Restrict to these fix types"},
			&cli.IntFlag{Name: "max-fixes", Usage: "Maximum patch operations applied. Zero means no cap"},
			&cli.BoolFlag{Name: "apply", Usage: "Write the fixed workflow (default is a preview)"},
			&cli.StringFlag{Name: "output", Aliases: []string{"o"}, Usage: "Write the fixed workflow here instead of over the input"},
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			if err := requireArgs(command, "workflow"); err != nil {
				return err
			}

			path := command.Args().First()

			workflow, err := readWorkflow(path)
			if err != nil {
				return err
			}

			idx, err := loadCatalog(ctx, command)
			if err != nil {
				return err
			}

			opts := autofix.Options{
				Profile:             validation.Profile(command.String("profile")),
				ConfidenceThreshold: autofix.Confidence(command.String("threshold")),
				MaxFixes:            command.Int("max-fixes"),
				DryRun:              !command.Bool("apply"),
			}

			for _, t := range command.StringSlice("fix-type") {
				opts.FixTypes = append(opts.FixTypes, autofix.FixType(t))
			}

			result, err := autofix.NewEngine(idx, log.WithModule("autofix")).Fix(ctx, workflow, opts)
			if err != nil {
				return err
			}

			if result.Committable() {
				if err := writeWorkflow(outputPath(command, path), result.Workflow); err != nil {
					return err
				}
			}

			return printJSON(command.Root().Writer, result)
		},
	}
}

func outputPath(command *cli.Command, input string) string {
	if output := command.String("output"); output != "" {
		return output
	}

	return input
}

func searchNodesCommand() *cli.Command {
	return &cli.Command{
		Name:      "search-nodes",
		Usage:     "Search the node catalog",
		ArgsUsage: "<query>",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "mode", Usage: "Token combination (OR, AND, FUZZY)", Value: string(catalog.SearchModeOR)},
			&cli.IntFlag{Name: "limit", Value: 20},
			&cli.BoolFlag{Name: "examples", Usage: "Include example configurations"},
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			if err := requireArgs(command, "query"); err != nil {
				return err
			}

			idx, err := loadCatalog(ctx, command)
			if err != nil {
				return err
			}

			matches, err := idx.SearchNodes(command.Args().First(), catalog.NodeSearchOptions{
				Limit:           command.Int("limit"),
				Mode:            catalog.SearchMode(command.String("mode")),
				IncludeExamples: command.Bool("examples"),
			})
			if err != nil {
				return err
			}

			return printJSON(command.Root().Writer, matches)
		},
	}
}

func searchTemplatesCommand() *cli.Command {
	return &cli.Command{
		Name:      "search-templates",
		Usage:     "Search workflow templates",
		ArgsUsage: "[query]",
		Flags: []cli.Flag{
			&cli.StringSliceFlag{Name: "field", Usage: "Fields to match (name, description, nodes, services)"},
			&cli.StringFlag{Name: "mode", Value: string(catalog.SearchModeOR)},
			&cli.IntFlag{Name: "limit", Value: 20},
			&cli.IntFlag{Name: "offset"},
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			idx, err := loadCatalog(ctx, command)
			if err != nil {
				return err
			}

			templates, err := idx.SearchTemplates(command.Args().First(), catalog.TemplateSearchOptions{
				Fields: command.StringSlice("field"),
				Mode:   catalog.SearchMode(command.String("mode")),
				Limit:  command.Int("limit"),
				Offset: command.Int("offset"),
			})
			if err != nil {
				return err
			}

			return printJSON(command.Root().Writer, templates)
		},
	}
}

func templateCommand() *cli.Command {
	return &cli.Command{
		Name:      "template",
		Usage:     "Show a template",
		ArgsUsage: "<template-id>",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "mode", Usage: "nodes_only, structure or full", Value: string(catalog.TemplateModeFull)},
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			if err := requireArgs(command, "template-id"); err != nil {
				return err
			}

			idx, err := loadCatalog(ctx, command)
			if err != nil {
				return err
			}

			template, err := idx.Template(command.Args().First(), catalog.TemplateMode(command.String("mode")))
			if err != nil {
				return err
			}

			return printJSON(command.Root().Writer, template)
		},
	}
}

func executionCommand() *cli.Command {
	return &cli.Command{
		Name:      "execution",
		Usage:     "Show an execution, or list executions when no id is given",
		ArgsUsage: "[execution-id]",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "executions-url",
				Usage:    "Execution store URL (file://dir, postgres://... or redis://...)",
				Required: true,
				Sources:  cli.EnvVars("EXECUTIONS_URL"),
			},
			&cli.StringFlag{Name: "mode", Usage: "preview, summary, filtered or full", Value: string(execution.ModeSummary)},
			&cli.StringSliceFlag{Name: "node", Usage: "Node names for filtered mode"},
			&cli.IntFlag{Name: "items-limit", Usage: "Items per node. Negative returns all"},
			&cli.StringFlag{Name: "workflow", Usage: "List: only executions of this workflow"},
			&cli.StringFlag{Name: "status", Usage: "List: only executions with this status"},
			&cli.IntFlag{Name: "limit", Usage: "List: maximum executions"},
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			logger := log.WithModule("executions")

			store, err := cmd.NewExecutionStore(ctx, logger, command.String("executions-url"))
			if err != nil {
				return err
			}

			defer func() {
				if err := store.Close(ctx); err != nil {
					logger.ErrorContext(ctx, "Failed to close execution store", "error", err)
				}
			}()

			reader := execution.NewReader(store, logger)

			if command.Args().Len() == 0 {
				views, err := reader.ListExecutions(ctx, persistence.ExecutionFilter{
					WorkflowID: command.String("workflow"),
					Status:     models.ExecutionStatus(command.String("status")),
					Limit:      command.Int("limit"),
				})
				if err != nil {
					return err
				}

				return printJSON(command.Root().Writer, views)
			}

			view, err := reader.GetExecution(ctx, command.Args().First(), execution.Mode(command.String("mode")), execution.ViewOptions{
				NodeNames:  command.StringSlice("node"),
				ItemsLimit: command.Int("items-limit"),
			})
			if err != nil {
				return err
			}

			return printJSON(command.Root().Writer, view)
		},
	}
}

func mcpCommand() *cli.Command {
	return &cli.Command{
		Name:  "mcp",
		Usage: "Serve the flowguard tools over MCP on standard input/output",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "database-url",
				Usage:   "Workflow store URL (file://dir or postgres://...)",
				Value:   "file://.flowguard/workflows",
				Sources: cli.EnvVars("DATABASE_URL"),
			},
			&cli.StringFlag{
				Name:    "executions-url",
				Usage:   "Execution store URL. Empty disables the execution tools",
				Sources: cli.EnvVars("EXECUTIONS_URL"),
			},
			&cli.StringFlag{
				Name:    "event-bus",
				Usage:   "Event bus type (none, gochannel, kafka)",
				Value:   "none",
				Sources: cli.EnvVars("EVENT_BUS_TYPE"),
			},
			&cli.StringFlag{
				Name:    "kafka-brokers",
				Sources: cli.EnvVars("KAFKA_BROKERS"),
			},
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			logger := log.WithModule("mcp")

			idx, err := loadCatalog(ctx, command)
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

			serviceOpts := []services.WorkflowOption{services.WithLogger(logger)}

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

				serviceOpts = append(serviceOpts, services.WithPublisher(eventBus))
			}

			serverOpts := []mcp.ServerOption{mcp.WithLogger(logger)}

			if url := command.String("executions-url"); url != "" {
				executions, err := cmd.NewExecutionStore(ctx, logger, url)
				if err != nil {
					return err
				}

				defer func() {
					if err := executions.Close(ctx); err != nil {
						logger.ErrorContext(ctx, "Failed to close execution store", "error", err)
					}
				}()

				serverOpts = append(serverOpts, mcp.WithExecutions(execution.NewReader(executions, logger)))
			}

			server := mcp.NewServer(idx, services.NewWorkflow(workflows, idx, serviceOpts...), serverOpts...)

			return server.ServeStdio()
		},
	}
}
