package main

import (
	"context"
	"os"

	"github.com/dukex/flowguard/pkg/log"
	cli "github.com/urfave/cli/v3"
)

func main() {
	if err := newCommand().Run(context.Background(), os.Args); err != nil {
		log.WithModule("cli").Error("flowguard failed", "error", err)
		os.Exit(1)
	}
}

func newCommand() *cli.Command {
	return &cli.Command{
		Name:                  "flowguard",
		Usage:                 "Validate, patch and autofix node-graph workflows",
		EnableShellCompletion: true,
		Flags: []cli.Flag{
			&cli.StringSliceFlag{
				Name:    "catalog",
				Usage:   "Catalog files (YAML or JSON). Empty uses the embedded catalog",
				Sources: cli.EnvVars("CATALOG_PATHS"),
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level (debug, info, warn, error)",
				Value:   "warn",
				Sources: cli.EnvVars("LOG_LEVEL"),
			},
		},
		Before: func(ctx context.Context, command *cli.Command) (context.Context, error) {
			log.Setup(command.String("log-level"))

			return ctx, nil
		},
		Commands: []*cli.Command{
			validateCommand(),
			validateNodeCommand(),
			patchCommand(),
			autofixCommand(),
			searchNodesCommand(),
			searchTemplatesCommand(),
			templateCommand(),
			executionCommand(),
			mcpCommand(),
		},
	}
}
