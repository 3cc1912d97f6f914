//
//  Copyright © Manetu Inc. All rights reserved.
//

package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/manetu/tagenricher/cmd/mte/subcommands/enrich"
	"github.com/manetu/tagenricher/cmd/mte/subcommands/serve"
	"github.com/manetu/tagenricher/cmd/mte/version"
	"github.com/manetu/tagenricher/internal/logging"
	"github.com/urfave/cli/v3"
)

func commonFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "service-def",
			Aliases: []string{"d"},
			Usage:   "Load the service definition from `FILE` (YAML or JSON)",
		},
		&cli.StringFlag{
			Name:    "tags",
			Aliases: []string{"t"},
			Usage:   "Serve service-tags from `FILE` (JSON)",
		},
		&cli.StringFlag{
			Name:  "polling-interval",
			Usage: "Tags refresh interval in milliseconds",
		},
	}
}

func main() {
	cmd := &cli.Command{
		Name:  "mte",
		Usage: "A CLI application for working with the Manetu TagEnricher",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "debug",
				Usage: "Enable debug logging",
				Action: func(ctx context.Context, command *cli.Command, enabled bool) error {
					if enabled {
						return logging.UpdateLogLevels(".:debug")
					}
					return nil
				},
			},
		},
		Commands: []*cli.Command{
			{
				Name:  "enrich",
				Usage: "Runs a single enrichment query against a service-tags file, simplifying tag authoring and verification",
				Flags: append(commonFlags(),
					&cli.StringSliceFlag{
						Name:    "resource",
						Aliases: []string{"r"},
						Usage:   "Resource element as name=value.  Can be specified multiple times.",
					},
					&cli.StringFlag{
						Name:    "access-type",
						Aliases: []string{"a"},
						Usage:   "The access type being requested (default: any)",
					},
				),
				Action: enrich.Execute,
			},
			{
				Name:  "serve",
				Usage: "Creates an enrichment-endpoint service",
				Flags: append(commonFlags(),
					&cli.IntFlag{
						Name:  "port",
						Usage: "The TCP port to serve on.",
						Value: 9000,
					},
				),
				Action: serve.Execute,
			},
			{
				Name:  "version",
				Usage: "Prints the version",
				Action: func(ctx context.Context, command *cli.Command) error {
					fmt.Println(version.GetVersion())
					return nil
				},
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		log.Fatal(err)
	}
}
