//
//  Copyright © Manetu Inc. All rights reserved.
//

// Package serve implements the serve subcommand, exposing the enricher over
// the generic REST endpoint.
package serve

import (
	"context"
	"os"
	"os/signal"

	"github.com/manetu/tagenricher/cmd/mte/common"
	"github.com/manetu/tagenricher/internal/logging"
	"github.com/manetu/tagenricher/pkg/enrichpoint/generic"
	"github.com/urfave/cli/v3"
)

var logger = logging.GetLogger("mte")

const agent string = "serve"

// Execute starts an enrichment endpoint and blocks until interrupted.
func Execute(ctx context.Context, cmd *cli.Command) error {
	port := cmd.Int("port")

	e, err := common.NewCliEnricher(cmd)
	if err != nil {
		return err
	}
	defer e.PreCleanup()

	server, err := generic.CreateServer(e, port)
	if err != nil {
		return err
	}

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt)
	<-quit
	logger.Info(agent, "shutdown", "Shutting down server...")

	if err := server.Stop(ctx); err != nil {
		return err
	}

	logger.Info(agent, "shutdown", "Server exited gracefully.")
	return nil
}
