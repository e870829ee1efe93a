// Package serve implements the omsd "serve" subcommand: it builds the
// shared server.Server and runs the outbox relay and backpressure
// monitor until an interrupt or termination signal arrives.
//
// Grounded on internal/cmd/commands/serve/serve.go's Command shape
// (flags + Run returning an exit code), trimmed to this service's
// scope: no zero-config/browser-launch mode, since the ontology store
// has no document-workspace concept to bootstrap.
package serve

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/hashicorp/go-hclog"

	"github.com/foundry/oms/internal/config"
	"github.com/foundry/oms/internal/server"
)

// Command runs the daemon.
type Command struct {
	UI     commandUI
	Logger hclog.Logger
}

// commandUI is the subset of cli.Ui this command uses, kept narrow so
// the package doesn't need to import mitchellh/cli just for the
// interface shape.
type commandUI interface {
	Output(string)
	Error(string)
}

func (c *Command) Synopsis() string {
	return "Run the ontology store daemon"
}

func (c *Command) Help() string {
	return `Usage: omsd serve [options]

  Runs the ontology store's outbox relay and backpressure monitor,
  reading connection and tuning parameters from the environment (see
  internal/config for the full list of STORE_*/CACHE_*/BUS_*/OUTBOX_*
  variables).

Options:

  -routing-config=<path>   HCL file of event-routing rules, overriding
                            the built-in defaults.
  -log-level=<level>       trace|debug|info|warn|error (default: info)
`
}

func (c *Command) Run(args []string) int {
	f := flag.NewFlagSet("serve", flag.ContinueOnError)
	routingConfig := f.String("routing-config", "", "Path to an HCL event-routing rule file")
	logLevel := f.String("log-level", "info", "Log level")
	if err := f.Parse(args); err != nil {
		c.UI.Error(fmt.Sprintf("error parsing flags: %v", err))
		return 1
	}

	logger := c.Logger
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	logger.SetLevel(hclog.LevelFromString(*logLevel))

	cfg, err := config.Load()
	if err != nil {
		c.UI.Error(fmt.Sprintf("error loading config: %v", err))
		return 1
	}
	if *routingConfig != "" {
		cfg.RoutingConfigPath = *routingConfig
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	srv, err := server.New(ctx, cfg, logger)
	if err != nil {
		c.UI.Error(fmt.Sprintf("error building server: %v", err))
		return 1
	}

	go srv.Outbox.Start(ctx)
	go srv.Backpressure.Start(ctx)

	c.UI.Output(fmt.Sprintf("omsd serving (driver=%s bus=%s)", cfg.Store.Driver, cfg.Bus.URL))

	<-ctx.Done()
	c.UI.Output("shutdown signal received")

	srv.Outbox.Stop()
	srv.Backpressure.Stop()

	return 0
}
