// Command omsd is the ontology store's main daemon: it wires the
// store, schema, branch, validator, outbox, event router, and
// time-travel engine together and runs the outbox relay and
// backpressure monitor for the process's lifetime.
//
// Grounded on internal/cmd/main.go's mitchellh/cli + hclog bootstrap
// (cliName-derived logger, -version short-circuit, default subcommand),
// generalized from hermes's multi-command registry (serve/operator/
// indexeragent) down to the single "serve" command this service needs
// today.
package main

import (
	"bufio"
	"fmt"
	"os"

	"github.com/hashicorp/go-hclog"
	"github.com/mitchellh/cli"

	"github.com/foundry/oms/cmd/omsd/commands/serve"
)

const version = "0.1.0"

func main() {
	os.Exit(run(os.Args))
}

func run(args []string) int {
	cliName := "omsd"

	log := hclog.New(&hclog.LoggerOptions{
		Name: cliName,
	})

	if len(args) == 2 && (args[1] == "-version" || args[1] == "-v") {
		fmt.Println(version)
		return 0
	}
	if len(args) == 1 {
		args = append(args, "serve")
	}

	ui := &cli.BasicUi{
		Reader:      bufio.NewReader(os.Stdin),
		Writer:      os.Stdout,
		ErrorWriter: os.Stderr,
	}

	c := &cli.CLI{
		Name:    cliName,
		Args:    args[1:],
		Version: version,
		Commands: map[string]cli.CommandFactory{
			"serve": func() (cli.Command, error) {
				return &serve.Command{UI: ui, Logger: log}, nil
			},
		},
	}

	exitCode, err := c.Run()
	if err != nil {
		log.Error("command failed", "error", err)
		return 1
	}
	return exitCode
}
