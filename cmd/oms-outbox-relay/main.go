// Command oms-outbox-relay runs the transactional outbox poll/publish
// loop and backpressure monitor as a standalone process, separate from
// the API daemon, so the relay's publish throughput can be scaled and
// restarted independently of request handling.
//
// Grounded on cmd/notifier/main.go's flag-parsed, signal-driven worker
// loop shape (no CLI framework needed for a single-purpose daemon).
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hashicorp/go-hclog"

	"github.com/foundry/oms/internal/config"
	"github.com/foundry/oms/internal/server"
)

func main() {
	routingConfig := flag.String("routing-config", "", "Path to an HCL event-routing rule file (overrides OUTBOX_ROUTING_CONFIG)")
	logLevel := flag.String("log-level", "info", "Log level (trace|debug|info|warn|error)")
	flag.Parse()

	logger := hclog.New(&hclog.LoggerOptions{
		Name:  "oms-outbox-relay",
		Level: hclog.LevelFromString(*logLevel),
	})

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}
	if *routingConfig != "" {
		cfg.RoutingConfigPath = *routingConfig
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	srv, err := server.New(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to build server", "error", err)
		os.Exit(1)
	}

	go srv.Outbox.Start(ctx)
	go srv.Backpressure.Start(ctx)

	logger.Info("outbox relay running", "poll_interval", cfg.Outbox.PollInterval(), "batch_size", cfg.Outbox.BatchSize)

	<-ctx.Done()
	logger.Info("shutdown signal received, stopping relay")

	srv.Outbox.Stop()
	srv.Backpressure.Stop()

	// Give in-flight publishes a moment to finish their current batch
	// before the process exits.
	time.Sleep(500 * time.Millisecond)
	logger.Info("outbox relay stopped")
}
