// Package server aggregates the process-wide dependencies the OMS
// daemon's command handlers share: the store, schema, branch, and
// validator services, the outbox relay and its backpressure monitor,
// the event router and its configured targets, the time-travel engine,
// and the in-process LRU cache. Grounded on the teacher's
// internal/server/server.go (a plain struct of shared singletons built
// once at process start and handed to every command), generalized from
// hermes's search/workspace/Jira fields to this service's domain.
package server

import (
	"context"
	"fmt"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/eventbridge"
	"github.com/hashicorp/go-hclog"
	"gorm.io/gorm"

	"github.com/foundry/oms/internal/config"
	"github.com/foundry/oms/internal/db"
	"github.com/foundry/oms/pkg/branch"
	"github.com/foundry/oms/pkg/cache"
	"github.com/foundry/oms/pkg/events"
	"github.com/foundry/oms/pkg/outbox"
	"github.com/foundry/oms/pkg/schema"
	"github.com/foundry/oms/pkg/store"
	"github.com/foundry/oms/pkg/timetravel"
	"github.com/foundry/oms/pkg/validator"
)

// Server holds the long-lived, shared dependencies every command and
// API handler runs against. Exactly one is built per process (see New)
// and its lifecycle is owned by the command that constructed it.
type Server struct {
	// Config is the resolved process configuration.
	Config *config.Config

	// DB is the shared GORM connection backing Store and the branch
	// service's proposal persistence.
	DB *gorm.DB

	// Logger is the root logger; every subsystem gets a .Named() child.
	Logger hclog.Logger

	// Store is the version-controlled commit/branch layer every other
	// service reads and writes through.
	Store *store.Store

	// Schema manages object/link/interface type definitions.
	Schema *schema.Schema

	// Branch is the branch lifecycle and proposal/merge orchestrator.
	Branch *branch.Service

	// Validator runs breaking-change detection over proposal diffs.
	Validator *validator.Pipeline

	// Router fans CloudEvents out to the configured targets
	// (message bus, cloud event bus) per the category/priority rules.
	Router *events.Router

	// Outbox polls the transactional outbox and publishes through
	// Router, retrying transient failures with backoff.
	Outbox *outbox.Relay

	// Backpressure watches the outbox's pending-row growth rate.
	Backpressure *outbox.BackpressureMonitor

	// TimeTravel answers AS_OF/BETWEEN/ALL_VERSIONS/compare/timeline/
	// snapshot queries over Store, cached through Cache.
	TimeTravel *timetravel.Engine

	// Cache is the in-process LRU cache shared by TimeTravel and any
	// read-heavy API handler; no remote tier is wired.
	Cache cache.Cache
}

// New builds a Server from cfg: opens the database, constructs every
// domain service over it, wires the event router's targets, and starts
// neither the outbox relay nor the backpressure monitor — callers
// (cmd/omsd, cmd/oms-outbox-relay) decide which background loops to
// run with Server.Outbox.Start / Server.Backpressure.Start.
func New(ctx context.Context, cfg *config.Config, logger hclog.Logger) (*Server, error) {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}

	gdb, err := db.New(cfg.Store)
	if err != nil {
		return nil, fmt.Errorf("server: opening database: %w", err)
	}

	st := store.New(gdb, logger.Named("store"))
	sc := schema.New(st)
	br := branch.New(st, gdb)
	vp := validator.NewPipeline(validator.DefaultRules(), st)

	router, err := buildRouter(ctx, cfg, logger.Named("events"))
	if err != nil {
		return nil, fmt.Errorf("server: building event router: %w", err)
	}

	relay, err := outbox.New(outbox.Config{
		DB:           gdb,
		Router:       router,
		Source:       "com.foundry.oms",
		PollInterval: cfg.Outbox.PollInterval(),
		BatchSize:    cfg.Outbox.BatchSize,
		MaxRetries:   cfg.Outbox.MaxRetries,
		Logger:       logger.Named("outbox"),
	})
	if err != nil {
		return nil, fmt.Errorf("server: building outbox relay: %w", err)
	}

	bp := outbox.NewBackpressureMonitor(outbox.BackpressureConfig{
		DB:     gdb,
		Router: router,
		Source: "com.foundry.oms",
		Logger: logger.Named("outbox.backpressure"),
	})

	local := cache.NewLRU(cfg.Cache.Size)
	tt := timetravel.New(timetravel.Config{
		Store: st,
		Cache: local,
		TTL:   cfg.Cache.TTL(),
	})

	return &Server{
		Config:       cfg,
		DB:           gdb,
		Logger:       logger,
		Store:        st,
		Schema:       sc,
		Branch:       br,
		Validator:    vp,
		Router:       router,
		Outbox:       relay,
		Backpressure: bp,
		TimeTravel:   tt,
		Cache:        local,
	}, nil
}

// buildRouter constructs the event router, wiring the message-bus and
// cloud-bus targets named by cfg. Either target failing to construct
// (e.g. no brokers configured) is fatal: the outbox has nowhere to
// publish without at least one live target.
func buildRouter(ctx context.Context, cfg *config.Config, logger hclog.Logger) (*events.Router, error) {
	targets := make(map[string]events.Target)

	msgBus, err := events.NewMsgBusTarget(events.MsgBusConfig{
		Brokers:     []string{cfg.Bus.URL},
		TopicPrefix: cfg.Bus.StreamName,
		Logger:      logger.Named("msgbus"),
	})
	if err != nil {
		return nil, fmt.Errorf("events: msg bus target: %w", err)
	}
	targets[events.TargetMsgBus] = msgBus

	if cfg.MultiPlatformRouting {
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.CloudBus.Region))
		if err != nil {
			return nil, fmt.Errorf("events: loading AWS config: %w", err)
		}
		cloudBus, err := events.NewCloudBusTarget(events.CloudBusConfig{
			Client:  eventbridge.NewFromConfig(awsCfg),
			BusName: cfg.CloudBus.Name,
			Source:  "com.foundry.oms",
			Logger:  logger.Named("cloudbus"),
		})
		if err != nil {
			return nil, fmt.Errorf("events: cloud bus target: %w", err)
		}
		targets[events.TargetCloudBus] = cloudBus
	}

	rules := events.DefaultRules()
	if cfg.RoutingConfigPath != "" {
		loaded, err := events.LoadRoutingConfig(cfg.RoutingConfigPath)
		if err != nil {
			return nil, fmt.Errorf("events: loading routing config %q: %w", cfg.RoutingConfigPath, err)
		}
		rules = loaded
	}

	return events.NewRouter(rules, targets), nil
}
