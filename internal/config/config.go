// Package config loads the service's runtime configuration from the
// environment variables enumerated in the external-interfaces section
// of the ontology store's specification. It follows the teacher's
// env-var-first-then-default idiom (see pkg/kafka's broker/topic
// lookups) but centralizes it into one struct built once at process
// start, using viper as the loader so defaults, env binding, and
// (optionally) a config file are handled uniformly instead of being
// reimplemented per package.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Store holds the database connection parameters. Field names follow
// the spec's STORE_* environment variables; STORE_ENDPOINT doubles as
// either a host:port pair (postgres) or a filesystem path (sqlite).
type Store struct {
	Driver   string // "postgres" or "sqlite"
	Endpoint string
	User     string
	Key      string
	DB       string
}

// Cache holds the two-tier cache's sizing knobs.
type Cache struct {
	Size       int
	TTLSeconds int
}

func (c Cache) TTL() time.Duration {
	return time.Duration(c.TTLSeconds) * time.Second
}

// Bus holds message-bus (Kafka/Redpanda) connection parameters.
type Bus struct {
	URL        string
	StreamName string
}

// CloudBus holds the cloud event-bus (EventBridge) target parameters.
type CloudBus struct {
	Name   string
	Region string
}

// Outbox holds the transactional outbox's poll/batch tuning.
type Outbox struct {
	BatchSize       int
	PollIntervalMS  int
	MaxRetries      int
}

func (o Outbox) PollInterval() time.Duration {
	return time.Duration(o.PollIntervalMS) * time.Millisecond
}

// Validation holds the breaking-change validator's timing budget.
type Validation struct {
	TimeoutSeconds int
}

func (v Validation) Timeout() time.Duration {
	return time.Duration(v.TimeoutSeconds) * time.Second
}

// Config is the fully-resolved process configuration.
type Config struct {
	Store              Store
	Cache              Cache
	Bus                Bus
	CloudBus           CloudBus
	Outbox             Outbox
	Validation         Validation
	MultiPlatformRouting bool
	MTLSEnabled          bool

	// RoutingConfigPath, if set, points to an HCL file describing
	// additional/overriding event-routing rules for pkg/events. Not part
	// of the spec's enumerated env vars; an ambient knob the router
	// needs to be configurable without a code change, in the style of
	// the teacher's cmd/notifier HCL config file.
	RoutingConfigPath string
}

// Load builds a Config from the environment, applying the spec's
// documented defaults for anything unset.
func Load() (*Config, error) {
	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("store_endpoint", "localhost:5432")
	v.SetDefault("store_driver", "postgres")
	v.SetDefault("cache_size", 1000)
	v.SetDefault("cache_ttl_seconds", 3600)
	v.SetDefault("bus_url", "localhost:19092")
	v.SetDefault("bus_stream_name", "oms.events")
	v.SetDefault("cloud_bus_name", "oms-event-bus")
	v.SetDefault("cloud_bus_region", "us-east-1")
	v.SetDefault("outbox_batch_size", 100)
	v.SetDefault("outbox_poll_interval_ms", 500)
	v.SetDefault("outbox_max_retries", 10)
	v.SetDefault("validation_timeout_seconds", 30)
	v.SetDefault("multi_platform_routing", false)
	v.SetDefault("mtls_enabled", false)

	cfg := &Config{
		Store: Store{
			Driver:   v.GetString("store_driver"),
			Endpoint: v.GetString("store_endpoint"),
			User:     v.GetString("store_user"),
			Key:      v.GetString("store_key"),
			DB:       v.GetString("store_db"),
		},
		Cache: Cache{
			Size:       v.GetInt("cache_size"),
			TTLSeconds: v.GetInt("cache_ttl_seconds"),
		},
		Bus: Bus{
			URL:        v.GetString("bus_url"),
			StreamName: v.GetString("bus_stream_name"),
		},
		CloudBus: CloudBus{
			Name:   v.GetString("cloud_bus_name"),
			Region: v.GetString("cloud_bus_region"),
		},
		Outbox: Outbox{
			BatchSize:      v.GetInt("outbox_batch_size"),
			PollIntervalMS: v.GetInt("outbox_poll_interval_ms"),
			MaxRetries:     v.GetInt("outbox_max_retries"),
		},
		Validation: Validation{
			TimeoutSeconds: v.GetInt("validation_timeout_seconds"),
		},
		MultiPlatformRouting: v.GetBool("multi_platform_routing"),
		MTLSEnabled:          v.GetBool("mtls_enabled"),
		RoutingConfigPath:    v.GetString("outbox_routing_config"),
	}

	if cfg.Store.Driver != "postgres" && cfg.Store.Driver != "sqlite" {
		return nil, fmt.Errorf("config: unsupported STORE_DRIVER %q (want postgres or sqlite)", cfg.Store.Driver)
	}

	return cfg, nil
}
