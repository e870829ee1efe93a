// Package outbox implements the transactional outbox poll/relay loop
// (C7): claim pending rows, route and publish them through pkg/events,
// mark published or schedule a backoff retry, and watch for a growing
// backlog.
//
// Grounded directly on pkg/indexer/relay/relay.go's polling-loop shape
// (ticker-driven batch claim, success/fail counters, Start/Stop
// lifecycle), generalized from hermes's single fixed Kafka topic to
// dispatch through an events.Router that may fan out to several
// targets per event.
package outbox

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/hashicorp/go-hclog"
	"gorm.io/gorm"

	"github.com/foundry/oms/pkg/events"
	"github.com/foundry/oms/pkg/models"
)

const (
	defaultPollInterval = 500 * time.Millisecond
	defaultBatchSize    = 100
	defaultMaxRetries   = 10
	maxBackoffSeconds   = 300
)

// Relay polls the outbox table and publishes rows through an
// events.Router, retrying transient failures with exponential backoff
// and marking permanently exhausted rows failed (§4.7).
type Relay struct {
	db     *gorm.DB
	router *events.Router
	source string
	logger hclog.Logger

	pollInterval time.Duration
	batchSize    int
	maxRetries   int

	stopCh chan struct{}
}

// Config configures a Relay.
type Config struct {
	DB     *gorm.DB
	Router *events.Router
	Source string // CloudEvents source URI stamped on every published event

	PollInterval time.Duration
	BatchSize    int
	MaxRetries   int

	Logger hclog.Logger
}

// New constructs a Relay from cfg, filling in the §4.7 defaults
// (500ms poll, batch of 100, 10 retries before terminal failure).
func New(cfg Config) (*Relay, error) {
	if cfg.DB == nil {
		return nil, fmt.Errorf("outbox: database is required")
	}
	if cfg.Router == nil {
		return nil, fmt.Errorf("outbox: router is required")
	}
	if cfg.PollInterval == 0 {
		cfg.PollInterval = defaultPollInterval
	}
	if cfg.BatchSize == 0 {
		cfg.BatchSize = defaultBatchSize
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = defaultMaxRetries
	}
	if cfg.Logger == nil {
		cfg.Logger = hclog.NewNullLogger()
	}
	if cfg.Source == "" {
		cfg.Source = "oms://schema"
	}

	return &Relay{
		db:           cfg.DB,
		router:       cfg.Router,
		source:       cfg.Source,
		logger:       cfg.Logger.Named("outbox-relay"),
		pollInterval: cfg.PollInterval,
		batchSize:    cfg.BatchSize,
		maxRetries:   cfg.MaxRetries,
		stopCh:       make(chan struct{}),
	}, nil
}

// Start runs the poll/relay loop until ctx is cancelled or Stop is
// called.
func (r *Relay) Start(ctx context.Context) error {
	r.logger.Info("starting outbox relay", "poll_interval", r.pollInterval, "batch_size", r.batchSize)

	ticker := time.NewTicker(r.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-r.stopCh:
			return nil
		case <-ticker.C:
			if err := r.processBatch(ctx); err != nil {
				r.logger.Error("outbox batch failed", "error", err)
			}
		}
	}
}

// Stop ends the poll loop.
func (r *Relay) Stop() { close(r.stopCh) }

func (r *Relay) processBatch(ctx context.Context) error {
	entries, err := models.FindPendingOutboxEntries(r.db, r.batchSize)
	if err != nil {
		return fmt.Errorf("outbox: finding pending entries: %w", err)
	}
	if len(entries) == 0 {
		return nil
	}

	var success, failed int
	for i := range entries {
		if err := r.publishEntry(ctx, &entries[i]); err != nil {
			r.handleFailure(&entries[i], err)
			failed++
			continue
		}
		if err := models.MarkAsPublished(r.db, entries[i].ID); err != nil {
			r.logger.Error("marking entry published failed", "outbox_id", entries[i].ID, "error", err)
			failed++
			continue
		}
		success++
	}

	r.logger.Debug("processed outbox batch", "total", len(entries), "success", success, "failed", failed)
	return nil
}

func (r *Relay) publishEntry(ctx context.Context, entry *models.OutboxEvent) error {
	var payload map[string]interface{}
	if err := json.Unmarshal(entry.PayloadJSON, &payload); err != nil {
		return fmt.Errorf("outbox: decoding payload for entry %d: %w", entry.ID, err)
	}
	resourceID, _ := payload["entityId"].(string)

	ce := events.New(entry.EventID, entry.Type, r.source, string(entry.Branch), string(entry.CommitHash), json.RawMessage(entry.PayloadJSON))
	return r.router.Route(ctx, ce, resourceID)
}

// handleFailure schedules the next retry using exponential backoff
// (next_attempt_at = now + min(2^retry_count, 300)s per §4.7), or
// marks the row terminally failed once maxRetries is exhausted.
func (r *Relay) handleFailure(entry *models.OutboxEvent, publishErr error) {
	terminal := entry.RetryCount+1 >= r.maxRetries
	next := time.Now().Add(r.backoffFor(entry.RetryCount))
	if err := models.MarkAsFailed(r.db, entry.ID, publishErr.Error(), next, terminal); err != nil {
		r.logger.Error("marking entry failed", "outbox_id", entry.ID, "error", err)
		return
	}
	if terminal {
		r.logger.Error("outbox entry exhausted retries, now terminally failed",
			"outbox_id", entry.ID, "type", entry.Type, "retries", entry.RetryCount+1)
	} else {
		r.logger.Warn("outbox entry publish failed, scheduled retry",
			"outbox_id", entry.ID, "retry_count", entry.RetryCount+1, "next_attempt_at", next)
	}
}

// backoffFor computes min(2^retryCount, 300) seconds using
// backoff.ExponentialBackOff's growth curve (base 2, no jitter beyond
// what the library applies) rather than hand-rolling the doubling.
func (r *Relay) backoffFor(retryCount int) time.Duration {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 1 * time.Second
	b.Multiplier = 2
	b.MaxInterval = maxBackoffSeconds * time.Second
	b.MaxElapsedTime = 0 // never expire on its own; maxRetries governs termination
	b.Reset()

	var d time.Duration
	for i := 0; i <= retryCount; i++ {
		d = b.NextBackOff()
	}
	if d > maxBackoffSeconds*time.Second {
		d = maxBackoffSeconds * time.Second
	}
	return d
}
