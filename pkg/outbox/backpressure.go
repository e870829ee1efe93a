package outbox

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hashicorp/go-hclog"
	"gorm.io/gorm"

	"github.com/foundry/oms/pkg/events"
	"github.com/foundry/oms/pkg/models"
)

// BackpressureMonitor watches the outbox's pending-row growth rate and
// emits a system event when it grows faster than it drains over a
// rolling window (§4.7's sole backpressure signal).
type BackpressureMonitor struct {
	db     *gorm.DB
	router *events.Router
	source string
	logger hclog.Logger

	window        time.Duration
	checkInterval time.Duration

	samples []sample
	stopCh  chan struct{}
}

type sample struct {
	at      time.Time
	pending int64
}

// BackpressureConfig configures a BackpressureMonitor.
type BackpressureConfig struct {
	DB     *gorm.DB
	Router *events.Router
	Source string

	Window        time.Duration // default 5m, per §4.7
	CheckInterval time.Duration // default 30s

	Logger hclog.Logger
}

// NewBackpressureMonitor constructs a monitor from cfg.
func NewBackpressureMonitor(cfg BackpressureConfig) *BackpressureMonitor {
	if cfg.Window == 0 {
		cfg.Window = 5 * time.Minute
	}
	if cfg.CheckInterval == 0 {
		cfg.CheckInterval = 30 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = hclog.NewNullLogger()
	}
	if cfg.Source == "" {
		cfg.Source = "oms://outbox"
	}
	return &BackpressureMonitor{
		db:            cfg.DB,
		router:        cfg.Router,
		source:        cfg.Source,
		logger:        cfg.Logger.Named("outbox-backpressure"),
		window:        cfg.Window,
		checkInterval: cfg.CheckInterval,
		stopCh:        make(chan struct{}),
	}
}

// Start runs the sampling loop until ctx is cancelled or Stop is
// called.
func (m *BackpressureMonitor) Start(ctx context.Context) {
	ticker := time.NewTicker(m.checkInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-m.stopCh:
			return
		case <-ticker.C:
			m.sampleAndCheck(ctx)
		}
	}
}

// Stop ends the sampling loop.
func (m *BackpressureMonitor) Stop() { close(m.stopCh) }

func (m *BackpressureMonitor) sampleAndCheck(ctx context.Context) {
	pending, err := models.CountOutboxByStatus(m.db, models.OutboxPending)
	if err != nil {
		m.logger.Error("counting pending outbox rows failed", "error", err)
		return
	}

	now := time.Now()
	m.samples = append(m.samples, sample{at: now, pending: pending})
	// Keep the newest sample taken at or before the cutoff, so the
	// oldest retained sample spans at least one full window.
	cutoff := now.Add(-m.window)
	for len(m.samples) > 1 && !m.samples[1].at.After(cutoff) {
		m.samples = m.samples[1:]
	}

	if len(m.samples) < 2 {
		return
	}
	oldest := m.samples[0]
	if pending > oldest.pending && now.Sub(oldest.at) >= m.window {
		m.emitBackpressureAlert(ctx, oldest.pending, pending, now.Sub(oldest.at))
	}
}

// emitBackpressureAlert publishes a system event directly through the
// router (bypassing the outbox table: the alert is best-effort
// operational signaling, not a durable business event).
func (m *BackpressureMonitor) emitBackpressureAlert(ctx context.Context, before, after int64, over time.Duration) {
	payload, err := json.Marshal(map[string]interface{}{
		"pendingBefore": before,
		"pendingAfter":  after,
		"overSeconds":   over.Seconds(),
	})
	if err != nil {
		return
	}
	ce := events.New("", "com.foundry.oms.system.backpressure", m.source, "", "", payload)
	if err := m.router.Route(ctx, ce, "outbox"); err != nil {
		m.logger.Error("publishing backpressure alert failed", "error", err)
		return
	}
	m.logger.Warn(fmt.Sprintf("outbox backlog grew from %d to %d over %s", before, after, over))
}
