// Package health watches ledger network reachability in the background
// so operators learn about a dead RPC endpoint before the next anchor
// attempt fails.
package health

import (
	"context"
	"os"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Config holds monitor configuration.
type Config struct {
	CheckInterval time.Duration
	ProbeTimeout  time.Duration
	FailThreshold int
}

// Prober reports whether the ledger network is currently reachable.
type Prober interface {
	Connected(ctx context.Context) bool
}

// StatusFunc is an optional callback invoked after every probe, e.g. to
// set a connectivity gauge.
type StatusFunc func(connected bool)

// Monitor runs periodic ledger connectivity probes and logs transitions
// between reachable and degraded.
type Monitor struct {
	prober    Prober
	cfg       Config
	onStatus  StatusFunc
	mu        sync.Mutex
	failCount int
	degraded  bool
	logger    *zap.Logger
}

// New creates a Monitor. Zero-valued config fields get defaults.
func New(prober Prober, cfg Config, logger *zap.Logger) *Monitor {
	if cfg.CheckInterval == 0 {
		cfg.CheckInterval = 30 * time.Second
	}
	if cfg.ProbeTimeout == 0 {
		cfg.ProbeTimeout = 10 * time.Second
	}
	if cfg.FailThreshold == 0 {
		cfg.FailThreshold = 3
	}
	return &Monitor{prober: prober, cfg: cfg, logger: logger}
}

// SetStatusFunc configures the per-probe status callback.
func (m *Monitor) SetStatusFunc(fn StatusFunc) {
	m.onStatus = fn
}

// Start runs the probe loop until quit is signalled.
func (m *Monitor) Start(quit <-chan os.Signal) {
	ticker := time.NewTicker(m.cfg.CheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), m.cfg.ProbeTimeout)
			m.Check(ctx)
			cancel()
		case <-quit:
			return
		}
	}
}

// Check runs a single probe and updates the degraded state. Exposed so
// callers can force an immediate probe at startup.
func (m *Monitor) Check(ctx context.Context) {
	connected := m.prober.Connected(ctx)

	if m.onStatus != nil {
		m.onStatus(connected)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if connected {
		if m.degraded {
			m.logger.Info("ledger connectivity recovered",
				zap.Int("failed_probes", m.failCount))
		}
		m.failCount = 0
		m.degraded = false
		return
	}

	m.failCount++
	if m.failCount == m.cfg.FailThreshold {
		m.degraded = true
		m.logger.Warn("ledger connectivity degraded",
			zap.Int("fail_count", m.failCount),
			zap.Duration("check_interval", m.cfg.CheckInterval),
		)
	}
}

// Degraded reports whether the monitor currently considers the ledger
// unreachable (FailThreshold consecutive failed probes).
func (m *Monitor) Degraded() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.degraded
}
