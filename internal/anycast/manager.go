package anycast

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/lattice-dns/dnscore/internal/metrics"
)

// Manager watches node health on an interval and keeps BGP announcement
// and VIP binding in sync with it: announce (and bind, if not already
// bound) when healthy, withdraw when not. Adapted from the teacher's
// AnycastManager; the health source is narrowed to HealthChecker instead
// of the teacher's full DNSService.
type Manager struct {
	health     HealthChecker
	routing    RoutingEngine
	vipManager VIPManager
	vip        string
	iface      string
	interval   time.Duration
	logger     *slog.Logger

	isAnnounced atomic.Bool
	vipBound    atomic.Bool
}

// NewManager constructs a Manager. interval defaults to 10s, the
// teacher's fixed check period, when zero.
func NewManager(health HealthChecker, routing RoutingEngine, vipManager VIPManager, vip, iface string, interval time.Duration, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	if interval <= 0 {
		interval = 10 * time.Second
	}
	return &Manager{
		health:     health,
		routing:    routing,
		vipManager: vipManager,
		vip:        vip,
		iface:      iface,
		interval:   interval,
		logger:     logger,
	}
}

// Start runs the health-check loop until ctx is canceled, withdrawing the
// BGP announcement on the way out.
func (m *Manager) Start(ctx context.Context) {
	m.logger.Info("starting anycast manager", "vip", m.vip, "iface", m.iface)

	m.TriggerCheck(ctx)

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			m.logger.Info("shutting down anycast manager, withdrawing route")
			if err := m.routing.Withdraw(context.Background(), m.vip); err != nil {
				m.logger.Error("failed to withdraw BGP on shutdown", "error", err, "vip", m.vip)
			}
			return
		case <-ticker.C:
			m.TriggerCheck(ctx)
		}
	}
}

// TriggerCheck runs one health check and announces or withdraws based on
// the result. Exported so callers (and tests) can drive a check outside
// the ticker loop.
func (m *Manager) TriggerCheck(ctx context.Context) {
	health := m.health.HealthCheck(ctx)

	healthy := true
	for backend, err := range health {
		if err != nil {
			m.logger.Warn("backend unhealthy", "backend", backend, "error", err)
			healthy = false
		}
	}

	announced := m.isAnnounced.Load()
	if healthy && !announced {
		m.announce(ctx)
	} else if !healthy && announced {
		m.withdraw(ctx)
	}
}

// Announced reports whether this node is currently announcing vip.
func (m *Manager) Announced() bool { return m.isAnnounced.Load() }

func (m *Manager) announce(ctx context.Context) {
	m.logger.Info("node healthy, initiating anycast announcement")

	if !m.vipBound.Load() {
		if err := m.vipManager.Bind(ctx, m.vip, m.iface); err != nil {
			m.logger.Error("failed to bind VIP", "error", err)
			return
		}
		m.vipBound.Store(true)
	}

	if err := m.routing.Announce(ctx, m.vip); err != nil {
		m.logger.Error("failed to announce BGP", "error", err)
		return
	}

	m.isAnnounced.Store(true)
	metrics.BGPAnnounced.Set(1)
}

func (m *Manager) withdraw(ctx context.Context) {
	m.logger.Warn("node unhealthy, withdrawing anycast announcement")

	if err := m.routing.Withdraw(ctx, m.vip); err != nil {
		m.logger.Error("failed to withdraw BGP", "error", err)
		return
	}

	m.isAnnounced.Store(false)
	metrics.BGPAnnounced.Set(0)
	// VIP stays bound to the interface for local connectivity/health checks.
}
