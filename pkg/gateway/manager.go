// Package gateway coordinates tool execution: client lifecycle, rate
// limiting, per-tool policies, and envelope construction.
package gateway

import (
	"context"
	"fmt"
	"sync"

	"github.com/quantarc/binance-gateway/core"
	"github.com/quantarc/binance-gateway/pkg/binance"
	"github.com/quantarc/binance-gateway/pkg/config"
	"github.com/quantarc/binance-gateway/pkg/metrics"
)

// clientIdentity is the part of the configuration a cached client was built
// from. A change in any field forces a rebuild.
type clientIdentity struct {
	apiKey     string
	apiSecret  string
	useTestnet bool
}

func identityOf(cfg config.Config) clientIdentity {
	return clientIdentity{
		apiKey:     cfg.APIKey,
		apiSecret:  cfg.APISecret,
		useTestnet: cfg.UseTestnet,
	}
}

// BuildFunc constructs an exchange client from a validated configuration.
type BuildFunc func(cfg config.Config) *binance.Client

// Manager owns the shared exchange client. The client is built lazily on
// first use, verified with a ping, and cached until Invalidate or a
// credential change. Construction failures are never retried internally;
// the next Client call starts from scratch.
type Manager struct {
	mu       sync.Mutex
	client   *binance.Client
	identity clientIdentity

	load    func() (config.Config, error)
	build   BuildFunc
	metrics *metrics.GatewayMetrics
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithBuilder overrides how clients are constructed.
func WithBuilder(build BuildFunc) ManagerOption {
	return func(m *Manager) { m.build = build }
}

// WithManagerMetrics records client rebuilds on the given collector.
func WithManagerMetrics(gm *metrics.GatewayMetrics) ManagerOption {
	return func(m *Manager) { m.metrics = gm }
}

// NewManager creates a Manager. load is called on every Client call so
// credential changes are picked up without a restart; config.Load is the
// usual choice.
func NewManager(load func() (config.Config, error), opts ...ManagerOption) *Manager {
	m := &Manager{
		load:  load,
		build: defaultBuild,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func defaultBuild(cfg config.Config) *binance.Client {
	baseURL := binance.DefaultBaseURL
	if cfg.UseTestnet {
		baseURL = binance.TestnetBaseURL
	}
	return binance.NewClient(cfg.APIKey, cfg.APISecret,
		binance.WithBaseURL(baseURL),
		binance.WithTimeout(cfg.RequestTimeout),
	)
}

// Client returns the shared exchange client, building and ping-verifying it
// first if no cached client matches the current configuration. Callers keep
// the handle they were given; an Invalidate only affects later calls.
func (m *Manager) Client(ctx context.Context) (*binance.Client, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cfg, err := m.load()
	if err != nil {
		return nil, err
	}

	identity := identityOf(cfg)
	if m.client != nil && m.identity == identity {
		return m.client, nil
	}

	rebuilding := m.client != nil
	client := m.build(cfg)
	if err := client.Ping(ctx); err != nil {
		return nil, fmt.Errorf("%w: connectivity check failed: %w", core.ErrClientInit, err)
	}

	m.client = client
	m.identity = identity
	if rebuilding && m.metrics != nil {
		m.metrics.RecordClientRebuild()
	}
	return client, nil
}

// Invalidate drops the cached client so the next Client call rebuilds it.
func (m *Manager) Invalidate() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.client = nil
	m.identity = clientIdentity{}
}
