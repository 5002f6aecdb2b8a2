package agent

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cuemby/hamster/pkg/api"
	"github.com/cuemby/hamster/pkg/health"
	"github.com/cuemby/hamster/pkg/log"
	"github.com/cuemby/hamster/pkg/metrics"
	"github.com/cuemby/hamster/pkg/types"
	"github.com/rs/zerolog"
)

// DefaultInterval matches one epoch of the manager
const DefaultInterval = 6 * time.Second

// Client is the part of the manager API the agent uses
type Client interface {
	GetResource(ctx context.Context, id uint64) (*types.ComputingResource, error)
	GetDApp(ctx context.Context, id uint64) (*api.DAppResponse, error)
	ResourceHeartbeat(ctx context.Context, id uint64, dappIDs []uint64) error
}

// Config holds agent configuration
type Config struct {
	ResourceID uint64
	Interval   time.Duration
	Probe      health.CheckType
	Health     health.Config
}

// Agent runs on a provider node. Every interval it probes the DApps placed
// on its resource and sends a heartbeat listing the healthy ones.
type Agent struct {
	client     Client
	resourceID uint64
	interval   time.Duration
	probeType  health.CheckType
	health     health.Config

	mu       sync.Mutex
	monitors map[uint64]*dappMonitor

	stopCh chan struct{}
	doneCh chan struct{}
	logger zerolog.Logger
}

// dappMonitor tracks the probe state of one hosted DApp
type dappMonitor struct {
	dappID  uint64
	checker health.Checker // nil: reported without probing
	status  *health.Status
}

// NewAgent creates an agent for cfg.ResourceID
func NewAgent(client Client, cfg Config) *Agent {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.Health == (health.Config{}) {
		cfg.Health = health.DefaultConfig()
	}
	return &Agent{
		client:     client,
		resourceID: cfg.ResourceID,
		interval:   cfg.Interval,
		probeType:  cfg.Probe,
		health:     cfg.Health,
		monitors:   make(map[uint64]*dappMonitor),
		stopCh:     make(chan struct{}),
		doneCh:     make(chan struct{}),
		logger:     log.WithResourceID("agent", cfg.ResourceID),
	}
}

// Start sends a first heartbeat immediately, then one per interval
func (a *Agent) Start() {
	go a.heartbeatLoop()
}

// Stop stops the heartbeat loop and waits for it to exit
func (a *Agent) Stop() {
	close(a.stopCh)
	<-a.doneCh
}

func (a *Agent) heartbeatLoop() {
	defer close(a.doneCh)

	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()

	for {
		if _, err := a.Beat(context.Background()); err != nil {
			a.logger.Error().Err(err).Msg("Heartbeat failed")
		}

		select {
		case <-ticker.C:
		case <-a.stopCh:
			return
		}
	}
}

// Beat probes the hosted DApps and sends one heartbeat. It returns the DApp
// ids reported as alive. Probes run concurrently within probeBudget; the
// heartbeat has a deadline of its own.
func (a *Agent) Beat(ctx context.Context) ([]uint64, error) {
	reqCtx, cancel := context.WithTimeout(ctx, a.interval)
	defer cancel()

	resource, err := a.client.GetResource(reqCtx, a.resourceID)
	if err != nil {
		return nil, fmt.Errorf("failed to get resource: %w", err)
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	a.sync(reqCtx, resource)
	alive := a.probe(ctx, resource.DApps)

	hbCtx, hbCancel := context.WithTimeout(ctx, a.interval)
	defer hbCancel()

	err = a.client.ResourceHeartbeat(hbCtx, a.resourceID, alive)
	metrics.AgentHeartbeatsTotal.WithLabelValues(metrics.Result(err)).Inc()
	if err != nil {
		return nil, fmt.Errorf("failed to send heartbeat: %w", err)
	}

	a.logger.Debug().
		Int("hosted", len(resource.DApps)).
		Int("alive", len(alive)).
		Msg("Heartbeat sent")
	return alive, nil
}

// sync starts monitoring DApps newly placed here and forgets those that left
func (a *Agent) sync(ctx context.Context, resource *types.ComputingResource) {
	hosted := make(map[uint64]bool, len(resource.DApps))
	for _, id := range resource.DApps {
		hosted[id] = true
	}

	for id := range a.monitors {
		if !hosted[id] {
			delete(a.monitors, id)
			a.logger.Info().Uint64("dapp_id", id).Msg("DApp left resource")
		}
	}

	for _, id := range resource.DApps {
		if _, ok := a.monitors[id]; ok {
			continue
		}
		m, err := a.newMonitor(ctx, resource, id)
		if err != nil {
			// retried on the next beat; the DApp is not reported meanwhile
			a.logger.Warn().Err(err).Uint64("dapp_id", id).Msg("Failed to set up probe")
			continue
		}
		a.monitors[id] = m
		a.logger.Info().Uint64("dapp_id", id).Bool("probed", m.checker != nil).Msg("Monitoring DApp")
	}
}

func (a *Agent) newMonitor(ctx context.Context, resource *types.ComputingResource, dappID uint64) (*dappMonitor, error) {
	resp, err := a.client.GetDApp(ctx, dappID)
	if err != nil {
		return nil, err
	}
	if resp.Deployment == nil {
		return nil, fmt.Errorf("dapp %d has no deployment", dappID)
	}

	checker, err := health.ForDeployment(a.probeType, resource, resp.Deployment)
	if err != nil {
		return nil, err
	}
	return &dappMonitor{
		dappID:  dappID,
		checker: checker,
		status:  health.NewStatus(),
	}, nil
}

// probeBudget bounds one round of probes: the probe timeout, at most half
// an interval
func (a *Agent) probeBudget() time.Duration {
	budget := a.interval / 2
	if a.health.Timeout > 0 && a.health.Timeout < budget {
		budget = a.health.Timeout
	}
	return budget
}

// probe checks every monitored DApp in ids concurrently and returns the alive
// ones in ids order
func (a *Agent) probe(ctx context.Context, ids []uint64) []uint64 {
	probeCtx, cancel := context.WithTimeout(ctx, a.probeBudget())
	defer cancel()

	healthy := make([]bool, len(ids))
	var wg sync.WaitGroup
	for i, id := range ids {
		m, ok := a.monitors[id]
		if !ok {
			continue
		}
		wg.Add(1)
		go func(i int, m *dappMonitor) {
			defer wg.Done()
			healthy[i] = a.check(probeCtx, m)
		}(i, m)
	}
	wg.Wait()

	alive := make([]uint64, 0, len(ids))
	for i, id := range ids {
		if healthy[i] {
			alive = append(alive, id)
		}
	}
	return alive
}

// check runs one probe and reports whether the DApp counts as alive
func (a *Agent) check(ctx context.Context, m *dappMonitor) bool {
	if m.checker == nil {
		return true
	}

	r := m.checker.Check(ctx)
	m.status.Update(r, a.health)
	metrics.ProbesTotal.WithLabelValues(string(m.checker.Type()), healthLabel(r.Healthy)).Inc()

	if !m.status.Healthy {
		a.logger.Warn().
			Uint64("dapp_id", m.dappID).
			Int("failures", m.status.ConsecutiveFailures).
			Str("message", r.Message).
			Msg("DApp unhealthy")
	}
	return m.status.Healthy
}

func healthLabel(healthy bool) string {
	if healthy {
		return "healthy"
	}
	return "unhealthy"
}
