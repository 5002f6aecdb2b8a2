package reconciler

import (
	"fmt"
	"sync"
	"time"

	"github.com/cuemby/hamster/pkg/log"
	"github.com/cuemby/hamster/pkg/metrics"
	"github.com/cuemby/hamster/pkg/provider"
	"github.com/rs/zerolog"
)

// DefaultInterval is the wall-clock length of one epoch
const DefaultInterval = 6 * time.Second

// Ticker is the part of the manager the reconciler drives
type Ticker interface {
	IsLeader() bool
	Epoch() (uint64, error)
	Tick(epoch uint64) (*provider.SweepResult, error)
}

// Reconciler advances the epoch on a fixed interval. Each tick runs the
// liveness sweep, which takes silent resources offline, moves their DApps and
// destroys silent DApps.
type Reconciler struct {
	ticker   Ticker
	interval time.Duration
	mu       sync.Mutex
	stopCh   chan struct{}
	logger   zerolog.Logger
}

// NewReconciler creates a new reconciler. A zero interval selects
// DefaultInterval.
func NewReconciler(ticker Ticker, interval time.Duration) *Reconciler {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Reconciler{
		ticker:   ticker,
		interval: interval,
		stopCh:   make(chan struct{}),
		logger:   log.WithComponent("reconciler"),
	}
}

// Start begins the reconciliation loop
func (r *Reconciler) Start() {
	go r.run()
}

// Stop stops the reconciler
func (r *Reconciler) Stop() {
	close(r.stopCh)
}

// run is the main reconciliation loop
func (r *Reconciler) run() {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if _, err := r.reconcile(); err != nil {
				r.logger.Error().Err(err).Msg("Reconciliation failed")
			}
		case <-r.stopCh:
			return
		}
	}
}

// reconcile advances the epoch by one. Followers do nothing and return a nil
// result.
func (r *Reconciler) reconcile() (*provider.SweepResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.ticker.IsLeader() {
		return nil, nil
	}

	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.TickDuration)

	epoch, err := r.ticker.Epoch()
	if err != nil {
		metrics.TicksTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("failed to read epoch: %w", err)
	}

	result, err := r.ticker.Tick(epoch + 1)
	metrics.TicksTotal.WithLabelValues(metrics.Result(err)).Inc()
	if err != nil {
		return nil, fmt.Errorf("failed to tick epoch %d: %w", epoch+1, err)
	}

	if len(result.TimedOutResources) > 0 || len(result.TimedOutDApps) > 0 || len(result.Failed) > 0 {
		r.logger.Info().
			Uint64("epoch", result.Epoch).
			Int("resources", len(result.TimedOutResources)).
			Int("dapps", len(result.TimedOutDApps)).
			Strs("failed", result.Failed).
			Msg("Liveness sweep changed state")
	} else {
		r.logger.Debug().Uint64("epoch", result.Epoch).Msg("Epoch advanced")
	}

	return result, nil
}
