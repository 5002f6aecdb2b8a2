package reconciler

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/cuemby/hamster/pkg/provider"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeTicker struct {
	mu      sync.Mutex
	leader  bool
	epoch   uint64
	ticks   []uint64
	tickErr error
}

func (f *fakeTicker) IsLeader() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.leader
}

func (f *fakeTicker) Epoch() (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.epoch, nil
}

func (f *fakeTicker) Tick(epoch uint64) (*provider.SweepResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.tickErr != nil {
		return nil, f.tickErr
	}
	f.ticks = append(f.ticks, epoch)
	f.epoch = epoch
	return &provider.SweepResult{Epoch: epoch}, nil
}

func (f *fakeTicker) tickCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.ticks)
}

func TestNewReconcilerDefaultInterval(t *testing.T) {
	r := NewReconciler(&fakeTicker{}, 0)
	assert.Equal(t, DefaultInterval, r.interval)

	r = NewReconciler(&fakeTicker{}, time.Second)
	assert.Equal(t, time.Second, r.interval)
}

func TestReconcileAdvancesEpoch(t *testing.T) {
	ticker := &fakeTicker{leader: true, epoch: 41}
	r := NewReconciler(ticker, time.Hour)

	result, err := r.reconcile()
	require.NoError(t, err)
	assert.Equal(t, uint64(42), result.Epoch)

	_, err = r.reconcile()
	require.NoError(t, err)
	assert.Equal(t, []uint64{42, 43}, ticker.ticks)
}

func TestReconcileSkipsFollower(t *testing.T) {
	ticker := &fakeTicker{leader: false}
	r := NewReconciler(ticker, time.Hour)

	result, err := r.reconcile()
	require.NoError(t, err)
	assert.Nil(t, result)
	assert.Empty(t, ticker.ticks)
}

func TestReconcileTickError(t *testing.T) {
	ticker := &fakeTicker{leader: true, tickErr: errors.New("raft unavailable")}
	r := NewReconciler(ticker, time.Hour)

	_, err := r.reconcile()
	assert.ErrorContains(t, err, "raft unavailable")
}

func TestReconcilerLoop(t *testing.T) {
	ticker := &fakeTicker{leader: true}
	r := NewReconciler(ticker, 10*time.Millisecond)
	r.Start()
	defer r.Stop()

	assert.Eventually(t, func() bool {
		return ticker.tickCount() >= 3
	}, 2*time.Second, 10*time.Millisecond)
}
