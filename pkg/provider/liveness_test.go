package provider

import (
	"testing"

	"github.com/cuemby/hamster/pkg/events"
	"github.com/cuemby/hamster/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExpired(t *testing.T) {
	tests := []struct {
		name      string
		now, last uint64
		timeout   uint64
		want      bool
	}{
		{"fresh", 10, 10, 5, false},
		{"at the limit", 15, 10, 5, false},
		{"past the limit", 16, 10, 5, true},
		{"heartbeat ahead of now", 3, 10, 5, false},
		{"zero timeout", 11, 10, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, expired(tt.now, tt.last, tt.timeout))
		})
	}
}

func TestTickAdvancesEpochMonotonically(t *testing.T) {
	p, _ := newTestProvider(t, 0)

	res, err := p.Tick(5)
	require.NoError(t, err)
	assert.Equal(t, uint64(5), res.Epoch)

	res, err = p.Tick(3)
	require.NoError(t, err)
	assert.Equal(t, uint64(5), res.Epoch)

	epoch, err := p.Epoch()
	require.NoError(t, err)
	assert.Equal(t, uint64(5), epoch)
}

func TestTickMovesDAppsOffTimedOutResource(t *testing.T) {
	p, rec := newTestProvider(t, 10)
	n1 := register(t, p, "provider", 4, 4)
	n2 := register(t, p, "provider", 2, 2)
	dapp := deploy(t, p, "alice", "web", 2, 2)
	require.Equal(t, n2, dapp.ResourceID)

	_, err := p.Tick(5)
	require.NoError(t, err)
	require.NoError(t, p.ResourceHeartbeat("provider", n1, nil))
	require.NoError(t, p.DAppHeartbeat("alice", "web"))

	res, err := p.Tick(10)
	require.NoError(t, err)
	assert.Empty(t, res.TimedOutResources, "exactly timeout epochs is not late")

	rec.reset()
	res, err = p.Tick(12)
	require.NoError(t, err)
	assert.Equal(t, []uint64{n2}, res.TimedOutResources)
	assert.Empty(t, res.TimedOutDApps, "moved dapps get a fresh heartbeat")
	assert.Empty(t, res.Failed)

	down, _ := p.GetResource(n2)
	assert.Equal(t, types.ResourceStatusOffline, down.Status)
	assert.Empty(t, down.DApps)
	assert.Equal(t, types.NewResourceConfig(2, 2), down.Config)

	moved, _ := p.GetDApp(dapp.ID)
	assert.Equal(t, n1, moved.ResourceID)
	assert.Equal(t, uint64(12), moved.LastHeartbeat)

	rank, _ := p.Rank()
	assert.Equal(t, []types.RankEntry{{Score: 4, ResourceID: n1}}, rank)
	assert.Equal(t, []events.EventType{events.EventDeploymentPlaced, events.EventResourceDown}, rec.types())

	// the offline resource is kept and can come back
	require.NoError(t, p.ResourceHeartbeat("provider", n2, nil))
	back, _ := p.GetResource(n2)
	assert.Equal(t, types.ResourceStatusOnline, back.Status)
	assert.Equal(t, uint64(12), back.LastHeartbeat)
	rank, _ = p.Rank()
	assert.Len(t, rank, 2)
	acks := rec.ofType(events.EventResourceHeartbeat)
	require.Len(t, acks, 1)
	assert.True(t, acks[0].Data.(events.ResourceHeartbeat).Revived)

	requireConsistent(t, p)
}

func TestTickDestroysTimedOutDApps(t *testing.T) {
	p, rec := newTestProvider(t, 10)
	n1 := register(t, p, "provider", 4, 4)
	dapp := deploy(t, p, "alice", "web", 2, 2)

	_, err := p.Tick(8)
	require.NoError(t, err)
	require.NoError(t, p.ResourceHeartbeat("provider", n1, nil))

	rec.reset()
	res, err := p.Tick(12)
	require.NoError(t, err)
	assert.Empty(t, res.TimedOutResources)
	assert.Equal(t, []uint64{dapp.ID}, res.TimedOutDApps)
	assert.Equal(t, []events.EventType{
		events.EventDAppTimeout,
		events.EventDAppStopped,
		events.EventDeploymentEnded,
	}, rec.types())

	_, err = p.GetDApp(dapp.ID)
	assert.ErrorIs(t, err, ErrInvalidDAppIndex)
	cpu, mem := unused(t, p, n1)
	assert.Equal(t, uint32(4), cpu)
	assert.Equal(t, uint32(4), mem)
	names, _ := p.UserDApps("alice")
	assert.Empty(t, names)

	requireConsistent(t, p)
}

func TestTickHeartbeatKeepsEverythingAlive(t *testing.T) {
	p, _ := newTestProvider(t, 10)
	n1 := register(t, p, "provider", 4, 4)
	dapp := deploy(t, p, "alice", "web", 1, 1)

	for epoch := uint64(5); epoch <= 50; epoch += 5 {
		_, err := p.Tick(epoch)
		require.NoError(t, err)
		require.NoError(t, p.ResourceHeartbeat("provider", n1, []uint64{dapp.ID}))
	}

	res, err := p.Tick(55)
	require.NoError(t, err)
	assert.Empty(t, res.TimedOutResources)
	assert.Empty(t, res.TimedOutDApps)

	got, err := p.GetDApp(dapp.ID)
	require.NoError(t, err)
	assert.Equal(t, uint64(50), got.LastHeartbeat)
}

func TestTickWithSeveralLostResources(t *testing.T) {
	p, _ := newTestProvider(t, 10)
	a := register(t, p, "provider", 2, 2)
	b := register(t, p, "provider", 3, 3)
	survivor := register(t, p, "provider", 8, 8)

	da := deploy(t, p, "alice", "a", 2, 2)
	db := deploy(t, p, "alice", "b", 3, 3)
	require.Equal(t, a, da.ResourceID)
	require.Equal(t, b, db.ResourceID)

	_, err := p.Tick(5)
	require.NoError(t, err)
	require.NoError(t, p.ResourceHeartbeat("provider", survivor, nil))
	require.NoError(t, p.DAppHeartbeat("alice", "a"))
	require.NoError(t, p.DAppHeartbeat("alice", "b"))

	res, err := p.Tick(11)
	require.NoError(t, err)
	assert.Equal(t, []uint64{a, b}, res.TimedOutResources)

	// neither dapp lands on the other lost resource
	for _, id := range []uint64{da.ID, db.ID} {
		d, err := p.GetDApp(id)
		require.NoError(t, err)
		assert.Equal(t, survivor, d.ResourceID)
	}
	cpu, _ := unused(t, p, survivor)
	assert.Equal(t, uint32(3), cpu)

	requireConsistent(t, p)
}

func TestTickReportsFailedRedistribution(t *testing.T) {
	p, rec := newTestProvider(t, 10)
	register(t, p, "provider", 4, 4)
	register(t, p, "other", 1, 1)
	dapp := deploy(t, p, "alice", "web", 3, 3)

	// only the small resource keeps reporting
	_, err := p.Tick(5)
	require.NoError(t, err)
	require.NoError(t, p.ResourceHeartbeat("other", 1, nil))

	res, err := p.Tick(12)
	require.NoError(t, err)
	assert.Equal(t, []uint64{0}, res.TimedOutResources)
	assert.Equal(t, []string{"web"}, res.Failed)
	assert.Empty(t, res.TimedOutDApps)

	_, err = p.GetDApp(dapp.ID)
	assert.ErrorIs(t, err, ErrInvalidDAppIndex)
	require.Len(t, rec.ofType(events.EventRedistributionFailed), 1)

	requireConsistent(t, p)
}
