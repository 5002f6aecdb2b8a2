package provider

import (
	"sync"
	"testing"

	"github.com/cuemby/hamster/pkg/events"
	"github.com/cuemby/hamster/pkg/storage"
	"github.com/cuemby/hamster/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recorder captures published events in order
type recorder struct {
	mu     sync.Mutex
	events []*events.Event
}

func (r *recorder) Publish(event *events.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

func (r *recorder) types() []events.EventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]events.EventType, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.Type)
	}
	return out
}

func (r *recorder) ofType(t events.EventType) []*events.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*events.Event
	for _, e := range r.events {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

func (r *recorder) reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = nil
}

func newTestProvider(t *testing.T, timeout uint64) (*Provider, *recorder) {
	t.Helper()
	rec := &recorder{}
	return NewProvider(storage.NewMemoryStore(), rec, timeout), rec
}

func register(t *testing.T, p *Provider, owner types.AccountID, cpu, memory uint32) uint64 {
	t.Helper()
	id, err := p.RegisterResource(owner, "peer-"+string(owner), "10.0.0.1", cpu, memory)
	require.NoError(t, err)
	return id
}

func cliRequest(name string, cpu, memory uint32) DeploymentRequest {
	return DeploymentRequest{
		Name:      name,
		Method:    types.CliDeployment("nginx", 80),
		CPU:       cpu,
		Memory:    memory,
		Replicas:  1,
		Available: 1,
	}
}

func deploy(t *testing.T, p *Provider, owner types.AccountID, name string, cpu, memory uint32) *types.DApp {
	t.Helper()
	id, err := p.RequestDeployment(owner, cliRequest(name, cpu, memory))
	require.NoError(t, err)
	dapp, err := p.GetDApp(id)
	require.NoError(t, err)
	return dapp
}

func unused(t *testing.T, p *Provider, id uint64) (uint32, uint32) {
	t.Helper()
	r, err := p.GetResource(id)
	require.NoError(t, err)
	return r.Config.UnusedCPU, r.Config.UnusedMemory
}

func requireConsistent(t *testing.T, p *Provider) {
	t.Helper()
	require.NoError(t, p.Check())
}

func TestNewProviderDefaults(t *testing.T) {
	p := NewProvider(storage.NewMemoryStore(), nil, 0)
	assert.Equal(t, DefaultTimeoutEpochs, p.TimeoutEpochs())

	// a nil publisher discards events
	_, err := p.RegisterResource("alice", "peer", "ip", 1, 1)
	assert.NoError(t, err)
}

func TestRegisterResource(t *testing.T) {
	p, rec := newTestProvider(t, 0)

	first := register(t, p, "alice", 4, 8)
	second := register(t, p, "alice", 2, 2)
	third := register(t, p, "bob", 1, 1)
	assert.Equal(t, []uint64{0, 1, 2}, []uint64{first, second, third})

	r, err := p.GetResource(first)
	require.NoError(t, err)
	assert.Equal(t, types.ResourceStatusOnline, r.Status)
	assert.Equal(t, types.NewResourceConfig(4, 8), r.Config)
	assert.Empty(t, r.DApps)

	ids, err := p.UserResources("alice")
	require.NoError(t, err)
	assert.Equal(t, []uint64{0, 1}, ids)

	rank, err := p.Rank()
	require.NoError(t, err)
	assert.Equal(t, []types.RankEntry{
		{Score: 2, ResourceID: 2},
		{Score: 4, ResourceID: 1},
		{Score: 12, ResourceID: 0},
	}, rank)

	registered := rec.ofType(events.EventResourceRegistered)
	require.Len(t, registered, 3)
	assert.Equal(t, events.ResourceRegistered{ResourceID: 0, Owner: "alice", PeerID: "peer-alice", CPU: 4, Memory: 8}, registered[0].Data)

	requireConsistent(t, p)
}

func TestRequestDeploymentPicksSmallestScore(t *testing.T) {
	p, rec := newTestProvider(t, 0)

	b := register(t, p, "provider", 3, 3) // score 6
	a := register(t, p, "provider", 2, 2) // score 4

	dapp := deploy(t, p, "user", "web", 1, 1)
	assert.Equal(t, a, dapp.ResourceID)
	assert.Equal(t, types.DAppStatusOnline, dapp.Status)

	cpu, mem := unused(t, p, a)
	assert.Equal(t, uint32(1), cpu)
	assert.Equal(t, uint32(1), mem)
	cpu, mem = unused(t, p, b)
	assert.Equal(t, uint32(3), cpu)
	assert.Equal(t, uint32(3), mem)

	placed := rec.ofType(events.EventDeploymentPlaced)
	require.Len(t, placed, 1)
	data := placed[0].Data.(events.DeploymentPlaced)
	assert.Equal(t, dapp.ID, data.DAppID)
	assert.Equal(t, a, data.ResourceID)
	assert.Equal(t, uint8(types.MethodCli), data.MethodKind)
	assert.Equal(t, "nginx:80", data.Command)
	require.NotNil(t, data.Launch)

	r, err := p.GetResource(a)
	require.NoError(t, err)
	assert.Equal(t, []uint64{dapp.ID}, r.DApps)

	requireConsistent(t, p)
}

func TestRequestDeploymentInstantiateFailure(t *testing.T) {
	p, rec := newTestProvider(t, 0)

	n1 := register(t, p, "provider", 4, 4)
	d1 := deploy(t, p, "user", "d1", 2, 2)
	assert.Equal(t, n1, d1.ResourceID)

	rec.reset()
	_, err := p.RequestDeployment("user", cliRequest("d2", 4, 4))
	assert.ErrorIs(t, err, ErrInstantiate)
	assert.Empty(t, rec.types(), "failed operations publish nothing")

	cpu, mem := unused(t, p, n1)
	assert.Equal(t, uint32(2), cpu)
	assert.Equal(t, uint32(2), mem)

	// nothing of d2 was kept
	names, err := p.UserDApps("user")
	require.NoError(t, err)
	assert.Equal(t, []string{"d1"}, names)
	deployments, err := p.ListDeployments()
	require.NoError(t, err)
	assert.Len(t, deployments, 1)
	_, err = p.GetDAppByName("user", "d2")
	assert.ErrorIs(t, err, ErrNotHaveDApp)

	// counters rolled back with the transaction
	d3 := deploy(t, p, "user", "d3", 1, 1)
	assert.Equal(t, d1.ID+1, d3.ID)
	assert.Equal(t, d1.DeploymentID+1, d3.DeploymentID)

	requireConsistent(t, p)
}

func TestRequestDeploymentEmptyPool(t *testing.T) {
	p, _ := newTestProvider(t, 0)

	_, err := p.RequestDeployment("user", cliRequest("web", 1, 1))
	assert.ErrorIs(t, err, ErrInstantiate)
	requireConsistent(t, p)
}

func TestRequestDeploymentValidation(t *testing.T) {
	p, _ := newTestProvider(t, 0)
	register(t, p, "provider", 8, 8)
	deploy(t, p, "alice", "web", 1, 1)

	tests := []struct {
		name    string
		owner   types.AccountID
		req     DeploymentRequest
		wantErr error
	}{
		{"empty name", "alice", cliRequest("", 1, 1), ErrInvalidDAppName},
		{"repeated name", "alice", cliRequest("web", 1, 1), ErrRepeatDAppName},
		{
			name:    "missing payload",
			owner:   "alice",
			req:     DeploymentRequest{Name: "x", Method: types.DeploymentMethod{Kind: types.MethodIpfs}, CPU: 1, Memory: 1},
			wantErr: ErrInvalidMethod,
		},
		{
			name:    "unknown kind",
			owner:   "alice",
			req:     DeploymentRequest{Name: "x", Method: types.DeploymentMethod{Kind: 9}, CPU: 1, Memory: 1},
			wantErr: ErrInvalidMethod,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := p.RequestDeployment(tt.owner, tt.req)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}

	// names are unique per owner only
	_, err := p.RequestDeployment("bob", cliRequest("web", 1, 1))
	assert.NoError(t, err)

	_, err = p.RequestDeployment("bob", DeploymentRequest{Name: "site", Method: types.IpfsDeployment("bafy"), CPU: 1, Memory: 1})
	assert.NoError(t, err)

	requireConsistent(t, p)
}

func TestEndDeployment(t *testing.T) {
	p, rec := newTestProvider(t, 0)
	n1 := register(t, p, "provider", 4, 4)
	dapp := deploy(t, p, "alice", "web", 3, 2)

	assert.ErrorIs(t, p.EndDeployment("alice", 99), ErrInvalidDAppIndex)
	assert.ErrorIs(t, p.EndDeployment("bob", dapp.ID), ErrNotHaveDApp)

	rec.reset()
	require.NoError(t, p.EndDeployment("alice", dapp.ID))
	assert.Equal(t, []events.EventType{events.EventDeploymentEnded, events.EventDAppStopped}, rec.types())

	cpu, mem := unused(t, p, n1)
	assert.Equal(t, uint32(4), cpu)
	assert.Equal(t, uint32(4), mem)

	_, err := p.GetDApp(dapp.ID)
	assert.ErrorIs(t, err, ErrInvalidDAppIndex)
	names, _ := p.UserDApps("alice")
	assert.Empty(t, names)
	r, _ := p.GetResource(n1)
	assert.Empty(t, r.DApps)

	// the name can be used again
	again := deploy(t, p, "alice", "web", 4, 4)
	assert.NotEqual(t, dapp.ID, again.ID)

	requireConsistent(t, p)
}

func TestChangeSpecification(t *testing.T) {
	p, rec := newTestProvider(t, 0)
	small := register(t, p, "provider", 2, 2)
	large := register(t, p, "provider", 8, 8)

	dapp := deploy(t, p, "alice", "web", 2, 2)
	assert.Equal(t, small, dapp.ResourceID)

	rec.reset()
	newID, err := p.ChangeSpecification("alice", cliRequest("web", 4, 4))
	require.NoError(t, err)
	assert.NotEqual(t, dapp.ID, newID)
	assert.Equal(t, []events.EventType{events.EventDAppStopped, events.EventDeploymentPlaced}, rec.types())

	changed, err := p.GetDAppByName("alice", "web")
	require.NoError(t, err)
	assert.Equal(t, newID, changed.ID)
	assert.Equal(t, large, changed.ResourceID)

	cpu, _ := unused(t, p, small)
	assert.Equal(t, uint32(2), cpu)
	cpu, _ = unused(t, p, large)
	assert.Equal(t, uint32(4), cpu)

	_, err = p.GetDApp(dapp.ID)
	assert.ErrorIs(t, err, ErrInvalidDAppIndex)
	deployments, _ := p.ListDeployments()
	assert.Len(t, deployments, 1)

	requireConsistent(t, p)
}

func TestChangeSpecificationReleasesFirst(t *testing.T) {
	p, _ := newTestProvider(t, 0)
	only := register(t, p, "provider", 4, 4)
	deploy(t, p, "alice", "web", 3, 3)

	// fits only once the old placement is released
	id, err := p.ChangeSpecification("alice", cliRequest("web", 4, 4))
	require.NoError(t, err)

	dapp, err := p.GetDApp(id)
	require.NoError(t, err)
	assert.Equal(t, only, dapp.ResourceID)
	cpu, mem := unused(t, p, only)
	assert.Zero(t, cpu)
	assert.Zero(t, mem)

	requireConsistent(t, p)
}

func TestChangeSpecificationFailureKeepsOld(t *testing.T) {
	p, rec := newTestProvider(t, 0)
	n1 := register(t, p, "provider", 4, 4)
	old := deploy(t, p, "alice", "web", 2, 2)

	rec.reset()
	_, err := p.ChangeSpecification("alice", cliRequest("web", 16, 16))
	assert.ErrorIs(t, err, ErrInstantiate)
	assert.Empty(t, rec.types())

	current, err := p.GetDAppByName("alice", "web")
	require.NoError(t, err)
	assert.Equal(t, old, current)
	cpu, _ := unused(t, p, n1)
	assert.Equal(t, uint32(2), cpu)

	_, err = p.ChangeSpecification("alice", cliRequest("api", 1, 1))
	assert.ErrorIs(t, err, ErrNotHaveDApp)
	_, err = p.ChangeSpecification("bob", cliRequest("web", 1, 1))
	assert.ErrorIs(t, err, ErrNotHaveDApp)

	requireConsistent(t, p)
}

func TestDAppHeartbeat(t *testing.T) {
	p, rec := newTestProvider(t, 0)
	register(t, p, "provider", 4, 4)

	assert.ErrorIs(t, p.DAppHeartbeat("alice", "web"), ErrNotHaveDApp)

	dapp := deploy(t, p, "alice", "web", 1, 1)
	assert.ErrorIs(t, p.DAppHeartbeat("alice", "api"), ErrInvalidDAppName)

	_, err := p.Tick(7)
	require.NoError(t, err)

	rec.reset()
	require.NoError(t, p.DAppHeartbeat("alice", "web"))
	got, _ := p.GetDApp(dapp.ID)
	assert.Equal(t, uint64(7), got.LastHeartbeat)

	acks := rec.ofType(events.EventDAppHeartbeat)
	require.Len(t, acks, 1)
	assert.Equal(t, uint64(7), acks[0].Epoch)
	assert.Equal(t, "web", acks[0].Data.(events.DAppRef).Name)
}

func TestResourceHeartbeat(t *testing.T) {
	p, rec := newTestProvider(t, 0)
	n1 := register(t, p, "provider", 4, 4)
	n2 := register(t, p, "provider", 8, 8)
	mine := deploy(t, p, "alice", "a", 2, 2)
	other := deploy(t, p, "alice", "b", 3, 3)
	require.Equal(t, n1, mine.ResourceID)
	require.Equal(t, n2, other.ResourceID)

	_, err := p.Tick(5)
	require.NoError(t, err)

	rec.reset()
	require.NoError(t, p.ResourceHeartbeat("provider", n1, []uint64{mine.ID, other.ID, 42}))

	r, _ := p.GetResource(n1)
	assert.Equal(t, uint64(5), r.LastHeartbeat)
	got, _ := p.GetDApp(mine.ID)
	assert.Equal(t, uint64(5), got.LastHeartbeat)
	got, _ = p.GetDApp(other.ID)
	assert.Equal(t, uint64(0), got.LastHeartbeat, "dapps on other resources are not refreshed")

	acks := rec.ofType(events.EventResourceHeartbeat)
	require.Len(t, acks, 1)
	assert.Equal(t, events.ResourceHeartbeat{ResourceID: n1, PeerID: "peer-provider", DApps: []uint64{mine.ID}}, acks[0].Data)
}

func TestResourceHeartbeatRejectsWithoutMutation(t *testing.T) {
	p, rec := newTestProvider(t, 0)
	n1 := register(t, p, "provider", 4, 4)
	_, err := p.Tick(9)
	require.NoError(t, err)

	before, _ := p.GetResource(n1)
	rec.reset()

	err = p.ResourceHeartbeat("mallory", n1, nil)
	assert.ErrorIs(t, err, ErrResourceNotOwnedByAccount)
	err = p.ResourceHeartbeat("provider", 77, nil)
	assert.ErrorIs(t, err, ErrInvalidResourceIndex)

	after, _ := p.GetResource(n1)
	assert.Equal(t, before, after)
	assert.Empty(t, rec.types())
}

func TestOfflineResourceRedistributes(t *testing.T) {
	p, rec := newTestProvider(t, 0)
	n1 := register(t, p, "provider", 4, 4)
	n2 := register(t, p, "provider", 2, 2)

	dapp := deploy(t, p, "alice", "web", 2, 2)
	require.Equal(t, n2, dapp.ResourceID)

	rec.reset()
	failed, err := p.OfflineResource("provider", n2)
	require.NoError(t, err)
	assert.Empty(t, failed)

	moved, _ := p.GetDApp(dapp.ID)
	assert.Equal(t, n1, moved.ResourceID)
	cpu, mem := unused(t, p, n1)
	assert.Equal(t, uint32(2), cpu)
	assert.Equal(t, uint32(2), mem)

	_, err = p.GetResource(n2)
	assert.ErrorIs(t, err, ErrInvalidResourceIndex)
	ids, _ := p.UserResources("provider")
	assert.Equal(t, []uint64{n1}, ids)
	rank, _ := p.Rank()
	assert.Equal(t, []types.RankEntry{{Score: 4, ResourceID: n1}}, rank)

	assert.Equal(t, []events.EventType{events.EventDeploymentPlaced, events.EventResourceOffline}, rec.types())
	placed := rec.ofType(events.EventDeploymentPlaced)[0].Data.(events.DeploymentPlaced)
	assert.Equal(t, n1, placed.ResourceID)

	requireConsistent(t, p)
}

func TestOfflineResourceReportsFailures(t *testing.T) {
	p, rec := newTestProvider(t, 0)
	big := register(t, p, "provider", 4, 4)
	small := register(t, p, "provider", 2, 2)

	first := deploy(t, p, "alice", "first", 2, 2)
	second := deploy(t, p, "bob", "second", 3, 3)
	require.Equal(t, small, first.ResourceID)
	require.Equal(t, big, second.ResourceID)

	rec.reset()
	failed, err := p.OfflineResource("provider", big)
	require.NoError(t, err)
	assert.Equal(t, []string{"second"}, failed)

	_, err = p.GetDApp(second.ID)
	assert.ErrorIs(t, err, ErrInvalidDAppIndex)
	names, _ := p.UserDApps("bob")
	assert.Empty(t, names)

	failures := rec.ofType(events.EventRedistributionFailed)
	require.Len(t, failures, 1)
	data := failures[0].Data.(events.RedistributionFailed)
	assert.Equal(t, []string{"second"}, data.Names)
	require.Len(t, data.DApps, 1)
	assert.Equal(t, types.AccountID("bob"), types.AccountID(data.DApps[0].Owner))

	// the surviving dapp is untouched
	kept, _ := p.GetDApp(first.ID)
	assert.Equal(t, first, kept)

	requireConsistent(t, p)
}

func TestOfflineResourceChecks(t *testing.T) {
	p, _ := newTestProvider(t, 0)
	n1 := register(t, p, "provider", 4, 4)

	_, err := p.OfflineResource("mallory", n1)
	assert.ErrorIs(t, err, ErrResourceNotOwnedByAccount)
	_, err = p.OfflineResource("provider", 5)
	assert.ErrorIs(t, err, ErrInvalidResourceIndex)

	r, _ := p.GetResource(n1)
	assert.Equal(t, types.ResourceStatusOnline, r.Status)
}

func TestOfflineResourceInconsistentOwnerIndex(t *testing.T) {
	store := storage.NewMemoryStore()
	p := NewProvider(store, nil, 0)
	n1 := register(t, p, "provider", 4, 4)

	require.NoError(t, store.Update(func(tx storage.Tx) error {
		return tx.PutUserResources("provider", nil)
	}))

	_, err := p.OfflineResource("provider", n1)
	assert.ErrorIs(t, err, ErrClearDownlineResourceInformation)

	// rolled back: the resource is still online and ranked
	r, err := p.GetResource(n1)
	require.NoError(t, err)
	assert.Equal(t, types.ResourceStatusOnline, r.Status)
	rank, _ := p.Rank()
	assert.Len(t, rank, 1)
}

func TestRedistributionMissingDeployment(t *testing.T) {
	store := storage.NewMemoryStore()
	p := NewProvider(store, nil, 0)
	n1 := register(t, p, "provider", 4, 4)
	register(t, p, "provider", 8, 8)
	dapp := deploy(t, p, "alice", "web", 1, 1)
	require.Equal(t, n1, dapp.ResourceID)

	require.NoError(t, store.Update(func(tx storage.Tx) error {
		return tx.DeleteDeployment(dapp.DeploymentID)
	}))

	_, err := p.OfflineResource("provider", n1)
	assert.ErrorIs(t, err, ErrDAppRedistribution)
}

func TestRanksStaySortedAcrossOperations(t *testing.T) {
	p, _ := newTestProvider(t, 0)
	for _, c := range [][2]uint32{{8, 8}, {2, 2}, {4, 4}, {4, 4}, {1, 6}} {
		register(t, p, "provider", c[0], c[1])
	}

	for i, shape := range [][2]uint32{{1, 1}, {2, 2}, {3, 3}, {1, 1}, {4, 4}, {2, 1}} {
		_, err := p.RequestDeployment("user", cliRequest(string(rune('a'+i)), shape[0], shape[1]))
		if err != nil {
			assert.ErrorIs(t, err, ErrInstantiate)
		}
		rank, err := p.Rank()
		require.NoError(t, err)
		for j := 1; j < len(rank); j++ {
			assert.Equal(t, -1, rank[j-1].Compare(rank[j]))
		}
		requireConsistent(t, p)
	}
}
