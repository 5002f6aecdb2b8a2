package agent

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/cuemby/hamster/pkg/api"
	"github.com/cuemby/hamster/pkg/client"
	"github.com/cuemby/hamster/pkg/health"
	"github.com/cuemby/hamster/pkg/manager"
	"github.com/cuemby/hamster/pkg/provider"
	"github.com/cuemby/hamster/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/test/bufconn"
)

type fakeClient struct {
	mu          sync.Mutex
	resource    *types.ComputingResource
	deployments map[uint64]*types.Deployment
	heartbeats  [][]uint64
	hbCtxErrs   []error
	dappCalls   int
	err         error
}

func (f *fakeClient) GetResource(ctx context.Context, id uint64) (*types.ComputingResource, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	r := *f.resource
	r.DApps = append([]uint64(nil), f.resource.DApps...)
	return &r, nil
}

func (f *fakeClient) GetDApp(ctx context.Context, id uint64) (*api.DAppResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.dappCalls++
	d, ok := f.deployments[id]
	if !ok {
		return nil, provider.ErrInvalidDAppIndex
	}
	return &api.DAppResponse{DApp: &types.DApp{ID: id}, Deployment: d}, nil
}

func (f *fakeClient) ResourceHeartbeat(ctx context.Context, id uint64, dappIDs []uint64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.heartbeats = append(f.heartbeats, dappIDs)
	f.hbCtxErrs = append(f.hbCtxErrs, ctx.Err())
	return ctx.Err()
}

func (f *fakeClient) setDApps(ids ...uint64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resource.DApps = ids
}

// listen returns the port of a TCP listener accepting until the test ends
func listen(t *testing.T) (uint16, func()) {
	t.Helper()
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go func() {
		for {
			conn, err := lis.Accept()
			if err != nil {
				return
			}
			conn.Close()
		}
	}()
	t.Cleanup(func() { lis.Close() })
	return uint16(lis.Addr().(*net.TCPAddr).Port), func() { lis.Close() }
}

func TestBeatReportsHealthyDApps(t *testing.T) {
	up, _ := listen(t)
	down, closeDown := listen(t)
	closeDown()

	fc := &fakeClient{
		resource: types.NewComputingResource(3, "alice", "peer", "127.0.0.1", 8, 8, 0),
		deployments: map[uint64]*types.Deployment{
			1: {Method: types.CliDeployment("web", up)},
			2: {Method: types.CliDeployment("api", down)},
			3: {Method: types.IpfsDeployment("bafy")},
		},
	}
	fc.setDApps(1, 2, 3)

	a := NewAgent(fc, Config{
		ResourceID: 3,
		Interval:   time.Second,
		Health:     health.Config{Timeout: time.Second, Retries: 1},
	})

	alive, err := a.Beat(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []uint64{1, 3}, alive)
	assert.Equal(t, [][]uint64{{1, 3}}, fc.heartbeats)

	// monitors are kept between beats
	_, err = a.Beat(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, fc.dappCalls)

	// a DApp that left the resource is forgotten
	fc.setDApps(1)
	alive, err = a.Beat(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []uint64{1}, alive)
	assert.Len(t, a.monitors, 1)
}

func TestBeatRetriesBeforeUnhealthy(t *testing.T) {
	port, closePort := listen(t)

	fc := &fakeClient{
		resource: types.NewComputingResource(0, "alice", "peer", "127.0.0.1", 8, 8, 0),
		deployments: map[uint64]*types.Deployment{
			0: {Method: types.CliDeployment("web", port)},
		},
	}
	fc.setDApps(0)

	a := NewAgent(fc, Config{Health: health.Config{Timeout: time.Second, Retries: 2}})

	alive, err := a.Beat(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []uint64{0}, alive)

	closePort()

	alive, err = a.Beat(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []uint64{0}, alive, "first failure is tolerated")

	alive, err = a.Beat(context.Background())
	require.NoError(t, err)
	assert.Empty(t, alive)
}

func TestBeatHeartbeatSurvivesSlowDApps(t *testing.T) {
	slow := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(2 * time.Second):
		case <-r.Context().Done():
		}
	}))
	defer slow.Close()
	port := uint16(slow.Listener.Addr().(*net.TCPAddr).Port)

	fc := &fakeClient{
		resource: types.NewComputingResource(0, "alice", "peer", "127.0.0.1", 8, 8, 0),
		deployments: map[uint64]*types.Deployment{
			1: {Method: types.CliDeployment("web", port)},
			2: {Method: types.CliDeployment("api", port)},
			3: {Method: types.IpfsDeployment("bafy")},
		},
	}
	fc.setDApps(1, 2, 3)

	interval := 1500 * time.Millisecond
	a := NewAgent(fc, Config{
		Interval: interval,
		Probe:    health.CheckTypeHTTP,
		Health:   health.Config{Timeout: time.Second, Retries: 1},
	})
	assert.Equal(t, interval/2, a.probeBudget())

	start := time.Now()
	alive, err := a.Beat(context.Background())
	require.NoError(t, err)
	assert.Less(t, time.Since(start), interval)
	assert.Equal(t, []uint64{3}, alive)
	require.Len(t, fc.hbCtxErrs, 1)
	assert.NoError(t, fc.hbCtxErrs[0])
}

func TestProbeBudget(t *testing.T) {
	tests := []struct {
		name     string
		interval time.Duration
		timeout  time.Duration
		want     time.Duration
	}{
		{name: "timeout below half interval", interval: 6 * time.Second, timeout: time.Second, want: time.Second},
		{name: "timeout above half interval", interval: 6 * time.Second, timeout: 5 * time.Second, want: 3 * time.Second},
		{name: "no timeout", interval: 2 * time.Second, timeout: 0, want: time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := NewAgent(&fakeClient{}, Config{
				Interval: tt.interval,
				Health:   health.Config{Timeout: tt.timeout, Retries: 1},
			})
			assert.Equal(t, tt.want, a.probeBudget())
		})
	}
}

func TestBeatSkipsDAppsWithoutDeployment(t *testing.T) {
	fc := &fakeClient{
		resource:    types.NewComputingResource(0, "alice", "peer", "127.0.0.1", 8, 8, 0),
		deployments: map[uint64]*types.Deployment{},
	}
	fc.setDApps(7)

	a := NewAgent(fc, Config{})
	alive, err := a.Beat(context.Background())
	require.NoError(t, err)
	assert.Empty(t, alive)
	assert.Empty(t, a.monitors)
}

func TestBeatResourceError(t *testing.T) {
	fc := &fakeClient{err: provider.ErrInvalidResourceIndex}

	a := NewAgent(fc, Config{})
	_, err := a.Beat(context.Background())
	assert.True(t, errors.Is(err, provider.ErrInvalidResourceIndex))
	assert.Empty(t, fc.heartbeats)
}

func TestAgentStartStop(t *testing.T) {
	fc := &fakeClient{resource: types.NewComputingResource(0, "alice", "peer", "127.0.0.1", 8, 8, 0)}

	a := NewAgent(fc, Config{Interval: 10 * time.Millisecond})
	a.Start()

	assert.Eventually(t, func() bool {
		fc.mu.Lock()
		defer fc.mu.Unlock()
		return len(fc.heartbeats) >= 2
	}, time.Second, 5*time.Millisecond)

	a.Stop()
}

func TestAgentKeepsDAppAliveOnManager(t *testing.T) {
	mgr, err := manager.NewManager(&manager.Config{NodeID: "agent-test", InMemory: true, TimeoutEpochs: 2})
	require.NoError(t, err)
	require.NoError(t, mgr.Bootstrap())
	t.Cleanup(func() { _ = mgr.Shutdown() })

	srv := api.NewServer(mgr, api.RateLimit{})
	lis := bufconn.Listen(1 << 20)
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)

	dial := func(account types.AccountID) *client.Client {
		c, err := client.NewClient("passthrough:///bufnet", account,
			grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
				return lis.DialContext(ctx)
			}),
		)
		require.NoError(t, err)
		t.Cleanup(func() { c.Close() })
		return c
	}
	ctx := context.Background()
	alice := dial("alice")
	bob := dial("bob")

	port, _ := listen(t)
	resourceID, err := alice.RegisterResource(ctx, "peer-a", "127.0.0.1", 4, 4)
	require.NoError(t, err)
	dappID, err := bob.RequestDeployment(ctx, provider.DeploymentRequest{
		Name:      "web",
		Method:    types.CliDeployment("nginx", port),
		CPU:       1,
		Memory:    1,
		Replicas:  1,
		Available: 1,
	})
	require.NoError(t, err)

	a := NewAgent(alice, Config{ResourceID: resourceID, Health: health.Config{Timeout: time.Second, Retries: 1}})

	for epoch := uint64(1); epoch <= 5; epoch++ {
		_, err := a.Beat(ctx)
		require.NoError(t, err)
		_, err = mgr.Tick(epoch)
		require.NoError(t, err, "epoch "+strconv.FormatUint(epoch, 10))
	}

	dapp, err := alice.GetDApp(ctx, dappID)
	require.NoError(t, err)
	assert.Equal(t, types.DAppStatusOnline, dapp.DApp.Status)
	assert.Equal(t, uint64(4), dapp.DApp.LastHeartbeat)

	resource, err := alice.GetResource(ctx, resourceID)
	require.NoError(t, err)
	assert.Equal(t, types.ResourceStatusOnline, resource.Status)
}
