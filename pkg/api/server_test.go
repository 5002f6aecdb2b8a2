package api

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/cuemby/hamster/pkg/events"
	"github.com/cuemby/hamster/pkg/manager"
	"github.com/cuemby/hamster/pkg/provider"
	"github.com/cuemby/hamster/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
)

func newTestManager(t *testing.T) *manager.Manager {
	t.Helper()
	mgr, err := manager.NewManager(&manager.Config{NodeID: "api-test", InMemory: true})
	require.NoError(t, err)
	require.NoError(t, mgr.Bootstrap())
	t.Cleanup(func() { _ = mgr.Shutdown() })
	return mgr
}

// dial serves srv over an in-memory listener and returns a connection to it
func dial(t *testing.T, serve func(net.Listener) error) *grpc.ClientConn {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	go func() { _ = serve(lis) }()

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(grpc.CallContentSubtype(CodecName)),
	)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func newTestServer(t *testing.T, limit RateLimit) (*manager.Manager, *grpc.ClientConn) {
	t.Helper()
	mgr := newTestManager(t)
	srv := NewServer(mgr, limit)
	t.Cleanup(srv.Stop)
	return mgr, dial(t, srv.Serve)
}

func as(account types.AccountID) context.Context {
	ctx := context.Background()
	if account == "" {
		return ctx
	}
	return metadata.AppendToOutgoingContext(ctx, AccountMetadataKey, string(account))
}

func invoke(ctx context.Context, conn *grpc.ClientConn, method string, req, resp interface{}) error {
	return conn.Invoke(ctx, FullMethod(method), req, resp)
}

func deploymentOf(name string, cpu, memory uint32) *DeploymentRequest {
	return &DeploymentRequest{Deployment: provider.DeploymentRequest{
		Name:      name,
		Method:    types.CliDeployment("nginx", 80),
		CPU:       cpu,
		Memory:    memory,
		Replicas:  1,
		Available: 1,
	}}
}

func TestServerResourceLifecycle(t *testing.T) {
	_, conn := newTestServer(t, RateLimit{})

	var reg RegisterResourceResponse
	require.NoError(t, invoke(as("alice"), conn, "RegisterResource", &RegisterResourceRequest{
		PeerID: "peer-a", PublicIP: "10.0.0.1", CPU: 4, Memory: 4,
	}, &reg))
	assert.Equal(t, uint64(0), reg.ResourceID)

	var res ResourceResponse
	require.NoError(t, invoke(as(""), conn, "GetResource", &GetResourceRequest{ResourceID: reg.ResourceID}, &res))
	assert.Equal(t, types.AccountID("alice"), res.Resource.Owner)
	assert.Equal(t, uint32(4), res.Resource.Config.UnusedCPU)

	require.NoError(t, invoke(as("alice"), conn, "ResourceHeartbeat", &ResourceHeartbeatRequest{ResourceID: reg.ResourceID}, &Empty{}))

	err := invoke(as("bob"), conn, "ResourceHeartbeat", &ResourceHeartbeatRequest{ResourceID: reg.ResourceID}, &Empty{})
	assert.Equal(t, codes.PermissionDenied, status.Code(err))

	var list ListResourcesResponse
	require.NoError(t, invoke(as(""), conn, "ListResources", &ListResourcesRequest{Owner: "bob"}, &list))
	assert.Empty(t, list.Resources)
	require.NoError(t, invoke(as(""), conn, "ListResources", &ListResourcesRequest{}, &list))
	assert.Len(t, list.Resources, 1)

	var off OfflineResourceResponse
	require.NoError(t, invoke(as("alice"), conn, "OfflineResource", &OfflineResourceRequest{ResourceID: reg.ResourceID}, &off))
	assert.Empty(t, off.Failed)

	err = invoke(as(""), conn, "GetResource", &GetResourceRequest{ResourceID: 42}, &res)
	assert.Equal(t, codes.NotFound, status.Code(err))
}

func TestServerDeploymentLifecycle(t *testing.T) {
	_, conn := newTestServer(t, RateLimit{})

	var reg RegisterResourceResponse
	require.NoError(t, invoke(as("alice"), conn, "RegisterResource", &RegisterResourceRequest{
		PeerID: "peer-a", PublicIP: "10.0.0.1", CPU: 4, Memory: 4,
	}, &reg))

	var dep DeploymentResponse
	require.NoError(t, invoke(as("bob"), conn, "RequestDeployment", deploymentOf("web", 2, 2), &dep))

	err := invoke(as("bob"), conn, "RequestDeployment", deploymentOf("web", 1, 1), &dep)
	assert.Equal(t, codes.AlreadyExists, status.Code(err))

	err = invoke(as("bob"), conn, "RequestDeployment", deploymentOf("big", 8, 8), &dep)
	assert.Equal(t, codes.ResourceExhausted, status.Code(err))

	var got DAppResponse
	require.NoError(t, invoke(as("bob"), conn, "GetDApp", &GetDAppRequest{Name: "web"}, &got))
	assert.Equal(t, dep.DAppID, got.DApp.ID)
	require.NotNil(t, got.Deployment)
	assert.Equal(t, uint32(2), got.Deployment.CPU)

	err = invoke(as(""), conn, "GetDApp", &GetDAppRequest{Name: "web"}, &got)
	assert.Equal(t, codes.Unauthenticated, status.Code(err))

	require.NoError(t, invoke(as("bob"), conn, "DAppHeartbeat", &DAppHeartbeatRequest{Name: "web"}, &Empty{}))

	var changed DeploymentResponse
	require.NoError(t, invoke(as("bob"), conn, "ChangeSpecification", deploymentOf("web", 3, 3), &changed))
	assert.NotEqual(t, dep.DAppID, changed.DAppID)

	var rank GetRankResponse
	require.NoError(t, invoke(as(""), conn, "GetRank", &GetRankRequest{}, &rank))
	require.Len(t, rank.Rank, 1)
	assert.Equal(t, uint64(2), rank.Rank[0].Score)

	var dapps ListDAppsResponse
	require.NoError(t, invoke(as(""), conn, "ListDApps", &ListDAppsRequest{Owner: "bob"}, &dapps))
	assert.Len(t, dapps.DApps, 1)

	err = invoke(as("carol"), conn, "EndDeployment", &EndDeploymentRequest{DAppID: changed.DAppID}, &Empty{})
	assert.Equal(t, codes.PermissionDenied, status.Code(err))
	require.NoError(t, invoke(as("bob"), conn, "EndDeployment", &EndDeploymentRequest{DAppID: changed.DAppID}, &Empty{}))

	var stats GetStatsResponse
	require.NoError(t, invoke(as(""), conn, "GetStats", &GetStatsRequest{}, &stats))
	assert.Equal(t, uint64(4), stats.Stats.UnusedCPU)
}

func TestServerRequiresAccountForWrites(t *testing.T) {
	_, conn := newTestServer(t, RateLimit{})

	err := invoke(as(""), conn, "RegisterResource", &RegisterResourceRequest{PeerID: "p", PublicIP: "ip"}, &RegisterResourceResponse{})
	assert.Equal(t, codes.Unauthenticated, status.Code(err))
}

func TestServerValidatesRequests(t *testing.T) {
	_, conn := newTestServer(t, RateLimit{})

	err := invoke(as("alice"), conn, "RegisterResource", &RegisterResourceRequest{PublicIP: "ip"}, &RegisterResourceResponse{})
	assert.Equal(t, codes.InvalidArgument, status.Code(err))

	err = invoke(as("alice"), conn, "DAppHeartbeat", &DAppHeartbeatRequest{}, &Empty{})
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
}

func TestServerRateLimit(t *testing.T) {
	_, conn := newTestServer(t, RateLimit{RequestsPerSecond: 0.001, Burst: 2})

	for i := 0; i < 2; i++ {
		require.NoError(t, invoke(as("alice"), conn, "GetRank", &GetRankRequest{}, &GetRankResponse{}))
	}
	err := invoke(as("alice"), conn, "GetRank", &GetRankRequest{}, &GetRankResponse{})
	assert.Equal(t, codes.ResourceExhausted, status.Code(err))

	// other accounts have their own bucket
	require.NoError(t, invoke(as("bob"), conn, "GetRank", &GetRankRequest{}, &GetRankResponse{}))
}

func TestServerReadOnlyListener(t *testing.T) {
	mgr := newTestManager(t)
	srv := NewServer(mgr, RateLimit{})
	t.Cleanup(srv.Stop)
	conn := dial(t, srv.ServeLocal)

	require.NoError(t, invoke(as(""), conn, "ListResources", &ListResourcesRequest{}, &ListResourcesResponse{}))

	err := invoke(as("alice"), conn, "RegisterResource", &RegisterResourceRequest{PeerID: "p", PublicIP: "ip"}, &RegisterResourceResponse{})
	assert.Equal(t, codes.PermissionDenied, status.Code(err))
}

func TestServerWatchEvents(t *testing.T) {
	mgr, conn := newTestServer(t, RateLimit{})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	stream, err := conn.NewStream(ctx, &ServiceDesc.Streams[0], FullMethod("WatchEvents"))
	require.NoError(t, err)
	require.NoError(t, stream.SendMsg(&WatchEventsRequest{Types: []events.EventType{events.EventDeploymentPlaced}}))
	require.NoError(t, stream.CloseSend())

	// wait for the subscription before generating events
	require.Eventually(t, func() bool {
		return mgr.GetEventBroker().SubscriberCount() > 0
	}, 2*time.Second, 10*time.Millisecond)

	_, err = mgr.RegisterResource("alice", "peer-a", "10.0.0.1", 4, 4)
	require.NoError(t, err)
	dappID, err := mgr.RequestDeployment("bob", deploymentOf("web", 1, 1).Deployment)
	require.NoError(t, err)

	var event events.Event
	require.NoError(t, stream.RecvMsg(&event))
	assert.Equal(t, events.EventDeploymentPlaced, event.Type)
	assert.NotEmpty(t, event.ID)

	var placed events.DeploymentPlaced
	require.NoError(t, event.Decode(&placed))
	assert.Equal(t, dappID, placed.DAppID)
}
