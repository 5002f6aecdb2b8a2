package client

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/cuemby/hamster/pkg/api"
	"github.com/cuemby/hamster/pkg/events"
	"github.com/cuemby/hamster/pkg/provider"
	"github.com/cuemby/hamster/pkg/types"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
)

// DefaultTimeout bounds every unary call
const DefaultTimeout = 10 * time.Second

// Client wraps the Provider gRPC service for easy CLI usage
type Client struct {
	conn    *grpc.ClientConn
	account types.AccountID
	timeout time.Duration
}

// NewClient connects to a manager at addr. Calls are made as account; an
// empty account can only use read-only methods.
func NewClient(addr string, account types.AccountID, opts ...grpc.DialOption) (*Client, error) {
	opts = append([]grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(grpc.CallContentSubtype(api.CodecName)),
	}, opts...)

	conn, err := grpc.NewClient(addr, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to manager: %w", err)
	}

	return &Client{
		conn:    conn,
		account: account,
		timeout: DefaultTimeout,
	}, nil
}

// Close closes the connection
func (c *Client) Close() error {
	return c.conn.Close()
}

// Account returns the account calls are made as
func (c *Client) Account() types.AccountID {
	return c.account
}

func (c *Client) context(ctx context.Context) context.Context {
	if c.account == "" {
		return ctx
	}
	return metadata.AppendToOutgoingContext(ctx, api.AccountMetadataKey, string(c.account))
}

func (c *Client) invoke(ctx context.Context, method string, req, resp interface{}) error {
	ctx, cancel := context.WithTimeout(c.context(ctx), c.timeout)
	defer cancel()

	if err := c.conn.Invoke(ctx, api.FullMethod(method), req, resp); err != nil {
		return api.FromStatus(err)
	}
	return nil
}

// RegisterResource adds a node to the pool and returns its id
func (c *Client) RegisterResource(ctx context.Context, peerID, publicIP string, cpu, memory uint32) (uint64, error) {
	var resp api.RegisterResourceResponse
	err := c.invoke(ctx, "RegisterResource", &api.RegisterResourceRequest{
		PeerID:   peerID,
		PublicIP: publicIP,
		CPU:      cpu,
		Memory:   memory,
	}, &resp)
	return resp.ResourceID, err
}

// ResourceHeartbeat reports a node alive with the DApps it runs
func (c *Client) ResourceHeartbeat(ctx context.Context, id uint64, dappIDs []uint64) error {
	return c.invoke(ctx, "ResourceHeartbeat", &api.ResourceHeartbeatRequest{ResourceID: id, DApps: dappIDs}, &api.Empty{})
}

// OfflineResource removes a node and returns the names of DApps that could
// not be moved
func (c *Client) OfflineResource(ctx context.Context, id uint64) ([]string, error) {
	var resp api.OfflineResourceResponse
	err := c.invoke(ctx, "OfflineResource", &api.OfflineResourceRequest{ResourceID: id}, &resp)
	return resp.Failed, err
}

// RequestDeployment places a new DApp and returns its id
func (c *Client) RequestDeployment(ctx context.Context, req provider.DeploymentRequest) (uint64, error) {
	var resp api.DeploymentResponse
	err := c.invoke(ctx, "RequestDeployment", &api.DeploymentRequest{Deployment: req}, &resp)
	return resp.DAppID, err
}

// EndDeployment stops a DApp
func (c *Client) EndDeployment(ctx context.Context, dappID uint64) error {
	return c.invoke(ctx, "EndDeployment", &api.EndDeploymentRequest{DAppID: dappID}, &api.Empty{})
}

// ChangeSpecification re-places a DApp and returns its new id
func (c *Client) ChangeSpecification(ctx context.Context, req provider.DeploymentRequest) (uint64, error) {
	var resp api.DeploymentResponse
	err := c.invoke(ctx, "ChangeSpecification", &api.DeploymentRequest{Deployment: req}, &resp)
	return resp.DAppID, err
}

// DAppHeartbeat reports a DApp alive
func (c *Client) DAppHeartbeat(ctx context.Context, name string) error {
	return c.invoke(ctx, "DAppHeartbeat", &api.DAppHeartbeatRequest{Name: name}, &api.Empty{})
}

// GetResource returns a resource by id
func (c *Client) GetResource(ctx context.Context, id uint64) (*types.ComputingResource, error) {
	var resp api.ResourceResponse
	if err := c.invoke(ctx, "GetResource", &api.GetResourceRequest{ResourceID: id}, &resp); err != nil {
		return nil, err
	}
	return resp.Resource, nil
}

// ListResources returns all resources, or those of owner when set
func (c *Client) ListResources(ctx context.Context, owner types.AccountID) ([]*types.ComputingResource, error) {
	var resp api.ListResourcesResponse
	if err := c.invoke(ctx, "ListResources", &api.ListResourcesRequest{Owner: owner}, &resp); err != nil {
		return nil, err
	}
	return resp.Resources, nil
}

// GetDApp returns a DApp and its deployment by id
func (c *Client) GetDApp(ctx context.Context, id uint64) (*api.DAppResponse, error) {
	var resp api.DAppResponse
	if err := c.invoke(ctx, "GetDApp", &api.GetDAppRequest{DAppID: id}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// GetDAppByName returns one of the caller's DApps by name
func (c *Client) GetDAppByName(ctx context.Context, name string) (*api.DAppResponse, error) {
	var resp api.DAppResponse
	if err := c.invoke(ctx, "GetDApp", &api.GetDAppRequest{Name: name}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ListDApps returns all DApps, or those of owner when set
func (c *Client) ListDApps(ctx context.Context, owner types.AccountID) ([]*types.DApp, error) {
	var resp api.ListDAppsResponse
	if err := c.invoke(ctx, "ListDApps", &api.ListDAppsRequest{Owner: owner}, &resp); err != nil {
		return nil, err
	}
	return resp.DApps, nil
}

// GetRank returns the current epoch and capacity rank
func (c *Client) GetRank(ctx context.Context) (*api.GetRankResponse, error) {
	var resp api.GetRankResponse
	if err := c.invoke(ctx, "GetRank", &api.GetRankRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// GetStats returns a summary of the pool
func (c *Client) GetStats(ctx context.Context) (*provider.Stats, error) {
	var resp api.GetStatsResponse
	if err := c.invoke(ctx, "GetStats", &api.GetStatsRequest{}, &resp); err != nil {
		return nil, err
	}
	return resp.Stats, nil
}

// WatchEvents streams events of the given types (all when empty) to fn until
// ctx is done, the server closes the stream or fn returns an error
func (c *Client) WatchEvents(ctx context.Context, eventTypes []events.EventType, fn func(*events.Event) error) error {
	stream, err := c.conn.NewStream(c.context(ctx), &api.ServiceDesc.Streams[0], api.FullMethod("WatchEvents"))
	if err != nil {
		return api.FromStatus(err)
	}
	if err := stream.SendMsg(&api.WatchEventsRequest{Types: eventTypes}); err != nil {
		return api.FromStatus(err)
	}
	if err := stream.CloseSend(); err != nil {
		return api.FromStatus(err)
	}

	for {
		event := new(events.Event)
		if err := stream.RecvMsg(event); err != nil {
			if err == io.EOF || ctx.Err() != nil {
				return nil
			}
			return api.FromStatus(err)
		}
		if err := fn(event); err != nil {
			return err
		}
	}
}
