package api

import (
	"context"
	"fmt"
	"net"
	"os"

	"github.com/cuemby/hamster/pkg/events"
	"github.com/cuemby/hamster/pkg/log"
	"github.com/cuemby/hamster/pkg/metrics"
	"github.com/cuemby/hamster/pkg/provider"
	"github.com/cuemby/hamster/pkg/types"
	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Backend is the manager surface the API serves
type Backend interface {
	IsLeader() bool
	GetEventBroker() *events.Broker

	RegisterResource(owner types.AccountID, peerID, publicIP string, cpu, memory uint32) (uint64, error)
	ResourceHeartbeat(owner types.AccountID, id uint64, dappIDs []uint64) error
	OfflineResource(owner types.AccountID, id uint64) ([]string, error)
	RequestDeployment(owner types.AccountID, req provider.DeploymentRequest) (uint64, error)
	EndDeployment(owner types.AccountID, dappID uint64) error
	ChangeSpecification(owner types.AccountID, req provider.DeploymentRequest) (uint64, error)
	DAppHeartbeat(owner types.AccountID, name string) error

	Epoch() (uint64, error)
	GetResource(id uint64) (*types.ComputingResource, error)
	ListResources() ([]*types.ComputingResource, error)
	GetDApp(id uint64) (*types.DApp, error)
	GetDAppByName(owner types.AccountID, name string) (*types.DApp, error)
	ListDApps() ([]*types.DApp, error)
	GetDeployment(id uint64) (*types.Deployment, error)
	Rank() ([]types.RankEntry, error)
	Stats() (*provider.Stats, error)
}

// Server implements the Provider gRPC service
type Server struct {
	backend Backend
	grpc    *grpc.Server
	local   *grpc.Server
	logger  zerolog.Logger
}

// NewServer creates a new API server
func NewServer(backend Backend, limit RateLimit) *Server {
	s := &Server{
		backend: backend,
		logger:  log.WithComponent("api"),
	}

	s.grpc = grpc.NewServer(
		grpc.ChainUnaryInterceptor(
			MetricsInterceptor(),
			AccountInterceptor(),
			ValidationInterceptor(),
			RateLimitInterceptor(limit),
		),
		grpc.ChainStreamInterceptor(AccountStreamInterceptor()),
	)
	s.grpc.RegisterService(&ServiceDesc, s)

	s.local = grpc.NewServer(
		grpc.ChainUnaryInterceptor(
			MetricsInterceptor(),
			ReadOnlyInterceptor(),
			AccountInterceptor(),
		),
		grpc.ChainStreamInterceptor(AccountStreamInterceptor()),
	)
	s.local.RegisterService(&ServiceDesc, s)

	return s
}

// Start starts the gRPC server on a TCP address
func (s *Server) Start(addr string) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen: %v", err)
	}
	return s.Serve(lis)
}

// Serve accepts connections on lis until Stop is called
func (s *Server) Serve(lis net.Listener) error {
	s.logger.Info().Str("addr", lis.Addr().String()).Msg("gRPC API listening")
	metrics.RegisterComponent("api", true, "")
	return s.grpc.Serve(lis)
}

// StartUnix serves read-only methods on a Unix socket
func (s *Server) StartUnix(path string) error {
	_ = os.Remove(path)
	lis, err := net.Listen("unix", path)
	if err != nil {
		return fmt.Errorf("failed to listen on unix socket: %v", err)
	}
	if err := os.Chmod(path, 0660); err != nil {
		lis.Close()
		return fmt.Errorf("failed to set socket permissions: %v", err)
	}
	return s.ServeLocal(lis)
}

// ServeLocal serves read-only methods on lis until Stop is called
func (s *Server) ServeLocal(lis net.Listener) error {
	s.logger.Info().Str("addr", lis.Addr().String()).Msg("Read-only API listening")
	return s.local.Serve(lis)
}

// Stop gracefully stops the gRPC servers
func (s *Server) Stop() {
	if s.grpc != nil {
		s.grpc.GracefulStop()
		metrics.UpdateComponent("api", false, "stopped")
	}
	if s.local != nil {
		s.local.GracefulStop()
	}
}

// caller returns the authenticated account of the request
func caller(ctx context.Context) (types.AccountID, error) {
	account, ok := AccountFromContext(ctx)
	if !ok {
		return "", status.Errorf(codes.Unauthenticated, "missing %s metadata", AccountMetadataKey)
	}
	return account, nil
}

// RegisterResource adds the caller's node to the pool
func (s *Server) RegisterResource(ctx context.Context, req *RegisterResourceRequest) (*RegisterResourceResponse, error) {
	owner, err := caller(ctx)
	if err != nil {
		return nil, err
	}
	id, err := s.backend.RegisterResource(owner, req.PeerID, req.PublicIP, req.CPU, req.Memory)
	if err != nil {
		return nil, err
	}
	return &RegisterResourceResponse{ResourceID: id}, nil
}

// ResourceHeartbeat records a liveness report from the caller's node
func (s *Server) ResourceHeartbeat(ctx context.Context, req *ResourceHeartbeatRequest) (*Empty, error) {
	owner, err := caller(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.backend.ResourceHeartbeat(owner, req.ResourceID, req.DApps); err != nil {
		return nil, err
	}
	return &Empty{}, nil
}

// OfflineResource removes the caller's node from the pool
func (s *Server) OfflineResource(ctx context.Context, req *OfflineResourceRequest) (*OfflineResourceResponse, error) {
	owner, err := caller(ctx)
	if err != nil {
		return nil, err
	}
	failed, err := s.backend.OfflineResource(owner, req.ResourceID)
	if err != nil {
		return nil, err
	}
	return &OfflineResourceResponse{Failed: failed}, nil
}

// RequestDeployment places a new DApp for the caller
func (s *Server) RequestDeployment(ctx context.Context, req *DeploymentRequest) (*DeploymentResponse, error) {
	owner, err := caller(ctx)
	if err != nil {
		return nil, err
	}
	id, err := s.backend.RequestDeployment(owner, req.Deployment)
	if err != nil {
		return nil, err
	}
	return &DeploymentResponse{DAppID: id}, nil
}

// EndDeployment stops one of the caller's DApps
func (s *Server) EndDeployment(ctx context.Context, req *EndDeploymentRequest) (*Empty, error) {
	owner, err := caller(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.backend.EndDeployment(owner, req.DAppID); err != nil {
		return nil, err
	}
	return &Empty{}, nil
}

// ChangeSpecification re-places one of the caller's DApps
func (s *Server) ChangeSpecification(ctx context.Context, req *DeploymentRequest) (*DeploymentResponse, error) {
	owner, err := caller(ctx)
	if err != nil {
		return nil, err
	}
	id, err := s.backend.ChangeSpecification(owner, req.Deployment)
	if err != nil {
		return nil, err
	}
	return &DeploymentResponse{DAppID: id}, nil
}

// DAppHeartbeat records a liveness report for one of the caller's DApps
func (s *Server) DAppHeartbeat(ctx context.Context, req *DAppHeartbeatRequest) (*Empty, error) {
	owner, err := caller(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.backend.DAppHeartbeat(owner, req.Name); err != nil {
		return nil, err
	}
	return &Empty{}, nil
}

// GetResource returns a resource by id
func (s *Server) GetResource(ctx context.Context, req *GetResourceRequest) (*ResourceResponse, error) {
	resource, err := s.backend.GetResource(req.ResourceID)
	if err != nil {
		return nil, err
	}
	return &ResourceResponse{Resource: resource}, nil
}

// ListResources returns every resource, optionally filtered by owner
func (s *Server) ListResources(ctx context.Context, req *ListResourcesRequest) (*ListResourcesResponse, error) {
	resources, err := s.backend.ListResources()
	if err != nil {
		return nil, err
	}
	if req.Owner != "" {
		filtered := make([]*types.ComputingResource, 0, len(resources))
		for _, r := range resources {
			if r.Owner == req.Owner {
				filtered = append(filtered, r)
			}
		}
		resources = filtered
	}
	return &ListResourcesResponse{Resources: resources}, nil
}

// GetDApp returns a DApp and its deployment, by id or by the caller's name
func (s *Server) GetDApp(ctx context.Context, req *GetDAppRequest) (*DAppResponse, error) {
	var (
		dapp *types.DApp
		err  error
	)
	if req.Name != "" {
		owner, cerr := caller(ctx)
		if cerr != nil {
			return nil, cerr
		}
		dapp, err = s.backend.GetDAppByName(owner, req.Name)
	} else {
		dapp, err = s.backend.GetDApp(req.DAppID)
	}
	if err != nil {
		return nil, err
	}

	resp := &DAppResponse{DApp: dapp}
	if deployment, err := s.backend.GetDeployment(dapp.DeploymentID); err == nil {
		resp.Deployment = deployment
	}
	return resp, nil
}

// ListDApps returns every DApp, optionally filtered by owner
func (s *Server) ListDApps(ctx context.Context, req *ListDAppsRequest) (*ListDAppsResponse, error) {
	dapps, err := s.backend.ListDApps()
	if err != nil {
		return nil, err
	}
	if req.Owner != "" {
		filtered := make([]*types.DApp, 0, len(dapps))
		for _, d := range dapps {
			if d.Owner == req.Owner {
				filtered = append(filtered, d)
			}
		}
		dapps = filtered
	}
	return &ListDAppsResponse{DApps: dapps}, nil
}

// GetRank returns the capacity rank
func (s *Server) GetRank(ctx context.Context, req *GetRankRequest) (*GetRankResponse, error) {
	epoch, err := s.backend.Epoch()
	if err != nil {
		return nil, err
	}
	rank, err := s.backend.Rank()
	if err != nil {
		return nil, err
	}
	return &GetRankResponse{Epoch: epoch, Rank: rank}, nil
}

// GetStats summarizes the pool
func (s *Server) GetStats(ctx context.Context, req *GetStatsRequest) (*GetStatsResponse, error) {
	stats, err := s.backend.Stats()
	if err != nil {
		return nil, err
	}
	return &GetStatsResponse{Stats: stats}, nil
}

// WatchEvents streams events until the client goes away
func (s *Server) WatchEvents(req *WatchEventsRequest, stream EventStream) error {
	broker := s.backend.GetEventBroker()
	if broker == nil {
		return status.Error(codes.Unavailable, "event broker not running")
	}

	sub := broker.Subscribe()
	defer broker.Unsubscribe(sub)

	filter := make(map[events.EventType]bool, len(req.Types))
	for _, t := range req.Types {
		filter[t] = true
	}

	ctx := stream.Context()
	for {
		select {
		case event, ok := <-sub:
			if !ok {
				return nil
			}
			if len(filter) > 0 && !filter[event.Type] {
				continue
			}
			if err := stream.Send(event); err != nil {
				return err
			}
		case <-ctx.Done():
			return nil
		}
	}
}
