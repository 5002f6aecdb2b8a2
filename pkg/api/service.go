package api

import (
	"context"

	"github.com/cuemby/hamster/pkg/events"
	"google.golang.org/grpc"
)

// ServiceName is the full gRPC name of the Provider service
const ServiceName = "hamster.v1.Provider"

// ProviderServer is the server API of the Provider service
type ProviderServer interface {
	RegisterResource(context.Context, *RegisterResourceRequest) (*RegisterResourceResponse, error)
	ResourceHeartbeat(context.Context, *ResourceHeartbeatRequest) (*Empty, error)
	OfflineResource(context.Context, *OfflineResourceRequest) (*OfflineResourceResponse, error)
	RequestDeployment(context.Context, *DeploymentRequest) (*DeploymentResponse, error)
	EndDeployment(context.Context, *EndDeploymentRequest) (*Empty, error)
	ChangeSpecification(context.Context, *DeploymentRequest) (*DeploymentResponse, error)
	DAppHeartbeat(context.Context, *DAppHeartbeatRequest) (*Empty, error)
	GetResource(context.Context, *GetResourceRequest) (*ResourceResponse, error)
	ListResources(context.Context, *ListResourcesRequest) (*ListResourcesResponse, error)
	GetDApp(context.Context, *GetDAppRequest) (*DAppResponse, error)
	ListDApps(context.Context, *ListDAppsRequest) (*ListDAppsResponse, error)
	GetRank(context.Context, *GetRankRequest) (*GetRankResponse, error)
	GetStats(context.Context, *GetStatsRequest) (*GetStatsResponse, error)
	WatchEvents(*WatchEventsRequest, EventStream) error
}

// EventStream is the server side of a WatchEvents call
type EventStream interface {
	Send(*events.Event) error
	Context() context.Context
}

// FullMethod returns the gRPC method path of a Provider method
func FullMethod(method string) string {
	return "/" + ServiceName + "/" + method
}

// ServiceDesc describes the Provider service for grpc.Server.RegisterService
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*ProviderServer)(nil),
	Methods: []grpc.MethodDesc{
		unary("RegisterResource", ProviderServer.RegisterResource),
		unary("ResourceHeartbeat", ProviderServer.ResourceHeartbeat),
		unary("OfflineResource", ProviderServer.OfflineResource),
		unary("RequestDeployment", ProviderServer.RequestDeployment),
		unary("EndDeployment", ProviderServer.EndDeployment),
		unary("ChangeSpecification", ProviderServer.ChangeSpecification),
		unary("DAppHeartbeat", ProviderServer.DAppHeartbeat),
		unary("GetResource", ProviderServer.GetResource),
		unary("ListResources", ProviderServer.ListResources),
		unary("GetDApp", ProviderServer.GetDApp),
		unary("ListDApps", ProviderServer.ListDApps),
		unary("GetRank", ProviderServer.GetRank),
		unary("GetStats", ProviderServer.GetStats),
	},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "WatchEvents",
			Handler:       watchEventsHandler,
			ServerStreams: true,
		},
	},
	Metadata: "hamster/v1/provider",
}

// unary builds the method descriptor of a unary Provider method
func unary[Req, Resp any](name string, call func(ProviderServer, context.Context, *Req) (*Resp, error)) grpc.MethodDesc {
	fullMethod := FullMethod(name)
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
			in := new(Req)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(ProviderServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{
				Server:     srv,
				FullMethod: fullMethod,
			}
			handler := func(ctx context.Context, req interface{}) (interface{}, error) {
				return call(srv.(ProviderServer), ctx, req.(*Req))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}

func watchEventsHandler(srv interface{}, stream grpc.ServerStream) error {
	in := new(WatchEventsRequest)
	if err := stream.RecvMsg(in); err != nil {
		return err
	}
	return srv.(ProviderServer).WatchEvents(in, &eventStream{stream})
}

type eventStream struct {
	grpc.ServerStream
}

func (s *eventStream) Send(event *events.Event) error {
	return s.ServerStream.SendMsg(event)
}
