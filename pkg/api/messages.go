package api

import (
	"github.com/cuemby/hamster/pkg/events"
	"github.com/cuemby/hamster/pkg/provider"
	"github.com/cuemby/hamster/pkg/types"
)

// Empty is the response of operations that return nothing
type Empty struct{}

type RegisterResourceRequest struct {
	PeerID   string `json:"peer_id" validate:"required"`
	PublicIP string `json:"public_ip" validate:"required"`
	CPU      uint32 `json:"cpu"`
	Memory   uint32 `json:"memory"`
}

type RegisterResourceResponse struct {
	ResourceID uint64 `json:"resource_id"`
}

type ResourceHeartbeatRequest struct {
	ResourceID uint64   `json:"resource_id"`
	DApps      []uint64 `json:"dapps"`
}

type OfflineResourceRequest struct {
	ResourceID uint64 `json:"resource_id"`
}

// OfflineResourceResponse lists the DApps that could not be moved off the
// resource and were destroyed
type OfflineResourceResponse struct {
	Failed []string `json:"failed"`
}

type DeploymentRequest struct {
	Deployment provider.DeploymentRequest `json:"deployment"`
}

type DeploymentResponse struct {
	DAppID uint64 `json:"dapp_id"`
}

type EndDeploymentRequest struct {
	DAppID uint64 `json:"dapp_id"`
}

type DAppHeartbeatRequest struct {
	Name string `json:"name" validate:"required"`
}

type GetResourceRequest struct {
	ResourceID uint64 `json:"resource_id"`
}

type ResourceResponse struct {
	Resource *types.ComputingResource `json:"resource"`
}

// ListResourcesRequest filters resources by owner when Owner is set
type ListResourcesRequest struct {
	Owner types.AccountID `json:"owner,omitempty"`
}

type ListResourcesResponse struct {
	Resources []*types.ComputingResource `json:"resources"`
}

// GetDAppRequest looks a DApp up by id, or by the caller's DApp name when
// Name is set
type GetDAppRequest struct {
	DAppID uint64 `json:"dapp_id"`
	Name   string `json:"name,omitempty"`
}

type DAppResponse struct {
	DApp       *types.DApp       `json:"dapp"`
	Deployment *types.Deployment `json:"deployment,omitempty"`
}

// ListDAppsRequest filters DApps by owner when Owner is set
type ListDAppsRequest struct {
	Owner types.AccountID `json:"owner,omitempty"`
}

type ListDAppsResponse struct {
	DApps []*types.DApp `json:"dapps"`
}

type GetRankRequest struct{}

type GetRankResponse struct {
	Epoch uint64            `json:"epoch"`
	Rank  []types.RankEntry `json:"rank"`
}

type GetStatsRequest struct{}

type GetStatsResponse struct {
	Stats *provider.Stats `json:"stats"`
}

// WatchEventsRequest selects the event types to stream; empty means all
type WatchEventsRequest struct {
	Types []events.EventType `json:"types,omitempty"`
}
