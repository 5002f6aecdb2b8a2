package types

import (
	"errors"
	"fmt"
)

// AccountID identifies the caller that owns resources and DApps.
// Authentication happens outside hamster; the value is trusted as given.
type AccountID string

// ComputingResource represents a compute node contributed by a provider
type ComputingResource struct {
	Index         uint64         `json:"index"`
	Owner         AccountID      `json:"owner"`
	PeerID        string         `json:"peer_id"`   // p2p identity of the node
	PublicIP      string         `json:"public_ip"` // public address of the node
	Config        ResourceConfig `json:"config"`
	DApps         []uint64       `json:"dapps"` // sorted DApp ids hosted here
	Status        ResourceStatus `json:"status"`
	LastHeartbeat uint64         `json:"last_heartbeat"` // epoch
}

// NewComputingResource creates an online resource with full capacity
func NewComputingResource(index uint64, owner AccountID, peerID, publicIP string, cpu, memory uint32, now uint64) *ComputingResource {
	return &ComputingResource{
		Index:         index,
		Owner:         owner,
		PeerID:        peerID,
		PublicIP:      publicIP,
		Config:        NewResourceConfig(cpu, memory),
		DApps:         []uint64{},
		Status:        ResourceStatusOnline,
		LastHeartbeat: now,
	}
}

// AddDApp records a DApp as hosted on this resource. Returns false if already present.
func (r *ComputingResource) AddDApp(id uint64) bool {
	var ok bool
	r.DApps, ok = InsertSorted(r.DApps, id)
	return ok
}

// RemoveDApp drops a DApp from this resource. Returns false if it was not present.
func (r *ComputingResource) RemoveDApp(id uint64) bool {
	var ok bool
	r.DApps, ok = RemoveSorted(r.DApps, id)
	return ok
}

// HasDApp reports whether the DApp is hosted on this resource
func (r *ComputingResource) HasDApp(id uint64) bool {
	return ContainsSorted(r.DApps, id)
}

// ResourceStatus represents the liveness state of a resource
type ResourceStatus string

const (
	ResourceStatusOnline  ResourceStatus = "online"
	ResourceStatusOffline ResourceStatus = "offline"
)

// MethodKind is the discriminant of a DeploymentMethod.
// The numeric values are part of the deployment.placed notification.
type MethodKind uint8

const (
	MethodCli  MethodKind = 1 // image + port
	MethodIpfs MethodKind = 2 // content id
)

func (k MethodKind) String() string {
	switch k {
	case MethodCli:
		return "cli"
	case MethodIpfs:
		return "ipfs"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(k))
	}
}

// CliMethod launches a container image exposing a port
type CliMethod struct {
	Image string `json:"image"`
	Port  uint16 `json:"port"`
}

// IpfsMethod launches content fetched from IPFS
type IpfsMethod struct {
	CID string `json:"cid"`
}

// DeploymentMethod describes how a DApp is launched. Exactly one of Cli or Ipfs
// is set, matching Kind.
type DeploymentMethod struct {
	Kind MethodKind  `json:"kind"`
	Cli  *CliMethod  `json:"cli,omitempty"`
	Ipfs *IpfsMethod `json:"ipfs,omitempty"`
}

// CliDeployment builds an image:port deployment method
func CliDeployment(image string, port uint16) DeploymentMethod {
	return DeploymentMethod{Kind: MethodCli, Cli: &CliMethod{Image: image, Port: port}}
}

// IpfsDeployment builds an IPFS deployment method
func IpfsDeployment(cid string) DeploymentMethod {
	return DeploymentMethod{Kind: MethodIpfs, Ipfs: &IpfsMethod{CID: cid}}
}

// Validate checks that the payload matches the discriminant
func (m DeploymentMethod) Validate() error {
	switch m.Kind {
	case MethodCli:
		if m.Cli == nil || m.Ipfs != nil {
			return errors.New("cli method requires only the cli payload")
		}
		if m.Cli.Image == "" {
			return errors.New("cli method requires an image")
		}
	case MethodIpfs:
		if m.Ipfs == nil || m.Cli != nil {
			return errors.New("ipfs method requires only the ipfs payload")
		}
		if m.Ipfs.CID == "" {
			return errors.New("ipfs method requires a cid")
		}
	default:
		return fmt.Errorf("unknown deployment method %s", m.Kind)
	}
	return nil
}

// Command returns the launch command sent to the provider: image:port or the cid
func (m DeploymentMethod) Command() string {
	switch m.Kind {
	case MethodCli:
		if m.Cli != nil {
			return fmt.Sprintf("%s:%d", m.Cli.Image, m.Cli.Port)
		}
	case MethodIpfs:
		if m.Ipfs != nil {
			return m.Ipfs.CID
		}
	}
	return ""
}

// Deployment is the resource shape and launch method requested for a DApp
type Deployment struct {
	ID        uint64           `json:"id"`
	Owner     AccountID        `json:"owner"`
	Method    DeploymentMethod `json:"method"`
	CPU       uint32           `json:"cpu"`
	Memory    uint32           `json:"memory"`
	Replicas  uint32           `json:"replicas"`
	Available uint32           `json:"available"`
}

// DApp is a deployed application instance bound to exactly one resource
type DApp struct {
	ID            uint64     `json:"id"`
	Owner         AccountID  `json:"owner"`
	Name          string     `json:"name"`
	DeploymentID  uint64     `json:"deployment_id"`
	ResourceID    uint64     `json:"resource_id"`
	Status        DAppStatus `json:"status"`
	LastHeartbeat uint64     `json:"last_heartbeat"` // epoch
}

// DAppStatus represents the lifecycle state of a DApp
type DAppStatus string

const (
	DAppStatusOnline    DAppStatus = "online"
	DAppStatusPaused    DAppStatus = "paused" // upgrading or moving between resources
	DAppStatusDestroyed DAppStatus = "destroyed"
)

// RankEntry orders resources by remaining capacity for best-fit selection
type RankEntry struct {
	Score      uint64 `json:"score"`
	ResourceID uint64 `json:"resource_id"`
}

// Compare orders entries by (Score, ResourceID)
func (e RankEntry) Compare(o RankEntry) int {
	switch {
	case e.Score < o.Score:
		return -1
	case e.Score > o.Score:
		return 1
	case e.ResourceID < o.ResourceID:
		return -1
	case e.ResourceID > o.ResourceID:
		return 1
	}
	return 0
}
