package storage

import (
	"errors"

	"github.com/cuemby/hamster/pkg/types"
)

var (
	// ErrNotFound is returned when an entity does not exist
	ErrNotFound = errors.New("not found")

	// ErrReadOnly is returned when writing inside a read-only transaction
	ErrReadOnly = errors.New("transaction is read-only")
)

// Counter names
const (
	CounterResourceIndex   = "resource_index"
	CounterDeploymentIndex = "deployment_index"
	CounterDAppIndex       = "dapp_index"
	CounterEpoch           = "epoch"
	CounterAppliedIndex    = "applied_index"
)

// Store defines the interface for provider state storage.
// Update runs fn in a single transaction: if fn returns an error, none of its
// writes are kept.
type Store interface {
	View(fn func(tx Tx) error) error
	Update(fn func(tx Tx) error) error

	// Dump exports every bucket; Load replaces the whole state with a dump
	Dump() (Dump, error)
	Load(dump Dump) error

	Close() error
}

// Dump is a raw copy of the store: bucket name -> hex encoded key -> value
type Dump map[string]map[string][]byte

// Tx gives typed access to the provider state inside a transaction
type Tx interface {
	// Counters
	Counter(name string) (uint64, error)
	SetCounter(name string, value uint64) error
	NextID(name string) (uint64, error)

	// Resources
	GetResource(id uint64) (*types.ComputingResource, error)
	PutResource(resource *types.ComputingResource) error
	DeleteResource(id uint64) error
	ListResources() ([]*types.ComputingResource, error)

	// Deployments
	GetDeployment(id uint64) (*types.Deployment, error)
	PutDeployment(deployment *types.Deployment) error
	DeleteDeployment(id uint64) error
	ListDeployments() ([]*types.Deployment, error)

	// DApps
	GetDApp(id uint64) (*types.DApp, error)
	PutDApp(dapp *types.DApp) error
	DeleteDApp(id uint64) error
	ListDApps() ([]*types.DApp, error)

	// Ownership indexes (sorted, duplicate-free; empty sets are removed)
	GetUserResources(owner types.AccountID) ([]uint64, error)
	PutUserResources(owner types.AccountID, ids []uint64) error
	GetUserDApps(owner types.AccountID) ([]string, error)
	PutUserDApps(owner types.AccountID, names []string) error
	ListOwners() ([]types.AccountID, error)

	// Name index: (owner, name) -> DApp id
	GetDAppIndex(owner types.AccountID, name string) (uint64, error)
	PutDAppIndex(owner types.AccountID, name string, id uint64) error
	DeleteDAppIndex(owner types.AccountID, name string) error

	// Rank
	GetRank() ([]types.RankEntry, error)
	PutRank(rank []types.RankEntry) error
}

// AppliedIndex returns the last command log index recorded in the store
func AppliedIndex(s Store) (uint64, error) {
	var index uint64
	err := s.View(func(tx Tx) error {
		var err error
		index, err = tx.Counter(CounterAppliedIndex)
		return err
	})
	return index, err
}
