package provider

import (
	"errors"
	"fmt"

	"github.com/cuemby/hamster/pkg/events"
	"github.com/cuemby/hamster/pkg/launch"
	"github.com/cuemby/hamster/pkg/log"
	"github.com/cuemby/hamster/pkg/metrics"
	"github.com/cuemby/hamster/pkg/scheduler"
	"github.com/cuemby/hamster/pkg/storage"
	"github.com/cuemby/hamster/pkg/types"
	"github.com/rs/zerolog"
)

// DefaultTimeoutEpochs is the number of epochs without a heartbeat after which
// a resource or DApp is considered lost
const DefaultTimeoutEpochs uint64 = 300

// Provider owns the resource pool and the DApps placed on it. Every exported
// mutating method runs in a single store transaction and publishes its events
// only after the transaction commits.
type Provider struct {
	store     storage.Store
	publisher events.Publisher
	scheduler *scheduler.Scheduler
	timeout   uint64
	logger    zerolog.Logger
}

// NewProvider creates a provider over store. A nil publisher discards events;
// a zero timeout selects DefaultTimeoutEpochs.
func NewProvider(store storage.Store, publisher events.Publisher, timeoutEpochs uint64) *Provider {
	if timeoutEpochs == 0 {
		timeoutEpochs = DefaultTimeoutEpochs
	}
	if publisher == nil {
		publisher = discard{}
	}
	return &Provider{
		store:     store,
		publisher: publisher,
		scheduler: scheduler.NewScheduler(),
		timeout:   timeoutEpochs,
		logger:    log.WithComponent("provider"),
	}
}

// TimeoutEpochs returns the heartbeat timeout in epochs
func (p *Provider) TimeoutEpochs() uint64 {
	return p.timeout
}

type discard struct{}

func (discard) Publish(*events.Event) {}

// outbox collects the events of one transaction
type outbox struct {
	epoch  uint64
	events []*events.Event
}

func (o *outbox) add(eventType events.EventType, message string, data interface{}) {
	o.events = append(o.events, events.New(eventType, o.epoch, message, data))
}

// update runs fn in a write transaction and publishes the collected events
// once it has committed
func (p *Provider) update(operation string, fn func(tx storage.Tx, out *outbox) error) error {
	var out outbox
	err := p.store.Update(func(tx storage.Tx) error {
		epoch, err := tx.Counter(storage.CounterEpoch)
		if err != nil {
			return err
		}
		out = outbox{epoch: epoch}
		return fn(tx, &out)
	})
	metrics.OperationsTotal.WithLabelValues(operation, metrics.Result(err)).Inc()
	if err != nil {
		return err
	}

	for _, event := range out.events {
		p.publisher.Publish(event)
	}
	return nil
}

// placed records a deployment.placed notification for dapp on resource
func (p *Provider) placed(out *outbox, dapp *types.DApp, deployment *types.Deployment, resource *types.ComputingResource) error {
	spec, err := launch.Spec(dapp, deployment)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidMethod, err)
	}
	out.add(events.EventDeploymentPlaced, "DApp placed on resource", events.DeploymentPlaced{
		DAppID:     dapp.ID,
		Owner:      string(dapp.Owner),
		Name:       dapp.Name,
		ResourceID: resource.Index,
		PeerID:     resource.PeerID,
		PublicIP:   resource.PublicIP,
		CPU:        deployment.CPU,
		Memory:     deployment.Memory,
		MethodKind: uint8(deployment.Method.Kind),
		Command:    deployment.Method.Command(),
		Launch:     spec,
	})
	return nil
}

func dappRef(tx storage.Tx, dapp *types.DApp) events.DAppRef {
	ref := events.DAppRef{
		DAppID:     dapp.ID,
		Owner:      string(dapp.Owner),
		Name:       dapp.Name,
		ResourceID: dapp.ResourceID,
	}
	if resource, err := tx.GetResource(dapp.ResourceID); err == nil {
		ref.PeerID = resource.PeerID
	}
	return ref
}

// resourceOf loads a resource and checks that owner holds it
func resourceOf(tx storage.Tx, owner types.AccountID, id uint64) (*types.ComputingResource, error) {
	resource, err := tx.GetResource(id)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("%w: %d", ErrInvalidResourceIndex, id)
	}
	if err != nil {
		return nil, err
	}
	if resource.Owner != owner {
		return nil, fmt.Errorf("%w: resource %d", ErrResourceNotOwnedByAccount, id)
	}
	return resource, nil
}

// Epoch returns the last epoch recorded by Tick
func (p *Provider) Epoch() (uint64, error) {
	var epoch uint64
	err := p.store.View(func(tx storage.Tx) error {
		var err error
		epoch, err = tx.Counter(storage.CounterEpoch)
		return err
	})
	return epoch, err
}

// GetResource returns a resource by id
func (p *Provider) GetResource(id uint64) (*types.ComputingResource, error) {
	var resource *types.ComputingResource
	err := p.store.View(func(tx storage.Tx) error {
		var err error
		resource, err = tx.GetResource(id)
		return err
	})
	if errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("%w: %d", ErrInvalidResourceIndex, id)
	}
	return resource, err
}

// ListResources returns every resource ordered by id
func (p *Provider) ListResources() ([]*types.ComputingResource, error) {
	var resources []*types.ComputingResource
	err := p.store.View(func(tx storage.Tx) error {
		var err error
		resources, err = tx.ListResources()
		return err
	})
	return resources, err
}

// GetDApp returns a DApp by id
func (p *Provider) GetDApp(id uint64) (*types.DApp, error) {
	var dapp *types.DApp
	err := p.store.View(func(tx storage.Tx) error {
		var err error
		dapp, err = tx.GetDApp(id)
		return err
	})
	if errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("%w: %d", ErrInvalidDAppIndex, id)
	}
	return dapp, err
}

// GetDAppByName returns the DApp owner runs under name
func (p *Provider) GetDAppByName(owner types.AccountID, name string) (*types.DApp, error) {
	var dapp *types.DApp
	err := p.store.View(func(tx storage.Tx) error {
		id, err := tx.GetDAppIndex(owner, name)
		if errors.Is(err, storage.ErrNotFound) {
			return fmt.Errorf("%w: %q", ErrNotHaveDApp, name)
		}
		if err != nil {
			return err
		}
		dapp, err = tx.GetDApp(id)
		return err
	})
	return dapp, err
}

// ListDApps returns every DApp ordered by id
func (p *Provider) ListDApps() ([]*types.DApp, error) {
	var dapps []*types.DApp
	err := p.store.View(func(tx storage.Tx) error {
		var err error
		dapps, err = tx.ListDApps()
		return err
	})
	return dapps, err
}

// GetDeployment returns a deployment spec by id
func (p *Provider) GetDeployment(id uint64) (*types.Deployment, error) {
	var deployment *types.Deployment
	err := p.store.View(func(tx storage.Tx) error {
		var err error
		deployment, err = tx.GetDeployment(id)
		return err
	})
	return deployment, err
}

// ListDeployments returns every deployment spec ordered by id
func (p *Provider) ListDeployments() ([]*types.Deployment, error) {
	var deployments []*types.Deployment
	err := p.store.View(func(tx storage.Tx) error {
		var err error
		deployments, err = tx.ListDeployments()
		return err
	})
	return deployments, err
}

// UserResources returns the ids of the resources owner holds
func (p *Provider) UserResources(owner types.AccountID) ([]uint64, error) {
	var ids []uint64
	err := p.store.View(func(tx storage.Tx) error {
		var err error
		ids, err = tx.GetUserResources(owner)
		return err
	})
	return ids, err
}

// UserDApps returns the DApp names owner holds
func (p *Provider) UserDApps(owner types.AccountID) ([]string, error) {
	var names []string
	err := p.store.View(func(tx storage.Tx) error {
		var err error
		names, err = tx.GetUserDApps(owner)
		return err
	})
	return names, err
}

// Rank returns the current capacity rank
func (p *Provider) Rank() ([]types.RankEntry, error) {
	var rank []types.RankEntry
	err := p.store.View(func(tx storage.Tx) error {
		var err error
		rank, err = p.scheduler.Rank(tx)
		return err
	})
	return rank, err
}
