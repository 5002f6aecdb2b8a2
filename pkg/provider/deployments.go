package provider

import (
	"errors"
	"fmt"

	"github.com/cuemby/hamster/pkg/events"
	"github.com/cuemby/hamster/pkg/scheduler"
	"github.com/cuemby/hamster/pkg/storage"
	"github.com/cuemby/hamster/pkg/types"
)

// DeploymentRequest describes a DApp to deploy. Replicas and Available are
// recorded with the deployment; one DApp instance is placed per request.
type DeploymentRequest struct {
	Name      string                 `json:"name"`
	Method    types.DeploymentMethod `json:"method"`
	CPU       uint32                 `json:"cpu"`
	Memory    uint32                 `json:"memory"`
	Replicas  uint32                 `json:"replicas"`
	Available uint32                 `json:"available"`
}

func (r DeploymentRequest) validate() error {
	if r.Name == "" {
		return ErrInvalidDAppName
	}
	if err := r.Method.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidMethod, err)
	}
	return nil
}

// RequestDeployment places a new DApp on the smallest resource that fits it
// and returns the DApp id
func (p *Provider) RequestDeployment(owner types.AccountID, req DeploymentRequest) (uint64, error) {
	if err := req.validate(); err != nil {
		return 0, err
	}

	var dapp *types.DApp
	err := p.update("request_deployment", func(tx storage.Tx, out *outbox) error {
		names, err := tx.GetUserDApps(owner)
		if err != nil {
			return err
		}
		if types.ContainsSorted(names, req.Name) {
			return fmt.Errorf("%w: %q", ErrRepeatDAppName, req.Name)
		}

		dapp, err = p.create(tx, out, owner, req)
		return err
	})
	if err != nil {
		return 0, err
	}

	p.logger.Info().
		Uint64("dapp_id", dapp.ID).
		Str("owner", string(owner)).
		Str("name", req.Name).
		Uint64("resource_id", dapp.ResourceID).
		Msg("Deployment placed")
	return dapp.ID, nil
}

// create stores the deployment spec, places the DApp and records its name
func (p *Provider) create(tx storage.Tx, out *outbox, owner types.AccountID, req DeploymentRequest) (*types.DApp, error) {
	deploymentID, err := tx.NextID(storage.CounterDeploymentIndex)
	if err != nil {
		return nil, err
	}
	deployment := &types.Deployment{
		ID:        deploymentID,
		Owner:     owner,
		Method:    req.Method,
		CPU:       req.CPU,
		Memory:    req.Memory,
		Replicas:  req.Replicas,
		Available: req.Available,
	}
	if err := tx.PutDeployment(deployment); err != nil {
		return nil, err
	}

	dapp, err := p.instantiate(tx, out, owner, req.Name, deployment)
	if err != nil {
		return nil, err
	}

	names, err := tx.GetUserDApps(owner)
	if err != nil {
		return nil, err
	}
	names, _ = types.InsertSorted(names, req.Name)
	if err := tx.PutUserDApps(owner, names); err != nil {
		return nil, err
	}
	return dapp, nil
}

// instantiate allocates capacity for deployment and binds a new online DApp to
// the chosen resource
func (p *Provider) instantiate(tx storage.Tx, out *outbox, owner types.AccountID, name string, deployment *types.Deployment) (*types.DApp, error) {
	resource, err := p.scheduler.Allocate(tx, deployment.CPU, deployment.Memory)
	if errors.Is(err, scheduler.ErrNoCapacity) {
		return nil, fmt.Errorf("%w: %d cpu / %d memory", ErrInstantiate, deployment.CPU, deployment.Memory)
	}
	if err != nil {
		return nil, err
	}

	id, err := tx.NextID(storage.CounterDAppIndex)
	if err != nil {
		return nil, err
	}

	dapp := &types.DApp{
		ID:            id,
		Owner:         owner,
		Name:          name,
		DeploymentID:  deployment.ID,
		ResourceID:    resource.Index,
		Status:        types.DAppStatusOnline,
		LastHeartbeat: out.epoch,
	}
	resource.AddDApp(id)
	if err := tx.PutResource(resource); err != nil {
		return nil, err
	}
	if err := tx.PutDApp(dapp); err != nil {
		return nil, err
	}
	if err := tx.PutDAppIndex(owner, name, id); err != nil {
		return nil, err
	}

	if err := p.placed(out, dapp, deployment, resource); err != nil {
		return nil, err
	}
	return dapp, nil
}

// EndDeployment stops a DApp, frees its capacity and forgets its name
func (p *Provider) EndDeployment(owner types.AccountID, dappID uint64) error {
	err := p.update("end_deployment", func(tx storage.Tx, out *outbox) error {
		dapp, err := tx.GetDApp(dappID)
		if errors.Is(err, storage.ErrNotFound) {
			return fmt.Errorf("%w: %d", ErrInvalidDAppIndex, dappID)
		}
		if err != nil {
			return err
		}
		if dapp.Owner != owner {
			return fmt.Errorf("%w: dapp %d", ErrNotHaveDApp, dappID)
		}
		names, err := tx.GetUserDApps(owner)
		if err != nil {
			return err
		}
		if !types.ContainsSorted(names, dapp.Name) {
			return fmt.Errorf("%w: %q", ErrNotHaveDApp, dapp.Name)
		}

		ref := dappRef(tx, dapp)
		if err := p.destroy(tx, dapp); err != nil {
			return err
		}
		out.add(events.EventDeploymentEnded, "Deployment ended", ref)
		out.add(events.EventDAppStopped, "DApp stopped", ref)
		return nil
	})
	if err != nil {
		return err
	}

	p.logger.Info().Uint64("dapp_id", dappID).Str("owner", string(owner)).Msg("Deployment ended")
	return nil
}

// ChangeSpecification replaces the deployment of an existing DApp. The old
// placement is released before the new one is chosen, so the DApp may land on
// the same resource. If the new shape fits nowhere the DApp is left untouched.
func (p *Provider) ChangeSpecification(owner types.AccountID, req DeploymentRequest) (uint64, error) {
	if err := req.validate(); err != nil {
		if errors.Is(err, ErrInvalidDAppName) {
			return 0, fmt.Errorf("%w: %q", ErrNotHaveDApp, req.Name)
		}
		return 0, err
	}

	var dapp *types.DApp
	err := p.update("change_specification", func(tx storage.Tx, out *outbox) error {
		names, err := tx.GetUserDApps(owner)
		if err != nil {
			return err
		}
		if !types.ContainsSorted(names, req.Name) {
			return fmt.Errorf("%w: %q", ErrNotHaveDApp, req.Name)
		}
		oldID, err := tx.GetDAppIndex(owner, req.Name)
		if errors.Is(err, storage.ErrNotFound) {
			return fmt.Errorf("%w: %q", ErrNotHaveDApp, req.Name)
		}
		if err != nil {
			return err
		}
		old, err := tx.GetDApp(oldID)
		if err != nil {
			return err
		}

		ref := dappRef(tx, old)
		if err := p.destroy(tx, old); err != nil {
			return err
		}
		out.add(events.EventDAppStopped, "DApp stopped for specification change", ref)

		dapp, err = p.create(tx, out, owner, req)
		return err
	})
	if err != nil {
		return 0, err
	}

	p.logger.Info().
		Uint64("dapp_id", dapp.ID).
		Str("owner", string(owner)).
		Str("name", req.Name).
		Uint64("resource_id", dapp.ResourceID).
		Msg("Deployment specification changed")
	return dapp.ID, nil
}

// DAppHeartbeat records a liveness report for a DApp the caller owns
func (p *Provider) DAppHeartbeat(owner types.AccountID, name string) error {
	return p.update("dapp_heartbeat", func(tx storage.Tx, out *outbox) error {
		names, err := tx.GetUserDApps(owner)
		if err != nil {
			return err
		}
		if len(names) == 0 {
			return fmt.Errorf("%w: %s has no dapps", ErrNotHaveDApp, owner)
		}
		if !types.ContainsSorted(names, name) {
			return fmt.Errorf("%w: %q", ErrInvalidDAppName, name)
		}

		id, err := tx.GetDAppIndex(owner, name)
		if err != nil {
			return err
		}
		dapp, err := tx.GetDApp(id)
		if err != nil {
			return err
		}
		dapp.LastHeartbeat = out.epoch
		if err := tx.PutDApp(dapp); err != nil {
			return err
		}

		out.add(events.EventDAppHeartbeat, "DApp heartbeat acknowledged", dappRef(tx, dapp))
		return nil
	})
}

// detach removes a DApp from the resource it is bound to and, when the
// deployment is known, returns its capacity
func (p *Provider) detach(tx storage.Tx, dapp *types.DApp, deployment *types.Deployment) error {
	resource, err := tx.GetResource(dapp.ResourceID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if !resource.RemoveDApp(dapp.ID) {
		return nil
	}
	if deployment == nil {
		return tx.PutResource(resource)
	}
	return p.scheduler.Release(tx, resource, deployment.CPU, deployment.Memory)
}

// destroy removes every record of a DApp: its placement, deployment spec,
// name index entry and owner name
func (p *Provider) destroy(tx storage.Tx, dapp *types.DApp) error {
	deployment, err := tx.GetDeployment(dapp.DeploymentID)
	if errors.Is(err, storage.ErrNotFound) {
		deployment = nil
	} else if err != nil {
		return err
	}

	if err := p.detach(tx, dapp, deployment); err != nil {
		return err
	}
	if deployment != nil {
		if err := tx.DeleteDeployment(deployment.ID); err != nil {
			return err
		}
	}
	if err := tx.DeleteDApp(dapp.ID); err != nil {
		return err
	}

	if id, err := tx.GetDAppIndex(dapp.Owner, dapp.Name); err == nil && id == dapp.ID {
		if err := tx.DeleteDAppIndex(dapp.Owner, dapp.Name); err != nil {
			return err
		}
		names, err := tx.GetUserDApps(dapp.Owner)
		if err != nil {
			return err
		}
		names, _ = types.RemoveSorted(names, dapp.Name)
		if err := tx.PutUserDApps(dapp.Owner, names); err != nil {
			return err
		}
	}
	return nil
}
