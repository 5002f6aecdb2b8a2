package provider

import (
	"errors"
	"fmt"

	"github.com/cuemby/hamster/pkg/events"
	"github.com/cuemby/hamster/pkg/metrics"
	"github.com/cuemby/hamster/pkg/scheduler"
	"github.com/cuemby/hamster/pkg/storage"
	"github.com/cuemby/hamster/pkg/types"
)

// redistribute moves every DApp hosted on a resource that has just left the
// rank to another resource. DApps that fit nowhere are destroyed and their
// names returned; a single redistribution.failed event lists them.
func (p *Provider) redistribute(tx storage.Tx, out *outbox, resourceID uint64) ([]string, error) {
	resource, err := tx.GetResource(resourceID)
	if err != nil {
		return nil, err
	}
	hosted := append([]uint64(nil), resource.DApps...)

	var failed []events.DAppRef
	names := []string{}
	for _, id := range hosted {
		dapp, err := tx.GetDApp(id)
		if err != nil {
			return nil, fmt.Errorf("%w: dapp %d on resource %d: %v", ErrDAppRedistribution, id, resourceID, err)
		}
		deployment, err := tx.GetDeployment(dapp.DeploymentID)
		if err != nil {
			return nil, fmt.Errorf("%w: deployment %d of dapp %d: %v", ErrDAppRedistribution, dapp.DeploymentID, id, err)
		}

		ref := dappRef(tx, dapp)
		if err := p.detach(tx, dapp, deployment); err != nil {
			return nil, err
		}

		target, err := p.scheduler.Allocate(tx, deployment.CPU, deployment.Memory)
		if errors.Is(err, scheduler.ErrNoCapacity) {
			if err := p.destroy(tx, dapp); err != nil {
				return nil, err
			}
			failed = append(failed, ref)
			names = append(names, dapp.Name)
			metrics.RedistributionsTotal.WithLabelValues("failed").Inc()
			p.logger.Warn().
				Uint64("dapp_id", id).
				Str("name", dapp.Name).
				Uint64("resource_id", resourceID).
				Msg("No resource can take over DApp")
			continue
		}
		if err != nil {
			return nil, err
		}

		target.AddDApp(dapp.ID)
		if err := tx.PutResource(target); err != nil {
			return nil, err
		}
		dapp.ResourceID = target.Index
		dapp.Status = types.DAppStatusOnline
		dapp.LastHeartbeat = out.epoch
		if err := tx.PutDApp(dapp); err != nil {
			return nil, err
		}
		if err := p.placed(out, dapp, deployment, target); err != nil {
			return nil, err
		}
		metrics.RedistributionsTotal.WithLabelValues("placed").Inc()
	}

	if len(failed) > 0 {
		out.add(events.EventRedistributionFailed, "DApps could not be redistributed", events.RedistributionFailed{
			ResourceID: resourceID,
			Names:      names,
			DApps:      failed,
		})
	}
	return names, nil
}
