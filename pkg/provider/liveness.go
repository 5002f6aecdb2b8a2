package provider

import (
	"github.com/cuemby/hamster/pkg/events"
	"github.com/cuemby/hamster/pkg/metrics"
	"github.com/cuemby/hamster/pkg/storage"
	"github.com/cuemby/hamster/pkg/types"
)

// SweepResult reports what one liveness sweep changed
type SweepResult struct {
	Epoch             uint64   `json:"epoch"`
	TimedOutResources []uint64 `json:"timed_out_resources"`
	TimedOutDApps     []uint64 `json:"timed_out_dapps"`
	Failed            []string `json:"failed"`
}

// expired reports whether more than timeout epochs passed since last
func expired(now, last, timeout uint64) bool {
	if now <= last {
		return false
	}
	return now-last > timeout
}

// TimedOutResources returns the online resources whose last heartbeat is older
// than the timeout at epoch now
func (p *Provider) TimedOutResources(tx storage.Tx, now uint64) ([]*types.ComputingResource, error) {
	resources, err := tx.ListResources()
	if err != nil {
		return nil, err
	}
	var out []*types.ComputingResource
	for _, r := range resources {
		if r.Status == types.ResourceStatusOnline && expired(now, r.LastHeartbeat, p.timeout) {
			out = append(out, r)
		}
	}
	return out, nil
}

// TimedOutDApps returns the online DApps whose last heartbeat is older than
// the timeout at epoch now
func (p *Provider) TimedOutDApps(tx storage.Tx, now uint64) ([]*types.DApp, error) {
	dapps, err := tx.ListDApps()
	if err != nil {
		return nil, err
	}
	var out []*types.DApp
	for _, d := range dapps {
		if d.Status == types.DAppStatusOnline && expired(now, d.LastHeartbeat, p.timeout) {
			out = append(out, d)
		}
	}
	return out, nil
}

// Tick advances the epoch to epoch (it never moves backwards) and runs the
// liveness sweep. Resources that stopped reporting go offline and their DApps
// are moved; DApps that stopped reporting are destroyed. DApps moved in this
// sweep start with a fresh heartbeat and are not destroyed by it.
func (p *Provider) Tick(epoch uint64) (*SweepResult, error) {
	result := &SweepResult{
		TimedOutResources: []uint64{},
		TimedOutDApps:     []uint64{},
		Failed:            []string{},
	}

	err := p.update("tick", func(tx storage.Tx, out *outbox) error {
		if epoch > out.epoch {
			if err := tx.SetCounter(storage.CounterEpoch, epoch); err != nil {
				return err
			}
			out.epoch = epoch
		}
		now := out.epoch
		result.Epoch = now

		lost, err := p.TimedOutResources(tx, now)
		if err != nil {
			return err
		}
		// every lost resource leaves the rank before any DApp is moved
		for _, resource := range lost {
			if err := p.takeDown(tx, resource); err != nil {
				return err
			}
		}
		for _, resource := range lost {
			hosted := append([]uint64(nil), resource.DApps...)
			failed, err := p.redistribute(tx, out, resource.Index)
			if err != nil {
				return err
			}

			result.TimedOutResources = append(result.TimedOutResources, resource.Index)
			result.Failed = append(result.Failed, failed...)
			metrics.TimeoutsTotal.WithLabelValues("resource").Inc()

			out.add(events.EventResourceDown, "Resource heartbeat timed out", events.ResourceLost{
				ResourceID: resource.Index,
				Owner:      string(resource.Owner),
				PeerID:     resource.PeerID,
				DApps:      hosted,
				Failed:     failed,
			})
		}

		dapps, err := p.TimedOutDApps(tx, now)
		if err != nil {
			return err
		}
		for _, dapp := range dapps {
			ref := dappRef(tx, dapp)
			if err := p.destroy(tx, dapp); err != nil {
				return err
			}

			result.TimedOutDApps = append(result.TimedOutDApps, dapp.ID)
			metrics.TimeoutsTotal.WithLabelValues("dapp").Inc()

			out.add(events.EventDAppTimeout, "DApp heartbeat timed out", ref)
			out.add(events.EventDAppStopped, "DApp stopped", ref)
			out.add(events.EventDeploymentEnded, "Deployment ended", ref)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	metrics.Epoch.Set(float64(result.Epoch))
	if len(result.TimedOutResources) > 0 || len(result.TimedOutDApps) > 0 {
		p.logger.Warn().
			Uint64("epoch", result.Epoch).
			Interface("resources", result.TimedOutResources).
			Interface("dapps", result.TimedOutDApps).
			Strs("failed", result.Failed).
			Msg("Liveness sweep removed unresponsive entities")
	}
	return result, nil
}
