package provider

import (
	"fmt"

	"github.com/cuemby/hamster/pkg/events"
	"github.com/cuemby/hamster/pkg/storage"
	"github.com/cuemby/hamster/pkg/types"
)

// RegisterResource adds an online node with full capacity to the pool and
// returns its id. Ids are assigned sequentially and never reused.
func (p *Provider) RegisterResource(owner types.AccountID, peerID, publicIP string, cpu, memory uint32) (uint64, error) {
	var id uint64
	err := p.update("register_resource", func(tx storage.Tx, out *outbox) error {
		var err error
		id, err = tx.NextID(storage.CounterResourceIndex)
		if err != nil {
			return err
		}

		resource := types.NewComputingResource(id, owner, peerID, publicIP, cpu, memory, out.epoch)
		if err := p.addResource(tx, resource); err != nil {
			return err
		}

		out.add(events.EventResourceRegistered, "Resource registered", events.ResourceRegistered{
			ResourceID: id,
			Owner:      string(owner),
			PeerID:     peerID,
			CPU:        cpu,
			Memory:     memory,
		})
		return nil
	})
	if err != nil {
		return 0, err
	}

	p.logger.Info().
		Uint64("resource_id", id).
		Str("owner", string(owner)).
		Uint32("cpu", cpu).
		Uint32("memory", memory).
		Msg("Resource registered")
	return id, nil
}

// addResource stores a new resource, indexes it under its owner and ranks it
func (p *Provider) addResource(tx storage.Tx, resource *types.ComputingResource) error {
	if err := tx.PutResource(resource); err != nil {
		return err
	}

	ids, err := tx.GetUserResources(resource.Owner)
	if err != nil {
		return err
	}
	ids, _ = types.InsertSorted(ids, resource.Index)
	if err := tx.PutUserResources(resource.Owner, ids); err != nil {
		return err
	}

	return p.scheduler.Track(tx, resource)
}

// ResourceHeartbeat records a liveness report from a node. DApps listed in
// dappIDs that are bound to the node get their heartbeat refreshed too. A node
// that had timed out comes back online with whatever capacity it has left.
func (p *Provider) ResourceHeartbeat(owner types.AccountID, id uint64, dappIDs []uint64) error {
	var revived bool
	err := p.update("resource_heartbeat", func(tx storage.Tx, out *outbox) error {
		resource, err := resourceOf(tx, owner, id)
		if err != nil {
			return err
		}

		resource.LastHeartbeat = out.epoch
		if resource.Status == types.ResourceStatusOffline {
			resource.Status = types.ResourceStatusOnline
			revived = true
		}
		if err := tx.PutResource(resource); err != nil {
			return err
		}
		if revived {
			if err := p.scheduler.Track(tx, resource); err != nil {
				return err
			}
		}

		acked := []uint64{}
		for _, dappID := range dappIDs {
			if !resource.HasDApp(dappID) {
				continue
			}
			dapp, err := tx.GetDApp(dappID)
			if err != nil {
				return err
			}
			if dapp.ResourceID != resource.Index {
				continue
			}
			dapp.LastHeartbeat = out.epoch
			if err := tx.PutDApp(dapp); err != nil {
				return err
			}
			acked, _ = types.InsertSorted(acked, dappID)
		}

		out.add(events.EventResourceHeartbeat, "Resource heartbeat acknowledged", events.ResourceHeartbeat{
			ResourceID: resource.Index,
			PeerID:     resource.PeerID,
			DApps:      acked,
			Revived:    revived,
		})
		return nil
	})
	if err != nil {
		return err
	}

	if revived {
		p.logger.Info().Uint64("resource_id", id).Msg("Resource back online")
	}
	return nil
}

// OfflineResource takes a node out of the pool at its owner's request. Its
// DApps are moved to other nodes first; the names of those that could not be
// placed anywhere are returned.
func (p *Provider) OfflineResource(owner types.AccountID, id uint64) ([]string, error) {
	var failed []string
	err := p.update("offline_resource", func(tx storage.Tx, out *outbox) error {
		resource, err := resourceOf(tx, owner, id)
		if err != nil {
			return err
		}
		hosted := append([]uint64(nil), resource.DApps...)

		if err := p.takeDown(tx, resource); err != nil {
			return err
		}

		failed, err = p.redistribute(tx, out, id)
		if err != nil {
			return err
		}

		ids, err := tx.GetUserResources(owner)
		if err != nil {
			return err
		}
		ids, ok := types.RemoveSorted(ids, id)
		if !ok {
			return fmt.Errorf("%w: resource %d missing from %s", ErrClearDownlineResourceInformation, id, owner)
		}
		if err := tx.PutUserResources(owner, ids); err != nil {
			return err
		}
		if err := tx.DeleteResource(id); err != nil {
			return err
		}

		out.add(events.EventResourceOffline, "Resource taken offline", events.ResourceLost{
			ResourceID: id,
			Owner:      string(owner),
			PeerID:     resource.PeerID,
			DApps:      hosted,
			Failed:     failed,
		})
		return nil
	})
	if err != nil {
		return nil, err
	}

	p.logger.Info().
		Uint64("resource_id", id).
		Strs("failed", failed).
		Msg("Resource taken offline")
	return failed, nil
}

// takeDown marks a resource offline and removes it from the rank so it cannot
// be chosen while its DApps are moved
func (p *Provider) takeDown(tx storage.Tx, resource *types.ComputingResource) error {
	resource.Status = types.ResourceStatusOffline
	if err := tx.PutResource(resource); err != nil {
		return err
	}
	return p.scheduler.Untrack(tx, resource.Index)
}
