package provider

import (
	"fmt"
	"math"

	"github.com/cuemby/hamster/pkg/events"
	"github.com/cuemby/hamster/pkg/storage"
	"github.com/cuemby/hamster/pkg/types"
)

// GenesisResource is a resource present from the start
type GenesisResource struct {
	Index    uint64          `yaml:"index" json:"index"`
	Owner    types.AccountID `yaml:"owner" json:"owner"`
	PeerID   string          `yaml:"peer_id" json:"peer_id"`
	PublicIP string          `yaml:"public_ip" json:"public_ip"`
	CPU      uint32          `yaml:"cpu" json:"cpu"`
	Memory   uint32          `yaml:"memory" json:"memory"`
}

// Genesis is the initial state of a new pool
type Genesis struct {
	ResourceIndex uint64            `yaml:"resource_index" json:"resource_index"`
	Resources     []GenesisResource `yaml:"resources" json:"resources"`
}

// Genesis loads the initial resources into an empty state. The resource
// counter continues after the highest genesis index, or at ResourceIndex if
// that is larger.
func (p *Provider) Genesis(g Genesis) error {
	err := p.update("genesis", func(tx storage.Tx, out *outbox) error {
		existing, err := tx.ListResources()
		if err != nil {
			return err
		}
		next, err := tx.Counter(storage.CounterResourceIndex)
		if err != nil {
			return err
		}
		if len(existing) > 0 || next > 0 {
			return ErrGenesisApplied
		}

		next = g.ResourceIndex
		seen := make(map[uint64]bool, len(g.Resources))
		for _, gr := range g.Resources {
			if gr.Index == math.MaxUint64 {
				return fmt.Errorf("genesis resource index %d leaves no room for new resources", gr.Index)
			}
			if seen[gr.Index] {
				return fmt.Errorf("duplicate genesis resource index %d", gr.Index)
			}
			seen[gr.Index] = true

			resource := types.NewComputingResource(gr.Index, gr.Owner, gr.PeerID, gr.PublicIP, gr.CPU, gr.Memory, out.epoch)
			if err := p.addResource(tx, resource); err != nil {
				return err
			}
			if gr.Index+1 > next {
				next = gr.Index + 1
			}

			out.add(events.EventResourceRegistered, "Genesis resource registered", events.ResourceRegistered{
				ResourceID: gr.Index,
				Owner:      string(gr.Owner),
				PeerID:     gr.PeerID,
				CPU:        gr.CPU,
				Memory:     gr.Memory,
			})
		}
		return tx.SetCounter(storage.CounterResourceIndex, next)
	})
	if err != nil {
		return err
	}

	p.logger.Info().Int("resources", len(g.Resources)).Msg("Genesis state loaded")
	return nil
}
