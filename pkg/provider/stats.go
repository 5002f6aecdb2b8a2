package provider

import (
	"github.com/cuemby/hamster/pkg/storage"
	"github.com/cuemby/hamster/pkg/types"
)

// Stats summarizes the pool for metrics
type Stats struct {
	Epoch        uint64
	Resources    map[types.ResourceStatus]int
	DApps        map[types.DAppStatus]int
	TotalCPU     uint64
	TotalMemory  uint64
	UnusedCPU    uint64
	UnusedMemory uint64
}

// Stats counts resources and DApps by status and sums the capacity of online
// resources
func (p *Provider) Stats() (*Stats, error) {
	stats := &Stats{
		Resources: map[types.ResourceStatus]int{
			types.ResourceStatusOnline:  0,
			types.ResourceStatusOffline: 0,
		},
		DApps: map[types.DAppStatus]int{
			types.DAppStatusOnline: 0,
			types.DAppStatusPaused: 0,
		},
	}

	err := p.store.View(func(tx storage.Tx) error {
		var err error
		if stats.Epoch, err = tx.Counter(storage.CounterEpoch); err != nil {
			return err
		}

		resources, err := tx.ListResources()
		if err != nil {
			return err
		}
		for _, r := range resources {
			stats.Resources[r.Status]++
			if r.Status != types.ResourceStatusOnline {
				continue
			}
			stats.TotalCPU += uint64(r.Config.TotalCPU)
			stats.TotalMemory += uint64(r.Config.TotalMemory)
			stats.UnusedCPU += uint64(r.Config.UnusedCPU)
			stats.UnusedMemory += uint64(r.Config.UnusedMemory)
		}

		dapps, err := tx.ListDApps()
		if err != nil {
			return err
		}
		for _, d := range dapps {
			stats.DApps[d.Status]++
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return stats, nil
}
