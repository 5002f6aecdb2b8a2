package provider

import (
	"errors"
	"fmt"

	"github.com/cuemby/hamster/pkg/scheduler"
	"github.com/cuemby/hamster/pkg/storage"
	"github.com/cuemby/hamster/pkg/types"
)

// Check verifies the cross-entity invariants of the state and returns every
// violation found, joined
func (p *Provider) Check() error {
	return p.store.View(func(tx storage.Tx) error {
		return Check(tx)
	})
}

// Check verifies the state reachable through tx
func Check(tx storage.Tx) error {
	var errs []error
	fail := func(format string, args ...interface{}) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	resources, err := tx.ListResources()
	if err != nil {
		return err
	}
	dapps, err := tx.ListDApps()
	if err != nil {
		return err
	}
	entries, err := tx.GetRank()
	if err != nil {
		return err
	}
	rank := scheduler.Rank(entries)

	byID := make(map[uint64]*types.ComputingResource, len(resources))
	owned := make(map[types.AccountID][]uint64)
	for _, r := range resources {
		byID[r.Index] = r
		owned[r.Owner] = append(owned[r.Owner], r.Index)

		if !r.Config.Valid() {
			fail("resource %d: unused capacity exceeds total", r.Index)
		}
		pos := rank.Find(r.Index)
		switch r.Status {
		case types.ResourceStatusOnline:
			if pos < 0 {
				fail("resource %d: online but not ranked", r.Index)
			} else if rank[pos].Score != r.Config.Score() {
				fail("resource %d: ranked with score %d, has %d", r.Index, rank[pos].Score, r.Config.Score())
			}
		case types.ResourceStatusOffline:
			if pos >= 0 {
				fail("resource %d: offline but ranked", r.Index)
			}
		default:
			fail("resource %d: unknown status %q", r.Index, r.Status)
		}
	}

	if !rank.IsSorted() {
		fail("rank is not strictly ascending")
	}
	for _, e := range rank {
		if _, ok := byID[e.ResourceID]; !ok {
			fail("rank entry for missing resource %d", e.ResourceID)
		}
	}

	usedCPU := make(map[uint64]uint32)
	usedMemory := make(map[uint64]uint32)
	names := make(map[types.AccountID][]string)
	for _, d := range dapps {
		names[d.Owner] = append(names[d.Owner], d.Name)

		r, ok := byID[d.ResourceID]
		if !ok {
			fail("dapp %d: bound to missing resource %d", d.ID, d.ResourceID)
		} else if !r.HasDApp(d.ID) {
			fail("dapp %d: resource %d does not list it", d.ID, d.ResourceID)
		}

		deployment, err := tx.GetDeployment(d.DeploymentID)
		if err != nil {
			fail("dapp %d: deployment %d: %v", d.ID, d.DeploymentID, err)
		} else {
			usedCPU[d.ResourceID] += deployment.CPU
			usedMemory[d.ResourceID] += deployment.Memory
		}

		id, err := tx.GetDAppIndex(d.Owner, d.Name)
		if err != nil || id != d.ID {
			fail("dapp %d: name %q of %s not indexed to it", d.ID, d.Name, d.Owner)
		}
	}

	for _, r := range resources {
		for _, id := range r.DApps {
			d, err := tx.GetDApp(id)
			if errors.Is(err, storage.ErrNotFound) {
				fail("resource %d: lists missing dapp %d", r.Index, id)
				continue
			}
			if err != nil {
				return err
			}
			if d.ResourceID != r.Index {
				fail("resource %d: lists dapp %d bound to resource %d", r.Index, id, d.ResourceID)
			}
		}
		if r.Config.UsedCPU() != usedCPU[r.Index] || r.Config.UsedMemory() != usedMemory[r.Index] {
			fail("resource %d: uses %d cpu / %d memory, its dapps need %d / %d",
				r.Index, r.Config.UsedCPU(), r.Config.UsedMemory(), usedCPU[r.Index], usedMemory[r.Index])
		}
	}

	owners, err := tx.ListOwners()
	if err != nil {
		return err
	}
	for _, owner := range owners {
		ids, err := tx.GetUserResources(owner)
		if err != nil {
			return err
		}
		if !equalSets(ids, owned[owner]) {
			fail("owner %s: resource index %v, owns %v", owner, ids, owned[owner])
		}
		indexed, err := tx.GetUserDApps(owner)
		if err != nil {
			return err
		}
		if !equalSets(indexed, names[owner]) {
			fail("owner %s: dapp names %v, owns %v", owner, indexed, names[owner])
		}
	}
	for owner := range owned {
		if ids, err := tx.GetUserResources(owner); err == nil && len(ids) == 0 {
			fail("owner %s: resources not indexed", owner)
		}
	}
	for owner := range names {
		if indexed, err := tx.GetUserDApps(owner); err == nil && len(indexed) == 0 {
			fail("owner %s: dapp names not indexed", owner)
		}
	}

	return errors.Join(errs...)
}

// equalSets compares a sorted index with an unsorted list of members
func equalSets[T uint64 | string](index []T, members []T) bool {
	if len(index) != len(members) {
		return false
	}
	for _, m := range members {
		if !types.ContainsSorted(index, m) {
			return false
		}
	}
	for i := 1; i < len(index); i++ {
		if index[i-1] >= index[i] {
			return false
		}
	}
	return true
}
