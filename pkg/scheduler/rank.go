package scheduler

import (
	"slices"

	"github.com/cuemby/hamster/pkg/types"
)

// Rank is the capacity-ordered list of online resources, ascending by
// (score, resource id). Each resource appears at most once.
type Rank []types.RankEntry

// Insert adds an entry at its sorted position, replacing any existing entry
// for the same resource
func (r Rank) Insert(e types.RankEntry) Rank {
	r = r.Remove(e.ResourceID)
	i, _ := slices.BinarySearchFunc(r, e, types.RankEntry.Compare)
	return slices.Insert(r, i, e)
}

// Remove drops the entry for a resource if present
func (r Rank) Remove(resourceID uint64) Rank {
	return slices.DeleteFunc(r, func(e types.RankEntry) bool {
		return e.ResourceID == resourceID
	})
}

// Find returns the position of the entry for a resource, or -1
func (r Rank) Find(resourceID uint64) int {
	return slices.IndexFunc(r, func(e types.RankEntry) bool {
		return e.ResourceID == resourceID
	})
}

// IsSorted reports whether entries are strictly ascending, which also means
// no duplicate entries
func (r Rank) IsSorted() bool {
	for i := 1; i < len(r); i++ {
		if r[i-1].Compare(r[i]) >= 0 {
			return false
		}
	}
	return true
}
