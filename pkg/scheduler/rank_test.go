package scheduler

import (
	"testing"

	"github.com/cuemby/hamster/pkg/types"
	"github.com/stretchr/testify/assert"
)

func TestRankInsert(t *testing.T) {
	tests := []struct {
		name     string
		initial  Rank
		insert   types.RankEntry
		expected Rank
	}{
		{
			name:     "into empty",
			initial:  Rank{},
			insert:   types.RankEntry{Score: 5, ResourceID: 1},
			expected: Rank{{Score: 5, ResourceID: 1}},
		},
		{
			name:     "lowest score first",
			initial:  Rank{{Score: 4, ResourceID: 0}, {Score: 9, ResourceID: 1}},
			insert:   types.RankEntry{Score: 2, ResourceID: 2},
			expected: Rank{{Score: 2, ResourceID: 2}, {Score: 4, ResourceID: 0}, {Score: 9, ResourceID: 1}},
		},
		{
			name:     "ties ordered by resource id",
			initial:  Rank{{Score: 4, ResourceID: 1}, {Score: 4, ResourceID: 5}},
			insert:   types.RankEntry{Score: 4, ResourceID: 3},
			expected: Rank{{Score: 4, ResourceID: 1}, {Score: 4, ResourceID: 3}, {Score: 4, ResourceID: 5}},
		},
		{
			name:     "replaces existing entry",
			initial:  Rank{{Score: 4, ResourceID: 0}, {Score: 9, ResourceID: 1}},
			insert:   types.RankEntry{Score: 1, ResourceID: 1},
			expected: Rank{{Score: 1, ResourceID: 1}, {Score: 4, ResourceID: 0}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.initial.Insert(tt.insert)
			assert.Equal(t, tt.expected, got)
			assert.True(t, got.IsSorted())
		})
	}
}

func TestRankRemoveAndFind(t *testing.T) {
	rank := Rank{{Score: 2, ResourceID: 4}, {Score: 3, ResourceID: 1}, {Score: 8, ResourceID: 0}}

	assert.Equal(t, 1, rank.Find(1))
	assert.Equal(t, -1, rank.Find(9))

	rank = rank.Remove(1)
	assert.Equal(t, Rank{{Score: 2, ResourceID: 4}, {Score: 8, ResourceID: 0}}, rank)

	// removing an absent id is a no-op
	assert.Len(t, rank.Remove(9), 2)
}

func TestRankIsSorted(t *testing.T) {
	assert.True(t, Rank{}.IsSorted())
	assert.True(t, Rank{{Score: 1, ResourceID: 0}, {Score: 1, ResourceID: 2}}.IsSorted())
	assert.False(t, Rank{{Score: 3, ResourceID: 0}, {Score: 1, ResourceID: 1}}.IsSorted())
	assert.False(t, Rank{{Score: 1, ResourceID: 0}, {Score: 1, ResourceID: 0}}.IsSorted())
}
