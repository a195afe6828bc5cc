package game

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComputeBattlePairsReseedsEmptyPools(t *testing.T) {
	players := []string{"p1", "p2", "p3"}

	pairs, pools := ComputeBattlePairs(players, map[string][]string{})

	assert.Equal(t, []string{"p2", "p3"}, pools["p1"])
	assert.Equal(t, []string{"p1", "p3"}, pools["p2"])
	assert.Equal(t, []string{"p1", "p2"}, pools["p3"])

	// All pools tie on size, so matching order is ascending id: p1 takes
	// p2, and p3 sits the round out.
	assert.Equal(t, PairAssignment{Opponent: "p2", IsPlaying: true}, pairs["p1"])
	assert.Equal(t, PairAssignment{Opponent: "p1", IsPlaying: true}, pairs["p2"])
	assert.Equal(t, PairAssignment{IsPlaying: false}, pairs["p3"])
}

func TestComputeBattlePairsMutualAndNoSelf(t *testing.T) {
	players := []string{"a", "b", "c", "d", "e", "f"}

	pairs, _ := ComputeBattlePairs(players, map[string][]string{})

	playing := 0
	for id, assignment := range pairs {
		if !assignment.IsPlaying {
			continue
		}
		playing++
		require.NotEqual(t, id, assignment.Opponent, "player paired with self")
		back := pairs[assignment.Opponent]
		require.True(t, back.IsPlaying)
		require.Equal(t, id, back.Opponent, "pairing not mutual")
	}
	assert.Equal(t, 6, playing)
}

func TestComputeBattlePairsOddPlayerSitsOut(t *testing.T) {
	players := []string{"a", "b", "c", "d", "e"}

	pairs, _ := ComputeBattlePairs(players, map[string][]string{})

	sittingOut := 0
	for _, assignment := range pairs {
		if !assignment.IsPlaying {
			sittingOut++
		}
	}
	assert.Equal(t, 1, sittingOut)
}

func TestComputeBattlePairsLargerPoolsMatchFirst(t *testing.T) {
	// p2, p3 and p4 carry full pools; p1 is down to one candidate. The
	// bigger pools match first, in ascending-id order within the tie, and
	// each matcher takes the first eligible entry of their own pool.
	players := []string{"p1", "p2", "p3", "p4"}
	pools := map[string][]string{
		"p1": {"p4"},
		"p2": {"p1", "p3", "p4"},
		"p3": {"p1", "p2", "p4"},
		"p4": {"p1", "p2", "p3"},
	}

	pairs, _ := ComputeBattlePairs(players, pools)

	assert.Equal(t, PairAssignment{Opponent: "p1", IsPlaying: true}, pairs["p2"])
	assert.Equal(t, PairAssignment{Opponent: "p2", IsPlaying: true}, pairs["p1"])
	assert.Equal(t, PairAssignment{Opponent: "p4", IsPlaying: true}, pairs["p3"])
	assert.Equal(t, PairAssignment{Opponent: "p3", IsPlaying: true}, pairs["p4"])
}

func TestComputeBattlePairsSkipsDepartedPoolEntries(t *testing.T) {
	// p3 left the room but still sits in p1's pool from an earlier round.
	players := []string{"p1", "p2"}
	pools := map[string][]string{
		"p1": {"p3", "p2"},
		"p2": {"p1"},
	}

	pairs, _ := ComputeBattlePairs(players, pools)

	assert.Equal(t, PairAssignment{Opponent: "p2", IsPlaying: true}, pairs["p1"])
	assert.Equal(t, PairAssignment{Opponent: "p1", IsPlaying: true}, pairs["p2"])
}

func TestComputeBattlePairsDeterministic(t *testing.T) {
	players := []string{"p1", "p2", "p3", "p4", "p5"}
	pools := map[string][]string{
		"p2": {"p4", "p5"},
		"p5": {"p2"},
	}

	first, firstPools := ComputeBattlePairs(players, pools)
	for i := 0; i < 20; i++ {
		pairs, reseeded := ComputeBattlePairs(players, pools)
		require.Equal(t, first, pairs)
		require.Equal(t, firstPools, reseeded)
	}
}

func TestComputeBattlePairsExhaustedPoolSitsOut(t *testing.T) {
	// p3's pool names only departed players; a non-empty pool is not
	// reseeded, so p3 sits out while p1/p2 battle.
	players := []string{"p1", "p2", "p3"}
	pools := map[string][]string{
		"p1": {"p2"},
		"p2": {"p1"},
		"p3": {"gone1", "gone2"},
	}

	pairs, _ := ComputeBattlePairs(players, pools)

	assert.True(t, pairs["p1"].IsPlaying)
	assert.True(t, pairs["p2"].IsPlaying)
	assert.Equal(t, PairAssignment{IsPlaying: false}, pairs["p3"])
}

func TestComputeBattlePairsSinglePlayer(t *testing.T) {
	pairs, pools := ComputeBattlePairs([]string{"solo"}, nil)

	assert.Equal(t, PairAssignment{IsPlaying: false}, pairs["solo"])
	assert.Empty(t, pools["solo"])
}
