package game

import "sort"

// PairAssignment is one player's side of the matchmaking result.
type PairAssignment struct {
	Opponent  string
	IsPlaying bool
}

// ComputeBattlePairs pairs players for a round from their available-opponent
// pools. Empty pools are reseeded to "everyone except self" before matching.
// Players are matched in descending pool-size order (ties broken by ascending
// player id) so the most constrained players go last and dead-ends are rare.
// Each unmatched player takes the first still-unmatched opponent in their
// pool order; a player with no eligible opponent sits the round out.
//
// The returned pools reflect only the reseed; pool shrinking happens later,
// when a player submits a real action. Output is deterministic for a given
// input, so two clients that race the computation converge on the same pairs.
func ComputeBattlePairs(playerIDs []string, pools map[string][]string) (map[string]PairAssignment, map[string][]string) {
	reseeded := make(map[string][]string, len(playerIDs))
	for _, id := range playerIDs {
		pool := pools[id]
		if len(pool) == 0 {
			pool = everyoneExcept(playerIDs, id)
		}
		reseeded[id] = append([]string(nil), pool...)
	}

	order := append([]string(nil), playerIDs...)
	sort.Slice(order, func(i, j int) bool {
		li, lj := len(reseeded[order[i]]), len(reseeded[order[j]])
		if li != lj {
			return li > lj
		}
		return order[i] < order[j]
	})

	present := make(map[string]bool, len(playerIDs))
	for _, id := range playerIDs {
		present[id] = true
	}

	pairs := make(map[string]PairAssignment, len(playerIDs))
	matched := make(map[string]bool, len(playerIDs))

	for _, id := range order {
		if matched[id] {
			continue
		}
		opponent := firstEligible(reseeded[id], id, present, matched)
		if opponent == "" {
			pairs[id] = PairAssignment{IsPlaying: false}
			matched[id] = true
			continue
		}
		pairs[id] = PairAssignment{Opponent: opponent, IsPlaying: true}
		pairs[opponent] = PairAssignment{Opponent: id, IsPlaying: true}
		matched[id] = true
		matched[opponent] = true
	}

	return pairs, reseeded
}

// firstEligible skips pool entries that already matched or are no longer
// in the room; stale pool entries survive a mid-game leave.
func firstEligible(pool []string, self string, present, matched map[string]bool) string {
	for _, candidate := range pool {
		if candidate == self || !present[candidate] || matched[candidate] {
			continue
		}
		return candidate
	}
	return ""
}

func everyoneExcept(playerIDs []string, self string) []string {
	others := make([]string, 0, len(playerIDs)-1)
	for _, id := range playerIDs {
		if id != self {
			others = append(others, id)
		}
	}
	sort.Strings(others)
	return others
}
