package game

import (
	"fmt"

	"bubbletactics/internal/model"
)

// CalculateScore returns the signed score delta for a player who played
// mine against an opponent who played theirs. The table is asymmetric:
// Pop beats Merge harder than Merge loses to Pop. A player without an
// opponent never reaches this function; their delta is zero by rule.
func CalculateScore(mine, theirs model.Action) (int, error) {
	switch mine {
	case model.Merge:
		switch theirs {
		case model.Merge:
			return 1, nil
		case model.Pop:
			return -1, nil
		case model.Float:
			return 0, nil
		case model.NoAction:
			return 2, nil
		}
	case model.Pop:
		switch theirs {
		case model.Merge:
			return 4, nil
		case model.Pop:
			return -2, nil
		case model.Float:
			return -2, nil
		case model.NoAction:
			return 2, nil
		}
	case model.Float:
		switch theirs {
		case model.Merge:
			return -1, nil
		case model.Pop:
			return 2, nil
		case model.Float:
			return -1, nil
		case model.NoAction:
			return 2, nil
		}
	case model.NoAction:
		switch theirs {
		case model.Merge, model.Pop, model.Float:
			return -2, nil
		}
		// NoAction vs NoAction is undefined: two silent players are
		// never paired against each other in a resolved round.
	}
	return 0, fmt.Errorf("%w: %s vs %s", ErrUnsupportedActionCombination, mine, theirs)
}
