package game

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"go.uber.org/zap"

	"bubbletactics/internal/model"
	"bubbletactics/internal/store"
)

// StartingPlayerScore seeds every player's total score before the first
// round resolves.
const StartingPlayerScore = 5

// WriteAPI is the mutation side of the room protocol. Every client holds
// one; by convention only the owner calls the round-advancing methods
// (CalculateBattlePairs, CalculateAndSetPlayerRoundScoreDiff, CreateNewRound),
// but every write here is idempotent or transactional so a duplicated
// writer converges instead of corrupting state.
type WriteAPI struct {
	store store.Store
	fetch *FetchAPI
	log   *zap.SugaredLogger
	now   func() int64
}

func NewWriteAPI(st store.Store, fetch *FetchAPI, log *zap.SugaredLogger) *WriteAPI {
	return &WriteAPI{
		store: st,
		fetch: fetch,
		log:   log,
		now:   func() int64 { return time.Now().Unix() },
	}
}

func generateRoomID() string {
	return fmt.Sprintf("%05d", rand.Intn(90000)+10000)
}

// CreateRoom allocates a fresh 5-digit room code, regenerating on
// collision, writes the room document and initializes round 1.
func (w *WriteAPI) CreateRoom(ctx context.Context) (string, error) {
	roomID := generateRoomID()
	for {
		snap, err := w.store.Get(ctx, roomPath(roomID))
		if err != nil {
			return "", err
		}
		if !snap.Exists {
			break
		}
		roomID = generateRoomID()
	}

	err := w.store.Set(ctx, roomPath(roomID), map[string]interface{}{
		"createdTime": w.now(),
	})
	if err != nil {
		return "", err
	}

	if _, err := w.CreateNewRound(ctx, roomID); err != nil {
		return "", err
	}

	w.log.Infow("room created", "room", roomID)
	return roomID, nil
}

// JoinRoom adds a player to an existing, not-yet-started room and seeds
// their readiness flags. Returns the store-generated player id.
func (w *WriteAPI) JoinRoom(ctx context.Context, roomID, name string) (string, error) {
	exists, err := w.fetch.RoomExists(ctx, roomID)
	if err != nil {
		return "", err
	}
	if !exists {
		return "", fmt.Errorf("join %s: %w", roomID, ErrRoomNotFound)
	}
	started, err := w.fetch.HasGameStarted(ctx, roomID)
	if err != nil {
		return "", err
	}
	if started {
		return "", fmt.Errorf("join %s: %w", roomID, ErrGameAlreadyStarted)
	}

	playerID, err := w.store.Push(ctx, playersPath(roomID))
	if err != nil {
		return "", err
	}

	err = w.store.Set(ctx, playersPath(roomID)+"/"+playerID, map[string]interface{}{
		"name":     name,
		"joinTime": w.now(),
	})
	if err != nil {
		return "", err
	}

	// Seed readiness on the latest round document rather than assuming
	// round 1, so the write stays correct however the room was prepared.
	roundID, err := w.fetch.LatestRoundID(ctx, roomID)
	if err != nil {
		return "", err
	}
	if err := w.UpdateIsReadyForPlayer(ctx, roomID, roundID, playerID, false); err != nil {
		return "", err
	}
	if err := w.UpdatePlayerIsReadyForGame(ctx, roomID, playerID, false); err != nil {
		return "", err
	}

	w.log.Infow("player joined", "room", roomID, "player", playerID, "name", name)
	return playerID, nil
}

func (w *WriteAPI) UpdatePlayerIsReadyForGame(ctx context.Context, roomID, playerID string, ready bool) error {
	return w.store.Set(ctx, readyForGamePath(roomID)+"/"+playerID, ready)
}

// UpdateHasGameStarted flips the one-shot game-start flag. Writing true
// twice is harmless; every client reacts to the first observed flip only.
func (w *WriteAPI) UpdateHasGameStarted(ctx context.Context, roomID string) error {
	return w.store.Set(ctx, hasGameStartedPath(roomID), true)
}

func (w *WriteAPI) UpdateIsReadyForPlayer(ctx context.Context, roomID string, roundID int, playerID string, ready bool) error {
	return w.store.Set(ctx, roundReadyPath(roomID, roundID)+"/"+playerID, ready)
}

func (w *WriteAPI) UpdateAvailableOpponents(ctx context.Context, roomID string, roundID int, playerID string, opponents []string) error {
	return w.store.Set(ctx, availableOpponentsPath(roomID, roundID)+"/"+playerID, joinPool(opponents))
}

// CreateBattlePair writes both sides of a matchup.
func (w *WriteAPI) CreateBattlePair(ctx context.Context, roomID string, roundID int, oneSide, otherSide string) error {
	err := w.store.Set(ctx, battlePairPath(roomID, roundID, oneSide), map[string]interface{}{
		"opponent":  otherSide,
		"isPlaying": true,
	})
	if err != nil {
		return err
	}
	return w.store.Set(ctx, battlePairPath(roomID, roundID, otherSide), map[string]interface{}{
		"opponent":  oneSide,
		"isPlaying": true,
	})
}

// CreateBattlePairEmpty marks a player as sitting this round out.
func (w *WriteAPI) CreateBattlePairEmpty(ctx context.Context, roomID string, roundID int, playerID string) error {
	return w.store.Set(ctx, battlePairPath(roomID, roundID, playerID), map[string]interface{}{
		"isPlaying": false,
	})
}

// UpdatePlayerAction locks a player's action in. A real battle action also
// shrinks the player's own opponent pool by the opponent just fought; the
// opponent removes us from their pool independently when they lock theirs.
func (w *WriteAPI) UpdatePlayerAction(ctx context.Context, roomID string, roundID int, playerID string, action model.Action) error {
	if !action.Valid() {
		return fmt.Errorf("%w: %s", ErrUnsupportedActionCombination, action)
	}

	err := w.store.Update(ctx, battlePairPath(roomID, roundID, playerID), map[string]interface{}{
		"action": action.String(),
	})
	if err != nil {
		return err
	}

	if action == model.NoAction {
		return nil
	}

	pair, err := w.fetch.BattlePair(ctx, roomID, roundID, playerID)
	if err != nil {
		return err
	}
	if pair.Opponent == "" {
		return nil
	}

	pool, err := w.fetch.AvailableOpponents(ctx, roomID, roundID, playerID)
	if err != nil {
		return err
	}
	shrunk := pool[:0]
	for _, id := range pool {
		if id != pair.Opponent {
			shrunk = append(shrunk, id)
		}
	}
	return w.UpdateAvailableOpponents(ctx, roomID, roundID, playerID, shrunk)
}

// CalculateAndSetPlayerRoundScoreDiff resolves one player's score for the
// round: writes the per-round diff and folds it into the room total via
// the store's atomic transaction, never a read-then-write pair, so racing
// writers cannot lose an update.
func (w *WriteAPI) CalculateAndSetPlayerRoundScoreDiff(ctx context.Context, roomID string, roundID int, playerID string) (int, error) {
	pair, err := w.fetch.BattlePair(ctx, roomID, roundID, playerID)
	if err != nil {
		return 0, err
	}

	diff := 0
	if pair.IsPlaying {
		opponentPair, err := w.fetch.BattlePair(ctx, roomID, roundID, pair.Opponent)
		if err != nil {
			return 0, err
		}
		diff, err = CalculateScore(pair.Action, opponentPair.Action)
		if err != nil {
			return 0, err
		}
	}

	if err := w.store.Set(ctx, scoreDiffsPath(roomID, roundID)+"/"+playerID, diff); err != nil {
		return 0, err
	}

	err = w.store.Transaction(ctx, totalScorePath(roomID, playerID), func(current interface{}) (interface{}, error) {
		total := int64(StartingPlayerScore)
		if current != nil {
			total = store.Snapshot{Exists: true, Value: current}.Int()
		}
		return total + int64(diff), nil
	})
	if err != nil {
		return 0, err
	}

	w.log.Debugw("score diff resolved", "room", roomID, "round", roundID, "player", playerID, "diff", diff)
	return diff, nil
}

// CalculateBattlePairs runs the matchmaking pass for a round: carries the
// pools forward from the previous round (reseeding empty ones), computes
// deterministic pairs and writes both the pair entries and the pools.
func (w *WriteAPI) CalculateBattlePairs(ctx context.Context, roomID string, roundID int) error {
	players, err := w.fetch.AllPlayers(ctx, roomID)
	if err != nil {
		return err
	}
	playerIDs := sortedIDs(players)

	pools := map[string][]string{}
	if roundID > 1 {
		pools, err = w.fetch.AllAvailableOpponents(ctx, roomID, roundID-1)
		if err != nil {
			return err
		}
	}

	pairs, updatedPools := ComputeBattlePairs(playerIDs, pools)

	for _, id := range playerIDs {
		assignment := pairs[id]
		if !assignment.IsPlaying {
			if err := w.CreateBattlePairEmpty(ctx, roomID, roundID, id); err != nil {
				return err
			}
			continue
		}
		err := w.store.Set(ctx, battlePairPath(roomID, roundID, id), map[string]interface{}{
			"opponent":  assignment.Opponent,
			"isPlaying": true,
		})
		if err != nil {
			return err
		}
	}

	poolFields := make(map[string]interface{}, len(updatedPools))
	for id, pool := range updatedPools {
		poolFields[id] = joinPool(pool)
	}
	return w.store.Set(ctx, availableOpponentsPath(roomID, roundID), poolFields)
}

// CreateNewRound appends round N+1 with a fresh all-false readiness map
// and the opponent pools carried over from round N. Only the owner calls
// this, after round N's score diffs are fully written.
func (w *WriteAPI) CreateNewRound(ctx context.Context, roomID string) (int, error) {
	newRoundID := 1
	lastRoundID, err := w.fetch.LatestRoundID(ctx, roomID)
	switch {
	case err == nil:
		newRoundID = lastRoundID + 1
	case errors.Is(err, ErrRoundNotFound):
		// first round of the room
	default:
		return 0, err
	}

	players, err := w.fetch.AllPlayers(ctx, roomID)
	if err != nil {
		return 0, err
	}
	playerIDs := sortedIDs(players)

	isReady := make(map[string]interface{}, len(playerIDs))
	for _, id := range playerIDs {
		isReady[id] = false
	}

	var lastPools map[string][]string
	if lastRoundID > 0 {
		lastPools, err = w.fetch.AllAvailableOpponents(ctx, roomID, lastRoundID)
		if err != nil {
			return 0, err
		}
	}
	pools := make(map[string]interface{}, len(playerIDs))
	for _, id := range playerIDs {
		pool := lastPools[id]
		if len(pool) == 0 {
			pool = everyoneExcept(playerIDs, id)
		}
		pools[id] = joinPool(pool)
	}

	fields := map[string]interface{}{
		"roundCreationTime": w.now(),
	}
	if len(isReady) > 0 {
		fields["isReady"] = isReady
		fields["availableOpponents"] = pools
	}
	if err := w.store.Update(ctx, roundPath(roomID, newRoundID), fields); err != nil {
		return 0, err
	}

	w.log.Infow("round created", "room", roomID, "round", newRoundID)
	return newRoundID, nil
}

// RemovePlayer repairs shared state when a player leaves mid-game so the
// remaining players cannot deadlock: the leaver's unresolved pair resolves
// as a forced NoAction, their readiness entries disappear, and they are
// stripped from every other player's pool.
func (w *WriteAPI) RemovePlayer(ctx context.Context, roomID string, roundID int, playerID string) error {
	pairs, err := w.fetch.AllBattlePairs(ctx, roomID, roundID)
	if err != nil {
		return err
	}
	if pair, ok := pairs[playerID]; ok && pair.IsPlaying && !pair.HasAction {
		err := w.store.Update(ctx, battlePairPath(roomID, roundID, playerID), map[string]interface{}{
			"action": model.NoAction.String(),
		})
		if err != nil {
			return err
		}
	}

	if err := w.store.Set(ctx, roundReadyPath(roomID, roundID)+"/"+playerID, nil); err != nil {
		return err
	}
	if err := w.store.Set(ctx, readyForGamePath(roomID)+"/"+playerID, nil); err != nil {
		return err
	}

	pools, err := w.fetch.AllAvailableOpponents(ctx, roomID, roundID)
	if err != nil {
		return err
	}
	for id, pool := range pools {
		if id == playerID {
			continue
		}
		stripped := pool[:0]
		for _, opponent := range pool {
			if opponent != playerID {
				stripped = append(stripped, opponent)
			}
		}
		if len(stripped) != len(pool) {
			if err := w.UpdateAvailableOpponents(ctx, roomID, roundID, id, stripped); err != nil {
				return err
			}
		}
	}
	if err := w.store.Set(ctx, availableOpponentsPath(roomID, roundID)+"/"+playerID, nil); err != nil {
		return err
	}

	if err := w.store.Set(ctx, playersPath(roomID)+"/"+playerID, nil); err != nil {
		return err
	}

	w.log.Infow("player removed", "room", roomID, "round", roundID, "player", playerID)
	return nil
}
