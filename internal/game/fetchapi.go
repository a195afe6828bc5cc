package game

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"bubbletactics/internal/model"
	"bubbletactics/internal/store"
)

// PoolSeparator delimits opponent ids inside an available-opponents leaf.
const PoolSeparator = "||"

// FetchAPI is the read side of the room protocol. All methods decode
// store snapshots into model types; none of them mutate anything.
type FetchAPI struct {
	store store.Store
	log   *zap.SugaredLogger
}

func NewFetchAPI(st store.Store, log *zap.SugaredLogger) *FetchAPI {
	return &FetchAPI{store: st, log: log}
}

// RoomExists is the join-time validation for user-entered room codes.
func (f *FetchAPI) RoomExists(ctx context.Context, roomID string) (bool, error) {
	snap, err := f.store.Get(ctx, roomPath(roomID))
	if err != nil {
		return false, err
	}
	return snap.Exists, nil
}

func (f *FetchAPI) HasGameStarted(ctx context.Context, roomID string) (bool, error) {
	snap, err := f.store.Get(ctx, hasGameStartedPath(roomID))
	if err != nil {
		return false, err
	}
	return snap.Exists && snap.Bool(), nil
}

// AllPlayers returns every player in the room with IsOwner derived from
// the earliest join time. Ties break on the smaller player id, which is
// stable across clients because ids are compared as plain strings.
func (f *FetchAPI) AllPlayers(ctx context.Context, roomID string) (map[string]*model.Player, error) {
	snap, err := f.store.Get(ctx, playersPath(roomID))
	if err != nil {
		return nil, err
	}

	players := make(map[string]*model.Player, len(snap.Children))
	for id, child := range snap.Children {
		players[id] = &model.Player{
			ID:       id,
			Name:     child.Child("name").Str(),
			JoinTime: child.Child("joinTime").Int(),
		}
	}

	if owner := electOwner(players); owner != "" {
		players[owner].IsOwner = true
	}
	return players, nil
}

// electOwner picks the player with the minimum join time, smaller id on ties.
func electOwner(players map[string]*model.Player) string {
	ownerID := ""
	for id, p := range players {
		if ownerID == "" {
			ownerID = id
			continue
		}
		current := players[ownerID]
		if p.JoinTime < current.JoinTime ||
			(p.JoinTime == current.JoinTime && id < ownerID) {
			ownerID = id
		}
	}
	return ownerID
}

// LatestRoundID returns the highest round number created so far.
func (f *FetchAPI) LatestRoundID(ctx context.Context, roomID string) (int, error) {
	snap, err := f.store.Get(ctx, roundsPath(roomID))
	if err != nil {
		return 0, err
	}
	if !snap.Exists || len(snap.Children) == 0 {
		return 0, ErrRoundNotFound
	}
	latest := 0
	for key := range snap.Children {
		id, err := strconv.Atoi(key)
		if err != nil {
			return 0, fmt.Errorf("malformed round key %q: %w", key, err)
		}
		if id > latest {
			latest = id
		}
	}
	return latest, nil
}

func (f *FetchAPI) AllIsReady(ctx context.Context, roomID string, roundID int) (map[string]bool, error) {
	snap, err := f.store.Get(ctx, roundReadyPath(roomID, roundID))
	if err != nil {
		return nil, err
	}
	ready := make(map[string]bool, len(snap.Children))
	for id, child := range snap.Children {
		ready[id] = child.Bool()
	}
	return ready, nil
}

// IsReady reports one player's readiness for a round. A missing entry
// reads as not ready.
func (f *FetchAPI) IsReady(ctx context.Context, roomID string, roundID int, playerID string) (bool, error) {
	snap, err := f.store.Get(ctx, roundReadyPath(roomID, roundID)+"/"+playerID)
	if err != nil {
		return false, err
	}
	return snap.Exists && snap.Bool(), nil
}

func (f *FetchAPI) AllReadyForGame(ctx context.Context, roomID string) (map[string]bool, error) {
	snap, err := f.store.Get(ctx, readyForGamePath(roomID))
	if err != nil {
		return nil, err
	}
	ready := make(map[string]bool, len(snap.Children))
	for id, child := range snap.Children {
		ready[id] = child.Bool()
	}
	return ready, nil
}

// AvailableOpponents returns one player's not-yet-battled pool, in pool order.
func (f *FetchAPI) AvailableOpponents(ctx context.Context, roomID string, roundID int, playerID string) ([]string, error) {
	snap, err := f.store.Get(ctx, availableOpponentsPath(roomID, roundID)+"/"+playerID)
	if err != nil {
		return nil, err
	}
	return splitPool(snap.Str()), nil
}

func (f *FetchAPI) AllAvailableOpponents(ctx context.Context, roomID string, roundID int) (map[string][]string, error) {
	snap, err := f.store.Get(ctx, availableOpponentsPath(roomID, roundID))
	if err != nil {
		return nil, err
	}
	pools := make(map[string][]string, len(snap.Children))
	for id, child := range snap.Children {
		pools[id] = splitPool(child.Str())
	}
	return pools, nil
}

// BattlePair decodes one player's side of the round matchup.
func (f *FetchAPI) BattlePair(ctx context.Context, roomID string, roundID int, playerID string) (model.BattlePair, error) {
	snap, err := f.store.Get(ctx, battlePairPath(roomID, roundID, playerID))
	if err != nil {
		return model.BattlePair{}, err
	}
	if !snap.Exists {
		return model.BattlePair{}, fmt.Errorf("battle pair for %s: %w", playerID, ErrRoundNotFound)
	}
	return decodeBattlePair(snap), nil
}

func (f *FetchAPI) AllBattlePairs(ctx context.Context, roomID string, roundID int) (map[string]model.BattlePair, error) {
	snap, err := f.store.Get(ctx, battlePairsPath(roomID, roundID))
	if err != nil {
		return nil, err
	}
	pairs := make(map[string]model.BattlePair, len(snap.Children))
	for id, child := range snap.Children {
		pairs[id] = decodeBattlePair(child)
	}
	return pairs, nil
}

func decodeBattlePair(snap store.Snapshot) model.BattlePair {
	pair := model.BattlePair{
		Opponent:  snap.Child("opponent").Str(),
		IsPlaying: snap.Child("isPlaying").Bool(),
	}
	actionSnap := snap.Child("action")
	if actionSnap.Exists && actionSnap.Str() != "" {
		if action, err := model.ParseAction(actionSnap.Str()); err == nil {
			pair.Action = action
			pair.HasAction = true
		}
	}
	return pair
}

func (f *FetchAPI) AllScoreDiffs(ctx context.Context, roomID string, roundID int) (map[string]int, error) {
	snap, err := f.store.Get(ctx, scoreDiffsPath(roomID, roundID))
	if err != nil {
		return nil, err
	}
	diffs := make(map[string]int, len(snap.Children))
	for id, child := range snap.Children {
		diffs[id] = int(child.Int())
	}
	return diffs, nil
}

func (f *FetchAPI) TotalScores(ctx context.Context, roomID string) (map[string]int, error) {
	snap, err := f.store.Get(ctx, roomPath(roomID)+"/totalScores")
	if err != nil {
		return nil, err
	}
	scores := make(map[string]int, len(snap.Children))
	for id, child := range snap.Children {
		scores[id] = int(child.Int())
	}
	return scores, nil
}

func splitPool(joined string) []string {
	if joined == "" {
		return nil
	}
	parts := strings.Split(joined, PoolSeparator)
	pool := parts[:0]
	for _, p := range parts {
		if p != "" {
			pool = append(pool, p)
		}
	}
	return pool
}

func joinPool(pool []string) string {
	return strings.Join(pool, PoolSeparator)
}

func sortedIDs[V any](m map[string]V) []string {
	ids := make([]string, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
