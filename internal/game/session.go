package game

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"bubbletactics/internal/model"
	"bubbletactics/internal/store"
)

// SessionState is the lifecycle stage of one client's session.
type SessionState int

const (
	StateIdle SessionState = iota
	StateJoiningRoom
	StateWaitingForPlayersGameReady
	StateWaitingForRoundStart
	StateWaitingForPlayerActions
	StateResolvingActions
	StateOver
)

var stateNames = map[SessionState]string{
	StateIdle:                       "Idle",
	StateJoiningRoom:                "JoiningRoom",
	StateWaitingForPlayersGameReady: "WaitingForPlayersGameReady",
	StateWaitingForRoundStart:       "WaitingForRoundStart",
	StateWaitingForPlayerActions:    "WaitingForPlayerActions",
	StateResolvingActions:           "ResolvingActions",
	StateOver:                       "Over",
}

func (s SessionState) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("SessionState(%d)", int(s))
}

// OverPolicy decides whether the game ends instead of starting the next
// round. The round-ending rule is a product decision, so it is pluggable.
type OverPolicy func(playerCount, nextRoundID int) bool

// DefaultOverPolicy ends the game when fewer than two players remain or
// a round cap is reached. maxRounds of 0 means unlimited.
func DefaultOverPolicy(maxRounds int) OverPolicy {
	return func(playerCount, nextRoundID int) bool {
		if playerCount < 2 {
			return true
		}
		return maxRounds > 0 && nextRoundID > maxRounds
	}
}

// History records resolved rounds outside the shared store. Optional.
type History interface {
	RecordRoundResult(roomID string, roundID int, names map[string]string, diffs map[string]int) error
}

// SessionConfig carries the phase timings and game-over rule.
type SessionConfig struct {
	FirstRoundDelaySecs int
	NextRoundDelaySecs  int
	ActionTimeLimitSecs int
	OwnerLeaseTTLSecs   int64
	Over                OverPolicy
}

// DefaultSessionConfig matches the shipped game timings.
func DefaultSessionConfig() SessionConfig {
	return SessionConfig{
		FirstRoundDelaySecs: 5,
		NextRoundDelaySecs:  15,
		ActionTimeLimitSecs: 20,
		OwnerLeaseTTLSecs:   30,
		Over:                DefaultOverPolicy(0),
	}
}

// Session drives one player through the room protocol. Every client runs
// an identical instance against the same shared store; there is no server
// process. The owner-lease holder additionally performs the
// round-advancing writes on behalf of everyone, and all clients converge
// by observing the store.
//
// Transitions are driven by store change subscriptions and countdown
// expiry, never by direct calls between clients. Subscription handles are
// owned here and torn down on state transitions so a superseded phase can
// never fire its callbacks into a later one.
type Session struct {
	cfg       SessionConfig
	store     store.Store
	fetch     *FetchAPI
	write     *WriteAPI
	countdown *Countdown
	history   History
	log       *zap.SugaredLogger

	mu         sync.Mutex
	state      SessionState
	roomID     string
	playerID   string
	playerName string
	roundID    int
	players    map[string]*model.Player
	isOwner    bool
	hasLocked  bool

	readyForGameSub *store.Subscription
	gameStartedSub  *store.Subscription
	roundReadySub   *store.Subscription
	battlePairsSub  *store.Subscription
	nextRoundSub    *store.Subscription

	events chan model.Message
}

// NewSession wires a session against a store. countdown must tick at the
// cadence the caller wants phase timers to run at (1s in production).
func NewSession(cfg SessionConfig, st store.Store, fetch *FetchAPI, write *WriteAPI, countdown *Countdown, history History, log *zap.SugaredLogger) *Session {
	if cfg.Over == nil {
		cfg.Over = DefaultOverPolicy(0)
	}
	return &Session{
		cfg:       cfg,
		store:     st,
		fetch:     fetch,
		write:     write,
		countdown: countdown,
		history:   history,
		log:       log,
		state:     StateIdle,
		events:    make(chan model.Message, 128),
	}
}

// Events streams state transitions, lobby updates and scores to the
// rendering layer. Slow consumers drop events; every payload is a full
// snapshot so a dropped one is recovered by the next.
func (s *Session) Events() <-chan model.Message { return s.events }

// State returns the current lifecycle stage.
func (s *Session) State() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// RoundID returns the round currently in flight.
func (s *Session) RoundID() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.roundID
}

// PlayerID returns the store-generated id of this session's player.
func (s *Session) PlayerID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.playerID
}

// IsOwner reports whether this session currently holds the owner lease.
func (s *Session) IsOwner() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.isOwner
}

// Init verifies the store is reachable and leaves Idle.
func (s *Session) Init(ctx context.Context) error {
	if _, err := s.store.Get(ctx, "rooms"); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateIdle {
		return fmt.Errorf("init from %s", s.state)
	}
	s.setStateLocked(StateJoiningRoom)
	return nil
}

// CreateRoom creates a fresh room and joins it as the first player.
func (s *Session) CreateRoom(ctx context.Context, playerName string) (string, error) {
	roomID, err := s.write.CreateRoom(ctx)
	if err != nil {
		return "", err
	}
	if err := s.JoinRoom(ctx, roomID, playerName); err != nil {
		return "", err
	}
	return roomID, nil
}

// JoinRoom joins an existing room and starts observing the lobby.
func (s *Session) JoinRoom(ctx context.Context, roomID, playerName string) error {
	s.mu.Lock()
	if s.state != StateJoiningRoom {
		s.mu.Unlock()
		return fmt.Errorf("join from %s", s.state)
	}
	s.mu.Unlock()

	playerID, err := s.write.JoinRoom(ctx, roomID, playerName)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.roomID = roomID
	s.playerID = playerID
	s.playerName = playerName
	s.roundID = 1
	s.setStateLocked(StateWaitingForPlayersGameReady)

	s.readyForGameSub, err = s.store.Subscribe(readyForGamePath(roomID), s.handleReadyForGameChanged)
	if err != nil {
		return err
	}
	s.gameStartedSub, err = s.store.Subscribe(hasGameStartedPath(roomID), s.handleGameStartedChanged)
	return err
}

// ReadyForGame marks this player ready in the lobby.
func (s *Session) ReadyForGame(ctx context.Context) error {
	s.mu.Lock()
	roomID, playerID := s.roomID, s.playerID
	s.mu.Unlock()
	return s.write.UpdatePlayerIsReadyForGame(ctx, roomID, playerID, true)
}

// StartGame flips the game-start flag. The UI exposes it to the owner
// once everyone is ready, but the flip itself is unconditional.
func (s *Session) StartGame(ctx context.Context) error {
	s.mu.Lock()
	roomID := s.roomID
	s.mu.Unlock()
	return s.write.UpdateHasGameStarted(ctx, roomID)
}

// ReadyForRound marks this player ready for the pending round, letting
// the room skip the rest of the round-start countdown when unanimous.
func (s *Session) ReadyForRound(ctx context.Context) error {
	s.mu.Lock()
	roomID, roundID, playerID := s.roomID, s.roundID, s.playerID
	s.mu.Unlock()
	return s.write.UpdateIsReadyForPlayer(ctx, roomID, roundID, playerID, true)
}

// SubmitAction locks this player's action for the round in flight.
func (s *Session) SubmitAction(ctx context.Context, action model.Action) error {
	s.mu.Lock()
	if s.state != StateWaitingForPlayerActions {
		s.mu.Unlock()
		return fmt.Errorf("submit action from %s", s.state)
	}
	if s.hasLocked {
		s.mu.Unlock()
		return fmt.Errorf("action already locked for round %d", s.roundID)
	}
	s.hasLocked = true
	roomID, roundID, playerID := s.roomID, s.roundID, s.playerID
	s.mu.Unlock()

	return s.write.UpdatePlayerAction(ctx, roomID, roundID, playerID, action)
}

// Leave withdraws this player from the room, repairing shared state so
// the remaining players keep advancing, and terminates the session.
func (s *Session) Leave(ctx context.Context) error {
	s.mu.Lock()
	roomID, roundID, playerID := s.roomID, s.roundID, s.playerID
	wasOwner := s.isOwner
	s.mu.Unlock()

	if roomID == "" {
		return nil
	}
	if err := s.write.RemovePlayer(ctx, roomID, roundID, playerID); err != nil {
		return err
	}
	if wasOwner {
		if err := s.write.ReleaseOwnerLease(ctx, roomID, playerID); err != nil {
			s.log.Warnw("failed to release owner lease", "room", roomID, "error", err)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancelAllSubsLocked()
	s.setStateLocked(StateOver)
	return nil
}

// ================================ observers ================================

func (s *Session) handleReadyForGameChanged(snap store.Snapshot) {
	ready, total := 0, 0
	for _, child := range snap.Children {
		total++
		if child.Bool() {
			ready++
		}
	}
	s.emit("lobby", map[string]interface{}{"ready": ready, "total": total})
}

func (s *Session) handleGameStartedChanged(snap store.Snapshot) {
	if !snap.Exists || !snap.Bool() {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateWaitingForPlayersGameReady {
		return
	}

	// The flip is one-shot; the observer has done its job.
	if s.gameStartedSub != nil {
		s.gameStartedSub.Cancel()
		s.gameStartedSub = nil
	}

	ctx := context.Background()
	players, err := s.fetch.AllPlayers(ctx, s.roomID)
	if err != nil {
		s.log.Errorw("failed to load players at game start", "room", s.roomID, "error", err)
		return
	}
	s.players = players

	s.enterRoundStartLocked(s.cfg.FirstRoundDelaySecs)
}

// enterRoundStartLocked moves into WaitingForRoundStart for s.roundID:
// subscribes round readiness, arms the countdown, and has the owner run
// matchmaking and watch for completed actions.
func (s *Session) enterRoundStartLocked(delaySecs int) {
	ctx := context.Background()
	s.setStateLocked(StateWaitingForRoundStart)
	s.refreshOwnerLocked(ctx)

	roundID := s.roundID
	sub, err := s.store.Subscribe(roundReadyPath(s.roomID, roundID), func(snap store.Snapshot) {
		s.handleRoundReadyChanged(roundID, snap)
	})
	if err != nil {
		s.log.Errorw("failed to observe round readiness", "room", s.roomID, "round", roundID, "error", err)
	} else {
		s.roundReadySub = sub
	}

	s.countdown.Start(delaySecs)
	s.countdown.OnFinished(func() { s.handleRoundStartPhaseEnded(roundID) })
	s.emit("countdown", map[string]interface{}{"phase": "roundStart", "seconds": delaySecs})

	if s.isOwner {
		if err := s.write.CalculateBattlePairs(ctx, s.roomID, roundID); err != nil {
			s.log.Errorw("failed to calculate battle pairs", "room", s.roomID, "round", roundID, "error", err)
		}
	}

	pairsSub, err := s.store.Subscribe(battlePairsPath(s.roomID, roundID), func(snap store.Snapshot) {
		s.handleBattlePairsChanged(roundID, snap)
	})
	if err != nil {
		s.log.Errorw("failed to observe battle pairs", "room", s.roomID, "round", roundID, "error", err)
	} else {
		s.battlePairsSub = pairsSub
	}
}

func (s *Session) handleRoundReadyChanged(roundID int, snap store.Snapshot) {
	s.mu.Lock()
	if s.state != StateWaitingForRoundStart || s.roundID != roundID {
		s.mu.Unlock()
		return
	}

	allReady := len(snap.Children) > 0
	for _, child := range snap.Children {
		if !child.Bool() {
			allReady = false
			break
		}
	}
	if !allReady {
		s.mu.Unlock()
		return
	}
	s.enterActionPhaseLocked()
	s.mu.Unlock()
}

func (s *Session) handleRoundStartPhaseEnded(roundID int) {
	s.mu.Lock()
	if s.state != StateWaitingForRoundStart || s.roundID != roundID {
		s.mu.Unlock()
		return
	}
	s.enterActionPhaseLocked()
	s.mu.Unlock()
}

func (s *Session) enterActionPhaseLocked() {
	s.setStateLocked(StateWaitingForPlayerActions)
	s.hasLocked = false

	roundID := s.roundID
	// If the round-start countdown is still running (all-ready early
	// transition), the new start is dropped and the action phase runs on
	// the remaining time; the finished handler fires either way.
	s.countdown.Start(s.cfg.ActionTimeLimitSecs)
	s.countdown.OnFinished(func() { s.handleActionsCountdownFinished(roundID) })
	s.emit("countdown", map[string]interface{}{"phase": "actions", "seconds": s.cfg.ActionTimeLimitSecs})

	// Actions may already be complete by the time this client arrives in
	// the phase (it transitioned late), in which case no further change
	// event is coming. Re-check once against the current snapshot.
	roomID := s.roomID
	go func() {
		snap, err := s.store.Get(context.Background(), battlePairsPath(roomID, roundID))
		if err != nil {
			s.log.Warnw("failed to re-check battle pairs", "room", roomID, "round", roundID, "error", err)
			return
		}
		s.handleBattlePairsChanged(roundID, snap)
	}()
}

// handleActionsCountdownFinished is the self-timeout: a player who never
// locked an action writes NoAction on their own behalf. A stalled client
// therefore only ever defaults its own action, never anyone else's.
func (s *Session) handleActionsCountdownFinished(roundID int) {
	s.mu.Lock()
	if s.state != StateWaitingForPlayerActions || s.roundID != roundID || s.hasLocked {
		s.mu.Unlock()
		return
	}
	s.hasLocked = true
	roomID, playerID := s.roomID, s.playerID
	s.mu.Unlock()

	if err := s.write.UpdatePlayerAction(context.Background(), roomID, roundID, playerID, model.NoAction); err != nil {
		s.log.Warnw("failed to write timeout action", "room", roomID, "round", roundID, "error", err)
	}
}

func (s *Session) handleBattlePairsChanged(roundID int, snap store.Snapshot) {
	s.mu.Lock()
	if s.state != StateWaitingForPlayerActions || s.roundID != roundID {
		s.mu.Unlock()
		return
	}

	ctx := context.Background()
	players, err := s.fetch.AllPlayers(ctx, s.roomID)
	if err != nil {
		s.log.Errorw("failed to load players during action check", "room", s.roomID, "error", err)
		s.mu.Unlock()
		return
	}
	s.players = players

	// Completeness is judged against the players still present. A leaver's
	// pair stays behind with a forced NoAction, so extra pair entries are
	// fine; a present player without a locked action is what we wait on.
	if len(players) == 0 {
		s.mu.Unlock()
		return
	}
	for id := range players {
		actionSnap := snap.Child(id).Child("action")
		if !actionSnap.Exists || actionSnap.Str() == "" {
			s.mu.Unlock()
			return
		}
	}

	// The owner may have left mid-round; re-settle who resolves before
	// anyone commits to waiting.
	s.refreshOwnerLocked(ctx)

	s.setStateLocked(StateResolvingActions)
	isOwner := s.isOwner
	roomID := s.roomID

	// All clients wait for the next round document to appear; the owner
	// is the one who makes it appear.
	nextSub, err := s.store.Subscribe(roundPath(roomID, roundID+1), func(next store.Snapshot) {
		s.handleNextRoundCreated(roundID+1, next)
	})
	if err != nil {
		s.log.Errorw("failed to observe next round", "room", roomID, "error", err)
	} else {
		s.nextRoundSub = nextSub
	}
	s.mu.Unlock()

	if !isOwner {
		return
	}

	diffs := make(map[string]int, len(players))
	names := make(map[string]string, len(players))
	for id, p := range players {
		diff, err := s.write.CalculateAndSetPlayerRoundScoreDiff(ctx, roomID, roundID, id)
		if err != nil {
			s.log.Errorw("failed to resolve score diff", "room", roomID, "round", roundID, "player", id, "error", err)
			return
		}
		diffs[id] = diff
		names[id] = p.Name
	}

	if s.history != nil {
		if err := s.history.RecordRoundResult(roomID, roundID, names, diffs); err != nil {
			s.log.Warnw("failed to record round history", "room", roomID, "round", roundID, "error", err)
		}
	}

	if _, err := s.write.CreateNewRound(ctx, roomID); err != nil {
		s.log.Errorw("failed to create next round", "room", roomID, "error", err)
	}
}

func (s *Session) handleNextRoundCreated(nextRoundID int, snap store.Snapshot) {
	if !snap.Exists {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateResolvingActions || s.roundID != nextRoundID-1 {
		return
	}

	s.cancelRoundSubsLocked()
	s.roundID = nextRoundID
	s.hasLocked = false

	ctx := context.Background()
	s.emitScoresLocked(ctx)

	if s.cfg.Over(len(s.players), nextRoundID) {
		s.cancelAllSubsLocked()
		s.setStateLocked(StateOver)
		return
	}

	s.enterRoundStartLocked(s.cfg.NextRoundDelaySecs)
}

// ================================ helpers ================================

// refreshOwnerLocked settles who performs round-advancing duties. The
// elected (earliest-join) player claims the lease; anyone else only takes
// it over once the current one expires.
func (s *Session) refreshOwnerLocked(ctx context.Context) {
	elected := electOwner(s.players) == s.playerID

	lease, err := s.fetch.OwnerLeaseHolder(ctx, s.roomID)
	if err != nil {
		s.log.Warnw("failed to read owner lease", "room", s.roomID, "error", err)
		s.isOwner = false
		return
	}

	expired := lease.OwnerID != "" && lease.ExpiresAt <= s.write.now()
	shouldClaim := elected || lease.OwnerID == s.playerID || lease.OwnerID == "" || expired
	if !shouldClaim {
		s.isOwner = false
		return
	}

	held, err := s.write.ClaimOwnerLease(ctx, s.roomID, s.playerID, s.cfg.OwnerLeaseTTLSecs)
	if err != nil {
		s.log.Warnw("failed to claim owner lease", "room", s.roomID, "error", err)
		s.isOwner = false
		return
	}
	s.isOwner = held
}

func (s *Session) emitScoresLocked(ctx context.Context) {
	totals, err := s.fetch.TotalScores(ctx, s.roomID)
	if err != nil {
		s.log.Warnw("failed to read total scores", "room", s.roomID, "error", err)
		return
	}
	diffs, err := s.fetch.AllScoreDiffs(ctx, s.roomID, s.roundID-1)
	if err != nil {
		s.log.Warnw("failed to read score diffs", "room", s.roomID, "error", err)
		return
	}
	s.emit("scores", map[string]interface{}{
		"round":  s.roundID - 1,
		"diffs":  diffs,
		"totals": totals,
	})
}

func (s *Session) cancelRoundSubsLocked() {
	for _, sub := range []**store.Subscription{&s.roundReadySub, &s.battlePairsSub, &s.nextRoundSub} {
		if *sub != nil {
			(*sub).Cancel()
			*sub = nil
		}
	}
}

func (s *Session) cancelAllSubsLocked() {
	s.cancelRoundSubsLocked()
	for _, sub := range []**store.Subscription{&s.readyForGameSub, &s.gameStartedSub} {
		if *sub != nil {
			(*sub).Cancel()
			*sub = nil
		}
	}
}

func (s *Session) setStateLocked(next SessionState) {
	if s.state == next {
		return
	}
	s.log.Infow("session state changed", "room", s.roomID, "player", s.playerID, "from", s.state.String(), "to", next.String())
	s.state = next
	s.emit("state", map[string]interface{}{"state": next.String(), "round": s.roundID})
}

func (s *Session) emit(msgType string, payload interface{}) {
	select {
	case s.events <- model.Message{Type: msgType, Payload: payload}:
	default:
		s.log.Debugw("event channel full, dropping", "type", msgType)
	}
}
