package model

// Player is a participant in a room. IsOwner is derived from join order:
// the player with the minimum JoinTime drives round-level coordination.
type Player struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	JoinTime int64  `json:"joinTime"`
	IsOwner  bool   `json:"isOwner"`
}

// BattlePair is one player's side of a matchup for a single round.
// Opponent is empty when the player sits out (IsPlaying=false).
// HasAction distinguishes "locked NoAction" from "not locked yet".
type BattlePair struct {
	Opponent  string `json:"opponent,omitempty"`
	IsPlaying bool   `json:"isPlaying"`
	Action    Action `json:"action"`
	HasAction bool   `json:"hasAction"`
}

// Round is a snapshot of one matchmaking+action+resolution cycle.
type Round struct {
	ID                 int                   `json:"id"`
	CreationTime       int64                 `json:"creationTime"`
	IsReady            map[string]bool       `json:"isReady"`
	AvailableOpponents map[string][]string   `json:"availableOpponents"`
	BattlePairs        map[string]BattlePair `json:"battlePairs"`
	ScoreDiffs         map[string]int        `json:"scoreDiffs"`
}

// Room is a snapshot of a game session container.
type Room struct {
	ID             string          `json:"id"`
	CreatedTime    int64           `json:"createdTime"`
	HasGameStarted bool            `json:"hasGameStarted"`
	IsReadyForGame map[string]bool `json:"isReadyForGame"`
	TotalScores    map[string]int  `json:"totalScores"`
}

// Message is the envelope streamed to gateway clients.
type Message struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

// PlayerStat is an aggregated history row for a room.
type PlayerStat struct {
	Name        string `json:"name"`
	TotalRounds int    `json:"totalRounds"`
	TotalScore  int    `json:"totalScore"`
}
