package server

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"bubbletactics/internal/config"
	"bubbletactics/internal/database"
	"bubbletactics/internal/game"
	"bubbletactics/internal/model"
	"bubbletactics/internal/store"
)

func newTestHandler(t *testing.T) (*Handler, *game.WriteAPI) {
	t.Helper()
	log := zap.NewNop().Sugar()
	st := store.NewMemory(log)
	fetch := game.NewFetchAPI(st, log)
	write := game.NewWriteAPI(st, fetch, log)
	history, err := database.NewStore(":memory:", log)
	require.NoError(t, err)
	t.Cleanup(history.Close)

	cfg := config.Config{
		FirstRoundDelaySecs: 1,
		NextRoundDelaySecs:  1,
		ActionTimeLimitSecs: 20,
		OwnerLeaseTTLSecs:   30,
	}
	return NewHandler(cfg, st, fetch, write, history, log), write
}

func TestCheckRoomHandler(t *testing.T) {
	h, write := newTestHandler(t)
	roomID, err := write.CreateRoom(context.Background())
	require.NoError(t, err)

	router := h.Router()

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest("GET", "/check_room?id="+roomID, nil))
	var body map[string]bool
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.True(t, body["exists"])

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest("GET", "/check_room?id=00000", nil))
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.False(t, body["exists"])
}

func TestRoomStatsHandler(t *testing.T) {
	h, _ := newTestHandler(t)
	require.NoError(t, h.History.RecordRoundResult("40625", 1,
		map[string]string{"p1": "alice"}, map[string]int{"p1": 4}))

	rec := httptest.NewRecorder()
	h.Router().ServeHTTP(rec, httptest.NewRequest("GET", "/rooms/40625/stats", nil))

	var stats []model.PlayerStat
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
	require.Len(t, stats, 1)
	assert.Equal(t, "alice", stats[0].Name)
	assert.Equal(t, 4, stats[0].TotalScore)
}
