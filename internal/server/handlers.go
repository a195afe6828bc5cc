// Package server is the local gateway between a rendering client and its
// session: a thin websocket surface where each connection drives exactly
// one session state machine. Rendering itself lives on the other side of
// the socket.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"bubbletactics/internal/config"
	"bubbletactics/internal/database"
	"bubbletactics/internal/game"
	"bubbletactics/internal/model"
	"bubbletactics/internal/store"
)

var upgrader = websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }}

type Handler struct {
	Cfg     config.Config
	Store   store.Store
	Fetch   *game.FetchAPI
	Write   *game.WriteAPI
	History *database.Store
	Log     *zap.SugaredLogger
}

func NewHandler(cfg config.Config, st store.Store, fetch *game.FetchAPI, write *game.WriteAPI, history *database.Store, log *zap.SugaredLogger) *Handler {
	return &Handler{Cfg: cfg, Store: st, Fetch: fetch, Write: write, History: history, Log: log}
}

// Router builds the gateway routes.
func (h *Handler) Router() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/check_room", h.CheckRoomHandler).Methods(http.MethodGet)
	r.HandleFunc("/rooms/{id}/stats", h.RoomStatsHandler).Methods(http.MethodGet)
	r.HandleFunc("/ws", h.HandleGameWS)
	return r
}

// CheckRoomHandler validates a user-entered room code.
func (h *Handler) CheckRoomHandler(w http.ResponseWriter, r *http.Request) {
	roomID := r.URL.Query().Get("id")
	exists, err := h.Fetch.RoomExists(r.Context(), roomID)
	if err != nil {
		http.Error(w, "store unavailable", http.StatusServiceUnavailable)
		return
	}
	json.NewEncoder(w).Encode(map[string]bool{"exists": exists})
}

// RoomStatsHandler serves the aggregated round history for a room.
func (h *Handler) RoomStatsHandler(w http.ResponseWriter, r *http.Request) {
	roomID := mux.Vars(r)["id"]
	json.NewEncoder(w).Encode(h.History.GetRoomStats(roomID))
}

// clientCommand is what the rendering client sends over the socket.
type clientCommand struct {
	Type   string `json:"type"`
	RoomID string `json:"roomId,omitempty"`
	Name   string `json:"name,omitempty"`
	Action string `json:"action,omitempty"`
}

// HandleGameWS runs one session per connection: commands flow in,
// session events flow out.
func (h *Handler) HandleGameWS(w http.ResponseWriter, r *http.Request) {
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer ws.Close()

	sessionCfg := game.SessionConfig{
		FirstRoundDelaySecs: h.Cfg.FirstRoundDelaySecs,
		NextRoundDelaySecs:  h.Cfg.NextRoundDelaySecs,
		ActionTimeLimitSecs: h.Cfg.ActionTimeLimitSecs,
		OwnerLeaseTTLSecs:   h.Cfg.OwnerLeaseTTLSecs,
		Over:                game.DefaultOverPolicy(h.Cfg.MaxRounds),
	}
	countdown := game.NewCountdown(time.Second)
	session := game.NewSession(sessionCfg, h.Store, h.Fetch, h.Write, countdown, h.History, h.Log)

	// The request context dies with the handler; the session outlives
	// individual reads, so it runs on its own context.
	ctx := context.Background()
	if err := session.Init(ctx); err != nil {
		ws.WriteJSON(model.Message{Type: "error", Payload: "store unavailable"})
		return
	}

	done := make(chan struct{})
	defer close(done)
	go func() {
		for {
			select {
			case msg := <-session.Events():
				if err := ws.WriteJSON(msg); err != nil {
					return
				}
			case <-done:
				return
			}
		}
	}()

	defer func() {
		if session.State() != game.StateOver && session.PlayerID() != "" {
			if err := session.Leave(context.Background()); err != nil {
				h.Log.Warnw("failed to leave room on disconnect", "error", err)
			}
		}
	}()

	for {
		var cmd clientCommand
		if err := ws.ReadJSON(&cmd); err != nil {
			return
		}
		if err := h.dispatch(ctx, session, cmd, ws); err != nil {
			payload := err.Error()
			switch {
			case errors.Is(err, game.ErrRoomNotFound):
				payload = "Could not join room. Make sure the room id is valid."
			case errors.Is(err, game.ErrGameAlreadyStarted):
				payload = "That room's game is already in progress."
			}
			ws.WriteJSON(model.Message{Type: "error", Payload: payload})
		}
	}
}

func (h *Handler) dispatch(ctx context.Context, session *game.Session, cmd clientCommand, ws *websocket.Conn) error {
	switch cmd.Type {
	case "create_room":
		roomID, err := session.CreateRoom(ctx, cmd.Name)
		if err != nil {
			return err
		}
		return ws.WriteJSON(model.Message{Type: "identity", Payload: map[string]string{
			"roomId": roomID, "playerId": session.PlayerID(), "name": cmd.Name,
		}})
	case "join_room":
		if err := session.JoinRoom(ctx, cmd.RoomID, cmd.Name); err != nil {
			return err
		}
		return ws.WriteJSON(model.Message{Type: "identity", Payload: map[string]string{
			"roomId": cmd.RoomID, "playerId": session.PlayerID(), "name": cmd.Name,
		}})
	case "ready_for_game":
		return session.ReadyForGame(ctx)
	case "start_game":
		return session.StartGame(ctx)
	case "ready":
		return session.ReadyForRound(ctx)
	case "action":
		action, err := model.ParseAction(cmd.Action)
		if err != nil {
			return err
		}
		return session.SubmitAction(ctx, action)
	case "leave_room":
		return session.Leave(ctx)
	default:
		h.Log.Warnw("unknown command", "type", cmd.Type)
		return nil
	}
}
