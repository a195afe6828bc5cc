package database

import (
	"database/sql"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"bubbletactics/internal/model"
)

// Store keeps resolved-round history outside the shared game store, for
// per-room stats that outlive a session.
type Store struct {
	db  *sql.DB
	log *zap.SugaredLogger
}

func NewStore(dbPath string, log *zap.SugaredLogger) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, err
	}

	sqlStmt := `CREATE TABLE IF NOT EXISTS round_history (id INTEGER PRIMARY KEY AUTOINCREMENT, room_id TEXT, round_id INTEGER, player_id TEXT, player_name TEXT, score_diff INTEGER, resolved_at DATETIME DEFAULT CURRENT_TIMESTAMP);`
	if _, err = db.Exec(sqlStmt); err != nil {
		db.Close()
		return nil, err
	}

	return &Store{db: db, log: log}, nil
}

func (s *Store) Close() {
	if s.db != nil {
		s.db.Close()
	}
}

// RecordRoundResult appends one row per player for a resolved round.
func (s *Store) RecordRoundResult(roomID string, roundID int, names map[string]string, diffs map[string]int) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	stmt, err := tx.Prepare("INSERT INTO round_history(room_id, round_id, player_id, player_name, score_diff) VALUES(?, ?, ?, ?, ?)")
	if err != nil {
		tx.Rollback()
		return err
	}
	defer stmt.Close()

	for playerID, diff := range diffs {
		if _, err := stmt.Exec(roomID, roundID, playerID, names[playerID], diff); err != nil {
			tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

// GetRoomStats aggregates history per player, best cumulative diff first.
func (s *Store) GetRoomStats(roomID string) []model.PlayerStat {
	stats := make([]model.PlayerStat, 0)

	rows, err := s.db.Query(`SELECT player_name, COUNT(*) as rounds, SUM(score_diff) as total_diff FROM round_history WHERE room_id = ? GROUP BY player_name ORDER BY total_diff DESC`, roomID)
	if err != nil {
		s.log.Warnw("failed to query room stats", "room", roomID, "error", err)
		return stats
	}
	defer rows.Close()

	for rows.Next() {
		var st model.PlayerStat
		if err := rows.Scan(&st.Name, &st.TotalRounds, &st.TotalScore); err != nil {
			continue
		}
		stats = append(stats, st)
	}
	return stats
}
