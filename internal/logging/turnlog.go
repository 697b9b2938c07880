package logging

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// timeLayout is fixed-width so created_at sorts lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// #region log-turn
// LogTurn writes a turn entry to the turn_log table.
func LogTurn(db *sql.DB, entry TurnEntry) error {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	_, err := db.Exec(
		`INSERT INTO turn_log (turn_id, user_id, phase, ignore_streak, action, plan_source, decision, reason, signals_json, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.TurnID,
		entry.UserID,
		entry.Phase,
		entry.IgnoreStreak,
		nullIfEmpty(entry.Action),
		nullIfEmpty(entry.PlanSource),
		entry.Decision,
		nullIfEmpty(entry.Reason),
		nullIfEmpty(entry.SignalsJSON),
		entry.CreatedAt.UTC().Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("log turn: %w", err)
	}
	return nil
}

// LogRecord serializes rec into signals_json and writes the entry.
func LogRecord(db *sql.DB, rec TurnRecord) error {
	raw, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal turn record: %w", err)
	}
	decision := rec.GateAction
	if decision == "" {
		decision = "no_op"
	}
	return LogTurn(db, TurnEntry{
		TurnID:       rec.TurnID,
		UserID:       rec.UserID,
		Phase:        rec.Phase,
		IgnoreStreak: rec.Streak,
		Action:       rec.Action,
		PlanSource:   rec.PlanSource,
		SignalsJSON:  string(raw),
		Decision:     decision,
		Reason:       rec.GateReason,
	})
}

// #endregion log-turn

// #region list-turns
// ListTurns returns turn_log rows oldest first. Empty userID means all users;
// limit <= 0 means no limit.
func ListTurns(db *sql.DB, userID string, limit int) ([]TurnEntry, error) {
	query := `SELECT id, turn_id, user_id, phase, ignore_streak, action, plan_source, decision, reason, signals_json, created_at
		FROM turn_log`
	var args []any
	if userID != "" {
		query += ` WHERE user_id = ?`
		args = append(args, userID)
	}
	query += ` ORDER BY created_at ASC, id ASC`
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("list turns: %w", err)
	}
	defer rows.Close()

	var out []TurnEntry
	for rows.Next() {
		var e TurnEntry
		var action, planSource, reason, signals sql.NullString
		var createdAt string
		if err := rows.Scan(&e.ID, &e.TurnID, &e.UserID, &e.Phase, &e.IgnoreStreak,
			&action, &planSource, &e.Decision, &reason, &signals, &createdAt); err != nil {
			return nil, fmt.Errorf("scan turn: %w", err)
		}
		e.Action = action.String
		e.PlanSource = planSource.String
		e.Reason = reason.String
		e.SignalsJSON = signals.String
		if t, err := time.Parse(timeLayout, createdAt); err == nil {
			e.CreatedAt = t
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// DecodeRecord parses the TurnRecord stored in an entry.
func DecodeRecord(e TurnEntry) (TurnRecord, error) {
	var rec TurnRecord
	if e.SignalsJSON == "" {
		return rec, fmt.Errorf("turn %s has no record", e.TurnID)
	}
	if err := json.Unmarshal([]byte(e.SignalsJSON), &rec); err != nil {
		return rec, fmt.Errorf("decode turn %s: %w", e.TurnID, err)
	}
	return rec, nil
}

// #endregion list-turns

// #region helpers
func nullIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

// #endregion helpers
