package orchestrator

// #region imports
import (
	"database/sql"
	"math"
	"sort"
	"time"

	"github.com/danielpatrickdp/sara-line/go-bot/internal/session"
)

// #endregion

// #region schema

const turnOutcomesSchema = `
CREATE TABLE IF NOT EXISTS turn_outcomes (
    id            INTEGER PRIMARY KEY AUTOINCREMENT,
    turn_id       TEXT NOT NULL,
    user_id       TEXT NOT NULL,
    phase         TEXT NOT NULL,
    action        TEXT NOT NULL,
    plan_source   TEXT NOT NULL,
    attempt_num   INTEGER NOT NULL,
    violation     TEXT NOT NULL DEFAULT 'none',
    accepted      INTEGER NOT NULL DEFAULT 0,
    created_at    TEXT NOT NULL
);
`

const turnOutcomesIndex = `
CREATE INDEX IF NOT EXISTS idx_turn_outcomes_phase
ON turn_outcomes(phase, action);
`

// minSamples is how many accepted outcomes an action needs before it is reported.
const minSamples = 3

// #endregion

// #region memory-struct

// OutcomeMemory persists per-attempt turn outcomes in SQLite and reports
// decay-weighted action distributions.
type OutcomeMemory struct {
	db  *sql.DB
	now func() time.Time
}

// NewOutcomeMemory initializes the turn_outcomes table and returns an OutcomeMemory.
func NewOutcomeMemory(db *sql.DB) (*OutcomeMemory, error) {
	if _, err := db.Exec(turnOutcomesSchema); err != nil {
		return nil, err
	}
	if _, err := db.Exec(turnOutcomesIndex); err != nil {
		return nil, err
	}
	return &OutcomeMemory{db: db, now: time.Now}, nil
}

// #endregion

// #region record-outcome

// RecordOutcome persists a single outcome row.
func (m *OutcomeMemory) RecordOutcome(rec OutcomeRecord) error {
	accepted := 0
	if rec.Accepted {
		accepted = 1
	}
	violation := rec.Violation
	if violation == "" {
		violation = "none"
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = m.now()
	}
	_, err := m.db.Exec(`
		INSERT INTO turn_outcomes
		(turn_id, user_id, phase, action, plan_source, attempt_num, violation, accepted, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.TurnID,
		rec.UserID,
		string(rec.Phase),
		string(rec.Action),
		string(rec.PlanSource),
		rec.AttemptNum,
		violation,
		accepted,
		rec.CreatedAt.UTC().Format(time.RFC3339),
	)
	return err
}

// #endregion

// #region action-stats

// ActionStat is the decay-weighted share of one action within a phase.
type ActionStat struct {
	Action  session.Action
	Share   float64
	Samples int
}

// ActionStats returns the decay-weighted distribution of accepted actions for
// phase, most frequent first. Actions with fewer than 3 samples are omitted.
func (m *OutcomeMemory) ActionStats(phase session.Phase) ([]ActionStat, error) {
	rows, err := m.db.Query(`
		SELECT action, created_at
		FROM turn_outcomes
		WHERE phase = ? AND accepted = 1`,
		string(phase),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	type actionAccum struct {
		weight float64
		count  int
	}

	now := m.now()
	halfLife := 7.0 * 24.0 // 7 days in hours
	accum := make(map[session.Action]*actionAccum)
	var total float64

	for rows.Next() {
		var action, createdAtStr string
		if err := rows.Scan(&action, &createdAtStr); err != nil {
			return nil, err
		}
		createdAt, err := time.Parse(time.RFC3339, createdAtStr)
		if err != nil {
			continue
		}
		weight := math.Exp(-now.Sub(createdAt).Hours() / halfLife)

		a := session.Action(action)
		if _, ok := accum[a]; !ok {
			accum[a] = &actionAccum{}
		}
		accum[a].weight += weight
		accum[a].count++
		total += weight
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	var stats []ActionStat
	for a, acc := range accum {
		if acc.count < minSamples || total == 0 {
			continue
		}
		stats = append(stats, ActionStat{Action: a, Share: acc.weight / total, Samples: acc.count})
	}
	sortStats(stats)
	return stats, nil
}

// ViolationRate returns the share of attempts in phase that had a violation.
func (m *OutcomeMemory) ViolationRate(phase session.Phase) (float64, int, error) {
	var total, violated int
	err := m.db.QueryRow(`
		SELECT COUNT(*), COALESCE(SUM(CASE WHEN violation != 'none' THEN 1 ELSE 0 END), 0)
		FROM turn_outcomes WHERE phase = ?`, string(phase),
	).Scan(&total, &violated)
	if err != nil {
		return 0, 0, err
	}
	if total == 0 {
		return 0, 0, nil
	}
	return float64(violated) / float64(total), total, nil
}

func sortStats(stats []ActionStat) {
	sort.Slice(stats, func(i, j int) bool {
		if stats[i].Share != stats[j].Share {
			return stats[i].Share > stats[j].Share
		}
		return stats[i].Action < stats[j].Action
	})
}

// #endregion
