package logging

import "time"

// #region turn-entry
// TurnEntry is a single row in the turn_log table.
type TurnEntry struct {
	ID           int64
	TurnID       string
	UserID       string
	Phase        string
	IgnoreStreak int
	Action       string
	PlanSource   string
	SignalsJSON  string
	Decision     string // "commit" | "reject" | "no_op"
	Reason       string
	CreatedAt    time.Time
}

// #endregion turn-entry

// #region turn-record
// TurnRecord captures everything the deterministic pipeline saw and decided for a turn.
// Serialized as JSON into turn_log.signals_json so turns can be exported and replayed.
type TurnRecord struct {
	TurnID     string            `json:"turn_id"`
	UserID     string            `json:"user_id"`
	UserText   string            `json:"user_text"`
	Reply      string            `json:"reply"`
	PriorPhase string            `json:"prior_phase"`
	Phase      string            `json:"phase"`
	PhaseRule  string            `json:"phase_rule"`
	ByText     bool              `json:"by_text"`
	Streak     int               `json:"ignore_streak"`
	Mode       string            `json:"mode"`
	Slots      map[string]string `json:"slots"`
	Rules      []string          `json:"rules"`

	Signals TurnRecordSignals `json:"signals"`

	Action     string   `json:"action"`
	PlanSource string   `json:"plan_source"`
	Violations []string `json:"violations,omitempty"`
	Attempts   int      `json:"attempts"`

	GateAction string `json:"gate_action"`
	GateVetoed bool   `json:"gate_vetoed"`
	GateReason string `json:"gate_reason"`
}

// TurnRecordSignals captures the lexical signals as evaluated at runtime.
type TurnRecordSignals struct {
	LowEnergy bool   `json:"low_energy"`
	Eager     bool   `json:"eager"`
	Event     string `json:"event,omitempty"`
	Short     bool   `json:"short"`
}

// #endregion turn-record
