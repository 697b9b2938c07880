package update

import (
	"time"

	"github.com/danielpatrickdp/sara-line/go-bot/internal/session"
	"github.com/danielpatrickdp/sara-line/go-bot/internal/slots"
)

// #region update-context
// UpdateContext carries everything one paid turn decided, for the pure update function.
type UpdateContext struct {
	TurnID        string
	UserText      string
	Reply         string
	Phase         session.Phase
	IgnoreStreak  int
	Mode          session.Mode
	SlotUpdates   slots.Updates // regex matches on explicit text
	AssistUpdates slots.Updates // secondary model proposals
	Labels        *session.Labels
	Plan          session.Plan
	PlanSource    session.PlanSource
	Signature     string
	Event         bool // important event seen this turn
	SummaryDue    bool
	Now           time.Time
}

// #endregion update-context

// #region decision
// Decision records what the update function decided.
type Decision struct {
	Action string // "commit" | "no_op"
	Reason string
}

// #endregion decision

// #region metrics
// Metrics captures what moved during an update.
type Metrics struct {
	SlotsChanged []session.SlotName
	PhaseChanged bool
	StreakDelta  int
	PlanReplaced bool
	HistoryLen   int
	UpdateTimeMs int64
}

// #endregion metrics

// #region update-config
// UpdateConfig bounds what a session keeps.
type UpdateConfig struct {
	HistoryKeep int // turns retained in the session; the generator sees a smaller window
}

// DefaultUpdateConfig returns the production bounds.
func DefaultUpdateConfig() UpdateConfig {
	return UpdateConfig{HistoryKeep: 40}
}

// #endregion update-config

// #region update-result
// UpdateResult bundles everything returned by Update().
type UpdateResult struct {
	NewSession *session.Session
	Decision   Decision
	Metrics    Metrics
}

// #endregion update-result
