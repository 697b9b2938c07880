package gate

// #region veto-type
// VetoType enumerates hard veto categories.
type VetoType string

const (
	VetoGeneration      VetoType = "generation_failure"
	VetoEmptyReply      VetoType = "empty_reply"
	VetoPhaseRegression VetoType = "phase_regression"
	VetoStreakJump      VetoType = "streak_jump"
	VetoSlotCleared     VetoType = "slot_cleared"
)

// #endregion veto-type

// #region veto-signal
// VetoSignal represents a detected hard veto condition.
type VetoSignal struct {
	Type   VetoType
	Reason string
}

// #endregion veto-signal

// #region gate-config
// GateConfig holds thresholds for gate decisions and summary cadence.
type GateConfig struct {
	MaxStreakStep int // ignore streak may grow by at most this per turn
	SummaryEvery  int // refresh the summary every N turns
	MinEventGap   int // turns between event-driven refreshes
}

// DefaultGateConfig returns the production thresholds.
func DefaultGateConfig() GateConfig {
	return GateConfig{
		MaxStreakStep: 1,
		SummaryEvery:  6,
		MinEventGap:   2,
	}
}

// #endregion gate-config

// #region turn-signals
// TurnSignals are facts about the turn that are not visible in the sessions.
type TurnSignals struct {
	GeneratorFailed bool
	Reply           string
}

// #endregion turn-signals

// #region gate-decision
// GateDecision is the output of the gate evaluation.
type GateDecision struct {
	Action      string // "commit" | "reject"
	Reason      string
	Vetoed      bool
	VetoSignals []VetoSignal // non-empty if vetoed
}

// #endregion gate-decision
