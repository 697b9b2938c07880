package gate

import (
	"fmt"
	"sort"
	"strings"

	"github.com/danielpatrickdp/sara-line/go-bot/internal/session"
)

// #region gate
// Gate evaluates whether a proposed session should be committed or rejected.
type Gate struct {
	config GateConfig
}

// NewGate creates a gate with the given configuration.
func NewGate(config GateConfig) *Gate {
	return &Gate{config: config}
}

// Evaluate runs the hard vetoes. Any veto rejects the whole turn.
func (g *Gate) Evaluate(old, proposed *session.Session, signals TurnSignals) GateDecision {
	var vetoes []VetoSignal

	// 1. Generator failure
	if signals.GeneratorFailed {
		vetoes = append(vetoes, VetoSignal{
			Type:   VetoGeneration,
			Reason: "advice generator failed",
		})
	} else if strings.TrimSpace(signals.Reply) == "" {
		vetoes = append(vetoes, VetoSignal{
			Type:   VetoEmptyReply,
			Reason: "generator returned an empty reply",
		})
	}

	// 2. Phase must never fall back to UNKNOWN once known
	if old.Phase != session.PhaseUnknown && proposed.Phase == session.PhaseUnknown {
		vetoes = append(vetoes, VetoSignal{
			Type:   VetoPhaseRegression,
			Reason: fmt.Sprintf("phase regressed from %s to UNKNOWN", old.Phase),
		})
	}

	// 3. Streak grows one step at a time
	if step := proposed.IgnoreStreak - old.IgnoreStreak; step > g.config.MaxStreakStep || proposed.IgnoreStreak < 0 {
		vetoes = append(vetoes, VetoSignal{
			Type:   VetoStreakJump,
			Reason: fmt.Sprintf("ignore streak moved %d -> %d", old.IgnoreStreak, proposed.IgnoreStreak),
		})
	}

	// 4. Slots are never cleared
	if cleared := clearedSlots(old.Slots, proposed.Slots); len(cleared) > 0 {
		vetoes = append(vetoes, VetoSignal{
			Type:   VetoSlotCleared,
			Reason: fmt.Sprintf("slots cleared: %s", strings.Join(cleared, ",")),
		})
	}

	if len(vetoes) > 0 {
		return GateDecision{
			Action:      "reject",
			Reason:      fmt.Sprintf("hard veto: %s", vetoes[0].Reason),
			Vetoed:      true,
			VetoSignals: vetoes,
		}
	}

	return GateDecision{
		Action: "commit",
		Reason: fmt.Sprintf("passed gate: phase=%s streak=%d", proposed.Phase, proposed.IgnoreStreak),
	}
}

// #endregion gate

// #region summary-cadence
// SummaryDue reports whether the rolling summary should be refreshed at turn
// (1-based, counting this turn): every SummaryEvery turns, or on an important event
// at least MinEventGap turns after the last one.
func (g *Gate) SummaryDue(turn, lastEventTurn int, event bool) bool {
	if g.config.SummaryEvery > 0 && turn > 0 && turn%g.config.SummaryEvery == 0 {
		return true
	}
	return event && turn-lastEventTurn >= g.config.MinEventGap
}

// #endregion summary-cadence

// #region helpers
func clearedSlots(old, proposed session.Slots) []string {
	var out []string
	for name, v := range old {
		if v.Value != "" && !proposed.Has(name) {
			out = append(out, string(name))
		}
	}
	sort.Strings(out)
	return out
}

// #endregion helpers
