// Package replay re-runs recorded conversations through the paid-turn pipeline
// with the recorded replies standing in for the generator.
package replay

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/samber/lo"

	"github.com/danielpatrickdp/sara-line/go-bot/internal/gate"
	"github.com/danielpatrickdp/sara-line/go-bot/internal/orchestrator"
	"github.com/danielpatrickdp/sara-line/go-bot/internal/session"
	"github.com/danielpatrickdp/sara-line/go-bot/internal/update"
)

// #region types
// Interaction is a single recorded turn: what the user wrote and what Sara answered.
type Interaction struct {
	TurnID   string
	UserText string
	Reply    string // empty replays a generator failure
}

// ReplayConfig is the orchestrator configuration used for a replay run.
type ReplayConfig struct {
	Orchestrator orchestrator.Config
}

// DefaultReplayConfig returns production settings with regeneration off, since a
// recorded reply cannot change.
func DefaultReplayConfig() ReplayConfig {
	cfg := orchestrator.DefaultConfig()
	cfg.Enabled = false
	return ReplayConfig{Orchestrator: cfg}
}

// ReplayResult captures the outcome of replaying one interaction.
type ReplayResult struct {
	TurnID string
	Action string // "commit" | "gate_reject"
	Reason string

	// Classification
	Phase        session.Phase
	Rule         string
	IgnoreStreak int
	Mode         session.Mode

	// Policy and reply
	Rules       []string
	Temperature int
	Violations  []string
	PlanAction  session.Action
	PlanSource  session.PlanSource

	UpdateDecision update.Decision
	GateDecision   gate.GateDecision
}

// ReplaySummary provides aggregate stats from a replay run.
type ReplaySummary struct {
	TotalTurns  int
	Commits     int
	GateRejects int
	Final       *session.Session
}

// #endregion types

// #region recorded-generator
// recorded answers with the reply of the turn being replayed.
type recorded struct {
	reply string
}

func (r *recorded) Generate(context.Context, orchestrator.GenerateRequest) (string, error) {
	return r.reply, nil
}

// #endregion recorded-generator

// #region replay
// Replay runs interactions in order against a copy of start. Rejected turns leave
// the session as it was, so later turns see the last committed state.
func Replay(ctx context.Context, start *session.Session, interactions []Interaction, config ReplayConfig) ([]ReplayResult, *session.Session, error) {
	gen := &recorded{}
	clock := start.UpdatedAt
	if clock.IsZero() {
		clock = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	}
	orch, err := orchestrator.New(config.Orchestrator, orchestrator.Deps{
		Generator: gen,
		Now:       func() time.Time { return clock },
	})
	if err != nil {
		return nil, nil, fmt.Errorf("replay orchestrator: %w", err)
	}

	current := start.Clone()
	results := make([]ReplayResult, 0, len(interactions))
	for _, inter := range interactions {
		if err := ctx.Err(); err != nil {
			return results, current, err
		}
		gen.reply = inter.Reply
		clock = clock.Add(time.Minute)

		turn, err := orch.RunTurn(ctx, current, inter.UserText)
		if err != nil && !errors.Is(err, orchestrator.ErrGeneration) {
			return results, current, fmt.Errorf("turn %s: %w", inter.TurnID, err)
		}
		results = append(results, resultFor(inter.TurnID, turn, current))
	}
	return results, current, nil
}

func resultFor(turnID string, turn orchestrator.TurnResult, after *session.Session) ReplayResult {
	r := ReplayResult{
		TurnID:         turnID,
		Action:         "commit",
		Reason:         turn.Gate.Reason,
		Phase:          turn.Classification.Phase,
		Rule:           turn.Classification.Rule,
		IgnoreStreak:   after.IgnoreStreak,
		Mode:           turn.Mode,
		Rules:          turn.Policy.IDs(),
		Temperature:    turn.Policy.Temperature,
		PlanAction:     turn.Plan.Plan.ActionOr(""),
		PlanSource:     turn.Plan.Source,
		UpdateDecision: turn.Update,
		GateDecision:   turn.Gate,
	}
	if a := turn.Final(); len(a.Evaluation.Violations) > 0 {
		r.Violations = lo.Map(a.Evaluation.Violations, func(v orchestrator.Violation, _ int) string { return string(v) })
	}
	if !turn.Committed() {
		r.Action = "gate_reject"
	}
	return r
}

// Summarize computes aggregate stats from replay results.
func Summarize(results []ReplayResult, final *session.Session) ReplaySummary {
	s := ReplaySummary{
		TotalTurns: len(results),
		Final:      final,
	}
	for _, r := range results {
		switch r.Action {
		case "commit":
			s.Commits++
		case "gate_reject":
			s.GateRejects++
		}
	}
	return s
}

// #endregion replay

// #region compare
// Expectation is what a replayed turn should produce. Zero fields are not checked.
type Expectation struct {
	TurnID       string
	Action       string
	Phase        session.Phase
	IgnoreStreak *int
	PlanAction   session.Action
	Rules        []string // must be present
	AbsentRules  []string // must not be present
}

// Compare lists every way results diverge from expected, one line per mismatch.
func Compare(results []ReplayResult, expected []Expectation) []string {
	var out []string
	if len(results) != len(expected) {
		out = append(out, fmt.Sprintf("expected %d results, got %d", len(expected), len(results)))
	}
	for i := 0; i < len(results) && i < len(expected); i++ {
		got, want := results[i], expected[i]
		mismatch := func(field string, w, g any) {
			out = append(out, fmt.Sprintf("turn %d (%s): %s expected %v, got %v", i, got.TurnID, field, w, g))
		}
		if want.TurnID != "" && got.TurnID != want.TurnID {
			mismatch("turn_id", want.TurnID, got.TurnID)
		}
		if want.Action != "" && got.Action != want.Action {
			mismatch("action", want.Action, got.Action+" ("+got.Reason+")")
		}
		if want.Phase != "" && got.Phase != want.Phase {
			mismatch("phase", want.Phase, got.Phase)
		}
		if want.IgnoreStreak != nil && got.IgnoreStreak != *want.IgnoreStreak {
			mismatch("ignore_streak", *want.IgnoreStreak, got.IgnoreStreak)
		}
		if want.PlanAction != "" && got.PlanAction != want.PlanAction {
			mismatch("plan_action", want.PlanAction, got.PlanAction)
		}
		if missing := lo.Without(want.Rules, got.Rules...); len(missing) > 0 {
			mismatch("rules", strings.Join(want.Rules, ","), strings.Join(got.Rules, ","))
		}
		if present := lo.Intersect(want.AbsentRules, got.Rules); len(present) > 0 {
			mismatch("absent_rules", "none of "+strings.Join(want.AbsentRules, ","), strings.Join(present, ","))
		}
	}
	return out
}

// #endregion compare
