package update

import (
	"fmt"
	"strings"
	"time"

	"github.com/danielpatrickdp/sara-line/go-bot/internal/session"
	"github.com/danielpatrickdp/sara-line/go-bot/internal/slots"
)

// #region update-function
// Update is a pure function computing the next session from the current one and the
// turn's decisions. old is never mutated.
func Update(old *session.Session, ctx UpdateContext, config UpdateConfig) UpdateResult {
	start := time.Now()
	next := old.Clone()

	// 1. Slots: explicit text first so its higher rank sticks
	changed := slots.Merge(next.Slots, ctx.SlotUpdates, session.SourceText)
	changed = append(changed, slots.Merge(next.Slots, ctx.AssistUpdates, session.SourceAssist)...)

	// 2. Phase, streak and mode come precomputed from the classifier
	next.Phase = ctx.Phase
	next.IgnoreStreak = ctx.IgnoreStreak
	if ctx.Mode != "" {
		next.Mode = ctx.Mode
	}
	if ctx.Labels != nil {
		next.Labels = slots.ApplyLabels(next.Labels, *ctx.Labels)
	}

	// 3. History
	if t := strings.TrimSpace(ctx.UserText); t != "" {
		next.History = append(next.History, session.Turn{Role: session.RoleUser, Text: t})
	}
	if r := strings.TrimSpace(ctx.Reply); r != "" {
		next.History = append(next.History, session.Turn{Role: session.RoleAssistant, Text: r})
	}
	if config.HistoryKeep > 0 && len(next.History) > config.HistoryKeep {
		next.History = append([]session.Turn{}, next.History[len(next.History)-config.HistoryKeep:]...)
	}

	// 4. Plan is replaced wholesale, never merged field by field
	planReplaced := false
	if ctx.PlanSource != "" && ctx.PlanSource != session.PlanUnavailable {
		next.Plan = ctx.Plan.Clone()
		next.PlanSource = ctx.PlanSource
		planReplaced = true
	}

	// 5. Bookkeeping
	if ctx.Signature != "" {
		next.LastAdviceSignature = ctx.Signature
	}
	next.Turns++
	if ctx.Event && ctx.SummaryDue {
		next.LastImportantEventTurn = next.Turns
	}
	if !ctx.Now.IsZero() {
		next.UpdatedAt = ctx.Now
	}

	metrics := Metrics{
		SlotsChanged: changed,
		PhaseChanged: next.Phase != old.Phase,
		StreakDelta:  next.IgnoreStreak - old.IgnoreStreak,
		PlanReplaced: planReplaced,
		HistoryLen:   len(next.History),
		UpdateTimeMs: time.Since(start).Milliseconds(),
	}

	decision := Decision{Action: "no_op", Reason: "no state change"}
	if strings.TrimSpace(ctx.Reply) != "" || len(changed) > 0 || metrics.PhaseChanged {
		decision = Decision{
			Action: "commit",
			Reason: fmt.Sprintf("phase=%s streak=%d slots=%v plan=%v", next.Phase, next.IgnoreStreak, changed, planReplaced),
		}
	}

	return UpdateResult{
		NewSession: next,
		Decision:   decision,
		Metrics:    metrics,
	}
}

// #endregion update-function
