package update

import (
	"testing"
	"time"

	"github.com/danielpatrickdp/sara-line/go-bot/internal/session"
	"github.com/danielpatrickdp/sara-line/go-bot/internal/slots"
)

func baseSession() *session.Session {
	s := session.New("u1", time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC))
	s.Stage = session.StagePaidChat
	return s
}

func TestUpdateNoOp(t *testing.T) {
	old := baseSession()

	result := Update(old, UpdateContext{Phase: old.Phase, Mode: old.Mode}, DefaultUpdateConfig())

	if result.Decision.Action != "no_op" {
		t.Fatalf("expected no_op, got %s", result.Decision.Action)
	}
	if result.NewSession.Turns != 1 {
		t.Fatalf("expected turn counter to advance, got %d", result.NewSession.Turns)
	}
	if old.Turns != 0 {
		t.Fatal("old session mutated")
	}
}

func TestUpdateAppliesTurn(t *testing.T) {
	old := baseSession()
	old.Slots.Set(session.SlotGoal, slots.GoalMeet, session.SourceIntake)
	old.Plan = session.Plan{NG: []string{"old"}}

	action := session.ActionWait
	ctx := UpdateContext{
		TurnID:       "turn-1",
		UserText:     "sent yesterday, read 3 days ago",
		Reply:        "今は待つのが正解。",
		Phase:        session.PhaseWaitingReply,
		IgnoreStreak: 1,
		Mode:         session.ModeStrategy,
		SlotUpdates: slots.Updates{
			session.SlotSilence: slots.SilenceThreeUp,
			session.SlotGoal:    slots.GoalMakeUp,
		},
		AssistUpdates: slots.Updates{session.SlotSilence: slots.SilenceOneDay, session.SlotFear: "anxious"},
		Plan:          session.Plan{Action: &action, NG: []string{}},
		PlanSource:    session.PlanHeuristic,
		Signature:     "WAITING_REPLY::::silence=3+ days",
		Event:         true,
		SummaryDue:    true,
	}

	result := Update(old, ctx, DefaultUpdateConfig())
	next := result.NewSession

	if result.Decision.Action != "commit" {
		t.Fatalf("expected commit, got %s", result.Decision.Action)
	}
	if next.Slots.Get(session.SlotGoal) != slots.GoalMeet {
		t.Errorf("intake goal overwritten: %q", next.Slots.Get(session.SlotGoal))
	}
	if next.Slots.Get(session.SlotSilence) != slots.SilenceThreeUp {
		t.Errorf("text silence lost to assist: %q", next.Slots.Get(session.SlotSilence))
	}
	if next.Slots[session.SlotFear].Source != session.SourceAssist {
		t.Errorf("expected assist source for fear")
	}
	if next.Phase != session.PhaseWaitingReply || next.IgnoreStreak != 1 {
		t.Errorf("phase/streak not applied: %s/%d", next.Phase, next.IgnoreStreak)
	}
	if len(next.History) != 2 {
		t.Fatalf("expected 2 history turns, got %d", len(next.History))
	}
	if next.Plan.ActionOr("") != session.ActionWait || len(next.Plan.NG) != 0 {
		t.Errorf("plan not replaced wholesale: %+v", next.Plan)
	}
	if next.LastImportantEventTurn != 1 {
		t.Errorf("expected event turn 1, got %d", next.LastImportantEventTurn)
	}
	if result.Metrics.StreakDelta != 1 || !result.Metrics.PhaseChanged || !result.Metrics.PlanReplaced {
		t.Errorf("unexpected metrics: %+v", result.Metrics)
	}
	if len(old.History) != 0 || old.Phase != session.PhaseUnknown {
		t.Fatal("old session mutated")
	}
}

func TestUpdateKeepsPlanWhenUnavailable(t *testing.T) {
	old := baseSession()
	action := session.ActionSend
	old.Plan = session.Plan{Action: &action}
	old.PlanSource = session.PlanExtracted

	result := Update(old, UpdateContext{Phase: session.PhaseBeforeSend, Reply: "ok", PlanSource: session.PlanUnavailable}, DefaultUpdateConfig())

	if result.NewSession.Plan.ActionOr("") != session.ActionSend {
		t.Fatal("plan should survive an unavailable extraction")
	}
	if result.Metrics.PlanReplaced {
		t.Fatal("plan should not be reported as replaced")
	}
}

func TestUpdateTrimsHistory(t *testing.T) {
	old := baseSession()
	for i := 0; i < 10; i++ {
		old.History = append(old.History, session.Turn{Role: session.RoleUser, Text: "x"})
	}

	result := Update(old, UpdateContext{UserText: "a", Reply: "b"}, UpdateConfig{HistoryKeep: 4})

	h := result.NewSession.History
	if len(h) != 4 {
		t.Fatalf("expected 4 turns, got %d", len(h))
	}
	if h[2].Text != "a" || h[3].Text != "b" {
		t.Fatalf("expected newest turns kept, got %+v", h)
	}
}

func TestUpdateDeterministic(t *testing.T) {
	old := baseSession()
	ctx := UpdateContext{
		UserText:    "返信きた",
		Reply:       "よかったね",
		Phase:       session.PhaseAfterReply,
		SlotUpdates: slots.Updates{session.SlotLastSender: session.SenderOther},
	}

	r1 := Update(old, ctx, DefaultUpdateConfig())
	r2 := Update(old, ctx, DefaultUpdateConfig())

	if r1.NewSession.Phase != r2.NewSession.Phase || r1.NewSession.Slots.Get(session.SlotLastSender) != r2.NewSession.Slots.Get(session.SlotLastSender) {
		t.Fatal("non-deterministic update")
	}
}
