package replay

import (
	"context"
	"reflect"
	"testing"
	"time"

	"github.com/danielpatrickdp/sara-line/go-bot/internal/session"
)

const (
	waitReply = "今は待つのが正解。\n追いLINEはまだしない。"
	sendReply = "明日の夜に送って。\n「ありがとう、落ち着いたらご飯行こう」"
)

// helper: paid session with the given intake slots.
func startSession(slots map[session.SlotName]string) *session.Session {
	sess := session.New("replay-test", time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC))
	sess.Stage = session.StagePaidChat
	for k, v := range slots {
		sess.Slots.Set(k, v, session.SourceIntake)
	}
	return sess
}

func mustReplay(t *testing.T, start *session.Session, turns []Interaction) ([]ReplayResult, *session.Session) {
	t.Helper()
	results, final, err := Replay(context.Background(), start, turns, DefaultReplayConfig())
	if err != nil {
		t.Fatalf("Replay: %v", err)
	}
	if len(results) != len(turns) {
		t.Fatalf("expected %d results, got %d", len(turns), len(results))
	}
	return results, final
}

// 1. Commit path: silence marker, recorded wait reply.
func TestReplay_CommitPath(t *testing.T) {
	start := startSession(nil)
	results, final := mustReplay(t, start, []Interaction{
		{TurnID: "t1", UserText: "既読無視されてる", Reply: waitReply},
	})

	r := results[0]
	if r.Action != "commit" {
		t.Fatalf("expected commit, got %s (%s)", r.Action, r.Reason)
	}
	if r.Phase != session.PhaseWaitingReply || r.IgnoreStreak != 1 {
		t.Errorf("expected WAITING_REPLY/1, got %s/%d", r.Phase, r.IgnoreStreak)
	}
	if r.PlanAction != session.ActionWait || r.PlanSource != session.PlanHeuristic {
		t.Errorf("expected heuristic wait, got %s/%s", r.PlanSource, r.PlanAction)
	}
	if final.Turns != 1 || len(final.History) != 2 {
		t.Errorf("expected 1 turn and 2 history entries, got %d/%d", final.Turns, len(final.History))
	}
	if start.Turns != 0 || start.Phase != session.PhaseUnknown {
		t.Error("start session must not be mutated")
	}
}

// 2. Empty recorded reply replays a generator failure: rejected, state unchanged.
func TestReplay_GateRejection(t *testing.T) {
	start := startSession(nil)
	results, final := mustReplay(t, start, []Interaction{
		{TurnID: "t1", UserText: "既読無視されてる", Reply: ""},
	})

	r := results[0]
	if r.Action != "gate_reject" {
		t.Fatalf("expected gate_reject, got %s", r.Action)
	}
	if !r.GateDecision.Vetoed {
		t.Error("expected GateDecision.Vetoed=true")
	}
	if final.Turns != 0 || final.IgnoreStreak != 0 || final.Phase != session.PhaseUnknown {
		t.Errorf("expected untouched session, got turns=%d streak=%d phase=%s", final.Turns, final.IgnoreStreak, final.Phase)
	}
}

// 3. A rejected turn does not advance the streak; the next silence turn starts from the committed value.
func TestReplay_RejectThenCommit(t *testing.T) {
	results, final := mustReplay(t, startSession(nil), []Interaction{
		{TurnID: "t1", UserText: "既読無視されてる", Reply: waitReply},
		{TurnID: "t2", UserText: "まだ返事ない", Reply: ""},
		{TurnID: "t3", UserText: "まだ返事ない", Reply: waitReply},
	})

	got := []int{results[0].IgnoreStreak, results[1].IgnoreStreak, results[2].IgnoreStreak}
	if !reflect.DeepEqual(got, []int{1, 1, 2}) {
		t.Errorf("expected streaks [1 1 2], got %v", got)
	}
	if final.Turns != 2 {
		t.Errorf("expected 2 committed turns, got %d", final.Turns)
	}
}

// 4. Multi-turn: streak grows, reply arrival resets it and drops no_scheduling.
func TestReplay_MultiTurn(t *testing.T) {
	results, _ := mustReplay(t, startSession(map[session.SlotName]string{session.SlotGoal: "make up"}), []Interaction{
		{TurnID: "t1", UserText: "既読無視されてる", Reply: waitReply},
		{TurnID: "t2", UserText: "まだ返事ない", Reply: waitReply},
		{TurnID: "t3", UserText: "返信きた！「ごめん寝てた」って", Reply: sendReply},
	})

	streak := 2
	zero := 0
	problems := Compare(results, []Expectation{
		{TurnID: "t1", Action: "commit", Phase: session.PhaseWaitingReply, Rules: []string{"no_scheduling"}},
		{TurnID: "t2", Action: "commit", IgnoreStreak: &streak, Rules: []string{"no_scheduling"}},
		{TurnID: "t3", Action: "commit", Phase: session.PhaseAfterReply, IgnoreStreak: &zero, PlanAction: session.ActionSend, AbsentRules: []string{"no_scheduling"}},
	})
	for _, p := range problems {
		t.Error(p)
	}
}

// 5. Recorded replies with violations are kept as-is and reported.
func TestReplay_ViolationsReported(t *testing.T) {
	results, _ := mustReplay(t, startSession(nil), []Interaction{
		{TurnID: "t1", UserText: "既読無視されてる", Reply: "【結論】待つ。"},
	})
	if !reflect.DeepEqual(results[0].Violations, []string{"heading"}) {
		t.Errorf("expected [heading], got %v", results[0].Violations)
	}
	if results[0].Action != "commit" {
		t.Errorf("violations do not block commit, got %s", results[0].Action)
	}
}

// 6. Summarize counts actions.
func TestReplay_Summarize(t *testing.T) {
	results := []ReplayResult{
		{Action: "commit"},
		{Action: "gate_reject"},
		{Action: "commit"},
	}
	final := startSession(nil)
	s := Summarize(results, final)

	if s.TotalTurns != 3 || s.Commits != 2 || s.GateRejects != 1 {
		t.Errorf("unexpected summary %+v", s)
	}
	if s.Final != final {
		t.Error("expected final session passthrough")
	}
}

// 7. Same inputs produce identical classification and plans.
func TestReplay_Deterministic(t *testing.T) {
	turns := []Interaction{
		{TurnID: "t1", UserText: "既読無視されてる", Reply: waitReply},
		{TurnID: "t2", UserText: "返信きた！「ごめん寝てた」って", Reply: sendReply},
	}
	strip := func(rs []ReplayResult) []ReplayResult {
		for i := range rs {
			rs[i].UpdateDecision.Reason = ""
		}
		return rs
	}
	a, _ := mustReplay(t, startSession(nil), turns)
	b, _ := mustReplay(t, startSession(nil), turns)
	if !reflect.DeepEqual(strip(a), strip(b)) {
		t.Error("replay is not deterministic")
	}
}

// 8. Canceled context stops before the first turn.
func TestReplay_Canceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	results, _, err := Replay(ctx, startSession(nil), []Interaction{{TurnID: "t1", UserText: "x", Reply: "y"}}, DefaultReplayConfig())
	if err == nil || len(results) != 0 {
		t.Fatalf("expected cancellation before any turn, got %d results, err=%v", len(results), err)
	}
}

func TestCompare_ReportsMismatches(t *testing.T) {
	one := 1
	results := []ReplayResult{{TurnID: "t1", Action: "commit", Phase: session.PhaseAfterReply, Rules: []string{"no_scheduling"}}}
	got := Compare(results, []Expectation{{
		TurnID:       "t1",
		Action:       "gate_reject",
		Phase:        session.PhaseWaitingReply,
		IgnoreStreak: &one,
		Rules:        []string{"vary_phrasing"},
		AbsentRules:  []string{"no_scheduling"},
	}})
	if len(got) != 5 {
		t.Fatalf("expected 5 mismatches, got %d: %v", len(got), got)
	}
	if n := len(Compare(results, nil)); n != 1 {
		t.Errorf("length mismatch should be reported once, got %d", n)
	}
}
