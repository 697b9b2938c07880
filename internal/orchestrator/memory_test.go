package orchestrator

import (
	"database/sql"
	"math"
	"testing"
	"time"

	"github.com/danielpatrickdp/sara-line/go-bot/internal/session"
)

// newTestDB opens an in-memory database with the session schema applied.
func newTestDB(t *testing.T) *sql.DB {
	t.Helper()
	store, err := session.NewSnapshotStore(":memory:")
	if err != nil {
		t.Fatalf("NewSnapshotStore: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store.DB()
}

func newTestMemory(t *testing.T, now time.Time) *OutcomeMemory {
	t.Helper()
	mem, err := NewOutcomeMemory(newTestDB(t))
	if err != nil {
		t.Fatalf("NewOutcomeMemory: %v", err)
	}
	mem.now = func() time.Time { return now }
	return mem
}

func record(t *testing.T, mem *OutcomeMemory, phase session.Phase, action session.Action, violation string, accepted bool, at time.Time) {
	t.Helper()
	err := mem.RecordOutcome(OutcomeRecord{
		TurnID:     "turn",
		UserID:     "u1",
		Phase:      phase,
		Action:     action,
		PlanSource: session.PlanHeuristic,
		Violation:  violation,
		Accepted:   accepted,
		CreatedAt:  at,
	})
	if err != nil {
		t.Fatalf("RecordOutcome: %v", err)
	}
}

func TestActionStats_MinSamples(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	mem := newTestMemory(t, now)

	for i := 0; i < 3; i++ {
		record(t, mem, session.PhaseWaitingReply, session.ActionWait, "", true, now)
	}
	for i := 0; i < 2; i++ {
		record(t, mem, session.PhaseWaitingReply, session.ActionSend, "", true, now)
	}
	// rejected attempts never count
	for i := 0; i < 5; i++ {
		record(t, mem, session.PhaseWaitingReply, session.ActionSend, "pressure", false, now)
	}

	stats, err := mem.ActionStats(session.PhaseWaitingReply)
	if err != nil {
		t.Fatalf("ActionStats: %v", err)
	}
	if len(stats) != 1 {
		t.Fatalf("expected only wait to clear the sample floor, got %+v", stats)
	}
	if stats[0].Action != session.ActionWait || stats[0].Samples != 3 {
		t.Errorf("unexpected stat %+v", stats[0])
	}
	if math.Abs(stats[0].Share-0.6) > 1e-9 {
		t.Errorf("share: got %f, want 0.6", stats[0].Share)
	}

	other, err := mem.ActionStats(session.PhaseAfterReply)
	if err != nil {
		t.Fatalf("ActionStats: %v", err)
	}
	if len(other) != 0 {
		t.Errorf("phases must not mix, got %+v", other)
	}
}

func TestActionStats_Decay(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	mem := newTestMemory(t, now)

	old := now.Add(-30 * 24 * time.Hour)
	for i := 0; i < 3; i++ {
		record(t, mem, session.PhaseBeforeSend, session.ActionWait, "", true, old)
		record(t, mem, session.PhaseBeforeSend, session.ActionSend, "", true, now)
	}

	stats, err := mem.ActionStats(session.PhaseBeforeSend)
	if err != nil {
		t.Fatalf("ActionStats: %v", err)
	}
	if len(stats) != 2 {
		t.Fatalf("expected 2 stats, got %+v", stats)
	}
	if stats[0].Action != session.ActionSend {
		t.Errorf("recent outcomes should dominate, got %+v", stats)
	}
	if stats[0].Share <= stats[1].Share {
		t.Errorf("expected descending shares, got %+v", stats)
	}
}

func TestViolationRate(t *testing.T) {
	now := time.Now().UTC()
	mem := newTestMemory(t, now)

	rate, n, err := mem.ViolationRate(session.PhaseWaitingReply)
	if err != nil || rate != 0 || n != 0 {
		t.Fatalf("empty: rate=%f n=%d err=%v", rate, n, err)
	}

	record(t, mem, session.PhaseWaitingReply, session.ActionSend, "pressure", false, now)
	record(t, mem, session.PhaseWaitingReply, session.ActionWait, "", true, now)
	record(t, mem, session.PhaseWaitingReply, session.ActionWait, "none", true, now)
	record(t, mem, session.PhaseWaitingReply, session.ActionWait, "scheduling", false, now)

	rate, n, err = mem.ViolationRate(session.PhaseWaitingReply)
	if err != nil {
		t.Fatalf("ViolationRate: %v", err)
	}
	if n != 4 || rate != 0.5 {
		t.Errorf("got rate=%f n=%d, want 0.5 over 4", rate, n)
	}
}
