package orchestrator

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/danielpatrickdp/sara-line/go-bot/internal/logging"
	"github.com/danielpatrickdp/sara-line/go-bot/internal/session"
)

// #region fakes

// scriptedGenerator returns replies in order, repeating the last one.
type scriptedGenerator struct {
	replies []string
	errs    []error
	reqs    []GenerateRequest
}

func (g *scriptedGenerator) Generate(_ context.Context, req GenerateRequest) (string, error) {
	i := len(g.reqs)
	g.reqs = append(g.reqs, req)
	if i < len(g.errs) && g.errs[i] != nil {
		return "", g.errs[i]
	}
	if len(g.replies) == 0 {
		return "", nil
	}
	if i >= len(g.replies) {
		i = len(g.replies) - 1
	}
	return g.replies[i], nil
}

type fakeSummarizer struct {
	digest string
	err    error
	calls  int
}

func (s *fakeSummarizer) Summarize(_ context.Context, _ string, _ []session.Turn) (string, error) {
	s.calls++
	return s.digest, s.err
}

type fakeAssistant struct {
	out   map[string]any
	calls int
}

func (a *fakeAssistant) AssistSlots(_ context.Context, _ string, _ map[string]string) (map[string]any, error) {
	a.calls++
	return a.out, nil
}

var testNow = time.Date(2026, 3, 1, 21, 0, 0, 0, time.UTC)

func newTestOrchestrator(t *testing.T, cfg Config, deps Deps) *Orchestrator {
	t.Helper()
	if deps.Now == nil {
		deps.Now = func() time.Time { return testNow }
	}
	o, err := New(cfg, deps)
	require.NoError(t, err)
	return o
}

func seededSession(userID string, kv map[session.SlotName]string) *session.Session {
	s := session.New(userID, testNow)
	s.Stage = session.StagePaidChat
	for k, v := range kv {
		s.Slots.Set(k, v, session.SourceIntake)
	}
	return s
}

// #endregion

// #region scenarios

func TestRunTurn_ReadNoReply(t *testing.T) {
	gen := &scriptedGenerator{replies: []string{
		"Hold off for now💋\nJust wait until the weekend.\nIf you must, send only this:\n\"No rush, whenever you're free\"",
	}}
	o := newTestOrchestrator(t, DefaultConfig(), Deps{Generator: gen})
	sess := seededSession("u1", map[session.SlotName]string{
		session.SlotSilence:           "3+ days",
		session.SlotGoal:              "wants to meet",
		session.SlotRelationshipStage: "never met in person",
	})

	res, err := o.RunTurn(context.Background(), sess, "sent yesterday, read 3 days ago, scared it's too much")
	require.NoError(t, err)

	assert.Equal(t, session.PhaseWaitingReply, res.Classification.Phase)
	assert.True(t, res.Classification.ByText)
	assert.True(t, res.Policy.Has(RuleNoScheduling))
	assert.Equal(t, 0, res.Policy.Temperature)
	assert.True(t, res.Committed())

	assert.Equal(t, session.PhaseWaitingReply, sess.Phase)
	assert.Equal(t, 1, sess.IgnoreStreak)
	assert.Equal(t, session.PlanHeuristic, sess.PlanSource)
	assert.Equal(t, session.ActionWait, sess.Plan.ActionOr(""))
	assert.Equal(t, "3+ days", sess.Slots.Get(session.SlotSilence), "intake value must survive text extraction")
	assert.Equal(t, 1, sess.Turns)
	assert.Len(t, sess.History, 2)

	require.Len(t, gen.reqs, 1)
	assert.Contains(t, gen.reqs[0].System, ignoredRules[0].Text)
}

func TestRunTurn_ReplyArrived(t *testing.T) {
	gen := &scriptedGenerator{replies: []string{
		"Good sign♡\nAcknowledge first, then offer one easy option.\nSend this tonight:\n「私も会いたい。土曜の夜あたり空いてたら嬉しい」",
	}}
	o := newTestOrchestrator(t, DefaultConfig(), Deps{Generator: gen})
	sess := seededSession("u2", map[session.SlotName]string{
		session.SlotRelationshipStage: "dated 3+ times",
	})
	sess.Phase = session.PhaseWaitingReply
	sess.IgnoreStreak = 2

	res, err := o.RunTurn(context.Background(), sess, "they replied! 'I miss you too, when are you free?'")
	require.NoError(t, err)

	assert.Equal(t, session.PhaseAfterReply, res.Classification.Phase)
	assert.True(t, res.Policy.Has(RuleAcknowledgeFirst))
	assert.False(t, res.Policy.Has(RuleNoScheduling))
	assert.Equal(t, 0, sess.IgnoreStreak)
	assert.Equal(t, session.ActionSend, sess.Plan.ActionOr(""))
	require.NotNil(t, sess.Plan.Draft)
	assert.Equal(t, "私も会いたい。土曜の夜あたり空いてたら嬉しい", *sess.Plan.Draft)
}

func TestRunTurn_BeforeSend(t *testing.T) {
	gen := &scriptedGenerator{replies: []string{
		"Apologize without excuses💋\nSend it tomorrow evening, not tonight.\n「昨日は言い方きつくてごめんね。落ち着いたらまた話せたら嬉しい」",
	}}
	o := newTestOrchestrator(t, DefaultConfig(), Deps{Generator: gen})
	sess := seededSession("u3", nil)

	res, err := o.RunTurn(context.Background(), sess, "haven't sent anything yet, we had a fight, want to apologize")
	require.NoError(t, err)

	assert.Equal(t, session.PhaseBeforeSend, res.Classification.Phase)
	assert.True(t, res.Policy.Has(RuleOneDraft))
	assert.True(t, res.Policy.Has(RuleExplicitTiming))
	assert.Equal(t, session.PhaseBeforeSend, sess.Phase)
	assert.Equal(t, session.ActionSend, sess.Plan.ActionOr(""))
	require.NotNil(t, sess.Plan.Timing)
	assert.True(t, strings.HasPrefix(*sess.Plan.Timing, "tomorrow"))
}

// #endregion

// #region failure

func TestRunTurn_GeneratorFailureLeavesSessionUntouched(t *testing.T) {
	gen := &scriptedGenerator{errs: []error{errors.New("upstream 503")}}
	db := newTestDB(t)
	o := newTestOrchestrator(t, DefaultConfig(), Deps{Generator: gen, DB: db})
	sess := seededSession("u4", map[session.SlotName]string{session.SlotGoal: "make up"})
	before := sess.Clone()

	res, err := o.RunTurn(context.Background(), sess, "既読無視されて3日")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrGeneration))
	assert.Equal(t, ApologyReply, res.Reply)
	assert.True(t, res.Gate.Vetoed)
	assert.Equal(t, before, sess)

	// the failed turn is still visible in the audit log
	entries, err := logging.ListTurns(db, "u4", 0)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "reject", entries[0].Decision)
}

func TestRunTurn_EmptyRepliesCountAsFailure(t *testing.T) {
	gen := &scriptedGenerator{replies: []string{"", "  "}}
	o := newTestOrchestrator(t, DefaultConfig(), Deps{Generator: gen})
	sess := seededSession("u5", nil)
	before := sess.Clone()

	_, err := o.RunTurn(context.Background(), sess, "どうしたらいい？")
	assert.ErrorIs(t, err, ErrGeneration)
	assert.Len(t, gen.reqs, 2)
	assert.Equal(t, before, sess)
}

func TestRunTurn_RegenerationErrorKeepsFirstReply(t *testing.T) {
	gen := &scriptedGenerator{
		replies: []string{pressureReply},
		errs:    []error{nil, errors.New("timeout")},
	}
	o := newTestOrchestrator(t, DefaultConfig(), Deps{Generator: gen})
	sess := seededSession("u6", nil)

	res, err := o.RunTurn(context.Background(), sess, "既読無視されてる")
	require.NoError(t, err)
	assert.Equal(t, pressureReply, res.Reply)
	assert.Len(t, res.Attempts, 1)
}

// #endregion

// #region retry

func TestRunTurn_RetryReplacesPressureDraft(t *testing.T) {
	gen := &scriptedGenerator{replies: []string{pressureReply, cleanReply}}
	o := newTestOrchestrator(t, DefaultConfig(), Deps{Generator: gen})
	sess := seededSession("u7", nil)

	res, err := o.RunTurn(context.Background(), sess, "既読無視されてる")
	require.NoError(t, err)

	require.Len(t, gen.reqs, 2)
	assert.Empty(t, gen.reqs[0].Nudges)
	require.Len(t, gen.reqs[1].Nudges, 1)
	assert.Contains(t, gen.reqs[1].Nudges[0], "【修正指示】")

	assert.Equal(t, cleanReply, res.Reply)
	assert.Equal(t, 1, res.Accepted)
	assert.Equal(t, "落ち着いたらでいいよ", *sess.Plan.Draft)
}

func TestRunTurn_RetryDisabledKeepsFirstReply(t *testing.T) {
	gen := &scriptedGenerator{replies: []string{pressureReply, cleanReply}}
	cfg := DefaultConfig()
	cfg.Enabled = false
	o := newTestOrchestrator(t, cfg, Deps{Generator: gen})
	sess := seededSession("u8", nil)

	res, err := o.RunTurn(context.Background(), sess, "既読無視されてる")
	require.NoError(t, err)
	assert.Len(t, gen.reqs, 1)
	assert.Equal(t, pressureReply, res.Reply)
	assert.Equal(t, []Violation{ViolationPressure}, res.Final().Evaluation.Violations)
}

// #endregion

// #region multi-turn

func TestRunTurn_StreakAcrossTurns(t *testing.T) {
	gen := &scriptedGenerator{replies: []string{cleanReply}}
	o := newTestOrchestrator(t, DefaultConfig(), Deps{Generator: gen})
	sess := seededSession("u9", nil)
	ctx := context.Background()

	_, err := o.RunTurn(ctx, sess, "既読無視されてる")
	require.NoError(t, err)
	assert.Equal(t, 1, sess.IgnoreStreak)

	// a turn with no phase marker carries WAITING_REPLY without counting again
	_, err = o.RunTurn(ctx, sess, "ありがとう")
	require.NoError(t, err)
	assert.Equal(t, session.PhaseWaitingReply, sess.Phase)
	assert.Equal(t, 1, sess.IgnoreStreak)

	_, err = o.RunTurn(ctx, sess, "まだ既読スルー")
	require.NoError(t, err)
	assert.Equal(t, 2, sess.IgnoreStreak)

	_, err = o.RunTurn(ctx, sess, "返信きた！")
	require.NoError(t, err)
	assert.Equal(t, session.PhaseAfterReply, sess.Phase)
	assert.Equal(t, 0, sess.IgnoreStreak)
	assert.Equal(t, 4, sess.Turns)
}

func TestRunTurn_RepeatedSignatureAddsVaryPhrasing(t *testing.T) {
	gen := &scriptedGenerator{replies: []string{cleanReply}}
	o := newTestOrchestrator(t, DefaultConfig(), Deps{Generator: gen})
	sess := seededSession("u10", map[session.SlotName]string{session.SlotGoal: "make up"})
	ctx := context.Background()

	first, err := o.RunTurn(ctx, sess, "まだ送ってない。どうしよう")
	require.NoError(t, err)
	assert.False(t, first.Policy.Has(RuleVaryPhrasing))

	second, err := o.RunTurn(ctx, sess, "まだ送ってない。どうしよう")
	require.NoError(t, err)
	assert.True(t, second.Policy.Has(RuleVaryPhrasing))
}

func TestRunTurn_SummaryRefresh(t *testing.T) {
	gen := &scriptedGenerator{replies: []string{cleanReply}}
	sum := &fakeSummarizer{digest: "喧嘩後、謝罪文を準備中"}
	o := newTestOrchestrator(t, DefaultConfig(), Deps{Generator: gen, Summarizer: sum})
	sess := seededSession("u11", nil)
	sess.Turns = 5

	_, err := o.RunTurn(context.Background(), sess, "まだ送ってない")
	require.NoError(t, err)
	assert.Equal(t, 1, sum.calls)
	assert.Equal(t, "喧嘩後、謝罪文を準備中", sess.Summary)

	// a failed refresh keeps the previous digest
	sum.err = errors.New("quota")
	sum.digest = ""
	sess.Turns = 11
	_, err = o.RunTurn(context.Background(), sess, "まだ送ってない")
	require.NoError(t, err)
	assert.Equal(t, "喧嘩後、謝罪文を準備中", sess.Summary)
}

// #endregion

// #region collaborators

func TestRunTurn_SlotAssist(t *testing.T) {
	gen := &scriptedGenerator{replies: []string{cleanReply}}
	asst := &fakeAssistant{out: map[string]any{"goal": "make up", "relationshipStage": "dating", "bogus": "x"}}
	o := newTestOrchestrator(t, DefaultConfig(), Deps{Generator: gen, Assistant: asst})
	sess := seededSession("u12", nil)
	sess.History = []session.Turn{
		{Role: session.RoleUser, Text: "こんばんは"},
		{Role: session.RoleAssistant, Text: "いらっしゃい"},
		{Role: session.RoleUser, Text: "ちょっと聞いて"},
		{Role: session.RoleAssistant, Text: "どうしたの"},
	}

	_, err := o.RunTurn(context.Background(), sess, "どうしたらいいかな")
	require.NoError(t, err)
	assert.Equal(t, 1, asst.calls)
	assert.Equal(t, session.SlotValue{Value: "make up", Source: session.SourceAssist}, sess.Slots[session.SlotGoal])
	assert.Equal(t, "dating", sess.Slots.Get(session.SlotRelationshipStage))
	assert.NotContains(t, sess.Slots, session.SlotName("bogus"))
}

func TestRunTurn_AmbiguousImageAddsClarifyNudge(t *testing.T) {
	gen := &scriptedGenerator{replies: []string{"それ、誰のこと？先輩？友達？"}}
	o := newTestOrchestrator(t, DefaultConfig(), Deps{Generator: gen})
	sess := seededSession("u13", nil)
	sess.LastImage = &session.ImageInsight{Kind: "chat", Summary: "誰かとの会話", AmbiguousRefs: []string{"先輩"}}

	_, err := o.RunTurn(context.Background(), sess, "これどう思う？")
	require.NoError(t, err)
	require.NotEmpty(t, gen.reqs)
	assert.Equal(t, []string{clarifyNudge}, gen.reqs[0].Nudges)
	assert.Contains(t, gen.reqs[0].System, "先輩")
}

func TestRunTurn_RecapAndLogging(t *testing.T) {
	gen := &scriptedGenerator{replies: []string{pressureReply, cleanReply}}
	db := newTestDB(t)
	cfg := DefaultConfig()
	cfg.Recap = true
	o := newTestOrchestrator(t, cfg, Deps{Generator: gen, DB: db})
	sess := seededSession("u14", nil)

	res, err := o.RunTurn(context.Background(), sess, "既読無視されてる")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(res.Recap, "【次の一手】"))
	assert.Contains(t, res.Recap, "「落ち着いたらでいいよ」")

	entries, err := logging.ListTurns(db, "u14", 0)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	rec, err := logging.DecodeRecord(entries[0])
	require.NoError(t, err)
	assert.Equal(t, "UNKNOWN", rec.PriorPhase)
	assert.Equal(t, "WAITING_REPLY", rec.Phase)
	assert.Equal(t, "silence", rec.PhaseRule)
	assert.Equal(t, 1, rec.Streak)
	assert.Equal(t, 2, rec.Attempts)
	assert.Contains(t, rec.Rules, string(RuleNoScheduling))

	rate, n, err := o.Memory().ViolationRate(session.PhaseWaitingReply)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.InDelta(t, 0.5, rate, 1e-9)
}

func TestNew_RequiresGenerator(t *testing.T) {
	_, err := New(DefaultConfig(), Deps{})
	assert.Error(t, err)
}

// #endregion
