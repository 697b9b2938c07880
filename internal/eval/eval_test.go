package eval

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/danielpatrickdp/sara-line/go-bot/internal/orchestrator"
	"github.com/danielpatrickdp/sara-line/go-bot/internal/plan"
	"github.com/danielpatrickdp/sara-line/go-bot/internal/session"
)

const (
	waitReply    = "今は待つのが正解。\n追いLINEはまだしない。\n既読がついてるなら、ちゃんと届いてる。"
	sendReply    = "いい流れ。\n明日の夜にこれだけ送って。\n「ありがとう、落ち着いたらご飯行こう」"
	confirmReply = "それ、あたし（サラ）に送る？それとも相手に送る文面の話？"
	chaseReply   = "送って。\n「なんで返事くれないの？」"
)

// suiteGenerator answers each case with a reply that fits its expected action.
type suiteGenerator struct {
	byText map[string]string
	fixed  string
	err    error
}

func (g *suiteGenerator) Generate(_ context.Context, req orchestrator.GenerateRequest) (string, error) {
	if g.err != nil {
		return "", g.err
	}
	if g.fixed != "" {
		return g.fixed, nil
	}
	return g.byText[req.UserText], nil
}

func compliantGenerator() *suiteGenerator {
	g := &suiteGenerator{byText: map[string]string{}}
	for _, c := range Cases() {
		switch c.Expect.Action {
		case session.ActionWait:
			g.byText[c.UserText] = waitReply
		case session.ActionConfirm:
			g.byText[c.UserText] = confirmReply
		default:
			g.byText[c.UserText] = sendReply
		}
	}
	return g
}

func newHarness(t *testing.T, cfg EvalConfig, gen orchestrator.Generator) (*EvalHarness, *bytes.Buffer) {
	t.Helper()
	orch, err := orchestrator.New(orchestrator.DefaultConfig(), orchestrator.Deps{
		Generator: gen,
		Now:       func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) },
	})
	require.NoError(t, err)
	var out bytes.Buffer
	return NewEvalHarness(cfg, orch, &out, nil), &out
}

func TestCases_ClassifyToExpectedPhase(t *testing.T) {
	cases := Cases()
	require.Len(t, cases, 24)

	seen := map[string]bool{}
	for _, c := range cases {
		assert.False(t, seen[c.Name], "duplicate case name %q", c.Name)
		seen[c.Name] = true
		assert.NotEmpty(t, c.Expect.Phase, c.Name)
		assert.NotEmpty(t, c.Expect.Action, c.Name)

		sess := seedSession("u", c.Slots, time.Now())
		got := orchestrator.ClassifyPhase(c.UserText, sess.Phase, sess.Slots)
		assert.Equal(t, c.Expect.Phase, got.Phase, c.Name)
		assert.True(t, got.ByText, c.Name)
	}
}

func TestSeedSession(t *testing.T) {
	sess := seedSession("u", map[session.SlotName]string{session.SlotGoal: "make up"}, time.Now())
	assert.Equal(t, session.StagePaidChat, sess.Stage)
	assert.Equal(t, session.SlotValue{Value: "make up", Source: session.SourceIntake}, sess.Slots[session.SlotGoal])
}

func TestEvalHarness_AllCasesPass(t *testing.T) {
	reportPath := filepath.Join(t.TempDir(), "report.json")
	h, out := newHarness(t, EvalConfig{Repeat: 2, ReportPath: reportPath}, compliantGenerator())

	report, err := h.Run(context.Background(), Cases())
	require.NoError(t, err)

	for _, r := range report.Results {
		if ff := r.FirstFail(); ff != nil {
			t.Errorf("case %q failed: %v", r.Name, ff.Failures)
		}
	}
	assert.Equal(t, ReportSummary{Pass: 24, Fail: 0, Total: 24, FinishedAt: report.Summary.FinishedAt}, report.Summary)
	assert.Len(t, report.Results[0].Runs, 2)
	assert.Contains(t, out.String(), "RESULT: PASS")

	raw, err := os.ReadFile(reportPath)
	require.NoError(t, err)
	var decoded struct {
		Meta struct {
			Cases  int `json:"cases"`
			Repeat int `json:"repeat"`
		} `json:"meta"`
		Results []struct {
			Name string `json:"name"`
			Runs []struct {
				OutgoingDraft *string `json:"outgoingDraft"`
				Failures      []string
			} `json:"runs"`
		} `json:"results"`
		Summary struct {
			Pass int `json:"pass"`
		} `json:"summary"`
	}
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Equal(t, 24, decoded.Meta.Cases)
	assert.Equal(t, 2, decoded.Meta.Repeat)
	assert.Equal(t, 24, decoded.Summary.Pass)
	// first case waits, so it proposes no draft
	assert.Nil(t, decoded.Results[0].Runs[0].OutgoingDraft)
	assert.NotNil(t, decoded.Results[2].Runs[0].OutgoingDraft)
	assert.NotNil(t, decoded.Results[0].Runs[0].Failures)
}

func TestEvalHarness_FailFast(t *testing.T) {
	h, out := newHarness(t, EvalConfig{Repeat: 3, FailFast: true}, &suiteGenerator{fixed: chaseReply})

	report, err := h.Run(context.Background(), Cases())
	require.NoError(t, err)

	require.Len(t, report.Results, 1)
	res := report.Results[0]
	assert.False(t, res.OK)
	require.Len(t, res.Runs, 1)
	assert.Contains(t, res.Runs[0].Failures, "pressure: outgoing draft chases or blames")
	assert.Equal(t, 1, report.Summary.Fail)
	assert.Equal(t, 1, report.Summary.Total)
	assert.Contains(t, out.String(), "first_fail_iteration: 1")
}

func TestEvalHarness_GeneratorError(t *testing.T) {
	h, _ := newHarness(t, EvalConfig{Repeat: 1}, &suiteGenerator{err: errors.New("timeout")})

	res := h.RunCase(context.Background(), Cases()[0])
	assert.False(t, res.OK)
	require.Len(t, res.Runs, 1)
	require.Len(t, res.Runs[0].Failures, 1)
	assert.Contains(t, res.Runs[0].Failures[0], "generation:")
}

func TestEvalHarness_CanceledContext(t *testing.T) {
	h, _ := newHarness(t, EvalConfig{Repeat: 1}, compliantGenerator())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := h.Run(ctx, Cases())
	assert.ErrorIs(t, err, context.Canceled)
}

func TestValidatePlan(t *testing.T) {
	act := func(a session.Action) session.Plan { return session.Plan{Action: &a} }
	waiting := Case{Expect: Expectation{Phase: session.PhaseWaitingReply, Action: session.ActionWait}}
	sending := Case{Expect: Expectation{Phase: session.PhaseAfterReply, Action: session.ActionSend}}
	confirm := Case{Expect: Expectation{Phase: session.PhaseBeforeSend, Action: session.ActionConfirm}}
	clarifyOK := Case{Expect: Expectation{Phase: session.PhaseBeforeSend, Action: session.ActionSend}, AllowRecipientClarify: true}
	drafting := Case{Expect: Expectation{Phase: session.PhaseBeforeSend, Action: session.ActionSend}}
	timed := func(a session.Action, timing string) session.Plan {
		p := act(a)
		p.Timing = &timing
		return p
	}

	tests := []struct {
		name string
		c    Case
		in   CheckInput
		want bool
	}{
		{"wait", waiting, CheckInput{Phase: session.PhaseWaitingReply, Plan: act(session.ActionWait)}, true},
		{"low-pressure send while waiting", waiting, CheckInput{Phase: session.PhaseWaitingReply, Plan: act(session.ActionSend), Draft: "落ち着いたらでいいよ"}, true},
		{"plain send while waiting", waiting, CheckInput{Phase: session.PhaseWaitingReply, Plan: act(session.ActionSend), Draft: "会おうよ"}, false},
		{"observe while waiting", waiting, CheckInput{Phase: session.PhaseWaitingReply, Plan: act(session.ActionObserve)}, false},
		{"send without draft", sending, CheckInput{Phase: session.PhaseAfterReply, Plan: act(session.ActionSend)}, false},
		{"after reply tolerates action noise", sending, CheckInput{Phase: session.PhaseAfterReply, Plan: act(session.ActionWait), Draft: "ありがとう"}, true},
		{"unknown phase needs send action", sending, CheckInput{Phase: session.PhaseUnknown, Plan: act(session.ActionWait), Draft: "ありがとう"}, false},
		{"unknown phase with send", sending, CheckInput{Phase: session.PhaseUnknown, Plan: act(session.ActionSend), Draft: "ありがとう"}, true},
		{"confirm without question", confirm, CheckInput{Phase: session.PhaseBeforeSend, Plan: act(session.ActionConfirm), Reply: "送っていいよ"}, false},
		{"confirm with question", confirm, CheckInput{Phase: session.PhaseBeforeSend, Reply: confirmReply}, true},
		{"clarify replaces send", clarifyOK, CheckInput{Phase: session.PhaseBeforeSend, Reply: confirmReply}, true},
		{"before send with timing", drafting, CheckInput{Phase: session.PhaseBeforeSend, Plan: timed(session.ActionSend, "明日の夜"), Draft: "昨日はごめんね"}, true},
		{"before send without timing", drafting, CheckInput{Phase: session.PhaseBeforeSend, Plan: act(session.ActionSend), Draft: "昨日はごめんね"}, false},
		{"before send timing without draft", drafting, CheckInput{Phase: session.PhaseBeforeSend, Plan: timed(session.ActionSend, "今夜")}, false},
		{"wait outside waiting is strict", Case{Expect: Expectation{Action: session.ActionWait}}, CheckInput{Phase: session.PhaseBeforeSend, Plan: act(session.ActionSend)}, false},
		{"no expectation", Case{}, CheckInput{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, reason := ValidatePlan(tt.c, tt.in)
			if got != tt.want {
				t.Fatalf("ValidatePlan() = %v (%s), want %v", got, reason, tt.want)
			}
			if !got && reason == "" {
				t.Error("failing check should carry a reason")
			}
		})
	}
}

func TestCheck(t *testing.T) {
	waiting := Case{Expect: Expectation{Phase: session.PhaseWaitingReply, Action: session.ActionWait}}
	wait := session.ActionWait

	failed := func(ms []EvalMetric) []string {
		var names []string
		for _, m := range ms {
			if !m.Pass {
				names = append(names, m.Name)
			}
		}
		return names
	}

	t.Run("don't-say example is not a draft", func(t *testing.T) {
		reply := "NG例：「なんで返事くれないの？」\n今は待つのが正解。"
		ms := Check(waiting, CheckInput{
			Phase:  session.PhaseWaitingReply,
			Reply:  reply,
			Plan:   session.Plan{Action: &wait},
			Drafts: plan.ProposedDrafts(reply),
		})
		assert.Empty(t, failed(ms))
	})

	t.Run("format and phase", func(t *testing.T) {
		reply := "【結論】待つ。\n- a\n- b\n- c\n- d"
		ms := Check(waiting, CheckInput{
			Phase: session.PhaseAfterReply,
			Reply: reply,
			Plan:  session.Plan{Action: &wait},
		})
		assert.ElementsMatch(t, []string{"phase", "headings", "bullets"}, failed(ms))
	})

	t.Run("forced choice in plan draft", func(t *testing.T) {
		ms := Check(waiting, CheckInput{
			Phase: session.PhaseWaitingReply,
			Reply: "待つのが正解。",
			Plan:  session.Plan{Action: &wait},
			Draft: "土曜と日曜どっちがいい？",
		})
		assert.Equal(t, []string{"forced_choice"}, failed(ms))
	})
}
