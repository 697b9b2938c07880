// Package eval runs the fixed scenario suite through the paid-turn pipeline and
// checks that every repetition lands on a compliant reply.
package eval

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/samber/lo"

	"github.com/danielpatrickdp/sara-line/go-bot/internal/logging"
	"github.com/danielpatrickdp/sara-line/go-bot/internal/orchestrator"
	"github.com/danielpatrickdp/sara-line/go-bot/internal/plan"
	"github.com/danielpatrickdp/sara-line/go-bot/internal/session"
)

// #region eval-harness
// EvalHarness runs cases against an orchestrator. Each repetition starts from a
// fresh paid session seeded with the case's intake answers.
type EvalHarness struct {
	config EvalConfig
	orch   *orchestrator.Orchestrator
	out    io.Writer
	log    *log.Logger
	now    func() time.Time
}

// NewEvalHarness creates a harness. out receives the human-readable log and may be nil.
func NewEvalHarness(config EvalConfig, orch *orchestrator.Orchestrator, out io.Writer, logger *log.Logger) *EvalHarness {
	if config.Repeat <= 0 {
		config.Repeat = DefaultEvalConfig().Repeat
	}
	if out == nil {
		out = io.Discard
	}
	return &EvalHarness{
		config: config,
		orch:   orch,
		out:    out,
		log:    logging.ForComponent(logger, "eval"),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Run executes every case and returns the report. It writes the report to
// ReportPath when one is configured.
func (h *EvalHarness) Run(ctx context.Context, cases []Case) (Report, error) {
	report := Report{
		Meta: ReportMeta{
			Cases:          len(cases),
			Repeat:         h.config.Repeat,
			FailFast:       h.config.FailFast,
			ShowPassOutput: h.config.ShowPassOutput,
			StartedAt:      h.now(),
		},
		Results: []EvalResult{},
	}
	fmt.Fprintf(h.out, "EVAL CONFIG: cases=%d repeat=%d fail_fast=%t\n", len(cases), h.config.Repeat, h.config.FailFast)

	for _, c := range cases {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		res := h.RunCase(ctx, c)
		report.Results = append(report.Results, res)
		h.print(res)
		if res.OK {
			report.Summary.Pass++
			continue
		}
		report.Summary.Fail++
		if h.config.FailFast {
			break
		}
	}
	report.Summary.Total = report.Summary.Pass + report.Summary.Fail
	report.Summary.FinishedAt = h.now()
	h.log.Info("eval finished", "pass", report.Summary.Pass, "fail", report.Summary.Fail)

	if h.config.ReportPath != "" {
		if err := WriteReport(h.config.ReportPath, report); err != nil {
			return report, err
		}
	}
	return report, nil
}

// RunCase repeats one case. A case passes only if every repetition passes.
func (h *EvalHarness) RunCase(ctx context.Context, c Case) EvalResult {
	res := EvalResult{Name: c.Name, Expected: c.Expect, OK: true}
	for i := 1; i <= h.config.Repeat; i++ {
		run := h.runOnce(ctx, c, i)
		res.Runs = append(res.Runs, run)
		if !run.OK {
			res.OK = false
			if h.config.FailFast {
				break
			}
		}
	}
	return res
}

func (h *EvalHarness) runOnce(ctx context.Context, c Case, iteration int) RunResult {
	sess := seedSession(fmt.Sprintf("eval-%d", iteration), c.Slots, h.now())
	turn, err := h.orch.RunTurn(ctx, sess, c.UserText)
	if err != nil {
		h.log.Warn("turn failed", "case", c.Name, "iteration", iteration, "err", err)
		return RunResult{
			Iteration: iteration,
			Phase:     turn.Classification.Phase,
			TempScore: turn.Policy.Temperature,
			Failures:  []string{"generation: " + err.Error()},
		}
	}

	p := turn.Plan.Plan
	draft := orchestrator.PickOutgoingDraft(turn.Reply, p)
	metrics := Check(c, CheckInput{
		Phase:  turn.Classification.Phase,
		Reply:  turn.Reply,
		Plan:   p,
		Draft:  draft,
		Drafts: plan.ProposedDrafts(turn.Reply),
	})
	failures := lo.FilterMap(metrics, func(m EvalMetric, _ int) (string, bool) {
		return m.Name + ": " + m.Detail, !m.Pass
	})

	run := RunResult{
		Iteration: iteration,
		OK:        len(failures) == 0,
		Phase:     turn.Classification.Phase,
		TempScore: turn.Policy.Temperature,
		Plan:      &p,
		Failures:  failures,
		Metrics:   metrics,
		Reply:     turn.Reply,
	}
	if draft != "" {
		run.OutgoingDraft = &draft
	}
	if run.Failures == nil {
		run.Failures = []string{}
	}
	return run
}

// seedSession is a paid-chat session holding the intake answers.
func seedSession(userID string, answers map[session.SlotName]string, now time.Time) *session.Session {
	sess := session.New(userID, now)
	sess.Stage = session.StagePaidChat
	for name, v := range answers {
		sess.Slots.Set(name, v, session.SourceIntake)
	}
	return sess
}

// #endregion eval-harness

// #region checks
// CheckInput is what one run produced.
type CheckInput struct {
	Phase  session.Phase
	Reply  string
	Plan   session.Plan
	Draft  string   // the outgoing draft, "" when none was found
	Drafts []string // every quoted span the reply proposes
}

// Check scores one run. Phrasing checks look only at drafts meant to be sent;
// don't-say examples in the reply are not drafts.
func Check(c Case, in CheckInput) []EvalMetric {
	var metrics []EvalMetric
	add := func(name string, pass bool, detail string) {
		m := EvalMetric{Name: name, Pass: pass}
		if !pass {
			m.Detail = detail
		}
		metrics = append(metrics, m)
	}

	outgoing := in.Drafts
	if in.Draft != "" {
		outgoing = append([]string{in.Draft}, outgoing...)
	}

	add("phase", c.Expect.Phase == "" || in.Phase == c.Expect.Phase,
		fmt.Sprintf("expected %s, got %s", c.Expect.Phase, in.Phase))
	add("pressure", !lo.SomeBy(outgoing, plan.IsPressure),
		"outgoing draft chases or blames")
	add("forced_choice", !lo.SomeBy(outgoing, plan.IsForcedChoice),
		"outgoing draft asks the recipient to pick")
	add("headings", !orchestrator.HasForbiddenHeadings(in.Reply),
		"verdict heading in reply")
	add("dense", !orchestrator.IsDenseParagraph(in.Reply),
		"long reply without line breaks")
	add("bullets", orchestrator.CountBulletLines(in.Reply) <= orchestrator.MaxBulletLines,
		fmt.Sprintf("more than %d bullet lines", orchestrator.MaxBulletLines))

	ok, reason := ValidatePlan(c, in)
	add("plan", ok, reason)
	return metrics
}

// ValidatePlan applies the phase-aware action check. WAITING_REPLY accepts a
// low-pressure send in place of wait, and a send expectation in BEFORE_SEND or
// AFTER_REPLY is met by any extractable draft. BEFORE_SEND also needs a timing.
func ValidatePlan(c Case, in CheckInput) (bool, string) {
	expected := c.Expect.Action
	if expected == "" {
		return true, ""
	}
	if c.AllowRecipientClarify && orchestrator.IsRecipientClarify(in.Reply) {
		return true, ""
	}
	action := in.Plan.ActionOr("")

	switch {
	case expected == session.ActionConfirm:
		if orchestrator.IsRecipientClarify(in.Reply) {
			return true, ""
		}
		return false, "expected a recipient question, none asked"

	case expected == session.ActionWait && in.Phase == session.PhaseWaitingReply:
		switch {
		case action == session.ActionWait:
			return true, ""
		case action == session.ActionSend && orchestrator.IsLowPressureDraft(in.Draft):
			return true, ""
		case action == session.ActionSend:
			return false, "send while waiting is not a low-pressure draft"
		}
		return false, fmt.Sprintf("action %q does not fit WAITING_REPLY", orNone(action))

	case expected == session.ActionSend:
		if strings.TrimSpace(in.Draft) == "" {
			return false, "expected send, no outgoing draft found"
		}
		if c.Expect.Phase == session.PhaseBeforeSend && in.Plan.Timing == nil {
			return false, "expected send with timing, plan has none"
		}
		if in.Phase == session.PhaseBeforeSend || in.Phase == session.PhaseAfterReply || action == session.ActionSend {
			return true, ""
		}
		return false, fmt.Sprintf("action %q, expected send (phase %s)", orNone(action), in.Phase)
	}

	if action != expected {
		return false, fmt.Sprintf("action %q, expected %s", orNone(action), expected)
	}
	return true, ""
}

func orNone(a session.Action) string {
	if a == "" {
		return "none"
	}
	return string(a)
}

// #endregion checks

// #region report
// WriteReport writes the report as indented JSON.
func WriteReport(path string, r Report) error {
	raw, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("encode report: %w", err)
	}
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	return nil
}

func (h *EvalHarness) print(res EvalResult) {
	w := h.out
	fmt.Fprintf(w, "\n==============================\nEVAL: %s\n", res.Name)
	fmt.Fprintf(w, "expected phase: %s  expected action: %s\nrepeat: %d\n", res.Expected.Phase, res.Expected.Action, len(res.Runs))

	show := func(r RunResult) {
		fmt.Fprintf(w, "phase: %s  tempScore: %d\n", r.Phase, r.TempScore)
		fmt.Fprintf(w, "outgoingDraft: %s\n", lo.FromPtrOr(r.OutgoingDraft, "（なし）"))
		if r.Plan != nil {
			fmt.Fprintf(w, "plan: action=%s timing=%s draft=%s ng=%v\n",
				r.Plan.ActionOr(""), lo.FromPtrOr(r.Plan.Timing, "-"), lo.FromPtrOr(r.Plan.Draft, "-"), r.Plan.NG)
		}
	}

	if res.OK {
		last := res.Runs[len(res.Runs)-1]
		fmt.Fprintln(w, "RESULT: PASS")
		show(last)
		if h.config.ShowPassOutput {
			fmt.Fprintf(w, "\n--- REPLY (pass sample) ---\n%s\n--- END ---\n", last.Reply)
		}
		return
	}

	ff := res.FirstFail()
	fmt.Fprintln(w, "RESULT: FAIL (unstable or violated)")
	fmt.Fprintf(w, "first_fail_iteration: %d\n", ff.Iteration)
	show(*ff)
	for _, f := range ff.Failures {
		fmt.Fprintf(w, " - %s\n", f)
	}
	fmt.Fprintf(w, "\n--- REPLY (for debug) ---\n%s\n--- END ---\n", ff.Reply)
}

// #endregion report
