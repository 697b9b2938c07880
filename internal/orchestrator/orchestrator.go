package orchestrator

// #region imports
import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"github.com/samber/lo"

	"github.com/danielpatrickdp/sara-line/go-bot/internal/gate"
	"github.com/danielpatrickdp/sara-line/go-bot/internal/logging"
	"github.com/danielpatrickdp/sara-line/go-bot/internal/plan"
	"github.com/danielpatrickdp/sara-line/go-bot/internal/session"
	"github.com/danielpatrickdp/sara-line/go-bot/internal/signals"
	"github.com/danielpatrickdp/sara-line/go-bot/internal/slots"
	"github.com/danielpatrickdp/sara-line/go-bot/internal/update"
)

// #endregion

// #region errors

// ErrGeneration means the advice generator failed; the session must not be committed.
var ErrGeneration = errors.New("advice generation failed")

// ApologyReply is the in-character reply shown when generation fails.
const ApologyReply = "うまく読めなかったわ💋 もう一回送って。"

// #endregion

// #region config

// Config tunes the paid-turn pipeline.
type Config struct {
	Enabled        bool // regeneration on violations; false keeps the first reply
	HistoryWindow  int  // turns passed to the generator
	AssistMinTurns int  // user turns before the slot assistant may run
	Recap          bool // append a one-line plan recap to the reply
	Update         update.UpdateConfig
	Gate           gate.GateConfig
	Producer       signals.ProducerConfig
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		Enabled:        true,
		HistoryWindow:  20,
		AssistMinTurns: 3,
		Update:         update.DefaultUpdateConfig(),
		Gate:           gate.DefaultGateConfig(),
		Producer:       signals.DefaultProducerConfig(),
	}
}

// Deps are the collaborators. Only Generator is required.
type Deps struct {
	Generator  Generator
	Plans      PlanExtractor
	Assistant  slots.Assistant
	Summarizer Summarizer
	DB         *sql.DB // turn_log and turn_outcomes; nil disables both
	Logger     *log.Logger
	Now        func() time.Time
}

// #endregion

// #region orchestrator-struct

// Orchestrator runs one paid turn: classify, build policy, generate, check,
// extract the plan and commit through the gate.
type Orchestrator struct {
	cfg      Config
	deps     Deps
	producer *signals.Producer
	retry    *RetryEngine
	gate     *gate.Gate
	memory   *OutcomeMemory
	log      *log.Logger
	now      func() time.Time
}

// New creates a fully wired orchestrator.
func New(cfg Config, deps Deps) (*Orchestrator, error) {
	if deps.Generator == nil {
		return nil, errors.New("orchestrator: generator is required")
	}
	if deps.Plans == nil {
		deps.Plans = plan.NewExtractor(nil, deps.Logger)
	}
	now := deps.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}

	o := &Orchestrator{
		cfg:      cfg,
		deps:     deps,
		producer: signals.NewProducer(cfg.Producer),
		retry:    NewRetryEngine(cfg.Enabled),
		gate:     gate.NewGate(cfg.Gate),
		log:      logging.ForComponent(deps.Logger, "orch"),
		now:      now,
	}
	if deps.DB != nil {
		mem, err := NewOutcomeMemory(deps.DB)
		if err != nil {
			return nil, fmt.Errorf("outcome memory: %w", err)
		}
		o.memory = mem
	}
	return o, nil
}

// Enabled returns whether regeneration is active.
func (o *Orchestrator) Enabled() bool {
	return o.cfg.Enabled
}

// Memory returns the outcome memory, or nil when no database was given.
func (o *Orchestrator) Memory() *OutcomeMemory {
	return o.memory
}

// #endregion

// #region run-turn

// RunTurn runs one paid turn against sess, which the caller holds under the
// per-user lock. sess is replaced only when the gate commits. On generator
// failure sess is untouched and the error wraps ErrGeneration; the result still
// carries ApologyReply for the user.
func (o *Orchestrator) RunTurn(ctx context.Context, sess *session.Session, text string) (TurnResult, error) {
	text = strings.TrimSpace(text)
	res := TurnResult{TurnID: uuid.NewString(), Accepted: -1}
	prior := sess.Phase

	// 1. Signals and slots, on a scratch copy so classification sees this turn's facts
	imageSummary := ""
	if sess.LastImage != nil {
		imageSummary = sess.LastImage.Summary
	}
	sig := o.producer.Produce(signals.ProduceInput{UserText: text, ImageSummary: imageSummary})

	var labels *session.Labels
	if declared, ok := slots.ParseLabels(text); ok {
		labels = &declared
	}

	working := sess.Slots.Clone()
	textUpdates := slots.Extract(text, working)
	slots.Merge(working, textUpdates, session.SourceText)

	var assistUpdates slots.Updates
	if o.deps.Assistant != nil && slots.NeedsAssist(working, userTurns(sess.History)+1, o.cfg.AssistMinTurns) {
		ar := slots.Assist(ctx, o.deps.Assistant, text, working)
		if ar.Err != nil {
			o.log.Warn("slot assist unavailable", "err", ar.Err)
		}
		assistUpdates = ar.Updates
		slots.Merge(working, assistUpdates, session.SourceAssist)
	}

	// 2. Phase, streak, mode
	class := ClassifyPhase(text, sess.Phase, working)
	streak := UpdateIgnoreStreak(sess.IgnoreStreak, class)
	mode := ClassifyMode(text, sess.Mode)
	res.Classification = class
	res.Mode = mode

	o.log.Info("classify", "turn", res.TurnID, "phase", class.Phase, "rule", class.Rule,
		"by_text", class.ByText, "streak", streak, "mode", mode)

	// 3. Policy and prompt
	signature := AdviceSignature(class.Phase, QuotedSpan(text), ShortFacts(working))
	repeated := sess.LastAdviceSignature != "" && signature == sess.LastAdviceSignature
	policy := BuildPolicy(PolicyInput{
		Slots:        working,
		Phase:        class.Phase,
		IgnoreStreak: streak,
		Text:         text,
		Repeated:     repeated,
	})
	res.Policy = policy

	effectiveLabels := sess.Labels
	if labels != nil {
		effectiveLabels = slots.ApplyLabels(effectiveLabels, *labels)
	}
	var nudges []string
	if NeedsClarify(sess.LastImage, sig.AmbiguousPersons) {
		nudges = append(nudges, clarifyNudge)
	}
	req := GenerateRequest{
		System: BuildSystemPrompt(PromptInput{
			Slots:     working,
			Phase:     class.Phase,
			Mode:      mode,
			Summary:   sess.Summary,
			LastImage: sess.LastImage,
			Labels:    effectiveLabels,
			Policy:    policy,
		}),
		Nudges:   nudges,
		History:  HistoryWindow(sess.History, o.cfg.HistoryWindow),
		UserText: text,
	}

	// 4. Generate with at most one corrective regeneration
	attempts, genErr := o.generate(ctx, req, class.Phase, streak)
	res.Attempts = attempts
	if genErr != nil {
		res.Reply = ApologyReply
		res.Gate = o.gate.Evaluate(sess, sess, gate.TurnSignals{GeneratorFailed: true})
		o.log.Error("generation failed", "turn", res.TurnID, "err", genErr)
		o.logTurn(sess, prior, text, res, policy, sig, streak)
		return res, fmt.Errorf("%w: %v", ErrGeneration, genErr)
	}
	res.Accepted = BestAttempt(attempts)
	reply := attempts[res.Accepted].Reply
	res.Reply = reply

	// 5. Plan
	res.Plan = o.deps.Plans.Extract(ctx, reply)
	if res.Plan.Err != nil {
		o.log.Warn("plan fallback", "turn", res.TurnID, "source", res.Plan.Source, "err", res.Plan.Err)
	}
	if o.cfg.Recap && res.Plan.Source != session.PlanUnavailable {
		res.Recap = Recap(res.Plan.Plan)
	}

	// 6. Pure update, then the gate
	summaryDue := o.gate.SummaryDue(sess.Turns+1, sess.LastImportantEventTurn, sig.ImportantEvent())
	up := update.Update(sess, update.UpdateContext{
		TurnID:        res.TurnID,
		UserText:      text,
		Reply:         reply,
		Phase:         class.Phase,
		IgnoreStreak:  streak,
		Mode:          mode,
		SlotUpdates:   textUpdates,
		AssistUpdates: assistUpdates,
		Labels:        labels,
		Plan:          res.Plan.Plan,
		PlanSource:    res.Plan.Source,
		Signature:     signature,
		Event:         sig.ImportantEvent(),
		SummaryDue:    summaryDue,
		Now:           o.now(),
	}, o.cfg.Update)
	res.Update = up.Decision

	res.Gate = o.gate.Evaluate(sess, up.NewSession, gate.TurnSignals{Reply: reply})
	if res.Gate.Vetoed {
		o.log.Warn("gate rejected turn", "turn", res.TurnID, "reason", res.Gate.Reason)
		o.recordOutcomes(sess.UserID, res, class.Phase)
		o.logTurn(sess, prior, text, res, policy, sig, streak)
		return res, nil
	}

	// 7. Summary refresh; failure keeps the old digest
	next := up.NewSession
	if summaryDue && o.deps.Summarizer != nil {
		digest, err := o.deps.Summarizer.Summarize(ctx, next.Summary, next.History)
		switch {
		case err != nil:
			o.log.Warn("summary refresh failed", "turn", res.TurnID, "err", err)
		case strings.TrimSpace(digest) != "":
			next.Summary = strings.TrimSpace(digest)
		}
	}

	*sess = *next
	o.recordOutcomes(sess.UserID, res, class.Phase)
	o.logTurn(sess, prior, text, res, policy, sig, streak)
	return res, nil
}

// #endregion

// #region generate

func (o *Orchestrator) generate(ctx context.Context, req GenerateRequest, phase session.Phase, streak int) ([]Attempt, error) {
	base := append([]string{}, req.Nudges...)
	var attempts []Attempt
	nudge := ""
	for {
		reply, err := o.deps.Generator.Generate(ctx, req)
		if err != nil {
			if len(attempts) > 0 {
				// keep the earlier reply rather than failing the turn
				o.log.Warn("regeneration failed", "err", err)
				break
			}
			return nil, err
		}
		eval := EvaluateReply(reply, phase, streak)
		attempts = append(attempts, Attempt{Reply: strings.TrimSpace(reply), Nudge: nudge, Evaluation: eval})

		o.log.Debug("evaluate", "attempt", len(attempts), "violations", eval.Violations)

		retry, next := o.retry.ShouldRetry(attempts)
		if !retry {
			break
		}
		o.log.Info("retry", "violations", eval.Violations)
		nudge = next
		req.Nudges = append(append([]string{}, base...), next)
	}

	if lo.EveryBy(attempts, func(a Attempt) bool { return a.Reply == "" }) {
		return attempts, errors.New("generator returned an empty reply")
	}
	return attempts, nil
}

// #endregion

// #region recap

// Recap renders a plan as a one-line reminder appended under the reply.
func Recap(p session.Plan) string {
	if p.Action == nil {
		return ""
	}
	labels := map[session.Action]string{
		session.ActionSend:    "送る",
		session.ActionWait:    "待つ",
		session.ActionConfirm: "確認する",
		session.ActionObserve: "様子を見る",
	}
	parts := []string{labels[*p.Action]}
	if p.Timing != nil {
		parts = append(parts, *p.Timing)
	}
	if p.Draft != nil {
		parts = append(parts, "「"+*p.Draft+"」")
	}
	return "【次の一手】" + strings.Join(parts, "／")
}

// #endregion

// #region record

func (o *Orchestrator) recordOutcomes(userID string, res TurnResult, phase session.Phase) {
	if o.memory == nil {
		return
	}
	action := res.Plan.Plan.ActionOr(session.ActionObserve)
	for i, a := range res.Attempts {
		rec := OutcomeRecord{
			TurnID:     res.TurnID,
			UserID:     userID,
			Phase:      phase,
			Action:     action,
			PlanSource: res.Plan.Source,
			AttemptNum: i,
			Violation:  a.Evaluation.First(),
			Accepted:   i == res.Accepted && !res.Gate.Vetoed,
			CreatedAt:  o.now(),
		}
		if err := o.memory.RecordOutcome(rec); err != nil {
			o.log.Error("failed to record outcome", "err", err)
		}
	}
}

func (o *Orchestrator) logTurn(sess *session.Session, prior session.Phase, text string, res TurnResult, policy PolicyBundle, sig signals.Signals, streak int) {
	if o.deps.DB == nil {
		return
	}
	flat := make(map[string]string, len(sess.Slots))
	for name, v := range sess.Slots {
		flat[string(name)] = v.Value
	}
	rec := logging.TurnRecord{
		TurnID:     res.TurnID,
		UserID:     sess.UserID,
		UserText:   text,
		Reply:      res.Reply,
		PriorPhase: string(prior),
		Phase:      string(res.Classification.Phase),
		PhaseRule:  res.Classification.Rule,
		ByText:     res.Classification.ByText,
		Streak:     streak,
		Mode:       string(res.Mode),
		Slots:      flat,
		Rules:      policy.IDs(),
		Signals: logging.TurnRecordSignals{
			LowEnergy: sig.LowEnergy,
			Eager:     sig.Eager,
			Event:     string(sig.Event),
			Short:     sig.Short,
		},
		PlanSource: string(res.Plan.Source),
		Attempts:   len(res.Attempts),
		GateAction: res.Gate.Action,
		GateVetoed: res.Gate.Vetoed,
		GateReason: res.Gate.Reason,
	}
	if res.Plan.Plan.Action != nil {
		rec.Action = string(*res.Plan.Plan.Action)
	}
	if a := res.Final(); len(a.Evaluation.Violations) > 0 {
		rec.Violations = lo.Map(a.Evaluation.Violations, func(v Violation, _ int) string { return string(v) })
	}
	if err := logging.LogRecord(o.deps.DB, rec); err != nil {
		o.log.Error("failed to log turn", "err", err)
	}
}

// #endregion

// #region helpers

func userTurns(history []session.Turn) int {
	return lo.CountBy(history, func(t session.Turn) bool { return t.Role == session.RoleUser })
}

// #endregion
