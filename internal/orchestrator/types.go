package orchestrator

// #region imports
import (
	"context"
	"time"

	"github.com/danielpatrickdp/sara-line/go-bot/internal/gate"
	"github.com/danielpatrickdp/sara-line/go-bot/internal/plan"
	"github.com/danielpatrickdp/sara-line/go-bot/internal/session"
	"github.com/danielpatrickdp/sara-line/go-bot/internal/update"
)

// #endregion

// #region phase-classification

// PhaseClassification is the classifier's verdict for one user message.
// ByText is false when the phase was carried forward or inferred from slots.
type PhaseClassification struct {
	Phase  session.Phase
	ByText bool
	Rule   string // name of the rule that fired, or the fallback used
}

// #endregion

// #region violation

// Violation names something wrong with a generated reply.
type Violation string

const (
	ViolationEmpty        Violation = "empty"
	ViolationPressure     Violation = "pressure"
	ViolationForcedChoice Violation = "forced_choice"
	ViolationScheduling   Violation = "scheduling"
	ViolationHeading      Violation = "heading"
	ViolationDense        Violation = "dense"
	ViolationBullets      Violation = "bullets"
)

// #endregion

// #region reply-evaluation

// ReplyEvaluation is the output of checking a generated reply.
type ReplyEvaluation struct {
	Violations  []Violation
	Draft       string // outgoing message the reply proposes, if any
	ShouldRetry bool
}

// Clean reports whether no violation was found.
func (e ReplyEvaluation) Clean() bool {
	return len(e.Violations) == 0
}

// First returns the first violation or "none".
func (e ReplyEvaluation) First() string {
	if len(e.Violations) == 0 {
		return "none"
	}
	return string(e.Violations[0])
}

// #endregion

// #region attempt

// Attempt records one generation attempt within a turn.
type Attempt struct {
	Reply      string
	Nudge      string // corrective instruction added for this attempt, empty on the first
	Evaluation ReplyEvaluation
}

// #endregion

// #region outcome-record

// OutcomeRecord is a single row for turn_outcomes.
type OutcomeRecord struct {
	TurnID     string
	UserID     string
	Phase      session.Phase
	Action     session.Action
	PlanSource session.PlanSource
	AttemptNum int
	Violation  string
	Accepted   bool
	CreatedAt  time.Time
}

// #endregion

// #region collaborators

// GenerateRequest is everything the advice generator sees for one turn.
type GenerateRequest struct {
	System   string
	Nudges   []string // extra system messages, in order
	History  []session.Turn
	UserText string
}

// Generator produces the user-visible reply. Output is untrusted text.
type Generator interface {
	Generate(ctx context.Context, req GenerateRequest) (string, error)
}

// Summarizer rewrites the rolling conversation digest.
type Summarizer interface {
	Summarize(ctx context.Context, previous string, history []session.Turn) (string, error)
}

// PlanExtractor turns a reply into a plan. *plan.Extractor satisfies it.
type PlanExtractor interface {
	Extract(ctx context.Context, text string) plan.Result
}

// #endregion

// #region turn-result

// TurnResult is what one paid turn produced.
type TurnResult struct {
	TurnID         string
	Reply          string
	Recap          string
	Classification PhaseClassification
	Mode           session.Mode
	Policy         PolicyBundle
	Plan           plan.Result
	Attempts       []Attempt
	Accepted       int // index into Attempts
	Gate           gate.GateDecision
	Update         update.Decision
}

// Final returns the accepted attempt.
func (r TurnResult) Final() Attempt {
	if r.Accepted < 0 || r.Accepted >= len(r.Attempts) {
		return Attempt{}
	}
	return r.Attempts[r.Accepted]
}

// Committed reports whether the gate let the turn change the session.
func (r TurnResult) Committed() bool {
	return r.Gate.Action == "commit"
}

// #endregion
