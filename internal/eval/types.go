package eval

import (
	"time"

	"github.com/danielpatrickdp/sara-line/go-bot/internal/session"
)

// #region eval-config
// EvalConfig controls how the scenario suite is run.
type EvalConfig struct {
	Repeat         int    // runs per case; every run must pass
	FailFast       bool   // stop at the first failing run
	ShowPassOutput bool   // print the generated reply for passing cases too
	ReportPath     string // JSON report destination, empty disables it
}

// DefaultEvalConfig returns the settings used by `sara eval`.
func DefaultEvalConfig() EvalConfig {
	return EvalConfig{
		Repeat:     3,
		ReportPath: "eval_report.json",
	}
}

// #endregion eval-config

// #region case
// Expectation is what a case must land on.
type Expectation struct {
	Phase  session.Phase  `json:"phase"`
	Action session.Action `json:"action"`
}

// Case is one fixed scenario: intake answers, the user's message and the
// expected outcome.
type Case struct {
	Name     string
	Slots    map[session.SlotName]string
	UserText string
	Expect   Expectation
	// AllowRecipientClarify accepts a single "is this for me or for them?" question
	// in place of the expected action.
	AllowRecipientClarify bool
}

// #endregion case

// #region eval-metric
// EvalMetric captures a single check on one run.
type EvalMetric struct {
	Name   string `json:"name"`
	Pass   bool   `json:"pass"`
	Detail string `json:"detail,omitempty"`
}

// #endregion eval-metric

// #region run-result
// RunResult is one repetition of a case.
type RunResult struct {
	Iteration     int           `json:"iteration"`
	OK            bool          `json:"ok"`
	Phase         session.Phase `json:"phase"`
	TempScore     int           `json:"tempScore"`
	OutgoingDraft *string       `json:"outgoingDraft"`
	Plan          *session.Plan `json:"plan"`
	Failures      []string      `json:"failures"`
	Metrics       []EvalMetric  `json:"-"`
	Reply         string        `json:"-"`
}

// #endregion run-result

// #region eval-result
// EvalResult is the outcome of all repetitions of one case.
type EvalResult struct {
	Name     string      `json:"name"`
	Expected Expectation `json:"expected"`
	OK       bool        `json:"ok"`
	Runs     []RunResult `json:"runs"`
}

// FirstFail returns the first failing run, or nil.
func (r EvalResult) FirstFail() *RunResult {
	for i := range r.Runs {
		if !r.Runs[i].OK {
			return &r.Runs[i]
		}
	}
	return nil
}

// #endregion eval-result

// #region report
// Report is the JSON document written after a suite run.
type Report struct {
	Meta    ReportMeta    `json:"meta"`
	Results []EvalResult  `json:"results"`
	Summary ReportSummary `json:"summary"`
}

// ReportMeta records how the suite was run.
type ReportMeta struct {
	Cases          int       `json:"cases"`
	Repeat         int       `json:"repeat"`
	FailFast       bool      `json:"fail_fast"`
	ShowPassOutput bool      `json:"show_pass_output"`
	StartedAt      time.Time `json:"started_at"`
}

// ReportSummary counts passing and failing cases.
type ReportSummary struct {
	Pass       int       `json:"pass"`
	Fail       int       `json:"fail"`
	Total      int       `json:"total"`
	FinishedAt time.Time `json:"finished_at"`
}

// #endregion report
