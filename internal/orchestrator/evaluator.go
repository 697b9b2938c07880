package orchestrator

// #region imports
import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/samber/lo"

	"github.com/danielpatrickdp/sara-line/go-bot/internal/plan"
	"github.com/danielpatrickdp/sara-line/go-bot/internal/session"
)

// #endregion

// #region format-checks

const (
	// MaxBulletLines is how many bullet lines a reply may carry.
	MaxBulletLines = 3
	// denseRunes is the length from which a reply needs line breaks.
	denseRunes = 220
	// maxLowPressureRunes bounds a message that still counts as a light touch.
	maxLowPressureRunes = 160
)

var (
	headingPattern  = regexp.MustCompile(`【判断】|【結論】|結論：|(?im:^\s*(verdict|conclusion)\s*:)`)
	bulletPattern   = regexp.MustCompile(`^\s*[・\-*]\s+`)
	schedulePattern = regexp.MustCompile(`(?i)(空いてる|空いてたら|いつ会|会える日|日程|都合いい日|when are you free|what day|are you free|let'?s (meet|get together))`)

	recipientAskSara = regexp.MustCompile(`(それ、あたし（サラ）に送る[?？]|それとも相手に送る文面の話[?？])`)
	recipientAskAny  = regexp.MustCompile(`(?i)((あたし（サラ）に送る|相手に送る).*?(文面|スクショ).*?[?？]|(send|show) (it|this) to (me|them)\b.*\?|is (this|that) (for me|for them|meant for)\b.*\?)`)
)

// HasForbiddenHeadings reports verdict-style headings the persona never uses.
func HasForbiddenHeadings(text string) bool {
	return headingPattern.MatchString(text)
}

// IsDenseParagraph reports a long reply with at most one line break.
func IsDenseParagraph(text string) bool {
	t := strings.TrimSpace(text)
	return utf8.RuneCountInString(t) >= denseRunes && strings.Count(t, "\n") <= 1
}

// CountBulletLines counts lines that start with a bullet marker.
func CountBulletLines(text string) int {
	return lo.CountBy(strings.Split(text, "\n"), func(l string) bool { return bulletPattern.MatchString(l) })
}

// IsRecipientClarify reports a question asking whether a message is meant for Sara or the other party.
func IsRecipientClarify(text string) bool {
	return recipientAskSara.MatchString(text) || recipientAskAny.MatchString(text)
}

// IsLowPressureDraft reports a short message with an explicit exit and no pressure.
func IsLowPressureDraft(draft string) bool {
	return plan.IsLowPressure(draft) && !plan.IsPressure(draft) && utf8.RuneCountInString(draft) <= maxLowPressureRunes
}

// PickOutgoingDraft returns the message the reply proposes sending: the plan's
// draft when present, else the last safe quoted span in the reply.
func PickOutgoingDraft(reply string, p session.Plan) string {
	if p.Draft != nil && strings.TrimSpace(*p.Draft) != "" {
		return strings.TrimSpace(*p.Draft)
	}
	return plan.OutgoingDraft(reply)
}

// #endregion

// #region evaluate

// EvaluateReply checks a generated reply by string analysis. No model call.
// Phrasing rules apply only to the drafts the reply proposes sending, never to
// the don't-say examples it lists.
func EvaluateReply(reply string, phase session.Phase, streak int) ReplyEvaluation {
	trimmed := strings.TrimSpace(reply)
	if trimmed == "" {
		return ReplyEvaluation{Violations: []Violation{ViolationEmpty}, ShouldRetry: true}
	}

	var violations []Violation
	drafts := plan.ProposedDrafts(trimmed)
	if lo.SomeBy(drafts, plan.IsPressure) {
		violations = append(violations, ViolationPressure)
	}
	if lo.SomeBy(drafts, plan.IsForcedChoice) {
		violations = append(violations, ViolationForcedChoice)
	}
	if phase == session.PhaseWaitingReply && streak >= 1 && lo.SomeBy(drafts, schedulePattern.MatchString) {
		violations = append(violations, ViolationScheduling)
	}
	if HasForbiddenHeadings(trimmed) {
		violations = append(violations, ViolationHeading)
	}
	if IsDenseParagraph(trimmed) {
		violations = append(violations, ViolationDense)
	}
	if CountBulletLines(trimmed) > MaxBulletLines {
		violations = append(violations, ViolationBullets)
	}

	return ReplyEvaluation{
		Violations:  violations,
		Draft:       plan.OutgoingDraft(trimmed),
		ShouldRetry: len(violations) > 0,
	}
}

// #endregion

// #region corrective-nudge

var nudgeText = map[Violation]string{
	ViolationEmpty:        "返答が空だった。短くてもいいので必ず返す。",
	ViolationPressure:     "送る文面に催促・責め・復縁の直球が入っていた。圧ワードを外して作り直す。",
	ViolationForcedChoice: "送る文面に「どっち/どちら」型の選ばせる質問が入っていた。選択肢を出さない。",
	ViolationScheduling:   "既読無視が続く局面で日程を聞く文面を出した。日程には触れず、受け止め＋逃げ道だけにする。",
	ViolationHeading:      "【判断】【結論】などの見出しは使わない。会話として書く。",
	ViolationDense:        "長文なのに改行が少ない。2〜3行ごとに改行する。",
	ViolationBullets:      "箇条書きは3行まで。",
}

// CorrectiveNudge is the extra system instruction for a regeneration.
func CorrectiveNudge(violations []Violation) string {
	lines := lo.FilterMap(violations, func(v Violation, _ int) (string, bool) {
		s, ok := nudgeText[v]
		return s, ok
	})
	if len(lines) == 0 {
		return ""
	}
	return "【修正指示】前回の返答はルール違反があった。\n" + strings.Join(lines, "\n")
}

// #endregion
