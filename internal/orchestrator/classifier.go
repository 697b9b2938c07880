package orchestrator

// #region imports
import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/danielpatrickdp/sara-line/go-bot/internal/session"
)

// #endregion

// #region phase-patterns

var (
	replyArrivedJA = regexp.MustCompile(`((返信|返事)(が)?(来|き)た|相手から|向こうから|って返ってきた|って来た|って言われた)`)
	replyArrivedEN = regexp.MustCompile(`(?i)(\b(they|he|she|my (partner|crush|boyfriend|girlfriend|ex)) ((just|finally|already|eventually|actually) )?(replied|answered|responded|wrote back|texted (me )?back|got back to me|said)\b|\bgot (a |their |his |her )?(reply|response|answer)\b|\b(a|the|their|his|her) (reply|response) came\b)`)

	// A quoted span is taken as something the other party said.
	quotedSpanPattern = regexp.MustCompile(`「([^」]{1,140})」|“([^”]{1,140})”|"([^"]{1,140})"`)

	silenceJA = regexp.MustCompile(`(既読|未読|スルー|無視|返事ない|返信ない|音沙汰ない|返ってこない|返って来ない|ブロック)`)
	silenceEN = regexp.MustCompile(`(?i)(left on read|\bon read\b|\bread (it|my|the|\d|yesterday|today|but|and|without)|\bseen\b|\bunread\b|\bno (reply|response|answer)\b|\b(hasn'?t|haven'?t|didn'?t|not) (replied|responded|answered|heard back|written back)|\bghost(ed|ing)?\b|\bignor(ed|ing)\b|\bblocked\b|radio silence)`)

	draftingJA = regexp.MustCompile(`(まだ送ってない|送る前|未送信|この文面|添削|直して|文章|文面|送っていい|送る？|送って大丈夫|コピペ|スクショ|例文)`)
	draftingEN = regexp.MustCompile(`(?i)(haven'?t sent|not sent( it)? yet|didn'?t send|before (i )?send|\bdraft\b|(can|should|may) i send|(ok|okay|fine) to send|is this (message|text|ok|okay)|fix (this|my) (message|text)|\bscreenshot\b|copy[- ]?paste|what should i (say|write|text))`)
)

// #endregion

// #region phase-rules

// phaseRule pairs a predicate with the phase it selects.
type phaseRule struct {
	name  string
	phase session.Phase
	match func(string) bool
}

// phaseRules is evaluated in order; the first match wins. A reply arriving changes
// the advice the most, so it outranks silence, which outranks drafting.
var phaseRules = []phaseRule{
	{"reply_arrived", session.PhaseAfterReply, func(t string) bool {
		return replyArrivedJA.MatchString(t) || replyArrivedEN.MatchString(t)
	}},
	{"quoted_span", session.PhaseAfterReply, func(t string) bool {
		return quotedSpanPattern.MatchString(t)
	}},
	{"silence", session.PhaseWaitingReply, func(t string) bool {
		return silenceJA.MatchString(t) || silenceEN.MatchString(t)
	}},
	{"drafting", session.PhaseBeforeSend, func(t string) bool {
		return draftingJA.MatchString(t) || draftingEN.MatchString(t)
	}},
}

// #endregion

// #region classify-phase

// ClassifyPhase decides the conversation phase for text. It never returns an
// error: with no textual match it falls back to the prior phase, then to the
// lastSender slot, then to UNKNOWN.
func ClassifyPhase(text string, prior session.Phase, slots session.Slots) PhaseClassification {
	t := strings.TrimSpace(text)
	if t != "" {
		for _, r := range phaseRules {
			if r.match(t) {
				return PhaseClassification{Phase: r.phase, ByText: true, Rule: r.name}
			}
		}
	}

	if prior != "" && prior != session.PhaseUnknown {
		return PhaseClassification{Phase: prior, Rule: "prior"}
	}
	if slots.Get(session.SlotLastSender) == session.SenderOther {
		return PhaseClassification{Phase: session.PhaseAfterReply, Rule: "last_sender"}
	}
	return PhaseClassification{Phase: session.PhaseUnknown, Rule: "none"}
}

// UpdateIgnoreStreak applies the classification to the streak. It increments only
// on a textual WAITING_REPLY match so a carried-forward phase never double counts.
func UpdateIgnoreStreak(prev int, c PhaseClassification) int {
	switch {
	case c.Phase == session.PhaseAfterReply:
		return 0
	case c.Phase == session.PhaseWaitingReply && c.ByText:
		return prev + 1
	}
	if prev < 0 {
		return 0
	}
	return prev
}

// QuotedSpan returns the first quoted span in text, without its quotes.
func QuotedSpan(text string) string {
	m := quotedSpanPattern.FindStringSubmatch(text)
	if m == nil {
		return ""
	}
	for _, g := range m[1:] {
		if g != "" {
			return strings.TrimSpace(g)
		}
	}
	return ""
}

// #endregion

// #region mode-patterns

var (
	emotionPattern  = regexp.MustCompile(`(?i)(つらい|辛い|しんどい|苦しい|泣きそう|不安|限界|もうだめ|無理|\bsad\b|heartbroken|\bhurts?\b|anxious|\bscared\b|crying|overwhelmed|can'?t take)`)
	strategyPattern = regexp.MustCompile(`(?i)(送っていい|送る？|送って大丈夫|送信していい|送信して大丈夫|どう送る|いつ送る|何時に送る|タイミング|間あけ|何日あけ|追撃|追いLINE|追いライン|文面|文章|例文|添削|直して|コピペ|この文面|この文章|これで送る|返す？|どう返す|(can|should) i send|when (should|do) i (send|text)|\btiming\b|follow[- ]up|double[- ]text|\bdraft\b|how (do|should) i (reply|respond)|what (do|should) i (say|reply|text))`)
	analysisPattern = regexp.MustCompile(`(?i)(嫌われ|脈|心理|どう思われ|何考え|なぜ|理由|可能性|温度感|本音|\bwhy\b|interested in me|do(es)? (he|she|they) like|what (is|are) (he|she|they) thinking|\bchances?\b|\bsigns?\b)`)
	romancePattern  = regexp.MustCompile(`(?i)(既読|未読|返信|復縁|告白|喧嘩|彼|彼女|元カレ|元カノ|好き|\breply\b|\bex\b|confess|crush|boyfriend|girlfriend|\bfight\b|\blove\b)`)
)

// shortModeRunes is the length at or under which a CHAT verdict keeps the prior mode.
const shortModeRunes = 4

// #endregion

// #region classify-mode

// ClassifyMode picks the conversational register. Emotion outranks strategy,
// strategy outranks analysis. Very short text that reads as CHAT keeps prior.
func ClassifyMode(text string, prior session.Mode) session.Mode {
	if prior == "" {
		prior = session.ModeChat
	}
	t := strings.TrimSpace(text)
	detected := detectMode(t)
	if detected == session.ModeChat && utf8.RuneCountInString(t) <= shortModeRunes {
		return prior
	}
	return detected
}

func detectMode(t string) session.Mode {
	switch {
	case t == "":
		return session.ModeChat
	case emotionPattern.MatchString(t):
		return session.ModeEmotion
	case strategyPattern.MatchString(t), quotedSpanPattern.MatchString(t):
		return session.ModeStrategy
	case analysisPattern.MatchString(t), romancePattern.MatchString(t):
		return session.ModeAnalysis
	}
	return session.ModeChat
}

// #endregion
