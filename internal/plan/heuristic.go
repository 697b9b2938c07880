package plan

import (
	"regexp"
	"sort"
	"strings"

	"github.com/samber/lo"

	"github.com/danielpatrickdp/sara-line/go-bot/internal/session"
)

// Field bounds shared by both extraction paths.
const (
	MaxTimingRunes = 40
	MaxDraftRunes  = 120
	MaxNGRunes     = 28
	MaxNG          = 3
)

// #region heuristic-patterns

var (
	sendJA    = regexp.MustCompile(`送る(のが|で|。|！)|送って`)
	waitJA    = regexp.MustCompile(`待つ(のが|で|。|！)|今は待|追い(ライン|LINE)は(まだ|やめ)`)
	waitEN    = regexp.MustCompile(`(?i)(don'?t (send|text|message|follow up|chase|double[- ]text)|hold off|\bjust wait\b|\bwait (a|for|until|\d)|give (it|them|him|her) (some )?(time|space)|no need to (send|follow up))`)
	sendEN    = regexp.MustCompile(`(?i)(\bsend (it|this|them|him|her|something|back|a\b)|reply with|text (them|him|her) back|go ahead and send|i'?d send)`)
	confirmQ  = regexp.MustCompile(`[?？]\s*$`)
	confirmOn = regexp.MustCompile(`(?i)(送|待|\bsend\b|\bwait\b)`)

	timingJA = regexp.MustCompile(`(今日|明日|明後日|2日後|今夜|今晩|夜|夕方|昼|朝)[^\n。]{0,20}`)
	timingEN = regexp.MustCompile(`(?i)\b(today|tonight|tomorrow|this (morning|afternoon|evening|weekend)|next week|in (a few|a couple of|\d+) (hours?|days?)|after \d+ days?|around \d{1,2}(:\d{2})?\s*(am|pm)?|on (monday|tuesday|wednesday|thursday|friday|saturday|sunday))\b[^\n.!?]{0,20}`)

	quoteSpans = []*regexp.Regexp{
		regexp.MustCompile(`「([^」]{1,140})」`),
		regexp.MustCompile(`“([^”]{1,140})”`),
		regexp.MustCompile(`"([^"\n]{1,140})"`),
	}
	negativeContext = regexp.MustCompile(`(NG|禁止|避け|言わない|言っちゃ|送らない|ダメ|だめ|やめ|(?i:don'?t (say|send|write|use|ask|text)|avoid|never (say|send|write)|instead of|not like))`)

	bulletLine = regexp.MustCompile(`^\s*[・\-*•]\s*(.{1,28})`)
)

// #endregion heuristic-patterns

// #region heuristic

// Heuristic derives a plan from reply text with regexes only. It is total: any input,
// including empty or adversarial text, yields a valid record.
func Heuristic(text string) session.Plan {
	action := heuristicAction(text)
	p := session.Plan{
		Action: &action,
		NG:     bulletNG(text),
	}
	if timing := heuristicTiming(text); timing != "" {
		p.Timing = &timing
	}
	if draft := OutgoingDraft(text); draft != "" {
		p.Draft = &draft
	}
	return p
}

func heuristicAction(t string) session.Action {
	switch {
	case sendJA.MatchString(t):
		return session.ActionSend
	case waitJA.MatchString(t), waitEN.MatchString(t):
		return session.ActionWait
	case sendEN.MatchString(t):
		return session.ActionSend
	case confirmQ.MatchString(t) && confirmOn.MatchString(t):
		return session.ActionConfirm
	}
	return session.ActionObserve
}

func heuristicTiming(t string) string {
	for _, re := range []*regexp.Regexp{timingJA, timingEN} {
		if m := re.FindString(t); m != "" {
			return truncateRunes(strings.TrimSpace(m), MaxTimingRunes)
		}
	}
	return ""
}

// OutgoingDraft returns the last proposed draft that reads as a message to send,
// or "". Drafts carrying forced-choice or pressure phrasing are skipped.
func OutgoingDraft(t string) string {
	drafts := ProposedDrafts(t)
	for i := len(drafts) - 1; i >= 0; i-- {
		if IsForcedChoice(drafts[i]) || IsPressure(drafts[i]) {
			continue
		}
		return truncateRunes(drafts[i], MaxDraftRunes)
	}
	return ""
}

// ProposedDrafts returns the quoted spans of t in order, skipping quotes that sit
// in a don't-say context.
func ProposedDrafts(t string) []string {
	type span struct {
		start int
		body  string
	}
	var spans []span
	for _, re := range quoteSpans {
		for _, loc := range re.FindAllStringSubmatchIndex(t, -1) {
			spans = append(spans, span{start: loc[0], body: strings.TrimSpace(t[loc[2]:loc[3]])})
		}
	}
	spans = lo.Filter(spans, func(s span, _ int) bool {
		return s.body != "" && !negativeContext.MatchString(quoteContext(t, s.start))
	})
	sort.SliceStable(spans, func(i, j int) bool { return spans[i].start < spans[j].start })
	return lo.Map(spans, func(s span, _ int) string { return s.body })
}

// quoteContext is the text on the quote's line before it. For a bullet line the
// enclosing list heading is included too.
func quoteContext(t string, start int) string {
	lineStart := strings.LastIndex(t[:start], "\n") + 1
	ctx := t[lineStart:start]
	for bulletLine.MatchString(t[lineStart:]) && lineStart > 0 {
		prev := t[:lineStart-1]
		lineStart = strings.LastIndex(prev, "\n") + 1
		ctx = t[lineStart:len(prev)] + "\n" + ctx
	}
	return ctx
}

func bulletNG(t string) []string {
	ng := []string{}
	for _, line := range strings.Split(t, "\n") {
		m := bulletLine.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		if item := strings.TrimSpace(m[1]); item != "" {
			ng = append(ng, item)
		}
		if len(ng) >= MaxNG {
			break
		}
	}
	return ng
}

// #endregion heuristic

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return strings.TrimSpace(string(r[:n]))
}
