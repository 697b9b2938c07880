package signals

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/samber/lo"
)

// #region patterns

var (
	lowEnergyPattern = regexp.MustCompile(`(?i)(忙しい|余裕ない|疲れた|しんどい|無理|難しい|ごめん|また今度|落ち着いたら|\bbusy\b|exhausted|\btired\b|maybe later|another time|\bsorry\b|swamped|not now|rain check)`)
	eagerPattern     = regexp.MustCompile(`(?i)(会いたい|会える|行きたい|楽しみ|会おう|want to (meet|see)|can'?t wait|looking forward|let'?s meet|miss (you|them|him|her))`)

	ambiguousPersonPattern = regexp.MustCompile(`(?i)(先輩|友達|同期|後輩|元カレ|元カノ|誰か|あの人|その人|別の人|他の人|\bmy friend\b|\ba friend\b|\bcoworker\b|\bsomeone\b|\bthat person\b|\bthe other person\b|\bmy ex\b)`)

	screenshotAskPattern = regexp.MustCompile(`(?i)((スクショ|画像|LINE).*(送ってもいい|貼ってもいい|見せていい)|サラに.*(送ってもいい|貼ってもいい|見せていい)|(can|may) i (send|show|share) (you|sara)\b)`)
)

// eventPatterns is checked in order; the first matching kind wins.
var eventPatterns = []struct {
	kind    EventKind
	pattern *regexp.Regexp
}{
	{EventMet, regexp.MustCompile(`(?i)(会えた|会った|デートした|会うことになった|\bwe met\b|went on a date|had a date)`)},
	{EventReply, regexp.MustCompile(`(?i)(返信きた|返事きた|返ってきた|連絡きた|(they|he|she) (replied|texted back|wrote back)|got a reply)`)},
	{EventRead, regexp.MustCompile(`(?i)(既読ついた|未読|既読無視|ブロック|解除|left on read|\bblocked\b|unblocked)`)},
	{EventConfession, regexp.MustCompile(`(?i)(告白|付き合うことになった|恋人になった|交際|confess|started dating|asked (them|her|him) out)`)},
	{EventBreakup, regexp.MustCompile(`(?i)(別れた|破局|復縁|よりを戻|broke up|break ?up|get back together)`)},
	{EventFight, regexp.MustCompile(`(?i)(喧嘩|ケンカ|怒らせた|修羅場|\bfight\b|\bfought\b|argument)`)},
}

// #endregion patterns

// #region producer

// Producer computes lexical signals from user text. No model call.
type Producer struct {
	config ProducerConfig
}

// NewProducer creates a Producer.
func NewProducer(config ProducerConfig) *Producer {
	return &Producer{config: config}
}

// #endregion producer

// #region produce

// Produce computes all signals from the given input.
func (p *Producer) Produce(input ProduceInput) Signals {
	t := strings.TrimSpace(input.UserText)
	return Signals{
		LowEnergy:        IsLowEnergy(t),
		Eager:            IsEager(t),
		Event:            DetectEvent(t),
		AmbiguousPersons: p.ambiguousPersons(t, input.ImageSummary),
		ScreenshotAsk:    screenshotAskPattern.MatchString(t),
		Short:            utf8.RuneCountInString(t) <= p.config.ShortTextRunes,
	}
}

// #endregion produce

// #region detectors

// IsLowEnergy reports busy/tired/later markers.
func IsLowEnergy(text string) bool {
	return lowEnergyPattern.MatchString(text)
}

// IsEager reports want-to-meet/can't-wait markers.
func IsEager(text string) bool {
	return eagerPattern.MatchString(text)
}

// IsScreenshotAsk reports a question asking permission to share a screenshot with the bot.
func IsScreenshotAsk(text string) bool {
	return screenshotAskPattern.MatchString(strings.TrimSpace(text))
}

// DetectEvent returns the first important event kind present in text.
func DetectEvent(text string) EventKind {
	t := strings.TrimSpace(text)
	if t == "" {
		return EventNone
	}
	for _, ep := range eventPatterns {
		if ep.pattern.MatchString(t) {
			return ep.kind
		}
	}
	return EventNone
}

func (p *Producer) ambiguousPersons(texts ...string) []string {
	var found []string
	for _, t := range texts {
		found = append(found, ambiguousPersonPattern.FindAllString(t, -1)...)
	}
	found = lo.Uniq(lo.Map(found, func(s string, _ int) string { return strings.ToLower(s) }))
	if p.config.MaxAmbiguousRefs > 0 && len(found) > p.config.MaxAmbiguousRefs {
		found = found[:p.config.MaxAmbiguousRefs]
	}
	return found
}

// #endregion detectors
