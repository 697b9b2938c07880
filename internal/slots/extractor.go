package slots

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/danielpatrickdp/sara-line/go-bot/internal/session"
)

// #region types

// Updates are proposed slot values keyed by slot name.
type Updates map[session.SlotName]string

// rule maps a pattern onto a canonical slot value.
type rule struct {
	value   string
	pattern *regexp.Regexp
}

// slotMatcher extracts one slot. Matchers are independent and conservative:
// no match yields "" rather than a guess.
type slotMatcher struct {
	slot  session.SlotName
	match func(text string) string
}

// #endregion types

// #region vocab

// Canonical silence values.
const (
	SilenceHours   = "a few hours"
	SilenceOneDay  = "1 day"
	SilenceTwoDays = "2 days"
	SilenceThreeUp = "3+ days"
	SilenceWeek    = "1+ week"
	SilenceWeeks   = "2+ weeks"
	SilenceMonth   = "1+ month"
)

// Canonical goal values.
const (
	GoalMakeUp    = "make up"
	GoalReconcile = "reconcile"
	GoalDate      = "start dating"
	GoalAssess    = "assess"
	GoalMeet      = "wants to meet"
	GoalAskOut    = "ask out"
	GoalCloser    = "get closer"
)

// Canonical relationship stages.
const (
	StagePostBreakup = "post-breakup"
	StageNeverMet    = "never met in person"
	StageDatedMany   = "dated 3+ times"
	StageDatedFew    = "dated once or twice"
	StageDating      = "dating"
	StageFriends     = "friends"
)

// #endregion vocab

// #region rules

var goalRules = []rule{
	{GoalMakeUp, regexp.MustCompile(`(?i)(仲直り|仲なおり|謝りたい|謝って|謝罪|修復|apologi[sz]e|make up|patch things up)`)},
	{GoalReconcile, regexp.MustCompile(`(?i)(復縁|よりを戻|get back together|win (them|him|her) back)`)},
	{GoalDate, regexp.MustCompile(`(?i)(付き合いたい|付き合え|告白|恋人になりたい|start dating|ask (them|him|her) out|confess)`)},
	{GoalAssess, regexp.MustCompile(`(?i)(見極め|様子見|figure out if|see where (it|this) goes)`)},
	{GoalMeet, regexp.MustCompile(`(?i)(会いたい|会う約束|デートしたい|want to (meet|see)|meet up|go on a date)`)},
	{GoalAskOut, regexp.MustCompile(`(?i)(誘いたい|遊びに|遊びたい|ご飯|\binvite\b|hang out)`)},
	{GoalCloser, regexp.MustCompile(`(?i)(距離を縮め|近づ|仲良く|get closer)`)},
}

var fearRules = []rule{
	{"seeming too much", regexp.MustCompile(`(?i)(重いと思われ|重い|しつこい|うざい|too much|too pushy|clingy|needy|annoying)`)},
	{"being disliked", regexp.MustCompile(`(?i)(嫌われ|引かれ|hate me|turned off|lose (them|him|her))`)},
	{"anxious", regexp.MustCompile(`(?i)(怖い|不安|scared|afraid|anxious|nervous)`)},
}

var stageRules = []rule{
	{StagePostBreakup, regexp.MustCompile(`(?i)(別れた|元カレ|元カノ|復縁|\bmy ex\b|broke up|breakup)`)},
	{StageNeverMet, regexp.MustCompile(`(?i)(未対面|会ったことない|まだ会ってない|マッチング|never met|haven'?t met|online only|matched on)`)},
	{StageDatedMany, regexp.MustCompile(`(?i)(3回以上|[3-9]回(会った|デート)|dated ([3-9]|three|several)\+? times|been on ([3-9]|three|several) dates|[3-9]\+ dates)`)},
	{StageDatedFew, regexp.MustCompile(`(?i)([12]回(会った|デート)|met (once|twice)|first date|(one|two|1|2) dates?\b)`)},
	{StageDating, regexp.MustCompile(`(?i)(付き合って(る|いる|ます)|交際中|my (boyfriend|girlfriend|partner)|we'?re dating)`)},
	{StageFriends, regexp.MustCompile(`(?i)(友達|同級生|サークル|部活|バイト|職場|同期|coworker|classmate|\bfriends?\b)`)},
}

var speedRules = []rule{
	{"fast", regexp.MustCompile(`(?i)(返信(が)?早い|すぐ返|即レス|replies (fast|quickly|right away))`)},
	{"slow", regexp.MustCompile(`(?i)(返信(が)?遅い|遅レス|マイペース|slow to reply|replies slowly|takes (days|forever) to reply)`)},
	{"irregular", regexp.MustCompile(`(?i)(気まぐれ|ムラ|inconsistent|hot and cold)`)},
}

var typeRules = []rule{
	{"busy", regexp.MustCompile(`(?i)(仕事が忙しい|忙しい人|多忙|workaholic|always busy)`)},
	{"shy", regexp.MustCompile(`(?i)(シャイ|奥手|人見知り|\bshy\b|introvert)`)},
	{"cool", regexp.MustCompile(`(?i)(そっけない|冷たい|塩対応|クール|\bcold\b|distant|dry texter)`)},
	{"warm", regexp.MustCompile(`(?i)(優しい|ノリ(が)?良い|脈あり|\bsweet\b|friendly|flirty)`)},
}

var categoryRules = []rule{
	{"REPLY", regexp.MustCompile(`(?i)(既読|未読|返信|返事|無視|ブロック|スタンプだけ|left on read|no reply|ghost|ignor)`)},
	{"EX", regexp.MustCompile(`(?i)(復縁|元カレ|元カノ|別れ|振られ|ふられ|距離置こ|\bmy ex\b|broke up|dumped)`)},
	{"FIGHT", regexp.MustCompile(`(?i)(喧嘩|けんか|気まず|怒らせ|揉め|言い合い|冷戦|ギクシャク|\bfight\b|argument|fought)`)},
	{"CONFESS", regexp.MustCompile(`(?i)(気になる|好きな人|片想い|片思い|誘いたい|遊びに|ご飯|会いたい|デート|告白|crush|ask (them|him|her) out|confess)`)},
	{"OTHER", regexp.MustCompile(`(?i)(恋愛|彼|彼女|好き|dating|relationship|love)`)},
}

var (
	silenceNumberJA = regexp.MustCompile(`(\d+)\s*(分|時間|日|週間|週|ヶ月|か月|カ月)`)
	silenceNumberEN = regexp.MustCompile(`(?i)(\d+)\s*(minutes?|mins?|hours?|hrs?|days?|weeks?|months?)`)
	silenceWords    = []rule{
		{SilenceHours, regexp.MustCompile(`(?i)(数時間|a few hours|several hours)`)},
		{SilenceWeek, regexp.MustCompile(`(?i)(一週間|a week)`)},
		{SilenceMonth, regexp.MustCompile(`(?i)(一ヶ月|一か月|a month)`)},
	}
	futureSuffix = regexp.MustCompile(`(?i)^\s*(後|later|from now)`)

	lastContactJA = regexp.MustCompile(`(昨日|今日|先週|先月|(\d+)日前)(に)?(会った|会えた|話した|電話した|デートした)`)
	lastContactEN = regexp.MustCompile(`(?i)(met|saw|talked to|called|went out with)( (them|him|her))? (yesterday|today|last week|last month|(\d+) days? ago)`)

	senderOther = regexp.MustCompile(`(?i)(相手が送ってきた|相手から|向こうから|(返信|返事)(が)?(来|き)た|って返ってきた|(they|he|she) (finally )?(replied|texted|messaged|wrote back|got back to me)|got a reply|reply came)`)
	senderSelf  = regexp.MustCompile(`(?i)(私が送った|自分が送った|送った|送信した|送ってある|\bi (sent|texted|messaged)\b|\bsent (it|them|him|her|a message|yesterday|today|last night)\b|^sent\b)`)
	notSent     = regexp.MustCompile(`(?i)(まだ送ってない|送ってない|未送信|haven'?t sent|not sent|didn'?t send|before (i )?send)`)
)

// #endregion rules

// #region matchers

var matchers = []slotMatcher{
	{session.SlotLastSender, matchSender},
	{session.SlotSilence, matchSilence},
	{session.SlotLastContact, matchLastContact},
	{session.SlotGoal, firstRule(goalRules)},
	{session.SlotFear, firstRule(fearRules)},
	{session.SlotRelationshipStage, firstRule(stageRules)},
	{session.SlotPartnerSpeed, firstRule(speedRules)},
	{session.SlotPartnerType, firstRule(typeRules)},
	{session.SlotCategory, firstRule(categoryRules)},
}

// #endregion matchers

// #region extract

// Extract proposes slot values found in text. Pure function: it never proposes a value
// for a slot already holding a text- or intake-sourced value, so repeated calls with the
// same existing slots are idempotent. Assist-sourced values may be upgraded.
func Extract(text string, existing session.Slots) Updates {
	t := strings.TrimSpace(text)
	out := Updates{}
	if t == "" {
		return out
	}
	for _, m := range matchers {
		if cur, ok := existing[m.slot]; ok && cur.Value != "" && cur.Source.Rank() >= session.SourceText.Rank() {
			continue
		}
		if v := m.match(t); v != "" {
			out[m.slot] = v
		}
	}
	return out
}

// Merge applies updates with the given source and returns the slots that changed.
func Merge(existing session.Slots, updates Updates, source session.SlotSource) []session.SlotName {
	var changed []session.SlotName
	for _, m := range matchers {
		if v, ok := updates[m.slot]; ok && existing.Set(m.slot, v, source) {
			changed = append(changed, m.slot)
		}
	}
	// slots outside the matcher table (problem) in stable order
	for _, name := range []session.SlotName{session.SlotProblem} {
		if v, ok := updates[name]; ok && existing.Set(name, v, source) {
			changed = append(changed, name)
		}
	}
	return changed
}

// InferCategory returns the intake category (REPLY, EX, FIGHT, CONFESS, OTHER) or "".
func InferCategory(text string) string {
	return firstRule(categoryRules)(strings.TrimSpace(text))
}

// #endregion extract

// #region slot-funcs

func firstRule(rules []rule) func(string) string {
	return func(text string) string {
		for _, r := range rules {
			if r.pattern.MatchString(text) {
				return r.value
			}
		}
		return ""
	}
}

// matchSender prefers the reply-arrival reading when both readings are present.
func matchSender(text string) string {
	if senderOther.MatchString(text) {
		return session.SenderOther
	}
	if notSent.MatchString(text) {
		return ""
	}
	if senderSelf.MatchString(text) {
		return session.SenderSelf
	}
	return ""
}

func matchSilence(text string) string {
	for _, re := range []*regexp.Regexp{silenceNumberJA, silenceNumberEN} {
		for _, loc := range re.FindAllStringSubmatchIndex(text, -1) {
			// "2日後" / "2 days later" is a plan, not a silence
			if futureSuffix.MatchString(text[loc[1]:]) {
				continue
			}
			n, err := strconv.Atoi(text[loc[2]:loc[3]])
			if err != nil {
				continue
			}
			if v := bucketSilence(n, strings.ToLower(text[loc[4]:loc[5]])); v != "" {
				return v
			}
		}
	}
	return firstRule(silenceWords)(text)
}

func bucketSilence(n int, unit string) string {
	switch {
	case unit == "分" || unit == "時間" || strings.HasPrefix(unit, "min") || strings.HasPrefix(unit, "h"):
		return SilenceHours
	case unit == "日" || strings.HasPrefix(unit, "day"):
		switch {
		case n <= 1:
			return SilenceOneDay
		case n == 2:
			return SilenceTwoDays
		case n < 7:
			return SilenceThreeUp
		case n < 14:
			return SilenceWeek
		case n < 30:
			return SilenceWeeks
		}
		return SilenceMonth
	case unit == "週間" || unit == "週" || strings.HasPrefix(unit, "week"):
		if n <= 1 {
			return SilenceWeek
		}
		if n < 4 {
			return SilenceWeeks
		}
		return SilenceMonth
	case unit == "ヶ月" || unit == "か月" || unit == "カ月" || strings.HasPrefix(unit, "month"):
		return SilenceMonth
	}
	return ""
}

var lastContactJAWords = map[string]string{
	"昨日": "yesterday",
	"今日": "today",
	"先週": "last week",
	"先月": "last month",
}

func matchLastContact(text string) string {
	if m := lastContactJA.FindStringSubmatch(text); m != nil {
		if m[2] != "" {
			return m[2] + " days ago"
		}
		return lastContactJAWords[m[1]]
	}
	if m := lastContactEN.FindStringSubmatch(text); m != nil {
		return strings.ToLower(m[4])
	}
	return ""
}

// #endregion slot-funcs
