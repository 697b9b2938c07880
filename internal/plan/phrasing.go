package plan

import "regexp"

// #region phrasing

var (
	forcedChoicePattern = regexp.MustCompile(`(?i)(どっち|どちら|AかB|\bA or B\b|which (one|day|is better)|\bor\b[^.?!\n]{0,40}\?)`)
	pressurePattern     = regexp.MustCompile(`(?i)(返事して|返信して|早く返事|早く返して|今すぐ|催促|なんで返事|なんで返信|なんで返さない|なんで返してくれない|既読なのに|無視しないで|スルーしないで|戻りたい|やり直したい|why (didn'?t|haven'?t|won'?t) you (reply|answer|text)|answer me|reply (asap|now|already)|are you ignoring|you never reply|i want (you|us) back|get back together)`)
	lowPressurePattern  = regexp.MustCompile(`(?i)(大丈夫|無理しない|落ち着いたら|でいいから|でいいよ|返事は急がない|急がない|気が向いたら|no rush|no pressure|whenever you('?re| are) free|no need to reply|take your time|when you get a chance|when things calm down)`)
)

// IsForcedChoice reports either-or phrasing that pushes the recipient to pick.
func IsForcedChoice(s string) bool { return forcedChoicePattern.MatchString(s) }

// IsPressure reports chasing or blaming phrasing.
func IsPressure(s string) bool { return pressurePattern.MatchString(s) }

// IsLowPressure reports an explicit no-obligation exit in a message.
func IsLowPressure(s string) bool { return lowPressurePattern.MatchString(s) }

// #endregion phrasing
