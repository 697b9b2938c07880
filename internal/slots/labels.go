package slots

import (
	"regexp"
	"strings"

	"github.com/danielpatrickdp/sara-line/go-bot/internal/session"
)

var (
	calledByOtherPattern = regexp.MustCompile(`(?i)(?:相手→自分|相手->自分|they call me)\s*[=＝:：]?\s*([^\s、,。]{1,20})`)
	calledByUserPattern  = regexp.MustCompile(`(?i)(?:自分→相手|自分->相手|i call (?:them|him|her))\s*[=＝:：]?\s*([^\s、,。]{1,20})`)
)

// ParseLabels reads nickname declarations. Placeholder values are ignored.
// ok is false when nothing was declared.
func ParseLabels(text string) (session.Labels, bool) {
	var l session.Labels
	if m := calledByOtherPattern.FindStringSubmatch(text); m != nil && !isPlaceholder(m[1]) {
		l.CalledByOther = m[1]
	}
	if m := calledByUserPattern.FindStringSubmatch(text); m != nil && !isPlaceholder(m[1]) {
		l.CalledByUser = m[1]
	}
	return l, l.CalledByOther != "" || l.CalledByUser != ""
}

// ApplyLabels overlays non-empty declared labels onto cur.
func ApplyLabels(cur session.Labels, declared session.Labels) session.Labels {
	if declared.CalledByOther != "" {
		cur.CalledByOther = declared.CalledByOther
	}
	if declared.CalledByUser != "" {
		cur.CalledByUser = declared.CalledByUser
	}
	return cur
}

func isPlaceholder(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "", "未設定", "x", "y", "none", "-":
		return true
	}
	return false
}
