package slots

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/danielpatrickdp/sara-line/go-bot/internal/session"
)

// #region assist-types

// Assistant is the secondary model that proposes slot values the regex layer missed.
// Implementations return the raw JSON object; SanitizeAssist decides what survives.
type Assistant interface {
	AssistSlots(ctx context.Context, text string, known map[string]string) (map[string]any, error)
}

// AssistStatus distinguishes a usable assist result from a failed one.
type AssistStatus string

const (
	AssistExtracted   AssistStatus = "extracted"
	AssistUnavailable AssistStatus = "unavailable"
)

// AssistResult is the outcome of one assist call. Updates is empty when unavailable.
type AssistResult struct {
	Updates Updates
	Status  AssistStatus
	Err     error
}

// maxAssistValueRunes bounds each proposed value.
const maxAssistValueRunes = 40

// assistKeys are the only keys accepted from the assistant.
var assistKeys = map[string]session.SlotName{
	"relationshipStage": session.SlotRelationshipStage,
	"partnerSpeed":      session.SlotPartnerSpeed,
	"partnerType":       session.SlotPartnerType,
	"lastMet":           session.SlotLastContact,
	"lastContact":       session.SlotLastContact,
	"silence":           session.SlotSilence,
	"goal":              session.SlotGoal,
	"fear":              session.SlotFear,
	"lastSender":        session.SlotLastSender,
}

// keySlots are the slots whose absence makes an assist call worthwhile.
var keySlots = []session.SlotName{
	session.SlotRelationshipStage,
	session.SlotLastContact,
	session.SlotSilence,
	session.SlotGoal,
	session.SlotLastSender,
}

// #endregion assist-types

// #region assist

// NeedsAssist reports whether enough user turns have passed and at least two key
// slots are still empty.
func NeedsAssist(s session.Slots, userTurns, minTurns int) bool {
	if userTurns < minTurns {
		return false
	}
	missing := 0
	for _, name := range keySlots {
		if !s.Has(name) {
			missing++
		}
	}
	return missing >= 2
}

// Assist asks the assistant for missing slots. Failures are reported through the
// result, never as a panic or a partial write.
func Assist(ctx context.Context, a Assistant, text string, existing session.Slots) AssistResult {
	if a == nil {
		return AssistResult{Updates: Updates{}, Status: AssistUnavailable}
	}
	known := make(map[string]string, len(existing))
	for name, v := range existing {
		if v.Value != "" {
			known[string(name)] = v.Value
		}
	}
	raw, err := a.AssistSlots(ctx, text, known)
	if err != nil {
		return AssistResult{Updates: Updates{}, Status: AssistUnavailable, Err: fmt.Errorf("slot assist: %w", err)}
	}
	return AssistResult{Updates: SanitizeAssist(raw), Status: AssistExtracted}
}

// SanitizeAssist keeps allowed keys with short non-empty string values and
// normalizes lastSender. Everything else is dropped.
func SanitizeAssist(raw map[string]any) Updates {
	out := Updates{}
	for key, v := range raw {
		name, ok := assistKeys[key]
		if !ok {
			continue
		}
		s, ok := v.(string)
		if !ok {
			continue
		}
		s = strings.TrimSpace(s)
		if s == "" || strings.EqualFold(s, "null") || strings.EqualFold(s, "unknown") {
			continue
		}
		if utf8.RuneCountInString(s) > maxAssistValueRunes {
			continue
		}
		if name == session.SlotLastSender {
			if s = NormalizeSender(s); s == "" {
				continue
			}
		}
		out[name] = s
	}
	return out
}

// NormalizeSender maps free-form sender descriptions onto self/other, or "".
func NormalizeSender(v string) string {
	s := strings.ToLower(strings.TrimSpace(v))
	switch s {
	case session.SenderSelf, "user", "me", "i", "自分", "私", "ユーザー":
		return session.SenderSelf
	case session.SenderOther, "partner", "them", "they", "he", "she", "相手", "向こう", "彼", "彼女", "彼氏":
		return session.SenderOther
	}
	switch {
	case strings.Contains(s, "相手"), strings.Contains(s, "partner"), strings.Contains(s, "other"):
		return session.SenderOther
	case strings.Contains(s, "自分"), strings.Contains(s, "self"), strings.Contains(s, "user"):
		return session.SenderSelf
	}
	return ""
}

// #endregion assist
