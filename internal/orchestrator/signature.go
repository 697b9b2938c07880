package orchestrator

import (
	"strings"

	"github.com/danielpatrickdp/sara-line/go-bot/internal/session"
)

const (
	signatureQuoteRunes = 80
	signatureFactsRunes = 120
)

// signatureSlots are the slots that change what advice is appropriate.
var signatureSlots = []session.SlotName{
	session.SlotLastSender,
	session.SlotSilence,
	session.SlotGoal,
	session.SlotRelationshipStage,
	session.SlotLastContact,
}

// AdviceSignature fingerprints the inputs that shape advice. An unchanged
// signature between turns means the generator is likely to repeat itself.
func AdviceSignature(phase session.Phase, quote, facts string) string {
	if phase == "" {
		phase = session.PhaseUnknown
	}
	return string(phase) + "::" + clipRunes(quote, signatureQuoteRunes) + "::" + clipRunes(facts, signatureFactsRunes)
}

// ShortFacts renders the signature slots as a compact key=value list.
func ShortFacts(slots session.Slots) string {
	parts := make([]string, 0, len(signatureSlots))
	for _, name := range signatureSlots {
		if v := slots.Get(name); v != "" {
			parts = append(parts, string(name)+"="+v)
		}
	}
	return strings.Join(parts, ";")
}

func clipRunes(s string, n int) string {
	r := []rune(strings.TrimSpace(s))
	if len(r) <= n {
		return string(r)
	}
	return string(r[:n])
}
