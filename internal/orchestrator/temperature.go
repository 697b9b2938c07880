package orchestrator

import (
	"strings"

	"github.com/danielpatrickdp/sara-line/go-bot/internal/session"
	"github.com/danielpatrickdp/sara-line/go-bot/internal/signals"
)

// #region temperature

// TemperatureScore returns 1 when the reply may be warm and 0 when it must stay
// cautious. Silence overrides everything, then low energy, then eagerness.
func TemperatureScore(text string, _ session.Slots, phase session.Phase, streak int) int {
	t := strings.TrimSpace(text)
	switch {
	case phase == session.PhaseWaitingReply && streak >= 1:
		return 0
	case signals.IsLowEnergy(t):
		return 0
	case signals.IsEager(t):
		return 1
	case phase == session.PhaseAfterReply:
		return 1
	}
	return 0
}

var (
	warmTone = strings.Join([]string{
		"テンションは明るめでOK。でも圧は上げない。",
		"短く、具体に。質問は1つまで。",
		"長文・詰め・催促はしない。",
	}, "\n")
	coolTone = strings.Join([]string{
		"圧を下げて、具体を上げる。短く、軽く、逃げ道。",
		"追撃しない。確認で詰めない。",
		"送るなら低圧の1通だけ。質問は1つまで。",
	}, "\n")
)

// ToneGuidance returns the fixed tone block for a score.
func ToneGuidance(score int) string {
	if score >= 1 {
		return warmTone
	}
	return coolTone
}

// #endregion
