package orchestrator

// #region imports
import (
	"regexp"
	"strings"

	"github.com/samber/lo"

	"github.com/danielpatrickdp/sara-line/go-bot/internal/session"
	"github.com/danielpatrickdp/sara-line/go-bot/internal/signals"
)

// #endregion

// #region rule-ids

// RuleID names one constraint in the policy bundle.
type RuleID string

const (
	RuleNoUnfoundedClaims  RuleID = "no_unfounded_claims"
	RuleNoForcedChoice     RuleID = "no_forced_choice"
	RuleScheduleTemplate   RuleID = "schedule_template"
	RuleRecipientClarify   RuleID = "recipient_clarify"
	RuleClarifyOnce        RuleID = "clarify_once"
	RuleNoBlame            RuleID = "no_blame"
	RuleNoPressurePhrases  RuleID = "no_pressure_phrases"
	RuleShortDraft         RuleID = "short_draft"
	RuleOneProposal        RuleID = "one_proposal"
	RuleReunionPhrases     RuleID = "reunion_phrases"
	RuleReunionLightEntry  RuleID = "reunion_light_entry"
	RuleNoRecontact        RuleID = "no_recontact"
	RuleNoNagging          RuleID = "no_nagging"
	RuleNoScheduling       RuleID = "no_scheduling"
	RuleReceiveAndExit     RuleID = "receive_and_exit"
	RuleNotSendingValid    RuleID = "not_sending_valid"
	RuleOneDraft           RuleID = "one_draft"
	RuleExplicitTiming     RuleID = "explicit_timing"
	RuleAcknowledgeFirst   RuleID = "acknowledge_first"
	RuleReplyDraft         RuleID = "reply_draft"
	RuleLowEnergyReply     RuleID = "low_energy_reply"
	RuleDeEscalate         RuleID = "de_escalate"
	RuleLowPressureDefault RuleID = "low_pressure_default"
	RuleVaryPhrasing       RuleID = "vary_phrasing"
)

// Rule is one natural-language directive for the generator.
type Rule struct {
	ID   RuleID
	Text string
}

// #endregion

// #region rule-sets

var baseRules = []Rule{
	{RuleNoUnfoundedClaims, "一般知識/ゲーム/時事など、確信がない内容は断言しない。分からない時は「分からない」と言い、確認質問は1つだけ。"},
	{RuleNoForcedChoice, "相手に送る文面に「どっち」「どちら」を入れない。"},
	{RuleScheduleTemplate, "日程提案をする場合は「○日か○日あたり空いてたら嬉しい。都合いい日あれば教えて」型に寄せる。"},
	{RuleRecipientClarify, "ユーザーの「送っていい？/コピペでいい？/スクショでいい？」は、宛先（サラ宛か相手宛）を文脈で判定する。"},
	{RuleClarifyOnce, "判定できない時だけ、最初に確認質問を1つだけする（それ以外で選ばせない）。"},
	{RuleNoBlame, "相手を責める、詰める、コントロールする誘導はしない。"},
	{RuleNoPressurePhrases, "相手に送る文面で「なんで返事くれないの？」「既読なのに」系は禁止。"},
	{RuleShortDraft, "文面は必ず「」で、1〜2文。長文は禁止。"},
	{RuleOneProposal, "提案は基本1案。例外でも2案まで。"},
}

var reunionRules = []Rule{
	{RuleReunionPhrases, "復縁は圧ワード厳禁：「戻りたい」「やり直したい」「会って話したい」直球は今は避ける。"},
	{RuleReunionLightEntry, "謝罪を盛らない。重さを出さず、入口（軽い接触）を作る。"},
}

var waitingRules = []Rule{
	{RuleNoRecontact, "返信待ちは基本「追撃しない」。送るなら低圧の1通だけ。"},
	{RuleNoNagging, "催促・連投・追い質問は禁止。質問は1つまで。"},
}

// ignoredRules accumulate once the silence has been confirmed at least once.
var ignoredRules = []Rule{
	{RuleNoScheduling, "既読無視が続いている局面では、会う日程を聞く/日程調整の提案をしない。"},
	{RuleReceiveAndExit, "この局面で送るなら「受け止め＋逃げ道」の1通だけ。要求（会う・日程・返信の催促）を入れない。"},
	{RuleNotSendingValid, "送らない判断も正解。送らない場合は「いつまで待つか」だけ具体に示す。"},
}

var beforeSendRules = []Rule{
	{RuleOneDraft, "送信前は「これを送る」の1案で決める。確認で止めすぎない。"},
	{RuleExplicitTiming, "タイミングも必ず指定する（今日/明日/2日後＋時間帯）。"},
}

var afterReplyRules = []Rule{
	{RuleAcknowledgeFirst, "返信後は最初に「受け止め」を1文入れる（相手の内容に反応）。その後に前進の一手。"},
	{RuleReplyDraft, "返しの文面を必ず「」で作る（1〜2文）。"},
	{RuleLowEnergyReply, "相手が「忙しい/余裕ない/疲れた/ごめん」系なら、日程を詰めず、逃げ道のある低圧返しにする。"},
}

var (
	deEscalateRule   = Rule{RuleDeEscalate, "この局面では日程押し・詰めはしない。"}
	lowPressureRule  = Rule{RuleLowPressureDefault, "迷ったら低圧。短く、具体、逃げ道。"}
	varyPhrasingRule = Rule{RuleVaryPhrasing, "前回と同じ助言になりそうなら、言い回しと切り口を変える。同じ文面を繰り返さない。"}
)

// messagePatterns are example phrasings the generator may lean on.
var messagePatterns = []string{
	"受け止め（要求ゼロ）例：「了解。忙しそうなら無理しないで。落ち着いたらで大丈夫だよ」",
	"受け止め（超短）例：「大丈夫。落ち着いたらでいいよ」",
	"共有（要求ゼロ）例：「今日これ見てちょっと笑った。落ち着いたら話そ」",
	"低温返信への返し例：「了解、今は無理しないで。落ち着いたらまた話そ」",
	"日程提案（使う場合）：「○日か○日あたり空いてたら嬉しい。都合いい日あれば教えて」",
	"謝罪例（言い訳なし）：「昨日は言い方きつくてごめんね。落ち着いたらまた話せたら嬉しい」",
}

var reunionStagePattern = regexp.MustCompile(`(?i)(post-breakup|broke up|breakup|reconcil|別れた|復縁)`)

// #endregion

// #region policy-types

// PolicyInput is what the builder needs for one turn.
type PolicyInput struct {
	Slots        session.Slots
	Phase        session.Phase
	IgnoreStreak int
	Text         string
	Repeated     bool // advice signature unchanged since the last turn
}

// PolicyBundle is the constraint set handed to the generator.
type PolicyBundle struct {
	Rules       []Rule
	Patterns    []string
	Temperature int
	Tone        string
}

// Has reports whether the bundle contains rule id.
func (b PolicyBundle) Has(id RuleID) bool {
	return lo.ContainsBy(b.Rules, func(r Rule) bool { return r.ID == id })
}

// IDs lists the rule ids in order.
func (b PolicyBundle) IDs() []string {
	return lo.Map(b.Rules, func(r Rule, _ int) string { return string(r.ID) })
}

// Render formats the bundle as the prompt section the generator reads.
func (b PolicyBundle) Render() string {
	var sb strings.Builder
	sb.WriteString("【絶対ルール】\n")
	for _, r := range b.Rules {
		sb.WriteString("・")
		sb.WriteString(r.Text)
		sb.WriteString("\n")
	}
	if len(b.Patterns) > 0 {
		sb.WriteString("\n【言い回しの型】\n")
		for _, p := range b.Patterns {
			sb.WriteString("・")
			sb.WriteString(p)
			sb.WriteString("\n")
		}
	}
	if b.Tone != "" {
		sb.WriteString("\n【温度感】\n")
		sb.WriteString(b.Tone)
		sb.WriteString("\n")
	}
	return strings.TrimRight(sb.String(), "\n")
}

// #endregion

// #region build-policy

// BuildPolicy assembles the constraints for one turn. Layers only ever add:
// the reunion list sits on top of the phase rules, and the ignored-streak rules
// on top of the waiting rules.
func BuildPolicy(in PolicyInput) PolicyBundle {
	rules := append([]Rule{}, baseRules...)

	if reunionStagePattern.MatchString(in.Slots.Get(session.SlotRelationshipStage)) {
		rules = append(rules, reunionRules...)
	}

	switch in.Phase {
	case session.PhaseWaitingReply:
		rules = append(rules, waitingRules...)
		if in.IgnoreStreak >= 1 {
			rules = append(rules, ignoredRules...)
		}
	case session.PhaseBeforeSend:
		rules = append(rules, beforeSendRules...)
	case session.PhaseAfterReply:
		rules = append(rules, afterReplyRules...)
		if signals.IsLowEnergy(in.Text) {
			rules = append(rules, deEscalateRule)
		}
	default:
		rules = append(rules, lowPressureRule)
	}

	if in.Repeated {
		rules = append(rules, varyPhrasingRule)
	}

	score := TemperatureScore(in.Text, in.Slots, in.Phase, in.IgnoreStreak)
	return PolicyBundle{
		Rules:       lo.UniqBy(rules, func(r Rule) RuleID { return r.ID }),
		Patterns:    append([]string{}, messagePatterns...),
		Temperature: score,
		Tone:        ToneGuidance(score),
	}
}

// #endregion
