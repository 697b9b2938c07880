package orchestrator

// #region imports
import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/samber/lo"

	"github.com/danielpatrickdp/sara-line/go-bot/internal/session"
)

// #endregion

// #region prompt-limits

const (
	summaryRunes       = 900
	imageSummaryRunes  = 650
	maxQuoteTurns      = 2
	maxAmbiguousRefs   = 5
	maxMissingQuestion = 3
	defaultUserLabel   = "あなた"
	defaultOtherLabel  = "相手"
)

// #endregion

// #region persona

const personaTemplate = `あなたは恋愛相談バーのママ「サラ」。
舞台は深夜のカウンター。相手は“客”。口調は強め・色気・現実。

【絵文字の使い方】
・💋 は “区切り” と “覚悟の一言” に。
・♡/❤ は “受け止め” と “背中を押す一言” に。
・自然に、でも少なすぎない（目安：1〜3個）。

【呼び名】
・相談者（右側/USER）：%[1]s
・相手（左側/OTHER）：%[2]s
※引用や説明ではこの呼び名を優先して使う。

【人格】
・断定口調で手綱を握る。甘やかさない。でも必ず味方♡
・勝ち筋（戦略/言い方/順序/間合い）を短く出す。
・無駄に長文にしない。1〜2手先まで。

【画像の読み方】
・スクショは「右＝%[1]s（相談者/USER）」「左＝%[2]s（相手/OTHER）」。
・この前提を崩さない。曖昧な時だけ、確認を1〜2問。

【サラ誤認防止】
・ユーザーが「サラ」と言った時、それはあなた自身を指す可能性が高い。相手の呼び名だと決め打ちしない。
・相手の呼び名としての「サラ」だと断定できない場合は、1問だけ確認する。

【ズレ対策】
・人物関係は決め打ち禁止。「先輩/友達/誰か」など曖昧参照が出たら、まず1問だけ確認してから設計。
・曖昧さが残る状態で、嫉妬・ライバル前提の戦略を組まない。

【会話ルール】
・内部コード名や内部分類は出さない。
・材料が無いなら先に素材回収。
・画像を読めた場合は、冒頭に「読めた要点」と「拾ったセリフ」の2行を入れる。
・最後は「次に送るもの」を1行で指定。

【雑談許可】
・雑談OK。雑談を無理に戦略に戻さない。恋愛の相談に戻せるなら、最後に一言で戻す。`

// clarifyNudge is added when the latest context leaves people or facts ambiguous.
const clarifyNudge = "【注意】文脈が曖昧。最初に確認質問を1〜2個だけしてから設計に入ること。確認が取れるまでは、具体例文や細かい手順に踏み込まない。"

// #endregion

// #region prompt-input

// PromptInput is what the system prompt is assembled from.
type PromptInput struct {
	Slots     session.Slots
	Phase     session.Phase
	Mode      session.Mode
	Summary   string
	LastImage *session.ImageInsight
	Labels    session.Labels
	Policy    PolicyBundle
}

// #endregion

// #region build-prompt

// BuildSystemPrompt renders persona, policy and session facts into one system message.
func BuildSystemPrompt(in PromptInput) string {
	userLabel := labelOr(in.Labels.CalledByOther, defaultUserLabel)
	otherLabel := labelOr(in.Labels.CalledByUser, defaultOtherLabel)

	var sb strings.Builder
	fmt.Fprintf(&sb, personaTemplate, userLabel, otherLabel)
	sb.WriteString("\n\n")
	sb.WriteString(in.Policy.Render())

	sb.WriteString("\n\n【固定情報】\n")
	sb.WriteString(slotsJSON(in.Slots))

	fmt.Fprintf(&sb, "\n\n【現在フェーズ】%s\n【現在モード】%s", orUnknown(string(in.Phase)), orDefault(string(in.Mode), string(session.ModeChat)))
	fmt.Fprintf(&sb, "\n\n【長期メモ（要約）】\n%s", orNone(clipRunes(in.Summary, summaryRunes)))

	img := in.LastImage
	if img == nil {
		img = &session.ImageInsight{}
	}
	fmt.Fprintf(&sb, "\n\n【直近画像要約】\n%s", orNone(clipRunes(img.Summary, imageSummaryRunes)))
	fmt.Fprintf(&sb, "\n\n【直近画像：拾ったセリフ】\n%s", formatQuoteTurns(img.QuoteTurns, userLabel, otherLabel))
	fmt.Fprintf(&sb, "\n\n【直近画像：曖昧な参照】\n%s", orNone(strings.Join(lo.Slice(nonEmpty(img.AmbiguousRefs), 0, maxAmbiguousRefs), " / ")))

	missing := lo.Map(lo.Slice(nonEmpty(img.MissingQuestions), 0, maxMissingQuestion), func(q string, _ int) string { return "・" + q })
	fmt.Fprintf(&sb, "\n\n【直近画像：追加で聞くべきこと】\n%s", orNone(strings.Join(missing, "\n")))

	return sb.String()
}

// NeedsClarify reports whether the generator should ask before designing.
func NeedsClarify(img *session.ImageInsight, ambiguousPersons []string) bool {
	if img != nil && (len(nonEmpty(img.AmbiguousRefs)) > 0 || len(nonEmpty(img.MissingQuestions)) > 0) {
		return true
	}
	return len(ambiguousPersons) > 0
}

// HistoryWindow returns the most recent n turns.
func HistoryWindow(history []session.Turn, n int) []session.Turn {
	if n <= 0 || len(history) <= n {
		return append([]session.Turn{}, history...)
	}
	return append([]session.Turn{}, history[len(history)-n:]...)
}

// #endregion

// #region helpers

func slotsJSON(s session.Slots) string {
	flat := make(map[string]string, len(s))
	for name, v := range s {
		if v.Value != "" {
			flat[string(name)] = v.Value
		}
	}
	raw, err := json.MarshalIndent(flat, "", "  ")
	if err != nil {
		return "{}"
	}
	return string(raw)
}

func formatQuoteTurns(turns []session.QuoteTurn, userLabel, otherLabel string) string {
	q := lo.Slice(lo.Filter(turns, func(t session.QuoteTurn, _ int) bool { return strings.TrimSpace(t.Text) != "" }), 0, maxQuoteTurns)
	if len(q) == 0 {
		return "（なし）"
	}
	parts := lo.Map(q, func(t session.QuoteTurn, _ int) string {
		speaker := "不明"
		switch t.Speaker {
		case "USER":
			speaker = userLabel
		case "OTHER":
			speaker = otherLabel
		}
		return speaker + "『" + strings.TrimSpace(t.Text) + "』"
	})
	return strings.Join(parts, " / ")
}

func nonEmpty(items []string) []string {
	return lo.Filter(items, func(s string, _ int) bool { return strings.TrimSpace(s) != "" })
}

func labelOr(v, def string) string {
	if s := strings.TrimSpace(v); s != "" {
		return s
	}
	return def
}

func orNone(s string) string { return orDefault(s, "（なし）") }

func orUnknown(s string) string { return orDefault(s, string(session.PhaseUnknown)) }

func orDefault(s, def string) string {
	if strings.TrimSpace(s) == "" {
		return def
	}
	return s
}

// #endregion
