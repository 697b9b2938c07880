package llm

// #region imports
import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/openai/openai-go"
	"github.com/pkg/errors"
	"github.com/samber/lo"

	"github.com/danielpatrickdp/sara-line/go-bot/internal/orchestrator"
	"github.com/danielpatrickdp/sara-line/go-bot/internal/plan"
	"github.com/danielpatrickdp/sara-line/go-bot/internal/session"
)

// #endregion

// #region generate

// Generate produces Sara's reply for one paid turn. It satisfies orchestrator.Generator.
func (c *Client) Generate(ctx context.Context, req orchestrator.GenerateRequest) (string, error) {
	msgs := []openai.ChatCompletionMessageParamUnion{openai.SystemMessage(req.System)}
	for _, n := range req.Nudges {
		msgs = append(msgs, openai.SystemMessage(n))
	}
	msgs = append(msgs, historyMessages(req.History)...)
	msgs = append(msgs, openai.UserMessage(req.UserText))

	return c.complete(ctx, openai.ChatCompletionNewParams{
		Model:               openai.ChatModel(c.cfg.ChatModel),
		Messages:            msgs,
		Temperature:         openai.Float(c.cfg.ChatTemperature),
		MaxCompletionTokens: openai.Int(c.cfg.ChatMaxTokens),
	})
}

func historyMessages(history []session.Turn) []openai.ChatCompletionMessageParamUnion {
	return lo.FilterMap(history, func(t session.Turn, _ int) (openai.ChatCompletionMessageParamUnion, bool) {
		text := strings.TrimSpace(t.Text)
		switch {
		case text == "":
			return openai.ChatCompletionMessageParamUnion{}, false
		case t.Role == session.RoleAssistant:
			return openai.AssistantMessage(text), true
		default:
			return openai.UserMessage(text), true
		}
	})
}

// #endregion

// #region slot-assist

const assistSystem = `あなたは恋愛相談の情報抽出担当。
出力は厳密なJSONオブジェクト1個のみ。分からない項目は null。推測で埋めない。`

func buildAssistPrompt(text string, known map[string]string) string {
	raw, _ := json.Marshal(known)
	return `ユーザーの発言から、まだ分かっていない項目だけを抽出してJSONで返して。
キー：relationshipStage, partnerSpeed, partnerType, lastMet, silence, goal, fear, lastSender
partnerSpeed は fast/slow/irregular、partnerType は busy/shy/cool/warm、lastSender は self/other。
他の値は短い英語の句（例：post-breakup, 2 days, make up）。

既知の情報：` + string(raw) + `

発言：
` + text
}

// AssistSlots asks the model for slot values the regex layer missed. It
// satisfies slots.Assistant; the caller sanitizes the result.
func (c *Client) AssistSlots(ctx context.Context, text string, known map[string]string) (map[string]any, error) {
	raw, err := c.completeJSON(ctx, c.cfg.AssistModel, assistSystem, buildAssistPrompt(text, known))
	if err != nil {
		return nil, err
	}
	obj, err := plan.ParseJSONObject(raw)
	if err != nil {
		return nil, errors.Wrap(err, "slot assist output")
	}
	return obj, nil
}

// #endregion

// #region summarize

const (
	summarySystem = `あなたは恋愛相談Botの「長期メモ作成」担当。
出力は短い日本語メモのみ。見出し・ラベル・箇条書きは禁止。
最大 600 文字。事実優先。推測は弱く（〜かも）に留める。
必須要素：関係性/相手特性/直近事実/現在フェーズ/今の方針/次の一手（いつ何を）/絶対NG（最大3）`
	summaryRecentTurns = 10
	summaryMaxTokens   = 420
)

// Summarize rewrites the rolling digest from the previous one and recent history.
// It satisfies orchestrator.Summarizer.
func (c *Client) Summarize(ctx context.Context, previous string, history []session.Turn) (string, error) {
	recent := lo.Map(orchestrator.HistoryWindow(history, summaryRecentTurns), func(t session.Turn, _ int) string {
		who := "ユーザー"
		if t.Role == session.RoleAssistant {
			who = "サラ"
		}
		return who + ": " + t.Text
	})
	if previous == "" {
		previous = "（なし）"
	}
	prompt := fmt.Sprintf("次の情報から、長期メモを更新して。\n前提がブレないことが最優先。長くしない。\n\n現在メモ：\n%s\n\n直近ログ：\n%s",
		previous, strings.Join(recent, "\n"))

	return c.complete(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(c.cfg.PlanModel),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(summarySystem),
			openai.UserMessage(prompt),
		},
		MaxCompletionTokens: openai.Int(summaryMaxTokens),
	})
}

// #endregion
