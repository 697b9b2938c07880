package llm

// #region imports
import (
	"context"
	"encoding/base64"
	"regexp"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/shared"
	"github.com/pkg/errors"
	"github.com/samber/lo"

	"github.com/danielpatrickdp/sara-line/go-bot/internal/plan"
	"github.com/danielpatrickdp/sara-line/go-bot/internal/session"
)

// #endregion

// #region prompt

const (
	visionSystem = `あなたは画像解析アシスタント。日本語。
入力は主にLINEのトークスクリーンショット。
原則：右側の吹き出し=相談者（あなた）、左側の吹き出し=相手。
補足テキストに呼び名があれば、発言者ラベル付けに活用する。
読み取れない部分は無理に断定せず「不明」にする。
出力は必ずJSONのみ。`

	visionInstruction = `次のJSONだけ返して。
{
  "kind": "CHAT_SCREENSHOT" | "OTHER",
  "extractedLines": ["USER: 発言" または "OTHER: 発言", "..."],
  "summary": "状況の要約（2〜5行）",
  "userIntent": "相談意図",
  "suggestedUserText": "画像の内容を踏まえてボットに送るべき相談文（200〜400文字程度）",
  "ambiguousRefs": ["誰を指すか曖昧な呼び方（最大5つ）"],
  "missingQuestions": ["追加で聞くべきこと（最大3つ）"]
}
JSON以外の文字は出さない。`

	maxExtractedLines   = 40
	maxQuoteTurns       = 2
	maxAmbiguousRefs    = 5
	maxMissingQuestions = 3
)

var speakerPrefix = regexp.MustCompile(`^\s*([^:：]{1,12})\s*[:：]\s*(.+)$`)

// #endregion

// #region analyze

// AnalyzeImage reads a screenshot and returns what it shows. hint is the
// user's accompanying text, used for speaker labels.
func (c *Client) AnalyzeImage(ctx context.Context, data []byte, mimeType, hint string) (*session.ImageInsight, error) {
	if len(data) == 0 {
		return nil, errors.New("vision: empty image")
	}
	if mimeType == "" {
		mimeType = "image/jpeg"
	}
	dataURL := "data:" + mimeType + ";base64," + base64.StdEncoding.EncodeToString(data)

	instruction := visionInstruction
	if h := strings.TrimSpace(hint); h != "" {
		instruction = "補足テキスト（ユーザー入力）：" + h + "\n\n" + instruction
	}

	raw, err := c.complete(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(c.cfg.VisionModel),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(visionSystem),
			openai.UserMessage([]openai.ChatCompletionContentPartUnionParam{
				openai.TextContentPart(instruction),
				openai.ImageContentPart(openai.ChatCompletionContentPartImageImageURLParam{URL: dataURL}),
			}),
		},
		Temperature: openai.Float(c.cfg.VisionTemperature),
		ResponseFormat: openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &shared.ResponseFormatJSONObjectParam{},
		},
	})
	if err != nil {
		return nil, errors.Wrap(err, "vision")
	}

	obj, err := plan.ParseJSONObject(raw)
	if err != nil {
		return nil, errors.Wrap(err, "vision output")
	}
	return insightFromJSON(obj, time.Now().UTC()), nil
}

// #endregion

// #region decode

// insightFromJSON keeps only well-typed fields and clips every list.
func insightFromJSON(obj map[string]any, at time.Time) *session.ImageInsight {
	lines := lo.Slice(stringList(obj["extractedLines"]), 0, maxExtractedLines)

	kind := "OTHER"
	if k, _ := obj["kind"].(string); strings.TrimSpace(k) == "CHAT_SCREENSHOT" {
		kind = "CHAT_SCREENSHOT"
	}

	return &session.ImageInsight{
		Kind:              kind,
		Summary:           tidy(stringOf(obj["summary"])),
		UserIntent:        tidy(stringOf(obj["userIntent"])),
		QuoteTurns:        lo.Slice(quoteTurns(lines), 0, maxQuoteTurns),
		AmbiguousRefs:     lo.Slice(stringList(obj["ambiguousRefs"]), 0, maxAmbiguousRefs),
		MissingQuestions:  lo.Slice(stringList(obj["missingQuestions"]), 0, maxMissingQuestions),
		SuggestedUserText: tidy(stringOf(obj["suggestedUserText"])),
		ExtractedLines:    len(lines),
		At:                at,
	}
}

// quoteTurns tags each "speaker: text" line. The latest lines come first.
func quoteTurns(lines []string) []session.QuoteTurn {
	out := make([]session.QuoteTurn, 0, len(lines))
	for i := len(lines) - 1; i >= 0; i-- {
		m := speakerPrefix.FindStringSubmatch(lines[i])
		if m == nil {
			out = append(out, session.QuoteTurn{Speaker: "UNKNOWN", Text: strings.TrimSpace(lines[i])})
			continue
		}
		out = append(out, session.QuoteTurn{Speaker: speakerOf(m[1]), Text: strings.TrimSpace(m[2])})
	}
	return out
}

func speakerOf(label string) string {
	l := strings.ToLower(strings.TrimSpace(label))
	switch {
	case l == "user" || strings.Contains(l, "あなた") || strings.Contains(l, "相談者") || strings.Contains(l, "右"):
		return "USER"
	case l == "other" || strings.Contains(l, "相手") || strings.Contains(l, "左"):
		return "OTHER"
	}
	return "UNKNOWN"
}

func stringOf(v any) string {
	s, _ := v.(string)
	return s
}

func stringList(v any) []string {
	items, _ := v.([]any)
	return lo.FilterMap(items, func(it any, _ int) (string, bool) {
		s, ok := it.(string)
		s = strings.TrimSpace(s)
		return s, ok && s != ""
	})
}

var blankRuns = regexp.MustCompile(`\n{3,}`)

func tidy(s string) string {
	return strings.TrimSpace(blankRuns.ReplaceAllString(strings.ReplaceAll(s, "\r\n", "\n"), "\n\n"))
}

// #endregion
