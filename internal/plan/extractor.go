package plan

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/log"

	"github.com/danielpatrickdp/sara-line/go-bot/internal/session"
)

// ErrInvalidPlan marks model output that does not validate as a plan.
var ErrInvalidPlan = errors.New("invalid plan")

// #region types

// Completer is the structured-output model call used for plan extraction.
// It returns the raw model text, ideally one JSON object.
type Completer interface {
	CompleteJSON(ctx context.Context, system, prompt string) (string, error)
}

// Result is a plan plus the path that produced it.
type Result struct {
	Plan   session.Plan
	Source session.PlanSource
	Err    error // why the model path was not used, if it was attempted
}

// Extractor turns advice text into a plan: model first, regex fallback.
type Extractor struct {
	completer Completer
	logger    *log.Logger
}

// NewExtractor creates an Extractor. A nil completer means heuristic only.
func NewExtractor(completer Completer, logger *log.Logger) *Extractor {
	if logger == nil {
		logger = log.Default()
	}
	return &Extractor{completer: completer, logger: logger}
}

// #endregion types

// #region prompt

const systemPrompt = `あなたは出力解析専用。
出力は厳密なJSONオブジェクト1個のみ。
余計な文章、説明、コードフェンスは禁止。`

func buildPrompt(text string) string {
	return `次のテキストから、方針と具体を抽出してJSONで返して。
キーは action,timing,draft,ng のみ。

action は send/wait/confirm/observe のいずれか。
timing は短く（例：明日20時、今日夜、2日後の夜）。
draft は相手に送る文面がある場合のみ（1〜2文）。なければ null。
「言わない方がいい例」や禁止例は draft にしない。
ng は最大3つ。なければ []。

テキスト：
` + text
}

// #endregion prompt

// #region extract

// Extract never fails: a model error or invalid output falls back to Heuristic.
// Blank text yields an observe plan marked unavailable.
func (e *Extractor) Extract(ctx context.Context, text string) Result {
	if strings.TrimSpace(text) == "" {
		action := session.ActionObserve
		return Result{Plan: session.Plan{Action: &action, NG: []string{}}, Source: session.PlanUnavailable}
	}
	if e.completer == nil {
		return Result{Plan: Heuristic(text), Source: session.PlanHeuristic}
	}

	raw, err := e.completer.CompleteJSON(ctx, systemPrompt, buildPrompt(text))
	if err != nil {
		e.logger.Warn("plan extraction call failed, using heuristic", "err", err)
		return Result{Plan: Heuristic(text), Source: session.PlanHeuristic, Err: err}
	}
	p, err := Parse(raw)
	if err != nil {
		e.logger.Debug("plan extraction output rejected", "err", err)
		return Result{Plan: Heuristic(text), Source: session.PlanHeuristic, Err: err}
	}
	return Result{Plan: p, Source: session.PlanExtracted}
}

// #endregion extract

// #region validate

// Parse validates model output into a plan. The action must be one of the four
// fixed values; other fields are clipped to their bounds. A draft with forced-choice
// or pressure phrasing is dropped.
func Parse(raw string) (session.Plan, error) {
	obj, err := ParseJSONObject(raw)
	if err != nil {
		return session.Plan{}, err
	}

	s, _ := obj["action"].(string)
	action, ok := session.ParseAction(strings.ToLower(strings.TrimSpace(s)))
	if !ok {
		return session.Plan{}, fmt.Errorf("%w: action %q", ErrInvalidPlan, s)
	}

	p := session.Plan{Action: &action, NG: []string{}}
	if v := stringField(obj["timing"]); v != "" {
		v = truncateRunes(v, MaxTimingRunes)
		p.Timing = &v
	}
	if v := stringField(obj["draft"]); v != "" && !IsForcedChoice(v) && !IsPressure(v) {
		v = truncateRunes(v, MaxDraftRunes)
		p.Draft = &v
	}
	if items, ok := obj["ng"].([]any); ok {
		for _, it := range items {
			if v := stringField(it); v != "" {
				p.NG = append(p.NG, truncateRunes(v, MaxNGRunes))
			}
			if len(p.NG) >= MaxNG {
				break
			}
		}
	}
	return p, nil
}

// ParseJSONObject decodes the whole text as a JSON object, else the span from
// the first '{' to the last '}'.
func ParseJSONObject(raw string) (map[string]any, error) {
	raw = strings.TrimSpace(raw)
	var obj map[string]any
	if err := json.Unmarshal([]byte(raw), &obj); err == nil && obj != nil {
		return obj, nil
	}
	start, end := strings.Index(raw, "{"), strings.LastIndex(raw, "}")
	if start < 0 || end <= start {
		return nil, fmt.Errorf("%w: no json object", ErrInvalidPlan)
	}
	if err := json.Unmarshal([]byte(raw[start:end+1]), &obj); err != nil || obj == nil {
		return nil, fmt.Errorf("%w: malformed json object", ErrInvalidPlan)
	}
	return obj, nil
}

func stringField(v any) string {
	switch x := v.(type) {
	case string:
		s := strings.TrimSpace(x)
		if strings.EqualFold(s, "null") {
			return ""
		}
		return s
	case float64, bool:
		return fmt.Sprint(x)
	}
	return ""
}

// #endregion validate
