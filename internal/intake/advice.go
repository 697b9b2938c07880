package intake

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/samber/lo"

	"github.com/danielpatrickdp/sara-line/go-bot/internal/session"
	"github.com/danielpatrickdp/sara-line/go-bot/internal/slots"
)

// #region replies

const (
	redirectReply = "ここは恋愛の話だけね💋\n挨拶は受け取った。\n\nいまの恋の状況を1〜2行で。\n（例：オンラインの子が気になる／既読無視／復縁したい など）"

	goalQuestion = "うん。\nいま一番したいことは？（告白/復縁/距離縮めたい など）"

	goalChoices = "目的を決めるわ💋\nいま一番したいことはどれ？\n\n" +
		"・距離を縮めたい\n・既読無視を解決したい\n・告白したい\n・復縁したい\n・仲直りしたい\n\n" +
		"この中で一番近いのを1つでいい。"

	safetyReply = "その話はここでは深掘りしないわ💋\n線引きは守りなさい。\n\nいまの恋の状況なら聞く。1〜2行で。"

	// PaywallHint tells a gated user how to continue.
	PaywallHint = "（有料に進むなら「▶ 続きを見る（有料）」って送って）"
)

// #endregion replies

// #region light-advice

// Advice is the free-stage suggestion: a direction, first moves, things to avoid and two openers.
type Advice struct {
	Kind      string
	Direction string
	Do        []string
	NG        []string
	Templates [2]string
}

type adviceRule struct {
	name  string
	match func(problem, goal string) bool
	build Advice
}

var (
	readIgnored = regexp.MustCompile(`(?i)(既読無視|未読無視|既読スルー|未読スルー|返信ない|返ってこない|left on read|no reply|ghost)`)
	reconcile   = regexp.MustCompile(`(?i)(復縁|別れ|元カレ|元カノ|\bmy ex\b|broke up|reconcile)`)
	confess     = regexp.MustCompile(`(?i)(告白|付き合|confess|start dating)`)
	closer      = regexp.MustCompile(`(?i)(距離|仲良く|近づ|get closer)`)
)

var defaultAdvice = Advice{
	Kind:      "default",
	Direction: "まずは相手の温度と前提（関係性/距離感）を揃えるのが勝ち筋♡",
	Do: []string{
		"相手の反応が分かる材料を集める（直近のやり取り／相手の言い回し／既読未読）",
		"“返しやすい球”を1回だけ投げて様子見（質問は短く、重くしない）",
	},
	NG: []string{"詰問（なんで返さないの？）", "長文連投／感情爆発／試す駆け引き"},
	Templates: [2]string{
		"「今ちょっとバタバタ？落ち着いたらでいいから、ひとことだけ返して〜🙂」",
		"「これだけ聞きたいんだけど、今週って忙しい？」",
	},
}

// Later rules override earlier ones, so the most specific situation wins.
var adviceRules = []adviceRule{
	{
		name:  "read_ignored",
		match: func(p, _ string) bool { return readIgnored.MatchString(p) },
		build: Advice{
			Direction: "既読無視は“追撃の質”で勝負が決まる。重くせず、返しやすく♡",
			Do: []string{
				"追撃は“1回だけ”にする（連投しない）",
				"質問は Yes/No か短文で返せる形にする",
				"24時間〜様子見して、相手の生活リズムを読む",
			},
			NG: []string{"責める（なんで無視？）", "病む匂わせ／重い確認", "連投で圧をかける"},
			Templates: [2]string{
				"「今って忙しい？落ち着いたらでいいから、ひとことだけ返して🙂」",
				"「今日ふと思い出したんだけどさ、◯◯ってまだ好き？」",
			},
		},
	},
	{
		name: "reconcile",
		match: func(p, g string) bool {
			return reconcile.MatchString(p) || g == slots.GoalReconcile || strings.Contains(g, "復縁")
		},
		build: Advice{
			Direction: "復縁は“感情”より“再接続の空気作り”が先。焦ると負けるわ💋",
			Do: []string{
				"いきなり関係を戻そうとしない（まず雑談レベルで再接続）",
				"相手が返しやすい“軽い近況”から入る",
				"反応が薄いなら深追いしない（撤退も勝ち筋）",
			},
			NG: []string{"謝罪長文", "いきなり復縁要求", "過去の蒸し返し"},
			Templates: [2]string{
				"「久しぶり。ふと思い出しただけ。元気にしてた？」",
				"「近く通ったから思い出した。最近どう？」",
			},
		},
	},
	{
		name: "confess",
		match: func(p, g string) bool {
			return confess.MatchString(p) || confess.MatchString(g) || g == slots.GoalDate
		},
		build: Advice{
			Direction: "告白は“関係の土台”→“意思表示”の順。いきなり凸ると危ない♡",
			Do: []string{
				"相手の好意サイン（会話の濃さ/頻度/誘いへの反応）を1つ拾う",
				"次の接点（通話/一緒に遊ぶ/会う）を増やして温度を整える",
			},
			NG: []string{"雰囲気任せの突然告白", "返事を急かす", "重い覚悟語り"},
			Templates: [2]string{
				"「今度、◯◯一緒にしよ。時間合う日ある？」",
				"「最近話すの楽しい。もうちょい一緒にいたいな」",
			},
		},
	},
	{
		name: "closer",
		match: func(p, g string) bool {
			return (closer.MatchString(g) || g == slots.GoalCloser) && !confess.MatchString(p) && !confess.MatchString(g)
		},
		build: Advice{
			Direction: "距離を縮めるなら『頻度』より“安心感の一貫性”が強い♡",
			Do: []string{
				"相手が返しやすい“軽い共有＋短い質問”で接点を作る",
				"相手の生活リズムに合わせて、無理に追わない",
			},
			NG: []string{"反応に一喜一憂して態度がブレる", "駆け引きで試す"},
			Templates: [2]string{
				"「今日ちょっと笑った話ある。時間ある時に聞いてw」",
				"「今度また一緒にやろ。次は◯◯試したい」",
			},
		},
	},
}

// LightAdvice picks the advice block for a problem line and a goal.
func LightAdvice(problem, goal string) Advice {
	problem, goal = strings.TrimSpace(problem), strings.TrimSpace(goal)
	out := defaultAdvice
	for _, r := range adviceRules {
		if r.match(problem, goal) {
			out = r.build
			out.Kind = r.name
		}
	}
	return out
}

// Render formats the advice the way it is sent on LINE.
func (a Advice) Render() string {
	sub := func(items []string) string {
		return strings.Join(lo.Map(items, func(s string, _ int) string { return "\n  - " + s }), "")
	}
	return strings.Join([]string{
		"【軽い提案（案）】",
		"・方向性：" + a.Direction,
		"・まずやること：" + sub(a.Do),
		"・NG：" + sub(a.NG),
		"",
		"【雛形（まだ“完成設計”じゃない）】💋",
		"- " + a.Templates[0],
		"- " + a.Templates[1],
	}, "\n")
}

// #endregion light-advice

// #region bridge

var actionGoal = regexp.MustCompile(`会いたい|付き合いたい|告白|復縁|仲直り`)

// NeedsStrategy reports whether the collected intake already calls for a concrete move.
func NeedsStrategy(s session.Slots) bool {
	goal := s.Get(session.SlotGoal)
	switch goal {
	case slots.GoalMeet, slots.GoalDate, slots.GoalReconcile, slots.GoalMakeUp:
		return true
	}
	if actionGoal.MatchString(goal) {
		return true
	}
	return s.Get(session.SlotCategory) == "REPLY" && s.Has(session.SlotSilence)
}

var bridges = map[string]string{
	"EX":      "復縁は入口を間違えたら終わる。\n直球はまだ危ない。\n\n勝ち筋を組むなら、有料でやる💋",
	"REPLY":   "既読放置は温度管理ミスると詰む。\n送るか待つかはタイミングで変わる。\n\nここからは有料で決める💋",
	"CONFESS": "告白はタイミングが9割。\n勢いでやると後悔する。\n\n設計するなら有料💋",
	"FIGHT":   "謝り方ひとつで関係は逆転する。\nここ雑にやると取り返せない。\n\n本気で戻すなら有料でいく💋",
}

// Bridge is the free-to-paid transition line for a category.
func Bridge(category string, needStrategy bool) string {
	if needStrategy {
		return "――\nここまでは“読み”。\nここからは“動き”。\n\n動きは雑にやると一気に冷える。\n勝ちにいくなら、有料で設計する💋"
	}
	if b, ok := bridges[category]; ok {
		return "――\n" + b
	}
	return "――\nここから先は“動き”。\n中途半端にやると負ける。\n\n勝ちたいなら、有料でいく💋"
}

// Closing is the final free-stage reply. goalLine is the user's own wording of the goal;
// the advice is picked from it and from the stored slots.
func Closing(s session.Slots, goalLine string) string {
	problem, goal := s.Get(session.SlotProblem), s.Get(session.SlotGoal)
	advice := LightAdvice(problem, goal)
	if goalLine != "" && advice.Kind == defaultAdvice.Kind {
		advice = LightAdvice(problem, goalLine)
	}
	return fmt.Sprintf("状況は整理できたわ💋\n\n・いまの状況：%s\n・狙い：%s\n\n%s\n\n%s\n\n%s",
		problem, lo.CoalesceOrEmpty(goalLine, goal),
		advice.Render(),
		Bridge(s.Get(session.SlotCategory), NeedsStrategy(s)),
		PaywallHint)
}

// #endregion bridge
