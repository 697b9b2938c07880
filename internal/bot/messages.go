package bot

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/samber/lo"

	"github.com/danielpatrickdp/sara-line/go-bot/internal/session"
)

// #region fixed-replies

const (
	welcomeReply = "いらっしゃい💋 サラよ。\nここは恋愛の勝ち筋を作る場所。\n状況をそのまま書きなさい。"

	screenshotOKReply = "送って💋\nトークスクショでも文章でもOK。\n個人情報は隠していいわよ。"

	imageQueuedReply = "受け取った💋\nいまのスクショ、次のメッセージで読み取るわ。\n\n「OK」って送って。\n（個人情報は隠していい）"

	imageFailedReply = "画像は受け取った。\nでも今ちょっと読み取りに失敗したわ💋\n\nスクショの内容を、テキストで1〜3行で貼って。どこが気になる？"

	checkoutPendingReply = "いま決済リンク作ってる最中💋\n1分だけ待てる？\n（待てないならもう一回送ってもいいけど、リンクが増えるだけよ）"

	checkoutFailedReply = "今、決済リンクの発行で詰まった💋\nもう一回「▶ 続きを見る（有料）」って送って。"

	gateReminderReply = "ここから先は有料よ💋\n続けるなら「▶ 続きを見る（有料）」って送って。"

	fallbackReply = "うまく読めなかったわ💋 もう一回。"

	imageHint = "LINEのトークスクショ。恋愛相談として必要な要点を抜き出して。"
)

// #endregion fixed-replies

// #region commands

var (
	paidButton = regexp.MustCompile(`(?i)(続き.*有料|continue \(paid\)|^continue paid$)`)
	resetWords = []string{"リセット", "reset"}
)

// IsPaidButton reports the text sent by the paid rich-menu button or a close variant.
func IsPaidButton(text string) bool {
	t := strings.TrimSpace(text)
	return paidButton.MatchString(t) || (strings.Contains(t, "▶") && strings.Contains(t, "有料"))
}

// IsReset reports the full-reset command.
func IsReset(text string) bool {
	t := strings.ToLower(strings.TrimSpace(text))
	return lo.Contains(resetWords, t)
}

// #endregion commands

// #region paid-content

// checkoutReply carries the subscription link.
func checkoutReply(url string) string {
	return fmt.Sprintf("ここからは設計モード💋\n月額¥980、縛りなし。いつでも解約できる。\n\n▶ 決済して続ける：%s\n\n決済が完了したら、そのままLINEで続けな。", url)
}

// paidIntro opens the paid chat with what the intake collected and asks for material.
func paidIntro(s session.Slots) string {
	or := func(name session.SlotName) string {
		return lo.CoalesceOrEmpty(s.Get(name), "未入力")
	}
	return "ここから先、有料パートよ💋\nまずは“素材”を出しなさい。\n\n" +
		"（いま取れてる情報）\n" +
		"・カテゴリ：" + or(session.SlotCategory) + "\n" +
		"・関係：" + or(session.SlotRelationshipStage) + "\n" +
		"・目的：" + or(session.SlotGoal) + "\n" +
		"・状況：" + or(session.SlotProblem) + "\n\n" +
		"次に送ってほしいもの（どれか1つでOK）：\n" +
		"1) 相手の返信が来てる → 本文をそのまま貼る（スクショでもOK）\n" +
		"2) 既読/未読で止まってる → いつから？（例：2日/1週間）\n" +
		"3) まだ送ってない → 送りたい内容を1行で（何を達成したいか）"
}

// mergeImageText joins the screenshot reading with what the user typed.
func mergeImageText(insight *session.ImageInsight, text string) string {
	synthetic := strings.TrimSpace(insight.SuggestedUserText)
	if synthetic == "" {
		summary := lo.CoalesceOrEmpty(strings.TrimSpace(insight.Summary), "要約が取れなかった")
		synthetic = "（トークスクショ要約）\n" + summary + "\n\n相談：この状況で次の一手を考えて。"
	}
	return synthetic + "\n\n（補足）" + text
}

// #endregion paid-content
