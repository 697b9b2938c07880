package eval

import (
	"github.com/danielpatrickdp/sara-line/go-bot/internal/session"
	"github.com/danielpatrickdp/sara-line/go-bot/internal/slots"
)

// intake is the free-stage answer sheet a case starts from.
type intake struct {
	problem, category         string
	lastMet, sender, silence  string
	goal, fear, stage         string
	partnerSpeed, partnerType string
}

func (in intake) toSlots() map[session.SlotName]string {
	out := map[session.SlotName]string{
		session.SlotProblem:           in.problem,
		session.SlotCategory:          in.category,
		session.SlotLastContact:       in.lastMet,
		session.SlotLastSender:        in.sender,
		session.SlotSilence:           in.silence,
		session.SlotGoal:              in.goal,
		session.SlotFear:              in.fear,
		session.SlotRelationshipStage: in.stage,
		session.SlotPartnerSpeed:      in.partnerSpeed,
		session.SlotPartnerType:       in.partnerType,
	}
	for k, v := range out {
		if v == "" {
			delete(out, k)
		}
	}
	return out
}

const (
	fearTooMuch  = "seeming too much"
	fearDisliked = "being disliked"
	fearAnxious  = "anxious"

	ignored = "既読無視"
)

var (
	waitExpect    = Expectation{Phase: session.PhaseWaitingReply, Action: session.ActionWait}
	afterSend     = Expectation{Phase: session.PhaseAfterReply, Action: session.ActionSend}
	beforeSend    = Expectation{Phase: session.PhaseBeforeSend, Action: session.ActionSend}
	beforeConfirm = Expectation{Phase: session.PhaseBeforeSend, Action: session.ActionConfirm}
)

// Cases returns the fixed scenario suite.
func Cases() []Case {
	c := func(name string, in intake, text string, exp Expectation) Case {
		return Case{Name: name, Slots: in.toSlots(), UserText: text, Expect: exp}
	}
	return []Case{
		c("never-met, read 3 days, fears seeming too much",
			intake{ignored, "REPLY", "never", session.SenderSelf, slots.SilenceThreeUp, slots.GoalMeet, fearTooMuch, slots.StageNeverMet, "slow", "shy"},
			"未対面。昨日送ったけど既読3日。会いたいけど重いと思われそうで怖い。", waitExpect),
		c("dating, no reply for a day, anxious",
			intake{ignored, "REPLY", "1 week ago", session.SenderSelf, slots.SilenceOneDay, slots.GoalMakeUp, fearDisliked, slots.StageDating, "slow", ""},
			"彼氏。昨日送ったのに返事ない。責めたくないけど不安。", waitExpect),
		c("reply arrived, lukewarm postponement",
			intake{ignored, "REPLY", "1 week ago", session.SenderOther, slots.SilenceHours, slots.GoalMeet, fearDisliked, slots.StageDatedMany, "", "shy"},
			"返信きた。「最近忙しくてごめん、また落ち着いたら連絡する」って。ここから会う方向にしたい。", afterSend),
		c("reply arrived, eager to meet",
			intake{ignored, "REPLY", "yesterday", session.SenderOther, slots.SilenceHours, slots.GoalMeet, fearDisliked, slots.StageDatedMany, "fast", "warm"},
			"返信きた！「私も会いたい。いつ空いてる？」って。ここから日程決めたい。", afterSend),
		c("post-breakup, read 3 days, urge to chase",
			intake{ignored, "REPLY", "1+ month ago", session.SenderSelf, slots.SilenceThreeUp, slots.GoalMakeUp, fearDisliked, slots.StagePostBreakup, "slow", "cool"},
			"元彼に謝りたい。3日前に送ったけど既読だけ。追撃したい衝動やばい。", waitExpect),
		c("unread for 2 days",
			intake{ignored, "REPLY", "last week", session.SenderSelf, slots.SilenceThreeUp, slots.GoalAssess, fearAnxious, slots.StageDatedFew, "slow", "cool"},
			"送ったけど未読のまま2日。脈ないのかな。", waitExpect),
		c("possibly blocked",
			intake{ignored, "REPLY", "1+ month ago", session.SenderSelf, slots.SilenceThreeUp, slots.GoalAssess, fearAnxious, slots.StageNeverMet, "slow", ""},
			"既読がつかないしブロックされたかも。どうする？", waitExpect),
		c("right after a fight, not sent yet",
			intake{ignored, "FIGHT", "within 3 days", session.SenderSelf, slots.SilenceHours, slots.GoalMakeUp, fearDisliked, slots.StageDating, "", ""},
			"喧嘩した。まだ送ってない。謝って仲直りしたい。", beforeSend),
		c("angry reply",
			intake{ignored, "FIGHT", "yesterday", session.SenderOther, slots.SilenceHours, slots.GoalMakeUp, fearDisliked, slots.StageDating, "", ""},
			"返信きた。「今は話したくない」って。どう返す？", afterSend),
		c("one-word reply",
			intake{ignored, "REPLY", "last week", session.SenderOther, slots.SilenceHours, slots.GoalMeet, fearTooMuch, slots.StageDatedMany, "", "cool"},
			"返信きたけど『うん』だけ。ここから会う流れ作りたい。", afterSend),
		c("busy reply",
			intake{ignored, "REPLY", "last week", session.SenderOther, slots.SilenceHours, slots.GoalMeet, fearDisliked, slots.StageDatedFew, "slow", "shy"},
			"返信きた。「今ちょっと忙しい」って。どう返す？", afterSend),
		{
			Name:                  "asks to check a draft, recipient unclear",
			Slots:                 intake{ignored, "REPLY", "last week", session.SenderSelf, slots.SilenceOneDay, slots.GoalMeet, fearTooMuch, slots.StageDatedMany, "", "shy"}.toSlots(),
			UserText:              "これ送っていい？『最近どう？』",
			Expect:                beforeSend,
			AllowRecipientClarify: true,
		},
		{
			Name:                  "screenshot or paste, recipient unclear",
			Slots:                 intake{ignored, "REPLY", "1 week ago", session.SenderSelf, slots.SilenceHours, slots.GoalAssess, "", slots.StageNeverMet, "", ""}.toSlots(),
			UserText:              "スクショでいい？",
			Expect:                beforeConfirm,
			AllowRecipientClarify: true,
		},
		c("positive reply, can meet next week",
			intake{ignored, "REPLY", "yesterday", session.SenderOther, slots.SilenceHours, slots.GoalMeet, fearDisliked, slots.StageDatedMany, "fast", "warm"},
			"返信きた。「来週なら会えるよ」って。日程詰めたい。", afterSend),
		c("asked when free",
			intake{ignored, "REPLY", "last week", session.SenderOther, slots.SilenceHours, slots.GoalMeet, fearDisliked, slots.StageDatedMany, "", "warm"},
			"返信きた。「いつ空いてる？」って聞かれた。", afterSend),
		c("maybe next time",
			intake{ignored, "REPLY", "last week", session.SenderOther, slots.SilenceHours, slots.GoalMeet, fearAnxious, slots.StageDatedFew, "slow", "shy"},
			"返信きたけど『また今度ね』って。ここからどうする？", afterSend),
		c("dating, left on read 3 days",
			intake{ignored, "REPLY", "1 week ago", session.SenderSelf, slots.SilenceThreeUp, slots.GoalMakeUp, fearDisliked, slots.StageDating, "slow", ""},
			"彼氏に送って既読3日。追撃したいけどやめた方がいい？", waitExpect),
		c("passive partner, a day on read",
			intake{ignored, "REPLY", "last week", session.SenderSelf, slots.SilenceOneDay, slots.GoalMeet, fearTooMuch, slots.StageDatedFew, "slow", "shy"},
			"1日既読無視。相手は受け身っぽい。どう動く？", waitExpect),
		c("dry partner, curt reply",
			intake{ignored, "REPLY", "yesterday", session.SenderOther, slots.SilenceHours, slots.GoalAssess, fearAnxious, slots.StageDatedMany, "", "cool"},
			"返信きたけど『了解』だけ。脈ある？次どうする？", afterSend),
		c("preparing a confession",
			intake{"告白（準備中）", "CONFESS", "yesterday", session.SenderSelf, slots.SilenceHours, slots.GoalDate, fearDisliked, slots.StageDatedMany, "", ""},
			"まだ送ってない。告白するならどう言えばいい？", beforeSend),
		c("ex asks how things are",
			intake{"復縁（準備中）", "EX", "1+ month ago", session.SenderOther, slots.SilenceHours, slots.GoalMakeUp, fearDisliked, slots.StagePostBreakup, "slow", "shy"},
			"返信きた。「元気？」って。復縁狙いでどう返す？", afterSend),
		c("some other time",
			intake{ignored, "REPLY", "last week", session.SenderOther, slots.SilenceHours, slots.GoalMeet, fearTooMuch, slots.StageDatedMany, "", ""},
			"返信きた。「今度ね」って。ここから具体化したい。", afterSend),
		c("never-met, cautious partner, a day on read",
			intake{ignored, "REPLY", "never", session.SenderSelf, slots.SilenceOneDay, slots.GoalMeet, fearTooMuch, slots.StageNeverMet, "slow", "shy"},
			"未対面で1日既読。今送ったら重い？", waitExpect),
		c("partner asks back",
			intake{ignored, "REPLY", "last week", session.SenderOther, slots.SilenceHours, slots.GoalMeet, fearDisliked, slots.StageDatedFew, "", "shy"},
			"返信きた。「最近どう？」って聞かれた。会う方向に繋げたい。", afterSend),
	}
}
