package slots

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/danielpatrickdp/sara-line/go-bot/internal/session"
)

func TestExtractMatchers(t *testing.T) {
	tests := []struct {
		name string
		text string
		want Updates
	}{
		{
			name: "waiting-en",
			text: "sent yesterday, read 3 days ago, no reply",
			want: Updates{
				session.SlotLastSender: session.SenderSelf,
				session.SlotSilence:    SilenceThreeUp,
				session.SlotCategory:   "REPLY",
			},
		},
		{
			name: "before-send-fight",
			text: "haven't sent anything yet, we had a fight, want to apologize",
			want: Updates{
				session.SlotGoal:     GoalMakeUp,
				session.SlotCategory: "FIGHT",
			},
		},
		{
			name: "jp-silence-weeks",
			text: "2週間音沙汰なし",
			want: Updates{session.SlotSilence: SilenceWeeks},
		},
		{
			name: "jp-last-contact",
			text: "昨日会った",
			want: Updates{session.SlotLastContact: "yesterday"},
		},
		{
			name: "future-is-not-silence",
			text: "2日後に遊びに誘う予定",
			want: Updates{session.SlotGoal: GoalAskOut, session.SlotCategory: "CONFESS"},
		},
		{
			name: "fear-and-stage",
			text: "never met them, scared it's too much",
			want: Updates{
				session.SlotRelationshipStage: StageNeverMet,
				session.SlotFear:              "seeming too much",
			},
		},
		{
			name: "empty",
			text: "   ",
			want: Updates{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Extract(tt.text, session.Slots{})
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestExtractReplyArrivalWinsOverSent(t *testing.T) {
	got := Extract("送ったら返信きた", session.Slots{})
	assert.Equal(t, session.SenderOther, got[session.SlotLastSender])
}

func TestExtractRespectsExplicitValues(t *testing.T) {
	existing := session.Slots{}
	existing.Set(session.SlotGoal, GoalMeet, session.SourceIntake)
	existing.Set(session.SlotSilence, SilenceOneDay, session.SourceAssist)

	got := Extract("2週間返事ない、仲直りしたい", existing)

	_, hasGoal := got[session.SlotGoal]
	assert.False(t, hasGoal, "intake value must not be re-proposed")
	assert.Equal(t, SilenceWeeks, got[session.SlotSilence], "assist value may be upgraded")
}

func TestExtractIdempotent(t *testing.T) {
	texts := []string{
		"sent yesterday, read 3 days ago, no reply",
		"元カレに謝りたい。1週間既読無視",
		"they replied: \"I miss you too, when are you free?\"",
	}
	for _, text := range texts {
		existing := session.Slots{}
		first := Extract(text, existing)
		Merge(existing, first, session.SourceText)

		second := Extract(text, existing)
		assert.Empty(t, second, text)
	}
}

func TestMergeHonoursConfidence(t *testing.T) {
	existing := session.Slots{}
	existing.Set(session.SlotGoal, GoalMeet, session.SourceIntake)

	changed := Merge(existing, Updates{
		session.SlotGoal:    GoalMakeUp,
		session.SlotSilence: SilenceHours,
		session.SlotFear:    "",
	}, session.SourceText)

	assert.Equal(t, []session.SlotName{session.SlotSilence}, changed)
	assert.Equal(t, GoalMeet, existing.Get(session.SlotGoal))
	assert.False(t, existing.Has(session.SlotFear))
}

func TestInferCategory(t *testing.T) {
	assert.Equal(t, "EX", InferCategory("元カノと復縁したい"))
	assert.Equal(t, "REPLY", InferCategory("既読スルーされた"))
	assert.Equal(t, "", InferCategory("今日の天気は？"))
}

func TestSanitizeAssist(t *testing.T) {
	got := SanitizeAssist(map[string]any{
		"goal":        "会いたい",
		"lastSender":  "相手",
		"lastMet":     "先週",
		"hack":        "x",
		"fear":        3,
		"silence":     "null",
		"partnerType": "とてもとてもとてもとてもとてもとてもとてもとてもとてもとても長い説明になってしまった値",
	})

	require.Len(t, got, 3)
	assert.Equal(t, "会いたい", got[session.SlotGoal])
	assert.Equal(t, session.SenderOther, got[session.SlotLastSender])
	assert.Equal(t, "先週", got[session.SlotLastContact])
}

func TestNormalizeSender(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"自分", session.SenderSelf},
		{"User", session.SenderSelf},
		{"partner", session.SenderOther},
		{"彼", session.SenderOther},
		{"彼女", session.SenderOther},
		{" 彼女 ", session.SenderOther},
		{"She", session.SenderOther},
		{"わからない", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, NormalizeSender(tt.in), tt.in)
	}
}

func TestNeedsAssist(t *testing.T) {
	empty := session.Slots{}
	assert.True(t, NeedsAssist(empty, 3, 2))
	assert.False(t, NeedsAssist(empty, 1, 2))

	full := session.Slots{}
	full.Set(session.SlotRelationshipStage, StageFriends, session.SourceText)
	full.Set(session.SlotLastContact, "yesterday", session.SourceText)
	full.Set(session.SlotSilence, SilenceOneDay, session.SourceText)
	full.Set(session.SlotGoal, GoalMeet, session.SourceText)
	assert.False(t, NeedsAssist(full, 5, 2))
}

func TestParseLabels(t *testing.T) {
	l, ok := ParseLabels("相手→自分=たっくん 自分→相手=みーちゃん")
	require.True(t, ok)
	assert.Equal(t, "たっくん", l.CalledByOther)
	assert.Equal(t, "みーちゃん", l.CalledByUser)

	l, ok = ParseLabels("they call me Sam and I call them Alex")
	require.True(t, ok)
	assert.Equal(t, "Sam", l.CalledByOther)
	assert.Equal(t, "Alex", l.CalledByUser)

	_, ok = ParseLabels("相手→自分=未設定")
	assert.False(t, ok)

	merged := ApplyLabels(session.Labels{CalledByUser: "old"}, session.Labels{CalledByOther: "new"})
	assert.Equal(t, session.Labels{CalledByUser: "old", CalledByOther: "new"}, merged)
}
