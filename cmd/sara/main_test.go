package main

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/danielpatrickdp/sara-line/go-bot/internal/bot"
	"github.com/danielpatrickdp/sara-line/go-bot/internal/logging"
	"github.com/danielpatrickdp/sara-line/go-bot/internal/session"
)

func TestBuildFixture(t *testing.T) {
	recs := []logging.TurnRecord{
		{TurnID: "t1", UserID: "U1", UserText: "送る前に見て", Reply: "a", PriorPhase: "UNKNOWN",
			Phase: "BEFORE_SEND", Streak: 0, Slots: map[string]string{"goal": "date"},
			Action: "SEND_NOW", Rules: []string{"R1"}, GateAction: "commit"},
		{TurnID: "t2", UserID: "U1", UserText: "まだ既読無視", Reply: "b", PriorPhase: "BEFORE_SEND",
			Phase: "WAITING_REPLY", Streak: 1, Action: "WAIT", GateAction: "reject"},
	}
	fx := buildFixture(recs, "d")

	assert.Equal(t, "U1", fx.StartSession.UserID)
	assert.Equal(t, session.PhaseUnknown, fx.StartSession.Phase)
	assert.Equal(t, map[string]string{"goal": "date"}, fx.StartSession.Slots)
	require.Len(t, fx.Interactions, 2)
	assert.Equal(t, "まだ既読無視", fx.Interactions[1].UserText)

	assert.Nil(t, fx.ExpectedResults[0].IgnoreStreak)
	require.NotNil(t, fx.ExpectedResults[1].IgnoreStreak)
	assert.Equal(t, 1, *fx.ExpectedResults[1].IgnoreStreak)
	assert.Equal(t, "commit", fx.ExpectedResults[0].Action)
	assert.Equal(t, "gate_reject", fx.ExpectedResults[1].Action)
	assert.Equal(t, session.Action("WAIT"), fx.ExpectedResults[1].PlanAction)
}

func TestChatEvent(t *testing.T) {
	assert.Equal(t, bot.Event{UserID: "u", Kind: bot.EventText, Text: "hi"}, chatEvent("u", "hi"))
	assert.Equal(t, bot.Event{UserID: "u", Kind: bot.EventImage, MessageID: "shot.png"}, chatEvent("u", "/image  shot.png"))
}

type echoHandler struct{ seen []bot.Event }

func (h *echoHandler) Handle(_ context.Context, ev bot.Event) (bot.Reply, error) {
	h.seen = append(h.seen, ev)
	return bot.Reply{Text: "echo:" + ev.Text}, nil
}

func TestChatLoop(t *testing.T) {
	h := &echoHandler{}
	var out bytes.Buffer
	err := chatLoop(context.Background(), h, strings.NewReader("こんにちは\n\n/quit\nignored\n"), &out)
	require.NoError(t, err)

	require.Len(t, h.seen, 1)
	assert.Contains(t, out.String(), "sara> echo:こんにちは")
}

func TestShortID(t *testing.T) {
	assert.Equal(t, "abc", shortID("abc"))
	assert.Equal(t, "0123456789ab", shortID("0123456789abcdef"))
}
