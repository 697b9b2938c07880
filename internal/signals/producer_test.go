package signals

import (
	"testing"
)

func TestProduceMarkers(t *testing.T) {
	p := NewProducer(DefaultProducerConfig())

	tests := []struct {
		name      string
		text      string
		wantLow   bool
		wantEager bool
		wantEvent EventKind
	}{
		{"jp-busy", "ごめん、今ちょっと忙しい", true, false, EventNone},
		{"en-busy", "they said they're busy this week", true, false, EventNone},
		{"jp-eager", "会いたいって言ってくれた", false, true, EventNone},
		{"en-eager", "I can't wait to see them", false, true, EventNone},
		{"reply-event", "返信きた！", false, false, EventReply},
		{"fight-event", "haven't sent anything yet, we had a fight", false, false, EventFight},
		{"read-event", "既読無視されてる", false, false, EventRead},
		{"met-event", "昨日デートした", false, false, EventMet},
		{"plain", "hello", false, false, EventNone},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := p.Produce(ProduceInput{UserText: tt.text})
			if got.LowEnergy != tt.wantLow {
				t.Errorf("low energy: got %v, want %v", got.LowEnergy, tt.wantLow)
			}
			if got.Eager != tt.wantEager {
				t.Errorf("eager: got %v, want %v", got.Eager, tt.wantEager)
			}
			if got.Event != tt.wantEvent {
				t.Errorf("event: got %q, want %q", got.Event, tt.wantEvent)
			}
		})
	}
}

func TestAmbiguousPersonsDedupAndCap(t *testing.T) {
	p := NewProducer(ProducerConfig{MaxAmbiguousRefs: 2, ShortTextRunes: 4})

	got := p.Produce(ProduceInput{
		UserText:     "先輩と友達と先輩が",
		ImageSummary: "あの人からのメッセージ",
	})
	if len(got.AmbiguousPersons) != 2 {
		t.Fatalf("expected 2 refs after cap, got %v", got.AmbiguousPersons)
	}
	if got.AmbiguousPersons[0] != "先輩" || got.AmbiguousPersons[1] != "友達" {
		t.Fatalf("unexpected refs: %v", got.AmbiguousPersons)
	}
}

func TestScreenshotAskAndShort(t *testing.T) {
	p := NewProducer(DefaultProducerConfig())

	if !p.Produce(ProduceInput{UserText: "スクショ送ってもいい？"}).ScreenshotAsk {
		t.Error("expected screenshot ask")
	}
	if !p.Produce(ProduceInput{UserText: "Can I send you a screenshot?"}).ScreenshotAsk {
		t.Error("expected english screenshot ask")
	}
	if p.Produce(ProduceInput{UserText: "スクショでいい？"}).ScreenshotAsk {
		t.Error("recipient-ambiguous question must not short-circuit")
	}
	if !p.Produce(ProduceInput{UserText: "え？"}).Short {
		t.Error("expected short")
	}
}
