package signals

// #region event-kind

// EventKind names an important conversation event that should refresh the summary.
type EventKind string

const (
	EventNone       EventKind = ""
	EventMet        EventKind = "met"
	EventReply      EventKind = "reply"
	EventRead       EventKind = "read"
	EventConfession EventKind = "confession"
	EventBreakup    EventKind = "breakup"
	EventFight      EventKind = "fight"
)

// #endregion event-kind

// #region config

// ProducerConfig holds tuning knobs for signal computation.
type ProducerConfig struct {
	MaxAmbiguousRefs int // cap on reported ambiguous person references
	ShortTextRunes   int // texts at or under this length count as short
}

// DefaultProducerConfig returns sensible defaults.
func DefaultProducerConfig() ProducerConfig {
	return ProducerConfig{
		MaxAmbiguousRefs: 5,
		ShortTextRunes:   4,
	}
}

// #endregion config

// #region input

// ProduceInput bundles the text available for one inbound message.
type ProduceInput struct {
	UserText     string
	ImageSummary string // last screenshot summary, scanned for ambiguous persons
}

// #endregion input

// #region signals

// Signals carries lexical markers derived from one user message.
type Signals struct {
	LowEnergy        bool
	Eager            bool
	Event            EventKind
	AmbiguousPersons []string
	ScreenshotAsk    bool
	Short            bool
}

// ImportantEvent reports whether any summary-refreshing event was seen.
func (s Signals) ImportantEvent() bool {
	return s.Event != EventNone
}

// #endregion signals
