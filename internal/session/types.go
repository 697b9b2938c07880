package session

import (
	"time"
)

// #region phase
// Phase is where the user's conversation with the other party currently stands.
type Phase string

const (
	PhaseUnknown      Phase = "UNKNOWN"
	PhaseBeforeSend   Phase = "BEFORE_SEND"
	PhaseWaitingReply Phase = "WAITING_REPLY"
	PhaseAfterReply   Phase = "AFTER_REPLY"
)

// #endregion phase

// #region stage
// Stage is the funnel position of a user.
type Stage string

const (
	StageFree     Stage = "FREE"
	StagePaidGate Stage = "PAID_GATE"
	StagePaidChat Stage = "PAID_CHAT"
)

// #endregion stage

// #region mode
// Mode is the conversational register of the paid chat.
type Mode string

const (
	ModeChat     Mode = "CHAT"
	ModeEmotion  Mode = "EMOTION"
	ModeAnalysis Mode = "ANALYSIS"
	ModeStrategy Mode = "STRATEGY"
)

// #endregion mode

// #region action
// Action is the next move a plan recommends.
type Action string

const (
	ActionSend    Action = "send"
	ActionWait    Action = "wait"
	ActionConfirm Action = "confirm"
	ActionObserve Action = "observe"
)

// ParseAction maps a raw string onto one of the four actions.
func ParseAction(s string) (Action, bool) {
	switch Action(s) {
	case ActionSend, ActionWait, ActionConfirm, ActionObserve:
		return Action(s), true
	}
	return "", false
}

// #endregion action

// #region slots
// SlotName identifies one piece of structured information pulled from user text.
type SlotName string

const (
	SlotLastContact       SlotName = "lastContact"
	SlotLastSender        SlotName = "lastSender"
	SlotSilence           SlotName = "silence"
	SlotGoal              SlotName = "goal"
	SlotFear              SlotName = "fear"
	SlotRelationshipStage SlotName = "relationshipStage"
	SlotPartnerSpeed      SlotName = "partnerSpeed"
	SlotPartnerType       SlotName = "partnerType"
	SlotProblem           SlotName = "problem"
	SlotCategory          SlotName = "category"
)

// Canonical values of the lastSender slot.
const (
	SenderSelf  = "self"
	SenderOther = "other"
)

// SlotSource records how a slot value was obtained. Higher rank wins on merge.
type SlotSource string

const (
	SourceAssist SlotSource = "assist" // secondary model extraction
	SourceText   SlotSource = "text"   // regex match on explicit user text
	SourceIntake SlotSource = "intake" // direct answer to an intake question
)

// Rank orders sources by confidence.
func (s SlotSource) Rank() int {
	switch s {
	case SourceAssist:
		return 1
	case SourceText:
		return 2
	case SourceIntake:
		return 3
	}
	return 0
}

// SlotValue is a slot's value plus its provenance.
type SlotValue struct {
	Value  string     `json:"value"`
	Source SlotSource `json:"source"`
}

// Slots maps slot names to values. Absent and empty are equivalent.
type Slots map[SlotName]SlotValue

// Get returns the slot value or "".
func (s Slots) Get(name SlotName) string {
	return s[name].Value
}

// Has reports whether the slot holds a non-empty value.
func (s Slots) Has(name SlotName) bool {
	return s[name].Value != ""
}

// Set applies value only if the slot is empty or holds a lower-confidence value.
// Empty values never clear a slot. Returns whether the slot changed.
func (s Slots) Set(name SlotName, value string, source SlotSource) bool {
	if value == "" {
		return false
	}
	cur, ok := s[name]
	if ok && cur.Value != "" && cur.Source.Rank() >= source.Rank() {
		return false
	}
	s[name] = SlotValue{Value: value, Source: source}
	return true
}

// Clone returns an independent copy.
func (s Slots) Clone() Slots {
	out := make(Slots, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out
}

// #endregion slots

// #region plan
// PlanSource distinguishes how the current plan was obtained.
type PlanSource string

const (
	PlanExtracted   PlanSource = "extracted"
	PlanHeuristic   PlanSource = "heuristic"
	PlanUnavailable PlanSource = "unavailable"
)

// Plan is the structured next move distilled from an advice reply.
type Plan struct {
	Action *Action  `json:"action"`
	Timing *string  `json:"timing"`
	Draft  *string  `json:"draft"`
	NG     []string `json:"ng"`
}

// ActionOr returns the plan action or def when unset.
func (p Plan) ActionOr(def Action) Action {
	if p.Action == nil {
		return def
	}
	return *p.Action
}

// Clone returns a deep copy.
func (p Plan) Clone() Plan {
	out := Plan{NG: append([]string(nil), p.NG...)}
	if p.Action != nil {
		a := *p.Action
		out.Action = &a
	}
	if p.Timing != nil {
		t := *p.Timing
		out.Timing = &t
	}
	if p.Draft != nil {
		d := *p.Draft
		out.Draft = &d
	}
	return out
}

// #endregion plan

// #region history
// Role is the speaker of a history turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is one history entry.
type Turn struct {
	Role Role   `json:"role"`
	Text string `json:"text"`
}

// #endregion history

// #region image
// QuoteTurn is a speaker-tagged line lifted from a screenshot.
type QuoteTurn struct {
	Speaker string `json:"speaker"` // "USER" | "OTHER" | "UNKNOWN"
	Text    string `json:"text"`
}

// ImageInsight is what the image-understanding collaborator returned for the last screenshot.
type ImageInsight struct {
	Kind              string      `json:"kind"`
	Summary           string      `json:"summary"`
	UserIntent        string      `json:"userIntent,omitempty"`
	QuoteTurns        []QuoteTurn `json:"quoteTurns,omitempty"`
	AmbiguousRefs     []string    `json:"ambiguousRefs,omitempty"`
	MissingQuestions  []string    `json:"missingQuestions,omitempty"`
	SuggestedUserText string      `json:"suggestedUserText,omitempty"`
	ExtractedLines    int         `json:"extractedLines"`
	At                time.Time   `json:"at"`
}

// PendingImage is an image received but not yet analyzed.
type PendingImage struct {
	MessageID string    `json:"messageId"`
	At        time.Time `json:"at"`
}

// Labels are optional nicknames used when quoting screenshots.
type Labels struct {
	CalledByUser  string `json:"calledByUser,omitempty"`  // what the user calls the other party
	CalledByOther string `json:"calledByOther,omitempty"` // what the other party calls the user
}

// #endregion image

// #region session
// Session is the per-user mutable conversation state.
type Session struct {
	UserID                 string        `json:"userId"`
	Stage                  Stage         `json:"stage"`
	Slots                  Slots         `json:"slots"`
	Phase                  Phase         `json:"phase"`
	Mode                   Mode          `json:"mode"`
	IgnoreStreak           int           `json:"ignoreStreak"`
	Plan                   Plan          `json:"plan"`
	PlanSource             PlanSource    `json:"planSource,omitempty"`
	History                []Turn        `json:"history"`
	Summary                string        `json:"summary"`
	LastAdviceSignature    string        `json:"lastAdviceSignature"`
	Turns                  int           `json:"turns"`
	LastImportantEventTurn int           `json:"lastImportantEventTurn"`
	PendingImage           *PendingImage `json:"pendingImage"`
	LastImage              *ImageInsight `json:"lastImage"`
	Labels                 Labels        `json:"labels"`
	CheckoutIssuedAt       *time.Time    `json:"checkoutIssuedAt"`
	CreatedAt              time.Time     `json:"createdAt"`
	UpdatedAt              time.Time     `json:"updatedAt"`
}

// New returns a fresh session in the free stage.
func New(userID string, now time.Time) *Session {
	return &Session{
		UserID:    userID,
		Stage:     StageFree,
		Slots:     Slots{},
		Phase:     PhaseUnknown,
		Mode:      ModeChat,
		History:   []Turn{},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Clone returns a deep copy that can be mutated without affecting s.
func (s *Session) Clone() *Session {
	out := *s
	out.Slots = s.Slots.Clone()
	out.Plan = s.Plan.Clone()
	out.History = append([]Turn{}, s.History...)
	if s.PendingImage != nil {
		p := *s.PendingImage
		out.PendingImage = &p
	}
	if s.LastImage != nil {
		img := *s.LastImage
		img.QuoteTurns = append([]QuoteTurn(nil), s.LastImage.QuoteTurns...)
		img.AmbiguousRefs = append([]string(nil), s.LastImage.AmbiguousRefs...)
		img.MissingQuestions = append([]string(nil), s.LastImage.MissingQuestions...)
		out.LastImage = &img
	}
	if s.CheckoutIssuedAt != nil {
		t := *s.CheckoutIssuedAt
		out.CheckoutIssuedAt = &t
	}
	return &out
}

// #endregion session
