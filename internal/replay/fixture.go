package replay

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/danielpatrickdp/sara-line/go-bot/internal/session"
)

// #region fixture-types

// Fixture is the top-level JSON structure for a replay fixture.
type Fixture struct {
	Description     string                  `json:"description"`
	StartSession    FixtureStartSession     `json:"start_session"`
	Config          FixtureConfig           `json:"config"`
	Interactions    []FixtureInteraction    `json:"interactions"`
	ExpectedResults []FixtureExpectedResult `json:"expected_results"`
}

// FixtureStartSession is the JSON-serializable initial session. Slots are
// loaded as intake answers.
type FixtureStartSession struct {
	UserID       string            `json:"user_id"`
	Phase        session.Phase     `json:"phase,omitempty"`
	IgnoreStreak int               `json:"ignore_streak,omitempty"`
	Slots        map[string]string `json:"slots,omitempty"`
	StartedAt    time.Time         `json:"started_at,omitempty"`
}

// FixtureInteraction mirrors replay.Interaction with JSON tags.
type FixtureInteraction struct {
	TurnID   string `json:"turn_id"`
	UserText string `json:"user_text"`
	Reply    string `json:"reply"`
}

// FixtureExpectedResult captures the expectations per turn.
type FixtureExpectedResult struct {
	TurnID       string         `json:"turn_id"`
	Action       string         `json:"action"`
	Phase        session.Phase  `json:"phase,omitempty"`
	IgnoreStreak *int           `json:"ignore_streak,omitempty"`
	PlanAction   session.Action `json:"plan_action,omitempty"`
	Rules        []string       `json:"rules,omitempty"`
	AbsentRules  []string       `json:"absent_rules,omitempty"`
}

// FixtureConfig holds the tunables a fixture may pin. Zero values keep defaults.
type FixtureConfig struct {
	HistoryKeep   int `json:"history_keep,omitempty"`
	HistoryWindow int `json:"history_window,omitempty"`
	MaxStreakStep int `json:"max_streak_step,omitempty"`
	SummaryEvery  int `json:"summary_every,omitempty"`
	MinEventGap   int `json:"min_event_gap,omitempty"`
}

// #endregion fixture-types

// #region fixture-loader

// LoadFixture reads and parses a JSON fixture file.
func LoadFixture(path string) (*Fixture, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read fixture %s: %w", path, err)
	}
	var f Fixture
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse fixture %s: %w", path, err)
	}
	return &f, nil
}

// WriteFixture writes f as indented JSON.
func WriteFixture(path string, f *Fixture) error {
	data, err := json.MarshalIndent(f, "", "  ")
	if err != nil {
		return fmt.Errorf("encode fixture: %w", err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("write fixture %s: %w", path, err)
	}
	return nil
}

// ToSession converts the start block to a paid-chat session.
func (s *FixtureStartSession) ToSession() *session.Session {
	userID := s.UserID
	if userID == "" {
		userID = "replay"
	}
	sess := session.New(userID, s.StartedAt)
	sess.Stage = session.StagePaidChat
	if s.Phase != "" {
		sess.Phase = s.Phase
	}
	sess.IgnoreStreak = s.IgnoreStreak
	for name, v := range s.Slots {
		sess.Slots.Set(session.SlotName(name), v, session.SourceIntake)
	}
	return sess
}

// ToInteraction converts a FixtureInteraction to a domain Interaction.
func (fi *FixtureInteraction) ToInteraction() Interaction {
	return Interaction{
		TurnID:   fi.TurnID,
		UserText: fi.UserText,
		Reply:    fi.Reply,
	}
}

// ToExpectation converts a FixtureExpectedResult to a comparable Expectation.
func (fe *FixtureExpectedResult) ToExpectation() Expectation {
	return Expectation{
		TurnID:       fe.TurnID,
		Action:       fe.Action,
		Phase:        fe.Phase,
		IgnoreStreak: fe.IgnoreStreak,
		PlanAction:   fe.PlanAction,
		Rules:        fe.Rules,
		AbsentRules:  fe.AbsentRules,
	}
}

// ToReplayConfig overlays the pinned values on DefaultReplayConfig.
func (fc *FixtureConfig) ToReplayConfig() ReplayConfig {
	cfg := DefaultReplayConfig()
	o := &cfg.Orchestrator
	if fc.HistoryKeep > 0 {
		o.Update.HistoryKeep = fc.HistoryKeep
	}
	if fc.HistoryWindow > 0 {
		o.HistoryWindow = fc.HistoryWindow
	}
	if fc.MaxStreakStep > 0 {
		o.Gate.MaxStreakStep = fc.MaxStreakStep
	}
	if fc.SummaryEvery > 0 {
		o.Gate.SummaryEvery = fc.SummaryEvery
	}
	if fc.MinEventGap > 0 {
		o.Gate.MinEventGap = fc.MinEventGap
	}
	return cfg
}

// Parts converts the whole fixture into replay inputs.
func (f *Fixture) Parts() (*session.Session, []Interaction, []Expectation, ReplayConfig) {
	interactions := make([]Interaction, len(f.Interactions))
	for i := range f.Interactions {
		interactions[i] = f.Interactions[i].ToInteraction()
	}
	expected := make([]Expectation, len(f.ExpectedResults))
	for i := range f.ExpectedResults {
		expected[i] = f.ExpectedResults[i].ToExpectation()
	}
	return f.StartSession.ToSession(), interactions, expected, f.Config.ToReplayConfig()
}

// #endregion fixture-loader
