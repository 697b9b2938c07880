package session

import (
	"encoding/json"
	"fmt"
	"time"

	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"
)

// #region snapshot
// Snapshot is a plain, lossless record of a session for dumps and persistence.
type Snapshot struct {
	TakenAt    time.Time `json:"takenAt"`
	HistoryLen int       `json:"historyLen"`
	Session    Session   `json:"session"`
}

// Snapshot captures the session at now.
func (s *Session) Snapshot(now time.Time) Snapshot {
	c := s.Clone()
	return Snapshot{
		TakenAt:    now,
		HistoryLen: len(c.History),
		Session:    *c,
	}
}

// FromSnapshot rebuilds a session from a snapshot.
func FromSnapshot(snap Snapshot) *Session {
	sess := snap.Session.Clone()
	if sess.Slots == nil {
		sess.Slots = Slots{}
	}
	if sess.History == nil {
		sess.History = []Turn{}
	}
	return sess
}

// Compact drops history text, keeping only its length. Used for chat dumps.
func (s Snapshot) Compact() Snapshot {
	out := s
	out.Session = *s.Session.Clone()
	out.Session.History = nil
	return out
}

// #endregion snapshot

// #region encoding
// Struct converts the snapshot into a protobuf Struct.
func (s Snapshot) Struct() (*structpb.Struct, error) {
	raw, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("marshal snapshot: %w", err)
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("unmarshal snapshot: %w", err)
	}
	st, err := structpb.NewStruct(m)
	if err != nil {
		return nil, fmt.Errorf("snapshot struct: %w", err)
	}
	return st, nil
}

// DumpJSON renders the snapshot as indented JSON for the #dump command.
func (s Snapshot) DumpJSON() (string, error) {
	st, err := s.Struct()
	if err != nil {
		return "", err
	}
	out, err := protojson.MarshalOptions{Multiline: true, Indent: "  "}.Marshal(st)
	if err != nil {
		return "", fmt.Errorf("dump snapshot: %w", err)
	}
	return string(out), nil
}

// #endregion encoding
