package logging

import (
	"bytes"
	"database/sql"
	"strings"
	"testing"
	"time"

	_ "modernc.org/sqlite"
)

// #region helpers
func setupDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	db.SetMaxOpenConns(1)
	_, err = db.Exec(`CREATE TABLE turn_log (
		id            INTEGER PRIMARY KEY AUTOINCREMENT,
		turn_id       TEXT NOT NULL,
		user_id       TEXT NOT NULL,
		phase         TEXT NOT NULL,
		ignore_streak INTEGER NOT NULL DEFAULT 0,
		action        TEXT,
		plan_source   TEXT,
		decision      TEXT NOT NULL,
		reason        TEXT,
		signals_json  TEXT,
		created_at    TEXT NOT NULL
	)`)
	if err != nil {
		t.Fatalf("create table: %v", err)
	}
	return db
}

// #endregion helpers

// #region log-turn-tests
func TestLogTurn_Success(t *testing.T) {
	db := setupDB(t)
	defer db.Close()

	entry := TurnEntry{
		TurnID:       "t1",
		UserID:       "u1",
		Phase:        "WAITING_REPLY",
		IgnoreStreak: 1,
		Action:       "wait",
		PlanSource:   "heuristic",
		Decision:     "commit",
		Reason:       "passed gate",
		CreatedAt:    time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}

	if err := LogTurn(db, entry); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var phase, decision string
	var streak int
	db.QueryRow("SELECT phase, ignore_streak, decision FROM turn_log").Scan(&phase, &streak, &decision)
	if phase != "WAITING_REPLY" || streak != 1 || decision != "commit" {
		t.Errorf("unexpected row: %s %d %s", phase, streak, decision)
	}
}

func TestLogTurn_EmptyOptionalFields(t *testing.T) {
	db := setupDB(t)
	defer db.Close()

	if err := LogTurn(db, TurnEntry{TurnID: "t2", UserID: "u1", Phase: "UNKNOWN", Decision: "reject"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var action, planSource, reason, signals sql.NullString
	db.QueryRow("SELECT action, plan_source, reason, signals_json FROM turn_log").Scan(&action, &planSource, &reason, &signals)
	if action.Valid || planSource.Valid || reason.Valid || signals.Valid {
		t.Error("expected NULL for empty optional fields")
	}
}

func TestLogTurn_Error(t *testing.T) {
	db := setupDB(t)
	db.Close() // close to force error

	if err := LogTurn(db, TurnEntry{TurnID: "t3", UserID: "u1", Phase: "UNKNOWN", Decision: "commit"}); err == nil {
		t.Fatal("expected error on closed db")
	}
}

func TestLogRecordRoundTrip(t *testing.T) {
	db := setupDB(t)
	defer db.Close()

	rec := TurnRecord{
		TurnID:     "t1",
		UserID:     "u1",
		UserText:   "返信きた",
		Phase:      "AFTER_REPLY",
		Action:     "send",
		PlanSource: "extracted",
		GateAction: "commit",
		Slots:      map[string]string{"lastSender": "other"},
	}
	if err := LogRecord(db, rec); err != nil {
		t.Fatalf("log record: %v", err)
	}
	if err := LogRecord(db, TurnRecord{TurnID: "t2", UserID: "u2", Phase: "UNKNOWN"}); err != nil {
		t.Fatalf("log record: %v", err)
	}

	entries, err := ListTurns(db, "u1", 0)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry for u1, got %d", len(entries))
	}
	got, err := DecodeRecord(entries[0])
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.UserText != "返信きた" || got.Slots["lastSender"] != "other" {
		t.Errorf("unexpected record: %+v", got)
	}

	all, err := ListTurns(db, "", 0)
	if err != nil {
		t.Fatalf("list all: %v", err)
	}
	if len(all) != 2 || all[1].Decision != "no_op" {
		t.Errorf("unexpected entries: %+v", all)
	}
}

// #endregion log-turn-tests

// #region logger-tests
func TestNewLoggerFormats(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{Level: "debug", Format: "json", Writer: &buf})
	ForComponent(l, "orch").Debug("classified", "phase", "BEFORE_SEND")

	out := buf.String()
	if !strings.Contains(out, `"phase":"BEFORE_SEND"`) {
		t.Errorf("expected json field, got %q", out)
	}
	if !strings.Contains(out, "ORCH") {
		t.Errorf("expected component prefix, got %q", out)
	}
}

func TestNewLoggerUnknownLevel(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{Level: "loud", Writer: &buf})
	l.Debug("hidden")
	if buf.Len() != 0 {
		t.Errorf("debug should be filtered at default info level, got %q", buf.String())
	}
}

func TestNullIfEmpty(t *testing.T) {
	if nullIfEmpty("") != nil {
		t.Error("expected nil for empty string")
	}
	if nullIfEmpty("hello") != "hello" {
		t.Error("expected passthrough")
	}
}

// #endregion logger-tests
