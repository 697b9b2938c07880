package session

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// #region schema
const schema = `
CREATE TABLE IF NOT EXISTS session_versions (
	version_id    TEXT PRIMARY KEY,
	parent_id     TEXT,
	user_id       TEXT NOT NULL,
	snapshot_json TEXT NOT NULL,
	reason        TEXT,
	created_at    TEXT NOT NULL,
	FOREIGN KEY (parent_id) REFERENCES session_versions(version_id)
);

CREATE INDEX IF NOT EXISTS idx_session_versions_user
ON session_versions(user_id, created_at);

CREATE TABLE IF NOT EXISTS active_session (
	user_id       TEXT PRIMARY KEY,
	version_id    TEXT NOT NULL,
	FOREIGN KEY (version_id) REFERENCES session_versions(version_id)
);

CREATE TABLE IF NOT EXISTS turn_log (
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
);
`

// #endregion schema

// #region types
// timeLayout is fixed-width so created_at sorts lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// VersionRecord is one persisted session version.
type VersionRecord struct {
	VersionID string
	ParentID  string
	UserID    string
	Snapshot  Snapshot
	Reason    string
	CreatedAt time.Time
}

// #endregion types

// #region store-struct
// SnapshotStore keeps versioned session snapshots in SQLite, one active pointer per user.
type SnapshotStore struct {
	db *sql.DB
}

// #endregion store-struct

// #region constructor
// NewSnapshotStore opens a SQLite database and runs migrations.
func NewSnapshotStore(dbPath string) (*SnapshotStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if dbPath == ":memory:" {
		// every pooled connection would otherwise see its own empty database
		db.SetMaxOpenConns(1)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		return nil, fmt.Errorf("pragma: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		return nil, fmt.Errorf("pragma fk: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &SnapshotStore{db: db}, nil
}

// Close closes the underlying database connection.
func (s *SnapshotStore) Close() error {
	return s.db.Close()
}

// DB returns the underlying *sql.DB for use by other packages (turn log, outcome memory).
func (s *SnapshotStore) DB() *sql.DB {
	return s.db
}

// #endregion constructor

// #region commit
// Commit inserts a new version for the session's user and moves the active pointer to it.
func (s *SnapshotStore) Commit(ctx context.Context, sess *Session, reason string) (string, error) {
	now := time.Now().UTC()
	raw, err := json.Marshal(sess.Snapshot(now))
	if err != nil {
		return "", fmt.Errorf("marshal snapshot: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var parent sql.NullString
	err = tx.QueryRowContext(ctx,
		`SELECT version_id FROM active_session WHERE user_id = ?`, sess.UserID,
	).Scan(&parent)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("get active: %w", err)
	}

	var parentPtr interface{}
	if parent.Valid {
		parentPtr = parent.String
	}

	id := uuid.New().String()
	_, err = tx.ExecContext(ctx,
		`INSERT INTO session_versions (version_id, parent_id, user_id, snapshot_json, reason, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		id, parentPtr, sess.UserID, string(raw), reason, now.Format(timeLayout),
	)
	if err != nil {
		return "", fmt.Errorf("insert version: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO active_session (user_id, version_id) VALUES (?, ?)
		 ON CONFLICT(user_id) DO UPDATE SET version_id = excluded.version_id`,
		sess.UserID, id,
	)
	if err != nil {
		return "", fmt.Errorf("set active: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("commit: %w", err)
	}
	return id, nil
}

// #endregion commit

// #region get-current
// GetCurrent reads the active version for a user. Returns ErrNotFound if none exists.
func (s *SnapshotStore) GetCurrent(ctx context.Context, userID string) (VersionRecord, error) {
	var versionID string
	err := s.db.QueryRowContext(ctx,
		`SELECT version_id FROM active_session WHERE user_id = ?`, userID,
	).Scan(&versionID)
	if errors.Is(err, sql.ErrNoRows) {
		return VersionRecord{}, ErrNotFound
	}
	if err != nil {
		return VersionRecord{}, fmt.Errorf("get active: %w", err)
	}
	return s.GetVersion(ctx, versionID)
}

// #endregion get-current

// #region get-version
// GetVersion retrieves a specific version by ID.
func (s *SnapshotStore) GetVersion(ctx context.Context, id string) (VersionRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT version_id, parent_id, user_id, snapshot_json, reason, created_at
		 FROM session_versions WHERE version_id = ?`, id,
	)
	rec, err := scanVersion(row)
	if err != nil {
		return VersionRecord{}, fmt.Errorf("get version %s: %w", id, err)
	}
	return rec, nil
}

// #endregion get-version

// #region rollback
// Rollback points the user's active session at a previous version.
func (s *SnapshotStore) Rollback(ctx context.Context, userID, targetVersionID string) error {
	var owner string
	err := s.db.QueryRowContext(ctx,
		`SELECT user_id FROM session_versions WHERE version_id = ?`, targetVersionID,
	).Scan(&owner)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("version %s not found", targetVersionID)
	}
	if err != nil {
		return fmt.Errorf("check version: %w", err)
	}
	if owner != userID {
		return fmt.Errorf("version %s belongs to another user", targetVersionID)
	}

	_, err = s.db.ExecContext(ctx,
		`UPDATE active_session SET version_id = ? WHERE user_id = ?`, targetVersionID, userID,
	)
	if err != nil {
		return fmt.Errorf("rollback: %w", err)
	}
	return nil
}

// #endregion rollback

// #region list-versions
// ListVersions returns the most recent versions for a user, newest first.
// An empty userID lists across all users.
func (s *SnapshotStore) ListVersions(ctx context.Context, userID string, limit int) ([]VersionRecord, error) {
	query := `SELECT version_id, parent_id, user_id, snapshot_json, reason, created_at
		 FROM session_versions`
	args := []interface{}{}
	if userID != "" {
		query += ` WHERE user_id = ?`
		args = append(args, userID)
	}
	query += ` ORDER BY created_at DESC, rowid DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list versions: %w", err)
	}
	defer rows.Close()

	var records []VersionRecord
	for rows.Next() {
		rec, err := scanVersion(rows)
		if err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// #endregion list-versions

// #region backing
// Load implements Backing.
func (s *SnapshotStore) Load(ctx context.Context, userID string) (*Session, error) {
	rec, err := s.GetCurrent(ctx, userID)
	if err != nil {
		return nil, err
	}
	return FromSnapshot(rec.Snapshot), nil
}

// Save implements Backing.
func (s *SnapshotStore) Save(ctx context.Context, sess *Session, reason string) error {
	_, err := s.Commit(ctx, sess, reason)
	return err
}

// #endregion backing

// #region helpers
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanVersion(row rowScanner) (VersionRecord, error) {
	var rec VersionRecord
	var parentID, reason sql.NullString
	var snapJSON, createdStr string

	if err := row.Scan(&rec.VersionID, &parentID, &rec.UserID, &snapJSON, &reason, &createdStr); err != nil {
		return VersionRecord{}, err
	}
	if parentID.Valid {
		rec.ParentID = parentID.String
	}
	if reason.Valid {
		rec.Reason = reason.String
	}
	if err := json.Unmarshal([]byte(snapJSON), &rec.Snapshot); err != nil {
		return VersionRecord{}, fmt.Errorf("unmarshal snapshot: %w", err)
	}
	rec.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdStr)
	return rec, nil
}

// #endregion helpers
