// Package billing keeps each LINE user's subscription status and the ids of
// payment webhook events already applied.
package billing

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"github.com/danielpatrickdp/sara-line/go-bot/internal/logging"
)

func init() {
	// modernc registers as "sqlite", which sqlx does not know as a ? driver
	sqlx.BindDriver("sqlite", sqlx.QUESTION)
}

// #region schema
// Both drivers accept this DDL and the ON CONFLICT upserts below.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS users (
		line_user_id           TEXT PRIMARY KEY,
		stripe_customer_id     TEXT,
		stripe_subscription_id TEXT,
		status                 TEXT NOT NULL DEFAULT 'inactive',
		created_at             TEXT NOT NULL,
		updated_at             TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS processed_events (
		event_id     TEXT PRIMARY KEY,
		processed_at TEXT NOT NULL
	)`,
}

// #endregion schema

// #region types
// Status is a subscription status as reported by the payment provider.
type Status string

const (
	StatusInactive Status = "inactive"
	StatusActive   Status = "active"
	StatusTrialing Status = "trialing"
	StatusPastDue  Status = "past_due"
	StatusCanceled Status = "canceled"
)

// Paid reports whether the status unlocks the paid chat.
func (s Status) Paid() bool {
	return s == StatusActive || s == StatusTrialing
}

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusInactive, StatusActive, StatusTrialing, StatusPastDue, StatusCanceled:
		return true
	}
	return false
}

// ErrNotFound is returned when no row exists for the user.
var ErrNotFound = errors.New("billing: user not found")

// User is one row of the users table.
type User struct {
	LineUserID     string         `db:"line_user_id"`
	CustomerID     sql.NullString `db:"stripe_customer_id"`
	SubscriptionID sql.NullString `db:"stripe_subscription_id"`
	Status         Status         `db:"status"`
	CreatedAt      string         `db:"created_at"`
	UpdatedAt      string         `db:"updated_at"`
}

// #endregion types

// #region store
// Store is the billing repository over sqlite or postgres.
type Store struct {
	db  *sqlx.DB
	log *log.Logger
	now func() time.Time
}

// Open connects with driver ("sqlite" or "postgres") and migrates.
func Open(driver, dsn string, logger *log.Logger) (*Store, error) {
	switch driver {
	case "", "sqlite":
		driver = "sqlite"
	case "postgres", "postgresql":
		driver = "postgres"
	default:
		return nil, fmt.Errorf("billing: unsupported driver %q", driver)
	}
	db, err := sqlx.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open billing db: %w", err)
	}
	if driver == "sqlite" && (dsn == ":memory:" || strings.Contains(dsn, "mode=memory")) {
		db.SetMaxOpenConns(1)
	}
	s, err := NewStore(db, logger)
	if err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// NewStore wraps an open connection and creates the tables.
func NewStore(db *sqlx.DB, logger *log.Logger) (*Store, error) {
	for _, stmt := range schema {
		if _, err := db.Exec(stmt); err != nil {
			return nil, fmt.Errorf("migrate billing: %w", err)
		}
	}
	return &Store{
		db:  db,
		log: logging.ForComponent(logger, "billing"),
		now: func() time.Time { return time.Now().UTC() },
	}, nil
}

// Close closes the connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// #endregion store

// #region users
// GetUser loads one user row.
func (s *Store) GetUser(ctx context.Context, lineUserID string) (User, error) {
	var u User
	err := s.db.GetContext(ctx, &u, s.db.Rebind(
		`SELECT line_user_id, stripe_customer_id, stripe_subscription_id, status, created_at, updated_at
		 FROM users WHERE line_user_id = ?`), lineUserID)
	if errors.Is(err, sql.ErrNoRows) {
		return User{}, ErrNotFound
	}
	if err != nil {
		return User{}, fmt.Errorf("get user %s: %w", lineUserID, err)
	}
	return u, nil
}

// IsActive reports whether the user holds a paid status. Unknown users are inactive.
func (s *Store) IsActive(ctx context.Context, lineUserID string) (bool, error) {
	u, err := s.GetUser(ctx, lineUserID)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return u.Status.Paid(), nil
}

// SetStatus upserts the user's status. Empty ids keep the stored ones.
func (s *Store) SetStatus(ctx context.Context, lineUserID string, status Status, customerID, subscriptionID string) error {
	if lineUserID == "" {
		return errors.New("billing: empty line user id")
	}
	now := s.now().Format(time.RFC3339Nano)
	_, err := s.db.ExecContext(ctx, s.db.Rebind(`
		INSERT INTO users (line_user_id, stripe_customer_id, stripe_subscription_id, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (line_user_id) DO UPDATE SET
			stripe_customer_id     = COALESCE(excluded.stripe_customer_id, users.stripe_customer_id),
			stripe_subscription_id = COALESCE(excluded.stripe_subscription_id, users.stripe_subscription_id),
			status                 = excluded.status,
			updated_at             = excluded.updated_at`),
		lineUserID, nullIfEmpty(customerID), nullIfEmpty(subscriptionID), string(status), now, now)
	if err != nil {
		return fmt.Errorf("set status %s: %w", lineUserID, err)
	}
	s.log.Info("status", "user", lineUserID, "status", status)
	return nil
}

// #endregion users

// #region events
// MarkEventProcessed records a webhook event id. It returns false when the id was
// already recorded, so the caller can skip a redelivered event.
func (s *Store) MarkEventProcessed(ctx context.Context, eventID string) (bool, error) {
	res, err := s.db.ExecContext(ctx, s.db.Rebind(
		`INSERT INTO processed_events (event_id, processed_at) VALUES (?, ?) ON CONFLICT (event_id) DO NOTHING`),
		eventID, s.now().Format(time.RFC3339Nano))
	if err != nil {
		return false, fmt.Errorf("mark event %s: %w", eventID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("mark event %s: %w", eventID, err)
	}
	if n == 0 {
		s.log.Debug("duplicate event", "event", eventID)
	}
	return n == 1, nil
}

// #endregion events

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
