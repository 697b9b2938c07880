package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// ErrNotFound is returned by a Backing when no session was ever saved for a user.
var ErrNotFound = errors.New("session not found")

// #region interfaces
// Store is the session-store abstraction. WithSession serializes all mutation for one user:
// fn receives a private copy that is committed only when fn returns nil.
// Calling Store methods for the same user from inside fn deadlocks.
type Store interface {
	WithSession(ctx context.Context, userID string, fn func(*Session) error) error
	Get(ctx context.Context, userID string) (*Session, error)
	Reset(ctx context.Context, userID string) error
	Snapshot(ctx context.Context, userID string) (Snapshot, error)
}

// Backing is an optional durable layer behind MemoryStore.
type Backing interface {
	Load(ctx context.Context, userID string) (*Session, error)
	Save(ctx context.Context, sess *Session, reason string) error
}

// #endregion interfaces

// #region memory-store
// MemoryStore keeps sessions in process memory, one lock per user.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]*entry
	backing Backing
	now     func() time.Time
}

// entry is a single user's mailbox. lock is a one-slot channel so acquisition can honour ctx.
type entry struct {
	lock   chan struct{}
	sess   *Session
	loaded bool
}

// NewMemoryStore returns a store with no durability.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries: make(map[string]*entry),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// NewBackedStore returns a memory store that loads from and writes through to b.
func NewBackedStore(b Backing) *MemoryStore {
	s := NewMemoryStore()
	s.backing = b
	return s
}

// #endregion memory-store

// #region locking
func (m *MemoryStore) entryFor(userID string) *entry {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[userID]
	if !ok {
		e = &entry{lock: make(chan struct{}, 1)}
		m.entries[userID] = e
	}
	return e
}

func (e *entry) acquire(ctx context.Context) error {
	select {
	case e.lock <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (e *entry) release() {
	<-e.lock
}

// ensure loads or creates the session. Caller holds the entry lock.
func (m *MemoryStore) ensure(ctx context.Context, e *entry, userID string) error {
	if e.loaded {
		return nil
	}
	if m.backing != nil {
		sess, err := m.backing.Load(ctx, userID)
		switch {
		case err == nil:
			e.sess = sess
			e.loaded = true
			return nil
		case !errors.Is(err, ErrNotFound):
			return fmt.Errorf("load session %s: %w", userID, err)
		}
	}
	e.sess = New(userID, m.now())
	e.loaded = true
	return nil
}

// #endregion locking

// #region with-session
// WithSession runs fn against a copy of the user's session while holding that user's lock.
func (m *MemoryStore) WithSession(ctx context.Context, userID string, fn func(*Session) error) error {
	e := m.entryFor(userID)
	if err := e.acquire(ctx); err != nil {
		return err
	}
	defer e.release()

	if err := m.ensure(ctx, e, userID); err != nil {
		return err
	}

	work := e.sess.Clone()
	if err := fn(work); err != nil {
		return err
	}
	work.UpdatedAt = m.now()

	if m.backing != nil {
		if err := m.backing.Save(ctx, work, "turn"); err != nil {
			return fmt.Errorf("save session %s: %w", userID, err)
		}
	}
	e.sess = work
	return nil
}

// #endregion with-session

// #region get
// Get returns a copy of the user's session, creating it on first access.
func (m *MemoryStore) Get(ctx context.Context, userID string) (*Session, error) {
	e := m.entryFor(userID)
	if err := e.acquire(ctx); err != nil {
		return nil, err
	}
	defer e.release()
	if err := m.ensure(ctx, e, userID); err != nil {
		return nil, err
	}
	return e.sess.Clone(), nil
}

// #endregion get

// #region reset
// Reset replaces the user's session with a fresh one.
func (m *MemoryStore) Reset(ctx context.Context, userID string) error {
	e := m.entryFor(userID)
	if err := e.acquire(ctx); err != nil {
		return err
	}
	defer e.release()

	fresh := New(userID, m.now())
	if m.backing != nil {
		if err := m.backing.Save(ctx, fresh, "reset"); err != nil {
			return fmt.Errorf("save reset %s: %w", userID, err)
		}
	}
	e.sess = fresh
	e.loaded = true
	return nil
}

// #endregion reset

// #region snapshot
// Snapshot returns a serializable record of the user's session.
func (m *MemoryStore) Snapshot(ctx context.Context, userID string) (Snapshot, error) {
	sess, err := m.Get(ctx, userID)
	if err != nil {
		return Snapshot{}, err
	}
	return sess.Snapshot(m.now()), nil
}

// Len returns the number of users with a live entry.
func (m *MemoryStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

// #endregion snapshot
