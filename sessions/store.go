package sessions

import (
	"context"
	"errors"
	"fmt"
	"time"

	apperrors "github.com/jrsteele09/go-bank-dashboard/internal/errors"
)

// NowTimeFunc returns the current time. It can be overridden in tests.
var NowTimeFunc = time.Now

// persistTimeout bounds the write that follows a successful fn
const persistTimeout = 5 * time.Second

// Store serialises every read-modify-write of a session behind that session's lock.
// Different sessions never wait on each other.
type Store struct {
	repo  Repo
	locks *Locks
}

func NewStore(repo Repo) *Store {
	return &Store{
		repo:  repo,
		locks: NewLocks(),
	}
}

// Update runs fn on the session inside its critical section and persists the result when fn
// returns nil. A session that does not exist yet is created. When fn fails nothing is written.
// Once fn has succeeded the write no longer follows ctx cancellation: fn may already have
// consumed something outside the store, such as a rotated refresh token.
func (s *Store) Update(ctx context.Context, sessionID string, fn func(*Session) error) (*Session, error) {
	if sessionID == "" {
		return nil, apperrors.ErrInvalidSession
	}

	release, err := s.locks.Acquire(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("[sessions Update] waiting for session lock: %w", err)
	}
	defer release()

	session, err := s.repo.Get(ctx, sessionID)
	switch {
	case errors.Is(err, apperrors.ErrSessionNotFound):
		session = &Session{ID: sessionID, CreatedAt: NowTimeFunc()}
	case err != nil:
		return nil, fmt.Errorf("[sessions Update] get %w", err)
	}

	if err := fn(session); err != nil {
		return nil, err
	}

	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
	defer cancel()
	if err := s.repo.Upsert(writeCtx, session); err != nil {
		return nil, fmt.Errorf("[sessions Update] upsert %w", err)
	}
	return session.Clone(), nil
}

// Delete removes the session under its lock, so it can't race an in-flight refresh
func (s *Store) Delete(ctx context.Context, sessionID string) error {
	release, err := s.locks.Acquire(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("[sessions Delete] waiting for session lock: %w", err)
	}
	defer release()

	return s.repo.Delete(ctx, sessionID)
}

// ActiveLocks exposes the size of the lock arena for diagnostics
func (s *Store) ActiveLocks() int {
	return s.locks.Len()
}
