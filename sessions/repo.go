package sessions

import "context"

// Repo is the session transport's key-value storage, keyed by session id.
// Implementations return apperrors.ErrSessionNotFound from Get for unknown ids.
type Repo interface {
	// Get retrieves a copy of the session
	Get(ctx context.Context, sessionID string) (*Session, error)

	// Upsert creates or replaces a session
	Upsert(ctx context.Context, session *Session) error

	// Delete removes a session. Deleting an unknown id is not an error.
	Delete(ctx context.Context, sessionID string) error
}
