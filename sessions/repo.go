package sessions

import "time"

// Repo is the process-wide session store.
type Repo interface {
	// Put creates or replaces a session
	Put(session *Session) error

	// Get retrieves a copy of a session by ID
	Get(sessionID string) (*Session, error)

	// Remove deletes a session by ID
	Remove(sessionID string) error

	// FindByCredentials returns the most recently updated session created with the given credentials
	FindByCredentials(identifier, secret string) (*Session, error)

	// Acquire serializes work on one session. The returned release func must be called.
	Acquire(sessionID string) (release func(), err error)

	// DeleteExpired removes sessions not updated since before and returns how many were removed
	DeleteExpired(before time.Time) int
}
