package sessions

import (
	"context"
	"errors"
	"sync"
	"time"

	bridgeerrors "github.com/jrsteele09/ravkav-bridge/internal/errors"
	"github.com/rs/zerolog/log"
)

var _ Repo = (*InMemoryRepo)(nil)

// InMemoryRepo is a thread-safe in-memory implementation of Repo
type InMemoryRepo struct {
	mu       sync.RWMutex
	sessions map[string]*Session

	locksMu sync.Mutex
	locks   map[string]*sessionLock
}

// sessionLock lives in the locks map while anyone holds or waits on it, independent of
// whether the session itself is still stored.
type sessionLock struct {
	mu   sync.Mutex
	refs int
}

// NewInMemoryRepo creates a new in-memory session repository
func NewInMemoryRepo() *InMemoryRepo {
	return &InMemoryRepo{
		sessions: make(map[string]*Session),
		locks:    make(map[string]*sessionLock),
	}
}

// Put stores a copy of the session
func (r *InMemoryRepo) Put(session *Session) error {
	if session == nil {
		return errors.New("session cannot be nil")
	}
	if session.ID == "" {
		return errors.New("session id cannot be empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.sessions[session.ID] = session.Clone()
	return nil
}

// Get returns a copy of the session
func (r *InMemoryRepo) Get(sessionID string) (*Session, error) {
	if sessionID == "" {
		return nil, errors.New("session id cannot be empty")
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	session, ok := r.sessions[sessionID]
	if !ok {
		return nil, bridgeerrors.ErrSessionNotFound
	}
	return session.Clone(), nil
}

// Remove deletes a session. Removing an unknown session is not an error.
func (r *InMemoryRepo) Remove(sessionID string) error {
	if sessionID == "" {
		return errors.New("session id cannot be empty")
	}

	r.mu.Lock()
	delete(r.sessions, sessionID)
	r.mu.Unlock()
	return nil
}

func (r *InMemoryRepo) FindByCredentials(identifier, secret string) (*Session, error) {
	r.mu.RLock()
	candidates := make([]*Session, 0, 1)
	for _, s := range r.sessions {
		if s.Credentials.Identifier == identifier {
			candidates = append(candidates, s.Clone())
		}
	}
	r.mu.RUnlock()

	// bcrypt comparisons run outside the lock
	var found *Session
	for _, s := range candidates {
		if !s.Matches(identifier, secret) {
			continue
		}
		if found == nil || s.UpdatedAt.After(found.UpdatedAt) {
			found = s
		}
	}
	if found == nil {
		return nil, bridgeerrors.ErrSessionNotFound
	}
	return found, nil
}

// Acquire blocks until the caller is the sole owner of the session.
func (r *InMemoryRepo) Acquire(sessionID string) (func(), error) {
	r.mu.RLock()
	_, ok := r.sessions[sessionID]
	r.mu.RUnlock()
	if !ok {
		return nil, bridgeerrors.ErrSessionNotFound
	}

	r.locksMu.Lock()
	lock, ok := r.locks[sessionID]
	if !ok {
		lock = &sessionLock{}
		r.locks[sessionID] = lock
	}
	lock.refs++
	r.locksMu.Unlock()

	lock.mu.Lock()
	var once sync.Once
	return func() {
		once.Do(func() {
			lock.mu.Unlock()
			r.locksMu.Lock()
			lock.refs--
			if lock.refs == 0 {
				delete(r.locks, sessionID)
			}
			r.locksMu.Unlock()
		})
	}, nil
}

func (r *InMemoryRepo) DeleteExpired(before time.Time) int {
	r.mu.Lock()
	var expired []string
	for id, s := range r.sessions {
		if s.UpdatedAt.Before(before) {
			expired = append(expired, id)
			delete(r.sessions, id)
		}
	}
	r.mu.Unlock()
	return len(expired)
}

// StartSweeper removes sessions idle for longer than maxAge every interval until ctx is done.
// A zero maxAge disables expiry entirely.
func StartSweeper(ctx context.Context, repo Repo, maxAge, interval time.Duration, now func() time.Time) {
	if maxAge <= 0 || interval <= 0 {
		return
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if n := repo.DeleteExpired(now().Add(-maxAge)); n > 0 {
					log.Info().Int("removed", n).Msg("Expired sessions removed")
				}
			}
		}
	}()
}
