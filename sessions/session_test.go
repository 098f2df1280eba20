package sessions_test

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	bridgeerrors "github.com/jrsteele09/ravkav-bridge/internal/errors"
	"github.com/jrsteele09/ravkav-bridge/sessions"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

const (
	testEmail    = "a@b.com"
	testPassword = "x"
)

var testNow = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func newSession(t *testing.T, id string) *sessions.Session {
	t.Helper()
	s, err := sessions.New(id, testEmail, testPassword, testNow, sessions.WithHashCost(bcrypt.MinCost))
	require.NoError(t, err)
	return s
}

func TestNew(t *testing.T) {
	s := newSession(t, "s-1")
	require.Equal(t, sessions.StatusUnauthenticated, s.Status)
	require.False(t, s.IsAuthenticated())
	require.Nil(t, s.Token())
	require.True(t, s.Matches(testEmail, testPassword))
	require.False(t, s.Matches(testEmail, "y"))
	require.False(t, s.Matches("c@d.com", testPassword))

	_, err := sessions.New("", testEmail, testPassword, testNow)
	require.Error(t, err)
}

func TestStatus_Valid(t *testing.T) {
	require.True(t, sessions.StatusAuthenticated.Valid())
	require.True(t, sessions.StatusAwaitingVerification.Valid())
	require.True(t, sessions.StatusUnauthenticated.Valid())
	require.False(t, sessions.Status("YES").Valid())
}

func TestApply_TokenInvariant(t *testing.T) {
	t.Run("authenticated requires token", func(t *testing.T) {
		s := newSession(t, "s-1")
		err := s.Apply(sessions.StatusAuthenticated, sessions.AuthResult{Success: true}, testNow)
		require.Error(t, err)
		require.Equal(t, sessions.StatusUnauthenticated, s.Status)
	})

	t.Run("tokens stripped when not authenticated", func(t *testing.T) {
		s := newSession(t, "s-1")
		err := s.Apply(sessions.StatusAwaitingVerification, sessions.AuthResult{Success: true, AccessToken: "leak"}, testNow)
		require.NoError(t, err)
		require.Empty(t, s.AuthResult.AccessToken)
		require.Equal(t, []string{}, s.AuthResult.Errors)
	})

	t.Run("failure after authentication keeps tokens", func(t *testing.T) {
		s := newSession(t, "s-1")
		require.NoError(t, s.Apply(sessions.StatusAuthenticated, sessions.AuthResult{Success: true, AccessToken: "at", RefreshToken: "rt"}, testNow))
		require.NoError(t, s.Apply(sessions.StatusAuthenticated, sessions.AuthResult{Errors: []string{"boom"}}, testNow.Add(time.Minute)))
		require.False(t, s.AuthResult.Success)
		require.Equal(t, []string{"boom"}, s.AuthResult.Errors)
		require.Equal(t, "at", s.Token().AccessToken)
		require.Equal(t, testNow.Add(time.Minute), s.UpdatedAt)
	})

	t.Run("invalid status rejected", func(t *testing.T) {
		s := newSession(t, "s-1")
		err := s.Apply(sessions.Status("WAITING_OTP"), sessions.AuthResult{}, testNow)
		require.ErrorIs(t, err, bridgeerrors.ErrInvalidStatus)
	})
}

func TestInMemoryRepo_PutGetRemove(t *testing.T) {
	repo := sessions.NewInMemoryRepo()
	s := newSession(t, "s-1")
	require.NoError(t, repo.Put(s))

	got, err := repo.Get("s-1")
	require.NoError(t, err)
	require.Equal(t, s.ID, got.ID)

	// Stored copies are isolated from callers
	got.Status = sessions.StatusAuthenticated
	again, err := repo.Get("s-1")
	require.NoError(t, err)
	require.Equal(t, sessions.StatusUnauthenticated, again.Status)

	require.NoError(t, repo.Remove("s-1"))
	_, err = repo.Get("s-1")
	require.ErrorIs(t, err, bridgeerrors.ErrSessionNotFound)
	require.NoError(t, repo.Remove("s-1"))

	require.Error(t, repo.Put(nil))
}

func TestInMemoryRepo_FindByCredentials(t *testing.T) {
	repo := sessions.NewInMemoryRepo()
	older := newSession(t, "old")
	newer := newSession(t, "new")
	newer.UpdatedAt = testNow.Add(time.Hour)
	other, err := sessions.New("other", "c@d.com", testPassword, testNow, sessions.WithHashCost(bcrypt.MinCost))
	require.NoError(t, err)
	for _, s := range []*sessions.Session{older, newer, other} {
		require.NoError(t, repo.Put(s))
	}

	found, err := repo.FindByCredentials(testEmail, testPassword)
	require.NoError(t, err)
	require.Equal(t, "new", found.ID)

	_, err = repo.FindByCredentials(testEmail, "wrong")
	require.ErrorIs(t, err, bridgeerrors.ErrSessionNotFound)
}

func TestInMemoryRepo_Acquire(t *testing.T) {
	repo := sessions.NewInMemoryRepo()
	require.NoError(t, repo.Put(newSession(t, "s-1")))

	_, err := repo.Acquire("missing")
	require.ErrorIs(t, err, bridgeerrors.ErrSessionNotFound)

	var active, maxActive int32
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			release, err := repo.Acquire("s-1")
			if err != nil {
				t.Error(err)
				return
			}
			defer release()
			n := atomic.AddInt32(&active, 1)
			for {
				m := atomic.LoadInt32(&maxActive)
				if n <= m || atomic.CompareAndSwapInt32(&maxActive, m, n) {
					break
				}
			}
			time.Sleep(2 * time.Millisecond)
			atomic.AddInt32(&active, -1)
		}()
	}
	wg.Wait()
	require.Equal(t, int32(1), maxActive)
}

func TestInMemoryRepo_DeleteExpired(t *testing.T) {
	repo := sessions.NewInMemoryRepo()
	stale := newSession(t, "stale")
	fresh := newSession(t, "fresh")
	fresh.UpdatedAt = testNow.Add(2 * time.Hour)
	require.NoError(t, repo.Put(stale))
	require.NoError(t, repo.Put(fresh))

	require.Equal(t, 1, repo.DeleteExpired(testNow.Add(time.Hour)))
	_, err := repo.Get("stale")
	require.ErrorIs(t, err, bridgeerrors.ErrSessionNotFound)
	_, err = repo.Get("fresh")
	require.NoError(t, err)
}

func TestInMemoryRepo_AcquireHeldAcrossRemoval(t *testing.T) {
	tests := []struct {
		name   string
		remove func(repo *sessions.InMemoryRepo)
	}{
		{name: "expired", remove: func(repo *sessions.InMemoryRepo) { repo.DeleteExpired(testNow.Add(time.Hour)) }},
		{name: "removed", remove: func(repo *sessions.InMemoryRepo) { _ = repo.Remove("s-1") }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := sessions.NewInMemoryRepo()
			s := newSession(t, "s-1")
			require.NoError(t, repo.Put(s))

			release, err := repo.Acquire("s-1")
			require.NoError(t, err)

			// The owner writes its session back after the store dropped it
			tt.remove(repo)
			require.NoError(t, repo.Put(s))

			acquired := make(chan func(), 1)
			go func() {
				second, err := repo.Acquire("s-1")
				if err != nil {
					t.Error(err)
					close(acquired)
					return
				}
				acquired <- second
			}()

			select {
			case <-acquired:
				t.Fatal("second owner acquired the session while the first still held it")
			case <-time.After(50 * time.Millisecond):
			}

			release()
			select {
			case second, ok := <-acquired:
				require.True(t, ok)
				second()
			case <-time.After(time.Second):
				t.Fatal("second owner never acquired the session")
			}
		})
	}
}
