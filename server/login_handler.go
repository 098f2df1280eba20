package server

import (
	"net/http"

	"github.com/jrsteele09/ravkav-bridge/auth"
	bridgeerrors "github.com/jrsteele09/ravkav-bridge/internal/errors"
	"github.com/jrsteele09/ravkav-bridge/sessions"
	"github.com/rs/zerolog/log"
)

type loginResponse struct {
	SessionID   string              `json:"sessionId"`
	Status      sessions.Status     `json:"status"`
	Outcome     auth.Kind           `json:"outcome"`
	LoginResult sessions.AuthResult `json:"loginResult"`
}

// LoginHandler submits credentials (and an optional verification code) upstream (POST /login).
// A verification-pending outcome is reported as success with data ["verification_code_sent"];
// the caller resubmits with verification_code to finish logging in.
func (s *Server) LoginHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req loginRequest
		if err := decodeRequest(r, &req); err != nil {
			writeFailure(w, err)
			return
		}
		if err := req.validate(); err != nil {
			writeFailure(w, err)
			return
		}

		sessionID, err := s.resolveSession(req)
		if err != nil {
			writeFailure(w, bridgeerrors.Wrapf(err, "resolving login session"))
			return
		}

		release, err := s.deps.Sessions.Acquire(sessionID)
		if err != nil {
			writeFailure(w, bridgeerrors.Wrapf(bridgeerrors.ErrInternal, "acquiring session %s: %v", sessionID, err))
			return
		}
		defer release()

		// Re-read under the session lock so a concurrent attempt's outcome is not lost
		session, err := s.deps.Sessions.Get(sessionID)
		if err != nil {
			writeFailure(w, bridgeerrors.Wrapf(bridgeerrors.ErrInternal, "session %s vanished: %v", sessionID, err))
			return
		}
		session.SetVerificationCode(string(req.VerificationCode))

		outcome, err := s.deps.Login.Login(r.Context(), session)
		if err != nil {
			writeFailure(w, bridgeerrors.Wrapf(err, "recording login outcome for %s", sessionID))
			return
		}
		if err := s.deps.Sessions.Put(session); err != nil {
			writeFailure(w, bridgeerrors.Wrapf(err, "storing session %s", sessionID))
			return
		}

		writeJSON(w, http.StatusOK, loginResponse{
			SessionID:   session.ID,
			Status:      session.Status,
			Outcome:     outcome.Kind,
			LoginResult: outcome.Result,
		})
	}
}

// resolveSession finds the session for these credentials: the one named in the request when the
// credentials match it, else the latest session created with them, else a new one.
func (s *Server) resolveSession(req loginRequest) (string, error) {
	if req.SessionID != "" {
		existing, err := s.deps.Sessions.Get(req.SessionID)
		if err == nil && existing.Matches(req.Email, req.Password) {
			return existing.ID, nil
		}
		if err != nil && !bridgeerrors.Is(err, bridgeerrors.ErrSessionNotFound) {
			return "", err
		}
	}

	existing, err := s.deps.Sessions.FindByCredentials(req.Email, req.Password)
	if err == nil {
		return existing.ID, nil
	}
	if !bridgeerrors.Is(err, bridgeerrors.ErrSessionNotFound) {
		return "", err
	}

	session, err := sessions.New(s.newID(), req.Email, req.Password, s.nowTime(), s.sessionOpts...)
	if err != nil {
		return "", err
	}
	if err := s.deps.Sessions.Put(session); err != nil {
		return "", err
	}
	log.Info().Str("session_id", session.ID).Msg("Session created")
	return session.ID, nil
}
