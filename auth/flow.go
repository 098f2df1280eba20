package auth

import (
	"context"
	"time"

	bridgeerrors "github.com/jrsteele09/ravkav-bridge/internal/errors"
	"github.com/jrsteele09/ravkav-bridge/sessions"
	"github.com/jrsteele09/ravkav-bridge/upstream"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// VerificationCodeSent is the data marker returned when the login is waiting on a one-time code.
const VerificationCodeSent = "verification_code_sent"

// Upstream is the part of the upstream client the login flow drives.
type Upstream interface {
	Login(ctx context.Context, session *sessions.Session) upstream.LoginResult
	IssueVerificationCode(ctx context.Context, session *sessions.Session) upstream.Result
}

// Outcome is the tagged result of one login attempt. Result is the record stored on the session
// and returned to HTTP callers.
type Outcome struct {
	Kind   Kind
	Event  Event
	Result sessions.AuthResult
}

// Flow runs the credential + verification-code login state machine.
type Flow struct {
	upstream Upstream
	nowTime  func() time.Time
}

// FlowOption defines a function type to modify the Flow.
type FlowOption func(*Flow)

// WithNowTime sets the now time function (primarily for testing)
func WithNowTime(nowFunc func() time.Time) FlowOption {
	return func(f *Flow) {
		f.nowTime = nowFunc
	}
}

func NewFlow(u Upstream, opts ...FlowOption) *Flow {
	f := &Flow{upstream: u, nowTime: time.Now}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Login submits the session credentials (and verification code, if set) and applies the
// resulting transition to the session. The returned error is only set when the outcome could
// not be recorded; upstream failures are reported through the Outcome.
func (f *Flow) Login(ctx context.Context, session *sessions.Session) (Outcome, error) {
	event, result := f.attempt(ctx, session)

	t, ok := Lookup(session.Status, event)
	if !ok {
		return Outcome{}, errors.Errorf("no transition for status %s on %s", session.Status, event)
	}

	next := t.NextStatus(session.Status)
	if err := session.Apply(next, result, f.nowTime()); err != nil {
		return Outcome{}, errors.Wrap(err, "applying login outcome")
	}

	log.Info().
		Str("session_id", session.ID).
		Str("event", event.String()).
		Str("status", string(session.Status)).
		Msg("Login attempt processed")

	return Outcome{Kind: t.Kind, Event: event, Result: session.AuthResult}, nil
}

func (f *Flow) attempt(ctx context.Context, session *sessions.Session) (Event, sessions.AuthResult) {
	res := f.upstream.Login(ctx, session)
	switch {
	case res.Success:
		return EventLoginAccepted, sessions.AuthResult{
			Success:      true,
			AccessToken:  res.Tokens.AccessToken,
			RefreshToken: res.Tokens.RefreshToken,
			TokenExpiry:  res.Tokens.Expiry,
		}

	case res.Detail == upstream.DetailVerificationRequired:
		issued := f.upstream.IssueVerificationCode(ctx, session)
		if !issued.Success {
			log.Warn().Str("session_id", session.ID).Strs("errors", issued.Errors).Msg("Issuing verification code failed")
			return EventCodeIssueFailed, sessions.AuthResult{Errors: issued.Errors}
		}
		return EventCodeIssued, sessions.AuthResult{
			Success: true,
			Data:    []string{VerificationCodeSent},
		}

	case bridgeerrors.Is(res.Err, bridgeerrors.ErrUpstreamTransport):
		log.Warn().Err(res.Err).Str("session_id", session.ID).Msg("Login could not reach upstream")
		return EventTransportFailure, sessions.AuthResult{Errors: res.Errors}

	case res.Detail != "":
		return EventRejected, sessions.AuthResult{Errors: []string{res.Detail}}

	default:
		log.Warn().Err(res.Err).Str("session_id", session.ID).Msg("Login rejected without a reason")
		return EventRejected, sessions.AuthResult{Errors: res.Errors}
	}
}
