package auth_test

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/jrsteele09/ravkav-bridge/auth"
	bridgeerrors "github.com/jrsteele09/ravkav-bridge/internal/errors"
	"github.com/jrsteele09/ravkav-bridge/sessions"
	"github.com/jrsteele09/ravkav-bridge/upstream"
	"github.com/jrsteele09/ravkav-bridge/upstream/upstreamfake"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

const (
	testEmail    = "a@b.com"
	testPassword = "x"
	testCode     = "123456"
)

var testNow = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

// testFixture holds all test dependencies
type testFixture struct {
	upstream *upstreamfake.FakeUpstream
	flow     *auth.Flow
	session  *sessions.Session
}

func setupTestFixture(t *testing.T) *testFixture {
	t.Helper()

	u := upstreamfake.NewFakeUpstream()
	s, err := sessions.New("session-1", testEmail, testPassword, testNow, sessions.WithHashCost(bcrypt.MinCost))
	require.NoError(t, err)

	return &testFixture{
		upstream: u,
		flow:     auth.NewFlow(u, auth.WithNowTime(func() time.Time { return testNow })),
		session:  s,
	}
}

// requireInvariant checks access token presence matches the authenticated status
func requireInvariant(t *testing.T, s *sessions.Session) {
	t.Helper()
	require.Equal(t, s.Status == sessions.StatusAuthenticated, s.AuthResult.AccessToken != "")
}

func TestLogin_VerificationRequired(t *testing.T) {
	f := setupTestFixture(t)

	outcome, err := f.flow.Login(t.Context(), f.session)
	require.NoError(t, err)
	require.Equal(t, auth.KindVerificationPending, outcome.Kind)
	require.Equal(t, auth.EventCodeIssued, outcome.Event)
	require.True(t, outcome.Result.Success)
	require.Equal(t, []string{auth.VerificationCodeSent}, outcome.Result.Data)
	require.Equal(t, sessions.StatusAwaitingVerification, f.session.Status)
	require.Equal(t, 1, f.upstream.IssueCalls)
	requireInvariant(t, f.session)
}

func TestLogin_VerificationThenCode(t *testing.T) {
	f := setupTestFixture(t)

	_, err := f.flow.Login(t.Context(), f.session)
	require.NoError(t, err)

	f.session.SetVerificationCode(testCode)
	outcome, err := f.flow.Login(t.Context(), f.session)
	require.NoError(t, err)
	require.Equal(t, auth.KindAuthenticated, outcome.Kind)
	require.True(t, outcome.Result.Success)
	require.Equal(t, sessions.StatusAuthenticated, f.session.Status)
	require.Equal(t, "fake-access-token", f.session.AuthResult.AccessToken)
	require.NotNil(t, f.session.Token())
	requireInvariant(t, f.session)
}

func TestLogin_WrongCodeKeepsAwaiting(t *testing.T) {
	f := setupTestFixture(t)

	_, err := f.flow.Login(t.Context(), f.session)
	require.NoError(t, err)

	f.session.SetVerificationCode("000000")
	outcome, err := f.flow.Login(t.Context(), f.session)
	require.NoError(t, err)
	require.Equal(t, auth.KindFailed, outcome.Kind)
	require.Equal(t, auth.EventRejected, outcome.Event)
	require.False(t, outcome.Result.Success)
	require.Equal(t, []string{"invalid_verification_code"}, outcome.Result.Errors)
	require.Equal(t, sessions.StatusAwaitingVerification, f.session.Status)
	requireInvariant(t, f.session)
}

func TestLogin_IssueCodeFails(t *testing.T) {
	f := setupTestFixture(t)
	f.upstream.IssueFails = true

	outcome, err := f.flow.Login(t.Context(), f.session)
	require.NoError(t, err)
	require.Equal(t, auth.KindFailed, outcome.Kind)
	require.Equal(t, auth.EventCodeIssueFailed, outcome.Event)
	require.Equal(t, []string{"throttled"}, outcome.Result.Errors)
	require.Equal(t, sessions.StatusUnauthenticated, f.session.Status)
}

func TestLogin_RejectedLeavesStatus(t *testing.T) {
	f := setupTestFixture(t)
	f.upstream.ChallengeDetail = ""

	_, err := f.flow.Login(t.Context(), f.session)
	require.NoError(t, err)
	require.Equal(t, sessions.StatusAuthenticated, f.session.Status)

	f.upstream.RejectDetail = "invalid_credentials"
	outcome, err := f.flow.Login(t.Context(), f.session)
	require.NoError(t, err)
	require.Equal(t, auth.KindFailed, outcome.Kind)
	require.Equal(t, []string{"invalid_credentials"}, outcome.Result.Errors)
	require.Equal(t, sessions.StatusAuthenticated, f.session.Status)
	requireInvariant(t, f.session)
}

func TestLogin_TransportFailure(t *testing.T) {
	f := setupTestFixture(t)
	f.upstream.TransportDown = true

	outcome, err := f.flow.Login(t.Context(), f.session)
	require.NoError(t, err)
	require.Equal(t, auth.KindFailed, outcome.Kind)
	require.Equal(t, auth.EventTransportFailure, outcome.Event)
	require.Equal(t, []string{"connection refused"}, outcome.Result.Errors)
	require.Equal(t, sessions.StatusUnauthenticated, f.session.Status)
	require.Equal(t, 0, f.upstream.IssueCalls)
}

func TestLogin_ResultOverwritten(t *testing.T) {
	f := setupTestFixture(t)
	f.upstream.TransportDown = true
	_, err := f.flow.Login(t.Context(), f.session)
	require.NoError(t, err)
	require.NotEmpty(t, f.session.AuthResult.Errors)

	f.upstream.TransportDown = false
	_, err = f.flow.Login(t.Context(), f.session)
	require.NoError(t, err)
	require.Empty(t, f.session.AuthResult.Errors)
	require.Equal(t, []string{auth.VerificationCodeSent}, f.session.AuthResult.Data)
}

func TestTransitionTable_Complete(t *testing.T) {
	statuses := []sessions.Status{
		sessions.StatusUnauthenticated,
		sessions.StatusAwaitingVerification,
		sessions.StatusAuthenticated,
	}
	events := []auth.Event{
		auth.EventLoginAccepted,
		auth.EventCodeIssued,
		auth.EventCodeIssueFailed,
		auth.EventRejected,
		auth.EventTransportFailure,
	}

	for _, status := range statuses {
		for _, event := range events {
			tr, ok := auth.Lookup(status, event)
			require.True(t, ok, "%s/%s", status, event)

			next := tr.NextStatus(status)
			switch event {
			case auth.EventLoginAccepted:
				require.Equal(t, sessions.StatusAuthenticated, next)
				require.Equal(t, auth.KindAuthenticated, tr.Kind)
			case auth.EventCodeIssued:
				require.Equal(t, sessions.StatusAwaitingVerification, next)
				require.Equal(t, auth.KindVerificationPending, tr.Kind)
			default:
				require.Equal(t, status, next, "failures keep status")
				require.Equal(t, auth.KindFailed, tr.Kind)
			}
		}
	}

	_, ok := auth.Lookup(sessions.Status("bogus"), auth.EventLoginAccepted)
	require.False(t, ok)
}

// statusOnlyUpstream rejects every login with a bare status code and no detail
type statusOnlyUpstream struct{}

func (statusOnlyUpstream) Login(_ context.Context, _ *sessions.Session) upstream.LoginResult {
	return upstream.LoginResult{Result: upstream.Result{
		HTTPStatus: http.StatusBadGateway,
		Errors:     []string{"Request failed with status code 502"},
		Err:        bridgeerrors.Wrapf(bridgeerrors.ErrUpstreamAuth, "login"),
	}}
}

func (statusOnlyUpstream) IssueVerificationCode(_ context.Context, _ *sessions.Session) upstream.Result {
	panic("not called")
}

func TestLogin_RejectedWithoutDetailIsNotTransport(t *testing.T) {
	f := setupTestFixture(t)
	flow := auth.NewFlow(statusOnlyUpstream{}, auth.WithNowTime(func() time.Time { return testNow }))

	outcome, err := flow.Login(t.Context(), f.session)
	require.NoError(t, err)
	require.Equal(t, auth.KindFailed, outcome.Kind)
	require.Equal(t, auth.EventRejected, outcome.Event)
	require.Equal(t, []string{"Request failed with status code 502"}, outcome.Result.Errors)
	require.Equal(t, sessions.StatusUnauthenticated, f.session.Status)
}
