package upstreamfake

import (
	"context"
	"net/http"
	"sync"

	bridgeerrors "github.com/jrsteele09/ravkav-bridge/internal/errors"
	"github.com/jrsteele09/ravkav-bridge/sessions"
	"github.com/jrsteele09/ravkav-bridge/upstream"
)

// FakeUpstream is a scripted in-process stand-in for the upstream portal.
// A login without a code is answered with ChallengeDetail when set; a login with a code
// succeeds only when it equals ValidCode.
type FakeUpstream struct {
	lock sync.Mutex

	ValidCode       string
	ChallengeDetail string
	RejectDetail    string // when set every login is refused with this detail
	IssueFails      bool
	TransportDown   bool
	AccessToken     string
	Transactions    []upstream.Transaction
	TransactionsRaw []byte

	LoginCalls       int
	IssueCalls       int
	FetchCalls       int
	LastFilter       upstream.Filter
	LastFetchedToken string
}

func NewFakeUpstream() *FakeUpstream {
	return &FakeUpstream{
		ValidCode:       "123456",
		ChallengeDetail: upstream.DetailVerificationRequired,
		AccessToken:     "fake-access-token",
	}
}

func (f *FakeUpstream) Login(_ context.Context, session *sessions.Session) upstream.LoginResult {
	f.lock.Lock()
	defer f.lock.Unlock()
	f.LoginCalls++

	switch {
	case f.TransportDown:
		return upstream.LoginResult{Result: upstream.Result{
			HTTPStatus: http.StatusInternalServerError,
			Errors:     []string{"connection refused"},
			Err:        bridgeerrors.Wrapf(bridgeerrors.ErrUpstreamTransport, "connection refused"),
		}}
	case f.RejectDetail != "":
		return upstream.LoginResult{Result: rejected(f.RejectDetail)}
	case session.VerificationCode == "" && f.ChallengeDetail != "":
		return upstream.LoginResult{Result: rejected(f.ChallengeDetail)}
	case session.VerificationCode != "" && session.VerificationCode != f.ValidCode:
		return upstream.LoginResult{Result: rejected("invalid_verification_code")}
	}
	return upstream.LoginResult{
		Result: upstream.Result{Success: true, HTTPStatus: http.StatusOK, Errors: []string{}},
		Tokens: upstream.Tokens{AccessToken: f.AccessToken, RefreshToken: "fake-refresh-token"},
	}
}

func (f *FakeUpstream) IssueVerificationCode(_ context.Context, _ *sessions.Session) upstream.Result {
	f.lock.Lock()
	defer f.lock.Unlock()
	f.IssueCalls++

	if f.IssueFails {
		return upstream.Result{
			HTTPStatus: http.StatusTooManyRequests,
			Detail:     "throttled",
			Errors:     []string{"throttled"},
			Err:        bridgeerrors.Wrapf(bridgeerrors.ErrUpstreamAuth, "throttled"),
		}
	}
	return upstream.Result{Success: true, HTTPStatus: http.StatusOK, Errors: []string{}}
}

func (f *FakeUpstream) FetchTransactions(_ context.Context, session *sessions.Session, filter upstream.Filter) upstream.TransactionsResult {
	f.lock.Lock()
	defer f.lock.Unlock()
	f.FetchCalls++
	f.LastFilter = filter

	token := session.Token()
	if token == nil || token.AccessToken != f.AccessToken {
		return upstream.TransactionsResult{Result: upstream.Result{
			HTTPStatus: http.StatusUnauthorized,
			Detail:     "Authentication credentials were not provided.",
			Errors:     []string{"Authentication credentials were not provided."},
			Err:        bridgeerrors.Wrapf(bridgeerrors.ErrNotAuthenticated, "fetch transactions"),
		}}
	}
	f.LastFetchedToken = token.AccessToken

	raw := f.TransactionsRaw
	if raw == nil {
		raw = []byte(`{"data":{"results":[]}}`)
	}
	return upstream.TransactionsResult{
		Result:       upstream.Result{Success: true, HTTPStatus: http.StatusOK, Data: raw, Errors: []string{}},
		Transactions: f.Transactions,
	}
}

func rejected(detail string) upstream.Result {
	return upstream.Result{
		HTTPStatus: http.StatusBadRequest,
		Detail:     detail,
		Errors:     []string{detail},
		Err:        bridgeerrors.Wrapf(bridgeerrors.ErrUpstreamAuth, "%s", detail),
	}
}
