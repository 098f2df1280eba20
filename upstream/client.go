package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	bridgeerrors "github.com/jrsteele09/ravkav-bridge/internal/errors"
	"github.com/jrsteele09/ravkav-bridge/internal/utils"
	"github.com/jrsteele09/ravkav-bridge/sessions"
	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"
)

const (
	routeLogin                 = "/api/o/login/"
	routeIssueVerificationCode = "/api/o/issue-verification-code/"
	routeTransactions          = "/api/transaction/"

	userAgent       = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/139.0.0.0 Safari/537.36"
	maxResponseSize = 16 << 20
	unknownError    = "Unknown error"
)

// Client talks to the upstream portal API.
type Client struct {
	baseURL       string
	clientVersion string
	httpClient    *http.Client
	nowTime       func() time.Time
}

// ClientOption defines a function type to modify the Client.
type ClientOption func(*Client)

// WithHTTPClient replaces the underlying transport client (primarily for testing)
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithNowTime sets the now time function (primarily for testing)
func WithNowTime(nowFunc func() time.Time) ClientOption {
	return func(c *Client) {
		c.nowTime = nowFunc
	}
}

func NewClient(baseURL, clientVersion string, timeout time.Duration, opts ...ClientOption) *Client {
	c := &Client{
		baseURL:       strings.TrimRight(baseURL, "/"),
		clientVersion: clientVersion,
		httpClient:    &http.Client{Timeout: timeout},
		nowTime:       time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Login submits the session credentials, plus the verification code when one is set.
// It does not touch the session; deciding the status transition is the caller's job.
func (c *Client) Login(ctx context.Context, session *sessions.Session) LoginResult {
	req := loginRequest{
		Username:         session.Credentials.Identifier,
		Password:         session.Credentials.Secret,
		VerificationCode: utils.NonEmptyPtr(session.VerificationCode),
	}

	res := c.postJSON(ctx, routeLogin, req)
	if !res.Success {
		return LoginResult{Result: res}
	}

	tokens, err := decodeTokens(res.Data, c.nowTime())
	if err != nil {
		log.Err(err).Str("session_id", session.ID).Msg("Login succeeded but token payload was unreadable")
		return LoginResult{Result: payloadFailure(res, err)}
	}
	return LoginResult{Result: res, Tokens: tokens}
}

// IssueVerificationCode asks upstream to send a one-time code to the user's registered contact.
func (c *Client) IssueVerificationCode(ctx context.Context, session *sessions.Session) Result {
	return c.postJSON(ctx, routeIssueVerificationCode, verificationRequest{
		Username: session.Credentials.Identifier,
		Password: session.Credentials.Secret,
	})
}

// FetchTransactions lists the charged transactions visible to the session's access token.
// It does not check the session status; an unauthenticated session fails upstream.
func (c *Client) FetchTransactions(ctx context.Context, session *sessions.Session, filter Filter) TransactionsResult {
	q := url.Values{}
	q.Set("billing_status", "charged")
	q.Set("page_size", "1000")
	if filter.StartDate != "" && filter.EndDate != "" {
		q.Set("created_since", filter.StartDate)
		q.Set("created_until", filter.EndDate)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+routeTransactions+"?"+q.Encode(), nil)
	if err != nil {
		return TransactionsResult{Result: transportFailure(err)}
	}
	c.setHeaders(req, "/he/store/account/transaction-history?billingStatus=charged")
	req.Header.Set("Accept", "*/*")

	res := c.do(c.clientFor(ctx, session.Token()), req)
	if !res.Success {
		return TransactionsResult{Result: res}
	}

	txs, err := decodeTransactions(res.Data)
	if err != nil {
		log.Warn().Err(err).Str("session_id", session.ID).Msg("Transactions payload could not be decoded")
		res = payloadFailure(res, err)
		// 2xx with an unusable body
		res.HTTPStatus = http.StatusBadGateway
		return TransactionsResult{Result: res}
	}
	return TransactionsResult{Result: res, Transactions: txs}
}

// clientFor returns an HTTP client that authorizes requests with the bearer token.
func (c *Client) clientFor(ctx context.Context, token *oauth2.Token) *http.Client {
	if token == nil {
		return c.httpClient
	}
	ctx = context.WithValue(ctx, oauth2.HTTPClient, c.httpClient)
	hc := oauth2.NewClient(ctx, oauth2.StaticTokenSource(token))
	hc.Timeout = c.httpClient.Timeout
	return hc
}

func (c *Client) postJSON(ctx context.Context, route string, body any) Result {
	payload, err := json.Marshal(body)
	if err != nil {
		return transportFailure(err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+route, bytes.NewReader(payload))
	if err != nil {
		return transportFailure(err)
	}
	c.setHeaders(req, "/he/store/login")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Origin", c.baseURL)

	res := c.do(c.httpClient, req)
	if !res.Success && !bridgeerrors.Is(res.Err, bridgeerrors.ErrUpstreamTransport) {
		res.Err = bridgeerrors.Wrapf(bridgeerrors.ErrUpstreamAuth, "%s: %s", route, strings.Join(res.Errors, "; "))
	}
	return res
}

func (c *Client) setHeaders(req *http.Request, referer string) {
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept-Language", "he")
	req.Header.Set("Referer", c.baseURL+referer)
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("X-Ravkav-Version", c.clientVersion)
}

func (c *Client) do(hc *http.Client, req *http.Request) Result {
	resp, err := hc.Do(req)
	if err != nil {
		log.Err(err).Str("method", req.Method).Str("path", req.URL.Path).Msg("Upstream request failed")
		return transportFailure(err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		res := transportFailure(err)
		res.HTTPStatus = resp.StatusCode
		return res
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return Result{Success: true, HTTPStatus: resp.StatusCode, Data: body, Errors: []string{}}
	}

	res := Result{HTTPStatus: resp.StatusCode, Data: body}
	if detail, ok := decodeDetail(body); ok {
		res.Detail = detail
		res.Errors = []string{detail}
	} else {
		res.Errors = []string{fmt.Sprintf("Request failed with status code %d", resp.StatusCode)}
	}
	sentinel := bridgeerrors.ErrUpstreamRejected
	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		sentinel = bridgeerrors.ErrNotAuthenticated
	}
	res.Err = bridgeerrors.Wrapf(sentinel, "%s %s: %s", req.Method, req.URL.Path, res.Errors[0])
	log.Debug().Int("status", resp.StatusCode).Str("path", req.URL.Path).Str("detail", res.Detail).Msg("Upstream rejected request")
	return res
}

func transportFailure(err error) Result {
	msg := unknownError
	if err != nil && err.Error() != "" {
		msg = err.Error()
	}
	return Result{
		HTTPStatus: http.StatusInternalServerError,
		Errors:     []string{msg},
		Err:        bridgeerrors.Wrapf(bridgeerrors.ErrUpstreamTransport, "%s", msg),
	}
}

// payloadFailure turns a successful response whose body could not be used into a failure.
func payloadFailure(res Result, err error) Result {
	res.Success = false
	res.Errors = []string{err.Error()}
	res.Err = bridgeerrors.Wrapf(bridgeerrors.ErrUpstreamPayload, "%v", err)
	return res
}

// decodeDetail reads the structured "detail" field, which upstream sends either as a string
// or as a list of strings.
func decodeDetail(body []byte) (string, bool) {
	var p errorPayload
	if err := json.Unmarshal(body, &p); err != nil || len(p.Detail) == 0 {
		return "", false
	}
	var s string
	if err := json.Unmarshal(p.Detail, &s); err == nil {
		return s, s != ""
	}
	var list []string
	if err := json.Unmarshal(p.Detail, &list); err == nil && len(list) > 0 {
		return strings.Join(list, "; "), true
	}
	return "", false
}

func decodeTokens(body []byte, now time.Time) (Tokens, error) {
	var wrapped struct {
		Data *tokenPayload `json:"data"`
		tokenPayload
	}
	if err := json.Unmarshal(body, &wrapped); err != nil {
		return Tokens{}, fmt.Errorf("decoding login response: %w", err)
	}
	p := wrapped.tokenPayload
	if p.AccessToken == "" && wrapped.Data != nil {
		p = *wrapped.Data
	}
	if p.AccessToken == "" {
		return Tokens{}, fmt.Errorf("login response did not include an access token")
	}

	tokens := Tokens{AccessToken: p.AccessToken, RefreshToken: p.RefreshToken}
	if p.ExpiresIn > 0 {
		tokens.Expiry = now.Add(time.Duration(p.ExpiresIn) * time.Second)
	} else {
		tokens.Expiry = jwtExpiry(p.AccessToken)
	}
	return tokens, nil
}

// jwtExpiry reads the exp claim of a JWT access token without verifying it. The bridge only
// forwards the token, so it uses the claim for bookkeeping. Opaque tokens yield a zero time.
func jwtExpiry(raw string) time.Time {
	var claims jwt.RegisteredClaims
	if _, _, err := jwt.NewParser().ParseUnverified(raw, &claims); err != nil {
		return time.Time{}
	}
	if claims.ExpiresAt == nil {
		return time.Time{}
	}
	return claims.ExpiresAt.Time
}

func decodeTransactions(body []byte) ([]Transaction, error) {
	var env transactionsEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("decoding transactions: %w", err)
	}
	raw := env.Results
	if env.Data != nil {
		raw = env.Data.Results
	}

	txs := make([]Transaction, 0, len(raw))
	for i, item := range raw {
		var tx Transaction
		if err := json.Unmarshal(item, &tx); err != nil {
			return nil, fmt.Errorf("decoding transaction %d: %w", i, err)
		}
		tx.Raw = item
		txs = append(txs, tx)
	}
	return txs, nil
}
