package sessions

import (
	"fmt"
	"slices"
	"time"

	bridgeerrors "github.com/jrsteele09/ravkav-bridge/internal/errors"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/oauth2"
)

// Status is the login state of a session.
type Status string

const (
	StatusUnauthenticated      Status = "UNAUTHENTICATED"
	StatusAwaitingVerification Status = "AWAITING_VERIFICATION"
	StatusAuthenticated        Status = "AUTHENTICATED"
)

func (s Status) Valid() bool {
	switch s {
	case StatusUnauthenticated, StatusAwaitingVerification, StatusAuthenticated:
		return true
	}
	return false
}

// Credentials are the identifier/secret pair submitted to the upstream portal.
type Credentials struct {
	Identifier string
	Secret     string
}

// AuthResult is the outcome of the most recent login attempt.
type AuthResult struct {
	Success      bool      `json:"success"`
	AccessToken  string    `json:"accessToken,omitempty"`
	RefreshToken string    `json:"refreshToken,omitempty"`
	TokenExpiry  time.Time `json:"tokenExpiry,omitzero"`
	Data         []string  `json:"data"`
	Errors       []string  `json:"errors"`
}

// Session holds one user's credentials and login state for the lifetime of the process.
type Session struct {
	ID               string
	Credentials      Credentials
	SecretHash       []byte // bcrypt hash of Credentials.Secret, used for lookups
	VerificationCode string
	Status           Status
	AuthResult       AuthResult
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

type newOptions struct {
	hashCost int
}

// Option defines a function type to modify how a session is created.
type Option func(*newOptions)

// WithHashCost sets the bcrypt cost of the secret hash (primarily for testing)
func WithHashCost(cost int) Option {
	return func(o *newOptions) {
		o.hashCost = cost
	}
}

// New creates an unauthenticated session for the given credentials.
func New(id, identifier, secret string, now time.Time, opts ...Option) (*Session, error) {
	if id == "" {
		return nil, fmt.Errorf("session id is required")
	}
	o := newOptions{hashCost: bcrypt.DefaultCost}
	for _, opt := range opts {
		opt(&o)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(secret), o.hashCost)
	if err != nil {
		return nil, fmt.Errorf("hashing secret: %w", err)
	}
	return &Session{
		ID:          id,
		Credentials: Credentials{Identifier: identifier, Secret: secret},
		SecretHash:  hash,
		Status:      StatusUnauthenticated,
		AuthResult:  AuthResult{Data: []string{}, Errors: []string{}},
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

// Matches reports whether the given credentials are the ones this session was created with.
func (s *Session) Matches(identifier, secret string) bool {
	if s.Credentials.Identifier != identifier {
		return false
	}
	return bcrypt.CompareHashAndPassword(s.SecretHash, []byte(secret)) == nil
}

func (s *Session) SetVerificationCode(code string) {
	s.VerificationCode = code
}

// Apply records a login outcome. It is the only place status and result change, and it keeps
// the access token present exactly when the session is authenticated. A failed attempt against
// an already authenticated session keeps the tokens it had.
func (s *Session) Apply(next Status, result AuthResult, now time.Time) error {
	if !next.Valid() {
		return bridgeerrors.Wrapf(bridgeerrors.ErrInvalidStatus, "status %q", next)
	}
	if next == StatusAuthenticated {
		if result.AccessToken == "" {
			if !s.IsAuthenticated() {
				return fmt.Errorf("authenticated status requires an access token")
			}
			result.AccessToken = s.AuthResult.AccessToken
			result.RefreshToken = s.AuthResult.RefreshToken
			result.TokenExpiry = s.AuthResult.TokenExpiry
		}
	} else {
		result.AccessToken = ""
		result.RefreshToken = ""
		result.TokenExpiry = time.Time{}
	}
	if result.Data == nil {
		result.Data = []string{}
	}
	if result.Errors == nil {
		result.Errors = []string{}
	}
	s.Status = next
	s.AuthResult = result
	s.UpdatedAt = now
	return nil
}

func (s *Session) IsAuthenticated() bool {
	return s.Status == StatusAuthenticated && s.AuthResult.AccessToken != ""
}

// Token returns the bearer token for upstream calls, or nil when not authenticated.
func (s *Session) Token() *oauth2.Token {
	if !s.IsAuthenticated() {
		return nil
	}
	return &oauth2.Token{
		AccessToken:  s.AuthResult.AccessToken,
		RefreshToken: s.AuthResult.RefreshToken,
		TokenType:    "Bearer",
		Expiry:       s.AuthResult.TokenExpiry,
	}
}

// Clone returns a deep copy so stored sessions are never shared across callers.
func (s *Session) Clone() *Session {
	c := *s
	c.SecretHash = slices.Clone(s.SecretHash)
	c.AuthResult.Data = slices.Clone(s.AuthResult.Data)
	c.AuthResult.Errors = slices.Clone(s.AuthResult.Errors)
	return &c
}
