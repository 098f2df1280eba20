package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jrsteele09/ravkav-bridge/auth"
	"github.com/jrsteele09/ravkav-bridge/export"
	"github.com/jrsteele09/ravkav-bridge/internal/config"
	"github.com/jrsteele09/ravkav-bridge/sessions"
	"github.com/jrsteele09/ravkav-bridge/upstream"
	"github.com/rs/zerolog/log"
)

// LoginFlow runs a login attempt against a session and records the outcome on it.
type LoginFlow interface {
	Login(ctx context.Context, session *sessions.Session) (auth.Outcome, error)
}

// TransactionSource lists a session's upstream transactions.
type TransactionSource interface {
	FetchTransactions(ctx context.Context, session *sessions.Session, filter upstream.Filter) upstream.TransactionsResult
}

// Exporter turns transactions into one merged document.
type Exporter interface {
	Run(ctx context.Context, txs []upstream.Transaction) (*export.Artifact, error)
}

// Deps holds everything the handlers call into
type Deps struct {
	Sessions     sessions.Repo
	Login        LoginFlow
	Transactions TransactionSource
	Exporter     Exporter
}

type Server struct {
	env     string // Environment (e.g., "DEV", "PROD")
	mux     *http.ServeMux
	routes  []string
	config  config.Config
	deps    Deps
	nowTime func() time.Time
	newID   func() string

	sessionOpts []sessions.Option
}

// ServerOption defines a function type to modify the Server.
type ServerOption func(*Server)

// WithNowTime sets the now time function (primarily for testing)
func WithNowTime(nowFunc func() time.Time) ServerOption {
	return func(s *Server) {
		s.nowTime = nowFunc
	}
}

// WithIDGenerator sets how new session ids are made (primarily for testing)
func WithIDGenerator(newID func() string) ServerOption {
	return func(s *Server) {
		s.newID = newID
	}
}

// WithSessionOptions sets the options new sessions are created with
func WithSessionOptions(opts ...sessions.Option) ServerOption {
	return func(s *Server) {
		s.sessionOpts = opts
	}
}

func New(config config.Config, deps Deps, opts ...ServerOption) (*Server, error) {
	if deps.Sessions == nil || deps.Login == nil || deps.Transactions == nil || deps.Exporter == nil {
		return nil, errors.New("[Server New] all dependencies are required")
	}

	s := &Server{
		env:     config.GetEnv(),
		mux:     http.NewServeMux(),
		config:  config,
		deps:    deps,
		nowTime: time.Now,
		newID:   uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}

	s.initRoutes()
	s.logRoutes()

	return s, nil
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) RegisterRouteHandler(pattern string, handler http.Handler) {
	s.routes = append(s.routes, pattern)
	s.mux.Handle(pattern, handler)
}

func (s *Server) RegisterRouteFunc(pattern string, handler func(http.ResponseWriter, *http.Request)) {
	s.routes = append(s.routes, pattern)
	s.mux.HandleFunc(pattern, handler)
}

func (s *Server) logRoutes() {
	if s.env != "DEV" {
		return // Skip logging in non-development environments
	}
	for _, route := range s.routes {
		parts := strings.SplitN(route, " ", 2)

		if len(parts) > 1 {
			logRoute(parts[0], parts[1])
		} else {
			logRoute("", parts[0])
		}
	}
}

func logRoute(method, path string) {
	var displayMethod string
	paddedMethod := fmt.Sprintf(" %-7s", method)
	if color, ok := methodColors[method]; ok {
		displayMethod = color + paddedMethod + ResetColor
	} else {
		displayMethod = Gray + paddedMethod + ResetColor
	}
	log.Info().Msgf("[%-19s] %s", displayMethod, path)
}
