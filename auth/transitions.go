package auth

import "github.com/jrsteele09/ravkav-bridge/sessions"

// Event is what a single login attempt produced upstream.
type Event int

const (
	// EventLoginAccepted: upstream issued tokens.
	EventLoginAccepted Event = iota
	// EventCodeIssued: upstream demanded a verification code and one was sent.
	EventCodeIssued
	// EventCodeIssueFailed: upstream demanded a verification code but sending it failed.
	EventCodeIssueFailed
	// EventRejected: upstream refused the login with a structured reason.
	EventRejected
	// EventTransportFailure: the login call failed without a decodable reason.
	EventTransportFailure
)

func (e Event) String() string {
	switch e {
	case EventLoginAccepted:
		return "login_accepted"
	case EventCodeIssued:
		return "code_issued"
	case EventCodeIssueFailed:
		return "code_issue_failed"
	case EventRejected:
		return "rejected"
	case EventTransportFailure:
		return "transport_failure"
	}
	return "unknown"
}

// Kind tags the outcome of a login so callers cannot mistake "code sent" for "logged in".
type Kind string

const (
	KindAuthenticated       Kind = "authenticated"
	KindVerificationPending Kind = "verification_pending"
	KindFailed              Kind = "failed"
)

// Transition is one row of the login state machine. When Keep is set the session keeps
// whatever status it had.
type Transition struct {
	Next sessions.Status
	Keep bool
	Kind Kind
}

var (
	toAuthenticated = Transition{Next: sessions.StatusAuthenticated, Kind: KindAuthenticated}
	toAwaiting      = Transition{Next: sessions.StatusAwaitingVerification, Kind: KindVerificationPending}
	keepFailed      = Transition{Keep: true, Kind: KindFailed}
)

// transitions is the full (status, event) table. Only an accepted login and a successfully
// issued code move the status; every failure leaves the previous status in place.
var transitions = map[sessions.Status]map[Event]Transition{
	sessions.StatusUnauthenticated: {
		EventLoginAccepted:    toAuthenticated,
		EventCodeIssued:       toAwaiting,
		EventCodeIssueFailed:  keepFailed,
		EventRejected:         keepFailed,
		EventTransportFailure: keepFailed,
	},
	sessions.StatusAwaitingVerification: {
		EventLoginAccepted:    toAuthenticated,
		EventCodeIssued:       toAwaiting,
		EventCodeIssueFailed:  keepFailed,
		EventRejected:         keepFailed,
		EventTransportFailure: keepFailed,
	},
	sessions.StatusAuthenticated: {
		EventLoginAccepted:    toAuthenticated,
		EventCodeIssued:       toAwaiting,
		EventCodeIssueFailed:  keepFailed,
		EventRejected:         keepFailed,
		EventTransportFailure: keepFailed,
	},
}

// Lookup returns the transition for the given status and event.
func Lookup(current sessions.Status, event Event) (Transition, bool) {
	row, ok := transitions[current]
	if !ok {
		return Transition{}, false
	}
	t, ok := row[event]
	return t, ok
}

// NextStatus resolves Keep against the current status.
func (t Transition) NextStatus(current sessions.Status) sessions.Status {
	if t.Keep {
		return current
	}
	return t.Next
}
