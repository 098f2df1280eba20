package upstream

import (
	"encoding/json"
	"time"
)

// DetailVerificationRequired is the upstream detail returned when a one-time code must be supplied.
const DetailVerificationRequired = "verification_required"

// Result is what every upstream call returns. Failures are reported here, never as Go errors.
type Result struct {
	Success    bool
	HTTPStatus int
	Data       json.RawMessage
	Detail     string   // structured upstream reason, when one could be decoded
	Errors     []string // human readable failure reasons
	Err        error    // classified failure, nil on success
}

// Tokens are the credentials issued by a successful login.
type Tokens struct {
	AccessToken  string
	RefreshToken string
	Expiry       time.Time
}

type LoginResult struct {
	Result
	Tokens Tokens
}

// Filter restricts the transaction listing to a creation date range (YYYY-MM-DD).
// Both bounds must be set for the filter to be sent.
type Filter struct {
	StartDate string
	EndDate   string
}

// Transaction is one billed purchase. Only the fields the bridge acts on are decoded;
// Raw keeps the full upstream object.
type Transaction struct {
	ApprovalDocumentURL string          `json:"purchase_approval_link"`
	PeriodLabel         string          `json:"period_description"`
	Raw                 json.RawMessage `json:"-"`
}

type TransactionsResult struct {
	Result
	Transactions []Transaction
}

type loginRequest struct {
	Username         string  `json:"username"`
	Password         string  `json:"password"`
	VerificationCode *string `json:"verification_code"`
}

type verificationRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type tokenPayload struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int    `json:"expires_in,omitempty"`
}

type errorPayload struct {
	Detail json.RawMessage `json:"detail"`
}

type transactionsPage struct {
	Results []json.RawMessage `json:"results"`
}

type transactionsEnvelope struct {
	Data    *transactionsPage `json:"data"`
	Results []json.RawMessage `json:"results"`
}
