package server

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"regexp"
	"slices"
	"strings"
	"time"

	"github.com/jrsteele09/ravkav-bridge/export"
	bridgeerrors "github.com/jrsteele09/ravkav-bridge/internal/errors"
)

const dateLayout = "2006-01-02"

var errInvalidBody = bridgeerrors.NewValidation("Invalid request body")

const (
	returnFormatJSON  = "json"
	returnFormatExcel = "excel"
)

var (
	emailRegex = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
	dateRegex  = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)

	allowedReturnFormats = []string{returnFormatJSON, string(export.FormatPDFBinary), string(export.FormatPDFBase64), returnFormatExcel}
)

// flexString accepts a JSON string or number, since verification codes arrive as either.
type flexString string

func (f *flexString) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*f = ""
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*f = flexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("expected string or number")
	}
	*f = flexString(n.String())
	return nil
}

type formDecoder interface {
	fromForm(form url.Values)
}

// decodeRequest fills req from a JSON body or an urlencoded form.
func decodeRequest(r *http.Request, req formDecoder) error {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "application/x-www-form-urlencoded" {
		if err := r.ParseForm(); err != nil {
			return bridgeerrors.Wrapf(errInvalidBody, "%v", err)
		}
		req.fromForm(r.PostForm)
		return nil
	}

	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(req); err != nil {
		if errors.Is(err, io.EOF) {
			return nil // Empty body: let field validation report what is missing
		}
		return bridgeerrors.Wrapf(errInvalidBody, "%v", err)
	}
	return nil
}

type loginRequest struct {
	Email            string     `json:"email"`
	Password         string     `json:"password"`
	VerificationCode flexString `json:"verification_code"`
	SessionID        string     `json:"sessionId"`
}

func (l *loginRequest) fromForm(form url.Values) {
	l.Email = form.Get("email")
	l.Password = form.Get("password")
	l.VerificationCode = flexString(form.Get("verification_code"))
	l.SessionID = form.Get("sessionId")
}

func (l *loginRequest) validate() error {
	l.Email = strings.TrimSpace(l.Email)
	l.VerificationCode = flexString(strings.TrimSpace(string(l.VerificationCode)))
	if l.Email == "" || l.Password == "" {
		return bridgeerrors.NewValidation("Email and password are required")
	}
	if !emailRegex.MatchString(l.Email) {
		return bridgeerrors.NewValidation("Invalid email format")
	}
	return nil
}

type transactionsRequest struct {
	SessionID    string `json:"sessionId"`
	StartDate    string `json:"startDate"`
	EndDate      string `json:"endDate"`
	ReturnFormat string `json:"returnFormat"`
}

func (t *transactionsRequest) fromForm(form url.Values) {
	t.SessionID = form.Get("sessionId")
	t.StartDate = form.Get("startDate")
	t.EndDate = form.Get("endDate")
	t.ReturnFormat = form.Get("returnFormat")
}

// validate checks the request fields. Whether the session exists is checked by the handler.
func (t *transactionsRequest) validate() error {
	if t.ReturnFormat == "" {
		t.ReturnFormat = returnFormatJSON
	}
	if t.StartDate != "" && !validDate(t.StartDate) {
		return bridgeerrors.NewValidation("Invalid start date format, expected format: YYYY-MM-DD")
	}
	if t.EndDate != "" && !validDate(t.EndDate) {
		return bridgeerrors.NewValidation("Invalid end date format, expected format: YYYY-MM-DD")
	}
	// Fixed-width ISO dates order lexically
	if t.StartDate != "" && t.EndDate != "" && t.StartDate > t.EndDate {
		return bridgeerrors.NewValidation("Start date must be before end date")
	}
	if !isAllowedReturnFormat(t.ReturnFormat) {
		return bridgeerrors.NewValidation("Invalid return format, Please use: " + strings.Join(allowedReturnFormats, ", "))
	}
	if t.SessionID == "" {
		return bridgeerrors.NewValidation("Session ID is required")
	}
	return nil
}

func validDate(s string) bool {
	if !dateRegex.MatchString(s) {
		return false
	}
	_, err := time.Parse(dateLayout, s)
	return err == nil
}

func isAllowedReturnFormat(f string) bool {
	return slices.Contains(allowedReturnFormats, f)
}
