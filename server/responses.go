package server

import (
	"encoding/json"
	"net/http"
	"time"

	bridgeerrors "github.com/jrsteele09/ravkav-bridge/internal/errors"
	"github.com/rs/zerolog/log"
)

const (
	contentTypeJSON = "application/json; charset=utf-8"
	contentTypePDF  = "application/pdf"

	timestampLayout = "2006-01-02T15:04:05.000Z07:00"

	statusOK    = "OK"
	statusError = "ERROR"
)

const errInternalServer = "Internal server error"

type errorsResponse struct {
	Errors []string `json:"errors"`
}

// envelope is the {status, data, errors} body used by the transactions endpoint.
type envelope struct {
	Status    string   `json:"status"`
	Data      any      `json:"data"`
	Errors    []string `json:"errors"`
	Timestamp string   `json:"timestamp,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", contentTypeJSON)
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Err(err).Msg("Failed to encode response")
	}
}

func writeErrors(w http.ResponseWriter, status int, msgs ...string) {
	writeJSON(w, status, errorsResponse{Errors: msgs})
}

// writeFailure answers with the {errors} body matching err: rejected input and unknown sessions
// are the caller's fault, anything else is reported as an internal error.
func writeFailure(w http.ResponseWriter, err error) {
	var invalid *bridgeerrors.ValidationError
	switch {
	case bridgeerrors.As(err, &invalid):
		writeErrors(w, http.StatusBadRequest, invalid.Msg)
	case bridgeerrors.Is(err, bridgeerrors.ErrSessionNotFound):
		writeErrors(w, http.StatusBadRequest, "Session not found")
	default:
		log.Err(err).Msg("Request failed")
		writeErrors(w, http.StatusInternalServerError, errInternalServer)
	}
}

func formatTimestamp(t time.Time) string {
	return t.UTC().Format(timestampLayout)
}

// passThrough returns upstream bytes as raw JSON when they are JSON, otherwise as a string.
func passThrough(data []byte) any {
	if len(data) == 0 {
		return nil
	}
	if json.Valid(data) {
		return json.RawMessage(data)
	}
	return string(data)
}

func nonNil(msgs []string) []string {
	if msgs == nil {
		return []string{}
	}
	return msgs
}
