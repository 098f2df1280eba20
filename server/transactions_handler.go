package server

import (
	"net/http"

	"github.com/jrsteele09/ravkav-bridge/export"
	bridgeerrors "github.com/jrsteele09/ravkav-bridge/internal/errors"
	"github.com/jrsteele09/ravkav-bridge/sessions"
	"github.com/jrsteele09/ravkav-bridge/upstream"
	"github.com/rs/zerolog/log"
)

const pdfFileName = "transactions.pdf"

type pdfBase64Data struct {
	PDFBase64 string `json:"pdfBase64"`
}

// TransactionsHandler lists a session's transactions, or exports their approval documents as one
// PDF (POST /get-transactions).
func (s *Server) TransactionsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req transactionsRequest
		if err := decodeRequest(r, &req); err != nil {
			writeFailure(w, err)
			return
		}
		if err := req.validate(); err != nil {
			writeFailure(w, err)
			return
		}

		if _, err := s.deps.Sessions.Get(req.SessionID); err != nil {
			writeFailure(w, err)
			return
		}

		if req.ReturnFormat == returnFormatExcel {
			writeJSON(w, http.StatusNotImplemented, envelope{
				Status: statusError,
				Errors: []string{"excel export is not supported"},
			})
			return
		}

		release, err := s.deps.Sessions.Acquire(req.SessionID)
		if err != nil {
			writeFailure(w, err)
			return
		}
		defer release()

		session, err := s.deps.Sessions.Get(req.SessionID)
		if err != nil {
			writeFailure(w, err)
			return
		}

		result := s.deps.Transactions.FetchTransactions(r.Context(), session, upstream.Filter{
			StartDate: req.StartDate,
			EndDate:   req.EndDate,
		})
		if !result.Success {
			logFetchFailure(session, result.Result)
		}

		if req.ReturnFormat == returnFormatJSON {
			s.writeTransactionsJSON(w, result)
			return
		}

		if !result.Success {
			writeJSON(w, upstreamStatus(result.HTTPStatus), envelope{
				Status: statusError,
				Errors: nonNil(result.Errors),
			})
			return
		}

		s.writeExport(w, r, export.Format(req.ReturnFormat), result.Transactions)
	}
}

func (s *Server) writeTransactionsJSON(w http.ResponseWriter, result upstream.TransactionsResult) {
	status := statusOK
	if !result.Success {
		status = statusError
	}
	writeJSON(w, upstreamStatus(result.HTTPStatus), envelope{
		Status:    status,
		Data:      passThrough(result.Data),
		Errors:    nonNil(result.Errors),
		Timestamp: formatTimestamp(s.nowTime()),
	})
}

func (s *Server) writeExport(w http.ResponseWriter, r *http.Request, format export.Format, txs []upstream.Transaction) {
	artifact, err := s.deps.Exporter.Run(r.Context(), txs)
	if err != nil {
		var jobErr *export.JobError
		msgs := []string{errInternalServer}
		if bridgeerrors.As(err, &jobErr) {
			msgs = jobErr.Messages()
		}
		log.Err(err).Int("transactions", len(txs)).Msg("Export failed")
		writeJSON(w, http.StatusInternalServerError, envelope{Status: statusError, Errors: msgs})
		return
	}

	body, err := artifact.Encode(format)
	if err != nil {
		log.Err(err).Str("format", string(format)).Msg("Export encode failed")
		writeJSON(w, http.StatusInternalServerError, envelope{Status: statusError, Errors: []string{errInternalServer}})
		return
	}

	log.Info().
		Int("documents", artifact.Documents).
		Int("pages", artifact.Pages).
		Str("format", string(format)).
		Msg("Export complete")

	if format == export.FormatPDFBase64 {
		writeJSON(w, http.StatusOK, envelope{
			Status: statusOK,
			Data:   pdfBase64Data{PDFBase64: string(body)},
			Errors: []string{},
		})
		return
	}

	w.Header().Set("Content-Type", contentTypePDF)
	w.Header().Set("Content-Disposition", `attachment; filename="`+pdfFileName+`"`)
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(body); err != nil {
		log.Err(err).Msg("Failed to write PDF")
	}
}

func logFetchFailure(session *sessions.Session, res upstream.Result) {
	event := log.Warn()
	switch {
	case bridgeerrors.Is(res.Err, bridgeerrors.ErrNotAuthenticated):
		event = log.Info() // expected until the session finishes logging in
	case bridgeerrors.Is(res.Err, bridgeerrors.ErrUpstreamTransport), bridgeerrors.Is(res.Err, bridgeerrors.ErrUpstreamPayload):
		event = log.Error()
	}
	event.Err(res.Err).
		Str("session_id", session.ID).
		Str("status", string(session.Status)).
		Int("upstream_status", res.HTTPStatus).
		Msg("Transaction fetch failed")
}

// upstreamStatus falls back to 500 when no usable upstream status was recorded.
func upstreamStatus(status int) int {
	if status < 100 || status > 999 {
		return http.StatusInternalServerError
	}
	return status
}
