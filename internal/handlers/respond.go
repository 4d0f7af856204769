// internal/handlers/respond.go
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/jason-s-yu/eloledger/internal/ledger"
	"github.com/jason-s-yu/eloledger/internal/models"
	"github.com/jason-s-yu/eloledger/internal/registry"
	"github.com/sirupsen/logrus"
)

// Error codes returned in the "error" field of an error body.
const (
	CodeInvalidRequest      = "invalid_request"
	CodeTooLarge            = "payload_too_large"
	CodeNotFound            = "not_found"
	CodeAlreadyExists       = "already_exists"
	CodeIdempotencyMismatch = "idempotency_mismatch"
	CodeConflict            = "concurrent_modification"
	CodeStorage             = "storage_error"
	CodeInternal            = "internal_error"
)

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// errBadRequest marks failures detected while decoding a request.
var errBadRequest = errors.New("bad request")

func classify(err error) (int, string) {
	var tooLarge *http.MaxBytesError
	switch {
	case errors.As(err, &tooLarge):
		return http.StatusRequestEntityTooLarge, CodeTooLarge
	case errors.Is(err, errBadRequest),
		errors.Is(err, ledger.ErrInvalidSubmission),
		errors.Is(err, models.ErrInvalidPlayerID),
		errors.Is(err, models.ErrInvalidOutcome),
		errors.Is(err, registry.ErrInvalidName):
		return http.StatusBadRequest, CodeInvalidRequest
	case errors.Is(err, registry.ErrUnknownPlayer),
		errors.Is(err, ledger.ErrGameNotFound):
		return http.StatusNotFound, CodeNotFound
	case errors.Is(err, registry.ErrAlreadyExists):
		return http.StatusConflict, CodeAlreadyExists
	case errors.Is(err, ledger.ErrIdempotencyMismatch):
		return http.StatusConflict, CodeIdempotencyMismatch
	case errors.Is(err, ledger.ErrConcurrentModification):
		return http.StatusConflict, CodeConflict
	case errors.Is(err, ledger.ErrStorage):
		return http.StatusInternalServerError, CodeStorage
	default:
		return http.StatusInternalServerError, CodeInternal
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := classify(err)
	msg := err.Error()
	if status >= http.StatusInternalServerError {
		s.logger.WithError(err).WithFields(logrus.Fields{
			"method": r.Method,
			"path":   r.URL.Path,
		}).Error("request failed")
		// storage details stay in the log
		msg = http.StatusText(status)
	}
	writeJSON(w, status, errorResponse{Error: code, Message: msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
