package api

import (
	"encoding/json"
	"net/http"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"blockproof/internal/apperr"
)

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error         string `json:"error"`
	Message       string `json:"message"`
	CorrelationID string `json:"correlationId,omitempty"`
}

// RespondJSON writes data as a JSON body with the given status.
func RespondJSON(w http.ResponseWriter, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(data)
}

// RespondError sends an error response
func RespondError(w http.ResponseWriter, statusCode int, errorCode string, message string) {
	RespondJSON(w, statusCode, ErrorResponse{
		Error:   errorCode,
		Message: message,
	})
}

// StatusFor maps an error kind to its HTTP status.
func StatusFor(kind apperr.Kind) int {
	switch kind {
	case apperr.KindValidation:
		return http.StatusBadRequest
	case apperr.KindNotFound:
		return http.StatusNotFound
	case apperr.KindDuplicateID:
		return http.StatusConflict
	case apperr.KindUnavailable, apperr.KindParse:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// RespondServiceError reports err to the caller. Internal errors are logged
// under a correlation id and their message is withheld.
func RespondServiceError(w http.ResponseWriter, r *http.Request, logger *zap.Logger, err error) {
	kind := apperr.KindOf(err)
	status := StatusFor(kind)

	if status != http.StatusInternalServerError {
		RespondError(w, status, kind.String(), err.Error())
		return
	}

	correlationID := uuid.New().String()
	logger.Error("internal error",
		zap.Error(err),
		zap.String("correlation_id", correlationID),
		zap.String("request_id", RequestIDFrom(r.Context())),
		zap.String("path", r.URL.Path))

	RespondJSON(w, status, ErrorResponse{
		Error:         kind.String(),
		Message:       "internal error",
		CorrelationID: correlationID,
	})
}
