package shared

import (
	"errors"
	"net/http"

	"peakform/internal/transport/http/json"
	dErrors "peakform/pkg/domain-errors"
)

// ErrorBody is the error envelope every rejection shares:
// {"success": false, "error": {"code", "message"}}.
type ErrorBody struct {
	Success bool        `json:"success"`
	Error   ErrorDetail `json:"error"`
}

type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// WriteError centralizes domain error translation to HTTP responses. It
// translates transport-agnostic domain errors into status codes and the
// shared error envelope; unexpected errors become opaque 500s.
func WriteError(w http.ResponseWriter, err error) {
	var domainErr *dErrors.Error
	if errors.As(err, &domainErr) {
		json.WriteJSON(w, DomainCodeToHTTPStatus(domainErr.Code), ErrorBody{
			Error: ErrorDetail{
				Code:    string(domainErr.Code),
				Message: domainErr.Message,
			},
		})
		return
	}

	json.WriteJSON(w, http.StatusInternalServerError, ErrorBody{
		Error: ErrorDetail{
			Code:    string(dErrors.CodeInternal),
			Message: "internal error",
		},
	})
}

// DomainCodeToHTTPStatus translates domain error codes to HTTP status codes.
func DomainCodeToHTTPStatus(code dErrors.Code) int {
	switch code {
	case dErrors.CodeNotFound:
		return http.StatusNotFound
	case dErrors.CodeValidation, dErrors.CodeInvalidInput:
		return http.StatusBadRequest
	case dErrors.CodeConflict:
		return http.StatusConflict
	case dErrors.CodeUnauthenticated:
		return http.StatusUnauthorized
	case dErrors.CodeForbidden, dErrors.CodeMissingConsent, dErrors.CodeCSRF:
		return http.StatusForbidden
	case dErrors.CodeRateLimited:
		return http.StatusTooManyRequests
	case dErrors.CodeUnavailable:
		return http.StatusServiceUnavailable
	case dErrors.CodeInternal:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}
