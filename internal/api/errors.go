package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"classhub/internal/router"
	"classhub/pkg/types"
)

// Request errors
var (
	ErrInvalidBody  = fmt.Errorf("%w: request body must be a valid JSON object", types.ErrValidation)
	ErrMissingToken = fmt.Errorf("%w: bearer token is required", types.ErrAuth)
	ErrForbidden    = fmt.Errorf("%w: role may not use this endpoint", types.ErrInvalidOperation)
)

// ErrorResponse is the body of every failed request
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// statusFor maps the error taxonomy to an HTTP status
// ARCHITECTURAL DISCOVERY: One mapping for every handler; handlers never
// inspect error strings
func statusFor(err error) int {
	switch {
	case errors.Is(err, router.ErrRateLimitExceeded):
		return http.StatusTooManyRequests
	case errors.Is(err, types.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, types.ErrEmailTaken):
		return http.StatusConflict
	case errors.Is(err, types.ErrAuth):
		return http.StatusUnauthorized
	case errors.Is(err, types.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrForbidden),
		errors.Is(err, types.ErrNoAccess),
		errors.Is(err, types.ErrNotClassOwner),
		errors.Is(err, types.ErrMentorOnly),
		errors.Is(err, types.ErrParticipantOnly):
		return http.StatusForbidden
	case errors.Is(err, types.ErrAlreadyEnrolled), errors.Is(err, types.ErrInvalidOperation):
		return http.StatusConflict
	case errors.Is(err, types.ErrEmptyMessage), errors.Is(err, types.ErrMessageTooLong):
		return http.StatusUnprocessableEntity
	case errors.Is(err, types.ErrSend), errors.Is(err, types.ErrFetch):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError sends the consistent error body. Internal failures are logged and
// their cause is not exposed.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	code := statusFor(err)
	message := err.Error()
	if code >= http.StatusInternalServerError {
		s.logger.Error("Request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("code", code),
			zap.Error(err))
		switch {
		case code == http.StatusInternalServerError:
			message = "internal error"
		case errors.Is(err, types.ErrFetch):
			// Store details stay in the log
			message = types.ErrFetch.Error()
		}
	}
	writeJSON(w, code, ErrorResponse{
		Error:   http.StatusText(code),
		Code:    code,
		Message: message,
	})
}

// validationError names the first failing field
func validationError(err error) error {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		return fmt.Errorf("%w: %s failed %s", types.ErrValidation, strings.ToLower(fe.Field()), fe.Tag())
	}
	return fmt.Errorf("%w: %v", types.ErrValidation, err)
}
