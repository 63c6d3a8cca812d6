package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/jonathan/intbuddy/internal/chat"
	"github.com/jonathan/intbuddy/internal/session"
)

// ErrValidation indicates request validation failure
type ErrValidation struct {
	Field   string
	Message string
}

func (e *ErrValidation) Error() string {
	return fmt.Sprintf("validation error: %s - %s", e.Field, e.Message)
}

// statusClientClosedRequest is reported when the caller goes away mid-request.
const statusClientClosedRequest = 499

// HTTPStatus returns the appropriate HTTP status code for an error
func HTTPStatus(err error) int {
	var validationErr *ErrValidation
	switch {
	case errors.As(err, &validationErr), errors.Is(err, chat.ErrEmptyQuestion):
		return http.StatusBadRequest
	case errors.Is(err, session.ErrSessionNotFound):
		return http.StatusNotFound
	case errors.Is(err, session.ErrNotLoaded):
		return http.StatusConflict
	case errors.Is(err, session.ErrSessionEnded):
		return http.StatusGone
	case errors.Is(err, context.Canceled):
		return statusClientClosedRequest
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
