package apperr

import (
	"errors"
	"net/http"
)

// Error kinds. Every *Error wraps exactly one of these so callers can branch
// with errors.Is without knowing the concrete message.
var (
	ErrValidation     = errors.New("validation error")
	ErrAuthentication = errors.New("authentication error")
	ErrAuthorization  = errors.New("authorization error")
	ErrNotFound       = errors.New("not found")
	ErrConflict       = errors.New("conflict")
	ErrIntegrityInput = errors.New("integrity input error")
)

// Identity provider failures. They are refinements of the kinds above.
var (
	ErrInvalidOrExpiredCode = &Error{kind: ErrValidation, Message: "invalid or expired verification code"}
	ErrInvalidCredentials   = &Error{kind: ErrAuthentication, Message: "invalid credentials"}
	ErrUnverifiedAccount    = &Error{kind: ErrAuthentication, Message: "please verify your email first"}
)

// Error carries a client-safe message, its kind and an optional cause.
type Error struct {
	kind    error
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() []error {
	if e.Err != nil {
		return []error{e.kind, e.Err}
	}
	return []error{e.kind}
}

// Kind returns the sentinel kind of the error.
func (e *Error) Kind() error { return e.kind }

func newErr(kind error, msg string, cause error) *Error {
	return &Error{kind: kind, Message: msg, Err: cause}
}

func Validation(msg string) *Error    { return newErr(ErrValidation, msg, nil) }
func Authentication(msg string) *Error { return newErr(ErrAuthentication, msg, nil) }
func Authorization(msg string) *Error { return newErr(ErrAuthorization, msg, nil) }
func NotFound(msg string) *Error      { return newErr(ErrNotFound, msg, nil) }
func Conflict(msg string) *Error      { return newErr(ErrConflict, msg, nil) }

// IntegrityInput reports a verification attempted with incomplete data.
func IntegrityInput(msg string) *Error { return newErr(ErrIntegrityInput, msg, nil) }

// Wrap attaches a cause to a kind while keeping msg as the client-facing text.
func Wrap(kind error, msg string, cause error) *Error { return newErr(kind, msg, cause) }

// HTTPStatus maps an error to the response status used by the handlers.
func HTTPStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, ErrAuthentication):
		return http.StatusUnauthorized
	case errors.Is(err, ErrAuthorization):
		return http.StatusForbidden
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrConflict):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// PublicMessage returns the text safe to show to a client. Unexpected errors
// and integrity input errors collapse to fallback.
func PublicMessage(err error, fallback string) string {
	var ae *Error
	if errors.As(err, &ae) && HTTPStatus(err) < http.StatusInternalServerError {
		return ae.Message
	}
	return fallback
}
