// Package apperr defines the error kinds surfaced to API callers. Adapter
// errors are wrapped into an *Error at component boundaries so that only the
// kind and a safe message ever leave the process.
package apperr

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gofiber/fiber/v2"
)

// Kind classifies an error for callers and for HTTP status mapping.
type Kind string

const (
	KindValidation         Kind = "validation"
	KindInvalidCredentials Kind = "invalid_credentials"
	KindInvalidToken       Kind = "invalid_token"
	KindForbidden          Kind = "forbidden"
	KindConflict           Kind = "conflict"
	KindNotFound           Kind = "not_found"
	KindConfiguration      Kind = "configuration"
	KindTransactionFailed  Kind = "transaction_failed"
	KindTimeout            Kind = "timeout"
	KindInternal           Kind = "internal"
)

const (
	msgInvalidCredentials = "invalid email or password"
	msgInvalidToken       = "invalid or expired token"
	msgConfiguration      = "service temporarily unavailable"
	msgInternal           = "internal server error"
)

// Error is the classified error type. Err holds the underlying cause for
// server-side logs and is never rendered to clients.
type Error struct {
	Kind      Kind
	Message   string
	Retryable bool
	Err       error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Status returns the HTTP status associated with the error kind.
func (e *Error) Status() int {
	return statusFor(e.Kind)
}

// PublicMessage returns the message that is safe to show to end users.
// Operator-facing kinds never expose their message.
func (e *Error) PublicMessage() string {
	switch e.Kind {
	case KindConfiguration:
		return msgConfiguration
	case KindInternal:
		return msgInternal
	default:
		return e.Message
	}
}

func statusFor(kind Kind) int {
	switch kind {
	case KindValidation:
		return http.StatusBadRequest
	case KindInvalidCredentials, KindInvalidToken:
		return http.StatusUnauthorized
	case KindForbidden:
		return http.StatusForbidden
	case KindConflict:
		return http.StatusConflict
	case KindNotFound:
		return http.StatusNotFound
	case KindTransactionFailed:
		return http.StatusBadGateway
	case KindTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// Validation reports malformed or missing input.
func Validation(msg string) *Error {
	return &Error{Kind: KindValidation, Message: msg}
}

// InvalidCredentials is returned for every failed login regardless of cause.
func InvalidCredentials() *Error {
	return &Error{Kind: KindInvalidCredentials, Message: msgInvalidCredentials}
}

// InvalidToken reports a bad, expired or superseded token. The message is
// identical for every cause.
func InvalidToken(cause error) *Error {
	return &Error{Kind: KindInvalidToken, Message: msgInvalidToken, Err: cause}
}

func Forbidden(msg string) *Error {
	return &Error{Kind: KindForbidden, Message: msg}
}

func Conflict(msg string, cause error) *Error {
	return &Error{Kind: KindConflict, Message: msg, Err: cause}
}

// RetryableConflict marks a conflict caused by a race the caller may retry.
func RetryableConflict(msg string, cause error) *Error {
	return &Error{Kind: KindConflict, Message: msg, Retryable: true, Err: cause}
}

func NotFound(msg string) *Error {
	return &Error{Kind: KindNotFound, Message: msg}
}

func Configuration(cause error) *Error {
	return &Error{Kind: KindConfiguration, Message: "configuration error", Err: cause}
}

func TransactionFailed(msg string, cause error) *Error {
	return &Error{Kind: KindTransactionFailed, Message: msg, Err: cause}
}

func Timeout(msg string, cause error) *Error {
	return &Error{Kind: KindTimeout, Message: msg, Err: cause}
}

func Internal(cause error) *Error {
	return &Error{Kind: KindInternal, Message: "internal error", Err: cause}
}

// KindOf returns the kind of the first *Error in err's chain, or KindInternal.
func KindOf(err error) Kind {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return KindInternal
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	if err == nil {
		return false
	}
	return KindOf(err) == kind
}

// HTTPStatus maps any error to the status the API will respond with.
func HTTPStatus(err error) int {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Status()
	}
	var fe *fiber.Error
	if errors.As(err, &fe) {
		return fe.Code
	}
	return http.StatusInternalServerError
}
