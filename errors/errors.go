package errors

import (
	"context"
	stderrors "errors"
	"fmt"
	"net/http"
)

// Kind classifies an AppError. Every kind is terminal for the call that
// produced it.
type Kind int

const (
	KindInternal Kind = iota
	KindInvalidInput
	KindUpstreamUnavailable
	KindNoCaptionsAvailable
	KindLanguageNotAvailable
	KindParse
)

func (k Kind) String() string {
	switch k {
	case KindInvalidInput:
		return "invalid_input"
	case KindUpstreamUnavailable:
		return "upstream_unavailable"
	case KindNoCaptionsAvailable:
		return "no_captions_available"
	case KindLanguageNotAvailable:
		return "language_not_available"
	case KindParse:
		return "parse_error"
	default:
		return "internal"
	}
}

type AppError struct {
	Kind    Kind   `json:"-"`
	Code    int    `json:"-"`
	Message string `json:"error"`
	Op      string `json:"-"`
	Err     error  `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// E builds an AppError of the given kind. The HTTP code is derived from the kind.
func E(kind Kind, op string, err error, message string) *AppError {
	return &AppError{
		Kind:    kind,
		Code:    codeFor(kind),
		Message: message,
		Op:      op,
		Err:     err,
	}
}

func InvalidInput(op string, err error, message string) *AppError {
	return E(KindInvalidInput, op, err, message)
}

func Internal(op string, err error, message string) *AppError {
	return E(KindInternal, op, err, message)
}

func UpstreamUnavailable(op string, err error, message string) *AppError {
	return E(KindUpstreamUnavailable, op, err, message)
}

func NoCaptionsAvailable(op string, message string) *AppError {
	return E(KindNoCaptionsAvailable, op, nil, message)
}

func LanguageNotAvailable(op string, message string) *AppError {
	return E(KindLanguageNotAvailable, op, nil, message)
}

func Parse(op string, err error, message string) *AppError {
	return E(KindParse, op, err, message)
}

// KindOf reports the kind of the outermost AppError in err's chain, or
// KindInternal when there is none.
func KindOf(err error) Kind {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr.Kind
	}
	return KindInternal
}

// Is reports whether err carries an AppError of the given kind.
func Is(err error, kind Kind) bool {
	var appErr *AppError
	return stderrors.As(err, &appErr) && appErr.Kind == kind
}

// HTTPStatus maps err to the status code the HTTP shell answers with.
func HTTPStatus(err error) int {
	if err == nil {
		return http.StatusOK
	}
	if stderrors.Is(err, context.DeadlineExceeded) {
		return http.StatusGatewayTimeout
	}
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr.Code
	}
	return http.StatusInternalServerError
}

// Message returns the user-facing message of err.
func Message(err error) string {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr.Message
	}
	return "internal server error"
}

func codeFor(kind Kind) int {
	switch kind {
	case KindInvalidInput:
		return http.StatusBadRequest
	case KindNoCaptionsAvailable, KindLanguageNotAvailable:
		return http.StatusNotFound
	case KindUpstreamUnavailable, KindParse:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
