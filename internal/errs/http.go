package errs

import (
	"fmt"
	"net/http"
)

// NewStatusError creates an HTTPError for an arbitrary status, typically a
// non-2xx response from an upstream API.
//
// The code is derived from the status text:
// http.StatusText(502) => "Bad Gateway" => "BAD_GATEWAY"
func NewStatusError(status int, message string) *HTTPError {
	code := MakeUpperCaseWithUnderscores(http.StatusText(status))
	if code == "" {
		code = fmt.Sprintf("HTTP_%d", status)
	}

	return &HTTPError{
		Code:    code,
		Message: message,
		Status:  status,
	}
}

// NewBadRequestError creates a 400 Bad Request HTTPError.
//
// This supports extra payload:
//   - code: optional custom code string (if nil, defaults to "BAD_REQUEST")
//   - errors: optional slice of field errors (validation errors)
func NewBadRequestError(message string, code *string, errors []FieldError) *HTTPError {
	formattedCode := MakeUpperCaseWithUnderscores(http.StatusText(http.StatusBadRequest))

	// Note: this assumes the caller already formatted it the way they want.
	if code != nil {
		formattedCode = *code
	}

	return &HTTPError{
		Code:    formattedCode,
		Message: message,
		Status:  http.StatusBadRequest,
		Errors:  errors,
	}
}

// NewNotFoundError creates a 404 Not Found HTTPError.
//
// Supports optional custom code override similar to NewBadRequestError.
func NewNotFoundError(message string, code *string) *HTTPError {
	formattedCode := MakeUpperCaseWithUnderscores(http.StatusText(http.StatusNotFound))

	if code != nil {
		formattedCode = *code
	}

	return &HTTPError{
		Code:    formattedCode,
		Message: message,
		Status:  http.StatusNotFound,
	}
}

// NewServiceUnavailableError creates a 503 for failures that may go away on
// their own (deadlocks, dropped connections).
func NewServiceUnavailableError(message string) *HTTPError {
	return NewStatusError(http.StatusServiceUnavailable, message)
}

// NewInternalServerError creates a 500 Internal Server Error HTTPError.
//
// The message is the generic status text, not the real internal error message.
func NewInternalServerError() *HTTPError {
	return &HTTPError{
		Code:    MakeUpperCaseWithUnderscores(http.StatusText(http.StatusInternalServerError)),
		Message: http.StatusText(http.StatusInternalServerError),
		Status:  http.StatusInternalServerError,
	}
}

// ValidationError wraps field errors into a 400 Bad Request HTTPError.
func ValidationError(message string, fieldErrors []FieldError) *HTTPError {
	return NewBadRequestError("Validation failed: "+message, nil, fieldErrors)
}
