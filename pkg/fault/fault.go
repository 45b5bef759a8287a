package fault

import (
	"errors"
	"fmt"
	"net/http"
)

// Code classifies a failure so callers can branch on outcome without string
// matching. Every public operation in the service returns either nil or an
// error whose chain contains exactly one Fault.
type Code string

const (
	// CodeMalformedPayload marks an entry-point payload that does not parse.
	CodeMalformedPayload Code = "malformed_payload"
	// CodeNotFound marks an identifier that resolves to no record.
	CodeNotFound Code = "not_found"
	// CodeUnauthorized marks an operator action attempted by a non-operator.
	CodeUnauthorized Code = "unauthorized"
	// CodeMembershipDenied marks a gate verdict of Deny. It is an expected
	// outcome that drives the retry prompt, not a failure.
	CodeMembershipDenied Code = "membership_denied"
	// CodeUnavailable marks a collaborator timeout or fault. Safe to retry.
	CodeUnavailable Code = "unavailable"
	// CodeDuplicate marks an insert rejected by a uniqueness guard.
	CodeDuplicate Code = "duplicate"
	// CodeInternal is the fallback for unclassified failures.
	CodeInternal Code = "internal"
)

// Fault is a typed error with a stable code and an optional wrapped cause.
type Fault struct {
	Code    Code
	Message string
	cause   error
}

func (f *Fault) Error() string {
	if f.cause != nil {
		return fmt.Sprintf("%s: %s: %v", f.Code, f.Message, f.cause)
	}
	return fmt.Sprintf("%s: %s", f.Code, f.Message)
}

func (f *Fault) Unwrap() error { return f.cause }

// Is reports code equality so sentinel faults work with errors.Is.
func (f *Fault) Is(target error) bool {
	var other *Fault
	if !errors.As(target, &other) {
		return false
	}
	return f.Code == other.Code
}

// New builds a Fault with the given code and message.
func New(code Code, message string) *Fault {
	return &Fault{Code: code, Message: message}
}

// Wrap builds a Fault that carries an underlying cause.
func Wrap(code Code, message string, cause error) *Fault {
	return &Fault{Code: code, Message: message, cause: cause}
}

// CodeOf extracts the code from an error chain, CodeInternal if none.
func CodeOf(err error) Code {
	var f *Fault
	if errors.As(err, &f) {
		return f.Code
	}
	return CodeInternal
}

// ToHTTPStatus maps a code to the status used by the webhook surface.
func ToHTTPStatus(code Code) int {
	switch code {
	case CodeMalformedPayload:
		return http.StatusBadRequest
	case CodeNotFound:
		return http.StatusNotFound
	case CodeUnauthorized:
		return http.StatusUnauthorized
	case CodeMembershipDenied:
		return http.StatusForbidden
	case CodeUnavailable:
		return http.StatusServiceUnavailable
	case CodeDuplicate:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
