// Package failure defines the error taxonomy shared by the crawl pipeline.
package failure

import (
	"errors"
	"fmt"
	"net/http"
)

// Code classifies a pipeline failure.
type Code string

const (
	ProofAbsent             Code = "ProofAbsent"
	ProofMalformed          Code = "ProofMalformed"
	ProofExpired            Code = "ProofExpired"
	ProofAlreadyUsed        Code = "ProofAlreadyUsed"
	ProofAmountInsufficient Code = "ProofAmountInsufficient"
	ProofRecipientMismatch  Code = "ProofRecipientMismatch"
	ProofRejected           Code = "ProofRejected"
	VerifierUnreachable     Code = "VerifierUnreachable"
	LicenseInactive         Code = "LicenseInactive"
	UpstreamUnreachable     Code = "UpstreamUnreachable"
	UpstreamError           Code = "UpstreamError"
	InternalError           Code = "InternalError"
)

// PaymentRelated reports whether the failure is answered with a fresh challenge.
func (c Code) PaymentRelated() bool {
	switch c {
	case ProofAbsent, ProofMalformed, ProofExpired, ProofAlreadyUsed,
		ProofAmountInsufficient, ProofRecipientMismatch, ProofRejected,
		VerifierUnreachable:
		return true
	}
	return false
}

// Retryable reports whether paying again and retrying can succeed.
func (c Code) Retryable() bool {
	return c.PaymentRelated()
}

// Status maps the code to the HTTP status surfaced to the caller.
func (c Code) Status() int {
	switch {
	case c.PaymentRelated():
		return http.StatusPaymentRequired
	case c == LicenseInactive:
		return http.StatusForbidden
	case c == UpstreamUnreachable, c == UpstreamError:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// Error is a classified pipeline error.
type Error struct {
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	switch {
	case e.Err != nil && e.Message != "":
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Code, e.Err)
	case e.Message != "":
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
	return string(e.Code)
}

func (e *Error) Unwrap() error { return e.Err }

// New returns a classified error with a formatted message.
func New(code Code, format string, args ...any) error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap classifies err under code. A nil err yields nil.
func Wrap(code Code, err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return &Error{Code: code, Message: fmt.Sprintf(format, args...), Err: err}
}

// CodeOf extracts the outermost classification from err.
func CodeOf(err error) (Code, bool) {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Code, true
	}
	return "", false
}

// Is reports whether err carries the given code.
func Is(err error, code Code) bool {
	c, ok := CodeOf(err)
	return ok && c == code
}
