package athm

import (
	"errors"
	"fmt"
)

// Kind discriminates the closed set of error categories the library can
// surface. Remote-origin kinds keep the original error code, HTTP status and
// raw body for diagnostics.
type Kind int

const (
	// KindAPI is the generic fallback for unclassified remote errors
	KindAPI Kind = iota
	// KindValidation covers local pre-network validation and remote 400s
	KindValidation
	// KindAuthentication covers missing, invalid or expired credentials
	KindAuthentication
	// KindTransaction covers remote transaction-state conflicts
	KindTransaction
	// KindBusiness covers remote business-rule rejections
	KindBusiness
	// KindRateLimit covers remote throttling (HTTP 429)
	KindRateLimit
	// KindNetwork covers connectivity and communication failures
	KindNetwork
	// KindInternal covers remote 5xx responses
	KindInternal
	// KindTimeout covers local polling deadlines
	KindTimeout
	// KindMalformedResponse covers remote responses missing required fields
	KindMalformedResponse
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindAuthentication:
		return "authentication"
	case KindTransaction:
		return "transaction"
	case KindBusiness:
		return "business"
	case KindRateLimit:
		return "rate_limit"
	case KindNetwork:
		return "network"
	case KindInternal:
		return "internal_server"
	case KindTimeout:
		return "timeout"
	case KindMalformedResponse:
		return "malformed_response"
	default:
		return "api"
	}
}

// Retryable reports whether an operation failing with this kind may be
// retried with backoff. Validation, authentication and transaction-state
// failures never are.
func (k Kind) Retryable() bool {
	switch k {
	case KindNetwork, KindInternal, KindRateLimit:
		return true
	default:
		return false
	}
}

// Error is the single error type surfaced by the library.
type Error struct {
	Kind    Kind
	Message string

	// Field names the violated field for local validation errors.
	Field string

	// Remote diagnostics; zero-valued for local errors.
	Code       string
	StatusCode int
	Body       []byte

	cause error
}

func (e *Error) Error() string {
	switch {
	case e.Field != "":
		return fmt.Sprintf("athm: %s error: %s: %s", e.Kind, e.Field, e.Message)
	case e.Code != "":
		return fmt.Sprintf("athm: %s error [%s]: %s", e.Kind, e.Code, e.Message)
	default:
		return fmt.Sprintf("athm: %s error: %s", e.Kind, e.Message)
	}
}

func (e *Error) Unwrap() error {
	return e.cause
}

// IsKind reports whether err is an *Error of the given kind.
func IsKind(err error, kind Kind) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == kind
}

// validationErr wraps a validator failure with the offending field name.
func validationErr(field string, err error) *Error {
	return &Error{
		Kind:    KindValidation,
		Field:   field,
		Message: err.Error(),
		cause:   err,
	}
}

func authErr(msg string) *Error {
	return &Error{Kind: KindAuthentication, Message: msg}
}

func malformedErr(msg string, body []byte) *Error {
	return &Error{Kind: KindMalformedResponse, Message: msg, Body: body}
}

// storeErr wraps a token-store failure. Infrastructure trouble, so it shares
// the internal kind; the cause stays reachable through Unwrap.
func storeErr(msg string, err error) *Error {
	return &Error{Kind: KindInternal, Message: msg + ": " + err.Error(), cause: err}
}
