// Package gwerr defines the gateway's typed failure taxonomy (spec §7) and
// its mapping onto JSON-RPC error codes (spec §6). It is grounded on the
// teacher's practice of pairing a small closed error-code enum
// (internal/jsonrpc.ErrorCode) with sentinel/typed errors checked via
// errors.Is/errors.As, rather than ad hoc string comparisons.
package gwerr

import (
	"errors"
	"fmt"

	"github.com/odoomcp/gateway/internal/jsonrpc"
)

// Kind is a coarse failure category, independent of any host language's
// exception hierarchy.
type Kind string

const (
	KindConfig       Kind = "config"
	KindNetwork      Kind = "network"
	KindProtocol     Kind = "protocol"
	KindAuth         Kind = "auth"
	KindSession      Kind = "session"
	KindPoolTimeout  Kind = "pool_timeout"
	KindPoolConnFail Kind = "pool_connection_failed"
	KindRateLimit    Kind = "rate_limit"
	KindValidation   Kind = "validation"
	KindNotFound     Kind = "not_found"
	KindMethodNotFound Kind = "method_not_found"
	KindTool         Kind = "tool"
	KindResource     Kind = "resource"
	KindInternal     Kind = "internal"
)

// ValidationSubkind refines KindValidation per spec §7.
type ValidationSubkind string

const (
	ValidationDomain      ValidationSubkind = "domain"
	ValidationField       ValidationSubkind = "field"
	ValidationSchema      ValidationSubkind = "schema"
	ValidationAggregation ValidationSubkind = "aggregation"
	ValidationGeneric     ValidationSubkind = "generic"
)

// NotFoundSubkind refines KindNotFound per spec §7.
type NotFoundSubkind string

const (
	NotFoundRecord NotFoundSubkind = "record"
	NotFoundMethod NotFoundSubkind = "method"
)

// Error is the gateway's structured error type. It carries enough
// information for the dispatcher to build a spec §6 error envelope without
// leaking internal detail into Message; Details carries a sanitized
// original-error string when useful for callers.
type Error struct {
	Kind    Kind
	Sub     string
	Message string
	Details any
	Cause   error

	// RetryAfterSeconds is set on KindRateLimit errors per spec §7.
	RetryAfterSeconds float64
}

func (e *Error) Error() string {
	if e.Sub != "" {
		return fmt.Sprintf("%s(%s): %s", e.Kind, e.Sub, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// Code maps the Kind/Sub pair onto the JSON-RPC error code table (spec §6).
func (e *Error) Code() jsonrpc.ErrorCode {
	switch e.Kind {
	case KindConfig:
		return jsonrpc.ErrorCodeConfiguration
	case KindNetwork:
		return jsonrpc.ErrorCodeNetwork
	case KindProtocol:
		return jsonrpc.ErrorCodeProtocol
	case KindAuth:
		return jsonrpc.ErrorCodeAuth
	case KindSession:
		return jsonrpc.ErrorCodeSession
	case KindPoolTimeout:
		return jsonrpc.ErrorCodeConnection
	case KindPoolConnFail:
		return jsonrpc.ErrorCodeConnection
	case KindRateLimit:
		return jsonrpc.ErrorCodeRateLimit
	case KindValidation:
		return jsonrpc.ErrorCodeValidation
	case KindNotFound:
		if e.Sub == string(NotFoundMethod) {
			return jsonrpc.ErrorCodeMethodNotFoundOnModel
		}
		return jsonrpc.ErrorCodeRecordNotFound
	case KindMethodNotFound:
		return jsonrpc.ErrorCodeOdooMethodNotFound
	case KindTool:
		return jsonrpc.ErrorCodeTool
	case KindResource:
		return jsonrpc.ErrorCodeResource
	default:
		return jsonrpc.ErrorCodeInternalError
	}
}

// New builds a bare Error of the given kind.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap builds an Error of the given kind wrapping cause, keeping cause's
// text out of Message (it goes to Details instead, per spec §7's "never
// leak internal stack traces into message" rule).
func Wrap(kind Kind, cause error, message string) *Error {
	e := &Error{Kind: kind, Message: message, Cause: cause}
	if cause != nil {
		e.Details = cause.Error()
	}
	return e
}

// WithSub attaches a subkind (e.g. a ValidationSubkind or NotFoundSubkind).
func (e *Error) WithSub(sub fmt.Stringer) *Error {
	e.Sub = sub.String()
	return e
}

func (k ValidationSubkind) String() string { return string(k) }
func (k NotFoundSubkind) String() string   { return string(k) }

// Validation builds a KindValidation error with the given subkind.
func Validation(sub ValidationSubkind, message string) *Error {
	return &Error{Kind: KindValidation, Sub: string(sub), Message: message}
}

// NotFound builds a KindNotFound error with the given subkind.
func NotFound(sub NotFoundSubkind, message string) *Error {
	return &Error{Kind: KindNotFound, Sub: string(sub), Message: message}
}

// RateLimit builds a KindRateLimit error carrying the remaining wait.
func RateLimit(retryAfter float64) *Error {
	return &Error{
		Kind:              KindRateLimit,
		Message:           "rate limit exceeded",
		RetryAfterSeconds: retryAfter,
		Details:           map[string]any{"retry_after_seconds": retryAfter},
	}
}

// As is a small helper mirroring errors.As for *Error, used pervasively by
// the dispatcher when converting an arbitrary error into a JSON-RPC error
// envelope.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// ToJSONRPCError converts any error into a JSON-RPC Error object. Unknown
// errors become KindInternal without leaking their text as the message.
func ToJSONRPCError(err error) *jsonrpc.Error {
	if err == nil {
		return nil
	}
	ge, ok := As(err)
	if !ok {
		ge = Wrap(KindInternal, err, "internal error")
	}
	data := &jsonrpc.ErrorData{Kind: string(ge.Kind), Details: ge.Details}
	if ge.Sub != "" {
		if data.Details == nil {
			data.Details = map[string]any{"subkind": ge.Sub}
		} else {
			data.Details = map[string]any{"subkind": ge.Sub, "details": data.Details}
		}
	}
	return &jsonrpc.Error{Code: ge.Code(), Message: ge.Message, Data: data}
}
