// Package errs defines the failure taxonomy shared by the cipher toolkit,
// the transport layer and the provider clients.
package errs

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies a failure so callers can decide whether it is fatal for a
// whole request or only for a single embed.
type Kind int

const (
	KindUnknown Kind = iota
	// KindTransport covers network errors, timeouts and non-2xx responses.
	KindTransport
	// KindDecode covers cipher, regex and crypto mismatches.
	KindDecode
	// KindShape means an expected field was missing from an upstream payload.
	KindShape
	// KindAuth means a refresh failed or credentials are missing.
	KindAuth
	// KindNotFound means an empty search or details lookup.
	KindNotFound
)

func (k Kind) String() string {
	switch k {
	case KindTransport:
		return "TransportFailure"
	case KindDecode:
		return "DecodeFailure"
	case KindShape:
		return "UpstreamShapeChanged"
	case KindAuth:
		return "AuthFailure"
	case KindNotFound:
		return "NotFound"
	default:
		return "Unknown"
	}
}

// Sentinel values usable with errors.Is.
var (
	ErrTransportFailure     = &Error{Kind: KindTransport}
	ErrDecodeFailure        = &Error{Kind: KindDecode}
	ErrUpstreamShapeChanged = &Error{Kind: KindShape}
	ErrAuthFailure          = &Error{Kind: KindAuth}
	ErrNotFound             = &Error{Kind: KindNotFound}
)

// Error is a classified failure. Op names the operation that failed, e.g.
// "allanime.episode" or "cipher.aes".
type Error struct {
	Kind       Kind
	Op         string
	StatusCode int
	Err        error
}

func (e *Error) Error() string {
	msg := e.Kind.String()
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.StatusCode != 0 {
		msg = fmt.Sprintf("%s (status %d)", msg, e.StatusCode)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error of the same Kind, so the package sentinels work with
// errors.Is regardless of Op or cause.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

func newf(kind Kind, op string, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Err: fmt.Errorf(format, args...)}
}

// Transport wraps err as a transport failure.
func Transport(op string, err error) *Error {
	return &Error{Kind: KindTransport, Op: op, Err: err}
}

// Status reports a non-2xx HTTP response.
func Status(op string, code int) *Error {
	return &Error{Kind: KindTransport, Op: op, StatusCode: code, Err: errors.New(http.StatusText(code))}
}

// Decode reports a cipher/regex/crypto mismatch.
func Decode(op string, format string, args ...any) *Error {
	return newf(KindDecode, op, format, args...)
}

// Shape reports a missing or malformed upstream field.
func Shape(op string, format string, args ...any) *Error {
	return newf(KindShape, op, format, args...)
}

// Auth reports an authentication failure.
func Auth(op string, format string, args ...any) *Error {
	return newf(KindAuth, op, format, args...)
}

// NotFound reports an empty lookup.
func NotFound(op string, format string, args ...any) *Error {
	return newf(KindNotFound, op, format, args...)
}

// KindOf returns the Kind of the first *Error in err's chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// IsUnauthorized reports whether err is an HTTP 401 transport failure.
func IsUnauthorized(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.StatusCode == http.StatusUnauthorized
	}
	return false
}

// IsEmbedScoped reports whether err should be swallowed at the embed boundary
// instead of failing the whole stream resolution.
func IsEmbedScoped(err error) bool {
	switch KindOf(err) {
	case KindDecode, KindShape, KindTransport:
		return true
	}
	return false
}
