// internal/simclient/errors.go
package simclient

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrMalformedResponse is returned when a request succeeded but its body could
// not be decoded or lacked a required field.
var ErrMalformedResponse = errors.New("malformed response from simulation service")

// maxErrorBody caps how much of a response body is kept on an error value.
const maxErrorBody = 4 << 10

// ValidationError reports caller input rejected before any request was sent.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// TransportError reports a request that produced no response: dial, TLS,
// timeout or cancellation failures.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s: transport failure: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// UnexpectedStatusError reports a response whose status code is outside the
// operation's success set.
type UnexpectedStatusError struct {
	Op         string
	StatusCode int
	Body       string
}

func (e *UnexpectedStatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s: unexpected status %d %s", e.Op, e.StatusCode, http.StatusText(e.StatusCode))
	}
	return fmt.Sprintf("%s: unexpected status %d %s: %s", e.Op, e.StatusCode, http.StatusText(e.StatusCode), e.Body)
}

// ProtocolErrorKind names the failures the action endpoint reports explicitly.
type ProtocolErrorKind int

const (
	// InvalidAction is HTTP 400: the action or simulation id pairing was rejected.
	InvalidAction ProtocolErrorKind = iota + 1
	// UnsupportedMediaType is HTTP 415: the JSON body was not accepted.
	UnsupportedMediaType
)

func (k ProtocolErrorKind) String() string {
	switch k {
	case InvalidAction:
		return "invalid action"
	case UnsupportedMediaType:
		return "unsupported media type"
	default:
		return "unknown protocol error"
	}
}

// ProtocolError is a named failure status on the action endpoint.
type ProtocolError struct {
	Kind       ProtocolErrorKind
	StatusCode int
	Body       string
}

func (e *ProtocolError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("agent action rejected (%s, status %d)", e.Kind, e.StatusCode)
	}
	return fmt.Sprintf("agent action rejected (%s, status %d): %s", e.Kind, e.StatusCode, e.Body)
}

// IsValidation reports whether err, or anything it wraps, is a ValidationError.
func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}

// StatusCode extracts the HTTP status carried by err, or 0 when there is none.
func StatusCode(err error) int {
	var statusErr *UnexpectedStatusError
	if errors.As(err, &statusErr) {
		return statusErr.StatusCode
	}
	var protoErr *ProtocolError
	if errors.As(err, &protoErr) {
		return protoErr.StatusCode
	}
	return 0
}

func truncateBody(body []byte) string {
	if len(body) > maxErrorBody {
		return string(body[:maxErrorBody]) + "...(truncated)"
	}
	return string(body)
}
