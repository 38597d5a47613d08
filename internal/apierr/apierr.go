package apierr

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// Kind classifies a failed remote call. Callers branch exhaustively on it.
type Kind int

const (
	KindUnknown Kind = iota
	KindNetwork
	KindTimeout
	KindServer
	KindParse
)

func (k Kind) String() string {
	switch k {
	case KindNetwork:
		return "network"
	case KindTimeout:
		return "timeout"
	case KindServer:
		return "server"
	case KindParse:
		return "parse"
	default:
		return "unknown"
	}
}

// Error is the typed failure value returned across the fetcher and
// orchestrator boundaries. Code is set only for KindServer.
type Error struct {
	Kind  Kind
	Code  int
	Msg   string
	cause error
}

func (e *Error) Error() string {
	switch e.Kind {
	case KindServer:
		return fmt.Sprintf("server error (%d): %s", e.Code, e.Msg)
	default:
		return fmt.Sprintf("%s error: %s", e.Kind, e.Msg)
	}
}

func (e *Error) Unwrap() error {
	return e.cause
}

// New constructs an error of the given kind.
func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Msg: msg}
}

// Server constructs a server error carrying the HTTP status code.
func Server(code int, msg string) *Error {
	return &Error{Kind: KindServer, Code: code, Msg: msg}
}

// Parse wraps a body or feed decoding failure.
func Parse(err error) *Error {
	return &Error{Kind: KindParse, Msg: err.Error(), cause: err}
}

// Classify maps a transport-level error to the taxonomy. Timeouts are
// detected through net.Error and context deadlines; everything else on the
// wire is a network failure.
func Classify(err error) *Error {
	if err == nil {
		return nil
	}
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &Error{Kind: KindTimeout, Msg: err.Error(), cause: err}
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return &Error{Kind: KindTimeout, Msg: err.Error(), cause: err}
		}
		return &Error{Kind: KindNetwork, Msg: err.Error(), cause: err}
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return &Error{Kind: KindNetwork, Msg: err.Error(), cause: err}
	}
	return &Error{Kind: KindUnknown, Msg: err.Error(), cause: err}
}
