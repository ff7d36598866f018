package backend

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// APIError is returned when the backend rejects a call outright or keeps
// failing after the retry budget is spent. It carries enough context for the
// caller's error report: which endpoint, which model, and the last cause.
type APIError struct {
	Endpoint   string
	Model      string
	StatusCode int // zero when the failure was transport-level
	Attempts   int
	Err        error
}

func (e *APIError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("backend %s (model %q, status %d, %d attempt(s)): %v",
			e.Endpoint, e.Model, e.StatusCode, e.Attempts, e.Err)
	}
	return fmt.Sprintf("backend %s (model %q, %d attempt(s)): %v",
		e.Endpoint, e.Model, e.Attempts, e.Err)
}

func (e *APIError) Unwrap() error { return e.Err }

// ProtocolError indicates the backend answered with a structurally
// incompatible response. It is never retried: the backend speaks the wrong
// protocol, it is not transiently failing.
type ProtocolError struct {
	Endpoint string
	Reason   string
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("protocol error from %s: %s", e.Endpoint, e.Reason)
}

// transientStatus reports whether an HTTP status warrants a retry on the
// scoring path. Server-side failures do; every client error is permanent.
func transientStatus(status int) bool {
	return status >= 500
}

// transientErr reports whether a transport-level failure warrants a retry:
// timeouts and connection-level errors do, everything else aborts.
func transientErr(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	var opErr *net.OpError
	return errors.As(err, &opErr)
}
