package gateway

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// ErrorKind classifies how a gateway call failed. Callers branch on the kind,
// not on string matching.
type ErrorKind string

const (
	// KindRejected means the gateway answered and declined the request.
	KindRejected ErrorKind = "rejected"
	// KindTimeout means the bounded call deadline elapsed.
	KindTimeout ErrorKind = "timeout"
	// KindNetwork means the gateway could not be reached at all.
	KindNetwork ErrorKind = "network"
	// KindDecode means the gateway answered with an unreadable body.
	KindDecode ErrorKind = "decode"
)

// Error is a classified gateway call failure.
type Error struct {
	Op     string
	Kind   ErrorKind
	Status int
	Body   string
	Err    error
}

func (e *Error) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("gateway %s: %s (status %d): %s", e.Op, e.Kind, e.Status, e.Body)
	}
	if e.Err != nil {
		return fmt.Sprintf("gateway %s: %s: %v", e.Op, e.Kind, e.Err)
	}
	return fmt.Sprintf("gateway %s: %s", e.Op, e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf extracts the failure kind, or empty string for non-gateway errors.
func KindOf(err error) ErrorKind {
	var ge *Error
	if errors.As(err, &ge) {
		return ge.Kind
	}
	return ""
}

// IsRejected reports whether the gateway declined the request.
func IsRejected(err error) bool { return KindOf(err) == KindRejected }

// IsUnreachable reports whether the failure was a timeout or network fault.
func IsUnreachable(err error) bool {
	k := KindOf(err)
	return k == KindTimeout || k == KindNetwork
}

// classify maps a transport error to timeout or network.
func classify(op string, err error) *Error {
	kind := KindNetwork
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		kind = KindTimeout
	}
	return &Error{Op: op, Kind: kind, Err: err}
}
