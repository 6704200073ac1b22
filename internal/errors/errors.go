// Package errors provides the error taxonomy and retry classification for crusty.
package errors

import (
	"errors"
	"fmt"
	"net"
	"strings"
)

// Kind identifies where in the execution pipeline a failure occurred.
type Kind int

const (
	// KindInventory covers an empty or unreadable target set. Fatal to the
	// whole run; nothing is dispatched.
	KindInventory Kind = iota

	// KindResolve covers DNS resolution failures for a target host.
	KindResolve

	// KindConnect covers TCP dial and SSH handshake failures, including
	// refused, unreachable and connect timeouts.
	KindConnect

	// KindAuth covers exhaustion of all authentication candidates.
	KindAuth

	// KindTimeout covers an io idle timeout during command execution.
	KindTimeout

	// KindExecution covers transport failures while a command was running
	// that are not timeouts (dropped channel, broken session).
	KindExecution

	// KindUnknown covers anything the classifier could not place.
	KindUnknown
)

// String returns the wire/log name of the kind.
func (k Kind) String() string {
	switch k {
	case KindInventory:
		return "inventory"
	case KindResolve:
		return "resolve"
	case KindConnect:
		return "connect"
	case KindAuth:
		return "auth"
	case KindTimeout:
		return "timeout"
	case KindExecution:
		return "execution"
	default:
		return "unknown"
	}
}

// Retryable reports whether re-attempting the same operation with the same
// inputs could plausibly succeed. Auth failures are terminal: the same bad
// credentials cannot start working.
func (k Kind) Retryable() bool {
	switch k {
	case KindResolve, KindConnect, KindTimeout:
		return true
	default:
		return false
	}
}

// Error is a classified error carrying its pipeline kind. It wraps the
// underlying cause for errors.Is/As chains.
type Error struct {
	Kind  Kind
	Cause error
	Msg   string
}

func (e *Error) Error() string {
	if e.Msg != "" {
		if e.Cause != nil {
			return fmt.Sprintf("%s: %v", e.Msg, e.Cause)
		}
		return e.Msg
	}
	if e.Cause != nil {
		return e.Cause.Error()
	}
	return e.Kind.String() + " error"
}

func (e *Error) Unwrap() error { return e.Cause }

// Retryable reports whether the retry policy may re-attempt after this error.
func (e *Error) Retryable() bool { return e.Kind.Retryable() }

// New builds a classified error from a kind, message and optional cause.
func New(kind Kind, msg string, cause error) *Error {
	return &Error{Kind: kind, Cause: cause, Msg: msg}
}

// Inventoryf builds a fatal inventory error.
func Inventoryf(format string, args ...any) *Error {
	return &Error{Kind: KindInventory, Msg: fmt.Sprintf(format, args...)}
}

// KindOf extracts the kind from err, classifying opaque errors by their
// text when no *Error is found in the chain.
func KindOf(err error) Kind {
	if err == nil {
		return KindUnknown
	}
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Kind
	}
	return classify(err)
}

// IsRetryable reports whether the retry policy may re-attempt after err.
func IsRetryable(err error) bool {
	return KindOf(err).Retryable()
}

// classify places an unclassified error by inspecting net.Error and the
// error text. Transport libraries do not always surface typed errors, so
// keyword matching stays as the fallback.
func classify(err error) Kind {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return KindTimeout
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return KindResolve
	}

	s := strings.ToLower(err.Error())

	for _, kw := range []string{
		"unable to authenticate",
		"no supported methods remain",
		"permission denied (publickey",
		"authentication failed",
	} {
		if strings.Contains(s, kw) {
			return KindAuth
		}
	}

	for _, kw := range []string{
		"no such host",
		"cannot resolve",
		"name resolution",
	} {
		if strings.Contains(s, kw) {
			return KindResolve
		}
	}

	for _, kw := range []string{
		"timeout",
		"timed out",
		"deadline exceeded",
	} {
		if strings.Contains(s, kw) {
			return KindTimeout
		}
	}

	for _, kw := range []string{
		"connection refused",
		"connection reset",
		"network is unreachable",
		"no route to host",
		"host is unreachable",
		"broken pipe",
		"handshake failed",
		"unexpected eof",
	} {
		if strings.Contains(s, kw) {
			return KindConnect
		}
	}

	return KindUnknown
}
