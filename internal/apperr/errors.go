// Package apperr implements the error taxonomy shared by the CAPF and
// TVS daemons: ConfigError, TLSError, ProtocolError, AuthError,
// StoreError and IOError. Each wraps an underlying cause and carries
// enough context to log usefully; Classify maps any error back to its
// Kind so the session worker root can decide whether a best-effort
// END_SESSION is worth attempting.
package apperr

import (
	"errors"
	"fmt"
)

// Kind identifies which branch of the taxonomy an error belongs to.
type Kind int

const (
	KindUnknown Kind = iota
	KindConfig
	KindTLS
	KindProtocol
	KindAuth
	KindStore
	KindIO
)

func (k Kind) String() string {
	switch k {
	case KindConfig:
		return "config"
	case KindTLS:
		return "tls"
	case KindProtocol:
		return "protocol"
	case KindAuth:
		return "auth"
	case KindStore:
		return "store"
	case KindIO:
		return "io"
	default:
		return "unknown"
	}
}

// ConfigError wraps a missing/invalid configuration option or
// unreadable key material. Fatal at startup.
type ConfigError struct {
	Option string
	Cause  error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config error: %s: %v", e.Option, e.Cause)
}

func (e *ConfigError) Unwrap() error { return e.Cause }

// NewConfigError wraps cause as a ConfigError naming option.
func NewConfigError(option string, cause error) error {
	return &ConfigError{Option: option, Cause: cause}
}

// TLSError wraps a handshake or certificate-loading failure. Fatal at
// startup; if produced mid-session it terminates just that session.
type TLSError struct {
	Cause error
}

func (e *TLSError) Error() string { return fmt.Sprintf("tls error: %v", e.Cause) }
func (e *TLSError) Unwrap() error  { return e.Cause }

func NewTLSError(cause error) error { return &TLSError{Cause: cause} }

// ProtocolError wraps an unknown tag, bad framing, unexpected command,
// version mismatch, session-id mismatch or missing required element.
// Terminates the session; a best-effort END_SESSION{INVALID_ELEMENT}
// is attempted by the caller.
type ProtocolError struct {
	Reason string
	Cause  error
}

func (e *ProtocolError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("protocol error: %s: %v", e.Reason, e.Cause)
	}

	return "protocol error: " + e.Reason
}

func (e *ProtocolError) Unwrap() error { return e.Cause }

func NewProtocolError(reason string) error {
	return &ProtocolError{Reason: reason}
}

func WrapProtocolError(reason string, cause error) error {
	return &ProtocolError{Reason: reason, Cause: cause}
}

// AuthError wraps an unknown device, bad password or bad signature.
// Terminates the session with the appropriate REASON.
type AuthError struct {
	Reason string
	Cause  error
}

func (e *AuthError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("auth error: %s: %v", e.Reason, e.Cause)
	}

	return "auth error: " + e.Reason
}

func (e *AuthError) Unwrap() error { return e.Cause }

func NewAuthError(reason string) error {
	return &AuthError{Reason: reason}
}

func WrapAuthError(reason string, cause error) error {
	return &AuthError{Reason: reason, Cause: cause}
}

// StoreError wraps a failed store query. Logged; terminates the
// session.
type StoreError struct {
	Op    string
	Cause error
}

func (e *StoreError) Error() string { return fmt.Sprintf("store error: %s: %v", e.Op, e.Cause) }
func (e *StoreError) Unwrap() error  { return e.Cause }

func NewStoreError(op string, cause error) error {
	return &StoreError{Op: op, Cause: cause}
}

// IOError wraps a closed socket or a read/write timeout. Terminates
// the session silently (no best-effort END_SESSION is attempted,
// since the transport is presumed gone).
type IOError struct {
	Cause error
}

func (e *IOError) Error() string { return fmt.Sprintf("io error: %v", e.Cause) }
func (e *IOError) Unwrap() error  { return e.Cause }

func NewIOError(cause error) error { return &IOError{Cause: cause} }

// Classify reports which Kind err belongs to by walking its Unwrap
// chain, defaulting to KindUnknown for anything outside the taxonomy.
func Classify(err error) Kind {
	if err == nil {
		return KindUnknown
	}

	var (
		cfgErr   *ConfigError
		tlsErr   *TLSError
		protoErr *ProtocolError
		authErr  *AuthError
		storeErr *StoreError
		ioErr    *IOError
	)

	switch {
	case errors.As(err, &cfgErr):
		return KindConfig
	case errors.As(err, &tlsErr):
		return KindTLS
	case errors.As(err, &protoErr):
		return KindProtocol
	case errors.As(err, &authErr):
		return KindAuth
	case errors.As(err, &storeErr):
		return KindStore
	case errors.As(err, &ioErr):
		return KindIO
	default:
		return KindUnknown
	}
}

// IsAppErr reports whether err is (or wraps) one of the taxonomy
// types declared in this package.
func IsAppErr(err error) bool {
	return Classify(err) != KindUnknown
}

// ContainsError reports whether target is present (via errors.Is) in
// errs.
func ContainsError(errs []error, target error) bool {
	if target == nil {
		return false
	}

	for _, e := range errs {
		if errors.Is(e, target) {
			return true
		}
	}

	return false
}
