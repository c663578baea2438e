package authkit

import (
	"errors"
	"strings"
)

var (
	// ErrGatewayRequired is returned by Builder.Build when no AuthGateway
	// was supplied.
	ErrGatewayRequired = errors.New("auth gateway is required")
	// ErrClientClosed is returned once Close has been called.
	ErrClientClosed = errors.New("client closed")

	// ErrInvalidCredentials is returned when the identity provider rejects
	// a password sign-in.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrAlreadyInProgress rejects a user-initiated transition while
	// another transition is in flight.
	ErrAlreadyInProgress = errors.New("another transition is in progress")
	// ErrAlreadySignedIn rejects sign-in attempts outside the signed-out
	// state.
	ErrAlreadySignedIn = errors.New("already signed in")
	// ErrNotSignedIn is returned by operations that require an
	// authenticated session.
	ErrNotSignedIn = errors.New("not signed in")
	// ErrNoChallenge is returned by VerifyOTP when no challenge is pending.
	ErrNoChallenge = errors.New("no challenge pending")
	// ErrSuperseded is returned when a remote call completed but its result
	// was discarded because the user signed out while it was in flight.
	ErrSuperseded = errors.New("result discarded: signed out during call")

	// ErrMalformedCode is returned for a verification code failing the
	// lexical check. No remote call is made and no attempt is consumed.
	ErrMalformedCode = errors.New("malformed verification code")
	// ErrInvalidCode is returned when the provider rejects a code.
	ErrInvalidCode = errors.New("invalid verification code")
	// ErrCodeExpired is returned when the provider reports the code expired.
	ErrCodeExpired = errors.New("verification code expired")
	// ErrChallengeExhausted is returned when the attempt budget reaches
	// zero; the state machine is signed out at that point.
	ErrChallengeExhausted = errors.New("verification attempts exhausted")
	// ErrInvalidContact is returned for a contact the provider (or local
	// validation) cannot deliver a code to.
	ErrInvalidContact = errors.New("invalid contact")
	// ErrRateLimited is returned when the provider throttles code sends or
	// verifies; the host should show a cooldown, not a generic failure.
	ErrRateLimited = errors.New("rate limited")

	// ErrRefreshRejected is returned when the provider refuses the refresh
	// token. One rejection degrades the session; two force sign-out.
	ErrRefreshRejected = errors.New("refresh token rejected")
	// ErrSessionRevoked marks an irrecoverable session: the local record
	// has been cleared and the user must sign in again.
	ErrSessionRevoked = errors.New("session revoked")

	// ErrGatewayUnavailable wraps transport-level failures talking to the
	// identity provider.
	ErrGatewayUnavailable = errors.New("identity provider unavailable")
	// ErrProfileUnavailable wraps transport-level failures talking to the
	// profile backend.
	ErrProfileUnavailable = errors.New("profile backend unavailable")
	// ErrProfileNotFound is returned by role lookups for users with no
	// profile row yet. Callers treat it as the member role, never as fatal.
	ErrProfileNotFound = errors.New("profile not found")
)

// FieldError reports one validation failure tied to a named input field.
type FieldError struct {
	Field  string
	Reason string
}

func (e FieldError) Error() string { return e.Field + ": " + e.Reason }

// FieldErrors aggregates per-field validation failures. It is returned
// before any remote call is made; a validation failure never consumes a
// remote attempt budget.
type FieldErrors []FieldError

func (e FieldErrors) Error() string {
	parts := make([]string, len(e))
	for i, fe := range e {
		parts[i] = fe.Error()
	}
	return strings.Join(parts, "; ")
}

// ByField returns failure reasons keyed by field name.
func (e FieldErrors) ByField() map[string]string {
	out := make(map[string]string, len(e))
	for _, fe := range e {
		if _, dup := out[fe.Field]; !dup {
			out[fe.Field] = fe.Reason
		}
	}
	return out
}

// ErrorClass sorts failures into what the host should tell the user:
// fix your input, try again, wait out a cooldown, or sign in again.
type ErrorClass int

const (
	// ClassUnknown is the zero class for errors outside the taxonomy.
	ClassUnknown ErrorClass = iota
	// ClassInput marks local validation failures. No remote call was made.
	ClassInput
	// ClassCredential marks rejected passwords and codes.
	ClassCredential
	// ClassRateLimited marks provider throttling.
	ClassRateLimited
	// ClassTransient marks retryable backend failures.
	ClassTransient
	// ClassFatalSession marks irrecoverable session loss.
	ClassFatalSession
)

func (c ErrorClass) String() string {
	switch c {
	case ClassInput:
		return "input"
	case ClassCredential:
		return "credential"
	case ClassRateLimited:
		return "rate_limited"
	case ClassTransient:
		return "transient"
	case ClassFatalSession:
		return "fatal_session"
	default:
		return "unknown"
	}
}

// Class maps an error returned by this package to its taxonomy class.
func Class(err error) ErrorClass {
	var fields FieldErrors
	var field FieldError
	switch {
	case err == nil:
		return ClassUnknown
	case errors.As(err, &fields), errors.As(err, &field), errors.Is(err, ErrMalformedCode):
		return ClassInput
	case errors.Is(err, ErrInvalidCredentials),
		errors.Is(err, ErrInvalidCode),
		errors.Is(err, ErrCodeExpired),
		errors.Is(err, ErrChallengeExhausted),
		errors.Is(err, ErrInvalidContact):
		return ClassCredential
	case errors.Is(err, ErrRateLimited):
		return ClassRateLimited
	case errors.Is(err, ErrSessionRevoked):
		return ClassFatalSession
	case errors.Is(err, ErrGatewayUnavailable),
		errors.Is(err, ErrProfileUnavailable),
		errors.Is(err, ErrRefreshRejected):
		return ClassTransient
	default:
		return ClassUnknown
	}
}
