package authkit

import (
	"time"

	"github.com/partsforcheap/authkit/session"
)

// State is the authentication lifecycle state of a Client.
type State int

const (
	// StateSignedOut means no session exists and no flow is running.
	StateSignedOut State = iota
	// StateAuthenticating means a password sign-in is in flight.
	StateAuthenticating
	// StateChallengePending means an issued challenge awaits verification.
	StateChallengePending
	// StateAuthenticated means a valid session is held.
	StateAuthenticated
	// StateRefreshFailed means the last refresh was rejected once. The
	// stale session stays readable until the next refresh settles it.
	StateRefreshFailed
)

func (s State) String() string {
	switch s {
	case StateSignedOut:
		return "signed_out"
	case StateAuthenticating:
		return "authenticating"
	case StateChallengePending:
		return "challenge_pending"
	case StateAuthenticated:
		return "authenticated"
	case StateRefreshFailed:
		return "refresh_failed"
	default:
		return "unknown"
	}
}

// ChallengeKind distinguishes the two verification flows a deployment may
// run: a password check or a one-time code.
type ChallengeKind int

const (
	// ChallengePassword is a credential check against the provider.
	ChallengePassword ChallengeKind = iota
	// ChallengeOTP is a one-time code sent to the contact.
	ChallengeOTP
)

func (k ChallengeKind) String() string {
	if k == ChallengePassword {
		return "password"
	}
	return "otp"
}

// Challenge is a pending identity-verification step. It lives only in
// memory: a process restart abandons it and the flow is re-issued.
type Challenge struct {
	ID                string
	Kind              ChallengeKind
	Target            string
	IssuedAt          time.Time
	AttemptsRemaining int
}

func (c *Challenge) clone() *Challenge {
	if c == nil {
		return nil
	}
	out := *c
	return &out
}

// Snapshot is a point-in-time, read-only view of the Client. Session and
// Challenge are copies; mutating them has no effect on the Client.
//
// Session is non-nil in StateAuthenticated and StateRefreshFailed (the
// stale record kept readable), nil otherwise. Challenge is non-nil only in
// StateChallengePending.
type Snapshot struct {
	State     State
	Session   *session.Session
	Role      Role
	Challenge *Challenge
}
