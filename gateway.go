package authkit

import (
	"context"

	"github.com/partsforcheap/authkit/session"
)

// AuthGateway is the external identity provider boundary. The Client owns
// all state; a gateway implementation only translates calls to the provider
// and maps its failures onto this package's sentinel errors
// (ErrInvalidCredentials, ErrInvalidCode, ErrCodeExpired, ErrInvalidContact,
// ErrRateLimited, ErrRefreshRejected, ErrGatewayUnavailable).
//
// Every call is a suspension point for the state machine: it must honor the
// context and return within the caller's deadline.
type AuthGateway interface {
	// SignInWithPassword exchanges identity plus password for a session.
	SignInWithPassword(ctx context.Context, identity, password string) (*session.Session, error)
	// StartOTP asks the provider to dispatch a one-time code.
	StartOTP(ctx context.Context, contact string) error
	// VerifyOTP exchanges contact plus code for a session.
	VerifyOTP(ctx context.Context, contact, code string) (*session.Session, error)
	// Refresh exchanges a refresh token for a replacement session.
	Refresh(ctx context.Context, refreshToken string) (*session.Session, error)
	// SignOut revokes the session remotely. Best effort: local sign-out
	// proceeds whether or not this succeeds.
	SignOut(ctx context.Context, accessToken string) error
	// CurrentSession fetches the provider's view of the session bound to
	// the access token, or session.ErrNotFound-equivalent nil when absent.
	CurrentSession(ctx context.Context, accessToken string) (*session.Session, error)
	// UpdatePassword sets a password on the authenticated user, used by
	// sign-up flows that establish the session via OTP first.
	UpdatePassword(ctx context.Context, accessToken, newPassword string) error
}
