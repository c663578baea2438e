package authkit

import "context"

// Role is the coarse authorization flag controlling reachable destinations.
type Role int

const (
	// RoleMember is the default role, including users whose profile row
	// does not exist yet.
	RoleMember Role = iota
	// RoleAdmin unlocks the administrative destinations.
	RoleAdmin
)

func (r Role) String() string {
	if r == RoleAdmin {
		return "admin"
	}
	return "member"
}

// Profile is the user's profile row, keyed 1:1 on the session's user id.
// The row may not exist yet immediately after a challenge succeeds; until
// it is finalized the user is treated as RoleMember.
type Profile struct {
	UserID      string
	DisplayName string
	Phone       string
	Email       string
	Admin       bool
}

// ProfileRepository is the external profile-store boundary.
type ProfileRepository interface {
	// UpsertIfAbsent inserts the profile row unless one already exists for
	// the user id, in which case the existing row is left untouched and no
	// error is returned. Retried finalize attempts must not clobber fields
	// set by other means.
	UpsertIfAbsent(ctx context.Context, p Profile) error
	// GetRole looks up the role flag. A missing row returns RoleMember and
	// ErrProfileNotFound; callers treat that as non-admin, never as fatal.
	GetRole(ctx context.Context, userID string) (Role, error)
}
