package session

import "time"

// Identity records the contact coordinates a session was established with.
// Deployments are phone-first or email-first; either field may be empty.
type Identity struct {
	Phone string `json:"phone,omitempty"`
	Email string `json:"email,omitempty"`
}

// Session is the client's proof of authentication for one user: the token
// pair, its expiry, and the identity it was issued against.
//
// A Session value is never mutated in place. The state machine replaces the
// whole record on refresh.
type Session struct {
	UserID       string    `json:"user_id"`
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	ExpiresAt    time.Time `json:"expires_at"`
	Identity     Identity  `json:"identity"`
}

// Valid reports whether the session can still be presented as proof of
// authentication at the given instant.
func (s *Session) Valid(now time.Time) bool {
	return s != nil && s.UserID != "" && now.Before(s.ExpiresAt)
}

// TimeToLive returns the remaining lifetime at the given instant. Expired
// sessions return zero, never a negative duration.
func (s *Session) TimeToLive(now time.Time) time.Duration {
	if s == nil {
		return 0
	}
	ttl := s.ExpiresAt.Sub(now)
	if ttl < 0 {
		return 0
	}
	return ttl
}

// Clone returns an independent copy, or nil for a nil receiver.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	out := *s
	return &out
}
