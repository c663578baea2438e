// Package session holds the persisted session record and the Store backends
// that keep exactly one record per installed client.
//
// A Store never judges expiry: saving an already-expired session is legal and
// the record stays loadable until Clear. Expiry is the state machine's call,
// which needs the stale record to stay readable while it is in its
// refresh-failed grace period.
package session

import (
	"context"
	"errors"
)

// ErrNotFound is returned by Load when no session record exists.
var ErrNotFound = errors.New("no session record")

// ErrStoreUnavailable wraps backend failures (filesystem, redis) so callers
// can tell "absent" from "could not read".
var ErrStoreUnavailable = errors.New("session store unavailable")

// Store is durable single-record persistence for the current session.
//
// Implementations must tolerate Save with an expired session and must make
// Clear idempotent. Only the state machine writes to a Store; backends do not
// need cross-component locking beyond their own internal consistency.
type Store interface {
	// Load returns the persisted session or ErrNotFound.
	Load(ctx context.Context) (*Session, error)
	// Save replaces the persisted record.
	Save(ctx context.Context, s *Session) error
	// Clear removes the record. Clearing an empty store is not an error.
	Clear(ctx context.Context) error
}
