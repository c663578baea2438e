package authkit

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/partsforcheap/authkit/session"
)

// transitionKind tags the single transition allowed in flight at a time.
type transitionKind int

const (
	kindNone transitionKind = iota
	kindUser
	kindRefresh
)

// Client is the authentication state machine. It owns the current session
// and any pending challenge, serializes transitions, persists through the
// session store, and feeds state changes to subscribers.
//
// Transitions are serialized: at most one is in flight. While a transition
// is suspended on a remote call, readers observe the pre-transition state;
// competing user-initiated calls fail with ErrAlreadyInProgress and refresh
// triggers coalesce into the one outstanding refresh. A sign-out bumps an
// epoch counter so any in-flight result that lands afterwards is discarded
// rather than applied (last-applies-if-still-relevant).
type Client struct {
	config    Config
	gateway   AuthGateway
	profiles  ProfileRepository
	store     session.Store
	lifecycle LifecycleMonitor
	logger    zerolog.Logger
	now       func() time.Time

	mu              sync.Mutex
	state           State
	session         *session.Session
	role            Role
	challenge       *Challenge
	inflight        transitionKind
	epoch           uint64
	refreshFailures int
	commitSeq       uint64
	closed          bool

	subMu  sync.Mutex
	subs   map[uint64]func(Snapshot)
	subSeq uint64

	dispatchMu    sync.Mutex
	lastDelivered uint64

	kick     chan struct{}
	stop     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// Snapshot returns the current state. Session and Challenge are copies.
func (c *Client) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

func (c *Client) snapshotLocked() Snapshot {
	return Snapshot{
		State:     c.state,
		Session:   c.session.Clone(),
		Role:      c.role,
		Challenge: c.challenge.clone(),
	}
}

// commitLocked captures the post-transition snapshot together with its
// position in the commit order. notify uses the position to drop any
// snapshot that a later commit has already overtaken, so a transition
// whose goroutine is slow between commit and delivery (persisting the
// session, for instance) can never push subscribers backwards in time.
func (c *Client) commitLocked() (Snapshot, uint64) {
	c.commitSeq++
	return c.snapshotLocked(), c.commitSeq
}

// Subscribe registers a callback invoked once per state change with the
// post-transition snapshot. Snapshots arrive in commit order: a snapshot
// overtaken by a later transition before delivery is dropped, never
// delivered late, so the most recent delivery always reflects the most
// recent committed state. Callbacks run synchronously on the
// transitioning goroutine and must not block or re-enter mutating Client
// methods. The returned function unsubscribes and is safe to call more
// than once.
func (c *Client) Subscribe(fn func(Snapshot)) (unsubscribe func()) {
	c.subMu.Lock()
	c.subSeq++
	id := c.subSeq
	c.subs[id] = fn
	c.subMu.Unlock()

	return func() {
		c.subMu.Lock()
		delete(c.subs, id)
		c.subMu.Unlock()
	}
}

func (c *Client) notify(snap Snapshot, seq uint64) {
	c.subMu.Lock()
	fns := make([]func(Snapshot), 0, len(c.subs))
	for _, fn := range c.subs {
		fns = append(fns, fn)
	}
	c.subMu.Unlock()

	// dispatchMu serializes deliveries so commit order is preserved even
	// when two transitioning goroutines race to notify.
	c.dispatchMu.Lock()
	defer c.dispatchMu.Unlock()
	if seq <= c.lastDelivered {
		// A newer snapshot already went out; this one is stale.
		return
	}
	c.lastDelivered = seq
	for _, fn := range fns {
		fn(snap)
	}
}

// SignOut tears the session down from any state: the local record is
// cleared, the provider revoke is attempted best-effort, and any in-flight
// transition's eventual result is discarded. Calling it again while
// already signed out is a no-op, never an error.
func (c *Client) SignOut(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClientClosed
	}
	if c.state == StateSignedOut && c.challenge == nil && c.inflight == kindNone {
		c.mu.Unlock()
		return nil
	}
	sess := c.session
	c.epoch++
	c.state = StateSignedOut
	c.session = nil
	c.challenge = nil
	c.role = RoleMember
	c.refreshFailures = 0
	snap, seq := c.commitLocked()
	c.mu.Unlock()

	if err := c.store.Clear(ctx); err != nil {
		c.logger.Warn().Err(err).Msg("sign-out: clearing session store failed")
	}
	if sess != nil {
		if err := c.gateway.SignOut(ctx, sess.AccessToken); err != nil {
			// Best effort. The local sign-out already happened.
			c.logger.Warn().Err(err).Msg("sign-out: remote revoke failed")
		}
	}

	c.logger.Info().Msg("signed out")
	c.notify(snap, seq)
	c.kickScheduler()
	return nil
}

// CancelChallenge abandons a pending challenge without consuming it, the
// back-navigation path out of an unverified OTP screen. No remote call is
// made; the unverified code simply expires server-side.
func (c *Client) CancelChallenge() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClientClosed
	}
	if c.state != StateChallengePending {
		c.mu.Unlock()
		return nil
	}
	if c.inflight != kindNone {
		c.mu.Unlock()
		return ErrAlreadyInProgress
	}
	c.challenge = nil
	c.state = StateSignedOut
	snap, seq := c.commitLocked()
	c.mu.Unlock()

	c.notify(snap, seq)
	return nil
}

// UpdatePassword sets a password on the authenticated user. Sign-up flows
// that establish the session via OTP call this before finalizing. The
// session itself is unchanged; failures are retryable.
func (c *Client) UpdatePassword(ctx context.Context, password, confirm string) error {
	if errs := ValidateNewPassword(password, confirm, c.config.PasswordMinLength); len(errs) > 0 {
		return errs
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClientClosed
	}
	if c.state != StateAuthenticated || c.session == nil {
		c.mu.Unlock()
		return ErrNotSignedIn
	}
	token := c.session.AccessToken
	c.mu.Unlock()

	return c.gateway.UpdatePassword(ctx, token, password)
}

// Close stops the refresh scheduler and rejects further transitions.
func (c *Client) Close() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	c.stopOnce.Do(func() { close(c.stop) })
	c.wg.Wait()
}

// resolveRole looks the role up, degrading to member on any failure so a
// missing or unreachable profile row never blocks sign-in.
func (c *Client) resolveRole(ctx context.Context, userID string) Role {
	if c.profiles == nil {
		return RoleMember
	}
	role, err := c.profiles.GetRole(ctx, userID)
	if err != nil {
		if !errors.Is(err, ErrProfileNotFound) {
			c.logger.Warn().Err(err).Str("user_id", userID).Msg("role lookup failed; defaulting to member")
		}
		return RoleMember
	}
	return role
}

// persistSession saves the record, then re-checks the epoch: if a sign-out
// won the race against the save, the record is cleared again so the store
// never resurrects a session the user ended.
func (c *Client) persistSession(ctx context.Context, sess *session.Session, epoch uint64) {
	if err := c.store.Save(ctx, sess); err != nil {
		// Remote success with failed local persist: stay signed in and
		// report; the next refresh re-persists.
		c.logger.Error().Err(err).Msg("session persist failed")
		return
	}
	c.mu.Lock()
	stale := c.epoch != epoch
	c.mu.Unlock()
	if stale {
		if err := c.store.Clear(ctx); err != nil {
			c.logger.Warn().Err(err).Msg("clearing superseded session failed")
		}
	}
}

func (c *Client) kickScheduler() {
	select {
	case c.kick <- struct{}{}:
	default:
	}
}
