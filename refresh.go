package authkit

import (
	"context"
	"fmt"
	"time"

	"github.com/partsforcheap/authkit/session"
)

// Refresh replaces the session's token pair in place, keeping its identity.
// It is normally driven by the scheduler, not the host UI.
//
// Concurrent triggers coalesce: while one refresh is outstanding every
// further call returns nil immediately, so at most one provider refresh is
// in flight no matter how many timers or foreground events fired. The
// first failure moves to StateRefreshFailed with the stale session still
// readable; a second consecutive failure signs out and clears the store.
func (c *Client) Refresh(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClientClosed
	}
	if c.state != StateAuthenticated && c.state != StateRefreshFailed {
		c.mu.Unlock()
		return ErrNotSignedIn
	}
	if c.inflight != kindNone {
		// Coalesced behind the outstanding transition.
		c.mu.Unlock()
		return nil
	}
	epoch := c.epoch
	token := c.session.RefreshToken
	prior := c.session
	c.inflight = kindRefresh
	c.mu.Unlock()

	next, err := c.gateway.Refresh(ctx, token)

	if err != nil {
		c.mu.Lock()
		c.inflight = kindNone
		if c.epoch != epoch {
			// Signed out while in flight; the failure no longer matters.
			c.mu.Unlock()
			return nil
		}
		c.refreshFailures++
		failures := c.refreshFailures
		if failures < 2 {
			c.state = StateRefreshFailed
			snap, seq := c.commitLocked()
			c.mu.Unlock()

			c.logger.Warn().Err(err).Msg("session refresh failed; keeping stale session readable")
			c.notify(snap, seq)
			c.kickScheduler()
			return err
		}

		// Two consecutive failures: the session is gone for good.
		c.state = StateSignedOut
		c.session = nil
		c.role = RoleMember
		c.challenge = nil
		c.refreshFailures = 0
		snap, seq := c.commitLocked()
		c.mu.Unlock()

		if cerr := c.store.Clear(ctx); cerr != nil {
			c.logger.Warn().Err(cerr).Msg("clearing store after revoked session failed")
		}
		c.logger.Error().Err(err).Msg("session irrecoverable after consecutive refresh failures")
		c.notify(snap, seq)
		c.kickScheduler()
		return fmt.Errorf("%w: %v", ErrSessionRevoked, err)
	}

	// Same identity, new tokens.
	if next.Identity == (session.Identity{}) && prior != nil {
		next.Identity = prior.Identity
	}

	c.mu.Lock()
	if c.epoch != epoch {
		c.inflight = kindNone
		c.mu.Unlock()
		// Signed out while in flight: discard the fresh session entirely.
		c.logger.Info().Msg("discarding refresh result after sign-out")
		return nil
	}
	c.state = StateAuthenticated
	c.session = next
	c.refreshFailures = 0
	snap, seq := c.commitLocked()
	c.mu.Unlock()

	c.persistSession(ctx, next, epoch)

	c.mu.Lock()
	c.inflight = kindNone
	c.mu.Unlock()

	c.logger.Debug().Time("expires_at", next.ExpiresAt).Msg("session refreshed")
	c.notify(snap, seq)
	c.kickScheduler()
	return nil
}

// runScheduler is the only autonomous actor: a timer loop that refreshes
// the session before it expires, paused while the app is backgrounded and
// resumed (with an immediate near-expiry refresh) on foreground.
func (c *Client) runScheduler() {
	defer c.wg.Done()

	var events <-chan LifecycleEvent
	if c.lifecycle != nil {
		events = c.lifecycle.Events()
	}

	// A process starts foregrounded; the monitor reports transitions only.
	foreground := true

	timer := time.NewTimer(c.nextWake(foreground))
	defer timer.Stop()

	for {
		select {
		case <-c.stop:
			return
		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			switch ev {
			case Backgrounded:
				foreground = false
			case Foregrounded:
				foreground = true
				// An immediate check covers sessions that went stale while
				// the app was backgrounded.
				c.refreshIfDue()
			}
		case <-c.kick:
		case <-timer.C:
			if foreground {
				c.refreshIfDue()
			}
		}

		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timer.Reset(c.nextWake(foreground))
	}
}

// refreshIfDue refreshes when the session's remaining lifetime is inside
// the safety margin, and always retries a refresh-failed session.
func (c *Client) refreshIfDue() {
	snap := c.Snapshot()
	switch snap.State {
	case StateAuthenticated:
		if snap.Session.TimeToLive(c.now()) <= c.config.RefreshSafetyMargin {
			c.scheduledRefresh()
		}
	case StateRefreshFailed:
		c.scheduledRefresh()
	}
}

func (c *Client) scheduledRefresh() {
	// Scheduler calls have no host context, so the deadline comes from
	// config: a hung provider must not hold the in-flight slot forever.
	ctx, cancel := context.WithTimeout(context.Background(), c.config.GatewayTimeout)
	defer cancel()
	if err := c.Refresh(ctx); err != nil {
		// Already logged and reflected in state; the scheduler's next wake
		// handles the retry or the forced sign-out already happened.
		return
	}
}

// nextWake picks the scheduler's next wait: just before the session needs
// refreshing, the retry backoff while degraded, or the idle cap.
func (c *Client) nextWake(foreground bool) time.Duration {
	if !foreground {
		return c.config.SchedulerMaxWait
	}
	snap := c.Snapshot()
	switch snap.State {
	case StateAuthenticated:
		d := snap.Session.TimeToLive(c.now()) - c.config.RefreshSafetyMargin
		if d < time.Second {
			d = time.Second
		}
		if d > c.config.SchedulerMaxWait {
			d = c.config.SchedulerMaxWait
		}
		return d
	case StateRefreshFailed:
		return c.config.RefreshRetryBackoff
	default:
		return c.config.SchedulerMaxWait
	}
}
