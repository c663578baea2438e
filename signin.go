package authkit

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
)

// SignInWithPassword runs the password challenge. Valid only while signed
// out; while the provider call is in flight the state reads as
// StateAuthenticating and competing user actions fail with
// ErrAlreadyInProgress. On success the role is resolved through the
// profile repository (lookup failure degrades to member) and the session
// is persisted. On rejection the state returns to StateSignedOut and
// ErrInvalidCredentials is returned.
func (c *Client) SignInWithPassword(ctx context.Context, identity, password string) error {
	identity = strings.TrimSpace(identity)
	if identity == "" {
		return FieldErrors{{Field: "identity", Reason: "required"}}
	}
	if password == "" {
		return FieldErrors{{Field: "password", Reason: "required"}}
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClientClosed
	}
	if c.inflight != kindNone {
		c.mu.Unlock()
		return ErrAlreadyInProgress
	}
	switch c.state {
	case StateSignedOut:
	case StateAuthenticated, StateRefreshFailed:
		c.mu.Unlock()
		return ErrAlreadySignedIn
	default:
		c.mu.Unlock()
		return ErrAlreadyInProgress
	}
	epoch := c.epoch
	c.inflight = kindUser
	c.state = StateAuthenticating
	snap, seq := c.commitLocked()
	c.mu.Unlock()
	c.notify(snap, seq)

	sess, err := c.gateway.SignInWithPassword(ctx, identity, password)
	if err != nil {
		c.mu.Lock()
		c.inflight = kindNone
		if c.epoch != epoch {
			c.mu.Unlock()
			return ErrSuperseded
		}
		c.state = StateSignedOut
		snap, seq = c.commitLocked()
		c.mu.Unlock()

		c.logger.Info().Err(err).Msg("password sign-in rejected")
		c.notify(snap, seq)
		return err
	}

	// Still suspended: readers keep seeing StateAuthenticating here.
	role := c.resolveRole(ctx, sess.UserID)

	c.mu.Lock()
	if c.epoch != epoch {
		c.inflight = kindNone
		c.mu.Unlock()
		return ErrSuperseded
	}
	c.state = StateAuthenticated
	c.session = sess
	c.role = role
	c.challenge = nil
	c.refreshFailures = 0
	snap, seq = c.commitLocked()
	c.mu.Unlock()

	c.persistSession(ctx, sess, epoch)

	c.mu.Lock()
	c.inflight = kindNone
	c.mu.Unlock()

	c.logger.Info().Str("user_id", sess.UserID).Str("role", role.String()).Msg("signed in")
	c.notify(snap, seq)
	c.kickScheduler()
	return nil
}

// StartOTPChallenge dispatches a one-time code to the contact and moves to
// StateChallengePending. Valid while signed out or with a challenge
// already pending: re-issuing to the same contact is a resend, keeping the
// challenge identity but resetting its attempt budget and issue time.
func (c *Client) StartOTPChallenge(ctx context.Context, contact string) error {
	contact = strings.TrimSpace(contact)
	if _, ferr := ParseContact(contact); ferr != nil {
		return FieldErrors{*ferr}
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClientClosed
	}
	if c.inflight != kindNone {
		c.mu.Unlock()
		return ErrAlreadyInProgress
	}
	switch c.state {
	case StateSignedOut, StateChallengePending:
	case StateAuthenticated, StateRefreshFailed:
		c.mu.Unlock()
		return ErrAlreadySignedIn
	default:
		c.mu.Unlock()
		return ErrAlreadyInProgress
	}
	epoch := c.epoch
	c.inflight = kindUser
	c.mu.Unlock()

	err := c.gateway.StartOTP(ctx, contact)

	c.mu.Lock()
	c.inflight = kindNone
	if c.epoch != epoch {
		c.mu.Unlock()
		return ErrSuperseded
	}
	if err != nil {
		c.mu.Unlock()
		c.logger.Info().Err(err).Msg("otp dispatch failed")
		return err
	}

	if c.challenge != nil && c.challenge.Target == contact {
		// Resend: same challenge identity, fresh budget.
		c.challenge.AttemptsRemaining = c.config.OTPMaxAttempts
		c.challenge.IssuedAt = c.now()
	} else {
		c.challenge = &Challenge{
			ID:                uuid.NewString(),
			Kind:              ChallengeOTP,
			Target:            contact,
			IssuedAt:          c.now(),
			AttemptsRemaining: c.config.OTPMaxAttempts,
		}
	}
	c.state = StateChallengePending
	snap, seq := c.commitLocked()
	c.mu.Unlock()

	c.logger.Info().Str("challenge_id", snap.Challenge.ID).Msg("otp challenge issued")
	c.notify(snap, seq)
	return nil
}

// VerifyOTP resolves the pending challenge with the received code.
//
// The code is checked lexically before anything else: a malformed code
// fails with ErrMalformedCode without a provider call and without
// consuming an attempt. A provider rejection decrements the budget;
// at zero the challenge is spent, the state returns to StateSignedOut and
// ErrChallengeExhausted is returned. Success behaves like a sign-in; the
// profile row may not exist yet, so sign-up callers still owe a finalize.
func (c *Client) VerifyOTP(ctx context.Context, code string) error {
	code = strings.TrimSpace(code)

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClientClosed
	}
	if c.state != StateChallengePending || c.challenge == nil {
		c.mu.Unlock()
		return ErrNoChallenge
	}
	if c.inflight != kindNone {
		c.mu.Unlock()
		return ErrAlreadyInProgress
	}
	if !otpCodePattern.MatchString(code) {
		c.mu.Unlock()
		return ErrMalformedCode
	}
	epoch := c.epoch
	target := c.challenge.Target
	c.inflight = kindUser
	c.mu.Unlock()

	sess, err := c.gateway.VerifyOTP(ctx, target, code)
	if err != nil {
		return c.applyVerifyFailure(ctx, epoch, err)
	}

	role := c.resolveRole(ctx, sess.UserID)

	c.mu.Lock()
	if c.epoch != epoch {
		c.inflight = kindNone
		c.mu.Unlock()
		return ErrSuperseded
	}
	c.state = StateAuthenticated
	c.session = sess
	c.role = role
	c.challenge = nil
	c.refreshFailures = 0
	snap, seq := c.commitLocked()
	c.mu.Unlock()

	c.persistSession(ctx, sess, epoch)

	c.mu.Lock()
	c.inflight = kindNone
	c.mu.Unlock()

	c.logger.Info().Str("user_id", sess.UserID).Msg("otp verified")
	c.notify(snap, seq)
	c.kickScheduler()
	return nil
}

func (c *Client) applyVerifyFailure(ctx context.Context, epoch uint64, err error) error {
	c.mu.Lock()
	c.inflight = kindNone
	if c.epoch != epoch {
		c.mu.Unlock()
		return ErrSuperseded
	}

	if !errors.Is(err, ErrInvalidCode) && !errors.Is(err, ErrCodeExpired) {
		// Rate limiting and transport failures do not consume an attempt.
		c.mu.Unlock()
		c.logger.Info().Err(err).Msg("otp verify failed without consuming an attempt")
		return err
	}

	c.challenge.AttemptsRemaining--
	if c.challenge.AttemptsRemaining > 0 {
		remaining := c.challenge.AttemptsRemaining
		snap, seq := c.commitLocked()
		c.mu.Unlock()

		c.logger.Info().Err(err).Int("attempts_remaining", remaining).Msg("otp rejected")
		c.notify(snap, seq)
		return err
	}

	// Budget spent: the challenge is consumed and the flow starts over.
	c.challenge = nil
	c.state = StateSignedOut
	snap, seq := c.commitLocked()
	c.mu.Unlock()

	if cerr := c.store.Clear(ctx); cerr != nil {
		c.logger.Warn().Err(cerr).Msg("clearing store after exhausted challenge failed")
	}
	c.logger.Info().Msg("otp challenge exhausted")
	c.notify(snap, seq)
	return ErrChallengeExhausted
}
