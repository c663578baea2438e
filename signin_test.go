package authkit

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/partsforcheap/authkit/session"
)

func TestSignInWithPassword(t *testing.T) {
	clock := newTestClock()
	gw := newFakeGateway(clock)
	profiles := newFakeProfiles()
	profiles.rows["user-1"] = Profile{UserID: "user-1", Admin: false}
	c, store := newTestClient(t, gw, profiles, clock)

	require.NoError(t, c.SignInWithPassword(context.Background(), "alice@example.com", "Str0ng!pw"))

	snap := c.Snapshot()
	assert.Equal(t, StateAuthenticated, snap.State)
	assert.Equal(t, RoleMember, snap.Role)
	require.NotNil(t, snap.Session)

	persisted, err := store.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, snap.Session.UserID, persisted.UserID)
}

func TestSignInRejectionStaysSignedOut(t *testing.T) {
	clock := newTestClock()
	gw := newFakeGateway(clock)
	gw.signInFn = func(string, string) (*session.Session, error) {
		return nil, ErrInvalidCredentials
	}
	c, store := newTestClient(t, gw, nil, clock)

	err := c.SignInWithPassword(context.Background(), "alice@example.com", "wrong")
	require.ErrorIs(t, err, ErrInvalidCredentials)
	assert.Equal(t, StateSignedOut, c.Snapshot().State)

	_, err = store.Load(context.Background())
	assert.ErrorIs(t, err, session.ErrNotFound)
}

func TestSignInEmptyFieldsFailFast(t *testing.T) {
	clock := newTestClock()
	gw := newFakeGateway(clock)
	c, _ := newTestClient(t, gw, nil, clock)

	var fields FieldErrors
	err := c.SignInWithPassword(context.Background(), "", "pw")
	require.ErrorAs(t, err, &fields)
	assert.Equal(t, ClassInput, Class(err))

	signIns, _, _, _, _ := gw.calls()
	assert.Zero(t, signIns, "local validation must not reach the gateway")
}

func TestSignInConcurrentAttemptRejected(t *testing.T) {
	clock := newTestClock()
	gw := newFakeGateway(clock)
	started := make(chan struct{})
	release := make(chan struct{})
	gw.signInFn = func(string, string) (*session.Session, error) {
		close(started)
		<-release
		return gw.defaultSession("user-1"), nil
	}
	c, _ := newTestClient(t, gw, nil, clock)

	firstDone := make(chan error, 1)
	go func() {
		firstDone <- c.SignInWithPassword(context.Background(), "alice@example.com", "pw")
	}()
	<-started

	assert.Equal(t, StateAuthenticating, c.Snapshot().State)
	err := c.SignInWithPassword(context.Background(), "bob@example.com", "pw")
	assert.ErrorIs(t, err, ErrAlreadyInProgress)

	close(release)
	require.NoError(t, <-firstDone)
	assert.Equal(t, StateAuthenticated, c.Snapshot().State)
}

func TestSignInWhileAuthenticated(t *testing.T) {
	clock := newTestClock()
	c, _ := newTestClient(t, newFakeGateway(clock), nil, clock)

	require.NoError(t, c.SignInWithPassword(context.Background(), "alice@example.com", "pw"))
	err := c.SignInWithPassword(context.Background(), "alice@example.com", "pw")
	assert.ErrorIs(t, err, ErrAlreadySignedIn)
}

func TestSignInRoleLookupFailureDegradesToMember(t *testing.T) {
	clock := newTestClock()
	profiles := newFakeProfiles()
	profiles.roleErr = fmt.Errorf("%w: connection refused", ErrProfileUnavailable)
	c, _ := newTestClient(t, newFakeGateway(clock), profiles, clock)

	require.NoError(t, c.SignInWithPassword(context.Background(), "alice@example.com", "pw"))

	snap := c.Snapshot()
	assert.Equal(t, StateAuthenticated, snap.State, "role lookup failure must not block sign-in")
	assert.Equal(t, RoleMember, snap.Role)
}

// The fresh-install one-time-code walk: issue, fail once, succeed.
func TestOTPChallengeLifecycle(t *testing.T) {
	clock := newTestClock()
	gw := newFakeGateway(clock)
	gw.verifyFn = func(contact, code string) (*session.Session, error) {
		if code != "1234" {
			return nil, ErrInvalidCode
		}
		return gw.defaultSession("user-otp"), nil
	}
	c, store := newTestClient(t, gw, nil, clock)

	require.NoError(t, c.StartOTPChallenge(context.Background(), "+96171909690"))

	snap := c.Snapshot()
	require.Equal(t, StateChallengePending, snap.State)
	require.NotNil(t, snap.Challenge)
	assert.Equal(t, ChallengeOTP, snap.Challenge.Kind)
	assert.Equal(t, "+96171909690", snap.Challenge.Target)
	assert.Equal(t, 3, snap.Challenge.AttemptsRemaining)

	err := c.VerifyOTP(context.Background(), "0000")
	require.ErrorIs(t, err, ErrInvalidCode)
	snap = c.Snapshot()
	assert.Equal(t, StateChallengePending, snap.State)
	assert.Equal(t, 2, snap.Challenge.AttemptsRemaining)

	require.NoError(t, c.VerifyOTP(context.Background(), "1234"))
	snap = c.Snapshot()
	assert.Equal(t, StateAuthenticated, snap.State)
	assert.Nil(t, snap.Challenge)

	persisted, err := store.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "user-otp", persisted.UserID)
}

func TestVerifyOTPMalformedCode(t *testing.T) {
	clock := newTestClock()
	gw := newFakeGateway(clock)
	c, _ := newTestClient(t, gw, nil, clock)

	require.NoError(t, c.StartOTPChallenge(context.Background(), "+96171909690"))

	for _, code := range []string{"", "12", "1234567", "12ab", "١٢٣٤"} {
		err := c.VerifyOTP(context.Background(), code)
		assert.ErrorIs(t, err, ErrMalformedCode, "code %q", code)
	}

	snap := c.Snapshot()
	assert.Equal(t, 3, snap.Challenge.AttemptsRemaining, "malformed codes must not consume attempts")
	_, _, verifies, _, _ := gw.calls()
	assert.Zero(t, verifies, "malformed codes must never reach the gateway")
}

func TestVerifyOTPExhaustsAttempts(t *testing.T) {
	clock := newTestClock()
	gw := newFakeGateway(clock)
	gw.verifyFn = func(string, string) (*session.Session, error) {
		return nil, ErrInvalidCode
	}
	c, store := newTestClient(t, gw, nil, clock)

	require.NoError(t, c.StartOTPChallenge(context.Background(), "+96171909690"))

	require.ErrorIs(t, c.VerifyOTP(context.Background(), "0000"), ErrInvalidCode)
	require.ErrorIs(t, c.VerifyOTP(context.Background(), "0000"), ErrInvalidCode)
	require.ErrorIs(t, c.VerifyOTP(context.Background(), "0000"), ErrChallengeExhausted)

	snap := c.Snapshot()
	assert.Equal(t, StateSignedOut, snap.State)
	assert.Nil(t, snap.Challenge)
	_, err := store.Load(context.Background())
	assert.ErrorIs(t, err, session.ErrNotFound)

	assert.ErrorIs(t, c.VerifyOTP(context.Background(), "0000"), ErrNoChallenge)
}

func TestStartOTPResendResetsBudget(t *testing.T) {
	clock := newTestClock()
	gw := newFakeGateway(clock)
	gw.verifyFn = func(string, string) (*session.Session, error) {
		return nil, ErrInvalidCode
	}
	c, _ := newTestClient(t, gw, nil, clock)

	require.NoError(t, c.StartOTPChallenge(context.Background(), "+96171909690"))
	first := c.Snapshot().Challenge
	require.ErrorIs(t, c.VerifyOTP(context.Background(), "0000"), ErrInvalidCode)
	require.Equal(t, 2, c.Snapshot().Challenge.AttemptsRemaining)

	clock.Advance(30 * time.Second)

	require.NoError(t, c.StartOTPChallenge(context.Background(), "+96171909690"))
	resent := c.Snapshot().Challenge
	assert.Equal(t, first.ID, resent.ID, "resend keeps the challenge identity")
	assert.Equal(t, 3, resent.AttemptsRemaining)
	assert.True(t, resent.IssuedAt.After(first.IssuedAt))
}

func TestStartOTPNewContactReplacesChallenge(t *testing.T) {
	clock := newTestClock()
	c, _ := newTestClient(t, newFakeGateway(clock), nil, clock)

	require.NoError(t, c.StartOTPChallenge(context.Background(), "+96171909690"))
	first := c.Snapshot().Challenge

	require.NoError(t, c.StartOTPChallenge(context.Background(), "alice@example.com"))
	second := c.Snapshot().Challenge
	assert.NotEqual(t, first.ID, second.ID)
	assert.Equal(t, "alice@example.com", second.Target)
}

func TestStartOTPInvalidContactFailsFast(t *testing.T) {
	clock := newTestClock()
	gw := newFakeGateway(clock)
	c, _ := newTestClient(t, gw, nil, clock)

	err := c.StartOTPChallenge(context.Background(), "not-a-contact")
	var fields FieldErrors
	require.ErrorAs(t, err, &fields)
	assert.Equal(t, "contact", fields[0].Field)

	_, startOTPs, _, _, _ := gw.calls()
	assert.Zero(t, startOTPs)
}

func TestVerifyOTPTransientErrorKeepsBudget(t *testing.T) {
	clock := newTestClock()
	gw := newFakeGateway(clock)
	transient := fmt.Errorf("%w: timeout", ErrGatewayUnavailable)
	gw.verifyFn = func(string, string) (*session.Session, error) {
		return nil, transient
	}
	c, _ := newTestClient(t, gw, nil, clock)

	require.NoError(t, c.StartOTPChallenge(context.Background(), "+96171909690"))
	err := c.VerifyOTP(context.Background(), "1234")
	require.ErrorIs(t, err, ErrGatewayUnavailable)

	snap := c.Snapshot()
	assert.Equal(t, StateChallengePending, snap.State)
	assert.Equal(t, 3, snap.Challenge.AttemptsRemaining, "transient failures must not consume attempts")
}

func TestCancelChallenge(t *testing.T) {
	clock := newTestClock()
	c, _ := newTestClient(t, newFakeGateway(clock), nil, clock)

	require.NoError(t, c.StartOTPChallenge(context.Background(), "+96171909690"))
	require.NoError(t, c.CancelChallenge())

	snap := c.Snapshot()
	assert.Equal(t, StateSignedOut, snap.State)
	assert.Nil(t, snap.Challenge)

	require.NoError(t, c.CancelChallenge(), "cancel with nothing pending is a no-op")
}

func TestSignOutDiscardsInFlightSignIn(t *testing.T) {
	clock := newTestClock()
	gw := newFakeGateway(clock)
	started := make(chan struct{})
	release := make(chan struct{})
	gw.signInFn = func(string, string) (*session.Session, error) {
		close(started)
		<-release
		return gw.defaultSession("user-1"), nil
	}
	c, store := newTestClient(t, gw, nil, clock)

	done := make(chan error, 1)
	go func() {
		done <- c.SignInWithPassword(context.Background(), "alice@example.com", "pw")
	}()
	<-started

	require.NoError(t, c.SignOut(context.Background()))
	close(release)

	err := <-done
	require.ErrorIs(t, err, ErrSuperseded)
	assert.Equal(t, StateSignedOut, c.Snapshot().State)

	_, lerr := store.Load(context.Background())
	assert.ErrorIs(t, lerr, session.ErrNotFound)
}

func TestErrorClassTaxonomy(t *testing.T) {
	cases := []struct {
		err  error
		want ErrorClass
	}{
		{ErrMalformedCode, ClassInput},
		{FieldErrors{{Field: "contact", Reason: "required"}}, ClassInput},
		{ErrInvalidCredentials, ClassCredential},
		{ErrInvalidCode, ClassCredential},
		{ErrCodeExpired, ClassCredential},
		{ErrChallengeExhausted, ClassCredential},
		{ErrRateLimited, ClassRateLimited},
		{fmt.Errorf("%w: timeout", ErrGatewayUnavailable), ClassTransient},
		{ErrRefreshRejected, ClassTransient},
		{fmt.Errorf("%w: token reuse", ErrSessionRevoked), ClassFatalSession},
		{errors.New("something else"), ClassUnknown},
		{nil, ClassUnknown},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, Class(tc.err), "error %v", tc.err)
	}
}
