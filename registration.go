package authkit

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// RegistrationStage tracks the sign-up sequence as a linear state machine
// layered on top of the Client.
type RegistrationStage int

const (
	// StageCollectingIdentity gathers name and contact, locally only.
	StageCollectingIdentity RegistrationStage = iota
	// StageChallengeIssued means a code was dispatched to the contact.
	StageChallengeIssued
	// StageChallengeVerified means the code was accepted: a session now
	// exists, but the profile row may not.
	StageChallengeVerified
	// StageProfileFinalized means the profile row is persisted and the
	// draft is spent.
	StageProfileFinalized
)

func (s RegistrationStage) String() string {
	switch s {
	case StageCollectingIdentity:
		return "collecting_identity"
	case StageChallengeIssued:
		return "challenge_issued"
	case StageChallengeVerified:
		return "challenge_verified"
	case StageProfileFinalized:
		return "profile_finalized"
	default:
		return "unknown"
	}
}

// Draft is the in-memory staging record for one registration attempt. It
// is passed explicitly between steps rather than threaded through
// navigation parameters, and it never survives the process.
type Draft struct {
	ID        string
	FirstName string
	LastName  string
	Phone     string
	Email     string
}

// DisplayName builds the profile display name from the draft.
func (d Draft) DisplayName() string {
	return strings.TrimSpace(d.FirstName + " " + d.LastName)
}

func (d Draft) contact() string {
	if d.Phone != "" {
		return d.Phone
	}
	return d.Email
}

// Registration orchestrates the multi-screen sign-up sequence as one
// logical transaction: collect identity, issue the challenge, verify it,
// optionally set a password, finalize the profile. It owns the Draft and
// drives the Client through the challenge states.
//
// A Registration is bound to the host's sign-up flow and is not safe for
// concurrent use from multiple goroutines.
type Registration struct {
	client *Client
	logger zerolog.Logger

	mu    sync.Mutex
	stage RegistrationStage
	draft Draft
}

// NewRegistration starts a fresh sign-up attempt on the client.
func (c *Client) NewRegistration() *Registration {
	return &Registration{
		client: c,
		logger: c.logger.With().Str("component", "registration").Logger(),
		stage:  StageCollectingIdentity,
	}
}

// Stage returns the current stage.
func (r *Registration) Stage() RegistrationStage {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stage
}

// Draft returns a copy of the staged data.
func (r *Registration) Draft() Draft {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.draft
}

// Begin validates and stages the identity step. Purely local: no remote
// call is made and failures are reported per field.
func (r *Registration) Begin(firstName, lastName, contact string) error {
	if errs := ValidateIdentity(firstName, lastName, contact); len(errs) > 0 {
		return errs
	}
	parsed, _ := ParseContact(contact)

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stage != StageCollectingIdentity {
		return fmt.Errorf("registration already past identity collection (%s)", r.stage)
	}
	r.draft = Draft{
		ID:        uuid.NewString(),
		FirstName: strings.TrimSpace(firstName),
		LastName:  strings.TrimSpace(lastName),
		Phone:     parsed.Phone,
		Email:     parsed.Email,
	}
	return nil
}

// SendCode dispatches the one-time code for the staged contact. Calling it
// again at StageChallengeIssued is a resend with a fresh attempt budget.
func (r *Registration) SendCode(ctx context.Context) error {
	r.mu.Lock()
	if r.stage != StageCollectingIdentity && r.stage != StageChallengeIssued {
		r.mu.Unlock()
		return fmt.Errorf("cannot send code at stage %s", r.stage)
	}
	if r.draft.ID == "" {
		r.mu.Unlock()
		return FieldErrors{{Field: "contact", Reason: "required"}}
	}
	contact := r.draft.contact()
	r.mu.Unlock()

	if err := r.client.StartOTPChallenge(ctx, contact); err != nil {
		return err
	}

	r.mu.Lock()
	r.stage = StageChallengeIssued
	r.mu.Unlock()
	return nil
}

// VerifyCode resolves the challenge. On success the Client is
// authenticated and the registration advances to StageChallengeVerified;
// the profile row does not exist yet.
func (r *Registration) VerifyCode(ctx context.Context, code string) error {
	r.mu.Lock()
	if r.stage != StageChallengeIssued {
		r.mu.Unlock()
		return fmt.Errorf("cannot verify at stage %s", r.stage)
	}
	r.mu.Unlock()

	if err := r.client.VerifyOTP(ctx, code); err != nil {
		return err
	}

	r.mu.Lock()
	r.stage = StageChallengeVerified
	r.mu.Unlock()
	return nil
}

// SetPassword gives the OTP-established account a password. Allowed only
// after verification; a failure leaves the stage unchanged and the call is
// retryable.
func (r *Registration) SetPassword(ctx context.Context, password, confirm string) error {
	r.mu.Lock()
	if r.stage != StageChallengeVerified {
		r.mu.Unlock()
		return fmt.Errorf("cannot set password at stage %s", r.stage)
	}
	r.mu.Unlock()

	return r.client.UpdatePassword(ctx, password, confirm)
}

// Finalize converts the verified draft into the persisted profile row,
// keyed on the session's user id. The upsert is idempotent: a retry after
// a transient failure, or a duplicate call, leaves the existing row
// untouched and creates no second one.
//
// A failure here is non-fatal to the session — the user stays signed in
// with an incomplete profile — and Finalize may simply be called again.
func (r *Registration) Finalize(ctx context.Context) error {
	r.mu.Lock()
	if r.stage != StageChallengeVerified {
		r.mu.Unlock()
		return fmt.Errorf("cannot finalize at stage %s", r.stage)
	}
	draft := r.draft
	r.mu.Unlock()

	if r.client.profiles == nil {
		return fmt.Errorf("%w: no profile repository configured", ErrProfileUnavailable)
	}

	snap := r.client.Snapshot()
	if snap.State != StateAuthenticated || snap.Session == nil {
		return ErrNotSignedIn
	}

	profile := Profile{
		UserID:      snap.Session.UserID,
		DisplayName: draft.DisplayName(),
		Phone:       draft.Phone,
		Email:       draft.Email,
	}
	if err := r.client.profiles.UpsertIfAbsent(ctx, profile); err != nil {
		// Reported, retryable, and never rolls back the session.
		r.logger.Error().Err(err).Str("user_id", profile.UserID).Msg("profile finalize failed")
		return fmt.Errorf("finalize profile: %w", err)
	}

	r.mu.Lock()
	r.stage = StageProfileFinalized
	r.mu.Unlock()

	r.logger.Info().Str("user_id", profile.UserID).Msg("profile finalized")
	return nil
}

// Back performs the backward navigation rule: before verification it
// abandons the pending challenge and returns to identity collection; after
// verification it does nothing, because the server already acknowledged
// the step and it cannot be un-verified.
func (r *Registration) Back() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	switch r.stage {
	case StageChallengeIssued:
		if err := r.client.CancelChallenge(); err != nil {
			return err
		}
		r.stage = StageCollectingIdentity
	default:
		// CollectingIdentity has nothing to go back to; verified stages
		// keep their server-acknowledged progress.
	}
	return nil
}

// Abandon discards the draft. A pending unverified challenge is abandoned
// with it; a verified session is left alone.
func (r *Registration) Abandon() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stage == StageChallengeIssued {
		if err := r.client.CancelChallenge(); err != nil {
			return err
		}
	}
	r.draft = Draft{}
	r.stage = StageCollectingIdentity
	return nil
}
