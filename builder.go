package authkit

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/partsforcheap/authkit/session"
)

// Builder assembles a Client. Construction is allocation-only; the single
// I/O Build performs is the startup load from the session store.
type Builder struct {
	config   Config
	gateway  AuthGateway
	profiles ProfileRepository
	store    session.Store
	monitor  LifecycleMonitor
	logger   zerolog.Logger
	now      func() time.Time

	built bool
}

// New returns a Builder with default config, a no-op logger, and an
// in-memory session store.
func New() *Builder {
	return &Builder{
		config: defaultConfig(),
		logger: zerolog.Nop(),
		now:    time.Now,
	}
}

// WithConfig replaces the config. Zero fields keep their defaults.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cfg.withDefaults()
	return b
}

// WithGateway sets the identity provider adapter. Required.
func (b *Builder) WithGateway(gw AuthGateway) *Builder {
	b.gateway = gw
	return b
}

// WithProfiles sets the profile repository. Optional: without one, every
// role lookup resolves to RoleMember and finalize is unavailable.
func (b *Builder) WithProfiles(repo ProfileRepository) *Builder {
	b.profiles = repo
	return b
}

// WithSessionStore sets the durable session store. Defaults to an
// in-memory store, which does not survive process restarts.
func (b *Builder) WithSessionStore(store session.Store) *Builder {
	b.store = store
	return b
}

// WithLifecycleMonitor wires foreground/background events into the refresh
// scheduler. Without one the scheduler treats the process as always
// foregrounded.
func (b *Builder) WithLifecycleMonitor(m LifecycleMonitor) *Builder {
	b.monitor = m
	return b
}

// WithLogger sets the structured logger. Defaults to zerolog.Nop.
func (b *Builder) WithLogger(logger zerolog.Logger) *Builder {
	b.logger = logger
	return b
}

// WithClock injects the time source, primarily for tests.
func (b *Builder) WithClock(now func() time.Time) *Builder {
	if now != nil {
		b.now = now
	}
	return b
}

// Build validates the wiring, derives the initial state from the session
// store, and starts the refresh scheduler.
//
// A persisted non-expired session yields StateAuthenticated with the role
// resolved through the profile repository (lookup failure degrades to
// RoleMember). An expired record is cleared and the client starts signed
// out. A builder can build at most one client.
func (b *Builder) Build(ctx context.Context) (*Client, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}
	if b.gateway == nil {
		return nil, ErrGatewayRequired
	}
	b.built = true

	store := b.store
	if store == nil {
		store = session.NewMemStore()
	}

	c := &Client{
		config:    b.config.withDefaults(),
		gateway:   b.gateway,
		profiles:  b.profiles,
		store:     store,
		lifecycle: b.monitor,
		logger:    b.logger,
		now:       b.now,
		state:     StateSignedOut,
		role:      RoleMember,
		subs:      make(map[uint64]func(Snapshot)),
		kick:      make(chan struct{}, 1),
		stop:      make(chan struct{}),
	}

	c.restore(ctx)

	c.wg.Add(1)
	go c.runScheduler()

	return c, nil
}

// restore derives the initial state from the persisted record.
func (c *Client) restore(ctx context.Context) {
	sess, err := c.store.Load(ctx)
	switch {
	case errors.Is(err, session.ErrNotFound):
		return
	case err != nil:
		// An unreadable store is treated as a fresh install; the record is
		// left in place in case the backend recovers.
		c.logger.Warn().Err(err).Msg("session restore failed")
		return
	}

	now := c.now()
	if !sess.Valid(now) {
		if err := c.store.Clear(ctx); err != nil {
			c.logger.Warn().Err(err).Msg("clearing expired session failed")
		}
		return
	}

	c.state = StateAuthenticated
	c.session = sess
	c.role = c.resolveRole(ctx, sess.UserID)
	c.logger.Info().
		Str("user_id", sess.UserID).
		Time("expires_at", sess.ExpiresAt).
		Msg("session restored")
}
