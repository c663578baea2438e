// Package profilepg implements authkit.ProfileRepository on PostgreSQL for
// deployments whose profile rows live in a relational store the client can
// reach directly.
package profilepg

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/partsforcheap/authkit"
)

// Schema creates the profile table. Deployments with their own migration
// tooling can ignore it.
const Schema = `
CREATE TABLE IF NOT EXISTS user_profiles (
	user_id      TEXT PRIMARY KEY,
	display_name TEXT NOT NULL DEFAULT '',
	phone        TEXT NOT NULL DEFAULT '',
	email        TEXT NOT NULL DEFAULT '',
	is_admin     BOOLEAN NOT NULL DEFAULT FALSE
);
`

// Store implements authkit.ProfileRepository using pgx.
type Store struct {
	db     *pgxpool.Pool
	logger zerolog.Logger
}

var _ authkit.ProfileRepository = (*Store)(nil)

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the structured logger. Defaults to zerolog.Nop.
func WithLogger(logger zerolog.Logger) Option {
	return func(s *Store) { s.logger = logger }
}

// New constructs a PostgreSQL-backed profile store.
func New(db *pgxpool.Pool, opts ...Option) *Store {
	s := &Store{db: db, logger: zerolog.Nop()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// UpsertIfAbsent inserts the profile row unless one already exists for the
// user id. The conflict arm deliberately does nothing: a retried finalize
// must never clobber fields set by other means.
func (s *Store) UpsertIfAbsent(ctx context.Context, p authkit.Profile) error {
	tag, err := s.db.Exec(ctx, `
		INSERT INTO user_profiles (user_id, display_name, phone, email, is_admin)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (user_id) DO NOTHING
	`, p.UserID, p.DisplayName, p.Phone, p.Email, p.Admin)
	if err != nil {
		return fmt.Errorf("%w: %v", authkit.ErrProfileUnavailable, err)
	}
	if tag.RowsAffected() == 0 {
		s.logger.Debug().Str("user_id", p.UserID).Msg("profile row already exists; left untouched")
	}
	return nil
}

// GetRole looks up the role flag. A missing row is reported as
// authkit.ErrProfileNotFound with the member role, never as fatal.
func (s *Store) GetRole(ctx context.Context, userID string) (authkit.Role, error) {
	var isAdmin bool
	err := s.db.QueryRow(ctx, `
		SELECT is_admin FROM user_profiles WHERE user_id = $1
	`, userID).Scan(&isAdmin)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return authkit.RoleMember, authkit.ErrProfileNotFound
		}
		return authkit.RoleMember, fmt.Errorf("%w: %v", authkit.ErrProfileUnavailable, err)
	}
	if isAdmin {
		return authkit.RoleAdmin, nil
	}
	return authkit.RoleMember, nil
}
