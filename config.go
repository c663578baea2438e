package authkit

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config carries the tunable policy knobs. The zero value is usable: Build
// fills every zero field from the defaults below.
type Config struct {
	// OTPMaxAttempts is the verify budget per issued challenge. A resend
	// resets the budget.
	OTPMaxAttempts int `env:"AUTHKIT_OTP_MAX_ATTEMPTS" envDefault:"3"`

	// RefreshSafetyMargin is how close to expiry a session may get before
	// the scheduler refreshes it, including immediately on foreground.
	RefreshSafetyMargin time.Duration `env:"AUTHKIT_REFRESH_SAFETY_MARGIN" envDefault:"1m"`

	// RefreshRetryBackoff is the wait before re-attempting a refresh after
	// a single failure, while the session sits in StateRefreshFailed.
	RefreshRetryBackoff time.Duration `env:"AUTHKIT_REFRESH_RETRY_BACKOFF" envDefault:"30s"`

	// SchedulerMaxWait caps how long the scheduler sleeps between checks
	// so clock drift and missed kicks self-correct.
	SchedulerMaxWait time.Duration `env:"AUTHKIT_SCHEDULER_MAX_WAIT" envDefault:"5m"`

	// GatewayTimeout bounds scheduler-driven gateway calls. Without it a
	// hung provider would hold the in-flight slot and reject user actions
	// until sign-out. User-initiated calls carry the host's own context.
	GatewayTimeout time.Duration `env:"AUTHKIT_GATEWAY_TIMEOUT" envDefault:"15s"`

	// PasswordMinLength is the minimum accepted password length. The
	// composed character-class rule (upper, lower, digit, symbol) always
	// applies on top of it.
	PasswordMinLength int `env:"AUTHKIT_PASSWORD_MIN_LENGTH" envDefault:"8"`
}

func defaultConfig() Config {
	return Config{
		OTPMaxAttempts:      3,
		RefreshSafetyMargin: time.Minute,
		RefreshRetryBackoff: 30 * time.Second,
		SchedulerMaxWait:    5 * time.Minute,
		GatewayTimeout:      15 * time.Second,
		PasswordMinLength:   8,
	}
}

// withDefaults returns the config with zero fields replaced by defaults.
func (c Config) withDefaults() Config {
	d := defaultConfig()
	if c.OTPMaxAttempts <= 0 {
		c.OTPMaxAttempts = d.OTPMaxAttempts
	}
	if c.RefreshSafetyMargin <= 0 {
		c.RefreshSafetyMargin = d.RefreshSafetyMargin
	}
	if c.RefreshRetryBackoff <= 0 {
		c.RefreshRetryBackoff = d.RefreshRetryBackoff
	}
	if c.SchedulerMaxWait <= 0 {
		c.SchedulerMaxWait = d.SchedulerMaxWait
	}
	if c.GatewayTimeout <= 0 {
		c.GatewayTimeout = d.GatewayTimeout
	}
	if c.PasswordMinLength <= 0 {
		c.PasswordMinLength = d.PasswordMinLength
	}
	return c
}

// ConfigFromEnv parses Config from AUTHKIT_* environment variables, applying
// the documented defaults for unset ones.
func ConfigFromEnv() (Config, error) {
	var c Config
	if err := env.Parse(&c); err != nil {
		return Config{}, fmt.Errorf("parse config from env: %w", err)
	}
	return c.withDefaults(), nil
}
