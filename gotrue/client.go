// Package gotrue adapts a GoTrue-style identity provider (the API surface
// behind Supabase auth) to the authkit.AuthGateway contract.
//
// The adapter is stateless: it translates calls into the provider's REST
// endpoints and maps its failure responses onto authkit's sentinel errors.
// All session state stays in the authkit Client.
package gotrue

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"

	"github.com/partsforcheap/authkit"
	"github.com/partsforcheap/authkit/session"
)

const defaultTimeout = 15 * time.Second

// Client implements authkit.AuthGateway over HTTP.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
	logger  zerolog.Logger
	now     func() time.Time
}

var _ authkit.AuthGateway = (*Client)(nil)

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client (15s timeout).
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithLogger sets the structured logger. Defaults to zerolog.Nop.
func WithLogger(logger zerolog.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

// WithClock injects the time source, primarily for tests.
func WithClock(now func() time.Time) Option {
	return func(c *Client) {
		if now != nil {
			c.now = now
		}
	}
}

// New returns an adapter for the provider at baseURL (e.g.
// "https://<project>.supabase.co/auth/v1"). The apiKey is sent with every
// request; per-user authorization uses the session's access token.
func New(baseURL, apiKey string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		http:    &http.Client{Timeout: defaultTimeout},
		logger:  zerolog.Nop(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// tokenResponse is the provider's session payload shape.
type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
	RefreshToken string `json:"refresh_token"`
	User         struct {
		ID    string `json:"id"`
		Phone string `json:"phone"`
		Email string `json:"email"`
	} `json:"user"`
}

// errorResponse covers the provider's error body variants.
type errorResponse struct {
	Error       string `json:"error"`
	Description string `json:"error_description"`
	Msg         string `json:"msg"`
	Code        string `json:"error_code"`
}

func (e errorResponse) message() string {
	switch {
	case e.Description != "":
		return e.Description
	case e.Msg != "":
		return e.Msg
	case e.Error != "":
		return e.Error
	default:
		return "unknown provider error"
	}
}

// SignInWithPassword implements authkit.AuthGateway. The identity may be
// an email address or a phone number; the request field is chosen by
// shape.
func (c *Client) SignInWithPassword(ctx context.Context, identity, password string) (*session.Session, error) {
	body := map[string]string{"password": password}
	if strings.Contains(identity, "@") {
		body["email"] = identity
	} else {
		body["phone"] = identity
	}

	var tr tokenResponse
	if err := c.do(ctx, http.MethodPost, "/token?grant_type=password", "", body, &tr, mapSignInError); err != nil {
		return nil, err
	}
	return c.toSession(tr)
}

// StartOTP implements authkit.AuthGateway.
func (c *Client) StartOTP(ctx context.Context, contact string) error {
	body := map[string]any{"create_user": true}
	if strings.Contains(contact, "@") {
		body["email"] = contact
	} else {
		body["phone"] = contact
	}
	return c.do(ctx, http.MethodPost, "/otp", "", body, nil, mapOTPStartError)
}

// VerifyOTP implements authkit.AuthGateway.
func (c *Client) VerifyOTP(ctx context.Context, contact, code string) (*session.Session, error) {
	body := map[string]string{"token": code}
	if strings.Contains(contact, "@") {
		body["email"] = contact
		body["type"] = "email"
	} else {
		body["phone"] = contact
		body["type"] = "sms"
	}

	var tr tokenResponse
	if err := c.do(ctx, http.MethodPost, "/verify", "", body, &tr, mapVerifyError); err != nil {
		return nil, err
	}
	return c.toSession(tr)
}

// Refresh implements authkit.AuthGateway.
func (c *Client) Refresh(ctx context.Context, refreshToken string) (*session.Session, error) {
	body := map[string]string{"refresh_token": refreshToken}

	var tr tokenResponse
	if err := c.do(ctx, http.MethodPost, "/token?grant_type=refresh_token", "", body, &tr, mapRefreshError); err != nil {
		return nil, err
	}
	return c.toSession(tr)
}

// SignOut implements authkit.AuthGateway. Errors are reported but the
// caller treats the revoke as best-effort.
func (c *Client) SignOut(ctx context.Context, accessToken string) error {
	return c.do(ctx, http.MethodPost, "/logout", accessToken, nil, nil, mapGenericError)
}

// CurrentSession implements authkit.AuthGateway. A rejected token yields
// nil without error: the provider simply holds no session for it.
func (c *Client) CurrentSession(ctx context.Context, accessToken string) (*session.Session, error) {
	var user struct {
		ID    string `json:"id"`
		Phone string `json:"phone"`
		Email string `json:"email"`
	}
	err := c.do(ctx, http.MethodGet, "/user", accessToken, nil, &user, mapGenericError)
	if err != nil {
		if isStatusError(err, http.StatusUnauthorized) || isStatusError(err, http.StatusForbidden) {
			return nil, nil
		}
		return nil, err
	}

	sess := &session.Session{
		UserID:      user.ID,
		AccessToken: accessToken,
		Identity:    session.Identity{Phone: user.Phone, Email: user.Email},
	}
	if exp, sub, ok := claimsFromToken(accessToken); ok {
		sess.ExpiresAt = exp
		if sess.UserID == "" {
			sess.UserID = sub
		}
	}
	return sess, nil
}

// UpdatePassword implements authkit.AuthGateway.
func (c *Client) UpdatePassword(ctx context.Context, accessToken, newPassword string) error {
	body := map[string]string{"password": newPassword}
	return c.do(ctx, http.MethodPut, "/user", accessToken, body, nil, mapGenericError)
}

// toSession converts a token payload, falling back to the access token's
// JWT claims for expiry and user id when the payload omits them. The
// claims are parsed unverified: this client trusts its own TLS connection
// to the provider, and never uses the claims for authorization.
func (c *Client) toSession(tr tokenResponse) (*session.Session, error) {
	if tr.AccessToken == "" || tr.RefreshToken == "" {
		return nil, fmt.Errorf("%w: provider returned incomplete token payload", authkit.ErrGatewayUnavailable)
	}

	sess := &session.Session{
		UserID:       tr.User.ID,
		AccessToken:  tr.AccessToken,
		RefreshToken: tr.RefreshToken,
		Identity:     session.Identity{Phone: tr.User.Phone, Email: tr.User.Email},
	}
	if tr.ExpiresIn > 0 {
		sess.ExpiresAt = c.now().Add(time.Duration(tr.ExpiresIn) * time.Second)
	}

	if sess.ExpiresAt.IsZero() || sess.UserID == "" {
		exp, sub, ok := claimsFromToken(tr.AccessToken)
		if !ok {
			return nil, fmt.Errorf("%w: cannot derive session expiry", authkit.ErrGatewayUnavailable)
		}
		if sess.ExpiresAt.IsZero() {
			sess.ExpiresAt = exp
		}
		if sess.UserID == "" {
			sess.UserID = sub
		}
	}
	if sess.UserID == "" {
		return nil, fmt.Errorf("%w: provider returned no user id", authkit.ErrGatewayUnavailable)
	}
	return sess, nil
}

func claimsFromToken(accessToken string) (expiresAt time.Time, subject string, ok bool) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(accessToken, claims); err != nil {
		return time.Time{}, "", false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}, "", false
	}
	sub, _ := claims.GetSubject()
	return exp.Time, sub, true
}

// statusError carries the HTTP status through the mapped sentinel chain.
type statusError struct {
	status int
	err    error
}

func (e *statusError) Error() string { return fmt.Sprintf("http %d: %v", e.status, e.err) }
func (e *statusError) Unwrap() error { return e.err }

func isStatusError(err error, status int) bool {
	var se *statusError
	return errors.As(err, &se) && se.status == status
}

type errorMapper func(status int, body errorResponse) error

func (c *Client) do(ctx context.Context, method, path, accessToken string, body any, out any, mapErr errorMapper) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("%w: %v", authkit.ErrGatewayUnavailable, err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("%w: %v", authkit.ErrGatewayUnavailable, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("apikey", c.apiKey)
	}
	if accessToken != "" {
		req.Header.Set("Authorization", "Bearer "+accessToken)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", authkit.ErrGatewayUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		if out == nil {
			return nil
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("%w: decode response: %v", authkit.ErrGatewayUnavailable, err)
		}
		return nil
	}

	var er errorResponse
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	_ = json.Unmarshal(data, &er)

	c.logger.Debug().
		Int("status", resp.StatusCode).
		Str("path", path).
		Str("provider_error", er.message()).
		Msg("provider request failed")

	return &statusError{status: resp.StatusCode, err: mapErr(resp.StatusCode, er)}
}

func mapSignInError(status int, body errorResponse) error {
	switch {
	case status == http.StatusTooManyRequests:
		return fmt.Errorf("%w: %s", authkit.ErrRateLimited, body.message())
	case status == http.StatusBadRequest || status == http.StatusUnauthorized:
		return fmt.Errorf("%w: %s", authkit.ErrInvalidCredentials, body.message())
	case status >= 500:
		return fmt.Errorf("%w: %s", authkit.ErrGatewayUnavailable, body.message())
	default:
		return fmt.Errorf("%w: %s", authkit.ErrInvalidCredentials, body.message())
	}
}

func mapOTPStartError(status int, body errorResponse) error {
	switch {
	case status == http.StatusTooManyRequests:
		return fmt.Errorf("%w: %s", authkit.ErrRateLimited, body.message())
	case status == http.StatusBadRequest || status == http.StatusUnprocessableEntity:
		return fmt.Errorf("%w: %s", authkit.ErrInvalidContact, body.message())
	case status >= 500:
		return fmt.Errorf("%w: %s", authkit.ErrGatewayUnavailable, body.message())
	default:
		return fmt.Errorf("%w: %s", authkit.ErrInvalidContact, body.message())
	}
}

func mapVerifyError(status int, body errorResponse) error {
	switch {
	case status == http.StatusTooManyRequests:
		return fmt.Errorf("%w: %s", authkit.ErrRateLimited, body.message())
	case body.Code == "otp_expired" || strings.Contains(strings.ToLower(body.message()), "expired"):
		return fmt.Errorf("%w: %s", authkit.ErrCodeExpired, body.message())
	case status == http.StatusBadRequest || status == http.StatusUnauthorized || status == http.StatusForbidden:
		return fmt.Errorf("%w: %s", authkit.ErrInvalidCode, body.message())
	case status >= 500:
		return fmt.Errorf("%w: %s", authkit.ErrGatewayUnavailable, body.message())
	default:
		return fmt.Errorf("%w: %s", authkit.ErrInvalidCode, body.message())
	}
}

func mapRefreshError(status int, body errorResponse) error {
	switch {
	case status == http.StatusTooManyRequests:
		return fmt.Errorf("%w: %s", authkit.ErrRateLimited, body.message())
	case status >= 500:
		return fmt.Errorf("%w: %s", authkit.ErrGatewayUnavailable, body.message())
	default:
		return fmt.Errorf("%w: %s", authkit.ErrRefreshRejected, body.message())
	}
}

func mapGenericError(_ int, body errorResponse) error {
	return fmt.Errorf("%w: %s", authkit.ErrGatewayUnavailable, body.message())
}
