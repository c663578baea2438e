package authkit

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/partsforcheap/authkit/session"
)

// testClock is a settable time source so no test ever sleeps for expiry.
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// fakeGateway is a hand fake for AuthGateway: per-call hooks plus counters.
// Nil hooks succeed with a generic session.
type fakeGateway struct {
	mu sync.Mutex

	signInFn         func(identity, password string) (*session.Session, error)
	startOTPFn       func(contact string) error
	verifyFn         func(contact, code string) (*session.Session, error)
	refreshFn        func(refreshToken string) (*session.Session, error)
	refreshCtxFn     func(ctx context.Context, refreshToken string) (*session.Session, error)
	signOutFn        func(accessToken string) error
	updatePasswordFn func(accessToken, password string) error

	signInCalls         int
	startOTPCalls       int
	verifyCalls         int
	refreshCalls        int
	signOutCalls        int
	updatePasswordCalls int

	clock *testClock
}

func newFakeGateway(clock *testClock) *fakeGateway {
	return &fakeGateway{clock: clock}
}

func (g *fakeGateway) defaultSession(userID string) *session.Session {
	return &session.Session{
		UserID:       userID,
		AccessToken:  "access-" + userID,
		RefreshToken: "refresh-" + userID,
		ExpiresAt:    g.clock.Now().Add(time.Hour),
	}
}

func (g *fakeGateway) SignInWithPassword(_ context.Context, identity, password string) (*session.Session, error) {
	g.mu.Lock()
	g.signInCalls++
	fn := g.signInFn
	g.mu.Unlock()
	if fn != nil {
		return fn(identity, password)
	}
	return g.defaultSession("user-1"), nil
}

func (g *fakeGateway) StartOTP(_ context.Context, contact string) error {
	g.mu.Lock()
	g.startOTPCalls++
	fn := g.startOTPFn
	g.mu.Unlock()
	if fn != nil {
		return fn(contact)
	}
	return nil
}

func (g *fakeGateway) VerifyOTP(_ context.Context, contact, code string) (*session.Session, error) {
	g.mu.Lock()
	g.verifyCalls++
	fn := g.verifyFn
	g.mu.Unlock()
	if fn != nil {
		return fn(contact, code)
	}
	return g.defaultSession("user-1"), nil
}

func (g *fakeGateway) Refresh(ctx context.Context, refreshToken string) (*session.Session, error) {
	g.mu.Lock()
	g.refreshCalls++
	fn := g.refreshFn
	ctxFn := g.refreshCtxFn
	g.mu.Unlock()
	if ctxFn != nil {
		return ctxFn(ctx, refreshToken)
	}
	if fn != nil {
		return fn(refreshToken)
	}
	return g.defaultSession("user-1"), nil
}

func (g *fakeGateway) SignOut(_ context.Context, accessToken string) error {
	g.mu.Lock()
	g.signOutCalls++
	fn := g.signOutFn
	g.mu.Unlock()
	if fn != nil {
		return fn(accessToken)
	}
	return nil
}

func (g *fakeGateway) CurrentSession(_ context.Context, accessToken string) (*session.Session, error) {
	return nil, nil
}

func (g *fakeGateway) UpdatePassword(_ context.Context, accessToken, password string) error {
	g.mu.Lock()
	g.updatePasswordCalls++
	fn := g.updatePasswordFn
	g.mu.Unlock()
	if fn != nil {
		return fn(accessToken, password)
	}
	return nil
}

func (g *fakeGateway) calls() (signIn, startOTP, verify, refresh, signOut int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.signInCalls, g.startOTPCalls, g.verifyCalls, g.refreshCalls, g.signOutCalls
}

// fakeProfiles is a hand fake for ProfileRepository backed by a map, with
// an injectable upsert failure for partial-failure tests.
type fakeProfiles struct {
	mu        sync.Mutex
	rows      map[string]Profile
	upsertErr error
	roleErr   error
	upserts   int
}

func newFakeProfiles() *fakeProfiles {
	return &fakeProfiles{rows: make(map[string]Profile)}
}

func (p *fakeProfiles) UpsertIfAbsent(_ context.Context, profile Profile) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.upserts++
	if p.upsertErr != nil {
		return p.upsertErr
	}
	if _, exists := p.rows[profile.UserID]; !exists {
		p.rows[profile.UserID] = profile
	}
	return nil
}

func (p *fakeProfiles) GetRole(_ context.Context, userID string) (Role, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.roleErr != nil {
		return RoleMember, p.roleErr
	}
	row, exists := p.rows[userID]
	if !exists {
		return RoleMember, ErrProfileNotFound
	}
	if row.Admin {
		return RoleAdmin, nil
	}
	return RoleMember, nil
}

func (p *fakeProfiles) rowCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.rows)
}

func (p *fakeProfiles) setUpsertErr(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.upsertErr = err
}

// newTestClient builds a client on the fakes with an in-memory store.
func newTestClient(t *testing.T, gw *fakeGateway, profiles *fakeProfiles, clock *testClock, opts ...func(*Builder)) (*Client, *session.MemStore) {
	t.Helper()

	store := session.NewMemStore()
	b := New().
		WithGateway(gw).
		WithSessionStore(store).
		WithClock(clock.Now)
	if profiles != nil {
		b.WithProfiles(profiles)
	}
	for _, opt := range opts {
		opt(b)
	}

	c, err := b.Build(context.Background())
	if err != nil {
		t.Fatalf("build client: %v", err)
	}
	t.Cleanup(c.Close)
	return c, store
}
