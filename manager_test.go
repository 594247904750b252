package sessiond

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/sentracore/sessiond/session"
	"github.com/sentracore/sessiond/store"
)

// memTier is an in-memory store.Tier with injectable failures, used to
// drive the manager without real Redis or Postgres.
type memTier struct {
	mu       sync.Mutex
	sessions map[string]*session.Session

	gets, saves int

	failSave error
	failGet  error
	failPing error
}

func newMemTier() *memTier {
	return &memTier{sessions: map[string]*session.Session{}}
}

func (f *memTier) Get(_ context.Context, sessionID string) (*session.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gets++
	if f.failGet != nil {
		return nil, f.failGet
	}
	s, ok := f.sessions[sessionID]
	if !ok {
		return nil, store.ErrNotFound
	}
	return s.Clone(), nil
}

func (f *memTier) Save(_ context.Context, s *session.Session) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saves++
	if f.failSave != nil {
		return f.failSave
	}
	f.sessions[s.ID] = s.Clone()
	return nil
}

func (f *memTier) Delete(_ context.Context, sessionID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, existed := f.sessions[sessionID]
	delete(f.sessions, sessionID)
	return existed, nil
}

func (f *memTier) ListByUser(_ context.Context, userID string) ([]*session.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*session.Session
	for _, s := range f.sessions {
		if s.UserID == userID {
			out = append(out, s.Clone())
		}
	}
	return out, nil
}

func (f *memTier) DeleteByUser(_ context.Context, userID, excludeID string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	count := 0
	for id, s := range f.sessions {
		if s.UserID == userID && id != excludeID {
			delete(f.sessions, id)
			count++
		}
	}
	return count, nil
}

func (f *memTier) PurgeExpired(_ context.Context, now time.Time) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	count := 0
	for id, s := range f.sessions {
		if !now.Before(s.RefreshExpiresAt) {
			delete(f.sessions, id)
			count++
		}
	}
	return count, nil
}

func (f *memTier) Ping(_ context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.failPing
}

func (f *memTier) len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sessions)
}

func (f *memTier) has(sessionID string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.sessions[sessionID]
	return ok
}

// stubAssessor returns a fixed assessment or error and records the last
// context it was called with.
type stubAssessor struct {
	mu         sync.Mutex
	assessment *RiskAssessment
	err        error
	lastCtx    SecurityContext
	calls      int
}

func (a *stubAssessor) AssessRisk(_ context.Context, sc SecurityContext) (*RiskAssessment, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.calls++
	a.lastCtx = sc
	if a.err != nil {
		return nil, a.err
	}
	if a.assessment == nil {
		return &RiskAssessment{OverallScore: 20, Level: RiskLow, AllowAccess: true}, nil
	}
	copied := *a.assessment
	return &copied, nil
}

// testClock is a manually advanced time source.
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
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

type managerFixture struct {
	manager  *Manager
	fast     *memTier
	durable  *memTier
	clock    *testClock
	assessor *stubAssessor
}

func newManagerFixture(t *testing.T, cfg Config, opts ...Option) *managerFixture {
	t.Helper()

	fx := &managerFixture{
		fast:     newMemTier(),
		durable:  newMemTier(),
		clock:    newTestClock(),
		assessor: &stubAssessor{},
	}
	// Background loops interfere with step-by-step clock control.
	cfg.Cleanup.Enabled = false

	opts = append([]Option{WithClock(fx.clock.Now)}, opts...)
	m, err := NewManager(cfg, fx.fast, fx.durable, fx.assessor, opts...)
	if err != nil {
		t.Fatalf("NewManager failed: %v", err)
	}
	fx.manager = m
	t.Cleanup(m.Close)
	return fx
}

func testCreateInput(userID, fingerprint string) CreateSessionInput {
	return CreateSessionInput{
		UserID:    userID,
		Device:    DeviceInfo{Fingerprint: fingerprint, UserAgent: "Mozilla/5.0 test"},
		IPAddress: "203.0.113.10",
		UserAgent: "Mozilla/5.0 (X11; Linux x86_64) test",
	}
}

func TestCreateSessionImmediatelyValidatable(t *testing.T) {
	fx := newManagerFixture(t, DefaultConfig())
	ctx := context.Background()

	s, err := fx.manager.CreateSession(ctx, testCreateInput("u-1", "fp-1"))
	if err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}
	if s.ID == "" || s.AccessToken == "" || s.RefreshToken == "" {
		t.Fatal("expected populated id and tokens")
	}
	if !s.Active {
		t.Fatal("new session must be active")
	}
	if !s.RefreshExpiresAt.After(s.ExpiresAt) {
		t.Fatal("refresh expiry must exceed access expiry")
	}

	res, err := fx.manager.ValidateSession(ctx, s.ID)
	if err != nil {
		t.Fatalf("ValidateSession failed: %v", err)
	}
	if !res.Valid {
		t.Fatalf("expected valid session, got reason %q", res.Reason)
	}
	if res.Session.AccessToken != s.AccessToken {
		t.Fatal("validation returned a different session")
	}
}

func TestCreateSessionRejectsBadInput(t *testing.T) {
	fx := newManagerFixture(t, DefaultConfig())
	ctx := context.Background()

	if _, err := fx.manager.CreateSession(ctx, CreateSessionInput{
		Device: DeviceInfo{Fingerprint: "fp-1"},
	}); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for missing user id, got %v", err)
	}

	if _, err := fx.manager.CreateSession(ctx, CreateSessionInput{
		UserID: "u-1",
		Device: DeviceInfo{UserAgent: "x"},
	}); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for missing fingerprint, got %v", err)
	}
}

func TestCreateSessionRiskScoreOverride(t *testing.T) {
	fx := newManagerFixture(t, DefaultConfig())
	fx.assessor.assessment = &RiskAssessment{OverallScore: 10, Level: RiskLow, AllowAccess: true}

	override := 85
	input := testCreateInput("u-1", "fp-1")
	input.RiskScoreOverride = &override

	s, err := fx.manager.CreateSession(context.Background(), input)
	if err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}
	if s.RiskScore != 85 {
		t.Fatalf("expected override risk score 85, got %d", s.RiskScore)
	}
}

func TestCreateSessionAssessorFailureFallsBack(t *testing.T) {
	fx := newManagerFixture(t, DefaultConfig())
	fx.assessor.err = errors.New("collaborator down")

	s, err := fx.manager.CreateSession(context.Background(), testCreateInput("u-1", "fp-1"))
	if err != nil {
		t.Fatalf("CreateSession must not fail on assessor outage: %v", err)
	}
	if s.RiskScore != 50 {
		t.Fatalf("expected conservative fallback score 50, got %d", s.RiskScore)
	}
	if got := fx.manager.metrics.Value(MetricRiskFallback); got != 1 {
		t.Fatalf("expected 1 risk fallback, got %d", got)
	}
}

func TestCreateSessionDurableFailureAborts(t *testing.T) {
	fx := newManagerFixture(t, DefaultConfig())
	fx.durable.failSave = errors.New("db down")

	_, err := fx.manager.CreateSession(context.Background(), testCreateInput("u-1", "fp-1"))
	if !errors.Is(err, ErrSessionCreationFailed) {
		t.Fatalf("expected ErrSessionCreationFailed, got %v", err)
	}
	if fx.fast.len() != 0 {
		t.Fatal("fast tier must not hold a session the durable tier rejected")
	}
}

func TestValidateSessionNotFound(t *testing.T) {
	fx := newManagerFixture(t, DefaultConfig())

	res, err := fx.manager.ValidateSession(context.Background(), "missing")
	if err != nil {
		t.Fatalf("ValidateSession failed: %v", err)
	}
	if res.Valid || res.Reason != ReasonNotFound {
		t.Fatalf("expected not-found result, got %+v", res)
	}
}

func TestValidateExpiredSessionIsTerminated(t *testing.T) {
	fx := newManagerFixture(t, DefaultConfig())
	ctx := context.Background()

	s, err := fx.manager.CreateSession(ctx, testCreateInput("u-1", "fp-1"))
	if err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}

	fx.clock.Advance(61 * time.Minute)

	res, err := fx.manager.ValidateSession(ctx, s.ID)
	if err != nil {
		t.Fatalf("ValidateSession failed: %v", err)
	}
	if res.Valid || res.Reason != ReasonExpired {
		t.Fatalf("expected expired result, got %+v", res)
	}
	if fx.fast.has(s.ID) || fx.durable.has(s.ID) {
		t.Fatal("expired session must be removed from both tiers")
	}

	res, err = fx.manager.ValidateSession(ctx, s.ID)
	if err != nil {
		t.Fatalf("ValidateSession failed: %v", err)
	}
	if res.Reason != ReasonNotFound {
		t.Fatalf("second validation should report not-found, got %q", res.Reason)
	}
}

func TestValidateFlagsRefreshSoon(t *testing.T) {
	fx := newManagerFixture(t, DefaultConfig())
	ctx := context.Background()

	s, err := fx.manager.CreateSession(ctx, testCreateInput("u-1", "fp-1"))
	if err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}

	fx.clock.Advance(30 * time.Minute)
	res, err := fx.manager.ValidateSession(ctx, s.ID)
	if err != nil || !res.Valid {
		t.Fatalf("expected valid mid-lifetime session: %v %+v", err, res)
	}
	if res.RequiresRefresh {
		t.Fatal("refresh must not be flagged 30 minutes before expiry")
	}

	fx.clock.Advance(26 * time.Minute) // 56 minutes in, 4 before expiry
	res, err = fx.manager.ValidateSession(ctx, s.ID)
	if err != nil || !res.Valid {
		t.Fatalf("expected valid session near expiry: %v %+v", err, res)
	}
	if !res.RequiresRefresh {
		t.Fatal("refresh must be flagged inside the refresh-soon window")
	}
}

func TestValidateUpdatesLastActivity(t *testing.T) {
	fx := newManagerFixture(t, DefaultConfig())
	ctx := context.Background()

	s, err := fx.manager.CreateSession(ctx, testCreateInput("u-1", "fp-1"))
	if err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}

	fx.clock.Advance(10 * time.Minute)
	res, err := fx.manager.ValidateSession(ctx, s.ID)
	if err != nil || !res.Valid {
		t.Fatalf("expected valid session: %v %+v", err, res)
	}
	if got := res.Session.LastActivity; !got.Equal(fx.clock.Now()) {
		t.Fatalf("last activity not advanced: %v vs %v", got, fx.clock.Now())
	}
}

func TestValidateActivityWriteFailureTolerated(t *testing.T) {
	fx := newManagerFixture(t, DefaultConfig())
	ctx := context.Background()

	s, err := fx.manager.CreateSession(ctx, testCreateInput("u-1", "fp-1"))
	if err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}

	fx.durable.failSave = errors.New("db down")
	res, err := fx.manager.ValidateSession(ctx, s.ID)
	if err != nil {
		t.Fatalf("ValidateSession failed: %v", err)
	}
	if !res.Valid {
		t.Fatal("activity persistence failure must not invalidate the session")
	}
}

func TestValidateBackfillsFastTier(t *testing.T) {
	fx := newManagerFixture(t, DefaultConfig())
	ctx := context.Background()

	s, err := fx.manager.CreateSession(ctx, testCreateInput("u-1", "fp-1"))
	if err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}

	// Simulate fast-tier loss (restart, eviction).
	if _, err := fx.fast.Delete(ctx, s.ID); err != nil {
		t.Fatalf("fast delete failed: %v", err)
	}

	res, err := fx.manager.ValidateSession(ctx, s.ID)
	if err != nil || !res.Valid {
		t.Fatalf("expected durable fallback to validate: %v %+v", err, res)
	}
	if !fx.fast.has(s.ID) {
		t.Fatal("durable hit must backfill the fast tier")
	}
}

func TestUpdateSessionActivity(t *testing.T) {
	fx := newManagerFixture(t, DefaultConfig())
	ctx := context.Background()

	s, err := fx.manager.CreateSession(ctx, testCreateInput("u-1", "fp-1"))
	if err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}

	fx.clock.Advance(5 * time.Minute)
	if err := fx.manager.UpdateSessionActivity(ctx, s.ID); err != nil {
		t.Fatalf("UpdateSessionActivity failed: %v", err)
	}

	stored, err := fx.durable.Get(ctx, s.ID)
	if err != nil {
		t.Fatalf("durable get failed: %v", err)
	}
	if !stored.LastActivity.Equal(fx.clock.Now()) {
		t.Fatalf("last activity not persisted: %v", stored.LastActivity)
	}

	if err := fx.manager.UpdateSessionActivity(ctx, "missing"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unknown session, got %v", err)
	}
}

func TestManagerClosedRejectsOperations(t *testing.T) {
	fx := newManagerFixture(t, DefaultConfig())
	fx.manager.Close()
	ctx := context.Background()

	if _, err := fx.manager.CreateSession(ctx, testCreateInput("u-1", "fp-1")); !errors.Is(err, ErrManagerClosed) {
		t.Fatalf("expected ErrManagerClosed, got %v", err)
	}
	if _, err := fx.manager.ValidateSession(ctx, "x"); !errors.Is(err, ErrManagerClosed) {
		t.Fatalf("expected ErrManagerClosed, got %v", err)
	}
	if err := fx.manager.TerminateSession(ctx, "x"); !errors.Is(err, ErrManagerClosed) {
		t.Fatalf("expected ErrManagerClosed, got %v", err)
	}
	// Close is idempotent.
	fx.manager.Close()
}

func TestManagerPing(t *testing.T) {
	fx := newManagerFixture(t, DefaultConfig())
	ctx := context.Background()

	if err := fx.manager.Ping(ctx); err != nil {
		t.Fatalf("Ping failed: %v", err)
	}

	fx.fast.failPing = errors.New("redis gone")
	if err := fx.manager.Ping(ctx); err == nil {
		t.Fatal("expected ping failure when a tier is down")
	}
}
