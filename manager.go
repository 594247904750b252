package sessiond

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-playground/validator/v10"

	internalaudit "github.com/sentracore/sessiond/internal/audit"
	"github.com/sentracore/sessiond/session"
	"github.com/sentracore/sessiond/store"
)

const lockStripes = 64

// stripedLocks serializes same-user admission on this instance so that
// concurrent creations observe each other's writes. Striping bounds memory
// regardless of user cardinality; unrelated users rarely contend.
type stripedLocks struct {
	stripes [lockStripes]sync.Mutex
}

func (l *stripedLocks) forKey(key string) *sync.Mutex {
	h := fnv.New32a()
	h.Write([]byte(key))
	return &l.stripes[h.Sum32()%lockStripes]
}

// Manager is the session lifecycle core. It owns the dual-tier store
// protocol, concurrent-session admission, token rotation, the
// suspicious-activity detector, and the periodic expiry sweep.
//
// All methods are safe for concurrent use.
type Manager struct {
	cfg      Config
	tiers    *store.Tiered
	assessor RiskAssessor
	tokens   TokenSource
	validate *validator.Validate
	audit    *internalaudit.Dispatcher
	metrics  *Metrics

	now       func() time.Time
	userLocks stripedLocks

	done        chan struct{}
	lifecycleWG sync.WaitGroup
	detectorWG  sync.WaitGroup
	closed      atomic.Bool
	closeOnce   sync.Once
}

// Option customizes a Manager at construction time.
type Option func(*Manager)

// WithClock replaces the manager's time source. Intended for tests.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// WithTokenSource replaces the default UUID/crypto-rand token source.
func WithTokenSource(ts TokenSource) Option {
	return func(m *Manager) { m.tokens = ts }
}

// WithAuditSink directs audit events to the given sink instead of
// discarding them.
func WithAuditSink(sink AuditSink) Option {
	return func(m *Manager) {
		m.audit = internalaudit.NewDispatcher(internalaudit.Config{
			Enabled:    m.cfg.Audit.Enabled,
			BufferSize: m.cfg.Audit.BufferSize,
			DropIfFull: m.cfg.Audit.DropIfFull,
		}, sink)
	}
}

// NewManager validates the configuration and assembles the lifecycle core
// around the given storage tiers and risk collaborator. A nil assessor is
// permitted and behaves as a collaborator that always fails, which degrades
// every assessment to the conservative fallback.
func NewManager(cfg Config, fast, durable store.Tier, assessor RiskAssessor, opts ...Option) (*Manager, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if fast == nil || durable == nil {
		return nil, fmt.Errorf("%w: both storage tiers are required", ErrInvalidConfig)
	}

	m := &Manager{
		cfg:      cfg,
		tiers:    store.NewTiered(fast, durable),
		assessor: assessor,
		tokens:   standardTokenSource{},
		validate: validator.New(),
		metrics:  NewMetrics(cfg.Metrics),
		now:      time.Now,
		done:     make(chan struct{}),
	}

	for _, opt := range opts {
		opt(m)
	}

	if m.audit == nil && cfg.Audit.Enabled {
		m.audit = internalaudit.NewDispatcher(internalaudit.Config{
			Enabled:    cfg.Audit.Enabled,
			BufferSize: cfg.Audit.BufferSize,
			DropIfFull: cfg.Audit.DropIfFull,
		}, internalaudit.NoOpSink{})
	}

	if cfg.Cleanup.Enabled {
		m.startCleanup(cfg.Cleanup.Interval)
	}

	return m, nil
}

// CreateSession admits and persists a session for an already-authenticated
// identity. The flow: validate input, enforce per-user and per-device
// limits (evicting victims as configured), assess risk, mint tokens,
// persist durable-first, then notify the detector asynchronously.
func (m *Manager) CreateSession(ctx context.Context, input CreateSessionInput) (*session.Session, error) {
	if m.closed.Load() {
		return nil, ErrManagerClosed
	}
	if err := m.validate.Struct(input); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	if input.Device.Fingerprint == "" {
		return nil, fmt.Errorf("%w: device fingerprint is required", ErrInvalidInput)
	}

	// Same-user admissions are serialized so the limit check and the write
	// behave as one step on this instance.
	lock := m.userLocks.forKey(input.UserID)
	lock.Lock()
	defer lock.Unlock()

	existing, err := m.tiers.ListByUser(ctx, input.UserID)
	if err != nil {
		m.metrics.Inc(MetricSessionCreateFailed)
		return nil, fmt.Errorf("%w: listing user sessions: %v", ErrSessionCreationFailed, err)
	}

	surviving, err := m.enforceLimits(ctx, input, existing)
	if err != nil {
		m.metrics.Inc(MetricSessionCreateFailed)
		return nil, err
	}

	now := m.now()
	assessment := m.assessRisk(ctx, SecurityContext{
		UserID:             input.UserID,
		DeviceFingerprint:  input.Device.Fingerprint,
		IPAddress:          input.IPAddress,
		UserAgent:          input.UserAgent,
		Timestamp:          now,
		AccountAge:         input.AccountAge,
		RecentFailedLogins: input.RecentFailedLogins,
	}, fallbackCreateScore)

	score := assessment.OverallScore
	if input.RiskScoreOverride != nil {
		score = clampScore(*input.RiskScoreOverride)
	}

	id, accessToken, refreshToken, err := m.mintTokens()
	if err != nil {
		m.metrics.Inc(MetricSessionCreateFailed)
		return nil, fmt.Errorf("%w: %v", ErrSessionCreationFailed, err)
	}

	s, err := session.New(session.Session{
		ID:               id,
		UserID:           input.UserID,
		AccessToken:      accessToken,
		RefreshToken:     refreshToken,
		CreatedAt:        now,
		LastActivity:     now,
		ExpiresAt:        now.Add(m.cfg.Session.AccessTTL),
		RefreshExpiresAt: now.Add(m.cfg.Session.RefreshTTL),
		Fingerprint:      input.Device.Fingerprint,
		UserAgent:        input.UserAgent,
		IPAddress:        input.IPAddress,
		Device:           input.Device,
		RiskScore:        score,
		Active:           true,
		Metadata:         input.Metadata,
	})
	if err != nil {
		m.metrics.Inc(MetricSessionCreateFailed)
		return nil, fmt.Errorf("%w: %v", ErrSessionCreationFailed, err)
	}

	if err := m.tiers.Save(ctx, s); err != nil {
		m.metrics.Inc(MetricSessionCreateFailed)
		m.emitAudit(ctx, auditEventSessionCreateFailed, false, input.UserID, id, input.IPAddress, err, nil)
		return nil, fmt.Errorf("%w: %v", ErrSessionCreationFailed, err)
	}

	m.metrics.Inc(MetricSessionCreated)
	m.emitAudit(ctx, auditEventSessionCreated, true, s.UserID, s.ID, s.IPAddress, nil, func() map[string]string {
		return map[string]string{
			"fingerprint": s.Fingerprint,
			"risk_score":  strconv.Itoa(s.RiskScore),
		}
	})

	// The assessment can recommend denial; admission policy belongs to the
	// authentication flow above this core, so the session is created and
	// the recommendation is surfaced on the audit stream.
	if !assessment.AllowAccess {
		m.emitAudit(ctx, auditEventRiskDenyRecommended, true, s.UserID, s.ID, s.IPAddress, nil, func() map[string]string {
			return map[string]string{"risk_score": strconv.Itoa(assessment.OverallScore)}
		})
	}

	if m.cfg.Detector.Enabled {
		m.detectorWG.Add(1)
		go m.detect(s.Clone(), surviving)
	}

	return s, nil
}

// enforceLimits applies the per-user and per-device caps against the user's
// existing sessions, terminating victims chosen by the configured strategy.
// It returns the sessions that survived admission.
func (m *Manager) enforceLimits(ctx context.Context, input CreateSessionInput, existing []*session.Session) ([]*session.Session, error) {
	surviving := existing

	if limit := m.cfg.Limits.MaxSessionsPerUser; limit > 0 {
		victims := selectEvictions(surviving, limit, m.cfg.Limits.UserEvictionStrategy)
		var err error
		surviving, err = m.evict(ctx, surviving, victims, "user_limit")
		if err != nil {
			return nil, err
		}
	}

	if limit := m.cfg.Limits.MaxSessionsPerDevice; limit > 0 {
		onDevice := filterByFingerprint(surviving, input.Device.Fingerprint)
		// Device-level eviction is always oldest-first.
		victims := selectEvictions(onDevice, limit, EvictOldestFirst)
		var err error
		surviving, err = m.evict(ctx, surviving, victims, "device_limit")
		if err != nil {
			return nil, err
		}
	}

	return surviving, nil
}

func (m *Manager) evict(ctx context.Context, population, victims []*session.Session, cause string) ([]*session.Session, error) {
	if len(victims) == 0 {
		return population, nil
	}

	evicted := make(map[string]struct{}, len(victims))
	for _, v := range victims {
		if _, err := m.tiers.Delete(ctx, v.ID); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrEvictionFailed, err)
		}
		evicted[v.ID] = struct{}{}
		m.metrics.Inc(MetricSessionEvicted)
		m.emitAudit(ctx, auditEventSessionEvicted, true, v.UserID, v.ID, v.IPAddress, nil, func() map[string]string {
			return map[string]string{"cause": cause, "strategy": string(m.cfg.Limits.UserEvictionStrategy)}
		})
	}

	surviving := population[:0:0]
	for _, s := range population {
		if _, gone := evicted[s.ID]; !gone {
			surviving = append(surviving, s)
		}
	}
	return surviving, nil
}

// ValidateSession checks that a session exists and is usable right now.
// Not-found, expired, and inactive are expected outcomes reported through
// the result; only infrastructure failures return an error. An expired or
// inactive session encountered here is terminated in both tiers.
func (m *Manager) ValidateSession(ctx context.Context, sessionID string) (*ValidationResult, error) {
	if m.closed.Load() {
		return nil, ErrManagerClosed
	}

	start := time.Now()
	defer func() {
		m.metrics.Observe(MetricValidateLatency, time.Since(start))
	}()

	if sessionID == "" {
		m.metrics.Inc(MetricValidateFailure)
		return &ValidationResult{Reason: ReasonNotFound}, nil
	}

	s, err := m.tiers.Get(ctx, sessionID)
	if errors.Is(err, store.ErrNotFound) {
		m.metrics.Inc(MetricValidateFailure)
		return &ValidationResult{Reason: ReasonNotFound}, nil
	}
	if err != nil {
		return nil, err
	}

	now := m.now()
	if !s.ValidForUse(now) {
		reason := ReasonInactive
		if s.Active && s.Expired(now) {
			reason = ReasonExpired
		}
		// Dead sessions found on the hot path are removed immediately
		// instead of waiting for the sweep.
		if _, delErr := m.tiers.Delete(ctx, s.ID); delErr != nil {
			m.emitAudit(ctx, auditEventSessionValidateFailed, false, s.UserID, s.ID, s.IPAddress, delErr, nil)
		}
		m.metrics.Inc(MetricValidateFailure)
		m.emitAudit(ctx, auditEventSessionValidateFailed, false, s.UserID, s.ID, s.IPAddress, nil, func() map[string]string {
			return map[string]string{"reason": reason}
		})
		return &ValidationResult{Reason: reason}, nil
	}

	s.Touch(now)
	if err := m.tiers.Save(ctx, s); err != nil {
		// Activity tracking is best-effort; a persistence failure must not
		// invalidate an otherwise usable session.
		m.emitAudit(ctx, auditEventSessionValidateFailed, false, s.UserID, s.ID, s.IPAddress, err, func() map[string]string {
			return map[string]string{"stage": "activity_update"}
		})
	}

	m.metrics.Inc(MetricValidateSuccess)
	return &ValidationResult{
		Valid:           true,
		Session:         s,
		RequiresRefresh: s.ExpiresWithin(now, m.cfg.Session.RefreshSoonWindow),
		Security:        securityStatus(s),
	}, nil
}

// RefreshSession rotates a session's tokens and extends its lifetime. The
// flow: validate, confirm the refresh window, optionally enforce device
// consistency (a mismatch terminates the session), re-assess risk with
// synthetic change factors, mint fresh tokens, persist.
func (m *Manager) RefreshSession(ctx context.Context, sessionID string, input RefreshInput) (*RefreshResult, error) {
	if m.closed.Load() {
		return nil, ErrManagerClosed
	}

	vres, err := m.ValidateSession(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSessionRefreshFailed, err)
	}
	if !vres.Valid {
		m.metrics.Inc(MetricRefreshFailure)
		return &RefreshResult{Reason: vres.Reason}, nil
	}
	s := vres.Session

	now := m.now()
	if !s.Refreshable(now) {
		m.metrics.Inc(MetricRefreshFailure)
		m.emitAudit(ctx, auditEventRefreshRejected, false, s.UserID, s.ID, input.IPAddress, nil, func() map[string]string {
			return map[string]string{"reason": ReasonNotRefreshable}
		})
		return &RefreshResult{Reason: ReasonNotRefreshable}, nil
	}

	if input.ValidateDevice && !m.deviceConsistent(s, input) {
		// A failed device check is treated as possible token theft: the
		// session dies, it is not merely rejected.
		if _, delErr := m.tiers.Delete(ctx, s.ID); delErr != nil {
			m.emitAudit(ctx, auditEventDeviceRejected, false, s.UserID, s.ID, input.IPAddress, delErr, nil)
		}
		m.metrics.Inc(MetricDeviceRejected)
		m.metrics.Inc(MetricRefreshFailure)
		m.emitAudit(ctx, auditEventDeviceRejected, false, s.UserID, s.ID, input.IPAddress, nil, func() map[string]string {
			return map[string]string{
				"stored_fingerprint":    s.Fingerprint,
				"presented_fingerprint": input.Device.Fingerprint,
			}
		})
		return &RefreshResult{Reason: ReasonDeviceMismatch}, nil
	}

	assessment := m.assessRisk(ctx, SecurityContext{
		UserID:            s.UserID,
		SessionID:         s.ID,
		DeviceFingerprint: input.Device.Fingerprint,
		IPAddress:         input.IPAddress,
		UserAgent:         input.UserAgent,
		Timestamp:         now,
	}, fallbackRefreshScore)
	m.applyChangeFactors(assessment, s, input)

	accessToken, err := m.tokens.NewAccessToken()
	if err != nil {
		m.metrics.Inc(MetricRefreshFailure)
		return nil, fmt.Errorf("%w: %v", ErrSessionRefreshFailed, err)
	}
	refreshToken, err := m.tokens.NewRefreshToken()
	if err != nil {
		m.metrics.Inc(MetricRefreshFailure)
		return nil, fmt.Errorf("%w: %v", ErrSessionRefreshFailed, err)
	}

	s.AccessToken = accessToken
	s.RefreshToken = refreshToken
	s.ExpiresAt = now.Add(m.cfg.Session.AccessTTL)
	s.RefreshExpiresAt = now.Add(m.cfg.Session.RefreshTTL)
	s.RiskScore = assessment.OverallScore
	s.Touch(now)
	if input.IPAddress != "" {
		s.IPAddress = input.IPAddress
	}
	if input.UserAgent != "" {
		s.UserAgent = input.UserAgent
	}
	if input.Device.Fingerprint != "" {
		s.Fingerprint = input.Device.Fingerprint
		s.Device = input.Device
	}

	if err := m.tiers.Save(ctx, s); err != nil {
		m.metrics.Inc(MetricRefreshFailure)
		m.emitAudit(ctx, auditEventRefreshRejected, false, s.UserID, s.ID, input.IPAddress, err, nil)
		return nil, fmt.Errorf("%w: %v", ErrSessionRefreshFailed, err)
	}

	m.metrics.Inc(MetricRefreshSuccess)
	m.emitAudit(ctx, auditEventSessionRefreshed, true, s.UserID, s.ID, s.IPAddress, nil, func() map[string]string {
		return map[string]string{"risk_score": strconv.Itoa(s.RiskScore)}
	})

	return &RefreshResult{
		Success:    true,
		Session:    s,
		Tokens:     &TokenPair{AccessToken: accessToken, RefreshToken: refreshToken},
		Assessment: assessment,
	}, nil
}

// applyChangeFactors adds synthetic risk factors when the presented context
// differs from the stored session binding, then re-clamps and re-buckets
// the overall score.
func (m *Manager) applyChangeFactors(a *RiskAssessment, s *session.Session, input RefreshInput) {
	score := a.OverallScore

	if input.IPAddress != "" && input.IPAddress != s.IPAddress {
		score += ipChangePenalty
		a.Factors = append(a.Factors, RiskFactor{
			Type:        "ip_change",
			Score:       ipChangePenalty,
			Description: "IP address changed since session creation",
		})
	}
	if input.Device.Fingerprint != "" && input.Device.Fingerprint != s.Fingerprint {
		score += deviceChangePenalty
		a.Factors = append(a.Factors, RiskFactor{
			Type:        "device_change",
			Score:       deviceChangePenalty,
			Description: "device fingerprint changed since session creation",
		})
	}

	a.OverallScore = clampScore(score)
	a.Level = RiskLevelForScore(a.OverallScore)
}

// assessRisk calls the collaborator and degrades to a conservative default
// assessment when the collaborator is missing or fails.
func (m *Manager) assessRisk(ctx context.Context, sc SecurityContext, fallbackScore int) *RiskAssessment {
	if m.assessor == nil {
		m.metrics.Inc(MetricRiskFallback)
		return fallbackAssessment(fallbackScore)
	}

	assessment, err := m.assessor.AssessRisk(ctx, sc)
	if err != nil || assessment == nil {
		m.metrics.Inc(MetricRiskFallback)
		m.emitAudit(ctx, auditEventRiskFallback, false, sc.UserID, sc.SessionID, sc.IPAddress, err, nil)
		return fallbackAssessment(fallbackScore)
	}

	assessment.OverallScore = clampScore(assessment.OverallScore)
	if assessment.Level == "" {
		assessment.Level = RiskLevelForScore(assessment.OverallScore)
	}
	return assessment
}

func (m *Manager) mintTokens() (id, access, refresh string, err error) {
	if id, err = m.tokens.NewSessionID(); err != nil {
		return "", "", "", err
	}
	if access, err = m.tokens.NewAccessToken(); err != nil {
		return "", "", "", err
	}
	if refresh, err = m.tokens.NewRefreshToken(); err != nil {
		return "", "", "", err
	}
	return id, access, refresh, nil
}

// TerminateSession removes a session from both tiers. Terminating an
// unknown session is a no-op, not an error.
func (m *Manager) TerminateSession(ctx context.Context, sessionID string) error {
	if m.closed.Load() {
		return ErrManagerClosed
	}

	existed, err := m.tiers.Delete(ctx, sessionID)
	if err != nil {
		return err
	}
	if existed {
		m.metrics.Inc(MetricSessionTerminated)
		m.emitAudit(ctx, auditEventSessionTerminated, true, "", sessionID, "", nil, nil)
	}
	return nil
}

// GetUserSessions lists the user's live sessions.
func (m *Manager) GetUserSessions(ctx context.Context, userID string) ([]*session.Session, error) {
	if m.closed.Load() {
		return nil, ErrManagerClosed
	}
	return m.tiers.ListByUser(ctx, userID)
}

// TerminateUserSessions removes all of a user's sessions, optionally
// sparing one (the caller's current session during a "log out everywhere
// else" flow). It returns the number removed.
func (m *Manager) TerminateUserSessions(ctx context.Context, userID, excludeSessionID string) (int, error) {
	if m.closed.Load() {
		return 0, ErrManagerClosed
	}

	count, err := m.tiers.DeleteByUser(ctx, userID, excludeSessionID)
	if err != nil {
		return 0, err
	}
	for i := 0; i < count; i++ {
		m.metrics.Inc(MetricSessionTerminated)
	}
	m.emitAudit(ctx, auditEventUserSessionsRevoked, true, userID, excludeSessionID, "", nil, func() map[string]string {
		return map[string]string{"terminated": strconv.Itoa(count)}
	})
	return count, nil
}

// UpdateSessionActivity bumps the session's last-activity timestamp without
// the full validation flow. Returns store.ErrNotFound for unknown sessions.
func (m *Manager) UpdateSessionActivity(ctx context.Context, sessionID string) error {
	if m.closed.Load() {
		return ErrManagerClosed
	}

	s, err := m.tiers.Get(ctx, sessionID)
	if err != nil {
		return err
	}
	s.Touch(m.now())
	return m.tiers.Save(ctx, s)
}

// Ping probes both storage tiers.
func (m *Manager) Ping(ctx context.Context) error {
	if m.closed.Load() {
		return ErrManagerClosed
	}
	return m.tiers.Ping(ctx)
}

// MetricsSnapshot returns a point-in-time copy of the manager's metrics.
func (m *Manager) MetricsSnapshot() MetricsSnapshot {
	return m.metrics.Snapshot()
}

// Close stops the cleanup loop, waits for in-flight detector work, and
// drains the audit dispatcher. Sessions in storage are untouched; they
// remain valid for other instances sharing the tiers. Close is idempotent.
func (m *Manager) Close() {
	m.closeOnce.Do(func() {
		m.closed.Store(true)
		close(m.done)
		m.lifecycleWG.Wait()
		m.detectorWG.Wait()
		m.audit.Close()
	})
}
