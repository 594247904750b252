package sessiond

import (
	"context"
	"time"

	internalaudit "github.com/sentracore/sessiond/internal/audit"
)

const (
	auditEventSessionCreated        = "session_created"
	auditEventSessionCreateFailed   = "session_create_failed"
	auditEventSessionValidateFailed = "session_validate_failed"
	auditEventSessionRefreshed      = "session_refreshed"
	auditEventRefreshRejected       = "session_refresh_rejected"
	auditEventDeviceRejected        = "device_validation_rejected"
	auditEventSessionTerminated     = "session_terminated"
	auditEventUserSessionsRevoked   = "user_sessions_terminated"
	auditEventSessionEvicted        = "session_evicted"
	auditEventCleanupSweep          = "session_cleanup"
	auditEventSuspiciousActivity    = "suspicious_activity"
	auditEventRiskFallback          = "risk_assessor_fallback"
	auditEventRiskDenyRecommended   = "risk_access_denied_recommended"
)

// emitAudit forwards a structured event to the dispatcher. metaFn is lazy so
// metadata maps are only built when auditing is enabled.
func (m *Manager) emitAudit(
	ctx context.Context,
	eventType string,
	success bool,
	userID, sessionID, ip string,
	err error,
	metaFn func() map[string]string,
) {
	if m == nil || m.audit == nil {
		return
	}

	event := internalaudit.Event{
		Timestamp: time.Now(),
		EventType: eventType,
		UserID:    userID,
		SessionID: sessionID,
		IP:        ip,
		Success:   success,
	}
	if err != nil {
		event.Error = err.Error()
	}
	if metaFn != nil {
		event.Metadata = metaFn()
	}

	m.audit.Emit(ctx, event)
}

// emitAlert raises an observational suspicious-activity event. Alerts never
// cancel or invalidate the session that triggered them.
func (m *Manager) emitAlert(
	ctx context.Context,
	alertType, severity, userID, sessionID string,
	recommendations []string,
	meta map[string]string,
) {
	if m == nil || m.audit == nil {
		return
	}
	if meta == nil {
		meta = map[string]string{}
	}
	meta["alert_type"] = alertType
	for i, r := range recommendations {
		meta["recommendation_"+string(rune('a'+i))] = r
	}

	m.audit.Emit(ctx, internalaudit.Event{
		Timestamp: time.Now(),
		EventType: auditEventSuspiciousActivity,
		Severity:  severity,
		UserID:    userID,
		SessionID: sessionID,
		Success:   true,
		Metadata:  meta,
	})
}

// AuditDropped reports events dropped by the dispatcher under backpressure.
func (m *Manager) AuditDropped() uint64 {
	if m == nil || m.audit == nil {
		return 0
	}
	return m.audit.Dropped()
}
