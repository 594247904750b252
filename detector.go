package sessiond

import (
	"context"
	"strconv"

	"github.com/sentracore/sessiond/session"
)

// Suspicious-activity alert types. Alerts are observational signals for the
// audit stream; they never cancel or invalidate the session that raised them.
const (
	alertRapidSessions = "rapid_session_creation"
	alertDeviceChange  = "device_change"
)

// detect inspects a freshly created session against the user's surviving
// prior sessions. It runs on its own goroutine after creation has already
// succeeded and been reported to the caller.
func (m *Manager) detect(created *session.Session, prior []*session.Session) {
	defer m.detectorWG.Done()

	ctx := context.Background()
	cfg := m.cfg.Detector
	now := created.CreatedAt

	recent := 1 // the session just created
	for _, p := range prior {
		if now.Sub(p.CreatedAt) <= cfg.RapidWindow {
			recent++
		}
	}
	if recent > cfg.RapidThreshold {
		m.metrics.Inc(MetricSuspiciousAlert)
		m.emitAlert(ctx, alertRapidSessions, "high", created.UserID, created.ID,
			[]string{"require additional verification", "review recent authentication activity"},
			map[string]string{
				"sessions_in_window": strconv.Itoa(recent),
				"window":             cfg.RapidWindow.String(),
			})
	}

	for _, p := range prior {
		if p.Fingerprint == created.Fingerprint {
			continue
		}
		if now.Sub(p.CreatedAt) <= cfg.DeviceChangeWindow {
			m.metrics.Inc(MetricSuspiciousAlert)
			m.emitAlert(ctx, alertDeviceChange, "medium", created.UserID, created.ID,
				[]string{"confirm new device with the account owner"},
				map[string]string{
					"previous_fingerprint": p.Fingerprint,
					"new_fingerprint":      created.Fingerprint,
				})
			break
		}
	}
}
