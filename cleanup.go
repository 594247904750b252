package sessiond

import (
	"context"
	"strconv"
	"time"
)

// startCleanup launches the periodic expiry sweep. The goroutine exits when
// the manager closes.
func (m *Manager) startCleanup(interval time.Duration) {
	m.lifecycleWG.Add(1)
	go func() {
		defer m.lifecycleWG.Done()

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-m.done:
				return
			case <-ticker.C:
				m.CleanupExpiredSessions(context.Background())
			}
		}
	}()
}

// CleanupExpiredSessions removes sessions whose refresh window has passed
// from both tiers and returns the number removed. The sweep never fails:
// tier errors are logged inside the store and contribute zero.
func (m *Manager) CleanupExpiredSessions(ctx context.Context) int {
	if m.closed.Load() {
		return 0
	}

	removed, _ := m.tiers.PurgeExpired(ctx, m.now())
	if removed > 0 {
		for i := 0; i < removed; i++ {
			m.metrics.Inc(MetricSessionsCleaned)
		}
		m.emitAudit(ctx, auditEventCleanupSweep, true, "", "", "", nil, func() map[string]string {
			return map[string]string{"removed": strconv.Itoa(removed)}
		})
	}
	return removed
}
