package sessiond

import (
	"context"
	"testing"
	"time"
)

// drainAlerts collects suspicious-activity events from a closed manager's
// sink, keyed by alert type.
func drainAlerts(sink *ChannelSink) map[string]int {
	alerts := map[string]int{}
	for {
		select {
		case e := <-sink.Events():
			if e.EventType == auditEventSuspiciousActivity {
				alerts[e.Metadata["alert_type"]]++
			}
		default:
			return alerts
		}
	}
}

func TestDetectorFlagsRapidCreation(t *testing.T) {
	sink := NewChannelSink(64)
	fx := newManagerFixture(t, DefaultConfig(), WithAuditSink(sink))
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		if _, err := fx.manager.CreateSession(ctx, testCreateInput("u-1", "fp-1")); err != nil {
			t.Fatalf("CreateSession %d failed: %v", i, err)
		}
		fx.clock.Advance(time.Second)
	}
	fx.manager.Close()

	alerts := drainAlerts(sink)
	if alerts[alertRapidSessions] == 0 {
		t.Fatalf("expected a rapid-creation alert, got %v", alerts)
	}
	if alerts[alertDeviceChange] != 0 {
		t.Fatalf("same-device creations must not raise device-change alerts, got %v", alerts)
	}
	if fx.manager.metrics.Value(MetricSuspiciousAlert) == 0 {
		t.Fatal("expected suspicious alert metric to be counted")
	}
}

func TestDetectorFlagsDeviceChange(t *testing.T) {
	sink := NewChannelSink(64)
	fx := newManagerFixture(t, DefaultConfig(), WithAuditSink(sink))
	ctx := context.Background()

	if _, err := fx.manager.CreateSession(ctx, testCreateInput("u-1", "fp-1")); err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}
	// Outside the rapid window, inside the device-change window.
	fx.clock.Advance(2 * time.Minute)
	s, err := fx.manager.CreateSession(ctx, testCreateInput("u-1", "fp-2"))
	if err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}
	fx.manager.Close()

	alerts := drainAlerts(sink)
	if alerts[alertDeviceChange] != 1 {
		t.Fatalf("expected exactly one device-change alert, got %v", alerts)
	}
	if alerts[alertRapidSessions] != 0 {
		t.Fatalf("two spaced creations must not look rapid, got %v", alerts)
	}

	// Alerts are observational; the flagged session stays usable.
	if !fx.durable.has(s.ID) {
		t.Fatal("alerted session must not be terminated")
	}
}

func TestDetectorQuietOutsideWindows(t *testing.T) {
	sink := NewChannelSink(64)
	fx := newManagerFixture(t, DefaultConfig(), WithAuditSink(sink))
	ctx := context.Background()

	if _, err := fx.manager.CreateSession(ctx, testCreateInput("u-1", "fp-1")); err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}
	fx.clock.Advance(10 * time.Minute)
	if _, err := fx.manager.CreateSession(ctx, testCreateInput("u-1", "fp-2")); err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}
	fx.manager.Close()

	if alerts := drainAlerts(sink); len(alerts) != 0 {
		t.Fatalf("expected no alerts for spaced activity, got %v", alerts)
	}
}

func TestDetectorDisabled(t *testing.T) {
	sink := NewChannelSink(64)
	cfg := DefaultConfig()
	cfg.Detector.Enabled = false
	fx := newManagerFixture(t, cfg, WithAuditSink(sink))
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		if _, err := fx.manager.CreateSession(ctx, testCreateInput("u-1", "fp-1")); err != nil {
			t.Fatalf("CreateSession %d failed: %v", i, err)
		}
	}
	fx.manager.Close()

	if alerts := drainAlerts(sink); len(alerts) != 0 {
		t.Fatalf("disabled detector must stay silent, got %v", alerts)
	}
}
