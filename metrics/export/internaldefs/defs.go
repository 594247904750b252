package internaldefs

import (
	sessiond "github.com/sentracore/sessiond"
)

// CounterDef binds a sessiond counter to its exported name.
type CounterDef struct {
	ID   sessiond.MetricID
	Name string
	Help string
}

// HistogramDef binds a sessiond histogram to its exported name.
type HistogramDef struct {
	ID   sessiond.MetricID
	Name string
	Help string
}

// CounterDefs lists every exported counter.
var CounterDefs = []CounterDef{
	{ID: sessiond.MetricSessionCreated, Name: "sessiond_session_created_total", Help: "Created sessions."},
	{ID: sessiond.MetricSessionCreateFailed, Name: "sessiond_session_create_failed_total", Help: "Failed session creations."},
	{ID: sessiond.MetricValidateSuccess, Name: "sessiond_validate_success_total", Help: "Validations that returned a usable session."},
	{ID: sessiond.MetricValidateFailure, Name: "sessiond_validate_failure_total", Help: "Validations that returned not-found, expired, or inactive."},
	{ID: sessiond.MetricRefreshSuccess, Name: "sessiond_refresh_success_total", Help: "Successful refresh operations."},
	{ID: sessiond.MetricRefreshFailure, Name: "sessiond_refresh_failure_total", Help: "Rejected or failed refresh operations."},
	{ID: sessiond.MetricDeviceRejected, Name: "sessiond_device_rejected_total", Help: "Refreshes terminated by the device-consistency check."},
	{ID: sessiond.MetricSessionTerminated, Name: "sessiond_session_terminated_total", Help: "Explicit session terminations."},
	{ID: sessiond.MetricSessionEvicted, Name: "sessiond_session_evicted_total", Help: "Policy-driven session evictions."},
	{ID: sessiond.MetricSessionsCleaned, Name: "sessiond_sessions_cleaned_total", Help: "Sessions removed by the periodic expiry sweep."},
	{ID: sessiond.MetricRiskFallback, Name: "sessiond_risk_fallback_total", Help: "Risk collaborator failures degraded to the conservative default."},
	{ID: sessiond.MetricSuspiciousAlert, Name: "sessiond_suspicious_alert_total", Help: "Suspicious-activity alerts raised."},
}

// HistogramDefs lists every exported histogram.
var HistogramDefs = []HistogramDef{
	{ID: sessiond.MetricValidateLatency, Name: "sessiond_validate_latency_ms", Help: "Validate latency histogram."},
}

// HistogramBounds are the upper bucket bounds in milliseconds.
var HistogramBounds = []string{
	"5",
	"10",
	"25",
	"50",
	"100",
	"250",
	"500",
	"+Inf",
}

// HistogramBoundSuffix are the bounds in metric-name-safe form.
var HistogramBoundSuffix = []string{
	"5",
	"10",
	"25",
	"50",
	"100",
	"250",
	"500",
	"inf",
}

// NormalizeBuckets widens a raw bucket slice into the fixed 8-bucket layout.
func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

// CumulativeBuckets converts per-bucket counts into cumulative counts.
func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}
