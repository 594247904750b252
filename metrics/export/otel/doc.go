// Package otel provides OpenTelemetry metric bindings for sessiond counters
// and histograms.
//
// [NewOTelExporter] registers Int64ObservableCounter instruments for each
// sessiond metric and Int64ObservableGauge per histogram bucket. A single
// callback reads the manager's metrics snapshot on each collection cycle.
//
// # What this package must NOT do
//
//   - Own the OTel MeterProvider. Callers supply the Meter.
//   - Mutate manager state.
package otel
