// Package sessiond is a session and credential lifecycle core: opaque bearer
// tokens, dual-tier storage, concurrent-session admission, and risk-informed
// refresh for already-authenticated identities.
//
// The package is designed for concurrent server workloads: [Manager] methods
// are safe to call from multiple goroutines after construction through
// [NewManager].
//
// # Architecture boundaries
//
// sessiond is the public surface. It exposes [Manager], [Config], the result
// types (ValidationResult, RefreshResult, SessionAnalytics), and the
// [RiskAssessor] collaborator interface. Session entity rules live in the
// session package; the dual-tier read/write protocol lives in the store
// package; audit dispatch lives under internal/ and is re-exported here as
// type aliases.
//
// # What this package must NOT do
//
//   - Verify credentials. Callers authenticate first; sessiond manages what
//     happens after.
//   - Issue self-describing tokens. Access and refresh tokens are opaque
//     random secrets with no embedded claims.
//   - Log or serialize bearer tokens. Diagnostic paths go through
//     session.Redacted.
//
// # Performance contract
//
// ValidateSession is the hot path. A warm session costs one fast-tier
// round-trip plus the activity write; the durable tier is consulted only on
// a fast-tier miss, and the miss is healed by backfill.
package sessiond
