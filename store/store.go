// Package store provides the dual-tier session storage protocol: a fast
// volatile tier (Redis) in front of a durable authoritative tier
// (Postgres), joined by an explicit read-through/backfill orchestrator.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/sentracore/sessiond/session"
)

// ErrNotFound is returned by a tier when the session id has no record.
var ErrNotFound = errors.New("session not found")

// ErrTierUnavailable wraps tier infrastructure failures (connection loss,
// protocol errors). The payload error is preserved in the message.
var ErrTierUnavailable = errors.New("storage tier unavailable")

// Tier is the generic key-value contract both storage tiers implement.
// Implementations own physical placement only; they never mutate session
// semantics.
type Tier interface {
	// Get returns the session for id, or ErrNotFound.
	Get(ctx context.Context, sessionID string) (*session.Session, error)
	// Save persists the session, replacing any previous record. Fast tiers
	// bound the record's lifetime by the session's refresh expiry.
	Save(ctx context.Context, s *session.Session) error
	// Delete removes the session. Deleting an absent id is not an error;
	// the bool reports whether a record existed.
	Delete(ctx context.Context, sessionID string) (bool, error)
	// ListByUser returns all sessions indexed under the user id.
	ListByUser(ctx context.Context, userID string) ([]*session.Session, error)
	// DeleteByUser removes every session for the user except excludeID
	// (empty means none excluded) and returns the number removed.
	DeleteByUser(ctx context.Context, userID, excludeID string) (int, error)
	// PurgeExpired removes sessions whose refresh window is past now and
	// returns the number removed.
	PurgeExpired(ctx context.Context, now time.Time) (int, error)
}

// Pinger is implemented by tiers that support a liveness probe.
type Pinger interface {
	Ping(ctx context.Context) error
}
