package store

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/sentracore/sessiond/session"
)

// Tiered coordinates the fast and durable tiers. The durable tier is
// authoritative; the fast tier is a read accelerator that may lag or be
// empty. The protocol:
//
//   - Reads try the fast tier first. On a miss the durable tier is read
//     and, on a hit, the fast tier is backfilled before returning, so an
//     immediate second read of the same key is fast-tier-satisfiable.
//   - Writes go durable-first. A durable failure aborts the operation; a
//     fast-tier failure is logged and tolerated because a later read
//     self-heals via backfill.
//
// Backfill is an explicit step rather than a hidden cache side effect so
// tests can assert it happened.
type Tiered struct {
	fast    Tier
	durable Tier
}

// NewTiered builds the dual-tier orchestrator.
func NewTiered(fast, durable Tier) *Tiered {
	return &Tiered{fast: fast, durable: durable}
}

// Get reads fast-first and falls back to the durable tier, backfilling the
// fast tier on a durable hit. Returns ErrNotFound when both tiers miss.
func (t *Tiered) Get(ctx context.Context, sessionID string) (*session.Session, error) {
	s, err := t.fast.Get(ctx, sessionID)
	if err == nil {
		return s, nil
	}
	if !errors.Is(err, ErrNotFound) {
		// Fast tier down still leaves the durable tier authoritative.
		log.Print("sessiond: fast tier read failed, falling back to durable")
	}

	s, err = t.durable.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	if backErr := t.fast.Save(ctx, s); backErr != nil {
		log.Print("sessiond: fast tier backfill failed")
	}
	return s, nil
}

// Save writes the durable tier first, then the fast tier. Only a durable
// failure is fatal.
func (t *Tiered) Save(ctx context.Context, s *session.Session) error {
	if err := t.durable.Save(ctx, s); err != nil {
		return err
	}
	if err := t.fast.Save(ctx, s); err != nil {
		log.Print("sessiond: fast tier write failed after durable commit")
	}
	return nil
}

// Delete removes the session from both tiers. Absence in either tier is not
// an error. A durable failure propagates; a fast failure is logged.
func (t *Tiered) Delete(ctx context.Context, sessionID string) (bool, error) {
	existed, err := t.durable.Delete(ctx, sessionID)
	if err != nil {
		return false, err
	}
	fastExisted, fastErr := t.fast.Delete(ctx, sessionID)
	if fastErr != nil {
		log.Print("sessiond: fast tier delete failed")
	}
	return existed || fastExisted, nil
}

// ListByUser reads the fast tier's per-user index and falls back to the
// durable tier when the fast tier has nothing. No backfill is performed on
// a pure list operation, since no specific key was looked up.
func (t *Tiered) ListByUser(ctx context.Context, userID string) ([]*session.Session, error) {
	sessions, err := t.fast.ListByUser(ctx, userID)
	if err == nil && len(sessions) > 0 {
		return sessions, nil
	}
	if err != nil {
		log.Print("sessiond: fast tier list failed, falling back to durable")
	}
	return t.durable.ListByUser(ctx, userID)
}

// DeleteByUser removes the user's sessions from both tiers and returns the
// larger of the two counts. The tiers may race; cross-tier count
// reconciliation is not guaranteed and the max is a documented weak spot
// of the protocol, preserved deliberately.
func (t *Tiered) DeleteByUser(ctx context.Context, userID, excludeID string) (int, error) {
	durableCount, err := t.durable.DeleteByUser(ctx, userID, excludeID)
	if err != nil {
		return 0, err
	}
	fastCount, fastErr := t.fast.DeleteByUser(ctx, userID, excludeID)
	if fastErr != nil {
		log.Print("sessiond: fast tier bulk delete failed")
		fastCount = 0
	}
	if fastCount > durableCount {
		return fastCount, nil
	}
	return durableCount, nil
}

// PurgeExpired sweeps both tiers and sums their removal counts. Tier
// failures are logged and contribute zero; the sweep itself never fails.
func (t *Tiered) PurgeExpired(ctx context.Context, now time.Time) (int, error) {
	total := 0
	if n, err := t.durable.PurgeExpired(ctx, now); err != nil {
		log.Print("sessiond: durable tier purge failed")
	} else {
		total += n
	}
	if n, err := t.fast.PurgeExpired(ctx, now); err != nil {
		log.Print("sessiond: fast tier purge failed")
	} else {
		total += n
	}
	return total, nil
}

// Ping probes both tiers and returns the first failure.
func (t *Tiered) Ping(ctx context.Context) error {
	for _, tier := range []Tier{t.durable, t.fast} {
		if p, ok := tier.(Pinger); ok {
			if err := p.Ping(ctx); err != nil {
				return err
			}
		}
	}
	return nil
}
