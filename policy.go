package sessiond

import (
	"sort"

	"github.com/sentracore/sessiond/session"
)

// selectEvictions picks which of the given sessions to terminate so that,
// after admitting one more, the population stays within limit. The count is
// len(candidates) - limit + 1, so the incoming session always fits.
//
// Candidates are never mutated; a sorted copy is worked on instead.
func selectEvictions(candidates []*session.Session, limit int, strategy EvictionStrategy) []*session.Session {
	if limit <= 0 || len(candidates) < limit {
		return nil
	}

	victims := make([]*session.Session, len(candidates))
	copy(victims, candidates)

	switch strategy {
	case EvictLowestActivity:
		sort.SliceStable(victims, func(i, j int) bool {
			return victims[i].LastActivity.Before(victims[j].LastActivity)
		})
	case EvictHighestRisk:
		sort.SliceStable(victims, func(i, j int) bool {
			return victims[i].RiskScore > victims[j].RiskScore
		})
	default: // oldest_first
		sort.SliceStable(victims, func(i, j int) bool {
			return victims[i].CreatedAt.Before(victims[j].CreatedAt)
		})
	}

	n := len(candidates) - limit + 1
	return victims[:n]
}

// filterByFingerprint returns the subset of sessions bound to the given
// device fingerprint.
func filterByFingerprint(sessions []*session.Session, fingerprint string) []*session.Session {
	if fingerprint == "" {
		return nil
	}
	var matched []*session.Session
	for _, s := range sessions {
		if s.Fingerprint == fingerprint {
			matched = append(matched, s)
		}
	}
	return matched
}
