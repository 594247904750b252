package sessiond

import (
	"strings"

	"github.com/sentracore/sessiond/session"
)

// agentSimilarity computes the Jaccard similarity between the word sets of
// two user-agent strings, case-insensitive. Two empty agents are identical;
// one empty agent shares nothing with a populated one.
func agentSimilarity(a, b string) float64 {
	wordsA := strings.Fields(strings.ToLower(a))
	wordsB := strings.Fields(strings.ToLower(b))

	if len(wordsA) == 0 && len(wordsB) == 0 {
		return 1
	}
	if len(wordsA) == 0 || len(wordsB) == 0 {
		return 0
	}

	setA := make(map[string]struct{}, len(wordsA))
	for _, w := range wordsA {
		setA[w] = struct{}{}
	}
	setB := make(map[string]struct{}, len(wordsB))
	for _, w := range wordsB {
		setB[w] = struct{}{}
	}

	intersection := 0
	for w := range setA {
		if _, ok := setB[w]; ok {
			intersection++
		}
	}
	union := len(setA) + len(setB) - intersection

	return float64(intersection) / float64(union)
}

// deviceConsistent reports whether the presented context matches the stored
// session binding: fingerprints must be equal and the user agents must be
// similar beyond the configured threshold.
func (m *Manager) deviceConsistent(s *session.Session, in RefreshInput) bool {
	if in.Device.Fingerprint != s.Fingerprint {
		return false
	}
	return agentSimilarity(s.UserAgent, in.UserAgent) >= m.cfg.Risk.AgentSimilarityThreshold
}
