// Package ranking derives ordered gainer/loser reports from tracked metrics.
package ranking

import (
	"fmt"
	"sort"
	"time"

	"coin-screener/internal/session"
)

// DefaultTopK is used when a caller does not request a specific depth.
const DefaultTopK = 5

// Report is a point-in-time ranking artifact. It is derived, never persisted
// by this package.
type Report struct {
	GeneratedAt  time.Time
	TopGainers   []session.Metrics
	TopLosers    []session.Metrics
	ScannedCount int
}

// Rank orders the given metrics by session-relative change and returns the
// topK gainers (descending) and losers (ascending). Ties are broken by symbol
// ascending so the output is deterministic. The input map is not modified;
// Rank is safe to call concurrently with ongoing polling as long as the caller
// passes a consistent copy (session.Tracker.CurrentMetrics provides one).
//
// A negative topK is a programming error and panics.
func Rank(metrics map[string]session.Metrics, topK int) Report {
	if topK < 0 {
		panic(fmt.Sprintf("ranking: negative topK %d", topK))
	}

	ordered := make([]session.Metrics, 0, len(metrics))
	for _, m := range metrics {
		ordered = append(ordered, m)
	}

	sort.Slice(ordered, func(i, j int) bool {
		cmp := ordered[i].SessionChangePct.Cmp(ordered[j].SessionChangePct)
		if cmp != 0 {
			return cmp > 0
		}
		return ordered[i].Symbol < ordered[j].Symbol
	})
	gainers := take(ordered, topK)

	losers := make([]session.Metrics, len(ordered))
	copy(losers, ordered)
	sort.Slice(losers, func(i, j int) bool {
		cmp := losers[i].SessionChangePct.Cmp(losers[j].SessionChangePct)
		if cmp != 0 {
			return cmp < 0
		}
		return losers[i].Symbol < losers[j].Symbol
	})
	losers = take(losers, topK)

	return Report{
		GeneratedAt:  time.Now().UTC(),
		TopGainers:   gainers,
		TopLosers:    losers,
		ScannedCount: len(metrics),
	}
}

func take(ms []session.Metrics, k int) []session.Metrics {
	if len(ms) <= k {
		return ms
	}
	return ms[:k]
}
