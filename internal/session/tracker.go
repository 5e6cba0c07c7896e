package session

import (
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"coin-screener/internal/market"
)

var hundred = decimal.NewFromInt(100)

// Baseline anchors a symbol for the current session. It is created from the
// first snapshot observed after the tracker is created or reset, and never
// updated afterwards.
type Baseline struct {
	Symbol       string
	Price        decimal.Decimal
	SessionStart time.Time
}

// Metrics is the derived, per-symbol view recomputed on every observation.
type Metrics struct {
	Symbol           string
	Latest           market.Snapshot
	Change24hPct     decimal.Decimal
	SessionChangePct decimal.Decimal
	BaselinePrice    decimal.Decimal
	SessionStart     time.Time
}

// Tracker maintains per-symbol session baselines and the latest derived
// metrics. Writes happen through Observe/ObserveAll; readers always get
// consistent copies.
type Tracker struct {
	mu        sync.RWMutex
	baselines map[string]Baseline
	metrics   map[string]Metrics
}

// NewTracker returns an empty tracker with no baselines.
func NewTracker() *Tracker {
	return &Tracker{
		baselines: make(map[string]Baseline),
		metrics:   make(map[string]Metrics),
	}
}

// Observe records one snapshot, anchoring a baseline on first sight of the
// symbol, and returns the updated metrics.
func (t *Tracker) Observe(snap market.Snapshot) Metrics {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.observeLocked(snap)
}

// ObserveAll records a full polling cycle under a single lock, so concurrent
// CurrentMetrics callers see either none or all of the batch.
func (t *Tracker) ObserveAll(snaps []market.Snapshot) []Metrics {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]Metrics, 0, len(snaps))
	for _, snap := range snaps {
		out = append(out, t.observeLocked(snap))
	}
	return out
}

func (t *Tracker) observeLocked(snap market.Snapshot) Metrics {
	base, ok := t.baselines[snap.Symbol]
	if !ok {
		base = Baseline{
			Symbol:       snap.Symbol,
			Price:        snap.Price,
			SessionStart: snap.ObservedAt,
		}
		t.baselines[snap.Symbol] = base
	}

	// Baseline price is positive by construction (the normalizer rejects
	// non-positive prices), so the division is safe.
	change := snap.Price.Sub(base.Price).Div(base.Price).Mul(hundred)

	m := Metrics{
		Symbol:           snap.Symbol,
		Latest:           snap,
		Change24hPct:     snap.Change24hPct,
		SessionChangePct: change,
		BaselinePrice:    base.Price,
		SessionStart:     base.SessionStart,
	}
	t.metrics[snap.Symbol] = m
	return m
}

// Reset discards every baseline and all derived metrics; the next observation
// per symbol re-anchors. Called on explicit user action only.
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.baselines = make(map[string]Baseline)
	t.metrics = make(map[string]Metrics)
}

// CurrentMetrics returns a point-in-time copy of the latest metrics for all
// tracked symbols.
func (t *Tracker) CurrentMetrics() map[string]Metrics {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make(map[string]Metrics, len(t.metrics))
	for sym, m := range t.metrics {
		out[sym] = m
	}
	return out
}

// BaselineFor reports the session baseline for a symbol, if one exists.
func (t *Tracker) BaselineFor(symbol string) (Baseline, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	base, ok := t.baselines[symbol]
	return base, ok
}

// Len reports how many symbols are currently tracked.
func (t *Tracker) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.metrics)
}
