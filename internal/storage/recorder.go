package storage

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"coin-screener/internal/broadcast"
)

// Recorder subscribes to cycle results and persists successful cycles.
// Persistence is best-effort from the engine's perspective: write failures
// are logged here and never reach the scheduler.
type Recorder struct {
	store   SnapshotStore
	timeout time.Duration
	logger  zerolog.Logger
}

// NewRecorder constructs a persistence subscriber.
func NewRecorder(store SnapshotStore, timeout time.Duration, logger zerolog.Logger) *Recorder {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Recorder{
		store:   store,
		timeout: timeout,
		logger:  logger.With().Str("component", "recorder").Logger(),
	}
}

// OnCycle writes every metric of a successful cycle. Failure events carry no
// data and are skipped.
func (r *Recorder) OnCycle(result broadcast.CycleResult) error {
	if result.Failed() {
		r.logger.Debug().Uint64("seq", result.Seq).Msg("skipping failed cycle")
		return nil
	}

	records := make([]SnapshotRecord, 0, len(result.Metrics))
	for _, m := range result.Metrics {
		records = append(records, SnapshotRecord{
			Symbol:           m.Symbol,
			Pair:             m.Latest.Pair,
			ObservedAt:       m.Latest.ObservedAt,
			Price:            m.Latest.Price,
			Change24hPct:     m.Change24hPct,
			SessionChangePct: m.SessionChangePct,
			QuoteVolume:      m.Latest.QuoteVolume,
			SessionStart:     m.SessionStart,
		})
	}

	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()

	if err := r.store.UpsertCycle(ctx, records); err != nil {
		r.logger.Error().Err(err).Uint64("seq", result.Seq).Msg("failed to persist cycle")
		return err
	}
	return nil
}

var _ broadcast.Consumer = (*Recorder)(nil)
