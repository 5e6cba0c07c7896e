// Package service orchestrates the poll→normalize→track→publish cycle.
package service

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"coin-screener/internal/broadcast"
	"coin-screener/internal/fetcher"
	"coin-screener/internal/market"
	"coin-screener/internal/ranking"
	"coin-screener/internal/scheduler"
	"coin-screener/internal/session"
)

// ErrAlreadyRunning is returned by Start when the engine is not stopped.
var ErrAlreadyRunning = errors.New("engine already running")

// State models the engine lifecycle.
type State int32

const (
	StateStopped State = iota
	StateRunning
	StateStoppingRequested
)

func (s State) String() string {
	switch s {
	case StateStopped:
		return "stopped"
	case StateRunning:
		return "running"
	case StateStoppingRequested:
		return "stopping"
	default:
		return "unknown"
	}
}

// Options tune the engine.
type Options struct {
	Interval     time.Duration
	StartupDelay time.Duration
	TopN         int
	QuoteAsset   string
	FetchTimeout time.Duration
}

// Engine owns the session tracker and runs the polling loop. Cycles execute
// strictly sequentially; the tracker is mutated only inside a cycle, so
// readers of CurrentMetrics always observe a fully committed state.
type Engine struct {
	opts   Options
	source fetcher.TickerSource
	bus    *broadcast.Broadcaster
	logger zerolog.Logger

	tracker *session.Tracker
	seq     atomic.Uint64

	mu     sync.Mutex
	state  State
	cancel context.CancelFunc
	done   chan struct{}
}

// NewEngine constructs a stopped engine.
func NewEngine(opts Options, source fetcher.TickerSource, bus *broadcast.Broadcaster, logger zerolog.Logger) *Engine {
	if opts.TopN <= 0 {
		opts.TopN = 50
	}
	if opts.Interval <= 0 {
		opts.Interval = 5 * time.Second
	}
	if opts.FetchTimeout <= 0 {
		opts.FetchTimeout = 10 * time.Second
	}

	return &Engine{
		opts:    opts,
		source:  source,
		bus:     bus,
		logger:  logger.With().Str("component", "engine").Logger(),
		tracker: session.NewTracker(),
	}
}

// Start launches the polling loop. It fails with ErrAlreadyRunning unless the
// engine is currently stopped.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state != StateStopped {
		return ErrAlreadyRunning
	}

	runCtx, cancel := context.WithCancel(ctx)
	e.cancel = cancel
	e.done = make(chan struct{})
	e.state = StateRunning

	sched := scheduler.New(scheduler.Options{
		Interval:     e.opts.Interval,
		StartupDelay: e.opts.StartupDelay,
	}, e.logger)

	go func(done chan struct{}) {
		defer close(done)
		defer cancel()
		err := sched.Run(runCtx, e.cycle)
		if err != nil && !errors.Is(err, context.Canceled) {
			e.logger.Error().Err(err).Msg("polling loop terminated")
		}
		e.mu.Lock()
		e.state = StateStopped
		e.mu.Unlock()
	}(e.done)

	e.logger.Info().
		Dur("interval", e.opts.Interval).
		Int("top_n", e.opts.TopN).
		Msg("engine started")
	return nil
}

// Stop signals the loop to halt and waits for the in-flight cycle, if any, to
// finish. Stopping an already stopped engine is a no-op.
func (e *Engine) Stop() {
	e.mu.Lock()
	if e.state == StateStopped {
		e.mu.Unlock()
		return
	}
	if e.state == StateRunning {
		e.state = StateStoppingRequested
		e.cancel()
	}
	done := e.done
	e.mu.Unlock()

	<-done
	e.logger.Info().Msg("engine stopped")
}

// IsRunning reports whether the polling loop is active.
func (e *Engine) IsRunning() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state == StateRunning
}

// CurrentState reports the lifecycle state.
func (e *Engine) CurrentState() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// CurrentMetrics returns a consistent copy of the latest tracked metrics.
func (e *Engine) CurrentMetrics() map[string]session.Metrics {
	return e.tracker.CurrentMetrics()
}

// Report ranks the current metrics into top gainers and losers.
func (e *Engine) Report(topK int) ranking.Report {
	return ranking.Rank(e.tracker.CurrentMetrics(), topK)
}

// ResetSession discards all session baselines; the next cycle re-anchors
// every symbol. Driven by explicit user action only.
func (e *Engine) ResetSession() {
	e.tracker.Reset()
	e.logger.Info().Msg("session baselines reset")
}

// cycle is one logical step: fetch the batch, normalize it, commit it to the
// tracker, and publish the resulting metrics. A fetch failure aborts the
// cycle as a whole with nothing mutated; per-record normalization failures
// are logged and skipped.
func (e *Engine) cycle(ctx context.Context, at time.Time) error {
	seq := e.seq.Add(1)

	fetchCtx, cancel := context.WithTimeout(ctx, e.opts.FetchTimeout)
	raw, err := e.source.FetchTopN(fetchCtx, e.opts.TopN)
	cancel()
	if err != nil {
		e.bus.Publish(broadcast.CycleResult{Seq: seq, At: at, Err: err})
		return err
	}

	snaps := make([]market.Snapshot, 0, len(raw))
	rejected := 0
	for _, r := range raw {
		snap, normErr := market.Normalize(r, e.opts.QuoteAsset, at)
		if normErr != nil {
			rejected++
			e.logger.Warn().Err(normErr).Uint64("seq", seq).Msg("skipping malformed ticker record")
			continue
		}
		snaps = append(snaps, snap)
	}

	e.tracker.ObserveAll(snaps)

	e.bus.Publish(broadcast.CycleResult{
		Seq:      seq,
		At:       at,
		Metrics:  e.tracker.CurrentMetrics(),
		Scanned:  len(snaps),
		Rejected: rejected,
	})

	e.logger.Debug().
		Uint64("seq", seq).
		Int("scanned", len(snaps)).
		Int("rejected", rejected).
		Msg("cycle committed")
	return nil
}
