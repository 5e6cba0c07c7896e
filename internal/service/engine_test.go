package service

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"coin-screener/internal/broadcast"
	"coin-screener/internal/market"
)

type sourceFunc func(ctx context.Context, limit int) ([]market.RawTicker, error)

func (f sourceFunc) FetchTopN(ctx context.Context, limit int) ([]market.RawTicker, error) {
	return f(ctx, limit)
}

func goodTicker(symbol, price string) market.RawTicker {
	return market.RawTicker{
		Symbol:             symbol,
		LastPrice:          price,
		PriceChangePercent: "1.0",
		QuoteVolume:        "1000",
	}
}

func newTestEngine(source sourceFunc, results chan broadcast.CycleResult) *Engine {
	bus := broadcast.New(64, zerolog.Nop())
	bus.Subscribe("test", broadcast.ConsumerFunc(func(r broadcast.CycleResult) error {
		results <- r
		return nil
	}))
	return NewEngine(Options{
		Interval:     10 * time.Millisecond,
		TopN:         10,
		QuoteAsset:   "USDT",
		FetchTimeout: time.Second,
	}, source, bus, zerolog.Nop())
}

func waitResult(t *testing.T, results chan broadcast.CycleResult) broadcast.CycleResult {
	t.Helper()
	select {
	case r := <-results:
		return r
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for cycle result")
		return broadcast.CycleResult{}
	}
}

func TestStartTwiceFails(t *testing.T) {
	results := make(chan broadcast.CycleResult, 64)
	e := newTestEngine(func(ctx context.Context, limit int) ([]market.RawTicker, error) {
		return nil, nil
	}, results)

	if err := e.Start(context.Background()); err != nil {
		t.Fatalf("first start should succeed: %v", err)
	}
	defer e.Stop()

	if err := e.Start(context.Background()); !errors.Is(err, ErrAlreadyRunning) {
		t.Fatalf("second start should fail with ErrAlreadyRunning, got %v", err)
	}
	if !e.IsRunning() {
		t.Fatal("engine should remain running after rejected start")
	}
}

func TestStopIsIdempotent(t *testing.T) {
	results := make(chan broadcast.CycleResult, 64)
	e := newTestEngine(func(ctx context.Context, limit int) ([]market.RawTicker, error) {
		return nil, nil
	}, results)

	e.Stop() // stopped engine: no-op

	if err := e.Start(context.Background()); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	e.Stop()
	if e.IsRunning() {
		t.Fatal("engine should be stopped")
	}
	e.Stop() // second stop: no-op

	if err := e.Start(context.Background()); err != nil {
		t.Fatalf("restart after stop should succeed: %v", err)
	}
	e.Stop()
}

func TestCycleSkipsMalformedRecords(t *testing.T) {
	results := make(chan broadcast.CycleResult, 64)
	e := newTestEngine(func(ctx context.Context, limit int) ([]market.RawTicker, error) {
		return []market.RawTicker{
			goodTicker("AAAUSDT", "100"),
			{Symbol: "BADUSDT", LastPrice: "not-a-number", PriceChangePercent: "0"},
			goodTicker("CCCUSDT", "3"),
		}, nil
	}, results)

	if err := e.Start(context.Background()); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	defer e.Stop()

	r := waitResult(t, results)
	if r.Failed() {
		t.Fatalf("one bad record must not abort the cycle: %v", r.Err)
	}
	if r.Scanned != 2 || r.Rejected != 1 {
		t.Fatalf("expected 2 scanned / 1 rejected, got %d/%d", r.Scanned, r.Rejected)
	}
	if _, ok := r.Metrics["AAA"]; !ok {
		t.Fatal("expected metrics for AAA")
	}
	if _, ok := r.Metrics["BAD"]; ok {
		t.Fatal("malformed record must not enter metrics")
	}
}

func TestFetchFailureAbortsCycleWholesale(t *testing.T) {
	var calls atomic.Int64
	results := make(chan broadcast.CycleResult, 64)
	e := newTestEngine(func(ctx context.Context, limit int) ([]market.RawTicker, error) {
		if calls.Add(1) == 1 {
			return []market.RawTicker{goodTicker("AAAUSDT", "100")}, nil
		}
		return nil, errors.New("exchange unreachable")
	}, results)

	if err := e.Start(context.Background()); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	defer e.Stop()

	first := waitResult(t, results)
	if first.Failed() {
		t.Fatalf("first cycle should succeed: %v", first.Err)
	}
	before := e.CurrentMetrics()

	second := waitResult(t, results)
	if !second.Failed() {
		t.Fatal("second cycle should publish a failure event")
	}
	if second.Metrics != nil {
		t.Fatal("failure events must carry no metrics")
	}

	after := e.CurrentMetrics()
	if len(after) != len(before) {
		t.Fatalf("fetch failure must not mutate metrics: %d vs %d", len(after), len(before))
	}
	for sym, m := range before {
		got, ok := after[sym]
		if !ok {
			t.Fatalf("symbol %s disappeared after failed cycle", sym)
		}
		if !got.SessionChangePct.Equal(m.SessionChangePct) || !got.Latest.Price.Equal(m.Latest.Price) {
			t.Fatalf("metrics for %s changed after failed cycle", sym)
		}
	}
}

func TestReportAndReset(t *testing.T) {
	results := make(chan broadcast.CycleResult, 64)
	e := newTestEngine(func(ctx context.Context, limit int) ([]market.RawTicker, error) {
		return []market.RawTicker{
			goodTicker("AAAUSDT", "100"),
			goodTicker("BBBUSDT", "200"),
		}, nil
	}, results)

	if err := e.Start(context.Background()); err != nil {
		t.Fatalf("start failed: %v", err)
	}

	waitResult(t, results)
	e.Stop()

	report := e.Report(5)
	if report.ScannedCount != 2 {
		t.Fatalf("expected 2 scanned, got %d", report.ScannedCount)
	}

	e.ResetSession()
	if len(e.CurrentMetrics()) != 0 {
		t.Fatal("reset should clear tracked metrics")
	}
}
