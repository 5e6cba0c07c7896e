package alerting

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"coin-screener/internal/broadcast"
	"coin-screener/internal/market"
	"coin-screener/internal/session"
)

type captureNotifier struct {
	mu    sync.Mutex
	notes []Notification
}

func (c *captureNotifier) Notify(ctx context.Context, note Notification) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.notes = append(c.notes, note)
	return nil
}

func (c *captureNotifier) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.notes)
}

func cycleWith(at time.Time, changes map[string]string) broadcast.CycleResult {
	metrics := make(map[string]session.Metrics, len(changes))
	for sym, pct := range changes {
		metrics[sym] = session.Metrics{
			Symbol:           sym,
			Latest:           market.Snapshot{Symbol: sym, Price: decimal.NewFromInt(1), ObservedAt: at},
			SessionChangePct: decimal.RequireFromString(pct),
		}
	}
	return broadcast.CycleResult{At: at, Metrics: metrics}
}

func TestMoveWatcherFiresAboveThreshold(t *testing.T) {
	sink := &captureNotifier{}
	w := NewMoveWatcher(sink, decimal.NewFromInt(5), time.Hour, testLogger())

	at := time.Now().UTC()
	if err := w.OnCycle(cycleWith(at, map[string]string{
		"BTC": "6",
		"ETH": "-7",
		"XRP": "1",
	})); err != nil {
		t.Fatalf("OnCycle 不应报错: %v", err)
	}

	if sink.count() != 2 {
		t.Fatalf("阈值之上应触发 2 次告警, 实际 %d", sink.count())
	}
}

func TestMoveWatcherCooldown(t *testing.T) {
	sink := &captureNotifier{}
	w := NewMoveWatcher(sink, decimal.NewFromInt(5), time.Hour, testLogger())

	at := time.Now().UTC()
	_ = w.OnCycle(cycleWith(at, map[string]string{"BTC": "6"}))
	_ = w.OnCycle(cycleWith(at.Add(time.Minute), map[string]string{"BTC": "7"}))

	if sink.count() != 1 {
		t.Fatalf("冷却期内不应重复告警, 实际 %d", sink.count())
	}

	_ = w.OnCycle(cycleWith(at.Add(2*time.Hour), map[string]string{"BTC": "8"}))
	if sink.count() != 2 {
		t.Fatalf("冷却期结束后应再次告警, 实际 %d", sink.count())
	}
}

func TestMoveWatcherIgnoresFailedCycles(t *testing.T) {
	sink := &captureNotifier{}
	w := NewMoveWatcher(sink, decimal.NewFromInt(1), time.Hour, testLogger())

	result := cycleWith(time.Now(), map[string]string{"BTC": "50"})
	result.Err = errors.New("fetch failed")

	_ = w.OnCycle(result)
	if sink.count() != 0 {
		t.Fatalf("失败的周期不应触发告警, 实际 %d", sink.count())
	}
}
