package alerting

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"coin-screener/internal/broadcast"
)

// MoveWatcher 订阅轮询结果，在某个资产的会话涨跌幅越过阈值时触发告警。
// 每个 symbol 有独立的冷却时间，避免同一异动反复推送。
type MoveWatcher struct {
	notifier  Notifier
	threshold decimal.Decimal
	cooldown  time.Duration
	timeout   time.Duration
	logger    zerolog.Logger

	mu        sync.Mutex
	lastFired map[string]time.Time
}

// NewMoveWatcher 构造阈值监控器。threshold 为绝对百分比。
func NewMoveWatcher(notifier Notifier, threshold decimal.Decimal, cooldown time.Duration, logger zerolog.Logger) *MoveWatcher {
	if cooldown <= 0 {
		cooldown = 30 * time.Minute
	}
	return &MoveWatcher{
		notifier:  notifier,
		threshold: threshold,
		cooldown:  cooldown,
		timeout:   10 * time.Second,
		logger:    logger.With().Str("component", "move_watcher").Logger(),
		lastFired: make(map[string]time.Time),
	}
}

// OnCycle 检查每个资产的会话涨跌幅并按需推送。
func (w *MoveWatcher) OnCycle(result broadcast.CycleResult) error {
	if result.Failed() || w.notifier == nil || !w.threshold.IsPositive() {
		return nil
	}

	for _, m := range result.Metrics {
		if m.SessionChangePct.Abs().LessThan(w.threshold) {
			continue
		}
		if !w.shouldFire(m.Symbol, result.At) {
			continue
		}

		direction := "up"
		if m.SessionChangePct.IsNegative() {
			direction = "down"
		}

		note := Notification{
			Symbol:           m.Symbol,
			Price:            m.Latest.Price,
			SessionChangePct: m.SessionChangePct,
			Change24hPct:     m.Change24hPct,
			ThresholdPct:     w.threshold,
			Direction:        direction,
			ObservedAt:       m.Latest.ObservedAt,
			SessionStart:     m.SessionStart,
		}

		ctx, cancel := context.WithTimeout(context.Background(), w.timeout)
		err := w.notifier.Notify(ctx, note)
		cancel()
		if err != nil {
			w.logger.Error().Err(err).Str("symbol", m.Symbol).Msg("告警推送失败")
		}
	}
	return nil
}

func (w *MoveWatcher) shouldFire(symbol string, at time.Time) bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	if last, ok := w.lastFired[symbol]; ok && at.Sub(last) < w.cooldown {
		return false
	}
	w.lastFired[symbol] = at
	return true
}

var _ broadcast.Consumer = (*MoveWatcher)(nil)
