package storage

import (
	"time"

	"github.com/shopspring/decimal"
)

// SnapshotRecord is one persisted asset observation together with its derived
// session metrics. History rows are keyed (symbol, observed_at); the latest
// table is keyed by symbol alone.
type SnapshotRecord struct {
	Symbol           string
	Pair             string
	ObservedAt       time.Time
	Price            decimal.Decimal
	Change24hPct     decimal.Decimal
	SessionChangePct decimal.Decimal
	QuoteVolume      decimal.Decimal
	SessionStart     time.Time
	CreatedAt        time.Time
}
