package market

import (
	"time"

	"github.com/shopspring/decimal"
)

// Snapshot is one asset observed at one point in time. Instances are only
// constructed through Normalize, so a Snapshot always carries a positive price.
type Snapshot struct {
	Symbol       string
	Pair         string
	Price        decimal.Decimal
	Change24hPct decimal.Decimal
	QuoteVolume  decimal.Decimal
	ObservedAt   time.Time
}

// RawTicker mirrors a single record of the Binance 24h ticker payload. All
// numeric fields arrive as strings on the wire.
type RawTicker struct {
	Symbol             string `json:"symbol"`
	LastPrice          string `json:"lastPrice"`
	PriceChangePercent string `json:"priceChangePercent"`
	QuoteVolume        string `json:"quoteVolume"`
}
