package fetcher

import (
	"context"

	"coin-screener/internal/market"
)

// TickerSource retrieves a batch of raw ticker records, largest markets first,
// bounded by limit.
type TickerSource interface {
	FetchTopN(ctx context.Context, limit int) ([]market.RawTicker, error)
}

// FetchError marks a transport-level failure of the market data source. The
// engine treats it as a cycle-level abort rather than a crash.
type FetchError struct {
	Err error
}

func (e *FetchError) Error() string {
	return "fetch tickers: " + e.Err.Error()
}

func (e *FetchError) Unwrap() error {
	return e.Err
}
