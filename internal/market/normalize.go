package market

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// ValidationError reports a raw record that could not be turned into a
// Snapshot, naming the offending field.
type ValidationError struct {
	Pair   string
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Pair == "" {
		return fmt.Sprintf("invalid ticker record: %s: %s", e.Field, e.Reason)
	}
	return fmt.Sprintf("invalid ticker record %s: %s: %s", e.Pair, e.Field, e.Reason)
}

// Normalize converts a raw exchange record into a canonical Snapshot.
// The symbol is upper-cased with the quote asset suffix stripped, the price
// must parse to a positive number, and a missing quote volume defaults to
// zero. Invalid records are rejected with a ValidationError; nothing invalid
// ever reaches the session tracker.
func Normalize(raw RawTicker, quoteAsset string, at time.Time) (Snapshot, error) {
	pair := strings.ToUpper(strings.TrimSpace(raw.Symbol))
	if pair == "" {
		return Snapshot{}, &ValidationError{Field: "symbol", Reason: "empty"}
	}

	price, err := decimal.NewFromString(strings.TrimSpace(raw.LastPrice))
	if err != nil {
		return Snapshot{}, &ValidationError{Pair: pair, Field: "lastPrice", Reason: "not a number"}
	}
	if !price.IsPositive() {
		return Snapshot{}, &ValidationError{Pair: pair, Field: "lastPrice", Reason: "must be positive"}
	}

	change, err := decimal.NewFromString(strings.TrimSpace(raw.PriceChangePercent))
	if err != nil {
		return Snapshot{}, &ValidationError{Pair: pair, Field: "priceChangePercent", Reason: "not a number"}
	}

	volume := decimal.Zero
	if v := strings.TrimSpace(raw.QuoteVolume); v != "" {
		volume, err = decimal.NewFromString(v)
		if err != nil {
			return Snapshot{}, &ValidationError{Pair: pair, Field: "quoteVolume", Reason: "not a number"}
		}
		if volume.IsNegative() {
			return Snapshot{}, &ValidationError{Pair: pair, Field: "quoteVolume", Reason: "negative"}
		}
	}

	symbol := pair
	if qa := strings.ToUpper(strings.TrimSpace(quoteAsset)); qa != "" {
		symbol = strings.TrimSuffix(pair, qa)
		if symbol == "" {
			symbol = pair
		}
	}

	return Snapshot{
		Symbol:       symbol,
		Pair:         pair,
		Price:        price,
		Change24hPct: change,
		QuoteVolume:  volume,
		ObservedAt:   at,
	}, nil
}
