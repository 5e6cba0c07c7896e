package app

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"time"

	"coin-screener/internal/market"
)

type scrapedTicker struct {
	Symbol         string `json:"symbol"`
	Pair           string `json:"pair"`
	LastPrice      string `json:"last_price"`
	Volume24h      string `json:"volume_24h"`
	PriceChangePct string `json:"price_change_pct"`
	ScrapedAt      string `json:"scraped_at"`
}

// Scrape runs the stateless one-off export job: fetch the current top-N
// tickers, validate them through the normalizer, and write the result as a
// JSON file. It shares no state with the polling engine.
func (a *App) Scrape(ctx context.Context, opts ScrapeOptions) error {
	if opts.OutPath == "" {
		return errors.New("--out is required")
	}
	limit := opts.Limit
	if limit <= 0 {
		limit = a.Config.Binance.TopN
	}

	source := a.newSource()

	fetchCtx, cancel := context.WithTimeout(ctx, a.Config.Binance.RequestTimeout)
	defer cancel()

	raw, err := source.FetchTopN(fetchCtx, limit)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	out := make([]scrapedTicker, 0, len(raw))
	for _, r := range raw {
		snap, normErr := market.Normalize(r, a.Config.Binance.QuoteAsset, now)
		if normErr != nil {
			a.Logger.Warn().Err(normErr).Msg("skipping malformed ticker record")
			continue
		}
		out = append(out, scrapedTicker{
			Symbol:         snap.Symbol,
			Pair:           snap.Pair,
			LastPrice:      snap.Price.String(),
			Volume24h:      snap.QuoteVolume.String(),
			PriceChangePct: snap.Change24hPct.String(),
			ScrapedAt:      now.Format(time.RFC3339),
		})
	}

	if err := ensureDir(opts.OutPath); err != nil {
		return err
	}

	file, err := os.Create(opts.OutPath)
	if err != nil {
		return err
	}
	defer file.Close()

	enc := json.NewEncoder(file)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		return err
	}

	a.Logger.Info().Int("tickers", len(out)).Str("path", opts.OutPath).Msg("scrape export complete")
	return nil
}
