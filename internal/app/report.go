package app

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"coin-screener/internal/market"
	"coin-screener/internal/ranking"
	"coin-screener/internal/session"
	"coin-screener/internal/storage"
)

type latestLister interface {
	ListLatest(ctx context.Context, limit int) ([]storage.SnapshotRecord, error)
}

// Report prints a top gainers/losers ranking. When a database is configured
// the report is built from the persisted latest state, so it reflects the
// session tracked by a running `run` instance. Without a database it falls
// back to a single live fetch, which anchors a fresh session on the spot.
func (a *App) Report(ctx context.Context, opts ReportOptions) error {
	topK := a.Config.ResolveTopK(opts.TopK)

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if closeStore != nil {
		defer closeStore()
	}

	var metrics map[string]session.Metrics
	if store != nil {
		metrics, err = a.metricsFromStore(ctx, store)
		if err != nil {
			return err
		}
	}
	if len(metrics) == 0 {
		a.Logger.Info().Msg("no persisted state; sampling live tickers")
		metrics, err = a.metricsFromLiveFetch(ctx)
		if err != nil {
			return err
		}
	}
	if len(metrics) == 0 {
		fmt.Fprintln(os.Stdout, "no market data available")
		return nil
	}

	report := ranking.Rank(metrics, topK)
	printReport(report)
	return nil
}

func (a *App) metricsFromStore(ctx context.Context, store latestLister) (map[string]session.Metrics, error) {
	records, err := store.ListLatest(ctx, a.Config.Binance.TopN)
	if err != nil {
		return nil, err
	}

	metrics := make(map[string]session.Metrics, len(records))
	for _, rec := range records {
		metrics[rec.Symbol] = session.Metrics{
			Symbol: rec.Symbol,
			Latest: market.Snapshot{
				Symbol:       rec.Symbol,
				Pair:         rec.Pair,
				Price:        rec.Price,
				Change24hPct: rec.Change24hPct,
				QuoteVolume:  rec.QuoteVolume,
				ObservedAt:   rec.ObservedAt,
			},
			Change24hPct:     rec.Change24hPct,
			SessionChangePct: rec.SessionChangePct,
			SessionStart:     rec.SessionStart,
		}
	}
	return metrics, nil
}

func (a *App) metricsFromLiveFetch(ctx context.Context) (map[string]session.Metrics, error) {
	source := a.newSource()

	fetchCtx, cancel := context.WithTimeout(ctx, a.Config.Binance.RequestTimeout)
	defer cancel()

	raw, err := source.FetchTopN(fetchCtx, a.Config.Binance.TopN)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	tracker := session.NewTracker()
	for _, r := range raw {
		snap, normErr := market.Normalize(r, a.Config.Binance.QuoteAsset, now)
		if normErr != nil {
			a.Logger.Warn().Err(normErr).Msg("skipping malformed ticker record")
			continue
		}
		tracker.Observe(snap)
	}
	return tracker.CurrentMetrics(), nil
}

func printReport(report ranking.Report) {
	fmt.Fprintf(os.Stdout, "Market ranking report at %s\n", report.GeneratedAt.Format(time.RFC3339))
	fmt.Fprintf(os.Stdout, "Assets scanned: %d\n\n", report.ScannedCount)

	writer := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)

	fmt.Fprintln(writer, "TOP GAINERS\t\t\t")
	fmt.Fprintln(writer, "Symbol\tPrice\tSession%\t24h%")
	for _, m := range report.TopGainers {
		fmt.Fprintf(writer, "%s\t%s\t%s\t%s\n",
			m.Symbol,
			m.Latest.Price.String(),
			m.SessionChangePct.StringFixed(2),
			m.Change24hPct.StringFixed(2),
		)
	}

	fmt.Fprintln(writer, "\t\t\t")
	fmt.Fprintln(writer, "TOP LOSERS\t\t\t")
	fmt.Fprintln(writer, "Symbol\tPrice\tSession%\t24h%")
	for _, m := range report.TopLosers {
		fmt.Fprintf(writer, "%s\t%s\t%s\t%s\n",
			m.Symbol,
			m.Latest.Price.String(),
			m.SessionChangePct.StringFixed(2),
			m.Change24hPct.StringFixed(2),
		)
	}

	writer.Flush()
}
