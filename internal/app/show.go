package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"text/tabwriter"
	"time"
)

// Show prints the latest known state per tracked symbol.
func (a *App) Show(ctx context.Context, opts ShowOptions) error {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		return errors.New("database not configured; cannot show state")
	}
	if closeStore != nil {
		defer closeStore()
	}

	records, err := store.ListLatest(ctx, opts.Limit)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		fmt.Fprintln(os.Stdout, "no snapshots found")
		return nil
	}

	writer := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Symbol\tPrice\t24h%\tSession%\tVolume\tObserved (UTC)")

	for _, rec := range records {
		fmt.Fprintf(
			writer,
			"%s\t%s\t%s\t%s\t%s\t%s\n",
			rec.Symbol,
			rec.Price.String(),
			rec.Change24hPct.StringFixed(2),
			rec.SessionChangePct.StringFixed(2),
			rec.QuoteVolume.StringFixed(0),
			rec.ObservedAt.UTC().Format(time.RFC3339),
		)
	}

	writer.Flush()
	return nil
}
