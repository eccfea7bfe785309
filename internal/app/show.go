package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"text/tabwriter"
	"time"
)

// Show prints recent persisted readings for one metric.
func (a *App) Show(ctx context.Context, opts ShowOptions) error {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		return errors.New("database not configured; cannot show readings")
	}
	if closeStore != nil {
		defer closeStore()
	}

	entityID := a.GaugeParams().ReadingEntityID(opts.Metric)
	readings, err := store.ListRecentReadings(ctx, entityID, opts.Limit)
	if err != nil {
		return err
	}
	if len(readings) == 0 {
		fmt.Fprintln(os.Stdout, "no readings found")
		return nil
	}

	writer := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Time (UTC)\tEntity\tValue")
	for _, rec := range readings {
		fmt.Fprintf(
			writer,
			"%s\t%s\t%s\n",
			rec.RecordedAt.UTC().Format(time.RFC3339),
			rec.EntityID,
			rec.Value.String(),
		)
	}

	writer.Flush()
	return nil
}
