package app

import (
	"context"
	"errors"
	"fmt"
	"text/tabwriter"
	"time"
)

// Stats prints per-indicator record counts and the most recent runs.
func (a *App) Stats(ctx context.Context, runs int) error {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		return errors.New("database not configured; cannot show stats")
	}
	if closeStore != nil {
		defer closeStore()
	}

	counts, err := store.CountByIndicator(ctx)
	if err != nil {
		return err
	}
	if len(counts) == 0 {
		fmt.Fprintln(a.out, "no records stored")
	}

	writer := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	if len(counts) > 0 {
		fmt.Fprintln(writer, "Indicator\tRecords\tCountries\tYears")
		for _, c := range counts {
			fmt.Fprintf(writer, "%s\t%d\t%d\t%d-%d\n", c.Indicator, c.Records, c.Countries, c.FirstYear, c.LastYear)
		}
		fmt.Fprintln(writer)
	}

	if runs <= 0 {
		return writer.Flush()
	}
	recent, err := store.ListRecentRuns(ctx, runs)
	if err != nil {
		return err
	}
	fmt.Fprintln(writer, "Run\tStarted (UTC)\tStatus\tRecords\tAbsent\tMissing rate\tError")
	for _, run := range recent {
		errMsg := ""
		if run.Error != nil {
			errMsg = sanitizeInline(*run.Error)
		}
		fmt.Fprintf(writer, "%s\t%s\t%s\t%d\t%d\t%d\t%s\n",
			run.ID,
			run.StartedAt.UTC().Format(time.RFC3339),
			run.Status,
			run.Records,
			run.Absent,
			run.MissingRates,
			errMsg,
		)
	}
	return writer.Flush()
}
