package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/shopspring/decimal"

	"econindex/internal/model"
	"econindex/internal/rebase"
	"econindex/internal/storage"
)

// Show prints one rebased series from the sink. A missing base value is
// reported as Absent instead of printing a partial index.
func (a *App) Show(ctx context.Context, opts ShowOptions) error {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		return errors.New("database not configured; cannot show series")
	}
	if closeStore != nil {
		defer closeStore()
	}

	country := strings.ToUpper(opts.Country)
	stored, err := store.ListRecords(ctx, storage.RecordFilter{Indicator: opts.Indicator, Countries: []string{country}})
	if err != nil {
		return err
	}
	if len(stored) == 0 {
		fmt.Fprintln(a.out, "no records found")
		return nil
	}

	column := opts.Column
	if column == "" {
		column = a.Config.Column()
	}
	records := plainRecords(stored)

	baseYear := opts.BaseYear
	if baseYear == 0 {
		baseYear, err = a.Config.Selector().Select(rebase.Group(records, opts.Indicator, column, country))
		if err != nil {
			return err
		}
	}

	rebased, err := rebase.ForRequest(records, rebase.Request{Country: country, Indicator: opts.Indicator, BaseYear: baseYear, Column: column})
	var missing *rebase.MissingBaseYearError
	if err != nil && !errors.As(err, &missing) {
		return err
	}

	renderSeries(a.out, records, rebased, missing)
	return nil
}

func renderSeries(out io.Writer, records []model.IndicatorRecord, rebased rebase.RebasedSeries, missing *rebase.MissingBaseYearError) {
	writer := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Year\tValue\tValue (USD)\tIndex\tSource")
	for _, rec := range records {
		common := "-"
		if rec.ValueCommonCurrency.Valid {
			common = formatDecimal(rec.ValueCommonCurrency.Decimal, 4)
		}
		index := "absent"
		if missing == nil {
			if v, ok := rebased.Index(rec.Year); ok {
				index = formatDecimal(v, 2)
			} else {
				index = "-"
			}
		}
		fmt.Fprintf(writer, "%d\t%s\t%s\t%s\t%s\n", rec.Year, rec.Value.String(), common, index, rec.Source)
	}
	writer.Flush()

	if missing != nil {
		fmt.Fprintf(out, "absent: %s\n", missing)
		return
	}
	fmt.Fprintf(out, "base year %d (%s values) = 100\n", rebased.BaseYear, rebased.Column)
}

func plainRecords(stored []model.NormalizedRecord) []model.IndicatorRecord {
	out := make([]model.IndicatorRecord, len(stored))
	for i, rec := range stored {
		out[i] = rec.IndicatorRecord
	}
	return out
}

func formatDecimal(d decimal.Decimal, places int32) string {
	return d.StringFixed(places)
}

func sanitizeInline(v string) string {
	cleaned := strings.ReplaceAll(v, "\n", " ")
	cleaned = strings.ReplaceAll(cleaned, "\r", " ")
	return cleaned
}
