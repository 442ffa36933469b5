package app

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"text/tabwriter"

	"econindex/internal/model"
	"econindex/internal/pipeline"
	"econindex/internal/storage"
)

// Normalize fetches every source once, runs the pipeline, and writes the
// result to the sink unless DryRun is set.
func (a *App) Normalize(ctx context.Context, opts NormalizeOptions) error {
	var store *storage.Store
	if opts.DryRun {
		a.Logger.Warn().Msg("normalize dry-run: nothing will be written to the database")
	} else {
		opened, closeStore, err := a.openStore(ctx)
		if err != nil {
			return err
		}
		if opened == nil {
			return errors.New("database.dsn not configured; use --dry-run to normalize without a sink")
		}
		if closeStore != nil {
			defer closeStore()
		}
		store = opened
	}

	svc, err := a.newService(store, nil, opts.CSVDir)
	if err != nil {
		return err
	}

	result, err := svc.Execute(ctx)
	if err != nil {
		return err
	}
	a.printSummary(result)
	return nil
}

func (a *App) printSummary(result *pipeline.Result) {
	writer := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	fmt.Fprintf(writer, "Run\t%s\n", result.RunID)
	fmt.Fprintf(writer, "Raw rows\t%d\n", result.Stats.Raw)
	fmt.Fprintf(writer, "Dropped (non-country)\t%d\n", result.Stats.DroppedCodes)
	fmt.Fprintf(writer, "Dropped rates (<= 0)\t%d\n", result.Stats.DroppedRates)
	fmt.Fprintf(writer, "Merged rows\t%d\n", result.Stats.Merged)
	fmt.Fprintf(writer, "Converted\t%d\n", result.Stats.Conversion.Converted)
	fmt.Fprintf(writer, "Missing rate\t%d\n", result.Stats.Conversion.MissingRate)
	fmt.Fprintf(writer, "Sparse series dropped\t%d\n", result.Stats.SparseDropped)
	fmt.Fprintf(writer, "Rebased rows\t%d\n", result.Stats.Rebased)
	fmt.Fprintf(writer, "FX rows\t%d\n", result.Stats.FXEmitted)
	fmt.Fprintf(writer, "Output rows\t%d\n", result.Stats.Output)

	indicators := make([]model.IndicatorType, 0, len(result.BaseYears))
	for indicator := range result.BaseYears {
		indicators = append(indicators, indicator)
	}
	sort.Slice(indicators, func(i, j int) bool { return indicators[i] < indicators[j] })
	for _, indicator := range indicators {
		fmt.Fprintf(writer, "Base year %s\t%d\n", indicator, result.BaseYears[indicator])
	}
	for _, indicator := range result.NoBaseYear {
		fmt.Fprintf(writer, "Base year %s\tnone\n", indicator)
	}
	writer.Flush()

	for _, absent := range result.Absent {
		fmt.Fprintf(a.out, "absent: %s\n", absent)
	}
	for _, finding := range result.Findings {
		fmt.Fprintf(a.out, "jump: %s\n", finding)
	}
}
