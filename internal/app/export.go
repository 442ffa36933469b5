package app

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"

	chart "github.com/wcharczuk/go-chart/v2"

	"econindex/internal/rebase"
	"econindex/internal/storage"
)

// Export renders a cross-country comparison as CSV and/or PNG. Without an
// explicit base year the earliest year common to every selected country is
// used, computed only over rows carrying the chosen column.
func (a *App) Export(ctx context.Context, opts ExportOptions) error {
	if opts.CSVPath == "" && opts.PNGPath == "" {
		return errors.New("at least one of --csv or --png must be provided")
	}
	if limit := a.Config.Export.MaxCountries; limit > 0 && len(opts.Countries) > limit {
		return fmt.Errorf("at most %d countries can be compared", limit)
	}

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		return errors.New("database not configured; cannot export")
	}
	if closeStore != nil {
		defer closeStore()
	}

	stored, err := store.ListRecords(ctx, storage.RecordFilter{Indicator: opts.Indicator, Countries: opts.Countries})
	if err != nil {
		return err
	}
	if len(stored) == 0 {
		a.Logger.Info().Msg("no records found for export")
		return nil
	}

	column := opts.Column
	if column == "" {
		column = a.Config.Column()
	}
	sel := rebase.Selector{Policy: rebase.PolicyEarliestCommon}
	if opts.BaseYear > 0 {
		sel = rebase.Selector{Policy: rebase.PolicyFixed, Year: opts.BaseYear}
	}

	cmp, err := rebase.Compare(plainRecords(stored), opts.Indicator, column, opts.Countries, sel)
	if err != nil {
		return fmt.Errorf("compare %s: %w", opts.Indicator, err)
	}
	for _, missing := range cmp.Absent {
		a.Logger.Warn().Err(missing).Msg("series absent from comparison")
		fmt.Fprintf(a.out, "absent: %s\n", missing)
	}
	a.Logger.Info().Int("base_year", cmp.BaseYear).Int("series", len(cmp.Series)).Msg("exporting comparison")

	if opts.CSVPath != "" {
		if err := writeComparisonCSV(opts.CSVPath, cmp); err != nil {
			return err
		}
	}

	if opts.PNGPath != "" {
		if err := writeComparisonPNG(opts.PNGPath, cmp, a.Config.Export.Width, a.Config.Export.Height); err != nil {
			return err
		}
	}

	return nil
}

func comparisonYears(cmp rebase.Comparison) []int {
	seen := make(map[int]bool)
	for _, series := range cmp.Series {
		for _, p := range series.Points {
			seen[p.Year] = true
		}
	}
	years := make([]int, 0, len(seen))
	for year := range seen {
		years = append(years, year)
	}
	sort.Ints(years)
	return years
}

func writeComparisonCSV(path string, cmp rebase.Comparison) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	header := []string{"year"}
	for _, series := range cmp.Series {
		header = append(header, series.Country)
	}
	if err := writer.Write(header); err != nil {
		return err
	}

	for _, year := range comparisonYears(cmp) {
		row := []string{strconv.Itoa(year)}
		for _, series := range cmp.Series {
			value := ""
			if idx, ok := series.Index(year); ok {
				value = formatDecimal(idx, 2)
			}
			row = append(row, value)
		}
		if err := writer.Write(row); err != nil {
			return err
		}
	}

	writer.Flush()
	return writer.Error()
}

func writeComparisonPNG(path string, cmp rebase.Comparison, width, height int) error {
	if len(cmp.Series) == 0 {
		return errors.New("nothing to plot: every series is absent")
	}
	if err := ensureDir(path); err != nil {
		return err
	}

	series := make([]chart.Series, 0, len(cmp.Series))
	for _, s := range cmp.Series {
		x := make([]float64, len(s.Points))
		y := make([]float64, len(s.Points))
		for i, p := range s.Points {
			x[i] = float64(p.Year)
			y[i] = p.Value.InexactFloat64()
		}
		series = append(series, chart.ContinuousSeries{
			Name:    s.Country,
			XValues: x,
			YValues: y,
		})
	}

	yearFormatter := func(v interface{}) string {
		return chart.FloatValueFormatterWithFormat(v, "%.0f")
	}
	indexFormatter := func(v interface{}) string {
		return chart.FloatValueFormatterWithFormat(v, "%.1f")
	}
	graph := chart.Chart{
		Title:  fmt.Sprintf("%s (%s), %d = 100", cmp.Indicator.Label(), cmp.Column, cmp.BaseYear),
		Width:  width,
		Height: height,
		XAxis: chart.XAxis{
			Name:           "Year",
			ValueFormatter: yearFormatter,
		},
		YAxis: chart.YAxis{
			Name:           "Index",
			ValueFormatter: indexFormatter,
		},
		Series: series,
	}
	graph.Elements = []chart.Renderable{chart.Legend(&graph)}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	return graph.Render(chart.PNG, file)
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
