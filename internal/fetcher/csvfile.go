package fetcher

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"econindex/internal/model"
)

// CSVOptions describe one bulk-download file.
type CSVOptions struct {
	Name          string
	Path          string
	Indicator     model.IndicatorType
	Unit          string
	CountryColumn string
	NameColumn    string
	PeriodColumn  string
	ValueColumn   string
	Delimiter     rune
	CountryCodes  CodeMap
}

// CSVFile reads ILOSTAT/OECD/BIS/FAOSTAT style CSV exports. Sub-annual rows
// are averaged into one value per (country, year).
type CSVFile struct {
	opts   CSVOptions
	logger zerolog.Logger
}

// NewCSVFile constructs a CSV source with conventional column defaults.
func NewCSVFile(opts CSVOptions, logger zerolog.Logger) *CSVFile {
	if opts.CountryColumn == "" {
		opts.CountryColumn = "ref_area"
	}
	if opts.PeriodColumn == "" {
		opts.PeriodColumn = "time"
	}
	if opts.ValueColumn == "" {
		opts.ValueColumn = "obs_value"
	}
	if opts.Delimiter == 0 {
		opts.Delimiter = ','
	}
	return &CSVFile{
		opts:   opts,
		logger: logger.With().Str("component", "csv_fetcher").Str("source", opts.Name).Logger(),
	}
}

// Name implements RecordSource.
func (c *CSVFile) Name() string { return c.opts.Name }

// Fetch implements RecordSource.
func (c *CSVFile) Fetch(ctx context.Context) ([]model.IndicatorRecord, error) {
	file, err := os.Open(c.opts.Path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", c.opts.Name, err)
	}
	defer file.Close()

	return c.Parse(ctx, file)
}

// FetchFX serves an fx_rate CSV as an FX table.
func (c *CSVFile) FetchFX(ctx context.Context) ([]model.FXRecord, error) {
	if c.opts.Indicator != model.IndicatorFXRate {
		return nil, fmt.Errorf("csv source %s holds %s, not fx_rate", c.opts.Name, c.opts.Indicator)
	}
	records, err := c.Fetch(ctx)
	if err != nil {
		return nil, err
	}
	rates := make([]model.FXRecord, 0, len(records))
	for _, rec := range records {
		rates = append(rates, model.FXRecord{CountryCode: rec.CountryCode, Year: rec.Year, Rate: rec.Value})
	}
	return rates, nil
}

type annualKey struct {
	country string
	year    int
}

type annualSum struct {
	name  string
	sum   decimal.Decimal
	count int64
}

// Parse reads CSV rows from r.
func (c *CSVFile) Parse(ctx context.Context, r io.Reader) ([]model.IndicatorRecord, error) {
	reader := csv.NewReader(r)
	reader.Comma = c.opts.Delimiter
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true
	reader.ReuseRecord = true

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("read %s header: %w", c.opts.Name, err)
	}
	columns := indexColumns(header)

	countryIdx, ok := columns[strings.ToLower(c.opts.CountryColumn)]
	if !ok {
		return nil, fmt.Errorf("%s: missing column %q", c.opts.Name, c.opts.CountryColumn)
	}
	periodIdx, ok := columns[strings.ToLower(c.opts.PeriodColumn)]
	if !ok {
		return nil, fmt.Errorf("%s: missing column %q", c.opts.Name, c.opts.PeriodColumn)
	}
	valueIdx, ok := columns[strings.ToLower(c.opts.ValueColumn)]
	if !ok {
		return nil, fmt.Errorf("%s: missing column %q", c.opts.Name, c.opts.ValueColumn)
	}
	nameIdx := -1
	if c.opts.NameColumn != "" {
		if idx, ok := columns[strings.ToLower(c.opts.NameColumn)]; ok {
			nameIdx = idx
		}
	}

	sums := make(map[annualKey]*annualSum)
	var droppedCodes, badRows int
	for line := 2; ; line++ {
		if line%10000 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}

		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read %s line %d: %w", c.opts.Name, line, err)
		}

		country, ok := c.opts.CountryCodes.Resolve(field(row, countryIdx))
		if !ok {
			droppedCodes++
			continue
		}
		year, err := ParsePeriod(field(row, periodIdx))
		if err != nil {
			badRows++
			continue
		}
		raw := field(row, valueIdx)
		if raw == "" || raw == ".." {
			continue
		}
		value, err := decimal.NewFromString(raw)
		if err != nil {
			badRows++
			continue
		}

		key := annualKey{country: country, year: year}
		acc, exists := sums[key]
		if !exists {
			acc = &annualSum{sum: decimal.Zero}
			sums[key] = acc
		}
		if acc.name == "" && nameIdx >= 0 {
			acc.name = field(row, nameIdx)
		}
		acc.sum = acc.sum.Add(value)
		acc.count++
	}

	records := make([]model.IndicatorRecord, 0, len(sums))
	for key, acc := range sums {
		records = append(records, model.IndicatorRecord{
			CountryCode: key.country,
			CountryName: acc.name,
			Year:        key.year,
			Indicator:   c.opts.Indicator,
			Value:       acc.sum.Div(decimal.NewFromInt(acc.count)),
			Unit:        c.opts.Unit,
			Source:      c.opts.Name,
		})
	}
	sort.Slice(records, func(i, j int) bool {
		if records[i].CountryCode != records[j].CountryCode {
			return records[i].CountryCode < records[j].CountryCode
		}
		return records[i].Year < records[j].Year
	})

	c.logger.Debug().Int("records", len(records)).Int("dropped_codes", droppedCodes).Int("bad_rows", badRows).Msg("csv parsed")
	return records, nil
}

func indexColumns(header []string) map[string]int {
	columns := make(map[string]int, len(header))
	for i, name := range header {
		name = strings.TrimPrefix(name, "\ufeff")
		columns[strings.ToLower(strings.TrimSpace(name))] = i
	}
	return columns
}

func field(row []string, idx int) string {
	if idx < 0 || idx >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[idx])
}

var (
	_ RecordSource = (*CSVFile)(nil)
	_ FXSource     = (*CSVFile)(nil)
)
