package pipeline

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"econindex/internal/convert"
	"econindex/internal/fetcher"
	"econindex/internal/merge"
	"econindex/internal/model"
	"econindex/internal/rebase"
	"econindex/internal/reference"
)

func rec(country string, year int, indicator model.IndicatorType, value string) model.IndicatorRecord {
	return model.IndicatorRecord{
		CountryCode: country,
		Year:        year,
		Indicator:   indicator,
		Value:       decimal.RequireFromString(value),
	}
}

func fx(country string, year int, rate string) model.FXRecord {
	return model.FXRecord{CountryCode: country, Year: year, Rate: decimal.RequireFromString(rate)}
}

func dataset() Dataset {
	return Dataset{
		Streams: []merge.Stream{
			{Source: "ilostat", Records: []model.IndicatorRecord{
				rec("ROU", 2003, model.IndicatorWage, "6637868"),
				rec("ROU", 2004, model.IndicatorWage, "8183317"),
				rec("ROU", 2005, model.IndicatorWage, "968"),
				rec("ROU", 2006, model.IndicatorWage, "1146"),
				rec("BGR", 2005, model.IndicatorWage, "400"),
				rec("BGR", 2006, model.IndicatorWage, "420"),
				rec("HUN", 2003, model.IndicatorWage, "150000"),
				rec("HUN", 2004, model.IndicatorWage, "160000"),
				rec("HUN", 2006, model.IndicatorWage, "180000"),
				rec("X1", 2005, model.IndicatorWage, "1"),
			}},
			{Source: "oecd", Records: []model.IndicatorRecord{
				rec("ROU", 2003, model.IndicatorWage, "1"),
				rec("DEU", 2004, model.IndicatorWage, "2000"),
				rec("DEU", 2005, model.IndicatorWage, "2100"),
				rec("DEU", 2006, model.IndicatorWage, "2200"),
			}},
			{Source: "worldbank", Records: []model.IndicatorRecord{
				rec("ROU", 2004, model.IndicatorCPI, "50"),
				rec("ROU", 2005, model.IndicatorCPI, "60"),
				rec("ROU", 2006, model.IndicatorCPI, "66"),
			}},
		},
		FX: []model.FXRecord{
			fx("ROU", 2003, "3.3200"),
			fx("ROU", 2004, "3.2637"),
			fx("ROU", 2005, "2.9137"),
			fx("ROU", 2006, "2.8090"),
			fx("DEU", 2004, "0.8"),
			fx("DEU", 2005, "0.8"),
			fx("DEU", 2006, "0.8"),
			fx("HUN", 2003, "200"),
			fx("HUN", 2004, "200"),
			fx("HUN", 2006, "200"),
			fx("BGR", 2005, "1.5"),
			fx("BGR", 2006, "1.5"),
		},
	}
}

func options() Options {
	return Options{
		Workers:           2,
		ConvertIndicators: []model.IndicatorType{model.IndicatorWage},
		SparseIndicators:  []model.IndicatorType{model.IndicatorWage},
		SparseMinPoints:   3,
		Selector:          rebase.Selector{Policy: rebase.PolicyFixed, Year: 2005},
		Column:            model.ColumnCommon,
		EmitFX:            true,
		RoundCommon:       4,
		RoundIndex:        2,
	}
}

func newOrchestrator(t *testing.T, opts Options, tables *reference.Tables) *Orchestrator {
	t.Helper()
	plan, err := merge.NewPlan([]merge.Pair{{Indicator: model.IndicatorWage, Primary: "ilostat", Fallback: "oecd"}})
	require.NoError(t, err)
	o, err := New(opts, tables, plan, zerolog.Nop())
	require.NoError(t, err)
	return o
}

func defaultTables(t *testing.T) *reference.Tables {
	t.Helper()
	tables, err := reference.Default()
	require.NoError(t, err)
	return tables
}

func find(t *testing.T, records []model.NormalizedRecord, country string, year int, indicator model.IndicatorType) model.NormalizedRecord {
	t.Helper()
	for _, r := range records {
		if r.CountryCode == country && r.Year == year && r.Indicator == indicator {
			return r
		}
	}
	t.Fatalf("no record %s/%d/%s", country, year, indicator)
	return model.NormalizedRecord{}
}

func TestRunEndToEnd(t *testing.T) {
	res, err := newOrchestrator(t, options(), defaultTables(t)).Run(context.Background(), dataset())
	require.NoError(t, err)
	require.NotEmpty(t, res.RunID)

	assert.Equal(t, 1, res.Stats.DroppedCodes)
	assert.Equal(t, 1, res.Stats.SparseDropped)
	assert.Equal(t, 2005, res.BaseYears[model.IndicatorWage])
	// cpi is not converted, so it has no common-currency rows to rebase.
	assert.Equal(t, []model.IndicatorType{model.IndicatorCPI}, res.NoBaseYear)

	rou := find(t, res.Records, "ROU", 2003, model.IndicatorWage)
	assert.Equal(t, "ilostat", rou.Source)
	assert.Equal(t, "Romania", rou.CountryName)
	assert.True(t, rou.ValueCommonCurrency.Decimal.Equal(decimal.RequireFromString("199.9358")))
	assert.True(t, rou.ValueRebased.Decimal.Equal(decimal.RequireFromString("60.18")))
	assert.Equal(t, 2005, rou.BaseYear)
	assert.Equal(t, res.RunID, rou.RunID)

	base := find(t, res.Records, "ROU", 2005, model.IndicatorWage)
	assert.True(t, base.ValueRebased.Decimal.Equal(decimal.NewFromInt(100)))
	last := find(t, res.Records, "ROU", 2006, model.IndicatorWage)
	assert.True(t, last.ValueRebased.Decimal.Equal(decimal.RequireFromString("122.8")))

	deu := find(t, res.Records, "DEU", 2004, model.IndicatorWage)
	assert.Equal(t, "oecd", deu.Source)
	assert.True(t, deu.ValueCommonCurrency.Decimal.Equal(decimal.NewFromInt(2500)))

	for _, r := range res.Records {
		assert.False(t, r.CountryCode == "BGR" && r.Indicator == model.IndicatorWage, "sparse BGR wage series must be dropped")
	}

	require.Len(t, res.Absent, 1)
	assert.Equal(t, "HUN", res.Absent[0].Country)
	assert.True(t, errors.Is(res.Absent[0], rebase.ErrMissingBaseYear))
	hun := find(t, res.Records, "HUN", 2003, model.IndicatorWage)
	assert.True(t, hun.ValueCommonCurrency.Valid)
	assert.False(t, hun.ValueRebased.Valid)

	cpi := find(t, res.Records, "ROU", 2005, model.IndicatorCPI)
	assert.False(t, cpi.ValueCommonCurrency.Valid)
	assert.False(t, cpi.ValueRebased.Valid)

	rate := find(t, res.Records, "ROU", 2003, model.IndicatorFXRate)
	assert.True(t, rate.Value.Equal(decimal.NewFromInt(33200)))
	assert.Equal(t, FXUnit, rate.Unit)
	assert.Equal(t, FXSourceID, rate.Source)
	assert.Equal(t, 12, res.Stats.FXEmitted)
	assert.Equal(t, len(res.Records), res.Stats.Output)
}

func TestRunOutputIsSortedAndUnique(t *testing.T) {
	res, err := newOrchestrator(t, options(), defaultTables(t)).Run(context.Background(), dataset())
	require.NoError(t, err)

	seen := make(map[model.Key]bool)
	for i, r := range res.Records {
		require.False(t, seen[r.Key()], "duplicate %s", r.Key())
		seen[r.Key()] = true
		if i == 0 {
			continue
		}
		prev := res.Records[i-1]
		ordered := prev.CountryCode < r.CountryCode ||
			(prev.CountryCode == r.CountryCode && prev.Indicator < r.Indicator) ||
			(prev.CountryCode == r.CountryCode && prev.Indicator == r.Indicator && prev.Year < r.Year)
		assert.True(t, ordered, "%s before %s", prev.Key(), r.Key())
	}
}

func TestRunEarliestCommonUsesRebasedColumn(t *testing.T) {
	opts := options()
	opts.Selector = rebase.Selector{Policy: rebase.PolicyEarliestCommon}
	ds := dataset()
	// HUN has no 2005 rate row, DEU starts in 2004.
	res, err := newOrchestrator(t, opts, defaultTables(t)).Run(context.Background(), ds)
	require.NoError(t, err)
	assert.Equal(t, 2004, res.BaseYears[model.IndicatorWage])
	assert.Empty(t, res.Absent)
}

func TestRunDuplicateOutput(t *testing.T) {
	ds := dataset()
	ds.Streams = append(ds.Streams, merge.Stream{Source: "imf", Records: []model.IndicatorRecord{
		rec("ROU", 2003, model.IndicatorFXRate, "3.32"),
	}})

	_, err := newOrchestrator(t, options(), defaultTables(t)).Run(context.Background(), ds)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDuplicateOutput)
}

func TestRunUndeclaredOverlapIsFatal(t *testing.T) {
	ds := dataset()
	ds.Streams = append(ds.Streams, merge.Stream{Source: "imf", Records: []model.IndicatorRecord{
		rec("ROU", 2005, model.IndicatorCPI, "61"),
	}})

	_, err := newOrchestrator(t, options(), defaultTables(t)).Run(context.Background(), ds)
	require.Error(t, err)
	assert.ErrorIs(t, err, merge.ErrDuplicateKey)
}

func TestRunFlagsMissedRedenomination(t *testing.T) {
	opts := options()
	opts.DetectAnomalies = true
	opts.JumpFactor = 50

	res, err := newOrchestrator(t, opts, nil).Run(context.Background(), dataset())
	require.NoError(t, err)
	require.Len(t, res.Findings, 1)
	assert.Equal(t, "ROU", res.Findings[0].Country)
	assert.Equal(t, 2005, res.Findings[0].ToYear)

	res, err = newOrchestrator(t, opts, defaultTables(t)).Run(context.Background(), dataset())
	require.NoError(t, err)
	assert.Empty(t, res.Findings)
}

func TestRunCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := newOrchestrator(t, options(), defaultTables(t)).Run(ctx, dataset())
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNewRejectsConvertingIndices(t *testing.T) {
	opts := options()
	opts.ConvertIndicators = []model.IndicatorType{model.IndicatorCPI, model.IndicatorWage}
	_, err := New(opts, defaultTables(t), nil, zerolog.Nop())
	assert.ErrorIs(t, err, convert.ErrNotConvertible)
}

func TestRunDefaultConversionKeepsIndicesSmooth(t *testing.T) {
	opts := options()
	opts.ConvertIndicators = nil
	opts.DetectAnomalies = true
	opts.JumpFactor = 50

	res, err := newOrchestrator(t, opts, defaultTables(t)).Run(context.Background(), dataset())
	require.NoError(t, err)
	assert.Empty(t, res.Findings)
	for _, year := range []int{2004, 2005, 2006} {
		cpi := find(t, res.Records, "ROU", year, model.IndicatorCPI)
		assert.False(t, cpi.ValueCommonCurrency.Valid, "cpi %d must not be converted", year)
	}
	assert.True(t, find(t, res.Records, "ROU", 2005, model.IndicatorWage).ValueCommonCurrency.Valid)
}

func TestRunLocalColumnRebasesIndices(t *testing.T) {
	opts := options()
	opts.Column = model.ColumnLocal

	res, err := newOrchestrator(t, opts, defaultTables(t)).Run(context.Background(), dataset())
	require.NoError(t, err)
	assert.Empty(t, res.NoBaseYear)
	assert.Equal(t, 2005, res.BaseYears[model.IndicatorCPI])
	cpi := find(t, res.Records, "ROU", 2006, model.IndicatorCPI)
	assert.True(t, cpi.ValueRebased.Decimal.Equal(decimal.NewFromInt(110)))
}

func TestRunReportsSeriesWithoutRebasedColumn(t *testing.T) {
	ds := dataset()
	ds.Streams[0].Records = append(ds.Streams[0].Records,
		rec("POL", 2004, model.IndicatorWage, "2000"),
		rec("POL", 2005, model.IndicatorWage, "2100"),
		rec("POL", 2006, model.IndicatorWage, "2200"),
	)

	res, err := newOrchestrator(t, options(), defaultTables(t)).Run(context.Background(), ds)
	require.NoError(t, err)

	absent := make(map[string]bool)
	for _, missing := range res.Absent {
		absent[missing.Country] = true
	}
	assert.Equal(t, map[string]bool{"HUN": true, "POL": true}, absent)
	assert.Equal(t, 2, res.Stats.Absent)
	pol := find(t, res.Records, "POL", 2005, model.IndicatorWage)
	assert.False(t, pol.ValueCommonCurrency.Valid)
	assert.False(t, pol.ValueRebased.Valid)
}

func TestRunDropsAggregatesAndNonPositiveRates(t *testing.T) {
	ds := dataset()
	ds.Streams[0].Records = append(ds.Streams[0].Records,
		rec("EUU", 2004, model.IndicatorWage, "2500"),
		rec("EUU", 2005, model.IndicatorWage, "2600"),
		rec("EUU", 2006, model.IndicatorWage, "2700"),
	)
	ds.FX = append(ds.FX,
		fx("EUU", 2005, "0.8"),
		fx("ROU", 2007, "0"),
		fx("BGR", 2007, "-1.5"),
	)

	res, err := newOrchestrator(t, options(), defaultTables(t)).Run(context.Background(), ds)
	require.NoError(t, err)

	assert.Equal(t, 4, res.Stats.DroppedCodes)
	assert.Equal(t, 2, res.Stats.DroppedRates)
	assert.Equal(t, 12, res.Stats.FXEmitted)
	for _, r := range res.Records {
		assert.NotEqual(t, "EUU", r.CountryCode)
		assert.False(t, r.Indicator == model.IndicatorFXRate && r.Year == 2007, "non-positive rate emitted for %s", r.CountryCode)
	}
}

func TestCollectGroupsBySourceName(t *testing.T) {
	sources := []fetcher.RecordSource{
		fetcher.NewStatic("worldbank", []model.IndicatorRecord{rec("ROU", 2005, model.IndicatorCPI, "60")}),
		fetcher.NewStatic("ilostat", []model.IndicatorRecord{rec("ROU", 2005, model.IndicatorWage, "968")}),
		fetcher.NewStatic("worldbank", []model.IndicatorRecord{rec("ROU", 2005, model.IndicatorFoodCPI, "70")}),
	}
	ds, err := Collect(context.Background(), sources, []fetcher.FXSource{fetcher.StaticFX{fx("ROU", 2005, "2.9137")}})
	require.NoError(t, err)

	require.Len(t, ds.Streams, 2)
	assert.Equal(t, "worldbank", ds.Streams[0].Source)
	assert.Len(t, ds.Streams[0].Records, 2)
	assert.Equal(t, "ilostat", ds.Streams[1].Source)
	assert.Len(t, ds.FX, 1)
}
