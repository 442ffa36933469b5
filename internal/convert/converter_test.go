package convert

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"econindex/internal/fxnorm"
	"econindex/internal/model"
	"econindex/internal/reference"
)

func wage(country string, year int, value string) model.IndicatorRecord {
	return model.IndicatorRecord{
		CountryCode: country,
		Year:        year,
		Indicator:   model.IndicatorWage,
		Value:       decimal.RequireFromString(value),
		Source:      "ilostat",
	}
}

func romaniaRates(t *testing.T) *fxnorm.Series {
	t.Helper()
	tables, err := reference.Default()
	require.NoError(t, err)

	raw := []model.FXRecord{
		{CountryCode: "ROU", Year: 2003, Rate: decimal.RequireFromString("3.3200")},
		{CountryCode: "ROU", Year: 2004, Rate: decimal.RequireFromString("3.2637")},
		{CountryCode: "ROU", Year: 2005, Rate: decimal.RequireFromString("2.9137")},
		{CountryCode: "ROU", Year: 2006, Rate: decimal.RequireFromString("2.8090")},
	}
	series, err := fxnorm.NewSeries(fxnorm.New(tables).Normalize(raw))
	require.NoError(t, err)
	return series
}

func TestRomaniaIsSmoothAcrossRedenomination(t *testing.T) {
	rates := romaniaRates(t)
	records := []model.IndicatorRecord{
		wage("ROU", 2003, "6637868"),
		wage("ROU", 2004, "8183317"),
		wage("ROU", 2005, "968"),
		wage("ROU", 2006, "1146"),
	}

	out, stats := newConverter(t, nil).Apply(records, rates)
	assert.Equal(t, 4, stats.Converted)
	assert.Equal(t, 0, stats.MissingRate)

	want := []float64{199.9, 250.7, 332.2, 408.0}
	for i, rec := range out {
		require.True(t, rec.ValueCommonCurrency.Valid)
		assert.InDelta(t, want[i], rec.ValueCommonCurrency.Decimal.InexactFloat64(), 0.1, "year %d", rec.Year)
	}

	for i := 1; i < len(out); i++ {
		prev := out[i-1].ValueCommonCurrency.Decimal
		curr := out[i].ValueCommonCurrency.Decimal
		ratio := curr.Div(prev).InexactFloat64()
		assert.Greater(t, ratio, 1.0)
		assert.Less(t, ratio, 2.0, "jump between %d and %d", out[i-1].Year, out[i].Year)
	}
}

func TestMissingRateIsAbsentNotFatal(t *testing.T) {
	rates := romaniaRates(t)
	records := []model.IndicatorRecord{
		wage("ROU", 2003, "6637868"),
		wage("ROU", 2007, "1400"),
		wage("BGR", 2003, "300"),
	}

	out, stats := newConverter(t, nil).Apply(records, rates)
	require.Len(t, out, 3)
	assert.Equal(t, 1, stats.Converted)
	assert.Equal(t, 2, stats.MissingRate)
	assert.True(t, out[0].ValueCommonCurrency.Valid)
	assert.False(t, out[1].ValueCommonCurrency.Valid)
	assert.False(t, out[2].ValueCommonCurrency.Valid)
	assert.True(t, out[1].Value.Equal(decimal.NewFromInt(1400)))
}

func TestToCommonCurrencyErrors(t *testing.T) {
	rates := romaniaRates(t)
	_, err := ToCommonCurrency(wage("ROU", 1999, "1"), rates)
	assert.ErrorIs(t, err, ErrMissingRate)

	zero, err := fxnorm.NewSeries([]model.FXRecord{{CountryCode: "XXX", Year: 2000, Rate: decimal.Zero}})
	require.NoError(t, err)
	_, err = ToCommonCurrency(wage("XXX", 2000, "1"), zero)
	assert.ErrorIs(t, err, ErrMissingRate)
}

func TestConverterRespectsIndicatorSelection(t *testing.T) {
	rates := romaniaRates(t)
	cpi := wage("ROU", 2003, "100")
	cpi.Indicator = model.IndicatorCPI

	out, stats := newConverter(t, []model.IndicatorType{model.IndicatorWage}).Apply(
		[]model.IndicatorRecord{cpi, wage("ROU", 2003, "6637868")}, rates)

	assert.Equal(t, 1, stats.Skipped)
	assert.Equal(t, 1, stats.Converted)
	assert.False(t, out[0].ValueCommonCurrency.Valid)
	assert.True(t, out[1].ValueCommonCurrency.Valid)
}

func TestDefaultConverterLeavesIndicesAlone(t *testing.T) {
	rates := romaniaRates(t)
	var records []model.IndicatorRecord
	for year, v := range map[int]string{2004: "50", 2005: "60", 2006: "66"} {
		cpi := wage("ROU", year, v)
		cpi.Indicator = model.IndicatorCPI
		records = append(records, cpi)
	}

	out, stats := newConverter(t, nil).Apply(records, rates)
	assert.Equal(t, 3, stats.Skipped)
	assert.Equal(t, 0, stats.Converted)
	for _, rec := range out {
		assert.False(t, rec.ValueCommonCurrency.Valid, "cpi %d must stay dimensionless", rec.Year)
	}
}

func TestNewConverterRejectsIndexIndicators(t *testing.T) {
	for _, indicator := range []model.IndicatorType{model.IndicatorCPI, model.IndicatorFoodCPI, model.IndicatorHousingPrice, model.IndicatorFXRate} {
		_, err := NewConverter([]model.IndicatorType{model.IndicatorWage, indicator})
		assert.ErrorIs(t, err, ErrNotConvertible, "%s", indicator)
	}
}

func newConverter(t *testing.T, indicators []model.IndicatorType) *Converter {
	t.Helper()
	c, err := NewConverter(indicators)
	require.NoError(t, err)
	return c
}

func TestStatsAdd(t *testing.T) {
	s := Stats{Converted: 1}
	s.Add(Stats{Converted: 2, MissingRate: 3, Skipped: 4})
	assert.Equal(t, Stats{Converted: 3, MissingRate: 3, Skipped: 4}, s)
}
