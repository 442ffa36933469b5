// Package convert expresses local-currency values in the common currency.
package convert

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"econindex/internal/model"
)

// ErrMissingRate reports that no usable rate exists at the record's exact
// (country, year). It only ever removes a record from the common-currency view.
var ErrMissingRate = errors.New("convert: missing exchange rate")

// ErrNotConvertible rejects indicators that are not currency amounts.
var ErrNotConvertible = errors.New("convert: indicator is not currency-denominated")

// RateLookup resolves a normalized rate at an exact (country, year).
type RateLookup interface {
	Rate(country string, year int) (decimal.Decimal, bool)
}

// ToCommonCurrency divides the record value by the normalized rate of the same
// country and year.
func ToCommonCurrency(rec model.IndicatorRecord, rates RateLookup) (decimal.Decimal, error) {
	rate, ok := rates.Rate(rec.CountryCode, rec.Year)
	if !ok || !rate.IsPositive() {
		return decimal.Decimal{}, fmt.Errorf("%w: %s %d", ErrMissingRate, rec.CountryCode, rec.Year)
	}
	return rec.Value.Div(rate), nil
}

// Stats counts the outcome of one Apply call.
type Stats struct {
	Converted   int
	MissingRate int
	Skipped     int
}

// Add accumulates other into s.
func (s *Stats) Add(other Stats) {
	s.Converted += other.Converted
	s.MissingRate += other.MissingRate
	s.Skipped += other.Skipped
}

// Converter fills ValueCommonCurrency for a configured set of indicators.
type Converter struct {
	indicators map[model.IndicatorType]bool
}

// NewConverter converts the listed indicators, or every currency-denominated
// indicator when the list is empty. Index families are rejected: dividing an
// index by a redenominated rate reintroduces the reform as a spike.
func NewConverter(indicators []model.IndicatorType) (*Converter, error) {
	set := make(map[model.IndicatorType]bool)
	if len(indicators) == 0 {
		for _, t := range model.IndicatorTypes {
			if t.CurrencyDenominated() {
				set[t] = true
			}
		}
	}
	for _, t := range indicators {
		if !t.CurrencyDenominated() {
			return nil, fmt.Errorf("%w: %s", ErrNotConvertible, t)
		}
		set[t] = true
	}
	return &Converter{indicators: set}, nil
}

// Apply returns converted copies of records. A missing rate leaves
// ValueCommonCurrency absent; the record itself is kept.
func (c *Converter) Apply(records []model.IndicatorRecord, rates RateLookup) ([]model.IndicatorRecord, Stats) {
	var stats Stats
	out := make([]model.IndicatorRecord, len(records))
	for i, rec := range records {
		out[i] = rec
		out[i].ValueCommonCurrency = decimal.NullDecimal{}
		if !c.indicators[rec.Indicator] {
			stats.Skipped++
			continue
		}
		value, err := ToCommonCurrency(rec, rates)
		if err != nil {
			stats.MissingRate++
			continue
		}
		out[i].ValueCommonCurrency = decimal.NewNullDecimal(value)
		stats.Converted++
	}
	return out, stats
}
