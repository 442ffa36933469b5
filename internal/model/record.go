package model

import (
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"
)

// IndicatorType enumerates the indicator families carried through the pipeline.
type IndicatorType string

const (
	IndicatorCPI          IndicatorType = "cpi"
	IndicatorFoodCPI      IndicatorType = "food_cpi"
	IndicatorWage         IndicatorType = "wage"
	IndicatorHousingPrice IndicatorType = "housing_price"
	IndicatorFXRate       IndicatorType = "fx_rate"
)

// IndicatorTypes lists every known indicator in display order.
var IndicatorTypes = []IndicatorType{
	IndicatorCPI,
	IndicatorFoodCPI,
	IndicatorWage,
	IndicatorHousingPrice,
	IndicatorFXRate,
}

// ParseIndicatorType resolves an indicator name, accepting the legacy labels
// used by the upstream collectors.
func ParseIndicatorType(s string) (IndicatorType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "cpi":
		return IndicatorCPI, nil
	case "food_cpi":
		return IndicatorFoodCPI, nil
	case "wage", "monthly_wage":
		return IndicatorWage, nil
	case "housing_price", "housing_price_index":
		return IndicatorHousingPrice, nil
	case "fx_rate", "fx", "exchange_rate":
		return IndicatorFXRate, nil
	}
	return "", fmt.Errorf("unknown indicator type %q", s)
}

// Label returns a human readable name.
func (t IndicatorType) Label() string {
	switch t {
	case IndicatorCPI:
		return "CPI"
	case IndicatorFoodCPI:
		return "Food CPI"
	case IndicatorWage:
		return "Monthly Wage"
	case IndicatorHousingPrice:
		return "Housing Price Index"
	case IndicatorFXRate:
		return "Exchange Rate"
	}
	return string(t)
}

// CurrencyDenominated reports whether values are amounts of local currency.
// Index families are dimensionless and never converted or redenominated.
func (t IndicatorType) CurrencyDenominated() bool {
	return t == IndicatorWage
}

// Key identifies one observation in the merged dataset.
type Key struct {
	CountryCode string
	Year        int
	Indicator   IndicatorType
}

func (k Key) String() string {
	return fmt.Sprintf("%s/%d/%s", k.CountryCode, k.Year, k.Indicator)
}

// IndicatorRecord is a single annual observation from one source.
type IndicatorRecord struct {
	CountryCode         string
	CountryName         string
	Year                int
	Indicator           IndicatorType
	Value               decimal.Decimal
	ValueCommonCurrency decimal.NullDecimal
	Unit                string
	Source              string
}

// Key returns the uniqueness key of the record.
func (r IndicatorRecord) Key() Key {
	return Key{CountryCode: r.CountryCode, Year: r.Year, Indicator: r.Indicator}
}

// FXRecord holds units of local currency per unit of common currency.
type FXRecord struct {
	CountryCode string
	Year        int
	Rate        decimal.Decimal
}

// SortRecords orders records by country, indicator, then year.
func SortRecords(records []IndicatorRecord) {
	sort.SliceStable(records, func(i, j int) bool {
		a, b := records[i], records[j]
		if a.CountryCode != b.CountryCode {
			return a.CountryCode < b.CountryCode
		}
		if a.Indicator != b.Indicator {
			return a.Indicator < b.Indicator
		}
		return a.Year < b.Year
	})
}

// IsISO3 reports whether code looks like an ISO 3166-1 alpha-3 country code.
func IsISO3(code string) bool {
	if len(code) != 3 {
		return false
	}
	for _, c := range code {
		if c < 'A' || c > 'Z' {
			return false
		}
	}
	return true
}
