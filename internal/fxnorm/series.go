package fxnorm

import (
	"fmt"

	"github.com/shopspring/decimal"

	"econindex/internal/model"
)

type seriesKey struct {
	country string
	year    int
}

// Series is an exact (country, year) rate lookup.
type Series struct {
	rates map[seriesKey]decimal.Decimal
}

// NewSeries indexes records. A repeated (country, year) means the upstream
// source broke its own uniqueness and is rejected.
func NewSeries(records []model.FXRecord) (*Series, error) {
	rates := make(map[seriesKey]decimal.Decimal, len(records))
	for _, rec := range records {
		key := seriesKey{country: rec.CountryCode, year: rec.Year}
		if _, dup := rates[key]; dup {
			return nil, fmt.Errorf("fxnorm: duplicate rate for %s %d", rec.CountryCode, rec.Year)
		}
		rates[key] = rec.Rate
	}
	return &Series{rates: rates}, nil
}

// Rate returns the rate at exactly (country, year). Neighbouring years are
// never consulted.
func (s *Series) Rate(country string, year int) (decimal.Decimal, bool) {
	if s == nil {
		return decimal.Decimal{}, false
	}
	rate, ok := s.rates[seriesKey{country: country, year: year}]
	return rate, ok
}

// Len returns the number of indexed rates.
func (s *Series) Len() int {
	if s == nil {
		return 0
	}
	return len(s.rates)
}
