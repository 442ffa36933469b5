// Package rebase turns absolute value series into indices relative to a base
// year (base year = 100).
package rebase

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"econindex/internal/model"
)

// ErrMissingBaseYear marks a series that cannot be rebased: its base-year
// value is absent or zero.
var ErrMissingBaseYear = errors.New("rebase: base year value missing or zero")

var hundred = decimal.NewFromInt(100)

// MissingBaseYearError identifies the Absent series.
type MissingBaseYearError struct {
	Country   string
	Indicator model.IndicatorType
	Column    model.ValueColumn
	BaseYear  int
	Zero      bool
}

func (e *MissingBaseYearError) Error() string {
	reason := "missing"
	if e.Zero {
		reason = "zero"
	}
	return fmt.Sprintf("rebase: %s %s (%s) base year %d value is %s", e.Country, e.Indicator, e.Column, e.BaseYear, reason)
}

// Is lets errors.Is match ErrMissingBaseYear.
func (e *MissingBaseYearError) Is(target error) bool {
	return target == ErrMissingBaseYear
}

// RebasedSeries holds index values; the base year point is exactly 100.
type RebasedSeries struct {
	Country   string
	Indicator model.IndicatorType
	Column    model.ValueColumn
	BaseYear  int
	Points    []Point
}

// Index returns the index value at year.
func (r RebasedSeries) Index(year int) (decimal.Decimal, bool) {
	return Series{Points: r.Points}.Value(year)
}

// Rebase computes value(year) / value(baseYear) * 100 for every point. The
// whole series is Absent (a *MissingBaseYearError) when the base value is
// missing or zero; no partial result is returned.
func Rebase(series Series, baseYear int) (RebasedSeries, error) {
	base, ok := series.Value(baseYear)
	if !ok || base.IsZero() {
		return RebasedSeries{}, &MissingBaseYearError{
			Country:   series.Country,
			Indicator: series.Indicator,
			Column:    series.Column,
			BaseYear:  baseYear,
			Zero:      ok,
		}
	}

	out := RebasedSeries{
		Country:   series.Country,
		Indicator: series.Indicator,
		Column:    series.Column,
		BaseYear:  baseYear,
		Points:    make([]Point, len(series.Points)),
	}
	for i, p := range series.Points {
		index := hundred
		if p.Year != baseYear {
			index = p.Value.Div(base).Mul(hundred)
		}
		out.Points[i] = Point{Year: p.Year, Value: index}
	}
	return out, nil
}

// Request is what a consumer asks for: one series, one base year, and an
// explicit value column.
type Request struct {
	Country   string
	Indicator model.IndicatorType
	BaseYear  int
	Column    model.ValueColumn
}

// ForRequest extracts and rebases the requested series.
func ForRequest(records []model.IndicatorRecord, req Request) (RebasedSeries, error) {
	return Rebase(Extract(records, req.Country, req.Indicator, req.Column), req.BaseYear)
}
