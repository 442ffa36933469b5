package rebase

import (
	"sort"

	"github.com/shopspring/decimal"

	"econindex/internal/model"
)

// Point is one (year, value) observation.
type Point struct {
	Year  int
	Value decimal.Decimal
}

// Series is the ordered value series of one (country, indicator) taken from a
// single value column.
type Series struct {
	Country   string
	Indicator model.IndicatorType
	Column    model.ValueColumn
	Points    []Point
}

// Value returns the value at year.
func (s Series) Value(year int) (decimal.Decimal, bool) {
	i := sort.Search(len(s.Points), func(i int) bool { return s.Points[i].Year >= year })
	if i < len(s.Points) && s.Points[i].Year == year {
		return s.Points[i].Value, true
	}
	return decimal.Decimal{}, false
}

// Years returns the years carrying a value.
func (s Series) Years() []int {
	years := make([]int, len(s.Points))
	for i, p := range s.Points {
		years[i] = p.Year
	}
	return years
}

type seriesKey struct {
	country   string
	indicator model.IndicatorType
}

// Extract builds the series of one (country, indicator). Rows lacking the
// requested column are left out, so later base-year selection only ever sees
// years that can actually be rebased.
func Extract(records []model.IndicatorRecord, country string, indicator model.IndicatorType, column model.ValueColumn) Series {
	series := Series{Country: country, Indicator: indicator, Column: column}
	for _, rec := range records {
		if rec.CountryCode != country || rec.Indicator != indicator {
			continue
		}
		value, ok := column.Pick(rec)
		if !ok {
			continue
		}
		series.Points = append(series.Points, Point{Year: rec.Year, Value: value})
	}
	sortPoints(series.Points)
	return series
}

// Group splits records of one indicator into per-country series, sorted by
// country. When countries is non-empty only those countries are returned,
// in the given order, including empty series for countries without data.
func Group(records []model.IndicatorRecord, indicator model.IndicatorType, column model.ValueColumn, countries ...string) []Series {
	byCountry := make(map[seriesKey]*Series)
	for _, rec := range records {
		if rec.Indicator != indicator {
			continue
		}
		value, ok := column.Pick(rec)
		if !ok {
			continue
		}
		key := seriesKey{country: rec.CountryCode, indicator: indicator}
		s, exists := byCountry[key]
		if !exists {
			s = &Series{Country: rec.CountryCode, Indicator: indicator, Column: column}
			byCountry[key] = s
		}
		s.Points = append(s.Points, Point{Year: rec.Year, Value: value})
	}

	if len(countries) == 0 {
		for key := range byCountry {
			countries = append(countries, key.country)
		}
		sort.Strings(countries)
	}

	out := make([]Series, 0, len(countries))
	for _, country := range countries {
		s, ok := byCountry[seriesKey{country: country, indicator: indicator}]
		if !ok {
			out = append(out, Series{Country: country, Indicator: indicator, Column: column})
			continue
		}
		sortPoints(s.Points)
		out = append(out, *s)
	}
	return out
}

func sortPoints(points []Point) {
	sort.Slice(points, func(i, j int) bool { return points[i].Year < points[j].Year })
}
