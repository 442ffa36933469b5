package rebase

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"econindex/internal/model"
)

// ErrNoBaseYear reports that a policy found no usable year in the comparison set.
var ErrNoBaseYear = errors.New("rebase: no base year available")

// Policy selects how a base year is chosen.
type Policy string

const (
	// PolicyFixed always uses Selector.Year.
	PolicyFixed Policy = "fixed"
	// PolicyEarliestCommon uses the earliest year in which every series has a value.
	PolicyEarliestCommon Policy = "earliest_common"
	// PolicyLatestFirst uses the latest of the series' first years.
	PolicyLatestFirst Policy = "latest_first"
)

// ParsePolicy resolves a policy name.
func ParsePolicy(s string) (Policy, error) {
	switch Policy(strings.ToLower(strings.TrimSpace(s))) {
	case PolicyFixed:
		return PolicyFixed, nil
	case PolicyEarliestCommon:
		return PolicyEarliestCommon, nil
	case PolicyLatestFirst:
		return PolicyLatestFirst, nil
	}
	return "", fmt.Errorf("unknown base year policy %q", s)
}

// Selector picks one base year for a comparison set.
type Selector struct {
	Policy Policy
	Year   int
}

// Select applies the policy. The set must have been built with the same value
// column that will be rebased; empty series count as having no years.
func (s Selector) Select(set []Series) (int, error) {
	switch s.Policy {
	case PolicyFixed, "":
		if s.Year == 0 {
			return 0, fmt.Errorf("%w: fixed policy without a year", ErrNoBaseYear)
		}
		return s.Year, nil
	case PolicyEarliestCommon:
		year, ok := EarliestCommonYear(set)
		if !ok {
			return 0, ErrNoBaseYear
		}
		return year, nil
	case PolicyLatestFirst:
		year, ok := LatestFirstYear(set)
		if !ok {
			return 0, ErrNoBaseYear
		}
		return year, nil
	}
	return 0, fmt.Errorf("unknown base year policy %q", s.Policy)
}

// EarliestCommonYear returns the earliest year present in every series.
func EarliestCommonYear(set []Series) (int, bool) {
	if len(set) == 0 {
		return 0, false
	}
	counts := make(map[int]int)
	for _, series := range set {
		for _, year := range series.Years() {
			counts[year]++
		}
	}
	years := make([]int, 0, len(counts))
	for year, n := range counts {
		if n == len(set) {
			years = append(years, year)
		}
	}
	if len(years) == 0 {
		return 0, false
	}
	sort.Ints(years)
	return years[0], true
}

// LatestFirstYear returns the latest among the first years of the non-empty
// series.
func LatestFirstYear(set []Series) (int, bool) {
	found := false
	latest := 0
	for _, series := range set {
		if len(series.Points) == 0 {
			continue
		}
		first := series.Points[0].Year
		if !found || first > latest {
			latest = first
			found = true
		}
	}
	return latest, found
}

// Comparison is a cross-country view of one indicator on one base year.
type Comparison struct {
	Indicator model.IndicatorType
	Column    model.ValueColumn
	BaseYear  int
	Series    []RebasedSeries
	Absent    []*MissingBaseYearError
}

// Compare selects the base year from the rows carrying column, then rebases
// every requested country on that same year. Countries without any row in
// column take no part in the selection; they and countries whose base value
// is missing are reported in Absent rather than dropped silently.
func Compare(records []model.IndicatorRecord, indicator model.IndicatorType, column model.ValueColumn, countries []string, sel Selector) (Comparison, error) {
	set := Group(records, indicator, column, countries...)
	selectable := make([]Series, 0, len(set))
	for _, series := range set {
		if len(series.Points) > 0 {
			selectable = append(selectable, series)
		}
	}
	baseYear, err := sel.Select(selectable)
	if err != nil {
		return Comparison{}, err
	}

	cmp := Comparison{Indicator: indicator, Column: column, BaseYear: baseYear}
	for _, series := range set {
		rebased, err := Rebase(series, baseYear)
		if err != nil {
			var missing *MissingBaseYearError
			if errors.As(err, &missing) {
				cmp.Absent = append(cmp.Absent, missing)
				continue
			}
			return Comparison{}, err
		}
		cmp.Series = append(cmp.Series, rebased)
	}
	return cmp, nil
}
