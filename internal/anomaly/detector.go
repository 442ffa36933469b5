// Package anomaly flags year-over-year jumps in converted series that are
// large enough to indicate a missed currency reform or a bad division.
package anomaly

import (
	"fmt"

	"github.com/shopspring/decimal"

	"econindex/internal/model"
	"econindex/internal/rebase"
)

// DefaultJumpFactor is the smallest consecutive-year ratio reported.
const DefaultJumpFactor = 50

// Finding is one suspicious step between two consecutive years.
type Finding struct {
	Country   string
	Indicator model.IndicatorType
	Column    model.ValueColumn
	FromYear  int
	ToYear    int
	From      decimal.Decimal
	To        decimal.Decimal
	Ratio     decimal.Decimal
}

func (f Finding) String() string {
	return fmt.Sprintf("%s %s %d->%d: %s -> %s (x%s)", f.Country, f.Indicator, f.FromYear, f.ToYear,
		f.From.StringFixed(2), f.To.StringFixed(2), f.Ratio.StringFixed(1))
}

// Detector scans one value column for discontinuities.
type Detector struct {
	jump   decimal.Decimal
	column model.ValueColumn
}

// NewDetector builds a detector; non-positive factors fall back to DefaultJumpFactor.
func NewDetector(jumpFactor float64, column model.ValueColumn) *Detector {
	jump := decimal.NewFromFloat(jumpFactor)
	if jumpFactor <= 1 {
		jump = decimal.NewFromInt(DefaultJumpFactor)
	}
	if column == "" {
		column = model.ColumnCommon
	}
	return &Detector{jump: jump, column: column}
}

// Scan reports every consecutive-year pair whose larger/smaller ratio reaches
// the jump factor. Non-positive values are ignored.
func (d *Detector) Scan(records []model.IndicatorRecord) []Finding {
	var findings []Finding
	for _, indicator := range model.IndicatorTypes {
		for _, series := range rebase.Group(records, indicator, d.column) {
			findings = append(findings, d.scanSeries(series)...)
		}
	}
	return findings
}

func (d *Detector) scanSeries(series rebase.Series) []Finding {
	var findings []Finding
	for i := 1; i < len(series.Points); i++ {
		prev, curr := series.Points[i-1], series.Points[i]
		if curr.Year != prev.Year+1 || !prev.Value.IsPositive() || !curr.Value.IsPositive() {
			continue
		}
		hi, lo := curr.Value, prev.Value
		if lo.GreaterThan(hi) {
			hi, lo = lo, hi
		}
		ratio := hi.Div(lo)
		if ratio.LessThan(d.jump) {
			continue
		}
		findings = append(findings, Finding{
			Country:   series.Country,
			Indicator: series.Indicator,
			Column:    series.Column,
			FromYear:  prev.Year,
			ToYear:    curr.Year,
			From:      prev.Value,
			To:        curr.Value,
			Ratio:     ratio,
		})
	}
	return findings
}
