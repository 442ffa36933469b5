package anomaly

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"econindex/internal/model"
)

func wage(country string, year int, common string) model.IndicatorRecord {
	return model.IndicatorRecord{
		CountryCode:         country,
		Year:                year,
		Indicator:           model.IndicatorWage,
		Value:               decimal.NewFromInt(1),
		ValueCommonCurrency: decimal.NewNullDecimal(decimal.RequireFromString(common)),
	}
}

func TestScanFlagsRedenominationSpike(t *testing.T) {
	// Without the FX correction the pre-reform years are 10000x too large.
	records := []model.IndicatorRecord{
		wage("ROU", 2003, "1999356"),
		wage("ROU", 2004, "2507370"),
		wage("ROU", 2005, "332.2"),
		wage("ROU", 2006, "408.0"),
	}

	findings := NewDetector(50, model.ColumnCommon).Scan(records)
	require.Len(t, findings, 1)
	assert.Equal(t, 2004, findings[0].FromYear)
	assert.Equal(t, 2005, findings[0].ToYear)
	assert.True(t, findings[0].Ratio.GreaterThan(decimal.NewFromInt(1000)))
	assert.Contains(t, findings[0].String(), "ROU wage 2004->2005")
}

func TestScanIgnoresSmoothSeriesAndGaps(t *testing.T) {
	records := []model.IndicatorRecord{
		wage("ROU", 2003, "199.9"),
		wage("ROU", 2004, "250.7"),
		wage("ROU", 2005, "332.2"),
		wage("ZWE", 2000, "1"),
		wage("ZWE", 2009, "100000"),
	}
	assert.Empty(t, NewDetector(50, model.ColumnCommon).Scan(records))
}

func TestNewDetectorDefaults(t *testing.T) {
	d := NewDetector(0, "")
	assert.True(t, d.jump.Equal(decimal.NewFromInt(DefaultJumpFactor)))
	assert.Equal(t, model.ColumnCommon, d.column)
}
