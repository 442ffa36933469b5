package merge

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"econindex/internal/model"
)

func rec(country string, year int, indicator model.IndicatorType, value int64) model.IndicatorRecord {
	return model.IndicatorRecord{
		CountryCode: country,
		Year:        year,
		Indicator:   indicator,
		Value:       decimal.NewFromInt(value),
	}
}

func TestMergePrecedence(t *testing.T) {
	primary := Stream{Source: "ilostat", Records: []model.IndicatorRecord{
		rec("DEU", 2010, model.IndicatorWage, 3000),
		rec("DEU", 2011, model.IndicatorWage, 3100),
	}}
	fallback := Stream{Source: "oecd", Records: []model.IndicatorRecord{
		rec("DEU", 2011, model.IndicatorWage, 9999),
		rec("DEU", 2012, model.IndicatorWage, 3200),
	}}

	out, err := Merge(primary, fallback)
	require.NoError(t, err)
	require.Len(t, out, 3)

	byKey := make(map[model.Key]model.IndicatorRecord)
	for _, r := range out {
		byKey[r.Key()] = r
	}

	both := byKey[model.Key{CountryCode: "DEU", Year: 2011, Indicator: model.IndicatorWage}]
	assert.Equal(t, "ilostat", both.Source)
	assert.True(t, both.Value.Equal(decimal.NewFromInt(3100)))

	onlyFallback := byKey[model.Key{CountryCode: "DEU", Year: 2012, Indicator: model.IndicatorWage}]
	assert.Equal(t, "oecd", onlyFallback.Source)
	assert.True(t, onlyFallback.Value.Equal(decimal.NewFromInt(3200)))

	_, present := byKey[model.Key{CountryCode: "DEU", Year: 2013, Indicator: model.IndicatorWage}]
	assert.False(t, present)
}

func TestMergeEmptyFallback(t *testing.T) {
	out, err := Merge(Stream{Source: "a", Records: []model.IndicatorRecord{rec("FRA", 2000, model.IndicatorWage, 1)}}, Stream{})
	require.NoError(t, err)
	assert.Len(t, out, 1)
	assert.Equal(t, "a", out[0].Source)
}

func TestMergeRejectsDuplicateWithinSource(t *testing.T) {
	primary := Stream{Source: "ilostat", Records: []model.IndicatorRecord{
		rec("DEU", 2010, model.IndicatorWage, 1),
		rec("DEU", 2010, model.IndicatorWage, 2),
	}}
	_, err := Merge(primary, Stream{Source: "oecd"})
	require.Error(t, err)

	var dup *DuplicateKeyError
	require.True(t, errors.As(err, &dup))
	assert.Equal(t, 2010, dup.Key.Year)
	assert.ErrorIs(t, err, ErrDuplicateKey)
}

func TestUnionRejectsOverlap(t *testing.T) {
	_, err := Union(
		Stream{Source: "worldbank", Records: []model.IndicatorRecord{rec("USA", 2000, model.IndicatorCPI, 100)}},
		Stream{Source: "imf", Records: []model.IndicatorRecord{rec("USA", 2000, model.IndicatorCPI, 101)}},
	)
	var dup *DuplicateKeyError
	require.True(t, errors.As(err, &dup))
	assert.Equal(t, []string{"worldbank", "imf"}, dup.Sources)
}

func TestPlanApply(t *testing.T) {
	plan, err := NewPlan([]Pair{{Indicator: model.IndicatorWage, Primary: "ilostat", Fallback: "oecd"}})
	require.NoError(t, err)

	streams := []Stream{
		{Source: "worldbank", Records: []model.IndicatorRecord{
			rec("USA", 2000, model.IndicatorCPI, 100),
			rec("USA", 2001, model.IndicatorCPI, 102),
		}},
		{Source: "oecd", Records: []model.IndicatorRecord{
			rec("USA", 2000, model.IndicatorWage, 5000),
			rec("USA", 2001, model.IndicatorWage, 5100),
		}},
		{Source: "ilostat", Records: []model.IndicatorRecord{
			rec("USA", 2001, model.IndicatorWage, 4000),
		}},
	}

	out, err := plan.Apply(streams)
	require.NoError(t, err)
	require.Len(t, out, 4)

	sources := make(map[model.Key]string)
	for _, r := range out {
		sources[r.Key()] = r.Source
	}
	assert.Equal(t, "worldbank", sources[model.Key{CountryCode: "USA", Year: 2000, Indicator: model.IndicatorCPI}])
	assert.Equal(t, "oecd", sources[model.Key{CountryCode: "USA", Year: 2000, Indicator: model.IndicatorWage}])
	assert.Equal(t, "ilostat", sources[model.Key{CountryCode: "USA", Year: 2001, Indicator: model.IndicatorWage}])

	for i := 1; i < len(out); i++ {
		prev, curr := out[i-1], out[i]
		assert.False(t, prev.Key() == curr.Key())
	}
}

func TestPlanApplyUndeclaredCollision(t *testing.T) {
	plan, err := NewPlan(nil)
	require.NoError(t, err)

	_, err = plan.Apply([]Stream{
		{Source: "bis", Records: []model.IndicatorRecord{rec("GBR", 2000, model.IndicatorHousingPrice, 90)}},
		{Source: "oecd", Records: []model.IndicatorRecord{rec("GBR", 2000, model.IndicatorHousingPrice, 91)}},
	})
	assert.ErrorIs(t, err, ErrDuplicateKey)
}

func TestPlanApplyExtraSourceMustBeDisjoint(t *testing.T) {
	plan, err := NewPlan([]Pair{{Indicator: model.IndicatorWage, Primary: "ilostat", Fallback: "oecd"}})
	require.NoError(t, err)

	_, err = plan.Apply([]Stream{
		{Source: "ilostat", Records: []model.IndicatorRecord{rec("ITA", 2000, model.IndicatorWage, 1)}},
		{Source: "eurostat", Records: []model.IndicatorRecord{rec("ITA", 2000, model.IndicatorWage, 2)}},
	})
	assert.ErrorIs(t, err, ErrDuplicateKey)
}

func TestNewPlanValidation(t *testing.T) {
	_, err := NewPlan([]Pair{{Indicator: model.IndicatorWage}})
	assert.Error(t, err)

	_, err = NewPlan([]Pair{{Indicator: model.IndicatorWage, Primary: "a", Fallback: "a"}})
	assert.Error(t, err)

	_, err = NewPlan([]Pair{
		{Indicator: model.IndicatorWage, Primary: "a"},
		{Indicator: model.IndicatorWage, Primary: "b"},
	})
	assert.Error(t, err)
}
