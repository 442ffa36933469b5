package model

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// ValueColumn selects which value a rebasing run operates on.
type ValueColumn string

const (
	ColumnLocal  ValueColumn = "local"
	ColumnCommon ValueColumn = "common"
)

// ParseValueColumn resolves a column name.
func ParseValueColumn(s string) (ValueColumn, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "local", "value":
		return ColumnLocal, nil
	case "common", "usd", "value_usd":
		return ColumnCommon, nil
	}
	return "", fmt.Errorf("unknown value column %q", s)
}

// Pick returns the selected value of r and whether it is present.
func (c ValueColumn) Pick(r IndicatorRecord) (decimal.Decimal, bool) {
	if c == ColumnCommon {
		if !r.ValueCommonCurrency.Valid {
			return decimal.Decimal{}, false
		}
		return r.ValueCommonCurrency.Decimal, true
	}
	return r.Value, true
}

// NormalizedRecord is one row of the final dataset handed to the sink.
type NormalizedRecord struct {
	IndicatorRecord
	ValueRebased decimal.NullDecimal
	BaseYear     int
	RunID        string
	IngestedAt   time.Time
}
