package fetcher

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"econindex/internal/model"
	"econindex/internal/reference"
)

// RecordSource produces raw indicator records for one source id.
type RecordSource interface {
	Name() string
	Fetch(ctx context.Context) ([]model.IndicatorRecord, error)
}

// FXSource produces raw local-currency-per-USD exchange rates.
type FXSource interface {
	FetchFX(ctx context.Context) ([]model.FXRecord, error)
}

var periodPattern = regexp.MustCompile(`^(\d{4})(?:-?Q[1-4]|-?S[12]|M(?:0[1-9]|1[0-2])|-(?:0[1-9]|1[0-2])(?:-\d{2})?)?$`)

// ParsePeriod collapses an annual, semi-annual, quarterly, or monthly period
// label onto its calendar year.
func ParsePeriod(raw string) (int, error) {
	period := strings.ToUpper(strings.TrimSpace(raw))
	match := periodPattern.FindStringSubmatch(period)
	if match == nil {
		return 0, fmt.Errorf("unrecognised period %q", raw)
	}
	year, err := strconv.Atoi(match[1])
	if err != nil {
		return 0, fmt.Errorf("parse period year %q: %w", raw, err)
	}
	return year, nil
}

// CodeMap rewrites source-specific country codes onto ISO3.
type CodeMap map[string]string

// NewCodeMap upper-cases both sides of the mapping.
func NewCodeMap(raw map[string]string) CodeMap {
	out := make(CodeMap, len(raw))
	for from, to := range raw {
		out[strings.ToUpper(strings.TrimSpace(from))] = strings.ToUpper(strings.TrimSpace(to))
	}
	return out
}

// Resolve returns the ISO3 code for raw and whether it names a country.
func (m CodeMap) Resolve(raw string) (string, bool) {
	code := strings.ToUpper(strings.TrimSpace(raw))
	if mapped, ok := m[code]; ok {
		code = mapped
	}
	return code, reference.IsCountry(code)
}

// Static serves a fixed record set, used for dry runs and tests.
type Static struct {
	name    string
	records []model.IndicatorRecord
}

// NewStatic wraps records as a named source.
func NewStatic(name string, records []model.IndicatorRecord) *Static {
	return &Static{name: name, records: records}
}

// Name implements RecordSource.
func (s *Static) Name() string { return s.name }

// Fetch implements RecordSource.
func (s *Static) Fetch(ctx context.Context) ([]model.IndicatorRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out := make([]model.IndicatorRecord, len(s.records))
	copy(out, s.records)
	return out, nil
}

// StaticFX serves a fixed FX table.
type StaticFX []model.FXRecord

// FetchFX implements FXSource.
func (s StaticFX) FetchFX(ctx context.Context) ([]model.FXRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out := make([]model.FXRecord, len(s))
	copy(out, s)
	return out, nil
}

var (
	_ RecordSource = (*Static)(nil)
	_ FXSource     = StaticFX(nil)
)
