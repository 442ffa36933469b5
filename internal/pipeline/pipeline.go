// Package pipeline turns one raw dataset into the normalized, rebased rows
// handed to the sink.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"econindex/internal/anomaly"
	"econindex/internal/convert"
	"econindex/internal/fxnorm"
	"econindex/internal/merge"
	"econindex/internal/model"
	"econindex/internal/rebase"
	"econindex/internal/reference"
)

// ErrDuplicateOutput reports two emitted rows sharing (country, year, indicator).
var ErrDuplicateOutput = errors.New("pipeline: duplicate output key")

// FXSourceID tags emitted exchange-rate rows.
const FXSourceID = "fx"

// FXUnit is the unit of emitted exchange-rate rows.
const FXUnit = "LCU per USD"

// Options tune one run.
type Options struct {
	Workers           int
	ConvertIndicators []model.IndicatorType
	SparseIndicators  []model.IndicatorType
	SparseMinPoints   int
	Selector          rebase.Selector
	Column            model.ValueColumn
	EmitFX            bool
	RoundCommon       int32
	RoundIndex        int32
	DetectAnomalies   bool
	JumpFactor        float64
}

// Dataset is the raw input of a run.
type Dataset struct {
	Streams []merge.Stream
	FX      []model.FXRecord
}

// Stats counts what each stage did.
type Stats struct {
	Raw           int
	DroppedCodes  int
	DroppedRates  int
	Merged        int
	Conversion    convert.Stats
	SparseDropped int
	Rebased       int
	Absent        int
	FXEmitted     int
	Output        int
}

// Result is the output of one run.
type Result struct {
	RunID      string
	StartedAt  time.Time
	FinishedAt time.Time
	BaseYears  map[model.IndicatorType]int
	NoBaseYear []model.IndicatorType
	Records    []model.NormalizedRecord
	Absent     []*rebase.MissingBaseYearError
	Findings   []anomaly.Finding
	Stats      Stats
}

// Orchestrator wires the transform packages into one run.
type Orchestrator struct {
	opts       Options
	plan       *merge.Plan
	normalizer *fxnorm.Normalizer
	converter  *convert.Converter
	detector   *anomaly.Detector
	sparse     map[model.IndicatorType]bool
	logger     zerolog.Logger
	now        func() time.Time
}

// New constructs an orchestrator. A nil plan merges every indicator by identity.
func New(opts Options, tables *reference.Tables, plan *merge.Plan, logger zerolog.Logger) (*Orchestrator, error) {
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	if opts.Column == "" {
		opts.Column = model.ColumnLocal
	}
	if plan == nil {
		var err error
		if plan, err = merge.NewPlan(nil); err != nil {
			return nil, err
		}
	}

	sparse := make(map[model.IndicatorType]bool, len(opts.SparseIndicators))
	for _, t := range opts.SparseIndicators {
		sparse[t] = true
	}

	converter, err := convert.NewConverter(opts.ConvertIndicators)
	if err != nil {
		return nil, err
	}

	o := &Orchestrator{
		opts:       opts,
		plan:       plan,
		normalizer: fxnorm.New(tables),
		converter:  converter,
		sparse:     sparse,
		logger:     logger.With().Str("component", "pipeline").Logger(),
		now:        func() time.Time { return time.Now().UTC() },
	}
	if opts.DetectAnomalies {
		o.detector = anomaly.NewDetector(opts.JumpFactor, model.ColumnCommon)
	}
	return o, nil
}

// Run executes every stage. Duplicate keys inside a source, undeclared
// overlaps between sources, and duplicate output rows are fatal; missing
// rates and missing base values are not.
func (o *Orchestrator) Run(ctx context.Context, ds Dataset) (*Result, error) {
	result := &Result{
		RunID:     uuid.NewString(),
		StartedAt: o.now(),
		BaseYears: make(map[model.IndicatorType]int),
	}
	logger := o.logger.With().Str("run_id", result.RunID).Logger()

	streams, fx := o.filter(ds, &result.Stats)

	merged, err := o.plan.Apply(streams)
	if err != nil {
		return nil, fmt.Errorf("merge sources: %w", err)
	}
	result.Stats.Merged = len(merged)

	rates, err := fxnorm.NewSeries(o.normalizer.Normalize(fx))
	if err != nil {
		return nil, fmt.Errorf("normalize fx: %w", err)
	}

	converted, convStats, err := o.convert(ctx, merged, rates)
	if err != nil {
		return nil, err
	}
	result.Stats.Conversion = convStats

	pruned, dropped := o.dropSparse(converted)
	result.Stats.SparseDropped = dropped

	if o.detector != nil {
		result.Findings = o.detector.Scan(pruned)
		for _, finding := range result.Findings {
			logger.Warn().Str("finding", finding.String()).Msg("suspicious year-over-year jump")
		}
	}

	o.selectBaseYears(pruned, result)

	normalized, absent, err := o.rebase(ctx, pruned, result.BaseYears)
	if err != nil {
		return nil, err
	}
	result.Absent = absent
	result.Stats.Absent = len(absent)

	if o.opts.EmitFX {
		fxRows := o.emitFX(rates, fx)
		result.Stats.FXEmitted = len(fxRows)
		normalized = append(normalized, fxRows...)
	}

	if err := checkUnique(normalized); err != nil {
		return nil, err
	}
	sortNormalized(normalized)

	result.FinishedAt = o.now()
	for i := range normalized {
		normalized[i].RunID = result.RunID
		normalized[i].IngestedAt = result.FinishedAt
		o.round(&normalized[i])
		if normalized[i].ValueRebased.Valid {
			result.Stats.Rebased++
		}
	}
	result.Records = normalized
	result.Stats.Output = len(normalized)

	logger.Info().
		Int("raw", result.Stats.Raw).
		Int("dropped_codes", result.Stats.DroppedCodes).
		Int("dropped_rates", result.Stats.DroppedRates).
		Int("merged", result.Stats.Merged).
		Int("converted", convStats.Converted).
		Int("missing_rate", convStats.MissingRate).
		Int("sparse_dropped", result.Stats.SparseDropped).
		Int("absent", result.Stats.Absent).
		Int("output", result.Stats.Output).
		Dur("elapsed", result.FinishedAt.Sub(result.StartedAt)).
		Msg("pipeline run complete")
	return result, nil
}

// filter drops rows whose country is not an ISO3 country (aggregates
// included), drops non-positive rates, and fills blank country names.
func (o *Orchestrator) filter(ds Dataset, stats *Stats) ([]merge.Stream, []model.FXRecord) {
	streams := make([]merge.Stream, 0, len(ds.Streams))
	for _, stream := range ds.Streams {
		kept := make([]model.IndicatorRecord, 0, len(stream.Records))
		for _, rec := range stream.Records {
			stats.Raw++
			rec.CountryCode = strings.ToUpper(strings.TrimSpace(rec.CountryCode))
			if !reference.IsCountry(rec.CountryCode) {
				stats.DroppedCodes++
				continue
			}
			if rec.CountryName == "" {
				rec.CountryName = reference.CountryName(rec.CountryCode)
			}
			kept = append(kept, rec)
		}
		streams = append(streams, merge.Stream{Source: stream.Source, Records: kept})
	}

	fx := make([]model.FXRecord, 0, len(ds.FX))
	for _, rate := range ds.FX {
		rate.CountryCode = strings.ToUpper(strings.TrimSpace(rate.CountryCode))
		if !reference.IsCountry(rate.CountryCode) {
			continue
		}
		if !rate.Rate.IsPositive() {
			stats.DroppedRates++
			continue
		}
		fx = append(fx, rate)
	}
	return streams, fx
}

// shard groups records by country in sorted country order.
func shard(records []model.IndicatorRecord) ([]string, map[string][]model.IndicatorRecord) {
	byCountry := make(map[string][]model.IndicatorRecord)
	for _, rec := range records {
		byCountry[rec.CountryCode] = append(byCountry[rec.CountryCode], rec)
	}
	countries := make([]string, 0, len(byCountry))
	for country := range byCountry {
		countries = append(countries, country)
	}
	sort.Strings(countries)
	return countries, byCountry
}

func (o *Orchestrator) convert(ctx context.Context, records []model.IndicatorRecord, rates *fxnorm.Series) ([]model.IndicatorRecord, convert.Stats, error) {
	countries, byCountry := shard(records)
	outputs := make([][]model.IndicatorRecord, len(countries))
	stats := make([]convert.Stats, len(countries))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.opts.Workers)
	for i, country := range countries {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			outputs[i], stats[i] = o.converter.Apply(byCountry[country], rates)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, convert.Stats{}, fmt.Errorf("convert: %w", err)
	}

	var total convert.Stats
	out := make([]model.IndicatorRecord, 0, len(records))
	for i := range countries {
		total.Add(stats[i])
		out = append(out, outputs[i]...)
	}
	return out, total, nil
}

// dropSparse removes configured indicators whose per-country series has fewer
// than SparseMinPoints years. It returns the number of series dropped.
func (o *Orchestrator) dropSparse(records []model.IndicatorRecord) ([]model.IndicatorRecord, int) {
	if len(o.sparse) == 0 || o.opts.SparseMinPoints <= 1 {
		return records, 0
	}

	type seriesKey struct {
		country   string
		indicator model.IndicatorType
	}
	counts := make(map[seriesKey]int)
	for _, rec := range records {
		if o.sparse[rec.Indicator] {
			counts[seriesKey{rec.CountryCode, rec.Indicator}]++
		}
	}

	dropped := 0
	for key, n := range counts {
		if n < o.opts.SparseMinPoints {
			dropped++
			o.logger.Debug().Str("country", key.country).Str("indicator", string(key.indicator)).Int("points", n).Msg("dropping sparse series")
		}
	}
	if dropped == 0 {
		return records, 0
	}

	out := make([]model.IndicatorRecord, 0, len(records))
	for _, rec := range records {
		if o.sparse[rec.Indicator] && counts[seriesKey{rec.CountryCode, rec.Indicator}] < o.opts.SparseMinPoints {
			continue
		}
		out = append(out, rec)
	}
	return out, dropped
}

// selectBaseYears is the barrier between conversion and rebasing: every
// indicator gets one base year, chosen from the rows carrying the rebased
// column across all countries. An indicator with rows but none in that
// column is reported in NoBaseYear.
func (o *Orchestrator) selectBaseYears(records []model.IndicatorRecord, result *Result) {
	present := make(map[model.IndicatorType]bool)
	for _, rec := range records {
		present[rec.Indicator] = true
	}
	for _, indicator := range model.IndicatorTypes {
		if indicator == model.IndicatorFXRate || !present[indicator] {
			continue
		}
		set := rebase.Group(records, indicator, o.opts.Column)
		if len(set) == 0 {
			o.logger.Warn().Str("indicator", string(indicator)).Str("column", string(o.opts.Column)).Msg("no rows carry the rebased column; series left unrebased")
			result.NoBaseYear = append(result.NoBaseYear, indicator)
			continue
		}
		year, err := o.opts.Selector.Select(set)
		if err != nil {
			o.logger.Warn().Err(err).Str("indicator", string(indicator)).Msg("no base year; series left unrebased")
			result.NoBaseYear = append(result.NoBaseYear, indicator)
			continue
		}
		result.BaseYears[indicator] = year
	}
}

func (o *Orchestrator) rebase(ctx context.Context, records []model.IndicatorRecord, baseYears map[model.IndicatorType]int) ([]model.NormalizedRecord, []*rebase.MissingBaseYearError, error) {
	countries, byCountry := shard(records)
	outputs := make([][]model.NormalizedRecord, len(countries))
	absent := make([][]*rebase.MissingBaseYearError, len(countries))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.opts.Workers)
	for i, country := range countries {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			out, missing, err := o.rebaseCountry(country, byCountry[country], baseYears)
			if err != nil {
				return err
			}
			outputs[i], absent[i] = out, missing
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, fmt.Errorf("rebase: %w", err)
	}

	out := make([]model.NormalizedRecord, 0, len(records))
	var missing []*rebase.MissingBaseYearError
	for i := range countries {
		out = append(out, outputs[i]...)
		missing = append(missing, absent[i]...)
	}
	return out, missing, nil
}

func (o *Orchestrator) rebaseCountry(country string, records []model.IndicatorRecord, baseYears map[model.IndicatorType]int) ([]model.NormalizedRecord, []*rebase.MissingBaseYearError, error) {
	type indexKey struct {
		indicator model.IndicatorType
		year      int
	}
	indices := make(map[indexKey]decimal.Decimal)
	var absent []*rebase.MissingBaseYearError

	seen := make(map[model.IndicatorType]bool)
	for _, rec := range records {
		if seen[rec.Indicator] {
			continue
		}
		seen[rec.Indicator] = true

		baseYear, ok := baseYears[rec.Indicator]
		if !ok {
			continue
		}
		series := rebase.Extract(records, country, rec.Indicator, o.opts.Column)
		rebased, err := rebase.Rebase(series, baseYear)
		if err != nil {
			var missing *rebase.MissingBaseYearError
			if errors.As(err, &missing) {
				absent = append(absent, missing)
				continue
			}
			return nil, nil, err
		}
		for _, p := range rebased.Points {
			indices[indexKey{rec.Indicator, p.Year}] = p.Value
		}
	}

	out := make([]model.NormalizedRecord, len(records))
	for i, rec := range records {
		out[i] = model.NormalizedRecord{IndicatorRecord: rec}
		if index, ok := indices[indexKey{rec.Indicator, rec.Year}]; ok {
			out[i].ValueRebased = decimal.NewNullDecimal(index)
			out[i].BaseYear = baseYears[rec.Indicator]
		}
	}
	return out, absent, nil
}

// emitFX turns the normalized rate table into FX_RATE rows. Raw rows are
// consulted only for the ordering of keys.
func (o *Orchestrator) emitFX(rates *fxnorm.Series, raw []model.FXRecord) []model.NormalizedRecord {
	out := make([]model.NormalizedRecord, 0, len(raw))
	for _, r := range raw {
		rate, ok := rates.Rate(r.CountryCode, r.Year)
		if !ok {
			continue
		}
		out = append(out, model.NormalizedRecord{IndicatorRecord: model.IndicatorRecord{
			CountryCode: r.CountryCode,
			CountryName: reference.CountryName(r.CountryCode),
			Year:        r.Year,
			Indicator:   model.IndicatorFXRate,
			Value:       rate,
			Unit:        FXUnit,
			Source:      FXSourceID,
		}})
	}
	return out
}

func (o *Orchestrator) round(rec *model.NormalizedRecord) {
	if rec.ValueCommonCurrency.Valid {
		rec.ValueCommonCurrency.Decimal = rec.ValueCommonCurrency.Decimal.Round(o.opts.RoundCommon)
	}
	if rec.ValueRebased.Valid {
		rec.ValueRebased.Decimal = rec.ValueRebased.Decimal.Round(o.opts.RoundIndex)
	}
}

func checkUnique(records []model.NormalizedRecord) error {
	seen := make(map[model.Key]string, len(records))
	for _, rec := range records {
		key := rec.Key()
		if source, dup := seen[key]; dup {
			return fmt.Errorf("%w: %s from %s and %s", ErrDuplicateOutput, key, source, rec.Source)
		}
		seen[key] = rec.Source
	}
	return nil
}

func sortNormalized(records []model.NormalizedRecord) {
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
