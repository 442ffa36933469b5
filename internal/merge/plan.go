package merge

import (
	"fmt"
	"sort"

	"econindex/internal/model"
)

// Pair declares the primary and optional fallback source of one indicator.
type Pair struct {
	Indicator model.IndicatorType
	Primary   string
	Fallback  string
}

// Plan applies the declared pairs generically; indicators without a pair are
// merged by identity.
type Plan struct {
	pairs map[model.IndicatorType]Pair
}

// NewPlan validates the declarations.
func NewPlan(pairs []Pair) (*Plan, error) {
	byIndicator := make(map[model.IndicatorType]Pair, len(pairs))
	for _, p := range pairs {
		if p.Primary == "" {
			return nil, fmt.Errorf("merge: pair for %s has no primary source", p.Indicator)
		}
		if p.Primary == p.Fallback {
			return nil, fmt.Errorf("merge: pair for %s uses %s as both primary and fallback", p.Indicator, p.Primary)
		}
		if _, dup := byIndicator[p.Indicator]; dup {
			return nil, fmt.Errorf("merge: indicator %s declared twice", p.Indicator)
		}
		byIndicator[p.Indicator] = p
	}
	return &Plan{pairs: byIndicator}, nil
}

// Pair returns the declaration for indicator.
func (p *Plan) Pair(indicator model.IndicatorType) (Pair, bool) {
	if p == nil {
		return Pair{}, false
	}
	pair, ok := p.pairs[indicator]
	return pair, ok
}

// Apply merges all streams. For a declared indicator the primary/fallback
// streams go through Merge and any other source of that indicator must be
// disjoint from the result. Undeclared indicators are a plain Union.
func (p *Plan) Apply(streams []Stream) ([]model.IndicatorRecord, error) {
	bySource := make(map[model.IndicatorType]map[string][]model.IndicatorRecord)
	for _, stream := range streams {
		for _, rec := range stream.Records {
			sources, ok := bySource[rec.Indicator]
			if !ok {
				sources = make(map[string][]model.IndicatorRecord)
				bySource[rec.Indicator] = sources
			}
			sources[stream.Source] = append(sources[stream.Source], rec)
		}
	}

	indicators := make([]model.IndicatorType, 0, len(bySource))
	for indicator := range bySource {
		indicators = append(indicators, indicator)
	}
	sort.Slice(indicators, func(i, j int) bool { return indicators[i] < indicators[j] })

	var out []model.IndicatorRecord
	for _, indicator := range indicators {
		merged, err := p.applyIndicator(indicator, bySource[indicator])
		if err != nil {
			return nil, err
		}
		out = append(out, merged...)
	}
	model.SortRecords(out)
	return out, nil
}

func (p *Plan) applyIndicator(indicator model.IndicatorType, sources map[string][]model.IndicatorRecord) ([]model.IndicatorRecord, error) {
	names := make([]string, 0, len(sources))
	for name := range sources {
		names = append(names, name)
	}
	sort.Strings(names)

	pair, declared := p.Pair(indicator)
	var rest []Stream
	for _, name := range names {
		if declared && (name == pair.Primary || name == pair.Fallback) {
			continue
		}
		rest = append(rest, Stream{Source: name, Records: sources[name]})
	}

	if !declared {
		return Union(rest...)
	}

	paired, err := Merge(
		Stream{Source: pair.Primary, Records: sources[pair.Primary]},
		Stream{Source: pair.Fallback, Records: sources[pair.Fallback]},
	)
	if err != nil {
		return nil, err
	}
	return Union(append([]Stream{{Source: pair.Primary, Records: paired, merged: true}}, rest...)...)
}
