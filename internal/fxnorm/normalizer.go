// Package fxnorm restates exchange-rate series in the currency unit that was
// actually in circulation in each historical year.
package fxnorm

import (
	"econindex/internal/model"
	"econindex/internal/reference"
)

// Normalizer applies the eurozone and redenomination corrections.
type Normalizer struct {
	redenoms *reference.Redenominations
	eurozone *reference.Eurozone
}

// New builds a Normalizer over the given reference tables.
func New(tables *reference.Tables) *Normalizer {
	if tables == nil {
		return &Normalizer{}
	}
	return &Normalizer{redenoms: tables.Redenominations, eurozone: tables.Eurozone}
}

// Normalize applies the eurozone correction followed by the redenomination
// correction. Redenomination years are expressed against the local currency
// left by the eurozone step, so the order is fixed.
func (n *Normalizer) Normalize(records []model.FXRecord) []model.FXRecord {
	return n.Redenominate(n.Eurozone(records))
}

// Eurozone converts pre-adoption legacy-currency rates into euro per USD by
// dividing by the irrevocable legacy-per-euro rate.
func (n *Normalizer) Eurozone(records []model.FXRecord) []model.FXRecord {
	out := make([]model.FXRecord, len(records))
	for i, rec := range records {
		out[i] = rec
		entry, ok := n.eurozone.Lookup(rec.CountryCode)
		if !ok || rec.Year >= entry.AdoptionYear {
			continue
		}
		out[i].Rate = rec.Rate.Div(entry.LegacyPerEUR)
	}
	return out
}

// Redenominate multiplies each rate by the cumulative factor of the reforms
// that happened after its year. Countries without reforms pass through.
func (n *Normalizer) Redenominate(records []model.FXRecord) []model.FXRecord {
	out := make([]model.FXRecord, len(records))
	for i, rec := range records {
		out[i] = rec
		if !n.redenoms.Has(rec.CountryCode) {
			continue
		}
		out[i].Rate = rec.Rate.Mul(n.redenoms.CumulativeFactor(rec.CountryCode, rec.Year))
	}
	return out
}
