package reference

import (
	"fmt"

	"github.com/shopspring/decimal"

	"econindex/internal/model"
)

// EurozoneEntry fixes a legacy currency to the euro.
type EurozoneEntry struct {
	AdoptionYear int
	LegacyPerEUR decimal.Decimal
}

// Eurozone maps member states to their irrevocable conversion rate.
type Eurozone struct {
	byCountry map[string]EurozoneEntry
}

// NewEurozone validates and copies the table.
func NewEurozone(table map[string]EurozoneEntry) (*Eurozone, error) {
	byCountry := make(map[string]EurozoneEntry, len(table))
	for country, entry := range table {
		if !model.IsISO3(country) {
			return nil, fmt.Errorf("reference: eurozone country %q is not ISO3", country)
		}
		if !entry.LegacyPerEUR.IsPositive() {
			return nil, fmt.Errorf("reference: eurozone %s conversion rate must be positive", country)
		}
		if entry.AdoptionYear < 1999 {
			return nil, fmt.Errorf("reference: eurozone %s adoption year %d precedes the euro", country, entry.AdoptionYear)
		}
		byCountry[country] = entry
	}
	return &Eurozone{byCountry: byCountry}, nil
}

// Lookup returns the entry for country.
func (z *Eurozone) Lookup(country string) (EurozoneEntry, bool) {
	if z == nil {
		return EurozoneEntry{}, false
	}
	entry, ok := z.byCountry[country]
	return entry, ok
}

// Len returns the number of member states.
func (z *Eurozone) Len() int {
	if z == nil {
		return 0
	}
	return len(z.byCountry)
}
